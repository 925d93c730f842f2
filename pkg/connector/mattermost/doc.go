// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost connects one Mattermost channel to the relay.
//
// [Endpoint] posts relayed messages through the REST API and can be
// registered on a bridge or used as a link node. [Listener] follows the
// channel over the WebSocket API and hands every new post to a
// [relay.DispatchFunc].
//
// # Echo Prevention
//
// The relay bot posts into the channel it listens on, so the listener drops
// posts that would loop back. Layers include the bot's own user id, known
// bridge usernames, a configurable username prefix and system messages.
// These layers must not be simplified or removed.
package mattermost
