// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay is the platform-agnostic routing core of whisperwire.
//
// Platform adapters implement [Endpoint] or [DuplexNode] and hand inbound
// traffic to the core as a [Message]. The core never calls back into an
// adapter except through those two contracts.
//
// # Topologies
//
// [Bridge] is the many-to-many engine. Every routed message runs through an
// ordered [Filter] chain (first rejection drops the message silently), then
// an ordered [Transformer] chain, and is finally sent concurrently to every
// registered endpoint that is active and is not the message's source.
//
// [LinkManager] pairs nodes two at a time with a [Link]. A link forwards a
// message to whichever side did not send it, if its [RelayPredicate] allows
// it. A node may take part in several links, which turns [LinkManager.Relay]
// into a broadcast to all of its partners.
//
// # Asynchronous results
//
// RouteMessage, Forward and Relay return a [Pending] immediately. It resolves
// once every downstream send has finished. A failing send never aborts its
// siblings; each failure is reported as a [*DispatchError] inside the
// aggregated error.
//
// # Identity
//
// Ids are compared case-insensitively everywhere: for self-exclusion, for
// link membership and for link uniqueness.
package relay
