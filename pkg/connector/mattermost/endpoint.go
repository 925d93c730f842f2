// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

// Poster is the subset of *model.Client4 the endpoint posts through.
type Poster interface {
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, *model.Response, error)
}

// Formatter renders a relayed message as the text of a Mattermost post.
type Formatter func(msg relay.Message) string

// Post props Mattermost reads to show a relayed author instead of the bot.
const (
	propOverrideUsername = "override_username"
	propOverrideIconURL  = "override_icon_url"
)

// EndpointID is the relay id of the endpoint bound to channelID.
func EndpointID(channelID string) string {
	return "mattermost-" + channelID
}

// Endpoint posts relayed messages into one Mattermost channel. It serves as
// both a bridge endpoint and a link node.
type Endpoint struct {
	*relay.EndpointBase

	client    Poster
	channelID string
	format    Formatter
	log       zerolog.Logger

	username Formatter
	iconURL  string
}

var (
	_ relay.Endpoint   = (*Endpoint)(nil)
	_ relay.DuplexNode = (*Endpoint)(nil)
)

// NewEndpoint creates an endpoint for channelID. A nil format posts the bare
// content.
func NewEndpoint(log zerolog.Logger, client Poster, channelID string, format Formatter) *Endpoint {
	if format == nil {
		format = func(msg relay.Message) string { return msg.Content }
	}
	id := EndpointID(channelID)
	return &Endpoint{
		EndpointBase: relay.NewEndpointBase(id),
		client:       client,
		channelID:    channelID,
		format:       format,
		log:          log.With().Str("component", "mm_endpoint").Str("endpoint", id).Logger(),
	}
}

// SetOverride makes posts display username(msg) and iconURL instead of the
// bot's own profile. Empty results leave the profile unchanged.
func (e *Endpoint) SetOverride(username Formatter, iconURL string) {
	e.username = username
	e.iconURL = iconURL
}

// Send creates a post in the channel. Messages with blank content are
// skipped without error.
func (e *Endpoint) Send(ctx context.Context, msg relay.Message) error {
	if !relay.NotBlank(msg.Content) {
		e.log.Debug().Str("source", msg.Source).Msg("Skipping blank message")
		return nil
	}
	post := &model.Post{
		ChannelId: e.channelID,
		Message:   e.format(msg),
	}
	if e.username != nil {
		if name := e.username(msg); name != "" {
			post.AddProp(propOverrideUsername, name)
		}
	}
	if e.iconURL != "" {
		post.AddProp(propOverrideIconURL, e.iconURL)
	}
	created, _, err := e.client.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	e.log.Debug().
		Str("post_id", created.Id).
		Str("source", msg.Source).
		Msg("Relayed message to Mattermost")
	return nil
}
