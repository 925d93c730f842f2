// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/unjoinable/whisperwire/pkg/connector/mattermostfmt"
	"github.com/unjoinable/whisperwire/pkg/relay"
)

// Sender is the subset of *mautrix.Client the endpoint sends through.
type Sender interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// Formatter renders a relayed message as markdown text before it is
// converted to Matrix HTML.
type Formatter func(msg relay.Message) string

// EndpointID is the relay id of the endpoint bound to roomID.
func EndpointID(roomID id.RoomID) string {
	return "matrix-" + string(roomID)
}

// Endpoint sends relayed messages into one Matrix room.
type Endpoint struct {
	*relay.EndpointBase

	client Sender
	roomID id.RoomID
	format Formatter
	log    zerolog.Logger
}

var (
	_ relay.Endpoint   = (*Endpoint)(nil)
	_ relay.DuplexNode = (*Endpoint)(nil)
)

func NewEndpoint(log zerolog.Logger, client Sender, roomID id.RoomID, format Formatter) *Endpoint {
	if format == nil {
		format = func(msg relay.Message) string { return msg.Content }
	}
	eid := EndpointID(roomID)
	return &Endpoint{
		EndpointBase: relay.NewEndpointBase(eid),
		client:       client,
		roomID:       roomID,
		format:       format,
		log:          log.With().Str("component", "matrix_endpoint").Str("endpoint", eid).Logger(),
	}
}

// Send posts msg as an m.text event. The formatted markdown is carried as
// both the plain body and, when it has markup, org.matrix.custom.html.
func (e *Endpoint) Send(ctx context.Context, msg relay.Message) error {
	if !relay.NotBlank(msg.Content) {
		e.log.Debug().Str("source", msg.Source).Msg("Skipping blank message")
		return nil
	}
	content := mattermostfmt.Content(event.MsgText, e.format(msg))
	resp, err := e.client.SendMessageEvent(ctx, e.roomID, event.EventMessage, content)
	if err != nil {
		return fmt.Errorf("failed to send Matrix message: %w", err)
	}
	e.log.Debug().
		Stringer("event_id", resp.EventID).
		Str("source", msg.Source).
		Msg("Relayed message to Matrix")
	return nil
}
