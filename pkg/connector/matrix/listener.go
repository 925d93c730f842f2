// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/unjoinable/whisperwire/pkg/connector/matrixfmt"
	"github.com/unjoinable/whisperwire/pkg/relay"
)

// ListenerConfig describes the room a Listener watches.
type ListenerConfig struct {
	RoomID id.RoomID
	// UserID is the relay bot's own user. Its events are never relayed.
	UserID id.UserID
	// Source is stamped on every inbound message. Defaults to the id of the
	// endpoint for RoomID.
	Source string
}

// Listener receives m.room.message events from a Matrix room through
// /sync and dispatches them into the relay.
type Listener struct {
	cfg      ListenerConfig
	dispatch relay.DispatchFunc
	log      zerolog.Logger
	// Events sent before the listener was created are history and are
	// not relayed.
	since time.Time
}

func NewListener(log zerolog.Logger, cfg ListenerConfig, dispatch relay.DispatchFunc) *Listener {
	if cfg.Source == "" {
		cfg.Source = EndpointID(cfg.RoomID)
	}
	return &Listener{
		cfg:      cfg,
		dispatch: dispatch,
		log:      log.With().Str("component", "matrix_listener").Stringer("room_id", cfg.RoomID).Logger(),
		since:    time.Now(),
	}
}

// Run registers the listener on client's syncer and syncs until ctx is
// cancelled.
func (l *Listener) Run(ctx context.Context, client *mautrix.Client) error {
	syncer, ok := client.Syncer.(mautrix.ExtensibleSyncer)
	if !ok {
		return fmt.Errorf("syncer %T does not accept event handlers", client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, l.HandleEvent)

	l.log.Info().Msg("Starting Matrix sync")
	err := client.SyncWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync stopped: %w", err)
	}
	return nil
}

// HandleEvent relays a message event from the watched room.
func (l *Listener) HandleEvent(ctx context.Context, evt *event.Event) {
	msg, ok := l.toMessage(evt)
	if !ok {
		return
	}
	result := l.dispatch(ctx, msg)
	go func() {
		if err := result.Wait(ctx); err != nil {
			l.log.Warn().Err(err).Stringer("event_id", evt.ID).Msg("Relaying Matrix message failed")
		}
	}()
}

func (l *Listener) toMessage(evt *event.Event) (relay.Message, bool) {
	if evt == nil || evt.RoomID != l.cfg.RoomID {
		return relay.Message{}, false
	}
	if evt.Sender == l.cfg.UserID {
		return relay.Message{}, false
	}
	ts := time.UnixMilli(evt.Timestamp)
	if evt.Timestamp > 0 && ts.Before(l.since) {
		l.log.Trace().Stringer("event_id", evt.ID).Msg("Skipping event from before startup")
		return relay.Message{}, false
	}
	if evt.Timestamp <= 0 {
		ts = time.Now()
	}

	content := evt.Content.AsMessage()
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		// Edits arrive as new events; relaying them would duplicate text.
		return relay.Message{}, false
	}

	var text string
	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
		text = matrixfmt.Parse(content)
	case event.MsgEmote:
		if text = matrixfmt.Parse(content); text != "" {
			text = "/me " + text
		}
	default:
		l.log.Debug().
			Str("msgtype", string(content.MsgType)).
			Stringer("event_id", evt.ID).
			Msg("Skipping unsupported message type")
		return relay.Message{}, false
	}

	return relay.MessageAt(l.cfg.Source, senderName(evt.Sender), text, ts), true
}

// senderName returns the localpart of a user id, or the full id if it does
// not parse.
func senderName(userID id.UserID) string {
	localpart, _, err := userID.Parse()
	if err != nil || localpart == "" {
		return strings.TrimPrefix(string(userID), "@")
	}
	return localpart
}
