// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

const defaultReconnectDelay = 5 * time.Second

var errStopped = errors.New("listener stopped")

// ListenerConfig describes the channel a Listener watches.
type ListenerConfig struct {
	ServerURL string
	Token     string
	ChannelID string
	// SelfUserID is the relay bot's own user id. Its posts are never relayed.
	SelfUserID string
	BotPrefix  string
	// Source is stamped on every inbound message. It must equal the id of
	// the endpoint posting into the same channel.
	Source string

	ReconnectDelay time.Duration
}

// Listener receives posts from a Mattermost channel over the WebSocket API
// and dispatches them into the relay.
type Listener struct {
	cfg      ListenerConfig
	dispatch relay.DispatchFunc
	log      zerolog.Logger

	wsMu     sync.Mutex
	wsClient *model.WebSocketClient

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewListener(log zerolog.Logger, cfg ListenerConfig, dispatch relay.DispatchFunc) *Listener {
	if cfg.Source == "" {
		cfg.Source = EndpointID(cfg.ChannelID)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Listener{
		cfg:      cfg,
		dispatch: dispatch,
		log:      log.With().Str("component", "mm_listener").Str("channel_id", cfg.ChannelID).Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start opens the WebSocket and processes events until Stop is called or
// ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	ws, err := l.connectWebSocket()
	if err != nil {
		return err
	}
	go l.listenWebSocket(ctx, ws)
	return nil
}

func (l *Listener) connectWebSocket() (*model.WebSocketClient, error) {
	wsURL := httpToWS(l.cfg.ServerURL)
	ws, err := model.NewWebSocketClient4(wsURL, l.cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket client: %w", err)
	}
	l.wsMu.Lock()
	if l.stopped() {
		l.wsMu.Unlock()
		ws.Close()
		return nil, errStopped
	}
	l.wsClient = ws
	l.wsMu.Unlock()
	ws.Listen()

	l.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return ws, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (l *Listener) listenWebSocket(ctx context.Context, ws *model.WebSocketClient) {
	for {
		select {
		case <-l.stopChan:
			return
		case <-ctx.Done():
			l.Stop()
			return
		case evt, ok := <-ws.EventChannel:
			if !ok {
				if l.stopped() {
					return
				}
				l.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				if ws = l.reconnect(ctx); ws == nil {
					return
				}
				continue
			}
			if evt == nil {
				continue
			}
			l.HandleEvent(ctx, evt)
		}
	}
}

// reconnect retries until a connection succeeds or the listener stops.
func (l *Listener) reconnect(ctx context.Context) *model.WebSocketClient {
	for {
		ws, err := l.connectWebSocket()
		switch {
		case err == nil:
			return ws
		case errors.Is(err, errStopped):
			return nil
		}
		l.log.Error().Err(err).Dur("retry_in", l.cfg.ReconnectDelay).Msg("Failed to reconnect WebSocket")
		select {
		case <-l.stopChan:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func (l *Listener) stopped() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

// Stop closes the WebSocket and ends the event loop. Safe to call more than
// once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wsMu.Lock()
	defer l.wsMu.Unlock()
	if l.wsClient != nil {
		l.wsClient.Close()
		l.wsClient = nil
	}
}

// HandleEvent relays a posted event from the watched channel. Other event
// types are ignored.
func (l *Listener) HandleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	if evt.EventType() != model.WebsocketEventPosted {
		l.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
		return
	}
	msg, err := l.parsePostedEvent(evt)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to parse posted event")
		return
	}
	if msg == nil {
		return
	}

	result := l.dispatch(ctx, *msg)
	go func() {
		if err := result.Wait(ctx); err != nil {
			l.log.Warn().Err(err).Msg("Relaying Mattermost post failed")
		}
	}()
}

// parsePostedEvent converts a posted event into a relay message, applying
// echo prevention. It returns (nil, nil) for posts that must be skipped.
func (l *Listener) parsePostedEvent(evt *model.WebSocketEvent) (*relay.Message, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	if post.ChannelId != l.cfg.ChannelID {
		return nil, nil
	}
	// Echo prevention: own posts.
	if l.cfg.SelfUserID != "" && post.UserId == l.cfg.SelfUserID {
		return nil, nil
	}
	// System messages (joins, header changes) are not chat.
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if senderName != "" && isBridgeUsername(senderName, l.cfg.BotPrefix) {
		l.log.Debug().
			Str("post_id", post.Id).
			Str("username", senderName).
			Msg("Skipping bridge username post (echo prevention)")
		return nil, nil
	}
	if senderName == "" {
		senderName = post.UserId
	}

	ts := time.Now()
	if post.CreateAt > 0 {
		ts = time.UnixMilli(post.CreateAt)
	}
	msg := relay.MessageAt(l.cfg.Source, senderName, post.Message, ts)
	return &msg, nil
}

func isBridgeUsername(username, botPrefix string) bool {
	switch {
	case username == "mattermost-bridge", username == "whisperwire":
		return true
	case strings.HasPrefix(username, "mattermost_"):
		// Puppets created by a Matrix bridge in the same channel.
		return true
	case botPrefix != "" && strings.HasPrefix(username, botPrefix):
		return true
	default:
		return false
	}
}
