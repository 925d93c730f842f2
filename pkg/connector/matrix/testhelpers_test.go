// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

const (
	testRoom = id.RoomID("!room:example.com")
	testBot  = id.UserID("@relay:example.com")
)

type sentEvent struct {
	Path string
	Body map[string]any
}

// fakeHomeserver answers the few client-server API calls the adapter makes.
type fakeHomeserver struct {
	Server *httptest.Server

	mu   sync.Mutex
	sent []sentEvent

	// Owner is returned from whoami for Token.
	Owner id.UserID
	Token string
	// FailSend makes room sends return 403.
	FailSend bool
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	f := &fakeHomeserver{Owner: testBot, Token: "secret"}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeHomeserver) Sent() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]sentEvent, len(f.sent))
	copy(cp, f.sent)
	return cp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeHomeserver) handler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errcode": "M_UNKNOWN_TOKEN", "error": "bad token"})
		return
	}
	switch path := r.URL.Path; {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/account/whoami"):
		writeJSON(w, http.StatusOK, map[string]string{"user_id": string(f.Owner)})

	case r.Method == http.MethodPut && strings.Contains(path, "/send/m.room.message/"):
		if f.FailSend {
			writeJSON(w, http.StatusForbidden, map[string]string{"errcode": "M_FORBIDDEN", "error": "not in room"})
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.mu.Lock()
		f.sent = append(f.sent, sentEvent{Path: path, Body: body})
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$sent"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"errcode": "M_UNRECOGNIZED", "error": path})
	}
}

func (f *fakeHomeserver) client(t *testing.T) *mautrix.Client {
	t.Helper()
	client, err := mautrix.NewClient(f.Server.URL, testBot, f.Token)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// mockSender records events instead of calling a homeserver.
type mockSender struct {
	mu     sync.Mutex
	rooms  []id.RoomID
	events []*event.MessageEventContent
	err    error
}

func (m *mockSender) SendMessageEvent(_ context.Context, roomID id.RoomID, _ event.Type, contentJSON any, _ ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.rooms = append(m.rooms, roomID)
	m.events = append(m.events, contentJSON.(*event.MessageEventContent))
	return &mautrix.RespSendEvent{EventID: id.EventID("$" + time.Now().Format("150405.000000"))}, nil
}

func (m *mockSender) Events() []*event.MessageEventContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*event.MessageEventContent, len(m.events))
	copy(cp, m.events)
	return cp
}

// recordingDispatcher captures dispatched messages for assertions.
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []relay.Message
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg relay.Message) *relay.Pending {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()
	return relay.Completed()
}

func (d *recordingDispatcher) Messages() []relay.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]relay.Message, len(d.messages))
	copy(cp, d.messages)
	return cp
}

// newTestListener returns a listener that accepts events from any time.
func newTestListener() (*Listener, *recordingDispatcher) {
	d := &recordingDispatcher{}
	l := NewListener(zerolog.Nop(), ListenerConfig{RoomID: testRoom, UserID: testBot}, d.Dispatch)
	l.since = time.Time{}
	return l, d
}

func messageEvent(sender id.UserID, content *event.MessageEventContent) *event.Event {
	return &event.Event{
		ID:        "$evt",
		Type:      event.EventMessage,
		RoomID:    testRoom,
		Sender:    sender,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Content:   event.Content{Parsed: content},
	}
}
