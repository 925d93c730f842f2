// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

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

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Users maps user ID to model.User for GetMe responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM(t *testing.T) *fakeMM {
	t.Helper()
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	for prefix := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
			return
		}
	}

	switch path := r.URL.Path; {
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodPost && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

func postedEvent(t *testing.T, post *model.Post, senderName string) *model.WebSocketEvent {
	t.Helper()
	postJSON, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post: %v", err)
	}
	data := map[string]any{"post": string(postJSON)}
	if senderName != "" {
		data["sender_name"] = senderName
	}
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, data)
}

// recordingDispatcher captures dispatched messages for assertions.
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []relay.Message
	result   func() *relay.Pending
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg relay.Message) *relay.Pending {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()
	if d.result != nil {
		return d.result()
	}
	return relay.Completed()
}

func (d *recordingDispatcher) Messages() []relay.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]relay.Message, len(d.messages))
	copy(cp, d.messages)
	return cp
}

// mockPoster records posts instead of calling the API.
type mockPoster struct {
	mu    sync.Mutex
	posts []*model.Post
	err   error
}

func (m *mockPoster) CreatePost(_ context.Context, post *model.Post) (*model.Post, *model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, nil, m.err
	}
	m.posts = append(m.posts, post)
	created := *post
	created.Id = "post-" + time.Now().Format("150405.000000")
	return &created, &model.Response{StatusCode: http.StatusCreated}, nil
}

func (m *mockPoster) Posts() []*model.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*model.Post, len(m.posts))
	copy(cp, m.posts)
	return cp
}

func newTestListener(cfg ListenerConfig) (*Listener, *recordingDispatcher) {
	d := &recordingDispatcher{}
	return NewListener(zerolog.Nop(), cfg, d.Dispatch), d
}
