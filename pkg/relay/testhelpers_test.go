// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingEndpoint captures delivered messages for test assertions.
type recordingEndpoint struct {
	*EndpointBase

	mu       sync.Mutex
	received []Message
	err      error
	panicMsg string
	block    chan struct{}
}

func newRecordingEndpoint(id string) *recordingEndpoint {
	return &recordingEndpoint{EndpointBase: NewEndpointBase(id)}
}

func (r *recordingEndpoint) Send(ctx context.Context, msg Message) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.received = append(r.received, msg)
	r.mu.Unlock()
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.err
}

func (r *recordingEndpoint) Received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Message, len(r.received))
	copy(cp, r.received)
	return cp
}

// recordingNode is the DuplexNode counterpart of recordingEndpoint.
type recordingNode struct {
	NodeBase

	mu       sync.Mutex
	received []Message
	err      error
}

func newRecordingNode(t *testing.T, id string) *recordingNode {
	t.Helper()
	base, err := NewNodeBase(id)
	if err != nil {
		t.Fatalf("NewNodeBase(%q): %v", id, err)
	}
	return &recordingNode{NodeBase: base}
}

func (r *recordingNode) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, msg)
	return r.err
}

func (r *recordingNode) Received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Message, len(r.received))
	copy(cp, r.received)
	return cp
}

// wait resolves p or fails the test after a generous timeout.
func wait(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("pending result did not resolve in time")
	}
	return err
}

func newStartedBridge(t *testing.T) *Bridge {
	t.Helper()
	b := NewBridge(zerolog.Nop(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b
}

var testTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
