// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"sync/atomic"
)

// Endpoint is a fan-out destination registered on a Bridge.
//
// Send may block for network I/O; the Bridge always calls it on its own
// goroutine. Ordinary delivery failures must be returned, not panicked.
type Endpoint interface {
	ID() string
	Active() bool
	Send(ctx context.Context, msg Message) error
}

// SendFunc is the delivery half of an Endpoint or DuplexNode.
type SendFunc func(ctx context.Context, msg Message) error

// DispatchFunc hands an inbound message to a relay core, e.g.
// Bridge.RouteMessage or a closure over LinkManager.Relay.
type DispatchFunc func(ctx context.Context, msg Message) *Pending

// EndpointBase carries the id and active flag shared by every endpoint
// implementation. The zero active state is "active".
type EndpointBase struct {
	id       string
	inactive atomic.Bool
}

func NewEndpointBase(id string) *EndpointBase {
	return &EndpointBase{id: id}
}

func (e *EndpointBase) ID() string {
	return e.id
}

func (e *EndpointBase) Active() bool {
	return !e.inactive.Load()
}

// SetActive toggles delivery without unregistering the endpoint.
func (e *EndpointBase) SetActive(active bool) {
	e.inactive.Store(!active)
}

// FuncEndpoint adapts a plain function into an Endpoint.
type FuncEndpoint struct {
	*EndpointBase
	send SendFunc
}

var _ Endpoint = (*FuncEndpoint)(nil)

func NewFuncEndpoint(id string, send SendFunc) *FuncEndpoint {
	return &FuncEndpoint{EndpointBase: NewEndpointBase(id), send: send}
}

func (f *FuncEndpoint) Send(ctx context.Context, msg Message) error {
	return f.send(ctx, msg)
}
