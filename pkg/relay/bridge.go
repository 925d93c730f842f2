// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Bridge fans messages out from one source to every other registered
// endpoint: filter, then transform, then dispatch concurrently.
type Bridge struct {
	log     zerolog.Logger
	metrics *Metrics
	running atomic.Bool

	mu           sync.RWMutex
	endpoints    map[string]Endpoint
	filters      []Filter
	transformers []Transformer
}

// NewBridge creates a stopped bridge. metrics may be nil.
func NewBridge(log zerolog.Logger, metrics *Metrics) *Bridge {
	return &Bridge{
		log:       log.With().Str("component", "bridge").Logger(),
		metrics:   metrics,
		endpoints: make(map[string]Endpoint),
	}
}

// registryKey folds case so ids differing only in case share one slot.
func registryKey(id string) string {
	return strings.ToLower(id)
}

// RegisterEndpoint adds e, replacing any endpoint with the same id.
func (b *Bridge) RegisterEndpoint(e Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[registryKey(e.ID())] = e
	b.log.Debug().Str("endpoint", e.ID()).Msg("Registered endpoint")
}

// UnregisterEndpoint removes the endpoint with the given id, if any.
func (b *Bridge) UnregisterEndpoint(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.endpoints[registryKey(id)]; ok {
		delete(b.endpoints, registryKey(id))
		b.log.Debug().Str("endpoint", id).Msg("Unregistered endpoint")
	}
}

// Endpoint looks up a registered endpoint by id, ignoring case.
func (b *Bridge) Endpoint(id string) (Endpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.endpoints[registryKey(id)]
	return e, ok
}

// Endpoints returns a snapshot of the registry sorted by id.
func (b *Bridge) Endpoints() []Endpoint {
	b.mu.RLock()
	out := make([]Endpoint, 0, len(b.endpoints))
	for _, e := range b.endpoints {
		out = append(out, e)
	}
	b.mu.RUnlock()
	slices.SortFunc(out, func(x, y Endpoint) int {
		return strings.Compare(x.ID(), y.ID())
	})
	return out
}

// AddFilter appends f to the filter chain.
func (b *Bridge) AddFilter(f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write: in-flight routes keep iterating their own snapshot.
	next := make([]Filter, len(b.filters), len(b.filters)+1)
	copy(next, b.filters)
	b.filters = append(next, f)
}

// AddTransformer appends t to the transformer chain.
func (b *Bridge) AddTransformer(t Transformer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]Transformer, len(b.transformers), len(b.transformers)+1)
	copy(next, b.transformers)
	b.transformers = append(next, t)
}

func (b *Bridge) Start() error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	b.log.Info().Msg("Bridge started")
	return nil
}

func (b *Bridge) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	b.log.Info().Msg("Bridge stopped")
	return nil
}

func (b *Bridge) IsRunning() bool {
	return b.running.Load()
}

// RouteMessage delivers msg to every active endpoint except its source.
//
// It never blocks on delivery. The returned Pending fails immediately with
// ErrNotRunning when the bridge is stopped, succeeds immediately when a filter
// rejects the message, and otherwise resolves once every dispatch finished.
// Individual endpoint failures are reported as *DispatchError values.
func (b *Bridge) RouteMessage(ctx context.Context, msg Message) *Pending {
	if !b.IsRunning() {
		return Failed(ErrNotRunning)
	}

	filters, transformers := b.chains()
	if !passesFilters(filters, msg) {
		b.metrics.dropped()
		b.log.Debug().
			Str("source", msg.Source).
			Str("username", msg.Username).
			Msg("Message rejected by filter chain")
		return Completed()
	}
	b.metrics.routed()

	result := newPending()
	go func() {
		final, err := applyTransformers(transformers, msg)
		if err != nil {
			b.log.Warn().Err(err).Str("source", msg.Source).Msg("Transformer chain failed")
			result.resolve(err)
			return
		}
		dispatch := b.dispatch(ctx, final)
		<-dispatch.Done()
		result.resolve(dispatch.Err())
	}()
	return result
}

func (b *Bridge) chains() ([]Filter, []Transformer) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filters, b.transformers
}

func passesFilters(filters []Filter, msg Message) bool {
	for _, f := range filters {
		if !f(msg) {
			return false
		}
	}
	return true
}

func applyTransformers(transformers []Transformer, msg Message) (out Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransformFailed, r)
		}
	}()
	out = msg
	for _, t := range transformers {
		out = t(out)
	}
	return out, nil
}

func (b *Bridge) dispatch(ctx context.Context, msg Message) *Pending {
	b.mu.RLock()
	targets := make([]Endpoint, 0, len(b.endpoints))
	for _, e := range b.endpoints {
		if shouldSkip(e, msg) {
			continue
		}
		targets = append(targets, e)
	}
	b.mu.RUnlock()

	sends := make([]*Pending, 0, len(targets))
	for _, e := range targets {
		sends = append(sends, b.send(ctx, e, msg))
	}
	return Join(sends...)
}

func (b *Bridge) send(ctx context.Context, e Endpoint, msg Message) *Pending {
	id := e.ID()
	return Go(func() error {
		err := call(func() error { return e.Send(ctx, msg) })
		b.metrics.dispatched(id, err)
		if err != nil {
			b.log.Warn().Err(err).Str("endpoint", id).Msg("Endpoint dispatch failed")
			return &DispatchError{Target: id, Err: err}
		}
		return nil
	})
}

// shouldSkip implements self-exclusion and inactive exclusion.
func shouldSkip(e Endpoint, msg Message) bool {
	return sameID(e.ID(), msg.Source) || !e.Active()
}
