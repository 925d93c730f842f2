// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LinkManager owns a set of Links and guarantees that no unordered pair of
// node ids is linked twice.
type LinkManager struct {
	log     zerolog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	links map[linkKey]*Link
}

// NewLinkManager creates an empty manager. metrics may be nil.
func NewLinkManager(log zerolog.Logger, metrics *Metrics) *LinkManager {
	return &LinkManager{
		log:     log.With().Str("component", "link_manager").Logger(),
		metrics: metrics,
		links:   make(map[linkKey]*Link),
	}
}

// Link pairs a and b with an allow-all predicate. It returns false when the
// ids are equal or the pair is already linked.
func (lm *LinkManager) Link(a, b DuplexNode) bool {
	return lm.LinkWith(a, b, AllowAll)
}

// LinkWith is Link with an explicit relay predicate.
func (lm *LinkManager) LinkWith(a, b DuplexNode, predicate RelayPredicate) bool {
	link, err := NewLink(a, b, predicate)
	if err != nil {
		lm.log.Debug().Err(err).Msg("Refusing link")
		return false
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, exists := lm.links[link.key]; exists {
		return false
	}
	lm.links[link.key] = link
	lm.log.Info().Str("a", a.ID()).Str("b", b.ID()).Msg("Linked nodes")
	return true
}

// Unlink removes the link joining a and b, reporting whether one existed.
func (lm *LinkManager) Unlink(a, b DuplexNode) bool {
	if a == nil || b == nil {
		return false
	}
	key := keyOf(a.ID(), b.ID())

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, ok := lm.links[key]; !ok {
		return false
	}
	delete(lm.links, key)
	lm.log.Info().Str("a", a.ID()).Str("b", b.ID()).Msg("Unlinked nodes")
	return true
}

func (lm *LinkManager) IsLinked(a, b DuplexNode) bool {
	if a == nil || b == nil {
		return false
	}
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	_, ok := lm.links[keyOf(a.ID(), b.ID())]
	return ok
}

// Relay forwards msg from source across every link that contains it. Each
// link applies its own predicate. The result resolves when all deliveries
// have finished.
func (lm *LinkManager) Relay(ctx context.Context, source DuplexNode, msg Message) *Pending {
	if source == nil {
		return Failed(ErrNilNode)
	}

	var forwards []*Pending
	for _, link := range lm.ActiveLinks() {
		to, err := link.Opposite(source)
		if err != nil {
			continue
		}
		if !link.predicate(msg) {
			lm.metrics.blocked()
			lm.log.Debug().Stringer("link", link).Msg("Message blocked by relay predicate")
			continue
		}
		forwards = append(forwards, lm.observe(deliver(ctx, to, msg)))
	}
	return Join(forwards...)
}

func (lm *LinkManager) observe(p *Pending) *Pending {
	return Go(func() error {
		<-p.Done()
		err := p.Err()
		lm.metrics.relayed(err)
		if err != nil {
			var dispatchErr *DispatchError
			target := ""
			if errors.As(err, &dispatchErr) {
				target = dispatchErr.Target
			}
			lm.log.Warn().Err(err).Str("target", target).Msg("Link relay failed")
		}
		return err
	})
}

// ActiveLinks returns a snapshot of the current links, sorted by pair.
func (lm *LinkManager) ActiveLinks() []*Link {
	lm.mu.RLock()
	out := make([]*Link, 0, len(lm.links))
	for _, link := range lm.links {
		out = append(out, link)
	}
	lm.mu.RUnlock()
	slices.SortFunc(out, func(x, y *Link) int {
		return strings.Compare(x.key.String(), y.key.String())
	})
	return out
}

// Reset drops every link.
func (lm *LinkManager) Reset() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	clear(lm.links)
	lm.log.Info().Msg("Removed all links")
}
