// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strings"
)

// linkKey identifies an unordered pair of node ids. Both ids are lower-cased
// and stored in sorted order, so (A, B) and (b, a) share a key.
type linkKey struct {
	lo, hi string
}

func keyOf(a, b string) linkKey {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if b < a {
		a, b = b, a
	}
	return linkKey{lo: a, hi: b}
}

func (k linkKey) String() string {
	return k.lo + "<->" + k.hi
}

// Link is an unordered pair of DuplexNodes sharing one RelayPredicate.
type Link struct {
	a, b      DuplexNode
	predicate RelayPredicate
	key       linkKey
}

// NewLink pairs a and b. A nil predicate means AllowAll. Linking a node to
// itself, or to another node with the same id, fails with ErrSelfLink.
func NewLink(a, b DuplexNode, predicate RelayPredicate) (*Link, error) {
	if a == nil || b == nil {
		return nil, ErrNilNode
	}
	if sameID(a.ID(), b.ID()) {
		return nil, fmt.Errorf("%w: %s", ErrSelfLink, a.ID())
	}
	if predicate == nil {
		predicate = AllowAll
	}
	return &Link{a: a, b: b, predicate: predicate, key: keyOf(a.ID(), b.ID())}, nil
}

// Nodes returns both sides in construction order.
func (l *Link) Nodes() (DuplexNode, DuplexNode) {
	return l.a, l.b
}

func (l *Link) Contains(n DuplexNode) bool {
	return n != nil && (sameID(n.ID(), l.a.ID()) || sameID(n.ID(), l.b.ID()))
}

// Connects reports whether the link joins x and y, in either order.
func (l *Link) Connects(x, y DuplexNode) bool {
	return x != nil && y != nil && l.key == keyOf(x.ID(), y.ID())
}

// Opposite returns the side of the link that is not n.
func (l *Link) Opposite(n DuplexNode) (DuplexNode, error) {
	switch {
	case n == nil:
		return nil, ErrNilNode
	case sameID(n.ID(), l.a.ID()):
		return l.b, nil
	case sameID(n.ID(), l.b.ID()):
		return l.a, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, n.ID())
	}
}

// Forward delivers msg from one side of the link to the other. A message
// rejected by the predicate resolves successfully without delivery.
func (l *Link) Forward(ctx context.Context, from DuplexNode, msg Message) *Pending {
	to, err := l.Opposite(from)
	if err != nil {
		return Failed(err)
	}
	if !l.predicate(msg) {
		return Completed()
	}
	return deliver(ctx, to, msg)
}

func deliver(ctx context.Context, to DuplexNode, msg Message) *Pending {
	id := to.ID()
	return Go(func() error {
		if err := call(func() error { return to.Send(ctx, msg) }); err != nil {
			return &DispatchError{Target: id, Err: err}
		}
		return nil
	})
}

func (l *Link) String() string {
	return fmt.Sprintf("link[%s <-> %s]", l.a.ID(), l.b.ID())
}
