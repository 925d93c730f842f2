// Copyright 2024-2026 Aiku AI

package relay

// RelayPredicate gates forwarding across a single Link. It is deliberately a
// separate type from Filter: filters guard a Bridge, predicates guard a Link.
type RelayPredicate func(msg Message) bool

var (
	AllowAll RelayPredicate = func(Message) bool { return true }
	DenyAll  RelayPredicate = func(Message) bool { return false }

	// NotBlankContent blocks messages whose content is empty or whitespace.
	NotBlankContent RelayPredicate = func(msg Message) bool { return NotBlank(msg.Content) }
)

// FromFilter reuses a Bridge filter as a link predicate.
func FromFilter(f Filter) RelayPredicate {
	return RelayPredicate(f)
}

func (p RelayPredicate) And(other RelayPredicate) RelayPredicate {
	return func(msg Message) bool {
		return p(msg) && other(msg)
	}
}

func (p RelayPredicate) Or(other RelayPredicate) RelayPredicate {
	return func(msg Message) bool {
		return p(msg) || other(msg)
	}
}

func (p RelayPredicate) Negate() RelayPredicate {
	return func(msg Message) bool {
		return !p(msg)
	}
}
