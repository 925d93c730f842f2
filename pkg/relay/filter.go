// Copyright 2024-2026 Aiku AI

package relay

import "strings"

// Filter decides whether a message may enter the Bridge. Filters must be
// side-effect free.
type Filter func(msg Message) bool

// AcceptAll lets every message through.
var AcceptAll Filter = func(Message) bool { return true }

// BySource accepts messages whose source equals sourceID, ignoring case.
func BySource(sourceID string) Filter {
	return func(msg Message) bool {
		return strings.EqualFold(sourceID, msg.Source)
	}
}

// ByUsername accepts messages whose username satisfies pred.
func ByUsername(pred func(username string) bool) Filter {
	return func(msg Message) bool {
		return pred(msg.Username)
	}
}

// ByContent accepts messages whose content satisfies pred.
func ByContent(pred func(content string) bool) Filter {
	return func(msg Message) bool {
		return pred(msg.Content)
	}
}

func (f Filter) And(other Filter) Filter {
	return func(msg Message) bool {
		return f(msg) && other(msg)
	}
}

func (f Filter) Or(other Filter) Filter {
	return func(msg Message) bool {
		return f(msg) || other(msg)
	}
}

func (f Filter) Negate() Filter {
	return func(msg Message) bool {
		return !f(msg)
	}
}

// NotBlank reports whether s contains anything other than whitespace.
func NotBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
