// Copyright 2024-2026 Aiku AI

package relay

import (
	"strings"
	"unicode/utf8"
)

// Transformer maps a message to a new message. Transformers must be pure.
type Transformer func(msg Message) Message

// Identity returns its input unchanged.
var Identity Transformer = func(msg Message) Message { return msg }

// AndThen composes left to right: next sees the output of t.
func (t Transformer) AndThen(next Transformer) Transformer {
	return func(msg Message) Message {
		return next(t(msg))
	}
}

// MapContent rewrites the message content with fn.
func MapContent(fn func(content string) string) Transformer {
	return func(msg Message) Message {
		return msg.WithContent(fn(msg.Content))
	}
}

// MapUsername rewrites the username with fn.
func MapUsername(fn func(username string) string) Transformer {
	return func(msg Message) Message {
		return msg.WithUsername(fn(msg.Username))
	}
}

// TrimContent strips leading and trailing whitespace from the content.
var TrimContent = MapContent(strings.TrimSpace)

// TruncateContent cuts the content to at most limit runes, appending an
// ellipsis when something was removed. A limit <= 0 disables truncation.
func TruncateContent(limit int) Transformer {
	if limit <= 0 {
		return Identity
	}
	return MapContent(func(content string) string {
		if utf8.RuneCountInString(content) <= limit {
			return content
		}
		runes := []rune(content)
		if limit == 1 {
			return "…"
		}
		return string(runes[:limit-1]) + "…"
	})
}
