// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"time"
)

// Message is the envelope routed between endpoints. It is a value type: it is
// never mutated after construction, and the With* helpers return copies.
type Message struct {
	// Source is the id of the endpoint or node the message originated from.
	Source    string
	Username  string
	Content   string
	Timestamp time.Time
}

// NewMessage creates a message stamped with the current time.
func NewMessage(source, username, content string) Message {
	return MessageAt(source, username, content, time.Now())
}

// MessageAt creates a message with an explicit timestamp, for replay and tests.
func MessageAt(source, username, content string, timestamp time.Time) Message {
	return Message{
		Source:    source,
		Username:  username,
		Content:   content,
		Timestamp: timestamp,
	}
}

func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}

func (m Message) WithUsername(username string) Message {
	m.Username = username
	return m
}

func (m Message) WithSource(source string) Message {
	m.Source = source
	return m
}

func (m Message) String() string {
	return fmt.Sprintf("[%s] %s: %s", m.Source, m.Username, m.Content)
}
