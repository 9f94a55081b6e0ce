package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// ApprovalSeries builds n approvals of the same rule spread across the
// given scopes round-robin, one day apart and each in its own session.
// Five events over two scopes is the canonical shape that trips both the
// category detector and the cross-scope generalizer.
func ApprovalSeries(rule string, n int, scopes ...string) []approval.Event {
	if len(scopes) == 0 {
		scopes = []string{"/home/dev/project"}
	}
	suffix := RandomString(6)

	events := make([]approval.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, approval.Event{
			Timestamp: time.Now().UTC().Add(-time.Duration(i+1) * 24 * time.Hour),
			RuleText:  rule,
			SessionID: fmt.Sprintf("s%d-%s", i+1, suffix),
			ScopeID:   scopes[i%len(scopes)],
		})
	}
	return events
}

// UniqueRule returns a rule text no catalog pattern matches, so recording
// it never feeds a suggestion on a shared server.
func UniqueRule() string {
	return fmt.Sprintf("Bash(tool-%s --sync:*)", RandomString(8))
}

// EventMatcher helps assert over a collected SSE event stream
type EventMatcher struct {
	events []SSEEvent
}

// NewEventMatcher creates a matcher over collected events
func NewEventMatcher(events []SSEEvent) *EventMatcher {
	return &EventMatcher{events: events}
}

// HasType returns true if any event has the given type
func (m *EventMatcher) HasType(eventType string) bool {
	for _, evt := range m.events {
		if evt.Type == eventType {
			return true
		}
	}
	return false
}

// CountType counts events of the given type
func (m *EventMatcher) CountType(eventType string) int {
	count := 0
	for _, evt := range m.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// FilterType returns all events of the given type
func (m *EventMatcher) FilterType(eventType string) []SSEEvent {
	var out []SSEEvent
	for _, evt := range m.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
