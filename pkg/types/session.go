// Package types defines the wire-level data model shared across the
// verification engine: recorded sessions, interactions, diff records, and
// per-session verification results.
package types

import (
	"strings"
	"time"
)

// RedactedValue is the sentinel written in place of sensitive header and
// body values at capture time. Fields holding this sentinel on either side
// never participate in diffing.
const RedactedValue = "[REDACTED]"

// SessionMetadata carries session-level annotations captured at record time.
type SessionMetadata struct {
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	Environment string         `json:"environment,omitempty" yaml:"environment,omitempty"`
	Creator     string         `json:"creator,omitempty" yaml:"creator,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Session is an ordered recording of HTTP interactions against a baseline
// service. Sessions are immutable once loaded; replay preserves recording
// order.
type Session struct {
	SessionID    string          `json:"sessionId" yaml:"sessionId"`
	Timestamp    time.Time       `json:"timestamp" yaml:"timestamp"`
	Metadata     SessionMetadata `json:"metadata" yaml:"metadata"`
	Interactions []Interaction   `json:"interactions" yaml:"interactions"`
}

// Interaction is one request/response pair within a session. RequestHash is
// the canonical request fingerprint computed at record time.
type Interaction struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	RequestHash string    `json:"requestHash,omitempty" yaml:"requestHash,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Request     Request   `json:"request" yaml:"request"`
	Response    Response  `json:"response" yaml:"response"`
	DurationMs  float64   `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
}

// Request is a recorded HTTP request. Query values are either a string or a
// []any of strings after JSON decoding. Sensitive header keys are redacted
// at capture time.
type Request struct {
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]any    `json:"query,omitempty" yaml:"query,omitempty"`
	Body    any               `json:"body,omitempty" yaml:"body,omitempty"`
}

// Response is a recorded or replayed HTTP response. Body is a structured
// value, a string, or nil.
type Response struct {
	StatusCode    int               `json:"statusCode" yaml:"statusCode"`
	StatusMessage string            `json:"statusMessage,omitempty" yaml:"statusMessage,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body          any               `json:"body,omitempty" yaml:"body,omitempty"`
}

// HasTag reports whether the interaction carries the given tag
// (case-insensitive).
func (i *Interaction) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HasTag reports whether the session metadata carries the given tag
// (case-insensitive).
func (m *SessionMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
