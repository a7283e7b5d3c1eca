// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	EventTypeMinLen = 2
	EventTypeMaxLen = 64
	SourceMinLen    = 2
	SourceMaxLen    = 32
	MaxTags         = 50

	DefaultSource = "api"
)

// Event is one immutable row of the append-only learning_events log.
// Once written it is never updated or deleted by the pipeline; ID is
// strictly increasing and serves as the pipeline read cursor.
type Event struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UserID     *string         `json:"user_id"`
	SessionID  *string         `json:"session_id"`
	EventType  string          `json:"event_type"`
	Source     string          `json:"source"`
	Confidence *float64        `json:"confidence"`
	Tags       []string        `json:"tags"`
	Payload    json.RawMessage `json:"payload"`
}

// AppendEventParams is the validated input for a single durable append.
type AppendEventParams struct {
	UserID     *string
	SessionID  *string
	EventType  string
	Source     string
	Confidence *float64
	Tags       []string
	Payload    json.RawMessage
}

// AppendedEvent is what a successful append returns to the caller.
type AppendedEvent struct {
	ID        int64
	CreatedAt time.Time
}

// NormalizeTags trims every tag, drops empties and duplicates while
// preserving first-seen order, and caps the result at MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// Validate normalizes defaults in place and reports the first field
// constraint violation as a *ValidationError.
func (p *AppendEventParams) Validate() error {
	p.EventType = strings.TrimSpace(p.EventType)
	p.Source = strings.TrimSpace(p.Source)
	if p.Source == "" {
		p.Source = DefaultSource
	}

	if n := len(p.EventType); n < EventTypeMinLen || n > EventTypeMaxLen {
		return &ValidationError{Field: "event_type", Reason: "length must be between 2 and 64"}
	}
	if n := len(p.Source); n < SourceMinLen || n > SourceMaxLen {
		return &ValidationError{Field: "source", Reason: "length must be between 2 and 32"}
	}
	if p.Confidence != nil && (*p.Confidence < 0.0 || *p.Confidence > 1.0) {
		return &ValidationError{Field: "confidence", Reason: "must be between 0.0 and 1.0"}
	}

	p.Tags = NormalizeTags(p.Tags)
	if len(p.Payload) == 0 {
		p.Payload = json.RawMessage(`{}`)
	}

	return nil
}

// ClampLimit clamps a caller-supplied page size into [1, max]. Silent
// clamping keeps the observability surface forgiving: a bad limit is
// never worth a 400.
func ClampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
