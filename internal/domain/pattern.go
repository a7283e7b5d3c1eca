// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

// Pattern is a derived, explainable fact produced by a deterministic
// module. (Subject, PatternType, Key) is the natural identity; a later
// computation with the same identity supersedes the earlier row.
type Pattern struct {
	ID          int64           `json:"id"`
	Subject     string          `json:"subject"`
	PatternType string          `json:"pattern_type"`
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Confidence  float64         `json:"confidence"`
	Evidence    json.RawMessage `json:"evidence"`
	LastSeen    *time.Time      `json:"last_seen"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PatternUpsert is one write against the pattern store. The store keys
// on (Subject, PatternType, Key) and last-writer-wins per row.
type PatternUpsert struct {
	Subject     string
	PatternType string
	Key         string
	Value       json.RawMessage
	Confidence  float64
	Evidence    json.RawMessage
	LastSeen    time.Time
}

// ValueDocument returns the pattern value normalized into a document,
// tolerating both native JSON objects and string-encoded JSON writers.
func (p Pattern) ValueDocument() map[string]any {
	return NormalizeDocument(p.Value)
}
