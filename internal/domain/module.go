// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type ResultKind string

const (
	KindScore      ResultKind = "score"
	KindFlags      ResultKind = "flags"
	KindSuggestion ResultKind = "suggestion"
	KindSummary    ResultKind = "summary"
)

type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusWarn  ResultStatus = "warn"
	StatusError ResultStatus = "error"
)

// ModuleDescriptor is the stable identity of an analysis module. It is
// registered once at startup and never mutated afterwards, except for
// the enabled flag flipped by the kill-switch primitives.
type ModuleDescriptor struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	InputKinds []string `json:"input_kinds"`
	Enabled    bool     `json:"enabled"`
}

// InputRef points at one source a module actually used. It makes every
// result auditable: the output must be reconstructable from its inputs
// plus the module's published rule set.
type InputRef struct {
	Source string `json:"source"`
	ID     string `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
	Note   string `json:"note,omitempty"`
}

// Input sources referenced by InputRef.
const (
	InputPatterns = "learning_patterns"
	InputEvents   = "learning_events"
	InputCustom   = "custom"
)

// Explain is the human-readable rationale attached to every result.
type Explain struct {
	Text  string         `json:"text"`
	Debug map[string]any `json:"debug,omitempty"`
}

// ModuleResult is the output contract of one module invocation. Field
// names and the kind/status enumerations are part of the public
// interchange format; changing them requires a module version bump.
//
// Subject, PatternType and Key name the pattern row the result upserts
// into. A result with an empty subject is rejected with ErrInvalidResult.
type ModuleResult struct {
	Module     string       `json:"module"`
	Version    string       `json:"version"`
	ComputedAt time.Time    `json:"computed_at"`
	Inputs     []InputRef   `json:"inputs"`
	Kind       ResultKind   `json:"kind"`
	Status     ResultStatus `json:"status"`

	Subject     string `json:"subject"`
	PatternType string `json:"pattern_type"`
	Key         string `json:"key"`

	Score    *float64        `json:"score,omitempty"`
	Flags    map[string]bool `json:"flags,omitempty"`
	Payload  map[string]any  `json:"payload,omitempty"`
	Explain  Explain         `json:"explain"`
	LastSeen *time.Time      `json:"last_seen,omitempty"`
}

// Validate rejects results that cannot be keyed into the pattern store.
func (r ModuleResult) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return ErrInvalidResult
	}
	if strings.TrimSpace(r.PatternType) == "" || strings.TrimSpace(r.Key) == "" {
		return ErrInvalidResult
	}
	switch r.Kind {
	case KindScore, KindFlags, KindSuggestion, KindSummary:
	default:
		return ErrInvalidResult
	}
	switch r.Status {
	case StatusOK, StatusWarn, StatusError:
	default:
		return ErrInvalidResult
	}
	return nil
}

// resultEvidence is the audit trail persisted alongside a pattern.
type resultEvidence struct {
	Module  string          `json:"module"`
	Version string          `json:"version"`
	Inputs  []InputRef      `json:"inputs"`
	Flags   map[string]bool `json:"flags,omitempty"`
	Explain string          `json:"explain"`
}

// ToUpsert converts a non-error result into one pattern store write.
// Results with status=error are never persisted.
func (r ModuleResult) ToUpsert() (PatternUpsert, error) {
	if err := r.Validate(); err != nil {
		return PatternUpsert{}, err
	}
	if r.Status == StatusError {
		return PatternUpsert{}, ErrInvalidResult
	}

	confidence := 0.0
	if r.Score != nil {
		confidence = Clamp01(*r.Score)
	}

	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return PatternUpsert{}, ErrInvalidResult
	}

	evidence, err := json.Marshal(resultEvidence{
		Module:  r.Module,
		Version: r.Version,
		Inputs:  r.Inputs,
		Flags:   r.Flags,
		Explain: r.Explain.Text,
	})
	if err != nil {
		return PatternUpsert{}, ErrInvalidResult
	}

	lastSeen := r.ComputedAt
	if r.LastSeen != nil {
		lastSeen = *r.LastSeen
	}

	return PatternUpsert{
		Subject:     r.Subject,
		PatternType: r.PatternType,
		Key:         r.Key,
		Value:       value,
		Confidence:  confidence,
		Evidence:    evidence,
		LastSeen:    lastSeen,
	}, nil
}
