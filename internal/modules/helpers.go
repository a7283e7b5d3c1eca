// SPDX-License-Identifier: Apache-2.0

// Package modules contains the built-in deterministic analysis modules.
// Every module is a pure function over the batch context: same events
// and patterns in, same results out, ComputedAt aside.
package modules

import (
	"math"
	"strconv"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// DefaultSubject is used when a batch is not scoped to one subject.
const DefaultSubject = "user"

func subjectFor(ctx registry.Context) string {
	if ctx.Subject != "" {
		return ctx.Subject
	}
	return DefaultSubject
}

func hasTag(e domain.Event, wanted string) bool {
	for _, t := range e.Tags {
		if t == wanted {
			return true
		}
	}
	return false
}

func payloadAction(e domain.Event) string {
	doc := domain.NormalizeDocument(e.Payload)
	action, _ := doc["action"].(string)
	return action
}

func floatPtr(f float64) *float64 {
	return &f
}

// round4 keeps scores stable across platforms for byte-identical output.
func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

func formatEventID(id int64) string {
	return strconv.FormatInt(id, 10)
}
