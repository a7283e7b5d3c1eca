// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"fmt"
	"strings"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// ExplainScore turns the stored explain_level preference pattern into a
// single deterministic score: level base x normalized confidence. It
// tolerates heterogeneous value writers (object, encoded string, plain
// string) by normalizing at the boundary.
type ExplainScore struct{}

func (ExplainScore) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "explain_score",
		Version:    "1.0.0",
		InputKinds: []string{"patterns"},
	}
}

func levelBase(level string) float64 {
	switch level {
	case "high":
		return 1.0
	case "medium":
		return 0.6
	case "low":
		return 0.2
	default:
		return 0.0
	}
}

func extractLevel(p domain.Pattern) string {
	doc := p.ValueDocument()
	if lvl, ok := doc["level"].(string); ok && strings.TrimSpace(lvl) != "" {
		return strings.ToLower(strings.TrimSpace(lvl))
	}
	if raw, ok := doc["_raw"].(string); ok && strings.TrimSpace(raw) != "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return "unknown"
}

func (ExplainScore) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	var found *domain.Pattern
	for i := range ctx.Patterns {
		p := ctx.Patterns[i]
		if p.PatternType == "preference" && p.Key == "explain_level" {
			found = &p
			break
		}
	}

	if found == nil {
		return []domain.ModuleResult{{
			Module:     "explain_score",
			Version:    "1.0.0",
			ComputedAt: ctx.ComputedAt,
			Inputs: []domain.InputRef{{
				Source: domain.InputPatterns,
				Key:    "explain_level",
				Note:   "no matching preference pattern found",
			}},
			Kind:        domain.KindScore,
			Status:      domain.StatusWarn,
			Subject:     subjectFor(ctx),
			PatternType: "score",
			Key:         "explain_preference",
			Score:       floatPtr(0.0),
			Flags:       map[string]bool{"has_preference": false},
			Payload:     map[string]any{"level": nil, "confidence": 0.0, "base_score": 0.0},
			Explain: domain.Explain{
				Text: "No explain_level preference found in patterns; score stays 0.0.",
				Debug: map[string]any{
					"searched": map[string]any{"pattern_type": "preference", "key": "explain_level"},
				},
			},
		}}, nil
	}

	conf := domain.NormalizeConfidence(found.Confidence)
	level := extractLevel(*found)
	base := levelBase(level)
	score := round4(domain.Clamp01(base * conf))

	return []domain.ModuleResult{{
		Module:     "explain_score",
		Version:    "1.0.0",
		ComputedAt: ctx.ComputedAt,
		Inputs: []domain.InputRef{{
			Source: domain.InputPatterns,
			ID:     formatEventID(found.ID),
			Key:    "explain_level",
			Note:   "preference pattern used for deterministic score",
		}},
		Kind:        domain.KindScore,
		Status:      domain.StatusOK,
		Subject:     found.Subject,
		PatternType: "score",
		Key:         "explain_preference",
		Score:       floatPtr(score),
		Flags: map[string]bool{
			"has_preference": true,
			"pref_high":      level == "high",
			"pref_medium":    level == "medium",
			"pref_low":       level == "low",
		},
		Payload: map[string]any{
			"level":      level,
			"base_score": base,
			"confidence": conf,
		},
		Explain: domain.Explain{
			Text: fmt.Sprintf("Explain preference %q with confidence %.2f gives score %.2f (base %.2f x confidence).", level, conf, score, base),
			Debug: map[string]any{
				"pattern_id": found.ID,
				"subject":    found.Subject,
			},
		},
	}}, nil
}
