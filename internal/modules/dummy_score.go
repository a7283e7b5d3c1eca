// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// DummyScore always returns a fixed zero score. It exercises the module
// contract and the registry end to end without influencing anything.
type DummyScore struct{}

func (DummyScore) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "dummy_score",
		Version:    "1.0.0",
		InputKinds: nil,
	}
}

func (DummyScore) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	return []domain.ModuleResult{{
		Module:     "dummy_score",
		Version:    "1.0.0",
		ComputedAt: ctx.ComputedAt,
		Inputs: []domain.InputRef{{
			Source: domain.InputCustom,
			Note:   "dummy module uses no real inputs",
		}},
		Kind:        domain.KindScore,
		Status:      domain.StatusOK,
		Subject:     "system",
		PatternType: "score",
		Key:         "dummy",
		Score:       floatPtr(0.0),
		Flags:       map[string]bool{"active": false},
		Payload:     map[string]any{"note": "dummy score (no impact)"},
		Explain: domain.Explain{
			Text: "DummyScore always returns 0.0. No impact, contract probe only.",
		},
	}}, nil
}

// Defaults returns the built-in module set in its canonical
// registration order.
func Defaults() []registry.Module {
	return []registry.Module{
		ExplainPreference{},
		SearchHabit{},
		FrictionAnomaly{},
		ExplainScore{},
		PatternVolume{},
		DummyScore{},
	}
}
