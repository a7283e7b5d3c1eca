// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// ExplainPreference derives the explain_level preference from repeated
// ask_explain signals. Threshold and confidence curve are published
// here so the result is reconstructable from the inputs alone.
type ExplainPreference struct{}

const (
	explainPrefThreshold = 4
	explainPrefBaseConf  = 0.55
	explainPrefConfStep  = 0.08
	explainPrefMaxConf   = 0.95
)

func (ExplainPreference) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "explain_preference",
		Version:    "1.0.0",
		InputKinds: []string{"ask_explain"},
	}
}

func (ExplainPreference) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	count := 0
	var ids []int64
	for _, e := range ctx.Events {
		if e.EventType == "ask_explain" || hasTag(e, "ask_explain") || hasTag(e, "pref:explain") {
			count++
			ids = append(ids, e.ID)
		}
	}

	if count < explainPrefThreshold {
		return nil, nil
	}

	conf := explainPrefBaseConf + float64(count-explainPrefThreshold)*explainPrefConfStep
	if conf > explainPrefMaxConf {
		conf = explainPrefMaxConf
	}

	inputs := make([]domain.InputRef, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, domain.InputRef{Source: domain.InputEvents, ID: formatEventID(id)})
	}

	return []domain.ModuleResult{{
		Module:      "explain_preference",
		Version:     "1.0.0",
		ComputedAt:  ctx.ComputedAt,
		Inputs:      inputs,
		Kind:        domain.KindSummary,
		Status:      domain.StatusOK,
		Subject:     subjectFor(ctx),
		PatternType: "preference",
		Key:         "explain_level",
		Score:       floatPtr(round4(conf)),
		Payload: map[string]any{
			"level":     "high",
			"count":     count,
			"threshold": explainPrefThreshold,
			"signals":   []string{"ask_explain", "pref:explain"},
		},
		Explain: domain.Explain{
			Text: "Repeated ask_explain signals indicate a high explain preference.",
			Debug: map[string]any{
				"count":     count,
				"threshold": explainPrefThreshold,
			},
		},
	}}, nil
}
