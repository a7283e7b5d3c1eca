// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// FrictionAnomaly flags an unusually high rate of correction and
// frustration signals in the batch.
type FrictionAnomaly struct{}

const (
	frictionThreshold = 6
	frictionBaseConf  = 0.60
	frictionConfStep  = 0.05
	frictionMaxConf   = 0.90
)

func (FrictionAnomaly) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "friction_anomaly",
		Version:    "1.0.0",
		InputKinds: []string{"correction", "frustration"},
	}
}

func (FrictionAnomaly) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	count := 0
	var ids []int64
	for _, e := range ctx.Events {
		if e.EventType == "correction" || e.EventType == "frustration" ||
			hasTag(e, "correction") || hasTag(e, "frustration") || hasTag(e, "anomaly:friction") {
			count++
			ids = append(ids, e.ID)
		}
	}

	if count < frictionThreshold {
		return nil, nil
	}

	conf := frictionBaseConf + float64(count-frictionThreshold)*frictionConfStep
	if conf > frictionMaxConf {
		conf = frictionMaxConf
	}

	inputs := make([]domain.InputRef, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, domain.InputRef{Source: domain.InputEvents, ID: formatEventID(id)})
	}

	return []domain.ModuleResult{{
		Module:      "friction_anomaly",
		Version:     "1.0.0",
		ComputedAt:  ctx.ComputedAt,
		Inputs:      inputs,
		Kind:        domain.KindFlags,
		Status:      domain.StatusWarn,
		Subject:     subjectFor(ctx),
		PatternType: "anomaly",
		Key:         "interaction:high_friction",
		Score:       floatPtr(round4(conf)),
		Flags:       map[string]bool{"high_friction": true},
		Payload: map[string]any{
			"count":     count,
			"threshold": frictionThreshold,
			"signals":   []string{"correction", "frustration", "anomaly:friction"},
		},
		Explain: domain.Explain{
			Text: "High number of correction and frustration signals in this batch.",
			Debug: map[string]any{
				"count":     count,
				"threshold": frictionThreshold,
			},
		},
	}}, nil
}
