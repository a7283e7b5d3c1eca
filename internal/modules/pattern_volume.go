// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"fmt"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// PatternVolume flags an abnormal pattern-store volume. Thresholds are
// deliberately simple and transparent.
type PatternVolume struct{}

const (
	volumeMinExpected = 1
	volumeHigh        = 100
)

func (PatternVolume) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "pattern_volume",
		Version:    "1.0.0",
		InputKinds: []string{"patterns"},
	}
}

func (PatternVolume) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	total := len(ctx.Patterns)

	byType := map[string]any{}
	for _, p := range ctx.Patterns {
		t := p.PatternType
		if t == "" {
			t = "unknown"
		}
		n, _ := byType[t].(int)
		byType[t] = n + 1
	}

	low := total < volumeMinExpected
	high := total >= volumeHigh

	var (
		score  float64
		status domain.ResultStatus
		msg    string
	)
	switch {
	case low:
		score, status = 0.0, domain.StatusWarn
		msg = fmt.Sprintf("Few patterns found (%d). Possibly not enough learning data yet.", total)
	case high:
		score, status = 1.0, domain.StatusWarn
		msg = fmt.Sprintf("Many patterns found (%d). Check whether ingest/derive is too aggressive.", total)
	default:
		score, status = 0.5, domain.StatusOK
		msg = fmt.Sprintf("Pattern volume normal (%d).", total)
	}

	return []domain.ModuleResult{{
		Module:     "pattern_volume",
		Version:    "1.0.0",
		ComputedAt: ctx.ComputedAt,
		Inputs: []domain.InputRef{{
			Source: domain.InputPatterns,
			Note:   "count patterns + breakdown by type",
		}},
		Kind:        domain.KindFlags,
		Status:      status,
		Subject:     "system",
		PatternType: "anomaly",
		Key:         "patterns:volume",
		Score:       floatPtr(score),
		Flags: map[string]bool{
			"low_volume":    low,
			"high_volume":   high,
			"normal_volume": !low && !high,
		},
		Payload: map[string]any{
			"total_patterns": total,
			"by_type":        byType,
			"thresholds":     map[string]any{"min_expected": volumeMinExpected, "high_volume": volumeHigh},
		},
		Explain: domain.Explain{
			Text:  msg,
			Debug: map[string]any{"total": total},
		},
	}}, nil
}
