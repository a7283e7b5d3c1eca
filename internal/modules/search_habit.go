// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"time"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// SearchHabit derives a tool-usage habit from repeated search activity,
// signalled either by a tool:search tag or payload.action=search.
type SearchHabit struct{}

const (
	searchHabitThreshold = 5
	searchHabitBaseConf  = 0.50
	searchHabitConfStep  = 0.07
	searchHabitMaxConf   = 0.92
)

func (SearchHabit) Descriptor() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:       "search_habit",
		Version:    "1.0.0",
		InputKinds: []string{"tool_use"},
	}
}

func (SearchHabit) Compute(ctx registry.Context) ([]domain.ModuleResult, error) {
	count := 0
	var ids []int64
	var lastSeen *time.Time
	for _, e := range ctx.Events {
		if !hasTag(e, "tool:search") && payloadAction(e) != "search" {
			continue
		}
		count++
		ids = append(ids, e.ID)
		ts := e.CreatedAt
		if lastSeen == nil || ts.After(*lastSeen) {
			lastSeen = &ts
		}
	}

	if count < searchHabitThreshold {
		return nil, nil
	}

	conf := searchHabitBaseConf + float64(count-searchHabitThreshold)*searchHabitConfStep
	if conf > searchHabitMaxConf {
		conf = searchHabitMaxConf
	}

	inputs := make([]domain.InputRef, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, domain.InputRef{Source: domain.InputEvents, ID: formatEventID(id)})
	}

	return []domain.ModuleResult{{
		Module:      "search_habit",
		Version:     "1.0.0",
		ComputedAt:  ctx.ComputedAt,
		Inputs:      inputs,
		Kind:        domain.KindSummary,
		Status:      domain.StatusOK,
		Subject:     subjectFor(ctx),
		PatternType: "habit",
		Key:         "tool_usage:search",
		Score:       floatPtr(round4(conf)),
		Payload: map[string]any{
			"count":     count,
			"threshold": searchHabitThreshold,
			"signals":   []string{"tool:search", "payload.action=search"},
		},
		Explain: domain.Explain{
			Text: "Frequent search tool usage indicates a search habit.",
			Debug: map[string]any{
				"count":     count,
				"threshold": searchHabitThreshold,
			},
		},
		LastSeen: lastSeen,
	}}, nil
}
