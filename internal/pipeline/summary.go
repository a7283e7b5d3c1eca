// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sort"
	"time"

	"github.com/patternloop/assistant-runtime/internal/domain"
)

// summaryTopN caps the ranked lists in a Summary.
const summaryTopN = 10

// CountRow is one ranked entry in a summary.
type CountRow struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the read-only aggregate over a window of events.
type Summary struct {
	Total         int        `json:"total"`
	EventTypes    []CountRow `json:"event_types"`
	Tags          []CountRow `json:"tags"`
	LastCreatedAt *time.Time `json:"last_created_at"`
}

// Summarize aggregates a window of events into ranked event-type and
// tag counts. Ties break alphabetically so the output is deterministic
// for a given window.
func Summarize(events []domain.Event) Summary {
	out := Summary{Total: len(events)}
	if len(events) == 0 {
		return out
	}

	types := make(map[string]int, 16)
	tags := make(map[string]int, 32)
	var last time.Time

	for _, ev := range events {
		types[ev.EventType]++
		for _, tag := range ev.Tags {
			tags[tag]++
		}
		if ev.CreatedAt.After(last) {
			last = ev.CreatedAt
		}
	}

	out.EventTypes = rankCounts(types)
	out.Tags = rankCounts(tags)
	if !last.IsZero() {
		out.LastCreatedAt = &last
	}
	return out
}

func rankCounts(counts map[string]int) []CountRow {
	rows := make([]CountRow, 0, len(counts))
	for name, count := range counts {
		rows = append(rows, CountRow{Name: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Name < rows[j].Name
	})
	if len(rows) > summaryTopN {
		rows = rows[:summaryTopN]
	}
	return rows
}
