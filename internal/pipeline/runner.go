// SPDX-License-Identifier: Apache-2.0

// Package pipeline turns batches of appended events into pattern store
// writes. One runner instance owns the learning cursor; triggers that
// arrive while a batch is in flight coalesce into the running batch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/patternloop/assistant-runtime/internal/broker"
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/gate"
	"github.com/patternloop/assistant-runtime/internal/metrics"
	"github.com/patternloop/assistant-runtime/internal/registry"
)

// CursorName is the pipeline's row in pipeline_cursors.
const CursorName = "learning"

// patternSnapshotLimit bounds the pattern set handed to modules per batch.
const patternSnapshotLimit = 200

type EventSource interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error)
}

type PatternStore interface {
	Upsert(ctx context.Context, up domain.PatternUpsert) error
	ListRecent(ctx context.Context, limit int) ([]domain.Pattern, error)
}

type CursorStore interface {
	Get(ctx context.Context, name string) (int64, error)
	Advance(ctx context.Context, name string, lastEventID int64) error
}

type Broadcaster interface {
	Broadcast(channel string, env broker.Envelope) int
}

// RunReport summarizes one trigger. Outcome uses the same vocabulary as
// the pipeline_runs_total metric.
type RunReport struct {
	Outcome  string        `json:"outcome"`
	Events   int           `json:"events"`
	Results  int           `json:"results"`
	Upserts  int           `json:"upserts"`
	Failures int           `json:"failures"`
	Cursor   int64         `json:"cursor"`
	Duration time.Duration `json:"-"`
}

type Runner struct {
	events    EventSource
	patterns  PatternStore
	cursors   CursorStore
	registry  *registry.Registry
	gate      *gate.Gate
	broadcast Broadcaster
	logger    *slog.Logger
	batchSize int

	running atomic.Bool
}

func NewRunner(
	events EventSource,
	patterns PatternStore,
	cursors CursorStore,
	reg *registry.Registry,
	g *gate.Gate,
	broadcast Broadcaster,
	batchSize int,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	return &Runner{
		events:    events,
		patterns:  patterns,
		cursors:   cursors,
		registry:  reg,
		gate:      g,
		broadcast: broadcast,
		logger:    logger,
		batchSize: batchSize,
	}
}

// RunOnce processes at most one batch of events past the cursor. The
// single-slot try-acquire makes concurrent triggers coalesce: the loser
// returns immediately with a coalesced report and no side effects.
//
// Subject narrows the pattern snapshot handed to modules; a subject
// matching no stored pattern falls back to the unfiltered snapshot so a
// typo cannot silently starve every module of input.
func (r *Runner) RunOnce(ctx context.Context, subject string) (RunReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.IncPipelineRun(metrics.RunCoalesced)
		return RunReport{Outcome: metrics.RunCoalesced}, nil
	}
	defer r.running.Store(false)

	started := time.Now()

	if !r.gate.IsEnabled(gate.FeatureDerive) {
		metrics.IncPipelineRun(metrics.RunGated)
		return RunReport{Outcome: metrics.RunGated}, nil
	}

	cursor, err := r.cursors.Get(ctx, CursorName)
	if err != nil {
		metrics.IncPipelineRun(metrics.RunError)
		return RunReport{Outcome: metrics.RunError}, err
	}

	events, err := r.events.ListAfter(ctx, cursor, r.batchSize)
	if err != nil {
		metrics.IncPipelineRun(metrics.RunError)
		return RunReport{Outcome: metrics.RunError}, err
	}
	if len(events) == 0 {
		metrics.IncPipelineRun(metrics.RunEmpty)
		return RunReport{Outcome: metrics.RunEmpty, Cursor: cursor}, nil
	}

	patterns, err := r.patterns.ListRecent(ctx, patternSnapshotLimit)
	if err != nil {
		metrics.IncPipelineRun(metrics.RunError)
		return RunReport{Outcome: metrics.RunError}, err
	}
	patterns = filterSubject(patterns, subject)

	report := RunReport{
		Outcome: metrics.RunOK,
		Events:  len(events),
		Cursor:  cursor,
	}

	rctx := registry.Context{
		Subject:    subject,
		Events:     events,
		Patterns:   patterns,
		ComputedAt: time.Now().UTC(),
	}

	for _, module := range r.registry.Snapshot() {
		name := module.Descriptor().Name

		results, err := invoke(module, rctx)
		if err != nil {
			report.Failures++
			metrics.IncModuleResult(name, domain.StatusError)
			r.logger.Error("module failed", "module", name, "error", err)
			continue
		}

		for _, result := range results {
			report.Results++
			metrics.IncModuleResult(result.Module, result.Status)

			if result.Status == domain.StatusError {
				r.logger.Warn("module reported error result",
					"module", result.Module,
					"key", result.Key,
					"explain", result.Explain.Text,
				)
				continue
			}

			up, err := result.ToUpsert()
			if err != nil {
				report.Failures++
				r.logger.Error("invalid module result",
					"module", result.Module,
					"error", err,
				)
				continue
			}

			if err := r.patterns.Upsert(ctx, up); err != nil {
				report.Failures++
				r.logger.Error("pattern upsert failed",
					"module", result.Module,
					"key", up.Key,
					"error", err,
				)
				continue
			}
			report.Upserts++
		}
	}

	// The cursor advances past every event read, module failures
	// included: a module bug must not make the pipeline reprocess the
	// same batch forever.
	lastID := events[len(events)-1].ID
	if err := r.cursors.Advance(ctx, CursorName, lastID); err != nil {
		metrics.IncPipelineRun(metrics.RunError)
		return report, err
	}
	report.Cursor = lastID

	if report.Upserts > 0 && r.gate.IsEnabled(gate.FeatureBroadcast) && r.broadcast != nil {
		r.broadcast.Broadcast(broker.ChannelDashboard, broker.Envelope{
			Type: broker.TypeRefresh,
			TS:   time.Now().UTC().Format(time.RFC3339),
			Data: map[string]any{
				"events":  report.Events,
				"upserts": report.Upserts,
			},
		})
	}

	report.Duration = time.Since(started)
	metrics.IncPipelineRun(metrics.RunOK)
	metrics.ObservePipelineBatchDuration(report.Duration)

	r.logger.Info("pipeline batch complete",
		"events", report.Events,
		"results", report.Results,
		"upserts", report.Upserts,
		"failures", report.Failures,
		"cursor", report.Cursor,
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

// filterSubject narrows patterns to one subject, keeping the full set
// when the subject matches nothing.
func filterSubject(patterns []domain.Pattern, subject string) []domain.Pattern {
	if subject == "" {
		return patterns
	}
	filtered := make([]domain.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Subject == subject {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return patterns
	}
	return filtered
}

// invoke isolates one module call. A panicking module is a failed
// module, never a crashed batch.
func invoke(m registry.Module, rctx registry.Context) (results []domain.ModuleResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results = nil
			err = fmt.Errorf("module panic: %v", rec)
		}
	}()
	return m.Compute(rctx)
}
