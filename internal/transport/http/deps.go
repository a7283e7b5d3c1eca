// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/patternloop/assistant-runtime/internal/broker"
	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/pipeline"
	"github.com/patternloop/assistant-runtime/internal/repository"
)

type EventStore interface {
	Append(ctx context.Context, params domain.AppendEventParams) (domain.AppendedEvent, error)
	ListRecent(ctx context.Context, limit int, eventType string) ([]domain.Event, error)
}

type PatternLister interface {
	List(ctx context.Context, q repository.PatternQuery) (int, []domain.Pattern, error)
}

type PipelineTrigger interface {
	RunOnce(ctx context.Context, subject string) (pipeline.RunReport, error)
}

type FeatureGate interface {
	IsEnabled(feature string) bool
	Disable(feature string)
	Enable(feature string) error
	Kill(feature string)
	Killed(feature string) bool
}

type ModuleAdmin interface {
	ListAll() []domain.ModuleDescriptor
	Enable(name string)
	Disable(name string)
}

type Streamer interface {
	Subscribe(channel, filter string) *broker.Subscription
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
