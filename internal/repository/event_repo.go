// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/metrics"
)

const maxQueryLimit = 200

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

// Append durably writes one event. The INSERT commits synchronously:
// a successful return implies the row is on disk.
func (r *EventRepository) Append(ctx context.Context, params domain.AppendEventParams) (domain.AppendedEvent, error) {
	if err := params.Validate(); err != nil {
		return domain.AppendedEvent{}, err
	}

	started := time.Now()

	var out domain.AppendedEvent
	err := r.pool.QueryRow(ctx, `
		INSERT INTO learning_events (user_id, session_id, event_type, source, confidence, tags, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`,
		params.UserID,
		params.SessionID,
		params.EventType,
		params.Source,
		params.Confidence,
		params.Tags,
		params.Payload,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		r.logger.Error("event append failed",
			"event_type", params.EventType,
			"error", err,
		)
		return domain.AppendedEvent{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	metrics.IncEventsAppended()
	metrics.ObserveAppendDuration(time.Since(started))

	return out, nil
}

// ListRecent returns events newest-first. The limit is silently clamped
// into [1, 200].
func (r *EventRepository) ListRecent(ctx context.Context, limit int, eventType string) ([]domain.Event, error) {
	limit = domain.ClampLimit(limit, maxQueryLimit)

	query := `
		SELECT id, created_at, user_id, session_id, event_type, source, confidence, tags, payload
		FROM learning_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	args := []any{limit}
	if eventType != "" {
		query = `
			SELECT id, created_at, user_id, session_id, event_type, source, confidence, tags, payload
			FROM learning_events
			WHERE event_type = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []any{eventType, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("list recent events failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAfter returns up to limit events with id > afterID in ascending
// id order. This is the pipeline's batch read.
func (r *EventRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = maxQueryLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at, user_id, session_id, event_type, source, confidence, tags, payload
		FROM learning_events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`,
		afterID,
		limit,
	)
	if err != nil {
		r.logger.Error("list events after cursor failed",
			"after_id", afterID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

type eventRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows eventRows) ([]domain.Event, error) {
	out := make([]domain.Event, 0, 8)
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(
			&ev.ID,
			&ev.CreatedAt,
			&ev.UserID,
			&ev.SessionID,
			&ev.EventType,
			&ev.Source,
			&ev.Confidence,
			&ev.Tags,
			&ev.Payload,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return out, nil
}
