// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patternloop/assistant-runtime/internal/domain"
)

type CursorRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCursorRepository(pool *pgxpool.Pool, logger *slog.Logger) *CursorRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CursorRepository{
		pool:   pool,
		logger: logger,
	}
}

// Get returns the last processed event id for the named pipeline, zero
// when the pipeline has never run.
func (r *CursorRepository) Get(ctx context.Context, name string) (int64, error) {
	var lastEventID int64
	err := r.pool.QueryRow(ctx, `
		SELECT last_event_id
		FROM pipeline_cursors
		WHERE name = $1
	`,
		name,
	).Scan(&lastEventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		r.logger.Error("get cursor failed", "name", name, "error", err)
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return lastEventID, nil
}

// Advance moves the cursor forward. GREATEST keeps the cursor monotonic
// even if a stale writer races a fresher one.
func (r *CursorRepository) Advance(ctx context.Context, name string, lastEventID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pipeline_cursors (name, last_event_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET
			last_event_id = GREATEST(pipeline_cursors.last_event_id, EXCLUDED.last_event_id),
			updated_at = NOW()
	`,
		name,
		lastEventID,
	)
	if err != nil {
		r.logger.Error("advance cursor failed",
			"name", name,
			"last_event_id", lastEventID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}
