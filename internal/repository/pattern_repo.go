// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/metrics"
)

type PatternRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPatternRepository(pool *pgxpool.Pool, logger *slog.Logger) *PatternRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PatternRepository{
		pool:   pool,
		logger: logger,
	}
}

// Upsert writes one pattern keyed by (subject, pattern_type, key). The
// single-statement ON CONFLICT update keeps the row write atomic:
// concurrent upserts to the same identity never interleave fields.
func (r *PatternRepository) Upsert(ctx context.Context, up domain.PatternUpsert) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO learning_patterns (subject, pattern_type, key, value, confidence, evidence, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject, pattern_type, key)
		DO UPDATE SET
			value = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			evidence = EXCLUDED.evidence,
			last_seen = EXCLUDED.last_seen,
			updated_at = NOW()
	`,
		up.Subject,
		up.PatternType,
		up.Key,
		up.Value,
		up.Confidence,
		up.Evidence,
		up.LastSeen,
	)
	if err != nil {
		r.logger.Error("pattern upsert failed",
			"subject", up.Subject,
			"pattern_type", up.PatternType,
			"key", up.Key,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	metrics.IncPatternUpserts()
	return nil
}

// PatternQuery is the dashboard read filter. Order and Direction are
// whitelisted; anything else falls back to the default.
type PatternQuery struct {
	Limit         int
	Offset        int
	Subject       string
	PatternType   string
	MinConfidence float64
	Order         string
	Direction     string
}

var patternOrderColumns = map[string]string{
	"confidence": "confidence",
	"last_seen":  "last_seen",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// List returns the total row count for the filter plus one page of
// patterns.
func (r *PatternRepository) List(ctx context.Context, q PatternQuery) (int, []domain.Pattern, error) {
	q.Limit = domain.ClampLimit(q.Limit, maxQueryLimit)
	if q.Offset < 0 {
		q.Offset = 0
	}

	orderSQL, ok := patternOrderColumns[q.Order]
	if !ok {
		orderSQL = "confidence"
	}
	dirSQL := "DESC"
	if q.Direction == "asc" {
		dirSQL = "ASC"
	}

	where := "confidence >= $1"
	args := []any{q.MinConfidence}
	if q.Subject != "" {
		args = append(args, q.Subject)
		where += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if q.PatternType != "" {
		args = append(args, q.PatternType)
		where += fmt.Sprintf(" AND pattern_type = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM learning_patterns WHERE "+where,
		args...,
	).Scan(&total); err != nil {
		r.logger.Error("count patterns failed", "error", err)
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	args = append(args, q.Limit, q.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, subject, pattern_type, key, value, confidence, evidence, last_seen, created_at, updated_at
		FROM learning_patterns
		WHERE %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, where, orderSQL, dirSQL, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		r.logger.Error("list patterns failed", "error", err)
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	items, err := scanPatterns(rows)
	if err != nil {
		return 0, nil, err
	}

	return total, items, nil
}

// ListRecent returns the freshest patterns across all subjects, the
// snapshot handed to pipeline modules.
func (r *PatternRepository) ListRecent(ctx context.Context, limit int) ([]domain.Pattern, error) {
	limit = domain.ClampLimit(limit, maxQueryLimit)

	rows, err := r.pool.Query(ctx, `
		SELECT id, subject, pattern_type, key, value, confidence, evidence, last_seen, created_at, updated_at
		FROM learning_patterns
		ORDER BY COALESCE(last_seen, updated_at, created_at) DESC
		LIMIT $1
	`,
		limit,
	)
	if err != nil {
		r.logger.Error("list recent patterns failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

func scanPatterns(rows eventRows) ([]domain.Pattern, error) {
	out := make([]domain.Pattern, 0, 8)
	for rows.Next() {
		var p domain.Pattern
		if err := rows.Scan(
			&p.ID,
			&p.Subject,
			&p.PatternType,
			&p.Key,
			&p.Value,
			&p.Confidence,
			&p.Evidence,
			&p.LastSeen,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return out, nil
}
