//go:build integration

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patternloop/assistant-runtime/internal/domain"
	"github.com/patternloop/assistant-runtime/internal/persistence/postgres"
)

func newIntegrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	baseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if baseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	adminPool, err := pgxpool.New(ctx, baseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create admin pool (%v)", err)
	}
	t.Cleanup(adminPool.Close)

	if err := adminPool.Ping(ctx); err != nil {
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	testDBName := "repo_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := adminPool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{testDBName}.Sanitize()); err != nil {
		t.Skipf("skip integration test: cannot create database (%v)", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		_, _ = adminPool.Exec(cleanupCtx, `
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1
			  AND pid <> pg_backend_pid()
		`, testDBName)
		if _, err := adminPool.Exec(cleanupCtx, "DROP DATABASE "+pgx.Identifier{testDBName}.Sanitize()); err != nil {
			t.Logf("cleanup warning: drop temp database failed (%v)", err)
		}
	})

	poolCfg, err := pgxpool.ParseConfig(baseURL)
	if err != nil {
		t.Fatalf("parse DATABASE_URL: %v", err)
	}
	poolCfg.ConnConfig.Database = testDBName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("create temp database pool: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	return pool
}

func TestEventAppendAndRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newIntegrationPool(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := NewEventRepository(pool, logger)

	conf := 0.8
	first, err := events.Append(ctx, domain.AppendEventParams{
		EventType:  "ask_explain",
		Confidence: &conf,
		Tags:       []string{"explain", "explain", " depth "},
		Payload:    json.RawMessage(`{"level":"high"}`),
	})
	if err != nil {
		t.Fatalf("append first event: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("expected non-zero event id")
	}

	second, err := events.Append(ctx, domain.AppendEventParams{
		EventType: "search",
		Source:    "cli",
	})
	if err != nil {
		t.Fatalf("append second event: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected strictly increasing ids, got %d then %d", first.ID, second.ID)
	}

	recent, err := events.ListRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	if recent[0].ID != second.ID {
		t.Fatalf("expected newest first, got id %d", recent[0].ID)
	}
	if recent[1].Source != "api" {
		t.Fatalf("expected defaulted source api, got %q", recent[1].Source)
	}
	if len(recent[1].Tags) != 2 {
		t.Fatalf("expected normalized tags, got %v", recent[1].Tags)
	}

	filtered, err := events.ListRecent(ctx, 10, "search")
	if err != nil {
		t.Fatalf("list recent filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EventType != "search" {
		t.Fatalf("expected one search event, got %+v", filtered)
	}

	batch, err := events.ListAfter(ctx, first.ID, 100)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != second.ID {
		t.Fatalf("expected cursor batch with second event, got %+v", batch)
	}
}

func TestPatternUpsertIsIdempotentPerIdentity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newIntegrationPool(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	patterns := NewPatternRepository(pool, logger)

	up := domain.PatternUpsert{
		Subject:     "user",
		PatternType: "preference",
		Key:         "explain_level",
		Value:       json.RawMessage(`{"level":"high"}`),
		Confidence:  0.55,
		Evidence:    json.RawMessage(`{"module":"explain_preference"}`),
		LastSeen:    time.Now().UTC(),
	}
	if err := patterns.Upsert(ctx, up); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	up.Confidence = 0.71
	up.Value = json.RawMessage(`{"level":"medium"}`)
	if err := patterns.Upsert(ctx, up); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	total, items, err := patterns.List(ctx, PatternQuery{Limit: 10})
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected a single superseded row, got total=%d items=%d", total, len(items))
	}
	if items[0].Confidence != 0.71 {
		t.Fatalf("expected updated confidence, got %v", items[0].Confidence)
	}
	doc := items[0].ValueDocument()
	if doc["level"] != "medium" {
		t.Fatalf("expected updated value, got %v", doc)
	}
}

func TestCursorAdvanceIsMonotonic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pool := newIntegrationPool(t, ctx)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cursors := NewCursorRepository(pool, logger)

	got, err := cursors.Get(ctx, "learning")
	if err != nil {
		t.Fatalf("get fresh cursor: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected fresh cursor to be zero, got %d", got)
	}

	if err := cursors.Advance(ctx, "learning", 42); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if err := cursors.Advance(ctx, "learning", 17); err != nil {
		t.Fatalf("stale advance: %v", err)
	}

	got, err = cursors.Get(ctx, "learning")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected cursor to stay at 42, got %d", got)
	}
}
