// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patternloop/assistant-runtime/internal/config"
	"github.com/patternloop/assistant-runtime/internal/gate"
	"github.com/patternloop/assistant-runtime/internal/logging"
	"github.com/patternloop/assistant-runtime/internal/modules"
	"github.com/patternloop/assistant-runtime/internal/persistence/postgres"
	"github.com/patternloop/assistant-runtime/internal/pipeline"
	"github.com/patternloop/assistant-runtime/internal/registry"
	"github.com/patternloop/assistant-runtime/internal/repository"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	eventRepo := repository.NewEventRepository(pool, logger)
	patternRepo := repository.NewPatternRepository(pool, logger)
	cursorRepo := repository.NewCursorRepository(pool, logger)

	g := gate.New(cfg.DisabledFeatures, logger)

	reg := registry.New()
	for _, m := range modules.Defaults() {
		if err := reg.Register(m); err != nil {
			log.Fatalf("module registration failed: %v", err)
		}
	}

	// No broker here: a standalone runner has no streaming clients.
	runner := pipeline.NewRunner(
		eventRepo,
		patternRepo,
		cursorRepo,
		reg,
		g,
		nil,
		cfg.PipelineBatchSize,
		logger,
	)

	logger.Info("runner started", "interval", cfg.PipelineInterval.String())

	ticker := time.NewTicker(cfg.PipelineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("runner stopped")
			return
		case <-ticker.C:
			if _, err := runner.RunOnce(ctx, ""); err != nil {
				logger.Error("pipeline run failed", "error", err)
			}
		}
	}
}
