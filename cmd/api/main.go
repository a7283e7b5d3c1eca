// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patternloop/assistant-runtime/internal/broker"
	"github.com/patternloop/assistant-runtime/internal/completion"
	"github.com/patternloop/assistant-runtime/internal/config"
	"github.com/patternloop/assistant-runtime/internal/gate"
	"github.com/patternloop/assistant-runtime/internal/logging"
	"github.com/patternloop/assistant-runtime/internal/modules"
	"github.com/patternloop/assistant-runtime/internal/persistence/postgres"
	"github.com/patternloop/assistant-runtime/internal/pipeline"
	"github.com/patternloop/assistant-runtime/internal/registry"
	"github.com/patternloop/assistant-runtime/internal/repository"
	httptransport "github.com/patternloop/assistant-runtime/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
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

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	} else if err := postgres.SchemaReady(ctx, pool); err != nil {
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

	b := broker.New(cfg.StreamQueueDepth, logger)

	runner := pipeline.NewRunner(
		eventRepo,
		patternRepo,
		cursorRepo,
		reg,
		g,
		b,
		cfg.PipelineBatchSize,
		logger,
	)

	handler := httptransport.NewRouter(httptransport.Deps{
		Events:      eventRepo,
		Patterns:    patternRepo,
		Pipeline:    runner,
		Gate:        g,
		Modules:     reg,
		Broker:      b,
		Completions: completion.NewLocalProvider(25 * time.Millisecond),
		Logger:      logger,
		AdminToken:  cfg.AdminToken,
		Version:     Version,
		Commit:      Commit,
		BuildDate:   BuildDate,
	})

	// Background batches pick up events logged between manual triggers.
	go func() {
		ticker := time.NewTicker(cfg.PipelineInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := runner.RunOnce(ctx, ""); err != nil {
					logger.Error("background pipeline run failed", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
