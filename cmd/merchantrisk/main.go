// MerchantRisk - AML risk scoring for merchant onboarding.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/merchantrisk/internal/api"
	"github.com/opensource-finance/merchantrisk/internal/bus"
	"github.com/opensource-finance/merchantrisk/internal/cache"
	"github.com/opensource-finance/merchantrisk/internal/config"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
	"github.com/opensource-finance/merchantrisk/internal/onboarding"
	"github.com/opensource-finance/merchantrisk/internal/repository"
	"github.com/opensource-finance/merchantrisk/internal/riskconfig"
	"github.com/opensource-finance/merchantrisk/internal/rules"
	"github.com/opensource-finance/merchantrisk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging, "merchantrisk")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("merchantrisk stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *domain.Config, log *zap.Logger) error {
	log.Info("starting merchantrisk",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
		zap.String("tier", string(cfg.Tier)),
		zap.String("repository", cfg.Repository.Driver),
		zap.String("cache", cfg.Cache.Type),
		zap.String("eventbus", cfg.EventBus.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	log.Info("repository initialized", zap.String("driver", cfg.Repository.Driver))

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	log.Info("cache initialized", zap.String("type", cfg.Cache.Type))

	busImpl, err := bus.New(cfg.EventBus, log, m)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	log.Info("event bus initialized", zap.String("type", cfg.EventBus.Type))

	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	log.Info("rule engine initialized", zap.Int("rules_count", engine.RulesCount()))

	store := riskconfig.New(repo,
		riskconfig.WithCache(cacheImpl, cfg.Cache.SnapshotTTL),
		riskconfig.WithLogger(log),
		riskconfig.WithMetrics(m),
	)
	svc := onboarding.New(repo, engine, store,
		onboarding.WithBus(busImpl),
		onboarding.WithLogger(log),
		onboarding.WithMetrics(m),
	)

	reassessor := worker.NewWorker(busImpl, svc, cfg.Worker, log, m)
	if err := reassessor.Start(); err != nil {
		return fmt.Errorf("failed to start reassessment worker: %w", err)
	}
	defer reassessor.Stop()

	server := api.NewServer(cfg.Server, api.Deps{
		Service:  svc,
		Config:   store,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Metrics:  m,
		Log:      log,
		Security: cfg.Security,
		Version:  Version,
	})
	if cfg.Security.AdminAPIKey == "" {
		log.Warn("no admin API key configured, admin routes will reject every request")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("merchantrisk stopped")
	return nil
}
