// Package main provides the GraphQL server for carechat.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/carechat/internal/config"
	"github.com/raphaelgruber/carechat/internal/db"
	"github.com/raphaelgruber/carechat/internal/graph"
	"github.com/raphaelgruber/carechat/internal/llm"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/raphaelgruber/carechat/internal/server"
	"github.com/raphaelgruber/carechat/internal/service"
	"github.com/raphaelgruber/carechat/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *wipeDB || os.Getenv("CARECHAT_WIPE_DB") == "true"); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, wipe bool) error {
	mc := metrics.NewCollector()

	logger.Info("starting carechat-server",
		"addr", cfg.ListenAddr(),
		"store", cfg.Store,
		"llm_provider", cfg.LLMProvider,
	)

	s, closeStore, err := openStore(ctx, cfg, logger, mc, wipe)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedFile != "" {
		seed, err := models.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		n, err := store.Seed(ctx, s, seed)
		if err != nil {
			return fmt.Errorf("seed subjects: %w", err)
		}
		logger.Info("seeded subjects", "count", n, "file", cfg.SeedFile)
	}

	model, err := llm.NewModel(ctx, cfg, mc)
	if err != nil {
		return fmt.Errorf("create llm: %w", err)
	}

	var responder *service.Responder
	if model != nil {
		responder = service.NewResponder(s, model, service.ResponderOptions{
			Workers: cfg.ResponderWorkers,
			History: cfg.ResponderHistory,
			Logger:  logger,
			Metrics: mc,
		})
		logger.Info("assistant responder enabled", "model", model.Model(), "workers", responder.Workers())
	} else {
		logger.Warn("no LLM provider configured, caregiver messages will not be answered")
	}

	svc := service.NewChatService(s, responder, logger)
	handler := graph.NewHandler(graph.NewResolver(svc, mc), logger, mc)
	srv := server.New(cfg.ListenAddr(), handler, logger)

	logger.Info("GraphQL endpoint available", "url", fmt.Sprintf("http://localhost%s/query", cfg.ListenAddr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if responder != nil {
		g.Go(func() error {
			return responder.Run(gctx)
		})
	}
	return g.Wait()
}

// openStore returns the configured message store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, mc *metrics.Collector, wipe bool) (store.Store, func(), error) {
	if cfg.Store != config.StoreSurreal {
		return store.NewMemory(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	if err != nil {
		return nil, nil, fmt.Errorf("connect surrealdb: %w", err)
	}
	closeFn := func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}

	if err := client.InitSchema(connectCtx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	if wipe {
		if err := client.WipeData(connectCtx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("wipe database: %w", err)
		}
		logger.Warn("database wiped")
	}

	return store.NewSurreal(client), closeFn, nil
}
