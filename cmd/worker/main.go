package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"verixiv/internal/activities"
	"verixiv/internal/config"
	"verixiv/internal/logging"
	"verixiv/internal/scoring"
	"verixiv/internal/storage"
	"verixiv/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if cfg.TemporalAddress == "" {
		fatal("worker needs a temporal address", errors.New("VERIXIV_TEMPORAL_ADDRESS is empty"))
	}

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		fatal("dial temporal", err)
	}
	defer c.Close()

	var db *storage.DB
	if cfg.PostgresURL != "" {
		if err := storage.Migrate(cfg.PostgresURL); err != nil {
			fatal("migrate database", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err = storage.NewDB(ctx, cfg.PostgresURL)
		cancel()
		if err != nil {
			fatal("connect database", err)
		}
		defer db.Close()
	}

	svc, closeCache, err := scoring.NewFromConfig(context.Background(), cfg, db)
	if err != nil {
		fatal("build scoring service", err)
	}
	defer closeCache()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, svc, db))

	slog.Info("verixiv worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "llm_providers", cfg.LLMProviders, "cache", cfg.CacheBackend)
	if err := w.Run(worker.InterruptCh()); err != nil {
		fatal("run worker", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
