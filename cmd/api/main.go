package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"verixiv/internal/api"
	"verixiv/internal/config"
	"verixiv/internal/logging"
	"verixiv/internal/pdftext"
	"verixiv/internal/scoring"
	"verixiv/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *storage.DB
	if cfg.PostgresURL != "" {
		if err := storage.Migrate(cfg.PostgresURL); err != nil {
			fatal("migrate database", err)
		}
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err = storage.NewDB(dbCtx, cfg.PostgresURL)
		cancel()
		if err != nil {
			fatal("connect database", err)
		}
		defer db.Close()
	}

	svc, closeCache, err := scoring.NewFromConfig(ctx, cfg, db)
	if err != nil {
		fatal("build scoring service", err)
	}
	defer closeCache()

	deps := api.Deps{
		Scoring: svc,
		PDFs:    pdftext.NewDownloader(time.Duration(cfg.DownloadTimeoutSecs)*time.Second, cfg.MaxUploadBytes),
	}
	if db != nil {
		deps.Runs = storage.NewScoreRepo(db)
		deps.Calls = storage.NewLLMAuditRepo(db)
	}
	if cfg.TemporalAddress != "" {
		tc, err := tclient.Dial(tclient.Options{
			HostPort: cfg.TemporalAddress,
			Logger:   tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			fatal("dial temporal", err)
		}
		defer tc.Close()
		deps.Temporal = tc
	} else {
		slog.Warn("temporal address not set, background jobs disabled")
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("verixiv api listening", "addr", cfg.APIAddr, "llm_providers", cfg.LLMProviders, "cache", cfg.CacheBackend, "database", db != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("serve http", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
