package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"verixiv/internal/cache"
	"verixiv/internal/config"
	"verixiv/internal/providers"
	"verixiv/internal/rubric"
	"verixiv/internal/storage"
)

// NewStore opens the cache backend named by cfg.CacheBackend. db may be nil
// unless the backend is postgres. The returned func releases the backend.
func NewStore(ctx context.Context, cfg config.Config, db *storage.DB) (cache.Store, func(), error) {
	noop := func() {}
	switch cfg.CacheBackend {
	case "memory":
		s, err := cache.NewMemoryStore(cfg.CacheMaxEntries)
		return s, noop, err
	case "", "disk":
		s, err := cache.NewDiskStore(cfg.CacheDir, cfg.CacheSizeLimit)
		return s, noop, err
	case "postgres":
		if db == nil {
			return nil, noop, fmt.Errorf("cache backend postgres needs a database")
		}
		return storage.NewCacheStore(db), noop, nil
	case "redis":
		s, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case "s3":
		s, err := cache.NewS3Store(ctx, cache.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return s, noop, err
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}

// NewFromConfig wires providers, cache and optional persistence into a Service.
// With a nil db, LLM calls are not audited and runs are not recorded.
func NewFromConfig(ctx context.Context, cfg config.Config, db *storage.DB) (*Service, func(), error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := NewStore(ctx, cfg, db)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}

	scorer := NewScorer(pm, rubric.NewValidator(rubric.ReproducibilityFields), cfg.ThinkingBudget)
	opts := Options{Model: cfg.Model, MaxConcurrency: cfg.MaxConcurrency}
	if db != nil {
		scorer.WithAudit(storage.NewLLMAuditRepo(db))
		opts.Runs = storage.NewScoreRepo(db)
	}
	_, primary := pm.Primary()
	slog.Info("scoring service ready", "provider", primary.Raw, "model", cfg.Model, "cache", cfg.CacheBackend, "max_concurrency", cfg.MaxConcurrency)
	return NewService(scorer, cache.New[Result](store), opts), closeStore, nil
}

// WithoutRuns returns a copy of s sharing its cache that does not record runs.
func (s *Service) WithoutRuns() *Service {
	c := *s
	c.runs = nil
	return &c
}
