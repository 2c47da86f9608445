package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tracewell/discover-go/internal/platform/httpserver"
	"github.com/tracewell/discover-go/internal/platform/objectstore"
	"github.com/tracewell/discover-go/internal/platform/postgres"
	"github.com/tracewell/discover-go/internal/query"
	repopg "github.com/tracewell/discover-go/internal/repo/postgres"
	"github.com/tracewell/discover-go/internal/service/keytransactions"
)

const startupTimeout = 5 * time.Second

func openDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, invalid("database", err)
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	if !cfg.AutoMigrate {
		return db, nil
	}

	applied, err := postgres.Migrate(ctx, db, repopg.Migrations, repopg.MigrationsRoot)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migration: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("database migrated", "applied", applied)
	}
	return db, nil
}

type delegateClient struct {
	querier query.Querier
	checks  []httpserver.ReadinessCheck
	close   func()
}

// buildQuerier returns the delegate client, fronted by the Redis result
// cache when REDIS_URL is set.
func buildQuerier(ctx context.Context, logger *slog.Logger) (delegateClient, error) {
	cfg, err := query.ConfigFromEnv()
	if err != nil {
		return delegateClient{}, invalid("query delegate", err)
	}
	client, err := query.NewClient(ctx, cfg)
	if err != nil {
		return delegateClient{}, invalid("query delegate", err)
	}
	out := delegateClient{querier: client, close: func() {}}
	if cfg.RedisURL == "" {
		return out, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	rdb, err := query.NewRedisClient(startupCtx, cfg.RedisURL)
	if err != nil {
		return delegateClient{}, fmt.Errorf("redis unavailable: %w", err)
	}
	out.querier = query.NewCachedQuerier(client, rdb, cfg.CacheTTL, logger)
	out.close = func() { _ = rdb.Close() }
	out.checks = append(out.checks, httpserver.ReadinessCheck{
		Name:  "redis",
		Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	return out, nil
}

// attachExports enables CSV exports when object storage is configured and
// returns its readiness probe.
func attachExports(ctx context.Context, service *keytransactions.Service) (*httpserver.ReadinessCheck, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, invalid("object store", err)
	}
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, invalid("object store", err)
	}
	store, err := objectstore.NewMinioStore(client, cfg)
	if err != nil {
		return nil, invalid("object store", err)
	}
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := store.EnsureBucket(startupCtx); err != nil {
		return nil, fmt.Errorf("object store unavailable: %w", err)
	}

	service.WithExports(store, cfg.PresignTTL)
	return &httpserver.ReadinessCheck{Name: "minio", Check: store.CheckBucket}, nil
}
