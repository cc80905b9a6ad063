package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/stagetrack/stagetrack/internal/config"
	"github.com/stagetrack/stagetrack/internal/pipeline"
	"github.com/stagetrack/stagetrack/internal/seed"
	"github.com/stagetrack/stagetrack/internal/storage"
	"github.com/stagetrack/stagetrack/internal/storage/memory"
	"github.com/stagetrack/stagetrack/internal/storage/redisstore"
	"github.com/stagetrack/stagetrack/internal/storage/sqldb"
)

// openStore connects to the configured backend.
func openStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Storage.Type {
	case config.StorageMemory:
		return memory.New(), nil

	case config.StorageSQLite, config.StoragePostgres:
		driver := c.Storage.Database.Driver
		if driver == "" {
			driver = c.Storage.Type
		}
		return sqldb.New(sqldb.Config{Driver: driver, DSN: c.Storage.Database.DSN})

	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", c.Storage.Redis.Addr, err)
		}
		return redisstore.New(client, c.Storage.Redis.Prefix), nil

	default:
		return nil, fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
}

// bootstrap opens the store, applies the configured seed fixture and builds
// the service. Callers own the returned store.
func bootstrap(ctx context.Context, c *config.Config, log *slog.Logger) (*pipeline.Service, storage.Store, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	if c.Seed.Path != "" {
		if err := applySeed(ctx, store, c.Seed.Path, log); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	svc := pipeline.NewService(registry, store, c.Pipeline.MaxParallel, log)
	return svc, store, nil
}

func applySeed(ctx context.Context, store storage.Store, path string, log *slog.Logger) error {
	fixture, err := seed.Load(path)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, store, fixture)
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", path, err)
	}
	log.Info("seed applied",
		slog.String("path", path),
		slog.Int("owners", res.Owners),
		slog.Int("collector_items", res.CollectorItems),
		slog.Int("commits", res.Commits))
	return nil
}
