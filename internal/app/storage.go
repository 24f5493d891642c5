package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/good12834/shoestore/internal/config"
	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/internal/storage/file"
	"github.com/good12834/shoestore/internal/storage/memory"
	pgstore "github.com/good12834/shoestore/internal/storage/postgres"
	redisstore "github.com/good12834/shoestore/internal/storage/redis"
	"github.com/good12834/shoestore/pkg/database"
)

// slowQueryThreshold flags snapshot queries that should be instant.
const slowQueryThreshold = 200 * time.Millisecond

// openedStorage is a storage driver plus the cleanup for its backend. The
// driver is kept unwrapped so optional interfaces (Watcher, Pinger) remain
// visible to type assertions.
type openedStorage struct {
	driver storage.Storage
	name   string
	close  func()
}

// openStorage connects the driver named by cfg.StorageDriver.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*openedStorage, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, snapshots are lost on exit")
		return &openedStorage{driver: memory.New(), name: config.DriverMemory, close: func() {}}, nil

	case config.DriverRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB

		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return &openedStorage{
			driver: redisstore.New(client, cfg.Profile, cfg.SnapshotTTLDuration(), logger),
			name:   config.DriverRedis,
			close: func() {
				if err := client.Close(); err != nil {
					logger.Error("redis close error", slog.String("error", err.Error()))
				}
			},
		}, nil

	case config.DriverPostgres:
		pgCfg := database.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresHost
		pgCfg.Port = cfg.PostgresPort
		pgCfg.User = cfg.PostgresUser
		pgCfg.Password = cfg.PostgresPassword
		pgCfg.DBName = cfg.PostgresDB
		pgCfg.SSLMode = cfg.PostgresSSLMode

		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := database.RegisterPoolMetrics(pool, serviceName); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}
		database.SetSlowQueryLogging(slowQueryThreshold, logger)

		if err := pgstore.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.String("database", cfg.PostgresDB),
		)
		return &openedStorage{
			driver: pgstore.New(pool, cfg.Profile),
			name:   config.DriverPostgres,
			close:  pool.Close,
		}, nil

	default:
		dir := cfg.StorageDir
		if dir == "" {
			dir = file.DefaultDir(cfg.Profile)
		}
		fs, err := file.New(dir)
		if err != nil {
			return nil, fmt.Errorf("open storage dir: %w", err)
		}
		logger.Info("using file storage", slog.String("dir", fs.Dir()))
		return &openedStorage{driver: fs, name: config.DriverFile, close: func() {}}, nil
	}
}
