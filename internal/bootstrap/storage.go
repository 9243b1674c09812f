package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"emailtracker/internal/config"
	"emailtracker/internal/repository"
	"emailtracker/internal/store"
	"emailtracker/pkg/db"
	redisclient "emailtracker/pkg/redis"
)

// Storage holds the record store and the connections it was built on.
type Storage struct {
	Store *store.RecordStore
	// Redis is set when the backup driver needed it.
	Redis *redis.Client

	closers []func()
}

// OpenStorage builds the primary repository and backup store selected by cfg.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...store.Option) (*Storage, error) {
	s := &Storage{}

	primary, err := s.openPrimary(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	var backup repository.BackupStore
	switch cfg.Backup.Driver {
	case "redis":
		rdb, err := s.RedisClient(cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		backup = repository.NewRedisBackupStore(rdb)
	case "memory":
		backup = repository.NewMemoryBackupStore()
	default:
		backup = repository.NopBackupStore{}
	}

	if cfg.Backup.KeyPrefix != "" {
		opts = append([]store.Option{store.WithKeyPrefix(cfg.Backup.KeyPrefix)}, opts...)
	}
	s.Store = store.NewRecordStore(primary, backup, logger, opts...)

	logger.Info("Record store ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("backup", cfg.Backup.Driver),
	)
	return s, nil
}

func (s *Storage) openPrimary(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.RecordRepository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.NewConnection(cfg.DB, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		repo := repository.NewPostgresRecordRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case "sqlite":
		repo, err := repository.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = repo.Close() })
		return repo, nil
	case "memory":
		return repository.NewMemoryRecordRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// RedisClient connects on first use and reuses the client afterwards.
func (s *Storage) RedisClient(cfg *config.Config) (*redis.Client, error) {
	if s.Redis != nil {
		return s.Redis, nil
	}
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	s.Redis = rdb
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
