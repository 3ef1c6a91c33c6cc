package repository

import (
	"context"
	"fmt"

	"todo-sync/internal/config"
	"todo-sync/internal/database"
	"todo-sync/pkg/logger"
)

// Open builds the repository selected by cfg.StorageDriver. Postgres gets its schema migrated first.
func Open(ctx context.Context, cfg *config.Config) (TodoRepository, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Info(ctx, "Using in-memory repository")
		return NewMemory(), nil
	case config.DriverMongo:
		repo, err := DialMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "Using mongo repository", "database", cfg.MongoDatabase)
		return repo, nil
	case config.DriverPostgres, "":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
		if err := database.MigrateOrCreateSchema(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		db := database.DB(ctx)
		if db == nil {
			return nil, fmt.Errorf("database not available")
		}
		return NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
