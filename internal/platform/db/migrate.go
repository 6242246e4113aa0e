package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// NewMigrator builds a goose provider over the migrations in fsys.
func NewMigrator(sqlDB *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("platform/db: migrations: %w", err)
	}
	return provider, nil
}

// Migrate applies the pending migrations of fsys through the pool and
// reports how many ran.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := NewMigrator(sqlDB, fsys)
	if err != nil {
		return 0, err
	}
	results, err := provider.Up(ctx)
	for _, res := range results {
		if res.Error != nil {
			continue
		}
		logger.Info("migration applied",
			slog.Int64("version", res.Source.Version),
			slog.String("file", res.Source.Path),
			slog.Duration("took", res.Duration))
	}
	if err != nil {
		return 0, fmt.Errorf("platform/db: migrate: %w", err)
	}
	return len(results), nil
}
