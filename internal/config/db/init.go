// Package db подключается к PostgreSQL и применяет миграции схемы хранилища последних значений.
package db

import (
	"context"
	"fmt"

	"github.com/RoGogDBD/sparkplug-b/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultMigrationsPath — каталог миграций относительно рабочего каталога процесса.
const DefaultMigrationsPath = "file://./migrations"

// InitDB открывает пул соединений и применяет миграции, повторяя временные ошибки соединения.
func InitDB(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var pool *pgxpool.Pool
	err := config.RetryWithBackoff(ctx, func() error {
		var innerErr error
		pool, innerErr = pgxpool.New(ctx, dsn)
		if innerErr != nil {
			return innerErr
		}
		return pool.Ping(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db after retries: %w", err)
	}

	logger.Info("connected to PostgreSQL")

	if err := config.RetryWithBackoff(ctx, func() error {
		return RunMigrations(dsn, DefaultMigrationsPath, logger)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations after retries: %w", err)
	}

	return pool, nil
}
