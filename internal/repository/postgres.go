package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// upsertMetricSQL сохраняет последнее значение метрики производителя.
const upsertMetricSQL = `
	INSERT INTO sparkplug_metrics (producer, name, datatype, value, ts)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (producer, name) DO UPDATE
	SET datatype = EXCLUDED.datatype,
		value = EXCLUDED.value,
		ts = EXCLUDED.ts
`

// TxBeginner — источник транзакций; реализуется *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink периодически сохраняет последние значения метрик реестров в PostgreSQL.
//
// История значений не хранится: на пару (producer, name) приходится одна строка.
type PostgresSink struct {
	db     TxBeginner
	logger *zap.Logger
}

// NewPostgresSink создаёт sink поверх пула или любой реализации TxBeginner.
func NewPostgresSink(db TxBeginner, logger *zap.Logger) *PostgresSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSink{db: db, logger: logger}
}

// Sync записывает все метрики переданных реестров одной транзакцией.
//
// Временные ошибки соединения повторяются через config.RetryWithBackoff.
func (s *PostgresSink) Sync(ctx context.Context, registries ...*Registry) error {
	return config.RetryWithBackoff(ctx, func() error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var n int
		for _, reg := range registries {
			for _, m := range reg.Metrics() {
				var value any
				if !m.IsNull {
					value = m.ValueString()
				}
				if _, err := tx.Exec(ctx, upsertMetricSQL, reg.Producer(), m.Name, m.Datatype.String(), value, int64(m.Timestamp)); err != nil {
					return fmt.Errorf("failed to upsert metric %s/%s: %w", reg.Producer(), m.Name, err)
				}
				n++
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.logger.Debug("metrics synced to postgres", zap.Int("count", n))
		return nil
	})
}

// Postgres — обёртка над пулом соединений для проверки доступности БД.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres открывает пул соединений по DSN.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close закрывает пул.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping проверяет соединение с БД с таймаутом 2с.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}
