package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/infrastructure/config"
)

// Pool wraps a pgx connection pool with the settings the engine needs. All
// repositories share one pool; transactions are started per operation.
type Pool struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// NewPool creates a connection pool from configuration and verifies
// connectivity before returning.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database pool established",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns),
	)

	return &Pool{Pool: pool, logger: logger}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.logger.Info("closing database pool")
	p.Pool.Close()
}

// RunTx implements TxRunner on the pool.
func (p *Pool) RunTx(ctx context.Context, fn func(q Querier) error) error {
	return WithTx(ctx, p.Pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// HealthCheck verifies the pool can reach the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(ctx)
}
