// Package db opens the PostgreSQL pool used by the feature export.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions sizes the connection pool. A preparation run writes one table,
// so the defaults are small.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolOptions returns the pool sizing for a single export.
func DefaultPoolOptions() *PoolOptions {
	return &PoolOptions{
		MaxConns:        4,
		MinConns:        0,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// Validate checks the pool sizing.
func (o *PoolOptions) Validate() error {
	if o.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", o.MaxConns)
	}
	if o.MaxConns < o.MinConns {
		return fmt.Errorf("max connections (%d) must be >= min connections (%d)", o.MaxConns, o.MinConns)
	}
	return nil
}

// Connect creates a pool for connStr and verifies it with a ping.
// The caller is responsible for calling pool.Close() when done.
func Connect(ctx context.Context, connStr string, opts *PoolOptions) (*pgxpool.Pool, error) {
	if connStr == "" {
		return nil, fmt.Errorf("database not configured")
	}
	if opts == nil {
		opts = DefaultPoolOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool options: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = opts.MaxConns
	poolConfig.MinConns = opts.MinConns
	poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// HealthStatus is the result of Check.
type HealthStatus struct {
	Healthy bool          `json:"healthy" yaml:"healthy"`
	Latency time.Duration `json:"latency" yaml:"latency"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Check pings the pool and reports latency.
func Check(ctx context.Context, pool *pgxpool.Pool) *HealthStatus {
	if pool == nil {
		return &HealthStatus{Error: "pool is nil"}
	}

	start := time.Now()
	err := pool.Ping(ctx)
	status := &HealthStatus{Latency: time.Since(start), Healthy: err == nil}
	if err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
	}
	return status
}

// Close closes a pool if it is not nil.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
