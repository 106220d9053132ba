package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HammerMeetNail/livebingo/internal/config"
)

// ErrSchemaMissing means the database answers but migrations have not
// created the documents table.
var ErrSchemaMissing = errors.New("documents table missing")

type PostgresDB struct {
	Pool *pgxpool.Pool
}

var (
	parsePGConfig = pgxpool.ParseConfig
	newPGPool     = pgxpool.NewWithConfig
	pingPGPool    = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
	closePGPool = func(pool *pgxpool.Pool) {
		pool.Close()
	}
	documentsTableExists = func(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT to_regclass('documents') IS NOT NULL`).Scan(&exists)
		return exists, err
	}
)

// NewPostgresDB opens a pool sized by cfg and waits for the first ping.
func NewPostgresDB(cfg config.DatabaseConfig) (*PostgresDB, error) {
	poolConfig, err := parsePGConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := newPGPool(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pingPGPool(ctx, pool); err != nil {
		closePGPool(pool)
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.Pool != nil {
		closePGPool(db.Pool)
	}
}

// Health reports whether the pool is reachable and the schema is in place.
func (db *PostgresDB) Health(ctx context.Context) error {
	if err := pingPGPool(ctx, db.Pool); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	exists, err := documentsTableExists(ctx, db.Pool)
	if err != nil {
		return fmt.Errorf("checking schema: %w", err)
	}
	if !exists {
		return ErrSchemaMissing
	}
	return nil
}
