// Package store persists run results in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags the projector's sessions in pg_stat_activity.
const ApplicationName = "projector"

var (
	pool     *pgxpool.Pool
	poolErr  error
	poolOnce sync.Once
)

// ErrNoDatabaseURL is returned by InitDB when neither the settings nor the
// environment name a database.
var ErrNoDatabaseURL = errors.New("database url not set (settings database_url or DATABASE_URL)")

// InitDB opens the shared pool once and checks that the server answers. An
// empty url falls back to DATABASE_URL. maxConns of zero keeps the pgx
// default.
func InitDB(ctx context.Context, url string, maxConns int32) error {
	poolOnce.Do(func() {
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			poolErr = ErrNoDatabaseURL
			return
		}

		cfg, err := pgxpool.ParseConfig(url)
		if err != nil {
			poolErr = fmt.Errorf("parse database url: %w", err)
			return
		}
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
		if maxConns > 0 {
			cfg.MaxConns = maxConns
		}

		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			poolErr = fmt.Errorf("open database pool: %w", err)
			return
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			poolErr = fmt.Errorf("ping database: %w", err)
			return
		}
		pool = p
	})
	return poolErr
}

// GetPool returns the shared pool, nil before a successful InitDB.
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the shared pool.
func Close() {
	if pool != nil {
		pool.Close()
	}
}
