// Package storage opens the PostgreSQL connection backing the Pool Store,
// the same way the rest of the pack wraps database/sql + lib/pq behind a
// small Open helper instead of scattering sql.Open calls through cmd/.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PoolOptions configures the connection pool's sizing knobs: pool_min,
// pool_max, acquire_timeout_ms, idle_timeout_ms.
type PoolOptions struct {
	Min              int
	Max              int
	AcquireTimeoutMS int
	IdleTimeoutMS    int
}

// Open establishes a PostgreSQL connection using dsn, applies the pool
// sizing knobs, and verifies connectivity with a ping bounded by
// AcquireTimeoutMS. The returned *sql.DB must be closed by the caller.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage: postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}

	if opts.Max > 0 {
		db.SetMaxOpenConns(opts.Max)
	}
	if opts.Min > 0 {
		db.SetMaxIdleConns(opts.Min)
	}
	if opts.IdleTimeoutMS > 0 {
		db.SetConnMaxIdleTime(time.Duration(opts.IdleTimeoutMS) * time.Millisecond)
	}

	acquireTimeout := 10 * time.Second
	if opts.AcquireTimeoutMS > 0 {
		acquireTimeout = time.Duration(opts.AcquireTimeoutMS) * time.Millisecond
	}
	pingCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	return db, nil
}
