// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is applied to every connection on first use. All statements
// are idempotent, so concurrent opens of the same database converge.
const schema = `
	CREATE TABLE IF NOT EXISTS datasets (
		id            INTEGER PRIMARY KEY,
		name          TEXT NOT NULL,
		version       TEXT NOT NULL,
		manifest_hash TEXT NOT NULL UNIQUE,
		total_size    INTEGER NOT NULL,
		entry_count   INTEGER NOT NULL,
		manifest_json TEXT NOT NULL,
		registered_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name);
	CREATE INDEX IF NOT EXISTS idx_datasets_registered ON datasets(registered_at);
`

// pool is a fixed-size pool of SQLite connections with the registry's
// pragmas and schema applied. It is safe for concurrent use;
// individual connections are not, so each caller must take its own
// connection and put it back when done.
type pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// openPool opens the database file, creating it if needed. Connections
// are initialized lazily on first take.
func openPool(path string, size int, logger *slog.Logger) (*pool, error) {
	if size <= 0 {
		size = 4
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	logger.Debug("registry database opened", "path", path, "pool_size", size)
	return &pool{inner: inner, logger: logger, path: path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking registry connection: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// close closes all connections, blocking until borrowed ones return.
func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p.path, err)
	}
	p.logger.Debug("registry database closed", "path", p.path)
	return nil
}

// prepareConnection applies pragmas and the schema. Runs once per
// connection. WAL keeps readers unblocked while a registration is in
// flight; the busy timeout covers registrations racing from separate
// processes.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("applying registry schema: %w", err)
	}
	return nil
}
