// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry keeps a queryable index of registered datasets in
// a SQLite database alongside the content store. The registry stores
// each dataset's full manifest keyed by its canonical hash, so
// registration is idempotent and a manifest can be recovered from the
// database alone. The content itself lives in the store; the registry
// only answers "what datasets exist and where are their manifests".
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/cast/lib/manifest"
)

// DefaultFileName is the registry database file name under a store
// root.
const DefaultFileName = "meta.db"

// DefaultPath returns the registry database path for a store root.
func DefaultPath(storeRoot string) string {
	return filepath.Join(storeRoot, DefaultFileName)
}

// ErrNotRegistered reports a lookup for a manifest hash the registry
// has never seen.
var ErrNotRegistered = errors.New("dataset not registered")

// Config holds the parameters for opening a registry.
type Config struct {
	// Path is the database file, created if absent. The parent
	// directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Defaults to a discarding
	// logger.
	Logger *slog.Logger

	// Now supplies registration timestamps. Defaults to [time.Now].
	Now func() time.Time
}

// Registry is a dataset index. Safe for concurrent use.
type Registry struct {
	pool   *pool
	logger *slog.Logger
	now    func() time.Time
}

// Record is one registered dataset.
type Record struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	ManifestHash string    `json:"manifest_hash"`
	TotalSize    int64     `json:"total_size"`
	EntryCount   int64     `json:"entry_count"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Open opens or creates the registry database.
func Open(cfg Config) (*Registry, error) {
	if cfg.Path == "" {
		return nil, errors.New("registry: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p, err := openPool(cfg.Path, cfg.PoolSize, logger)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return &Registry{pool: p, logger: logger, now: now}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (r *Registry) Close() error {
	return r.pool.close()
}

// Register records a dataset manifest. Registration is idempotent on
// the manifest's canonical hash: registering the same manifest again
// returns the existing record untouched. Distinct manifests may share
// a dataset name and version; the hash is what identifies a dataset.
func (r *Registry) Register(ctx context.Context, m *manifest.Manifest) (record Record, err error) {
	if err := m.Validate(); err != nil {
		return Record{}, fmt.Errorf("registry: %w", err)
	}
	manifestHash, err := m.CanonicalHash()
	if err != nil {
		return Record{}, fmt.Errorf("registry: %w", err)
	}
	encoded, err := m.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("registry: %w", err)
	}

	conn, err := r.pool.take(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("registry: %w", err)
	}
	defer r.pool.put(conn)

	// The immediate transaction serializes the lookup and insert
	// against other writers, including other processes sharing the
	// store root.
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Record{}, fmt.Errorf("registry: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	existing, err := findByHash(conn, manifestHash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotRegistered) {
		return Record{}, err
	}

	record = Record{
		Name:         m.Dataset.Name,
		Version:      m.Dataset.Version,
		ManifestHash: manifestHash,
		TotalSize:    m.TotalSize(),
		EntryCount:   int64(len(m.Contents)),
		RegisteredAt: r.now().UTC().Truncate(time.Second),
	}

	err = sqlitex.Execute(conn, `INSERT INTO datasets
		(name, version, manifest_hash, total_size, entry_count, manifest_json, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.Name,
				record.Version,
				record.ManifestHash,
				record.TotalSize,
				record.EntryCount,
				string(encoded),
				record.RegisteredAt.Unix(),
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("registry: inserting dataset: %w", err)
	}
	record.ID = conn.LastInsertRowID()

	r.logger.Info("dataset registered",
		"name", record.Name,
		"version", record.Version,
		"hash", record.ManifestHash,
		"entries", record.EntryCount,
		"total_size", record.TotalSize)

	return record, nil
}

// FindByName returns the datasets whose name contains needle,
// ordered by name, version, and registration time.
func (r *Registry) FindByName(ctx context.Context, needle string) ([]Record, error) {
	return r.selectRecords(ctx,
		selectColumns+` FROM datasets WHERE instr(name, ?) > 0
		ORDER BY name, version, registered_at`,
		needle)
}

// List returns every registered dataset, ordered by name, version,
// and registration time.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	return r.selectRecords(ctx,
		selectColumns+` FROM datasets ORDER BY name, version, registered_at`)
}

// ManifestByHash returns the stored manifest for a canonical hash.
// Returns [ErrNotRegistered] when the hash is unknown.
func (r *Registry) ManifestByHash(ctx context.Context, manifestHash string) (*manifest.Manifest, error) {
	conn, err := r.pool.take(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	defer r.pool.put(conn)

	var encoded string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT manifest_json FROM datasets WHERE manifest_hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{manifestHash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				encoded = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("registry: looking up %s: %w", manifestHash, err)
	}
	if !found {
		return nil, fmt.Errorf("registry: %s: %w", manifestHash, ErrNotRegistered)
	}

	m, err := manifest.Parse([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("registry: stored manifest for %s: %w", manifestHash, err)
	}
	return m, nil
}

const selectColumns = `SELECT id, name, version, manifest_hash, total_size, entry_count, registered_at`

func (r *Registry) selectRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	conn, err := r.pool.take(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	defer r.pool.put(conn)

	var records []Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: querying datasets: %w", err)
	}
	return records, nil
}

// findByHash looks up one record inside an already-held connection.
func findByHash(conn *sqlite.Conn, manifestHash string) (Record, error) {
	var record Record
	found := false
	err := sqlitex.Execute(conn,
		selectColumns+` FROM datasets WHERE manifest_hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{manifestHash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = scanRecord(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("registry: looking up %s: %w", manifestHash, err)
	}
	if !found {
		return Record{}, fmt.Errorf("registry: %s: %w", manifestHash, ErrNotRegistered)
	}
	return record, nil
}

func scanRecord(stmt *sqlite.Stmt) Record {
	return Record{
		ID:           stmt.ColumnInt64(0),
		Name:         stmt.ColumnText(1),
		Version:      stmt.ColumnText(2),
		ManifestHash: stmt.ColumnText(3),
		TotalSize:    stmt.ColumnInt64(4),
		EntryCount:   stmt.ColumnInt64(5),
		RegisteredAt: time.Unix(stmt.ColumnInt64(6), 0).UTC(),
	}
}
