// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package cratedb stores crate metadata and usage counters in SQLite.
//
// Crate records are persisted as deterministic CBOR documents with a
// handful of columns extracted for indexing: creation time for the
// listing window, the search field for prefix matching, and the
// download counter so increments never rewrite the document. The
// package satisfies the crate.MetadataStore interface.
package cratedb

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema creates the metadata and usage tables. Applied per
// connection, idempotently.
const schema = `
	CREATE TABLE IF NOT EXISTS crates (
		id             TEXT PRIMARY KEY,
		owner_id       TEXT NOT NULL,
		created_at     INTEGER NOT NULL,
		status         TEXT NOT NULL,
		search_field   TEXT NOT NULL DEFAULT '',
		download_count INTEGER NOT NULL DEFAULT 0,
		doc            BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_crates_created ON crates(created_at);
	CREATE INDEX IF NOT EXISTS idx_crates_search ON crates(search_field);

	CREATE TABLE IF NOT EXISTS usage (
		caller_id    TEXT NOT NULL,
		month        TEXT NOT NULL,
		calls        INTEGER NOT NULL DEFAULT 0,
		bytes_stored INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (caller_id, month)
	);
`

// Config holds the parameters for opening a crate database.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist; the file is created on first open.
	// ":memory:" works for tests with PoolSize 1.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// max(runtime.NumCPU(), 4) when zero or negative. SQLite
	// serializes writes regardless, so extra connections only help
	// concurrent reads.
	PoolSize int

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// DB is a crate metadata store backed by a fixed-size pool of SQLite
// connections. Safe for concurrent use; individual connections are
// not shared between goroutines.
type DB struct {
	pool *sqlitex.Pool
	log  *slog.Logger
	path string
}

// Open opens the crate database, creating the file and schema if
// needed. The caller must Close the returned DB.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cratedb: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("cratedb: opening %s: %w", cfg.Path, err)
	}

	logger.Info("crate database opened", "path", cfg.Path, "pool_size", poolSize)
	return &DB{pool: pool, log: logger, path: cfg.Path}, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (db *DB) Close() error {
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("cratedb: closing %s: %w", db.path, err)
	}
	db.log.Info("crate database closed", "path", db.path)
	return nil
}

// prepareConnection applies the standard pragmas and ensures the
// schema. Runs once per pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	// WAL mode: concurrent readers, single writer, no reader blocking.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("cratedb: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("cratedb: applying schema: %w", err)
	}
	return nil
}

// take borrows a connection, wrapping the error with the operation
// name for context.
func (db *DB) take(ctx context.Context, op string) (*sqlite.Conn, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("cratedb: %s: %w", op, err)
	}
	return conn, nil
}
