// Package durable is the SQL-backed durable store: schema management and
// parameterized CRUD for episodes, patterns, heuristics, relationships,
// summaries, and embeddings. It owns no caching or pooling of its own —
// those are internal/cache and internal/pool's job, composed on top by
// internal/storage.
package durable

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/d-o-hub/memcore/internal/memcore"
)

//go:embed schema.sql
var schema string

// DB wraps a *sql.DB configured for the durable store's access pattern.
type DB struct {
	conn  *sql.DB
	stmts *stmtCache
}

// Open opens (creating if needed) the SQLite database at path, applies
// the pragmas the teacher's learning store uses for a single-writer
// embedded workload, and runs the idempotent schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("durable: failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite serializes writers regardless; one conn avoids SQLITE_BUSY churn

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("durable: failed to set pragma %q: %w", p, err)
		}
	}

	if err := InitializeSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	stmts, err := newStmtCache(conn, stmtCacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("durable: failed to build statement cache: %w", err)
	}

	return &DB{conn: conn, stmts: stmts}, nil
}

// InitializeSchema runs the embedded schema. It is idempotent: every
// statement is CREATE TABLE/INDEX IF NOT EXISTS.
func InitializeSchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("durable: failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the statement cache and the underlying connection.
func (d *DB) Close() error {
	d.stmts.close()
	return d.conn.Close()
}

// Conn exposes the underlying *sql.DB for internal/pool to wrap; durable
// itself never pools connections.
func (d *DB) Conn() *sql.DB { return d.conn }

func wrapNotFound(op string, err error) error {
	if err == sql.ErrNoRows {
		return memcore.NewNotFound(op, nil)
	}
	return memcore.NewStorage(op, err)
}
