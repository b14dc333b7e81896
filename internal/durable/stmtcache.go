package durable

import (
	"database/sql"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// stmtCacheSize bounds the number of distinct prepared statements kept
// live at once. Dynamically built queries (ListEpisodes, ListPatterns,
// ListRelationshipsFor) each produce their own SQL text per distinct
// filter shape, but the shape space is small and bounded, so a fixed-size
// LRU never thrashes in practice.
const stmtCacheSize = 256

// cachedStmt pairs a prepared statement with a use counter, surfaced so
// callers can tell a hot statement from a one-off.
type cachedStmt struct {
	stmt *sql.Stmt
	uses atomic.Int64
}

// stmtCache caches *sql.Stmt by the exact SQL text used to prepare it,
// LRU-evicting and closing the least recently used statement once full.
type stmtCache struct {
	mu    sync.Mutex
	conn  *sql.DB
	cache *lru.Cache[string, *cachedStmt]
}

func newStmtCache(conn *sql.DB, size int) (*stmtCache, error) {
	if size <= 0 {
		size = 1
	}
	sc := &stmtCache{conn: conn}
	c, err := lru.NewWithEvict[string, *cachedStmt](size, func(_ string, cs *cachedStmt) {
		cs.stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	sc.cache = c
	return sc, nil
}

// prepare returns a cached *sql.Stmt for query, preparing and caching it on
// first use.
func (sc *stmtCache) prepare(query string) (*sql.Stmt, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if cs, ok := sc.cache.Get(query); ok {
		cs.uses.Add(1)
		return cs.stmt, nil
	}
	stmt, err := sc.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	cs := &cachedStmt{stmt: stmt}
	cs.uses.Add(1)
	sc.cache.Add(query, cs)
	return stmt, nil
}

// usage returns how many times prepare has handed out the statement for
// query, counting the call that first prepared it, or 0 if it isn't (or
// is no longer) cached.
func (sc *stmtCache) usage(query string) int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if cs, ok := sc.cache.Peek(query); ok {
		return cs.uses.Load()
	}
	return 0
}

func (sc *stmtCache) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache.Purge()
}

// exec runs a non-transactional Exec through the statement cache.
func (d *DB) exec(query string, args ...interface{}) (sql.Result, error) {
	stmt, err := d.stmts.prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.Exec(args...)
}

// query runs a non-transactional Query through the statement cache.
func (d *DB) query(query string, args ...interface{}) (*sql.Rows, error) {
	stmt, err := d.stmts.prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.Query(args...)
}

// queryRow runs a non-transactional QueryRow through the statement cache.
// If preparing fails, the error surfaces through the returned row's Scan,
// matching database/sql's own QueryRow contract.
func (d *DB) queryRow(query string, args ...interface{}) *sql.Row {
	stmt, err := d.stmts.prepare(query)
	if err != nil {
		return d.conn.QueryRow(query, args...)
	}
	return stmt.QueryRow(args...)
}

// txExec runs Exec against tx using a statement cached at the DB level,
// rebound to tx via tx.Stmt.
func (d *DB) txExec(tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	stmt, err := d.stmts.prepare(query)
	if err != nil {
		return nil, err
	}
	return tx.Stmt(stmt).Exec(args...)
}
