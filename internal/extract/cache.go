package extract

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/archlens/archlens/internal/checksum"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS extractions (
	path        TEXT NOT NULL,
	variant     TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL,
	identifiers TEXT NOT NULL DEFAULT '[]',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (path, variant)
);
`

// DefaultCacheSize is the in-memory entry count used when none is configured.
const DefaultCacheSize = 4096

// Cache persists extraction results keyed by file path and content checksum.
// A bounded LRU sits in front of SQLite.
type Cache struct {
	conn *sql.DB
	mem  *lru.Cache[string, []string]
}

// OpenCache opens (or creates) the cache database at dsn.
func OpenCache(dsn string, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	mem, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("extract: create lru: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("extract: open cache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("extract: ping cache: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("extract: apply schema: %w", err)
	}
	return &Cache{conn: conn, mem: mem}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

func memKey(path, variant, sum string) string {
	return variant + "\x00" + path + "\x00" + sum
}

// Lookup returns the identifiers stored for path when its checksum matches.
func (c *Cache) Lookup(ctx context.Context, path, variant, sum string) ([]string, bool, error) {
	key := memKey(path, variant, sum)
	if ids, ok := c.mem.Get(key); ok {
		return ids, true, nil
	}

	var raw string
	err := c.conn.QueryRowContext(ctx,
		`SELECT identifiers FROM extractions WHERE path = ? AND variant = ? AND checksum = ?`,
		path, variant, sum).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("extract: lookup %s: %w", path, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false, fmt.Errorf("extract: decode %s: %w", path, err)
	}
	c.mem.Add(key, ids)
	return ids, true, nil
}

// Store records ids as the extraction of path at checksum sum, replacing any
// earlier entry for the same path and variant.
func (c *Cache) Store(ctx context.Context, path, variant, sum string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("extract: encode %s: %w", path, err)
	}
	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO extractions (path, variant, checksum, identifiers, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, variant) DO UPDATE SET
			checksum    = excluded.checksum,
			identifiers = excluded.identifiers,
			updated_at  = excluded.updated_at
	`, path, variant, sum, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("extract: store %s: %w", path, err)
	}
	c.mem.Add(memKey(path, variant, sum), ids)
	return nil
}

// Len returns the number of persisted entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.conn.QueryRowContext(ctx, `SELECT count(*) FROM extractions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("extract: count: %w", err)
	}
	return n, nil
}

type cached struct {
	inner   Extractor
	cache   *Cache
	variant string
	logger  *slog.Logger
}

// Cached wraps inner so that a file whose content checksum is already in
// cache is not parsed again. variant separates results of differently
// configured extractors. Cache failures fall back to inner.
func Cached(inner Extractor, cache *Cache, variant string, logger *slog.Logger) Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &cached{inner: inner, cache: cache, variant: variant, logger: logger}
}

func (c *cached) Extract(ctx context.Context, path string) ([]string, error) {
	sum, err := checksum.File(path)
	if err != nil {
		return c.inner.Extract(ctx, path)
	}

	ids, ok, err := c.cache.Lookup(ctx, path, c.variant, sum)
	if err != nil {
		c.logger.Warn("extract: cache lookup failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if ok {
		return ids, nil
	}

	ids, err = c.inner.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Store(ctx, path, c.variant, sum, ids); err != nil {
		c.logger.Warn("extract: cache store failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return ids, nil
}
