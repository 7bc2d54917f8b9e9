// Package store persists chunks in SQLite and ranks them with FTS5 BM25.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrCapacityExceeded is returned by Put once the store holds MaxChunks chunks.
	ErrCapacityExceeded = errors.New("store capacity exceeded")
	// ErrLocked is returned for writes to a sealed store or when SQLite reports
	// the database busy.
	ErrLocked = errors.New("store locked")
)

// Config describes where the store lives and how much it may hold.
type Config struct {
	Path        string        // File path, or ":memory:"
	MaxChunks   int           // 0 means unlimited
	BusyTimeout time.Duration // How long a write waits on another writer; default 5s
}

// DefaultBusyTimeout is used when Config.BusyTimeout is zero.
const DefaultBusyTimeout = 5 * time.Second

// Store is a caller-owned handle on a chunk database. Open it once, share it,
// then Seal and Close it on shutdown.
type Store struct {
	db        *sql.DB
	path      string
	maxChunks int

	mu     sync.RWMutex
	sealed bool
}

// Source summarizes the chunks stored for one ingested file.
type Source struct {
	Path       string `json:"path"`
	SourceFile string `json:"source_file"`
	SourceType string `json:"source_type"`
	Chunks     int    `json:"chunks"`
}

// Open creates or opens the database at cfg.Path and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", cfg.Path, busy.Milliseconds())
	if cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.Path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, path: cfg.Path, maxChunks: cfg.MaxChunks}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			uid         TEXT UNIQUE NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			label       TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL,
			source_file TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL DEFAULT '',
			path        TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			text,
			title,
			content=chunks,
			content_rowid=id,
			tokenize='porter unicode61'
		)`,

		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, text, title) VALUES (new.id, new.text, new.title);
		END`,

		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, text, title) VALUES ('delete', old.id, old.text, old.title);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Put appends one chunk. There is no deduplication. Writes through one handle
// are serialized; the capacity check and insert are a single statement, so
// writers on other handles cannot overshoot MaxChunks either.
func (s *Store) Put(ctx context.Context, c doctree.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return ErrLocked
	}

	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	limit := s.maxChunks
	if limit <= 0 {
		limit = -1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (uid, title, label, text, source_file, source_type, path, metadata)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE ? < 0 OR (SELECT COUNT(*) FROM chunks) < ?`,
		uuid.NewString(), c.Title, c.Label, c.Text,
		metaString(meta, "source_file"), metaString(meta, "source_type"), metaString(meta, "path"),
		string(raw), limit, limit,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", mapBusy(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: limit %d", ErrCapacityExceeded, s.maxChunks)
	}
	return nil
}

// Find returns up to k chunks matching any word of query, best first.
// A query without words matches nothing.
func (s *Store) Find(ctx context.Context, query string, k int) ([]doctree.Hit, error) {
	hits := []doctree.Hit{}
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return hits, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.text, c.title, c.label, c.metadata, rank
		 FROM chunks_fts
		 JOIN chunks c ON chunks_fts.rowid = c.id
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		match, k,
	)
	if err != nil {
		return nil, fmt.Errorf("FTS search: %w", mapBusy(err))
	}
	defer rows.Close()

	for rows.Next() {
		var h doctree.Hit
		var raw string
		var rank float64
		if err := rows.Scan(&h.Text, &h.Title, &h.Label, &raw, &rank); err != nil {
			return nil, fmt.Errorf("scanning FTS result: %w", err)
		}
		h.Metadata = map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &h.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata: %w", err)
			}
		}
		// bm25 rank is negative; larger scores are better.
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.count(ctx)
}

func (s *Store) count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", mapBusy(err))
	}
	return n, nil
}

// Sources lists every ingested file with its chunk count, ordered by path.
func (s *Store) Sources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, MAX(source_file), MAX(source_type), COUNT(*)
		 FROM chunks
		 GROUP BY path
		 ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", mapBusy(err))
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.Path, &src.SourceFile, &src.SourceType, &src.Chunks); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource removes every chunk ingested from path and reports how many
// were removed.
func (s *Store) DeleteSource(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return 0, ErrLocked
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("deleting source: %w", mapBusy(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Seal checkpoints the write-ahead log into the main database file and makes
// the handle read-only. Later writes return ErrLocked. Sealing twice is a no-op.
func (s *Store) Seal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return nil
	}
	if s.path != ":memory:" {
		if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("checkpointing wal: %w", mapBusy(err))
		}
	}
	s.sealed = true
	return nil
}

// Sealed reports whether Seal has been called.
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ftsQuery turns free text into an FTS5 expression that ORs every word as a
// quoted term, so operators and punctuation in user input cannot break it.
func ftsQuery(q string) string {
	words := wordRe.FindAllString(q, -1)
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + w + `"`
	}
	return strings.Join(terms, " OR ")
}

func metaString(meta map[string]any, key string) string {
	return doctree.FormatValue(meta[key])
}

// mapBusy tags SQLite busy/locked failures with ErrLocked.
func mapBusy(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	// Extended result codes keep the primary code in the low byte.
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return err
}
