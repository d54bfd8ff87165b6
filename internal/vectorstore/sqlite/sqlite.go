// Package sqlite persists index entries in a SQLite file. Vectors are kept
// as little-endian float32 blobs and searched in memory after Load.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver

	"movierag/internal/domain"
	"movierag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// FileName is the database file inside the index directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	doc_id      INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL,
	metadata    TEXT NOT NULL,
	PRIMARY KEY (doc_id, chunk_index)
);`

// ErrCorrupt indicates persisted rows that cannot be decoded.
var ErrCorrupt = errors.New("sqlite index corrupt")

// Storage is a SQLite-backed vector store.
type Storage struct {
	dir  string
	path string

	mu        sync.RWMutex
	db        *sql.DB
	dimension int
	entries   []domain.IndexEntry
}

// NewStorage creates a store rooted at dir. The database is opened lazily.
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir, path: filepath.Join(dir, FileName)}
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) open(create bool) error {
	if s.db != nil {
		return nil
	}
	if !create {
		if _, err := os.Stat(s.path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("%w: applying schema: %v", ErrCorrupt, err)
	}
	s.db = db
	return nil
}

// Load opens an existing database and caches every entry. A missing file
// is reported as os.ErrNotExist; undecodable content as ErrCorrupt.
func (s *Storage) Load(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(false); err != nil {
		return 0, err
	}

	var dimText string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&dimText)
	if err != nil {
		return 0, fmt.Errorf("%w: reading dimension: %v", ErrCorrupt, err)
	}
	dim, err := strconv.Atoi(dimText)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("%w: bad dimension %q", ErrCorrupt, dimText)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, chunk_index, text, vector, metadata FROM entries ORDER BY rowid`)
	if err != nil {
		return 0, fmt.Errorf("%w: querying entries: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	var entries []domain.IndexEntry
	for rows.Next() {
		var e domain.IndexEntry
		var blob []byte
		var meta string
		if err := rows.Scan(&e.DocumentID, &e.ChunkIndex, &e.Text, &blob, &meta); err != nil {
			return 0, fmt.Errorf("%w: scanning entry: %v", ErrCorrupt, err)
		}
		if len(blob) != dim*4 {
			return 0, fmt.Errorf("%w: entry %s has %d vector bytes, want %d", ErrCorrupt, e.Key(), len(blob), dim*4)
		}
		e.Vector = bytesToFloat32Slice(blob)
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return 0, fmt.Errorf("%w: entry %s metadata: %v", ErrCorrupt, e.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s.dimension = dim
	s.entries = entries
	return len(entries), nil
}

// Reset empties the database and records the new dimension.
func (s *Storage) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(true); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dimension)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dimension = dimension
	s.entries = nil
	return nil
}

// Upsert writes entries in one transaction and adds them to the cache.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("sqlite store not initialised")
	}
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entries (doc_id, chunk_index, text, vector, metadata) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.DocumentID, e.ChunkIndex, e.Text, float32SliceToBytes(e.Vector), string(meta)); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.TopK(s.entries, vector, k, filter), nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close closes the database connection. The store can be reopened by Load
// or Reset.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
