package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/imgvec/imgvec/internal/record"
	"github.com/imgvec/imgvec/internal/similarity"
)

// SQLite is the embedded backend. Each collection lives in its own
// table; every operation runs in its own short statement scope on the
// shared handle, so nothing holds a transaction across calls.
type SQLite struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Table shape for one collection. identity_key carries the UNIQUE
// constraint that backs the idempotent-ingest policy.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	identity_key TEXT NOT NULL UNIQUE,
	payload TEXT NOT NULL,
	vector BLOB NOT NULL,
	metadata TEXT NOT NULL
)`

// expectedColumns is the (name, type) shape EnsureSchema verifies
// against PRAGMA table_info. Any deviation is schema drift.
var expectedColumns = [][2]string{
	{"id", "INTEGER"},
	{"identity_key", "TEXT"},
	{"payload", "TEXT"},
	{"vector", "BLOB"},
	{"metadata", "TEXT"},
}

// OpenSQLite opens (creating if needed) the database at path. The
// special path ":memory:" yields an in-memory store.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, &BackendError{Op: "open", cause: err}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &BackendError{Op: "open", cause: err}
	}
	// The modernc driver is file-locked; a single connection keeps
	// ":memory:" databases from silently forking per pool connection.
	db.SetMaxOpenConns(1)

	return &SQLite{db: db, path: path}, nil
}

// NewSQLite wraps an already opened handle. The caller keeps ownership
// of the handle's lifecycle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureSchema provisions the collection table if missing and verifies
// that an existing table still has the expected shape.
func (s *SQLite) EnsureSchema(ctx context.Context, name string) error {
	if err := record.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schemaTemplate, name)); err != nil {
		return &BackendError{Op: "ensure schema", cause: err}
	}
	return s.checkShape(ctx, name)
}

// checkShape compares the live table layout against expectedColumns.
func (s *SQLite) checkShape(ctx context.Context, name string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return &BackendError{Op: "ensure schema", cause: err}
	}
	defer rows.Close()

	var cols [][2]string
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return &BackendError{Op: "ensure schema", cause: err}
		}
		cols = append(cols, [2]string{colName, strings.ToUpper(colType)})
	}
	if err := rows.Err(); err != nil {
		return &BackendError{Op: "ensure schema", cause: err}
	}

	if len(cols) != len(expectedColumns) {
		return &SchemaDriftError{Collection: name, Detail: fmt.Sprintf("expected %d columns, found %d", len(expectedColumns), len(cols))}
	}
	for i, want := range expectedColumns {
		if cols[i] != want {
			return &SchemaDriftError{Collection: name, Detail: fmt.Sprintf("column %d is %s %s, expected %s %s", i, cols[i][0], cols[i][1], want[0], want[1])}
		}
	}
	return nil
}

// Insert appends a record. INSERT OR IGNORE absorbs identity-key
// collisions; zero rows affected means the key already existed.
func (s *SQLite) Insert(ctx context.Context, name string, rec record.Record) (InsertOutcome, error) {
	if err := record.ValidateName(name); err != nil {
		return Inserted, err
	}
	if rec.IdentityKey == "" {
		return Inserted, &record.ValidationError{Reason: "identity key must not be empty"}
	}
	if len(rec.Vector) == 0 {
		return Inserted, &record.ValidationError{Reason: "cannot store an empty vector"}
	}

	metaText, err := record.EncodeMetadata(rec.Metadata)
	if err != nil {
		return Inserted, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (identity_key, payload, vector, metadata)
		VALUES (?, ?, ?, ?)
	`, name), rec.IdentityKey, rec.Payload, record.EncodeVector(rec.Vector), metaText)
	if err != nil {
		return Inserted, &BackendError{Op: "insert", cause: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Inserted, &BackendError{Op: "insert", cause: err}
	}
	if affected == 0 {
		return DuplicateIgnored, nil
	}
	return Inserted, nil
}

// ScanAll reads the entire collection in storage order. The exhaustive
// scan is acceptable because ranking itself is brute-force.
func (s *SQLite) ScanAll(ctx context.Context, name string) ([]record.Record, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, identity_key, payload, vector, metadata FROM %s ORDER BY id
	`, name))
	if err != nil {
		return nil, &BackendError{Op: "scan", cause: err}
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var (
			rec      record.Record
			blob     []byte
			metaText string
		)
		if err := rows.Scan(&rec.ID, &rec.IdentityKey, &rec.Payload, &blob, &metaText); err != nil {
			return nil, &BackendError{Op: "scan", cause: err}
		}
		if rec.Vector, err = record.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.IdentityKey, err)
		}
		if rec.Metadata, err = record.DecodeMetadata(metaText); err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.IdentityKey, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Op: "scan", cause: err}
	}
	return records, nil
}

// Query ranks the full collection against the request vector.
func (s *SQLite) Query(ctx context.Context, name string, req QueryRequest) (*record.ResultSet, error) {
	if len(req.Vector) == 0 {
		return nil, &record.ValidationError{Reason: "local query requires a query vector"}
	}

	candidates, err := s.ScanAll(ctx, name)
	if err != nil {
		return nil, err
	}

	return similarity.Rank(req.Vector, candidates, similarity.Options{
		TopN:      req.TopN,
		Threshold: req.Threshold,
		Filter:    req.Filter,
	})
}

// Drop destroys the collection table. A missing table is a no-op.
func (s *SQLite) Drop(ctx context.Context, name string) error {
	if err := record.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
		return &BackendError{Op: "drop", cause: err}
	}
	return nil
}

// EmbedsRemotely reports false: embeddings are computed caller-side.
func (s *SQLite) EmbedsRemotely() bool { return false }

// Count returns the number of records in the collection.
func (s *SQLite) Count(ctx context.Context, name string) (int, error) {
	if err := record.ValidateName(name); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&count); err != nil {
		return 0, &BackendError{Op: "count", cause: err}
	}
	return count, nil
}

// ListCollections returns the names of all collection tables.
func (s *SQLite) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, &BackendError{Op: "list", cause: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &BackendError{Op: "list", cause: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the underlying handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
