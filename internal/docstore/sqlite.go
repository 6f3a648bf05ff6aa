package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/goalboard/internal/validation"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	_ "modernc.org/sqlite"
)

// SnapshotFileName is the name of the current snapshot inside the snapshot directory.
const SnapshotFileName = "current.db"

// SQLiteStore is the SQLite-backed document store.
type SQLiteStore struct {
	db          *sql.DB
	snapshotDir string

	// writeMu serializes read-modify-write transactions. SQLite allows one
	// writer and a deferred transaction cannot upgrade past a newer commit.
	writeMu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at dbPath, applies pragmas and runs migrations.
// Snapshots are written to a "snapshots" directory next to the database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, snapshotDir: filepath.Join(dir, "snapshots")}, nil
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the document at key or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return getDocument(ctx, s.db, key)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, key string) (*Document, error) {
	var (
		doc                  Document
		data                 string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT key, data, version, created_at, updated_at
		FROM documents
		WHERE key = ?
	`, key).Scan(&doc.Key, &data, &doc.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	doc.Data = json.RawMessage(data)
	doc.CreatedAt = parseTime("created_at", createdAt)
	doc.UpdatedAt = parseTime("updated_at", updatedAt)
	return &doc, nil
}

// Set overwrites the whole document at key.
func (s *SQLiteStore) Set(ctx context.Context, key string, data json.RawMessage) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateObject(data); err != nil {
		return nil, err
	}
	return s.write(ctx, key, OperationSet, data, func(_ []byte) ([]byte, error) {
		return compact(data)
	})
}

// Merge writes each top-level field of fields into the document at key,
// leaving other fields untouched. Nested values are replaced, not merged.
// A missing document is created from fields.
func (s *SQLiteStore) Merge(ctx context.Context, key string, fields json.RawMessage) (*Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateObject(fields); err != nil {
		return nil, err
	}
	return s.write(ctx, key, OperationMerge, fields, func(current []byte) ([]byte, error) {
		return mergeFields(current, fields)
	})
}

// mergeFields applies a shallow merge of patch onto base.
func mergeFields(base []byte, patch json.RawMessage) ([]byte, error) {
	out := base
	if len(out) == 0 {
		out = []byte("{}")
	}
	var err error
	gjson.ParseBytes(patch).ForEach(func(k, v gjson.Result) bool {
		out, err = sjson.SetRawBytes(out, k.String(), []byte(v.Raw))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge fields: %w", err)
	}
	return compact(out)
}

// write runs a read-modify-write of a single document and appends a change log row.
func (s *SQLiteStore) write(ctx context.Context, key, op string, payload json.RawMessage, apply func(current []byte) ([]byte, error)) (*Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		current []byte
		version int64
		created = time.Now().UTC()
	)
	existing, err := getDocument(ctx, tx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		current = existing.Data
		version = existing.Version
		created = existing.CreatedAt
	}

	next, err := apply(current)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	version++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (key, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at
	`, key, string(next), version, created.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}

	if err := appendChange(ctx, tx, key, op, payload, version, sourceFrom(ctx), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &Document{
		Key:       key,
		Data:      json.RawMessage(next),
		Version:   version,
		CreatedAt: created,
		UpdatedAt: now,
	}, nil
}

// Delete removes the document at key. Deleting a missing document returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getDocument(ctx, tx, key)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := appendChange(ctx, tx, key, OperationDelete, nil, existing.Version+1, sourceFrom(ctx), time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Stats returns document count, latest change sequence and snapshot time.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	seq, err := s.LatestSequence(ctx)
	if err != nil {
		return nil, err
	}
	stats.LatestSeq = seq

	if info, err := os.Stat(filepath.Join(s.snapshotDir, SnapshotFileName)); err == nil {
		t := info.ModTime().UTC()
		stats.LastSnapshot = &t
	}
	return &stats, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") || strings.Contains(key, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func validateObject(data json.RawMessage) error {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return ErrInvalidDocument
	}
	var bad error
	gjson.ParseBytes(data).ForEach(func(k, _ gjson.Result) bool {
		if verr := validation.ValidateFieldName(k.String(), k.String()); verr != nil {
			bad = fmt.Errorf("%w: %w", ErrInvalidField, validation.Errors{*verr})
			return false
		}
		return true
	})
	return bad
}

func compact(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("compact document: %w", err)
	}
	return buf.Bytes(), nil
}

func parseTime(field, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("docstore: failed to parse timestamp", "field", field, "value", value, "error", err)
	}
	return t
}
