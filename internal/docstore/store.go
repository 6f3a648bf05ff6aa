// Package docstore persists JSON documents with shallow merge-writes and a change log.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no document exists at a key.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidDocument is returned when a write body is not a JSON object.
	ErrInvalidDocument = errors.New("document must be a JSON object")
	// ErrInvalidField is returned when a top-level field name cannot be merged.
	ErrInvalidField = errors.New("invalid field name")
	// ErrInvalidKey is returned for empty or malformed document keys.
	ErrInvalidKey = errors.New("invalid document key")
	// ErrSnapshotNotFound is returned when no snapshot has been generated yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Change log operations.
const (
	OperationSet    = "set"
	OperationMerge  = "merge"
	OperationDelete = "delete"
)

// Document is a stored JSON object.
type Document struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChangeEntry is one row of the append-only change log.
type ChangeEntry struct {
	Sequence  int64           `json:"sequence"`
	Key       string          `json:"key"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Version   int64           `json:"version"`
	SourceID  string          `json:"source_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats summarizes a store.
type Stats struct {
	DocumentCount int64      `json:"document_count"`
	LatestSeq     int64      `json:"latest_sequence"`
	LastSnapshot  *time.Time `json:"last_snapshot,omitempty"`
}

// Store defines the document storage contract.
type Store interface {
	Get(ctx context.Context, key string) (*Document, error)
	Set(ctx context.Context, key string, data json.RawMessage) (*Document, error)
	Merge(ctx context.Context, key string, fields json.RawMessage) (*Document, error)
	Delete(ctx context.Context, key string) error
	ChangesSince(ctx context.Context, afterSeq int64, limit int) ([]ChangeEntry, error)
	CompactChangeLog(ctx context.Context, cutoff time.Time) (int64, error)
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

type sourceKey struct{}

// WithSource tags writes made with ctx with a source id for the change log.
func WithSource(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceKey{}, sourceID)
}

func sourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}
