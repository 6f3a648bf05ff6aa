package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateSnapshot writes a self-contained copy of the database with VACUUM INTO
// and atomically replaces the current snapshot.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	final := filepath.Join(s.snapshotDir, SnapshotFileName)
	tmp := final + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	quoted := strings.ReplaceAll(tmp, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// GetSnapshotPath returns the current snapshot path or ErrSnapshotNotFound.
func (s *SQLiteStore) GetSnapshotPath(ctx context.Context) (string, error) {
	path := filepath.Join(s.snapshotDir, SnapshotFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrSnapshotNotFound
		}
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	return path, nil
}
