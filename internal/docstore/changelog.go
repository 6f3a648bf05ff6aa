package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func appendChange(ctx context.Context, tx *sql.Tx, key, op string, payload json.RawMessage, version int64, sourceID string, at time.Time) error {
	var p any
	if len(payload) > 0 {
		p = string(payload)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO change_log (doc_key, operation, payload, version, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, op, p, version, sourceID, at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append change log: %w", err)
	}
	return nil
}

// ChangesSince returns change log entries with sequence > afterSeq, oldest first.
func (s *SQLiteStore) ChangesSince(ctx context.Context, afterSeq int64, limit int) ([]ChangeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, doc_key, operation, payload, version, source_id, created_at
		FROM change_log
		WHERE sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query change log: %w", err)
	}
	defer rows.Close()

	entries := make([]ChangeEntry, 0)
	for rows.Next() {
		var (
			e         ChangeEntry
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.Sequence, &e.Key, &e.Operation, &payload, &e.Version, &e.SourceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan change log entry: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.CreatedAt = parseTime("created_at", createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestSequence returns the highest change log sequence, or 0 when empty.
func (s *SQLiteStore) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM change_log`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// CompactChangeLog deletes change log entries recorded before cutoff. The
// newest entry of each document is always kept so its last operation stays
// visible. Returns the number of entries removed.
func (s *SQLiteStore) CompactChangeLog(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM change_log
		WHERE julianday(created_at) < julianday(?)
		  AND sequence NOT IN (SELECT MAX(sequence) FROM change_log GROUP BY doc_key)
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("compact change log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact change log: %w", err)
	}
	return n, nil
}
