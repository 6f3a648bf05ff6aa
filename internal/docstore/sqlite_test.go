package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

const testKey = "users/U1/pmDataMtid/monthlyGoals_V2"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "app", "goalboard.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Get Tests ---

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), testKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGet_InvalidKey(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "/users/x", "users/x/", "users//x"} {
		if _, err := s.Get(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

// --- Set Tests ---

func TestSet_CreatesAndOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a document written with two fields
	if _, err := s.Set(ctx, testKey, json.RawMessage(`{"activities":[],"userName":"Budi"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// When: overwritten with one field
	doc, err := s.Set(ctx, testKey, json.RawMessage(`{"activities":[1]}`))
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Then: the missing field is gone and the version bumped
	if doc.Version != 2 {
		t.Errorf("Version = %d, want 2", doc.Version)
	}
	got, _ := s.Get(ctx, testKey)
	if gjson.GetBytes(got.Data, "userName").Exists() {
		t.Errorf("userName survived full overwrite: %s", got.Data)
	}
}

func TestSet_RejectsNonObject(t *testing.T) {
	s := newTestStore(t)
	for _, body := range []string{`[]`, `"x"`, `{bad`, ``} {
		if _, err := s.Set(context.Background(), testKey, json.RawMessage(body)); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidDocument", body, err)
		}
	}
}

// --- Merge Tests ---

func TestMerge_LeavesUnnamedFieldsUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Set(ctx, testKey, json.RawMessage(`{"activities":[{"id":"visit"}],"userName":"Budi"}`))

	// When: merging only userName
	doc, err := s.Merge(ctx, testKey, json.RawMessage(`{"userName":"Sari"}`))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	// Then: activities are preserved
	if got := gjson.GetBytes(doc.Data, "activities.0.id").String(); got != "visit" {
		t.Errorf("activities.0.id = %q, want visit", got)
	}
	if got := gjson.GetBytes(doc.Data, "userName").String(); got != "Sari" {
		t.Errorf("userName = %q, want Sari", got)
	}
}

func TestMerge_ReplacesArraysWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Set(ctx, testKey, json.RawMessage(`{"activities":[{"id":"a"},{"id":"b"},{"id":"c"}]}`))

	doc, err := s.Merge(ctx, testKey, json.RawMessage(`{"activities":[{"id":"z"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	if n := len(gjson.GetBytes(doc.Data, "activities").Array()); n != 1 {
		t.Errorf("activities length = %d, want 1", n)
	}
}

func TestMerge_CreatesMissingDocument(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Merge(context.Background(), testKey, json.RawMessage(`{"userName":"Budi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != 1 {
		t.Errorf("Version = %d, want 1", doc.Version)
	}
}

func TestMerge_RejectsInvalidFieldNames(t *testing.T) {
	s := newTestStore(t)
	for _, body := range []string{`{"a.b":1}`, `{"*":1}`, `{"1x":1}`} {
		if _, err := s.Merge(context.Background(), testKey, json.RawMessage(body)); !errors.Is(err, ErrInvalidField) {
			t.Errorf("Merge(%s) error = %v, want ErrInvalidField", body, err)
		}
	}
}

func TestMerge_ConcurrentWritesAllApplied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, f := range fields {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			if _, err := s.Merge(ctx, testKey, json.RawMessage(`{"`+f+`":true}`)); err != nil {
				t.Errorf("Merge(%s) error = %v", f, err)
			}
		}(f)
	}
	wg.Wait()

	doc, err := s.Get(ctx, testKey)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fields {
		if !gjson.GetBytes(doc.Data, f).Bool() {
			t.Errorf("field %q lost under concurrent merge", f)
		}
	}
	if doc.Version != int64(len(fields)) {
		t.Errorf("Version = %d, want %d", doc.Version, len(fields))
	}
}

// --- Delete Tests ---

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Set(ctx, testKey, json.RawMessage(`{}`))

	if err := s.Delete(ctx, testKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, testKey); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, testKey); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

// --- Change Log Tests ---

func TestChangesSince_RecordsEveryWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := WithSource(context.Background(), "U1")

	s.Set(ctx, testKey, json.RawMessage(`{"userName":""}`))
	s.Merge(ctx, testKey, json.RawMessage(`{"userName":"Budi"}`))
	s.Delete(ctx, testKey)

	entries, err := s.ChangesSince(context.Background(), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	wantOps := []string{OperationSet, OperationMerge, OperationDelete}
	if len(entries) != len(wantOps) {
		t.Fatalf("entries = %d, want %d", len(entries), len(wantOps))
	}
	for i, e := range entries {
		if e.Operation != wantOps[i] {
			t.Errorf("entry %d operation = %q, want %q", i, e.Operation, wantOps[i])
		}
		if e.SourceID != "U1" {
			t.Errorf("entry %d source = %q, want U1", i, e.SourceID)
		}
		if e.Version != int64(i+1) {
			t.Errorf("entry %d version = %d, want %d", i, e.Version, i+1)
		}
	}

	after, _ := s.ChangesSince(context.Background(), entries[1].Sequence, 10)
	if len(after) != 1 || after[0].Operation != OperationDelete {
		t.Errorf("ChangesSince(seq 2) = %+v, want only delete", after)
	}
}

func TestCompactChangeLog_KeepsNewestPerDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	other := "users/U2/pmDataMtid/monthlyGoals_V2"

	s.Set(ctx, testKey, json.RawMessage(`{"userName":""}`))
	s.Merge(ctx, testKey, json.RawMessage(`{"userName":"Budi"}`))
	s.Merge(ctx, testKey, json.RawMessage(`{"userName":"Sari"}`))
	s.Set(ctx, other, json.RawMessage(`{}`))

	// When: everything so far is older than the cutoff
	deleted, err := s.CompactChangeLog(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("CompactChangeLog() error = %v", err)
	}

	// Then: only the newest entry of each document survives
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	entries, _ := s.ChangesSince(ctx, 0, 10)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Key != testKey || entries[0].Version != 3 {
		t.Errorf("kept entry = %+v, want version 3 of %s", entries[0], testKey)
	}

	// A cutoff in the past removes nothing.
	if n, _ := s.CompactChangeLog(ctx, time.Now().Add(-time.Hour)); n != 0 {
		t.Errorf("deleted with past cutoff = %d, want 0", n)
	}
}

// --- Snapshot Tests ---

func TestGenerateSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSnapshotPath(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("GetSnapshotPath() before generate error = %v, want ErrSnapshotNotFound", err)
	}

	s.Set(ctx, testKey, json.RawMessage(`{"userName":"Budi"}`))
	if err := s.GenerateSnapshot(ctx); err != nil {
		t.Fatalf("GenerateSnapshot() error = %v", err)
	}
	// Regenerating replaces the existing file.
	if err := s.GenerateSnapshot(ctx); err != nil {
		t.Fatalf("second GenerateSnapshot() error = %v", err)
	}

	path, err := s.GetSnapshotPath(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("snapshot file missing or empty: %v", err)
	}

	// The snapshot is a usable store.
	snap, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer snap.Close()
	doc, err := snap.Get(ctx, testKey)
	if err != nil || gjson.GetBytes(doc.Data, "userName").String() != "Budi" {
		t.Errorf("snapshot document = %v, %v", doc, err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DocumentCount != 1 || stats.LastSnapshot == nil {
		t.Errorf("Stats() = %+v", stats)
	}
}
