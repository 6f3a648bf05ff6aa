package documents

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/goalboard/internal/bus"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/tidwall/gjson"
)

var testRef = types.DocumentRef{App: "default-pm-app-mtid", Key: "users/U1/pmDataMtid/monthlyGoals_V2"}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, _ := newTestServiceWithBus(t)
	return svc
}

func newTestServiceWithBus(t *testing.T) (*Service, *bus.MemoryBus) {
	t.Helper()
	m, err := multistore.NewManager(filepath.Join(t.TempDir(), "ns"))
	if err != nil {
		t.Fatal(err)
	}
	b := bus.NewMemoryBus()
	t.Cleanup(func() {
		b.Close()
		m.Close()
	})
	return NewService(m, b), b
}

func TestService_GetMissingReportsNotExists(t *testing.T) {
	svc := newTestService(t)

	snap, err := svc.Get(context.Background(), testRef)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Exists || snap.Ref != testRef {
		t.Errorf("snapshot = %+v, want not exists", snap)
	}
}

func TestService_MergeKeepsOtherFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Set(ctx, testRef, json.RawMessage(`{"activities":[],"userName":"Budi"}`))
	snap, err := svc.Merge(ctx, testRef, json.RawMessage(`{"activities":[{"id":"visit"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	if gjson.GetBytes(snap.Data, "userName").String() != "Budi" {
		t.Errorf("userName lost: %s", snap.Data)
	}
	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}
}

func TestService_WatchDeliversInitialAndChanges(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan types.DocumentSnapshot, 8)
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, testRef, func(s types.DocumentSnapshot) { got <- s })
	}()

	// Given: the initial snapshot of a missing document
	first := waitSnap(t, got)
	if first.Exists {
		t.Fatalf("initial snapshot exists: %+v", first)
	}

	// When: the document is written and then deleted
	svc.Set(context.Background(), testRef, json.RawMessage(`{"userName":""}`))
	if s := waitSnap(t, got); !s.Exists || s.Version != 1 {
		t.Errorf("after set = %+v", s)
	}
	svc.Delete(context.Background(), testRef)
	if s := waitSnap(t, got); s.Exists {
		t.Errorf("after delete = %+v, want not exists", s)
	}

	// Then: cancelling ends the watch cleanly
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestService_WatchDropsOlderVersions(t *testing.T) {
	svc, b := newTestServiceWithBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given: a watcher that has seen version 2
	v1, err := svc.Set(context.Background(), testRef, json.RawMessage(`{"userName":"a"}`))
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan types.DocumentSnapshot, 8)
	go svc.Watch(ctx, testRef, func(s types.DocumentSnapshot) { got <- s })
	if s := waitSnap(t, got); s.Version != 1 {
		t.Fatalf("initial version = %d, want 1", s.Version)
	}
	svc.Set(context.Background(), testRef, json.RawMessage(`{"userName":"b"}`))
	if s := waitSnap(t, got); s.Version != 2 {
		t.Fatalf("second version = %d, want 2", s.Version)
	}

	// When: a late publish of version 1 arrives
	b.Publish(context.Background(), v1)

	// Then: it is not delivered
	select {
	case s := <-got:
		t.Errorf("delivered stale version %d after 2", s.Version)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStale(t *testing.T) {
	live := func(v int64) types.DocumentSnapshot { return types.DocumentSnapshot{Exists: true, Version: v} }
	missing := types.DocumentSnapshot{}

	tests := []struct {
		name string
		snap types.DocumentSnapshot
		last types.DocumentSnapshot
		want bool
	}{
		{"newer version", live(3), live(2), false},
		{"same version", live(2), live(2), true},
		{"older version", live(1), live(2), true},
		{"deleted", missing, live(2), false},
		{"recreated", live(1), missing, false},
		{"still missing", missing, missing, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stale(tt.snap, tt.last); got != tt.want {
				t.Errorf("stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_WatchInvalidNamespace(t *testing.T) {
	svc := newTestService(t)
	err := svc.Watch(context.Background(), types.DocumentRef{App: "Bad App", Key: "k"}, func(types.DocumentSnapshot) {})
	if err == nil {
		t.Error("Watch() with invalid namespace = nil, want error")
	}
}

func waitSnap(t *testing.T, ch <-chan types.DocumentSnapshot) types.DocumentSnapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return types.DocumentSnapshot{}
}
