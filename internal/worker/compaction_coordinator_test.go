package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/goalboard/internal/multistore"
)

// mockCompactionStore implements CompactionCapableStore.
type mockCompactionStore struct {
	mu      sync.Mutex
	calls   int
	cutoff  time.Time
	deleted int64
	err     error
}

func (m *mockCompactionStore) CompactChangeLog(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cutoff = cutoff
	if m.err != nil {
		return 0, m.err
	}
	return m.deleted, nil
}

func (m *mockCompactionStore) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockCompactionEnumerator struct {
	ids    []string
	stores map[string]*mockCompactionStore
	getErr map[string]error
}

func newMockCompactionEnumerator(ids ...string) *mockCompactionEnumerator {
	m := &mockCompactionEnumerator{
		ids:    ids,
		stores: make(map[string]*mockCompactionStore),
		getErr: make(map[string]error),
	}
	for _, id := range ids {
		m.stores[id] = &mockCompactionStore{}
	}
	return m
}

func (m *mockCompactionEnumerator) ListStores(context.Context) ([]multistore.NamespaceInfo, error) {
	infos := make([]multistore.NamespaceInfo, len(m.ids))
	for i, id := range m.ids {
		infos[i] = multistore.NamespaceInfo{ID: id}
	}
	return infos, nil
}

func (m *mockCompactionEnumerator) GetCompactionStore(_ context.Context, app string) (CompactionCapableStore, error) {
	if err := m.getErr[app]; err != nil {
		return nil, err
	}
	return m.stores[app], nil
}

// --- CompactionCoordinator Tests ---

func TestCompactionCoordinator_UsesRetentionCutoff(t *testing.T) {
	enum := newMockCompactionEnumerator("a")
	c := NewCompactionCoordinator(enum, time.Hour, 48*time.Hour)

	before := time.Now()
	c.compactAll(context.Background())

	got := enum.stores["a"].cutoff
	want := before.Add(-48 * time.Hour)
	if got.Before(want.Add(-time.Second)) || got.After(want.Add(time.Second)) {
		t.Errorf("cutoff = %v, want about %v", got, want)
	}
}

func TestCompactionCoordinator_ContinuesPastFailures(t *testing.T) {
	enum := newMockCompactionEnumerator("a", "b", "c")
	enum.stores["a"].err = errors.New("database is locked")
	enum.getErr["b"] = errors.New("gone")
	enum.stores["c"].deleted = 7
	c := NewCompactionCoordinator(enum, time.Hour, time.Hour)

	c.compactAll(context.Background())

	if enum.stores["c"].getCalls() != 1 {
		t.Error("healthy namespace skipped after earlier failures")
	}
}

func TestCompactionCoordinator_WaitsForFirstInterval(t *testing.T) {
	enum := newMockCompactionEnumerator("a")
	runCoordinator(t, NewCompactionCoordinator(enum, 30*time.Millisecond, time.Hour))

	if n := enum.stores["a"].getCalls(); n != 0 {
		t.Errorf("calls right after start = %d, want 0", n)
	}
	deadline := time.After(2 * time.Second)
	for enum.stores["a"].getCalls() == 0 {
		select {
		case <-deadline:
			t.Fatal("no compaction after first interval")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestManagerAdapter_Integration_Compaction(t *testing.T) {
	mgr, err := multistore.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()
	ctx := context.Background()

	ns, _ := mgr.GetStore(ctx, "app-one")
	for _, body := range []string{`{"v":1}`, `{"v":2}`, `{"v":3}`} {
		if _, err := ns.Store.Merge(ctx, "users/U1/doc", json.RawMessage(body)); err != nil {
			t.Fatal(err)
		}
	}

	// Negative retention puts the cutoff in the future, so all but the newest go.
	c := NewCompactionCoordinator(NewManagerAdapter(mgr), time.Hour, -time.Minute)
	c.compactAll(ctx)

	entries, err := ns.Store.ChangesSince(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Version != 3 {
		t.Errorf("entries after compaction = %+v, want only version 3", entries)
	}
}
