package bus

import (
	"context"
	"testing"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
)

var testRef = types.DocumentRef{App: "app", Key: "users/u1/pmDataMtid/monthlyGoals_V2"}

func recv(t *testing.T, ch <-chan types.DocumentSnapshot) types.DocumentSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return types.DocumentSnapshot{}
}

func TestMemoryBus_DeliversToMatchingRef(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ch, cancel := b.Subscribe(testRef)
	defer cancel()
	other, cancelOther := b.Subscribe(types.DocumentRef{App: "app", Key: "users/u2/x"})
	defer cancelOther()

	b.Publish(context.Background(), types.DocumentSnapshot{Ref: testRef, Version: 1})

	if got := recv(t, ch); got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	select {
	case <-other:
		t.Error("watcher of a different document received a change")
	default:
	}
}

func TestMemoryBus_SlowWatcherGetsLatest(t *testing.T) {
	// Given: a watcher that does not read while three changes are published
	b := NewMemoryBus()
	defer b.Close()
	ch, cancel := b.Subscribe(testRef)
	defer cancel()

	for v := int64(1); v <= 3; v++ {
		b.Publish(context.Background(), types.DocumentSnapshot{Ref: testRef, Version: v})
	}

	// Then: it receives the latest version
	if got := recv(t, ch); got.Version != 3 {
		t.Errorf("Version = %d, want 3", got.Version)
	}
}

func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	b := NewMemoryBus()
	ch, cancel := b.Subscribe(testRef)

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
	if n := b.Watchers(); n != 0 {
		t.Errorf("Watchers() = %d, want 0", n)
	}
}

func TestMemoryBus_CloseClosesSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ch, cancel := b.Subscribe(testRef)
	defer cancel()

	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	late, _ := b.Subscribe(testRef)
	if _, ok := <-late; ok {
		t.Error("subscription after Close returned an open channel")
	}
}
