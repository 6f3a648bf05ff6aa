// Package bus fans document change notifications out to live watchers.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hyperengineering/goalboard/internal/types"
)

// Bus delivers document snapshots to watchers of the same document.
type Bus interface {
	// Publish notifies watchers of ref that the document changed.
	Publish(ctx context.Context, snap types.DocumentSnapshot) error
	// Subscribe returns a channel of snapshots for ref and a cancel func.
	// The channel is closed after cancel or when the bus closes.
	Subscribe(ref types.DocumentRef) (<-chan types.DocumentSnapshot, func())
	Close() error
}

// MemoryBus is an in-process Bus.
//
// Each subscriber channel holds one pending snapshot. A newer snapshot replaces
// an undelivered one, so slow watchers skip intermediate states but always
// observe the latest.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[types.DocumentRef]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan types.DocumentSnapshot
}

// NewMemoryBus returns an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[types.DocumentRef]map[*subscriber]struct{})}
}

var _ Bus = (*MemoryBus)(nil)

// Publish delivers snap to every subscriber of snap.Ref without blocking.
func (b *MemoryBus) Publish(_ context.Context, snap types.DocumentSnapshot) error {
	b.deliver(snap)
	return nil
}

func (b *MemoryBus) deliver(snap types.DocumentSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[snap.Ref] {
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
			slog.Warn("dropped document change", "component", "bus", "ref", snap.Ref.String())
		}
	}
}

// Subscribe registers a watcher for ref.
func (b *MemoryBus) Subscribe(ref types.DocumentRef) (<-chan types.DocumentSnapshot, func()) {
	s := &subscriber{ch: make(chan types.DocumentSnapshot, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	if b.subs[ref] == nil {
		b.subs[ref] = make(map[*subscriber]struct{})
	}
	b.subs[ref][s] = struct{}{}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { b.remove(ref, s) })
	}
}

func (b *MemoryBus) remove(ref types.DocumentRef, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[ref]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, ref)
	}
	close(s.ch)
}

// Watchers returns the number of active subscriptions.
func (b *MemoryBus) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

// Close closes every subscriber channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			close(s.ch)
		}
	}
	b.subs = map[types.DocumentRef]map[*subscriber]struct{}{}
	return nil
}
