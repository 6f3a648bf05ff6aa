// Package documents serves namespaced JSON documents with change notification.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hyperengineering/goalboard/internal/bus"
	"github.com/hyperengineering/goalboard/internal/docstore"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/types"
)

// ErrWatchClosed is returned by Watch when the change feed ends before ctx.
var ErrWatchClosed = errors.New("document watch closed")

// StoreProvider resolves a namespace to its open store.
type StoreProvider interface {
	GetStore(ctx context.Context, id string) (*multistore.Namespace, error)
}

// Service reads and writes documents and publishes every change to a bus.
type Service struct {
	stores StoreProvider
	bus    bus.Bus

	// publishMu keeps publish order equal to commit order.
	publishMu sync.Mutex
}

// NewService returns a Service over stores, publishing on b.
func NewService(stores StoreProvider, b bus.Bus) *Service {
	return &Service{stores: stores, bus: b}
}

func (s *Service) store(ctx context.Context, app string) (docstore.Store, error) {
	ns, err := s.stores.GetStore(ctx, app)
	if err != nil {
		return nil, err
	}
	return ns.Store, nil
}

// Get returns the current snapshot of ref. A missing document is reported
// with Exists false rather than an error.
func (s *Service) Get(ctx context.Context, ref types.DocumentRef) (types.DocumentSnapshot, error) {
	st, err := s.store(ctx, ref.App)
	if err != nil {
		return types.DocumentSnapshot{}, err
	}
	doc, err := st.Get(ctx, ref.Key)
	if errors.Is(err, docstore.ErrNotFound) {
		return types.DocumentSnapshot{Ref: ref}, nil
	}
	if err != nil {
		return types.DocumentSnapshot{}, err
	}
	return toSnapshot(ref, doc), nil
}

// Set overwrites ref with data.
func (s *Service) Set(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error) {
	return s.write(ctx, ref, func(st docstore.Store) (*docstore.Document, error) {
		return st.Set(ctx, ref.Key, data)
	})
}

// Merge shallow-merges the top-level fields of data into ref.
func (s *Service) Merge(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error) {
	return s.write(ctx, ref, func(st docstore.Store) (*docstore.Document, error) {
		return st.Merge(ctx, ref.Key, data)
	})
}

// Delete removes ref and notifies watchers that it no longer exists.
func (s *Service) Delete(ctx context.Context, ref types.DocumentRef) error {
	st, err := s.store(ctx, ref.App)
	if err != nil {
		return err
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if err := st.Delete(ctx, ref.Key); err != nil {
		return err
	}
	s.publish(ctx, types.DocumentSnapshot{Ref: ref})
	return nil
}

func (s *Service) write(ctx context.Context, ref types.DocumentRef, fn func(docstore.Store) (*docstore.Document, error)) (types.DocumentSnapshot, error) {
	st, err := s.store(ctx, ref.App)
	if err != nil {
		return types.DocumentSnapshot{}, err
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	doc, err := fn(st)
	if err != nil {
		return types.DocumentSnapshot{}, err
	}
	snap := toSnapshot(ref, doc)
	s.publish(ctx, snap)
	return snap, nil
}

func (s *Service) publish(ctx context.Context, snap types.DocumentSnapshot) {
	if err := s.bus.Publish(ctx, snap); err != nil {
		slog.Error("publish document change failed",
			"component", "documents",
			"action", "publish",
			"path", snap.Ref.String(),
			"error", err,
		)
	}
}

// Watch calls fn with the current snapshot of ref and then with every change
// until ctx is done. It returns nil when ctx ends and an error otherwise.
// Calls to fn are sequential.
func (s *Service) Watch(ctx context.Context, ref types.DocumentRef, fn func(types.DocumentSnapshot)) error {
	if _, err := s.store(ctx, ref.App); err != nil {
		return err
	}

	// Subscribe before reading so no change between the read and the
	// subscription is missed.
	ch, cancel := s.bus.Subscribe(ref)
	defer cancel()

	last, err := s.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("read initial snapshot: %w", err)
	}
	fn(last)

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return ErrWatchClosed
			}
			if stale(snap, last) {
				continue
			}
			last = snap
			fn(snap)
		}
	}
}

// stale reports whether snap adds nothing over last. Publishes from other
// replicas can arrive late, so an older version of a live document is dropped.
func stale(snap, last types.DocumentSnapshot) bool {
	if snap.Exists != last.Exists {
		return false
	}
	return !snap.Exists || snap.Version <= last.Version
}

func toSnapshot(ref types.DocumentRef, doc *docstore.Document) types.DocumentSnapshot {
	return types.DocumentSnapshot{
		Ref:       ref,
		Exists:    true,
		Version:   doc.Version,
		Data:      doc.Data,
		UpdatedAt: doc.UpdatedAt,
	}
}
