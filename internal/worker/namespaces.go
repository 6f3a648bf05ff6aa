// Package worker runs periodic maintenance across application namespaces.
package worker

import (
	"context"

	"github.com/hyperengineering/goalboard/internal/multistore"
)

// SnapshotCapableStore represents a store that can generate snapshots.
type SnapshotCapableStore interface {
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// StoreEnumerator provides access to all namespaces for snapshotting.
type StoreEnumerator interface {
	ListStores(ctx context.Context) ([]multistore.NamespaceInfo, error)
	GetStore(ctx context.Context, app string) (SnapshotCapableStore, error)
}

// ManagerAdapter adapts multistore.Manager to the worker interfaces.
type ManagerAdapter struct {
	manager *multistore.Manager
}

// NewManagerAdapter creates an adapter for the given Manager.
func NewManagerAdapter(manager *multistore.Manager) *ManagerAdapter {
	return &ManagerAdapter{manager: manager}
}

// ListStores returns every namespace on disk.
func (a *ManagerAdapter) ListStores(ctx context.Context) ([]multistore.NamespaceInfo, error) {
	return a.manager.ListStores(ctx)
}

// GetStore returns the namespace's document store.
func (a *ManagerAdapter) GetStore(ctx context.Context, app string) (SnapshotCapableStore, error) {
	ns, err := a.manager.GetStore(ctx, app)
	if err != nil {
		return nil, err
	}
	return ns.Store, nil
}

// GetCompactionStore returns the namespace's document store.
func (a *ManagerAdapter) GetCompactionStore(ctx context.Context, app string) (CompactionCapableStore, error) {
	ns, err := a.manager.GetStore(ctx, app)
	if err != nil {
		return nil, err
	}
	return ns.Store, nil
}
