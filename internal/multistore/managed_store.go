package multistore

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperengineering/goalboard/internal/docstore"
)

const (
	dbFileName   = "goalboard.db"
	metaFileName = "meta.yaml"
)

// Namespace is an open document store for one application id.
type Namespace struct {
	ID       string
	Store    docstore.Store
	BasePath string

	mu        sync.Mutex
	meta      *NamespaceMeta
	metaDirty bool
}

// Touch records an access. Metadata is flushed on Close.
func (n *Namespace) Touch() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.meta.LastAccessed = time.Now().UTC()
	n.metaDirty = true
}

// Meta returns a copy of the namespace metadata.
func (n *Namespace) Meta() NamespaceMeta {
	n.mu.Lock()
	defer n.mu.Unlock()
	return *n.meta
}

func (n *Namespace) flushMeta() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.metaDirty {
		return nil
	}
	if err := saveMeta(filepath.Join(n.BasePath, metaFileName), n.meta); err != nil {
		return err
	}
	n.metaDirty = false
	return nil
}

// Close flushes metadata and closes the store.
func (n *Namespace) Close() error {
	if err := n.flushMeta(); err != nil {
		slog.Warn("failed to flush namespace metadata", "component", "multistore", "namespace", n.ID, "error", err)
	}
	return n.Store.Close()
}
