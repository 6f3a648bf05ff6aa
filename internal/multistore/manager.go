// Package multistore opens one document store per application namespace.
package multistore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hyperengineering/goalboard/internal/docstore"
)

// Manager lazily opens and caches namespace stores under a root directory.
type Manager struct {
	rootPath string

	mu     sync.RWMutex
	stores map[string]*Namespace
	closed bool
}

// NewManager creates a manager rooted at rootPath, creating the directory.
// A leading "~/" is expanded to the user's home directory.
func NewManager(rootPath string) (*Manager, error) {
	if strings.HasPrefix(rootPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		rootPath = filepath.Join(home, rootPath[2:])
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("create namespaces root directory: %w", err)
	}
	return &Manager{
		rootPath: rootPath,
		stores:   make(map[string]*Namespace),
	}, nil
}

// GetStore returns the namespace store for id, creating it on first use.
func (m *Manager) GetStore(ctx context.Context, id string) (*Namespace, error) {
	if err := ValidateNamespace(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if ns, ok := m.stores[id]; ok {
		m.mu.RUnlock()
		ns.Touch()
		return ns, nil
	}
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if ns, ok := m.stores[id]; ok {
		ns.Touch()
		return ns, nil
	}

	ns, err := m.open(id)
	if err != nil {
		return nil, err
	}
	m.stores[id] = ns

	slog.Info("namespace loaded",
		"component", "multistore",
		"action", "namespace_loaded",
		"namespace", id,
	)
	ns.Touch()
	return ns, nil
}

func (m *Manager) open(id string) (*Namespace, error) {
	base := filepath.Join(m.rootPath, id)
	metaPath := filepath.Join(base, metaFileName)

	meta, err := loadMeta(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(base, 0755); err != nil {
			return nil, fmt.Errorf("create namespace directory: %w", err)
		}
		meta = newNamespaceMeta()
		if err := saveMeta(metaPath, meta); err != nil {
			return nil, fmt.Errorf("write namespace metadata: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load namespace metadata: %w", err)
	}

	st, err := docstore.NewSQLiteStore(filepath.Join(base, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open namespace %q: %w", id, err)
	}
	return &Namespace{ID: id, Store: st, BasePath: base, meta: meta}, nil
}

// ListStores returns every namespace on disk, sorted by id.
func (m *Manager) ListStores(ctx context.Context) ([]NamespaceInfo, error) {
	entries, err := os.ReadDir(m.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read namespaces directory: %w", err)
	}

	result := make([]NamespaceInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || ValidateNamespace(entry.Name()) != nil {
			continue
		}
		base := filepath.Join(m.rootPath, entry.Name())
		meta, err := loadMeta(filepath.Join(base, metaFileName))
		if err != nil {
			slog.Warn("skipping namespace directory", "component", "multistore", "path", base, "error", err)
			continue
		}
		info := NamespaceInfo{ID: entry.Name(), Created: meta.Created, LastAccessed: meta.LastAccessed}
		if st, err := os.Stat(filepath.Join(base, dbFileName)); err == nil {
			info.SizeBytes = st.Size()
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// LoadedIDs returns the ids of currently open namespaces.
func (m *Manager) LoadedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.stores))
	for id := range m.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes all open namespaces. Later GetStore calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	var errs []error
	for id, ns := range m.stores {
		if err := ns.Close(); err != nil {
			slog.Error("error closing namespace", "component", "multistore", "namespace", id, "error", err)
			errs = append(errs, err)
		}
	}
	m.stores = map[string]*Namespace{}
	return errors.Join(errs...)
}
