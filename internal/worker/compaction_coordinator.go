package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/goalboard/internal/multistore"
)

// CompactionCapableStore prunes its change log.
type CompactionCapableStore interface {
	// CompactChangeLog removes entries older than cutoff, keeping the newest per document.
	CompactChangeLog(ctx context.Context, cutoff time.Time) (int64, error)
}

// CompactionStoreEnumerator provides access to namespaces for compaction.
type CompactionStoreEnumerator interface {
	ListStores(ctx context.Context) ([]multistore.NamespaceInfo, error)
	GetCompactionStore(ctx context.Context, app string) (CompactionCapableStore, error)
}

// CompactionCoordinator trims change logs to a retention window.
type CompactionCoordinator struct {
	manager   CompactionStoreEnumerator
	interval  time.Duration
	retention time.Duration
}

// NewCompactionCoordinator creates a compaction coordinator.
func NewCompactionCoordinator(manager CompactionStoreEnumerator, interval, retention time.Duration) *CompactionCoordinator {
	return &CompactionCoordinator{
		manager:   manager,
		interval:  interval,
		retention: retention,
	}
}

// Run blocks until ctx is cancelled. The first pass waits one interval so
// startup is not slowed by a full scan.
func (c *CompactionCoordinator) Run(ctx context.Context) {
	slog.Info("compaction coordinator started",
		"component", "worker",
		"worker", "compaction-coordinator",
		"interval", c.interval.String(),
		"retention", c.retention.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("compaction coordinator stopped",
				"component", "worker",
				"worker", "compaction-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.compactAll(ctx)
		}
	}
}

// compactAll continues past individual namespace failures.
func (c *CompactionCoordinator) compactAll(ctx context.Context) {
	namespaces, err := c.manager.ListStores(ctx)
	if err != nil {
		slog.Error("failed to list namespaces for compaction",
			"component", "worker",
			"worker", "compaction-coordinator",
			"error", err,
		)
		return
	}

	var failed int
	var totalDeleted int64
	for _, ns := range namespaces {
		if ctx.Err() != nil {
			return
		}
		deleted, ok := c.compactOne(ctx, ns.ID)
		if !ok {
			failed++
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 || failed > 0 {
		slog.Info("compaction cycle completed",
			"component", "worker",
			"worker", "compaction-coordinator",
			"namespaces_total", len(namespaces),
			"namespaces_failed", failed,
			"entries_deleted", totalDeleted,
		)
	}
}

func (c *CompactionCoordinator) compactOne(ctx context.Context, app string) (int64, bool) {
	start := time.Now()
	store, err := c.manager.GetCompactionStore(ctx, app)
	if err != nil {
		slog.Warn("failed to open namespace for compaction",
			"component", "worker",
			"worker", "compaction-coordinator",
			"app", app,
			"error", err,
		)
		return 0, false
	}

	deleted, err := store.CompactChangeLog(ctx, start.Add(-c.retention))
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		slog.Error("compaction failed for namespace",
			"component", "worker",
			"worker", "compaction-coordinator",
			"app", app,
			"error", err,
		)
		return 0, false
	}

	if deleted > 0 {
		slog.Info("compaction completed for namespace",
			"component", "worker",
			"worker", "compaction-coordinator",
			"app", app,
			"entries_deleted", deleted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return deleted, true
}
