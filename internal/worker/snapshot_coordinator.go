package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/goalboard/internal/observability"
	"github.com/hyperengineering/goalboard/internal/snapshot"
)

// SnapshotCoordinator generates snapshots for every namespace and optionally
// publishes them through an Uploader.
type SnapshotCoordinator struct {
	manager  StoreEnumerator
	uploader snapshot.Uploader
	interval time.Duration
}

// NewSnapshotCoordinator creates a coordinator. uploader may be nil.
func NewSnapshotCoordinator(manager StoreEnumerator, interval time.Duration, uploader snapshot.Uploader) *SnapshotCoordinator {
	return &SnapshotCoordinator{
		manager:  manager,
		uploader: uploader,
		interval: interval,
	}
}

// Run generates snapshots immediately and then every interval until ctx is done.
func (c *SnapshotCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.snapshotAll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.snapshotAll(ctx)
		}
	}
}

func (c *SnapshotCoordinator) snapshotAll(ctx context.Context) {
	namespaces, err := c.manager.ListStores(ctx)
	if err != nil {
		slog.Error("failed to list namespaces for snapshot generation",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "list_namespaces_failed",
			"error", err,
		)
		return
	}

	var succeeded, failed int
	for _, ns := range namespaces {
		if ctx.Err() != nil {
			return
		}
		if c.snapshotOne(ctx, ns.ID) {
			succeeded++
		} else {
			failed++
		}
	}

	if succeeded > 0 || failed > 0 {
		slog.Info("snapshot generation cycle completed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "cycle_complete",
			"total", len(namespaces),
			"succeeded", succeeded,
			"failed", failed,
		)
	}
}

// snapshotOne reports whether app's snapshot was generated. Upload failures
// leave the local snapshot valid and do not count as failure.
func (c *SnapshotCoordinator) snapshotOne(ctx context.Context, app string) bool {
	start := time.Now()
	store, err := c.manager.GetStore(ctx, app)
	if err != nil {
		slog.Warn("failed to open namespace for snapshot",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_failed",
			"app", app,
			"error", err,
		)
		return false
	}

	if err := store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_failed",
			"app", app,
			"error", err,
		)
		return false
	}
	observability.RecordSnapshot(app, time.Now())

	slog.Debug("snapshot generated",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"action", "snapshot_generated",
		"app", app,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if c.uploader != nil {
		c.upload(ctx, store, app)
	}
	return true
}

func (c *SnapshotCoordinator) upload(ctx context.Context, store SnapshotCapableStore, app string) {
	path, err := store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("failed to get snapshot path for upload",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_upload_failed",
			"app", app,
			"error", err,
		)
		return
	}

	if err := c.uploader.Upload(ctx, app, path); err != nil {
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"action", "snapshot_upload_failed",
			"app", app,
			"error", err,
		)
		return
	}

	slog.Info("snapshot uploaded",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"action", "snapshot_uploaded",
		"app", app,
	)
}
