package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperengineering/goalboard/internal/api"
	"github.com/hyperengineering/goalboard/internal/bus"
	"github.com/hyperengineering/goalboard/internal/config"
	"github.com/hyperengineering/goalboard/internal/documents"
	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/snapshot"
	"github.com/hyperengineering/goalboard/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Configuration and logger
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	slog.Info("configuration loaded", "level", cfg.Log.Level, "dev_mode", cfg.DevMode)

	// 3. Namespace stores
	manager, err := multistore.NewManager(cfg.Stores.RootPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}()
	slog.Info("stores initialized", "root", cfg.Stores.RootPath)

	g, gctx := errgroup.WithContext(ctx)

	// 4. Change fan-out
	changes, err := newBus(gctx, g, cfg.Bus)
	if err != nil {
		return err
	}
	defer changes.Close()

	// 5. Identity and document services
	issuer, err := identity.NewIssuer(identity.Config{
		SessionSecret:     cfg.Auth.SessionSecret,
		CustomTokenSecret: cfg.Auth.CustomTokenSecret,
		CustomTokenIssuer: cfg.Auth.CustomTokenIssuer,
		TTL:               time.Duration(cfg.Auth.TokenTTL),
	})
	if err != nil {
		return err
	}
	docs := documents.NewService(manager, changes)

	uploader, err := snapshot.NewUploader(cfg.SnapshotStorage)
	if err != nil {
		return err
	}

	// 6. HTTP router
	handler := api.NewHandler(api.HandlerConfig{
		Documents:    docs,
		Stores:       manager,
		Issuer:       issuer,
		AdminKey:     cfg.Auth.AdminKey,
		Version:      Version,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Heartbeat:    time.Duration(cfg.Server.Heartbeat),
		Uploader:     uploader,
	})
	if cfg.Auth.AdminKey == "" {
		slog.Warn("admin routes disabled", "reason", "GOALBOARD_ADMIN_KEY not set")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 7. Background workers
	adapter := worker.NewManagerAdapter(manager)
	startWorker(gctx, g, "snapshot",
		worker.NewSnapshotCoordinator(adapter, time.Duration(cfg.Worker.SnapshotInterval), uploader).Run)
	if cfg.Worker.ChangeLogRetention > 0 {
		startWorker(gctx, g, "compaction",
			worker.NewCompactionCoordinator(adapter,
				time.Duration(cfg.Worker.CompactionInterval),
				time.Duration(cfg.Worker.ChangeLogRetention)).Run)
	}

	// 8. HTTP server
	g.Go(func() error {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 9. Block until a signal or a failed component
	<-gctx.Done()
	slog.Info("shutdown initiated")

	// 10. Graceful shutdown: drain requests, then wait for workers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	err = g.Wait()
	if err != nil {
		slog.Error("shutdown after failure", "error", err)
	}
	slog.Info("shutdown complete")
	return err
}

// newBus returns the in-process bus, or an AMQP bus consuming in g when a
// broker URL is configured.
func newBus(ctx context.Context, g *errgroup.Group, cfg config.BusConfig) (bus.Bus, error) {
	if cfg.AMQPURL == "" {
		slog.Info("change bus initialized", "kind", "memory")
		return bus.NewMemoryBus(), nil
	}
	b, err := bus.NewAMQPBus(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	g.Go(func() error { return b.Run(ctx) })
	slog.Info("change bus initialized", "kind", "amqp", "exchange", cfg.Exchange)
	return b, nil
}

// startWorker runs fn in g until ctx is cancelled. Workers log their own
// failures and never fail the group.
func startWorker(ctx context.Context, g *errgroup.Group, name string, fn func(ctx context.Context)) {
	g.Go(func() error {
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
		return nil
	})
}
