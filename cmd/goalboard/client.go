package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hyperengineering/goalboard/internal/app"
	"github.com/hyperengineering/goalboard/internal/bus"
	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/config"
	"github.com/hyperengineering/goalboard/internal/documents"
	"github.com/hyperengineering/goalboard/internal/export"
	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/preferences"
	"github.com/hyperengineering/goalboard/internal/remotesync"
	"github.com/hyperengineering/goalboard/internal/session"
	"github.com/hyperengineering/goalboard/internal/view"
	"github.com/spf13/cobra"
)

// client is a started dashboard plus the resources behind it.
type client struct {
	cfg       *config.Config
	dashboard *app.Dashboard
	renderer  *view.Renderer
	closers   []func()
}

// openClient loads config, connects the configured backend, signs in and
// waits for the first document delivery. Backend failures leave the
// dashboard on catalog defaults with a notice.
func openClient(cmd *cobra.Command, withPublisher bool) (*client, error) {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	c := &client{cfg: cfg, renderer: view.New(loadTheme(cfg))}

	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, conn.close)

	opts := app.Options{
		Catalog:  catalog.Default(),
		Syncer:   remotesync.New(conn.backend, cfg.Client.App, catalog.Default()),
		Exporter: export.NewExporter(export.XLSXRenderer{}),
	}
	if conn.provider != nil {
		var sopts []session.Option
		if cfg.Client.SessionCachePath != "" {
			sopts = append(sopts, session.WithCache(session.FileCache{Path: cfg.Client.SessionCachePath}))
		}
		opts.Session = session.New(conn.provider, cfg.Client.CustomToken, sopts...)
		opts.OnAuthenticated = conn.setToken
	}
	if withPublisher {
		pub, err := newPublisher(cmd.Context(), cfg.Export)
		if err != nil {
			c.close()
			return nil, err
		}
		opts.Publisher = pub
	}

	c.dashboard = app.New(opts)
	c.closers = append([]func(){c.dashboard.Close}, c.closers...)

	ctx, cancel := startContext(cmd.Context(), time.Duration(cfg.Client.RequestTimeout))
	defer cancel()
	if err := c.dashboard.Start(ctx); err != nil {
		c.close()
		return nil, fmt.Errorf("start dashboard: %w", err)
	}
	return c, nil
}

// startContext bounds sign-in and the first load by timeout, if set.
func startContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// close drains pending saves and releases the backend.
func (c *client) close() {
	if c.dashboard != nil {
		c.dashboard.Flush()
	}
	for _, fn := range c.closers {
		fn()
	}
	c.closers = nil
}

// render returns the board with the current notice.
func (c *client) render() string {
	d := c.dashboard
	return c.renderer.Board(d.UserName(), d.Activities(), d.Notice().Message)
}

// connection is the document backend selected by config.
type connection struct {
	backend  remotesync.Backend
	provider session.Provider
	setToken func(string)
	close    func()
}

func connect(cfg *config.Config) (*connection, error) {
	switch {
	case cfg.Client.Local:
		return connectLocal(cfg)
	case cfg.Client.BackendURL != "":
		hb := remotesync.NewHTTPBackend(cfg.Client.BackendURL, time.Duration(cfg.Client.RequestTimeout))
		slog.Debug("using remote backend", "component", "client", "url", cfg.Client.BackendURL)
		return &connection{backend: hb, provider: hb, setToken: hb.SetToken, close: func() {}}, nil
	default:
		slog.Debug("no backend configured", "component", "client")
		return &connection{close: func() {}}, nil
	}
}

// connectLocal serves documents in process from the namespace root.
func connectLocal(cfg *config.Config) (*connection, error) {
	manager, err := multistore.NewManager(cfg.Stores.RootPath)
	if err != nil {
		return nil, err
	}
	changes := bus.NewMemoryBus()

	// Tokens never leave the process, so any secret will do.
	secret := cfg.Auth.SessionSecret
	if len(secret) < 16 {
		secret = randomSecret()
	}
	issuer, err := identity.NewIssuer(identity.Config{
		SessionSecret:     secret,
		CustomTokenSecret: cfg.Auth.CustomTokenSecret,
		CustomTokenIssuer: cfg.Auth.CustomTokenIssuer,
		TTL:               time.Duration(cfg.Auth.TokenTTL),
	})
	if err != nil {
		changes.Close()
		manager.Close()
		return nil, err
	}

	slog.Debug("using local backend", "component", "client", "root", cfg.Stores.RootPath)
	return &connection{
		backend:  documents.NewService(manager, changes),
		provider: identity.LocalProvider{Issuer: issuer},
		setToken: func(string) {},
		close: func() {
			changes.Close()
			if err := manager.Close(); err != nil {
				slog.Error("store close error", "component", "client", "error", err)
			}
		},
	}, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// newPublisher returns a Sheets publisher, or nil when Sheets is not configured.
func newPublisher(ctx context.Context, cfg config.ExportConfig) (app.Publisher, error) {
	if cfg.SheetsCredentialsFile == "" || cfg.SpreadsheetID == "" {
		return nil, nil
	}
	creds, err := os.ReadFile(cfg.SheetsCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	pub, err := export.NewSheetsPublisher(ctx, creds, cfg.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// loadTheme returns the stored theme, falling back to light on read errors.
func loadTheme(cfg *config.Config) preferences.Theme {
	theme, err := preferences.NewStore(cfg.Preferences.Path).Theme()
	if err != nil {
		slog.Warn("read preferences", "component", "client", "error", err)
		return preferences.ThemeLight
	}
	return theme
}
