package e2e

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hyperengineering/goalboard/internal/api"
	"github.com/hyperengineering/goalboard/internal/app"
	"github.com/hyperengineering/goalboard/internal/bus"
	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/documents"
	"github.com/hyperengineering/goalboard/internal/export"
	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/remotesync"
	"github.com/hyperengineering/goalboard/internal/session"
	"github.com/hyperengineering/goalboard/internal/types"
)

const (
	testApp          = "default-pm-app-mtid"
	testCustomSecret = "e2e-custom-token-secret"
)

// --- In-Process Server ---

type server struct {
	*httptest.Server
	root string
}

// startServer runs the full API over a temp namespace root with the
// in-process bus.
func startServer(t *testing.T) *server {
	t.Helper()
	root := filepath.Join(t.TempDir(), "apps")
	stores, err := multistore.NewManager(root)
	if err != nil {
		t.Fatal(err)
	}
	issuer, err := identity.NewIssuer(identity.Config{
		SessionSecret:     "e2e-session-secret-0123456789",
		CustomTokenSecret: testCustomSecret,
		TTL:               time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	changes := bus.NewMemoryBus()
	h := api.NewHandler(api.HandlerConfig{
		Documents: documents.NewService(stores, changes),
		Stores:    stores,
		Issuer:    issuer,
		Version:   "e2e",
		Heartbeat: 100 * time.Millisecond,
	})
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(func() {
		changes.Close()
		srv.Close()
		stores.Close()
	})
	return &server{Server: srv, root: root}
}

// changeLogRow is one persisted change.
type changeLogRow struct {
	Sequence  int64
	DocKey    string
	Operation string
	SourceID  string
}

// changeLog reads the namespace change log straight from SQLite.
func (s *server) changeLog(t *testing.T, app string) []changeLogRow {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(s.root, app, "goalboard.db"))
	if err != nil {
		t.Fatalf("open namespace DB: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT sequence, doc_key, operation, source_id FROM change_log ORDER BY sequence`)
	if err != nil {
		t.Fatalf("query change log: %v", err)
	}
	defer rows.Close()

	var out []changeLogRow
	for rows.Next() {
		var r changeLogRow
		if err := rows.Scan(&r.Sequence, &r.DocKey, &r.Operation, &r.SourceID); err != nil {
			t.Fatalf("scan change log: %v", err)
		}
		out = append(out, r)
	}
	return out
}

// customToken mints an externally issued token naming uid.
func customToken(t *testing.T, uid string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uid}).SignedString([]byte(testCustomSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// --- Dashboard Clients ---

// newDashboard starts a dashboard against baseURL. An empty token signs in
// anonymously.
func newDashboard(t *testing.T, baseURL, token string) *app.Dashboard {
	t.Helper()
	backend := remotesync.NewHTTPBackend(baseURL, 5*time.Second)
	d := app.New(app.Options{
		Catalog:         catalog.Default(),
		Session:         session.New(backend, token),
		Syncer:          remotesync.New(backend, testApp, catalog.Default()),
		Exporter:        export.NewExporter(export.XLSXRenderer{}),
		OnAuthenticated: backend.SetToken,
	})

	t.Cleanup(d.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := d.Notice(); !n.Empty() {
		t.Fatalf("dashboard started degraded: %s (%v)", n.Message, n.Err)
	}
	return d
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func activity(d *app.Dashboard, id string) types.Activity {
	for _, a := range d.Activities() {
		if a.ID == id {
			return a
		}
	}
	return types.Activity{}
}
