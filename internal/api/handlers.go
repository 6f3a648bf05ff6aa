package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/goalboard/internal/docstore"
	"github.com/hyperengineering/goalboard/internal/documents"
	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/observability"
	"github.com/hyperengineering/goalboard/internal/snapshot"
	"github.com/hyperengineering/goalboard/internal/types"
)

const (
	// DefaultMaxBodyBytes bounds document write bodies.
	DefaultMaxBodyBytes = 1 << 20
	// DefaultHeartbeat is the interval of SSE keep-alive comments.
	DefaultHeartbeat = 25 * time.Second
)

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Documents *documents.Service
	Stores    *multistore.Manager
	Issuer    *identity.Issuer
	// AdminKey protects the admin routes. Empty disables them.
	AdminKey     string
	Version      string
	MaxBodyBytes int64
	Heartbeat    time.Duration
	// Uploader hands out snapshot download links. Nil disables them.
	Uploader snapshot.Uploader
}

// Handler implements the API handlers
type Handler struct {
	docs      *documents.Service
	stores    *multistore.Manager
	issuer    *identity.Issuer
	adminKey  string
	version   string
	maxBody   int64
	heartbeat time.Duration
	uploader  snapshot.Uploader
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		docs:      cfg.Documents,
		stores:    cfg.Stores,
		issuer:    cfg.Issuer,
		adminKey:  cfg.AdminKey,
		version:   cfg.Version,
		maxBody:   cfg.MaxBodyBytes,
		heartbeat: cfg.Heartbeat,
		uploader:  cfg.Uploader,
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if h.heartbeat <= 0 {
		h.heartbeat = DefaultHeartbeat
	}
	if h.uploader == nil {
		h.uploader = snapshot.NoopUploader{}
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.stores.ListStores(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "action", "health", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Namespaces: len(namespaces),
	})
}

// documentRef resolves {app} and the wildcard key, and enforces that the key
// lies under the caller's users/{sub}/ prefix. It writes a problem and
// returns false on failure.
func (h *Handler) documentRef(w http.ResponseWriter, r *http.Request) (types.DocumentRef, bool) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusUnauthorized, "Missing or invalid session token")
		return types.DocumentRef{}, false
	}

	app := chi.URLParam(r, "app")
	if err := multistore.ValidateNamespace(app); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid application namespace")
		return types.DocumentRef{}, false
	}
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid document path")
		return types.DocumentRef{}, false
	}

	if !strings.HasPrefix(key, "users/"+claims.Subject+"/") {
		slog.Warn("foreign document access denied",
			"component", "api",
			"action", "authorize",
			"user_id", claims.Subject,
			"app", app,
			"key", key,
		)
		WriteProblem(w, r, http.StatusForbidden, "Document belongs to another user")
		return types.DocumentRef{}, false
	}
	return types.DocumentRef{App: app, Key: key}, true
}

// GetDocument handles GET /api/v1/apps/{app}/documents/*
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	snap, err := h.docs.Get(r.Context(), ref)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PutDocument handles PUT /api/v1/apps/{app}/documents/* (full overwrite).
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	h.writeDocument(w, r, docstore.OperationSet, h.docs.Set)
}

// PatchDocument handles PATCH /api/v1/apps/{app}/documents/* (shallow merge).
func (h *Handler) PatchDocument(w http.ResponseWriter, r *http.Request) {
	h.writeDocument(w, r, docstore.OperationMerge, h.docs.Merge)
}

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, op string,
	write func(context.Context, types.DocumentRef, json.RawMessage) (types.DocumentSnapshot, error),
) {
	ref, ok := h.documentRef(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if !json.Valid(body) {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON")
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	ctx := docstore.WithSource(r.Context(), claims.Subject)
	snap, err := write(ctx, ref, body)
	if err != nil {
		if !isClientError(err) {
			slog.Error("document write failed",
				"component", "api",
				"action", op,
				"path", ref.String(),
				"error", err,
			)
		}
		MapStoreError(w, r, err)
		return
	}
	observability.RecordWrite(op)

	slog.Debug("document written",
		"component", "api",
		"action", op,
		"path", ref.String(),
		"version", snap.Version,
	)
	writeJSON(w, http.StatusOK, snap)
}

func isClientError(err error) bool {
	return errors.Is(err, docstore.ErrInvalidDocument) ||
		errors.Is(err, docstore.ErrInvalidField) ||
		errors.Is(err, docstore.ErrInvalidKey)
}

// WatchDocument handles GET /api/v1/apps/{app}/watch/* as a server-sent event
// stream. Each change is sent as a "snapshot" event carrying a DocumentSnapshot.
func (h *Handler) WatchDocument(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	// Resolve the namespace before committing to a streaming response.
	if _, err := h.stores.GetStore(r.Context(), ref.App); err != nil {
		MapStoreError(w, r, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("streaming unsupported", "component", "api", "action", "watch", "error", err)
		return
	}

	done := observability.WatchStarted()
	defer done()

	snaps := make(chan types.DocumentSnapshot)
	errc := make(chan error, 1)
	go func() {
		errc <- h.docs.Watch(ctx, ref, func(s types.DocumentSnapshot) {
			select {
			case snaps <- s:
			case <-ctx.Done():
			}
		})
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	slog.Debug("watch opened", "component", "api", "action", "watch", "path", ref.String())
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errc:
			if err != nil {
				slog.Warn("watch ended", "component", "api", "action", "watch", "path", ref.String(), "error", err)
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", "watch closed")
				rc.Flush()
			}
			return
		case s := <-snaps:
			data, err := json.Marshal(s)
			if err != nil {
				slog.Error("encode snapshot event", "component", "api", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
