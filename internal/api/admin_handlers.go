package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/goalboard/internal/docstore"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/observability"
	"github.com/hyperengineering/goalboard/internal/types"
)

const (
	// DefaultChangeLimit is the page size of the change log endpoint.
	DefaultChangeLimit = 500
	// MaxChangeLimit caps the requested page size.
	MaxChangeLimit = 1000
)

// NamespacesResponse lists the application namespaces on disk.
type NamespacesResponse struct {
	Namespaces []multistore.NamespaceInfo `json:"namespaces"`
	Total      int                        `json:"total"`
}

// NamespaceStatsResponse describes one namespace.
type NamespaceStatsResponse struct {
	ID    string         `json:"id"`
	Stats docstore.Stats `json:"stats"`
}

// ChangesResponse is one page of a namespace change log.
type ChangesResponse struct {
	Entries        []docstore.ChangeEntry `json:"entries"`
	LastSequence   int64                  `json:"last_sequence"`
	LatestSequence int64                  `json:"latest_sequence"`
	HasMore        bool                   `json:"has_more"`
}

type changesRequest struct {
	After int64
	Limit int
}

func (h *Handler) namespace(w http.ResponseWriter, r *http.Request) (*multistore.Namespace, bool) {
	app := chi.URLParam(r, "app")
	if err := multistore.ValidateNamespace(app); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid application namespace")
		return nil, false
	}
	ns, err := h.stores.GetStore(r.Context(), app)
	if err != nil {
		MapStoreError(w, r, err)
		return nil, false
	}
	return ns, true
}

// ListNamespaces handles GET /api/v1/admin/apps
func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	infos, err := h.stores.ListStores(r.Context())
	if err != nil {
		slog.Error("list namespaces failed", "component", "api", "action", "list_namespaces", "error", err)
		MapStoreError(w, r, err)
		return
	}
	if infos == nil {
		infos = []multistore.NamespaceInfo{}
	}
	writeJSON(w, http.StatusOK, NamespacesResponse{Namespaces: infos, Total: len(infos)})
}

// NamespaceStats handles GET /api/v1/admin/apps/{app}
func (h *Handler) NamespaceStats(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}
	stats, err := ns.Store.Stats(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NamespaceStatsResponse{ID: ns.ID, Stats: *stats})
}

// Changes handles GET /api/v1/admin/apps/{app}/changes?after=N&limit=M
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	req, err := parseChangesRequest(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := ns.Store.ChangesSince(r.Context(), req.After, req.Limit)
	if err != nil {
		slog.Error("change log query failed",
			"component", "api",
			"action", "changes_failed",
			"app", ns.ID,
			"after", req.After,
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to read change log")
		return
	}
	stats, err := ns.Store.Stats(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to read change log")
		return
	}

	lastSeq := req.After
	if len(entries) > 0 {
		lastSeq = entries[len(entries)-1].Sequence
	}
	resp := ChangesResponse{
		Entries:        entries,
		LastSequence:   lastSeq,
		LatestSequence: stats.LatestSeq,
		HasMore:        len(entries) == req.Limit && lastSeq < stats.LatestSeq,
	}
	if resp.Entries == nil {
		resp.Entries = []docstore.ChangeEntry{}
	}
	writeJSON(w, http.StatusOK, resp)

	slog.Info("change log served",
		"component", "api",
		"action", "changes",
		"app", ns.ID,
		"after", req.After,
		"entries_returned", len(entries),
		"has_more", resp.HasMore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// parseChangesRequest reads after (required) and limit (optional) from the query.
func parseChangesRequest(r *http.Request) (changesRequest, error) {
	var req changesRequest

	afterStr := r.URL.Query().Get("after")
	if afterStr == "" {
		return req, fmt.Errorf("missing required query parameter: after")
	}
	after, err := strconv.ParseInt(afterStr, 10, 64)
	if err != nil {
		return req, fmt.Errorf("invalid after parameter: must be an integer")
	}
	if after < 0 {
		return req, fmt.Errorf("invalid after parameter: must be >= 0")
	}
	req.After = after

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		req.Limit = DefaultChangeLimit
		return req, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return req, fmt.Errorf("invalid limit parameter: must be an integer")
	}
	if limit < 1 {
		return req, fmt.Errorf("invalid limit parameter: must be >= 1")
	}
	req.Limit = min(limit, MaxChangeLimit)
	return req, nil
}

// Snapshot handles GET /api/v1/admin/apps/{app}/snapshot
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}
	path, err := ns.Store.GetSnapshotPath(r.Context())
	if err != nil {
		if errors.Is(err, docstore.ErrSnapshotNotFound) {
			w.Header().Set("Retry-After", "60")
		}
		MapStoreError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("open snapshot failed", "component", "api", "action", "snapshot", "app", ns.ID, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to read snapshot")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to read snapshot")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ns.ID+".db"))
	http.ServeContent(w, r, ns.ID+".db", info.ModTime(), f)
}

// SnapshotURLResponse is a time-limited snapshot download link.
type SnapshotURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SnapshotURL handles GET /api/v1/admin/apps/{app}/snapshot/url
func (h *Handler) SnapshotURL(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	if err := multistore.ValidateNamespace(app); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid application namespace")
		return
	}
	link, expiry, err := h.uploader.PresignedURL(r.Context(), app)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotURLResponse{URL: link, ExpiresAt: expiry.UTC()})
}

// DeleteDocument handles DELETE /api/v1/admin/apps/{app}/documents/*
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	if err := multistore.ValidateNamespace(app); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid application namespace")
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid document path")
		return
	}
	ref := types.DocumentRef{App: app, Key: key}

	if err := h.docs.Delete(docstore.WithSource(r.Context(), "admin"), ref); err != nil {
		MapStoreError(w, r, err)
		return
	}
	observability.RecordWrite(docstore.OperationDelete)

	slog.Info("document deleted",
		"component", "api",
		"action", "delete",
		"path", ref.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}
