package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/goalboard/internal/docstore"
	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/multistore"
	"github.com/hyperengineering/goalboard/internal/snapshot"
	"github.com/hyperengineering/goalboard/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

const problemBase = "https://goalboard.dev/errors/"

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized:          {problemBase + "unauthorized", "Unauthorized"},
	http.StatusBadRequest:            {problemBase + "bad-request", "Bad Request"},
	http.StatusNotFound:              {problemBase + "not-found", "Not Found"},
	http.StatusInternalServerError:   {problemBase + "internal-error", "Internal Server Error"},
	http.StatusUnprocessableEntity:   {problemBase + "validation-error", "Validation Error"},
	http.StatusServiceUnavailable:    {problemBase + "service-unavailable", "Service Unavailable"},
	http.StatusForbidden:             {problemBase + "forbidden", "Forbidden"},
	http.StatusRequestEntityTooLarge: {problemBase + "too-large", "Request Entity Too Large"},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = problemBase + "unknown"
		pt.title = http.StatusText(status)
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// MapStoreError converts domain errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		maxBytes  *http.MaxBytesError
		fieldErrs validation.Errors
	)
	switch {
	case errors.As(err, &maxBytes):
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Document body too large")
	case errors.Is(err, docstore.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Document not found")
	case errors.Is(err, docstore.ErrInvalidDocument):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "Document must be a JSON object")
	case errors.Is(err, docstore.ErrInvalidField) && errors.As(err, &fieldErrs):
		WriteProblemWithErrors(w, r, "Invalid field names", fieldErrs)
	case errors.Is(err, docstore.ErrInvalidField):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, docstore.ErrInvalidKey):
		WriteProblem(w, r, http.StatusBadRequest, "Invalid document path")
	case errors.Is(err, multistore.ErrInvalidNamespace):
		WriteProblem(w, r, http.StatusBadRequest, "Invalid application namespace")
	case errors.Is(err, docstore.ErrSnapshotNotFound):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot not yet generated")
	case errors.Is(err, snapshot.ErrNotConfigured):
		WriteProblem(w, r, http.StatusNotFound, "Snapshot storage not configured")
	case errors.Is(err, multistore.ErrManagerClosed):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Service shutting down")
	case errors.Is(err, identity.ErrMissingToken):
		WriteProblem(w, r, http.StatusBadRequest, "Missing token")
	case errors.Is(err, identity.ErrInvalidToken):
		WriteProblem(w, r, http.StatusUnauthorized, "Invalid token")
	case errors.Is(err, identity.ErrCustomTokensDisabled):
		WriteProblem(w, r, http.StatusForbidden, "Custom token sign-in is not enabled")
	default:
		// Never expose internal error details to client
		slog.Error("unmapped error", "component", "api", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
