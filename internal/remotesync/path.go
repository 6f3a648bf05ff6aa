package remotesync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/goalboard/internal/types"
)

// DefaultApp is the application namespace used when none is configured.
const DefaultApp = "default-pm-app-mtid"

// documentSuffix is the fixed data-version segment of every user document.
const documentSuffix = "pmDataMtid/monthlyGoals_V2"

var (
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrNoAuthenticatedUser = errors.New("no authenticated user")
	ErrInvalidStoragePath  = errors.New("invalid storage path")
	ErrLoadFailed          = errors.New("load failed")
	ErrSaveFailed          = errors.New("save failed")
)

// DocPath returns the document reference for a user's goals.
func DocPath(app, userID string) (types.DocumentRef, error) {
	if app == "" {
		app = DefaultApp
	}
	for _, part := range []string{app, userID} {
		if strings.TrimSpace(part) == "" || strings.ContainsAny(part, "/ \t\n") || part == "." || part == ".." {
			return types.DocumentRef{}, fmt.Errorf("%w: app %q user %q", ErrInvalidStoragePath, app, userID)
		}
	}
	return types.DocumentRef{
		App: app,
		Key: "users/" + userID + "/" + documentSuffix,
	}, nil
}

// UserPrefix returns the key prefix every document of userID starts with.
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}
