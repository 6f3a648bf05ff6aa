// Package remotesync keeps the working activity list in step with a remote
// per-user document.
package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/tracker"
	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/tidwall/gjson"
)

// Backend is a remote document store with live change notification.
type Backend interface {
	// Watch calls fn with the current snapshot of ref and then once per change,
	// sequentially, until ctx is done (returning nil) or the feed fails.
	Watch(ctx context.Context, ref types.DocumentRef, fn func(types.DocumentSnapshot)) error
	// Set overwrites the document.
	Set(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error)
	// Merge writes the named top-level fields, leaving others untouched.
	Merge(ctx context.Context, ref types.DocumentRef, data json.RawMessage) (types.DocumentSnapshot, error)
}

// Update is a reconciled document delivered to subscribers.
type Update struct {
	Activities []types.Activity
	UserName   string
	Version    int64
	// Created is set when the delivery is a freshly written default document.
	Created bool
}

// Syncer bridges a Backend and the catalog's reconciliation rules.
type Syncer struct {
	backend Backend
	app     string
	catalog *catalog.Catalog
}

// New returns a Syncer. A nil backend yields ErrBackendUnavailable from every call.
func New(backend Backend, app string, cat *catalog.Catalog) *Syncer {
	if app == "" {
		app = DefaultApp
	}
	return &Syncer{backend: backend, app: app, catalog: cat}
}

// Available reports whether a backend is configured.
func (s *Syncer) Available() bool {
	return s != nil && s.backend != nil
}

// App returns the application namespace.
func (s *Syncer) App() string {
	return s.app
}

func (s *Syncer) ref(userID string) (types.DocumentRef, error) {
	if !s.Available() {
		return types.DocumentRef{}, ErrBackendUnavailable
	}
	if strings.TrimSpace(userID) == "" {
		return types.DocumentRef{}, ErrNoAuthenticatedUser
	}
	return DocPath(s.app, userID)
}

// DefaultDocument returns the document written for a user with no data.
func (s *Syncer) DefaultDocument() types.Document {
	return types.Document{Activities: s.catalog.Defaults(), UserName: ""}
}

// Decode reconciles a persisted document body. A missing or non-array
// activities field yields catalog defaults; a non-string userName yields "".
func (s *Syncer) Decode(data []byte) Update {
	remote, ok := types.DecodeRemoteActivities(gjson.GetBytes(data, "activities"))
	if !ok {
		remote = nil
	}
	return Update{
		Activities: tracker.Reconcile(s.catalog, remote),
		UserName:   types.DecodeUserName(data),
	}
}

// Subscription is a live document subscription.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops the subscription and waits for the feed goroutine to exit.
// No callback runs after it returns. It must not be called from a callback.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done
	})
}

// Done is closed when the subscription has ended for any reason.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Subscribe watches the user's document. Every notification is delivered to
// onUpdate after reconciliation; a missing document is first written with
// catalog defaults and delivered with Created set. Feed failures are reported
// to onError wrapped in ErrLoadFailed, after which the subscription ends.
func (s *Syncer) Subscribe(ctx context.Context, userID string, onUpdate func(Update), onError func(error)) (*Subscription, error) {
	ref, err := s.ref(userID)
	if err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		err := s.backend.Watch(ctx, ref, func(snap types.DocumentSnapshot) {
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, ref, snap, onUpdate, onError)
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("document subscription failed",
				"component", "remotesync",
				"action", "subscribe",
				"path", ref.String(),
				"error", err,
			)
			onError(fmt.Errorf("%w: %w", ErrLoadFailed, err))
		}
	}()

	slog.Debug("subscribed", "component", "remotesync", "action", "subscribe", "path", ref.String())
	return sub, nil
}

func (s *Syncer) handle(ctx context.Context, ref types.DocumentRef, snap types.DocumentSnapshot, onUpdate func(Update), onError func(error)) {
	if !snap.Exists {
		doc := s.DefaultDocument()
		body, err := json.Marshal(doc)
		if err != nil {
			onError(fmt.Errorf("%w: %w", ErrSaveFailed, err))
			return
		}
		// Defaults are delivered even when the write fails; the working list
		// stays usable and the error reaches the notice.
		written, err := s.backend.Set(ctx, ref, body)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			onError(fmt.Errorf("%w: create default document: %w", ErrSaveFailed, err))
		default:
			slog.Info("created default document",
				"component", "remotesync",
				"action", "create_default",
				"path", ref.String(),
			)
		}
		onUpdate(Update{
			Activities: doc.Activities,
			UserName:   doc.UserName,
			Version:    written.Version,
			Created:    true,
		})
		return
	}

	u := s.Decode(snap.Data)
	u.Version = snap.Version
	onUpdate(u)
}

// Save merge-writes patch into the user's document.
func (s *Syncer) Save(ctx context.Context, userID string, patch types.Patch) error {
	ref, err := s.ref(userID)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if _, err := s.backend.Merge(ctx, ref, body); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

// IsConnectivityError reports whether err is one of the notice-worthy sync failures.
func IsConnectivityError(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrNoAuthenticatedUser) ||
		errors.Is(err, ErrInvalidStoragePath) ||
		errors.Is(err, ErrLoadFailed) ||
		errors.Is(err, ErrSaveFailed)
}
