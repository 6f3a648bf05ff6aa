// Package app wires sign-in, document sync and the working activity list into
// the dashboard controller used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/export"
	"github.com/hyperengineering/goalboard/internal/remotesync"
	"github.com/hyperengineering/goalboard/internal/session"
	"github.com/hyperengineering/goalboard/internal/tracker"
	"github.com/hyperengineering/goalboard/internal/types"
)

// ErrUnknownActivity is returned by intents naming an activity outside the catalog.
var ErrUnknownActivity = errors.New("unknown activity")

// Publisher sends a report to an external spreadsheet.
type Publisher interface {
	Publish(ctx context.Context, r export.Report) error
}

// Options configures a Dashboard. Session and Syncer may be nil, in which
// case the dashboard runs on catalog defaults with a notice.
type Options struct {
	Catalog   *catalog.Catalog
	Session   *session.Session
	Syncer    *remotesync.Syncer
	Exporter  *export.Exporter
	Publisher Publisher
	// OnAuthenticated receives the session token after sign-in, for
	// transports that send it with each request.
	OnAuthenticated func(token string)
}

// Dashboard is the client controller.
type Dashboard struct {
	opts  Options
	store *tracker.Store

	mu      sync.Mutex
	notice  Notice
	userID  string
	writer  *remotesync.Writer
	sub     *remotesync.Subscription
	cancel  context.CancelFunc
	closed  bool
	changed chan struct{}
}

// New returns a dashboard showing catalog defaults.
func New(opts Options) *Dashboard {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	d := &Dashboard{opts: opts, changed: make(chan struct{}, 1)}
	d.store = tracker.New(opts.Catalog, tracker.SinkFunc(d.enqueue))
	return d
}

// Start signs in, subscribes to the user's document and waits for the first
// delivery. ctx bounds sign-in and the wait; the subscription lives until
// Close. Backend and sign-in failures leave the dashboard on defaults with a
// notice and are not returned; only ctx cancellation is.
func (d *Dashboard) Start(ctx context.Context) error {
	if !d.opts.Syncer.Available() || d.opts.Session == nil {
		d.fail(remotesync.ErrBackendUnavailable)
		return nil
	}

	userID, err := d.opts.Session.Resolve(ctx)
	if err != nil {
		d.fail(err)
		return nil
	}
	if d.opts.OnAuthenticated != nil {
		d.opts.OnAuthenticated(d.opts.Session.Token())
	}

	syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	syncer := d.opts.Syncer
	writer := remotesync.NewWriter(syncCtx, func(ctx context.Context, p types.Patch) error {
		return syncer.Save(ctx, userID, p)
	}, d.saved)

	first := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(first) }) }

	sub, err := syncer.Subscribe(syncCtx, userID,
		func(u remotesync.Update) {
			d.store.Replace(u.Activities, u.UserName)
			d.clearNotice()
			d.notify()
			signal()
		},
		func(err error) {
			d.fail(err)
			signal()
		},
	)
	if err != nil {
		writer.Close()
		cancel()
		d.fail(err)
		return nil
	}

	d.mu.Lock()
	d.userID = userID
	d.writer = writer
	d.sub = sub
	d.cancel = cancel
	d.mu.Unlock()
	go d.watchSubscription(sub)

	select {
	case <-first:
		return nil
	case <-sub.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchSubscription raises a load notice when the live feed ends before Close.
func (d *Dashboard) watchSubscription(sub *remotesync.Subscription) {
	<-sub.Done()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if !errors.Is(d.notice.Err, remotesync.ErrLoadFailed) {
		d.notice = noticeFor(fmt.Errorf("%w: live updates stopped", remotesync.ErrLoadFailed))
	}
	d.mu.Unlock()

	slog.Warn("document subscription ended", "component", "app", "action", "subscribe")
	d.notify()
}

// fail records err as the notice and falls back to catalog defaults.
func (d *Dashboard) fail(err error) {
	d.store.Reset()
	d.setNotice(noticeFor(err))
	d.notify()
	slog.Warn("dashboard degraded", "component", "app", "action", "start", "error", err)
}

// enqueue is the store's write-back sink. It runs with the store lock held.
func (d *Dashboard) enqueue(p types.Patch) {
	d.mu.Lock()
	w := d.writer
	if w == nil && d.notice.Empty() {
		d.notice = Notice{Err: remotesync.ErrNoAuthenticatedUser, Message: cannotSaveMessage}
	}
	d.mu.Unlock()

	if w != nil {
		w.Enqueue(p)
	}
	d.notify()
}

// saved reports a write-back result. Success only clears notices raised by
// earlier saves.
func (d *Dashboard) saved(_ types.Patch, err error) {
	d.mu.Lock()
	switch {
	case err != nil:
		d.notice = noticeFor(err)
	case errors.Is(d.notice.Err, remotesync.ErrSaveFailed),
		errors.Is(d.notice.Err, remotesync.ErrNoAuthenticatedUser):
		d.notice = Notice{}
	}
	d.mu.Unlock()
	d.notify()
}

func (d *Dashboard) setNotice(n Notice) {
	d.mu.Lock()
	d.notice = n
	d.mu.Unlock()
}

func (d *Dashboard) clearNotice() {
	d.setNotice(Notice{})
}

func (d *Dashboard) notify() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Changes signals after any state or notice change. Signals coalesce.
func (d *Dashboard) Changes() <-chan struct{} {
	return d.changed
}

// Notice returns the current banner.
func (d *Dashboard) Notice() Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notice
}

// UserID returns the signed-in user, or "" when running without a backend.
func (d *Dashboard) UserID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userID
}

// Activities returns a copy of the working list.
func (d *Dashboard) Activities() []types.Activity {
	return d.store.Activities()
}

// UserName returns the display name.
func (d *Dashboard) UserName() string {
	return d.store.UserName()
}

// SetTarget changes an activity's monthly target.
func (d *Dashboard) SetTarget(activityID string, target int) error {
	if !d.store.SetTarget(activityID, target) {
		return fmt.Errorf("%w: %s", ErrUnknownActivity, activityID)
	}
	return nil
}

// AddAchievement records a new achievement and returns it.
func (d *Dashboard) AddAchievement(activityID, date, description string) (types.Achievement, error) {
	if !d.opts.Catalog.Contains(activityID) {
		return types.Achievement{}, fmt.Errorf("%w: %s", ErrUnknownActivity, activityID)
	}
	rec := tracker.NewAchievement(date, description)
	if _, err := d.store.AddAchievement(activityID, rec); err != nil {
		return types.Achievement{}, err
	}
	return rec, nil
}

// DeleteAchievement removes a record, reporting whether it existed.
func (d *Dashboard) DeleteAchievement(activityID, recordID string) bool {
	return d.store.DeleteAchievement(activityID, recordID)
}

// RenameUser sets the display name, reporting whether it changed.
func (d *Dashboard) RenameUser(name string) (bool, error) {
	return d.store.SetUserName(name)
}

// Export renders the current working list.
func (d *Dashboard) Export() (export.File, error) {
	f, err := d.opts.Exporter.Export(d.store.Activities(), d.store.UserName())
	if err != nil {
		d.setNotice(noticeFor(err))
		d.notify()
		return export.File{}, err
	}
	return f, nil
}

// PublishSheets writes the current report to the configured spreadsheet.
func (d *Dashboard) PublishSheets(ctx context.Context) error {
	if d.opts.Publisher == nil {
		return export.ErrExportDependencyNotReady
	}
	return d.opts.Publisher.Publish(ctx, export.BuildReport(d.store.Activities(), d.store.UserName()))
}

// Flush waits for queued saves to finish.
func (d *Dashboard) Flush() {
	d.mu.Lock()
	w := d.writer
	d.mu.Unlock()
	if w != nil {
		w.Flush()
	}
}

// Close stops the subscription and drains queued saves.
func (d *Dashboard) Close() {
	d.mu.Lock()
	sub, w, cancel := d.sub, d.writer, d.cancel
	d.sub, d.writer, d.cancel = nil, nil, nil
	d.closed = true
	d.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if w != nil {
		w.Close()
	}
	if cancel != nil {
		cancel()
	}
}
