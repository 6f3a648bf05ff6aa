// Package tracker holds the working activity list and the rules that mutate it.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/hyperengineering/goalboard/internal/validation"
	"github.com/oklog/ulid/v2"
)

// ErrValidationFailed is returned when a submitted achievement is rejected.
// The wrapped error is a validation.Errors describing each offending field.
var ErrValidationFailed = errors.New("validation failed")

// Sink receives write-back patches in mutation order.
type Sink interface {
	Enqueue(p types.Patch)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.Patch)

// Enqueue calls f(p).
func (f SinkFunc) Enqueue(p types.Patch) { f(p) }

type discardSink struct{}

func (discardSink) Enqueue(types.Patch) {}

// Store is the in-memory working activity list.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	catalog    *catalog.Catalog
	activities []types.Activity
	userName   string
	sink       Sink
}

// New returns a store seeded with catalog defaults. A nil sink discards patches.
func New(cat *catalog.Catalog, sink Sink) *Store {
	if sink == nil {
		sink = discardSink{}
	}
	return &Store{
		catalog:    cat,
		activities: cat.Defaults(),
		sink:       sink,
	}
}

// Catalog returns the catalog the store reconciles against.
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Activities returns a deep copy of the working list.
func (s *Store) Activities() []types.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.CloneActivities(s.activities)
}

// Activity returns a copy of the activity with id.
func (s *Store) Activity(id string) (types.Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.activities[i].Clone(), true
	}
	return types.Activity{}, false
}

// UserName returns the display name.
func (s *Store) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

// Document returns the current state in persisted shape.
func (s *Store) Document() types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Document{
		Activities: types.CloneActivities(s.activities),
		UserName:   s.userName,
	}
}

// SetTarget sets an activity's target, clamped to zero. It reports whether an
// activity with id exists.
func (s *Store) SetTarget(id string, target int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		slog.Debug("target for unknown activity ignored", "component", "tracker", "activity", id)
		return false
	}
	s.activities[i].Target = clampTarget(target)
	s.emitActivities()
	return true
}

// NewAchievement builds a record with a fresh id and a trimmed description.
// It does not validate.
func NewAchievement(date, description string) types.Achievement {
	return types.Achievement{
		ID:          ulid.Make().String(),
		Date:        strings.TrimSpace(date),
		Description: strings.TrimSpace(description),
	}
}

// AddAchievement appends record to the activity's achievements.
//
// The record is validated first; a failure returns an error wrapping
// ErrValidationFailed and leaves the store unchanged. Unknown activities and
// record ids already present are ignored. The returned bool reports whether the
// record was added.
func (s *Store) AddAchievement(activityID string, record types.Achievement) (bool, error) {
	record.Description = strings.TrimSpace(record.Description)
	if err := validation.ValidateAchievement(record.Date, record.Description); err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if strings.TrimSpace(record.ID) == "" {
		return false, fmt.Errorf("%w: %w", ErrValidationFailed,
			validation.Errors{{Field: "id", Message: "is required"}})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(activityID)
	if i < 0 {
		return false, nil
	}
	for _, r := range s.activities[i].Actual {
		if r.ID == record.ID {
			return false, nil
		}
	}
	s.activities[i].Actual = append(s.activities[i].Actual, record)
	s.emitActivities()
	return true, nil
}

// DeleteAchievement removes a record by id. It reports whether a record was removed.
func (s *Store) DeleteAchievement(activityID, recordID string) bool {
	if recordID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(activityID)
	if i < 0 {
		return false
	}
	actual := s.activities[i].Actual
	kept := make([]types.Achievement, 0, len(actual))
	for _, r := range actual {
		if r.ID != recordID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(actual) {
		return false
	}
	s.activities[i].Actual = kept
	s.emitActivities()
	return true
}

// SetUserName trims and stores a display name, reporting whether it changed.
func (s *Store) SetUserName(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateUserName(name); err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userName == name {
		return false, nil
	}
	s.userName = name
	s.sink.Enqueue(types.Patch{UserName: &name})
	return true, nil
}

// Reconcile replaces the working list with the reconciliation of remote.
// It does not write back.
func (s *Store) Reconcile(remote []types.RemoteActivity) []types.Activity {
	reconciled := Reconcile(s.catalog, remote)
	s.mu.Lock()
	s.activities = reconciled
	s.mu.Unlock()
	return types.CloneActivities(reconciled)
}

// Replace applies a delivered remote snapshot. The activities are reconciled
// again so the catalog invariants hold regardless of the source.
func (s *Store) Replace(activities []types.Activity, userName string) {
	reconciled := Reconcile(s.catalog, toRemote(activities))
	s.mu.Lock()
	s.activities = reconciled
	s.userName = userName
	s.mu.Unlock()
}

// Reset restores catalog defaults and clears the user name.
func (s *Store) Reset() {
	s.mu.Lock()
	s.activities = s.catalog.Defaults()
	s.userName = ""
	s.mu.Unlock()
}

// emitActivities enqueues the full activity list. Called with mu held so
// patches reach the sink in mutation order; Sink.Enqueue must not block.
func (s *Store) emitActivities() {
	s.sink.Enqueue(types.Patch{Activities: types.CloneActivities(s.activities)})
}

func (s *Store) indexOf(id string) int {
	for i, a := range s.activities {
		if a.ID == id {
			return i
		}
	}
	return -1
}
