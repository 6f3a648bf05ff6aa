package tracker

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/hyperengineering/goalboard/internal/validation"
)

// recordingSink captures every enqueued patch.
type recordingSink struct {
	mu      sync.Mutex
	patches []types.Patch
}

func (r *recordingSink) Enqueue(p types.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
}

func (r *recordingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func (r *recordingSink) Last() types.Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patches[len(r.patches)-1]
}

func newTestStore(t *testing.T) (*Store, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return New(catalog.Default(), sink), sink
}

// --- SetTarget Tests ---

func TestStore_SetTarget_ClampsNegative(t *testing.T) {
	s, sink := newTestStore(t)

	if !s.SetTarget("visit", -5) {
		t.Fatal("SetTarget(visit) = false, want true")
	}

	a, _ := s.Activity("visit")
	if a.Target != 0 {
		t.Errorf("target = %d, want 0", a.Target)
	}
	if sink.Len() != 1 {
		t.Fatalf("patches = %d, want 1", sink.Len())
	}
	if sink.Last().Activities[0].Target != 0 {
		t.Error("patch does not carry the clamped target")
	}
}

func TestStore_SetTarget_UnknownIsNoop(t *testing.T) {
	s, sink := newTestStore(t)
	before := s.Activities()

	if s.SetTarget("nope", 3) {
		t.Error("SetTarget(unknown) = true, want false")
	}
	if !reflect.DeepEqual(before, s.Activities()) {
		t.Error("store changed after unknown SetTarget")
	}
	if sink.Len() != 0 {
		t.Errorf("patches = %d, want 0", sink.Len())
	}
}

// --- AddAchievement Tests ---

func TestStore_AddAchievement_DemoScenario(t *testing.T) {
	// Given: a fresh store with demo target 4
	s, sink := newTestStore(t)

	// When: adding an achievement to demo
	added, err := s.AddAchievement("demo", NewAchievement("2024-03-01", "Demo A"))
	if err != nil {
		t.Fatalf("AddAchievement() error = %v", err)
	}

	// Then: one record, 25 percent, and a save carrying the activities array
	if !added {
		t.Fatal("AddAchievement() added = false")
	}
	demo, _ := s.Activity("demo")
	if demo.ActualCount() != 1 {
		t.Errorf("ActualCount() = %d, want 1", demo.ActualCount())
	}
	if demo.RawPercent() != 25 {
		t.Errorf("RawPercent() = %v, want 25", demo.RawPercent())
	}
	if sink.Len() != 1 {
		t.Fatalf("patches = %d, want 1", sink.Len())
	}
	p := sink.Last()
	if p.Activities == nil || p.UserName != nil {
		t.Errorf("patch = %+v, want activities only", p)
	}
	if len(p.Activities[1].Actual) != 1 || p.Activities[1].Actual[0].Description != "Demo A" {
		t.Errorf("patched demo = %+v", p.Activities[1])
	}
}

func TestStore_AddAchievement_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name        string
		date        string
		description string
	}{
		{"empty description", "2024-03-01", "   "},
		{"missing date", "", "Demo"},
		{"bad date", "2024-02-30", "Demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sink := newTestStore(t)
			before := s.Activities()

			_, err := s.AddAchievement("demo", types.Achievement{ID: "r1", Date: tt.date, Description: tt.description})

			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("error = %v, want ErrValidationFailed", err)
			}
			var fieldErrs validation.Errors
			if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
				t.Errorf("error does not carry field errors: %v", err)
			}
			if !reflect.DeepEqual(before, s.Activities()) {
				t.Error("store changed after rejected add")
			}
			if sink.Len() != 0 {
				t.Errorf("patches = %d, want 0", sink.Len())
			}
		})
	}
}

func TestStore_AddAchievement_TrimsDescription(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.AddAchievement("visit", types.Achievement{ID: "r1", Date: "2024-03-01", Description: "  PT Maju  "}); err != nil {
		t.Fatal(err)
	}

	a, _ := s.Activity("visit")
	if a.Actual[0].Description != "PT Maju" {
		t.Errorf("description = %q, want trimmed", a.Actual[0].Description)
	}
}

func TestStore_AddAchievement_DuplicateIDIgnored(t *testing.T) {
	s, sink := newTestStore(t)
	rec := types.Achievement{ID: "r1", Date: "2024-03-01", Description: "x"}

	s.AddAchievement("visit", rec)
	added, err := s.AddAchievement("visit", rec)

	if err != nil || added {
		t.Errorf("second add = (%v, %v), want (false, nil)", added, err)
	}
	if a, _ := s.Activity("visit"); len(a.Actual) != 1 {
		t.Errorf("records = %d, want 1", len(a.Actual))
	}
	if sink.Len() != 1 {
		t.Errorf("patches = %d, want 1", sink.Len())
	}
}

// --- DeleteAchievement Tests ---

func TestStore_DeleteAchievement(t *testing.T) {
	s, _ := newTestStore(t)
	rec := NewAchievement("2024-03-01", "Visit A")
	s.AddAchievement("visit", rec)

	if !s.DeleteAchievement("visit", rec.ID) {
		t.Fatal("DeleteAchievement() = false, want true")
	}
	if a, _ := s.Activity("visit"); len(a.Actual) != 0 {
		t.Errorf("records = %d, want 0", len(a.Actual))
	}
}

func TestStore_DeleteAchievement_MissingIsNoop(t *testing.T) {
	s, sink := newTestStore(t)
	s.AddAchievement("visit", NewAchievement("2024-03-01", "Visit A"))
	before := s.Activities()
	patches := sink.Len()

	if s.DeleteAchievement("visit", "does-not-exist") {
		t.Error("DeleteAchievement(missing) = true, want false")
	}
	if !reflect.DeepEqual(before, s.Activities()) {
		t.Error("store changed after deleting a missing record")
	}
	if sink.Len() != patches {
		t.Error("delete of missing record enqueued a patch")
	}
}

// --- SetUserName Tests ---

func TestStore_SetUserName(t *testing.T) {
	s, sink := newTestStore(t)

	changed, err := s.SetUserName("  Budi Santoso ")
	if err != nil || !changed {
		t.Fatalf("SetUserName() = (%v, %v), want (true, nil)", changed, err)
	}
	if s.UserName() != "Budi Santoso" {
		t.Errorf("UserName() = %q", s.UserName())
	}
	p := sink.Last()
	if p.UserName == nil || *p.UserName != "Budi Santoso" || p.Activities != nil {
		t.Errorf("patch = %+v, want userName only", p)
	}

	changed, _ = s.SetUserName("Budi Santoso")
	if changed {
		t.Error("SetUserName(same) = true, want false")
	}
}

func TestStore_DeleteAchievement_EmptyIDKeepsLegacyRecords(t *testing.T) {
	s, sink := newTestStore(t)
	remote := catalog.Default().Defaults()
	remote[0].Actual = []types.Achievement{
		{Date: "2024-03-01", Description: "A"},
		{Date: "2024-03-02", Description: "B"},
	}
	s.Replace(remote, "")

	if s.DeleteAchievement("visit", "") {
		t.Error("DeleteAchievement(empty id) = true, want false")
	}
	if a, _ := s.Activity("visit"); len(a.Actual) != 2 {
		t.Errorf("records = %d, want 2", len(a.Actual))
	}
	if sink.Len() != 0 {
		t.Errorf("patches = %d, want 0", sink.Len())
	}
}

// --- Replace / Reconcile Tests ---

func TestStore_Replace_DoesNotWriteBack(t *testing.T) {
	s, sink := newTestStore(t)
	remote := catalog.Default().Defaults()
	remote[0].Target = 20
	remote = append(remote, types.Activity{ID: "legacy", Target: 1})

	s.Replace(remote, "Sari")

	if sink.Len() != 0 {
		t.Errorf("patches = %d, want 0", sink.Len())
	}
	got := s.Activities()
	if len(got) != catalog.Default().Len() {
		t.Errorf("len = %d, want catalog length", len(got))
	}
	if got[0].Target != 20 {
		t.Errorf("visit target = %d, want 20", got[0].Target)
	}
	if s.UserName() != "Sari" {
		t.Errorf("UserName() = %q, want Sari", s.UserName())
	}
}

func TestStore_ActivitiesReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	got := s.Activities()
	got[0].Target = 99

	if a, _ := s.Activity(got[0].ID); a.Target == 99 {
		t.Error("mutating Activities() result changed the store")
	}
}

func TestStore_PatchesFollowMutationOrder(t *testing.T) {
	s, sink := newTestStore(t)

	for i := 1; i <= 5; i++ {
		s.SetTarget("visit", i)
	}

	if sink.Len() != 5 {
		t.Fatalf("patches = %d, want 5", sink.Len())
	}
	for i, p := range sink.patches {
		if p.Activities[0].Target != i+1 {
			t.Errorf("patch %d target = %d, want %d", i, p.Activities[0].Target, i+1)
		}
	}
}
