package e2e

import (
	"testing"

	"github.com/hyperengineering/goalboard/internal/remotesync"
)

// --- Same User, Two Clients ---

// TestMulti_SameUserConverges verifies that edits made on one client reach a
// second client signed in as the same user.
func TestMulti_SameUserConverges(t *testing.T) {
	srv := startServer(t)
	token := customToken(t, "mtid-0042")

	a := newDashboard(t, srv.URL, token)
	b := newDashboard(t, srv.URL, token)
	if a.UserID() != "mtid-0042" || b.UserID() != "mtid-0042" {
		t.Fatalf("user ids = %q, %q; want mtid-0042", a.UserID(), b.UserID())
	}

	// When: client A sets a target and records an achievement
	if err := a.SetTarget("visit", 15); err != nil {
		t.Fatal(err)
	}
	rec, err := a.AddAchievement("visit", "2024-05-03", "Visit PT Sumber")
	if err != nil {
		t.Fatal(err)
	}
	a.Flush()

	// Then: client B converges on both changes
	waitFor(t, "target and achievement on client B", func() bool {
		v := activity(b, "visit")
		return v.Target == 15 && len(v.Actual) == 1 && v.Actual[0].ID == rec.ID
	})

	// When: client B renames the user
	if _, err := b.RenameUser("Sari"); err != nil {
		t.Fatal(err)
	}
	b.Flush()

	// Then: the rename reaches client A without dropping A's edits
	waitFor(t, "rename on client A", func() bool {
		return a.UserName() == "Sari" && activity(a, "visit").Target == 15
	})
}

// TestMulti_UsersAreIsolated verifies that one user's edits never reach another.
func TestMulti_UsersAreIsolated(t *testing.T) {
	srv := startServer(t)
	a := newDashboard(t, srv.URL, "")
	b := newDashboard(t, srv.URL, "")
	if a.UserID() == b.UserID() {
		t.Fatal("anonymous sign-ins share a user id")
	}

	if err := a.SetTarget("demo", 9); err != nil {
		t.Fatal(err)
	}
	a.Flush()
	waitFor(t, "own edit echoed", func() bool { return activity(a, "demo").Target == 9 })

	if got := activity(b, "demo").Target; got != 4 {
		t.Errorf("client B demo target = %d, want catalog default 4", got)
	}
}

// --- Change Log ---

// TestChangeLog_RecordsWriterIdentity verifies every client write lands in the
// namespace change log tagged with the writing user.
func TestChangeLog_RecordsWriterIdentity(t *testing.T) {
	srv := startServer(t)
	d := newDashboard(t, srv.URL, customToken(t, "mtid-7"))

	if _, err := d.RenameUser("Budi"); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	ref, _ := remotesync.DocPath(testApp, "mtid-7")
	rows := srv.changeLog(t, testApp)
	if len(rows) < 2 {
		t.Fatalf("change log has %d rows, want default creation plus rename", len(rows))
	}
	ops := map[string]bool{}
	for _, r := range rows {
		ops[r.Operation] = true
		if r.DocKey != ref.Key {
			t.Errorf("row %d key = %q, want %q", r.Sequence, r.DocKey, ref.Key)
		}
		if r.SourceID != "mtid-7" {
			t.Errorf("row %d source = %q, want mtid-7", r.Sequence, r.SourceID)
		}
	}
	if !ops["set"] || !ops["merge"] {
		t.Errorf("operations = %v, want a set for the default document and a merge for the rename", ops)
	}
}
