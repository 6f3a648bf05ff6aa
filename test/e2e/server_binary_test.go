//go:build e2e

package e2e

import (
	"testing"
)

// TestBinary_DashboardRoundTrip drives a real server with two dashboards and
// checks the admin change feed sees the writes.
func TestBinary_DashboardRoundTrip(t *testing.T) {
	srv := startGoalboard(t)
	token := customToken(t, "mtid-bin")

	a := newDashboard(t, srv.baseURL(), token)
	b := newDashboard(t, srv.baseURL(), token)

	if err := a.SetTarget("webinar", 3); err != nil {
		t.Fatal(err)
	}
	a.Flush()
	waitFor(t, "target on client B", func() bool { return activity(b, "webinar").Target == 3 })

	feed := srv.changes(t, testApp, 0)
	if len(feed.Entries) < 2 {
		t.Fatalf("change feed has %d entries, want default creation plus edit", len(feed.Entries))
	}
	for _, e := range feed.Entries {
		if e.SourceID != "mtid-bin" {
			t.Errorf("entry %d source = %q, want mtid-bin", e.Sequence, e.SourceID)
		}
	}
}

// TestBinary_RestartKeepsDocuments verifies documents survive a graceful
// shutdown and restart on the same data directory.
func TestBinary_RestartKeepsDocuments(t *testing.T) {
	dataDir := t.TempDir()
	first := startGoalboardIn(t, dataDir)
	token := customToken(t, "mtid-restart")

	d := newDashboard(t, first.baseURL(), token)
	if _, err := d.RenameUser("Persisted"); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	d.Close()
	first.stop()
	if !first.cmd.ProcessState.Success() {
		t.Errorf("server exit = %v, want clean shutdown", first.cmd.ProcessState)
	}

	second := startGoalboardIn(t, dataDir)
	again := newDashboard(t, second.baseURL(), token)
	if again.UserName() != "Persisted" {
		t.Errorf("UserName() after restart = %q, want Persisted", again.UserName())
	}
}
