package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/goalboard/internal/multistore"
)

// seedNamespace writes n versions of one document into app under root.
func seedNamespace(t *testing.T, root, app string, n int) {
	t.Helper()
	mgr, err := multistore.NewManager(root)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()
	ns, err := mgr.GetStore(context.Background(), app)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		data, _ := json.Marshal(map[string]int{"rev": i})
		if _, err := ns.Store.Set(context.Background(), "users/U1/pmDataMtid/monthlyGoals_V2", data); err != nil {
			t.Fatal(err)
		}
	}
}

// --- apps list Tests ---

func TestAppsList_Empty(t *testing.T) {
	root := filepath.Join(t.TempDir(), "apps")

	stdout, _, err := executeCmd(t, "", "apps", "list", "--root", root)

	if err != nil {
		t.Fatalf("apps list error = %v", err)
	}
	if !strings.Contains(stdout, "No namespaces found.") {
		t.Errorf("stdout = %q, want empty-state message", stdout)
	}
}

func TestAppsList_JSON(t *testing.T) {
	root := filepath.Join(t.TempDir(), "apps")
	seedNamespace(t, root, "board-a", 1)
	seedNamespace(t, root, "board-b", 1)

	stdout, _, err := executeCmd(t, "", "apps", "list", "--root", root, "--json")
	if err != nil {
		t.Fatalf("apps list error = %v", err)
	}

	var got struct {
		Namespaces []multistore.NamespaceInfo `json:"namespaces"`
		Total      int                        `json:"total"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if got.Total != 2 || got.Namespaces[0].ID != "board-a" || got.Namespaces[1].ID != "board-b" {
		t.Errorf("namespaces = %+v, want board-a and board-b in order", got)
	}
}

func TestAppsList_Table(t *testing.T) {
	root := filepath.Join(t.TempDir(), "apps")
	seedNamespace(t, root, "board-a", 1)

	stdout, _, err := executeCmd(t, "", "apps", "list", "--root", root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "ID") || !strings.Contains(stdout, "board-a") {
		t.Errorf("stdout = %q, want header and board-a row", stdout)
	}
}

// --- apps info Tests ---

func TestAppsInfo_ReportsStats(t *testing.T) {
	root := filepath.Join(t.TempDir(), "apps")
	seedNamespace(t, root, "board-a", 3)

	stdout, _, err := executeCmd(t, "", "apps", "info", "board-a", "--root", root, "--json")
	if err != nil {
		t.Fatalf("apps info error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatal(err)
	}
	if got["document_count"] != float64(1) {
		t.Errorf("document_count = %v, want 1", got["document_count"])
	}
	if got["latest_sequence"] != float64(3) {
		t.Errorf("latest_sequence = %v, want 3", got["latest_sequence"])
	}
}

func TestAppsInfo_MissingNamespaceIsNotCreated(t *testing.T) {
	root := filepath.Join(t.TempDir(), "apps")

	_, _, err := executeCmd(t, "", "apps", "info", "ghost", "--root", root)
	if err == nil {
		t.Fatal("apps info on missing namespace succeeded")
	}

	stdout, _, _ := executeCmd(t, "", "apps", "list", "--root", root)
	if strings.Contains(stdout, "ghost") {
		t.Error("inspection created the namespace")
	}
}

// --- apps compact Tests ---

func TestAppsCompact_Force(t *testing.T) {
	// Given: three versions of one document, all older than the window
	root := filepath.Join(t.TempDir(), "apps")
	seedNamespace(t, root, "board-a", 3)
	time.Sleep(50 * time.Millisecond)

	// When: compacting with --force
	stdout, _, err := executeCmd(t, "", "apps", "compact", "board-a",
		"--root", root, "--older-than", "10ms", "--force", "--json")
	if err != nil {
		t.Fatalf("apps compact error = %v", err)
	}

	// Then: all but the newest entry are removed
	var got struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatal(err)
	}
	if got.Removed != 2 {
		t.Errorf("removed = %d, want 2", got.Removed)
	}
}

func TestAppsCompact_Confirmation(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		wantErr bool
	}{
		{"matching id", "board-a\n", false},
		{"wrong id", "other\n", true},
		{"no input", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "apps")
			seedNamespace(t, root, "board-a", 1)

			_, stderr, err := executeCmd(t, tt.stdin, "apps", "compact", "board-a", "--root", root)

			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(stderr, "WARNING") {
				t.Errorf("stderr = %q, want confirmation prompt", stderr)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
