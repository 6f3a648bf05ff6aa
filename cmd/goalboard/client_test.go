package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type boardOutput struct {
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	Activities []boardActivity `json:"activities"`
	Notice     string          `json:"notice"`
}

func readBoard(t *testing.T) boardOutput {
	t.Helper()
	stdout, _, err := executeCmd(t, "", "board", "--json")
	if err != nil {
		t.Fatalf("board error = %v", err)
	}
	var b boardOutput
	if err := json.Unmarshal([]byte(stdout), &b); err != nil {
		t.Fatalf("invalid board JSON %q: %v", stdout, err)
	}
	return b
}

func findActivity(b boardOutput, id string) (boardActivity, bool) {
	for _, a := range b.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return boardActivity{}, false
}

// --- Local Client Tests ---

func TestBoard_LocalDefaults(t *testing.T) {
	clientEnv(t)

	b := readBoard(t)

	if b.UserID == "" {
		t.Error("no user signed in")
	}
	if b.Notice != "" {
		t.Errorf("notice = %q, want none", b.Notice)
	}
	visit, ok := findActivity(b, "visit")
	if !ok || visit.Target != 12 || visit.Actual != 0 {
		t.Errorf("visit = %+v, want catalog default target 12", visit)
	}
}

func TestEdits_PersistAcrossRuns(t *testing.T) {
	// Given: a local client
	dir := clientEnv(t)
	first := readBoard(t)

	// When: editing through separate invocations
	if _, _, err := executeCmd(t, "", "target", "set", "visit", "20"); err != nil {
		t.Fatalf("target set error = %v", err)
	}
	if _, _, err := executeCmd(t, "", "achievement", "add", "visit", "--date", "2024-05-03", "--desc", "Client visit"); err != nil {
		t.Fatalf("achievement add error = %v", err)
	}
	if _, _, err := executeCmd(t, "", "name", "set", "Budi Santoso"); err != nil {
		t.Fatalf("name set error = %v", err)
	}

	// Then: a new run sees the same user and every change
	b := readBoard(t)
	if b.UserID != first.UserID {
		t.Errorf("user changed between runs: %q then %q", first.UserID, b.UserID)
	}
	visit, _ := findActivity(b, "visit")
	if visit.Target != 20 || visit.Actual != 1 {
		t.Errorf("visit = %+v, want target 20 with one achievement", visit)
	}
	if visit.ProgressPercent != 5 {
		t.Errorf("progress = %v, want 5", visit.ProgressPercent)
	}
	if b.UserName != "Budi Santoso" {
		t.Errorf("user_name = %q", b.UserName)
	}
	if _, err := os.Stat(filepath.Join(dir, "session.yaml")); err != nil {
		t.Errorf("session not cached: %v", err)
	}
}

func TestEdits_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown activity target", []string{"target", "set", "unknown", "3"}},
		{"non-numeric target", []string{"target", "set", "visit", "many"}},
		{"bad date", []string{"achievement", "add", "visit", "--date", "2024-02-30", "--desc", "x"}},
		{"empty description", []string{"achievement", "add", "visit", "--desc", "   "}},
		{"unknown achievement", []string{"achievement", "delete", "visit", "01HXXXXXXXXXXXXXXXXXXXXXXX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientEnv(t)
			if _, _, err := executeCmd(t, "", tt.args...); err == nil {
				t.Errorf("%v succeeded, want error", tt.args)
			}
		})
	}
}

func TestAchievementDelete(t *testing.T) {
	clientEnv(t)
	_, stderr, err := executeCmd(t, "", "achievement", "add", "demo", "--date", "2024-05-03", "--desc", "Live demo")
	if err != nil {
		t.Fatal(err)
	}
	id := strings.TrimSpace(strings.TrimPrefix(lastLine(stderr), "Recorded "))

	if _, _, err := executeCmd(t, "", "achievement", "delete", "demo", id); err != nil {
		t.Fatalf("achievement delete error = %v", err)
	}

	demo, _ := findActivity(readBoard(t), "demo")
	if demo.Actual != 0 {
		t.Errorf("demo actual = %d after delete, want 0", demo.Actual)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestBoard_OfflineShowsNotice(t *testing.T) {
	clientEnv(t)
	t.Setenv("GOALBOARD_LOCAL", "false")
	t.Setenv("GOALBOARD_BACKEND_URL", "http://127.0.0.1:1")
	t.Setenv("GOALBOARD_REQUEST_TIMEOUT", "2s")

	b := readBoard(t)
	if b.Notice == "" {
		t.Error("no notice while the backend is unreachable")
	}
	if len(b.Activities) != 6 {
		t.Errorf("activities = %d, want catalog defaults", len(b.Activities))
	}
}

// --- Export Tests ---

func TestExport_WritesWorkbook(t *testing.T) {
	dir := clientEnv(t)
	if _, _, err := executeCmd(t, "", "name", "set", "Sari"); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCmd(t, "", "export")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}

	want := filepath.Join(dir, "out", "Laporan_Kinerja_Sari.xlsx")
	if strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "PK") {
		t.Error("report is not a zip-based workbook")
	}
}

func TestExport_SheetsNotConfigured(t *testing.T) {
	clientEnv(t)
	t.Setenv("GOALBOARD_SHEETS_CREDENTIALS", "")
	t.Setenv("GOALBOARD_SPREADSHEET_ID", "")

	if _, _, err := executeCmd(t, "", "export", "--sheets", "--out", t.TempDir()); err == nil {
		t.Error("export --sheets without configuration succeeded")
	}
}

// --- Theme Tests ---

func TestTheme_ToggleIsRemembered(t *testing.T) {
	dir := clientEnv(t)
	if err := os.WriteFile(filepath.Join(dir, "preferences.yaml"), []byte("theme: light\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCmd(t, "", "theme", "toggle")
	if err != nil || strings.TrimSpace(stdout) != "dark" {
		t.Fatalf("theme toggle = %q, %v; want dark", stdout, err)
	}

	stdout, _, err = executeCmd(t, "", "theme", "show")
	if err != nil || strings.TrimSpace(stdout) != "dark" {
		t.Errorf("theme show = %q, %v; want dark", stdout, err)
	}
}
