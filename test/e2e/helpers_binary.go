//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

// goalboardServer manages a running `goalboard serve` process.
type goalboardServer struct {
	cmd      *exec.Cmd
	dataDir  string
	address  string
	adminKey string
	logFile  string
}

// startGoalboard launches the binary on a fresh data directory and waits for
// it to become healthy.
func startGoalboard(t *testing.T) *goalboardServer {
	t.Helper()
	return startGoalboardIn(t, t.TempDir())
}

// startGoalboardIn launches the binary over dataDir. The server is configured
// entirely through environment variables.
func startGoalboardIn(t *testing.T, dataDir string) *goalboardServer {
	t.Helper()

	if goalboardBin == "" {
		t.Skip("goalboard binary not available (set GOALBOARD_BIN or add to PATH)")
	}

	adminKey := "e2e-admin-key"
	port := freePort(t)
	logFile := fmt.Sprintf("%s/goalboard-%d.log", dataDir, port)

	cmd := exec.Command(goalboardBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("GOALBOARD_PORT=%d", port),
		"GOALBOARD_STORES_ROOT="+dataDir+"/apps",
		"GOALBOARD_ADMIN_KEY="+adminKey,
		"GOALBOARD_CUSTOM_TOKEN_SECRET="+testCustomSecret,
		"GOALBOARD_CONFIG_PATH="+dataDir+"/nonexistent.yaml",
		"GOALBOARD_DEV_MODE=true",
		"GOALBOARD_HEARTBEAT=200ms",
	)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start goalboard: %v", err)
	}

	s := &goalboardServer{
		cmd:      cmd,
		dataDir:  dataDir,
		address:  fmt.Sprintf("127.0.0.1:%d", port),
		adminKey: adminKey,
		logFile:  logFile,
	}
	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(logFile)
		t.Fatalf("goalboard not healthy: %v\n%s", err, logs)
	}
	return s
}

func (s *goalboardServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *goalboardServer) baseURL() string {
	return "http://" + s.address
}

func (s *goalboardServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("health check timed out after %s", timeout)
}

type changesResponse struct {
	Entries []struct {
		Sequence  int64  `json:"sequence"`
		Key       string `json:"key"`
		Operation string `json:"operation"`
		SourceID  string `json:"source_id"`
	} `json:"entries"`
	LatestSequence int64 `json:"latest_sequence"`
	HasMore        bool  `json:"has_more"`
}

// changes reads the admin change feed for app.
func (s *goalboardServer) changes(t *testing.T, app string, after int64) changesResponse {
	t.Helper()
	url := fmt.Sprintf("%s/api/v1/admin/apps/%s/changes?after=%d", s.baseURL(), app, after)
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+s.adminKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("changes: status %d: %s", resp.StatusCode, body)
	}
	var out changesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	return out
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
