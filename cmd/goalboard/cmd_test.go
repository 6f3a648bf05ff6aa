package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// executeCmd runs rootCmd with args and captured output.
func executeCmd(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Cobra parses into package-level variables; stale values from a previous
	// test would leak if not reset.
	configPath = ""
	appsRootOverride = ""
	appsJSONOutput = false
	compactOlderThan = 30 * 24 * time.Hour
	compactForce = false
	boardJSONOutput = false
	achievementDate = ""
	achievementDesc = ""
	exportOutDir = ""
	exportSheets = false

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// clientEnv points every client path at a temp dir and selects local mode.
func clientEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GOALBOARD_CONFIG_PATH", dir+"/missing.yaml")
	t.Setenv("GOALBOARD_LOCAL", "true")
	t.Setenv("GOALBOARD_STORES_ROOT", dir+"/apps")
	t.Setenv("GOALBOARD_SESSION_CACHE", dir+"/session.yaml")
	t.Setenv("GOALBOARD_PREFERENCES_PATH", dir+"/preferences.yaml")
	t.Setenv("GOALBOARD_EXPORT_DIR", dir+"/out")
	t.Setenv("GOALBOARD_LOG_LEVEL", "error")
	t.Setenv("GOALBOARD_CUSTOM_TOKEN", "")
	t.Setenv("GOALBOARD_SESSION_SECRET", "")
	return dir
}
