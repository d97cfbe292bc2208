package main

import (
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/qrun/internal/config"
	"github.com/mattjoyce/qrun/internal/ledger"
	"github.com/mattjoyce/qrun/internal/lock"
	"github.com/mattjoyce/qrun/internal/log"
	"github.com/mattjoyce/qrun/internal/queue"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json", io.Discard) // Suppress logs in tests
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

// isolateConfig keeps a developer's own qrun config out of the test.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("QRUN_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
}

func requireTrue(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
}

func TestRunCLIWithoutArgsPrintsUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI(nil) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Usage:")
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "qrun run [flags] [backlog]")
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"frobnicate"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, version, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
}

func TestRunDrainsBacklog(t *testing.T) {
	requireTrue(t)
	isolateConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.bl")
	require.NoError(t, queue.Write(path, []string{"true", "true", "true"}))

	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"run", "-b", path, "-j", "2", "--tick", "10ms", "--display", "none"})
	})
	require.Equal(t, 0, code)

	assert.NoFileExists(t, path)
	history, err := queue.Read(filepath.Join(dir, "qrun_history.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{"true", "true", "true"}, history)
}

func TestBareFlagsRunTheBacklog(t *testing.T) {
	requireTrue(t)
	isolateConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.bl")
	require.NoError(t, queue.Write(path, []string{"true"}))

	code := runCLI([]string{"--backlog", path, "--tick", "10ms", "--display", "none"})
	assert.Equal(t, 0, code)
	assert.NoFileExists(t, path)
}

func TestRunMissingBacklogExitsCleanly(t *testing.T) {
	isolateConfig(t)
	missing := filepath.Join(t.TempDir(), "nope.bl")

	code := runCLI([]string{"run", "-b", missing, "--display", "none"})
	assert.Equal(t, 0, code)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(missing), "qrun_history.log"))
}

func TestRunRefusesWhenAnotherInstanceHoldsTheLock(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.bl")
	require.NoError(t, queue.Write(path, []string{"true"}))

	held, err := lock.Acquire(lock.PathFor(dir))
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	code := runCLI([]string{"run", "-b", path, "--display", "none"})
	assert.Equal(t, 1, code)
	assert.Equal(t, []string{"true"}, mustRead(t, path), "nothing is dispatched")
}

func mustRead(t *testing.T, path string) []string {
	t.Helper()
	lines, err := queue.Read(path)
	require.NoError(t, err)
	return lines
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "jobs.bl")
	require.NoError(t, queue.Write(path, nil))

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"run", "-b", path, "-j", "0"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "jobs must be positive")
}

func TestRunRecordsLedgerAndHistoryShowsIt(t *testing.T) {
	requireTrue(t)
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	isolateConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.bl")
	dbPath := filepath.Join(dir, "state", "ledger.db")
	require.NoError(t, queue.Write(path, []string{"true", "false"}))

	code := runCLI([]string{"run", "-b", path, "--state", dbPath, "--tick", "10ms", "--display", "none"})
	require.Equal(t, 0, code)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--state", dbPath, "--json"})
	})
	require.Equal(t, 0, code)

	var runs []ledger.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 2)
	statuses := []ledger.Status{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []ledger.Status{ledger.StatusSucceeded, ledger.StatusFailed}, statuses)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--state", dbPath})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "succeeded=1 failed=1")
}

func TestHistoryWithoutLedger(t *testing.T) {
	isolateConfig(t)
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"history"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "No run ledger configured")
}

func TestParseRunFlags(t *testing.T) {
	f, err := parseRunFlags([]string{"-j", "4", "--demon", "jobs.bl"})
	require.NoError(t, err)
	assert.Equal(t, "jobs.bl", f.backlog)
	assert.Equal(t, 4, f.jobs)
	assert.True(t, f.daemon)
	assert.True(t, f.isSet("backlog"))
	assert.True(t, f.isSet("daemon", "demon", "d"))
	assert.False(t, f.isSet("output", "o"))

	_, err = parseRunFlags([]string{"-b", "a.bl", "b.bl"})
	assert.Error(t, err)

	_, err = parseRunFlags([]string{"a.bl", "b.bl"})
	assert.Error(t, err)
}

func TestLoadRunConfigFlagsOverrideFile(t *testing.T) {
	isolateConfig(t)
	cfgPath := filepath.Join(t.TempDir(), "qrun.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backlog: /srv/jobs\njobs: 3\ntick_interval: 2s\n"), 0o644))

	f, err := parseRunFlags([]string{"--config", cfgPath, "-j", "5"})
	require.NoError(t, err)
	cfg, path, err := loadRunConfig(f)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, path)
	assert.Equal(t, "/srv/jobs", cfg.Backlog)
	assert.Equal(t, 5, cfg.Jobs)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.False(t, cfg.API.Enabled)
}

func TestResolveDisplay(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.DisplayNone, resolveDisplay(config.DisplayAuto, f), "a file is not a terminal")
	assert.Equal(t, config.DisplayTUI, resolveDisplay(config.DisplayTUI, f))
}

func TestRenderHistoryEmpty(t *testing.T) {
	assert.Equal(t, "No runs recorded.\n", renderHistory(nil, nil))
}

func TestRenderHistoryRows(t *testing.T) {
	code := 0
	out := renderHistory([]ledger.Run{{
		Task: "make test", Slot: 1, Status: ledger.StatusSucceeded, ExitCode: &code, DispatchedAt: time.Now(),
	}}, map[ledger.Status]int{ledger.StatusSucceeded: 1})

	assert.Contains(t, out, "make test")
	assert.Contains(t, out, "T1")
	assert.True(t, strings.HasSuffix(out, "running=0 succeeded=1 failed=0 abandoned=0\n"))
}
