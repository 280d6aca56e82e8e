package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/burstqueue/internal/app"
	"github.com/specialistvlad/burstqueue/internal/report"
)

func writeWorkload(t *testing.T, src string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(src), 0600), "failed to set up test file")
	return filePath
}

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A syntax error makes the workload unloadable, which panics inside
	// app.NewApp().
	filePath := writeWorkload(t, `
		command "marker" "m" {
			queue = "main"
		// Missing closing brace here
	`)
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(out, []string{filePath})

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	errStr := runErr.Error()
	require.True(t, strings.Contains(errStr, "application startup panicked"), "The error message should indicate that a panic was recovered.")
	require.True(t, strings.Contains(errStr, "failed to parse"), "The error message should contain the underlying reason for the panic.")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	err := run(out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	filePath := writeWorkload(t, `
queue "main" {}

buffer "a" {
  size = 3
  init = [1, 2, 3]
}

command "task" "noop" {
  queue  = "main"
  kernel = "sleep"
  args   = { duration = "1ms" }
}

command "read_buffer" "dump" {
  queue  = "main"
  buffer = "a"
  size   = 3
}
`)
	reportPath := filepath.Join(t.TempDir(), "report.msgpack")
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, []string{"-workers", "2", "-color=false", "-log-level", "warn", "-report", reportPath, filePath})

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "2 commands, 2 complete, 0 failed")
	rep, err := report.ReadFile(reportPath)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, rep.Commands[1].Output)
}

func TestRun_FailedCommandIsAnError(t *testing.T) {
	t.Parallel()

	filePath := writeWorkload(t, `
queue "main" {}

command "task" "boom" {
  queue  = "main"
  kernel = "fail"
  args   = { message = "kaput" }
}
`)
	out := &bytes.Buffer{}

	err := run(out, []string{"-color=false", filePath})

	require.ErrorIs(t, err, app.ErrCommandsFailed)
}
