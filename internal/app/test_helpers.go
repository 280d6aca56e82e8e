package app

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest writes src to a workload file in a temporary directory and
// builds an app for it with debug logging and the builtin kernels. Logs are
// dumped when BQ_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, src string, cfg Config) (*App, *SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(src), 0o600); err != nil {
		t.Fatalf("failed to write workload: %v", err)
	}
	cfg.WorkloadPath = dir
	cfg.LogLevel = "debug"
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}

	logBuffer := &SafeBuffer{}
	testApp := NewApp(logBuffer, &cfg, nil)

	t.Cleanup(func() {
		if os.Getenv("BQ_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}
