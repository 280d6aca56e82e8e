package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Workload:  "testdata/run.hcl",
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Microsecond,
		Commands: []Command{
			{Name: "seed", Kind: "write_buffer", Queue: "main", Status: "complete", Start: 100, End: 350},
			{Name: "result", Kind: "read_buffer", Queue: "main", Status: "complete", Output: []byte{1, 255}},
			{Name: "boom", Kind: "task", Queue: "side", Status: "failed(execution failed)", Code: -1000, Error: "execution failed"},
			{Name: "open", Kind: "signal", Status: "complete"},
		},
	}
}

func TestCounts(t *testing.T) {
	completed, failed := sampleReport().Counts()

	assert.Equal(t, 3, completed)
	assert.Equal(t, 1, failed)
}

func TestWriteText(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var out bytes.Buffer

		require.NoError(t, WriteText(&out, sampleReport(), false))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 6)
		assert.Regexp(t, `^COMMAND\s+KIND\s+QUEUE\s+STATUS\s+ELAPSED\s+DETAIL$`, lines[0])
		assert.Regexp(t, `^seed\s+write_buffer\s+main\s+complete\s+250ns\s*$`, lines[1])
		assert.Regexp(t, `^result\s+read_buffer\s+main\s+complete\s+-\s+01 ff$`, lines[2])
		assert.Regexp(t, `^boom\s+task\s+side\s+failed\(execution failed\)\s+-\s+execution failed$`, lines[3])
		assert.Regexp(t, `^open\s+signal\s+-\s+complete`, lines[4])
		assert.Equal(t, "4 commands, 3 complete, 1 failed in 1.5ms", lines[5])
	})

	t.Run("colored keeps the text", func(t *testing.T) {
		var out bytes.Buffer

		require.NoError(t, WriteText(&out, sampleReport(), true))

		assert.Contains(t, out.String(), "seed")
		assert.Contains(t, out.String(), "1 failed")
	})
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.msgpack")
	want := sampleReport()

	require.NoError(t, WriteFile(path, want))
	got, err := ReadFile(path)
	require.NoError(t, err)

	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	got.StartedAt = want.StartedAt
	assert.Equal(t, want, got)
}

func TestReadFile_Errors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to open report file")

	_, err = Decode(strings.NewReader("not msgpack at all"))
	assert.ErrorContains(t, err, "failed to decode report")
}
