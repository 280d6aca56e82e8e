package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/burstqueue/internal/kernels"
	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/report"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
	"github.com/specialistvlad/burstqueue/internal/workload"
)

func parse(t *testing.T, src string) *workload.Workload {
	t.Helper()
	w, err := workload.Parse([]byte(src), "test.hcl")
	require.NoError(t, err)
	return w
}

func run(t *testing.T, src string) *report.Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := New(kernels.Builtins(), 2).Run(ctx, parse(t, src))
	require.NoError(t, err)
	return rep
}

func byName(t *testing.T, rep *report.Report) map[string]report.Command {
	t.Helper()
	out := make(map[string]report.Command, len(rep.Commands))
	for _, c := range rep.Commands {
		out[c.Name] = c
	}
	return out
}

func TestRun_Pipeline(t *testing.T) {
	// --- Arrange ---
	baseline := object.Live.Count()
	src := `
queue "main" {
  profiling = true
}

buffer "data" {
  size = 4
}

buffer "out" {
  size = 4
}

user_event "go" {}

command "ndrange" "seed" {
  queue    = "main"
  kernel   = "iota"
  global   = [4]
  args     = { out = "data", start = 1 }
  wait_for = ["go"]
}

command "ndrange" "double" {
  queue  = "main"
  kernel = "scale"
  global = [2, 2]
  local  = [1, 1]
  args   = { buffer = "data", factor = 2 }
}

command "copy_buffer" "copy" {
  queue = "main"
  src   = "data"
  dst   = "out"
  size  = 4
}

command "read_buffer" "result" {
  queue  = "main"
  buffer = "out"
  size   = 4
}

command "signal" "open" {
  event = "go"
}
`

	// --- Act ---
	rep := run(t, src)

	// --- Assert ---
	require.Len(t, rep.Commands, 5)
	names := make([]string, len(rep.Commands))
	for i, c := range rep.Commands {
		names[i] = c.Name
		assert.Equal(t, "complete", c.Status, "command %s", c.Name)
		assert.Zero(t, c.Code)
	}
	assert.Equal(t, []string{"seed", "double", "copy", "result", "open"}, names)

	cmds := byName(t, rep)
	assert.Equal(t, []byte{2, 4, 6, 8}, cmds["result"].Output)
	assert.Equal(t, "main", cmds["seed"].Queue)
	assert.Empty(t, cmds["open"].Queue)
	for _, name := range []string{"seed", "double", "copy", "result"} {
		c := cmds[name]
		assert.NotZero(t, c.End, "command %s is profiled", name)
		assert.LessOrEqual(t, c.Queued, c.Submit)
		assert.LessOrEqual(t, c.Submit, c.Start)
		assert.LessOrEqual(t, c.Start, c.End)
	}
	assert.Positive(t, rep.Duration)
	assert.False(t, rep.StartedAt.IsZero())

	require.Eventually(t, func() bool {
		return object.Live.Count() == baseline
	}, 2*time.Second, 10*time.Millisecond, "every object of the run is released")
}

func TestRun_Failures(t *testing.T) {
	src := `
queue "ooo" {
  out_of_order = true
}

buffer "b" {
  size = 2
}

user_event "never" {}

command "task" "boom" {
  queue  = "ooo"
  kernel = "fail"
  args   = { message = "kaput" }
}

command "marker" "after_boom" {
  queue    = "ooo"
  wait_for = ["boom"]
}

command "task" "missing_kernel" {
  queue  = "ooo"
  kernel = "nope"
}

command "marker" "after_missing" {
  queue    = "ooo"
  wait_for = ["missing_kernel"]
}

command "fill_buffer" "overflow" {
  queue   = "ooo"
  buffer  = "b"
  pattern = [1]
  size    = 8
}

command "fill_buffer" "gated" {
  queue    = "ooo"
  buffer   = "b"
  pattern  = [1]
  size     = 2
  wait_for = ["never"]
}

command "read_buffer" "peek" {
  queue  = "ooo"
  buffer = "b"
  size   = 2
}
`

	rep := run(t, src)
	cmds := byName(t, rep)

	testCases := []struct {
		name string
		code scheduler.Code
	}{
		{"boom", scheduler.CodeExecFailed},
		{"after_boom", scheduler.CodeExecStatusErrorForEventsInWaitList},
		{"missing_kernel", scheduler.CodeInvalidKernel},
		{"after_missing", scheduler.CodeInvalidEventWaitList},
		{"overflow", scheduler.CodeInvalidValue},
		{"gated", scheduler.CodeExecStatusErrorForEventsInWaitList},
		{"peek", scheduler.CodeSuccess},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := cmds[tc.name]
			require.True(t, ok)
			assert.Equal(t, int32(tc.code), c.Code)
			assert.Equal(t, scheduler.StatusFromCode(tc.code).String(), c.Status)
			if tc.code != scheduler.CodeSuccess {
				assert.NotEmpty(t, c.Error)
			}
		})
	}

	assert.Contains(t, cmds["missing_kernel"].Error, `unknown kernel "nope"`)
	assert.Len(t, cmds["peek"].Output, 2)
	completed, failed := rep.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 6, failed)
}

func TestRun_SignalFailedAndTwice(t *testing.T) {
	src := `
queue "main" {}

user_event "gate" {}

command "marker" "waits" {
  queue    = "main"
  wait_for = ["gate"]
}

command "signal" "reject" {
  event  = "gate"
  status = "failed"
}

command "signal" "again" {
  event = "gate"
}
`

	rep := run(t, src)
	cmds := byName(t, rep)

	assert.Equal(t, int32(scheduler.CodeExecStatusErrorForEventsInWaitList), cmds["waits"].Code)
	assert.Equal(t, "complete", cmds["reject"].Status)
	assert.Equal(t, int32(scheduler.CodeInvalidOperation), cmds["again"].Code)
}

type nameTracker struct {
	mu    sync.Mutex
	names []string
}

func (n *nameTracker) Track(_ context.Context, name string, e *scheduler.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names = append(n.names, name)
	return nil
}

func TestRun_Trackers(t *testing.T) {
	src := `
queue "main" {}

user_event "u" {}

command "marker" "m1" {
  queue = "main"
}

command "signal" "s" {
  event = "u"
}

command "barrier" "b1" {
  queue = "main"
}
`
	tracker := &nameTracker{}

	_, err := New(kernels.Builtins(), 1, tracker).Run(context.Background(), parse(t, src))

	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "b1"}, tracker.names, "signals have no event to track")
}

func TestRun_ContextDeadline(t *testing.T) {
	src := `
queue "main" {}

command "task" "nap" {
  queue  = "main"
  kernel = "sleep"
  args   = { duration = "300ms" }
}

command "marker" "done" {
  queue = "main"
}
`
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rep, err := New(kernels.Builtins(), 1).Run(ctx, parse(t, src))

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, rep)
	assert.Len(t, rep.Commands, 2)
	assert.NotEqual(t, "complete", byName(t, rep)["done"].Status)
}
