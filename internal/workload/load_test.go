package workload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const sample = `
queue "main" {
  profiling = true
}

queue "side" {
  out_of_order = true
}

buffer "a" {
  size = 8
  init = [1, 2]
}

buffer "b" {
  size = 8
}

user_event "gate" {}

command "write_buffer" "seed" {
  queue    = "main"
  buffer   = "a"
  offset   = 2
  data     = [3, 4]
  wait_for = ["gate"]
}

command "ndrange" "double" {
  queue  = "side"
  kernel = "scale"
  global = [4, 2]
  local  = [2, 1]
  args = {
    buffer = "a"
    factor = 2
  }
  wait_for = ["seed"]
}

command "copy_buffer" "copy" {
  queue = "main"
  src   = "a"
  dst   = "b"
  size  = 8
}

command "fill_buffer" "clear" {
  queue   = "main"
  buffer  = "b"
  pattern = [0, 255]
  size    = 4
}

command "read_buffer" "result" {
  queue  = "main"
  buffer = "b"
  size   = 8
}

command "task" "nap" {
  queue  = "side"
  kernel = "sleep"
  args   = { duration = "1ms" }
}

command "barrier" "fence" {
  queue = "main"
}

command "signal" "open" {
  event = "gate"
}
`

func TestParse(t *testing.T) {
	// --- Act ---
	w, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)

	// --- Assert ---
	require.Len(t, w.Queues, 2)
	mainQ, ok := w.Queue("main")
	require.True(t, ok)
	assert.Equal(t, &Queue{Name: "main", Profiling: true}, mainQ)
	side, _ := w.Queue("side")
	assert.True(t, side.OutOfOrder)

	a, ok := w.Buffer("a")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, a.Init)
	assert.Equal(t, []*UserEvent{{Name: "gate"}}, w.UserEvents)

	require.Len(t, w.Commands, 8)
	names := make([]string, len(w.Commands))
	for i, c := range w.Commands {
		names[i] = c.Name
		assert.Equal(t, "sample.hcl", c.File)
	}
	assert.Equal(t, []string{"seed", "double", "copy", "clear", "result", "nap", "fence", "open"}, names)

	seed := w.Commands[0]
	assert.Equal(t, KindWriteBuffer, seed.Kind)
	assert.Equal(t, []byte{3, 4}, seed.Data)
	assert.Equal(t, 2, seed.Offset)
	assert.Equal(t, 2, seed.Size)
	assert.Equal(t, []string{"gate"}, seed.WaitFor)

	double := w.Commands[1]
	assert.Equal(t, 2, double.Dims)
	assert.Equal(t, [3]int{4, 2, 0}, double.Global)
	assert.Equal(t, [3]int{2, 1, 0}, double.Local)
	assert.Equal(t, "scale", double.Kernel)
	assert.True(t, double.Args.Type().IsObjectType())
	assert.Equal(t, cty.StringVal("a"), double.Args.GetAttr("buffer"))

	assert.Equal(t, []byte{0, 255}, w.Commands[3].Pattern)
	assert.Equal(t, KindTask, w.Commands[5].Kind)
	assert.Equal(t, KindBarrier, w.Commands[6].Kind)

	open := w.Commands[7]
	assert.Equal(t, "gate", open.Event)
	assert.False(t, open.Failed)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "syntax error",
			src:  `queue "q" {`,
			want: "failed to parse",
		},
		{
			name: "unknown kind",
			src:  `command "teleport" "x" {}`,
			want: "unknown command kind",
		},
		{
			name: "unexpected attribute",
			src: `queue "q" {}
command "marker" "m" {
  queue = "q"
  size  = 3
}`,
			want: "Unsupported argument",
		},
		{
			name: "unknown queue",
			src:  `command "barrier" "b" { queue = "nope" }`,
			want: `unknown queue "nope"`,
		},
		{
			name: "unknown buffer",
			src: `queue "q" {}
command "read_buffer" "r" {
  queue  = "q"
  buffer = "nope"
  size   = 1
}`,
			want: `unknown buffer "nope"`,
		},
		{
			name: "wait for a later command",
			src: `queue "q" {}
command "marker" "first" {
  queue    = "q"
  wait_for = ["second"]
}
command "marker" "second" { queue = "q" }`,
			want: `wait_for "second" is not a user event or an earlier command`,
		},
		{
			name: "duplicate event name",
			src: `queue "q" {}
user_event "x" {}
command "marker" "x" { queue = "q" }`,
			want: "name already used",
		},
		{
			name: "signal of a command",
			src: `queue "q" {}
command "marker" "m" { queue = "q" }
command "signal" "s" { event = "m" }`,
			want: `"m" is not a user event`,
		},
		{
			name: "signal with bad status",
			src: `user_event "u" {}
command "signal" "s" {
  event  = "u"
  status = "maybe"
}`,
			want: "status must be",
		},
		{
			name: "value out of byte range",
			src: `buffer "b" {
  size = 2
  init = [256]
}`,
			want: "is not a byte",
		},
		{
			name: "init larger than buffer",
			src: `buffer "b" {
  size = 1
  init = [1, 2]
}`,
			want: "must be positive and hold 2 init bytes",
		},
		{
			name: "too many dimensions",
			src: `queue "q" {}
command "ndrange" "k" {
  queue  = "q"
  kernel = "fill"
  global = [1, 1, 1, 1]
}`,
			want: "1 to 3 dimensions",
		},
		{
			name: "local rank mismatch",
			src: `queue "q" {}
command "ndrange" "k" {
  queue  = "q"
  kernel = "fill"
  global = [4, 4]
  local  = [2]
}`,
			want: "local has 1 dimensions",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_Expressions(t *testing.T) {
	src := `
locals {
  n     = 4
  gates = "gate"
}

queue "main" {}

buffer "data" {
  size = local.n * 2
  init = range(1, 5)
}

user_event "gate" {}

command "fill_buffer" "zero" {
  queue    = "main"
  buffer   = "data"
  pattern  = [0]
  size     = buffer.data.size
  wait_for = [user_event.gate]
}

command "ndrange" "scale" {
  queue    = "main"
  kernel   = "scale"
  global   = [max(local.n, 2)]
  args     = { buffer = "data", factor = local.n }
  wait_for = [command.zero, local.gates]
}
`
	w, err := Parse([]byte(src), "expr.hcl")
	require.NoError(t, err)

	data, ok := w.Buffer("data")
	require.True(t, ok)
	assert.Equal(t, 8, data.Size)
	assert.Equal(t, []byte{1, 2, 3, 4}, data.Init)

	require.Len(t, w.Commands, 2)
	zero, scale := w.Commands[0], w.Commands[1]
	assert.Equal(t, 8, zero.Size)
	assert.Equal(t, []string{"gate"}, zero.WaitFor)
	assert.Equal(t, [3]int{4, 0, 0}, scale.Global)
	assert.True(t, scale.Args.GetAttr("factor").Equals(cty.NumberIntVal(4)).True())
	assert.Equal(t, []string{"zero", "gate"}, scale.WaitFor)
}

func TestParse_ReferenceErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "command reference to a later command",
			src: `queue "q" {}
command "marker" "first" {
  queue    = "q"
  wait_for = [command.second]
}
command "marker" "second" { queue = "q" }`,
			want: "wait_for command.second is not an earlier command",
		},
		{
			name: "user_event reference to a command",
			src: `queue "q" {}
command "marker" "m" { queue = "q" }
command "marker" "n" {
  queue    = "q"
  wait_for = [user_event.m]
}`,
			want: "wait_for user_event.m is not a declared user event",
		},
		{
			name: "command reference to a user event",
			src: `queue "q" {}
user_event "u" {}
command "marker" "n" {
  queue    = "q"
  wait_for = [command.u]
}`,
			want: "wait_for command.u is not an earlier command",
		},
		{
			name: "malformed reference",
			src: `queue "q" {}
command "marker" "m" { queue = "q" }
command "marker" "n" {
  queue    = "q"
  wait_for = [command.m.output]
}`,
			want: "must have the form command.<name>",
		},
		{
			name: "wait_for is not a list",
			src: `queue "q" {}
command "marker" "n" {
  queue    = "q"
  wait_for = "m"
}`,
			want: "wait_for:",
		},
		{
			name: "unknown local",
			src: `buffer "b" { size = local.missing }`,
			want: "Unsupported attribute",
		},
		{
			name: "local declared twice",
			src: `locals { a = 1 }
locals { a = 2 }`,
			want: `local "a" declared twice`,
		},
		{
			name: "locals cannot reference each other",
			src: `locals {
  a = 1
  b = local.a
}`,
			want: `local "b"`,
		},
		{
			name: "buffer sizes are not visible to declarations",
			src: `buffer "a" { size = 2 }
buffer "b" { size = buffer.a.size }`,
			want: "Unknown variable",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "refs.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("files are merged in path order", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "01_setup.hcl"), []byte(`queue "q" {}
user_event "go" {}`), 0o600))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "steps"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "steps", "run.hcl"), []byte(`command "marker" "m" {
  queue    = "q"
  wait_for = ["go"]
}`), 0o600))

		w, err := Load(context.Background(), dir)
		require.NoError(t, err)

		require.Len(t, w.Commands, 1)
		assert.Equal(t, filepath.Join(dir, "steps", "run.hcl"), w.Commands[0].File)
	})

	t.Run("locals and references cross files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`command "read_buffer" "r" {
  queue    = "q"
  buffer   = "b"
  size     = buffer.b.size
  wait_for = [user_event.go]
}`), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`locals { size = 3 }
queue "q" {}
buffer "b" { size = local.size }
user_event "go" {}`), 0o600))

		w, err := Load(context.Background(), dir)
		require.NoError(t, err)

		require.Len(t, w.Commands, 1)
		assert.Equal(t, 3, w.Commands[0].Size)
		assert.Equal(t, []string{"go"}, w.Commands[0].WaitFor)
	})

	t.Run("empty directory", func(t *testing.T) {
		w, err := Load(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, w.Commands)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
		assert.ErrorContains(t, err, "failed to find workload files")
	})
}
