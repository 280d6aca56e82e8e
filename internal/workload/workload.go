// Package workload describes a run declaratively: the queues to create, the
// buffers and user events they share, and the commands to enqueue, in order.
// The model is format-agnostic; Load reads it from HCL files.
//
// In HCL, values may be expressions over local.<name> (from locals blocks)
// and a few functions such as range and max; command blocks may also read
// buffer.<name>.size. A wait_for entry is either a name or a reference of the
// form command.<name> or user_event.<name>.
package workload

import "github.com/zclconf/go-cty/cty"

// Kind names a command block type.
type Kind string

const (
	KindWriteBuffer   Kind = "write_buffer"
	KindReadBuffer    Kind = "read_buffer"
	KindCopyBuffer    Kind = "copy_buffer"
	KindFillBuffer    Kind = "fill_buffer"
	KindNDRange       Kind = "ndrange"
	KindTask          Kind = "task"
	KindMarker        Kind = "marker"
	KindBarrier       Kind = "barrier"
	KindWaitForEvents Kind = "wait_for_events"
	KindSignal        Kind = "signal"
)

// Workload is the whole run.
type Workload struct {
	Queues     []*Queue
	Buffers    []*Buffer
	UserEvents []*UserEvent
	// Commands are enqueued in this order.
	Commands []*Command
}

// Queue is a `queue` block.
type Queue struct {
	Name       string
	OutOfOrder bool
	Profiling  bool
}

// Buffer is a `buffer` block.
type Buffer struct {
	Name string
	Size int
	Init []byte
}

// UserEvent is a `user_event` block.
type UserEvent struct {
	Name string
}

// Command is a `command` block. Which payload fields are set depends on Kind.
type Command struct {
	Kind    Kind
	Name    string
	File    string
	Queue   string
	WaitFor []string
	// waitRoots[i] is the traversal root WaitFor[i] was written with, empty
	// for a plain name.
	waitRoots []string

	// Buffer commands.
	Buffer    string
	Src       string
	Dst       string
	Offset    int
	SrcOffset int
	DstOffset int
	Size      int
	Data      []byte
	Pattern   []byte

	// Kernel commands.
	Kernel       string
	Args         cty.Value
	Dims         int
	GlobalOffset [3]int
	Global       [3]int
	Local        [3]int

	// Signal commands.
	Event  string
	Failed bool
}

func (c *Command) waitRoot(i int) string {
	if i < len(c.waitRoots) {
		return c.waitRoots[i]
	}
	return ""
}

// Queue returns the queue declared under name.
func (w *Workload) Queue(name string) (*Queue, bool) {
	for _, q := range w.Queues {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// Buffer returns the buffer declared under name.
func (w *Workload) Buffer(name string) (*Buffer, bool) {
	for _, b := range w.Buffers {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}
