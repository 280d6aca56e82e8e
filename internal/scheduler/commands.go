package scheduler

import (
	"github.com/specialistvlad/burstqueue/internal/memobject"
	"github.com/specialistvlad/burstqueue/internal/object"
)

// Command is the payload of an event. Backends type-switch on the concrete
// pointer types declared in this file. A command value is copied when an
// event is built from it, so the caller may reuse it afterwards.
type Command interface {
	Type() CommandType

	// prepare validates the command against the context it is enqueued in
	// and returns the normalized copy the event keeps.
	prepare(c *Context) (Command, error)
	memObjects() []*memobject.Buffer
}

// ReadBuffer copies Len(Dst) bytes at Offset out of Buffer. Dst must not be
// touched until the event is terminal.
type ReadBuffer struct {
	Buffer *memobject.Buffer
	Offset int
	Dst    []byte
}

// WriteBuffer copies Src into Buffer at Offset. Src is captured when the
// event is built.
type WriteBuffer struct {
	Buffer *memobject.Buffer
	Offset int
	Src    []byte
}

// CopyBuffer copies Size bytes between two buffers.
type CopyBuffer struct {
	Src       *memobject.Buffer
	Dst       *memobject.Buffer
	SrcOffset int
	DstOffset int
	Size      int
}

// FillBuffer repeats Pattern over Size bytes of Buffer starting at Offset.
type FillBuffer struct {
	Buffer  *memobject.Buffer
	Pattern []byte
	Offset  int
	Size    int
}

// WorkGroup describes one work group of an NDRange execution.
type WorkGroup struct {
	Dims         int
	ID           [3]int
	Size         [3]int
	GlobalOffset [3]int
	GlobalSize   [3]int
}

// First returns the global id of the first work item of the group.
func (g WorkGroup) First() [3]int {
	var out [3]int
	for i := range out {
		out[i] = g.GlobalOffset[i] + g.ID[i]*g.Size[i]
	}
	return out
}

// Each calls fn with the global id of every work item of the group, the
// first dimension varying fastest.
func (g WorkGroup) Each(fn func(id [3]int) error) error {
	first := g.First()
	for z := 0; z < g.Size[2]; z++ {
		for y := 0; y < g.Size[1]; y++ {
			for x := 0; x < g.Size[0]; x++ {
				if err := fn([3]int{first[0] + x, first[1] + y, first[2] + z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Kernel is the code an NDRange command runs, one work group per call. Run
// may be called concurrently for different groups.
type Kernel interface {
	Name() string
	Run(g WorkGroup) error
}

// BufferArgs is implemented by kernels bound to buffers. Those buffers must
// belong to the context of the queue and are retained by the event.
type BufferArgs interface {
	Buffers() []*memobject.Buffer
}

// NDRangeKernel runs Kernel over a Dims-dimensional index space. Entries past
// Dims are ignored. A zero Local lets the backend choose the group size.
type NDRangeKernel struct {
	Kernel Kernel
	Dims   int
	Offset [3]int
	Global [3]int
	Local  [3]int

	task bool
}

// Task returns a command running kernel as a single work item.
func Task(kernel Kernel) *NDRangeKernel {
	return &NDRangeKernel{Kernel: kernel, Dims: 1, Global: [3]int{1, 1, 1}, Local: [3]int{1, 1, 1}, task: true}
}

// LocalUnset reports whether the backend must pick the work group size.
func (k *NDRangeKernel) LocalUnset() bool {
	return k.Local == [3]int{}
}

// NativeKernel runs a host function.
type NativeKernel struct {
	Func func() error
}

// Marker completes once its wait list has. On an out-of-order queue an empty
// wait list stands for every event not yet terminal when the marker is built.
type Marker struct{}

// Barrier keeps every later event of its queue from being dispatched until
// it completes.
type Barrier struct{}

// WaitForEvents blocks every later event of its queue until its wait list
// completes.
type WaitForEvents struct{}

type userCommand struct{}

func (*ReadBuffer) Type() CommandType    { return CommandReadBuffer }
func (*WriteBuffer) Type() CommandType   { return CommandWriteBuffer }
func (*CopyBuffer) Type() CommandType    { return CommandCopyBuffer }
func (*FillBuffer) Type() CommandType    { return CommandFillBuffer }
func (*NativeKernel) Type() CommandType  { return CommandNativeKernel }
func (*Marker) Type() CommandType        { return CommandMarker }
func (*Barrier) Type() CommandType       { return CommandBarrier }
func (*WaitForEvents) Type() CommandType { return CommandWaitForEvents }
func (userCommand) Type() CommandType    { return CommandUser }

func (k *NDRangeKernel) Type() CommandType {
	if k.task {
		return CommandTask
	}
	return CommandNDRangeKernel
}

func checkBuffer(c *Context, b *memobject.Buffer, op string) error {
	if b == nil || !b.IsLive() {
		return newError(CodeInvalidMemObject, op, "buffer is not live")
	}
	if b.Parent() != object.Refcounted(c) {
		return newError(CodeInvalidContext, op, "buffer %s belongs to another context", b.Handle())
	}
	return nil
}

func (r *ReadBuffer) prepare(c *Context) (Command, error) {
	const op = "enqueue read buffer"
	if err := checkBuffer(c, r.Buffer, op); err != nil {
		return nil, err
	}
	if err := r.Buffer.CheckRange(r.Offset, len(r.Dst)); err != nil {
		return nil, newError(CodeInvalidValue, op, "%w", err)
	}
	cp := *r
	return &cp, nil
}

func (w *WriteBuffer) prepare(c *Context) (Command, error) {
	const op = "enqueue write buffer"
	if err := checkBuffer(c, w.Buffer, op); err != nil {
		return nil, err
	}
	if err := w.Buffer.CheckRange(w.Offset, len(w.Src)); err != nil {
		return nil, newError(CodeInvalidValue, op, "%w", err)
	}
	cp := *w
	cp.Src = append([]byte(nil), w.Src...)
	return &cp, nil
}

func (cb *CopyBuffer) prepare(c *Context) (Command, error) {
	const op = "enqueue copy buffer"
	if err := checkBuffer(c, cb.Src, op); err != nil {
		return nil, err
	}
	if err := checkBuffer(c, cb.Dst, op); err != nil {
		return nil, err
	}
	if err := cb.Src.CheckRange(cb.SrcOffset, cb.Size); err != nil {
		return nil, newError(CodeInvalidValue, op, "source: %w", err)
	}
	if err := cb.Dst.CheckRange(cb.DstOffset, cb.Size); err != nil {
		return nil, newError(CodeInvalidValue, op, "destination: %w", err)
	}
	if cb.Src == cb.Dst && memobject.Overlaps(cb.SrcOffset, cb.DstOffset, cb.Size) {
		return nil, newError(CodeMemCopyOverlap, op, "")
	}
	cp := *cb
	return &cp, nil
}

func (f *FillBuffer) prepare(c *Context) (Command, error) {
	const op = "enqueue fill buffer"
	if err := checkBuffer(c, f.Buffer, op); err != nil {
		return nil, err
	}
	if len(f.Pattern) == 0 || f.Size%len(f.Pattern) != 0 {
		return nil, newError(CodeInvalidValue, op, "size %d is not a multiple of pattern size %d", f.Size, len(f.Pattern))
	}
	if err := f.Buffer.CheckRange(f.Offset, f.Size); err != nil {
		return nil, newError(CodeInvalidValue, op, "%w", err)
	}
	cp := *f
	cp.Pattern = append([]byte(nil), f.Pattern...)
	return &cp, nil
}

func (k *NDRangeKernel) prepare(c *Context) (Command, error) {
	const op = "enqueue ndrange kernel"
	if k.Kernel == nil {
		return nil, newError(CodeInvalidKernel, op, "")
	}
	if k.Dims < 1 || k.Dims > 3 {
		return nil, newError(CodeInvalidWorkDimension, op, "%d dimensions", k.Dims)
	}
	if ba, ok := k.Kernel.(BufferArgs); ok {
		for _, b := range ba.Buffers() {
			if err := checkBuffer(c, b, op); err != nil {
				return nil, err
			}
		}
	}

	cp := *k
	localUnset := k.LocalUnset()
	for i := 0; i < 3; i++ {
		if i >= k.Dims {
			cp.Offset[i], cp.Global[i] = 0, 1
			if !localUnset {
				cp.Local[i] = 1
			}
			continue
		}
		if k.Global[i] <= 0 || k.Offset[i] < 0 {
			return nil, newError(CodeInvalidGlobalWorkSize, op, "dimension %d: global %d offset %d", i, k.Global[i], k.Offset[i])
		}
		if localUnset {
			continue
		}
		if k.Local[i] <= 0 || k.Global[i]%k.Local[i] != 0 {
			return nil, newError(CodeInvalidWorkGroupSize, op, "dimension %d: local %d does not divide global %d", i, k.Local[i], k.Global[i])
		}
	}
	return &cp, nil
}

func (n *NativeKernel) prepare(*Context) (Command, error) {
	if n.Func == nil {
		return nil, newError(CodeInvalidValue, "enqueue native kernel", "nil function")
	}
	cp := *n
	return &cp, nil
}

func (*Marker) prepare(*Context) (Command, error)        { return &Marker{}, nil }
func (*Barrier) prepare(*Context) (Command, error)       { return &Barrier{}, nil }
func (*WaitForEvents) prepare(*Context) (Command, error) { return &WaitForEvents{}, nil }
func (userCommand) prepare(*Context) (Command, error)    { return userCommand{}, nil }

func (r *ReadBuffer) memObjects() []*memobject.Buffer  { return []*memobject.Buffer{r.Buffer} }
func (w *WriteBuffer) memObjects() []*memobject.Buffer { return []*memobject.Buffer{w.Buffer} }
func (f *FillBuffer) memObjects() []*memobject.Buffer  { return []*memobject.Buffer{f.Buffer} }

func (cb *CopyBuffer) memObjects() []*memobject.Buffer {
	if cb.Src == cb.Dst {
		return []*memobject.Buffer{cb.Src}
	}
	return []*memobject.Buffer{cb.Src, cb.Dst}
}

func (k *NDRangeKernel) memObjects() []*memobject.Buffer {
	if ba, ok := k.Kernel.(BufferArgs); ok {
		return ba.Buffers()
	}
	return nil
}

func (*NativeKernel) memObjects() []*memobject.Buffer  { return nil }
func (*Marker) memObjects() []*memobject.Buffer        { return nil }
func (*Barrier) memObjects() []*memobject.Buffer       { return nil }
func (*WaitForEvents) memObjects() []*memobject.Buffer { return nil }
func (userCommand) memObjects() []*memobject.Buffer    { return nil }
