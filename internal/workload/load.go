package workload

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/fsutil"
)

// A workload file is decoded in three passes so that later blocks can
// reference what earlier passes produced: locals first, then declarations
// (which may use local.*), then commands (which may also use buffer.*).
type hclLocalsPass struct {
	Locals []*hclLocals `hcl:"locals,block"`
	Remain hcl.Body     `hcl:",remain"`
}

type hclLocals struct {
	Attrs hcl.Attributes `hcl:",remain"`
}

type hclDeclarationsPass struct {
	Queues     []*hclQueue     `hcl:"queue,block"`
	Buffers    []*hclBuffer    `hcl:"buffer,block"`
	UserEvents []*hclUserEvent `hcl:"user_event,block"`
	Remain     hcl.Body        `hcl:",remain"`
}

type hclCommandsPass struct {
	Commands []*hclCommand `hcl:"command,block"`
}

// sourceFile is a parsed file waiting for its next decode pass.
type sourceFile struct {
	name string
	body hcl.Body
}

type hclQueue struct {
	Name       string `hcl:"name,label"`
	OutOfOrder *bool  `hcl:"out_of_order,optional"`
	Profiling  *bool  `hcl:"profiling,optional"`
}

type hclBuffer struct {
	Name string `hcl:"name,label"`
	Size int    `hcl:"size"`
	Init []int  `hcl:"init,optional"`
}

type hclUserEvent struct {
	Name string `hcl:"name,label"`
}

type hclCommand struct {
	Kind    string         `hcl:"kind,label"`
	Name    string         `hcl:"name,label"`
	Queue   string         `hcl:"queue,optional"`
	WaitFor *hcl.Attribute `hcl:"wait_for,optional"`
	Remain  hcl.Body       `hcl:",remain"`
}

type hclWriteBuffer struct {
	Buffer string `hcl:"buffer"`
	Offset int    `hcl:"offset,optional"`
	Data   []int  `hcl:"data"`
}

type hclReadBuffer struct {
	Buffer string `hcl:"buffer"`
	Offset int    `hcl:"offset,optional"`
	Size   int    `hcl:"size"`
}

type hclCopyBuffer struct {
	Src       string `hcl:"src"`
	Dst       string `hcl:"dst"`
	SrcOffset int    `hcl:"src_offset,optional"`
	DstOffset int    `hcl:"dst_offset,optional"`
	Size      int    `hcl:"size"`
}

type hclFillBuffer struct {
	Buffer  string `hcl:"buffer"`
	Pattern []int  `hcl:"pattern"`
	Offset  int    `hcl:"offset,optional"`
	Size    int    `hcl:"size"`
}

type hclNDRange struct {
	Kernel string    `hcl:"kernel"`
	Args   cty.Value `hcl:"args,optional"`
	Global []int     `hcl:"global"`
	Local  []int     `hcl:"local,optional"`
	Offset []int     `hcl:"offset,optional"`
}

type hclTask struct {
	Kernel string    `hcl:"kernel"`
	Args   cty.Value `hcl:"args,optional"`
}

type hclSignal struct {
	Event  string `hcl:"event"`
	Status string `hcl:"status,optional"`
}

type hclEmpty struct{}

// Load finds every .hcl file under path and decodes them, in path order, into
// one workload.
func Load(ctx context.Context, path string) (*Workload, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workload from path.", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find workload files in %s: %w", path, err)
	}

	w := &Workload{}
	if len(files) == 0 {
		logger.Warn("No .hcl workload files found in path, returning empty workload.", "path", path)
		return w, nil
	}

	parser := hclparse.NewParser()
	sources := make([]sourceFile, 0, len(files))
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		sources = append(sources, sourceFile{name: file, body: f.Body})
	}
	if err := w.decode(sources); err != nil {
		return nil, err
	}
	if err := w.validate(); err != nil {
		return nil, err
	}

	logger.Debug("Workload loaded.", "files", len(files), "queues", len(w.Queues), "buffers", len(w.Buffers), "commands", len(w.Commands))
	return w, nil
}

// Parse decodes a single workload from src. filename is used in messages.
func Parse(src []byte, filename string) (*Workload, error) {
	w := &Workload{}
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	if err := w.decode([]sourceFile{{name: filename, body: f.Body}}); err != nil {
		return nil, err
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// decode runs the three passes over files. Each pass sees every file before
// the next pass starts, so a reference may cross files.
func (w *Workload) decode(files []sourceFile) error {
	locals := make(map[string]cty.Value)
	for i, f := range files {
		var root hclLocalsPass
		if diags := gohcl.DecodeBody(f.body, nil, &root); diags.HasErrors() {
			return fmt.Errorf("failed to decode HCL file %s: %w", f.name, diags)
		}
		if err := evalLocals(root.Locals, locals); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		files[i].body = root.Remain
	}

	evalCtx := newEvalContext(locals)
	for i, f := range files {
		var root hclDeclarationsPass
		if diags := gohcl.DecodeBody(f.body, evalCtx, &root); diags.HasErrors() {
			return fmt.Errorf("failed to decode HCL file %s: %w", f.name, diags)
		}
		if err := w.addDeclarations(&root, f.name); err != nil {
			return err
		}
		files[i].body = root.Remain
	}

	evalCtx = evalCtx.NewChild()
	evalCtx.Variables = map[string]cty.Value{"buffer": bufferObjects(w.Buffers)}
	for _, f := range files {
		var root hclCommandsPass
		if diags := gohcl.DecodeBody(f.body, evalCtx, &root); diags.HasErrors() {
			return fmt.Errorf("failed to decode HCL file %s: %w", f.name, diags)
		}
		for _, c := range root.Commands {
			cmd, err := decodeCommand(c, evalCtx)
			if err != nil {
				return fmt.Errorf("%s: command %q %q: %w", f.name, c.Kind, c.Name, err)
			}
			cmd.File = f.name
			w.Commands = append(w.Commands, cmd)
		}
	}
	return nil
}

func (w *Workload) addDeclarations(root *hclDeclarationsPass, filename string) error {
	for _, q := range root.Queues {
		w.Queues = append(w.Queues, &Queue{
			Name:       q.Name,
			OutOfOrder: q.OutOfOrder != nil && *q.OutOfOrder,
			Profiling:  q.Profiling != nil && *q.Profiling,
		})
	}
	for _, b := range root.Buffers {
		data, err := toBytes(b.Init)
		if err != nil {
			return fmt.Errorf("%s: buffer %q: init: %w", filename, b.Name, err)
		}
		w.Buffers = append(w.Buffers, &Buffer{Name: b.Name, Size: b.Size, Init: data})
	}
	for _, u := range root.UserEvents {
		w.UserEvents = append(w.UserEvents, &UserEvent{Name: u.Name})
	}
	return nil
}

func decodeCommand(c *hclCommand, evalCtx *hcl.EvalContext) (*Command, error) {
	cmd := &Command{
		Kind:  Kind(c.Kind),
		Name:  c.Name,
		Queue: c.Queue,
	}
	refs, err := decodeWaitList(c.WaitFor, evalCtx)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		cmd.WaitFor = append(cmd.WaitFor, ref.name)
		cmd.waitRoots = append(cmd.waitRoots, ref.root)
	}

	decode := func(target any) error {
		if diags := gohcl.DecodeBody(c.Remain, evalCtx, target); diags.HasErrors() {
			return diags
		}
		return nil
	}

	switch cmd.Kind {
	case KindWriteBuffer:
		var in hclWriteBuffer
		if err = decode(&in); err == nil {
			cmd.Buffer, cmd.Offset = in.Buffer, in.Offset
			cmd.Data, err = toBytes(in.Data)
			cmd.Size = len(cmd.Data)
		}
	case KindReadBuffer:
		var in hclReadBuffer
		if err = decode(&in); err == nil {
			cmd.Buffer, cmd.Offset, cmd.Size = in.Buffer, in.Offset, in.Size
		}
	case KindCopyBuffer:
		var in hclCopyBuffer
		if err = decode(&in); err == nil {
			cmd.Src, cmd.Dst = in.Src, in.Dst
			cmd.SrcOffset, cmd.DstOffset, cmd.Size = in.SrcOffset, in.DstOffset, in.Size
		}
	case KindFillBuffer:
		var in hclFillBuffer
		if err = decode(&in); err == nil {
			cmd.Buffer, cmd.Offset, cmd.Size = in.Buffer, in.Offset, in.Size
			cmd.Pattern, err = toBytes(in.Pattern)
		}
	case KindNDRange:
		var in hclNDRange
		if err = decode(&in); err == nil {
			cmd.Kernel, cmd.Args = in.Kernel, in.Args
			err = cmd.setRange(in.Global, in.Local, in.Offset)
		}
	case KindTask:
		var in hclTask
		if err = decode(&in); err == nil {
			cmd.Kernel, cmd.Args = in.Kernel, in.Args
		}
	case KindMarker, KindBarrier, KindWaitForEvents:
		err = decode(&hclEmpty{})
	case KindSignal:
		var in hclSignal
		if err = decode(&in); err == nil {
			cmd.Event = in.Event
			switch in.Status {
			case "", "complete":
			case "failed":
				cmd.Failed = true
			default:
				err = fmt.Errorf("status must be \"complete\" or \"failed\", got %q", in.Status)
			}
		}
	default:
		err = errors.New("unknown command kind")
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func (c *Command) setRange(global, local, offset []int) error {
	c.Dims = len(global)
	if c.Dims < 1 || c.Dims > 3 {
		return fmt.Errorf("global must have 1 to 3 dimensions, got %d", c.Dims)
	}
	if len(local) != 0 && len(local) != c.Dims {
		return fmt.Errorf("local has %d dimensions, global has %d", len(local), c.Dims)
	}
	if len(offset) != 0 && len(offset) != c.Dims {
		return fmt.Errorf("offset has %d dimensions, global has %d", len(offset), c.Dims)
	}
	copy(c.Global[:], global)
	copy(c.Local[:], local)
	copy(c.GlobalOffset[:], offset)
	return nil
}

// validate checks every name reference. Queues, buffers and user events may
// be declared anywhere; a command may only wait for user events and commands
// declared before it.
func (w *Workload) validate() error {
	queues := make(map[string]bool)
	for _, q := range w.Queues {
		if queues[q.Name] {
			return fmt.Errorf("queue %q declared twice", q.Name)
		}
		queues[q.Name] = true
	}
	buffers := make(map[string]bool)
	for _, b := range w.Buffers {
		if buffers[b.Name] {
			return fmt.Errorf("buffer %q declared twice", b.Name)
		}
		if b.Size <= 0 || len(b.Init) > b.Size {
			return fmt.Errorf("buffer %q: size %d must be positive and hold %d init bytes", b.Name, b.Size, len(b.Init))
		}
		buffers[b.Name] = true
	}
	events := make(map[string]bool)
	userEvents := make(map[string]bool)
	for _, u := range w.UserEvents {
		if events[u.Name] {
			return fmt.Errorf("user event %q declared twice", u.Name)
		}
		events[u.Name] = true
		userEvents[u.Name] = true
	}

	for _, c := range w.Commands {
		if events[c.Name] {
			return fmt.Errorf("command %q: name already used by another event", c.Name)
		}
		if c.Kind == KindSignal {
			if c.Queue != "" || len(c.WaitFor) != 0 {
				return fmt.Errorf("command %q: signal takes neither queue nor wait_for", c.Name)
			}
			if !userEvents[c.Event] {
				return fmt.Errorf("command %q: %q is not a user event", c.Name, c.Event)
			}
		} else if !queues[c.Queue] {
			return fmt.Errorf("command %q: unknown queue %q", c.Name, c.Queue)
		}
		for _, name := range []string{c.Buffer, c.Src, c.Dst} {
			if name != "" && !buffers[name] {
				return fmt.Errorf("command %q: unknown buffer %q", c.Name, name)
			}
		}
		for i, name := range c.WaitFor {
			switch c.waitRoot(i) {
			case rootUserEvent:
				if !userEvents[name] {
					return fmt.Errorf("command %q: wait_for %s.%s is not a declared user event", c.Name, rootUserEvent, name)
				}
			case rootCommand:
				if !events[name] || userEvents[name] {
					return fmt.Errorf("command %q: wait_for %s.%s is not an earlier command", c.Name, rootCommand, name)
				}
			default:
				if !events[name] {
					return fmt.Errorf("command %q: wait_for %q is not a user event or an earlier command", c.Name, name)
				}
			}
		}
		events[c.Name] = true
	}
	return nil
}

func toBytes(vals []int) ([]byte, error) {
	if vals == nil {
		return nil, nil
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("element %d: %d is not a byte", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
