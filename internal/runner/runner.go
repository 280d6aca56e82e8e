// Package runner executes a workload against the CPU device through the
// handle API and collects the outcome of every command.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/burstqueue/internal/clapi"
	"github.com/specialistvlad/burstqueue/internal/cpudevice"
	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/eventstore"
	"github.com/specialistvlad/burstqueue/internal/kernels"
	"github.com/specialistvlad/burstqueue/internal/memobject"
	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/report"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
	"github.com/specialistvlad/burstqueue/internal/workload"
)

// Tracker follows the event of each enqueued command.
type Tracker interface {
	Track(ctx context.Context, name string, e *scheduler.Event) error
}

// Runner runs workloads on a fresh CPU device per run.
type Runner struct {
	kernels  *kernels.Kernels
	workers  int
	trackers []Tracker
}

// New creates a runner resolving kernel commands against k and running them
// on a device with the given number of workers. Every enqueued event is also
// handed to trackers.
func New(k *kernels.Kernels, workers int, trackers ...Tracker) *Runner {
	return &Runner{kernels: k, workers: workers, trackers: trackers}
}

// session holds the handles of one run.
type session struct {
	ctx    object.Handle
	owned  []object.Handle
	queues map[string]object.Handle
	bufs   map[string]object.Handle
	users  map[string]object.Handle
	// events holds the user events and every command that was enqueued.
	events   map[string]object.Handle
	signaled map[string]bool
	failures map[string]error
	outputs  map[string][]byte
	store    *eventstore.Store
}

func (s *session) own(h object.Handle) object.Handle {
	s.owned = append(s.owned, h)
	return h
}

// release drops every handle in reverse creation order, so events go before
// the buffers and queues they reference and the context goes last.
func (s *session) release(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for i := len(s.owned) - 1; i >= 0; i-- {
		if err := clapi.Release(s.owned[i]); err != nil {
			logger.Warn("Failed to release handle.", "handle", s.owned[i], "error", err)
		}
	}
	s.owned = nil
}

// Run enqueues every command of w in order, flushes and then finishes every
// queue, and returns the report. When ctx ends first the report is still
// returned, together with the context error.
func (r *Runner) Run(ctx context.Context, w *workload.Workload) (*report.Report, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	dev := cpudevice.New(ctx, "cpu", r.workers)
	devH := clapi.RegisterDevice(dev)
	s := &session{
		queues:   make(map[string]object.Handle),
		bufs:     make(map[string]object.Handle),
		users:    make(map[string]object.Handle),
		events:   make(map[string]object.Handle),
		signaled: make(map[string]bool),
		failures: make(map[string]error),
		outputs:  make(map[string][]byte),
		store:    eventstore.New(),
	}
	defer func() {
		s.release(ctx)
		if err := clapi.UnregisterDevice(devH); err != nil {
			logger.Warn("Failed to unregister device.", "error", err)
		}
		if err := dev.Close(); err != nil {
			logger.Warn("Failed to close device.", "error", err)
		}
	}()

	if err := r.setup(ctx, s, devH, w); err != nil {
		return nil, err
	}

	logger.Info("Enqueueing commands.", "count", len(w.Commands))
	for _, c := range w.Commands {
		cmdLogger := logger.With("command", c.Name, "kind", c.Kind)
		if err := r.enqueue(ctx, s, c); err != nil {
			cmdLogger.Error("Failed to enqueue command.", "error", err)
			s.failures[c.Name] = err
			continue
		}
		cmdLogger.Debug("Command enqueued.")
	}

	// Nothing is left to signal a user event the workload never signalled,
	// so its dependents would hold their queues forever.
	for _, u := range w.UserEvents {
		if s.signaled[u.Name] {
			continue
		}
		logger.Warn("User event was never signalled, cancelling it.", "userEvent", u.Name)
		if err := clapi.SetUserEventStatus(s.users[u.Name], scheduler.StatusFromCode(scheduler.CodeCancelled)); err != nil {
			logger.Warn("Failed to cancel user event.", "userEvent", u.Name, "error", err)
		}
	}

	var runErr error
	for _, q := range w.Queues {
		if err := clapi.Flush(ctx, s.queues[q.Name]); err != nil {
			runErr = fmt.Errorf("flush of queue '%s' interrupted: %w", q.Name, err)
			break
		}
	}
	if runErr == nil {
		logger.Info("Waiting for all queues to finish...")
		for _, q := range w.Queues {
			if err := clapi.Finish(ctx, s.queues[q.Name]); err != nil {
				runErr = fmt.Errorf("finish of queue '%s' interrupted: %w", q.Name, err)
				break
			}
		}
	}
	if runErr == nil {
		logger.Info("All queues finished.")
	}

	rep := s.report(ctx, w)
	rep.StartedAt = started
	rep.Duration = time.Since(started)
	return rep, runErr
}

// setup creates the context, queues, buffers and user events of w.
func (r *Runner) setup(ctx context.Context, s *session, devH object.Handle, w *workload.Workload) error {
	logger := ctxlog.FromContext(ctx)

	c, err := clapi.CreateContext(ctx, devH)
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	s.ctx = s.own(c)

	for _, q := range w.Queues {
		h, err := clapi.CreateCommandQueue(s.ctx, devH, scheduler.QueueProperties{OutOfOrder: q.OutOfOrder, Profiling: q.Profiling})
		if err != nil {
			return fmt.Errorf("failed to create queue '%s': %w", q.Name, err)
		}
		s.queues[q.Name] = s.own(h)
		logger.Debug("Created queue.", "queue", q.Name, "outOfOrder", q.OutOfOrder, "profiling", q.Profiling)
	}
	for _, b := range w.Buffers {
		h, err := clapi.CreateBuffer(s.ctx, b.Size, b.Init)
		if err != nil {
			return fmt.Errorf("failed to create buffer '%s': %w", b.Name, err)
		}
		s.bufs[b.Name] = s.own(h)
	}
	for _, u := range w.UserEvents {
		h, err := clapi.CreateUserEvent(s.ctx)
		if err != nil {
			return fmt.Errorf("failed to create user event '%s': %w", u.Name, err)
		}
		s.users[u.Name] = s.own(h)
		s.events[u.Name] = h
	}
	return nil
}

func (s *session) buffer(name string) (object.Handle, error) {
	h, ok := s.bufs[name]
	if !ok {
		return 0, &scheduler.Error{Code: scheduler.CodeInvalidMemObject, Op: "resolve buffer", Err: fmt.Errorf("unknown buffer %q", name)}
	}
	return h, nil
}

func (s *session) resolve(name string) (*memobject.Buffer, error) {
	h, err := s.buffer(name)
	if err != nil {
		return nil, err
	}
	return clapi.Buffer(h)
}

func (s *session) waitList(c *workload.Command) ([]object.Handle, error) {
	var list []object.Handle
	for _, name := range c.WaitFor {
		h, ok := s.events[name]
		if !ok {
			return nil, &scheduler.Error{Code: scheduler.CodeInvalidEventWaitList, Op: "resolve wait list", Err: fmt.Errorf("%q has no event", name)}
		}
		list = append(list, h)
	}
	return list, nil
}

// enqueue submits one command and tracks the event it returns.
func (r *Runner) enqueue(ctx context.Context, s *session, c *workload.Command) error {
	if c.Kind == workload.KindSignal {
		status := scheduler.Complete
		if c.Failed {
			status = scheduler.StatusFromCode(scheduler.CodeExecFailed)
		}
		h, ok := s.users[c.Event]
		if !ok {
			return &scheduler.Error{Code: scheduler.CodeInvalidEvent, Op: "signal", Err: fmt.Errorf("unknown user event %q", c.Event)}
		}
		if err := clapi.SetUserEventStatus(h, status); err != nil {
			return err
		}
		s.signaled[c.Event] = true
		return nil
	}

	q, ok := s.queues[c.Queue]
	if !ok {
		return &scheduler.Error{Code: scheduler.CodeInvalidCommandQueue, Op: "enqueue", Err: fmt.Errorf("unknown queue %q", c.Queue)}
	}
	waitList, err := s.waitList(c)
	if err != nil {
		return err
	}

	var h object.Handle
	switch c.Kind {
	case workload.KindWriteBuffer:
		var b object.Handle
		if b, err = s.buffer(c.Buffer); err == nil {
			h, err = clapi.EnqueueWriteBuffer(q, b, c.Offset, c.Data, waitList)
		}
	case workload.KindReadBuffer:
		if c.Size < 0 {
			return &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: "enqueue read buffer", Err: fmt.Errorf("negative size %d", c.Size)}
		}
		var b object.Handle
		if b, err = s.buffer(c.Buffer); err == nil {
			dst := make([]byte, c.Size)
			if h, err = clapi.EnqueueReadBuffer(q, b, c.Offset, dst, waitList); err == nil {
				s.outputs[c.Name] = dst
			}
		}
	case workload.KindCopyBuffer:
		var src, dst object.Handle
		if src, err = s.buffer(c.Src); err == nil {
			if dst, err = s.buffer(c.Dst); err == nil {
				h, err = clapi.EnqueueCopyBuffer(q, src, dst, c.SrcOffset, c.DstOffset, c.Size, waitList)
			}
		}
	case workload.KindFillBuffer:
		var b object.Handle
		if b, err = s.buffer(c.Buffer); err == nil {
			h, err = clapi.EnqueueFillBuffer(q, b, c.Pattern, c.Offset, c.Size, waitList)
		}
	case workload.KindNDRange, workload.KindTask:
		k, buildErr := r.kernels.Build(c.Kernel, c.Args, s.resolve)
		if buildErr != nil {
			return &scheduler.Error{Code: scheduler.CodeInvalidKernel, Op: "build kernel", Err: buildErr}
		}
		if c.Kind == workload.KindTask {
			h, err = clapi.EnqueueTask(q, k, waitList)
		} else {
			h, err = clapi.EnqueueNDRangeKernel(q, k, clapi.NDRange{Dims: c.Dims, Offset: c.GlobalOffset, Global: c.Global, Local: c.Local}, waitList)
		}
	case workload.KindMarker:
		h, err = clapi.EnqueueMarker(q, waitList)
	case workload.KindBarrier:
		if len(waitList) > 0 {
			// A barrier with a wait list is a wait-for-events command.
			h, err = clapi.EnqueueWaitForEvents(q, waitList)
		} else {
			h, err = clapi.EnqueueBarrier(q)
		}
	case workload.KindWaitForEvents:
		h, err = clapi.EnqueueWaitForEvents(q, waitList)
	default:
		err = &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: "enqueue", Err: errors.New("unknown command kind")}
	}
	if err != nil {
		return err
	}

	s.events[c.Name] = s.own(h)
	e, err := clapi.Event(h)
	if err != nil {
		return err
	}
	if err := s.store.Track(ctx, c.Name, e); err != nil {
		return err
	}
	for _, t := range r.trackers {
		if err := t.Track(ctx, c.Name, e); err != nil {
			ctxlog.FromContext(ctx).Warn("Tracker rejected event.", "command", c.Name, "error", err)
		}
	}
	return nil
}

// report builds one entry per command in file order.
func (s *session) report(ctx context.Context, w *workload.Workload) *report.Report {
	rep := &report.Report{Commands: make([]report.Command, 0, len(w.Commands))}
	for _, c := range w.Commands {
		entry := report.Command{Name: c.Name, Kind: string(c.Kind), Queue: c.Queue}

		if err, failed := s.failures[c.Name]; failed {
			code := scheduler.CodeOf(err)
			entry.Status = scheduler.StatusFromCode(code).String()
			entry.Code = int32(code)
			entry.Error = err.Error()
			rep.Commands = append(rep.Commands, entry)
			continue
		}
		if c.Kind == workload.KindSignal {
			entry.Status = scheduler.Complete.String()
			rep.Commands = append(rep.Commands, entry)
			continue
		}

		status, _ := s.store.GetStatus(ctx, c.Name)
		entry.Status = status.String()
		entry.Code = int32(status.Code())
		if cmdErr, _ := s.store.GetError(ctx, c.Name); cmdErr != nil {
			entry.Error = cmdErr.Error()
		}
		if info, ok := s.store.GetTimings(ctx, c.Name); ok {
			entry.Queued, entry.Submit, entry.Start, entry.End = info.Queued, info.Submit, info.Start, info.End
		}
		if out, ok := s.outputs[c.Name]; ok && status == scheduler.Complete {
			entry.Output = out
		}
		rep.Commands = append(rep.Commands, entry)
	}
	return rep
}
