package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/resource"
)

// Callback is invoked when an event reaches the status it was registered
// for. status is the status the event had when the callback fired, which is
// negative if the event failed.
type Callback func(e *Event, status Status)

// Event is the schedulable unit of work. It belongs to at most one command
// queue; user events belong to none and are completed by client code.
//
// The predecessor list is fixed at construction and each predecessor is
// retained for the lifetime of the event. Status only decreases; see Status.
type Event struct {
	object.Object

	res      *resource.Resource
	ctx      *Context
	queue    *CommandQueue
	cmd      Command
	waitList []*Event
	logger   *slog.Logger

	status      atomic.Int32
	settled     atomic.Bool
	enqueued    atomic.Bool
	backendInit atomic.Bool
	timing      [numTimings]atomic.Int64

	// Guarded by res.
	callbacks  map[Status][]Callback
	dependents []*CommandQueue

	dataMu      sync.Mutex
	backendData any
}

// newEvent validates waitList and builds an event. On error nothing is
// registered and nothing is retained.
func newEvent(c *Context, q *CommandQueue, cmd Command, waitList []*Event, initial Status) (*Event, error) {
	op := "create " + cmd.Type().String() + " event"
	for i, w := range waitList {
		if w == nil || !w.IsLive() {
			return nil, newError(CodeInvalidEventWaitList, op, "wait list entry %d is not a live event", i)
		}
		if w.ctx != c {
			return nil, newError(CodeInvalidContext, op, "wait list entry %d belongs to another context", i)
		}
		if w.Status().Failed() {
			return nil, newError(CodeExecStatusErrorForEventsInWaitList, op, "wait list entry %d failed with %s", i, w.Status().Code())
		}
	}

	e := &Event{
		res:       resource.New(),
		ctx:       c,
		queue:     q,
		cmd:       cmd,
		waitList:  slices.Clone(waitList),
		logger:    c.logger,
		callbacks: make(map[Status][]Callback),
	}
	e.status.Store(int32(initial))

	for _, w := range e.waitList {
		w.Retain()
		if q != nil && w.queue != q {
			w.addDependentQueue(q)
		}
	}
	for _, b := range cmd.memObjects() {
		b.Retain()
	}

	var parent object.Refcounted = c
	if q != nil {
		parent = q
	}
	e.Init(e, object.TypeEvent, parent, e.destroy)
	e.logger = e.logger.With("event", e.Handle(), "command", cmd.Type())
	return e, nil
}

// NewUserEvent creates an event completed by client code through
// SetUserStatus. It starts Submitted and belongs to no queue.
func NewUserEvent(c *Context) (*Event, error) {
	if c == nil || !c.IsLive() {
		return nil, newError(CodeInvalidContext, "create user event", "")
	}
	return newEvent(c, nil, userCommand{}, nil, Submitted)
}

func (e *Event) destroy() {
	e.res.MarkForDestruction(func() {
		for _, w := range e.waitList {
			w.Release()
		}
		for _, b := range e.cmd.memObjects() {
			b.Release()
		}
		if e.backendInit.Load() {
			e.queue.backend.FreeEventData(e)
		}
		e.logger.Debug("Event destroyed.")
	})
}

// Status returns the current status.
func (e *Event) Status() Status {
	return Status(e.status.Load())
}

// Command returns the payload of the event.
func (e *Event) Command() Command { return e.cmd }

// CommandType returns the payload discriminator.
func (e *Event) CommandType() CommandType { return e.cmd.Type() }

// Queue returns the owning queue, nil for user events.
func (e *Event) Queue() *CommandQueue { return e.queue }

// Context returns the context the event was created in.
func (e *Event) Context() *Context { return e.ctx }

// WaitList returns the predecessors. The returned events are not retained
// for the caller.
func (e *Event) WaitList() []*Event { return slices.Clone(e.waitList) }

// SetBackendData attaches backend-private state.
func (e *Event) SetBackendData(v any) {
	e.dataMu.Lock()
	e.backendData = v
	e.dataMu.Unlock()
}

// BackendData returns the value set by SetBackendData.
func (e *Event) BackendData() any {
	e.dataMu.Lock()
	defer e.dataMu.Unlock()
	return e.backendData
}

// SetStatus moves the event to s. It is the backend's way of reporting
// progress on an event it was pushed: s must be strictly below the current
// status, and a Queued or terminal event cannot be moved. User events are
// completed with SetUserStatus instead.
func (e *Event) SetStatus(s Status) error {
	const op = "set event status"
	if e.cmd.Type() == CommandUser {
		return newError(CodeInvalidEvent, op, "user events are completed with SetUserStatus")
	}
	if s >= Queued {
		return newError(CodeInvalidValue, op, "%s is not a reachable status", s)
	}
	if cur, ok := e.transition(s, func(cur Status) bool { return cur != Queued && !cur.Terminal() && s < cur }); !ok {
		return newError(CodeInvalidOperation, op, "%s -> %s", cur, s)
	}
	return nil
}

// SetUserStatus completes a user event with Complete or a negative error
// code. It may be called once.
func (e *Event) SetUserStatus(s Status) error {
	const op = "set user event status"
	if e.cmd.Type() != CommandUser {
		return newError(CodeInvalidEvent, op, "%s is not a user event", e.Handle())
	}
	if !s.Terminal() {
		return newError(CodeInvalidValue, op, "%s is not terminal", s)
	}
	if cur, ok := e.transition(s, func(cur Status) bool { return cur == Submitted }); !ok {
		return newError(CodeInvalidOperation, op, "status already set to %s", cur)
	}
	return nil
}

// Cancel terminates an event that has not been handed to a backend yet.
// Events already Submitted or Running cannot be cancelled.
func (e *Event) Cancel() error {
	if e.cmd.Type() == CommandUser {
		return newError(CodeInvalidEvent, "cancel event", "user events are completed with SetUserStatus")
	}
	if cur, ok := e.transition(StatusFromCode(CodeCancelled), func(cur Status) bool { return cur == Queued }); !ok {
		return newError(CodeInvalidOperation, "cancel event", "event is %s", cur)
	}
	e.logger.Debug("Event cancelled.")
	return nil
}

// transition sets the status to s when allowed reports true for the current
// one. Waiters are woken and due callbacks run after the lock is dropped.
// On a terminal status the event is marked settled once its callbacks have
// returned, then the owning queue and every dependent queue are kicked.
func (e *Event) transition(s Status, allowed func(cur Status) bool) (Status, bool) {
	e.res.Acquire()
	cur := e.Status()
	if !allowed(cur) {
		e.res.Release()
		return cur, false
	}
	e.status.Store(int32(s))
	due := e.dueCallbacksLocked(s)
	var queues []*CommandQueue
	if s.Terminal() {
		queues = slices.Clone(e.dependents)
	}
	e.res.Release()

	e.logger.Debug("Event status changed.", "from", cur, "to", s)
	for _, cb := range due {
		cb(e, s)
	}
	if s.Terminal() {
		e.settled.Store(true)
		if e.queue != nil {
			e.queue.kick()
		}
		for _, q := range queues {
			q.kick()
		}
	}
	return cur, true
}

// dueCallbacksLocked removes the callbacks s has moved past and returns the
// ones that fire for s: those registered for s itself, plus the Complete ones
// when s is an error. Callbacks of a skipped status are dropped unfired.
func (e *Event) dueCallbacksLocked(s Status) []Callback {
	var due []Callback
	for _, k := range []Status{Submitted, Running, Complete} {
		if s > k {
			continue
		}
		if k == s || (k == Complete && s.Terminal()) {
			due = append(due, e.callbacks[k]...)
		}
		delete(e.callbacks, k)
	}
	return due
}

// Settled reports whether the event is terminal and the callbacks of its
// terminal status have returned.
func (e *Event) Settled() bool { return e.settled.Load() }

// SetCallback registers cb for status, which must be Submitted, Running or
// Complete. Complete callbacks also fire when the event fails. A pending
// callback fires only when the event moves to exactly its status, so one
// registered for a status the event skips never runs; for example the
// Running callbacks of an event failed before dispatch. If the event is
// already at or past status, cb runs immediately on the calling goroutine.
func (e *Event) SetCallback(status Status, cb Callback) error {
	if cb == nil || (status != Submitted && status != Running && status != Complete) {
		return newError(CodeInvalidValue, "set event callback", "")
	}
	e.res.Acquire()
	cur := e.Status()
	if cur > status {
		e.callbacks[status] = append(e.callbacks[status], cb)
		e.res.Release()
		return nil
	}
	e.res.Release()
	cb(e, cur)
	return nil
}

func (e *Event) addDependentQueue(q *CommandQueue) {
	e.res.Acquire()
	if !slices.Contains(e.dependents, q) {
		e.dependents = append(e.dependents, q)
	}
	e.res.Release()
}

// WaitForStatus blocks until the event has reached status s or a later one,
// which includes failing. It returns the status observed.
func (e *Event) WaitForStatus(ctx context.Context, s Status) (Status, error) {
	e.res.Acquire()
	err := e.res.WaitContext(ctx, func() bool { return e.Status() <= s })
	cur := e.Status()
	e.res.Release()
	return cur, err
}

// Wait blocks until the event is terminal. It returns the error carried by a
// failed status, or the context error.
func (e *Event) Wait(ctx context.Context) error {
	s, err := e.WaitForStatus(ctx, Complete)
	if err != nil {
		return err
	}
	return s.Err()
}

// UpdateTiming records the current time in counter t unless it is already
// set. It reports whether the counter was written.
func (e *Event) UpdateTiming(t Timing) bool {
	if t < 0 || t >= numTimings {
		return false
	}
	return e.timing[t].CompareAndSwap(0, time.Now().UnixNano())
}

// Timestamp returns counter t, zero when unset.
func (e *Event) Timestamp(t Timing) int64 {
	if t < 0 || t >= numTimings {
		return 0
	}
	return e.timing[t].Load()
}

// ProfilingInfo returns the timing counters of a terminal event enqueued on
// a queue with profiling enabled.
func (e *Event) ProfilingInfo() (ProfilingInfo, error) {
	const op = "get event profiling info"
	if e.queue == nil {
		return ProfilingInfo{}, newError(CodeProfilingInfoNotAvailable, op, "user event")
	}
	if !e.queue.Properties().Profiling {
		return ProfilingInfo{}, newError(CodeProfilingInfoNotAvailable, op, "queue has profiling disabled")
	}
	if !e.Status().Terminal() {
		return ProfilingInfo{}, newError(CodeProfilingInfoNotAvailable, op, "event is %s", e.Status())
	}
	return ProfilingInfo{
		Queued: e.Timestamp(TimingQueued),
		Submit: e.Timestamp(TimingSubmit),
		Start:  e.Timestamp(TimingStart),
		End:    e.Timestamp(TimingEnd),
	}, nil
}

// predecessorsDone reports whether every predecessor completed and whether
// any of them failed.
func (e *Event) predecessorsDone() (ready, failed bool) {
	ready = true
	for _, w := range e.waitList {
		s := w.Status()
		if s.Failed() {
			return false, true
		}
		if s != Complete {
			ready = false
		}
	}
	return ready, false
}
