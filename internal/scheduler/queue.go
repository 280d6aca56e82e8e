package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/resource"
)

// CommandQueue is an ordered sequence of events bound to one backend.
//
// Every queue owns a dispatcher goroutine. Enqueue, completion of a member
// event and completion of any foreign event a member waits on post a kick;
// the dispatcher coalesces kicks and runs one dispatch pass followed by a
// cleanup pass per wake-up. Dispatch passes therefore never overlap and never
// recurse.
type CommandQueue struct {
	object.Object

	res     *resource.Resource
	ctx     *Context
	backend Backend
	logger  *slog.Logger

	// Guarded by res.
	props   QueueProperties
	events  []*Event
	flushed bool
	gen     uint64

	kickCh chan struct{}
	done   chan struct{}
}

// NewCommandQueue creates a queue for backend b of context c and starts its
// dispatcher.
func NewCommandQueue(c *Context, b Backend, props QueueProperties) (*CommandQueue, error) {
	const op = "create command queue"
	if c == nil || !c.IsLive() {
		return nil, newError(CodeInvalidContext, op, "")
	}
	if b == nil || !c.HasBackend(b) {
		return nil, newError(CodeInvalidDevice, op, "backend is not part of the context")
	}
	if !b.QueueProperties().Supports(props) {
		return nil, newError(CodeInvalidQueueProperties, op, "%s does not support %+v", b.Name(), props)
	}

	q := &CommandQueue{
		res:     resource.New(),
		ctx:     c,
		backend: b,
		props:   props,
		flushed: true,
		kickCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	q.Init(q, object.TypeCommandQueue, c, q.destroy)
	q.logger = c.logger.With("queue", q.Handle())
	q.logger.Debug("Command queue created.", "backend", b.Name(), "outOfOrder", props.OutOfOrder, "profiling", props.Profiling)

	go q.run()
	return q, nil
}

func (q *CommandQueue) destroy() {
	q.res.MarkForDestruction(func() {
		close(q.done)
		q.logger.Debug("Command queue destroyed.")
	})
}

// Context returns the owning context.
func (q *CommandQueue) Context() *Context { return q.ctx }

// Backend returns the backend the queue dispatches to.
func (q *CommandQueue) Backend() Backend { return q.backend }

// Properties returns the current queue properties.
func (q *CommandQueue) Properties() QueueProperties {
	q.res.Acquire()
	defer q.res.Release()
	return q.props
}

// SetProperty enables or disables the properties set in p and returns the
// previous properties. A combination the backend does not support is rejected
// and leaves the queue unchanged.
func (q *CommandQueue) SetProperty(p QueueProperties, enable bool) (QueueProperties, error) {
	q.res.Acquire()
	old := q.props
	next := old
	if p.OutOfOrder {
		next.OutOfOrder = enable
	}
	if p.Profiling {
		next.Profiling = enable
	}
	if !q.backend.QueueProperties().Supports(next) {
		q.res.Release()
		return old, newError(CodeInvalidQueueProperties, "set command queue property", "%+v", next)
	}
	q.props = next
	q.res.Release()

	q.kick()
	return old, nil
}

// NewEvent validates cmd and waitList and builds an event owned by the queue.
// The event is not visible to the dispatcher until Enqueue.
func (q *CommandQueue) NewEvent(cmd Command, waitList []*Event) (*Event, error) {
	if cmd == nil {
		return nil, newError(CodeInvalidValue, "create event", "nil command")
	}
	prepared, err := cmd.prepare(q.ctx)
	if err != nil {
		return nil, err
	}

	if cmd.Type() == CommandMarker && len(waitList) == 0 && q.Properties().OutOfOrder {
		pending := q.Events()
		defer releaseAll(pending)
		waitList = make([]*Event, 0, len(pending))
		for _, e := range pending {
			if !e.Status().Terminal() {
				waitList = append(waitList, e)
			}
		}
	}
	return newEvent(q.ctx, q, prepared, waitList, Queued)
}

// Enqueue appends e to the queue and kicks the dispatcher. The queue holds
// its own reference on e until cleanup removes it.
func (q *CommandQueue) Enqueue(e *Event) error {
	const op = "enqueue"
	if e == nil || e.queue != q {
		return newError(CodeInvalidEvent, op, "event does not belong to this queue")
	}
	if !e.enqueued.CompareAndSwap(false, true) {
		return newError(CodeInvalidOperation, op, "event %s already enqueued", e.Handle())
	}
	if !e.cmd.Type().Dummy() {
		if err := q.backend.InitEventData(e); err != nil {
			e.enqueued.Store(false)
			return fmt.Errorf("%s: init event data: %w", q.backend.Name(), err)
		}
		e.backendInit.Store(true)
	}

	e.Retain()

	q.res.Acquire()
	if q.props.Profiling {
		e.UpdateTiming(TimingQueued)
	}
	q.events = append(q.events, e)
	q.flushed = false
	q.gen++
	q.res.Release()

	e.logger.Debug("Event enqueued.")
	q.kick()
	return nil
}

// Submit builds an event from cmd and enqueues it. The caller owns the
// returned reference.
func (q *CommandQueue) Submit(cmd Command, waitList ...*Event) (*Event, error) {
	e, err := q.NewEvent(cmd, waitList)
	if err != nil {
		return nil, err
	}
	if err := q.Enqueue(e); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

// Events returns the events currently in the queue, each retained for the
// caller.
func (q *CommandQueue) Events() []*Event {
	q.res.Acquire()
	defer q.res.Release()
	out := make([]*Event, len(q.events))
	for i, e := range q.events {
		e.Retain()
		out[i] = e
	}
	return out
}

// Len returns the number of events not yet removed by cleanup.
func (q *CommandQueue) Len() int {
	q.res.Acquire()
	defer q.res.Release()
	return len(q.events)
}

// Flush blocks until a dispatch pass has handed every eligible event to the
// backend without stopping early.
func (q *CommandQueue) Flush(ctx context.Context) error {
	q.res.Acquire()
	err := q.res.WaitContext(ctx, func() bool { return q.flushed })
	q.res.Release()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Finish blocks until every event of the queue is terminal, its callbacks
// have returned and it has been removed.
func (q *CommandQueue) Finish(ctx context.Context) error {
	q.cleanup()
	q.res.Acquire()
	err := q.res.WaitContext(ctx, func() bool { return len(q.events) == 0 })
	q.res.Release()
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	return nil
}

func (q *CommandQueue) kick() {
	select {
	case q.kickCh <- struct{}{}:
	default:
	}
}

func (q *CommandQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.kickCh:
		}
		if !q.dispatch() || !q.cleanup() {
			return
		}
	}
}

func releaseAll(events []*Event) {
	for _, e := range events {
		e.Release()
	}
}
