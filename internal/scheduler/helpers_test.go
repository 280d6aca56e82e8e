package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeBackend records pushed events and leaves completing them to the test.
type fakeBackend struct {
	props   QueueProperties
	initErr error

	pushCh chan *Event
	inits  atomic.Int32
	freed  atomic.Int32

	mu     sync.Mutex
	pushed []*Event
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		props:  QueueProperties{OutOfOrder: true, Profiling: true},
		pushCh: make(chan *Event, 128),
	}
}

func (b *fakeBackend) Name() string                     { return "fake" }
func (b *fakeBackend) QueueProperties() QueueProperties { return b.props }
func (b *fakeBackend) FreeEventData(*Event)             { b.freed.Add(1) }

func (b *fakeBackend) InitEventData(*Event) error {
	if b.initErr != nil {
		return b.initErr
	}
	b.inits.Add(1)
	return nil
}

func (b *fakeBackend) PushEvent(e *Event) {
	b.mu.Lock()
	b.pushed = append(b.pushed, e)
	b.mu.Unlock()
	b.pushCh <- e
}

func (b *fakeBackend) next(t *testing.T) *Event {
	t.Helper()
	select {
	case e := <-b.pushCh:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("no event was pushed to the backend")
		return nil
	}
}

func (b *fakeBackend) requireNoPush(t *testing.T) {
	t.Helper()
	select {
	case e := <-b.pushCh:
		t.Fatalf("unexpected push of %s event %s", e.CommandType(), e.Handle())
	case <-time.After(50 * time.Millisecond):
	}
}

// run drives e through Running to status like a worker would.
func run(t *testing.T, e *Event, status Status) {
	t.Helper()
	require.NoError(t, e.SetStatus(Running))
	require.NoError(t, e.SetStatus(status))
}

func newTestQueue(t *testing.T, b Backend, props QueueProperties) *CommandQueue {
	t.Helper()
	c, err := NewContext(context.Background(), b)
	require.NoError(t, err)
	q, err := NewCommandQueue(c, b, props)
	require.NoError(t, err)
	c.Release()
	return q
}

func native() *NativeKernel {
	return &NativeKernel{Func: func() error { return nil }}
}

func submit(t *testing.T, q *CommandQueue, cmd Command, waitList ...*Event) *Event {
	t.Helper()
	e, err := q.Submit(cmd, waitList...)
	require.NoError(t, err)
	return e
}

func requireStatus(t *testing.T, e *Event, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return e.Status() == want }, waitTimeout, time.Millisecond,
		"event %s: want %s, have %s", e.Handle(), want, e.Status())
}

func finish(t *testing.T, q *CommandQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, q.Finish(ctx))
}

func requireRefs(t *testing.T, e *Event, want int64) {
	t.Helper()
	require.Eventually(t, func() bool { return e.RefCount() == want }, waitTimeout, time.Millisecond)
}
