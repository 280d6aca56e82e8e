// Package cpudevice is the host CPU execution backend: a fixed pool of worker
// goroutines pulling dispatched events from a shared list.
//
// # Work Groups
//
// NDRange and task events are split into work groups when they are enqueued.
// Each pull reserves one group, and an event leaves the list when its last
// group is reserved, so several workers run groups of the same kernel at
// once. The worker finishing the last group reports the terminal status.
// Every other command is executed by a single worker.
package cpudevice

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/burstqueue/internal/ctxlog"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// Device implements scheduler.Backend.
type Device struct {
	name    string
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	events  []*scheduler.Event
	stopped bool

	group     *errgroup.Group
	stopWatch func() bool
	closeOnce sync.Once
}

// eventData is the per-event state kept in the event's backend data.
type eventData struct {
	kernel *scheduler.NDRangeKernel
	local  [3]int
	counts [3]int
	total  int

	// next is guarded by Device.mu.
	next      int
	remaining atomic.Int64

	errOnce sync.Once
	err     error
}

var _ scheduler.Backend = (*Device)(nil)

// New starts a device with the given number of workers; a non-positive count
// means one per CPU. Cancelling ctx stops the workers like Close.
func New(ctx context.Context, name string, workers int) *Device {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d := &Device{
		name:    name,
		workers: workers,
		logger:  ctxlog.FromContext(ctx).With("device", name),
	}
	d.cond = sync.NewCond(&d.mu)

	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	d.stopWatch = context.AfterFunc(gctx, d.stop)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			return d.worker(gctx, workerID)
		})
	}
	d.logger.Debug("Device started.", "workers", workers)
	return d
}

// Name implements scheduler.Backend.
func (d *Device) Name() string { return d.name }

// Workers returns the size of the worker pool.
func (d *Device) Workers() int { return d.workers }

// QueueProperties implements scheduler.Backend.
func (d *Device) QueueProperties() scheduler.QueueProperties {
	return scheduler.QueueProperties{OutOfOrder: true, Profiling: true}
}

// InitEventData implements scheduler.Backend.
func (d *Device) InitEventData(e *scheduler.Event) error {
	data := &eventData{total: 1}
	if k, ok := e.Command().(*scheduler.NDRangeKernel); ok {
		data.kernel = k
		data.local = k.Local
		if k.LocalUnset() {
			data.local = d.guessLocalSize(k)
		}
		data.total = 1
		for i := 0; i < 3; i++ {
			data.counts[i] = k.Global[i] / data.local[i]
			data.total *= data.counts[i]
		}
	}
	data.remaining.Store(int64(data.total))
	e.SetBackendData(data)
	return nil
}

// guessLocalSize splits the first dimension into about one group per worker
// and keeps every other dimension whole.
func (d *Device) guessLocalSize(k *scheduler.NDRangeKernel) [3]int {
	local := k.Global
	global := k.Global[0]
	for divisor := d.workers; divisor <= global && divisor <= d.workers*32; divisor++ {
		if global%divisor == 0 {
			local[0] = global / divisor
			break
		}
	}
	return local
}

// PushEvent implements scheduler.Backend.
func (d *Device) PushEvent(e *scheduler.Event) {
	d.mu.Lock()
	stopped := d.stopped
	if !stopped {
		d.events = append(d.events, e)
		d.cond.Broadcast()
	}
	d.mu.Unlock()

	if stopped {
		d.fail(e, fmt.Errorf("device %s is closed", d.name))
	}
}

// FreeEventData implements scheduler.Backend.
func (d *Device) FreeEventData(e *scheduler.Event) {
	e.SetBackendData(nil)
}

// getEvent blocks until an event is available and reserves one unit of work
// on it. ok is false once the device is stopped.
func (d *Device) getEvent() (e *scheduler.Event, group int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.events) == 0 && !d.stopped {
		d.cond.Wait()
	}
	if d.stopped {
		return nil, 0, false
	}

	e = d.events[0]
	data := e.BackendData().(*eventData)
	group = data.next
	data.next++
	if data.next == data.total {
		d.events[0] = nil
		d.events = d.events[1:]
	}
	return e, group, true
}

func (d *Device) stop() {
	d.mu.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Close stops the workers, waits for them to return and fails every event
// that was pushed but never started.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.stop()
		d.stopWatch()
		err = d.group.Wait()

		d.mu.Lock()
		left := d.events
		d.events = nil
		d.mu.Unlock()

		for _, e := range left {
			d.fail(e, fmt.Errorf("device %s closed before execution", d.name))
		}
		d.logger.Debug("Device stopped.", "abandoned", len(left))
	})
	return err
}

// fail terminates an event none of whose remaining groups will run.
func (d *Device) fail(e *scheduler.Event, cause error) {
	data, _ := e.BackendData().(*eventData)
	if data == nil {
		_ = e.SetStatus(scheduler.StatusFromCode(scheduler.CodeOutOfResources))
		return
	}
	data.record(&scheduler.Error{Code: scheduler.CodeOutOfResources, Op: "execute", Err: cause})
	d.mu.Lock()
	unreserved := int64(data.total - data.next)
	data.next = data.total
	d.mu.Unlock()
	if data.remaining.Add(-unreserved) == 0 {
		d.finish(e, data)
	}
}

func (data *eventData) record(err error) {
	data.errOnce.Do(func() { data.err = err })
}

// groupAt returns work group index idx, the first dimension varying fastest.
func (data *eventData) groupAt(idx int) scheduler.WorkGroup {
	k := data.kernel
	g := scheduler.WorkGroup{
		Dims:         k.Dims,
		Size:         data.local,
		GlobalOffset: k.Offset,
		GlobalSize:   k.Global,
	}
	for i := 0; i < 3; i++ {
		g.ID[i] = idx % data.counts[i]
		idx /= data.counts[i]
	}
	return g
}
