package clapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// enqueue resolves the queue and wait list and submits cmd. build runs after
// the queue is resolved so it can look up buffers.
func enqueue(q object.Handle, waitList []object.Handle, op string, build func() (scheduler.Command, error)) (object.Handle, error) {
	sq, err := lookupQueue(q, op)
	if err != nil {
		return 0, err
	}
	events, err := resolveWaitList(waitList, op)
	if err != nil {
		return 0, err
	}
	cmd, err := build()
	if err != nil {
		return 0, err
	}
	e, err := sq.Submit(cmd, events...)
	if err != nil {
		return 0, err
	}
	return e.Handle(), nil
}

// EnqueueWriteBuffer writes data into buf at offset.
func EnqueueWriteBuffer(q, buf object.Handle, offset int, data []byte, waitList []object.Handle) (object.Handle, error) {
	const op = "enqueue write buffer"
	return enqueue(q, waitList, op, func() (scheduler.Command, error) {
		b, err := lookupBuffer(buf, op)
		if err != nil {
			return nil, err
		}
		return &scheduler.WriteBuffer{Buffer: b, Offset: offset, Src: data}, nil
	})
}

// EnqueueReadBuffer reads len(dst) bytes of buf at offset into dst. dst must
// not be used until the returned event is terminal.
func EnqueueReadBuffer(q, buf object.Handle, offset int, dst []byte, waitList []object.Handle) (object.Handle, error) {
	const op = "enqueue read buffer"
	return enqueue(q, waitList, op, func() (scheduler.Command, error) {
		b, err := lookupBuffer(buf, op)
		if err != nil {
			return nil, err
		}
		return &scheduler.ReadBuffer{Buffer: b, Offset: offset, Dst: dst}, nil
	})
}

// EnqueueCopyBuffer copies size bytes from src to dst.
func EnqueueCopyBuffer(q, src, dst object.Handle, srcOffset, dstOffset, size int, waitList []object.Handle) (object.Handle, error) {
	const op = "enqueue copy buffer"
	return enqueue(q, waitList, op, func() (scheduler.Command, error) {
		s, err := lookupBuffer(src, op)
		if err != nil {
			return nil, err
		}
		d, err := lookupBuffer(dst, op)
		if err != nil {
			return nil, err
		}
		return &scheduler.CopyBuffer{Src: s, Dst: d, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}, nil
	})
}

// EnqueueFillBuffer repeats pattern over size bytes of buf at offset.
func EnqueueFillBuffer(q, buf object.Handle, pattern []byte, offset, size int, waitList []object.Handle) (object.Handle, error) {
	const op = "enqueue fill buffer"
	return enqueue(q, waitList, op, func() (scheduler.Command, error) {
		b, err := lookupBuffer(buf, op)
		if err != nil {
			return nil, err
		}
		return &scheduler.FillBuffer{Buffer: b, Pattern: pattern, Offset: offset, Size: size}, nil
	})
}

// NDRange is the index space of a kernel launch. A zero Local lets the
// device choose.
type NDRange struct {
	Dims   int
	Offset [3]int
	Global [3]int
	Local  [3]int
}

// EnqueueNDRangeKernel runs kernel over r.
func EnqueueNDRangeKernel(q object.Handle, kernel scheduler.Kernel, r NDRange, waitList []object.Handle) (object.Handle, error) {
	return enqueue(q, waitList, "enqueue ndrange kernel", func() (scheduler.Command, error) {
		return &scheduler.NDRangeKernel{Kernel: kernel, Dims: r.Dims, Offset: r.Offset, Global: r.Global, Local: r.Local}, nil
	})
}

// EnqueueTask runs kernel as a single work item.
func EnqueueTask(q object.Handle, kernel scheduler.Kernel, waitList []object.Handle) (object.Handle, error) {
	return enqueue(q, waitList, "enqueue task", func() (scheduler.Command, error) {
		return scheduler.Task(kernel), nil
	})
}

// EnqueueNativeKernel runs fn on a device worker.
func EnqueueNativeKernel(q object.Handle, fn func() error, waitList []object.Handle) (object.Handle, error) {
	return enqueue(q, waitList, "enqueue native kernel", func() (scheduler.Command, error) {
		return &scheduler.NativeKernel{Func: fn}, nil
	})
}

// EnqueueMarker returns an event completing with waitList, or on an
// out-of-order queue with everything enqueued before it when waitList is
// empty.
func EnqueueMarker(q object.Handle, waitList []object.Handle) (object.Handle, error) {
	return enqueue(q, waitList, "enqueue marker", func() (scheduler.Command, error) {
		return &scheduler.Marker{}, nil
	})
}

// EnqueueBarrier holds back every later command of q until everything
// before it has completed.
func EnqueueBarrier(q object.Handle) (object.Handle, error) {
	return enqueue(q, nil, "enqueue barrier", func() (scheduler.Command, error) {
		return &scheduler.Barrier{}, nil
	})
}

// EnqueueWaitForEvents holds back every later command of q until waitList
// has completed.
func EnqueueWaitForEvents(q object.Handle, waitList []object.Handle) (object.Handle, error) {
	const op = "enqueue wait for events"
	if len(waitList) == 0 {
		return 0, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: errors.New("empty wait list")}
	}
	return enqueue(q, waitList, op, func() (scheduler.Command, error) {
		return &scheduler.WaitForEvents{}, nil
	})
}

// Flush returns once every command of q has been handed to its device.
func Flush(ctx context.Context, q object.Handle) error {
	sq, err := lookupQueue(q, "flush")
	if err != nil {
		return err
	}
	return sq.Flush(ctx)
}

// Finish returns once every command of q is terminal.
func Finish(ctx context.Context, q object.Handle) error {
	sq, err := lookupQueue(q, "finish")
	if err != nil {
		return err
	}
	return sq.Finish(ctx)
}

// WaitForEvents blocks until every event is terminal. It fails with
// ErrExecStatusErrorForEventsInWaitList when any of them failed.
func WaitForEvents(ctx context.Context, events ...object.Handle) error {
	const op = "wait for events"
	list, err := resolveWaitList(events, op)
	if err != nil {
		return err
	}
	var failed error
	for i, e := range list {
		if err := e.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if failed == nil {
				failed = &scheduler.Error{Code: scheduler.CodeExecStatusErrorForEventsInWaitList, Op: op, Err: fmt.Errorf("event %d: %w", i, err)}
			}
		}
	}
	return failed
}

// GetEventStatus returns the current status of an event.
func GetEventStatus(e object.Handle) (scheduler.Status, error) {
	ev, err := lookupEvent(e, "get event status")
	if err != nil {
		return 0, err
	}
	return ev.Status(), nil
}

// GetEventProfilingInfo returns the timing counters of an event.
func GetEventProfilingInfo(e object.Handle) (scheduler.ProfilingInfo, error) {
	ev, err := lookupEvent(e, "get event profiling info")
	if err != nil {
		return scheduler.ProfilingInfo{}, err
	}
	return ev.ProfilingInfo()
}

// SetEventCallback registers cb to run when the event reaches status.
func SetEventCallback(e object.Handle, status scheduler.Status, cb func(e object.Handle, status scheduler.Status)) error {
	const op = "set event callback"
	ev, err := lookupEvent(e, op)
	if err != nil {
		return err
	}
	if cb == nil {
		return &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: errors.New("nil callback")}
	}
	return ev.SetCallback(status, func(ev *scheduler.Event, s scheduler.Status) {
		cb(ev.Handle(), s)
	})
}

// QueueInfo describes a command queue.
type QueueInfo struct {
	Context    object.Handle
	Device     object.Handle
	RefCount   int64
	Properties scheduler.QueueProperties
	Pending    int
}

// GetCommandQueueInfo returns information about a queue.
func GetCommandQueueInfo(q object.Handle) (QueueInfo, error) {
	sq, err := lookupQueue(q, "get command queue info")
	if err != nil {
		return QueueInfo{}, err
	}
	return QueueInfo{
		Context:    sq.Context().Handle(),
		Device:     deviceHandle(sq.Backend()),
		RefCount:   sq.RefCount(),
		Properties: sq.Properties(),
		Pending:    sq.Len(),
	}, nil
}

// SetCommandQueueProperty enables or disables properties of q and returns
// the previous ones.
func SetCommandQueueProperty(q object.Handle, props scheduler.QueueProperties, enable bool) (scheduler.QueueProperties, error) {
	sq, err := lookupQueue(q, "set command queue property")
	if err != nil {
		return scheduler.QueueProperties{}, err
	}
	return sq.SetProperty(props, enable)
}

// EventInfo describes an event.
type EventInfo struct {
	Queue    object.Handle
	Context  object.Handle
	Command  scheduler.CommandType
	Status   scheduler.Status
	RefCount int64
}

// GetEventInfo returns information about an event. Queue is zero for user
// events.
func GetEventInfo(e object.Handle) (EventInfo, error) {
	ev, err := lookupEvent(e, "get event info")
	if err != nil {
		return EventInfo{}, err
	}
	info := EventInfo{
		Context:  ev.Context().Handle(),
		Command:  ev.CommandType(),
		Status:   ev.Status(),
		RefCount: ev.RefCount(),
	}
	if q := ev.Queue(); q != nil {
		info.Queue = q.Handle()
	}
	return info, nil
}
