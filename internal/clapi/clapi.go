// Package clapi is the handle-based client surface of the scheduler. Every
// call validates the handles it receives against the live object registry
// before touching scheduler state, so stale, foreign or zero handles yield an
// error instead of a crash.
//
// Objects created through this package are returned with one reference owned
// by the caller, to be dropped with Release.
package clapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/burstqueue/internal/memobject"
	"github.com/specialistvlad/burstqueue/internal/object"
	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// devices maps each registered backend to its handle.
var devices sync.Map

// RegisterDevice makes b addressable by handle.
func RegisterDevice(b scheduler.Backend) object.Handle {
	if h, ok := devices.Load(b); ok {
		return h.(object.Handle)
	}
	h := object.Live.Register(b, object.TypeDevice)
	if prev, loaded := devices.LoadOrStore(b, h); loaded {
		object.Live.Unregister(h)
		return prev.(object.Handle)
	}
	return h
}

// UnregisterDevice invalidates the handle of a device. Contexts and queues
// already built on it keep working.
func UnregisterDevice(h object.Handle) error {
	b, err := lookup[scheduler.Backend](h, object.TypeDevice, scheduler.CodeInvalidDevice, "unregister device")
	if err != nil {
		return err
	}
	devices.Delete(b)
	object.Live.Unregister(h)
	return nil
}

func deviceHandle(b scheduler.Backend) object.Handle {
	if h, ok := devices.Load(b); ok {
		return h.(object.Handle)
	}
	return 0
}

func lookup[T any](h object.Handle, typ object.Type, code scheduler.Code, op string) (T, error) {
	v, ok := object.Lookup[T](object.Live, h, typ)
	if !ok {
		var zero T
		return zero, &scheduler.Error{Code: code, Op: op, Err: fmt.Errorf("handle %s is not a live %s", h, typ)}
	}
	return v, nil
}

func lookupContext(h object.Handle, op string) (*scheduler.Context, error) {
	return lookup[*scheduler.Context](h, object.TypeContext, scheduler.CodeInvalidContext, op)
}

func lookupQueue(h object.Handle, op string) (*scheduler.CommandQueue, error) {
	return lookup[*scheduler.CommandQueue](h, object.TypeCommandQueue, scheduler.CodeInvalidCommandQueue, op)
}

func lookupEvent(h object.Handle, op string) (*scheduler.Event, error) {
	return lookup[*scheduler.Event](h, object.TypeEvent, scheduler.CodeInvalidEvent, op)
}

func lookupBuffer(h object.Handle, op string) (*memobject.Buffer, error) {
	return lookup[*memobject.Buffer](h, object.TypeBuffer, scheduler.CodeInvalidMemObject, op)
}

// Event returns the event behind h for callers that need the scheduler
// object itself. No reference is added.
func Event(h object.Handle) (*scheduler.Event, error) {
	return lookupEvent(h, "get event")
}

// Buffer returns the buffer behind h. No reference is added.
func Buffer(h object.Handle) (*memobject.Buffer, error) {
	return lookupBuffer(h, "get buffer")
}

// resolveWaitList turns handles into events. Any handle that is not a live
// event makes the whole list invalid.
func resolveWaitList(handles []object.Handle, op string) ([]*scheduler.Event, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	events := make([]*scheduler.Event, len(handles))
	for i, h := range handles {
		e, ok := object.Lookup[*scheduler.Event](object.Live, h, object.TypeEvent)
		if !ok {
			return nil, &scheduler.Error{Code: scheduler.CodeInvalidEventWaitList, Op: op, Err: fmt.Errorf("entry %d: handle %s is not a live event", i, h)}
		}
		events[i] = e
	}
	return events, nil
}

// CreateContext creates a context over the given devices.
func CreateContext(ctx context.Context, devs ...object.Handle) (object.Handle, error) {
	const op = "create context"
	if len(devs) == 0 {
		return 0, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: errors.New("no devices")}
	}
	backends := make([]scheduler.Backend, len(devs))
	for i, h := range devs {
		b, err := lookup[scheduler.Backend](h, object.TypeDevice, scheduler.CodeInvalidDevice, op)
		if err != nil {
			return 0, err
		}
		backends[i] = b
	}
	c, err := scheduler.NewContext(ctx, backends...)
	if err != nil {
		return 0, err
	}
	return c.Handle(), nil
}

// CreateCommandQueue creates a queue for device dev in context c.
func CreateCommandQueue(c, dev object.Handle, props scheduler.QueueProperties) (object.Handle, error) {
	const op = "create command queue"
	sc, err := lookupContext(c, op)
	if err != nil {
		return 0, err
	}
	b, err := lookup[scheduler.Backend](dev, object.TypeDevice, scheduler.CodeInvalidDevice, op)
	if err != nil {
		return 0, err
	}
	q, err := scheduler.NewCommandQueue(sc, b, props)
	if err != nil {
		return 0, err
	}
	return q.Handle(), nil
}

// CreateBuffer allocates a buffer of size bytes in context c, initialised
// from init when it is non-nil.
func CreateBuffer(c object.Handle, size int, init []byte) (object.Handle, error) {
	const op = "create buffer"
	sc, err := lookupContext(c, op)
	if err != nil {
		return 0, err
	}
	b, err := memobject.New(sc, size, init)
	if err != nil {
		return 0, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: err}
	}
	return b.Handle(), nil
}

// ReadBufferNow copies the current contents of a buffer without going through
// a queue.
func ReadBufferNow(buf object.Handle) ([]byte, error) {
	b, err := lookupBuffer(buf, "read buffer")
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// CreateUserEvent creates a user event in context c.
func CreateUserEvent(c object.Handle) (object.Handle, error) {
	sc, err := lookupContext(c, "create user event")
	if err != nil {
		return 0, err
	}
	e, err := scheduler.NewUserEvent(sc)
	if err != nil {
		return 0, err
	}
	return e.Handle(), nil
}

// SetUserEventStatus completes or fails a user event.
func SetUserEventStatus(e object.Handle, status scheduler.Status) error {
	ev, err := lookupEvent(e, "set user event status")
	if err != nil {
		return err
	}
	return ev.SetUserStatus(status)
}

// Retain adds a reference to the object behind h.
func Retain(h object.Handle) error {
	obj, err := refcounted(h, "retain")
	if err != nil {
		return err
	}
	obj.Retain()
	return nil
}

// Release drops a reference to the object behind h.
func Release(h object.Handle) error {
	obj, err := refcounted(h, "release")
	if err != nil {
		return err
	}
	obj.Release()
	return nil
}

// GetRefCount returns the reference count of the object behind h.
func GetRefCount(h object.Handle) (int64, error) {
	obj, err := refcounted(h, "get reference count")
	if err != nil {
		return 0, err
	}
	rc, ok := obj.(interface{ RefCount() int64 })
	if !ok {
		return 0, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: "get reference count"}
	}
	return rc.RefCount(), nil
}

func refcounted(h object.Handle, op string) (object.Refcounted, error) {
	typ, ok := object.Live.TypeOf(h)
	if !ok {
		return nil, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: fmt.Errorf("handle %s is not live", h)}
	}
	code := map[object.Type]scheduler.Code{
		object.TypeContext:      scheduler.CodeInvalidContext,
		object.TypeCommandQueue: scheduler.CodeInvalidCommandQueue,
		object.TypeEvent:        scheduler.CodeInvalidEvent,
		object.TypeBuffer:       scheduler.CodeInvalidMemObject,
	}[typ]
	if code == scheduler.CodeSuccess {
		return nil, &scheduler.Error{Code: scheduler.CodeInvalidValue, Op: op, Err: fmt.Errorf("%s objects are not reference counted", typ)}
	}
	return lookup[object.Refcounted](h, typ, code, op)
}
