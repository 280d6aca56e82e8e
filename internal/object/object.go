// Package object provides the shared-ownership base embedded by every
// scheduler entity: a reference count, an optional owning parent, a type tag
// and membership in the process-wide live registry.
//
// An Object starts with one reference owned by its creator. Every additional
// holder calls Retain and every holder eventually calls Release; the Release
// that drops the count to zero runs the destroy hook exactly once, removes
// the object from the registry and then releases the parent unless
// SetReleaseParent(false) was called.
//
// This layer does no locking beyond the atomic counter. Mutation of the state
// guarded by the embedding type goes through its resource.Resource.
package object

import (
	"fmt"
	"sync/atomic"
)

// Type tags the kind of an object. Registry lookups are typed so that a
// handle of one kind is never accepted where another is expected.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeContext
	TypeDevice
	TypeCommandQueue
	TypeEvent
	TypeBuffer
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeContext:
		return "context"
	case TypeDevice:
		return "device"
	case TypeCommandQueue:
		return "command_queue"
	case TypeEvent:
		return "event"
	case TypeBuffer:
		return "buffer"
	default:
		return "invalid"
	}
}

// Refcounted is implemented by every type embedding Object.
type Refcounted interface {
	Retain()
	Release() bool
}

// Object is meant to be embedded. The zero value is not usable; call Init
// from the embedding type's constructor once the value is fully built.
type Object struct {
	typ      Type
	handle   Handle
	registry *Registry
	parent   Refcounted
	destroy  func()

	refs          atomic.Int64
	releaseParent atomic.Bool
	destroyed     atomic.Bool
}

// Init registers self under typ in the live registry, retains parent and sets
// the reference count to one. destroy runs when the last reference goes.
func (o *Object) Init(self any, typ Type, parent Refcounted, destroy func()) {
	o.InitIn(Live, self, typ, parent, destroy)
}

// InitIn is Init against an explicit registry.
func (o *Object) InitIn(r *Registry, self any, typ Type, parent Refcounted, destroy func()) {
	o.typ = typ
	o.parent = parent
	o.destroy = destroy
	o.registry = r
	o.refs.Store(1)
	o.releaseParent.Store(true)

	if parent != nil {
		parent.Retain()
	}
	o.handle = r.Register(self, typ)
}

// Retain adds a reference.
func (o *Object) Retain() {
	if o.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("object: retain of destroyed %s %s", o.typ, o.handle))
	}
}

// Release drops a reference and reports whether this call destroyed the
// object. Once it returns true the object must not be used again.
func (o *Object) Release() bool {
	n := o.refs.Add(-1)
	if n > 0 {
		return false
	}
	if n < 0 || !o.destroyed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("object: release of destroyed %s %s", o.typ, o.handle))
	}

	o.registry.Unregister(o.handle)
	if o.destroy != nil {
		o.destroy()
	}
	if o.parent != nil && o.releaseParent.Load() {
		o.parent.Release()
	}
	return true
}

// RefCount returns the current number of references.
func (o *Object) RefCount() int64 {
	return o.refs.Load()
}

// Handle returns the registry handle of the object.
func (o *Object) Handle() Handle {
	return o.handle
}

// ObjectType returns the type tag.
func (o *Object) ObjectType() Type {
	return o.typ
}

// Parent returns the owning parent, if any.
func (o *Object) Parent() Refcounted {
	return o.parent
}

// SetReleaseParent controls whether destruction releases the parent.
func (o *Object) SetReleaseParent(release bool) {
	o.releaseParent.Store(release)
}

// IsLive reports whether the object is still registered.
func (o *Object) IsLive() bool {
	return o.registry != nil && o.registry.IsLive(o.handle, o.typ)
}

// IsLive reports whether h refers to a live object of type typ in the
// process-wide registry. Stale, foreign and zero handles report false.
func IsLive(h Handle, typ Type) bool {
	return Live.IsLive(h, typ)
}
