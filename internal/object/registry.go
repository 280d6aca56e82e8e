package object

import (
	"fmt"
	"sync"
)

// Handle is an opaque reference to a registered object. It packs the slot
// index in the low 32 bits and the slot generation in the high 32 bits. The
// zero Handle is never valid.
type Handle uint64

func newHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

func (h Handle) index() uint32 { return uint32(h) }
func (h Handle) gen() uint32   { return uint32(h >> 32) }

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index(), h.gen())
}

type slot struct {
	gen  uint32
	typ  Type
	live bool
	obj  any
}

// Registry records every live object so that externally held handles can be
// validated before use. Lookups are an index plus a generation compare; a
// slot's generation is bumped when it is freed, which invalidates every
// handle issued for the previous occupant.
type Registry struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
	count int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Live is the process-wide registry used by Object.
var Live = NewRegistry()

// Register stores obj under a fresh handle.
func (r *Registry) Register(obj any, typ Type) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Generation 0 is reserved for the zero Handle.
		s.gen = 1
	}
	s.typ = typ
	s.live = true
	s.obj = obj
	r.count++

	return newHandle(idx, s.gen)
}

// Unregister frees the slot behind h. It reports false when h was not live.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slotLocked(h)
	if s == nil {
		return false
	}
	s.live = false
	s.obj = nil
	r.free = append(r.free, h.index())
	r.count--
	return true
}

// IsLive reports whether h refers to a live object of the given type.
func (r *Registry) IsLive(h Handle, typ Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.slotLocked(h)
	return s != nil && s.typ == typ
}

// Get returns the object behind h when it is live and of the given type.
func (r *Registry) Get(h Handle, typ Type) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.slotLocked(h)
	if s == nil || s.typ != typ {
		return nil, false
	}
	return s.obj, true
}

// TypeOf returns the type of the live object behind h.
func (r *Registry) TypeOf(h Handle) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.slotLocked(h)
	if s == nil {
		return TypeInvalid, false
	}
	return s.typ, true
}

// Count returns the number of live objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Registry) slotLocked(h Handle) *slot {
	if h == 0 {
		return nil
	}
	idx := h.index()
	if int(idx) >= len(r.slots) {
		return nil
	}
	s := &r.slots[idx]
	if !s.live || s.gen != h.gen() {
		return nil
	}
	return s
}

// Lookup is the typed form of Registry.Get.
func Lookup[T any](r *Registry, h Handle, typ Type) (T, bool) {
	var zero T
	obj, ok := r.Get(h, typ)
	if !ok {
		return zero, false
	}
	v, ok := obj.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
