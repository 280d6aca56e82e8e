// Package resource provides the lock used by scheduler objects: a
// mutex/condition-variable pair whose destruction can be requested while
// another goroutine is still using it.
//
// A destroy request made while the resource is held is parked and performed
// by whichever goroutine drains the holder count to zero. That goroutine is
// told so by Release returning true and must not touch the guarded object
// afterwards. Acquiring a destroyed resource is a programming error and
// panics; callers prevent it by validating handles against the live registry
// first.
package resource

import (
	"context"
	"sync"
)

// Resource is a non-reentrant lock with deferred destruction and predicate
// waiting. The zero value is not usable; use New.
type Resource struct {
	mu   sync.Mutex
	cond *sync.Cond

	holders int
	parked  int

	pending   func()
	destroyed bool
}

// New returns an unheld resource.
func New() *Resource {
	r := &Resource{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Acquire blocks until no other holder is active, then takes the resource.
func (r *Resource) Acquire() {
	r.mu.Lock()
	for r.holders > 0 && !r.destroyed {
		r.cond.Wait()
	}
	if r.destroyed {
		r.mu.Unlock()
		panic("resource: acquire after destruction")
	}
	r.holders++
	r.mu.Unlock()
}

// TryAcquire is Acquire for goroutines that hold no reference on the guarded
// object and may therefore observe its destruction. It reports false instead
// of panicking once the resource is destroyed.
func (r *Resource) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.holders > 0 && !r.destroyed {
		r.cond.Wait()
	}
	if r.destroyed {
		return false
	}
	r.holders++
	return true
}

// Release gives the resource back. When this drains the last holder and a
// destruction is pending, the destroy function runs under the internal lock
// and Release returns true.
func (r *Resource) Release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders <= 0 {
		panic("resource: release of unheld resource")
	}
	r.holders--
	if r.holders == 0 && r.parked == 0 && r.pending != nil {
		r.destroyLocked()
		return true
	}
	r.cond.Broadcast()
	return false
}

// MarkForDestruction requests destruction. If nobody holds or waits on the
// resource, destroy runs immediately and true is returned; otherwise it is
// deferred to the Release that drains the holder count. Repeated requests are
// ignored.
func (r *Resource) MarkForDestruction(destroy func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed || r.pending != nil {
		return false
	}
	r.pending = destroy
	if r.holders == 0 && r.parked == 0 {
		r.destroyLocked()
		return true
	}
	return false
}

// Destroyed reports whether destruction has been performed.
func (r *Resource) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// DestroyPending reports whether a destruction request is parked.
func (r *Resource) DestroyPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Wait must be called while holding the resource. It gives the resource up,
// sleeps until cond reports true with no other holder active, and takes the
// resource back before returning. cond is evaluated with the resource
// logically held, so it may read guarded state.
func (r *Resource) Wait(cond func() bool) {
	_ = r.WaitContext(context.Background(), cond)
}

// WaitContext is Wait that also returns when ctx is done. The resource is
// held again on return in both cases.
func (r *Resource) WaitContext(ctx context.Context, cond func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	if r.holders <= 0 {
		r.mu.Unlock()
		panic("resource: wait on unheld resource")
	}
	r.holders--
	r.parked++
	r.cond.Broadcast()

	var err error
	for {
		if r.holders == 0 {
			if cond() {
				break
			}
			if err = ctx.Err(); err != nil {
				break
			}
		}
		r.cond.Wait()
	}

	r.parked--
	r.holders++
	r.mu.Unlock()
	return err
}

// Broadcast wakes every goroutine blocked in Acquire or Wait so they
// re-evaluate their conditions. Release already broadcasts; this is for
// state changes made without holding the resource.
func (r *Resource) Broadcast() {
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Resource) destroyLocked() {
	fn := r.pending
	r.pending = nil
	r.destroyed = true
	if fn != nil {
		fn()
	}
	r.cond.Broadcast()
}
