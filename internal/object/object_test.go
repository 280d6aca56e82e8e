package object

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	Object
	destroyed atomic.Int32
}

func newThing(r *Registry, typ Type, parent Refcounted) *thing {
	t := &thing{}
	t.InitIn(r, t, typ, parent, func() { t.destroyed.Add(1) })
	return t
}

func TestObject_RetainRelease(t *testing.T) {
	r := NewRegistry()
	obj := newThing(r, TypeEvent, nil)
	require.EqualValues(t, 1, obj.RefCount())
	require.True(t, r.IsLive(obj.Handle(), TypeEvent))

	const n = 5
	for i := 0; i < n; i++ {
		obj.Retain()
	}
	for i := 0; i < n; i++ {
		assert.False(t, obj.Release())
	}
	assert.EqualValues(t, 0, obj.destroyed.Load())

	assert.True(t, obj.Release())
	assert.EqualValues(t, 1, obj.destroyed.Load())
	assert.False(t, r.IsLive(obj.Handle(), TypeEvent))
	assert.False(t, obj.IsLive())
}

func TestObject_ReleaseAfterDestructionPanics(t *testing.T) {
	r := NewRegistry()
	obj := newThing(r, TypeBuffer, nil)
	require.True(t, obj.Release())
	assert.Panics(t, func() { obj.Release() })
	assert.Panics(t, func() { obj.Retain() })
}

func TestObject_ParentOwnership(t *testing.T) {
	t.Run("destruction releases the parent", func(t *testing.T) {
		r := NewRegistry()
		parent := newThing(r, TypeCommandQueue, nil)
		child := newThing(r, TypeEvent, parent)
		require.EqualValues(t, 2, parent.RefCount())

		// The creator drops its own reference; the child keeps the parent alive.
		assert.False(t, parent.Release())
		assert.EqualValues(t, 0, parent.destroyed.Load())

		assert.True(t, child.Release())
		assert.EqualValues(t, 1, parent.destroyed.Load())
		assert.Same(t, parent, child.Parent())
	})

	t.Run("release-parent false keeps the parent", func(t *testing.T) {
		r := NewRegistry()
		parent := newThing(r, TypeCommandQueue, nil)
		child := newThing(r, TypeEvent, parent)
		child.SetReleaseParent(false)

		require.True(t, child.Release())
		assert.EqualValues(t, 2, parent.RefCount())
	})
}

func TestObject_ConcurrentReleaseDestroysOnce(t *testing.T) {
	for round := 0; round < 200; round++ {
		r := NewRegistry()
		obj := newThing(r, TypeEvent, nil)
		obj.Retain()

		var wg sync.WaitGroup
		var destroyedBy atomic.Int32
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if obj.Release() {
					destroyedBy.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, destroyedBy.Load(), "round %d", round)
		require.EqualValues(t, 1, obj.destroyed.Load(), "round %d", round)
	}
}

func TestObject_ManyHoldersManyGoroutines(t *testing.T) {
	r := NewRegistry()
	obj := newThing(r, TypeEvent, nil)

	const holders = 64
	for i := 0; i < holders; i++ {
		obj.Retain()
	}

	var wg sync.WaitGroup
	for i := 0; i < holders+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj.Release()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, obj.destroyed.Load())
	assert.Zero(t, r.Count())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "command_queue", TypeCommandQueue.String())
	assert.Equal(t, "invalid", Type(200).String())
}
