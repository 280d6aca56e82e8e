// Package eventstore records what happened to named commands of a run. It is
// written from event callbacks, which run on queue dispatchers and device
// workers, and read once the run is over.
//
// # Concurrency Model
//
// Each command's state is independent and updated several times while the
// run is in flight, so the store keeps one sync.Map per kind of value rather
// than a single lock.
package eventstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/burstqueue/internal/scheduler"
)

// Store is an in-memory, concurrency-safe record of command outcomes.
type Store struct {
	states  sync.Map // Key: command name, Value: scheduler.Status
	errors  sync.Map // Key: command name, Value: error
	timings sync.Map // Key: command name, Value: scheduler.ProfilingInfo

	order   sync.Map // Key: command name, Value: int64 (tracking order)
	tracked atomic.Int64
}

// New creates a new, empty store.
func New() *Store {
	return &Store{}
}

// SetStatus records the status of a command.
func (s *Store) SetStatus(ctx context.Context, name string, status scheduler.Status) error {
	s.states.Store(name, status)
	return nil
}

// GetStatus returns the last recorded status of a command, Queued if none was
// recorded.
func (s *Store) GetStatus(ctx context.Context, name string) (scheduler.Status, error) {
	status, ok := s.states.Load(name)
	if !ok {
		return scheduler.Queued, nil
	}
	return status.(scheduler.Status), nil
}

// SetError records the failure of a command.
func (s *Store) SetError(ctx context.Context, name string, cmdErr error) error {
	s.errors.Store(name, cmdErr)
	return nil
}

// GetError returns the recorded failure of a command, or nil.
func (s *Store) GetError(ctx context.Context, name string) (error, error) {
	err, ok := s.errors.Load(name)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}

// SetTimings records the profiling counters of a command.
func (s *Store) SetTimings(ctx context.Context, name string, info scheduler.ProfilingInfo) error {
	s.timings.Store(name, info)
	return nil
}

// GetTimings returns the recorded profiling counters of a command.
func (s *Store) GetTimings(ctx context.Context, name string) (scheduler.ProfilingInfo, bool) {
	info, ok := s.timings.Load(name)
	if !ok {
		return scheduler.ProfilingInfo{}, false
	}
	return info.(scheduler.ProfilingInfo), true
}

// Track registers callbacks on e that keep the record of name current until
// e is terminal. Profiling counters are captured when e's queue profiles.
func (s *Store) Track(ctx context.Context, name string, e *scheduler.Event) error {
	s.order.LoadOrStore(name, s.tracked.Add(1))
	_ = s.SetStatus(ctx, name, e.Status())

	record := func(e *scheduler.Event, status scheduler.Status) {
		_ = s.SetStatus(ctx, name, status)
	}
	for _, st := range []scheduler.Status{scheduler.Submitted, scheduler.Running} {
		if err := e.SetCallback(st, record); err != nil {
			return err
		}
	}
	return e.SetCallback(scheduler.Complete, func(e *scheduler.Event, status scheduler.Status) {
		_ = s.SetStatus(ctx, name, status)
		if err := status.Err(); err != nil {
			_ = s.SetError(ctx, name, err)
		}
		if info, err := e.ProfilingInfo(); err == nil {
			_ = s.SetTimings(ctx, name, info)
		}
	})
}

// Names returns every tracked command name in the order it was first
// tracked.
func (s *Store) Names() []string {
	names := make([]string, s.tracked.Load())
	n := 0
	s.order.Range(func(k, v any) bool {
		idx := v.(int64) - 1
		if int(idx) < len(names) {
			names[idx] = k.(string)
			n++
		}
		return true
	})
	out := names[:0]
	for _, name := range names {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
