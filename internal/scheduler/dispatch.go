package scheduler

// dispatchPlan is what one scan of the sequence decided. At most one of
// complete and fail is set; the scan stops at such an event because moving
// it to a terminal status changes what the rest of the sequence may do.
type dispatchPlan struct {
	push     []*Event
	complete *Event
	fail     *Event
	full     bool
}

// scanLocked walks the sequence head to tail. It must run with q.res held.
func (q *CommandQueue) scanLocked() dispatchPlan {
	var p dispatchPlan
	first := true
	skipped := false

	for _, e := range q.events {
		s := e.Status()

		// Terminal events wait for cleanup.
		if s.Terminal() {
			continue
		}
		// In-order queues only ever run the first live event.
		if !q.props.OutOfOrder && !first {
			return p
		}
		// A barrier that is not first waits for everything before it.
		if e.cmd.Type() == CommandBarrier && !first {
			return p
		}
		first = false

		// Already Submitted or Running.
		if s != Queued {
			continue
		}

		ready, failed := e.predecessorsDone()
		if failed {
			p.fail = e
			return p
		}
		if !ready {
			if e.cmd.Type() == CommandWaitForEvents {
				return p
			}
			skipped = true
			continue
		}

		if e.cmd.Type().Dummy() {
			p.complete = e
			return p
		}
		p.push = append(p.push, e)
	}

	p.full = !skipped
	return p
}

// dispatch scans the sequence until a scan neither completes nor fails an
// event, pushing eligible events to the backend along the way. It reports
// false once the queue has been destroyed.
func (q *CommandQueue) dispatch() bool {
	for {
		if !q.res.TryAcquire() {
			return false
		}
		gen := q.gen
		p := q.scanLocked()
		// Cleanup may run concurrently from Finish; keep the planned events
		// alive until they have been handled.
		for _, e := range p.push {
			e.Retain()
		}
		for _, e := range []*Event{p.complete, p.fail} {
			if e != nil {
				e.Retain()
			}
		}
		if q.res.Release() {
			return false
		}

		for _, e := range p.push {
			q.push(e)
			e.Release()
		}

		switch {
		case p.complete != nil:
			if _, ok := p.complete.transition(Complete, isQueued); ok {
				p.complete.logger.Debug("Event completed in-process.")
			}
			p.complete.Release()
			continue
		case p.fail != nil:
			if _, ok := p.fail.transition(StatusFromCode(CodeExecStatusErrorForEventsInWaitList), isQueued); ok {
				p.fail.logger.Warn("Skipping event, a predecessor failed.")
			}
			p.fail.Release()
			continue
		}

		if !q.res.TryAcquire() {
			return false
		}
		if p.full && q.gen == gen {
			q.flushed = true
		}
		return !q.res.Release()
	}
}

func (q *CommandQueue) push(e *Event) {
	if _, ok := e.transition(Submitted, isQueued); !ok {
		// Cancelled after the scan.
		return
	}
	if q.Properties().Profiling {
		e.UpdateTiming(TimingSubmit)
	}
	e.logger.Debug("Event dispatched.", "backend", q.backend.Name())
	q.backend.PushEvent(e)
}

// cleanup removes settled events from the sequence and drops the queue's
// references on them. A terminal event whose callbacks are still running
// stays until they return. It reports false once the queue has been destroyed.
func (q *CommandQueue) cleanup() bool {
	if !q.res.TryAcquire() {
		return false
	}
	var removed []*Event
	kept := q.events[:0]
	for _, e := range q.events {
		if e.Settled() {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	clear(q.events[len(kept):])
	q.events = kept
	if q.res.Release() {
		return false
	}

	releaseAll(removed)
	return true
}

func isQueued(cur Status) bool { return cur == Queued }
