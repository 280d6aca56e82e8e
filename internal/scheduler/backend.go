package scheduler

// QueueProperties configures a command queue at creation time. A backend
// reports the properties it supports in the same form.
type QueueProperties struct {
	OutOfOrder bool
	Profiling  bool
}

// Supports reports whether every property requested in p is also set in
// supported.
func (p QueueProperties) Supports(requested QueueProperties) bool {
	if requested.OutOfOrder && !p.OutOfOrder {
		return false
	}
	if requested.Profiling && !p.Profiling {
		return false
	}
	return true
}

// Backend executes the non-dummy events a command queue dispatches to it.
//
// InitEventData runs when an event is enqueued, before the queue can see it;
// an error aborts the enqueue. PushEvent hands over an event already marked
// Submitted and must not block on its execution: the backend later reports
// progress through Event.SetStatus and must move every pushed event to
// exactly one terminal status. FreeEventData runs once when an initialized
// event is destroyed.
//
// None of these methods may call back into the queue that invoked them while
// holding backend locks that SetStatus callbacks could also need.
type Backend interface {
	Name() string
	QueueProperties() QueueProperties
	InitEventData(e *Event) error
	PushEvent(e *Event)
	FreeEventData(e *Event)
}
