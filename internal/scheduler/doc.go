// Package scheduler implements the command-queue and event engine: events
// carrying a status state machine and an immutable list of predecessors,
// command queues deciding which events may be handed to an execution
// backend, and the backend boundary itself.
//
// # How It Works
//
// Client code builds events on a CommandQueue and enqueues them. Every queue
// runs a dispatcher goroutine which, whenever it is kicked, scans the queue
// head to tail:
//  1. Terminal events are skipped; cleanup removes them later.
//  2. An in-order queue stops at the second live event.
//  3. A barrier that is not the first live event stops the scan.
//  4. Submitted and Running events are skipped.
//  5. An event whose predecessors are not all Complete is skipped; a
//     wait-for-events event stops the scan instead. An event with a failed
//     predecessor is failed with CodeExecStatusErrorForEventsInWaitList.
//  6. Dummy events (marker, barrier, wait-for-events) complete in-process
//     and the scan restarts; every other event is marked Submitted and
//     pushed to the backend.
//
// The backend reports progress with Event.SetStatus, only on events it was
// pushed. A terminal status kicks the owning queue and every other queue
// holding an event that waits on it, which is how user events and cross-queue
// dependencies unblock work. The kick follows the event's completion
// callbacks, and cleanup only removes events whose callbacks have returned.
//
// # Ownership
//
// Contexts, queues and events embed object.Object. Events own their queue
// (user events their context) and every predecessor; queues own the events in
// their sequence until cleanup. State shared between client goroutines,
// backend workers and the dispatcher goes through a resource.Resource, whose
// deferred destruction lets the goroutine dropping the last reference tear an
// object down safely.
//
// # Failure
//
// Construction errors are returned synchronously as *Error and leave nothing
// registered. Execution errors are negative statuses. They propagate along
// explicit wait-list edges only; an in-order queue still runs the next event
// after a failed one.
package scheduler
