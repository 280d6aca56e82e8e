package scheduler

import "fmt"

// Status is the execution status of an event. It only ever decreases:
// Queued > Submitted > Running > Complete. Any negative value is an error
// code and, like Complete, terminal.
type Status int32

const (
	Complete  Status = 0
	Running   Status = 1
	Submitted Status = 2
	Queued    Status = 3
)

// StatusFromCode returns the terminal status carrying code.
func StatusFromCode(c Code) Status {
	return Status(c)
}

// Terminal reports whether the event will not change status again.
func (s Status) Terminal() bool { return s <= Complete }

// Failed reports whether s is an error status.
func (s Status) Failed() bool { return s < Complete }

// Code returns the error code of a failed status and CodeSuccess otherwise.
func (s Status) Code() Code {
	if s.Failed() {
		return Code(s)
	}
	return CodeSuccess
}

// Err returns the error carried by a failed status, or nil.
func (s Status) Err() error {
	if !s.Failed() {
		return nil
	}
	return &Error{Code: Code(s)}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Running:
		return "running"
	case Submitted:
		return "submitted"
	case Queued:
		return "queued"
	}
	if s.Failed() {
		return fmt.Sprintf("failed(%s)", Code(s))
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// CommandType discriminates the payload of an event.
type CommandType uint8

const (
	CommandNDRangeKernel CommandType = iota + 1
	CommandTask
	CommandNativeKernel
	CommandReadBuffer
	CommandWriteBuffer
	CommandCopyBuffer
	CommandFillBuffer
	CommandMarker
	CommandBarrier
	CommandWaitForEvents
	CommandUser
)

var commandNames = map[CommandType]string{
	CommandNDRangeKernel: "ndrange_kernel",
	CommandTask:          "task",
	CommandNativeKernel:  "native_kernel",
	CommandReadBuffer:    "read_buffer",
	CommandWriteBuffer:   "write_buffer",
	CommandCopyBuffer:    "copy_buffer",
	CommandFillBuffer:    "fill_buffer",
	CommandMarker:        "marker",
	CommandBarrier:       "barrier",
	CommandWaitForEvents: "wait_for_events",
	CommandUser:          "user",
}

// String implements fmt.Stringer.
func (t CommandType) String() string {
	if s, ok := commandNames[t]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", uint8(t))
}

// Dummy reports whether commands of this type complete in-process without
// ever reaching a backend.
func (t CommandType) Dummy() bool {
	switch t {
	case CommandMarker, CommandBarrier, CommandWaitForEvents, CommandUser:
		return true
	default:
		return false
	}
}

// Timing selects one of the four profiling counters of an event.
type Timing int

const (
	TimingQueued Timing = iota
	TimingSubmit
	TimingStart
	TimingEnd

	numTimings
)

// String implements fmt.Stringer.
func (t Timing) String() string {
	switch t {
	case TimingQueued:
		return "queued"
	case TimingSubmit:
		return "submit"
	case TimingStart:
		return "start"
	case TimingEnd:
		return "end"
	default:
		return fmt.Sprintf("timing(%d)", int(t))
	}
}

// ProfilingInfo holds the four counters in nanoseconds since the Unix epoch.
type ProfilingInfo struct {
	Queued int64
	Submit int64
	Start  int64
	End    int64
}
