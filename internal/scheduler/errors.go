package scheduler

import (
	"errors"
	"fmt"
)

// Code is a numeric error code. Values mirror the OpenCL error codes the
// scheduler models; negative codes double as terminal event statuses.
type Code int32

const (
	CodeSuccess                            Code = 0
	CodeOutOfResources                     Code = -5
	CodeProfilingInfoNotAvailable          Code = -7
	CodeMemCopyOverlap                     Code = -8
	CodeExecStatusErrorForEventsInWaitList Code = -14
	CodeInvalidValue                       Code = -30
	CodeInvalidDevice                      Code = -33
	CodeInvalidContext                     Code = -34
	CodeInvalidQueueProperties             Code = -35
	CodeInvalidCommandQueue                Code = -36
	CodeInvalidMemObject                   Code = -38
	CodeInvalidProgramExecutable           Code = -45
	CodeInvalidKernel                      Code = -48
	CodeInvalidWorkDimension               Code = -53
	CodeInvalidWorkGroupSize               Code = -54
	CodeInvalidEventWaitList               Code = -57
	CodeInvalidEvent                       Code = -58
	CodeInvalidOperation                   Code = -59
	CodeInvalidGlobalWorkSize              Code = -63

	// Codes below have no OpenCL counterpart.

	// CodeExecFailed is reported by a backend whose command failed.
	CodeExecFailed Code = -1000
	// CodeCancelled terminates an event cancelled before dispatch.
	CodeCancelled Code = -1001
)

var codeNames = map[Code]string{
	CodeSuccess:                            "success",
	CodeOutOfResources:                     "out of resources",
	CodeProfilingInfoNotAvailable:          "profiling info not available",
	CodeMemCopyOverlap:                     "mem copy overlap",
	CodeExecStatusErrorForEventsInWaitList: "exec status error for events in wait list",
	CodeInvalidValue:                       "invalid value",
	CodeInvalidDevice:                      "invalid device",
	CodeInvalidContext:                     "invalid context",
	CodeInvalidQueueProperties:             "invalid queue properties",
	CodeInvalidCommandQueue:                "invalid command queue",
	CodeInvalidMemObject:                   "invalid mem object",
	CodeInvalidProgramExecutable:           "invalid program executable",
	CodeInvalidKernel:                      "invalid kernel",
	CodeInvalidWorkDimension:               "invalid work dimension",
	CodeInvalidWorkGroupSize:               "invalid work group size",
	CodeInvalidEventWaitList:               "invalid event wait list",
	CodeInvalidEvent:                       "invalid event",
	CodeInvalidOperation:                   "invalid operation",
	CodeInvalidGlobalWorkSize:              "invalid global work size",
	CodeExecFailed:                         "execution failed",
	CodeCancelled:                          "cancelled",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code %d", int32(c))
}

// Error is the error type returned by scheduler operations. Two *Error values
// match under errors.Is when their codes are equal, so callers compare against
// the Err* sentinels regardless of Op and cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrOutOfResources                     = &Error{Code: CodeOutOfResources}
	ErrProfilingInfoNotAvailable          = &Error{Code: CodeProfilingInfoNotAvailable}
	ErrMemCopyOverlap                     = &Error{Code: CodeMemCopyOverlap}
	ErrExecStatusErrorForEventsInWaitList = &Error{Code: CodeExecStatusErrorForEventsInWaitList}
	ErrInvalidValue                       = &Error{Code: CodeInvalidValue}
	ErrInvalidDevice                      = &Error{Code: CodeInvalidDevice}
	ErrInvalidContext                     = &Error{Code: CodeInvalidContext}
	ErrInvalidQueueProperties             = &Error{Code: CodeInvalidQueueProperties}
	ErrInvalidCommandQueue                = &Error{Code: CodeInvalidCommandQueue}
	ErrInvalidMemObject                   = &Error{Code: CodeInvalidMemObject}
	ErrInvalidProgramExecutable           = &Error{Code: CodeInvalidProgramExecutable}
	ErrInvalidKernel                      = &Error{Code: CodeInvalidKernel}
	ErrInvalidWorkDimension               = &Error{Code: CodeInvalidWorkDimension}
	ErrInvalidWorkGroupSize               = &Error{Code: CodeInvalidWorkGroupSize}
	ErrInvalidEventWaitList               = &Error{Code: CodeInvalidEventWaitList}
	ErrInvalidEvent                       = &Error{Code: CodeInvalidEvent}
	ErrInvalidOperation                   = &Error{Code: CodeInvalidOperation}
	ErrInvalidGlobalWorkSize              = &Error{Code: CodeInvalidGlobalWorkSize}
	ErrExecFailed                         = &Error{Code: CodeExecFailed}
	ErrCancelled                          = &Error{Code: CodeCancelled}
)

func newError(code Code, op string, format string, args ...any) *Error {
	e := &Error{Code: code, Op: op}
	if format != "" {
		e.Err = fmt.Errorf(format, args...)
	}
	return e
}

// CodeOf extracts the code carried by err. A nil error is CodeSuccess and an
// error that is not an *Error maps to CodeExecFailed.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeExecFailed
}
