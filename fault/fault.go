// Package fault defines the error taxonomy shared by every bench component.
//
// All errors produced by drivers and the sweep engine are rooted at ErrBench,
// so a caller can ask errors.Is(err, fault.ErrBench) to separate bench faults
// from anything else.  The kind of fault decides what a caller may do next:
// only Operation faults are ever worth retrying.
package fault

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies a bench fault
type Kind int

const (
	// Connection means the hardware was unreachable at acquisition
	Connection Kind = iota

	// Configuration means a channel, address or parameter is invalid
	Configuration

	// Operation means the hardware rejected a well-formed command
	Operation

	// Timeout means a convergence wait exceeded its deadline
	Timeout

	// Usage means a step was invoked with bad arguments or out of sequence
	Usage

	// Setup means the bench could not be brought into the state a step needs
	Setup
)

var (
	// ErrBench is the root of every bench fault
	ErrBench = errors.New("test bench fault")

	// ErrConnection is matched by every Connection fault
	ErrConnection = fmt.Errorf("%w: connection", ErrBench)

	// ErrConfiguration is matched by every Configuration fault
	ErrConfiguration = fmt.Errorf("%w: configuration", ErrBench)

	// ErrOperation is matched by every Operation fault
	ErrOperation = fmt.Errorf("%w: operation", ErrBench)

	// ErrTimeout is matched by every Timeout fault
	ErrTimeout = fmt.Errorf("%w: timeout", ErrBench)

	// ErrUsage is matched by every Usage fault
	ErrUsage = fmt.Errorf("%w: usage", ErrBench)

	// ErrSetup is matched by every Setup fault
	ErrSetup = fmt.Errorf("%w: setup", ErrBench)
)

var kindNames = map[Kind]string{
	Connection:    "connection",
	Configuration: "configuration",
	Operation:     "operation",
	Timeout:       "timeout",
	Usage:         "usage",
	Setup:         "setup",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case Connection:
		return ErrConnection
	case Configuration:
		return ErrConfiguration
	case Operation:
		return ErrOperation
	case Timeout:
		return ErrTimeout
	case Usage:
		return ErrUsage
	case Setup:
		return ErrSetup
	}
	return ErrBench
}

// Error is a bench fault raised by a resource or a step
type Error struct {
	Kind Kind

	// Resource is the identity of the hardware involved, may be empty
	Resource string

	// Op is the operation that failed, e.g. "set power"
	Op string

	// Err is the underlying cause, may be nil
	Err error
}

func (e *Error) Error() string {
	s := e.Kind.String() + " fault"
	if e.Resource != "" {
		s += " on " + e.Resource
	}
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the fault's kind and ErrBench
func (e *Error) Is(target error) bool {
	return target == ErrBench || target == e.Kind.sentinel()
}

// New returns a fault of kind k with a formatted cause
func New(k Kind, resource, op, format string, args ...interface{}) error {
	return &Error{Kind: k, Resource: resource, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns a fault of kind k caused by err.  A nil err yields nil.
// Wrapping an existing bench fault keeps its kind.
func Wrap(k Kind, resource, op string, err error) error {
	if err == nil {
		return nil
	}
	if inner, ok := KindOf(err); ok {
		k = inner
	}
	return &Error{Kind: k, Resource: resource, Op: op, Err: err}
}

// TimeoutError is returned when a convergence wait runs out of time.
// It carries the last known distance from the target for diagnostics.
type TimeoutError struct {
	Op       string
	Target   float64
	Distance float64
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	dist := "never read"
	if !math.IsNaN(e.Distance) {
		dist = fmt.Sprintf("%g from target", e.Distance)
	}
	return fmt.Sprintf("timeout fault: %s did not reach %g within %s, %s", e.Op, e.Target, e.After, dist)
}

// Is matches ErrTimeout and ErrBench
func (e *TimeoutError) Is(target error) bool {
	return target == ErrBench || target == ErrTimeout
}

// KindOf returns the kind of a bench fault.  ok is false when err
// is not a bench fault.
func KindOf(err error) (k Kind, ok bool) {
	var te *TimeoutError
	var fe *Error
	switch {
	case errors.As(err, &fe):
		return fe.Kind, true
	case errors.As(err, &te):
		return Timeout, true
	}
	return 0, false
}

// Retryable reports whether it may be meaningful to repeat the call
// that produced err.  Only Operation faults qualify.
func Retryable(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Operation
}
