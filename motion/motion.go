// Package motion holds the two guards every positioner move goes through:
// WaitFor blocks until an axis converges on its target, and EnsureMode keeps
// commands from landing on the wrong axis of a multiplexed controller.
package motion

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/emc-lab/emcbench/fault"
)

const (
	// DefaultTolerance is the convergence band around a target
	DefaultTolerance = 0.01

	// DefaultPoll is the interval between position reads
	DefaultPoll = 500 * time.Millisecond
)

// Target is a desired axis position
type Target struct {
	Value     float64
	Tolerance float64
	Timeout   time.Duration

	// Poll is the read interval, DefaultPoll if zero
	Poll time.Duration
}

// NewTarget returns a Target with the default tolerance and poll interval
func NewTarget(value float64, timeout time.Duration) Target {
	return Target{Value: value, Tolerance: DefaultTolerance, Timeout: timeout, Poll: DefaultPoll}
}

// WaitFor polls read until |current - target| < tolerance.
//
// A failed read is logged and counted as not yet arrived.  When the timeout
// passes first, a *fault.TimeoutError carrying the last known distance is
// returned; when ctx is cancelled first, ctx.Err() is.
func WaitFor(ctx context.Context, op string, read func() (float64, error), t Target) error {
	poll := t.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	tol := t.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	entry := log.WithFields(log.Fields{"component": "motion", "op": op})
	start := time.Now()
	wctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	lim := rate.NewLimiter(rate.Every(poll), 1)
	dist := math.NaN()
	for {
		if err := lim.Wait(wctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &fault.TimeoutError{Op: op, Target: t.Value, Distance: dist, After: time.Since(start)}
		}
		cur, err := read()
		if err != nil {
			entry.Warnf("could not read position during wait: %v", err)
			continue
		}
		dist = math.Abs(cur - t.Value)
		if dist < tol {
			return nil
		}
		entry.Debugf("moving... current: %.2f, target: %.2f", cur, t.Value)
	}
}

// EnsureMode reads the current mode and, if it is not expected, switches once
// and reads again.  A mode that does not follow the switch is a Setup fault;
// the switch is synchronous and is not retried.
func EnsureMode(get func() (string, error), set func() error, expected string) error {
	entry := log.WithFields(log.Fields{"component": "motion", "mode": expected})
	cur, err := get()
	if err != nil {
		return fault.Wrap(fault.Operation, "", "read mode", err)
	}
	if cur == expected {
		entry.Debug("mode verified")
		return nil
	}
	entry.Warnf("mode mismatch, got %q, switching", cur)
	if err := set(); err != nil {
		return fault.Wrap(fault.Setup, "", "switch mode to "+expected, err)
	}
	cur, err = get()
	if err != nil {
		return fault.Wrap(fault.Operation, "", "read mode", err)
	}
	if cur != expected {
		return fault.New(fault.Setup, "", "switch mode", "failed to switch to %s mode, current mode is %q", expected, cur)
	}
	return nil
}
