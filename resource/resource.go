// Package resource holds the contract every piece of bench hardware satisfies.
//
// A Resource can be connected, performs its typed operations, and can always
// be driven to its safe state.  SafeState never returns an error: teardown of
// one resource must not keep another from reaching its own safe state.
package resource

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a resource
type State int

const (
	// Uninitialized resources have not been connected
	Uninitialized State = iota

	// Connected resources accept typed operations
	Connected

	// Safe resources have been driven to their safe state
	Safe

	// Closed resources have released their transport
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connected:
		return "connected"
	case Safe:
		return "safe-state"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Resource is a piece of bench hardware
type Resource interface {
	// ID is the device or resource address
	ID() string

	// Connect acquires the hardware, failing with a Connection fault
	Connect(context.Context) error

	// State returns the current lifecycle state
	State() State

	// SafeState drives the hardware to its harmless configuration.
	// Failures are logged and swallowed.
	SafeState()

	// Close releases the transport
	Close() error
}

// Lifecycle is an embeddable, concurrent-safe holder of a resource's
// identity and lifecycle state
type Lifecycle struct {
	mu    sync.Mutex
	id    string
	state State
}

// NewLifecycle returns a Lifecycle for the resource at id
func NewLifecycle(id string) *Lifecycle {
	return &Lifecycle{id: id}
}

// ID returns the resource identity
func (l *Lifecycle) ID() string { return l.id }

// State returns the lifecycle state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetState records a lifecycle transition
func (l *Lifecycle) SetState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// Logger returns a log entry labelled with the resource identity
func (l *Lifecycle) Logger(component string) *log.Entry {
	return log.WithFields(log.Fields{"component": component, "resource": l.id})
}

// SafeAll drives every resource to its safe state, last acquired first.
// A panic inside one SafeState is recovered and logged so that the
// remaining resources are still visited.
func SafeAll(rs ...Resource) {
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if r == nil {
			continue
		}
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.WithField("resource", r.ID()).Errorf("panic while reaching safe state: %v", p)
				}
			}()
			r.SafeState()
		}()
	}
}

// CloseAll closes every resource, logging failures
func CloseAll(rs ...Resource) {
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if r == nil || r.State() == Uninitialized || r.State() == Closed {
			continue
		}
		if err := r.Close(); err != nil {
			log.WithField("resource", r.ID()).Warnf("close failed: %v", err)
		}
	}
}
