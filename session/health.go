package session

import (
	"context"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/resource"
)

// Identifier is implemented by resources that can report who they are
type Identifier interface {
	Identity() (string, error)
}

// Check is the health of one resource
type Check struct {
	Name     string `json:"name"`
	ID       string `json:"id,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Identity string `json:"identity,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK returns true if the resource connected and reached its safe state,
// or was skipped
func (c Check) OK() bool {
	return c.Skipped || (c.Error == "" && c.State == resource.Safe.String())
}

// Health takes the session's slot and checks the bench it would sweep.  It
// fails with ErrConflict while a sweep or another check holds the slot, so
// the two never drive the hardware at the same time
func (s *Session) Health(ctx context.Context) ([]Check, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Checking)) {
		return nil, ErrConflict
	}
	defer s.state.Store(int32(Idle))
	b, err := s.acquire()
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "", "acquire bench", err)
	}
	return Health(ctx, b), nil
}

// Health connects every configured resource of b, asks for its identity,
// drives it to its safe state and releases it.  Unconfigured hardware is
// reported as skipped, not as a failure.
func Health(ctx context.Context, b Bench) []Check {
	named := []struct {
		name string
		r    resource.Resource
	}{
		{"generator", b.Generator},
		{"relays", b.Relays},
		{"analog sensor", b.Sensor},
		{"positioner", b.Positioner},
	}
	out := make([]Check, 0, len(named))
	for _, n := range named {
		c := Check{Name: n.name}
		if n.r == nil {
			c.Skipped = true
			out = append(out, c)
			continue
		}
		c.ID = n.r.ID()
		if err := n.r.Connect(ctx); err != nil {
			c.Error = err.Error()
			out = append(out, c)
			continue
		}
		if id, ok := n.r.(Identifier); ok {
			if s, err := id.Identity(); err != nil {
				c.Error = err.Error()
			} else {
				c.Identity = s
			}
		}
		n.r.SafeState()
		c.State = n.r.State().String()
		if err := n.r.Close(); err != nil && c.Error == "" {
			c.Error = err.Error()
		}
		out = append(out, c)
	}
	return out
}
