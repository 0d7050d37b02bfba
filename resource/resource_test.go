package resource

import (
	"context"
	"testing"
)

type probe struct {
	*Lifecycle
	order *[]string
	panic bool
}

func (p *probe) Connect(context.Context) error { p.SetState(Connected); return nil }
func (p *probe) Close() error                  { p.SetState(Closed); return nil }
func (p *probe) SafeState() {
	*p.order = append(*p.order, p.ID())
	if p.panic {
		panic("relay driver exploded")
	}
	p.SetState(Safe)
}

func TestSafeAllReverseOrderAndSurvivesPanic(t *testing.T) {
	var order []string
	a := &probe{Lifecycle: NewLifecycle("gen"), order: &order}
	b := &probe{Lifecycle: NewLifecycle("relay"), order: &order, panic: true}
	c := &probe{Lifecycle: NewLifecycle("axes"), order: &order}
	SafeAll(a, b, nil, c)
	if len(order) != 3 || order[0] != "axes" || order[1] != "relay" || order[2] != "gen" {
		t.Errorf("expected reverse acquisition order, got %v", order)
	}
	if a.State() != Safe || c.State() != Safe {
		t.Errorf("resources after a panicking one should still reach safe state")
	}
}

func TestCloseAllSkipsUnconnected(t *testing.T) {
	var order []string
	a := &probe{Lifecycle: NewLifecycle("gen"), order: &order}
	b := &probe{Lifecycle: NewLifecycle("relay"), order: &order}
	a.Connect(context.Background())
	CloseAll(a, b)
	if a.State() != Closed {
		t.Errorf("connected resource should be closed, got %v", a.State())
	}
	if b.State() != Uninitialized {
		t.Errorf("unconnected resource should be untouched, got %v", b.State())
	}
}
