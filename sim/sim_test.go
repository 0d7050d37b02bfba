package sim

import (
	"context"
	"testing"
	"time"
)

func TestDriversAgainstChamber(t *testing.T) {
	b := New()
	b.Threshold = func(angle float64, horizontal bool) float64 {
		if horizontal {
			return -70
		}
		return -65
	}
	gen, relay, analog, pos := b.Drivers()
	ctx := context.Background()
	for _, c := range []interface{ Connect(context.Context) error }{gen, relay, analog, pos} {
		if err := c.Connect(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := relay.Write(2, true); err != nil {
		t.Fatal(err)
	}
	if s := b.Snapshot(); s.RelayPort != 0b100 {
		t.Errorf("expected relay 2 closed, got %08b", s.RelayPort)
	}
	if err := pos.MoveTurntable(90); err != nil {
		t.Fatal(err)
	}
	if err := pos.WaitTurntable(ctx, 90, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := pos.Horizontal(); err != nil {
		t.Fatal(err)
	}
	gen.SetOutput(true)
	gen.SetPower(-71)
	if v, _ := analog.ReadVoltage(0); v != b.Low {
		t.Errorf("expected low below threshold, got %g", v)
	}
	gen.SetPower(-70)
	if v, _ := analog.ReadVoltage(0); v != b.High {
		t.Errorf("expected high at threshold, got %g", v)
	}
	if err := pos.Vertical(); err != nil {
		t.Fatal(err)
	}
	if v, _ := analog.ReadVoltage(0); v != b.Low {
		t.Errorf("vertical threshold is higher, expected low, got %g", v)
	}
	gen.SafeState()
	relay.SafeState()
	pos.SafeState()
	s := b.Snapshot()
	if s.RF || s.PowerDBm != -120 || s.RelayPort != 0 || s.Stops != 1 || s.Degrees != 90 {
		t.Errorf("unexpected safe state %+v", s)
	}
}

func TestAxisMovesAtSpeed(t *testing.T) {
	a := axis{}
	t0 := time.Now()
	a.moveTo(10, 30, t0)
	if p := a.pos(10, t0.Add(time.Second)); p != 10 {
		t.Errorf("expected 10 after one second at 10/s, got %g", p)
	}
	if p := a.pos(10, t0.Add(5*time.Second)); p != 30 {
		t.Errorf("expected arrival at 30, got %g", p)
	}
	a.halt(10, t0.Add(2*time.Second))
	if p := a.pos(10, t0.Add(time.Hour)); p != 20 {
		t.Errorf("expected halt at 20, got %g", p)
	}
}
