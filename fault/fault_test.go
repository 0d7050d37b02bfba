package fault

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestErrorMatchesKindAndRoot(t *testing.T) {
	err := New(Configuration, "relay", "write line", "line %d out of range", 9)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected configuration fault to match ErrConfiguration")
	}
	if !errors.Is(err, ErrBench) {
		t.Errorf("expected configuration fault to match ErrBench")
	}
	if errors.Is(err, ErrOperation) {
		t.Errorf("configuration fault must not match ErrOperation")
	}
}

func TestWrapKeepsInnerKind(t *testing.T) {
	inner := New(Usage, "axes", "ensure mode", "unsupported mode %q", "Roof")
	outer := Wrap(Operation, "session", "run", fmt.Errorf("angle 30: %w", inner))
	k, ok := KindOf(outer)
	if !ok || k != Usage {
		t.Errorf("expected usage kind to survive wrapping, got %v %v", k, ok)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Operation, "x", "y", nil) != nil {
		t.Error("wrapping nil should be nil")
	}
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{Op: "turntable", Target: 90, Distance: 1.5, After: time.Second})
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrBench) {
		t.Errorf("timeout error should match ErrTimeout and ErrBench")
	}
	k, _ := KindOf(fmt.Errorf("wrapped: %w", err))
	if k != Timeout {
		t.Errorf("expected Timeout kind, got %v", k)
	}
	never := &TimeoutError{Op: "malt", Distance: math.NaN()}
	if never.Error() == "" {
		t.Error("empty message")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(Operation, "gen", "set power", "rejected"), true},
		{New(Configuration, "gen", "set power", "out of range"), false},
		{New(Connection, "gen", "connect", "refused"), false},
		{&TimeoutError{}, false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
