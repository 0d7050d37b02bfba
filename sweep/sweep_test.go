package sweep

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emc-lab/emcbench/fault"
)

// dut is a device under test that activates at and above threshold dBm
type dut struct {
	threshold float64
	power     float64
	sets      []float64
	reads     int
}

func (d *dut) setPower(p float64) error {
	d.power = p
	d.sets = append(d.sets, p)
	return nil
}

func (d *dut) read() (float64, error) {
	d.reads++
	if d.power >= d.threshold {
		return 3.3, nil
	}
	return 0.2, nil
}

func TestActivationAndStopMargin(t *testing.T) {
	d := &dut{threshold: -70}
	out, err := Threshold{Start: -80, End: 10, Step: 1, Trigger: 2.5}.Run(context.Background(), d.setPower, d.read)
	require.NoError(t, err)
	require.True(t, out.Found())
	assert.Equal(t, -70., *out.Activation)
	assert.Equal(t, -80., *out.Stop)
	assert.Equal(t, 11, out.Probes)
}

func TestNeverCrossesBoundedProbes(t *testing.T) {
	d := &dut{threshold: math.Inf(1)}
	th := Threshold{Start: -80, End: 10, Step: 1, Trigger: 2.5}
	out, err := th.Run(context.Background(), d.setPower, d.read)
	require.NoError(t, err)
	assert.False(t, out.Found())
	assert.Nil(t, out.Stop)
	want := int(math.Ceil((th.End-th.Start)/th.Step)) + 1
	assert.Equal(t, want, out.Probes)
	assert.Equal(t, want, d.reads)
	for _, p := range d.sets {
		assert.LessOrEqual(t, p, th.End, "power must never be applied above the end of the range")
	}
}

func TestFractionalStepDoesNotDrift(t *testing.T) {
	d := &dut{threshold: math.Inf(1)}
	th := Threshold{Start: -10, End: -9, Step: 0.1, Trigger: 2.5}
	out, err := th.Run(context.Background(), d.setPower, d.read)
	require.NoError(t, err)
	assert.Equal(t, 11, out.Probes)
	assert.Equal(t, th.MaxProbes(), out.Probes)
}

func TestAlreadyAboveTriggerAtStart(t *testing.T) {
	d := &dut{threshold: -200}
	out, err := Threshold{Start: -80, End: 10, Step: 1, Trigger: 2.5}.Run(context.Background(), d.setPower, d.read)
	require.NoError(t, err)
	require.True(t, out.Found())
	assert.Equal(t, -80., *out.Activation)
	assert.Equal(t, 1, out.Probes)
}

func TestInvalidParametersAreUsageFaults(t *testing.T) {
	cases := []Threshold{
		{Start: -80, End: 10, Step: 0},
		{Start: 10, End: -80, Step: 1},
		{Start: -130, End: 10, Step: 1},
		{Start: -80, End: 25, Step: 1},
	}
	for _, th := range cases {
		_, err := th.Run(context.Background(), func(float64) error { return nil }, func() (float64, error) { return 0, nil })
		assert.True(t, errors.Is(err, fault.ErrUsage), "%+v: expected usage fault, got %v", th, err)
	}
}

func TestCancelledBetweenProbes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &dut{threshold: math.Inf(1)}
	th := Threshold{Start: -80, End: 10, Step: 1, Trigger: 2.5, OnProbe: func(p, v float64) {
		if p >= -75 {
			cancel()
		}
	}}
	out, err := th.Run(ctx, d.setPower, d.read)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 6, out.Probes)
	assert.False(t, out.Found())
}

func TestReadFailureSurfaces(t *testing.T) {
	boom := fault.New(fault.Operation, "Dev1", "read ai0", "device disconnected")
	_, err := Threshold{Start: -80, End: 10, Step: 1, Trigger: 2.5}.Run(context.Background(),
		func(float64) error { return nil },
		func() (float64, error) { return 0, boom })
	assert.ErrorIs(t, err, fault.ErrOperation)
}
