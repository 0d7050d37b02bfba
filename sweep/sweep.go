// Package sweep finds the activation threshold of a device under test by
// stepping the RF stimulus upward until a sensor crosses a trigger level.
//
// The scan is linear.  The sensor response of a physical RF link is not
// monotonic below threshold, so bisection would return wrong levels.
package sweep

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emc-lab/emcbench/fault"
)

const (
	// StopMargin is the back-off from the activation level that gives the
	// stop level.  The stop level is derived, never measured.
	StopMargin = 10.

	// MinPower and MaxPower bound the stimulus, in dBm
	MinPower = -120.
	MaxPower = 20.

	eps = 1e-9
)

// Outcome is the result of one threshold search.  A nil Activation means the
// sensor never crossed the trigger level over the whole range; that is a
// valid measurement, not a failure.
type Outcome struct {
	Activation *float64
	Stop       *float64

	// Probes is the number of sensor reads taken
	Probes int
}

// Found returns true if an activation level was detected
func (o Outcome) Found() bool { return o.Activation != nil }

// Threshold is an ascending power scan
type Threshold struct {
	// Start, End and Step are in dBm / dB
	Start, End, Step float64

	// Trigger is the sensor voltage that counts as activation
	Trigger float64

	// Settle is the pause after each power change
	Settle time.Duration

	// OnProbe, if not nil, is called after every sensor read
	OnProbe func(power, volts float64)
}

// Validate checks the scan parameters, returning a Usage fault
func (t Threshold) Validate() error {
	switch {
	case t.Step <= 0 || math.IsNaN(t.Step):
		return fault.New(fault.Usage, "", "threshold sweep", "step %g dB must be positive", t.Step)
	case t.Start > t.End:
		return fault.New(fault.Usage, "", "threshold sweep", "start %g dBm is above end %g dBm", t.Start, t.End)
	case t.Start < MinPower || t.End > MaxPower:
		return fault.New(fault.Usage, "", "threshold sweep", "range [%g, %g] dBm exceeds [%g, %g]", t.Start, t.End, MinPower, MaxPower)
	}
	return nil
}

// MaxProbes is the number of reads a scan that never activates takes
func (t Threshold) MaxProbes() int {
	return int(math.Floor((t.End-t.Start)/t.Step+eps)) + 1
}

// Run performs the scan.  setPower applies a level, readVoltage samples the
// sensor.  ctx is checked before every probe; on cancellation the partial
// outcome is returned with ctx.Err().
func (t Threshold) Run(ctx context.Context, setPower func(float64) error, readVoltage func() (float64, error)) (Outcome, error) {
	var out Outcome
	if err := t.Validate(); err != nil {
		return out, err
	}
	entry := log.WithField("component", "sweep")
	if err := setPower(t.Start); err != nil {
		return out, err
	}
	for i := 0; ; i++ {
		power := t.Start + float64(i)*t.Step
		if err := ctx.Err(); err != nil {
			return out, err
		}
		v, err := readVoltage()
		if err != nil {
			return out, err
		}
		out.Probes++
		if t.OnProbe != nil {
			t.OnProbe(power, v)
		}
		if v >= t.Trigger {
			act := power
			stop := act - StopMargin
			out.Activation, out.Stop = &act, &stop
			entry.Infof("activation detected at %.2f dBm", act)
			return out, nil
		}
		next := t.Start + float64(i+1)*t.Step
		if next > t.End+eps {
			entry.Infof("no activation between %.2f and %.2f dBm", t.Start, t.End)
			return out, nil
		}
		if err := setPower(next); err != nil {
			return out, err
		}
		if err := sleep(ctx, t.Settle); err != nil {
			return out, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}
