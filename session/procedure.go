package session

import (
	"time"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/sweep"
	"github.com/emc-lab/emcbench/util"
)

// Procedure parameterises a sensitivity sweep
type Procedure struct {
	// FrequencyHz is the carrier
	FrequencyHz float64

	// Threshold is the per-cell power scan
	Threshold sweep.Threshold

	// Channel is the analog input the device under test is wired to
	Channel int

	// Angles are visited in order, in degrees
	Angles []int

	// Polarizations are visited in order at every angle
	Polarizations []report.Polarization

	// PolarSettle is the pause after switching polarization
	PolarSettle time.Duration

	// TurntableTimeout bounds each turntable move
	TurntableTimeout time.Duration

	// ReturnHome moves the turntable back to 0° after a complete sweep
	ReturnHome bool
}

// DefaultProcedure is the chamber's standard sweep: 869.8 MHz, -80 to +10 dBm
// in 1 dB steps, trigger at 2.5 V, every 30° from 0° to 330°, V then H
func DefaultProcedure() Procedure {
	return Procedure{
		FrequencyHz: 869.8e6,
		Threshold: sweep.Threshold{
			Start:   -80,
			End:     10,
			Step:    1,
			Trigger: 2.5,
			Settle:  50 * time.Millisecond,
		},
		Channel:          0,
		Angles:           util.Arange(0, 360, 30),
		Polarizations:    []report.Polarization{report.Vertical, report.Horizontal},
		PolarSettle:      time.Second,
		TurntableTimeout: 240 * time.Second,
		ReturnHome:       true,
	}
}

// Validate checks the procedure, returning a Usage fault
func (p Procedure) Validate() error {
	if err := p.Threshold.Validate(); err != nil {
		return err
	}
	if p.FrequencyHz <= 0 {
		return fault.New(fault.Usage, "", "procedure", "frequency %g Hz must be positive", p.FrequencyHz)
	}
	if p.Channel < 0 {
		return fault.New(fault.Usage, "", "procedure", "invalid analog channel %d", p.Channel)
	}
	if len(p.Angles) == 0 || len(p.Polarizations) == 0 {
		return fault.New(fault.Usage, "", "procedure", "no angles or polarizations to sweep")
	}
	seen := make(map[int]bool, len(p.Angles))
	for _, a := range p.Angles {
		if a < 0 || a >= 360 {
			return fault.New(fault.Usage, "", "procedure", "angle %d is outside [0, 360)", a)
		}
		if seen[a] {
			return fault.New(fault.Usage, "", "procedure", "angle %d listed twice", a)
		}
		seen[a] = true
	}
	for _, pol := range p.Polarizations {
		if !pol.Valid() {
			return fault.New(fault.Usage, "", "procedure", "polarization must be H or V, got %q", pol)
		}
	}
	return nil
}
