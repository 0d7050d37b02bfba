package session

import (
	"context"
	"time"

	"github.com/emc-lab/emcbench/resource"
)

// Generator is the RF stimulus
type Generator interface {
	resource.Resource
	SetFrequency(hz float64) error
	SetPower(dbm float64) error
	SetOutput(on bool) error
}

// Relays is a relay bank
type Relays interface {
	resource.Resource
	OpenAll() error
}

// Sensor samples the device under test's output voltage
type Sensor interface {
	resource.Resource
	ReadVoltage(channel int) (float64, error)
}

// Positioner moves the turntable and sets antenna polarization
type Positioner interface {
	resource.Resource
	MoveTurntable(deg float64) error
	WaitTurntable(ctx context.Context, deg float64, timeout time.Duration) error
	Horizontal() error
	Vertical() error
}

// Bench is the hardware of one run.  Unconfigured hardware is nil
type Bench struct {
	Generator  Generator
	Relays     Relays
	Sensor     Sensor
	Positioner Positioner
}

// Acquirer builds the resources for one run, not yet connected
type Acquirer func() (Bench, error)

// Resources lists the configured resources in acquisition order
func (b Bench) Resources() []resource.Resource {
	var out []resource.Resource
	if b.Generator != nil {
		out = append(out, b.Generator)
	}
	if b.Relays != nil {
		out = append(out, b.Relays)
	}
	if b.Sensor != nil {
		out = append(out, b.Sensor)
	}
	if b.Positioner != nil {
		out = append(out, b.Positioner)
	}
	return out
}

// Missing names the hardware a sweep needs that is not configured.
// Relays are optional.
func (b Bench) Missing() []string {
	var out []string
	if b.Generator == nil {
		out = append(out, "generator")
	}
	if b.Sensor == nil {
		out = append(out, "analog sensor")
	}
	if b.Positioner == nil {
		out = append(out, "positioner")
	}
	return out
}
