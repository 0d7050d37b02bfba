/*
Package sim is a simulated EMC chamber.

A Bench couples a signal generator, an NI DAQ and the CtrlAxes window so the
real drivers can be exercised without hardware: the device under test's
output goes high once the RF level reaches its threshold for the current
turntable angle and polarization.

	b := sim.New()
	gen, relay, analog, pos := b.Drivers()

The generator speaks SCPI text, the DAQ and UI answer at the channel and
control level, exactly as the agent does for real hardware.
*/
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/emc-lab/emcbench/axes"
	"github.com/emc-lab/emcbench/ni"
	"github.com/emc-lab/emcbench/rohde"
)

// ErrOffline is returned by a device whose link has been cut
var ErrOffline = errors.New("simulated device offline")

// Bench is the simulated chamber.  Exported fields are read by the
// simulation and may be set before use.
type Bench struct {
	// Threshold returns the activation level in dBm of the device under test
	Threshold func(angle float64, horizontal bool) float64

	// High and Low are the sensor levels above and below threshold, in V
	High, Low float64

	// Speed of the axes, units per second.  0 moves instantly
	Speed float64

	// OnRead, if not nil, is called with the running count of analog reads.
	// A non-nil error fails the read.
	OnRead func(n int) error

	// GeneratorOffline and DAQOffline cut the respective links
	GeneratorOffline bool
	DAQOffline       bool

	mu sync.Mutex

	freq   float64
	power  float64
	rf     bool
	port   uint8
	reads  int
	target string
	step   string

	mode       string
	horizontal bool
	turntable  axis
	malt       axis
	stops      int
}

// axis moves linearly from `from` to `to`, starting at `start`
type axis struct {
	from, to float64
	start    time.Time
	min, max float64
}

func (a *axis) pos(speed float64, now time.Time) float64 {
	if speed <= 0 || a.from == a.to {
		return a.to
	}
	travel := speed * now.Sub(a.start).Seconds()
	d := a.to - a.from
	if travel >= math.Abs(d) {
		return a.to
	}
	return a.from + math.Copysign(travel, d)
}

func (a *axis) moveTo(speed float64, v float64, now time.Time) {
	cur := a.pos(speed, now)
	a.from, a.to, a.start = cur, v, now
}

func (a *axis) halt(speed float64, now time.Time) {
	cur := a.pos(speed, now)
	a.from, a.to = cur, cur
}

// State is a snapshot of the chamber
type State struct {
	FrequencyHz float64
	PowerDBm    float64
	RF          bool
	RelayPort   uint8
	Mode        string
	Degrees     float64
	Height      float64
	Horizontal  bool
	Reads       int
	Stops       int
}

// New returns a chamber in Turntable mode with everything at rest and a
// device under test that activates at -60 dBm everywhere
func New() *Bench {
	return &Bench{
		Threshold: func(float64, bool) float64 { return -60 },
		High:      3.3,
		Low:       0.1,
		power:     rohde.MinPower,
		mode:      axes.Turntable,
		turntable: axis{min: 0, max: 359},
		malt:      axis{from: 100, to: 100, min: 100, max: 400},
	}
}

// Snapshot returns the current state of the chamber
func (b *Bench) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	return State{
		FrequencyHz: b.freq,
		PowerDBm:    b.power,
		RF:          b.rf,
		RelayPort:   b.port,
		Mode:        b.mode,
		Degrees:     b.turntable.pos(b.Speed, now),
		Height:      b.malt.pos(b.Speed, now),
		Horizontal:  b.horizontal,
		Reads:       b.reads,
		Stops:       b.stops,
	}
}

// Drivers returns the real drivers wired to the chamber
func (b *Bench) Drivers() (*rohde.SMB100A, *ni.Relay, *ni.Analog, *axes.CtrlAxes) {
	daq := &DAQ{b: b}
	pos := axes.New("sim/CtrlAxes", &UI{b: b})
	pos.Poll = 5 * time.Millisecond
	return rohde.NewSMB100AWith("sim/SMB100A", &Generator{b: b}),
		ni.NewRelay("sim/Relay", daq),
		ni.NewAnalog("sim/Analog", daq),
		pos
}

// volts is the device under test's output
func (b *Bench) volts() float64 {
	if !b.rf {
		return b.Low
	}
	now := time.Now()
	if b.power >= b.Threshold(b.turntable.pos(b.Speed, now), b.horizontal) {
		return b.High
	}
	return b.Low
}
