package ni

import (
	"context"
	"fmt"
	"io"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/resource"
)

// RelayLines is the number of relays on an NI 9485
const RelayLines = 8

// Relay is an NI 9485 8-channel solid state relay module.  All of its lines
// live on port0
type Relay struct {
	*resource.Lifecycle
	daq DAQmx
}

// NewRelay returns the relay module dev, e.g. "cDAQ1Mod1"
func NewRelay(dev string, daq DAQmx) *Relay {
	return &Relay{Lifecycle: resource.NewLifecycle(dev), daq: daq}
}

// Connect checks that the module is present
func (r *Relay) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.daq.Probe(r.ID()); err != nil {
		return fault.Wrap(fault.Connection, r.ID(), "connect", err)
	}
	r.SetState(resource.Connected)
	return nil
}

// Write closes (true) or opens (false) one relay line, 0..7
func (r *Relay) Write(line int, closed bool) error {
	if line < 0 || line >= RelayLines {
		return fault.New(fault.Usage, r.ID(), "write relay", "invalid relay line %d, must be between 0 and %d", line, RelayLines-1)
	}
	r.Logger("ni9485").Debugf("switching %s/port0/line%d to %v", r.ID(), line, closed)
	err := r.daq.WriteLine(r.ID(), 0, line, closed)
	return fault.Wrap(fault.Operation, r.ID(), fmt.Sprintf("write line%d", line), err)
}

// OpenAll opens every relay by writing 0x00 to port0
func (r *Relay) OpenAll() error {
	err := r.daq.WritePort(r.ID(), 0, 0)
	return fault.Wrap(fault.Operation, r.ID(), "open all relays", err)
}

// SafeState opens every relay
func (r *Relay) SafeState() {
	log := r.Logger("ni9485")
	log.Info("opening all relays")
	if err := r.OpenAll(); err != nil {
		log.Errorf("could not open all relays during safe state: %v", err)
		return
	}
	r.SetState(resource.Safe)
}

// Close releases the backend if it holds a connection
func (r *Relay) Close() error {
	r.SetState(resource.Closed)
	if c, ok := r.daq.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
