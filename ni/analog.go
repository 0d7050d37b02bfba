package ni

import (
	"context"
	"fmt"
	"io"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/resource"
)

// Analog is an NI USB-6361 used for single-sample analog input
type Analog struct {
	*resource.Lifecycle
	daq DAQmx

	// Config is used by ReadVoltage
	Config AIConfig
}

// NewAnalog returns the analog card dev, e.g. "Dev1", configured with DefaultAI
func NewAnalog(dev string, daq DAQmx) *Analog {
	return &Analog{Lifecycle: resource.NewLifecycle(dev), daq: daq, Config: DefaultAI}
}

// Connect checks that the card is present
func (a *Analog) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.daq.Probe(a.ID()); err != nil {
		return fault.Wrap(fault.Connection, a.ID(), "connect", err)
	}
	a.SetState(resource.Connected)
	return nil
}

// ReadVoltage samples ai<channel> with the card's Config
func (a *Analog) ReadVoltage(channel int) (float64, error) {
	return a.ReadVoltageWith(channel, a.Config)
}

// ReadVoltageWith samples ai<channel> with an explicit range and terminal mode
func (a *Analog) ReadVoltageWith(channel int, cfg AIConfig) (float64, error) {
	if channel < 0 {
		return 0, fault.New(fault.Usage, a.ID(), "read voltage", "invalid analog channel %d", channel)
	}
	if cfg.Min >= cfg.Max {
		return 0, fault.New(fault.Usage, a.ID(), "read voltage", "empty voltage range [%g, %g]", cfg.Min, cfg.Max)
	}
	v, err := a.daq.ReadAnalog(a.ID(), channel, cfg)
	if err != nil {
		return 0, fault.Wrap(fault.Operation, a.ID(), fmt.Sprintf("read ai%d", channel), err)
	}
	a.Logger("usb6361").Debugf("measured %.4f V on ai%d", v, channel)
	return v, nil
}

// SafeState has nothing to switch off on a passive input, it performs a
// connectivity probe read of ai0
func (a *Analog) SafeState() {
	log := a.Logger("usb6361")
	if _, err := a.ReadVoltage(0); err != nil {
		log.Errorf("hardware health check failed: %v", err)
		return
	}
	log.Debug("hardware communication verified")
	a.SetState(resource.Safe)
}

// Close releases the backend if it holds a connection
func (a *Analog) Close() error {
	a.SetState(resource.Closed)
	if c, ok := a.daq.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
