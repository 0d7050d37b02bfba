package sim

import (
	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/ni"
	"github.com/emc-lab/emcbench/util"
)

// DAQ implements ni.DAQmx for the relay bank and the sensor input
type DAQ struct {
	b *Bench
}

// Probe fails if the DAQ is offline
func (d *DAQ) Probe(dev string) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.b.DAQOffline {
		return ErrOffline
	}
	return nil
}

// WriteLine drives one relay
func (d *DAQ) WriteLine(dev string, port, line int, on bool) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.b.DAQOffline {
		return ErrOffline
	}
	if port != 0 || line < 0 || line > 7 {
		return fault.New(fault.Configuration, dev, "add do chan", "no such line port%d/line%d", port, line)
	}
	d.b.port = util.SetBit(d.b.port, uint(line), on)
	return nil
}

// WritePort drives all relays
func (d *DAQ) WritePort(dev string, port int, value uint8) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.b.DAQOffline {
		return ErrOffline
	}
	if port != 0 {
		return fault.New(fault.Configuration, dev, "add do chan", "no such port port%d", port)
	}
	d.b.port = value
	return nil
}

// ReadAnalog samples the device under test's output
func (d *DAQ) ReadAnalog(dev string, channel int, cfg ni.AIConfig) (float64, error) {
	d.b.mu.Lock()
	if d.b.DAQOffline {
		d.b.mu.Unlock()
		return 0, ErrOffline
	}
	d.b.reads++
	n := d.b.reads
	v := util.Clamp(d.b.volts(), cfg.Min, cfg.Max)
	hook := d.b.OnRead
	d.b.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return 0, err
		}
	}
	return v, nil
}
