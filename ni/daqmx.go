// Package ni contains drivers for National Instruments DAQ hardware: the
// NI 9485 relay module and the NI USB-6361 analog input card.
//
// Both are driven through a DAQmx, a minimal channel-level contract over the
// vendor library.  AgentDAQ implements it over the bench agent.
package ni

import (
	"strconv"

	"github.com/emc-lab/emcbench/agent"
)

// AIConfig configures an analog input channel
type AIConfig struct {
	// Min and Max are the expected voltage range
	Min, Max float64

	// Differential selects DIFF terminal mode, otherwise RSE
	Differential bool
}

// DefaultAI is ±10 V, differential
var DefaultAI = AIConfig{Min: -10, Max: 10, Differential: true}

// DAQmx is the channel-level surface of NI-DAQmx the drivers use
type DAQmx interface {
	// Probe checks that the device is present
	Probe(dev string) error

	// WriteLine drives one digital output line
	WriteLine(dev string, port, line int, on bool) error

	// WritePort drives a whole digital output port
	WritePort(dev string, port int, value uint8) error

	// ReadAnalog takes one voltage sample
	ReadAnalog(dev string, channel int, cfg AIConfig) (float64, error)
}

// AgentDAQ implements DAQmx over the bench agent
type AgentDAQ struct {
	*agent.Client
}

// NewAgentDAQ returns a DAQmx backed by the agent at addr
func NewAgentDAQ(addr string) *AgentDAQ {
	return &AgentDAQ{Client: agent.New(addr)}
}

// Probe checks that dev is present
func (a *AgentDAQ) Probe(dev string) error {
	_, err := a.Do("DEV.PROBE", dev)
	return err
}

// WriteLine drives dev/port<port>/line<line>
func (a *AgentDAQ) WriteLine(dev string, port, line int, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	_, err := a.Do("DO.LINE", dev, strconv.Itoa(port), strconv.Itoa(line), v)
	return err
}

// WritePort drives dev/port<port>
func (a *AgentDAQ) WritePort(dev string, port int, value uint8) error {
	_, err := a.Do("DO.PORT", dev, strconv.Itoa(port), strconv.Itoa(int(value)))
	return err
}

// ReadAnalog samples dev/ai<channel>
func (a *AgentDAQ) ReadAnalog(dev string, channel int, cfg AIConfig) (float64, error) {
	term := "RSE"
	if cfg.Differential {
		term = "DIFF"
	}
	resp, err := a.Do("AI", dev, strconv.Itoa(channel),
		strconv.FormatFloat(cfg.Min, 'g', -1, 64),
		strconv.FormatFloat(cfg.Max, 'g', -1, 64), term)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}
