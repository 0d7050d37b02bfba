package main

import (
	"github.com/emc-lab/emcbench/axes"
	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/ni"
	"github.com/emc-lab/emcbench/rohde"
	"github.com/emc-lab/emcbench/session"
	"github.com/emc-lab/emcbench/sim"
	"github.com/emc-lab/emcbench/util"
)

// acquirer returns a session.Acquirer that builds fresh drivers from c on
// every call.  Unconfigured hardware is left nil; whether that is acceptable
// is for the caller to decide.
func acquirer(c Config) session.Acquirer {
	if c.Mock {
		chamber := sim.New()
		return func() (session.Bench, error) {
			gen, relay, analog, pos := chamber.Drivers()
			return session.Bench{Generator: gen, Relays: relay, Sensor: analog, Positioner: pos}, nil
		}
	}
	return func() (session.Bench, error) {
		var b session.Bench
		if c.Generator.Addr != "" {
			b.Generator = rohde.NewSMB100A(c.Generator.Addr, c.Generator.Serial, c.Generator.Handshaking)
		}
		if (c.Relay.Device != "" || c.Analog.Device != "") && c.AgentAddr == "" {
			return b, fault.New(fault.Configuration, "agent", "acquire",
				"DAQmx devices are configured but agentaddr is not set")
		}
		if c.Relay.Device != "" {
			b.Relays = ni.NewRelay(c.Relay.Device, ni.NewAgentDAQ(c.AgentAddr))
		}
		if c.Analog.Device != "" {
			b.Sensor = ni.NewAnalog(c.Analog.Device, ni.NewAgentDAQ(c.AgentAddr))
		}
		// the positioner is only reachable through the agent
		if c.Positioner.Enabled && c.AgentAddr != "" {
			pos := axes.New("CtrlAxes", axes.NewAgentUI(c.AgentAddr))
			pos.Tolerance = c.Positioner.Tolerance
			pos.Poll = util.SecsToDuration(c.Positioner.Poll)
			b.Positioner = pos
		}
		return b, nil
	}
}
