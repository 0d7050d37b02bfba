package sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emc-lab/emcbench/rohde"
)

// Generator answers SCPI text like an SMB100A
type Generator struct {
	b *Bench
}

// Open fails if the generator is offline
func (g *Generator) Open() error {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	if g.b.GeneratorOffline {
		return ErrOffline
	}
	return nil
}

// Close is a no-op
func (g *Generator) Close() error { return nil }

// Write applies a setting command
func (g *Generator) Write(cmd string) error {
	b := g.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GeneratorOffline {
		return ErrOffline
	}
	fields := strings.Fields(cmd)
	if len(fields) != 2 {
		return fmt.Errorf("-113,\"Undefined header\" %q", cmd)
	}
	switch fields[0] {
	case "OUTP":
		switch fields[1] {
		case "ON":
			b.rf = true
		case "OFF":
			b.rf = false
		default:
			return fmt.Errorf("-224,\"Illegal parameter value\" %q", cmd)
		}
	case "FREQ":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("-222,\"Data out of range\" %q", cmd)
		}
		b.freq = f
	case "POW":
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || p < rohde.MinPower || p > rohde.MaxPower {
			return fmt.Errorf("-222,\"Data out of range\" %q", cmd)
		}
		b.power = p
	default:
		return fmt.Errorf("-113,\"Undefined header\" %q", cmd)
	}
	return nil
}

// Query answers a query
func (g *Generator) Query(cmd string) (string, error) {
	b := g.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GeneratorOffline {
		return "", ErrOffline
	}
	switch cmd {
	case "*IDN?":
		return "Rohde&Schwarz,SMB100A,simulated,0.0", nil
	case "OUTP?":
		if b.rf {
			return "1", nil
		}
		return "0", nil
	case "FREQ?":
		return strconv.FormatFloat(b.freq, 'f', 2, 64), nil
	case "POW?":
		return strconv.FormatFloat(b.power, 'f', 2, 64), nil
	}
	return "", fmt.Errorf("-113,\"Undefined header\" %q", cmd)
}
