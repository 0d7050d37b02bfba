// Package rohde contains drivers for Rohde & Schwarz instruments.
package rohde

import (
	"context"
	"fmt"
	"strconv"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/resource"
	"github.com/emc-lab/emcbench/scpi"
)

const (
	// MinPower is the lowest settable level, in dBm.  It is also the safe level
	MinPower = -120.

	// MaxPower is the highest settable level, in dBm
	MaxPower = 20.
)

// Instrument is the SCPI surface the generator needs.  *scpi.SCPI satisfies it
type Instrument interface {
	Open() error
	Close() error

	// Write sends a command and waits for it to complete
	Write(string) error

	// Query sends a query and returns the trimmed response
	Query(string) (string, error)
}

// SMB100A is an RF signal generator
type SMB100A struct {
	*resource.Lifecycle
	inst Instrument
}

// NewSMB100A returns a generator at addr, host:port for a raw socket or a
// serial port name.  Handshaking pops the error queue after every write.
func NewSMB100A(addr string, serial, handshaking bool) *SMB100A {
	return NewSMB100AWith(addr, scpi.New(addr, serial, handshaking))
}

// NewSMB100AWith returns a generator speaking over inst
func NewSMB100AWith(id string, inst Instrument) *SMB100A {
	return &SMB100A{Lifecycle: resource.NewLifecycle(id), inst: inst}
}

// Connect opens the transport and checks that the instrument identifies itself
func (s *SMB100A) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.inst.Open(); err != nil {
		return fault.Wrap(fault.Connection, s.ID(), "connect", err)
	}
	idn, err := s.inst.Query("*IDN?")
	if err != nil {
		s.inst.Close()
		return fault.Wrap(fault.Connection, s.ID(), "identify", err)
	}
	s.Logger("smb100a").Infof("connected to %s", idn)
	s.SetState(resource.Connected)
	return nil
}

// SafeState turns the RF output off and drops to minimum power
func (s *SMB100A) SafeState() {
	log := s.Logger("smb100a")
	log.Info("setting generator to safe state")
	ok := true
	if err := s.SetOutput(false); err != nil {
		log.Errorf("failed to disable RF output: %v", err)
		ok = false
	}
	if err := s.SetPower(MinPower); err != nil {
		log.Errorf("failed to drop to minimum power: %v", err)
		ok = false
	}
	if ok {
		s.SetState(resource.Safe)
	}
}

// Close the session with the instrument
func (s *SMB100A) Close() error {
	err := s.inst.Close()
	s.SetState(resource.Closed)
	return err
}

// Identity returns the *IDN? string
func (s *SMB100A) Identity() (string, error) {
	return s.query("*IDN?")
}

// SetOutput enables or disables RF emission
func (s *SMB100A) SetOutput(on bool) error {
	s.Logger("smb100a").Infof("setting RF output to %v", on)
	if on {
		return s.write("OUTP ON")
	}
	return s.write("OUTP OFF")
}

// GetOutput returns true if RF emission is enabled
func (s *SMB100A) GetOutput() (bool, error) {
	resp, err := s.query("OUTP?")
	if err != nil {
		return false, err
	}
	on, err := scpi.ParseBool(resp)
	if err != nil {
		return false, fault.Wrap(fault.Operation, s.ID(), "OUTP?", err)
	}
	return on, nil
}

// SetFrequency sets the carrier frequency in Hz
func (s *SMB100A) SetFrequency(hz float64) error {
	if hz <= 0 {
		return fault.New(fault.Configuration, s.ID(), "set frequency", "frequency %g Hz must be greater than 0", hz)
	}
	s.Logger("smb100a").Debugf("setting frequency to %g Hz", hz)
	return s.write(fmt.Sprintf("FREQ %.2f", hz))
}

// GetFrequency returns the carrier frequency in Hz
func (s *SMB100A) GetFrequency() (float64, error) {
	return s.queryFloat("FREQ?")
}

// SetPower sets the output level in dBm, within [MinPower, MaxPower]
func (s *SMB100A) SetPower(dbm float64) error {
	if dbm < MinPower || dbm > MaxPower {
		return fault.New(fault.Configuration, s.ID(), "set power", "power %g dBm is out of range [%g, %g]", dbm, MinPower, MaxPower)
	}
	s.Logger("smb100a").Debugf("setting power to %.2f dBm", dbm)
	return s.write(fmt.Sprintf("POW %.2f", dbm))
}

// GetPower returns the output level in dBm
func (s *SMB100A) GetPower() (float64, error) {
	return s.queryFloat("POW?")
}

func (s *SMB100A) write(cmd string) error {
	return fault.Wrap(fault.Operation, s.ID(), cmd, s.inst.Write(cmd))
}

func (s *SMB100A) query(cmd string) (string, error) {
	resp, err := s.inst.Query(cmd)
	if err != nil {
		return "", fault.Wrap(fault.Operation, s.ID(), cmd, err)
	}
	return resp, nil
}

func (s *SMB100A) queryFloat(cmd string) (float64, error) {
	resp, err := s.query(cmd)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fault.Wrap(fault.Operation, s.ID(), cmd, err)
	}
	return f, nil
}
