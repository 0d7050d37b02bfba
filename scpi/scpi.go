// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/emc-lab/emcbench/comm"
)

var (
	// ErrNoOPC is returned when the operation-complete query does not answer 1
	ErrNoOPC = errors.New("operation complete query did not return 1")
)

// Error is an entry of the instrument's error queue
type Error struct {
	Code int
	Msg  string
}

func (e Error) Error() string {
	return fmt.Sprintf("SCPI error %d: %s", e.Code, e.Msg)
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	*comm.RemoteDevice

	// Handshaking indicates if the communication shall use handshaking,
	// where the error queue is read after every write
	// to ensure the device accepted the input
	Handshaking bool

	mu sync.Mutex
}

// New returns an SCPI instrument at addr.  Raw sockets conventionally listen
// on port 5025
func New(addr string, serial bool, handshaking bool) *SCPI {
	return &SCPI{RemoteDevice: comm.NewRemoteDevice(addr, serial), Handshaking: handshaking}
}

// Write sends a command to the device and waits for it to complete with *OPC?.
// if s.Handshaking == true, it also pops the error queue and checks that it is empty
func (s *SCPI) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Send([]byte(cmd)); err != nil {
		return err
	}
	if err := s.opc(); err != nil {
		return err
	}
	if s.Handshaking {
		return s.popError()
	}
	return nil
}

// Query sends a query and returns the trimmed response.  The response is
// followed by an *OPC? synchronisation
func (s *SCPI) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.SendRecv([]byte(cmd))
	if err != nil {
		return "", err
	}
	if err = s.opc(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp)), nil
}

// ReadFloat sends a query, then parses the response as a floating point value
func (s *SCPI) ReadFloat(cmd string) (float64, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// ReadBool sends a query, then parses the response as a boolean.  SCPI
// answers 0/1 or OFF/ON
func (s *SCPI) ReadBool(cmd string) (bool, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return false, err
	}
	return ParseBool(resp)
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popError()
}

// AllErrors returns all errors from the device as a list
func (s *SCPI) AllErrors() []error {
	var errs []error
	for i := 0; i < 32; i++ {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		var se Error
		if !errors.As(err, &se) {
			break
		}
	}
	return errs
}

func (s *SCPI) opc() error {
	resp, err := s.SendRecv([]byte("*OPC?"))
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(resp)) != "1" {
		return ErrNoOPC
	}
	return nil
}

func (s *SCPI) popError() error {
	resp, err := s.SendRecv([]byte("SYST:ERR?"))
	if err != nil {
		return err
	}
	return ParseError(string(resp))
}

// ParseError decodes a SYST:ERR? response such as `-222,"Data out of range"`.
// A zero code yields nil
func ParseError(resp string) error {
	resp = strings.TrimSpace(resp)
	pieces := strings.SplitN(resp, ",", 2)
	code, err := strconv.Atoi(strings.TrimPrefix(pieces[0], "+"))
	if err != nil {
		return fmt.Errorf("malformed error queue response %q", resp)
	}
	if code == 0 {
		return nil
	}
	msg := ""
	if len(pieces) > 1 {
		msg = strings.Trim(pieces[1], `"`)
	}
	return Error{Code: code, Msg: msg}
}

// ParseBool decodes a SCPI boolean
func ParseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a SCPI boolean", s)
}
