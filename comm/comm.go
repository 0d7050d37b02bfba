/*
Package comm provides the byte transport used to talk to bench hardware.

A RemoteDevice is either a TCP socket (e.g. a signal generator's raw SCPI port
at host:5025) or an RS-232 line, and exchanges terminated messages with it.
Most drivers boil down to:
 1. hold a *RemoteDevice for the instrument's address
 2. Open it when the resource is connected
 3. use SendRecv for queries and Send for writes
 4. Close it when the resource is released

the device is concurrent-safe; a SendRecv is never interleaved with another
exchange on the same device.
*/
package comm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout bounds connection and each exchange
	DefaultTimeout = 5 * time.Second

	// DefaultBaud is used for serial devices that do not specify one
	DefaultBaud = 9600
)

var (
	// ErrNotConnected is generated when the device is used before Open
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// RemoteDevice has an address and exchanges terminated messages with it
type RemoteDevice struct {
	Addr     string
	IsSerial bool

	// Baud is the serial baud rate, ignored for TCP
	Baud int

	// Timeout bounds the dial and every exchange
	Timeout time.Duration

	// Terminator ends every message in both directions
	Terminator byte

	mu   sync.Mutex
	conn io.ReadWriteCloser
	rd   *bufio.Reader
}

// NewRemoteDevice creates a new RemoteDevice instance with a '\n' terminator
func NewRemoteDevice(addr string, serial bool) *RemoteDevice {
	return &RemoteDevice{
		Addr:       addr,
		IsSerial:   serial,
		Baud:       DefaultBaud,
		Timeout:    DefaultTimeout,
		Terminator: '\n'}
}

// Connected returns true if the device holds an open connection
func (rd *RemoteDevice) Connected() bool {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.conn != nil
}

// Open the connection.  TCP dials are retried with an exponential backoff
// until they are refused outright or a few seconds have passed
func (rd *RemoteDevice) Open() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn != nil {
		return nil
	}
	op := func() error {
		err := rd.open()
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "refused") {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", rd.Addr, err)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if rd.IsSerial {
		baud := rd.Baud
		if baud == 0 {
			baud = DefaultBaud
		}
		conn, err = serial.OpenPort(&serial.Config{Name: rd.Addr, Baud: baud, ReadTimeout: rd.timeout()})
	} else {
		conn, err = net.DialTimeout("tcp", rd.Addr, rd.timeout())
	}
	if err != nil {
		return err
	}
	rd.conn = conn
	rd.rd = bufio.NewReader(conn)
	return nil
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout <= 0 {
		return DefaultTimeout
	}
	return rd.Timeout
}

// Close the connection.  Closing a device that is not open is a no-op
func (rd *RemoteDevice) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.conn == nil {
		return nil
	}
	err := rd.conn.Close()
	rd.conn = nil
	rd.rd = nil
	return err
}

// Send writes data to the remote after appending the terminator
func (rd *RemoteDevice) Send(b []byte) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.send(b)
}

// Recv reads one message from the remote and strips the terminator
func (rd *RemoteDevice) Recv() ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.recv()
}

// SendRecv sends a buffer then returns the response, as one exchange
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if err := rd.send(b); err != nil {
		return nil, err
	}
	return rd.recv()
}

func (rd *RemoteDevice) send(b []byte) error {
	if rd.conn == nil {
		return ErrNotConnected
	}
	rd.deadline()
	msg := make([]byte, 0, len(b)+1)
	msg = append(msg, b...)
	msg = append(msg, rd.Terminator)
	_, err := rd.conn.Write(msg)
	return err
}

func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.conn == nil {
		return nil, ErrNotConnected
	}
	rd.deadline()
	buf, err := rd.rd.ReadBytes(rd.Terminator)
	if err != nil {
		if err == io.EOF && len(buf) > 0 {
			return buf, ErrTerminatorNotFound
		}
		return nil, err
	}
	buf = buf[:len(buf)-1]
	if rd.Terminator == '\n' && len(buf) > 0 && buf[len(buf)-1] == '\r' {
		buf = buf[:len(buf)-1]
	}
	return buf, nil
}

func (rd *RemoteDevice) deadline() {
	if c, ok := rd.conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(rd.timeout()))
	}
}
