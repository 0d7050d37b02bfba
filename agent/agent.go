/*
Package agent is a client for the bench agent, a small service on the
Windows host that owns the vendor stacks Go cannot reach directly (NI-DAQmx
and UI automation of the positioner application).

The protocol is line oriented.  A request is a verb followed by
space-separated, query-escaped arguments; a lone "-" stands for an empty
argument.  The agent answers one line:

	OK [payload]
	ERR <CONFIG|OP|USAGE> message

CONFIG errors are mapped to Configuration faults, OP to Operation faults and
USAGE to Usage faults.  Transport failures are Connection faults while the
link is being opened and Operation faults afterwards.
*/
package agent

import (
	"net/url"
	"strings"

	"github.com/emc-lab/emcbench/comm"
	"github.com/emc-lab/emcbench/fault"
)

// Client talks to one bench agent
type Client struct {
	rd *comm.RemoteDevice
}

// New returns a client for the agent at addr (host:port)
func New(addr string) *Client {
	return &Client{rd: comm.NewRemoteDevice(addr, false)}
}

// Addr is the address of the agent
func (c *Client) Addr() string { return c.rd.Addr }

// Open connects to the agent if not already connected
func (c *Client) Open() error {
	if err := c.rd.Open(); err != nil {
		return fault.Wrap(fault.Connection, c.rd.Addr, "open agent", err)
	}
	return nil
}

// Close the link to the agent
func (c *Client) Close() error {
	return c.rd.Close()
}

// Do sends one request and returns the payload of an OK answer.
// The link is opened on first use.
func (c *Client) Do(verb string, args ...string) (string, error) {
	if !c.rd.Connected() {
		if err := c.Open(); err != nil {
			return "", err
		}
	}
	resp, err := c.rd.SendRecv([]byte(Encode(verb, args...)))
	if err != nil {
		return "", fault.Wrap(fault.Operation, c.rd.Addr, verb, err)
	}
	return Decode(verb, c.rd.Addr, string(resp))
}

// Encode renders a request line
func Encode(verb string, args ...string) string {
	var b strings.Builder
	b.WriteString(verb)
	for _, a := range args {
		b.WriteByte(' ')
		if a == "" {
			b.WriteByte('-')
			continue
		}
		b.WriteString(url.QueryEscape(a))
	}
	return b.String()
}

// Split parses a request line into its verb and unescaped arguments
func Split(line string) (verb string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	for _, f := range fields[1:] {
		if f == "-" {
			args = append(args, "")
			continue
		}
		a, err := url.QueryUnescape(f)
		if err != nil {
			a = f
		}
		args = append(args, a)
	}
	return fields[0], args
}

// Decode interprets an answer line
func Decode(verb, resource, resp string) (string, error) {
	resp = strings.TrimSpace(resp)
	switch {
	case resp == "OK":
		return "", nil
	case strings.HasPrefix(resp, "OK "):
		return strings.TrimPrefix(resp, "OK "), nil
	case strings.HasPrefix(resp, "ERR "):
		rest := strings.TrimPrefix(resp, "ERR ")
		kind, msg := rest, ""
		if i := strings.IndexByte(rest, ' '); i >= 0 {
			kind, msg = rest[:i], rest[i+1:]
		}
		k := fault.Operation
		switch kind {
		case "CONFIG":
			k = fault.Configuration
		case "USAGE":
			k = fault.Usage
		}
		return "", fault.New(k, resource, verb, "%s", msg)
	}
	return "", fault.New(fault.Operation, resource, verb, "malformed agent response %q", resp)
}
