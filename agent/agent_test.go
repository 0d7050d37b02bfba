package agent

import (
	"bufio"
	"errors"
	"net"
	"testing"

	"github.com/emc-lab/emcbench/fault"
)

// fakeAgent answers AI reads with a voltage and rejects unknown devices
func fakeAgent(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, test aborted")
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			verb, args := Split(sc.Text())
			switch {
			case verb == "AI" && args[0] == "Dev1":
				conn.Write([]byte("OK 2.75\n"))
			case verb == "AI":
				conn.Write([]byte("ERR CONFIG device " + args[0] + " not found\n"))
			case verb == "UI.TEXT":
				conn.Write([]byte("OK " + args[2] + "\n"))
			default:
				conn.Write([]byte("ERR OP unsupported\n"))
			}
		}
	}()
	return ln.Addr().String()
}

func TestDoOpensLazily(t *testing.T) {
	c := New(fakeAgent(t))
	defer c.Close()
	payload, err := c.Do("AI", "Dev1", "0", "-10", "10", "DIFF")
	if err != nil {
		t.Fatal(err)
	}
	if payload != "2.75" {
		t.Errorf("expected 2.75 got %q", payload)
	}
}

func TestErrorKinds(t *testing.T) {
	c := New(fakeAgent(t))
	defer c.Close()
	_, err := c.Do("AI", "Dev9", "0")
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("expected configuration fault, got %v", err)
	}
	_, err = c.Do("DO.PORT", "Dev1", "0", "0")
	if !errors.Is(err, fault.ErrOperation) {
		t.Errorf("expected operation fault, got %v", err)
	}
}

func TestEmptyArgumentsRoundTrip(t *testing.T) {
	c := New(fakeAgent(t))
	defer c.Close()
	payload, err := c.Do("UI.TEXT", "1022", "Group", "")
	if err != nil {
		t.Fatal(err)
	}
	if payload != "" {
		t.Errorf("expected the empty name to round trip, got %q", payload)
	}
}

func TestEncodeEscapes(t *testing.T) {
	line := Encode("UI.SET", "1020", "Edit", "", "12 5")
	verb, args := Split(line)
	if verb != "UI.SET" || len(args) != 4 || args[2] != "" || args[3] != "12 5" {
		t.Errorf("unexpected split of %q: %s %q", line, verb, args)
	}
}

func TestConnectionFault(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()
	_, err := New(addr).Do("AI", "Dev1", "0")
	if !errors.Is(err, fault.ErrConnection) {
		t.Errorf("expected connection fault, got %v", err)
	}
}
