package comm_test

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/emc-lab/emcbench/comm"
)

// tcpEchoServer echoes every line it receives, upper-cased
func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, test aborted")
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					conn.Write([]byte(strings.ToUpper(sc.Text()) + "\r\n"))
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestSendRecvStripsTerminator(t *testing.T) {
	addr := tcpEchoServer(t)
	rd := comm.NewRemoteDevice(addr, false)
	if err := rd.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rd.Close()
	resp, err := rd.SendRecv([]byte("*idn?"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "*IDN?" {
		t.Errorf("expected *IDN? got %q", resp)
	}
}

func TestNotConnected(t *testing.T) {
	rd := comm.NewRemoteDevice("127.0.0.1:1", false)
	if _, err := rd.SendRecv([]byte("x")); err != comm.ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := rd.Close(); err != nil {
		t.Errorf("closing an unopened device should be a no-op, got %v", err)
	}
}

func TestOpenRefusedFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	rd := comm.NewRemoteDevice(addr, false)
	if err := rd.Open(); err == nil {
		t.Error("expected an error dialing a closed port")
	}
	if rd.Connected() {
		t.Error("device should not be connected after a failed open")
	}
}
