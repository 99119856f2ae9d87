package imap

import (
	"net"
	"strconv"
	"testing"
	"time"
)

// lineServer writes script to the first client and then holds the
// connection open for hold before closing it
func lineServer(t *testing.T, script string, hold time.Duration) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte(script))
		time.Sleep(hold)
		_ = conn.Close()
	}()
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return host, p
}

func TestNetTransportReads(t *testing.T) {
	host, port := lineServer(t, "* OK hi\r\n0123456789tail\r\n", 0)
	tr := NewNetTransport()
	if err := tr.Open(host, port, TransportOptions{Timeout: time.Second}); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if line, err := tr.ReadLine(); err != nil || string(line) != "* OK hi\r\n" {
		t.Fatalf("ReadLine = %q, %v", line, err)
	}
	if b, err := tr.ReadFull(10); err != nil || string(b) != "0123456789" {
		t.Fatalf("ReadFull = %q, %v", b, err)
	}
	if line, _ := tr.ReadLine(); string(line) != "tail\r\n" {
		t.Fatalf("ReadLine = %q", line)
	}
	if _, err := tr.ReadLine(); err == nil {
		t.Fatal("expected EOF")
	}
	if m := tr.Meta(); !m.EOF || m.TimedOut || m.Crypto != nil {
		t.Errorf("meta = %+v", m)
	}
}

func TestNetTransportTimeout(t *testing.T) {
	host, port := lineServer(t, "", time.Second)
	tr := NewNetTransport()
	if err := tr.Open(host, port, TransportOptions{Timeout: 50 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if _, err := tr.ReadLine(); err == nil {
		t.Fatal("expected timeout")
	}
	if !tr.Meta().TimedOut {
		t.Errorf("meta = %+v", tr.Meta())
	}
}

func TestNetTransportClosedMeta(t *testing.T) {
	tr := NewNetTransport()
	if m := tr.Meta(); !m.TimedOut || !m.EOF || !m.Blocked {
		t.Errorf("meta = %+v", m)
	}
	if tr.Connected() {
		t.Error("new transport reports connected")
	}
	if _, err := tr.ReadLine(); err != ErrNotConnected {
		t.Errorf("ReadLine on closed transport = %v", err)
	}
	if err := tr.SetTimeout(time.Second); err != ErrNotConnected {
		t.Errorf("SetTimeout on closed transport = %v", err)
	}
}
