package imap

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// StreamMeta describes the state of a transport stream
type StreamMeta struct {
	Crypto   *tls.ConnectionState
	TimedOut bool
	EOF      bool
	Blocked  bool
}

// TransportOptions are applied by Transport.Open
type TransportOptions struct {
	Timeout time.Duration
	// TLS enables implicit TLS when non-nil
	TLS   *tls.Config
	Proxy *ProxyConfig
}

// Transport is the raw byte channel a Dialer speaks IMAP over. It can be
// swapped out wholesale; NetTransport is the default.
type Transport interface {
	Open(host string, port int, opts TransportOptions) error
	Close() error
	Connected() bool
	// ReadLine returns one line including its line terminator
	ReadLine() ([]byte, error)
	// ReadFull returns exactly n bytes
	ReadFull(n int) ([]byte, error)
	Write(p []byte) error
	SetTimeout(d time.Duration) error
	// EnableTLS upgrades an open plain stream (STARTTLS)
	EnableTLS(cfg *tls.Config) error
	Meta() StreamMeta
}

// NetTransport is a Transport over a TCP connection, optionally wrapped in
// TLS and tunneled through a proxy
type NetTransport struct {
	conn     net.Conn
	br       *bufio.Reader
	timeout  time.Duration
	timedOut bool
	eof      bool
}

// NewNetTransport returns a closed NetTransport
func NewNetTransport() *NetTransport {
	return &NetTransport{}
}

// Open dials host:port, through the proxy if one is configured
func (t *NetTransport) Open(host string, port int, opts TransportOptions) (err error) {
	if t.conn != nil {
		_ = t.Close()
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var conn net.Conn
	if opts.Proxy != nil && opts.Proxy.Socket != "" {
		conn, err = dialProxy(*opts.Proxy, addr, opts.Timeout)
	} else {
		dialer := &net.Dialer{Timeout: opts.Timeout}
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return err
	}

	if opts.TLS != nil {
		cfg := opts.TLS.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		tconn := tls.Client(conn, cfg)
		if opts.Timeout != 0 {
			_ = tconn.SetDeadline(time.Now().Add(opts.Timeout))
		}
		if err = tconn.Handshake(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("tls handshake: %w", err)
		}
		_ = tconn.SetDeadline(time.Time{})
		conn = tconn
	}

	t.conn = conn
	t.br = bufio.NewReader(conn)
	t.timeout = opts.Timeout
	t.timedOut, t.eof = false, false
	return nil
}

// Close closes the underlying connection
func (t *NetTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn, t.br = nil, nil
	return err
}

// Connected reports whether the stream is open
func (t *NetTransport) Connected() bool {
	return t.conn != nil
}

func (t *NetTransport) deadline() {
	if t.timeout != 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.timeout))
	}
}

func (t *NetTransport) readErr(err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		t.timedOut = true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.eof = true
	}
	return err
}

// ReadLine reads up to and including the next '\n'
func (t *NetTransport) ReadLine() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	t.deadline()
	line, err := t.br.ReadBytes('\n')
	if err != nil {
		return line, t.readErr(err)
	}
	return line, nil
}

// ReadFull reads exactly n bytes, used for literals
func (t *NetTransport) ReadFull(n int) ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	t.deadline()
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.br, buf); err != nil {
		return nil, t.readErr(err)
	}
	return buf, nil
}

// Write writes p in full
func (t *NetTransport) Write(p []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.deadline()
	_, err := t.conn.Write(p)
	return t.readErr(err)
}

// SetTimeout sets the per-read/per-write timeout. Zero disables it.
func (t *NetTransport) SetTimeout(d time.Duration) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.timeout = d
	if d == 0 {
		return t.conn.SetDeadline(time.Time{})
	}
	return nil
}

// EnableTLS performs the client side of a STARTTLS upgrade
func (t *NetTransport) EnableTLS(cfg *tls.Config) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	if t.br.Buffered() != 0 {
		return fmt.Errorf("starttls: %d unread bytes before handshake", t.br.Buffered())
	}
	tconn := tls.Client(t.conn, cfg)
	t.deadline()
	if err := tconn.Handshake(); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}
	t.conn = tconn
	t.br = bufio.NewReader(tconn)
	return nil
}

// Meta reports the stream state. A closed stream reports itself timed out,
// at EOF and blocked so callers can detect disconnection uniformly.
func (t *NetTransport) Meta() StreamMeta {
	if t.conn == nil {
		return StreamMeta{TimedOut: true, EOF: true, Blocked: true}
	}
	m := StreamMeta{TimedOut: t.timedOut, EOF: t.eof, Blocked: true}
	if tc, ok := t.conn.(*tls.Conn); ok {
		state := tc.ConnectionState()
		m.Crypto = &state
	}
	return m
}
