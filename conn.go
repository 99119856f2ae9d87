package imap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.Mutex{}
)

// Connection states
const (
	StateDisconnected = iota
	StateConnected
	StateAuthenticated
	StateSelected
	StateIdling
)

// Dialer is one IMAP session over one Transport. It is not safe for
// concurrent use; run one Dialer per worker.
type Dialer struct {
	Folder   string
	ReadOnly bool
	ConnNum  int

	cfg       Config
	transport Transport
	state     int
	stateMu   sync.Mutex
	caps      []string
	uidCache  map[uint32]uint32
	idle      *idleSession
}

// New validates cfg and returns an unconnected Dialer
func New(cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	nextConnNumMutex.Lock()
	connNum := nextConnNum
	nextConnNum++
	nextConnNumMutex.Unlock()

	t := cfg.Transport
	if t == nil {
		t = NewNetTransport()
	}
	return &Dialer{cfg: cfg, transport: t, ConnNum: connNum}, nil
}

// Dial connects and authenticates with the method cfg.Authentication names
func Dial(cfg Config) (*Dialer, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if _, err = d.Connect(); err != nil {
		return nil, err
	}
	if d.State() == StateAuthenticated {
		return d, nil
	}
	if err = d.authenticate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dialer) authenticate() error {
	var (
		resp *Response[struct{}]
		err  error
	)
	if strings.EqualFold(d.cfg.Authentication, "oauth") {
		resp, err = d.Authenticate(d.cfg.Username, d.cfg.Password)
	} else {
		resp, err = d.Login(d.cfg.Username, d.cfg.Password)
	}
	if err != nil {
		return err
	}
	return resp.Validate()
}

// Config returns the configuration the Dialer was built with
func (d *Dialer) Config() Config {
	return d.cfg
}

// Options returns the query defaults of this session
func (d *Dialer) Options() Options {
	return d.cfg.Options
}

// Transport returns the underlying transport
func (d *Dialer) Transport() Transport {
	return d.transport
}

func (d *Dialer) setState(s int) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// State returns the current connection state
func (d *Dialer) State() int {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

// Connected reports whether the transport is open
func (d *Dialer) Connected() bool {
	return d.transport != nil && d.transport.Connected()
}

// IsIdling reports whether the session is inside IDLE
func (d *Dialer) IsIdling() bool {
	return d.State() == StateIdling
}

func (d *Dialer) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         d.cfg.Host,
		InsecureSkipVerify: !d.cfg.ValidateCert, //nolint:gosec
	}
}

// Connect opens the transport and reads the server greeting. STARTTLS is
// negotiated here when configured. The returned Response carries the
// greeting text.
func (d *Dialer) Connect() (*Response[string], error) {
	opts := TransportOptions{Timeout: d.cfg.Timeout}
	if d.cfg.Encryption.implicitTLS() {
		opts.TLS = d.tlsConfig()
	}
	if d.cfg.Proxy.Socket != "" {
		p := d.cfg.Proxy
		opts.Proxy = &p
	}

	d.debugLog("establishing connection", "host", d.cfg.Host, "port", d.cfg.Port, "encryption", d.cfg.Encryption)
	if err := d.transport.Open(d.cfg.Host, d.cfg.Port, opts); err != nil {
		d.errorLog("failed to connect", "error", err)
		return nil, connectionFailed("connect", err)
	}
	if err := d.transport.SetTimeout(d.cfg.Timeout); err != nil {
		_ = d.transport.Close()
		return nil, connectionFailed("connect", fmt.Errorf("set timeout: %w", err))
	}

	line, err := d.readResponseLine()
	if err != nil {
		return nil, d.connectionFault("greeting", err)
	}
	greeting := string(dropNl(line))
	d.debugLog("server greeting", "greeting", greeting)

	_, kind, text, _ := parseUntagged(greeting)
	switch kind {
	case "OK":
		d.setState(StateConnected)
	case "PREAUTH":
		d.setState(StateAuthenticated)
	default:
		return nil, d.connectionFault("greeting", fmt.Errorf("unexpected greeting %q", greeting))
	}
	d.caps = nil
	d.SetUIDCache(nil)

	if d.cfg.Encryption == EncryptionStartTLS {
		if err = d.startTLS(); err != nil {
			return nil, err
		}
	}

	return NewResponse("CONNECT", StatusOK, text, text), nil
}

func (d *Dialer) startTLS() error {
	r, err := d.execute("STARTTLS", nil, nil)
	if err != nil {
		return err
	}
	if err = r.Validate(); err != nil {
		_ = d.transport.Close()
		d.setState(StateDisconnected)
		return connectionFailed("starttls", err)
	}
	if err = d.transport.EnableTLS(d.tlsConfig()); err != nil {
		return d.connectionFault("starttls", err)
	}
	// capabilities change after the upgrade
	d.caps = nil
	return nil
}

// Close closes the transport without logging out
func (d *Dialer) Close() error {
	if !d.Connected() {
		return nil
	}
	d.debugLog("closing connection")
	d.setState(StateDisconnected)
	d.SetUIDCache(nil)
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("imap close: %w", err)
	}
	return nil
}

// Reconnect closes and reopens the connection, authenticates again and
// restores the selected folder
func (d *Dialer) Reconnect() error {
	_ = d.Close()
	d.debugLog("reopening connection")

	if _, err := d.Connect(); err != nil {
		return err
	}
	if d.State() != StateAuthenticated {
		if err := d.authenticate(); err != nil {
			_ = d.Close()
			return fmt.Errorf("imap reconnect auth: %w", err)
		}
	}
	return d.restoreFolder(d.Folder, d.ReadOnly)
}

func (d *Dialer) restoreFolder(folder string, readOnly bool) error {
	if folder == "" {
		return nil
	}
	var (
		r   *Response[*MailboxInfo]
		err error
	)
	if readOnly {
		r, err = d.Examine(folder)
	} else {
		r, err = d.Select(folder)
	}
	if err != nil {
		return err
	}
	return r.Validate()
}

// Clone opens a second session with the same configuration and folder
func (d *Dialer) Clone() (*Dialer, error) {
	if d.cfg.Transport != nil {
		return nil, errors.New("imap clone: a custom transport cannot be cloned")
	}
	d2, err := Dial(d.cfg)
	if err != nil {
		return nil, err
	}
	if err = d2.restoreFolder(d.Folder, d.ReadOnly); err != nil {
		_ = d2.Close()
		return nil, fmt.Errorf("imap clone: %w", err)
	}
	return d2, nil
}
