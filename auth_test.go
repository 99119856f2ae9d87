package imap

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockIMAPServer is a small IMAP server over a real socket. With startTLS
// set it listens in plain text and upgrades on STARTTLS; otherwise TLS is
// negotiated on accept.
type mockIMAPServer struct {
	listener     net.Listener
	address      string
	authAttempts int32
	selects      int32
	validUser    string
	validPass    string
	validToken   string
	failAuth     atomic.Bool
	startTLS     bool
	tlsConfig    *tls.Config
}

func newMockIMAPServer(t *testing.T, startTLS bool) *mockIMAPServer {
	t.Helper()
	cert, err := generateSelfSignedCertificate()
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	var listener net.Listener
	if startTLS {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	} else {
		listener, err = tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	}
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &mockIMAPServer{
		listener:   listener,
		address:    listener.Addr().String(),
		validUser:  "testuser",
		validPass:  "testpass",
		validToken: "token",
		startTLS:   startTLS,
		tlsConfig:  tlsConfig,
	}
	go s.serve()
	t.Cleanup(func() { _ = listener.Close() })
	return s
}

func (s *mockIMAPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *mockIMAPServer) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	send := func(format string, args ...any) {
		_, _ = fmt.Fprintf(writer, format+"\r\n", args...)
		_ = writer.Flush()
	}

	send("* OK IMAP4rev1 Mock Server Ready")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) < 2 {
			continue
		}
		tag, command := parts[0], strings.ToUpper(parts[1])

		switch command {
		case "STARTTLS":
			send("%s OK Begin TLS negotiation now", tag)
			tconn := tls.Server(conn, s.tlsConfig)
			if err = tconn.Handshake(); err != nil {
				return
			}
			conn = tconn
			reader = bufio.NewReader(conn)
			writer = bufio.NewWriter(conn)

		case "LOGIN":
			atomic.AddInt32(&s.authAttempts, 1)
			if len(parts) < 4 {
				send("%s BAD Invalid LOGIN command", tag)
				continue
			}
			user, pass := strings.Trim(parts[2], `"`), strings.Trim(parts[3], `"`)
			if s.failAuth.Load() || user != s.validUser || pass != s.validPass {
				send("%s NO [AUTHENTICATIONFAILED] Authentication failed", tag)
				continue
			}
			send("%s OK LOGIN completed", tag)

		case "AUTHENTICATE":
			atomic.AddInt32(&s.authAttempts, 1)
			raw, _ := base64.StdEncoding.DecodeString(parts[len(parts)-1])
			want := "user=" + s.validUser + "\x01auth=Bearer " + s.validToken + "\x01\x01"
			if s.failAuth.Load() || string(raw) != want {
				// error challenge, answered by the client with an empty line
				send("+ eyJzdGF0dXMiOiI0MDEiLCJzY2hlbWVzIjoiQmVhcmVyIn0=")
				if _, err = reader.ReadString('\n'); err != nil {
					return
				}
				send("%s NO [AUTHENTICATIONFAILED] Invalid credentials", tag)
				continue
			}
			send("%s OK AUTHENTICATE completed", tag)

		case "SELECT", "EXAMINE":
			atomic.AddInt32(&s.selects, 1)
			send("* 3 EXISTS")
			send("* OK [UIDVALIDITY 7] UIDs valid")
			send("%s OK [READ-WRITE] %s completed", tag, command)

		case "CAPABILITY":
			send("* CAPABILITY IMAP4rev1 AUTH=XOAUTH2 IDLE")
			send("%s OK CAPABILITY completed", tag)

		case "LOGOUT":
			send("* BYE IMAP4rev1 Server logging out")
			send("%s OK LOGOUT completed", tag)
			return

		default:
			send("%s OK %s completed", tag, command)
		}
	}
}

func (s *mockIMAPServer) authCount() int {
	return int(atomic.LoadInt32(&s.authAttempts))
}

func (s *mockIMAPServer) resetAuth() {
	atomic.StoreInt32(&s.authAttempts, 0)
}

func (s *mockIMAPServer) config() Config {
	host, portStr, _ := net.SplitHostPort(s.address)
	port, _ := strconv.Atoi(portStr)
	enc := EncryptionSSL
	if s.startTLS {
		enc = EncryptionStartTLS
	}
	return Config{
		Host:       host,
		Port:       port,
		Encryption: enc,
		Username:   s.validUser,
		Password:   s.validPass,
		Timeout:    2 * time.Second,
	}
}

// generateSelfSignedCertificate generates a self-signed certificate for testing
func generateSelfSignedCertificate() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Co"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	return tls.X509KeyPair(certPEM, keyPEM)
}

func TestDial(t *testing.T) {
	for _, startTLS := range []bool{false, true} {
		t.Run(fmt.Sprintf("starttls=%v", startTLS), func(t *testing.T) {
			server := newMockIMAPServer(t, startTLS)

			d, err := Dial(server.config())
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer func() { _ = d.Close() }()

			if d.State() != StateAuthenticated {
				t.Errorf("state = %d", d.State())
			}
			if meta := d.Transport().Meta(); meta.Crypto == nil {
				t.Error("connection is not encrypted")
			}
			if ok, err := d.HasCapability("AUTH=XOAUTH2"); err != nil || !ok {
				t.Errorf("HasCapability = %v, %v", ok, err)
			}
			if server.authCount() != 1 {
				t.Errorf("auth attempts = %d", server.authCount())
			}
			if _, err = d.Logout(); err != nil {
				t.Errorf("Logout: %v", err)
			}
			if d.Connected() {
				t.Error("still connected after logout")
			}
		})
	}
}

func TestDialAuthFailures(t *testing.T) {
	server := newMockIMAPServer(t, false)

	tests := []struct {
		name string
		cfg  func(Config) Config
	}{
		{"bad password", func(c Config) Config { c.Password = "wrongpass"; return c }},
		{"bad token", func(c Config) Config { c.Authentication = "oauth"; c.Password = "expired"; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server.resetAuth()
			_, err := DialRetry(tt.cfg(server.config()), 3)

			var pe *ProtocolStatusError
			if !errors.As(err, &pe) || pe.Status != StatusNO {
				t.Fatalf("err = %v, want a NO completion", err)
			}
			if errors.Is(err, ErrConnectionFailed) {
				t.Error("an authentication failure is not a connection failure")
			}
			// authentication failures are never retried
			if n := server.authCount(); n != 1 {
				t.Errorf("auth attempts = %d, want 1", n)
			}
		})
	}
}

func TestDialOAuth(t *testing.T) {
	server := newMockIMAPServer(t, false)
	cfg := server.config()
	cfg.Authentication = "OAuth"
	cfg.Password = server.validToken

	d, err := Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = d.Close() }()
	if d.State() != StateAuthenticated {
		t.Errorf("state = %d", d.State())
	}
}

func TestDialRetryConnectionFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().(*net.TCPAddr)
	_ = l.Close()

	cfg := Config{Host: "127.0.0.1", Port: addr.Port, Encryption: EncryptionNoTLS, Timeout: time.Second}
	done := make(chan error, 1)
	go func() {
		_, err := DialRetry(cfg, 2)
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("DialRetry did not give up")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}

func TestReconnect(t *testing.T) {
	server := newMockIMAPServer(t, false)

	d, err := Dial(server.config())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = d.Close() }()
	if _, err = d.Select("INBOX"); err != nil {
		t.Fatal(err)
	}

	if err = d.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if d.State() != StateSelected || d.Folder != "INBOX" {
		t.Errorf("state=%d folder=%q after reconnect", d.State(), d.Folder)
	}
	if n := atomic.LoadInt32(&server.selects); n != 2 {
		t.Errorf("selects = %d, want the folder restored", n)
	}

	// a reconnect that cannot authenticate leaves the dialer closed
	server.failAuth.Store(true)
	server.resetAuth()
	if err = d.Reconnect(); err == nil {
		t.Fatal("expected reconnect to fail")
	}
	if server.authCount() != 1 {
		t.Errorf("auth attempts = %d", server.authCount())
	}
	if d.Connected() {
		t.Error("connection should be closed after a failed reconnect")
	}
}

func TestClone(t *testing.T) {
	server := newMockIMAPServer(t, false)

	d, err := Dial(server.config())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = d.Close() }()
	if _, err = d.Examine("INBOX"); err != nil {
		t.Fatal(err)
	}

	d2, err := d.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	defer func() { _ = d2.Close() }()
	if d2.Folder != "INBOX" || !d2.ReadOnly || d2.ConnNum == d.ConnNum {
		t.Errorf("clone folder=%q readOnly=%v conn=%d", d2.Folder, d2.ReadOnly, d2.ConnNum)
	}

	scripted, _ := dialScript(t, nil)
	if _, err = scripted.Clone(); err == nil {
		t.Error("cloning a custom transport should fail")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults with host", func() Config { c := DefaultConfig(); c.Host = "imap.example.com"; return c }(), true},
		{"no host", DefaultConfig(), false},
		{"transport without host", Config{Transport: newScriptTransport("", nil)}, true},
		{"bad encryption", Config{Host: "h", Encryption: "quantum"}, false},
		{"bad auth", Config{Host: "h", Authentication: "kerberos"}, false},
		{"bad order", Config{Host: "h", Options: Options{FetchOrder: "random"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v", err)
			}
			if _, err = New(tt.cfg); (err == nil) != tt.ok {
				t.Errorf("New() = %v", err)
			}
		})
	}

	d, err := New(Config{Host: "h"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := d.Config()
	if cfg.Port != DefaultPort || cfg.Options.DateFormat != DefaultDateFormat || cfg.Options.MessageKey != KeyByList {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if _, ok := d.Transport().(*NetTransport); !ok {
		t.Errorf("transport = %T", d.Transport())
	}
}
