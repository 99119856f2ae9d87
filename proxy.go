package imap

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyHeaders returns the header set sent with an HTTP CONNECT request.
// Credentials become a Basic Proxy-Authorization header.
func ProxyHeaders(p ProxyConfig) http.Header {
	h := http.Header{}
	if p.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(p.Username + ":" + p.Password))
		h.Set("Proxy-Authorization", "Basic "+auth)
	}
	return h
}

func parseProxySocket(socket string) (*url.URL, error) {
	if !strings.Contains(socket, "://") {
		socket = "tcp://" + socket
	}
	u, err := url.Parse(socket)
	if err != nil {
		return nil, fmt.Errorf("proxy socket %q: %w", socket, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy socket %q: missing host", socket)
	}
	return u, nil
}

// dialProxy opens a tunnel to addr through the configured proxy
func dialProxy(p ProxyConfig, addr string, timeout time.Duration) (net.Conn, error) {
	u, err := parseProxySocket(p.Socket)
	if err != nil {
		return nil, err
	}
	base := &net.Dialer{Timeout: timeout}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if p.Username != "" {
			auth = &proxy.Auth{User: p.Username, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, base)
		if err != nil {
			return nil, err
		}
		return d.Dial("tcp", addr)
	case "tcp", "http":
		return dialConnect(base, u.Host, addr, ProxyHeaders(p), timeout)
	}
	return nil, fmt.Errorf("proxy socket: unsupported scheme %q", u.Scheme)
}

// bufferedConn keeps bytes the CONNECT response reader buffered past the
// HTTP headers
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (c bufferedConn) Read(p []byte) (int, error) { return c.br.Read(p) }

func dialConnect(base *net.Dialer, proxyAddr, addr string, header http.Header, timeout time.Duration) (net.Conn, error) {
	conn, err := base.Dial("tcp", proxyAddr)
	if err != nil {
		return nil, err
	}
	if timeout != 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: header,
	}
	if err = req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy connect: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy connect: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy connect: %s", resp.Status)
	}
	_ = conn.SetDeadline(time.Time{})

	if br.Buffered() == 0 {
		return conn, nil
	}
	return bufferedConn{Conn: conn, br: br}, nil
}
