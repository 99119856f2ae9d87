package imap

import (
	"github.com/sqs/go-xoauth2"
)

// Authenticate performs XOAUTH2 authentication using an access token
func (d *Dialer) Authenticate(user string, accessToken string) (*Response[struct{}], error) {
	b64 := xoauth2.XOAuth2String(user, accessToken)
	// a failed XOAUTH2 exchange sends a base64 error challenge that must be
	// answered with an empty line before the tagged NO arrives
	r, err := d.execute("AUTHENTICATE", []any{Atom("XOAUTH2"), Atom(b64)}, func(string) []byte {
		return []byte(nl)
	})
	if err != nil {
		return nil, err
	}
	if r.OK() {
		d.setState(StateAuthenticated)
		d.caps = nil
	}
	return r, nil
}

// Login performs LOGIN authentication using username and password
func (d *Dialer) Login(username string, password string) (*Response[struct{}], error) {
	r, err := d.execute("LOGIN", []any{username, password}, nil)
	if err != nil {
		return nil, err
	}
	if r.OK() {
		d.setState(StateAuthenticated)
		d.caps = nil
	}
	return r, nil
}

// Logout ends the session and closes the transport
func (d *Dialer) Logout() (*Response[struct{}], error) {
	r, err := d.execute("LOGOUT", nil, nil)
	d.Folder = ""
	d.ReadOnly = false
	d.caps = nil
	_ = d.Close()
	if err != nil {
		return nil, err
	}
	return r, nil
}
