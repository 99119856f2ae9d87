package imap

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/xid"
)

var literalRE = regexp.MustCompile(`{(\d+)}$`)

// newTag returns a command tag. xid values sort by creation time, so tags
// increase monotonically within a process.
func newTag() string {
	return strings.ToUpper(xid.New().String())
}

// continuationFunc answers a server continuation request that does not ask
// for the next literal (for example an AUTHENTICATE error challenge)
type continuationFunc func(line string) []byte

// Exec sends a raw command and returns the untagged lines of the reply.
// Arguments are encoded as described on Atom, Literal and SeqSet; plain
// strings are quoted, or sent as literals when they contain a line break.
func (d *Dialer) Exec(verb string, args ...any) (*Response[[]string], error) {
	r, err := d.execute(verb, args, nil)
	if err != nil {
		return nil, err
	}
	return transform(r, r.Lines), nil
}

// execute runs one command to its tagged completion. A returned error is
// always fatal for the connection; NO and BAD are reported on the Response.
func (d *Dialer) execute(verb string, args []any, onContinue continuationFunc) (*Response[struct{}], error) {
	if d.transport == nil || !d.transport.Connected() {
		return nil, ErrNotConnected
	}
	if d.IsIdling() {
		return nil, ErrIdling
	}

	tag := newTag()
	parts, err := encodeCommand(tag, verb, args)
	if err != nil {
		return nil, err
	}

	d.debugLog("sending command", "command", d.maskCommand(verb, parts))

	if err = d.transport.Write(parts[0]); err != nil {
		return nil, d.connectionFault(verb, err)
	}
	next := 1

	resp := &Response[struct{}]{Tag: tag, Command: verb}
	tagPrefix := []byte(tag + " ")
	for {
		line, err := d.readResponseLine()
		if err != nil {
			return nil, d.connectionFault(verb, err)
		}

		d.debugLog("server response", "response", string(dropNl(line)))

		if bytes.HasPrefix(line, tagPrefix) {
			resp.Status, resp.Text = parseStatus(string(dropNl(line[len(tagPrefix):])))
			if next < len(parts) {
				d.debugLog("command aborted before literal was sent", "status", resp.Status)
			}
			break
		}

		if line[0] == '+' {
			switch {
			case next < len(parts):
				if err = d.transport.Write(parts[next]); err != nil {
					return nil, d.connectionFault(verb, err)
				}
				next++
			case onContinue != nil:
				if err = d.transport.Write(onContinue(string(dropNl(line)))); err != nil {
					return nil, d.connectionFault(verb, err)
				}
			default:
				d.warnLog("unexpected continuation request", "command", verb)
			}
			continue
		}

		text := string(dropNl(line))
		d.noteUntagged(text)
		resp.Lines = append(resp.Lines, text)
	}

	return resp, nil
}

// readResponseLine reads one logical response line, inlining every literal
// the server announces with a trailing {n}
func (d *Dialer) readResponseLine() ([]byte, error) {
	line, err := d.transport.ReadLine()
	if err != nil {
		return nil, err
	}
	for {
		m := literalRE.FindSubmatch(dropNl(line))
		if m == nil {
			break
		}
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			return nil, err
		}
		buf, err := d.transport.ReadFull(n)
		if err != nil {
			return nil, err
		}
		line = append(line, buf...)

		rest, err := d.transport.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, rest...)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("empty response line")
	}
	return line, nil
}

// connectionFault closes the transport and reports a fatal error
func (d *Dialer) connectionFault(verb string, err error) error {
	meta := d.transport.Meta()
	d.errorLog("connection failed", "command", verb, "error", err, "timed_out", meta.TimedOut, "eof", meta.EOF)
	_ = d.transport.Close()
	d.setState(StateDisconnected)
	d.SetUIDCache(nil)
	return connectionFailed(verb, err)
}

// maskCommand renders the command for logging with credentials hidden
func (d *Dialer) maskCommand(verb string, parts [][]byte) string {
	switch strings.ToUpper(verb) {
	case "LOGIN":
		return verb + " " + quote(d.cfg.Username) + ` "****"`
	case "AUTHENTICATE":
		return verb + " XOAUTH2 ****"
	}
	c := string(dropNl(bytes.Join(parts, nil)))
	if _, rest, ok := strings.Cut(c, " "); ok {
		return rest
	}
	return c
}
