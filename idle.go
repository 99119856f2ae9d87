package imap

import (
	"bytes"
	"fmt"
	"time"
)

// IdleRefresh is how long IdleUntil stays in one IDLE command before
// reissuing it; servers may drop clients idling for 30 minutes
var IdleRefresh = 29 * time.Minute

type ExistsEvent struct {
	MessageIndex int
}

type ExpungeEvent struct {
	MessageIndex int
}

type FetchEvent struct {
	MessageIndex int
	UID          uint32
	Flags        []string
}

type IdleHandler struct {
	OnExists  func(event ExistsEvent)
	OnExpunge func(event ExpungeEvent)
	OnFetch   func(event FetchEvent)
}

const (
	IdleEventExists  = "EXISTS"
	IdleEventExpunge = "EXPUNGE"
	IdleEventFetch   = "FETCH"
)

// IdleEvent is one untagged line received while idling
type IdleEvent struct {
	Kind  string
	Index uint32
	Line  string
}

type idleSession struct {
	tag     string
	timeout time.Duration
}

// Idle enters IDLE. Once the server accepts it, the only valid next calls
// are NextIdleEvent and Done. Reads block without a timeout while idling.
func (d *Dialer) Idle() (*Response[struct{}], error) {
	if d.IsIdling() {
		return nil, ErrIdling
	}
	if !d.Connected() {
		return nil, ErrNotConnected
	}

	tag := newTag()
	d.debugLog("sending command", "command", "IDLE")
	if err := d.transport.Write([]byte(tag + " IDLE" + nl)); err != nil {
		return nil, d.connectionFault("IDLE", err)
	}

	resp := &Response[struct{}]{Tag: tag, Command: "IDLE"}
	for {
		line, err := d.readResponseLine()
		if err != nil {
			return nil, d.connectionFault("IDLE", err)
		}
		switch {
		case line[0] == '+':
			if err = d.transport.SetTimeout(0); err != nil {
				return nil, d.connectionFault("IDLE", err)
			}
			d.idle = &idleSession{tag: tag, timeout: d.cfg.Timeout}
			d.setState(StateIdling)
			resp.Status = StatusOK
			return resp, nil
		case bytes.HasPrefix(line, []byte(tag+" ")):
			resp.Status, resp.Text = parseStatus(string(dropNl(line[len(tag)+1:])))
			return resp, nil
		}
		resp.Lines = append(resp.Lines, string(dropNl(line)))
	}
}

// NextIdleEvent blocks until the server sends an untagged update
func (d *Dialer) NextIdleEvent() (*IdleEvent, error) {
	if !d.IsIdling() {
		return nil, fmt.Errorf("imap: not idling")
	}
	line, err := d.readResponseLine()
	if err != nil {
		return nil, d.connectionFault("IDLE", err)
	}
	ev := idleEvent(string(dropNl(line)))
	d.noteIdleEvent(ev)
	return ev, nil
}

func idleEvent(line string) *IdleEvent {
	num, kind, _, _ := parseUntagged(line)
	return &IdleEvent{Kind: kind, Index: num, Line: line}
}

// noteIdleEvent keeps the UID cache honest and notifies the event registry
func (d *Dialer) noteIdleEvent(ev *IdleEvent) {
	switch ev.Kind {
	case IdleEventExists:
		d.SetUIDCache(nil)
		d.cfg.Events.Dispatch(Event{Kind: EventMessageNew, Folder: d.Folder, IDs: []uint32{ev.Index}})
	case IdleEventExpunge:
		d.SetUIDCache(nil)
		d.cfg.Events.Dispatch(Event{Kind: EventMessageDeleted, Folder: d.Folder, IDs: []uint32{ev.Index}})
	}
}

// Done ends IDLE and waits for its tagged completion
func (d *Dialer) Done() (*Response[struct{}], error) {
	if !d.IsIdling() {
		return nil, fmt.Errorf("imap: not idling")
	}
	if err := d.transport.Write([]byte("DONE" + nl)); err != nil {
		return nil, d.connectionFault("DONE", err)
	}
	resp := &Response[struct{}]{Tag: d.idle.tag, Command: "IDLE"}
	for {
		line, err := d.readResponseLine()
		if err != nil {
			return nil, d.connectionFault("DONE", err)
		}
		if d.isIdleCompletion(line) {
			return resp, d.endIdle(resp, line)
		}
		ev := idleEvent(string(dropNl(line)))
		d.noteIdleEvent(ev)
		resp.Lines = append(resp.Lines, ev.Line)
	}
}

func (d *Dialer) isIdleCompletion(line []byte) bool {
	return bytes.HasPrefix(line, []byte(d.idle.tag+" "))
}

func (d *Dialer) endIdle(resp *Response[struct{}], line []byte) error {
	resp.Status, resp.Text = parseStatus(string(dropNl(line[len(d.idle.tag)+1:])))
	timeout := d.idle.timeout
	d.idle = nil
	if d.Folder != "" {
		d.setState(StateSelected)
	} else {
		d.setState(StateAuthenticated)
	}
	if err := d.transport.SetTimeout(timeout); err != nil {
		return d.connectionFault("DONE", err)
	}
	return nil
}

func (h *IdleHandler) handle(ev *IdleEvent) {
	if h == nil {
		return
	}
	switch ev.Kind {
	case IdleEventExists:
		if h.OnExists != nil {
			h.OnExists(ExistsEvent{MessageIndex: int(ev.Index)})
		}
	case IdleEventExpunge:
		if h.OnExpunge != nil {
			h.OnExpunge(ExpungeEvent{MessageIndex: int(ev.Index)})
		}
	case IdleEventFetch:
		if h.OnFetch == nil {
			return
		}
		records, err := parseFetchLines([]string{ev.Line})
		if err != nil || len(records) == 0 {
			return
		}
		fe := FetchEvent{MessageIndex: int(ev.Index)}
		if t := records[0].Get("UID"); t != nil && t.Type == TNumber {
			fe.UID = uint32(t.Num)
		}
		if t := records[0].Get("FLAGS"); t != nil {
			for _, f := range t.Tokens {
				fe.Flags = append(fe.Flags, f.text())
			}
		}
		h.OnFetch(fe)
	}
}

type idleLine struct {
	line []byte
	err  error
}

// IdleUntil idles, calling h for every update, until stop is closed. IDLE
// is reissued every IdleRefresh. It returns after the final DONE completes.
func (d *Dialer) IdleUntil(h *IdleHandler, stop <-chan struct{}) error {
	for {
		stopped, err := d.idleOnce(h, stop)
		if err != nil || stopped {
			return err
		}
	}
}

func (d *Dialer) idleOnce(h *IdleHandler, stop <-chan struct{}) (stopped bool, err error) {
	r, err := d.Idle()
	if err != nil {
		return false, err
	}
	if err = r.Validate(); err != nil {
		return false, err
	}

	// one goroutine owns reads until the tagged completion
	lines := make(chan idleLine)
	go func() {
		defer close(lines)
		for {
			line, err := d.readResponseLine()
			lines <- idleLine{line: line, err: err}
			if err != nil || d.isIdleCompletion(line) {
				return
			}
		}
	}()

	timer := time.NewTimer(IdleRefresh)
	defer timer.Stop()
	refresh := timer.C

	sendDone := func() error {
		stop, refresh = nil, nil
		return d.transport.Write([]byte("DONE" + nl))
	}

	for {
		select {
		case <-stop:
			stopped = true
			if err = sendDone(); err != nil {
				return true, d.connectionFault("DONE", err)
			}
		case <-refresh:
			d.debugLog("refreshing idle")
			if err = sendDone(); err != nil {
				return false, d.connectionFault("DONE", err)
			}
		case l := <-lines:
			if l.err != nil {
				return stopped, d.connectionFault("IDLE", l.err)
			}
			if d.isIdleCompletion(l.line) {
				resp := &Response[struct{}]{Tag: d.idle.tag, Command: "IDLE"}
				if err = d.endIdle(resp, l.line); err != nil {
					return stopped, err
				}
				return stopped, resp.Validate()
			}
			ev := idleEvent(string(dropNl(l.line)))
			d.noteIdleEvent(ev)
			h.handle(ev)
		}
	}
}
