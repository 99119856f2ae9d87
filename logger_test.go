package imap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l := ZerologLogger(zerolog.New(buf)).WithAttrs("conn", 3)
	l.Warn("slow server", "mailbox", "INBOX", "elapsed_ms", 1200)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("%v: %s", err, buf)
	}
	if entry["level"] != "warn" || entry["message"] != "slow server" {
		t.Errorf("entry = %v", entry)
	}
	if entry["conn"] != float64(3) || entry["mailbox"] != "INBOX" || entry["elapsed_ms"] != float64(1200) {
		t.Errorf("fields = %v", entry)
	}
}

func TestSetLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	SetSlogLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	connectionLogger(4, "Sent").Info("hello")
	out := buf.String()
	for _, want := range []string{"component=imap/agent", "conn=4", "mailbox=Sent", "msg=hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("%q missing from %q", want, out)
		}
	}
}

func TestDebugLogGatedByConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	SetSlogLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	d := &Dialer{}
	d.debugLog("quiet")
	if buf.Len() != 0 {
		t.Errorf("debug logged without Debug: %q", buf)
	}
	d.cfg.Debug = true
	d.debugLog("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("debug not logged: %q", buf)
	}
}

func TestBuildFailureDumpFollowsDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	SetSlogLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	d := &Dialer{}
	q := NewQuery(d, Options{}).SetBuilder(MessageBuilderFunc(func(MessageInput) (*Message, error) {
		return nil, errors.New("broken")
	}))
	if _, err := q.build(MessageInput{ID: 7, Header: []byte("Subject: x\r\n\r\n")}, nil); err == nil {
		t.Fatal("build succeeded")
	}
	if buf.Len() != 0 {
		t.Errorf("dump logged without Debug: %q", buf)
	}

	d.cfg.Debug = true
	if _, err := q.build(MessageInput{ID: 7}, nil); err == nil {
		t.Fatal("build succeeded")
	}
	if out := buf.String(); !strings.Contains(out, "message construction failed") || !strings.Contains(out, "id=7") {
		t.Errorf("dump not logged: %q", out)
	}
}

func TestDefaultLoggerSkipsDebug(t *testing.T) {
	l, ok := defaultLogger().(slogAdapter)
	if !ok {
		t.Fatalf("default logger is %T", defaultLogger())
	}
	if l.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger emits debug records")
	}
	if !l.logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("default logger drops info records")
	}
}

func TestMaskCommand(t *testing.T) {
	d := &Dialer{cfg: Config{Username: "user"}}
	tests := []struct {
		verb string
		args []any
		want string
	}{
		{"LOGIN", []any{"user", "secret"}, `LOGIN "user" "****"`},
		{"AUTHENTICATE", []any{Atom("XOAUTH2"), Atom("dXNlcj1h")}, "AUTHENTICATE XOAUTH2 ****"},
		{"SELECT", []any{"INBOX"}, `SELECT "INBOX"`},
	}
	for _, tt := range tests {
		parts, err := encodeCommand("A1", tt.verb, tt.args)
		if err != nil {
			t.Fatal(err)
		}
		if got := d.maskCommand(tt.verb, parts); got != tt.want {
			t.Errorf("maskCommand(%s) = %q, want %q", tt.verb, got, tt.want)
		}
	}
}
