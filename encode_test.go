package imap

import (
	"reflect"
	"strings"
	"testing"
)

func TestMakeIMAPLiteral(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"test", "{4}\r\ntest"},
		{"тест", "{8}\r\nтест"},
		{"测试", "{6}\r\n测试"},
		{"", "{0}\r\n"},
	}
	for _, test := range tests {
		if got := MakeIMAPLiteral(test.input); got != test.expected {
			t.Errorf("MakeIMAPLiteral(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		verb string
		args []any
		want []string
	}{
		{
			name: "quoted strings",
			verb: "LOGIN",
			args: []any{"user", `pa"ss\word`},
			want: []string{"A1 LOGIN \"user\" \"pa\\\"ss\\\\word\"\r\n"},
		},
		{
			name: "atoms numbers and lists",
			verb: "UID STORE",
			args: []any{SeqSet("1:3"), Atom("+FLAGS.SILENT"), []string{`\Seen`, `\Flagged`}},
			want: []string{"A1 UID STORE 1:3 +FLAGS.SILENT (\\Seen \\Flagged)\r\n"},
		},
		{
			name: "newline becomes literal",
			verb: "SEARCH",
			args: []any{Atom("SUBJECT"), "two\nlines"},
			want: []string{"A1 SEARCH SUBJECT {9}\r\n", "two\nlines\r\n"},
		},
		{
			name: "literal bytes and nested list",
			verb: "APPEND",
			args: []any{"INBOX", []any{Atom(`\Seen`)}, Literal("hi")},
			want: []string{"A1 APPEND \"INBOX\" (\\Seen) {2}\r\n", "hi\r\n"},
		},
		{
			name: "nil and ints",
			verb: "X",
			args: []any{nil, 4, uint32(5), int64(6), uint64(7)},
			want: []string{"A1 X NIL 4 5 6 7\r\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := encodeCommand("A1", tt.verb, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if len(parts) != len(tt.want) {
				t.Fatalf("got %d parts %q, want %q", len(parts), parts, tt.want)
			}
			for i := range parts {
				if string(parts[i]) != tt.want[i] {
					t.Errorf("part %d = %q, want %q", i, parts[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeCommandNeverQuotesNewlines(t *testing.T) {
	for _, s := range []string{"a\nb", "a\r\nb", "\n"} {
		parts, err := encodeCommand("T", "X", []any{s})
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(parts[0]), `"`) {
			t.Errorf("%q was quoted: %q", s, parts[0])
		}
		if !strings.HasSuffix(string(parts[0]), literalMarker(len(s))) {
			t.Errorf("%q not sent as literal: %q", s, parts[0])
		}
	}
}

func TestEncodeCommandRejectsUnknownTypes(t *testing.T) {
	if _, err := encodeCommand("T", "X", []any{3.5}); err == nil {
		t.Error("expected error for float argument")
	}
}

func TestNewSeqSet(t *testing.T) {
	if got := NewSeqSet(1, 5, 9); got != "1,5,9" {
		t.Errorf("got %q", got)
	}
	if got := seqSet(nil); got != "1:*" {
		t.Errorf("empty set = %q", got)
	}
}

func TestDropNl(t *testing.T) {
	for in, want := range map[string]string{"a\r\n": "a", "a\n": "a", "a": "a", "": ""} {
		if got := string(dropNl([]byte(in))); got != want {
			t.Errorf("dropNl(%q) = %q", in, got)
		}
	}
}

func TestSearchArgs(t *testing.T) {
	tests := []struct {
		query string
		want  Joined
	}{
		{"ALL", Joined{Atom("ALL")}},
		{`SUBJECT "plain {3}"`, Joined{Atom(`SUBJECT "plain {3}"`)}},
		{`OR (SUBJECT "тест") (FROM "a\"b")`, Joined{Atom("OR (SUBJECT "), Literal("тест"), Atom(`) (FROM "a\"b")`)}},
		{`BODY "say \"привет\""`, Joined{Atom("BODY "), Literal(`say "привет"`)}},
		{"SUBJECT " + MakeIMAPLiteral("测试") + " UNSEEN", Joined{Atom("SUBJECT "), Literal("测试"), Atom(" UNSEEN")}},
		{"SUBJECT {99}\r\nshort", Joined{Atom("SUBJECT {99}\r\nshort")}},
		{`SUBJECT "open`, Joined{Atom(`SUBJECT "open`)}},
	}
	for _, test := range tests {
		got := searchArgs(test.query)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("searchArgs(%q) = %#v, want %#v", test.query, got, test.want)
		}
	}
}
