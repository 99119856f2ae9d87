package imap

import "strings"

// Strtok splits a string into tokens separated by any of a set of
// delimiters, one call at a time. Runs of delimiters are skipped; Next
// returns "" once the input is exhausted.
type Strtok struct {
	s string
	i int
}

// NewStrtok starts a token sequence over s
func NewStrtok(s string) *Strtok {
	return &Strtok{s: s}
}

// Next returns the next token delimited by any byte in delims
func (t *Strtok) Next(delims string) string {
	for t.i < len(t.s) && strings.IndexByte(delims, t.s[t.i]) != -1 {
		t.i++
	}
	start := t.i
	for t.i < len(t.s) && strings.IndexByte(delims, t.s[t.i]) == -1 {
		t.i++
	}
	tok := t.s[start:t.i]
	if t.i < len(t.s) {
		t.i++
	}
	return tok
}

// Rest returns the unread remainder
func (t *Strtok) Rest() string {
	return t.s[t.i:]
}
