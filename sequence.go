package imap

import (
	"strconv"
	"strings"
)

// SequenceMode selects how message ids are addressed on the wire
type SequenceMode string

const (
	// SequenceMSGN addresses messages by sequence number
	SequenceMSGN SequenceMode = ""
	// SequenceUID addresses messages by UID
	SequenceUID SequenceMode = "UID"
)

// UIDKey returns the command prefix for mode: "UID" in UID mode, the mode
// itself when it is a non-numeric custom token, and "" otherwise.
func UIDKey(mode SequenceMode) string {
	if mode == SequenceUID {
		return "UID"
	}
	s := string(mode)
	if s == "" {
		return ""
	}
	if _, err := strconv.Atoi(s); err == nil {
		return ""
	}
	return s
}

// BuildUIDCommand prefixes verb with the addressing prefix for mode
func BuildUIDCommand(verb string, mode SequenceMode) string {
	return strings.TrimSpace(UIDKey(mode) + " " + verb)
}
