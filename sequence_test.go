package imap

import "testing"

func TestUIDKey(t *testing.T) {
	tests := []struct {
		mode SequenceMode
		want string
	}{
		{SequenceUID, "UID"},
		{SequenceMSGN, ""},
		{SequenceMode("42"), ""},
		{SequenceMode("X-GM-MSGID"), "X-GM-MSGID"},
	}
	for _, tt := range tests {
		if got := UIDKey(tt.mode); got != tt.want {
			t.Errorf("UIDKey(%q) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestBuildUIDCommand(t *testing.T) {
	tests := []struct {
		verb string
		mode SequenceMode
		want string
	}{
		{"FETCH", SequenceUID, "UID FETCH"},
		{"STORE", SequenceMSGN, "STORE"},
		{"SEARCH", SequenceMode("X-CUSTOM"), "X-CUSTOM SEARCH"},
	}
	for _, tt := range tests {
		if got := BuildUIDCommand(tt.verb, tt.mode); got != tt.want {
			t.Errorf("BuildUIDCommand(%q, %q) = %q, want %q", tt.verb, tt.mode, got, tt.want)
		}
	}
}
