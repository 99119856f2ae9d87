package imap

import "testing"

func TestStrtok(t *testing.T) {
	tok := NewStrtok(`  (\HasNoChildren) "/" INBOX`)
	if got := tok.Next(" "); got != `(\HasNoChildren)` {
		t.Errorf("first = %q", got)
	}
	if got := tok.Next(" "); got != `"/"` {
		t.Errorf("second = %q", got)
	}
	if got := tok.Rest(); got != "INBOX" {
		t.Errorf("rest = %q", got)
	}
	if got := tok.Next(" "); got != "INBOX" {
		t.Errorf("third = %q", got)
	}
	if got := tok.Next(" "); got != "" {
		t.Errorf("exhausted = %q", got)
	}
}
