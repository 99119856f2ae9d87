package imap

import "strings"

// FlagSet represents the action to take on a flag
type FlagSet int

const (
	FlagUnset FlagSet = iota
	FlagAdd
	FlagRemove
)

// Flags represents standard IMAP message flags
type Flags struct {
	Seen     FlagSet
	Answered FlagSet
	Flagged  FlagSet
	Deleted  FlagSet
	Draft    FlagSet
	Keywords map[string]bool
}

// System flags
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
	FlagRecent   = `\Recent`
)

var systemFlags = map[string]string{
	`\SEEN`:     FlagSeen,
	`\ANSWERED`: FlagAnswered,
	`\FLAGGED`:  FlagFlagged,
	`\DELETED`:  FlagDeleted,
	`\DRAFT`:    FlagDraft,
	`\RECENT`:   FlagRecent,
}

// normalizeFlag canonicalizes the case of system flags. Keywords pass
// through unchanged; a backslash flag outside the system set, or a flag
// holding list or quoting characters, is rejected.
func normalizeFlag(f string) (string, bool) {
	if f == "" || strings.ContainsAny(f, `()"{} `) {
		return "", false
	}
	if !strings.HasPrefix(f, `\`) {
		return f, true
	}
	if f == `\*` {
		return f, true
	}
	canon, ok := systemFlags[strings.ToUpper(f)]
	return canon, ok
}
