package imap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/utf7"
)

// MailboxInfo is the state reported by SELECT and EXAMINE
type MailboxInfo struct {
	Name           string
	ReadOnly       bool
	Flags          []string
	PermanentFlags []string
	Exists         uint32
	Recent         uint32
	Unseen         uint32
	UIDValidity    uint32
	UIDNext        uint32
}

// Folder is one LIST entry
type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// HasChildren reports whether the server flagged the folder as a parent
func (f Folder) HasChildren() bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, `\HasChildren`) {
			return true
		}
	}
	return false
}

// FolderStats represents statistics for a folder
type FolderStats struct {
	Name   string
	Count  int
	MaxUID uint32
	Error  error
}

// encodeFolder converts a folder name to modified UTF-7
func encodeFolder(name string) string {
	enc, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		return name
	}
	return enc
}

func decodeFolder(name string) string {
	dec, err := utf7.Encoding.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return dec
}

// Select opens folder read-write
func (d *Dialer) Select(folder string) (*Response[*MailboxInfo], error) {
	return d.open("SELECT", folder, false)
}

// Examine opens folder read-only
func (d *Dialer) Examine(folder string) (*Response[*MailboxInfo], error) {
	return d.open("EXAMINE", folder, true)
}

func (d *Dialer) open(verb, folder string, readOnly bool) (*Response[*MailboxInfo], error) {
	r, err := d.execute(verb, []any{encodeFolder(folder)}, nil)
	if err != nil {
		return nil, err
	}
	// the previous selection ends even when the new one fails
	d.SetUIDCache(nil)
	if !r.OK() {
		d.Folder = ""
		d.setState(StateAuthenticated)
		return transform[struct{}, *MailboxInfo](r, nil), nil
	}

	info := parseMailboxInfo(r.Lines)
	info.Name = folder
	info.ReadOnly = readOnly || strings.Contains(strings.ToUpper(r.Text), "[READ-ONLY]")

	d.Folder = folder
	d.ReadOnly = readOnly
	d.setState(StateSelected)
	return transform(r, info), nil
}

func parseMailboxInfo(lines []string) *MailboxInfo {
	info := &MailboxInfo{}
	for _, line := range lines {
		num, kind, rest, ok := parseUntagged(line)
		if !ok {
			continue
		}
		switch kind {
		case "EXISTS":
			info.Exists = num
		case "RECENT":
			info.Recent = num
		case "FLAGS":
			info.Flags = parseFlagList(rest)
		case "OK":
			// * OK [UIDVALIDITY 3857529045] UIDs valid
			tok := NewStrtok(rest)
			code := strings.ToUpper(tok.Next("[ "))
			switch code {
			case "UIDVALIDITY", "UIDNEXT", "UNSEEN":
				n, err := strconv.ParseUint(tok.Next(" ]"), 10, 32)
				if err != nil {
					continue
				}
				switch code {
				case "UIDVALIDITY":
					info.UIDValidity = uint32(n)
				case "UIDNEXT":
					info.UIDNext = uint32(n)
				case "UNSEEN":
					info.Unseen = uint32(n)
				}
			case "PERMANENTFLAGS":
				list, _, _ := strings.Cut(tok.Rest(), "]")
				info.PermanentFlags = parseFlagList(list)
			}
		}
	}
	return info
}

func parseFlagList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	return strings.Fields(s)
}

// Status returns the STATUS items of folder, MESSAGES UNSEEN UIDNEXT and
// UIDVALIDITY unless items names others
func (d *Dialer) Status(folder string, items ...string) (*Response[map[string]uint32], error) {
	if len(items) == 0 {
		items = []string{"MESSAGES", "UNSEEN", "UIDNEXT", "UIDVALIDITY"}
	}
	r, err := d.execute("STATUS", []any{encodeFolder(folder), items}, nil)
	if err != nil {
		return nil, err
	}
	status := make(map[string]uint32, len(items))
	for _, line := range r.Lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "STATUS" {
			continue
		}
		tks, err := parseFetchTokens(rest)
		if err != nil {
			return nil, fmt.Errorf("unable to parse STATUS line %q: %w", line, err)
		}
		if len(tks) == 0 || tks[len(tks)-1].Type != TContainer {
			continue
		}
		pairs := tks[len(tks)-1].Tokens
		for i := 0; i+1 < len(pairs); i += 2 {
			if pairs[i+1].Type == TNumber {
				status[strings.ToUpper(pairs[i].Str)] = uint32(pairs[i+1].Num)
			}
		}
	}
	return transform(r, status), nil
}

// Folders lists every folder matching pattern under reference. An empty
// pattern lists everything.
func (d *Dialer) Folders(reference, pattern string) (*Response[[]Folder], error) {
	if pattern == "" {
		pattern = "*"
	}
	r, err := d.execute("LIST", []any{encodeFolder(reference), encodeFolder(pattern)}, nil)
	if err != nil {
		return nil, err
	}
	folders := make([]Folder, 0, len(r.Lines))
	for _, line := range r.Lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "LIST" {
			continue
		}
		tks, err := parseFetchTokens(rest)
		if err != nil {
			return nil, fmt.Errorf("unable to parse LIST line %q: %w", line, err)
		}
		if len(tks) < 3 {
			continue
		}
		f := Folder{Delimiter: tks[1].text(), Name: decodeFolder(tks[2].text())}
		for _, a := range tks[0].Tokens {
			f.Attributes = append(f.Attributes, a.text())
		}
		folders = append(folders, f)
	}
	return transform(r, folders), nil
}

// FolderNames returns the names of every folder
func (d *Dialer) FolderNames() ([]string, error) {
	r, err := d.Folders("", "*")
	if err != nil {
		return nil, err
	}
	folders, err := r.Data()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.Name
	}
	return names, nil
}

func (d *Dialer) folderCommand(verb string, args []any, ev Event) (*Response[struct{}], error) {
	r, err := d.execute(verb, args, nil)
	if err != nil {
		return nil, err
	}
	if r.OK() {
		d.cfg.Events.Dispatch(ev)
	}
	return r, nil
}

// CreateFolder creates folder
func (d *Dialer) CreateFolder(folder string) (*Response[struct{}], error) {
	return d.folderCommand("CREATE", []any{encodeFolder(folder)}, Event{Kind: EventFolderNew, Folder: folder})
}

// RenameFolder renames from to to
func (d *Dialer) RenameFolder(from, to string) (*Response[struct{}], error) {
	r, err := d.folderCommand("RENAME", []any{encodeFolder(from), encodeFolder(to)}, Event{Kind: EventFolderMoved, Folder: from, Target: to})
	if err == nil && r.OK() && d.Folder == from {
		d.Folder = to
	}
	return r, err
}

// DeleteFolder deletes folder
func (d *Dialer) DeleteFolder(folder string) (*Response[struct{}], error) {
	return d.folderCommand("DELETE", []any{encodeFolder(folder)}, Event{Kind: EventFolderDeleted, Folder: folder})
}

// Subscribe adds folder to the subscription list
func (d *Dialer) Subscribe(folder string) (*Response[struct{}], error) {
	return d.execute("SUBSCRIBE", []any{encodeFolder(folder)}, nil)
}

// Unsubscribe removes folder from the subscription list
func (d *Dialer) Unsubscribe(folder string) (*Response[struct{}], error) {
	return d.execute("UNSUBSCRIBE", []any{encodeFolder(folder)}, nil)
}

// FolderFilter narrows FolderStats and TotalMessageCount. Walking starts at
// Start (inclusive) in LIST order and skips every folder in Exclude.
type FolderFilter struct {
	Start   string
	Exclude []string
}

func (f FolderFilter) apply(folders []string) []string {
	startFound := f.Start == ""
	excluded := make(map[string]bool, len(f.Exclude))
	for _, folder := range f.Exclude {
		excluded[folder] = true
	}
	out := make([]string, 0, len(folders))
	for _, folder := range folders {
		if !startFound {
			if folder != f.Start {
				continue
			}
			startFound = true
		}
		if !excluded[folder] {
			out = append(out, folder)
		}
	}
	return out
}

// FolderStats examines every folder the filter selects and reports its
// message count and highest UID. Per-folder failures land in
// FolderStats.Error; the selected folder is restored afterwards.
func (d *Dialer) FolderStats(filter FolderFilter) ([]FolderStats, error) {
	names, err := d.FolderNames()
	if err != nil {
		return nil, err
	}

	currentFolder, currentReadOnly := d.Folder, d.ReadOnly
	defer func() {
		if err := d.restoreFolder(currentFolder, currentReadOnly); err != nil {
			d.warnLog("failed to restore folder", "folder", currentFolder, "error", err)
		}
	}()

	stats := make([]FolderStats, 0, len(names))
	for _, folder := range filter.apply(names) {
		stat := FolderStats{Name: folder}

		r, err := d.Examine(folder)
		if err != nil {
			return stats, err
		}
		info, err := r.Data()
		if err != nil {
			stat.Error = fmt.Errorf("folder %s: %w", folder, err)
			stats = append(stats, stat)
			continue
		}
		stat.Count = int(info.Exists)

		if stat.Count > 0 {
			sr, err := d.Search(SequenceUID, "ALL")
			if err != nil {
				return stats, err
			}
			if uids, err := sr.Data(); err != nil {
				stat.Error = fmt.Errorf("folder %s: %w", folder, err)
			} else if len(uids) > 0 {
				stat.MaxUID = uids[len(uids)-1]
			}
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// TotalMessageCount sums the message counts of the folders the filter
// selects, returning per-folder failures separately
func (d *Dialer) TotalMessageCount(filter FolderFilter) (count int, folderErrors []error, err error) {
	stats, err := d.FolderStats(filter)
	if err != nil {
		return 0, nil, err
	}
	for _, s := range stats {
		if s.Error != nil {
			folderErrors = append(folderErrors, s.Error)
			continue
		}
		count += s.Count
	}
	return count, folderErrors, nil
}
