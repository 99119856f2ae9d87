package imap

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Overview is the summary FetchOverview returns for one message
type Overview struct {
	ID           uint32
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Size         uint64
	Header       *Header
}

// String returns a one line summary
func (o Overview) String() string {
	return fmt.Sprintf("%d %q from %s (%s, %s)", o.UID, o.Header.String("subject"),
		o.Header.String("fromaddress"), humanize.Bytes(o.Size), humanize.Time(o.InternalDate))
}

// QuotaResource is one resource of a quota root, in the server's units
type QuotaResource struct {
	Name  string
	Usage uint64
	Limit uint64
}

// QuotaRootInfo maps each quota root of a folder to its resources
type QuotaRootInfo struct {
	Roots     []string
	Resources map[string][]QuotaResource
}

func seqSet(ids []uint32) SeqSet {
	if len(ids) == 0 {
		return "1:*"
	}
	return NewSeqSet(ids...)
}

// recordID keys a FETCH record by UID in UID mode, by sequence number otherwise
func recordID(rec FetchRecord, mode SequenceMode) uint32 {
	if mode == SequenceUID {
		if t := rec.Get("UID"); t != nil && t.Type == TNumber {
			return uint32(t.Num)
		}
	}
	return rec.Seq
}

// fetch issues FETCH items for ids and hands every record to each
func (d *Dialer) fetch(ids []uint32, mode SequenceMode, items []string, each func(id uint32, rec FetchRecord) error) (*Response[struct{}], error) {
	r, err := d.execute(BuildUIDCommand("FETCH", mode), []any{seqSet(ids), items}, nil)
	if err != nil {
		return nil, err
	}
	if !r.OK() {
		return r, nil
	}
	records, err := parseFetchLines(r.Lines)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err = each(recordID(rec, mode), rec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func bodySection(section string, opt FetchOption) string {
	if opt&FetchPeek != 0 {
		return "BODY.PEEK[" + section + "]"
	}
	return "BODY[" + section + "]"
}

func (d *Dialer) fetchSection(ids []uint32, mode SequenceMode, section string, opt FetchOption) (*Response[map[uint32][]byte], error) {
	out := make(map[uint32][]byte, len(ids))
	r, err := d.fetch(ids, mode, []string{"UID", bodySection(section, opt)}, func(id uint32, rec FetchRecord) error {
		t := rec.Get("BODY[" + section + "]")
		if err := checkType(t, []TType{TAtom, TQuoted, TNil}, rec.Tokens, "after BODY[%s]", section); err != nil {
			return err
		}
		out[id] = []byte(t.text())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transform(r, out), nil
}

// FetchContent fetches the body text of ids. With FetchPeek set the
// \Seen flag is left alone.
func (d *Dialer) FetchContent(ids []uint32, mode SequenceMode, opt FetchOption) (*Response[map[uint32][]byte], error) {
	return d.fetchSection(ids, mode, "TEXT", opt)
}

// FetchHeaders fetches the raw header block of ids
func (d *Dialer) FetchHeaders(ids []uint32, mode SequenceMode) (*Response[map[uint32][]byte], error) {
	return d.fetchSection(ids, mode, "HEADER", FetchPeek)
}

// FetchFlags fetches the flags of ids
func (d *Dialer) FetchFlags(ids []uint32, mode SequenceMode) (*Response[map[uint32][]string], error) {
	out := make(map[uint32][]string, len(ids))
	r, err := d.fetch(ids, mode, []string{"UID", "FLAGS"}, func(id uint32, rec FetchRecord) error {
		t := rec.Get("FLAGS")
		if err := checkType(t, []TType{TContainer}, rec.Tokens, "after FLAGS"); err != nil {
			return err
		}
		flags := make([]string, len(t.Tokens))
		for i, f := range t.Tokens {
			if err := checkType(f, []TType{TLiteral}, rec.Tokens, "for FLAGS[%d]", i); err != nil {
				return err
			}
			flags[i] = f.Str
		}
		out[id] = flags
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transform(r, out), nil
}

// FetchSizes fetches RFC822.SIZE of ids
func (d *Dialer) FetchSizes(ids []uint32, mode SequenceMode) (*Response[map[uint32]uint64], error) {
	out := make(map[uint32]uint64, len(ids))
	r, err := d.fetch(ids, mode, []string{"UID", "RFC822.SIZE"}, func(id uint32, rec FetchRecord) error {
		t := rec.Get("RFC822.SIZE")
		if err := checkType(t, []TType{TNumber}, rec.Tokens, "after RFC822.SIZE"); err != nil {
			return err
		}
		out[id] = uint64(t.Num)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transform(r, out), nil
}

// FetchOverview fetches flags, internal date, size and parsed headers of ids
func (d *Dialer) FetchOverview(ids []uint32, mode SequenceMode) (*Response[map[uint32]*Overview], error) {
	out := make(map[uint32]*Overview, len(ids))
	items := []string{"UID", "FLAGS", "INTERNALDATE", "RFC822.SIZE", "BODY.PEEK[HEADER]"}
	r, err := d.fetch(ids, mode, items, func(id uint32, rec FetchRecord) error {
		o := &Overview{ID: id}
		for i := 0; i+1 < len(rec.Tokens); i += 2 {
			key, val := rec.Tokens[i], rec.Tokens[i+1]
			if err := checkType(key, []TType{TLiteral}, rec.Tokens, "in root"); err != nil {
				return err
			}
			switch strings.ToUpper(key.Str) {
			case "UID":
				if err := checkType(val, []TType{TNumber}, rec.Tokens, "after UID"); err != nil {
					return err
				}
				o.UID = uint32(val.Num)
			case "FLAGS":
				if err := checkType(val, []TType{TContainer}, rec.Tokens, "after FLAGS"); err != nil {
					return err
				}
				for _, f := range val.Tokens {
					o.Flags = append(o.Flags, f.text())
				}
			case "INTERNALDATE":
				if err := checkType(val, []TType{TQuoted}, rec.Tokens, "after INTERNALDATE"); err != nil {
					return err
				}
				t, err := time.Parse(TimeFormat, val.Str)
				if err != nil {
					return err
				}
				o.InternalDate = t.UTC()
			case "RFC822.SIZE":
				if err := checkType(val, []TType{TNumber}, rec.Tokens, "after RFC822.SIZE"); err != nil {
					return err
				}
				o.Size = uint64(val.Num)
			case "BODY[HEADER]":
				o.Header = ParseHeader(val.text())
			}
		}
		if o.Header == nil {
			o.Header = ParseHeader("")
		}
		out[id] = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transform(r, out), nil
}

// tokenValue flattens a token to a string, joining lists with spaces
func tokenValue(t *Token) string {
	if t == nil {
		return ""
	}
	if t.Type == TContainer {
		parts := make([]string, len(t.Tokens))
		for i, c := range t.Tokens {
			parts[i] = tokenValue(c)
		}
		return strings.Join(parts, " ")
	}
	return t.text()
}

// FetchExtensions fetches server specific items such as X-GM-LABELS.
// UID is always requested too, since results are keyed by it.
func (d *Dialer) FetchExtensions(ids []uint32, mode SequenceMode, extensions []string) (*Response[map[uint32]map[string]string], error) {
	items := make([]string, 0, len(extensions)+1)
	hasUID := false
	for _, e := range extensions {
		e = strings.ToUpper(e)
		hasUID = hasUID || e == "UID"
		items = append(items, e)
	}
	if !hasUID {
		items = append(items, "UID")
	}

	out := make(map[uint32]map[string]string, len(ids))
	r, err := d.fetch(ids, mode, items, func(id uint32, rec FetchRecord) error {
		values := make(map[string]string, len(extensions))
		for _, e := range extensions {
			if t := rec.Get(e); t != nil {
				values[e] = tokenValue(t)
			}
		}
		out[id] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transform(r, out), nil
}

// Search runs SEARCH (or UID SEARCH) with a compiled query
func (d *Dialer) Search(mode SequenceMode, query string) (*Response[[]uint32], error) {
	args := make([]any, 0, 3)
	if hasNonASCII(query) {
		args = append(args, Atom("CHARSET"), Atom("UTF-8"))
	}
	args = append(args, searchArgs(query))
	r, err := d.execute(BuildUIDCommand("SEARCH", mode), args, nil)
	if err != nil {
		return nil, err
	}
	if !r.OK() {
		return transform[struct{}, []uint32](r, nil), nil
	}
	ids, err := parseSearchLines(r.Lines)
	if err != nil {
		return nil, err
	}
	return transform(r, ids), nil
}

// StoreMode is the flag operation Store applies
type StoreMode string

const (
	StoreAdd     StoreMode = "+FLAGS"
	StoreRemove  StoreMode = "-FLAGS"
	StoreReplace StoreMode = "FLAGS"
)

// Store changes the flags of ids and returns the flags the server reports
// back (nothing when silent)
func (d *Dialer) Store(ids []uint32, mode SequenceMode, op StoreMode, flags []string, silent bool) (*Response[map[uint32][]string], error) {
	item := string(op)
	if silent {
		item += ".SILENT"
	}
	r, err := d.execute(BuildUIDCommand("STORE", mode), []any{seqSet(ids), Atom(item), flags}, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32][]string)
	if !r.OK() {
		return transform(r, out), nil
	}
	records, err := parseFetchLines(r.Lines)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if t := rec.Get("FLAGS"); t != nil {
			fl := make([]string, 0, len(t.Tokens))
			for _, f := range t.Tokens {
				fl = append(fl, f.text())
			}
			out[recordID(rec, mode)] = fl
		}
	}

	switch op {
	case StoreAdd:
		d.cfg.Events.Dispatch(Event{Kind: EventFlagNew, Folder: d.Folder, IDs: ids, Flags: flags})
	case StoreRemove:
		d.cfg.Events.Dispatch(Event{Kind: EventFlagDeleted, Folder: d.Folder, IDs: ids, Flags: flags})
	}
	return transform(r, out), nil
}

// flagLists turns a Flags value into +FLAGS and -FLAGS lists
func flagLists(flags Flags) (add, remove []string) {
	v := reflect.ValueOf(flags)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type != reflect.TypeOf(FlagUnset) {
			continue
		}
		switch FlagSet(v.Field(i).Int()) {
		case FlagAdd:
			add = append(add, `\`+field.Name)
		case FlagRemove:
			remove = append(remove, `\`+field.Name)
		}
	}
	for keyword, state := range flags.Keywords {
		if state {
			add = append(add, keyword)
		} else {
			remove = append(remove, keyword)
		}
	}
	return add, remove
}

// writable runs fn with the current folder selected read-write, switching
// back to EXAMINE afterwards when it was opened read-only
func (d *Dialer) writable(fn func() error) error {
	if !d.ReadOnly || d.Folder == "" {
		return fn()
	}
	folder := d.Folder
	if err := d.restoreFolder(folder, false); err != nil {
		return err
	}
	err := fn()
	if e := d.restoreFolder(folder, true); e != nil && err == nil {
		err = e
	}
	return err
}

// SetFlags adds and removes flags on ids as described by flags
func (d *Dialer) SetFlags(ids []uint32, mode SequenceMode, flags Flags) error {
	add, remove := flagLists(flags)
	return d.writable(func() error {
		for _, op := range []struct {
			mode  StoreMode
			flags []string
		}{{StoreAdd, add}, {StoreRemove, remove}} {
			if len(op.flags) == 0 {
				continue
			}
			r, err := d.Store(ids, mode, op.mode, op.flags, true)
			if err != nil {
				return err
			}
			if err = r.Validate(); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSeen marks a message as seen/read
func (d *Dialer) MarkSeen(id uint32, mode SequenceMode) error {
	return d.SetFlags([]uint32{id}, mode, Flags{Seen: FlagAdd})
}

// DeleteMessage flags a message \Deleted; Expunge removes it
func (d *Dialer) DeleteMessage(id uint32, mode SequenceMode) error {
	err := d.SetFlags([]uint32{id}, mode, Flags{Deleted: FlagAdd})
	if err == nil {
		d.cfg.Events.Dispatch(Event{Kind: EventMessageDeleted, Folder: d.Folder, IDs: []uint32{id}})
	}
	return err
}

// RestoreMessage clears \Deleted from a message
func (d *Dialer) RestoreMessage(id uint32, mode SequenceMode) error {
	err := d.SetFlags([]uint32{id}, mode, Flags{Deleted: FlagRemove})
	if err == nil {
		d.cfg.Events.Dispatch(Event{Kind: EventMessageRestored, Folder: d.Folder, IDs: []uint32{id}})
	}
	return err
}

// respCode returns the fields of a bracketed response code such as
// [APPENDUID 38505 3955]
func respCode(text, code string) []string {
	tok := NewStrtok(text)
	if !strings.EqualFold(tok.Next("[ "), code) {
		return nil
	}
	inner, _, _ := strings.Cut(tok.Rest(), "]")
	return strings.Fields(inner)
}

// Append uploads msg to folder and returns the new UID when the server
// supports UIDPLUS
func (d *Dialer) Append(folder string, msg []byte, flags []string, date time.Time) (*Response[uint32], error) {
	args := []any{encodeFolder(folder)}
	if len(flags) != 0 {
		args = append(args, flags)
	}
	if !date.IsZero() {
		args = append(args, date.Format(TimeFormat))
	}
	args = append(args, Literal(msg))

	r, err := d.execute("APPEND", args, nil)
	if err != nil {
		return nil, err
	}
	var uid uint32
	if f := respCode(r.Text, "APPENDUID"); len(f) == 2 {
		if n, err := strconv.ParseUint(f[1], 10, 32); err == nil {
			uid = uint32(n)
		}
	}
	if r.OK() {
		ev := Event{Kind: EventMessageNew, Folder: folder}
		if uid != 0 {
			ev.IDs = []uint32{uid}
		}
		d.cfg.Events.Dispatch(ev)
	}
	return transform(r, uid), nil
}

func (d *Dialer) transfer(verb string, kind EventKind, ids []uint32, folder string, mode SequenceMode) (*Response[struct{}], error) {
	r, err := d.execute(BuildUIDCommand(verb, mode), []any{NewSeqSet(ids...), encodeFolder(folder)}, nil)
	if err != nil {
		return nil, err
	}
	if r.OK() {
		if kind == EventMessageMoved {
			d.SetUIDCache(nil)
		}
		d.cfg.Events.Dispatch(Event{Kind: kind, Folder: d.Folder, Target: folder, IDs: ids})
	}
	return r, nil
}

// Copy copies one message to folder
func (d *Dialer) Copy(id uint32, folder string, mode SequenceMode) (*Response[struct{}], error) {
	return d.transfer("COPY", EventMessageCopied, []uint32{id}, folder, mode)
}

// CopyMany copies ids to folder in one command
func (d *Dialer) CopyMany(ids []uint32, folder string, mode SequenceMode) (*Response[struct{}], error) {
	return d.transfer("COPY", EventMessageCopied, ids, folder, mode)
}

// Move moves one message to folder
func (d *Dialer) Move(id uint32, folder string, mode SequenceMode) (*Response[struct{}], error) {
	return d.transfer("MOVE", EventMessageMoved, []uint32{id}, folder, mode)
}

// MoveMany moves ids to folder in one command
func (d *Dialer) MoveMany(ids []uint32, folder string, mode SequenceMode) (*Response[struct{}], error) {
	return d.transfer("MOVE", EventMessageMoved, ids, folder, mode)
}

// ID sends the client identification and returns the server's
func (d *Dialer) ID(fields map[string]string) (*Response[map[string]string], error) {
	var arg any
	if len(fields) != 0 {
		list := make([]any, 0, len(fields)*2)
		for k, v := range fields {
			list = append(list, k, v)
		}
		arg = list
	}
	r, err := d.execute("ID", []any{arg}, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range r.Lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "ID" {
			continue
		}
		tks, err := parseFetchTokens(rest)
		if err != nil {
			return nil, fmt.Errorf("unable to parse ID line %q: %w", line, err)
		}
		for i := 0; i+1 < len(tks); i += 2 {
			out[tks[i].text()] = tks[i+1].text()
		}
	}
	return transform(r, out), nil
}

// Expunge permanently removes messages flagged \Deleted and returns the
// sequence numbers the server reported as expunged
func (d *Dialer) Expunge() (*Response[[]uint32], error) {
	var r *Response[struct{}]
	err := d.writable(func() (err error) {
		r, err = d.execute("EXPUNGE", nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	expunged := make([]uint32, 0)
	for _, line := range r.Lines {
		if n, kind, _, ok := parseUntagged(line); ok && kind == "EXPUNGE" {
			expunged = append(expunged, n)
		}
	}
	if len(expunged) != 0 {
		d.SetUIDCache(nil)
	}
	return transform(r, expunged), nil
}

// Check requests a checkpoint of the selected folder
func (d *Dialer) Check() (*Response[struct{}], error) {
	return d.execute("CHECK", nil, nil)
}

// Noop does nothing, but lets the server report pending updates in Lines
func (d *Dialer) Noop() (*Response[struct{}], error) {
	return d.execute("NOOP", nil, nil)
}

func parseQuotaLine(rest string) (root string, res []QuotaResource, err error) {
	tks, err := parseFetchTokens(rest)
	if err != nil || len(tks) == 0 {
		return "", nil, err
	}
	if len(tks) < 2 || tks[len(tks)-1].Type != TContainer {
		return tks[0].text(), nil, nil
	}
	list := tks[len(tks)-1].Tokens
	for i := 0; i+2 < len(list); i += 3 {
		res = append(res, QuotaResource{
			Name:  strings.ToUpper(list[i].text()),
			Usage: uint64(list[i+1].Num),
			Limit: uint64(list[i+2].Num),
		})
	}
	return tks[0].text(), res, nil
}

// Quota returns the resources of quota root
func (d *Dialer) Quota(root string) (*Response[[]QuotaResource], error) {
	r, err := d.execute("GETQUOTA", []any{root}, nil)
	if err != nil {
		return nil, err
	}
	var out []QuotaResource
	for _, line := range r.Lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "QUOTA" {
			continue
		}
		_, res, err := parseQuotaLine(rest)
		if err != nil {
			return nil, fmt.Errorf("unable to parse QUOTA line %q: %w", line, err)
		}
		out = append(out, res...)
	}
	return transform(r, out), nil
}

// QuotaRoot returns the quota roots of folder and their resources
func (d *Dialer) QuotaRoot(folder string) (*Response[*QuotaRootInfo], error) {
	r, err := d.execute("GETQUOTAROOT", []any{encodeFolder(folder)}, nil)
	if err != nil {
		return nil, err
	}
	info := &QuotaRootInfo{Resources: make(map[string][]QuotaResource)}
	for _, line := range r.Lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok {
			continue
		}
		switch kind {
		case "QUOTAROOT":
			tks, err := parseFetchTokens(rest)
			if err != nil {
				return nil, fmt.Errorf("unable to parse QUOTAROOT line %q: %w", line, err)
			}
			for _, t := range tks[min(1, len(tks)):] {
				info.Roots = append(info.Roots, t.text())
			}
		case "QUOTA":
			root, res, err := parseQuotaLine(rest)
			if err != nil {
				return nil, fmt.Errorf("unable to parse QUOTA line %q: %w", line, err)
			}
			info.Resources[root] = append(info.Resources[root], res...)
		}
	}
	return transform(r, info), nil
}

// Capabilities returns the server capabilities, asking the server only once
// per authentication state
func (d *Dialer) Capabilities() (*Response[[]string], error) {
	if d.caps != nil {
		return NewResponse("CAPABILITY", StatusOK, "", d.caps), nil
	}
	r, err := d.execute("CAPABILITY", nil, nil)
	if err != nil {
		return nil, err
	}
	caps := make([]string, 0)
	for _, line := range r.Lines {
		if _, kind, rest, ok := parseUntagged(line); ok && kind == "CAPABILITY" {
			caps = append(caps, strings.Fields(strings.ToUpper(rest))...)
		}
	}
	if r.OK() {
		d.caps = caps
	}
	return transform(r, caps), nil
}

// HasCapability reports whether the server advertises name
func (d *Dialer) HasCapability(name string) (bool, error) {
	r, err := d.Capabilities()
	if err != nil {
		return false, err
	}
	caps, err := r.Data()
	if err != nil {
		return false, err
	}
	name = strings.ToUpper(name)
	for _, c := range caps {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}
