package imap

import "fmt"

// SetUIDCache replaces the sequence number to UID cache. A nil list clears
// it; otherwise uids[i] becomes the UID of message i+1.
func (d *Dialer) SetUIDCache(uids []uint32) {
	if uids == nil {
		d.uidCache = nil
		return
	}
	d.uidCache = make(map[uint32]uint32, len(uids))
	for i, uid := range uids {
		d.uidCache[uint32(i+1)] = uid
	}
}

// UIDs fetches the UID of every message in the selected folder, keyed by
// sequence number, and refills the UID cache from the result
func (d *Dialer) UIDs() (*Response[map[uint32]uint32], error) {
	r, err := d.execute("FETCH", []any{SeqSet("1:*"), []string{"UID"}}, nil)
	if err != nil {
		return nil, err
	}
	if !r.OK() {
		return transform[struct{}, map[uint32]uint32](r, nil), nil
	}
	records, err := parseFetchLines(r.Lines)
	if err != nil {
		return nil, err
	}
	uids := make(map[uint32]uint32, len(records))
	for _, rec := range records {
		t := rec.Get("UID")
		if err = checkType(t, []TType{TNumber}, rec.Tokens, "after UID"); err != nil {
			return nil, err
		}
		uids[rec.Seq] = uint32(t.Num)
	}
	d.uidCache = uids
	return transform(r, uids), nil
}

func (d *Dialer) fillUIDCache() error {
	if d.uidCache != nil {
		return nil
	}
	r, err := d.UIDs()
	if err != nil {
		return err
	}
	return r.Validate()
}

// noteUntagged drops the UID cache once the server reports that message
// numbers changed
func (d *Dialer) noteUntagged(line string) {
	if _, kind, _, ok := parseUntagged(line); ok && (kind == "EXISTS" || kind == "EXPUNGE") {
		d.uidCache = nil
	}
}

// lookupUIDCache runs find against the cache. A miss on a cache that was
// already warm refetches it once, since mail may have arrived since.
func (d *Dialer) lookupUIDCache(find func(cache map[uint32]uint32) (uint32, bool)) (uint32, bool, error) {
	warm := d.uidCache != nil
	if err := d.fillUIDCache(); err != nil {
		return 0, false, err
	}
	if v, ok := find(d.uidCache); ok || !warm {
		return v, ok, nil
	}
	d.uidCache = nil
	if err := d.fillUIDCache(); err != nil {
		return 0, false, err
	}
	v, ok := find(d.uidCache)
	return v, ok, nil
}

// ResolveUID returns the UID of message number msgn
func (d *Dialer) ResolveUID(msgn uint32) (uint32, error) {
	uid, ok, err := d.lookupUIDCache(func(cache map[uint32]uint32) (uint32, bool) {
		uid, ok := cache[msgn]
		return uid, ok
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("imap: no message number %d in %q", msgn, d.Folder)
	}
	return uid, nil
}

// ResolveMessageNumber returns the sequence number of the message with uid
func (d *Dialer) ResolveMessageNumber(uid uint32) (uint32, error) {
	msgn, ok, err := d.lookupUIDCache(func(cache map[uint32]uint32) (uint32, bool) {
		for msgn, u := range cache {
			if u == uid {
				return msgn, true
			}
		}
		return 0, false
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("imap: no message with UID %d in %q", uid, d.Folder)
	}
	return msgn, nil
}
