package imap

import (
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html/charset"
)

// Address is one decoded mailbox of an address header
type Address struct {
	Personal string
	Mailbox  string
	Host     string
}

// Email returns mailbox@host
func (a Address) Email() string {
	if a.Host == "" {
		return a.Mailbox
	}
	return a.Mailbox + "@" + a.Host
}

func (a Address) String() string {
	if a.Personal == "" {
		return a.Email()
	}
	if strings.ContainsAny(a.Personal, `,;"`) {
		return quote(a.Personal) + " <" + a.Email() + ">"
	}
	return a.Personal + " <" + a.Email() + ">"
}

// Header is the decoded attribute store of one message header block.
// Keys are lower case with hyphens turned into underscores. Values are a
// string, a []string or, for address headers, an []Address.
type Header struct {
	Raw   string
	keys  []string
	attrs map[string]any
}

func newHeader(raw string) *Header {
	return &Header{Raw: raw, attrs: make(map[string]any)}
}

// Get returns the value stored under key
func (h *Header) Get(key string) any {
	if h == nil {
		return nil
	}
	return h.attrs[normalizeHeaderKey(key)]
}

// Has reports whether key is set
func (h *Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h.attrs[normalizeHeaderKey(key)]
	return ok
}

// Set stores v under key, keeping the first insertion position
func (h *Header) Set(key string, v any) {
	key = normalizeHeaderKey(key)
	if _, ok := h.attrs[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.attrs[key] = v
}

// Keys returns the keys in the order they were first set
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.keys...)
}

// String renders the value under key as text
func (h *Header) String(key string) string {
	switch v := h.Get(key).(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []Address:
		s := make([]string, len(v))
		for i, a := range v {
			s[i] = a.String()
		}
		return strings.Join(s, ", ")
	}
	return ""
}

// Addresses returns the decoded addresses under key
func (h *Header) Addresses(key string) []Address {
	a, _ := h.Get(key).([]Address)
	return a
}

// Date parses the date header with DefaultDateParser
func (h *Header) Date() (time.Time, error) {
	return DefaultDateParser.Parse(h.String("date"))
}

func normalizeHeaderKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

var addressHeaders = map[string]bool{
	"from":     true,
	"to":       true,
	"cc":       true,
	"bcc":      true,
	"reply_to": true,
	"sender":   true,
}

// HeaderParser unfolds and decodes raw header blocks
type HeaderParser struct {
	decoder *mime.WordDecoder
}

// NewHeaderParser returns a parser decoding RFC 2047 words in any charset
// golang.org/x/net/html/charset knows
func NewHeaderParser() *HeaderParser {
	return &HeaderParser{decoder: &mime.WordDecoder{
		CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
			return charset.NewReaderLabel(label, input)
		},
	}}
}

// DefaultHeaderParser is used by ParseHeader
var DefaultHeaderParser = NewHeaderParser()

// ParseHeader parses raw with DefaultHeaderParser
func ParseHeader(raw string) *Header {
	return DefaultHeaderParser.Parse(raw)
}

// Unfold splits raw into per-header value fragments. A line starting with
// a tab or space continues the previous header; the first character is
// dropped and the rest trimmed. Repeated headers accumulate fragments.
// Continuation lines ahead of the first header have nothing to continue
// and are dropped, as are lines without a colon.
func (p *HeaderParser) Unfold(raw string) (keys []string, fragments map[string][]string) {
	fragments = make(map[string][]string)
	prev := ""
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if line == "" {
			continue
		}
		if line[0] == '\t' || line[0] == ' ' {
			if prev != "" {
				fragments[prev] = append(fragments[prev], strings.TrimSpace(line[1:]))
			}
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		key := normalizeHeaderKey(line[:i])
		if _, ok := fragments[key]; !ok {
			keys = append(keys, key)
		}
		fragments[key] = append(fragments[key], strings.TrimSpace(line[i+1:]))
		prev = key
	}
	return keys, fragments
}

// Parse unfolds raw and collapses every header. Address headers become
// []Address with the decoded text kept under "<name>address"; subject
// joins all fragments; other headers drop empty fragments and become a
// string for one or two fragments, a []string for more.
func (p *HeaderParser) Parse(raw string) *Header {
	h := newHeader(raw)
	keys, fragments := p.Unfold(raw)
	for _, key := range keys {
		values := fragments[key]
		switch {
		case addressHeaders[key]:
			joined := joinAddressFragments(values)
			h.Set(key, p.ParseAddresses(joined))
			h.Set(key+"address", p.decode(joined))
		case key == "subject":
			h.Set(key, p.decode(strings.Join(values, " ")))
		default:
			nonEmpty := make([]string, 0, len(values))
			for _, v := range values {
				if v != "" {
					nonEmpty = append(nonEmpty, p.decode(v))
				}
			}
			switch len(nonEmpty) {
			case 0:
				h.Set(key, "")
			case 1:
				h.Set(key, nonEmpty[0])
			case 2:
				h.Set(key, nonEmpty[0]+" "+nonEmpty[1])
			default:
				h.Set(key, nonEmpty)
			}
		}
	}
	return h
}

// joinAddressFragments joins address fragments into one comma separated
// list. Trailing commas left by folding are not doubled.
func joinAddressFragments(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimRight(v, ", "); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func (p *HeaderParser) decode(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	d, err := p.decoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return d
}

// ParseAddresses decodes an address list. go-message's RFC 5322 parser is
// tried first; lists it rejects are split by hand.
func (p *HeaderParser) ParseAddresses(list string) []Address {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	if parsed, err := mail.ParseAddressList(list); err == nil {
		out := make([]Address, 0, len(parsed))
		for _, a := range parsed {
			out = append(out, newAddress(a.Name, a.Address))
		}
		return out
	}

	out := make([]Address, 0)
	for _, part := range splitAddressList(list) {
		m := looseAddressRE.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		personal := strings.TrimSpace(m[1])
		personal = RemoveSlashes.Replace(strings.Trim(personal, `"'`))
		out = append(out, newAddress(p.decode(personal), m[2]))
	}
	return out
}

var looseAddressRE = regexp.MustCompile(`^(?:(.+?)\s*)?<?([^\s<>]+?)>?$`)

func newAddress(personal, email string) Address {
	a := Address{Personal: personal}
	if i := strings.LastIndexByte(email, '@'); i != -1 {
		a.Mailbox, a.Host = email[:i], email[i+1:]
	} else {
		a.Mailbox = email
	}
	return a
}

// splitAddressList splits on commas outside quotes and angle brackets,
// dropping empty entries left by trailing commas
func splitAddressList(list string) []string {
	var (
		parts   []string
		b       strings.Builder
		quoted  bool
		bracket bool
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			parts = append(parts, s)
		}
		b.Reset()
	}
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case c == '\\' && quoted && i+1 < len(list):
			b.WriteByte(c)
			i++
			c = list[i]
		case c == '"':
			quoted = !quoted
		case c == '<' && !quoted:
			bracket = true
		case c == '>' && !quoted:
			bracket = false
		case c == ',' && !quoted && !bracket:
			flush()
			continue
		}
		b.WriteByte(c)
	}
	flush()
	return parts
}
