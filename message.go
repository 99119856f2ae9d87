package imap

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
)

// Message is one populated message
type Message struct {
	// ID is the id the message was fetched by, a UID or a sequence number
	// depending on Sequence
	ID       uint32
	UID      uint32
	Msgn     uint32
	Sequence SequenceMode
	// Index is the position of the message within its page
	Index int

	Flags     []string
	Header    *Header
	Date      time.Time
	Subject   string
	MessageID string

	From    []Address
	To      []Address
	CC      []Address
	BCC     []Address
	ReplyTo []Address
	Sender  []Address

	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment represents an email attachment
type Attachment struct {
	Name      string
	MimeType  string
	ContentID string
	Inline    bool
	Content   []byte
}

// HasFlag reports whether the message carries flag, ignoring case
func (m *Message) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of a Message
func (m Message) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	for _, a := range []struct {
		name  string
		addrs []Address
	}{
		{"To", m.To},
		{"From", m.From},
		{"CC", m.CC},
		{"BCC", m.BCC},
		{"ReplyTo", m.ReplyTo},
	} {
		if len(a.addrs) == 0 {
			continue
		}
		s := make([]string, len(a.addrs))
		for i, addr := range a.addrs {
			s[i] = addr.String()
		}
		fmt.Fprintf(&b, "%s: %s\n", a.name, strings.Join(s, ", "))
	}
	if len(m.Text) != 0 {
		fmt.Fprintf(&b, "Text: %s (%s)\n", preview(m.Text), humanize.Bytes(uint64(len(m.Text))))
	}
	if len(m.HTML) != 0 {
		fmt.Fprintf(&b, "HTML: %s (%s)\n", preview(m.HTML), humanize.Bytes(uint64(len(m.HTML))))
	}
	if len(m.Attachments) != 0 {
		fmt.Fprintf(&b, "%d Attachment(s): %s\n", len(m.Attachments), m.Attachments)
	}
	return b.String()
}

func preview(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}

// String returns a formatted string representation of an Attachment
func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Content))))
}

// MessageInput is everything fetched for one id
type MessageInput struct {
	ID       uint32
	Index    int
	Session  Session
	Header   []byte
	Content  []byte
	Flags    []string
	Options  FetchOption
	Sequence SequenceMode
}

// MessageBuilder constructs a Message from fetched data. Failures should be
// *FlagParseError, *InvalidMessageDateError or *ContentFetchError.
type MessageBuilder interface {
	Build(in MessageInput) (*Message, error)
}

// MessageBuilderFunc adapts a function to MessageBuilder
type MessageBuilderFunc func(in MessageInput) (*Message, error)

func (f MessageBuilderFunc) Build(in MessageInput) (*Message, error) { return f(in) }

// DefaultBuilder parses headers and dates, validates flags, reads the MIME
// structure with enmime and resolves the UID / sequence number counterpart
// through the session
type DefaultBuilder struct {
	Headers *HeaderParser
	Dates   DateParser
}

// NewDefaultBuilder returns a DefaultBuilder with the default parsers
func NewDefaultBuilder() *DefaultBuilder {
	return &DefaultBuilder{Headers: DefaultHeaderParser, Dates: DefaultDateParser}
}

func (b *DefaultBuilder) Build(in MessageInput) (*Message, error) {
	m := &Message{
		ID:       in.ID,
		Sequence: in.Sequence,
		Index:    in.Index,
		Header:   b.Headers.Parse(string(in.Header)),
	}

	for _, f := range in.Flags {
		canon, ok := normalizeFlag(f)
		if !ok {
			return nil, &FlagParseError{ID: in.ID, Flag: f}
		}
		m.Flags = append(m.Flags, canon)
	}

	if raw := m.Header.String("date"); raw != "" {
		date, err := b.Dates.Parse(raw)
		if err != nil {
			return nil, &InvalidMessageDateError{ID: in.ID, Date: raw, Err: err}
		}
		m.Date = date
	}

	m.Subject = m.Header.String("subject")
	m.MessageID = strings.Trim(m.Header.String("message_id"), "<> ")
	m.From = m.Header.Addresses("from")
	m.To = m.Header.Addresses("to")
	m.CC = m.Header.Addresses("cc")
	m.BCC = m.Header.Addresses("bcc")
	m.ReplyTo = m.Header.Addresses("reply_to")
	m.Sender = m.Header.Addresses("sender")

	if len(in.Content) != 0 {
		if err := readBody(m, in.Header, in.Content); err != nil {
			return nil, &ContentFetchError{ID: in.ID, Err: err}
		}
	}

	if err := resolveCounterpart(m, in); err != nil {
		return nil, err
	}
	return m, nil
}

func readBody(m *Message, header, content []byte) error {
	raw := bytes.Buffer{}
	raw.Write(header)
	if !bytes.HasSuffix(header, []byte("\n\n")) && !bytes.HasSuffix(header, []byte("\r\n\r\n")) {
		raw.WriteString(nl)
	}
	raw.Write(content)

	env, err := enmime.ReadEnvelope(&raw)
	if err != nil {
		return err
	}
	m.Text = env.Text
	m.HTML = env.HTML
	for _, a := range env.Attachments {
		m.Attachments = append(m.Attachments, Attachment{
			Name:      a.FileName,
			MimeType:  a.ContentType,
			ContentID: a.ContentID,
			Content:   a.Content,
		})
	}
	for _, a := range env.Inlines {
		m.Attachments = append(m.Attachments, Attachment{
			Name:      a.FileName,
			MimeType:  a.ContentType,
			ContentID: a.ContentID,
			Inline:    true,
			Content:   a.Content,
		})
	}
	return nil
}

func resolveCounterpart(m *Message, in MessageInput) error {
	if in.Sequence == SequenceUID {
		m.UID = in.ID
	} else {
		m.Msgn = in.ID
	}
	if in.Session == nil {
		return nil
	}
	var err error
	if in.Sequence == SequenceUID {
		m.Msgn, err = in.Session.ResolveMessageNumber(in.ID)
	} else {
		m.UID, err = in.Session.ResolveUID(in.ID)
	}
	if err != nil {
		return fmt.Errorf("message %d: %w", in.ID, err)
	}
	return nil
}
