package imap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Atom is sent verbatim, never quoted
type Atom string

// Literal is always sent as an IMAP literal
type Literal []byte

// Joined writes its parts back to back, without separating spaces
type Joined []any

// SeqSet is a sequence set such as "1:*" or "4,7,9", sent verbatim
type SeqSet string

// NewSeqSet joins ids into a comma separated SeqSet
func NewSeqSet(ids ...uint32) SeqSet {
	b := strings.Builder{}
	for i, id := range ids {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return SeqSet(b.String())
}

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		}
		return b[:len(b)-1]
	}
	return b
}

func literalMarker(n int) string {
	return "{" + strconv.Itoa(n) + "}" + nl
}

// MakeIMAPLiteral generates IMAP literal syntax for non-ASCII strings.
// It returns a string in the format "{bytecount}\r\ntext" where bytecount
// is the number of bytes (not characters) in the input string.
// Example: MakeIMAPLiteral("тест") returns "{8}\r\nтест"
func MakeIMAPLiteral(s string) string {
	return literalMarker(len(s)) + s
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return true
		}
	}
	return false
}

// searchArgs splits a raw search query for the wire. Quoted strings holding
// non-ASCII text and "{n}\r\n" literals made by MakeIMAPLiteral become
// Literals; the rest is sent verbatim.
func searchArgs(query string) Joined {
	var (
		out  Joined
		atom strings.Builder
	)
	flush := func() {
		if atom.Len() > 0 {
			out = append(out, Atom(atom.String()))
			atom.Reset()
		}
	}
	for i := 0; i < len(query); {
		switch query[i] {
		case '"':
			end, text, ok := scanQuoted(query, i)
			if !ok {
				atom.WriteString(query[i:])
				i = len(query)
				continue
			}
			if hasNonASCII(text) {
				flush()
				out = append(out, Literal(text))
			} else {
				atom.WriteString(query[i:end])
			}
			i = end
		case '{':
			start, n, ok := literalAt(query, i)
			if !ok {
				atom.WriteByte('{')
				i++
				continue
			}
			flush()
			out = append(out, Literal(query[start:start+n]))
			i = start + n
		default:
			atom.WriteByte(query[i])
			i++
		}
	}
	flush()
	return out
}

// scanQuoted reads the quoted string opening at s[i], returning the index
// past its closing quote and its unescaped text
func scanQuoted(s string, i int) (end int, text string, ok bool) {
	var b strings.Builder
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if j+1 < len(s) {
				j++
				b.WriteByte(s[j])
			}
		case '"':
			return j + 1, b.String(), true
		default:
			b.WriteByte(s[j])
		}
	}
	return 0, "", false
}

// literalAt parses a "{n}\r\n" marker at s[i] followed by at least n bytes
func literalAt(s string, i int) (start, n int, ok bool) {
	end := strings.Index(s[i:], "}"+nl)
	if end < 2 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(s[i+1 : i+end])
	if err != nil || n < 0 {
		return 0, 0, false
	}
	start = i + end + len("}"+nl)
	if start+n > len(s) {
		return 0, 0, false
	}
	return start, n, true
}

// quote renders s as an IMAP quoted string
func quote(s string) string {
	return `"` + AddSlashes.Replace(s) + `"`
}

// commandWriter splits an encoded command into the chunks sent between
// literal continuations. Every chunk but the last ends with a literal marker.
type commandWriter struct {
	buf   bytes.Buffer
	parts [][]byte
}

func (w *commandWriter) literal(p []byte) {
	w.buf.WriteString(literalMarker(len(p)))
	w.parts = append(w.parts, bytes.Clone(w.buf.Bytes()))
	w.buf.Reset()
	w.buf.Write(p)
}

func (w *commandWriter) arg(v any) error {
	switch a := v.(type) {
	case nil:
		w.buf.WriteString("NIL")
	case Atom:
		w.buf.WriteString(string(a))
	case SeqSet:
		w.buf.WriteString(string(a))
	case Literal:
		w.literal(a)
	case string:
		if strings.ContainsAny(a, "\r\n") {
			w.literal([]byte(a))
		} else {
			w.buf.WriteString(quote(a))
		}
	case []string:
		w.buf.WriteByte('(')
		w.buf.WriteString(strings.Join(a, " "))
		w.buf.WriteByte(')')
	case Joined:
		for _, e := range a {
			if err := w.arg(e); err != nil {
				return err
			}
		}
	case []any:
		w.buf.WriteByte('(')
		for i, e := range a {
			if i != 0 {
				w.buf.WriteByte(' ')
			}
			if err := w.arg(e); err != nil {
				return err
			}
		}
		w.buf.WriteByte(')')
	case int:
		w.buf.WriteString(strconv.Itoa(a))
	case int64:
		w.buf.WriteString(strconv.FormatInt(a, 10))
	case uint32:
		w.buf.WriteString(strconv.FormatUint(uint64(a), 10))
	case uint64:
		w.buf.WriteString(strconv.FormatUint(a, 10))
	default:
		return fmt.Errorf("imap: cannot encode argument of type %T", v)
	}
	return nil
}

// encodeCommand renders "TAG VERB args\r\n". Strings holding a line break
// become literals; the returned parts must be sent one at a time, waiting
// for a continuation request after each part that ends in a literal marker.
func encodeCommand(tag, verb string, args []any) ([][]byte, error) {
	w := &commandWriter{}
	w.buf.WriteString(tag)
	w.buf.WriteByte(' ')
	w.buf.WriteString(verb)
	for _, a := range args {
		w.buf.WriteByte(' ')
		if err := w.arg(a); err != nil {
			return nil, err
		}
	}
	w.buf.WriteString(nl)
	return append(w.parts, bytes.Clone(w.buf.Bytes())), nil
}
