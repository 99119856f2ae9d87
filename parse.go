package imap

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Token represents a parsed IMAP token
type Token struct {
	Type   TType
	Str    string
	Num    int
	Tokens []*Token
}

// TType represents the type of an IMAP token
type TType uint8

// TAtom carries the data of a {n} literal, TLiteral a bare word
const (
	TUnset TType = iota
	TAtom
	TNumber
	TLiteral
	TQuoted
	TNil
	TContainer
)

// FetchRecord is one "* n FETCH (...)" line
type FetchRecord struct {
	Seq    uint32
	Tokens []*Token
}

// Get returns the value following key, matching key case-insensitively
func (r FetchRecord) Get(key string) *Token {
	for i := 0; i+1 < len(r.Tokens); i += 2 {
		t := r.Tokens[i]
		if t.Type == TLiteral && strings.EqualFold(t.Str, key) {
			return r.Tokens[i+1]
		}
	}
	return nil
}

// calculateTokenEnd calculates the end position of a literal token based on size and buffer constraints
func calculateTokenEnd(tokenStart, sizeVal, bufferLen int) (int, error) {
	switch {
	case tokenStart >= bufferLen:
		if sizeVal == 0 {
			return tokenStart - 1, nil
		}
		return 0, fmt.Errorf("TAtom: literal size %d but tokenStart %d is at/past end of buffer %d", sizeVal, tokenStart, bufferLen)
	case tokenStart+sizeVal > bufferLen:
		// short literal, take what is there
		return bufferLen - 1, nil
	default:
		return tokenStart + sizeVal - 1, nil
	}
}

func wordToken(s string) *Token {
	if n, err := strconv.Atoi(s); err == nil {
		return &Token{Type: TNumber, Num: n}
	}
	if s == "NIL" {
		return &Token{Type: TNil}
	}
	return &Token{Type: TLiteral, Str: s}
}

// parseFetchTokens parses a parenthesized IMAP data list into tokens. A
// single outer container is unwrapped.
func parseFetchTokens(r string) ([]*Token, error) {
	root := make([]*Token, 0)
	stack := []*[]*Token{&root}
	push := func(t *Token) {
		top := stack[len(stack)-1]
		*top = append(*top, t)
	}

	for i := 0; i < len(r); {
		b := r[i]
		switch {
		case b == '"':
			j := i + 1
			for j < len(r) && r[j] != '"' {
				if r[j] == '\\' {
					j++
				}
				j++
			}
			push(&Token{Type: TQuoted, Str: RemoveSlashes.Replace(r[i+1 : min(j, len(r))])})
			i = j + 1
		case b == '{':
			j := i + 1
			for j < len(r) && unicode.IsDigit(rune(r[j])) {
				j++
			}
			size, err := strconv.Atoi(r[i+1 : j])
			if err != nil {
				return nil, fmt.Errorf("TAtom size Atoi failed for '%s': %w", r[i+1:j], err)
			}
			j++
			if j < len(r) && r[j] == '\r' {
				j++
			}
			if j < len(r) && r[j] == '\n' {
				j++
			}
			end, err := calculateTokenEnd(j, size, len(r))
			if err != nil {
				return nil, err
			}
			push(&Token{Type: TAtom, Str: r[j : end+1]})
			i = end + 1
		case b == '(':
			t := &Token{Type: TContainer, Tokens: make([]*Token, 0, 1)}
			push(t)
			stack = append(stack, &t.Tokens)
			i++
		case b == ')':
			if len(stack) == 1 {
				return nil, fmt.Errorf("unmatched ')' at char %d in %s", i, r)
			}
			stack = stack[:len(stack)-1]
			i++
		case IsLiteral(rune(b)):
			j := i
			for j < len(r) && IsLiteral(rune(r[j])) {
				j++
			}
			push(wordToken(r[i:j]))
			i = j
		default:
			i++
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("mismatched parentheses, depth %d at end of parsing %s", len(stack)-1, r)
	}
	if len(root) == 1 && root[0].Type == TContainer {
		root = root[0].Tokens
	}
	return root, nil
}

// parseUntagged splits "* 12 FETCH (...)" into (12, "FETCH", "(...)") and
// "* SEARCH 1 2" into (0, "SEARCH", "1 2")
func parseUntagged(line string) (num uint32, kind, rest string, ok bool) {
	line, ok = strings.CutPrefix(line, "* ")
	if !ok {
		return 0, "", "", false
	}
	kind, rest, _ = strings.Cut(line, " ")
	if n, err := strconv.ParseUint(kind, 10, 32); err == nil {
		num = uint32(n)
		kind, rest, _ = strings.Cut(rest, " ")
	}
	return num, strings.ToUpper(kind), rest, true
}

// parseFetchLines tokenizes every FETCH line in an untagged response
func parseFetchLines(lines []string) ([]FetchRecord, error) {
	records := make([]FetchRecord, 0, len(lines))
	for _, line := range lines {
		seq, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "FETCH" {
			continue
		}
		tks, err := parseFetchTokens(rest)
		if err != nil {
			return nil, fmt.Errorf("unable to parse FETCH line %q: %w", line, err)
		}
		for len(tks) == 1 && tks[0].Type == TContainer {
			tks = tks[0].Tokens
		}
		records = append(records, FetchRecord{Seq: seq, Tokens: tks})
	}
	return records, nil
}

// parseSearchLines collects the ids of every "* SEARCH" line
func parseSearchLines(lines []string) ([]uint32, error) {
	ids := make([]uint32, 0)
	for _, line := range lines {
		_, kind, rest, ok := parseUntagged(line)
		if !ok || kind != "SEARCH" {
			continue
		}
		for _, f := range strings.Fields(rest) {
			if strings.HasPrefix(f, "(") {
				// trailing (MODSEQ n) from CONDSTORE servers
				break
			}
			id, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid SEARCH id %q: %w", f, err)
			}
			ids = append(ids, uint32(id))
		}
	}
	return ids, nil
}

// IsLiteral reports whether b can appear in a bare word
func IsLiteral(b rune) bool {
	switch b {
	case '(', ')', '{', '}', '"':
		return false
	}
	return b > ' ' && b != 0x7f
}

// GetTokenName returns the string name of a token type
func GetTokenName(tokenType TType) string {
	switch tokenType {
	case TUnset:
		return "TUnset"
	case TAtom:
		return "TAtom"
	case TNumber:
		return "TNumber"
	case TLiteral:
		return "TLiteral"
	case TQuoted:
		return "TQuoted"
	case TNil:
		return "TNil"
	case TContainer:
		return "TContainer"
	}
	return ""
}

// String returns a string representation of a Token
func (t Token) String() string {
	tokenType := GetTokenName(t.Type)
	switch t.Type {
	case TUnset, TNil:
		return tokenType
	case TAtom, TQuoted:
		return fmt.Sprintf("(%s, len %d, chars %d %#v)", tokenType, len(t.Str), len([]rune(t.Str)), t.Str)
	case TNumber:
		return fmt.Sprintf("(%s %d)", tokenType, t.Num)
	case TLiteral:
		return fmt.Sprintf("(%s %s)", tokenType, t.Str)
	case TContainer:
		return fmt.Sprintf("(%s children: %s)", tokenType, t.Tokens)
	}
	return ""
}

// text returns the string value of an atom, quoted, literal or NIL token
func (t *Token) text() string {
	if t == nil {
		return ""
	}
	switch t.Type {
	case TNumber:
		return strconv.Itoa(t.Num)
	case TNil:
		return ""
	}
	return t.Str
}

// checkType validates that a token is one of the acceptable types
func checkType(token *Token, acceptableTypes []TType, tks []*Token, loc string, v ...any) error {
	if token != nil {
		for _, a := range acceptableTypes {
			if token.Type == a {
				return nil
			}
		}
	}
	names := make([]string, len(acceptableTypes))
	for i, a := range acceptableTypes {
		names[i] = GetTokenName(a)
	}
	return fmt.Errorf("expected %s token %s, got %+v in %v", strings.Join(names, "|"), fmt.Sprintf(loc, v...), token, tks)
}
