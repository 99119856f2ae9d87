package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// searchCriteria is the vocabulary Where accepts without the CUSTOM prefix
var searchCriteria = map[string]bool{
	"OR": true, "AND": true,
	"ALL": true, "ANSWERED": true, "BCC": true, "BEFORE": true, "BODY": true,
	"CC": true, "DELETED": true, "FLAGGED": true, "FROM": true, "KEYWORD": true,
	"NEW": true, "NOT": true, "OLD": true, "ON": true, "RECENT": true,
	"SEEN": true, "SINCE": true, "SUBJECT": true, "TEXT": true, "TO": true,
	"UNANSWERED": true, "UNDELETED": true, "UNFLAGGED": true, "UNKEYWORD": true,
	"UNSEEN": true, "UID": true,
}

// dateCriteria take a date value rendered with the configured date format
var dateCriteria = map[string]bool{"BEFORE": true, "ON": true, "SINCE": true}

type clause struct {
	token string
	value any
	bare  bool
}

// Pair is a criterion with a value for WhereEach
type Pair struct {
	Criteria string
	Value    any
}

// WhereQuery builds the text of a SEARCH command. The first error met by any
// builder call is kept and returned from Compile and Err.
type WhereQuery struct {
	DateFormat string

	clauses  []clause
	compiled *string
	err      error
}

// NewWhereQuery returns an empty query rendering dates with dateFormat, or
// DefaultDateFormat when it is empty
func NewWhereQuery(dateFormat string) *WhereQuery {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return &WhereQuery{DateFormat: dateFormat}
}

func (w *WhereQuery) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *WhereQuery) push(c clause) {
	w.clauses = append(w.clauses, c)
	w.compiled = nil
}

// validateCriteria upper cases criteria and checks it against the vocabulary.
// A CUSTOM prefix (any case) is stripped and the remainder used verbatim.
func validateCriteria(criteria string) (string, error) {
	criteria = strings.TrimSpace(criteria)
	n := len(customCriteriaPrefix)
	if len(criteria) >= n && strings.EqualFold(criteria[:n], customCriteriaPrefix) {
		return strings.TrimSpace(criteria[n:]), nil
	}
	criteria = strings.ToUpper(criteria)
	if !searchCriteria[criteria] {
		return "", &InvalidWhereQueryCriteriaError{Criteria: criteria}
	}
	return criteria, nil
}

// Where adds one criterion, with or without a value
func (w *WhereQuery) Where(criteria string, value ...any) *WhereQuery {
	token, err := validateCriteria(criteria)
	if err != nil {
		w.fail(err)
		return w
	}
	if len(value) == 0 || value[0] == nil {
		w.push(clause{token: token, bare: true})
		return w
	}
	if len(value) > 1 {
		w.fail(fmt.Errorf("imap search: %s takes one value, got %d", token, len(value)))
		return w
	}
	v := value[0]
	if dateCriteria[token] {
		if v, err = w.searchDate(v); err != nil {
			w.fail(err)
			return w
		}
	}
	w.push(clause{token: token, value: v})
	return w
}

// WhereEach adds every item in order. A string is a bare criterion, a Pair a
// criterion with a value, and a []any is walked recursively.
func (w *WhereQuery) WhereEach(items ...any) *WhereQuery {
	for _, item := range items {
		switch it := item.(type) {
		case string:
			w.Where(it)
		case Pair:
			w.Where(it.Criteria, it.Value)
		case []Pair:
			for _, p := range it {
				w.Where(p.Criteria, p.Value)
			}
		case []string:
			for _, s := range it {
				w.Where(s)
			}
		case []any:
			w.WhereEach(it...)
		default:
			w.fail(fmt.Errorf("imap search: unsupported criteria item %T", item))
		}
	}
	return w
}

// OrWhere adds OR, then lets fn add the clauses it combines
func (w *WhereQuery) OrWhere(fn ...func(*WhereQuery)) *WhereQuery {
	return w.scoped("OR", fn)
}

// AndWhere adds AND, then lets fn add the clauses it combines
func (w *WhereQuery) AndWhere(fn ...func(*WhereQuery)) *WhereQuery {
	return w.scoped("AND", fn)
}

func (w *WhereQuery) scoped(token string, fn []func(*WhereQuery)) *WhereQuery {
	w.push(clause{token: token, bare: true})
	for _, f := range fn {
		if f != nil {
			f(w)
		}
	}
	return w
}

// searchDate renders v with the date format. Strings are parsed with
// DefaultDateParser first.
func (w *WhereQuery) searchDate(v any) (string, error) {
	switch d := v.(type) {
	case time.Time:
		return d.Format(w.DateFormat), nil
	case *time.Time:
		if d == nil {
			return "", &MessageSearchValidationError{Value: v, Err: fmt.Errorf("nil time")}
		}
		return d.Format(w.DateFormat), nil
	case string:
		t, err := DefaultDateParser.Parse(d)
		if err != nil {
			if t, err = time.Parse(w.DateFormat, d); err != nil {
				return "", &MessageSearchValidationError{Value: v, Err: err}
			}
		}
		return t.Format(w.DateFormat), nil
	}
	return "", &MessageSearchValidationError{Value: v, Err: fmt.Errorf("unsupported type %T", v)}
}

// renderValue writes numbers and sequence sets bare and quotes everything else
func renderValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case SeqSet:
		return string(x)
	case Atom:
		return string(x)
	case string:
		if isNumeric(x) {
			return x
		}
		return quote(x)
	}
	return quote(fmt.Sprint(v))
}

var numericRE = regexp.MustCompile(`^-?[0-9]+(?:\.[0-9]+)?$`)

func isNumeric(s string) bool {
	return numericRE.MatchString(s)
}

// Compile renders the clauses as SEARCH criteria. The result is cached until
// the next clause is added.
func (w *WhereQuery) Compile() (string, error) {
	if w.err != nil {
		return "", w.err
	}
	if w.compiled != nil {
		return *w.compiled, nil
	}
	b := strings.Builder{}
	for _, c := range w.clauses {
		b.WriteString(c.token)
		if !c.bare {
			b.WriteByte(' ')
			b.WriteString(renderValue(c.value))
		}
		b.WriteByte(' ')
	}
	s := strings.TrimSpace(b.String())
	w.compiled = &s
	return s, nil
}

// Err returns the first error recorded by a builder call
func (w *WhereQuery) Err() error {
	return w.err
}

// Len is the number of queued clauses
func (w *WhereQuery) Len() int {
	return len(w.clauses)
}
