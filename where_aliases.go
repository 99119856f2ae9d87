package imap

import (
	"fmt"
	"strings"
	"time"
)

type whereAlias func(w *WhereQuery, args ...any) *WhereQuery

// bareAlias is a criterion that takes no value
func bareAlias(criteria string) whereAlias {
	return func(w *WhereQuery, args ...any) *WhereQuery {
		if len(args) != 0 {
			w.fail(fmt.Errorf("imap search: %s takes no value", criteria))
			return w
		}
		return w.Where(criteria)
	}
}

// valueAlias is a criterion that takes exactly one value
func valueAlias(criteria string) whereAlias {
	return func(w *WhereQuery, args ...any) *WhereQuery {
		if len(args) != 1 {
			w.fail(fmt.Errorf("imap search: %s takes one value, got %d", criteria, len(args)))
			return w
		}
		return w.Where(criteria, args[0])
	}
}

func stringArg(name string, fn func(w *WhereQuery, s string) *WhereQuery) whereAlias {
	return func(w *WhereQuery, args ...any) *WhereQuery {
		if len(args) != 1 {
			w.fail(fmt.Errorf("imap search: %s takes one value, got %d", name, len(args)))
			return w
		}
		s, ok := args[0].(string)
		if !ok {
			w.fail(fmt.Errorf("imap search: %s takes a string, got %T", name, args[0]))
			return w
		}
		return fn(w, s)
	}
}

// whereAliases maps lower cased alias names to clause builders. Apply
// resolves "whereNot<X>" by pushing NOT and delegating to "where<X>".
var whereAliases map[string]whereAlias

func init() {
	whereAliases = map[string]whereAlias{
		"whereall":        bareAlias("ALL"),
		"wherenot":        bareAlias("NOT"),
		"whereanswered":   bareAlias("ANSWERED"),
		"wheredeleted":    bareAlias("DELETED"),
		"whereflagged":    bareAlias("FLAGGED"),
		"wherenew":        bareAlias("NEW"),
		"whereold":        bareAlias("OLD"),
		"whererecent":     bareAlias("RECENT"),
		"whereseen":       bareAlias("SEEN"),
		"whereunanswered": bareAlias("UNANSWERED"),
		"whereundeleted":  bareAlias("UNDELETED"),
		"whereunflagged":  bareAlias("UNFLAGGED"),
		"whereunseen":     bareAlias("UNSEEN"),
		"wherenoxspam":    bareAlias("CUSTOM HEADER X-Spam-Flag NO"),
		"whereisxspam":    bareAlias("CUSTOM HEADER X-Spam-Flag YES"),

		"wherebcc":       valueAlias("BCC"),
		"wherebefore":    valueAlias("BEFORE"),
		"wherebody":      valueAlias("BODY"),
		"wherecc":        valueAlias("CC"),
		"wherefrom":      valueAlias("FROM"),
		"wherekeyword":   valueAlias("KEYWORD"),
		"whereon":        valueAlias("ON"),
		"wheresince":     valueAlias("SINCE"),
		"wheresubject":   valueAlias("SUBJECT"),
		"wheretext":      valueAlias("TEXT"),
		"whereto":        valueAlias("TO"),
		"whereunkeyword": valueAlias("UNKEYWORD"),
		"whereuid":       valueAlias("UID"),

		"wheremessageid": stringArg("whereMessageId", (*WhereQuery).WhereMessageID),
		"whereinreplyto": stringArg("whereInReplyTo", (*WhereQuery).WhereInReplyTo),
		"wherelanguage":  stringArg("whereLanguage", (*WhereQuery).WhereLanguage),
	}
}

// Apply calls the builder registered under alias, e.g. "whereUnseen" or
// "whereFrom". Aliases starting with "whereNot" push NOT and then call the
// positive alias.
func (w *WhereQuery) Apply(alias string, args ...any) *WhereQuery {
	name := strings.ToLower(alias)
	if fn, ok := whereAliases[name]; ok {
		return fn(w, args...)
	}
	if rest, ok := strings.CutPrefix(name, "wherenot"); ok {
		if fn, ok := whereAliases["where"+rest]; ok {
			w.Where("NOT")
			return fn(w, args...)
		}
	}
	w.fail(&InvalidWhereQueryCriteriaError{Criteria: alias})
	return w
}

func (w *WhereQuery) WhereAll() *WhereQuery    { return w.Where("ALL") }
func (w *WhereQuery) WhereSeen() *WhereQuery   { return w.Where("SEEN") }
func (w *WhereQuery) WhereUnseen() *WhereQuery { return w.Where("UNSEEN") }

func (w *WhereQuery) WhereFlagged() *WhereQuery { return w.Where("FLAGGED") }

// WhereNot negates the clause added next
func (w *WhereQuery) WhereNot() *WhereQuery { return w.Where("NOT") }

func (w *WhereQuery) WhereFrom(from string) *WhereQuery       { return w.Where("FROM", from) }
func (w *WhereQuery) WhereTo(to string) *WhereQuery           { return w.Where("TO", to) }
func (w *WhereQuery) WhereCC(cc string) *WhereQuery           { return w.Where("CC", cc) }
func (w *WhereQuery) WhereBCC(bcc string) *WhereQuery         { return w.Where("BCC", bcc) }
func (w *WhereQuery) WhereSubject(subject string) *WhereQuery { return w.Where("SUBJECT", subject) }
func (w *WhereQuery) WhereBody(body string) *WhereQuery       { return w.Where("BODY", body) }
func (w *WhereQuery) WhereText(text string) *WhereQuery       { return w.Where("TEXT", text) }
func (w *WhereQuery) WhereKeyword(k string) *WhereQuery       { return w.Where("KEYWORD", k) }

func (w *WhereQuery) WhereSince(t time.Time) *WhereQuery  { return w.Where("SINCE", t) }
func (w *WhereQuery) WhereBefore(t time.Time) *WhereQuery { return w.Where("BEFORE", t) }
func (w *WhereQuery) WhereOn(t time.Time) *WhereQuery     { return w.Where("ON", t) }

// WhereUID matches a single UID
func (w *WhereQuery) WhereUID(uid uint32) *WhereQuery { return w.Where("UID", uid) }

// WhereUIDIn matches any of uids
func (w *WhereQuery) WhereUIDIn(uids ...uint32) *WhereQuery {
	if len(uids) == 0 {
		w.fail(fmt.Errorf("imap search: UID needs at least one id"))
		return w
	}
	return w.Where("UID", NewSeqSet(uids...))
}

// WhereHeader matches messages whose header name contains value
func (w *WhereQuery) WhereHeader(name, value string) *WhereQuery {
	return w.Where(customCriteriaPrefix+"HEADER "+name, value)
}

func (w *WhereQuery) WhereMessageID(id string) *WhereQuery {
	return w.WhereHeader("Message-ID", id)
}

func (w *WhereQuery) WhereInReplyTo(id string) *WhereQuery {
	return w.WhereHeader("In-Reply-To", id)
}

func (w *WhereQuery) WhereNoXSpam() *WhereQuery {
	return w.Where(customCriteriaPrefix + "HEADER X-Spam-Flag NO")
}

func (w *WhereQuery) WhereIsXSpam() *WhereQuery {
	return w.Where(customCriteriaPrefix + "HEADER X-Spam-Flag YES")
}

// WhereLanguage matches on the Content-Language header
func (w *WhereQuery) WhereLanguage(code string) *WhereQuery {
	return w.WhereHeader("Content-Language", code)
}
