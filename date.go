package imap

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateLayouts are tried after net/mail's RFC 5322 parser
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	TimeFormat,
	"2006-01-02 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
}

// dateRepair rewrites one known malformed shape into something parseable
type dateRepair struct {
	name    string
	match   *regexp.Regexp
	rewrite func(date string, m []string) string
}

const (
	reDayMonYear = `[0-9]{1,2} [A-Z]{2,3} [0-9]{4}`
	reClock      = `[0-9]{1,2}:[0-9]{1,2}:[0-9]{1,2}`
	reOffset     = `[-+][0-9]{4}`
)

// dateRepairs is checked top to bottom and the first match wins, so the
// patterns must not overlap
var dateRepairs = []dateRepair{
	{
		// 2019.10.8-12.30.45
		name:  "dotted datetime",
		match: regexp.MustCompile(`([0-9]{4})\.([0-9]{1,2})\.([0-9]{1,2})-([0-9]{1,2})\.([0-9]{1,2})\.([0-9]{1,2})$`),
		rewrite: func(_ string, m []string) string {
			n := make([]any, 6)
			for i := range n {
				n[i], _ = strconv.Atoi(m[i+1])
			}
			return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", n...)
		},
	},
	{
		// 08 OCT 2019 12:30:45 +0200 08:30:45 +0000
		name:    "doubled offset",
		match:   regexp.MustCompile(`(?i)[0-9]{2} [A-Z]{3} [0-9]{4} ` + reClock + ` [-+][0-9]{1,4} ` + reClock + ` [-+][0-9]{1,4}$`),
		rewrite: func(date string, _ []string) string { return dropFields(date, 2) },
	},
	{
		// Thur, 8 Oct 2019 12:30:45 +0200
		name:    "weekday before comma",
		match:   regexp.MustCompile(`(?i)[A-Z]{2,4}, ` + reDayMonYear + ` ` + reClock + ` ` + reOffset + `$`),
		rewrite: func(date string, _ []string) string { return afterComma(date) },
	},
	{
		// 01 Jan 2020 00:00:00 UT
		name:    "UT suffix",
		match:   regexp.MustCompile(`(?i)(?:[A-Z]{2,3}, )?` + reDayMonYear + ` ` + reClock + ` UT$`),
		rewrite: func(date string, _ []string) string { return date + "C" },
	},
	{
		// Tue, 08, Oct 2019 12:30:45 +0200
		name:    "comma after day",
		match:   regexp.MustCompile(`(?i)[A-Z]{2,3}, [0-9]{1,2}, [A-Z]{2,3} [0-9]{4} ` + reClock + ` ` + reOffset + `$`),
		rewrite: func(date string, _ []string) string { return dayComma.ReplaceAllString(date, "$1") },
	},
	{
		// Di., 15 Feb. 2022 06:52:44 +0100 (MEZ)/Di., 15 Feb. 2022 06:52:44 +0100 (MEZ)
		name: "slash duplicated with zone name",
		match: regexp.MustCompile(`(?i)[A-Z]{2,3}\., [0-9]{1,2} [A-Z]{2,3}\. [0-9]{4} ` + reClock + ` ` + reOffset + ` \([A-Z]{3,4}\)` +
			`/[A-Z]{2,3}\., [0-9]{1,2} [A-Z]{2,3}\. [0-9]{4} ` + reClock + ` ` + reOffset + ` \([A-Z]{3,4}\)$`),
		rewrite: func(date string, _ []string) string {
			first, _, _ := strings.Cut(date, "/")
			return undotMonth(dropFields(afterComma(first), 1))
		},
	},
	{
		// fr., 25 nov. 2022 06:27:14 +0100/fr., 25 nov. 2022 06:27:14 +0100
		name: "slash duplicated",
		match: regexp.MustCompile(`(?i)[A-Z]{2,3}\., [0-9]{1,2} [A-Z]{2,3}\. [0-9]{4} ` + reClock + ` ` + reOffset +
			`/[A-Z]{2,3}\., [0-9]{1,2} [A-Z]{2,3}\. [0-9]{4} ` + reClock + ` ` + reOffset + `$`),
		rewrite: func(date string, _ []string) string {
			first, _, _ := strings.Cut(date, "/")
			return undotMonth(afterComma(first))
		},
	},
	{
		// Tue, 08 Oct 2019 12:30:45 +0200 (+02), Tue, 08 Oct 2019 12:30:45 +0200 (CEST)
		// 8 Oct 2019 12:30:45 PM -05:00 (EST -05:00)
		name: "bracketed zone",
		match: regexp.MustCompile(`(?i)(?:[A-Z]{2,3}[, ] ?` + reDayMonYear + ` ` + reClock + `.*\(.*\)` +
			`|[0-9]{1,2} [A-Z]{2,3} [0-9]{2,4} [0-9]{2}:[0-9]{2}:[0-9]{2} [A-Z]{2} -[0-9]{2}:[0-9]{2} \([A-Z]{2,3} -[0-9]{2}:[0-9]{2}\))$`),
		rewrite: func(date string, _ []string) string {
			before, _, _ := strings.Cut(date, "(")
			return strings.TrimSpace(before)
		},
	},
}

var (
	monthDot = regexp.MustCompile(`(?i)\b([A-Z]{3})\.`)
	dayComma = regexp.MustCompile(`( [0-9]{1,2}),`)
)

func undotMonth(s string) string {
	return monthDot.ReplaceAllString(s, "$1")
}

func dropFields(s string, n int) string {
	f := strings.Fields(s)
	if len(f) <= n {
		return s
	}
	return strings.Join(f[:len(f)-n], " ")
}

func afterComma(s string) string {
	_, rest, ok := strings.Cut(s, ",")
	if !ok {
		return s
	}
	return strings.TrimSpace(rest)
}

// DateParser turns the Date header of real world mail into a time. Input
// that no standard parser accepts is run through a table of repairs for
// shapes seen in the wild.
type DateParser struct {
	// Loose enables the dateparse fallback on the repaired string
	Loose bool
}

// DefaultDateParser is the parser message construction uses
var DefaultDateParser = DateParser{Loose: true}

// Parse parses raw, repairing it if needed
func (p DateParser) Parse(raw string) (time.Time, error) {
	date := strings.TrimSpace(raw)
	date = strings.ReplaceAll(date, "+0580", "+0530")
	date = strings.ReplaceAll(date, "&nbsp;", " ")
	if date == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, ok := parseStrict(date); ok {
		return t, nil
	}

	for _, r := range dateRepairs {
		if m := r.match.FindStringSubmatch(date); m != nil {
			date = r.rewrite(date, m)
			break
		}
	}

	if t, ok := parseStrict(date); ok {
		return t, nil
	}
	if p.Loose {
		if t, err := dateparse.ParseAny(date); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseStrict(date string) (time.Time, bool) {
	if t, err := mail.ParseDate(date); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
