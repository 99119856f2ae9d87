package imap

import (
	"strings"
	"time"
)

// String replacers for escaping/unescaping quoted strings
var (
	AddSlashes    = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\\`, `\`, `\"`, `"`)
)

const (
	nl = "\r\n"

	// TimeFormat is the INTERNALDATE / APPEND date-time layout
	TimeFormat = "_2-Jan-2006 15:04:05 -0700"

	// DefaultDateFormat renders dates inside SEARCH criteria
	DefaultDateFormat = "02-Jan-2006"

	DefaultPort    = 993
	DefaultTimeout = 30 * time.Second

	// customCriteriaPrefix lets raw criteria bypass vocabulary validation
	customCriteriaPrefix = "CUSTOM "
)
