package imap

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed matches every ConnectionFailedError
	ErrConnectionFailed = errors.New("imap: connection failed")
	// ErrNotConnected is returned when a command is issued on a closed session
	ErrNotConnected = errors.New("imap: not connected")
	// ErrIdling is returned when a command other than DONE is issued while idling
	ErrIdling = errors.New("imap: connection is idling, only DONE is allowed")
	// ErrGetMessagesFailed matches every GetMessagesFailedError
	ErrGetMessagesFailed = errors.New("imap: get messages failed")
)

// ConnectionFailedError reports a transport level failure: open, greeting,
// TLS, proxy, timeout, or a stream that ended before the tagged completion.
// It is fatal for the session and never retried internally.
type ConnectionFailedError struct {
	Op  string
	Err error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("imap %s: connection failed", e.Op)
	}
	return fmt.Sprintf("imap %s: connection failed: %s", e.Op, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error { return e.Err }

func (e *ConnectionFailedError) Is(target error) bool { return target == ErrConnectionFailed }

func connectionFailed(op string, err error) error {
	var cf *ConnectionFailedError
	if errors.As(err, &cf) {
		return err
	}
	return &ConnectionFailedError{Op: op, Err: err}
}

// ProtocolStatusError is a NO or BAD completion returned by the server
type ProtocolStatusError struct {
	Command string
	Tag     string
	Status  Status
	Text    string
}

func (e *ProtocolStatusError) Error() string {
	return fmt.Sprintf("imap command failed: %s %s %s", e.Command, e.Status, e.Text)
}

// MessageSearchValidationError is returned when a search date cannot be normalized
type MessageSearchValidationError struct {
	Value any
	Err   error
}

func (e *MessageSearchValidationError) Error() string {
	return fmt.Sprintf("imap search: invalid date value %v: %v", e.Value, e.Err)
}

func (e *MessageSearchValidationError) Unwrap() error { return e.Err }

// InvalidWhereQueryCriteriaError is returned for search criteria outside the
// known vocabulary that do not use the CUSTOM prefix
type InvalidWhereQueryCriteriaError struct {
	Criteria string
}

func (e *InvalidWhereQueryCriteriaError) Error() string {
	return fmt.Sprintf("imap search: invalid criteria %q", e.Criteria)
}

// GetMessagesFailedError wraps failures during search, fetch and populate
type GetMessagesFailedError struct {
	Err error
}

func (e *GetMessagesFailedError) Error() string {
	return fmt.Sprintf("imap: failed to get messages: %s", e.Err)
}

func (e *GetMessagesFailedError) Unwrap() error { return e.Err }

func (e *GetMessagesFailedError) Is(target error) bool { return target == ErrGetMessagesFailed }

// FlagParseError is a per-message failure decoding the FLAGS list
type FlagParseError struct {
	ID   uint32
	Flag string
}

func (e *FlagParseError) Error() string {
	return fmt.Sprintf("imap message %d: invalid flag %q", e.ID, e.Flag)
}

// InvalidMessageDateError is a per-message failure parsing the Date header
type InvalidMessageDateError struct {
	ID   uint32
	Date string
	Err  error
}

func (e *InvalidMessageDateError) Error() string {
	return fmt.Sprintf("imap message %d: invalid date %q: %v", e.ID, e.Date, e.Err)
}

func (e *InvalidMessageDateError) Unwrap() error { return e.Err }

// ContentFetchError is a per-message failure reading the message content
type ContentFetchError struct {
	ID  uint32
	Err error
}

func (e *ContentFetchError) Error() string {
	return fmt.Sprintf("imap message %d: content could not be read: %v", e.ID, e.Err)
}

func (e *ContentFetchError) Unwrap() error { return e.Err }
