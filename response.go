package imap

import "strings"

// Status is the completion status of a tagged response
type Status string

const (
	StatusOK  Status = "OK"
	StatusNO  Status = "NO"
	StatusBAD Status = "BAD"
)

// Response is the result of one command. Data is only reachable through
// Data, which fails with a *ProtocolStatusError unless the status is OK.
type Response[T any] struct {
	Tag     string
	Command string
	Status  Status
	Text    string
	// Lines holds the untagged lines in the order the server sent them
	Lines []string

	data T
}

// NewResponse builds a response with a decoded payload
func NewResponse[T any](command string, status Status, text string, data T) *Response[T] {
	return &Response[T]{Command: command, Status: status, Text: text, data: data}
}

// OK reports whether the server completed the command with OK
func (r *Response[T]) OK() bool {
	return r != nil && r.Status == StatusOK
}

// Validate returns a *ProtocolStatusError for NO and BAD completions
func (r *Response[T]) Validate() error {
	if r == nil {
		return ErrNotConnected
	}
	if r.Status == StatusOK {
		return nil
	}
	return &ProtocolStatusError{Command: r.Command, Tag: r.Tag, Status: r.Status, Text: r.Text}
}

// Data returns the decoded payload of an OK response
func (r *Response[T]) Data() (T, error) {
	var zero T
	if err := r.Validate(); err != nil {
		return zero, err
	}
	return r.data, nil
}

// MustData is like Data but panics on a non-OK status
func (r *Response[T]) MustData() T {
	v, err := r.Data()
	if err != nil {
		panic(err)
	}
	return v
}

// transform carries the completion of r over to a response holding data
func transform[T, U any](r *Response[T], data U) *Response[U] {
	return &Response[U]{
		Tag:     r.Tag,
		Command: r.Command,
		Status:  r.Status,
		Text:    r.Text,
		Lines:   r.Lines,
		data:    data,
	}
}

// parseStatus splits the remainder of a tagged line into status and text
func parseStatus(rest string) (Status, string) {
	word, text, _ := strings.Cut(rest, " ")
	switch s := Status(strings.ToUpper(word)); s {
	case StatusOK, StatusNO, StatusBAD:
		return s, text
	}
	return StatusBAD, rest
}
