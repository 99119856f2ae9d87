// Package imaptest provides a scripted stand-in for an IMAP session so code
// built on imap.Query can be tested without a server.
package imaptest

import (
	"fmt"
	"reflect"
	"sync"

	imap "github.com/BrianLeishman/go-imap-query"
)

// Any matches any value in an argument position
var Any = anyArg{}

type anyArg struct{}

// Call is one recorded method call
type Call struct {
	Method string
	Args   []any
}

// Expectation is a scripted answer for calls matching a method and arguments
type Expectation struct {
	method string
	args   []any
	ret    any
	fn     func(args ...any) any
	err    error
	times  int
	used   int
}

// Return sets the value handed back, e.g. an *imap.Response[[]uint32] for
// Search or a uint32 for ResolveUID
func (e *Expectation) Return(v any) *Expectation {
	e.ret = v
	return e
}

// ReturnFunc computes the value from the call arguments
func (e *Expectation) ReturnFunc(fn func(args ...any) any) *Expectation {
	e.fn = fn
	return e
}

// ReturnError makes matching calls fail with err
func (e *Expectation) ReturnError(err error) *Expectation {
	e.err = err
	return e
}

// Times limits how many calls the expectation answers. 0 means unlimited.
func (e *Expectation) Times(n int) *Expectation {
	e.times = n
	return e
}

// Once is Times(1)
func (e *Expectation) Once() *Expectation {
	return e.Times(1)
}

func (e *Expectation) matches(method string, args []any) bool {
	if e.method != method {
		return false
	}
	if e.times != 0 && e.used >= e.times {
		return false
	}
	if e.args == nil {
		return true
	}
	if len(e.args) != len(args) {
		return false
	}
	for i, want := range e.args {
		if _, ok := want.(anyArg); ok {
			continue
		}
		if !reflect.DeepEqual(want, args[i]) {
			return false
		}
	}
	return true
}

// Session implements imap.Session and imap.ExtensionFetcher from scripted
// expectations. Calls without a matching expectation fail.
type Session struct {
	mu     sync.Mutex
	expect []*Expectation
	calls  []Call
	uids   map[uint32]uint32
}

var (
	_ imap.Session          = (*Session)(nil)
	_ imap.ExtensionFetcher = (*Session)(nil)
)

// New returns a session with nothing scripted
func New() *Session {
	return &Session{}
}

// On scripts calls of method. With no args every call matches; otherwise
// args are compared with reflect.DeepEqual, Any matching anything.
// Expectations are tried in the order they were added.
func (s *Session) On(method string, args ...any) *Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Expectation{method: method}
	if len(args) != 0 {
		e.args = args
	}
	s.expect = append(s.expect, e)
	return e
}

// SetUIDs makes uids[i] the UID of message i+1. UIDs, ResolveUID and
// ResolveMessageNumber answer from it when they are not scripted.
func (s *Session) SetUIDs(uids ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uids = make(map[uint32]uint32, len(uids))
	for i, uid := range uids {
		s.uids[uint32(i+1)] = uid
	}
}

// Calls returns every call made so far
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount is the number of calls made to method
func (s *Session) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Session) record(method string, args []any) *Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	for _, e := range s.expect {
		if e.matches(method, args) {
			e.used++
			return e
		}
	}
	return nil
}

func answer[T any](s *Session, method string, args ...any) (T, bool, error) {
	var zero T
	e := s.record(method, args)
	if e == nil {
		return zero, false, nil
	}
	if e.err != nil {
		return zero, true, e.err
	}
	ret := e.ret
	if e.fn != nil {
		ret = e.fn(args...)
	}
	v, ok := ret.(T)
	if !ok {
		return zero, true, fmt.Errorf("imaptest: %s must return %T, got %T", method, zero, ret)
	}
	return v, true, nil
}

func scripted[T any](s *Session, method string, args ...any) (T, error) {
	v, ok, err := answer[T](s, method, args...)
	if !ok && err == nil {
		return v, fmt.Errorf("imaptest: unexpected call %s%v", method, args)
	}
	return v, err
}

func (s *Session) Search(mode imap.SequenceMode, query string) (*imap.Response[[]uint32], error) {
	return scripted[*imap.Response[[]uint32]](s, "Search", mode, query)
}

func (s *Session) FetchFlags(ids []uint32, mode imap.SequenceMode) (*imap.Response[map[uint32][]string], error) {
	return scripted[*imap.Response[map[uint32][]string]](s, "FetchFlags", ids, mode)
}

func (s *Session) FetchHeaders(ids []uint32, mode imap.SequenceMode) (*imap.Response[map[uint32][]byte], error) {
	return scripted[*imap.Response[map[uint32][]byte]](s, "FetchHeaders", ids, mode)
}

func (s *Session) FetchContent(ids []uint32, mode imap.SequenceMode, opt imap.FetchOption) (*imap.Response[map[uint32][]byte], error) {
	return scripted[*imap.Response[map[uint32][]byte]](s, "FetchContent", ids, mode, opt)
}

func (s *Session) FetchExtensions(ids []uint32, mode imap.SequenceMode, extensions []string) (*imap.Response[map[uint32]map[string]string], error) {
	return scripted[*imap.Response[map[uint32]map[string]string]](s, "FetchExtensions", ids, mode, extensions)
}

func (s *Session) UIDs() (*imap.Response[map[uint32]uint32], error) {
	v, ok, err := answer[*imap.Response[map[uint32]uint32]](s, "UIDs")
	if ok || err != nil {
		return v, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uids == nil {
		return nil, fmt.Errorf("imaptest: unexpected call UIDs[]")
	}
	uids := make(map[uint32]uint32, len(s.uids))
	for k, v := range s.uids {
		uids[k] = v
	}
	return OK(uids), nil
}

func (s *Session) ResolveUID(msgn uint32) (uint32, error) {
	v, ok, err := answer[uint32](s, "ResolveUID", msgn)
	if ok || err != nil {
		return v, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if uid, found := s.uids[msgn]; found {
		return uid, nil
	}
	return 0, fmt.Errorf("imaptest: no message number %d", msgn)
}

func (s *Session) ResolveMessageNumber(uid uint32) (uint32, error) {
	v, ok, err := answer[uint32](s, "ResolveMessageNumber", uid)
	if ok || err != nil {
		return v, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for msgn, u := range s.uids {
		if u == uid {
			return msgn, nil
		}
	}
	return 0, fmt.Errorf("imaptest: no message with UID %d", uid)
}

// OK builds a successful response carrying data
func OK[T any](data T) *imap.Response[T] {
	return imap.NewResponse("", imap.StatusOK, "completed", data)
}

// NO builds a rejected response
func NO[T any](text string) *imap.Response[T] {
	var zero T
	return imap.NewResponse("", imap.StatusNO, text, zero)
}
