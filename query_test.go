package imap_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	imap "github.com/BrianLeishman/go-imap-query"
	"github.com/BrianLeishman/go-imap-query/imaptest"
)

const goodDate = "Tue, 05 Mar 2024 10:00:00 +0000"

func header(id uint32, date string) []byte {
	return fmt.Appendf(nil, "From: John Doe <john@example.com>\r\n"+
		"Subject: message %d\r\n"+
		"Message-ID: <%d@example.com>\r\n"+
		"Date: %s\r\n\r\n", id, id, date)
}

// mailbox scripts a session holding UIDs 101..105 whose headers come from
// dates, keyed by UID
func mailbox(t *testing.T, dates map[uint32]string) *imaptest.Session {
	t.Helper()
	s := imaptest.New()
	s.SetUIDs(101, 102, 103, 104, 105)
	s.On("Search", imap.SequenceUID, "ALL").Return(imaptest.OK([]uint32{101, 102, 103, 104, 105}))
	s.On("FetchFlags").ReturnFunc(func(args ...any) any {
		flags := map[uint32][]string{}
		for _, id := range args[0].([]uint32) {
			flags[id] = []string{`\Seen`}
		}
		return imaptest.OK(flags)
	})
	s.On("FetchHeaders").ReturnFunc(func(args ...any) any {
		headers := map[uint32][]byte{}
		for _, id := range args[0].([]uint32) {
			date, ok := dates[id]
			if !ok {
				date = goodDate
			}
			headers[id] = header(id, date)
		}
		return imaptest.OK(headers)
	})
	s.On("FetchContent").ReturnFunc(func(args ...any) any {
		content := map[uint32][]byte{}
		for _, id := range args[0].([]uint32) {
			content[id] = fmt.Appendf(nil, "body of %d\r\n", id)
		}
		return imaptest.OK(content)
	})
	return s
}

func options() imap.Options {
	opts := imap.DefaultOptions()
	opts.FetchBody = false
	return opts
}

func fetchedIDs(s *imaptest.Session, method string) [][]uint32 {
	var out [][]uint32
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c.Args[0].([]uint32))
		}
	}
	return out
}

func TestQueryFetchOrder(t *testing.T) {
	tests := []struct {
		order imap.Order
		page  int
		want  []uint32
	}{
		{imap.OrderAsc, 1, []uint32{101, 102}},
		{imap.OrderDesc, 1, []uint32{105, 104}},
		{imap.OrderDesc, 3, []uint32{101}},
		{imap.OrderAsc, 4, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s page %d", tt.order, tt.page), func(t *testing.T) {
			s := mailbox(t, nil)
			q := imap.NewQuery(s, options()).SetFetchOrder(tt.order).Limit(2, tt.page)
			res, err := q.Fetch([]uint32{101, 102, 103, 104, 105})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(res.IDs, tt.want) {
				t.Errorf("ids = %v, want %v", res.IDs, tt.want)
			}
			if tt.want == nil && s.CallCount("FetchHeaders") != 0 {
				t.Error("empty page should not fetch")
			}
		})
	}
}

func TestQueryGet(t *testing.T) {
	s := mailbox(t, nil)
	msgs, err := imap.NewQuery(s, options()).Get()
	if err != nil {
		t.Fatal(err)
	}
	if msgs.Len() != 5 || msgs.Total != 5 {
		t.Fatalf("len %d total %d", msgs.Len(), msgs.Total)
	}
	m, ok := msgs.Get("2")
	if !ok {
		t.Fatalf("keys = %v", msgs.Keys())
	}
	if m.UID != 103 || m.Msgn != 3 || m.Subject != "message 103" {
		t.Errorf("message = %+v", m)
	}
	if len(m.From) != 1 || m.From[0].Email() != "john@example.com" {
		t.Errorf("from = %v", m.From)
	}
	if !m.HasFlag(`\seen`) {
		t.Errorf("flags = %v", m.Flags)
	}
	if s.CallCount("Search") != 1 || s.CallCount("FetchContent") != 0 {
		t.Errorf("calls = %+v", s.Calls())
	}
}

func TestQueryChunk(t *testing.T) {
	s := mailbox(t, nil)
	q := imap.NewQuery(s, options()).Limit(10, 1)

	var sizes, pages []int
	err := q.Chunk(func(msgs *imap.MessageCollection, page int) error {
		sizes = append(sizes, msgs.Len())
		pages = append(pages, page)
		return nil
	}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sizes, []int{2, 2, 1}) || !reflect.DeepEqual(pages, []int{1, 2, 3}) {
		t.Errorf("sizes %v pages %v", sizes, pages)
	}
	if s.CallCount("Search") != 1 {
		t.Errorf("search issued %d times", s.CallCount("Search"))
	}
	want := [][]uint32{{101, 102}, {103, 104}, {105}}
	if got := fetchedIDs(s, "FetchHeaders"); !reflect.DeepEqual(got, want) {
		t.Errorf("fetched %v, want %v", got, want)
	}

	// limit and page are restored
	res, err := q.Fetch([]uint32{1, 2, 3})
	if err != nil || len(res.IDs) != 3 {
		t.Errorf("after chunk: %v %v", res, err)
	}
}

func TestQueryChunkStartPastEnd(t *testing.T) {
	s := mailbox(t, nil)
	called := false
	err := imap.NewQuery(s, options()).Chunk(func(*imap.MessageCollection, int) error {
		called = true
		return nil
	}, 2, 4)
	if err != nil || called {
		t.Errorf("err %v called %v", err, called)
	}
}

func TestQueryChunkAllFailing(t *testing.T) {
	s := mailbox(t, nil)
	q := imap.NewQuery(s, options()).SoftFail(true)
	q.SetBuilder(imap.MessageBuilderFunc(func(in imap.MessageInput) (*imap.Message, error) {
		return nil, &imap.ContentFetchError{ID: in.ID, Err: errors.New("broken")}
	}))
	calls := 0
	err := q.Chunk(func(msgs *imap.MessageCollection, page int) error {
		calls++
		return nil
	}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 || len(q.Errors()) != 5 {
		t.Errorf("calls %d errors %d", calls, len(q.Errors()))
	}
}

func TestQuerySoftFail(t *testing.T) {
	dates := map[uint32]string{103: "garbage"}

	t.Run("disabled", func(t *testing.T) {
		_, err := imap.NewQuery(mailbox(t, dates), options()).Get()
		if !errors.Is(err, imap.ErrGetMessagesFailed) {
			t.Fatalf("error = %v", err)
		}
		var derr *imap.InvalidMessageDateError
		if !errors.As(err, &derr) || derr.ID != 103 {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		q := imap.NewQuery(mailbox(t, dates), options()).SoftFail(true)
		msgs, err := q.Get()
		if err != nil {
			t.Fatal(err)
		}
		if msgs.Len() != 4 {
			t.Errorf("got %d messages", msgs.Len())
		}
		if !q.HasErrors() || q.Error(103) == nil || q.Error(101) != nil {
			t.Errorf("errors = %v", q.Errors())
		}
	})
}

func TestQuerySearchFailure(t *testing.T) {
	s := imaptest.New()
	s.On("Search").Return(imaptest.NO[[]uint32]("mailbox gone"))
	_, err := imap.NewQuery(s, options()).Where("UNSEEN").Get()
	if !errors.Is(err, imap.ErrGetMessagesFailed) {
		t.Fatalf("error = %v", err)
	}
	var perr *imap.ProtocolStatusError
	if !errors.As(err, &perr) || perr.Text != "mailbox gone" {
		t.Errorf("error = %v", err)
	}
	if got := s.Calls()[0].Args[1]; got != "UNSEEN" {
		t.Errorf("search text = %v", got)
	}
}

func TestQueryInvalidCriteria(t *testing.T) {
	s := imaptest.New()
	_, err := imap.NewQuery(s, options()).Where("SEEN").Where("BOGUS").Get()
	var ierr *imap.InvalidWhereQueryCriteriaError
	if !errors.As(err, &ierr) {
		t.Fatalf("error = %v", err)
	}
	if len(s.Calls()) != 0 {
		t.Error("invalid query reached the session")
	}
}

func TestQueryExtensions(t *testing.T) {
	s := mailbox(t, nil)
	s.On("FetchExtensions", imaptest.Any, imap.SequenceUID, []string{"X-GM-LABELS", "UID"}).ReturnFunc(func(args ...any) any {
		ext := map[uint32]map[string]string{}
		for _, id := range args[0].([]uint32) {
			ext[id] = map[string]string{"X-GM-LABELS": "Inbox"}
		}
		return imaptest.OK(ext)
	})
	msgs, err := imap.NewQuery(s, options()).SetExtensions("X-GM-LABELS").Limit(1, 1).Get()
	if err != nil {
		t.Fatal(err)
	}
	m, _ := msgs.Get("0")
	if got := m.Header.String("x-gm-labels"); got != "Inbox" {
		t.Errorf("label = %q", got)
	}
}

func TestQueryMessageKey(t *testing.T) {
	tests := []struct {
		key  imap.KeyStrategy
		want []string
	}{
		{imap.KeyByList, []string{"0", "1", "2", "3", "4"}},
		{imap.KeyByUID, []string{"101", "102", "103", "104", "105"}},
		{imap.KeyByNumber, []string{"1", "2", "3", "4", "5"}},
		{imap.KeyByMessageID, []string{"101@example.com", "102@example.com", "103@example.com", "104@example.com", "105@example.com"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			msgs, err := imap.NewQuery(mailbox(t, nil), options()).SetMessageKey(tt.key).Get()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(msgs.Keys(), tt.want) {
				t.Errorf("keys = %v", msgs.Keys())
			}
		})
	}
}

func TestQueryPaginate(t *testing.T) {
	p, err := imap.NewQuery(mailbox(t, nil), options()).Paginate(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 5 || p.CurrentPage != 3 || p.LastPage() != 3 || p.Items.Len() != 1 || p.HasMorePages() {
		t.Errorf("paginator = %+v", p)
	}
}

func TestQueryGetByUID(t *testing.T) {
	tests := []struct {
		name string
		get  func(q *imap.Query) (*imap.MessageCollection, error)
		want []uint32
	}{
		{"greater", func(q *imap.Query) (*imap.MessageCollection, error) { return q.GetByUIDGreater(103) }, []uint32{104, 105}},
		{"greater or equal", func(q *imap.Query) (*imap.MessageCollection, error) { return q.GetByUIDGreaterOrEqual(104) }, []uint32{104, 105}},
		{"lower", func(q *imap.Query) (*imap.MessageCollection, error) { return q.GetByUIDLower(102) }, []uint32{101}},
		{"lower or equal", func(q *imap.Query) (*imap.MessageCollection, error) { return q.GetByUIDLowerOrEqual(102) }, []uint32{101, 102}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mailbox(t, nil)
			msgs, err := tt.get(imap.NewQuery(s, options()))
			if err != nil {
				t.Fatal(err)
			}
			if msgs.Len() != len(tt.want) {
				t.Errorf("got %d messages", msgs.Len())
			}
			if got := fetchedIDs(s, "FetchFlags"); len(got) != 1 || !reflect.DeepEqual(got[0], tt.want) {
				t.Errorf("fetched %v, want %v", got, tt.want)
			}
			if s.CallCount("Search") != 0 {
				t.Error("filtering by UID should not search")
			}
		})
	}
}

func lastCall(s *imaptest.Session, method string) imaptest.Call {
	var last imaptest.Call
	for _, c := range s.Calls() {
		if c.Method == method {
			last = c
		}
	}
	return last
}

func TestQueryGetMessage(t *testing.T) {
	s := mailbox(t, nil)
	opts := imap.DefaultOptions()
	m, err := imap.NewQuery(s, opts).GetMessage(104)
	if err != nil {
		t.Fatal(err)
	}
	if m.UID != 104 || m.Msgn != 4 || !strings.Contains(m.Text, "body of 104") {
		t.Errorf("message = %+v", m)
	}
	if c := lastCall(s, "FetchContent"); c.Args[2] != imap.FetchPeek {
		t.Errorf("content fetched with %v", c.Args[2])
	}

	s = mailbox(t, nil)
	m, err = imap.NewQuery(s, opts).MarkAsRead().GetMessageByMsgn(2)
	if err != nil {
		t.Fatal(err)
	}
	if m.UID != 102 || m.Msgn != 2 {
		t.Errorf("message = %+v", m)
	}
	c := lastCall(s, "FetchContent")
	if c.Args[1] != imap.SequenceMSGN || c.Args[2] != imap.FetchOption(0) {
		t.Errorf("content call = %+v", c)
	}
}
