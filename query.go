package imap

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/davecgh/go-spew/spew"
)

// Session is the part of a connection a Query drives. *Dialer implements it;
// imaptest.Session is a scripted stand-in.
type Session interface {
	Search(mode SequenceMode, query string) (*Response[[]uint32], error)
	FetchFlags(ids []uint32, mode SequenceMode) (*Response[map[uint32][]string], error)
	FetchHeaders(ids []uint32, mode SequenceMode) (*Response[map[uint32][]byte], error)
	FetchContent(ids []uint32, mode SequenceMode, opt FetchOption) (*Response[map[uint32][]byte], error)
	UIDs() (*Response[map[uint32]uint32], error)
	ResolveUID(msgn uint32) (uint32, error)
	ResolveMessageNumber(uid uint32) (uint32, error)
}

// debugLogger is implemented by sessions that log diagnostics when their
// connection was configured with Debug
type debugLogger interface {
	debugLog(msg string, args ...any)
}

// ExtensionFetcher is implemented by sessions that can fetch arbitrary
// FETCH items such as X-GM-LABELS
type ExtensionFetcher interface {
	FetchExtensions(ids []uint32, mode SequenceMode, extensions []string) (*Response[map[uint32]map[string]string], error)
}

var (
	_ Session          = (*Dialer)(nil)
	_ ExtensionFetcher = (*Dialer)(nil)
)

// FetchResult holds everything fetched for one page of ids
type FetchResult struct {
	IDs        []uint32
	Flags      map[uint32][]string
	Headers    map[uint32][]byte
	Contents   map[uint32][]byte
	Extensions map[uint32]map[string]string
}

// Query searches the selected folder and turns the matches into messages.
// Its sequence mode is fixed when it is created.
type Query struct {
	session Session
	builder MessageBuilder
	where   *WhereQuery

	sequence    SequenceMode
	limit       int
	page        int
	fetchOption FetchOption
	fetchBody   bool
	fetchFlags  bool
	fetchOrder  Order
	softFail    bool
	messageKey  KeyStrategy
	extensions  []string

	errs     map[uint32]error
	errOrder []uint32
}

// NewQuery returns a query over s with its defaults taken from opts
func NewQuery(s Session, opts Options) *Query {
	q := &Query{
		session:     s,
		builder:     NewDefaultBuilder(),
		where:       NewWhereQuery(opts.DateFormat),
		sequence:    opts.Sequence,
		page:        1,
		fetchOption: opts.FetchOption,
		fetchBody:   opts.FetchBody,
		fetchFlags:  opts.FetchFlags,
		fetchOrder:  opts.FetchOrder,
		softFail:    opts.SoftFail,
		messageKey:  opts.MessageKey,
	}
	if q.fetchOrder == "" {
		q.fetchOrder = OrderAsc
	}
	if q.messageKey == "" {
		q.messageKey = KeyByList
	}
	q.SetExtensions(opts.Extensions...)
	q.resetErrors()
	return q
}

// Query starts a query on the selected folder using the dialer's options
func (d *Dialer) Query() *Query {
	return NewQuery(d, d.Options())
}

// Sequence is the addressing mode every command of this query uses
func (q *Query) Sequence() SequenceMode { return q.sequence }

// Criteria exposes the underlying search builder
func (q *Query) Criteria() *WhereQuery { return q.where }

func (q *Query) Where(criteria string, value ...any) *Query {
	q.where.Where(criteria, value...)
	return q
}

func (q *Query) WhereEach(items ...any) *Query {
	q.where.WhereEach(items...)
	return q
}

func (q *Query) OrWhere(fn ...func(*WhereQuery)) *Query {
	q.where.OrWhere(fn...)
	return q
}

func (q *Query) AndWhere(fn ...func(*WhereQuery)) *Query {
	q.where.AndWhere(fn...)
	return q
}

// Apply calls a named search alias, see WhereQuery.Apply
func (q *Query) Apply(alias string, args ...any) *Query {
	q.where.Apply(alias, args...)
	return q
}

// Filter lets fn add clauses with the typed WhereQuery helpers
func (q *Query) Filter(fn func(w *WhereQuery)) *Query {
	fn(q.where)
	return q
}

// SetBuilder replaces the message construction step
func (q *Query) SetBuilder(b MessageBuilder) *Query {
	q.builder = b
	return q
}

// Limit sets the page size and page number used by Fetch. A limit of 0
// fetches everything.
func (q *Query) Limit(limit, page int) *Query {
	if page < 1 {
		page = 1
	}
	q.limit, q.page = limit, page
	return q
}

func (q *Query) SetFetchOrder(o Order) *Query {
	q.fetchOrder = o
	return q
}

func (q *Query) SetFetchBody(fetch bool) *Query {
	q.fetchBody = fetch
	return q
}

func (q *Query) SetFetchFlags(fetch bool) *Query {
	q.fetchFlags = fetch
	return q
}

// LeaveUnread fetches bodies with BODY.PEEK
func (q *Query) LeaveUnread() *Query {
	q.fetchOption |= FetchPeek
	return q
}

// MarkAsRead lets fetching a body set \Seen
func (q *Query) MarkAsRead() *Query {
	q.fetchOption &^= FetchPeek
	return q
}

func (q *Query) SoftFail(soft bool) *Query {
	q.softFail = soft
	return q
}

func (q *Query) SetMessageKey(k KeyStrategy) *Query {
	q.messageKey = k
	return q
}

// SetExtensions sets extra FETCH items. UID is added when any are given
// since extension results are matched by UID.
func (q *Query) SetExtensions(extensions ...string) *Query {
	q.extensions = nil
	if len(extensions) == 0 {
		return q
	}
	q.extensions = append(q.extensions, extensions...)
	if !slices.Contains(q.extensions, "UID") {
		q.extensions = append(q.extensions, "UID")
	}
	return q
}

// Err returns the first error recorded while building the criteria
func (q *Query) Err() error {
	return q.where.Err()
}

func (q *Query) resetErrors() {
	q.errs = make(map[uint32]error)
	q.errOrder = nil
}

func (q *Query) setError(id uint32, err error) {
	if _, ok := q.errs[id]; !ok {
		q.errOrder = append(q.errOrder, id)
	}
	q.errs[id] = err
}

// Errors returns the per-message construction failures, keyed by id
func (q *Query) Errors() map[uint32]error {
	out := make(map[uint32]error, len(q.errs))
	for id, err := range q.errs {
		out[id] = err
	}
	return out
}

func (q *Query) HasErrors() bool {
	return len(q.errs) != 0
}

// Error returns the construction failure recorded for id, if any
func (q *Query) Error(id uint32) error {
	return q.errs[id]
}

func (q *Query) firstError() error {
	if len(q.errOrder) == 0 {
		return nil
	}
	return q.errs[q.errOrder[0]]
}

func getMessagesFailed(err error) error {
	var gmf *GetMessagesFailedError
	if errors.As(err, &gmf) {
		return err
	}
	return &GetMessagesFailedError{Err: err}
}

// Search runs the compiled criteria, ALL when there are none, and returns
// the matching ids in server order
func (q *Query) Search() ([]uint32, error) {
	raw, err := q.where.Compile()
	if err != nil {
		return nil, err
	}
	if raw == "" {
		raw = "ALL"
	}
	r, err := q.session.Search(q.sequence, raw)
	if err != nil {
		return nil, getMessagesFailed(err)
	}
	ids, err := r.Data()
	if err != nil {
		return nil, getMessagesFailed(err)
	}
	return ids, nil
}

// Count is the number of ids Search returns
func (q *Query) Count() (int, error) {
	ids, err := q.Search()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// window orders ids by the fetch order and cuts out the current page
func (q *Query) window(ids []uint32) []uint32 {
	ids = slices.Clone(ids)
	if q.fetchOrder == OrderDesc {
		slices.Reverse(ids)
	}
	if q.limit <= 0 {
		return ids
	}
	page := max(q.page, 1)
	start := (page - 1) * q.limit
	if start >= len(ids) {
		return nil
	}
	return ids[start:min(start+q.limit, len(ids))]
}

// Fetch retrieves flags, headers and, when enabled, content and extension
// items for the current page of ids
func (q *Query) Fetch(ids []uint32) (*FetchResult, error) {
	return q.fetchIDs(q.window(ids), q.sequence)
}

func (q *Query) fetchIDs(ids []uint32, mode SequenceMode) (*FetchResult, error) {
	res := &FetchResult{
		IDs:        ids,
		Flags:      map[uint32][]string{},
		Headers:    map[uint32][]byte{},
		Contents:   map[uint32][]byte{},
		Extensions: map[uint32]map[string]string{},
	}
	if len(ids) == 0 {
		return res, nil
	}

	if len(q.extensions) != 0 {
		if ef, ok := q.session.(ExtensionFetcher); ok {
			r, err := ef.FetchExtensions(ids, mode, q.extensions)
			if err != nil {
				return nil, err
			}
			if r.OK() {
				res.Extensions = r.data
			} else {
				getLogger().Warn("extension fetch rejected", "extensions", q.extensions, "status", r.Status, "text", r.Text)
			}
		}
	}

	flags, err := q.session.FetchFlags(ids, mode)
	if err != nil {
		return nil, err
	}
	if res.Flags, err = flags.Data(); err != nil {
		return nil, err
	}

	headers, err := q.session.FetchHeaders(ids, mode)
	if err != nil {
		return nil, err
	}
	if res.Headers, err = headers.Data(); err != nil {
		return nil, err
	}

	if q.fetchBody {
		content, err := q.session.FetchContent(ids, mode, q.fetchOption)
		if err != nil {
			return nil, err
		}
		if res.Contents, err = content.Data(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (q *Query) input(res *FetchResult, i int, mode SequenceMode) MessageInput {
	id := res.IDs[i]
	in := MessageInput{
		ID:       id,
		Index:    i,
		Session:  q.session,
		Header:   res.Headers[id],
		Content:  res.Contents[id],
		Options:  q.fetchOption,
		Sequence: mode,
	}
	if q.fetchFlags {
		in.Flags = res.Flags[id]
	}
	return in
}

func (q *Query) build(in MessageInput, ext map[string]string) (*Message, error) {
	m, err := q.builder.Build(in)
	if err != nil {
		if dl, ok := q.session.(debugLogger); ok {
			dump := in
			dump.Session = nil
			dl.debugLog("message construction failed", "id", in.ID, "error", err, "input", spew.Sdump(dump))
		}
		return nil, err
	}
	if m.Header == nil {
		m.Header = newHeader(string(in.Header))
	}
	for k, v := range ext {
		m.Header.Set(k, v)
	}
	return m, nil
}

func (q *Query) key(m *Message, id uint32, index int) string {
	switch q.messageKey {
	case KeyByMessageID:
		if m.MessageID != "" {
			return m.MessageID
		}
	case KeyByNumber:
		if m.Msgn != 0 {
			return strconv.FormatUint(uint64(m.Msgn), 10)
		}
	case KeyByList:
		return strconv.Itoa(index)
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Populate fetches the current page of ids and builds a message for each.
// A failed build is recorded against its id; unless soft fail is on, the
// first recorded failure is then returned wrapped in GetMessagesFailedError.
func (q *Query) Populate(ids []uint32) (*MessageCollection, error) {
	res, err := q.Fetch(ids)
	if err != nil {
		return nil, getMessagesFailed(err)
	}

	coll := NewMessageCollection()
	coll.Total = len(ids)
	for i, id := range res.IDs {
		m, err := q.build(q.input(res, i, q.sequence), res.Extensions[id])
		if err != nil {
			q.setError(id, err)
			continue
		}
		coll.Put(q.key(m, id, i), m)
	}

	if !q.softFail && q.HasErrors() {
		return nil, getMessagesFailed(q.firstError())
	}
	return coll, nil
}

// Get searches and populates the current page
func (q *Query) Get() (*MessageCollection, error) {
	q.resetErrors()
	ids, err := q.Search()
	if err != nil {
		return nil, err
	}
	return q.Populate(ids)
}

// Chunk searches once and hands the results to fn chunkSize messages at a
// time, starting at chunk startChunk. Page numbers passed to fn count from
// startChunk. A page that yields neither messages nor errors ends the loop.
// The query's limit and page are restored afterwards.
func (q *Query) Chunk(fn func(msgs *MessageCollection, page int) error, chunkSize, startChunk int) error {
	if chunkSize < 1 {
		return fmt.Errorf("imap: chunk size must be positive, got %d", chunkSize)
	}
	startChunk = max(startChunk, 1)

	q.resetErrors()
	ids, err := q.Search()
	if err != nil {
		return err
	}
	total := len(ids) - chunkSize*(startChunk-1)
	if total <= 0 {
		return nil
	}

	limit, page := q.limit, q.page
	defer func() { q.limit, q.page = limit, page }()
	q.limit, q.page = chunkSize, startChunk

	for handled := 0; handled < total; q.page++ {
		errsBefore := len(q.errOrder)
		msgs, err := q.Populate(ids)
		if err != nil {
			return err
		}
		if msgs.Len() == 0 && len(q.errOrder) == errsBefore {
			break
		}
		if err = fn(msgs, q.page); err != nil {
			return err
		}
		handled += msgs.Len()
	}
	return nil
}

// Paginate populates page of perPage messages and wraps it with the total
// match count
func (q *Query) Paginate(perPage, page int) (*Paginator, error) {
	q.Limit(perPage, page)
	msgs, err := q.Get()
	if err != nil {
		return nil, err
	}
	return NewPaginator(msgs, msgs.Total, perPage, q.page), nil
}

// GetMessage builds the message with id in the query's sequence mode,
// ignoring criteria, limit and soft fail
func (q *Query) GetMessage(id uint32) (*Message, error) {
	return q.getMessage(id, q.sequence)
}

// GetMessageByUID builds the message with the given UID
func (q *Query) GetMessageByUID(uid uint32) (*Message, error) {
	return q.getMessage(uid, SequenceUID)
}

// GetMessageByMsgn builds the message with the given sequence number
func (q *Query) GetMessageByMsgn(msgn uint32) (*Message, error) {
	return q.getMessage(msgn, SequenceMSGN)
}

func (q *Query) getMessage(id uint32, mode SequenceMode) (*Message, error) {
	res, err := q.fetchIDs([]uint32{id}, mode)
	if err != nil {
		return nil, getMessagesFailed(err)
	}
	if _, ok := res.Headers[id]; !ok {
		return nil, getMessagesFailed(fmt.Errorf("message %d not found", id))
	}
	return q.build(q.input(res, 0, mode), res.Extensions[id])
}

func (q *Query) GetByUIDGreater(uid uint32) (*MessageCollection, error) {
	return q.filterByUID(func(u uint32) bool { return u > uid })
}

func (q *Query) GetByUIDGreaterOrEqual(uid uint32) (*MessageCollection, error) {
	return q.filterByUID(func(u uint32) bool { return u >= uid })
}

func (q *Query) GetByUIDLower(uid uint32) (*MessageCollection, error) {
	return q.filterByUID(func(u uint32) bool { return u < uid })
}

func (q *Query) GetByUIDLowerOrEqual(uid uint32) (*MessageCollection, error) {
	return q.filterByUID(func(u uint32) bool { return u <= uid })
}

// filterByUID lists every UID in the folder and populates the messages
// whose UID passes keep, addressed in the query's sequence mode
func (q *Query) filterByUID(keep func(uid uint32) bool) (*MessageCollection, error) {
	q.resetErrors()
	r, err := q.session.UIDs()
	if err != nil {
		return nil, getMessagesFailed(err)
	}
	uids, err := r.Data()
	if err != nil {
		return nil, getMessagesFailed(err)
	}
	ids := make([]uint32, 0, len(uids))
	for msgn, uid := range uids {
		if !keep(uid) {
			continue
		}
		if q.sequence == SequenceUID {
			ids = append(ids, uid)
		} else {
			ids = append(ids, msgn)
		}
	}
	slices.Sort(ids)
	return q.Populate(ids)
}
