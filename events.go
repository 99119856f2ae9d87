package imap

import "sync"

// EventKind names something that happened to a folder or message
type EventKind uint8

const (
	EventMessageNew EventKind = iota
	EventMessageMoved
	EventMessageCopied
	EventMessageDeleted
	EventMessageRestored
	EventFlagNew
	EventFlagDeleted
	EventFolderNew
	EventFolderMoved
	EventFolderDeleted
)

var eventKindNames = [...]string{
	EventMessageNew:      "message.new",
	EventMessageMoved:    "message.moved",
	EventMessageCopied:   "message.copied",
	EventMessageDeleted:  "message.deleted",
	EventMessageRestored: "message.restored",
	EventFlagNew:         "flag.new",
	EventFlagDeleted:     "flag.deleted",
	EventFolderNew:       "folder.new",
	EventFolderMoved:     "folder.moved",
	EventFolderDeleted:   "folder.deleted",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event describes one notification. Folder is the folder it happened in;
// Target is the destination folder of moves, copies and renames.
type Event struct {
	Kind   EventKind
	Folder string
	Target string
	IDs    []uint32
	Flags  []string
}

// EventHandler receives dispatched events
type EventHandler func(Event)

// Events is a registry of handlers keyed by kind. The zero value is ready
// to use and a nil *Events drops everything.
type Events struct {
	mu       sync.RWMutex
	handlers map[EventKind][]EventHandler
}

// NewEvents returns an empty registry
func NewEvents() *Events {
	return &Events{}
}

// On registers h for kind
func (e *Events) On(kind EventKind, h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventKind][]EventHandler)
	}
	e.handlers[kind] = append(e.handlers[kind], h)
}

// Dispatch calls every handler registered for ev.Kind in registration order
func (e *Events) Dispatch(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	hs := e.handlers[ev.Kind]
	e.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}
