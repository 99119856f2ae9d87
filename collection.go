package imap

// MessageCollection is an insertion ordered set of messages keyed by the
// query's KeyStrategy. Total is the size of the id set the messages were
// drawn from, which is larger than Len when only one page was populated.
type MessageCollection struct {
	Total int

	keys  []string
	items map[string]*Message
}

// NewMessageCollection returns an empty collection
func NewMessageCollection() *MessageCollection {
	return &MessageCollection{items: make(map[string]*Message)}
}

// Put stores m under key. Replacing a key keeps its original position.
func (c *MessageCollection) Put(key string, m *Message) {
	if _, ok := c.items[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.items[key] = m
}

// Get returns the message stored under key
func (c *MessageCollection) Get(key string) (*Message, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.items[key]
	return m, ok
}

// Len is the number of messages held
func (c *MessageCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the keys in insertion order
func (c *MessageCollection) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Messages returns the messages in insertion order
func (c *MessageCollection) Messages() []*Message {
	if c == nil {
		return nil
	}
	out := make([]*Message, len(c.keys))
	for i, k := range c.keys {
		out[i] = c.items[k]
	}
	return out
}

// Each calls fn for every message in order until fn returns false
func (c *MessageCollection) Each(fn func(key string, m *Message) bool) {
	if c == nil {
		return
	}
	for _, k := range c.keys {
		if !fn(k, c.items[k]) {
			return
		}
	}
}
