// Package bus is a small in-process topic bus with MQTT-style wildcards and
// retained messages. Pin watchers publish level changes on it.
package bus

import (
	"sync"
)

// Wildcards. "+" matches one level, "#" matches the rest (including none) and
// must be last.
const (
	One  = "+"
	Rest = "#"
)

// Topic is a path of levels, e.g. {"mcp23008", "0x20", "pin", "3"}.
type Topic []string

// Match reports whether filter (which may hold wildcards) covers t.
func (filter Topic) Match(t Topic) bool {
	for i, f := range filter {
		if f == Rest {
			return true
		}
		if i >= len(t) || (f != One && f != t[i]) {
			return false
		}
	}
	return len(filter) == len(t)
}

func (t Topic) key() string {
	n := 0
	for _, s := range t {
		n += len(s) + 1
	}
	b := make([]byte, 0, n)
	for _, s := range t {
		b = append(b, s...)
		b = append(b, 0)
	}
	return string(b)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	filter Topic
	ch     chan *Message
	conn   *Connection
}

func (s *Subscription) Topic() Topic             { return s.filter }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks: a full queue loses its oldest message.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	retained map[string]*Message
	qLen     int
}

// NewBus creates a bus whose subscriptions queue up to queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

// Publish delivers msg to every matching subscription. A retained message is
// remembered for later subscribers; a retained nil payload forgets it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		if msg.Payload == nil {
			delete(b.retained, msg.Topic.key())
		} else {
			b.retained[msg.Topic.key()] = msg
		}
	}
	for s := range b.subs {
		if s.filter.Match(msg.Topic) {
			s.deliver(msg)
		}
	}
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// Connection owns a set of subscriptions so they can be dropped together.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers filter; retained messages it covers are queued first.
func (c *Connection) Subscribe(filter Topic) *Subscription {
	s := &Subscription{
		filter: append(Topic(nil), filter...),
		ch:     make(chan *Message, c.bus.qLen),
		conn:   c,
	}
	b := c.bus
	b.mu.Lock()
	b.subs[s] = struct{}{}
	for _, m := range b.retained {
		if s.filter.Match(m.Topic) {
			s.deliver(m)
		}
	}
	b.mu.Unlock()

	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Calling it twice is harmless.
func (c *Connection) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	found := false
	for i, x := range c.subs {
		if x == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if found {
		c.drop(s)
	}
}

// Disconnect removes every subscription of the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.drop(s)
	}
}

func (c *Connection) drop(s *Subscription) {
	c.bus.mu.Lock()
	delete(c.bus.subs, s)
	c.bus.mu.Unlock()
	close(s.ch)
}
