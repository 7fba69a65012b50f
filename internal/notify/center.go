package notify

import (
	"sync"
	"time"
)

// Level classifies a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// EventType classifies messages emitted by the Center.
type EventType string

const (
	EventShown     EventType = "shown"
	EventDismissed EventType = "dismissed"
)

// Notice is a transient message shown inside one UI region.
type Notice struct {
	ID      uint64    `json:"id"`
	Region  string    `json:"region"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	ShownAt time.Time `json:"shown_at"`
}

// Event is a sequenced notice transition consumed by renderers.
type Event struct {
	Seq    int64     `json:"seq"`
	Type   EventType `json:"type"`
	Notice Notice    `json:"notice"`
}

// Handler receives events after the Center's lock is released. Handlers may
// run on timer goroutines; order them by Seq when it matters.
type Handler func(Event)

type entry struct {
	notice Notice
	timer  *time.Timer
}

// Center keeps at most one notice per region. Showing a notice replaces the
// region's previous one, and every notice dismisses itself after the TTL.
type Center struct {
	ttl       time.Duration
	maxEvents int

	mu       sync.Mutex
	nextID   uint64
	nextSeq  int64
	active   map[string]*entry
	events   []Event
	handlers map[uint64]Handler
	nextSub  uint64
	closed   bool
}

// NewCenter creates a Center whose notices live for ttl. A non-positive ttl
// keeps notices until replaced or dismissed.
func NewCenter(ttl time.Duration) *Center {
	return &Center{
		ttl:       ttl,
		maxEvents: 200,
		active:    make(map[string]*entry),
		handlers:  make(map[uint64]Handler),
	}
}

// TTL returns the auto-dismiss delay.
func (c *Center) TTL() time.Duration {
	return c.ttl
}

// Subscribe registers h and returns a function that removes it.
func (c *Center) Subscribe(h Handler) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.handlers[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Show clears any notice already in region, then shows msg there.
func (c *Center) Show(region string, level Level, msg string) Notice {
	c.mu.Lock()
	emitted := make([]Event, 0, 2)
	if prev, ok := c.active[region]; ok {
		emitted = append(emitted, c.dismissLocked(region, prev))
	}

	c.nextID++
	n := Notice{
		ID:      c.nextID,
		Region:  region,
		Level:   level,
		Message: msg,
		ShownAt: time.Now().UTC(),
	}
	e := &entry{notice: n}
	c.active[region] = e
	emitted = append(emitted, c.recordLocked(EventShown, n))

	if c.ttl > 0 && !c.closed {
		id := n.ID
		e.timer = time.AfterFunc(c.ttl, func() { c.expire(region, id) })
	}
	handlers := c.handlersLocked()
	c.mu.Unlock()

	dispatch(handlers, emitted)
	return n
}

// Error is shorthand for Show with LevelError.
func (c *Center) Error(region, msg string) Notice {
	return c.Show(region, LevelError, msg)
}

// Dismiss removes the notice in region, if any.
func (c *Center) Dismiss(region string) bool {
	c.mu.Lock()
	prev, ok := c.active[region]
	if !ok {
		c.mu.Unlock()
		return false
	}
	ev := c.dismissLocked(region, prev)
	handlers := c.handlersLocked()
	c.mu.Unlock()

	dispatch(handlers, []Event{ev})
	return true
}

// Active returns the notice currently shown in region.
func (c *Center) Active(region string) (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.active[region]
	if !ok {
		return Notice{}, false
	}
	return e.notice, true
}

// Since returns recorded events with sequence strictly greater than seq.
func (c *Center) Since(seq int64) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0, len(c.events))
	for _, ev := range c.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Close stops pending dismiss timers. Notices already shown stay active.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, e := range c.active {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (c *Center) expire(region string, id uint64) {
	c.mu.Lock()
	e, ok := c.active[region]
	if !ok || e.notice.ID != id {
		c.mu.Unlock()
		return
	}
	ev := c.dismissLocked(region, e)
	handlers := c.handlersLocked()
	c.mu.Unlock()

	dispatch(handlers, []Event{ev})
}

func (c *Center) dismissLocked(region string, e *entry) Event {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(c.active, region)
	return c.recordLocked(EventDismissed, e.notice)
}

func (c *Center) recordLocked(t EventType, n Notice) Event {
	c.nextSeq++
	ev := Event{Seq: c.nextSeq, Type: t, Notice: n}
	c.events = append(c.events, ev)
	if len(c.events) > c.maxEvents {
		trim := len(c.events) - c.maxEvents
		c.events = append([]Event(nil), c.events[trim:]...)
	}
	return ev
}

func (c *Center) handlersLocked() []Handler {
	if len(c.handlers) == 0 {
		return nil
	}
	ret := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		ret = append(ret, h)
	}
	return ret
}

func dispatch(handlers []Handler, events []Event) {
	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
