package audit

import (
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
)

// #region recorder
// Recorder is the write side of the log. Components depend on this rather than *Log.
type Recorder interface {
	Append(e Entry) Entry
}

// Subscriber receives every entry at write time, on the writer's goroutine.
type Subscriber func(Entry)

// #endregion recorder

// #region log-config
// LogConfig holds ring buffer settings.
type LogConfig struct {
	Capacity int
	Now      func() time.Time // nil = time.Now().UTC()
}

// DefaultLogConfig returns a 1000-entry log.
func DefaultLogConfig() LogConfig {
	return LogConfig{Capacity: 1000}
}

// #endregion log-config

// #region log
// Log is a fixed-capacity, append-only ring of entries. Overflow evicts the oldest entry.
type Log struct {
	mu       sync.Mutex
	buf      []Entry
	start    int // index of the oldest entry
	size     int
	now      func() time.Time
	subs     map[uint64]Subscriber
	subOrder []uint64
	nextSub  uint64

	prgMu    sync.RWMutex
	env      *cel.Env
	prgCache map[string]cel.Program
}

// NewLog creates an empty log. Capacity below 1 is raised to 1.
func NewLog(config LogConfig) *Log {
	if config.Capacity < 1 {
		config.Capacity = 1
	}
	now := config.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Log{
		buf:      make([]Entry, config.Capacity),
		now:      now,
		subs:     make(map[uint64]Subscriber),
		prgCache: make(map[string]cel.Program),
	}
}

// Capacity returns the fixed ring size.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// #endregion log

// #region append
// Append stamps, stores and broadcasts e. Empty ID, timestamp and severity are filled in.
func (l *Log) Append(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.Severity == "" {
		e.Severity = assignSeverity(e)
	}
	e = e.clone()

	l.mu.Lock()
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = e
		l.size++
	} else {
		l.buf[l.start] = e
		l.start = (l.start + 1) % capacity
	}
	subs := make([]Subscriber, 0, len(l.subOrder))
	for _, id := range l.subOrder {
		subs = append(subs, l.subs[id])
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(e.clone())
	}
	return e.clone()
}

// Entries returns copies of every retained entry, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)].clone()
	}
	return out
}

// #endregion append

// #region subscribe
// Subscription is a handle returned by Subscribe.
type Subscription struct {
	log  *Log
	id   uint64
	once sync.Once
}

// Subscribe registers fn for every future entry.
func (l *Log) Subscribe(fn Subscriber) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSub++
	id := l.nextSub
	l.subs[id] = fn
	l.subOrder = append(l.subOrder, id)
	return &Subscription{log: l, id: id}
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		l := s.log
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, s.id)
		for i, id := range l.subOrder {
			if id == s.id {
				l.subOrder = append(l.subOrder[:i], l.subOrder[i+1:]...)
				break
			}
		}
	})
}

// Subscribers returns the number of registered subscribers.
func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subOrder)
}

// #endregion subscribe

// #region filter
// Filter selects entries. Zero fields match everything.
type Filter struct {
	Types       []Type
	MinSeverity Severity
	Actor       string
	Since       time.Time
	Limit       int // keep the newest N after other criteria
}

func (f Filter) match(e Entry) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if e.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Find returns entries matching f, oldest first.
func (l *Log) Find(f Filter) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// #endregion filter
