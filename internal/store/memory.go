package store

import (
	"context"
	"sync"

	"rps_duel/internal/room"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process RoomStore. Transactions are serialized under one
// mutex, which trivially satisfies the conditional-commit contract. Used by
// tests and as a single-node fallback when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	lastTS  int64
	rooms   map[string]*memEntry
	nextSub uint64
}

type memEntry struct {
	rec  *room.Record // nil when the room does not exist
	subs map[uint64]*memSub
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock: clock,
		rooms: make(map[string]*memEntry),
	}
}

// now returns store time in milliseconds, strictly monotonic so two moves
// in the same round never share a timestamp.
func (m *Memory) now() int64 {
	ts := m.clock.Now().UnixMilli()
	if ts <= m.lastTS {
		ts = m.lastTS + 1
	}
	m.lastTS = ts
	return ts
}

func (m *Memory) entry(code string) *memEntry {
	e, ok := m.rooms[code]
	if !ok {
		e = &memEntry{subs: make(map[uint64]*memSub)}
		m.rooms[code] = e
	}
	return e
}

// prune drops an entry that holds neither a record nor subscribers, so
// reads of unknown codes and deleted rooms do not grow the map forever.
func (m *Memory) prune(code string) {
	if e, ok := m.rooms[code]; ok && e.rec == nil && len(e.subs) == 0 {
		delete(m.rooms, code)
	}
}

func (m *Memory) Get(ctx context.Context, code string) (*room.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rooms[code]
	if !ok {
		return nil, nil
	}
	return e.rec.Clone(), nil
}

func (m *Memory) Set(ctx context.Context, code string, rec *room.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(code)
	next := rec.Clone()
	stampServerTime(next, m.now())
	if e.rec != nil {
		next.Version = e.rec.Version + 1
	} else {
		next.Version = 1
	}
	e.rec = next
	e.notify(next)
	return nil
}

func (m *Memory) RunTransaction(ctx context.Context, code string, fn TxnFunc) (bool, *room.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(code)
	cur := e.rec.Clone()

	next, err := fn(cur)
	if err == ErrAborted {
		m.prune(code)
		return false, e.rec.Clone(), nil
	}
	if err != nil {
		m.prune(code)
		return false, nil, err
	}
	if next == nil {
		m.prune(code)
		return false, e.rec.Clone(), nil
	}

	stampServerTime(next, m.now())
	if e.rec != nil {
		next.Version = e.rec.Version + 1
	} else {
		next.Version = 1
	}
	e.rec = next.Clone()
	e.notify(e.rec)
	return true, next, nil
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rooms[code]
	if !ok || e.rec == nil {
		return nil
	}
	e.rec = nil
	e.notify(nil)
	m.prune(code)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, code string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(code)
	id := m.nextSub
	m.nextSub++

	sub := newMemSub()
	e.subs[id] = sub
	// initial snapshot so the subscriber starts from current state
	sub.push(e.rec.Clone())

	stop := func() {
		m.mu.Lock()
		if cur, ok := e.subs[id]; ok && cur == sub {
			delete(e.subs, id)
		}
		m.prune(code)
		m.mu.Unlock()
		sub.close()
	}
	return newSubscription(sub.out, stop), nil
}

func (e *memEntry) notify(rec *room.Record) {
	for _, sub := range e.subs {
		sub.push(rec.Clone())
	}
}

// memSub decouples commit from delivery: pushes never block the store
// mutex, and each subscriber sees snapshots in commit order.
type memSub struct {
	mu     sync.Mutex
	queue  []*room.Record
	kick   chan struct{}
	done   chan struct{}
	closed bool
	out    chan *room.Record
}

func newMemSub() *memSub {
	s := &memSub{
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan *room.Record),
	}
	go s.drain()
	return s
}

func (s *memSub) push(rec *room.Record) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, rec)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *memSub) drain() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			rec := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- rec:
			case <-s.done:
				return
			}
		}
	}
}

func (s *memSub) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
