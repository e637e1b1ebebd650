package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeEventScheduler is a test implementation of EventScheduler that keeps
// its own notion of simulation time and lets tests advance it explicitly.
// AdvanceTo moves time forward and runs every event that became due, which
// makes timeline tests deterministic without a running clock.
type FakeEventScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64

	events []*scheduledEvent
	index  map[string]*scheduledEvent
}

// NewFakeEventScheduler creates a fake scheduler starting at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{
		now:   start,
		index: make(map[string]*scheduledEvent),
	}
}

// Now returns the current fake simulation time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback at the given fake time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("fake-ev-%d", s.counter)

	ev := &scheduledEvent{id: id, when: at, f: f}
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
	s.index[id] = ev
	return id
}

// Cancel marks a scheduled event as cancelled.
func (s *FakeEventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
}

// RunDue executes all events due at the current fake time.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		var due *scheduledEvent
		for len(s.events) > 0 {
			ev := s.events[0]
			if ev.cancelled {
				s.events = s.events[1:]
				continue
			}
			if ev.when.After(s.now) {
				break
			}
			s.events = s.events[1:]
			due = ev
			break
		}
		if due == nil {
			s.mu.Unlock()
			return
		}
		delete(s.index, due.id)
		s.mu.Unlock()

		if due.f != nil {
			due.f()
		}
	}
}

// AdvanceTo moves fake time to t and runs everything that became due.
// Events scheduled by callbacks for times <= t run in the same pass.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.After(s.now) {
		s.now = t
	}
	s.mu.Unlock()
	s.RunDue()
}

// Pending returns the number of outstanding (not run, not cancelled) events.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
