// Package sched provides a virtual-time callback scheduler. The RFP
// controller registers its timeline actions (T1/T2/T0/T3) here, and the
// simulation loop pumps due callbacks after every clock advance.
package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/satnet-rfp/timectrl"
)

// EventScheduler schedules callbacks to run at specific simulation times.
//
// Ordering guarantees: callbacks fire in non-decreasing virtual-time order,
// and callbacks scheduled for the identical virtual time fire in registration
// order (FIFO). Both guarantees are relied on by the timeline state machine.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID that can be used to cancel the event,
	// which is how a predicted failure is re-planned before it fires.
	Schedule(at time.Time, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)

	// Now returns the current simulation time.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	// It is safe to call repeatedly; already-run events never run again.
	RunDue()
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler implements EventScheduler on top of a SimClock, keeping
// events in a slice ordered by scheduled time (earliest first).
type eventScheduler struct {
	clock timectrl.SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent
	index   map[string]*scheduledEvent
}

// NewEventScheduler creates an event scheduler backed by the given SimClock:
// the real TimeController in normal runs, a ManualClock in unit tests.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}

	s.insertLocked(ev)
	s.index[id] = ev
	return id
}

// insertLocked places ev into the events slice keeping time order. The
// insertion point found by sort.Search is after any existing event with an
// equal timestamp, which is what makes same-time callbacks FIFO.
func (s *eventScheduler) insertLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}

	ev.cancelled = true
	delete(s.index, id)
	// Removal from s.events is lazy; RunDue skips cancelled events.
}

func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// popDueLocked removes and returns the earliest non-cancelled event whose
// time is <= now, or nil if none is due. Caller must hold s.mu.
func (s *eventScheduler) popDueLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			// Events are time-ordered; everything later is in the future too.
			return nil
		}
		s.events = s.events[1:]
		return ev
	}
	return nil
}

func (s *eventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.popDueLocked(s.clock.Now())
		if ev == nil {
			s.mu.Unlock()
			return
		}
		delete(s.index, ev.id)
		s.mu.Unlock()

		// Execute outside the lock so a callback may schedule or cancel
		// further events (the T1 handler does exactly that).
		if ev.f != nil {
			ev.f()
		}
	}
}
