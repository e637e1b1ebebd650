package timectrl

import (
	"sync"
	"time"
)

// SimClock exposes the current simulation time. Components that need to
// timestamp state changes or schedule future work depend on this interface
// rather than on a concrete controller, which keeps them testable against a
// manually advanced clock.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances in step with wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping by Tick, so long scenarios finish in milliseconds.
	Accelerated
)

// TimeController drives simulation time forward in fixed ticks and notifies
// registered listeners after every advance. Listeners run synchronously in
// registration order, so a listener observes all effects of earlier listeners
// for the same tick. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller starting at start, stepping by
// tick. A non-positive tick defaults to one second.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// AddListener registers a callback invoked after every tick advance.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Run advances simulation time by Tick until duration has elapsed, invoking
// listeners after each advance. It blocks until the run completes. In
// RealTime mode each tick waits for the corresponding wall-clock interval;
// Accelerated mode steps immediately.
func (tc *TimeController) Run(duration time.Duration) {
	tc.mu.Lock()
	simTime := tc.StartTime
	tc.currentTime = simTime
	tc.mu.Unlock()

	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(tc.Tick)
		defer ticker.Stop()
	}

	for elapsed := time.Duration(0); elapsed < duration; elapsed += tc.Tick {
		if ticker != nil {
			<-ticker.C
		}
		simTime = simTime.Add(tc.Tick)

		tc.mu.Lock()
		tc.currentTime = simTime
		tc.mu.Unlock()

		for _, fn := range tc.listeners {
			fn(simTime)
		}
	}
}

// ManualClock is a SimClock for tests that only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time. Implements SimClock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// AdvanceTo moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}
