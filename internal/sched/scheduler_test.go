package sched

import (
	"testing"
	"time"

	"github.com/signalsfoundry/satnet-rfp/timectrl"
)

func TestEventScheduler_SingleEvent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var counter int
	t1 := start.Add(10 * time.Second)

	id := sched.Schedule(t1, func() { counter++ })
	if id == "" {
		t.Fatalf("Schedule returned empty ID")
	}

	// Not due yet.
	sched.RunDue()
	if counter != 0 {
		t.Fatalf("expected counter=0 before time advance, got %d", counter)
	}

	clock.AdvanceTo(t1)
	sched.RunDue()
	if counter != 1 {
		t.Fatalf("expected counter=1 after time advance, got %d", counter)
	}

	// Events never run twice.
	sched.RunDue()
	if counter != 1 {
		t.Fatalf("expected counter=1 after second RunDue, got %d", counter)
	}
}

func TestEventScheduler_MultipleEventsInTimeOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var order []string
	t1 := start.Add(10 * time.Second)
	t2 := start.Add(20 * time.Second)
	t3 := start.Add(30 * time.Second)

	// Schedule out of order to exercise sorted insertion.
	sched.Schedule(t3, func() { order = append(order, "e3") })
	sched.Schedule(t1, func() { order = append(order, "e1") })
	sched.Schedule(t2, func() { order = append(order, "e2") })

	clock.AdvanceTo(t2)
	sched.RunDue()
	if len(order) != 2 || order[0] != "e1" || order[1] != "e2" {
		t.Fatalf("unexpected order after t2: %v", order)
	}

	clock.AdvanceTo(t3)
	sched.RunDue()
	if len(order) != 3 || order[2] != "e3" {
		t.Fatalf("unexpected order after t3: %v", order)
	}
}

func TestEventScheduler_SameTimeFIFO(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	at := start.Add(5 * time.Second)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		sched.Schedule(at, func() { order = append(order, i) })
	}

	clock.AdvanceTo(at)
	sched.RunDue()

	if len(order) != 5 {
		t.Fatalf("expected 5 callbacks, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("same-time events not FIFO: %v", order)
		}
	}
}

func TestEventScheduler_Cancel(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var ran bool
	at := start.Add(time.Second)
	id := sched.Schedule(at, func() { ran = true })

	sched.Cancel(id)
	clock.AdvanceTo(at)
	sched.RunDue()

	if ran {
		t.Fatalf("cancelled event ran")
	}

	// Cancelling unknown or already-cancelled IDs is a no-op.
	sched.Cancel(id)
	sched.Cancel("no-such-event")
}

func TestEventScheduler_CallbackSchedulesFurtherEvents(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var order []string
	t1 := start.Add(time.Second)
	sched.Schedule(t1, func() {
		order = append(order, "outer")
		// Due immediately; must run in the same RunDue pass.
		sched.Schedule(t1, func() { order = append(order, "inner") })
	})

	clock.AdvanceTo(t1)
	sched.RunDue()

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestFakeEventScheduler_AdvanceTo(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFakeEventScheduler(start)

	var order []string
	fake.Schedule(start.Add(2*time.Second), func() { order = append(order, "b") })
	fake.Schedule(start.Add(1*time.Second), func() { order = append(order, "a") })
	id := fake.Schedule(start.Add(3*time.Second), func() { order = append(order, "c") })
	fake.Cancel(id)

	fake.AdvanceTo(start.Add(5 * time.Second))

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order: %v", order)
	}
	if fake.Pending() != 0 {
		t.Fatalf("expected no pending events, got %d", fake.Pending())
	}
}
