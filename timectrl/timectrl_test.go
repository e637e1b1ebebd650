package timectrl

import (
	"testing"
	"time"
)

func TestTimeController_AcceleratedRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Accelerated)

	var seen []time.Time
	tc.AddListener(func(now time.Time) {
		seen = append(seen, now)
	})

	tc.Run(5 * time.Second)

	if len(seen) != 5 {
		t.Fatalf("expected 5 ticks, got %d", len(seen))
	}
	for i, ts := range seen {
		want := start.Add(time.Duration(i+1) * time.Second)
		if !ts.Equal(want) {
			t.Fatalf("tick %d: got %v, want %v", i, ts, want)
		}
	}
	if !tc.Now().Equal(start.Add(5 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", tc.Now(), start.Add(5*time.Second))
	}
}

func TestTimeController_ListenersRunInRegistrationOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Accelerated)

	var order []string
	tc.AddListener(func(time.Time) { order = append(order, "first") })
	tc.AddListener(func(time.Time) { order = append(order, "second") })

	tc.Run(time.Second)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected listener order: %v", order)
	}
}

func TestTimeController_ZeroTickDefaults(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 0, Accelerated)
	if tc.Tick != time.Second {
		t.Fatalf("zero tick should default to 1s, got %v", tc.Tick)
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	later := start.Add(10 * time.Second)
	c.AdvanceTo(later)
	if !c.Now().Equal(later) {
		t.Fatalf("Now() = %v, want %v", c.Now(), later)
	}

	// Backwards moves are ignored.
	c.AdvanceTo(start)
	if !c.Now().Equal(later) {
		t.Fatalf("clock moved backwards to %v", c.Now())
	}
}
