package core

import (
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/sched"
	"github.com/signalsfoundry/satnet-rfp/timectrl"
)

type observation struct {
	NodeA, NodeB string
	Up           bool
	At           time.Time
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (o *recordingObserver) OnObservedLinkChange(nodeA, nodeB string, isUp bool, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{NodeA: nodeA, NodeB: nodeB, Up: isUp, At: now})
	return nil
}

func (o *recordingObserver) all() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]observation, len(o.obs))
	copy(out, o.obs)
	return out
}

func TestEngine_ReportsTransitionsOnce(t *testing.T) {
	switchAt := testEpoch.Add(25 * time.Second)
	topo, pred := newVisibilityFixture(t, switchAt)

	clock := timectrl.NewTimeController(testEpoch, 5*time.Second, timectrl.Accelerated)
	scheduler := sched.NewEventScheduler(clock)
	observer := &recordingObserver{}

	engine := NewEngine(topo, pred, observer, scheduler, clock, nil)
	engine.Run(time.Minute)

	obs := observer.all()
	// Prime reports the initial up state, then exactly one down transition.
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d: %+v", len(obs), obs)
	}
	if !obs[0].Up || !obs[0].At.Equal(testEpoch) {
		t.Fatalf("unexpected prime observation: %+v", obs[0])
	}
	if obs[1].Up {
		t.Fatalf("second observation should be the down transition")
	}
	// Ticks every 5s: the switch at +25s is sampled at +25s.
	if want := testEpoch.Add(25 * time.Second); !obs[1].At.Equal(want) {
		t.Fatalf("down observed at %v, want %v", obs[1].At, want)
	}
	if engine.Ticks() != 12 {
		t.Fatalf("ticks = %d, want 12", engine.Ticks())
	}
}

func TestEngine_PumpsScheduler(t *testing.T) {
	topo, pred := newVisibilityFixture(t, testEpoch.Add(time.Hour))

	clock := timectrl.NewTimeController(testEpoch, 5*time.Second, timectrl.Accelerated)
	scheduler := sched.NewEventScheduler(clock)
	engine := NewEngine(topo, pred, &recordingObserver{}, scheduler, clock, nil)

	var firedAt time.Time
	scheduler.Schedule(testEpoch.Add(17*time.Second), func() {
		firedAt = clock.Now()
	})

	engine.Run(30 * time.Second)

	if firedAt.IsZero() {
		t.Fatalf("scheduled callback never ran")
	}
	// The 17s deadline is reached on the 20s tick.
	if want := testEpoch.Add(20 * time.Second); !firedAt.Equal(want) {
		t.Fatalf("callback ran at %v, want %v", firedAt, want)
	}
}

func TestEngine_PrimeSkipsDownLinks(t *testing.T) {
	// Link is down from the start: priming must not observe anything.
	topo, pred := newVisibilityFixture(t, testEpoch.Add(-time.Second))

	clock := timectrl.NewTimeController(testEpoch, 5*time.Second, timectrl.Accelerated)
	scheduler := sched.NewEventScheduler(clock)
	observer := &recordingObserver{}
	engine := NewEngine(topo, pred, observer, scheduler, clock, nil)

	engine.Prime(testEpoch)
	if got := len(observer.all()); got != 0 {
		t.Fatalf("priming a down link produced %d observations", got)
	}
}
