package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
	"github.com/signalsfoundry/satnet-rfp/internal/sched"
	"github.com/signalsfoundry/satnet-rfp/timectrl"
)

// LinkObserver consumes physical link-state transitions. The RFP controller
// implements it.
type LinkObserver interface {
	OnObservedLinkChange(nodeA, nodeB string, isUp bool, now time.Time) error
}

// Engine is the simulation loop: each tick it re-evaluates link visibility
// from orbital geometry, feeds state transitions to the observer, and pumps
// the event scheduler so due timeline actions fire.
type Engine struct {
	topo      *Topology
	predictor *VisibilityPredictor
	observer  LinkObserver
	scheduler sched.EventScheduler
	clock     *timectrl.TimeController
	log       logging.Logger

	lastState map[rfp.PairKey]bool
	ticks     int
}

// NewEngine wires the loop together and registers its tick listener. log may
// be nil.
func NewEngine(topo *Topology, predictor *VisibilityPredictor, observer LinkObserver, scheduler sched.EventScheduler, clock *timectrl.TimeController, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		topo:      topo,
		predictor: predictor,
		observer:  observer,
		scheduler: scheduler,
		clock:     clock,
		log:       log,
		lastState: make(map[rfp.PairKey]bool),
	}
	clock.AddListener(e.Tick)
	return e
}

// Prime records each link's state at the start time and reports the
// initially-up links to the observer. Links that start down match the
// observer's default and produce no observation.
func (e *Engine) Prime(start time.Time) {
	for _, link := range e.topo.Links() {
		up := e.predictor.LinkVisible(link, start)
		e.lastState[rfp.MakePairKey(link.NodeA, link.NodeB)] = up
		if !up {
			continue
		}
		if err := e.observer.OnObservedLinkChange(link.NodeA, link.NodeB, true, start); err != nil {
			e.log.Warn(context.Background(), "initial link observation rejected",
				logging.String("link_id", link.ID),
				logging.String("error", err.Error()),
			)
		}
	}
}

// Tick is invoked by the time controller after every advance.
func (e *Engine) Tick(now time.Time) {
	e.ticks++

	for _, link := range e.topo.Links() {
		key := rfp.MakePairKey(link.NodeA, link.NodeB)
		up := e.predictor.LinkVisible(link, now)
		if prev, seen := e.lastState[key]; seen && prev == up {
			continue
		}
		e.lastState[key] = up

		if err := e.observer.OnObservedLinkChange(link.NodeA, link.NodeB, up, now); err != nil {
			e.log.Warn(context.Background(), "link observation rejected",
				logging.String("link_id", link.ID),
				logging.String("error", err.Error()),
			)
		}
	}

	e.scheduler.RunDue()
}

// Ticks returns how many ticks have been processed.
func (e *Engine) Ticks() int { return e.ticks }

// Run primes the link states and drives the clock for the given duration.
func (e *Engine) Run(duration time.Duration) {
	e.Prime(e.clock.StartTime)
	e.clock.Run(duration)
}
