package rfp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
	"github.com/signalsfoundry/satnet-rfp/internal/sched"
)

var (
	ErrEmptyLinkID   = errors.New("empty link ID")
	ErrInvalidNode   = errors.New("unknown node")
	ErrSameNode      = errors.New("link endpoints are identical")
	ErrDuplicateLink = errors.New("predicted failure already registered for link")
	ErrUnknownLink   = errors.New("no predicted failure registered for link")
)

// Config carries the timeline and baseline constants. Zero fields take
// conservative OSPF defaults.
type Config struct {
	// Epoch is the scenario start; timeline clamping anchors against it.
	Epoch time.Time

	// ConvergenceTime (Tc) is the routing protocol's convergence time.
	// Default: 2s.
	ConvergenceTime time.Duration

	// SafetyMargin (dT) pads the timeline around the failure instant.
	// Default: 500ms.
	SafetyMargin time.Duration

	// BaselineDetection is the un-augmented protocol's worst-case failure
	// detection time (the dead interval). Default: 40s.
	BaselineDetection time.Duration

	// BaselineConvergence is the un-augmented protocol's recomputation time
	// after detection. Default: 100ms.
	BaselineConvergence time.Duration

	// BaselinePacketsLost is the conservative per-event packet loss assumed
	// for unpredicted failures. Default: 15.
	BaselinePacketsLost uint64
}

// ApplyDefaults fills zero fields with defaults.
func (c Config) ApplyDefaults() Config {
	if c.ConvergenceTime <= 0 {
		c.ConvergenceTime = 2 * time.Second
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = 500 * time.Millisecond
	}
	if c.BaselineDetection <= 0 {
		c.BaselineDetection = 40 * time.Second
	}
	if c.BaselineConvergence <= 0 {
		c.BaselineConvergence = 100 * time.Millisecond
	}
	if c.BaselinePacketsLost == 0 {
		c.BaselinePacketsLost = 15
	}
	return c
}

// eventState is the per-event position in the timeline state machine.
type eventState int

const (
	stateNormal eventState = iota
	stateMaskingAndBuffering
	stateMaskingOnly
)

// PredictedFailure is one registered future failure with its derived timeline
// and the scheduler IDs of its four pending actions. Marker IDs double as
// cancellation tokens so a registration can be unwound when the orbital
// prediction is revised.
type PredictedFailure struct {
	LinkID   string
	NodeA    string
	NodeB    string
	Timeline Timeline

	state         eventState
	markerIDs     [4]string
	bufferSession bool
}

// Controller coordinates the timeline calculator, the link gate, and the
// update buffer against the event scheduler. It is the single writer of all
// per-event state: scheduled callbacks carry only an immutable link ID and
// look up current state by key when they fire.
type Controller struct {
	cfg Config

	scheduler sched.EventScheduler
	gate      *LinkGate
	buffer    *UpdateBuffer
	recorder  *Recorder
	nodes     NodeDirectory
	log       logging.Logger
	rec       ActivityRecorder
	tracer    trace.Tracer

	mu             sync.Mutex
	events         map[string]*PredictedFailure
	bufferSessions int
	externalMods   uint64
}

// NewController wires the controller to its collaborators. recorder, log and
// rec may be nil.
func NewController(cfg Config, scheduler sched.EventScheduler, gate *LinkGate, buffer *UpdateBuffer, recorder *Recorder, nodes NodeDirectory, log logging.Logger, rec ActivityRecorder) *Controller {
	if recorder == nil {
		recorder = NewRecorder()
	}
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = NoopActivityRecorder{}
	}
	return &Controller{
		cfg:       cfg.ApplyDefaults(),
		scheduler: scheduler,
		gate:      gate,
		buffer:    buffer,
		recorder:  recorder,
		nodes:     nodes,
		log:       log,
		rec:       rec,
		tracer:    otel.Tracer("satnet-rfp/rfp"),
		events:    make(map[string]*PredictedFailure),
	}
}

// RegisterPredictedFailure derives the timeline for a failure of the given
// link at t0 and schedules the four timeline actions. It returns the derived
// (possibly clamped) timeline. Validation failures reject the registration
// without mutating any state.
func (c *Controller) RegisterPredictedFailure(linkID, nodeA, nodeB string, t0 time.Time) (Timeline, error) {
	if linkID == "" {
		return Timeline{}, ErrEmptyLinkID
	}
	if err := c.validatePair(nodeA, nodeB); err != nil {
		return Timeline{}, err
	}

	tl := DeriveMarkers(c.cfg.Epoch, t0, c.cfg.ConvergenceTime, c.cfg.SafetyMargin)

	c.mu.Lock()
	if _, exists := c.events[linkID]; exists {
		c.mu.Unlock()
		return Timeline{}, fmt.Errorf("%w: %q", ErrDuplicateLink, linkID)
	}
	ev := &PredictedFailure{
		LinkID:   linkID,
		NodeA:    nodeA,
		NodeB:    nodeB,
		Timeline: tl,
		state:    stateNormal,
	}
	c.events[linkID] = ev
	active := len(c.events)
	c.mu.Unlock()

	id := linkID
	ev.markerIDs = [4]string{
		c.scheduler.Schedule(tl.T1, func() { c.executeT1(id) }),
		c.scheduler.Schedule(tl.T2, func() { c.executeT2(id) }),
		c.scheduler.Schedule(tl.T0, func() { c.executeT0(id) }),
		c.scheduler.Schedule(tl.T3, func() { c.executeT3(id) }),
	}

	c.rec.EventScheduled()
	c.rec.SetActiveEvents(active)
	c.log.Info(context.Background(), "predicted failure registered",
		logging.String("link_id", linkID),
		logging.String("pair", MakePairKey(nodeA, nodeB).String()),
		logging.Any("t1", tl.T1),
		logging.Any("t2", tl.T2),
		logging.Any("t0", tl.T0),
		logging.Any("t3", tl.T3),
	)
	return tl, nil
}

// CancelPredictedFailure cancels any timeline actions of the link's
// registration that have not fired yet and unwinds the ones that have: the
// gate is restored if the link was already forced down, and the event's
// buffer session is released.
func (c *Controller) CancelPredictedFailure(linkID string, now time.Time) error {
	c.mu.Lock()
	ev, ok := c.events[linkID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownLink, linkID)
	}
	delete(c.events, linkID)
	active := len(c.events)
	state := ev.state
	holdsSession := ev.bufferSession
	ev.bufferSession = false
	c.mu.Unlock()

	for _, id := range ev.markerIDs {
		c.scheduler.Cancel(id)
	}

	if state != stateNormal {
		c.gate.RestoreNormal(ev.NodeA, ev.NodeB, now)
		c.addExternalMods(2)
		c.recorder.CompleteEvent(MakePairKey(ev.NodeA, ev.NodeB), c.ExternalModifications(), now)
	}
	if holdsSession {
		c.releaseBufferSession(now)
	}

	c.rec.EventCancelled()
	c.rec.SetActiveEvents(active)
	c.log.Info(context.Background(), "predicted failure cancelled",
		logging.String("link_id", linkID),
	)
	return nil
}

// OnObservedLinkChange feeds one physical link-state observation through the
// gate, synthesizes the corresponding route update, and classifies the change
// as predicted or baseline. Invalid node pairs are rejected with no state
// mutated.
func (c *Controller) OnObservedLinkChange(nodeA, nodeB string, isUp bool, now time.Time) error {
	if err := c.validatePair(nodeA, nodeB); err != nil {
		return err
	}

	c.gate.UpdateRealState(nodeA, nodeB, isUp, now, c.inMaskingWindow)

	disclosed := c.gate.ReportedState(nodeA, nodeB)
	for _, change := range c.synthesizeRouteChanges(nodeA, nodeB, disclosed) {
		c.buffer.Submit(nodeA, change, now)
		c.addExternalMods(1)
	}

	if !isUp && !c.inMaskingWindow(nodeA, nodeB, now) {
		detectionMs := float64(c.cfg.BaselineDetection) / float64(time.Millisecond)
		convergenceMs := float64(c.cfg.BaselineConvergence) / float64(time.Millisecond)
		c.recorder.RecordBaselineEvent(detectionMs+convergenceMs, c.cfg.BaselinePacketsLost, detectionMs, 1)
		c.rec.BaselineEventRecorded()
		c.log.Info(context.Background(), "unpredicted link failure recorded as baseline",
			logging.String("pair", MakePairKey(nodeA, nodeB).String()),
		)
	}

	c.log.Debug(context.Background(), "observed link change",
		logging.String("pair", MakePairKey(nodeA, nodeB).String()),
		logging.Bool("physical_up", isUp),
		logging.Bool("disclosed_up", disclosed),
	)
	return nil
}

// DisclosedState returns the link state currently disclosed to the routing
// protocol for the pair.
func (c *Controller) DisclosedState(nodeA, nodeB string) bool {
	return c.gate.ReportedState(nodeA, nodeB)
}

// FinalReport returns the predicted-vs-baseline comparison.
func (c *Controller) FinalReport() Report {
	return c.recorder.Report()
}

// ActiveEvents returns the number of registrations that have not completed.
func (c *Controller) ActiveEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// ExternalModifications returns the cumulative count of modifications pushed
// towards the external routing collaborator.
func (c *Controller) ExternalModifications() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.externalMods
}

//
// ---------- timeline actions ----------
//

// executeT1 starts masking and buffering for the event's pair.
func (c *Controller) executeT1(linkID string) {
	_, span := c.startSpan("rfp.timeline.t1", linkID)
	defer span.End()

	now := c.scheduler.Now()

	c.mu.Lock()
	ev, ok := c.events[linkID]
	if !ok || ev.state != stateNormal {
		c.mu.Unlock()
		return
	}
	ev.state = stateMaskingAndBuffering
	ev.bufferSession = true
	c.bufferSessions++
	first := c.bufferSessions == 1
	nodeA, nodeB := ev.NodeA, ev.NodeB
	c.mu.Unlock()

	c.log.Info(context.Background(), "timeline T1: starting predictive link avoidance",
		logging.String("link_id", linkID),
		logging.Any("at", now),
	)

	c.recorder.StartEvent(MakePairKey(nodeA, nodeB), true, now)
	c.gate.ForceDown(nodeA, nodeB, now)
	c.addExternalMods(2)

	if first {
		c.buffer.EnterBufferingMode(now)
	}
}

// executeT2 ends this event's buffering window; the buffer flushes only when
// the last concurrently buffering event reaches its T2.
func (c *Controller) executeT2(linkID string) {
	_, span := c.startSpan("rfp.timeline.t2", linkID)
	defer span.End()

	now := c.scheduler.Now()

	c.mu.Lock()
	ev, ok := c.events[linkID]
	if !ok || ev.state != stateMaskingAndBuffering {
		c.mu.Unlock()
		return
	}
	ev.state = stateMaskingOnly
	holdsSession := ev.bufferSession
	ev.bufferSession = false
	c.mu.Unlock()

	c.log.Info(context.Background(), "timeline T2: synchronizing forwarding tables",
		logging.String("link_id", linkID),
		logging.Any("at", now),
	)

	if holdsSession {
		c.releaseBufferSession(now)
	}
}

// executeT0 is observational: the physical failure occurs now, but routes
// were already switched at T2, so nothing is disclosed. Only the convergence
// timestamp is recorded.
func (c *Controller) executeT0(linkID string) {
	_, span := c.startSpan("rfp.timeline.t0", linkID)
	defer span.End()

	now := c.scheduler.Now()

	c.mu.Lock()
	ev, ok := c.events[linkID]
	if !ok {
		c.mu.Unlock()
		return
	}
	nodeA, nodeB := ev.NodeA, ev.NodeB
	c.mu.Unlock()

	c.log.Info(context.Background(), "timeline T0: physical failure occurs, routes already prepared",
		logging.String("link_id", linkID),
		logging.Any("at", now),
	)

	c.recorder.RecordConvergence(MakePairKey(nodeA, nodeB), now)
}

// executeT3 restores normal detection and completes the event.
func (c *Controller) executeT3(linkID string) {
	_, span := c.startSpan("rfp.timeline.t3", linkID)
	defer span.End()

	now := c.scheduler.Now()

	c.mu.Lock()
	ev, ok := c.events[linkID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.events, linkID)
	active := len(c.events)
	nodeA, nodeB := ev.NodeA, ev.NodeB
	c.mu.Unlock()

	c.log.Info(context.Background(), "timeline T3: resuming normal link detection",
		logging.String("link_id", linkID),
		logging.Any("at", now),
	)

	c.gate.RestoreNormal(nodeA, nodeB, now)
	c.addExternalMods(2)
	c.recorder.CompleteEvent(MakePairKey(nodeA, nodeB), c.ExternalModifications(), now)

	c.rec.EventCompleted()
	c.rec.SetActiveEvents(active)
}

//
// ---------- helpers ----------
//

// inMaskingWindow reports whether a registered event covers the exact pair at
// the given time. Used as the gate's masking predicate and for baseline
// classification.
func (c *Controller) inMaskingWindow(nodeA, nodeB string, now time.Time) bool {
	key := MakePairKey(nodeA, nodeB)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if MakePairKey(ev.NodeA, ev.NodeB) == key && ev.Timeline.Contains(now) {
			return true
		}
	}
	return false
}

// releaseBufferSession decrements the buffering refcount and flushes when the
// last session closes.
func (c *Controller) releaseBufferSession(now time.Time) {
	c.mu.Lock()
	if c.bufferSessions > 0 {
		c.bufferSessions--
	}
	last := c.bufferSessions == 0
	c.mu.Unlock()

	if !last {
		return
	}
	flushed := c.buffer.Snapshot().Pending
	c.buffer.ExitBufferingMode(now)
	c.addExternalMods(uint64(flushed))
}

// synthesizeRouteChanges turns a disclosed state into route-update intents
// for nodeA: an ADD towards nodeB when disclosed up, a DELETE plus a
// best-effort alternate when disclosed down.
func (c *Controller) synthesizeRouteChanges(nodeA, nodeB string, disclosedUp bool) []RouteChange {
	prefix := c.nodes.PrefixFor(nodeB)
	direct := c.nodes.RouterAddress(nodeB)

	if disclosedUp {
		return []RouteChange{{
			Op:      RouteAdd,
			Prefix:  prefix,
			Nexthop: direct,
			Metric:  1,
		}}
	}

	changes := []RouteChange{{
		Op:      RouteDelete,
		Prefix:  prefix,
		Nexthop: direct,
	}}
	if alt, ok := c.alternateNode(nodeA, nodeB); ok {
		changes = append(changes, RouteChange{
			Op:      RouteAdd,
			Prefix:  prefix,
			Nexthop: c.nodes.RouterAddress(alt),
			Metric:  5,
		})
	}
	return changes
}

// alternateNode picks the first node that is neither endpoint, as a relay
// candidate. Best effort only.
func (c *Controller) alternateNode(nodeA, nodeB string) (string, bool) {
	for _, id := range c.nodes.Nodes() {
		if id != nodeA && id != nodeB {
			return id, true
		}
	}
	return "", false
}

func (c *Controller) validatePair(nodeA, nodeB string) error {
	if !c.nodes.ValidNode(nodeA) {
		return fmt.Errorf("%w: %q", ErrInvalidNode, nodeA)
	}
	if !c.nodes.ValidNode(nodeB) {
		return fmt.Errorf("%w: %q", ErrInvalidNode, nodeB)
	}
	if nodeA == nodeB {
		return fmt.Errorf("%w: %q", ErrSameNode, nodeA)
	}
	return nil
}

func (c *Controller) addExternalMods(n uint64) {
	c.mu.Lock()
	c.externalMods += n
	c.mu.Unlock()
}

func (c *Controller) startSpan(name, linkID string) (context.Context, trace.Span) {
	return c.tracer.Start(context.Background(), name,
		trace.WithAttributes(attribute.String("link.id", linkID)),
	)
}
