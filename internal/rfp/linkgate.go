package rfp

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
)

// MaskingPredicate reports whether the given pair is inside an active masking
// window at the given time. The controller supplies this from its registered
// timelines.
type MaskingPredicate func(nodeA, nodeB string, now time.Time) bool

// LinkRecord tracks one unordered node pair. realState is the last observed
// physical state; reportedState is what has been disclosed to the routing
// protocol. If forcedDown is set, reportedState is false no matter what the
// physical link does.
type LinkRecord struct {
	RealState      bool
	ReportedState  bool
	ForcedDown     bool
	LastChangeTime time.Time
	ChangeCount    int
}

// LinkGate decides, per physical link-state observation, whether to disclose
// it to the routing protocol, and owns the authoritative mapping from
// physical to disclosed state.
type LinkGate struct {
	mu    sync.Mutex
	links map[PairKey]*LinkRecord

	sink  RoutingSink
	nodes NodeDirectory
	log   logging.Logger
	rec   ActivityRecorder
}

// AlternateRouteMetric is the metric used for routes installed around a link
// that was forced down, higher than the primary-path metric so the protocol
// prefers recomputed paths once it converges.
const AlternateRouteMetric = 10

// NewLinkGate constructs a gate that propagates disclosed state through sink
// and installs alternative routes via the node directory.
func NewLinkGate(sink RoutingSink, nodes NodeDirectory, log logging.Logger, rec ActivityRecorder) *LinkGate {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = NoopActivityRecorder{}
	}
	return &LinkGate{
		links: make(map[PairKey]*LinkRecord),
		sink:  sink,
		nodes: nodes,
		log:   log,
		rec:   rec,
	}
}

func (g *LinkGate) record(key PairKey) *LinkRecord {
	r, ok := g.links[key]
	if !ok {
		r = &LinkRecord{}
		g.links[key] = r
	}
	return r
}

// ForceDown marks the pair as forced down and discloses the down state
// unconditionally, then installs alternative forwarding paths around the
// link. Physical flapping on a forced-down pair is invisible until
// RestoreNormal.
func (g *LinkGate) ForceDown(nodeA, nodeB string, now time.Time) {
	key := MakePairKey(nodeA, nodeB)

	g.mu.Lock()
	r := g.record(key)
	r.ForcedDown = true
	r.ReportedState = false
	r.LastChangeTime = now
	r.ChangeCount++
	g.mu.Unlock()

	g.log.Info(context.Background(), "forcing link down",
		logging.String("pair", key.String()),
		logging.Any("at", now),
	)

	g.disclose(nodeA, nodeB, false)
	g.addAlternativeRoutes(nodeA, nodeB)
}

// RestoreNormal clears the forced-down override and discloses the last known
// physical state.
func (g *LinkGate) RestoreNormal(nodeA, nodeB string, now time.Time) {
	key := MakePairKey(nodeA, nodeB)

	g.mu.Lock()
	r := g.record(key)
	r.ForcedDown = false
	real := r.RealState
	r.ReportedState = real
	r.LastChangeTime = now
	r.ChangeCount++
	g.mu.Unlock()

	g.log.Info(context.Background(), "restored normal link detection",
		logging.String("pair", key.String()),
		logging.Bool("real_state", real),
	)

	g.disclose(nodeA, nodeB, real)
}

// UpdateRealState records a physical observation and decides whether to
// disclose it. Observations are absorbed while the pair is forced down or
// inside a masking window; otherwise a change in disclosed value propagates
// through the sink exactly once (re-reporting an unchanged value is a no-op).
func (g *LinkGate) UpdateRealState(nodeA, nodeB string, isUp bool, now time.Time, masked MaskingPredicate) {
	key := MakePairKey(nodeA, nodeB)

	g.mu.Lock()
	r := g.record(key)
	r.RealState = isUp

	if r.ForcedDown {
		g.mu.Unlock()
		g.rec.MaskedChangeAbsorbed()
		return
	}

	if masked != nil && masked(nodeA, nodeB, now) {
		g.mu.Unlock()
		g.rec.MaskedChangeAbsorbed()
		return
	}

	if isUp == r.ReportedState {
		g.mu.Unlock()
		return
	}

	r.ReportedState = isUp
	r.LastChangeTime = now
	r.ChangeCount++
	g.mu.Unlock()

	g.log.Info(context.Background(), "link state disclosed",
		logging.String("pair", key.String()),
		logging.Bool("up", isUp),
	)

	g.disclose(nodeA, nodeB, isUp)
}

// ReportedState returns the state last disclosed for the pair.
func (g *LinkGate) ReportedState(nodeA, nodeB string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.links[MakePairKey(nodeA, nodeB)]
	return ok && r.ReportedState
}

// RealState returns the last observed physical state for the pair.
func (g *LinkGate) RealState(nodeA, nodeB string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.links[MakePairKey(nodeA, nodeB)]
	return ok && r.RealState
}

// Record returns a copy of the pair's record and whether it exists.
func (g *LinkGate) Record(nodeA, nodeB string) (LinkRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.links[MakePairKey(nodeA, nodeB)]
	if !ok {
		return LinkRecord{}, false
	}
	return *r, true
}

// disclose pushes the admin state of both endpoints to the sink.
// Sink failures are logged and counted, never propagated.
func (g *LinkGate) disclose(nodeA, nodeB string, up bool) {
	for _, node := range []string{nodeA, nodeB} {
		if err := g.sink.SetLinkAdminState(node, up); err != nil {
			g.rec.SinkFailure()
			g.log.Warn(context.Background(), "sink rejected link admin state; continuing in simulated mode",
				logging.String("node", node),
				logging.Bool("up", up),
				logging.String("error", err.Error()),
			)
		}
	}
}

// addAlternativeRoutes installs detour routes on nodeA towards nodeB's prefix
// via every other node, so traffic has somewhere to go the moment the link is
// reported down.
func (g *LinkGate) addAlternativeRoutes(nodeA, nodeB string) {
	if g.nodes == nil {
		return
	}
	prefix := g.nodes.PrefixFor(nodeB)
	for _, relay := range g.nodes.Nodes() {
		if relay == nodeA || relay == nodeB {
			continue
		}
		change := RouteChange{
			Op:      RouteAdd,
			Prefix:  prefix,
			Nexthop: g.nodes.RouterAddress(relay),
			Metric:  AlternateRouteMetric,
		}
		if err := g.sink.ApplyRouteChange(nodeA, change); err != nil {
			g.rec.SinkFailure()
			g.log.Warn(context.Background(), "sink rejected alternative route; continuing in simulated mode",
				logging.String("node", nodeA),
				logging.String("prefix", prefix),
				logging.String("error", err.Error()),
			)
		}
	}
}
