package rfp

import (
	"context"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
)

// RouteOp is a routing-table operation.
type RouteOp string

const (
	RouteAdd    RouteOp = "ADD"
	RouteDelete RouteOp = "DELETE"
	RouteUpdate RouteOp = "UPDATE"
)

// RouteChange describes a single routing-table modification on a node.
type RouteChange struct {
	Op      RouteOp
	Prefix  string
	Nexthop string
	Metric  int
}

// RoutingSink is the boundary to the external routing collaborator. All calls
// are fire-and-forget: a returned error means the call did not take effect
// externally, but callers must treat that as non-fatal and continue on
// schedule. The sink is injected at construction; there is no process-wide
// sink state.
type RoutingSink interface {
	// SetLinkAdminState discloses a link endpoint's administrative state.
	SetLinkAdminState(node string, up bool) error
	// ApplyRouteChange applies one routing-table change on a node.
	ApplyRouteChange(node string, change RouteChange) error
	// TriggerConvergence forces the routing protocol on the given nodes to
	// recompute from the now-consistent base.
	TriggerConvergence(nodes []string) error
}

// SimulatedSink logs every call and always succeeds. It stands in for the
// real routing daemon in tests and in runs where no daemon is reachable.
type SimulatedSink struct {
	Log logging.Logger
}

// NewSimulatedSink returns a sink that only logs.
func NewSimulatedSink(log logging.Logger) *SimulatedSink {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulatedSink{Log: log}
}

func (s *SimulatedSink) SetLinkAdminState(node string, up bool) error {
	s.Log.Info(context.Background(), "simulated link admin state",
		logging.String("node", node),
		logging.Bool("up", up),
	)
	return nil
}

func (s *SimulatedSink) ApplyRouteChange(node string, change RouteChange) error {
	s.Log.Info(context.Background(), "simulated route change",
		logging.String("node", node),
		logging.String("op", string(change.Op)),
		logging.String("prefix", change.Prefix),
		logging.String("nexthop", change.Nexthop),
		logging.Int("metric", change.Metric),
	)
	return nil
}

func (s *SimulatedSink) TriggerConvergence(nodes []string) error {
	s.Log.Info(context.Background(), "simulated convergence trigger",
		logging.Int("nodes", len(nodes)),
	)
	return nil
}
