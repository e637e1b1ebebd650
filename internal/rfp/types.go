// Package rfp implements route-failure prediction: masking predicted link
// failures from a link-state routing protocol by forcing the link down ahead
// of time, buffering route updates until a synchronization point, and
// restoring normal detection once the failure has passed.
package rfp

import "fmt"

// PairKey identifies an unordered node pair. A and B are kept in canonical
// order (A < B) so that (a,b) and (b,a) resolve to the same record.
type PairKey struct {
	A, B string
}

// MakePairKey normalizes two node IDs into a canonical PairKey.
func MakePairKey(nodeA, nodeB string) PairKey {
	if nodeB < nodeA {
		nodeA, nodeB = nodeB, nodeA
	}
	return PairKey{A: nodeA, B: nodeB}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s<->%s", k.A, k.B)
}

// NodeDirectory answers node validity and addressing questions for the
// controller and the link gate. Injecting it keeps the node population
// explicit and test-controllable instead of discovered from a live topology.
type NodeDirectory interface {
	// ValidNode reports whether the given node ID exists.
	ValidNode(id string) bool
	// Nodes returns all node IDs in a stable order.
	Nodes() []string
	// PrefixFor returns the network prefix advertised by the node.
	PrefixFor(id string) string
	// RouterAddress returns the node's router (next-hop) address.
	RouterAddress(id string) string
}

// ActivityRecorder receives fine-grained activity signals from the gate,
// buffer, and controller. The observability layer implements it with
// Prometheus counters; tests use NoopActivityRecorder.
type ActivityRecorder interface {
	EventScheduled()
	EventCompleted()
	EventCancelled()
	MaskedChangeAbsorbed()
	UpdateBuffered()
	UpdateApplied()
	BaselineEventRecorded()
	SinkFailure()
	SetActiveEvents(n int)
	SetPendingUpdates(n int)
}

// NoopActivityRecorder discards all activity signals.
type NoopActivityRecorder struct{}

func (NoopActivityRecorder) EventScheduled()        {}
func (NoopActivityRecorder) EventCompleted()        {}
func (NoopActivityRecorder) EventCancelled()        {}
func (NoopActivityRecorder) MaskedChangeAbsorbed()  {}
func (NoopActivityRecorder) UpdateBuffered()        {}
func (NoopActivityRecorder) UpdateApplied()         {}
func (NoopActivityRecorder) BaselineEventRecorded() {}
func (NoopActivityRecorder) SinkFailure()           {}
func (NoopActivityRecorder) SetActiveEvents(int)    {}
func (NoopActivityRecorder) SetPendingUpdates(int)  {}
