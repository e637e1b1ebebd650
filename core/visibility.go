package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
)

// FailureRegistrar accepts predicted link failures. The RFP controller
// implements it.
type FailureRegistrar interface {
	RegisterPredictedFailure(linkID, nodeA, nodeB string, t0 time.Time) (rfp.Timeline, error)
}

// PredictedOutage is one upcoming loss of visibility on a link.
type PredictedOutage struct {
	LinkID string
	NodeA  string
	NodeB  string
	At     time.Time
}

// VisibilityPredictor samples future orbital geometry to find, per link, the
// first instant at which a currently visible link is lost: Earth occlusion or
// the pair drifting out of range. Those instants become the T0 values of
// predicted failures. Prediction quality only affects which failures get
// masked; the protocol itself never depends on it.
type VisibilityPredictor struct {
	topo *Topology
	log  logging.Logger
}

// NewVisibilityPredictor builds a predictor over the topology. log may be nil.
func NewVisibilityPredictor(topo *Topology, log logging.Logger) *VisibilityPredictor {
	if log == nil {
		log = logging.Noop()
	}
	return &VisibilityPredictor{topo: topo, log: log}
}

// LinkVisible evaluates a link's geometry at simTime: both endpoints must
// have positions, the segment must clear the Earth, and the distance must be
// within the link's range.
func (p *VisibilityPredictor) LinkVisible(link *Link, simTime time.Time) bool {
	posA, okA := p.topo.PositionAt(link.NodeA, simTime)
	posB, okB := p.topo.PositionAt(link.NodeB, simTime)
	if !okA || !okB {
		return false
	}
	if !hasLineOfSight(posA, posB) {
		return false
	}
	if link.MaxRangeKm > 0 && posA.DistanceTo(posB) > link.MaxRangeKm {
		return false
	}
	return true
}

// Predict scans [start, start+horizon] in steps and returns, per link, the
// first visible-to-invisible transition. Links that are already invisible at
// start are skipped: there is nothing to mask on a link that is down.
func (p *VisibilityPredictor) Predict(start time.Time, horizon, step time.Duration) []PredictedOutage {
	if step <= 0 {
		step = time.Second
	}

	var outages []PredictedOutage
	for _, link := range p.topo.Links() {
		if !p.LinkVisible(link, start) {
			continue
		}
		for offset := step; offset <= horizon; offset += step {
			at := start.Add(offset)
			if !p.LinkVisible(link, at) {
				outages = append(outages, PredictedOutage{
					LinkID: link.ID,
					NodeA:  link.NodeA,
					NodeB:  link.NodeB,
					At:     at,
				})
				break
			}
		}
	}
	return outages
}

// RegisterPredictions runs Predict and registers each outage with the
// registrar. Registration failures (e.g. a duplicate for the same link) are
// logged and skipped; the remaining outages still register.
func (p *VisibilityPredictor) RegisterPredictions(reg FailureRegistrar, start time.Time, horizon, step time.Duration) int {
	registered := 0
	for _, outage := range p.Predict(start, horizon, step) {
		tl, err := reg.RegisterPredictedFailure(outage.LinkID, outage.NodeA, outage.NodeB, outage.At)
		if err != nil {
			p.log.Warn(context.Background(), "predicted outage not registered",
				logging.String("link_id", outage.LinkID),
				logging.String("error", err.Error()),
			)
			continue
		}
		registered++
		p.log.Info(context.Background(), "predicted outage registered",
			logging.String("link_id", outage.LinkID),
			logging.Any("t0", tl.T0),
			logging.Any("t1", tl.T1),
		)
	}
	return registered
}
