package rfp

import (
	"fmt"
	"sync"
	"time"
)

// AggregateMetrics accumulates outcomes for one event class (predicted or
// baseline).
type AggregateMetrics struct {
	Events                uint64
	RouteOutageMsTotal    float64
	DetectionMsTotal      float64
	PacketsLost           uint64
	ExternalModifications uint64
}

// ClassSummary is the per-class view produced by Report: totals plus
// averages. Averages over zero events are exactly zero.
type ClassSummary struct {
	Events                uint64
	AvgOutageMs           float64
	AvgDetectionMs        float64
	PacketsLost           uint64
	ExternalModifications uint64
}

// Report compares the predicted (masked) class against the baseline
// (unpredicted) class.
type Report struct {
	Predicted ClassSummary
	Baseline  ClassSummary
}

// String renders the report in a final-summary format.
func (r Report) String() string {
	return fmt.Sprintf(
		"predicted: events=%d avg_outage=%.1fms avg_detection=%.1fms packets_lost=%d external_mods=%d | "+
			"baseline: events=%d avg_outage=%.1fms avg_detection=%.1fms packets_lost=%d external_mods=%d",
		r.Predicted.Events, r.Predicted.AvgOutageMs, r.Predicted.AvgDetectionMs,
		r.Predicted.PacketsLost, r.Predicted.ExternalModifications,
		r.Baseline.Events, r.Baseline.AvgOutageMs, r.Baseline.AvgDetectionMs,
		r.Baseline.PacketsLost, r.Baseline.ExternalModifications,
	)
}

type openEvent struct {
	start          time.Time
	convergence    time.Time
	hasConvergence bool
	predicted      bool
}

// Recorder is the passive metrics observer. The controller feeds it event
// lifecycle signals; it never calls back into the state machine.
type Recorder struct {
	mu        sync.Mutex
	predicted AggregateMetrics
	baseline  AggregateMetrics
	active    map[PairKey]*openEvent
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{active: make(map[PairKey]*openEvent)}
}

// StartEvent opens outage measurement for a pair. A second StartEvent for the
// same pair before completion replaces the first measurement.
func (r *Recorder) StartEvent(key PairKey, predicted bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[key] = &openEvent{start: now, predicted: predicted}
}

// RecordConvergence stamps the convergence instant for an open event.
// Unknown pairs are ignored.
func (r *Recorder) RecordConvergence(key PairKey, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.active[key]
	if !ok {
		return
	}
	ev.convergence = now
	ev.hasConvergence = true
}

// CompleteEvent closes an open event and folds it into its class aggregate.
// Outage is convergence minus start, clamped to >= 0; an event that never
// recorded convergence contributes zero outage.
func (r *Recorder) CompleteEvent(key PairKey, externalMods uint64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.active[key]
	if !ok {
		return
	}
	delete(r.active, key)

	outageMs := 0.0
	if ev.hasConvergence {
		outageMs = float64(ev.convergence.Sub(ev.start)) / float64(time.Millisecond)
		if outageMs < 0 {
			outageMs = 0
		}
	}

	agg := &r.baseline
	if ev.predicted {
		agg = &r.predicted
	}
	agg.Events++
	agg.RouteOutageMsTotal += outageMs
	agg.ExternalModifications += externalMods
}

// RecordBaselineEvent records one unpredicted failure with externally
// supplied measurements, bypassing the open-event lifecycle.
func (r *Recorder) RecordBaselineEvent(outageMs float64, packetsLost uint64, detectionMs float64, externalMods uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseline.Events++
	r.baseline.RouteOutageMsTotal += outageMs
	r.baseline.PacketsLost += packetsLost
	r.baseline.DetectionMsTotal += detectionMs
	r.baseline.ExternalModifications += externalMods
}

// Aggregates returns copies of the two raw accumulators.
func (r *Recorder) Aggregates() (predicted, baseline AggregateMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.predicted, r.baseline
}

// Report computes per-class averages. It never fails, including on zero
// recorded events.
func (r *Recorder) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{
		Predicted: summarize(r.predicted),
		Baseline:  summarize(r.baseline),
	}
}

func summarize(a AggregateMetrics) ClassSummary {
	s := ClassSummary{
		Events:                a.Events,
		PacketsLost:           a.PacketsLost,
		ExternalModifications: a.ExternalModifications,
	}
	if a.Events > 0 {
		s.AvgOutageMs = a.RouteOutageMsTotal / float64(a.Events)
		s.AvgDetectionMs = a.DetectionMsTotal / float64(a.Events)
	}
	return s
}
