package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RFPCollector bundles Prometheus metrics for the failure-prediction pipeline
// and implements the activity recorder interface consumed by the controller,
// the link gate, and the update buffer.
type RFPCollector struct {
	gatherer prometheus.Gatherer

	Events       *prometheus.CounterVec
	RouteUpdates *prometheus.CounterVec

	MaskedChanges  prometheus.Counter
	BaselineEvents prometheus.Counter
	SinkFailures   prometheus.Counter

	ActiveEvents   prometheus.Gauge
	PendingUpdates prometheus.Gauge
}

// NewRFPCollector registers the pipeline's Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewRFPCollector(reg prometheus.Registerer) (*RFPCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfp_events_total",
		Help: "Predicted-failure events by outcome (scheduled, completed, cancelled).",
	}, []string{"outcome"})
	events, err := registerCounterVec(reg, events, "rfp_events_total")
	if err != nil {
		return nil, err
	}

	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfp_route_updates_total",
		Help: "Route updates by disposition (buffered, applied).",
	}, []string{"disposition"})
	updates, err = registerCounterVec(reg, updates, "rfp_route_updates_total")
	if err != nil {
		return nil, err
	}

	masked, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfp_masked_changes_total",
		Help: "Physical link-state changes absorbed inside a masking window.",
	}), "rfp_masked_changes_total")
	if err != nil {
		return nil, err
	}
	baseline, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfp_baseline_events_total",
		Help: "Unpredicted link failures recorded against the baseline class.",
	}), "rfp_baseline_events_total")
	if err != nil {
		return nil, err
	}
	sinkFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfp_sink_failures_total",
		Help: "Failed calls to the routing sink (best effort, never fatal).",
	}), "rfp_sink_failures_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfp_active_events",
		Help: "Currently registered predicted failures that have not completed.",
	}), "rfp_active_events")
	if err != nil {
		return nil, err
	}
	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfp_pending_updates",
		Help: "Route updates currently held in the buffering queue.",
	}), "rfp_pending_updates")
	if err != nil {
		return nil, err
	}

	return &RFPCollector{
		gatherer:       gatherer,
		Events:         events,
		RouteUpdates:   updates,
		MaskedChanges:  masked,
		BaselineEvents: baseline,
		SinkFailures:   sinkFailures,
		ActiveEvents:   active,
		PendingUpdates: pending,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RFPCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *RFPCollector) EventScheduled() {
	if c != nil && c.Events != nil {
		c.Events.WithLabelValues("scheduled").Inc()
	}
}

func (c *RFPCollector) EventCompleted() {
	if c != nil && c.Events != nil {
		c.Events.WithLabelValues("completed").Inc()
	}
}

func (c *RFPCollector) EventCancelled() {
	if c != nil && c.Events != nil {
		c.Events.WithLabelValues("cancelled").Inc()
	}
}

func (c *RFPCollector) MaskedChangeAbsorbed() {
	if c != nil && c.MaskedChanges != nil {
		c.MaskedChanges.Inc()
	}
}

func (c *RFPCollector) UpdateBuffered() {
	if c != nil && c.RouteUpdates != nil {
		c.RouteUpdates.WithLabelValues("buffered").Inc()
	}
}

func (c *RFPCollector) UpdateApplied() {
	if c != nil && c.RouteUpdates != nil {
		c.RouteUpdates.WithLabelValues("applied").Inc()
	}
}

func (c *RFPCollector) BaselineEventRecorded() {
	if c != nil && c.BaselineEvents != nil {
		c.BaselineEvents.Inc()
	}
}

func (c *RFPCollector) SinkFailure() {
	if c != nil && c.SinkFailures != nil {
		c.SinkFailures.Inc()
	}
}

func (c *RFPCollector) SetActiveEvents(n int) {
	if c != nil && c.ActiveEvents != nil {
		c.ActiveEvents.Set(float64(n))
	}
}

func (c *RFPCollector) SetPendingUpdates(n int) {
	if c != nil && c.PendingUpdates != nil {
		c.PendingUpdates.Set(float64(n))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
