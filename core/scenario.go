package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrScenarioBadInput = errors.New("invalid scenario")

// Scenario describes one simulation run: the node and link population, the
// clock parameters, and any explicitly scripted predicted failures. Scripted
// failures complement the visibility predictor; both feed the same
// registration API.
type Scenario struct {
	Name             string          `json:"name"`
	Epoch            time.Time       `json:"epoch"`
	DurationSeconds  float64         `json:"duration_seconds"`
	TickMilliseconds int             `json:"tick_milliseconds"`
	Nodes            []ScenarioNode  `json:"nodes"`
	Links            []ScenarioLink  `json:"links"`
	PredictedEvents  []ScenarioEvent `json:"predicted_failures"`
}

// ScenarioNode is a satellite (TLE present) or a ground station (static
// position).
type ScenarioNode struct {
	ID       string `json:"id"`
	TLE1     string `json:"tle1,omitempty"`
	TLE2     string `json:"tle2,omitempty"`
	Position *Vec3  `json:"position,omitempty"`
}

// ScenarioLink connects two scenario nodes.
type ScenarioLink struct {
	ID         string  `json:"id"`
	NodeA      string  `json:"node_a"`
	NodeB      string  `json:"node_b"`
	MaxRangeKm float64 `json:"max_range_km,omitempty"`
}

// ScenarioEvent scripts one predicted failure at an offset from the epoch.
type ScenarioEvent struct {
	LinkID          string  `json:"link_id"`
	T0OffsetSeconds float64 `json:"t0_offset_seconds"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario's internal consistency.
func (s *Scenario) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrScenarioBadInput)
	}
	if s.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrScenarioBadInput)
	}

	nodeIDs := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty ID", ErrScenarioBadInput)
		}
		if nodeIDs[n.ID] {
			return fmt.Errorf("%w: duplicate node %q", ErrScenarioBadInput, n.ID)
		}
		nodeIDs[n.ID] = true
		if (n.TLE1 == "") != (n.TLE2 == "") {
			return fmt.Errorf("%w: node %q has only one TLE line", ErrScenarioBadInput, n.ID)
		}
	}

	linkIDs := make(map[string]bool, len(s.Links))
	for _, l := range s.Links {
		if l.ID == "" {
			return fmt.Errorf("%w: link with empty ID", ErrScenarioBadInput)
		}
		if linkIDs[l.ID] {
			return fmt.Errorf("%w: duplicate link %q", ErrScenarioBadInput, l.ID)
		}
		linkIDs[l.ID] = true
		if !nodeIDs[l.NodeA] || !nodeIDs[l.NodeB] {
			return fmt.Errorf("%w: link %q references unknown node", ErrScenarioBadInput, l.ID)
		}
		if l.NodeA == l.NodeB {
			return fmt.Errorf("%w: link %q has identical endpoints", ErrScenarioBadInput, l.ID)
		}
	}

	for _, ev := range s.PredictedEvents {
		if !linkIDs[ev.LinkID] {
			return fmt.Errorf("%w: predicted failure references unknown link %q", ErrScenarioBadInput, ev.LinkID)
		}
		if ev.T0OffsetSeconds <= 0 {
			return fmt.Errorf("%w: predicted failure on %q has non-positive offset", ErrScenarioBadInput, ev.LinkID)
		}
	}
	return nil
}

// Tick returns the scenario's tick duration, defaulting to 100 ms.
func (s *Scenario) Tick() time.Duration {
	if s.TickMilliseconds <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.TickMilliseconds) * time.Millisecond
}

// Duration returns the scenario's run length.
func (s *Scenario) Duration() time.Duration {
	return time.Duration(s.DurationSeconds * float64(time.Second))
}

// StartTime returns the scenario epoch, defaulting to the zero offset of a
// fixed reference date so runs are reproducible without wall-clock coupling.
func (s *Scenario) StartTime() time.Time {
	if s.Epoch.IsZero() {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return s.Epoch
}

// BuildTopology materializes the scenario's nodes and links.
func (s *Scenario) BuildTopology() (*Topology, error) {
	topo := NewTopology()
	for _, n := range s.Nodes {
		var static Vec3
		if n.Position != nil {
			static = *n.Position
		}
		if _, err := topo.AddNode(n.ID, NewMotionModel(n.TLE1, n.TLE2, static)); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Links {
		link := &Link{ID: l.ID, NodeA: l.NodeA, NodeB: l.NodeB, MaxRangeKm: l.MaxRangeKm}
		if err := topo.AddLink(link); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

// RegisterScriptedEvents registers the scenario's scripted predicted failures
// against the registrar. It returns the first registration error.
func (s *Scenario) RegisterScriptedEvents(topo *Topology, reg FailureRegistrar) error {
	for _, ev := range s.PredictedEvents {
		link, ok := topo.LinkByID(ev.LinkID)
		if !ok {
			return fmt.Errorf("%w: scripted event for unknown link %q", ErrScenarioBadInput, ev.LinkID)
		}
		t0 := s.StartTime().Add(time.Duration(ev.T0OffsetSeconds * float64(time.Second)))
		if _, err := reg.RegisterPredictedFailure(link.ID, link.NodeA, link.NodeB, t0); err != nil {
			return err
		}
	}
	return nil
}
