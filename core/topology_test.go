package core

import (
	"errors"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTopology_AddNodeAssignsIndexOrder(t *testing.T) {
	topo := NewTopology()

	for _, id := range []string{"sat-0", "sat-1", "gs-0"} {
		if _, err := topo.AddNode(id, nil); err != nil {
			t.Fatalf("AddNode(%q): %v", id, err)
		}
	}

	if _, err := topo.AddNode("sat-0", nil); !errors.Is(err, ErrNodeExists) {
		t.Fatalf("duplicate node: got %v", err)
	}
	if _, err := topo.AddNode("", nil); !errors.Is(err, ErrNodeBadInput) {
		t.Fatalf("empty node ID: got %v", err)
	}

	nodes := topo.Nodes()
	if len(nodes) != 3 || nodes[0] != "sat-0" || nodes[2] != "gs-0" {
		t.Fatalf("unexpected node order: %v", nodes)
	}

	// Index-derived addressing.
	if got := topo.PrefixFor("sat-1"); got != "10.1.0.0/16" {
		t.Fatalf("PrefixFor = %q", got)
	}
	if got := topo.RouterAddress("gs-0"); got != "10.0.2.1" {
		t.Fatalf("RouterAddress = %q", got)
	}
	if !topo.ValidNode("sat-1") || topo.ValidNode("sat-9") {
		t.Fatalf("ValidNode misreports membership")
	}
}

func TestTopology_AddLinkValidation(t *testing.T) {
	topo := NewTopology()
	topo.AddNode("sat-0", nil)
	topo.AddNode("sat-1", nil)

	if err := topo.AddLink(&Link{ID: "isl-1", NodeA: "sat-0", NodeB: "sat-1"}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	// Reversed endpoint order collides with the canonical pair.
	err := topo.AddLink(&Link{ID: "isl-2", NodeA: "sat-1", NodeB: "sat-0"})
	if !errors.Is(err, ErrLinkExists) {
		t.Fatalf("reversed duplicate pair: got %v", err)
	}

	if err := topo.AddLink(&Link{ID: "isl-3", NodeA: "sat-0", NodeB: "sat-9"}); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("unknown endpoint: got %v", err)
	}
	if err := topo.AddLink(&Link{ID: "isl-4", NodeA: "sat-0", NodeB: "sat-0"}); !errors.Is(err, ErrLinkBadInput) {
		t.Fatalf("identical endpoints: got %v", err)
	}
	if err := topo.AddLink(nil); !errors.Is(err, ErrLinkBadInput) {
		t.Fatalf("nil link: got %v", err)
	}

	link, ok := topo.LinkByID("isl-1")
	if !ok || link.NodeA != "sat-0" {
		t.Fatalf("LinkByID lookup failed")
	}
	if _, ok := topo.LinkByID("isl-9"); ok {
		t.Fatalf("LinkByID found a ghost link")
	}
}

func TestTopology_PositionAt(t *testing.T) {
	topo := NewTopology()
	topo.AddNode("gs-0", &StaticMotionModel{Position: Vec3{X: 6371, Y: 0, Z: 0}})

	pos, ok := topo.PositionAt("gs-0", testEpoch)
	if !ok || pos.X != 6371 {
		t.Fatalf("PositionAt = %v, %v", pos, ok)
	}
	if _, ok := topo.PositionAt("sat-9", testEpoch); ok {
		t.Fatalf("unknown node reported a position")
	}
}
