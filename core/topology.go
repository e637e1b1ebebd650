package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
)

var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node not found")
	ErrNodeBadInput = errors.New("invalid node")
	ErrLinkExists   = errors.New("link already exists")
	ErrLinkBadInput = errors.New("invalid link")
)

// Node is one router in the constellation: a satellite with a motion model or
// a ground station pinned to a static position. Index drives the node's
// derived addressing.
type Node struct {
	ID     string
	Index  int
	Motion MotionModel
}

// Link is an inter-satellite (or sat-ground) link between two nodes.
// MaxRangeKm of zero means range-unlimited; only Earth occlusion applies.
type Link struct {
	ID         string
	NodeA      string
	NodeB      string
	MaxRangeKm float64
}

// Topology stores the node and link population behind an RWMutex. It serves
// as the node directory for the failure-masking pipeline: node validity,
// per-node prefixes, and router addresses are all answered here.
type Topology struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	links map[rfp.PairKey]*Link
}

var _ rfp.NodeDirectory = (*Topology)(nil)

// NewTopology creates an empty topology.
func NewTopology() *Topology {
	return &Topology{
		nodes: make(map[string]*Node),
		links: make(map[rfp.PairKey]*Link),
	}
}

// AddNode registers a node. The node's Index is assigned in insertion order.
func (t *Topology) AddNode(id string, motion MotionModel) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty ID", ErrNodeBadInput)
	}
	if motion == nil {
		motion = &StaticMotionModel{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrNodeExists, id)
	}
	node := &Node{ID: id, Index: len(t.order), Motion: motion}
	t.nodes[id] = node
	t.order = append(t.order, id)
	return node, nil
}

// AddLink registers a link between two existing, distinct nodes. Pairs are
// canonical, so a second link over the same pair is rejected regardless of
// endpoint order.
func (t *Topology) AddLink(link *Link) error {
	if link == nil || link.ID == "" {
		return fmt.Errorf("%w: nil or empty ID", ErrLinkBadInput)
	}
	if link.NodeA == link.NodeB {
		return fmt.Errorf("%w: identical endpoints %q", ErrLinkBadInput, link.NodeA)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[link.NodeA]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, link.NodeA)
	}
	if _, ok := t.nodes[link.NodeB]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, link.NodeB)
	}

	key := rfp.MakePairKey(link.NodeA, link.NodeB)
	if _, exists := t.links[key]; exists {
		return fmt.Errorf("%w: %s", ErrLinkExists, key)
	}
	t.links[key] = link
	return nil
}

// Links returns all links in pair-key insertion-independent order.
func (t *Topology) Links() []*Link {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Link, 0, len(t.links))
	for _, id := range t.order {
		for key, link := range t.links {
			if key.A == id {
				out = append(out, link)
			}
		}
	}
	return out
}

// LinkByID finds a link by its identifier.
func (t *Topology) LinkByID(id string) (*Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, link := range t.links {
		if link.ID == id {
			return link, true
		}
	}
	return nil, false
}

// PositionAt returns the node's position at simTime.
func (t *Topology) PositionAt(id string, simTime time.Time) (Vec3, bool) {
	t.mu.RLock()
	node := t.nodes[id]
	t.mu.RUnlock()

	if node == nil || node.Motion == nil {
		return Vec3{}, false
	}
	return node.Motion.PositionAt(simTime)
}

// ValidNode reports whether the node exists.
func (t *Topology) ValidNode(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok
}

// Nodes returns all node IDs in insertion order.
func (t *Topology) Nodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// PrefixFor returns the /16 advertised by the node, derived from its index.
func (t *Topology) PrefixFor(id string) string {
	return fmt.Sprintf("10.%d.0.0/16", t.indexOf(id))
}

// RouterAddress returns the node's router (next-hop) address.
func (t *Topology) RouterAddress(id string) string {
	return fmt.Sprintf("10.0.%d.1", t.indexOf(id))
}

func (t *Topology) indexOf(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if node := t.nodes[id]; node != nil {
		return node.Index
	}
	return -1
}
