package rfp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time { return epoch.Add(offset) }

// sinkCall is one recorded RoutingSink invocation.
type sinkCall struct {
	Kind   string // "admin", "route", "converge"
	Node   string
	Up     bool
	Change RouteChange
	Nodes  []string
}

// recordingSink captures every sink call; it can be switched to fail every
// call to exercise the best-effort path.
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	fail  bool
}

var errSinkDown = errors.New("routing daemon unavailable")

func (s *recordingSink) SetLinkAdminState(node string, up bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Kind: "admin", Node: node, Up: up})
	if s.fail {
		return errSinkDown
	}
	return nil
}

func (s *recordingSink) ApplyRouteChange(node string, change RouteChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Kind: "route", Node: node, Change: change})
	if s.fail {
		return errSinkDown
	}
	return nil
}

func (s *recordingSink) TriggerConvergence(nodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Kind: "converge", Nodes: nodes})
	if s.fail {
		return errSinkDown
	}
	return nil
}

func (s *recordingSink) Calls() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingSink) callsOfKind(kind string) []sinkCall {
	var out []sinkCall
	for _, c := range s.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// fakeDirectory is a fixed node population with index-derived addressing.
type fakeDirectory struct {
	ids []string
}

func newFakeDirectory(n int) *fakeDirectory {
	d := &fakeDirectory{}
	for i := 0; i < n; i++ {
		d.ids = append(d.ids, fmt.Sprintf("node-%d", i))
	}
	return d
}

func (d *fakeDirectory) ValidNode(id string) bool {
	return d.index(id) >= 0
}

func (d *fakeDirectory) Nodes() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

func (d *fakeDirectory) PrefixFor(id string) string {
	return fmt.Sprintf("10.%d.0.0/16", d.index(id))
}

func (d *fakeDirectory) RouterAddress(id string) string {
	return fmt.Sprintf("10.0.%d.1", d.index(id))
}

func (d *fakeDirectory) index(id string) int {
	for i, n := range d.ids {
		if n == id {
			return i
		}
	}
	return -1
}

// neverMasked is a MaskingPredicate that masks nothing.
func neverMasked(string, string, time.Time) bool { return false }

// alwaysMasked masks everything.
func alwaysMasked(string, string, time.Time) bool { return true }
