package quagga

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
)

type recordedCommand struct {
	Node    string
	Command string
}

type fakeRunner struct {
	mu       sync.Mutex
	commands []recordedCommand
	err      error
}

func (r *fakeRunner) Run(_ context.Context, node, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, recordedCommand{Node: node, Command: command})
	return r.err
}

func (r *fakeRunner) all() []recordedCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedCommand, len(r.commands))
	copy(out, r.commands)
	return out
}

func TestSink_SetLinkAdminState(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	if err := sink.SetLinkAdminState("node-0", false); err != nil {
		t.Fatalf("SetLinkAdminState: %v", err)
	}

	cmds := runner.all()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d: %v", len(cmds), cmds)
	}
	if cmds[0].Command != "configure terminal" || cmds[1].Command != "shutdown" {
		t.Fatalf("unexpected command sequence: %v", cmds)
	}

	runner.commands = nil
	if err := sink.SetLinkAdminState("node-0", true); err != nil {
		t.Fatalf("SetLinkAdminState up: %v", err)
	}
	cmds = runner.all()
	if cmds[1].Command != "no shutdown" {
		t.Fatalf("expected 'no shutdown', got %q", cmds[1].Command)
	}
}

func TestSink_ApplyRouteChangeAdd(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	err := sink.ApplyRouteChange("node-3", rfp.RouteChange{
		Op:      rfp.RouteAdd,
		Prefix:  "10.1.0.0/16",
		Nexthop: "10.0.2.1",
		Metric:  5,
	})
	if err != nil {
		t.Fatalf("ApplyRouteChange: %v", err)
	}

	cmds := runner.all()
	want := []string{
		"configure terminal",
		"ip route 10.1.0.0/16 10.0.2.1 5",
		"router ospf",
		"redistribute static",
	}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %d: %v", len(want), len(cmds), cmds)
	}
	for i, w := range want {
		if cmds[i].Command != w {
			t.Fatalf("command %d = %q, want %q", i, cmds[i].Command, w)
		}
		if cmds[i].Node != "node-3" {
			t.Fatalf("command %d ran on %q, want node-3", i, cmds[i].Node)
		}
	}
}

func TestSink_ApplyRouteChangeDelete(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	err := sink.ApplyRouteChange("node-1", rfp.RouteChange{
		Op:      rfp.RouteDelete,
		Prefix:  "10.1.0.0/16",
		Nexthop: "10.0.2.1",
	})
	if err != nil {
		t.Fatalf("ApplyRouteChange: %v", err)
	}

	cmds := runner.all()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d: %v", len(cmds), cmds)
	}
	if cmds[1].Command != "no ip route 10.1.0.0/16 10.0.2.1" {
		t.Fatalf("unexpected delete command: %q", cmds[1].Command)
	}
}

func TestSink_ApplyRouteChangeDefaultsMetric(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	err := sink.ApplyRouteChange("node-0", rfp.RouteChange{
		Op:      rfp.RouteAdd,
		Prefix:  "10.2.0.0/16",
		Nexthop: "10.0.3.1",
	})
	if err != nil {
		t.Fatalf("ApplyRouteChange: %v", err)
	}

	cmds := runner.all()
	if cmds[1].Command != "ip route 10.2.0.0/16 10.0.3.1 1" {
		t.Fatalf("zero metric not defaulted: %q", cmds[1].Command)
	}
}

func TestSink_ApplyRouteChangeRejectsUnknownOp(t *testing.T) {
	sink := NewSink(&fakeRunner{}, nil)

	if err := sink.ApplyRouteChange("node-0", rfp.RouteChange{Op: "FLUSH"}); err == nil {
		t.Fatalf("unknown op accepted")
	}
}

func TestSink_TriggerConvergenceCapsNodes(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	var nodes []string
	for i := 0; i < 30; i++ {
		nodes = append(nodes, "node")
	}
	if err := sink.TriggerConvergence(nodes); err != nil {
		t.Fatalf("TriggerConvergence: %v", err)
	}

	// 4 commands per node, at most convergenceNodeCap nodes.
	if got := len(runner.all()); got != 4*convergenceNodeCap {
		t.Fatalf("expected %d commands, got %d", 4*convergenceNodeCap, got)
	}
}

func TestSink_RunnerErrorPropagates(t *testing.T) {
	wantErr := errors.New("daemon unreachable")
	sink := NewSink(&fakeRunner{err: wantErr}, nil)

	if err := sink.SetLinkAdminState("node-0", false); !errors.Is(err, wantErr) {
		t.Fatalf("runner error not propagated: %v", err)
	}
}

func TestSink_OverlongCommandSkipped(t *testing.T) {
	runner := &fakeRunner{}
	sink := NewSink(runner, nil)

	err := sink.ApplyRouteChange("node-0", rfp.RouteChange{
		Op:      rfp.RouteAdd,
		Prefix:  strings.Repeat("9", maxCommandLength),
		Nexthop: "10.0.0.1",
		Metric:  1,
	})
	if err != nil {
		t.Fatalf("ApplyRouteChange: %v", err)
	}

	for _, c := range runner.all() {
		if len(c.Command) > maxCommandLength {
			t.Fatalf("overlong command reached the runner: %d bytes", len(c.Command))
		}
	}
}

func TestSink_SimulationModeWithoutRunner(t *testing.T) {
	// No runner and (almost certainly) no vtysh on the test host: the sink
	// must degrade to simulation mode and report success.
	t.Setenv("DCE_ROOT", t.TempDir())
	t.Setenv("DCE_PATH", t.TempDir())

	sink := NewSink(nil, nil)
	if sink.Available() {
		t.Skip("vtysh present on test host")
	}

	if err := sink.SetLinkAdminState("node-0", false); err != nil {
		t.Fatalf("simulation mode returned error: %v", err)
	}
	if err := sink.TriggerConvergence([]string{"node-0"}); err != nil {
		t.Fatalf("simulation mode convergence returned error: %v", err)
	}
}
