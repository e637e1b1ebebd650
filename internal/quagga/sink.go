// Package quagga drives a Quagga routing stack through vtysh. When no vtysh
// binary can be located the sink degrades to simulation mode: every command is
// logged and reported as successful, so the rest of the pipeline keeps its
// schedule.
package quagga

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
	"github.com/signalsfoundry/satnet-rfp/internal/rfp"
)

// maxCommandLength guards against malformed prefixes or nexthops blowing up
// the vtysh invocation.
const maxCommandLength = 200

// convergenceNodeCap bounds how many nodes a single convergence trigger
// touches.
const convergenceNodeCap = 20

// CommandRunner executes one vtysh command on behalf of a node. The default
// implementation shells out; tests substitute a recorder.
type CommandRunner interface {
	Run(ctx context.Context, node, command string) error
}

// ExecRunner runs vtysh -c <command> as a subprocess.
type ExecRunner struct {
	// Binary is the vtysh path to invoke. Empty means "vtysh" from $PATH.
	Binary string
}

func (r *ExecRunner) Run(ctx context.Context, node, command string) error {
	bin := r.Binary
	if bin == "" {
		bin = "vtysh"
	}
	cmd := exec.CommandContext(ctx, bin, "-c", command)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("vtysh on %s: %w: %s", node, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Sink implements the routing boundary against vtysh.
type Sink struct {
	runner CommandRunner
	log    logging.Logger

	probeOnce sync.Once
	available bool
	vtyshPath string
}

var _ rfp.RoutingSink = (*Sink)(nil)

// NewSink builds a vtysh-backed sink. runner may be nil, in which case the
// sink probes for a vtysh binary and shells out to it; if none is found the
// sink runs in simulation mode.
func NewSink(runner CommandRunner, log logging.Logger) *Sink {
	if log == nil {
		log = logging.Noop()
	}
	return &Sink{runner: runner, log: log}
}

// Available reports whether a real vtysh backend was found. The probe runs
// once and is cached.
func (s *Sink) Available() bool {
	s.probeOnce.Do(s.probe)
	return s.available
}

func (s *Sink) probe() {
	if s.runner != nil {
		s.available = true
		return
	}
	path, ok := LocateVtysh()
	if !ok {
		s.log.Warn(context.Background(), "vtysh not found in any candidate path; running in simulation mode")
		return
	}
	s.log.Info(context.Background(), "vtysh located", logging.String("path", path))
	s.vtyshPath = path
	s.runner = &ExecRunner{Binary: path}
	s.available = true
}

// LocateVtysh probes the candidate locations for a vtysh binary:
// $DCE_ROOT/bin_dce, every directory in $DCE_PATH, then the usual system
// locations.
func LocateVtysh() (string, bool) {
	var candidates []string

	if root := primaryDCERoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, "bin_dce", "vtysh"))
	}
	for _, dir := range filepath.SplitList(os.Getenv("DCE_PATH")) {
		if dir != "" {
			candidates = append(candidates, filepath.Join(dir, "vtysh"))
		}
	}
	candidates = append(candidates,
		"/usr/bin/vtysh",
		"/usr/local/bin/vtysh",
	)

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// primaryDCERoot returns the first entry of the colon-separated $DCE_ROOT.
func primaryDCERoot() string {
	root := os.Getenv("DCE_ROOT")
	if i := strings.IndexByte(root, ':'); i >= 0 {
		return root[:i]
	}
	return root
}

// SetLinkAdminState shuts an interface down (or back up) on the node's
// routing daemon so OSPF sees the administrative change immediately.
func (s *Sink) SetLinkAdminState(node string, up bool) error {
	state := "shutdown"
	if up {
		state = "no shutdown"
	}
	return s.run(node, "configure terminal", state)
}

// ApplyRouteChange installs or removes a static route and redistributes it
// into OSPF.
func (s *Sink) ApplyRouteChange(node string, change rfp.RouteChange) error {
	switch change.Op {
	case rfp.RouteAdd, rfp.RouteUpdate:
		metric := change.Metric
		if metric <= 0 {
			metric = 1
		}
		return s.run(node,
			"configure terminal",
			fmt.Sprintf("ip route %s %s %d", change.Prefix, change.Nexthop, metric),
			"router ospf",
			"redistribute static",
		)
	case rfp.RouteDelete:
		return s.run(node,
			"configure terminal",
			fmt.Sprintf("no ip route %s %s", change.Prefix, change.Nexthop),
		)
	default:
		return fmt.Errorf("unknown route operation %q", change.Op)
	}
}

// TriggerConvergence flushes the OSPF database on each node and toggles the
// backbone area to force an immediate SPF recomputation.
func (s *Sink) TriggerConvergence(nodes []string) error {
	if len(nodes) > convergenceNodeCap {
		nodes = nodes[:convergenceNodeCap]
	}
	var firstErr error
	for _, node := range nodes {
		err := s.run(node,
			"clear ip ospf database",
			"router ospf",
			"area 0.0.0.0 stub",
			"no area 0.0.0.0 stub",
		)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) run(node string, commands ...string) error {
	for _, command := range commands {
		if command == "" {
			continue
		}
		if len(command) > maxCommandLength {
			s.log.Warn(context.Background(), "vtysh command too long, skipping",
				logging.String("node", node),
				logging.String("command", command[:50]+"..."),
			)
			continue
		}
		if !s.Available() {
			s.log.Debug(context.Background(), "simulated vtysh",
				logging.String("node", node),
				logging.String("command", command),
			)
			continue
		}
		if err := s.runner.Run(context.Background(), node, command); err != nil {
			return err
		}
	}
	return nil
}
