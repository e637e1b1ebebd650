package rfp

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/satnet-rfp/internal/logging"
)

// PendingUpdate is one route-update intent queued while buffering is active.
type PendingUpdate struct {
	Target     string
	Change     RouteChange
	EnqueuedAt time.Time
}

// UpdateBuffer decouples the receipt of a routing-table change from its
// application. While buffering is on, submitted updates queue in FIFO order;
// ExitBufferingMode applies the whole queue as one logical unit and then
// triggers a global convergence so every node recomputes from the same base.
type UpdateBuffer struct {
	mu        sync.Mutex
	buffering bool
	pending   []PendingUpdate
	blocked   uint64
	applied   uint64

	sink  RoutingSink
	nodes NodeDirectory
	log   logging.Logger
	rec   ActivityRecorder
}

// BufferSnapshot is a point-in-time view of the buffer's counters.
type BufferSnapshot struct {
	Buffering bool
	Pending   int
	Blocked   uint64
	Applied   uint64
}

// NewUpdateBuffer constructs a buffer applying updates through sink. The node
// directory supplies the node set for the convergence trigger.
func NewUpdateBuffer(sink RoutingSink, nodes NodeDirectory, log logging.Logger, rec ActivityRecorder) *UpdateBuffer {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = NoopActivityRecorder{}
	}
	return &UpdateBuffer{
		sink:  sink,
		nodes: nodes,
		log:   log,
		rec:   rec,
	}
}

// EnterBufferingMode switches the buffer into queueing mode. Idempotent.
func (b *UpdateBuffer) EnterBufferingMode(now time.Time) {
	b.mu.Lock()
	already := b.buffering
	b.buffering = true
	b.mu.Unlock()

	if already {
		return
	}
	b.log.Info(context.Background(), "route update buffering started", logging.Any("at", now))
}

// Submit either queues the update (buffering mode) or applies it immediately
// through the sink.
func (b *UpdateBuffer) Submit(target string, change RouteChange, now time.Time) {
	b.mu.Lock()
	if b.buffering {
		b.pending = append(b.pending, PendingUpdate{
			Target:     target,
			Change:     change,
			EnqueuedAt: now,
		})
		b.blocked++
		pending := len(b.pending)
		b.mu.Unlock()

		b.rec.UpdateBuffered()
		b.rec.SetPendingUpdates(pending)
		return
	}
	b.applied++
	b.mu.Unlock()

	b.apply(target, change)
}

// ExitBufferingMode clears the buffering flag, applies every queued update in
// original submission order, then triggers convergence on all nodes. The
// flush runs as a single critical section: Submit calls cannot interleave
// with it.
func (b *UpdateBuffer) ExitBufferingMode(now time.Time) {
	b.mu.Lock()
	b.buffering = false
	flush := b.pending
	b.pending = nil
	b.applied += uint64(len(flush))
	b.mu.Unlock()

	b.log.Info(context.Background(), "route update buffering ended",
		logging.Int("flushed", len(flush)),
		logging.Any("at", now),
	)

	for _, u := range flush {
		b.apply(u.Target, u.Change)
	}
	b.rec.SetPendingUpdates(0)

	var all []string
	if b.nodes != nil {
		all = b.nodes.Nodes()
	}
	if err := b.sink.TriggerConvergence(all); err != nil {
		b.rec.SinkFailure()
		b.log.Warn(context.Background(), "sink rejected convergence trigger; continuing in simulated mode",
			logging.String("error", err.Error()),
		)
	}
}

// Buffering reports whether the buffer is currently queueing.
func (b *UpdateBuffer) Buffering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffering
}

// Snapshot returns the current counters.
func (b *UpdateBuffer) Snapshot() BufferSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferSnapshot{
		Buffering: b.buffering,
		Pending:   len(b.pending),
		Blocked:   b.blocked,
		Applied:   b.applied,
	}
}

func (b *UpdateBuffer) apply(target string, change RouteChange) {
	b.rec.UpdateApplied()
	if err := b.sink.ApplyRouteChange(target, change); err != nil {
		b.rec.SinkFailure()
		b.log.Warn(context.Background(), "sink rejected route change; continuing in simulated mode",
			logging.String("node", target),
			logging.String("op", string(change.Op)),
			logging.String("error", err.Error()),
		)
	}
}
