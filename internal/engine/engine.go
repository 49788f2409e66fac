// Package engine provides the reference discrete-event driver used to
// exercise and test the protocol core (the optimistic parallel
// discrete-event simulator this core is meant to run under is explicitly
// out of scope, named only through the [ctp.Scheduler] interface the core
// consumes). It is a
// single conservative, deterministic scheduler -- not an optimistic,
// rollback-capable one -- sufficient to drive the core to the same
// observable outcomes.
package engine

import (
	"container/heap"
	"log/slog"
	"math/rand/v2"

	"github.com/ctpnet/ctpsim/internal/ctp"
	ctpmetrics "github.com/ctpnet/ctpsim/internal/metrics"
	"github.com/ctpnet/ctpsim/internal/phy"
	"github.com/ctpnet/ctpsim/internal/topology"
)

// scheduledEvent is one entry of the engine's event queue.
type scheduledEvent struct {
	time    ctp.VTime
	seq     uint64
	dest    ctp.NodeID
	evType  ctp.EventType
	payload any
}

// eventQueue is a [container/heap.Interface] ordering events by virtual
// time, then by insertion order (the core never observes wall
// time, only a consistent event order).
type eventQueue []*scheduledEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*scheduledEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// nodeRuntime bundles one simulated node's protocol stack with its
// physical-layer bookkeeping (each is separate per-node state,
// joined here only because the engine is what composes a node out of the
// core's pieces).
type nodeRuntime struct {
	state    *ctp.NodeState
	physical *phy.PhysicalState
}

// Engine is the engine's whole run: the event queue, the node set, the
// shared channel model, and the collection goal.
type Engine struct {
	queue eventQueue
	seq   uint64
	now   ctp.VTime
	rng   *rand.Rand

	nodes     map[ctp.NodeID]*nodeRuntime
	channel   *phy.Channel
	coords    *topology.Coordinates
	rootID    ctp.NodeID
	maxTime   ctp.VTime
	goal      int
	collected map[ctp.PacketIdentity]struct{}

	metrics *ctpmetrics.Collector
	logger  *slog.Logger
}

// Config bundles the inputs [New] needs to assemble a run.
type Config struct {
	Coordinates *topology.Coordinates
	Channel     *phy.Channel
	RootID      ctp.NodeID
	CSMA        ctp.CSMAConfig
	Goal        int
	MaxTime     ctp.VTime
	Seed        uint64
	Metrics     *ctpmetrics.Collector
	Logger      *slog.Logger
}

// New assembles an [Engine] with one node per coordinate entry, wires each
// node's link layer to the shared [phy.Channel] through a dedicated
// [phy.NodeLink], and seeds its deterministic random source.
func New(cfg Config) *Engine {
	e := &Engine{
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		nodes:     make(map[ctp.NodeID]*nodeRuntime, cfg.Coordinates.NodeCount()),
		channel:   cfg.Channel,
		coords:    cfg.Coordinates,
		rootID:    cfg.RootID,
		maxTime:   cfg.MaxTime,
		goal:      cfg.Goal,
		collected: make(map[ctp.PacketIdentity]struct{}),
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	heap.Init(&e.queue)

	for i := 0; i < cfg.Coordinates.NodeCount(); i++ {
		id := ctp.NodeID(i)
		isRoot := id == cfg.RootID
		physical := phy.NewPhysicalState(id, true)
		link := &phy.NodeLink{Channel: cfg.Channel, State: physical}

		var collect ctp.Collector
		if isRoot {
			collect = e.collect
		}

		state := ctp.NewNodeState(id, isRoot, cfg.Coordinates, collect, cfg.CSMA, link, link, cfg.Logger)
		if cfg.Metrics != nil {
			state.AttachMetrics(cfg.Metrics)
		}
		e.nodes[id] = &nodeRuntime{state: state, physical: physical}
	}

	for id := range e.nodes {
		e.Schedule(id, 0, ctp.EventInit, nil)
	}
	return e
}

// collect records a distinct data packet reaching the root.
func (e *Engine) collect(packet *ctp.DataFrame) {
	e.collected[packet.Identity()] = struct{}{}
	if e.metrics != nil {
		e.metrics.IncCollectedPackets()
	}
}

// CollectedCount returns the number of distinct packets the root has
// collected so far.
func (e *Engine) CollectedCount() int { return len(e.collected) }

// -------------------------------------------------------------------------
// ctp.Scheduler
// -------------------------------------------------------------------------

// Schedule implements [ctp.Scheduler].
func (e *Engine) Schedule(dest ctp.NodeID, delay ctp.VTime, evType ctp.EventType, payload any) {
	e.seq++
	heap.Push(&e.queue, &scheduledEvent{
		time:    e.now + delay,
		seq:     e.seq,
		dest:    dest,
		evType:  evType,
		payload: payload,
	})
}

// Random implements [ctp.Scheduler].
func (e *Engine) Random() float64 { return e.rng.Float64() }

// RandomRange implements [ctp.Scheduler]: a uniform integer in [lo, hi].
func (e *Engine) RandomRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + e.rng.IntN(hi-lo+1)
}

// -------------------------------------------------------------------------
// Run loop
// -------------------------------------------------------------------------

// deliver implements [phy.DeliverFunc]: hand a physical-layer outcome back
// to the scheduler as a zero-delay event.
func (e *Engine) deliver(to ctp.NodeID, evType ctp.EventType, payload any, sched ctp.Scheduler) {
	sched.Schedule(to, 0, evType, payload)
}

// Run drains the event queue until the root has collected the goal number
// of distinct packets, the queue empties, or MaxTime elapses. Returns true if the
// goal was met.
func (e *Engine) Run() bool {
	for e.queue.Len() > 0 {
		if len(e.collected) >= e.goal {
			return true
		}
		ev := heap.Pop(&e.queue).(*scheduledEvent)
		if e.maxTime > 0 && ev.time > e.maxTime {
			return false
		}
		e.now = ev.time
		e.step(ev)
	}
	return len(e.collected) >= e.goal
}

// step dispatches one popped event to the owning node's physical layer or
// protocol stack.
func (e *Engine) step(ev *scheduledEvent) {
	node, ok := e.nodes[ev.dest]
	if !ok {
		if e.logger != nil {
			e.logger.Warn("event for unknown node", "node", ev.dest, "event", ev.evType)
		}
		return
	}

	switch ev.evType {
	case ctp.EventBeaconTransmissionStarted, ctp.EventDataPacketTransmissionStarted:
		payload, ok := ev.payload.(ctp.TransmissionStartedPayload)
		if !ok {
			return
		}
		e.channel.HandleTransmissionStart(ev.dest, node.physical, payload, e)

	case ctp.EventTransmissionFinished:
		id, ok := ev.payload.(int)
		if !ok {
			return
		}
		e.channel.HandleTransmissionFinished(ev.dest, node.physical, id, e.deliver, e)

	case ctp.EventFrameTransmitted:
		node.state.Dispatch(ctp.Event{Type: ev.evType, Time: ev.time, Payload: ev.payload}, e)
		node.physical.MarkTransmitting(false)

	default:
		node.state.Dispatch(ctp.Event{Type: ev.evType, Time: ev.time, Payload: ev.payload}, e)
	}
}
