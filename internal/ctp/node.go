package ctp

import "log/slog"

// Node dispatcher ("Event dispatch"): owns one node's complete
// protocol stack and is the single entry point the surrounding simulation
// calls with each event delivered to that node.

// Topology is the coupling the node needs to resolve a neighbor's static
// coordinates. Coordinates are read once from the topology configuration
// ("Configuration file") and are never carried on the wire, so
// the node looks them up by sender ID rather than decoding them from a
// beacon.
type Topology interface {
	Coordinates(id NodeID) (x, y float64)
}

// NodeState is one simulated node's complete protocol stack: link
// estimator, routing engine, forwarding engine and link layer, wired
// together ("State owned by a node").
type NodeState struct {
	SelfID   NodeID
	IsRoot   bool
	Topology Topology
	Collect  Collector

	Estimator  *Estimator
	Router     *Router
	Forwarding *Forwarding
	Link       *LinkLayer

	logger *slog.Logger
}

// NewNodeState wires together one node's estimator, router, forwarding
// engine and link layer ("Node initialization"). sensor and xmit
// couple the link layer to the physical layer, which lives outside this
// package and is supplied by the caller (see [ChannelSensor] and
// [Transmitter]); collect is nil for every node but the root.
func NewNodeState(self NodeID, isRoot bool, topology Topology, collect Collector, csma CSMAConfig, sensor ChannelSensor, xmit Transmitter, logger *slog.Logger) *NodeState {
	n := &NodeState{
		SelfID:   self,
		IsRoot:   isRoot,
		Topology: topology,
		Collect:  collect,
		logger:   logger,
	}
	n.Estimator = &Estimator{}
	n.Router = NewRouter(isRoot)
	n.Link = NewLinkLayer(self, csma, sensor, xmit, nil)
	n.Forwarding = NewForwarding(n.Router, n.Estimator, n.Link, logger)
	n.Link.notify = n.Forwarding
	return n
}

// AttachMetrics wires an optional observability sink (see [Metrics]) into
// every subsystem that reports counters.
func (n *NodeState) AttachMetrics(m Metrics) {
	n.Router.AttachMetrics(n.SelfID, m)
	n.Forwarding.AttachMetrics(n.SelfID, m)
	n.Link.AttachMetrics(m)
}

// Dispatch routes one delivered event to its owning subsystem. Events
// belonging to the physical layer
// (BEACON_TRANSMISSION_STARTED, DATA_PACKET_TRANSMISSION_STARTED,
// TRANSMISSION_FINISHED) are not handled here: they are this node's
// physical-layer state's concern and are expected to resolve into
// BEACON_RECEIVED / DATA_PACKET_RECEIVED / ACK_RECEIVED events rescheduled
// back to this node before reaching Dispatch.
func (n *NodeState) Dispatch(ev Event, sched Scheduler) {
	switch ev.Type {
	case EventInit:
		n.handleInit(sched)

	case EventUpdateRouteTimerFired:
		n.Router.UpdateRoute(n.Estimator)
		sched.Schedule(n.SelfID, UpdateRouteInterval, EventUpdateRouteTimerFired, nil)

	case EventSendBeaconsTimerFired:
		n.sendBeacon(sched)
		sched.Schedule(n.SelfID, 0, EventSetBeaconsTimer, nil)

	case EventSetBeaconsTimer:
		delay := n.Router.NextBeaconDelay(sched)
		sched.Schedule(n.SelfID, delay, EventSendBeaconsTimerFired, nil)

	case EventBeaconReceived:
		n.handleBeaconReceived(ev, sched)

	case EventDataPacketReceived:
		n.handleDataReceived(ev, sched)

	case EventSendPacketTimerFired:
		n.Forwarding.GeneratePacket(n.SelfID, sched)
		sched.Schedule(n.SelfID, SendPacketTimerPeriod, EventSendPacketTimerFired, nil)

	case EventRetransmitDataPacket:
		n.Forwarding.SendDataPacket(n.SelfID, sched)

	case EventCheckAckReceived:
		token, _ := ev.Payload.(int)
		n.Forwarding.HandleAckTimeout(token, n.SelfID, sched)

	case EventAckReceived:
		if ack, ok := ev.Payload.(AckReceivedPayload); ok {
			n.Forwarding.HandleAckReceived(ack, n.SelfID, sched)
		}

	case EventCheckChannelFree:
		n.Link.HandleCheckChannelFree(sched)

	case EventStartFrameTransmission:
		n.Link.HandleStartFrameTransmission(sched)

	case EventFrameTransmitted:
		n.Link.HandleFrameTransmitted()

	default:
		if n.logger != nil {
			n.logger.Warn("unhandled event", "event", ev.Type, "node", n.SelfID)
		}
	}
}

// handleInit arms every one of a node's self-timers exactly once
// ("Node initialization").
func (n *NodeState) handleInit(sched Scheduler) {
	sched.Schedule(n.SelfID, UpdateRouteInterval, EventUpdateRouteTimerFired, nil)
	sched.Schedule(n.SelfID, 0, EventSetBeaconsTimer, nil)
	if !n.IsRoot {
		sched.Schedule(n.SelfID, SendPacketTimerPeriod, EventSendPacketTimerFired, nil)
	}
}

// sendBeacon builds and hands a beacon to the link layer.
func (n *NodeState) sendBeacon(sched Scheduler) {
	b := n.Router.BuildBeacon(n.Forwarding)
	b.Seq = n.Estimator.NextBeaconSeq()
	b.Header.Src = n.SelfID
	b.Header.Sink = BroadcastAddress
	n.Link.Send(NewBeaconFrameWrapper(&b), BroadcastAddress, sched)
}

// handleBeaconReceived implements EventBeaconReceived: feed the sender's
// coordinates and sequence number to the link estimator, then -- provided
// the estimator accepted the beacon into its neighbor table -- feed the
// routing payload to the routing engine.
func (n *NodeState) handleBeaconReceived(ev Event, sched Scheduler) {
	p, ok := ev.Payload.(FrameReceivedPayload)
	if !ok || p.Frame.Kind != FrameKindBeacon {
		return
	}
	b := p.Frame.Beacon
	x, y := n.Topology.Coordinates(p.From)

	if !n.Estimator.ReceiveBeacon(p.From, x, y, b.Seq, n.Router, sched) {
		return
	}
	n.Router.ReceiveBeacon(p.From, x, y, b, n.Estimator, sched)
}

// handleDataReceived implements EventDataPacketReceived.
func (n *NodeState) handleDataReceived(ev Event, sched Scheduler) {
	p, ok := ev.Payload.(FrameReceivedPayload)
	if !ok || p.Frame.Kind != FrameKindData {
		return
	}
	n.Forwarding.ReceiveData(p.Frame.Data, n.SelfID, n.IsRoot, n.Collect, sched)
}
