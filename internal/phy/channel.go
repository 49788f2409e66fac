package phy

import (
	"math"
	"time"

	"github.com/ctpnet/ctpsim/internal/ctp"
)

// Channel model : every node's radio shares one medium. A
// transmission fans out to every node with a configured gain from the
// sender; whether it is received, lost to interference, or missed entirely
// depends on the perceived power at the receiver when the transmission
// starts.

// GainEntry is one entry of a transmitter's per-pair gain table: the signal
// strength a frame from Source arrives with at Sink, in dBm.
type GainEntry struct {
	Sink    ctp.NodeID
	GainDBm float64
}

// NoiseParams is one node's ambient-noise model ("per-node
// noise_floor/range lines").
type NoiseParams struct {
	// NoiseFloorDBm is the node's baseline ambient noise.
	NoiseFloorDBm float64

	// Range bounds the uniform white-noise sample added on top of the
	// configured mean (the underlying noise process is sampled uniformly,
	// not drawn from a true Gaussian).
	Range float64
}

// DeliverFunc hands a physical-layer outcome back into the event system as
// a plain scheduled event (BEACON_RECEIVED, DATA_PACKET_RECEIVED, or
// ACK_RECEIVED). The physical layer never touches estimator or forwarding
// state directly; it only decides physical outcomes and schedules the
// resulting event through this function, which the surrounding engine
// supplies as a thin wrapper around [ctp.Scheduler.Schedule].
type DeliverFunc func(to ctp.NodeID, evType ctp.EventType, payload any, sched ctp.Scheduler)

// Channel holds the shared, read-only gain and noise tables for the whole
// topology ("Configuration file"). It is immutable after
// construction and safe to share across every node's goroutine.
type Channel struct {
	gains  map[ctp.NodeID][]GainEntry
	noise  map[ctp.NodeID]NoiseParams
	config ctp.PhysicalConfig
}

// NewChannel constructs a Channel from a per-source gain table and a
// per-node noise table (both parsed from the topology configuration).
func NewChannel(gains map[ctp.NodeID][]GainEntry, noise map[ctp.NodeID]NoiseParams, config ctp.PhysicalConfig) *Channel {
	return &Channel{gains: gains, noise: noise, config: config}
}

func dbmToMw(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

func mwToDbm(mw float64) float64 {
	if mw <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(mw)
}

// pendingTransmission is one in-flight frame a node is currently hearing,
// tracked from its BEACON_TRANSMISSION_STARTED/DATA_PACKET_TRANSMISSION_STARTED
// event until its matching TRANSMISSION_FINISHED ("the sum of
// in-flight transmission powers is maintained incrementally").
type pendingTransmission struct {
	id       int
	from     ctp.NodeID
	frame    ctp.Frame
	powerDBm float64
	powerMw  float64
	accepted bool
	lost     bool
}

// PhysicalState is one node's physical-layer bookkeeping: the set of
// transmissions currently in flight at its antenna, and its own radio's
// transmit/receive occupancy . It belongs to exactly one
// node and is never shared.
type PhysicalState struct {
	self ctp.NodeID

	pending    []pendingTransmission
	sumPowerMw float64
	nextID     int

	transmitting bool
	receiving    bool

	running bool
}

// NewPhysicalState returns a PhysicalState ready to receive events for
// self. running gates whether the node participates in the simulation at
// all (a non-running node hears nothing and sends nothing).
func NewPhysicalState(self ctp.NodeID, running bool) *PhysicalState {
	return &PhysicalState{self: self, running: running}
}

// totalPerceivedPowerDBm computes the power perceived at st's node right
// now: the node's noise floor perturbed by a uniform white-noise sample
// (both in dB, added directly) plus the sum of every currently pending
// transmission's power, combined in the linear (mW) domain and converted
// back to dBm ("total power perceived").
func (c *Channel) totalPerceivedPowerDBm(node ctp.NodeID, st *PhysicalState, sched ctp.Scheduler) float64 {
	noise := c.noise[node]
	whiteSample := c.config.WhiteNoiseMean + (sched.Random()*2-1)*noise.Range
	totalMw := dbmToMw(noise.NoiseFloorDBm+whiteSample) + st.sumPowerMw
	return mwToDbm(totalMw)
}

// IsChannelFree reports whether the power node currently perceives is
// below the configured free threshold.
func (c *Channel) IsChannelFree(node ctp.NodeID, st *PhysicalState, sched ctp.Scheduler) bool {
	return c.totalPerceivedPowerDBm(node, st, sched) < c.config.ChannelFreeThresholdDBm
}

// NodeLink adapts a shared [Channel] and one node's [PhysicalState] into
// the two narrow interfaces [ctp.LinkLayer] needs from the physical layer
// ([ctp.ChannelSensor] and [ctp.Transmitter]), so neither package imports
// the other's concrete types.
type NodeLink struct {
	Channel *Channel
	State   *PhysicalState
}

// IsChannelFree implements [ctp.ChannelSensor].
func (l *NodeLink) IsChannelFree(node ctp.NodeID, sched ctp.Scheduler) bool {
	return l.Channel.IsChannelFree(node, l.State, sched)
}

// StartTransmission implements [ctp.Transmitter]. The sending node's radio
// is marked busy for the duration of the transmission; [PhysicalState]'s
// owner clears it again once EventFrameTransmitted fires.
func (l *NodeLink) StartTransmission(from ctp.NodeID, frame ctp.Frame, sched ctp.Scheduler) {
	l.State.MarkTransmitting(true)
	l.Channel.StartTransmission(from, frame, sched)
}

// StartTransmission implements the coupling [ctp.Transmitter] needs: fan
// frame out to every node with a configured gain from from, scheduling a
// BEACON_TRANSMISSION_STARTED or DATA_PACKET_TRANSMISSION_STARTED event at
// each ("Transmission fan-out").
func (c *Channel) StartTransmission(from ctp.NodeID, frame ctp.Frame, sched ctp.Scheduler) {
	evType := ctp.EventBeaconTransmissionStarted
	if frame.Kind == ctp.FrameKindData {
		evType = ctp.EventDataPacketTransmissionStarted
	}
	for _, g := range c.gains[from] {
		sched.Schedule(g.Sink, 0, evType, ctp.TransmissionStartedPayload{
			Frame:   frame,
			From:    from,
			GainDBm: g.GainDBm,
		})
	}
}

// HandleTransmissionStart implements BEACON_TRANSMISSION_STARTED and
// DATA_PACKET_TRANSMISSION_STARTED at a receiving node: decide, from the
// power perceived the instant this transmission begins, whether it will
// eventually be received cleanly or lost to interference ("Reception
// arbitration"), then add it to the node's pending set so later arrivals
// and [Channel.IsChannelFree] see its contribution.
//
// Acceptance and loss are both margin tests against CSMA_SENSITIVITY, not
// against the carrier-sense free threshold ([Channel.IsChannelFree] is a
// separate, CSMA-only concern): a new arrival is accepted only if it clears
// the node's current perceived floor by the sensitivity margin, and it in
// turn marks every weaker already-pending transmission lost once it clears
// that pending transmission's own power by the same margin. A record
// marked lost this way is silently dropped when it finishes -- the
// "symmetric" finish-time loss the spec describes falls out of this
// retroactive marking rather than a second check at finish time.
func (c *Channel) HandleTransmissionStart(node ctp.NodeID, st *PhysicalState, payload ctp.TransmissionStartedPayload, sched ctp.Scheduler) {
	currentStrength := c.totalPerceivedPowerDBm(node, st, sched)

	record := pendingTransmission{
		id:       st.nextID,
		from:     payload.From,
		frame:    payload.Frame,
		powerDBm: payload.GainDBm,
		powerMw:  dbmToMw(payload.GainDBm),
	}
	st.nextID++

	// A node not running, or already busy transmitting/receiving another
	// frame, never accepts a new arrival outright: it is recorded purely
	// as interference against whatever else is in flight.
	eligible := st.running && !st.transmitting && !st.receiving
	record.accepted = eligible && currentStrength+c.config.SensitivityDBm < payload.GainDBm
	if record.accepted {
		st.receiving = true
	}

	for i := range st.pending {
		p := &st.pending[i]
		if !p.lost && p.powerDBm-c.config.SensitivityDBm < payload.GainDBm {
			p.lost = true
		}
	}

	st.pending = append(st.pending, record)
	st.sumPowerMw += record.powerMw

	header := payload.Frame.Header()
	duration := time.Duration(header.DurationMicros) * time.Microsecond
	sched.Schedule(node, duration, ctp.EventTransmissionFinished, record.id)
}

// HandleTransmissionFinished implements TRANSMISSION_FINISHED at a
// receiving node : remove the now-finished transmission from
// the pending set and, if it was accepted at reception-arbitration time and
// never subsequently marked lost by a stronger overlapping arrival, hand its
// frame up to the protocol stack -- and, for a data frame addressed to this
// node, emit the authoritative ACK_RECEIVED event back to the sender in the
// same step, since this model has no separate radio-level acknowledgement
// exchange.
func (c *Channel) HandleTransmissionFinished(node ctp.NodeID, st *PhysicalState, id int, deliver DeliverFunc, sched ctp.Scheduler) {
	idx := -1
	for i, p := range st.pending {
		if p.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	record := st.pending[idx]
	st.pending = append(st.pending[:idx], st.pending[idx+1:]...)
	st.sumPowerMw -= record.powerMw
	if st.sumPowerMw < 0 {
		st.sumPowerMw = 0
	}

	if !record.accepted {
		return
	}
	st.receiving = false

	if record.lost {
		return
	}

	header := record.frame.Header()
	if record.frame.Kind == ctp.FrameKindData && header.Sink != node {
		return
	}

	evType := ctp.EventDataPacketReceived
	if record.frame.Kind == ctp.FrameKindBeacon {
		evType = ctp.EventBeaconReceived
	}
	// Deliver the receiver its own copy: record.frame's *BeaconFrame/*DataFrame
	// is shared with the sender's still-pinned outgoing frame (and with every
	// other neighbor this same transmission fanned out to), so handing it up
	// unmodified would let this node's protocol stack (e.g. ReceiveData's THL
	// bump) mutate state that isn't its own.
	deliver(node, evType, ctp.FrameReceivedPayload{From: record.from, Frame: record.frame.Clone()}, sched)

	if record.frame.Kind == ctp.FrameKindData {
		d := record.frame.Data
		deliver(record.from, ctp.EventAckReceived, ctp.AckReceivedPayload{Origin: d.Origin, SeqNo: d.SeqNo, THL: d.THL}, sched)
	}
}

// MarkTransmitting tracks this node's own radio occupancy (set true when a
// transmission starts, false again when EventFrameTransmitted fires) so a
// frame this node is itself sending does not also count as an incoming
// reception candidate, in concert with [ctp.LinkLayer]'s CSMA/CA state
// machine.
func (st *PhysicalState) MarkTransmitting(v bool) { st.transmitting = v }
