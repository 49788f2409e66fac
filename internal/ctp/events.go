package ctp

import "time"

// NodeID identifies a simulated node. Stable for the lifetime of a run.
type NodeID uint16

// InvalidAddress is the sentinel node ID meaning "no such neighbor/parent"
// (INVALID_ADDRESS=0xFFFF).
const InvalidAddress NodeID = 0xFFFF

// BroadcastAddress is the destination used for beacon frames.
const BroadcastAddress NodeID = 0xFFFF

// VTime is a point in the simulation's virtual time. The core never reads
// the wall clock; every duration it reasons about is expressed in VTime
// deltas handed to [Scheduler.Schedule].
type VTime = time.Duration

// EventType enumerates the events the core reacts to.
type EventType uint8

const (
	// EventInit creates a node's state. Delivered exactly once per node.
	EventInit EventType = iota + 1

	// EventUpdateRouteTimerFired asks the routing engine to recompute the parent.
	EventUpdateRouteTimerFired

	// EventSendBeaconsTimerFired fires when the current Trickle interval elapses.
	EventSendBeaconsTimerFired

	// EventSetBeaconsTimer (re)arms the Trickle timer for the next interval.
	EventSetBeaconsTimer

	// EventDataPacketReceived signals a data frame delivered by the link layer.
	EventDataPacketReceived

	// EventBeaconReceived signals a beacon frame delivered by the link layer.
	EventBeaconReceived

	// EventRetransmitDataPacket asks the forwarding engine to retry the head
	// of the forwarding FIFO (loop backoff, no-route backoff, or NACK retry).
	EventRetransmitDataPacket

	// EventCheckAckReceived is the backstop ack timeout: the forwarding
	// engine schedules it AckTimeout after handing a data frame to the link
	// layer, and it resolves the send as a failure if no EventAckReceived
	// arrived first.
	EventCheckAckReceived

	// EventAckReceived is the authoritative ack signal from the physical layer.
	EventAckReceived

	// EventCheckChannelFree drives one step of the CSMA/CA backoff loop.
	EventCheckChannelFree

	// EventStartFrameTransmission begins the physical transmission of the
	// pinned outgoing frame once the channel has been sensed free.
	EventStartFrameTransmission

	// EventFrameTransmitted fires when the local radio finishes transmitting.
	EventFrameTransmitted

	// EventBeaconTransmissionStarted is the per-neighbor physical-layer
	// reception-start event for a beacon frame.
	EventBeaconTransmissionStarted

	// EventDataPacketTransmissionStarted is the per-neighbor physical-layer
	// reception-start event for a data frame.
	EventDataPacketTransmissionStarted

	// EventTransmissionFinished fires at a receiver when an in-flight
	// transmission's duration elapses.
	EventTransmissionFinished

	// EventSendPacketTimerFired fires on the node's local data-generation period.
	EventSendPacketTimerFired
)

// String renders the event type name for logging.
func (e EventType) String() string {
	switch e {
	case EventInit:
		return "INIT"
	case EventUpdateRouteTimerFired:
		return "UPDATE_ROUTE_TIMER_FIRED"
	case EventSendBeaconsTimerFired:
		return "SEND_BEACONS_TIMER_FIRED"
	case EventSetBeaconsTimer:
		return "SET_BEACONS_TIMER"
	case EventDataPacketReceived:
		return "DATA_PACKET_RECEIVED"
	case EventBeaconReceived:
		return "BEACON_RECEIVED"
	case EventRetransmitDataPacket:
		return "RETRANSMITT_DATA_PACKET"
	case EventCheckAckReceived:
		return "CHECK_ACK_RECEIVED"
	case EventAckReceived:
		return "ACK_RECEIVED"
	case EventCheckChannelFree:
		return "CHECK_CHANNEL_FREE"
	case EventStartFrameTransmission:
		return "START_FRAME_TRANSMISSION"
	case EventFrameTransmitted:
		return "FRAME_TRANSMITTED"
	case EventBeaconTransmissionStarted:
		return "BEACON_TRANSMISSION_STARTED"
	case EventDataPacketTransmissionStarted:
		return "DATA_PACKET_TRANSMISSION_STARTED"
	case EventTransmissionFinished:
		return "TRANSMISSION_FINISHED"
	case EventSendPacketTimerFired:
		return "SEND_PACKET_TIMER_FIRED"
	default:
		return "Unknown"
	}
}

// Event is a single unit of work delivered to a node by the scheduler.
type Event struct {
	// Type selects which subsystem handles the event.
	Type EventType

	// Time is the virtual time at which this event fires.
	Time VTime

	// Payload carries event-specific data. Its dynamic type is determined
	// by Type; see the EventXxx constants' doc comments for the expected
	// payload shape. nil for timer-fired events that carry no data.
	Payload any
}

// Scheduler is the external collaborator that the core never implements
// itself ("the optimistic-simulation kernel"). The core only
// ever calls these three methods; [internal/engine] provides one concrete,
// single-threaded-per-node implementation used to run and test the core,
// but is explicitly not part of the protocol core.
type Scheduler interface {
	// Schedule arranges for an event to be delivered to dest after delay
	// has elapsed from the current event's virtual time. Scheduling an
	// event for the node's own ID is how the core implements its own
	// timers; a zero delay still orders strictly after the event
	// currently being handled.
	Schedule(dest NodeID, delay VTime, evType EventType, payload any)

	// Random returns a uniform float64 in [0, 1).
	Random() float64

	// RandomRange returns a uniform integer in [lo, hi].
	RandomRange(lo, hi int) int
}

// TransmissionStartedPayload is the payload of EventBeaconTransmissionStarted
// and EventDataPacketTransmissionStarted: a frame arriving at a neighbor's
// antenna with a given signal strength.
type TransmissionStartedPayload struct {
	// Frame is the frame now in flight.
	Frame Frame

	// From is the transmitting node.
	From NodeID

	// GainDBm is the signal strength this frame arrives with, in dBm.
	GainDBm float64
}

// FrameReceivedPayload is the payload of EventBeaconReceived and
// EventDataPacketReceived: a frame that survived physical-layer reception
// arbitration, handed up together with the sender's address.
type FrameReceivedPayload struct {
	From  NodeID
	Frame Frame
}

// AckReceivedPayload is the payload of EventAckReceived.
type AckReceivedPayload struct {
	// Origin, SeqNo, THL identify the data packet being acknowledged
	// (a frame's identity triple).
	Origin NodeID
	SeqNo  uint16
	THL    uint8
}
