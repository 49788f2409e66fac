package ctp

import "time"

// Link layer : turns an upper-layer send request into a
// carrier-sensed transmission. At most one outgoing frame per node at a
// time.

// linkState is the CSMA/CA state machine's phase: IDLE -> BACKOFF ->
// TRANSMITTING -> IDLE.
type linkState uint8

const (
	linkStateIdle linkState = iota
	linkStateBackoff
	linkStateTransmitting
)

// ChannelSensor is the coupling the link layer needs from the physical
// layer to carrier-sense (implemented by the physical layer's Channel).
type ChannelSensor interface {
	IsChannelFree(node NodeID, sched Scheduler) bool
}

// Transmitter is the coupling the link layer needs from the physical layer
// to fan a frame out to neighbors (implemented by the physical layer's
// Channel).
type Transmitter interface {
	StartTransmission(from NodeID, frame Frame, sched Scheduler)
}

// TransmitNotifier is the upper-layer callback invoked when a frame leaves
// the radio ("notify upper layer").
type TransmitNotifier interface {
	NotifyTransmitted(success bool)
}

// LinkLayer is the CSMA/CA link layer's per-node state.
type LinkLayer struct {
	selfID  NodeID
	csma    CSMAConfig
	sensor  ChannelSensor
	xmit    Transmitter
	notify  TransmitNotifier

	state            linkState
	outgoing         Frame
	recipient        NodeID
	freeChannelCount int
	backoffCount     int

	metrics Metrics
}

// NewLinkLayer constructs a LinkLayer wired to its collaborators.
func NewLinkLayer(self NodeID, csma CSMAConfig, sensor ChannelSensor, xmit Transmitter, notify TransmitNotifier) *LinkLayer {
	return &LinkLayer{
		selfID: self,
		csma:   csma,
		sensor: sensor,
		xmit:   xmit,
		notify: notify,
		state:  linkStateIdle,
	}
}

// AttachMetrics wires an optional observability sink (see [Metrics]).
func (l *LinkLayer) AttachMetrics(m Metrics) {
	l.metrics = m
}

// symbolsToDuration converts a count of symbol periods to a VTime.
func (l *LinkLayer) symbolsToDuration(symbols float64) VTime {
	seconds := symbols / l.csma.SymbolsPerSec
	return VTime(seconds * float64(time.Second))
}

// Send accepts at most one outgoing frame at a time; returns false if the
// link layer is already busy.
func (l *LinkLayer) Send(frame Frame, recipient NodeID, sched Scheduler) bool {
	if l.state != linkStateIdle {
		return false
	}

	l.freeChannelCount = l.csma.MinFreeSamples
	l.backoffCount = 0
	l.outgoing = frame
	l.recipient = recipient
	l.state = linkStateBackoff

	backoff := sched.RandomRange(l.csma.InitLow, l.csma.InitHigh)
	sched.Schedule(l.selfID, l.symbolsToDuration(float64(backoff)), EventCheckChannelFree, nil)
	return true
}

// HandleCheckChannelFree samples the channel and either starts a
// transmission or schedules another backoff sample.
func (l *LinkLayer) HandleCheckChannelFree(sched Scheduler) {
	if l.state != linkStateBackoff {
		return
	}

	l.backoffCount++
	if l.sensor.IsChannelFree(l.selfID, sched) {
		l.freeChannelCount--
	} else {
		l.freeChannelCount = l.csma.MinFreeSamples
	}

	if l.freeChannelCount == 0 {
		l.state = linkStateTransmitting
		sched.Schedule(l.selfID, l.symbolsToDuration(float64(l.csma.RxTxDelay)), EventStartFrameTransmission, nil)
		return
	}

	if l.csma.MaxFreeSamples == 0 || l.backoffCount <= l.csma.MaxFreeSamples {
		span := float64(l.csma.High-l.csma.Low) * pow(l.csma.ExponentBase, l.backoffCount)
		backoff := sched.RandomRange(0, int(span))
		sched.Schedule(l.selfID, l.symbolsToDuration(float64(backoff)), EventCheckChannelFree, nil)
		return
	}

	// Backoff cap exceeded: drop the frame, report failure upward
	// ("CSMA backoff cap exceeded").
	l.state = linkStateIdle
	if l.metrics != nil {
		l.metrics.IncBackoffDrops(l.selfID)
	}
	if l.notify != nil {
		l.notify.NotifyTransmitted(false)
	}
}

// frameBits returns the bit length the duration formula charges for frame.
func frameBits(frame Frame) int {
	switch frame.Kind {
	case FrameKindData:
		return dataFrameHeaderSize*8 + len(frame.Data.Payload)*8
	case FrameKindBeacon:
		return beaconFrameSize * 8
	default:
		return 0
	}
}

// HandleStartFrameTransmission hands the pending frame to the radio.
func (l *LinkLayer) HandleStartFrameTransmission(sched Scheduler) {
	if l.state != linkStateTransmitting {
		return
	}

	ackTime := 0
	if l.outgoing.Kind == FrameKindData {
		ackTime = l.csma.AckTime
	}

	symbols := float64(frameBits(l.outgoing))/l.csma.BitsPerSymbol + float64(l.csma.PreambleLength) + float64(ackTime)
	duration := l.symbolsToDuration(symbols)

	h := l.outgoing.Header()
	h.DurationMicros = uint32(duration / time.Microsecond)
	l.outgoing.SetHeader(h)

	l.xmit.StartTransmission(l.selfID, l.outgoing, sched)

	total := duration + l.symbolsToDuration(float64(l.csma.RxTxDelay))
	sched.Schedule(l.selfID, total, EventFrameTransmitted, nil)
}

// HandleFrameTransmitted notifies the upper layer and returns the link to
// idle.
func (l *LinkLayer) HandleFrameTransmitted() {
	if l.state != linkStateTransmitting {
		return
	}
	l.state = linkStateIdle
	kind := l.outgoing.Kind
	l.outgoing = Frame{}
	if l.notify != nil && kind == FrameKindData {
		l.notify.NotifyTransmitted(true)
	}
}

// pow computes base^exp for a non-negative integer exponent without
// pulling in math.Pow's float64 edge-case handling (exponent is always a
// small backoff counter here).
func pow(base float64, exp int) float64 {
	result := 1.0
	for range exp {
		result *= base
	}
	return result
}
