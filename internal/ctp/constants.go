package ctp

import "time"

// Table capacities.
const (
	// NeighborTableSize is the link estimator's fixed neighbor table capacity.
	NeighborTableSize = 10

	// RoutingTableSize is the routing engine's fixed routing table capacity.
	RoutingTableSize = 10

	// ForwardingQueueDepth is the forwarding FIFO's fixed capacity.
	ForwardingQueueDepth = 13

	// ForwardingPoolDepth is the forwarding pool's fixed capacity (same as
	// the FIFO's: one pool entry backs each possible FIFO slot).
	ForwardingPoolDepth = 13

	// CacheSize is the outgoing LRU duplicate-suppression cache's capacity.
	CacheSize = 4

	// MaxRetries is the number of retransmission attempts for a data packet.
	MaxRetries = 30
)

// Link estimator thresholds.
const (
	// EvictWorstETXThreshold: a VALID, MATURE, not-PINNED entry with
	// one_hop_etx at or above this is the first eviction candidate.
	EvictWorstETXThreshold = 65

	// EvictBestETXThreshold is referenced by the original source's eviction
	// heuristics; kept for parity even though the eviction policy here does
	// not consult it directly.
	EvictBestETXThreshold = 10

	// MaxPktGap: a beacon sequence gap larger than this reinitializes the
	// neighbor-table entry instead of updating it incrementally.
	MaxPktGap = 10

	// Alpha is the EWMA weight used when smoothing ingoing quality and
	// one-hop ETX (scale of 10: ALPHA/10 is the weight on the old value).
	Alpha = 9

	// DlqPktWindow is the number of data sends after which outgoing quality
	// is recomputed.
	DlqPktWindow = 5

	// BlqPktWindow is the number of beacons (received+missed, or gap) after
	// which ingoing quality is recomputed.
	BlqPktWindow = 3
)

// Routing engine thresholds.
const (
	// UpdateRouteInterval is the period of the periodic parent-recompute
	// tick, independent of beacon receipt.
	UpdateRouteInterval = 2 * time.Second

	// MaxOneHopETX: neighbors at or above this 1-hop ETX are never inserted
	// into the routing table and never chosen as parent.
	MaxOneHopETX = 50

	// ParentSwitchThreshold is the hysteresis margin required to switch away
	// from the current parent to a strictly better one.
	ParentSwitchThreshold = 15

	// MinBeaconsSendInterval is the Trickle interval's floor.
	MinBeaconsSendInterval = 128 * time.Millisecond

	// MaxBeaconsSendInterval is the Trickle interval's ceiling.
	MaxBeaconsSendInterval = 64 * time.Second
)

// Forwarding engine tunables.
const (
	// SendPacketTimerPeriod is the node's local data-generation period.
	SendPacketTimerPeriod = 8 * time.Second

	// MinPayload is the smallest synthesized local-packet payload size.
	MinPayload = 0

	// MaxPayload is the largest synthesized local-packet payload size.
	MaxPayload = 20

	// DataPacketRetransmissionOffset is the delay before retrying an
	// unacknowledged data packet.
	DataPacketRetransmissionOffset = 1100 * time.Millisecond

	// NoRouteOffset is the delay before retrying a send when no parent
	// route exists yet.
	NoRouteOffset = 2 * time.Second

	// LoopDetectedOffset is the delay before retransmitting a packet whose
	// forwarding triggered loop detection.
	LoopDetectedOffset = 1500 * time.Millisecond

	// AckTimeout is the backstop CHECK_ACK_RECEIVED delay : the
	// explicit ACK_RECEIVED event is authoritative; this is only a fallback.
	AckTimeout = 1200 * time.Millisecond
)

// CSMA/CA tunables.
type CSMAConfig struct {
	SymbolsPerSec     float64
	BitsPerSymbol     float64
	MinFreeSamples    int
	MaxFreeSamples    int
	High, Low         int
	InitHigh, InitLow int
	RxTxDelay         int
	ExponentBase      float64
	PreambleLength    int
	AckTime           int
}

// DefaultCSMAConfig returns the default CSMA parameters.
func DefaultCSMAConfig() CSMAConfig {
	return CSMAConfig{
		SymbolsPerSec:     65536,
		BitsPerSymbol:     4,
		MinFreeSamples:    1,
		MaxFreeSamples:    0,
		High:              1024,
		Low:               20,
		InitHigh:          431,
		InitLow:           20,
		RxTxDelay:         11,
		ExponentBase:      1,
		PreambleLength:    12,
		AckTime:           34,
	}
}

// PhysicalConfig holds the additive-interference channel model's tunables.
type PhysicalConfig struct {
	// ChannelFreeThresholdDBm: a channel is free iff perceived power is
	// below this. Default -95 dBm.
	ChannelFreeThresholdDBm float64

	// WhiteNoiseMean is the mean of the uniform white-noise draw. Default 0.
	WhiteNoiseMean float64

	// SensitivityDBm is the margin, in dB, by which an arriving signal must
	// exceed the perceived power to be accepted during reception
	// arbitration (csma_sensitivity).
	SensitivityDBm float64
}

// DefaultPhysicalConfig returns the default physical-layer parameters.
func DefaultPhysicalConfig() PhysicalConfig {
	return PhysicalConfig{
		ChannelFreeThresholdDBm: -95,
		WhiteNoiseMean:          0,
		SensitivityDBm:          4,
	}
}

// CollectedDataPacketsGoal is the default number of distinct data packets
// the root must collect before the simulation terminates.
const CollectedDataPacketsGoal = 10
