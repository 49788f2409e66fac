package ctpmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ctpnet/ctpsim/internal/ctp"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "ctpsim"
	subsystem = "ctp"
)

// Label names for CTP metrics.
const (
	labelNode = "node"
)

// -------------------------------------------------------------------------
// Collector — Prometheus CTP Metrics
// -------------------------------------------------------------------------

// Collector holds all CTP Prometheus metrics.
//
// Metrics are labeled per node so a dashboard can isolate a single
// misbehaving sensor in a run:
//   - CollectedPackets tracks distinct data packets reaching the root.
//   - ParentSwitches and NeighborEvictions track routing-table churn.
//   - BackoffDrops, Retransmissions and LoopsDetected track link-layer and
//     forwarding-engine health.
type Collector struct {
	// CollectedPackets counts distinct data packets collected at the root.
	CollectedPackets prometheus.Counter

	// ParentSwitches counts routing parent changes per node.
	ParentSwitches *prometheus.CounterVec

	// NeighborEvictions counts neighbor-table evictions per node.
	NeighborEvictions *prometheus.CounterVec

	// BackoffDrops counts CSMA/CA frames dropped after exhausting the
	// congestion backoff budget, per node.
	BackoffDrops *prometheus.CounterVec

	// Retransmissions counts forwarding-engine data packet retransmissions
	// per node.
	Retransmissions *prometheus.CounterVec

	// LoopsDetected counts routing loop detections (a received data packet
	// advertising an ETX no greater than the node's own) per node.
	LoopsDetected *prometheus.CounterVec

	// ForwardingPoolInUse tracks the current forwarding pool occupancy per
	// node.
	ForwardingPoolInUse *prometheus.GaugeVec
}

// NewCollector creates a Collector with all CTP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "ctpsim_ctp_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.CollectedPackets,
		c.ParentSwitches,
		c.NeighborEvictions,
		c.BackoffDrops,
		c.Retransmissions,
		c.LoopsDetected,
		c.ForwardingPoolInUse,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	nodeLabels := []string{labelNode}

	return &Collector{
		CollectedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "collected_packets_total",
			Help:      "Total distinct data packets collected at the root.",
		}),

		ParentSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parent_switches_total",
			Help:      "Total routing parent changes.",
		}, nodeLabels),

		NeighborEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "neighbor_evictions_total",
			Help:      "Total neighbor-table evictions.",
		}, nodeLabels),

		BackoffDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backoff_drops_total",
			Help:      "Total frames dropped after exhausting CSMA/CA congestion backoff.",
		}, nodeLabels),

		Retransmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retransmissions_total",
			Help:      "Total forwarding-engine data packet retransmissions.",
		}, nodeLabels),

		LoopsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loops_detected_total",
			Help:      "Total routing loop detections.",
		}, nodeLabels),

		ForwardingPoolInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forwarding_pool_in_use",
			Help:      "Current forwarding pool occupancy.",
		}, nodeLabels),
	}
}

func nodeLabel(id ctp.NodeID) string { return strconv.FormatUint(uint64(id), 10) }

// -------------------------------------------------------------------------
// Collection
// -------------------------------------------------------------------------

// IncCollectedPackets increments the root's collected-packet counter. Called
// once per distinct data packet the root accepts.
func (c *Collector) IncCollectedPackets() {
	c.CollectedPackets.Inc()
}

// -------------------------------------------------------------------------
// Routing
// -------------------------------------------------------------------------

// IncParentSwitches increments the parent-switch counter for node. Called
// whenever the routing engine's UpdateRoute picks a different parent.
func (c *Collector) IncParentSwitches(node ctp.NodeID) {
	c.ParentSwitches.WithLabelValues(nodeLabel(node)).Inc()
}

// IncNeighborEvictions increments the neighbor-eviction counter for node.
// Called when the link estimator evicts a neighbor-table entry to make room
// for a new neighbor.
func (c *Collector) IncNeighborEvictions(node ctp.NodeID) {
	c.NeighborEvictions.WithLabelValues(nodeLabel(node)).Inc()
}

// -------------------------------------------------------------------------
// Link layer / forwarding
// -------------------------------------------------------------------------

// IncBackoffDrops increments the backoff-drop counter for node. Called when
// the CSMA/CA congestion backoff budget is exhausted without the channel
// ever going free.
func (c *Collector) IncBackoffDrops(node ctp.NodeID) {
	c.BackoffDrops.WithLabelValues(nodeLabel(node)).Inc()
}

// IncRetransmissions increments the retransmission counter for node. Called
// each time the forwarding engine retries the head of its FIFO.
func (c *Collector) IncRetransmissions(node ctp.NodeID) {
	c.Retransmissions.WithLabelValues(nodeLabel(node)).Inc()
}

// IncLoopsDetected increments the loop-detection counter for node.
func (c *Collector) IncLoopsDetected(node ctp.NodeID) {
	c.LoopsDetected.WithLabelValues(nodeLabel(node)).Inc()
}

// SetForwardingPoolInUse records the current forwarding pool occupancy for
// node.
func (c *Collector) SetForwardingPoolInUse(node ctp.NodeID, count int) {
	c.ForwardingPoolInUse.WithLabelValues(nodeLabel(node)).Set(float64(count))
}
