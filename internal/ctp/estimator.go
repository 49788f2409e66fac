package ctp

// Package-local link estimator : maintains a bounded neighbor
// table and computes each neighbor's 1-hop ETX from beacon reception
// statistics (ingoing quality) and data-ack outcomes (outgoing quality).

// neighborFlags are the per-entry status bits.
type neighborFlags uint8

const (
	flagValid neighborFlags = 1 << iota
	flagMature
	flagInit
	flagPinned
)

// NeighborEntry is one row of the link estimator's neighbor table.
type NeighborEntry struct {
	ID NodeID
	X  float64
	Y  float64

	LastSeq         uint16
	BeaconsReceived uint16
	BeaconsMissed   uint16

	DataSent         uint16
	DataAcknowledged uint16

	// IngoingQuality is scaled 0..250.
	IngoingQuality uint16

	// OneHopETX is scaled x10; VeryLargeETX means "unusable".
	OneHopETX uint16

	flags neighborFlags
}

func (e *NeighborEntry) valid() bool  { return e.flags&flagValid != 0 }
func (e *NeighborEntry) mature() bool { return e.flags&flagMature != 0 }
func (e *NeighborEntry) pinned() bool { return e.flags&flagPinned != 0 }

// Mature reports whether the entry has completed its first quality window.
func (e *NeighborEntry) Mature() bool { return e.mature() }

// RoutingAdvisor is the coupling the link estimator needs from the routing
// engine: evictions notify the routing engine. Implemented by [Router].
type RoutingAdvisor interface {
	// WorthInserting reports whether the estimator should make room for
	// candidate in a full neighbor table by evicting a non-MATURE,
	// non-PINNED occupant.
	WorthInserting(candidate NodeID) bool

	// NeighborEvicted is called when the estimator drops a neighbor-table
	// entry, so the routing engine can remove the matching routing-table
	// entry and re-route if that neighbor was the parent.
	NeighborEvicted(id NodeID)
}

// Estimator is the link estimator's neighbor table and ETX computation.
type Estimator struct {
	entries   [NeighborTableSize]NeighborEntry
	beaconSeq uint16
}

// NextBeaconSeq returns the next outgoing beacon sequence number and
// advances the counter ("send_routing_packet: stamps the next
// sequence number").
func (e *Estimator) NextBeaconSeq() uint16 {
	seq := e.beaconSeq
	e.beaconSeq++
	return seq
}

// Lookup returns the neighbor-table entry for id, if present and valid.
func (e *Estimator) Lookup(id NodeID) (*NeighborEntry, bool) {
	for i := range e.entries {
		if e.entries[i].valid() && e.entries[i].ID == id {
			return &e.entries[i], true
		}
	}
	return nil, false
}

// OneHopETX returns the neighbor's 1-hop ETX, or VeryLargeETX if unknown.
func (e *Estimator) OneHopETX(id NodeID) uint16 {
	if entry, ok := e.Lookup(id); ok {
		return entry.OneHopETX
	}
	return VeryLargeETX
}

// Pin marks id PINNED so it is never evicted.
func (e *Estimator) Pin(id NodeID) {
	if entry, ok := e.Lookup(id); ok {
		entry.flags |= flagPinned
	}
}

// Unpin clears the PINNED flag on id.
func (e *Estimator) Unpin(id NodeID) {
	if entry, ok := e.Lookup(id); ok {
		entry.flags &^= flagPinned
	}
}

// ComputeETX derives a 1-hop ETX from an ingoing-quality value
// (compute_etx).
func ComputeETX(q uint16) uint16 {
	if q == 0 {
		return VeryLargeETX
	}
	etx := 2500 / q
	if etx > 250 {
		return VeryLargeETX
	}
	return etx
}

func (e *Estimator) freeSlot() (*NeighborEntry, bool) {
	for i := range e.entries {
		if !e.entries[i].valid() {
			return &e.entries[i], true
		}
	}
	return nil, false
}

// ReceiveBeacon processes a beacon's ingoing-quality statistics for sender
// id, inserting a new neighbor-table entry if necessary, applying the
// eviction policy when the table is already full.
//
// Returns true if the beacon was accepted into the table (whether via an
// existing entry or a freshly inserted/evicted one), false if it was
// dropped because the table was full and no eviction was possible.
func (e *Estimator) ReceiveBeacon(id NodeID, x, y float64, seq uint16, advisor RoutingAdvisor, sched Scheduler) bool {
	entry, ok := e.Lookup(id)
	if !ok {
		slot, hasRoom := e.freeSlot()
		if !hasRoom {
			slot, ok = e.evict(id, advisor, sched)
			if !ok {
				return false
			}
		}
		*slot = NeighborEntry{
			ID:      id,
			X:       x,
			Y:       y,
			LastSeq: seq,
			flags:   flagValid | flagInit,
		}
		slot.BeaconsReceived = 1
		return true
	}

	gap := int32(seq) - int32(entry.LastSeq)
	entry.LastSeq = seq
	entry.BeaconsReceived++

	if gap > 1 {
		entry.BeaconsMissed += uint16(gap - 1)
	}

	if gap > MaxPktGap {
		*entry = NeighborEntry{
			ID:              id,
			X:               x,
			Y:               y,
			LastSeq:         seq,
			BeaconsReceived: 1,
			flags:           flagValid | flagInit,
		}
		return true
	}

	total := entry.BeaconsReceived + entry.BeaconsMissed
	if total >= BlqPktWindow || uint16(gap) >= BlqPktWindow {
		e.updateIngoingQuality(entry)
	}
	return true
}

// updateIngoingQuality recomputes ingoing quality and smooths one_hop_etx.
func (e *Estimator) updateIngoingQuality(entry *NeighborEntry) {
	rawIn := 250 * uint32(entry.BeaconsReceived) / uint32(entry.BeaconsReceived+entry.BeaconsMissed)

	if entry.flags&flagMature == 0 {
		entry.flags |= flagMature
		entry.IngoingQuality = uint16(rawIn)
		entry.OneHopETX = ComputeETX(entry.IngoingQuality)
		entry.BeaconsReceived = 0
		entry.BeaconsMissed = 0
		return
	}

	entry.IngoingQuality = uint16((Alpha*uint32(entry.IngoingQuality) + (10-Alpha)*rawIn) / 10)
	entry.BeaconsReceived = 0
	entry.BeaconsMissed = 0
	newETX := ComputeETX(entry.IngoingQuality)
	entry.OneHopETX = uint16((Alpha*uint32(entry.OneHopETX) + (10-Alpha)*uint32(newETX)) / 10)
}

// CheckIfAckReceived registers one data-packet ack outcome toward id,
// recomputing outgoing quality once DlqPktWindow sends have accumulated
// ("Outgoing quality", "check_if_ack_received").
func (e *Estimator) CheckIfAckReceived(id NodeID, acked bool) {
	entry, ok := e.Lookup(id)
	if !ok {
		return
	}
	entry.DataSent++
	if acked {
		entry.DataAcknowledged++
	}
	if entry.DataSent < DlqPktWindow {
		return
	}

	var rawOut uint32
	if entry.DataAcknowledged == 0 {
		rawOut = 10 * uint32(entry.DataSent)
	} else {
		rawOut = 10 * uint32(entry.DataSent) / uint32(entry.DataAcknowledged)
		entry.DataSent = 0
		entry.DataAcknowledged = 0
	}

	newETX := uint16(min(rawOut, uint32(VeryLargeETX)))
	if entry.flags&flagMature == 0 {
		entry.flags |= flagMature
		entry.OneHopETX = newETX
		return
	}
	entry.OneHopETX = uint16((Alpha*uint32(entry.OneHopETX) + (10-Alpha)*uint32(newETX)) / 10)
}

// ResetOutgoingCounters clears data_sent/data_acknowledged, called when a
// neighbor becomes the new parent (update_route).
func (e *Estimator) ResetOutgoingCounters(id NodeID) {
	if entry, ok := e.Lookup(id); ok {
		entry.DataSent = 0
		entry.DataAcknowledged = 0
	}
}

// evict applies the three-step eviction policy  and returns
// the freed slot, or false if the beacon must be dropped.
func (e *Estimator) evict(candidate NodeID, advisor RoutingAdvisor, sched Scheduler) (*NeighborEntry, bool) {
	// Step 1: evict the worst VALID, MATURE, not-PINNED entry at/above threshold.
	var worst *NeighborEntry
	for i := range e.entries {
		c := &e.entries[i]
		if !c.valid() || !c.mature() || c.pinned() {
			continue
		}
		if c.OneHopETX < EvictWorstETXThreshold {
			continue
		}
		if worst == nil || c.OneHopETX > worst.OneHopETX {
			worst = c
		}
	}
	if worst != nil {
		advisor.NeighborEvicted(worst.ID)
		worst.flags = 0
		return worst, true
	}

	// Step 2: ask the routing engine whether candidate is worth inserting;
	// if so, evict a random VALID, not-MATURE, not-PINNED entry.
	if advisor.WorthInserting(candidate) {
		var immature []*NeighborEntry
		for i := range e.entries {
			c := &e.entries[i]
			if c.valid() && !c.mature() && !c.pinned() {
				immature = append(immature, c)
			}
		}
		if len(immature) > 0 {
			victim := immature[sched.RandomRange(0, len(immature)-1)]
			advisor.NeighborEvicted(victim.ID)
			victim.flags = 0
			return victim, true
		}
	}

	// Step 3: drop the beacon.
	return nil, false
}

// All returns every currently VALID neighbor-table entry.
func (e *Estimator) All() []*NeighborEntry {
	out := make([]*NeighborEntry, 0, NeighborTableSize)
	for i := range e.entries {
		if e.entries[i].valid() {
			out = append(out, &e.entries[i])
		}
	}
	return out
}
