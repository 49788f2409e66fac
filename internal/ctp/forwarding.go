package ctp

import "log/slog"

// Forwarding engine : output FIFO + pool + LRU duplicate
// cache, retransmission, loop detection, and congestion throttling.
//
// The pool is a free-list of integer indices into a fixed array, and the
// FIFO stores indices rather than pointers into it ("replace
// the forwarding pool hands out pointers to queue slots with an arena of
// entries addressed by small integer indices").

// ForwardingQueueEntry owns one in-flight data packet.
type ForwardingQueueEntry struct {
	Packet  DataFrame
	Retries int
	IsLocal bool
}

// FrameSender is the coupling the forwarding engine needs from the link
// layer (implemented by [LinkLayer]).
type FrameSender interface {
	Send(frame Frame, recipient NodeID, sched Scheduler) bool
}

// Forwarding is the forwarding engine's state.
type Forwarding struct {
	router    *Router
	estimator *Estimator
	link      FrameSender
	logger    *slog.Logger

	pool     [ForwardingPoolDepth]ForwardingQueueEntry
	freeList []int

	fifo  [ForwardingQueueDepth]int
	head  int
	count int

	cache lruCache

	localSeq     uint16
	sendingLocal bool
	ackPending   bool
	pendingToken int

	selfID  NodeID
	metrics Metrics
}

// AttachMetrics wires an optional observability sink (see [Metrics]).
func (f *Forwarding) AttachMetrics(self NodeID, m Metrics) {
	f.selfID = self
	f.metrics = m
}

// NewForwarding constructs a Forwarding engine wired to its collaborators.
func NewForwarding(router *Router, estimator *Estimator, link FrameSender, logger *slog.Logger) *Forwarding {
	f := &Forwarding{
		router:    router,
		estimator: estimator,
		link:      link,
		logger:    logger,
	}
	f.freeList = make([]int, ForwardingPoolDepth)
	for i := range f.freeList {
		f.freeList[i] = ForwardingPoolDepth - 1 - i
	}
	return f
}

// IsCongested implements [CongestionSource] (is_congested).
func (f *Forwarding) IsCongested() bool {
	return f.count > ForwardingQueueDepth/2
}

// QueueDepth returns the number of entries currently queued (for metrics
// and testing).
func (f *Forwarding) QueueDepth() int { return f.count }

func (f *Forwarding) allocSlot() (int, bool) {
	if len(f.freeList) == 0 {
		return 0, false
	}
	idx := f.freeList[len(f.freeList)-1]
	f.freeList = f.freeList[:len(f.freeList)-1]
	return idx, true
}

func (f *Forwarding) freeSlot(idx int) {
	f.freeList = append(f.freeList, idx)
}

// enqueue pushes packet onto the tail of the FIFO, returning true on
// success (the contract is true-on-enqueue, not
// always-false). Returns false if the queue or the pool is full.
func (f *Forwarding) enqueue(packet DataFrame, isLocal bool) bool {
	if f.count >= ForwardingQueueDepth {
		return false
	}
	idx, ok := f.allocSlot()
	if !ok {
		return false
	}
	f.pool[idx] = ForwardingQueueEntry{Packet: packet, Retries: MaxRetries, IsLocal: isLocal}
	tail := (f.head + f.count) % ForwardingQueueDepth
	f.fifo[tail] = idx
	f.count++
	if f.metrics != nil {
		f.metrics.SetForwardingPoolInUse(f.selfID, f.count)
	}
	return true
}

// headEntry returns the FIFO's head entry, or nil if empty.
func (f *Forwarding) headEntry() *ForwardingQueueEntry {
	if f.count == 0 {
		return nil
	}
	return &f.pool[f.fifo[f.head]]
}

// dequeueHead removes the FIFO's head entry and returns its pool slot to
// the free list ("head advances only on dequeue").
func (f *Forwarding) dequeueHead() {
	if f.count == 0 {
		return
	}
	idx := f.fifo[f.head]
	f.head = (f.head + 1) % ForwardingQueueDepth
	f.count--
	f.freeSlot(idx)
	if f.metrics != nil {
		f.metrics.SetForwardingPoolInUse(f.selfID, f.count)
	}
}

// queueLookup reports whether id is currently enqueued.
func (f *Forwarding) queueLookup(id PacketIdentity) bool {
	for i := 0; i < f.count; i++ {
		slot := f.fifo[(f.head+i)%ForwardingQueueDepth]
		if f.pool[slot].Packet.Identity() == id {
			return true
		}
	}
	return false
}

// -------------------------------------------------------------------------
// Local packet generation
// -------------------------------------------------------------------------

// GeneratePacket implements EventSendPacketTimerFired: it produces a new
// locally-originated data packet.
func (f *Forwarding) GeneratePacket(selfID NodeID, sched Scheduler) {
	if f.sendingLocal {
		f.SendDataPacket(selfID, sched)
		return
	}

	payloadLen := MinPayload + sched.RandomRange(0, MaxPayload-MinPayload)
	payload := make([]byte, payloadLen)

	packet := DataFrame{
		Origin:  selfID,
		SeqNo:   f.localSeq,
		THL:     0,
		Payload: payload,
	}
	f.localSeq++

	if f.count >= ForwardingQueueDepth {
		return
	}
	if !f.enqueue(packet, true) {
		return
	}
	f.sendingLocal = true

	for f.SendDataPacket(selfID, sched) {
	}
}

// -------------------------------------------------------------------------
// Receiving forwarded packets
// -------------------------------------------------------------------------

// Collector is called with every distinct data packet the root accepts
// ("If root, deliver to the collector").
type Collector func(packet *DataFrame)

// ReceiveData implements EventDataPacketReceived ("Forwarding
// received packets").
func (f *Forwarding) ReceiveData(packet *DataFrame, selfID NodeID, isRoot bool, collect Collector, sched Scheduler) {
	packet.THL++
	id := packet.Identity()

	if f.cache.lookup(id) || f.queueLookup(id) {
		return
	}

	if isRoot {
		f.cache.insert(id)
		if collect != nil {
			collect(packet)
		}
		return
	}

	if !f.enqueue(*packet, false) {
		return
	}

	if etx, ok := f.router.GetETX(); ok && packet.ETX <= etx {
		f.router.ResetBeaconInterval()
		if f.metrics != nil {
			f.metrics.IncLoopsDetected(selfID)
		}
		sched.Schedule(selfID, LoopDetectedOffset, EventRetransmitDataPacket, nil)
		return
	}

	if f.ackPending {
		return
	}

	f.SendDataPacket(selfID, sched)
}

// -------------------------------------------------------------------------
// Sending
// -------------------------------------------------------------------------

// SendDataPacket implements the send step ("Send step
// (send_data_packet)"). Returns true when the caller should immediately
// retry (a cache-duplicate was drained, or a real transmit was handed to
// the link layer), false when nothing more can be done right now.
func (f *Forwarding) SendDataPacket(selfID NodeID, sched Scheduler) bool {
	if f.count == 0 {
		return false
	}

	etx, ok := f.router.GetETX()
	if !ok {
		sched.Schedule(selfID, NoRouteOffset, EventRetransmitDataPacket, nil)
		return false
	}

	if f.ackPending {
		return false
	}

	entry := f.headEntry()
	id := entry.Packet.Identity()
	if f.cache.lookup(id) {
		wasLocal := entry.IsLocal
		f.dequeueHead()
		if wasLocal {
			f.sendingLocal = false
		}
		return true
	}

	entry.Packet.ETX = etx
	entry.Packet.Options &^= CtpPull
	if f.IsCongested() {
		entry.Packet.Options |= CtpCongested
	} else {
		entry.Packet.Options &^= CtpCongested
	}

	parent := f.router.GetParent()
	entry.Packet.Header.Src = selfID
	entry.Packet.Header.Sink = parent

	if !f.link.Send(NewDataFrameWrapper(&entry.Packet), parent, sched) {
		return false
	}

	f.ackPending = true
	f.pendingToken++
	sched.Schedule(selfID, AckTimeout, EventCheckAckReceived, f.pendingToken)
	return true
}

// NotifyTransmitted implements transmitted_data_packet: the link layer
// reports that a frame was handed to the radio. This is distinct from ack
// arrival.
func (f *Forwarding) NotifyTransmitted(success bool) {
	if !success && f.logger != nil {
		f.logger.Debug("data frame transmission failed at link layer")
	}
}

// -------------------------------------------------------------------------
// Acknowledgement
// -------------------------------------------------------------------------

// HandleAckReceived implements EventAckReceived: compares the head packet
// to the ack payload
// and, on a match, resolves the pending send.
func (f *Forwarding) HandleAckReceived(ack AckReceivedPayload, selfID NodeID, sched Scheduler) {
	entry := f.headEntry()
	if entry == nil {
		return
	}
	got := entry.Packet.Identity()
	want := PacketIdentity{Origin: ack.Origin, SeqNo: ack.SeqNo, THL: ack.THL}
	if got != want {
		return
	}
	f.receiveAck(true, selfID, sched)
}

// HandleAckTimeout implements EventCheckAckReceived, the backstop ack
// timeout . token must match the most recently scheduled
// backstop or this call is stale (superseded by an explicit ack, or by a
// later send) and is ignored.
func (f *Forwarding) HandleAckTimeout(token int, selfID NodeID, sched Scheduler) {
	if !f.ackPending || token != f.pendingToken {
		return
	}
	f.receiveAck(false, selfID, sched)
}

// receiveAck implements the ack-success and ack-failure paths.
func (f *Forwarding) receiveAck(success bool, selfID NodeID, sched Scheduler) {
	entry := f.headEntry()
	if entry == nil {
		f.ackPending = false
		return
	}
	dst := entry.Packet.Header.Sink

	if success {
		f.estimator.CheckIfAckReceived(dst, true)
		id := entry.Packet.Identity()
		wasLocal := entry.IsLocal
		f.dequeueHead()
		if wasLocal {
			f.sendingLocal = false
		} else {
			f.cache.insert(id)
		}
		f.ackPending = false
		f.SendDataPacket(selfID, sched)
		return
	}

	f.estimator.CheckIfAckReceived(dst, false)
	f.router.UpdateRoute(f.estimator)

	if entry.Retries > 0 {
		entry.Retries--
		if f.metrics != nil {
			f.metrics.IncRetransmissions(selfID)
		}
		sched.Schedule(selfID, DataPacketRetransmissionOffset, EventRetransmitDataPacket, nil)
		f.ackPending = false
		return
	}

	wasLocal := entry.IsLocal
	f.dequeueHead()
	if wasLocal {
		f.sendingLocal = false
	}
	f.ackPending = false
	f.SendDataPacket(selfID, sched)
}

// -------------------------------------------------------------------------
// LRU duplicate cache
// -------------------------------------------------------------------------

// lruCache is a fixed-capacity, most-recently-used-first list of packet
// identities ("outgoing LRU cache").
type lruCache struct {
	entries []PacketIdentity
}

func (c *lruCache) lookup(id PacketIdentity) bool {
	for _, e := range c.entries {
		if e == id {
			return true
		}
	}
	return false
}

// insert moves id to the most-recently-used position, evicting the least
// recently used entry if the cache is at capacity and id is new.
func (c *lruCache) insert(id PacketIdentity) {
	for i, e := range c.entries {
		if e == id {
			c.remove(i)
			break
		}
	}
	if len(c.entries) >= CacheSize {
		c.remove(len(c.entries) - 1)
	}
	c.entries = append([]PacketIdentity{id}, c.entries...)
}

// remove deletes the entry at offset. Guards the bound correctly
// (the original source's equivalent check has the comparison
// inverted; this rejects out-of-range offsets instead of in-range ones).
func (c *lruCache) remove(offset int) {
	if offset < 0 || offset >= len(c.entries) {
		return
	}
	c.entries = append(c.entries[:offset], c.entries[offset+1:]...)
}

// Len returns the number of distinct identities currently cached.
func (c *lruCache) Len() int { return len(c.entries) }
