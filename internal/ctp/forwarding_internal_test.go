package ctp

import "testing"

// fakeSender is a minimal [FrameSender] used to unit-test Forwarding's
// queue/pool bookkeeping in isolation from the link layer.
type fakeSender struct {
	accept bool
	sent   []Frame
}

func (s *fakeSender) Send(frame Frame, _ NodeID, _ Scheduler) bool {
	s.sent = append(s.sent, frame)
	return s.accept
}

func newTestForwarding() *Forwarding {
	router := NewRouter(false)
	est := &Estimator{}
	return NewForwarding(router, est, &fakeSender{accept: true}, nil)
}

// TestForwardingEnqueueFIFOOrder checks that enqueue reports true on
// success, and dequeue yields entries in the order they
// were enqueued.
func TestForwardingEnqueueFIFOOrder(t *testing.T) {
	f := newTestForwarding()

	for i := 0; i < 3; i++ {
		pkt := DataFrame{Origin: NodeID(i), SeqNo: uint16(i)}
		if !f.enqueue(pkt, false) {
			t.Fatalf("enqueue(%d) = false, want true", i)
		}
	}

	for i := 0; i < 3; i++ {
		entry := f.headEntry()
		if entry == nil {
			t.Fatalf("headEntry() = nil at position %d", i)
		}
		if entry.Packet.Origin != NodeID(i) {
			t.Fatalf("dequeue order mismatch at %d: got Origin %d, want %d", i, entry.Packet.Origin, i)
		}
		f.dequeueHead()
	}
}

// TestForwardingEnqueueFullQueueRejects checks that the FIFO is
// bounded and enqueue fails once it is saturated.
func TestForwardingEnqueueFullQueueRejects(t *testing.T) {
	f := newTestForwarding()

	for i := 0; i < ForwardingQueueDepth; i++ {
		if !f.enqueue(DataFrame{Origin: NodeID(i)}, false) {
			t.Fatalf("enqueue(%d) = false, want true while under capacity", i)
		}
	}

	if f.enqueue(DataFrame{Origin: 999}, false) {
		t.Fatal("enqueue on a full queue returned true, want false")
	}
}

func TestForwardingDequeueHeadReturnsSlotToPool(t *testing.T) {
	f := newTestForwarding()

	for i := 0; i < ForwardingQueueDepth; i++ {
		f.enqueue(DataFrame{Origin: NodeID(i)}, false)
	}
	f.dequeueHead()

	// One slot freed: a further enqueue must succeed.
	if !f.enqueue(DataFrame{Origin: 999}, false) {
		t.Fatal("enqueue after dequeueHead freed a slot should succeed")
	}
}

func TestForwardingQueueLookup(t *testing.T) {
	f := newTestForwarding()
	pkt := DataFrame{Origin: 1, SeqNo: 5, THL: 0}
	f.enqueue(pkt, false)

	if !f.queueLookup(pkt.Identity()) {
		t.Fatal("queueLookup should find the just-enqueued packet's identity")
	}
	other := PacketIdentity{Origin: 2, SeqNo: 5, THL: 0}
	if f.queueLookup(other) {
		t.Fatal("queueLookup should not find an identity that was never enqueued")
	}
}

func TestForwardingIsCongestedAtHalfCapacity(t *testing.T) {
	f := newTestForwarding()
	if f.IsCongested() {
		t.Fatal("empty queue should not be congested")
	}
	for i := 0; i <= ForwardingQueueDepth/2; i++ {
		f.enqueue(DataFrame{Origin: NodeID(i)}, false)
	}
	if !f.IsCongested() {
		t.Fatal("queue more than half full should report congested")
	}
}

func TestLRUCacheInsertAndLookup(t *testing.T) {
	var c lruCache
	id := PacketIdentity{Origin: 1, SeqNo: 1}
	if c.lookup(id) {
		t.Fatal("empty cache should not contain anything")
	}
	c.insert(id)
	if !c.lookup(id) {
		t.Fatal("cache should contain an identity right after insert")
	}
}

// TestLRUCacheEvictsLeastRecentlyUsed checks that once
// the cache is at capacity, inserting a new, distinct identity evicts the
// least recently used entry, not an arbitrary one.
func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var c lruCache
	for i := 0; i < CacheSize; i++ {
		c.insert(PacketIdentity{Origin: NodeID(i), SeqNo: 1})
	}
	oldest := PacketIdentity{Origin: 0, SeqNo: 1}
	if !c.lookup(oldest) {
		t.Fatal("setup: oldest entry should still be present before overflow")
	}

	c.insert(PacketIdentity{Origin: NodeID(CacheSize), SeqNo: 1})

	if c.lookup(oldest) {
		t.Fatal("expected the least recently used entry to be evicted")
	}
	if c.Len() != CacheSize {
		t.Fatalf("Len() = %d, want %d (capacity must not be exceeded)", c.Len(), CacheSize)
	}
}

func TestLRUCacheReinsertRefreshesRecency(t *testing.T) {
	var c lruCache
	for i := 0; i < CacheSize; i++ {
		c.insert(PacketIdentity{Origin: NodeID(i), SeqNo: 1})
	}
	// Touch the oldest entry again so it becomes most-recently-used.
	oldest := PacketIdentity{Origin: 0, SeqNo: 1}
	c.insert(oldest)

	// Now the entry that was originally second-oldest should be evicted next.
	c.insert(PacketIdentity{Origin: NodeID(CacheSize), SeqNo: 1})

	if !c.lookup(oldest) {
		t.Fatal("re-inserted entry should survive the next eviction")
	}
	if c.lookup(PacketIdentity{Origin: 1, SeqNo: 1}) {
		t.Fatal("expected the now-least-recently-used entry to be evicted instead")
	}
}
