package ctp_test

import "github.com/ctpnet/ctpsim/internal/ctp"

// fakeScheduler is a deterministic, dependency-free [ctp.Scheduler] stand-in
// for unit tests that never need an actual event queue.
type fakeScheduler struct {
	scheduled []scheduledCall
	randSeq   []float64
	rangeSeq  []int
}

type scheduledCall struct {
	Dest  ctp.NodeID
	Delay ctp.VTime
	Type  ctp.EventType
}

func (f *fakeScheduler) Schedule(dest ctp.NodeID, delay ctp.VTime, evType ctp.EventType, _ any) {
	f.scheduled = append(f.scheduled, scheduledCall{Dest: dest, Delay: delay, Type: evType})
}

func (f *fakeScheduler) Random() float64 {
	if len(f.randSeq) == 0 {
		return 0
	}
	v := f.randSeq[0]
	f.randSeq = f.randSeq[1:]
	return v
}

func (f *fakeScheduler) RandomRange(lo, hi int) int {
	if len(f.rangeSeq) == 0 {
		return lo
	}
	v := f.rangeSeq[0]
	f.rangeSeq = f.rangeSeq[1:]
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fakeAdvisor is a [ctp.RoutingAdvisor] stand-in recording eviction calls.
type fakeAdvisor struct {
	worthInserting bool
	evicted        []ctp.NodeID
}

func (a *fakeAdvisor) WorthInserting(ctp.NodeID) bool { return a.worthInserting }

func (a *fakeAdvisor) NeighborEvicted(id ctp.NodeID) {
	a.evicted = append(a.evicted, id)
}
