package ctp

// Routing engine : maintains a bounded routing table, picks
// the current parent by multi-hop ETX, and drives Trickle-timed beaconing.

// RoutingEntry is one row of the routing table.
type RoutingEntry struct {
	ID              NodeID
	AdvertisedETX   uint16
	AdvertisedParent NodeID
	Congested       bool
	valid           bool
}

// Route summarizes the node's current parent choice.
type Route struct {
	Parent    NodeID
	ETX       uint16
	Congested bool
}

func (r Route) validParent() bool { return r.Parent != InvalidAddress }

// CongestionSource is the coupling the routing engine needs from the
// forwarding engine to fill in the CTP_CONGESTED beacon bit
// ("Beacon construction"). Implemented by [Forwarding].
type CongestionSource interface {
	IsCongested() bool
}

// Router is the routing engine's state.
type Router struct {
	IsRoot bool

	table [RoutingTableSize]RoutingEntry
	route Route

	// intervalB is the current Trickle interval I_b.
	intervalB VTime

	selfID  NodeID
	metrics Metrics
}

// AttachMetrics wires an optional observability sink (see [Metrics]).
func (r *Router) AttachMetrics(self NodeID, m Metrics) {
	r.selfID = self
	r.metrics = m
}

// NewRouter returns a Router with an invalid route and the Trickle interval
// at its floor.
func NewRouter(isRoot bool) *Router {
	r := &Router{IsRoot: isRoot, intervalB: MinBeaconsSendInterval}
	r.route = Route{Parent: InvalidAddress, ETX: VeryLargeETX}
	if isRoot {
		r.route = Route{Parent: InvalidAddress, ETX: 0}
	}
	return r
}

// GetETX returns the node's current ETX . ok is false if there
// is no valid parent (and the node is not root).
func (r *Router) GetETX() (etx uint16, ok bool) {
	if r.IsRoot {
		return 0, true
	}
	if !r.route.validParent() {
		return 0, false
	}
	return r.route.ETX, true
}

// GetParent returns the current parent, or InvalidAddress.
func (r *Router) GetParent() NodeID {
	return r.route.Parent
}

func (r *Router) lookup(id NodeID) (*RoutingEntry, bool) {
	for i := range r.table {
		if r.table[i].valid && r.table[i].ID == id {
			return &r.table[i], true
		}
	}
	return nil, false
}

func (r *Router) freeSlot() (*RoutingEntry, bool) {
	for i := range r.table {
		if !r.table[i].valid {
			return &r.table[i], true
		}
	}
	return nil, false
}

// WorthInserting implements [RoutingAdvisor]. It reports every candidate as
// worth inserting; it does not compare the candidate with the table's
// occupants.
func (r *Router) WorthInserting(NodeID) bool {
	return true
}

// NeighborEvicted implements [RoutingAdvisor]: remove the matching
// routing-table entry, and if it was the parent, invalidate the route so
// the next UpdateRoute call re-selects.
func (r *Router) NeighborEvicted(id NodeID) {
	if entry, ok := r.lookup(id); ok {
		entry.valid = false
	}
	if r.route.Parent == id {
		r.route.Parent = InvalidAddress
		r.route.ETX = VeryLargeETX
	}
	if r.metrics != nil {
		r.metrics.IncNeighborEvictions(r.selfID)
	}
}

// ReceiveBeacon ingests a beacon's routing information. est is consulted
// for the sender's 1-hop ETX
// and to pin a root announcement; congestion is consulted for the node's
// own outgoing beacon but not used here.
func (r *Router) ReceiveBeacon(sender NodeID, x, y float64, b *BeaconFrame, est *Estimator, sched Scheduler) {
	if r.IsRoot {
		return
	}

	if b.ETX == 0 {
		// Root announcement: force insertion and pin before the table update.
		if _, ok := est.Lookup(sender); !ok {
			est.ReceiveBeacon(sender, x, y, 0, r, sched)
		}
		est.Pin(sender)
	}

	if b.Parent == InvalidAddress && b.ETX != 0 {
		// Sender has no parent of its own; its advertisement is not
		// actionable for table purposes beyond the PULL handling below.
		if b.Options&CtpPull != 0 {
			r.ResetBeaconInterval()
		}
		return
	}

	entry, existed := r.lookup(sender)
	if !existed {
		slot, hasRoom := r.freeSlot()
		if !hasRoom {
			return
		}
		if est.OneHopETX(sender) >= MaxOneHopETX {
			return
		}
		entry = slot
		entry.ID = sender
		entry.valid = true
	}

	entry.AdvertisedETX = b.ETX
	entry.AdvertisedParent = b.Parent

	wasCongested := entry.Congested
	entry.Congested = b.Options&CtpCongested != 0
	r.updateNeighborCongested(sender, wasCongested, entry.Congested, est)

	if b.Options&CtpPull != 0 {
		r.ResetBeaconInterval()
	}
}

// updateNeighborCongested implements the congestion-triggered re-route
// rule. route.Congested tracks whether the current parent is congested --
// the only place that flag is set outside of UpdateRoute's own
// switch-time assignment -- so the two triggers below actually have
// something to react to.
func (r *Router) updateNeighborCongested(sender NodeID, was, now bool, est *Estimator) {
	routeWasCongested := r.route.Congested
	if sender == r.route.Parent {
		r.route.Congested = now
	}
	if now && !was && sender == r.route.Parent {
		r.UpdateRoute(est)
	}
	if !now && was && routeWasCongested {
		r.UpdateRoute(est)
	}
}

// UpdateRoute re-selects the parent (update_route). est supplies
// every candidate's 1-hop ETX -- both for scoring candidates and for
// pin/unpin bookkeeping on a switch -- so callers must pass the node's real
// estimator; a nil est makes every candidate's 1-hop ETX read as
// VeryLargeETX, which disqualifies every entry and turns this into a no-op.
func (r *Router) UpdateRoute(est *Estimator) {
	if r.IsRoot {
		return
	}

	var best *RoutingEntry
	var bestETX uint16
	var actualETX uint16
	haveActual := false

	etxOf := func(id NodeID) uint16 {
		if est != nil {
			return est.OneHopETX(id)
		}
		return VeryLargeETX
	}

	for i := range r.table {
		entry := &r.table[i]
		// A root announcement (advertised ETX 0) has no parent of its own but
		// is still a candidate, as in ReceiveBeacon.
		if !entry.valid || (entry.AdvertisedParent == InvalidAddress && entry.AdvertisedETX != 0) {
			continue
		}
		if entry.Congested {
			continue
		}
		oneHop := etxOf(entry.ID)
		if oneHop >= MaxOneHopETX {
			continue
		}
		candidateETX := oneHop + entry.AdvertisedETX

		if entry.ID == r.route.Parent {
			actualETX = candidateETX
			haveActual = true
		}

		if best == nil || candidateETX < bestETX {
			best = entry
			bestETX = candidateETX
		}
	}

	if best == nil {
		return
	}

	shouldSwitch := false
	switch {
	case !r.route.validParent():
		shouldSwitch = true
	case r.route.Congested && bestETX < r.route.ETX+10:
		shouldSwitch = true
	case haveActual && bestETX+ParentSwitchThreshold < actualETX:
		shouldSwitch = true
	}

	if !shouldSwitch || best.ID == r.route.Parent {
		return
	}

	if est != nil {
		if r.route.validParent() {
			est.Unpin(r.route.Parent)
		}
		est.Pin(best.ID)
		est.ResetOutgoingCounters(best.ID)
	}

	r.route = Route{Parent: best.ID, ETX: bestETX, Congested: best.Congested}
	if r.metrics != nil {
		r.metrics.IncParentSwitches(r.selfID)
	}
}

// ResetBeaconInterval forces I_b back to its floor (the Trickle timer is
// reset on PULL receipt or loop detection). The caller is
// responsible for (re)scheduling EventSendBeaconsTimerFired using
// [Router.NextBeaconDelay].
func (r *Router) ResetBeaconInterval() {
	r.intervalB = MinBeaconsSendInterval
}

// NextBeaconDelay draws a send time uniformly in [I_b/2, I_b] and doubles
// I_b (capped at MaxBeaconsSendInterval) for the following period
// ("Trickle-like beacon timer").
func (r *Router) NextBeaconDelay(sched Scheduler) VTime {
	half := r.intervalB / 2
	span := r.intervalB - half
	var delay VTime
	if span <= 0 {
		delay = half
	} else {
		delay = half + VTime(sched.RandomRange(0, int(span)))
	}

	r.intervalB *= 2
	if r.intervalB > MaxBeaconsSendInterval {
		r.intervalB = MaxBeaconsSendInterval
	}
	return delay
}

// BuildBeacon constructs the node's next outgoing beacon.
func (r *Router) BuildBeacon(congestion CongestionSource) BeaconFrame {
	b := BeaconFrame{}
	if congestion.IsCongested() {
		b.Options |= CtpCongested
	}

	switch {
	case r.IsRoot:
		b.ETX = 0
		b.Parent = InvalidAddress
	case r.route.validParent():
		b.ETX = r.route.ETX
		b.Parent = r.route.Parent
	default:
		b.ETX = r.route.ETX
		b.Parent = InvalidAddress
		b.Options |= CtpPull
	}
	return b
}
