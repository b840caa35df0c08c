package simulator

import "sync"

// An OrderedNetwork delivers the messages bound for each
// Node in the order they were sent. Each destination
// receives one message at a time at a fixed rate, and
// every message adds a random latency of its own.
//
// Taking a node down is how tests model a crashed or hung
// rank: every message to or from it is dropped, so its
// peers block inside the next collective.
type OrderedNetwork struct {
	Rate             float64
	MaxRandomLatency float64

	lock  sync.Mutex
	inbox map[*Node]*orderedInbox
	down  map[*Node]bool
}

// orderedInbox tracks the deliveries scheduled for one
// destination.
type orderedInbox struct {
	busyUntil float64
	pending   []orderedDelivery
}

type orderedDelivery struct {
	timer *Timer
	src   *Node
}

// NewOrderedNetwork creates an OrderedNetwork with a
// per-destination data rate (bytes per unit of virtual
// time) and a bound on the random per-message latency.
func NewOrderedNetwork(rate float64, maxRandomLatency float64) *OrderedNetwork {
	return &OrderedNetwork{
		Rate:             rate,
		MaxRandomLatency: maxRandomLatency,
		inbox:            map[*Node]*orderedInbox{},
		down:             map[*Node]bool{},
	}
}

// Send queues msgs behind everything already headed to
// the same destinations.
func (o *OrderedNetwork) Send(h *Handle, msgs ...*Message) {
	o.lock.Lock()
	defer o.lock.Unlock()

	now := h.Time()
	for _, msg := range msgs {
		src, dst := msg.Source.Node, msg.Dest.Node
		if o.down[src] || o.down[dst] {
			continue
		}
		in := o.inboxFor(dst, now)
		arrival := max(now, in.busyUntil) + h.Uniform()*o.MaxRandomLatency + msg.Size/o.Rate
		in.busyUntil = arrival
		in.pending = append(in.pending, orderedDelivery{
			timer: h.Schedule(msg.Dest.Incoming, msg, arrival-now),
			src:   src,
		})
	}
}

// IsDown reports whether a node is disconnected.
func (o *OrderedNetwork) IsDown(node *Node) bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.down[node]
}

// SetDown disconnects or reconnects a node.
//
// Disconnecting a node cancels every message that is
// still in flight to or from it.
func (o *OrderedNetwork) SetDown(h *Handle, node *Node, down bool) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if !down {
		delete(o.down, node)
		return
	}
	o.down[node] = true

	now := h.Time()
	for dst, in := range o.inbox {
		kept := in.pending[:0]
		for _, d := range in.pending {
			if d.timer.Time() < now {
				continue
			}
			if dst == node || d.src == node {
				h.Cancel(d.timer)
			} else {
				kept = append(kept, d)
			}
		}
		in.pending = kept
	}
	delete(o.inbox, node)
}

// inboxFor returns dst's inbox after forgetting deliveries
// that have already happened.
func (o *OrderedNetwork) inboxFor(dst *Node, now float64) *orderedInbox {
	in, ok := o.inbox[dst]
	if !ok {
		in = &orderedInbox{}
		o.inbox[dst] = in
	}
	kept := in.pending[:0]
	for _, d := range in.pending {
		if d.timer.Time() >= now {
			kept = append(kept, d)
		}
	}
	in.pending = kept
	return in
}
