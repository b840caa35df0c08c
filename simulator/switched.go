package simulator

import (
	"fmt"
	"math"
	"sync"
)

// A SwitchedNetwork moves data between ranks through a
// Switch. Transfers that share a rank's link run at the
// same time and slow each other down, so the network
// charges for contention as well as latency.
//
// Every Send re-plans the transfers still in flight, since
// a new transfer changes the rate of the ones it competes
// with.
type SwitchedNetwork struct {
	lock sync.Mutex

	sw      Switch
	ranks   map[*Node]int
	latency float64

	phases []*transferPhase
}

// NewSwitchedNetwork creates a network over nodes, where
// nodes[i] is rank i of the switch.
//
// Every transfer pays latency before its first byte moves.
// While a transfer is paying latency it still occupies its
// link, so latency also adds to contention.
func NewSwitchedNetwork(sw Switch, nodes []*Node, latency float64) *SwitchedNetwork {
	ranks := make(map[*Node]int, len(nodes))
	for i, node := range nodes {
		ranks[node] = i
	}
	return &SwitchedNetwork{sw: sw, ranks: ranks, latency: latency}
}

// Send starts transferring msgs.
func (s *SwitchedNetwork) Send(h *Handle, msgs ...*Message) {
	s.lock.Lock()
	defer s.lock.Unlock()

	inFlight := s.suspend(h)
	for _, msg := range msgs {
		src, dst := s.link(msg)
		inFlight = append(inFlight, &transfer{
			msg:       msg,
			src:       src,
			dst:       dst,
			latency:   s.latency,
			remaining: msg.Size,
		})
	}
	s.schedule(h, inFlight)
}

// suspend cancels every pending delivery and returns the
// transfers that have not arrived, advanced to the current
// time.
func (s *SwitchedNetwork) suspend(h *Handle) []*transfer {
	var inFlight []*transfer
	now := h.Time()
	for _, phase := range s.phases {
		if now >= phase.end {
			continue
		}
		if now >= phase.start {
			for _, t := range phase.transfers {
				inFlight = append(inFlight, t.advance(now-phase.start))
			}
		}
		for _, timer := range phase.timers {
			h.Cancel(timer)
		}
	}
	return inFlight
}

// schedule splits the delivery of inFlight into phases.
// A phase ends when the next transfer arrives, after which
// the survivors get new rates from the Switch.
func (s *SwitchedNetwork) schedule(h *Handle, inFlight []*transfer) {
	s.phases = s.phases[:0]
	start := h.Time()
	for len(inFlight) > 0 {
		s.assignRates(inFlight)

		var arriving, rest []*transfer
		eta := math.Inf(1)
		for _, t := range inFlight {
			if e := t.eta(); e < eta {
				eta = e
				rest = append(rest, arriving...)
				arriving = []*transfer{t}
			} else if e == eta {
				arriving = append(arriving, t)
			} else {
				rest = append(rest, t)
			}
		}

		phase := &transferPhase{start: start, transfers: inFlight}
		for _, t := range arriving {
			timer := h.Schedule(t.msg.Dest.Incoming, t.msg, start+eta-h.Time())
			phase.timers = append(phase.timers, timer)
		}
		phase.end = phase.timers[0].Time()
		s.phases = append(s.phases, phase)

		for i, t := range rest {
			rest[i] = t.advance(phase.end - start)
		}
		inFlight = rest
		start = phase.end
	}
}

// assignRates asks the Switch for every busy link's rate
// and splits it evenly between the transfers on that link.
func (s *SwitchedNetwork) assignRates(inFlight []*transfer) {
	links := NewLinkMatrix(len(s.ranks))
	perLink := map[[2]int]int{}
	for _, t := range inFlight {
		links.Set(t.src, t.dst, 1)
		perLink[[2]int{t.src, t.dst}]++
	}
	s.sw.Allocate(links)
	for _, t := range inFlight {
		t.rate = links.At(t.src, t.dst) / float64(perLink[[2]int{t.src, t.dst}])
	}
}

func (s *SwitchedNetwork) link(msg *Message) (src, dst int) {
	src, ok := s.ranks[msg.Source.Node]
	if !ok {
		panic(fmt.Sprintf("message source %p is not a rank of this network", msg.Source.Node))
	}
	dst, ok = s.ranks[msg.Dest.Node]
	if !ok {
		panic(fmt.Sprintf("message destination %p is not a rank of this network", msg.Dest.Node))
	}
	return src, dst
}

// A transfer is a message on its way from rank src to
// rank dst.
type transfer struct {
	msg      *Message
	src, dst int

	latency   float64
	remaining float64
	rate      float64
}

// eta is the time left until the transfer arrives at its
// current rate.
func (t *transfer) eta() float64 {
	return math.Max(0, t.latency+t.remaining/t.rate)
}

// advance returns a copy of t with elapsed time spent,
// first on latency and then on bytes.
func (t *transfer) advance(elapsed float64) *transfer {
	res := *t
	if elapsed < res.latency {
		res.latency -= elapsed
		return &res
	}
	elapsed -= res.latency
	res.latency = 0
	res.remaining -= res.rate * elapsed
	return &res
}

// A transferPhase is a period in which every in-flight
// transfer keeps the same rate. It ends with the delivery
// of at least one message.
type transferPhase struct {
	start, end float64
	timers     []*Timer
	transfers  []*transfer
}
