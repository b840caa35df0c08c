package allreduce

import (
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/essentials"
)

// A StreamAllreducer splits a vector into chunks and
// streams them around a ring of all the ranks at once.
//
// Rank 0 injects its chunks into the ring and every other
// rank folds its own data into each chunk on the way
// through, so fully reduced chunks arrive back at rank 0.
// Rank 0 then streams the result around the ring once
// more, stopping at the last rank.
//
// Every hop is acknowledged and at most one packet per
// phase is unacknowledged on each link, so the ring works
// even when the network reorders messages.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of ranks.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce streams data around the ring and returns the
// reduced vector.
func (s StreamAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) []float64 {
	if len(data) == 0 || c.Size() == 1 {
		return data
	}
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	r := &ringRank{
		c:         c,
		fn:        fn,
		numChunks: c.Size() * granularity,
		data:      data,
		unreduced: data,
	}
	return r.run()
}

// ringRank is one rank's progress through a streamed
// all-reduce.
type ringRank struct {
	c         *collcomm.Comms
	fn        collcomm.ReduceFn
	numChunks int

	data []float64

	// unreduced is the part of data that has not been
	// folded into a passing chunk yet.
	unreduced []float64

	reduced []float64

	reduceHop hop
	bcastHop  hop
}

func (r *ringRank) isRoot() bool {
	return r.c.Rank() == 0
}

func (r *ringRank) isLast() bool {
	return r.c.Rank() == r.c.Size()-1
}

func (r *ringRank) run() []float64 {
	if r.isRoot() {
		for _, chunk := range chunkify(r.data, r.numChunks) {
			r.reduceHop.push(r.c, &streamPacket{packetType: streamPacketReduce, payload: chunk})
		}
	}
	for !r.done() {
		r.handle(recvStreamPacket(r.c))
	}
	return r.reduced
}

// done is true once the result is complete and every
// packet this rank sent has been acknowledged.
func (r *ringRank) done() bool {
	return len(r.reduced) == len(r.data) && r.reduceHop.idle() && r.bcastHop.idle()
}

func (r *ringRank) handle(packet *streamPacket) {
	switch packet.packetType {
	case streamPacketReduce:
		r.acknowledge(streamPacketReduceAck)
		if r.isRoot() {
			r.collect(packet.payload)
		} else {
			r.fold(packet.payload)
		}
	case streamPacketBcast:
		if r.isRoot() {
			panic("allreduce: broadcast came back to the root")
		}
		r.reduced = append(r.reduced, packet.payload...)
		r.acknowledge(streamPacketBcastAck)
		if !r.isLast() {
			r.bcastHop.push(r.c, &streamPacket{packetType: streamPacketBcast, payload: packet.payload})
		}
	case streamPacketReduceAck:
		r.reduceHop.ack(r.c)
	case streamPacketBcastAck:
		r.bcastHop.ack(r.c)
	default:
		panic("allreduce: unexpected packet type")
	}
}

// collect stores a fully reduced chunk on the root and
// starts the broadcast once the result is complete.
func (r *ringRank) collect(chunk []float64) {
	r.reduced = append(r.reduced, chunk...)
	if len(r.reduced) > len(r.data) {
		panic("allreduce: excess data")
	}
	if len(r.reduced) < len(r.data) {
		return
	}
	for _, out := range chunkify(r.reduced, r.numChunks) {
		r.bcastHop.push(r.c, &streamPacket{packetType: streamPacketBcast, payload: out})
	}
}

// fold reduces this rank's next slice of data into a
// passing chunk and sends it on.
func (r *ringRank) fold(chunk []float64) {
	if len(chunk) > len(r.unreduced) {
		panic("allreduce: excess data")
	}
	out := r.fn(r.c.Handle, chunk, r.unreduced[:len(chunk)])
	r.unreduced = r.unreduced[len(chunk):]
	r.reduceHop.push(r.c, &streamPacket{packetType: streamPacketReduce, payload: out})
}

func (r *ringRank) acknowledge(t streamPacketType) {
	(&streamPacket{packetType: t}).Send(r.c)
}

// A hop is the link to the next rank in one phase of the
// ring. Packets queue until the previous one is
// acknowledged.
type hop struct {
	queue    []*streamPacket
	awaiting bool
}

func (h *hop) push(c *collcomm.Comms, p *streamPacket) {
	h.queue = append(h.queue, p)
	h.flush(c)
}

func (h *hop) ack(c *collcomm.Comms) {
	if !h.awaiting {
		panic("allreduce: unexpected ACK")
	}
	h.awaiting = false
	h.flush(c)
}

func (h *hop) flush(c *collcomm.Comms) {
	if h.awaiting || len(h.queue) == 0 {
		return
	}
	h.queue[0].Send(c)
	essentials.OrderedDelete(&h.queue, 0)
	h.awaiting = true
}

func (h *hop) idle() bool {
	return !h.awaiting && len(h.queue) == 0
}

// chunkify splits data into roughly numChunks slices of at
// least one element each.
func chunkify(data []float64, numChunks int) [][]float64 {
	chunkSize := max(1, len(data)/numChunks)
	res := make([][]float64, 0, numChunks+1)
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		res = append(res, data[:n])
		data = data[n:]
	}
	return res
}

type streamPacketType int

const (
	streamPacketReduce streamPacketType = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
)

type streamPacket struct {
	packetType streamPacketType
	payload    []float64
}

func recvStreamPacket(c *collcomm.Comms) *streamPacket {
	payload, _ := c.RecvPayload()
	return payload.(*streamPacket)
}

// Size is the number of bytes on the wire, counting one
// byte for the packet type.
func (s *streamPacket) Size() float64 {
	return float64(len(s.payload)*8) + 1.0
}

// Send sends the packet along the ring: ACKs go back to
// the previous rank and everything else goes to the next.
func (s *streamPacket) Send(c *collcomm.Comms) {
	dst := (c.Rank() + 1) % c.Size()
	if s.isAck() {
		dst = (c.Rank() + c.Size() - 1) % c.Size()
	}
	c.SendPayload(dst, s, s.Size())
}

func (s *streamPacket) isAck() bool {
	return s.packetType == streamPacketReduceAck || s.packetType == streamPacketBcastAck
}
