package collcomm

import (
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/unixpickle/distvec/simulator"
	"github.com/unixpickle/essentials"
	"k8s.io/klog/v2"
)

// Comms manages a set of connections between simulated
// ranks.
//
// Each rank has a local Comms object that represents its
// view of the world.
// Every message is tagged with the number of the
// collective it belongs to, so a single Comms can be used
// for any number of collectives in a row.
type Comms struct {
	// Handle is the rank's main Goroutine's handle on the
	// event loop.
	Handle *simulator.Handle

	// Port is the current rank's port.
	Port *simulator.Port

	// Ports contains ports to all the ranks in the
	// network, including the current rank.
	// A rank's index in Ports is its rank.
	Ports []*simulator.Port

	// Network is the network connecting the ranks.
	Network simulator.Network

	// Reducer implements Allreduce.
	Reducer Allreducer

	// Session identifies the SpawnComms call in logs.
	Session uuid.UUID

	rank    int
	epoch   int64
	pending []*simulator.Message
}

// envelope tags a payload with the collective it was
// sent during.
type envelope struct {
	epoch   int64
	payload interface{}
}

// SpawnComms creates Comms objects for every node in a
// network and calls f for each node in its own Goroutine.
//
// Node i becomes rank i.
// The reducer is used for Allreduce calls. It may be nil
// if f never calls Allreduce.
func SpawnComms(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node,
	reducer Allreducer, f func(c *Comms)) {
	session := uuid.New()
	klog.V(2).Infof("[%s] spawning %d ranks", session, len(nodes))

	ports := make([]*simulator.Port, len(nodes))
	for i, node := range nodes {
		ports[i] = node.Port(loop)
	}
	for i := range nodes {
		loop.Go(func(h *simulator.Handle) {
			f(&Comms{
				Handle:  h,
				Port:    ports[i],
				Ports:   ports,
				Network: network,
				Reducer: reducer,
				Session: session,
				rank:    i,
			})
		})
	}
}

// Rank gets the current rank.
func (c *Comms) Rank() int {
	return c.rank
}

// Size gets the number of ranks.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Index is an alias for Rank.
func (c *Comms) Index() int {
	return c.rank
}

// IndexOf returns any port's rank.
func (c *Comms) IndexOf(p *simulator.Port) int {
	for i, port := range c.Ports {
		if port == p {
			return i
		}
	}
	exceptions.Panicf("collcomm: port does not belong to session %s", c.Session)
	return -1
}

// Epoch returns the number of collectives this rank has
// started.
func (c *Comms) Epoch() int64 {
	return c.epoch
}

// Allreduce reduces data across every rank using the
// Comms' Reducer.
//
// Reducers forward one reduced vector down to every rank,
// so the result is copied before it is handed back.
func (c *Comms) Allreduce(data []float64, op ReduceOp) []float64 {
	if c.Reducer == nil {
		exceptions.Panicf("collcomm: Allreduce on session %s without a Reducer", c.Session)
	}
	c.beginCollective("allreduce", op.String(), len(data))
	res := c.Reducer.Allreduce(c, data, op.ReduceFn())
	return append(make([]float64, 0, len(res)), res...)
}

// Bcast sends a vector to every other rank.
func (c *Comms) Bcast(vec []float64) {
	messages := make([]*simulator.Message, 0, len(c.Ports)-1)
	for i := range c.Ports {
		if i == c.rank {
			continue
		}
		messages = append(messages, c.message(i, vec, vectorSize(vec)))
	}
	c.Network.Send(c.Handle, messages...)
}

// Send schedules a vector to be sent to the given rank.
func (c *Comms) Send(dst int, vec []float64) {
	c.SendPayload(dst, vec, vectorSize(vec))
}

// Recv receives the next vector sent during the current
// collective, along with the rank that sent it.
func (c *Comms) Recv() ([]float64, int) {
	payload, src := c.RecvPayload()
	return payload.([]float64), src
}

// SendPayload sends an arbitrary object to the given rank.
// The size is the number of bytes the payload occupies on
// the wire.
func (c *Comms) SendPayload(dst int, payload interface{}, size float64) {
	c.Network.Send(c.Handle, c.message(dst, payload, size))
}

// RecvPayload receives the next object sent during the
// current collective.
//
// Messages from later collectives are held back until
// this rank reaches them.
// Stragglers from earlier collectives, such as trailing
// acknowledgements, are dropped.
func (c *Comms) RecvPayload() (interface{}, int) {
	for i, msg := range c.pending {
		if env := msg.Message.(*envelope); env.epoch == c.epoch {
			essentials.OrderedDelete(&c.pending, i)
			return env.payload, c.IndexOf(msg.Source)
		}
	}
	for {
		msg := c.Port.Recv(c.Handle)
		env := msg.Message.(*envelope)
		switch {
		case env.epoch == c.epoch:
			return env.payload, c.IndexOf(msg.Source)
		case env.epoch > c.epoch:
			c.pending = append(c.pending, msg)
		default:
			klog.V(5).Infof("[%s] rank %d: dropping message from epoch %d (now %d)",
				c.Session, c.rank, env.epoch, c.epoch)
		}
	}
}

func (c *Comms) message(dst int, payload interface{}, size float64) *simulator.Message {
	return &simulator.Message{
		Source:  c.Port,
		Dest:    c.Ports[dst],
		Message: &envelope{epoch: c.epoch, payload: payload},
		Size:    size,
	}
}

func (c *Comms) beginCollective(name, detail string, n int) {
	c.epoch++
	klog.V(4).Infof("[%s] rank %d/%d: %s(%s) epoch=%d len=%d", c.Session, c.rank,
		len(c.Ports), name, detail, c.epoch, n)
}

func vectorSize(vec []float64) float64 {
	return float64(len(vec) * 8)
}
