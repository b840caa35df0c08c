package simulator

// A Node represents a machine on a virtual network.
//
// In a collective computation every rank runs on its own
// Node.
type Node struct {
	unused int
}

// NewNode creates a new, unique Node.
func NewNode() *Node {
	return &Node{}
}

// NewNodes creates n unique Nodes, one per rank.
func NewNodes(n int) []*Node {
	res := make([]*Node, n)
	for i := range res {
		res[i] = NewNode()
	}
	return res
}

// Port creates a new Port connected to the Node.
func (n *Node) Port(loop *EventLoop) *Port {
	return &Port{Node: n, Incoming: loop.Stream()}
}

// A Port identifies a point of communication on a Node.
// Data is sent from Ports and received on Ports.
type Port struct {
	// The Node to which the Port is attached.
	Node *Node

	// A stream of *Message objects.
	Incoming *EventStream
}

// Recv receives the next message.
func (p *Port) Recv(h *Handle) *Message {
	return h.Poll(p.Incoming).Message.(*Message)
}

// A Message is a chunk of data sent between nodes over a
// network.
type Message struct {
	Source  *Port
	Dest    *Port
	Message interface{}

	// Size is the number of bytes on the wire, which
	// determines how long bandwidth-limited networks
	// take to deliver the message.
	Size float64
}

// A Network represents an abstract way of communicating
// between nodes.
type Network interface {
	// Send message objects from one node to another.
	// The message will arrive on the receiving port's
	// incoming EventStream if the communication is
	// successful.
	//
	// This is a non-blocking operation.
	//
	// It is preferrable to pass multiple messages in at
	// once, if possible.
	// Otherwise, the Network may have to continually
	// re-plan the entire message delivery timeline.
	Send(h *Handle, msgs ...*Message)
}

// A RandomNetwork is a network that assigns random delays
// to every message, so messages between the same pair of
// ports may be reordered.
type RandomNetwork struct {
	// MaxLatency bounds the uniformly random delay.
	//
	// If MaxLatency is 0, it is treated as 1.
	MaxLatency float64
}

// Send sends the messages with random delays.
func (r RandomNetwork) Send(h *Handle, msgs ...*Message) {
	maxLatency := r.MaxLatency
	if maxLatency == 0 {
		maxLatency = 1
	}
	for _, msg := range msgs {
		h.Schedule(msg.Dest.Incoming, msg, h.Uniform()*maxLatency)
	}
}
