package collcomm

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/unixpickle/distvec/simulator"
)

// CheckScatterv panics unless the root-side arguments to
// a Scatterv describe a valid split of sendBuf over size
// ranks.
//
// Communicator implementations call this on the root
// before sending anything.
func CheckScatterv(size, root int, sendBuf []float64, counts, displs []int) {
	CheckRoot(size, root)
	if len(counts) != size || len(displs) != size {
		exceptions.Panicf("collcomm: scatterv needs %d counts and displacements, got %d and %d",
			size, len(counts), len(displs))
	}
	for r, count := range counts {
		if count < 0 || displs[r] < 0 || displs[r]+count > len(sendBuf) {
			exceptions.Panicf("collcomm: scatterv slice [%d:%d] for rank %d exceeds buffer of %d",
				displs[r], displs[r]+count, r, len(sendBuf))
		}
	}
}

// CheckRoot panics if root is not a rank of a group with
// the given size.
func CheckRoot(size, root int) {
	if root < 0 || root >= size {
		exceptions.Panicf("collcomm: root %d out of range for %d ranks", root, size)
	}
}

// CheckReceived panics if a non-root rank received a
// slice whose length disagrees with the counts it passed.
func CheckReceived(rank int, recv []float64, counts []int) {
	if counts == nil {
		return
	}
	if rank >= len(counts) || len(recv) != counts[rank] {
		exceptions.Panicf("collcomm: rank %d received %d values but expected counts %v",
			rank, len(recv), counts)
	}
}

// Scatterv distributes slices of sendBuf from root to all
// ranks. See Communicator.
func (c *Comms) Scatterv(root int, sendBuf []float64, counts, displs []int) []float64 {
	CheckRoot(len(c.Ports), root)
	if c.rank == root {
		CheckScatterv(len(c.Ports), root, sendBuf, counts, displs)
	}
	c.beginCollective("scatterv", fmt.Sprintf("root=%d", root), len(sendBuf))

	if c.rank == root {
		var own []float64
		messages := make([]*simulator.Message, 0, len(c.Ports)-1)
		for r := range c.Ports {
			part := append([]float64{}, sendBuf[displs[r]:displs[r]+counts[r]]...)
			if r == root {
				own = part
				continue
			}
			messages = append(messages, c.message(r, part, vectorSize(part)))
		}
		c.Network.Send(c.Handle, messages...)
		return own
	}

	recv, src := c.Recv()
	if src != root {
		exceptions.Panicf("collcomm: rank %d got scatterv data from rank %d, not root %d",
			c.rank, src, root)
	}
	CheckReceived(c.rank, recv, counts)
	return recv
}
