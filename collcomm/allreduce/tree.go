package allreduce

import "github.com/unixpickle/distvec/collcomm"

// A TreeAllreducer arranges the ranks in a binary tree
// and performs a reduction by going up the tree to rank
// 0, and then back down the tree to the leaves.
type TreeAllreducer struct{}

// Allreduce calls fn on vectors along a tree and returns
// the resulting reduced vector.
func (t TreeAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) []float64 {
	parent, children := positionInTree(c.Rank(), c.Size())

	// Children may report in any order; order the inputs
	// by rank so floating-point sums don't depend on
	// message timing.
	messages := make([][]float64, 1+len(children))
	messages[0] = data
	for range children {
		msg, src := c.Recv()
		for i, child := range children {
			if child == src {
				messages[i+1] = msg
			}
		}
	}

	finalVector := fn(c.Handle, messages...)
	if parent >= 0 {
		c.Send(parent, finalVector)
		finalVector, _ = c.Recv()
	}

	for _, child := range children {
		c.Send(child, finalVector)
	}

	return finalVector
}

// positionInTree returns the child ranks and parent rank
// for a rank in the reduction tree.
//
// There may be no children.
// The parent is -1 for the root.
func positionInTree(rank, size int) (parent int, children []int) {
	parent = -1
	for depth := uint(0); true; depth++ {
		rowSize := 1 << depth
		rowStart := rowSize - 1
		if rank >= rowStart+rowSize {
			continue
		}
		rowIdx := rank - rowStart
		if depth > 0 {
			parent = rowIdx/2 + (rowSize/2 - 1)
		}
		firstChild := rowIdx*2 + (rowSize*2 - 1)
		for i := range 2 {
			if firstChild+i < size {
				children = append(children, firstChild+i)
			}
		}
		return
	}
	panic("unreachable")
}
