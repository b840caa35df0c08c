// Package collcomm implements the collective operations
// that partitioned vectors are reduced and distributed
// with.
//
// Every Communicator follows the SPMD model: all ranks
// must call the same collectives in the same order, and
// each call blocks until the whole group has taken part.
// A rank that skips a collective hangs every other rank.
// The simulated Comms reports this as a deadlock from
// simulator.EventLoop.Run; other implementations hang,
// like MPI does.
package collcomm

// A Communicator is one rank's view of a fixed-size
// process group.
type Communicator interface {
	// Rank is this process's index in [0, Size()).
	Rank() int

	// Size is the number of processes in the group.
	Size() int

	// Allreduce combines data element-wise across all
	// ranks and returns the same result on every rank.
	//
	// All ranks must pass vectors of the same length.
	// The result belongs to the caller: it never aliases
	// data or the result of another rank.
	Allreduce(data []float64, op ReduceOp) []float64

	// Scatterv sends sendBuf[displs[r]:displs[r]+counts[r]]
	// from root to every rank r and returns the local
	// slice.
	//
	// sendBuf, counts and displs are only significant on
	// the root. Other ranks may pass counts to have the
	// length of the received slice checked.
	Scatterv(root int, sendBuf []float64, counts, displs []int) []float64
}

// An Allreducer is an algorithm that can apply a ReduceFn
// to vectors that are distributed across simulated ranks.
//
// Implementations live in the allreduce subpackage.
type Allreducer interface {
	Allreduce(c *Comms, data []float64, fn ReduceFn) []float64
}
