package collcomm

// Self is the Communicator of a group containing only the
// calling process.
//
// Its collectives complete immediately.
type Self struct{}

// Rank always returns 0.
func (Self) Rank() int {
	return 0
}

// Size always returns 1.
func (Self) Size() int {
	return 1
}

// Allreduce returns a copy of data.
func (Self) Allreduce(data []float64, op ReduceOp) []float64 {
	return append([]float64{}, data...)
}

// Scatterv returns a copy of the only rank's slice.
func (Self) Scatterv(root int, sendBuf []float64, counts, displs []int) []float64 {
	CheckScatterv(1, root, sendBuf, counts, displs)
	return append([]float64{}, sendBuf[displs[0]:displs[0]+counts[0]]...)
}
