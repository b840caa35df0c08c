package collcomm

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/unixpickle/distvec/simulator"
)

// FlopTime is the amount of virtual time it takes to
// perform a single floating-point operation.
const FlopTime = 1e-9

// A ReduceOp names the element-wise combination used by
// Communicator.Allreduce.
type ReduceOp int

const (
	// OpSum adds the contributions of every rank.
	OpSum ReduceOp = iota

	// OpMax takes the largest contribution. Ranks with
	// nothing to contribute should pass -Inf.
	OpMax
)

// String returns the operator's name.
func (r ReduceOp) String() string {
	switch r {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int(r))
	}
}

// Apply folds src into dst element-wise.
func (r ReduceOp) Apply(dst, src []float64) {
	if len(dst) != len(src) {
		exceptions.Panicf("collcomm: mismatching lengths %d and %d in %s reduction",
			len(dst), len(src), r)
	}
	switch r {
	case OpSum:
		for i, x := range src {
			dst[i] += x
		}
	case OpMax:
		for i, x := range src {
			dst[i] = math.Max(dst[i], x)
		}
	default:
		exceptions.Panicf("collcomm: unknown reduce op %d", int(r))
	}
}

// Reduce combines vectors into a new vector.
func (r ReduceOp) Reduce(vecs ...[]float64) []float64 {
	res := append([]float64{}, vecs[0]...)
	for _, v := range vecs[1:] {
		r.Apply(res, v)
	}
	return res
}

// ReduceFn returns the ReduceFn implementing r.
func (r ReduceOp) ReduceFn() ReduceFn {
	switch r {
	case OpSum:
		return Sum
	case OpMax:
		return Max
	default:
		exceptions.Panicf("collcomm: unknown reduce op %d", int(r))
		return nil
	}
}

// A ReduceFn is an operation that reduces many vectors
// into a single vector.
type ReduceFn func(h *simulator.Handle, vecs ...[]float64) []float64

// Sum is a ReduceFn that computes a vector sum.
func Sum(h *simulator.Handle, vecs ...[]float64) []float64 {
	return simulateReduce(h, OpSum, vecs)
}

// Max is a ReduceFn that computes an element-wise maximum.
func Max(h *simulator.Handle, vecs ...[]float64) []float64 {
	return simulateReduce(h, OpMax, vecs)
}

func simulateReduce(h *simulator.Handle, op ReduceOp, vecs [][]float64) []float64 {
	res := op.Reduce(vecs...)

	// Simulate computation time.
	h.Sleep(FlopTime * float64(len(vecs)*len(vecs[0])))

	return res
}
