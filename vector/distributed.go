package vector

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/layout"
	"k8s.io/klog/v2"
)

// A DistributedVector is a vector whose elements are
// partitioned over the ranks of a communicator.
//
// Each rank holds a LocalVector over its own block, or
// nothing if it owns no indices.
// Reductions are collective: every rank of the group must
// call them in the same order.
type DistributedVector[T Scalar] struct {
	layout *layout.Distributed
	comm   collcomm.Communicator
	local  *LocalVector[T]
}

// NewDistributed creates a zero vector over l.
//
// The layout must come from layout.ForCommunicator.
func NewDistributed[T Scalar](l *layout.Distributed) *DistributedVector[T] {
	if l.Comm() == nil {
		exceptions.Panicf("vector: layout %s has no communicator", l)
	}
	v := &DistributedVector[T]{layout: l, comm: l.Comm()}
	if ll, ok := l.LocalLayout(); ok {
		v.local = NewLocal[T](ll)
	}
	return v
}

// Layout returns the layout the vector was created with.
func (v *DistributedVector[T]) Layout() *layout.Distributed {
	return v.layout
}

// Comm returns the communicator reductions run over.
func (v *DistributedVector[T]) Comm() collcomm.Communicator {
	return v.comm
}

// Local returns this rank's block, if it owns one.
func (v *DistributedVector[T]) Local() (*LocalVector[T], bool) {
	return v.local, v.local != nil
}

// Inner computes the global inner product with other.
// Every rank gets the same result.
func (v *DistributedVector[T]) Inner(other *DistributedVector[T]) (T, error) {
	if err := v.checkLayout(other); err != nil {
		var zero T
		return zero, err
	}
	var partial T
	if v.local != nil {
		var err error
		if partial, err = v.local.Inner(other.local); err != nil {
			return partial, err
		}
	}
	res := unpack[T](v.comm.Allreduce(pack([]T{partial}), collcomm.OpSum))[0]
	klog.V(3).Infof("rank %d: inner partial=%v global=%v", v.comm.Rank(), partial, res)
	return res, nil
}

// SquareSum computes the global sum of |v[i]|^2.
func (v *DistributedVector[T]) SquareSum() float64 {
	var partial float64
	if v.local != nil {
		partial = v.local.SquareSum()
	}
	return v.reduceReal("square sum", partial, collcomm.OpSum)
}

// Norm1 computes the global sum of |v[i]|.
func (v *DistributedVector[T]) Norm1() float64 {
	var partial float64
	if v.local != nil {
		partial = v.local.Norm1()
	}
	return v.reduceReal("norm1", partial, collcomm.OpSum)
}

// Norm2 computes the global Euclidean norm.
func (v *DistributedVector[T]) Norm2() float64 {
	return math.Sqrt(v.SquareSum())
}

// NormInf computes the global maximum of |v[i]|.
// Ranks without a block contribute -Inf.
func (v *DistributedVector[T]) NormInf() float64 {
	partial := math.Inf(-1)
	if v.local != nil {
		partial = v.local.NormInf()
	}
	return v.reduceReal("norminf", partial, collcomm.OpMax)
}

// FillFromRoot overwrites the vector with the contents of
// source, which only rank 0 holds.
//
// Rank 0 must pass a vector with one element per global
// index and every other rank must pass nil.
func (v *DistributedVector[T]) FillFromRoot(source *LocalVector[T]) error {
	rank := v.comm.Rank()
	var sendBuf []float64
	if rank == 0 {
		if source == nil {
			exceptions.Panicf("vector: root must provide a source vector")
		}
		if source.Len() != v.layout.NumberOfGlobalIndices() {
			exceptions.Panicf("vector: source has %d elements but the layout has %d",
				source.Len(), v.layout.NumberOfGlobalIndices())
		}
		sendBuf = pack(source.Values())
		klog.V(2).Infof("rank 0: scattering %d elements over %d ranks", source.Len(),
			v.comm.Size())
	} else if source != nil {
		exceptions.Panicf("vector: rank %d passed a source vector, only rank 0 may", rank)
	}

	w := wireWidth[T]()
	counts := scaleCounts(v.layout.Counts(), w)
	displs := scaleCounts(v.layout.Displacements(), w)
	recv := v.comm.Scatterv(0, sendBuf, counts, displs)

	if v.local == nil {
		if len(recv) != 0 {
			exceptions.Panicf("vector: rank %d owns nothing but received %d values", rank,
				len(recv))
		}
		return nil
	}
	return errors.Wrapf(v.local.CopyFrom(unpack[T](recv)), "rank %d", rank)
}

// Swap exchanges the local blocks of v and other.
func (v *DistributedVector[T]) Swap(other *DistributedVector[T]) error {
	return v.pairwise(other, (*LocalVector[T]).Swap)
}

// Fill copies the local block of other into v.
func (v *DistributedVector[T]) Fill(other *DistributedVector[T]) error {
	return v.pairwise(other, (*LocalVector[T]).Fill)
}

// ScalarMult multiplies every element by s.
func (v *DistributedVector[T]) ScalarMult(s T) {
	if v.local != nil {
		v.local.ScalarMult(s)
	}
}

// MultSumInto adds s*other to v.
func (v *DistributedVector[T]) MultSumInto(other *DistributedVector[T], s T) error {
	return v.pairwise(other, func(a, b *LocalVector[T]) error {
		return a.MultSumInto(b, s)
	})
}

func (v *DistributedVector[T]) String() string {
	if v.local == nil {
		return fmt.Sprintf("%s: []", v.layout)
	}
	return fmt.Sprintf("%s: %s", v.layout, v.local)
}

func (v *DistributedVector[T]) pairwise(other *DistributedVector[T],
	fn func(a, b *LocalVector[T]) error) error {
	if err := v.checkLayout(other); err != nil {
		return err
	}
	if v.local == nil {
		return nil
	}
	return fn(v.local, other.local)
}

func (v *DistributedVector[T]) checkLayout(other *DistributedVector[T]) error {
	if !v.layout.IsSame(other.layout) {
		return errors.Wrapf(ErrLayoutMismatch, "distributed layouts %s and %s", v.layout,
			other.layout)
	}
	return nil
}

func (v *DistributedVector[T]) reduceReal(name string, partial float64,
	op collcomm.ReduceOp) float64 {
	res := v.comm.Allreduce([]float64{partial}, op)[0]
	klog.V(3).Infof("rank %d: %s partial=%g global=%g", v.comm.Rank(), name, partial, res)
	return res
}
