package layout

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/unixpickle/distvec/collcomm"
)

// Distributed is a block partition of a global range over
// the ranks of a process group, seen from one rank.
type Distributed struct {
	global Range
	size   int
	rank   int
	comm   collcomm.Communicator

	counts []int
	displs []int
	local  *Local
}

// NewDistributed creates rank's view of global split over
// size ranks.
//
// The result has no communicator, so it can describe
// ownership but cannot back a distributed vector.
func NewDistributed(global Range, size, rank int) *Distributed {
	checkPartition(global, size)
	checkRank(rank, size)
	counts, displs := Partition(global, size)
	d := &Distributed{
		global: global,
		size:   size,
		rank:   rank,
		counts: counts,
		displs: displs,
	}
	if r, ok := d.LocalRange(); ok {
		d.local = NewLocal(r)
	}
	return d
}

// ForCommunicator creates the calling rank's view of
// global split over the ranks of comm.
func ForCommunicator(global Range, comm collcomm.Communicator) *Distributed {
	if comm == nil {
		exceptions.Panicf("layout: nil communicator")
	}
	d := NewDistributed(global, comm.Size(), comm.Rank())
	d.comm = comm
	return d
}

// Comm returns the communicator the layout was built for,
// or nil.
func (d *Distributed) Comm() collcomm.Communicator {
	return d.comm
}

func (d *Distributed) GlobalRange() Range {
	return d.global
}

func (d *Distributed) NumberOfGlobalIndices() int {
	return d.global.Len()
}

func (d *Distributed) NumberOfLocalIndices() int {
	return d.counts[d.rank]
}

func (d *Distributed) LocalRange() (Range, bool) {
	return d.IndexRange(d.rank)
}

func (d *Distributed) IndexRange(rank int) (Range, bool) {
	checkRank(rank, d.size)
	if d.counts[rank] == 0 {
		return Range{}, false
	}
	start := d.global.Start + d.displs[rank]
	return Range{Start: start, End: start + d.counts[rank]}, true
}

func (d *Distributed) Map(local int) (int, bool) {
	if local < 0 || local >= d.counts[d.rank] {
		return 0, false
	}
	return d.global.Start + d.displs[d.rank] + local, true
}

func (d *Distributed) Size() int {
	return d.size
}

func (d *Distributed) Rank() int {
	return d.rank
}

// Counts returns the number of indices each rank owns, in
// the form Scatterv expects.
func (d *Distributed) Counts() []int {
	return append([]int{}, d.counts...)
}

// Displacements returns where each rank's block starts,
// relative to the start of the global range.
func (d *Distributed) Displacements() []int {
	return append([]int{}, d.displs...)
}

// LocalLayout returns the layout of this rank's block.
//
// Every call on the same Distributed returns the same
// *Local, so local vectors built from it are compatible.
func (d *Distributed) LocalLayout() (*Local, bool) {
	return d.local, d.local != nil
}

// IsSame reports whether other is this very layout.
func (d *Distributed) IsSame(other IndexLayout) bool {
	return Same(d, other)
}

func (d *Distributed) String() string {
	return fmt.Sprintf("Distributed(%s, rank %d/%d)", d.global, d.rank, d.size)
}
