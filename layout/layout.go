// Package layout decides which rank owns which indices of
// a vector.
//
// Layouts are immutable and meant to be shared by pointer.
// Two layouts are compatible only if they are the same
// instance: building two layouts with identical ranges
// yields two incompatible layouts.
package layout

import "github.com/gomlx/exceptions"

// An IndexLayout maps the indices a rank stores locally
// to positions in a global index range.
type IndexLayout interface {
	// GlobalRange is the range of the whole vector.
	GlobalRange() Range

	// NumberOfGlobalIndices is GlobalRange().Len().
	NumberOfGlobalIndices() int

	// NumberOfLocalIndices is the number of indices this
	// rank stores, possibly 0.
	NumberOfLocalIndices() int

	// LocalRange is the global range this rank owns, if
	// it owns anything.
	LocalRange() (Range, bool)

	// IndexRange is the global range owned by any rank of
	// the group. It panics if rank is not in [0, Size()).
	IndexRange(rank int) (Range, bool)

	// Map translates a local index into a global one.
	Map(local int) (int, bool)

	// Size is the number of ranks the layout is split
	// over.
	Size() int

	// Rank is the rank this view of the layout belongs
	// to.
	Rank() int
}

// Same reports whether a and b are the same layout
// instance.
func Same(a, b IndexLayout) bool {
	return a != nil && a == b
}

// Partition splits global into size contiguous blocks and
// returns the length and start offset of each, relative to
// global.Start.
//
// The first N%size ranks get one index more than the
// others. When there are fewer indices than ranks, the
// trailing ranks get empty blocks whose offset is N.
func Partition(global Range, size int) (counts, displs []int) {
	checkPartition(global, size)
	counts = make([]int, size)
	displs = make([]int, size)
	for r := range size {
		start, end := blockBounds(global.Len(), size, r)
		counts[r] = end - start
		displs[r] = start
	}
	return counts, displs
}

// blockBounds gives rank's block of n indices as offsets
// from the start of the range.
func blockBounds(n, size, rank int) (start, end int) {
	chunk := n / size
	remainder := n % size
	start = rank*chunk + min(rank, remainder)
	end = start + chunk
	if rank < remainder {
		end++
	}
	return start, end
}

func checkPartition(global Range, size int) {
	if global.End < global.Start {
		exceptions.Panicf("layout: invalid range %s", global)
	}
	if size < 1 {
		exceptions.Panicf("layout: cannot partition over %d ranks", size)
	}
}

func checkRank(rank, size int) {
	if rank < 0 || rank >= size {
		exceptions.Panicf("layout: rank %d out of range for %d ranks", rank, size)
	}
}
