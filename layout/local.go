package layout

import "github.com/gomlx/exceptions"

// Local is the layout of a vector held entirely by one
// process.
type Local struct {
	r Range
}

// NewLocal creates a layout that owns all of r.
func NewLocal(r Range) *Local {
	if r.End < r.Start {
		exceptions.Panicf("layout: invalid range %s", r)
	}
	return &Local{r: r}
}

func (l *Local) GlobalRange() Range {
	return l.r
}

func (l *Local) NumberOfGlobalIndices() int {
	return l.r.Len()
}

func (l *Local) NumberOfLocalIndices() int {
	return l.r.Len()
}

func (l *Local) LocalRange() (Range, bool) {
	return l.IndexRange(0)
}

// IndexRange returns the whole range for rank 0. An empty
// layout owns nothing.
func (l *Local) IndexRange(rank int) (Range, bool) {
	checkRank(rank, 1)
	return l.r, !l.r.Empty()
}

func (l *Local) Map(local int) (int, bool) {
	if local < 0 || local >= l.r.Len() {
		return 0, false
	}
	return l.r.Start + local, true
}

func (l *Local) Size() int {
	return 1
}

func (l *Local) Rank() int {
	return 0
}

// IsSame reports whether other is this very layout.
func (l *Local) IsSame(other IndexLayout) bool {
	return Same(l, other)
}
