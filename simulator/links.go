package simulator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// A LinkMatrix holds one value for every ordered pair of
// ranks. Row src and column dst describe the link that
// carries data from rank src to rank dst.
//
// A Switch receives a LinkMatrix with a 1 on every link
// that has data in flight, and leaves the rate of each
// link in its place.
type LinkMatrix struct {
	m *mat.Dense
}

// NewLinkMatrix creates an all-zero matrix for a group of
// ranks.
func NewLinkMatrix(ranks int) *LinkMatrix {
	if ranks < 1 {
		panic(fmt.Sprintf("link matrix needs at least one rank, got %d", ranks))
	}
	return &LinkMatrix{m: mat.NewDense(ranks, ranks, nil)}
}

// Ranks is the size of the group.
func (l *LinkMatrix) Ranks() int {
	r, _ := l.m.Dims()
	return r
}

// At reads the link from src to dst.
func (l *LinkMatrix) At(src, dst int) float64 {
	return l.m.At(src, dst)
}

// Set overwrites the link from src to dst.
func (l *LinkMatrix) Set(src, dst int, value float64) {
	l.m.Set(src, dst, value)
}

// Upload is the total leaving rank src.
func (l *LinkMatrix) Upload(src int) float64 {
	return floats.Sum(l.m.RawRowView(src))
}

// Download is the total arriving at rank dst.
func (l *LinkMatrix) Download(dst int) float64 {
	return mat.Sum(l.m.ColView(dst))
}

// ScaleUpload multiplies every link leaving src.
func (l *LinkMatrix) ScaleUpload(src int, s float64) {
	floats.Scale(s, l.m.RawRowView(src))
}

// ScaleDownload multiplies every link arriving at dst.
func (l *LinkMatrix) ScaleDownload(dst int, s float64) {
	col := mat.VecDenseCopyOf(l.m.ColView(dst))
	col.ScaleVec(s, col)
	l.m.SetCol(dst, col.RawVector().Data)
}
