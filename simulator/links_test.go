package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkMatrixTotals(t *testing.T) {
	links := NewLinkMatrix(3)
	links.Set(0, 1, 2)
	links.Set(0, 2, 5)
	links.Set(2, 1, 0.5)

	assert.Equal(t, 3, links.Ranks())
	assert.Equal(t, []float64{7, 0, 0.5}, []float64{links.Upload(0), links.Upload(1), links.Upload(2)})
	assert.Equal(t, []float64{0, 2.5, 5}, []float64{links.Download(0), links.Download(1), links.Download(2)})

	links.ScaleUpload(0, 2)
	assert.Equal(t, 4.0, links.At(0, 1))
	assert.Equal(t, 10.0, links.At(0, 2))
	assert.Equal(t, 0.5, links.At(2, 1), "other rows are untouched")

	links.ScaleDownload(1, 0.5)
	assert.Equal(t, 2.0, links.At(0, 1))
	assert.Equal(t, 0.25, links.At(2, 1))
	assert.Equal(t, 10.0, links.At(0, 2), "other columns are untouched")
}

func TestLinkMatrixBounds(t *testing.T) {
	links := NewLinkMatrix(2)
	assert.Panics(t, func() { links.At(-1, 0) })
	assert.Panics(t, func() { links.Set(0, 2, 1) })
	assert.Panics(t, func() { links.Upload(2) })
	assert.Panics(t, func() { links.Download(-1) })
	assert.Panics(t, func() { NewLinkMatrix(0) })
}
