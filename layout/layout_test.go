package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/distvec/collcomm"
)

func TestPartitionCoverage(t *testing.T) {
	for _, start := range []int{0, 7, -3} {
		for _, n := range []int{0, 1, 2, 3, 5, 10, 11, 64, 1000} {
			for _, size := range []int{1, 2, 3, 4, 5, 16} {
				name := fmt.Sprintf("Start=%d,N=%d,P=%d", start, n, size)
				t.Run(name, func(t *testing.T) {
					global := Range{Start: start, End: start + n}
					next := global.Start
					minLen, maxLen := n, 0
					for rank := range size {
						d := NewDistributed(global, size, rank)
						r, ok := d.LocalRange()
						if !ok {
							assert.Equal(t, 0, d.NumberOfLocalIndices())
							minLen = 0
							continue
						}
						require.Equal(t, next, r.Start, "rank %d", rank)
						require.Greater(t, r.Len(), 0)
						next = r.End
						minLen = min(minLen, r.Len())
						maxLen = max(maxLen, r.Len())
					}
					assert.Equal(t, global.End, next)
					if n >= size {
						assert.LessOrEqual(t, maxLen-minLen, 1)
					}
				})
			}
		}
	}
}

func TestPartitionFewIndices(t *testing.T) {
	global := Range{Start: 0, End: 3}
	for rank := range 5 {
		d := NewDistributed(global, 5, rank)
		r, ok := d.LocalRange()
		if rank < 3 {
			require.True(t, ok)
			assert.Equal(t, Range{Start: rank, End: rank + 1}, r)
		} else {
			assert.False(t, ok)
		}
	}
	counts, displs := Partition(global, 5)
	assert.Equal(t, []int{1, 1, 1, 0, 0}, counts)
	assert.Equal(t, []int{0, 1, 2, 3, 3}, displs)
}

func TestPartitionRemainder(t *testing.T) {
	counts, displs := Partition(Range{Start: 100, End: 111}, 3)
	assert.Equal(t, []int{4, 4, 3}, counts)
	assert.Equal(t, []int{0, 4, 8}, displs)

	d := NewDistributed(Range{Start: 100, End: 111}, 3, 2)
	r, ok := d.LocalRange()
	require.True(t, ok)
	assert.Equal(t, Range{Start: 108, End: 111}, r)
	assert.Equal(t, counts, d.Counts())
	assert.Equal(t, displs, d.Displacements())
}

func TestPartitionEmpty(t *testing.T) {
	counts, displs := Partition(Range{Start: 4, End: 4}, 3)
	assert.Equal(t, []int{0, 0, 0}, counts)
	assert.Equal(t, []int{0, 0, 0}, displs)
	for rank := range 3 {
		d := NewDistributed(Range{Start: 4, End: 4}, 3, rank)
		_, ok := d.LocalLayout()
		assert.False(t, ok)
	}
}

func TestSingleRankMatchesLocal(t *testing.T) {
	for _, global := range []Range{{0, 0}, {0, 9}, {5, 12}} {
		d := NewDistributed(global, 1, 0)
		l := NewLocal(global)

		assert.Equal(t, l.GlobalRange(), d.GlobalRange())
		assert.Equal(t, l.NumberOfGlobalIndices(), d.NumberOfGlobalIndices())
		assert.Equal(t, l.NumberOfLocalIndices(), d.NumberOfLocalIndices())
		lr, lok := l.LocalRange()
		dr, dok := d.LocalRange()
		assert.Equal(t, lok, dok)
		if lok {
			assert.Equal(t, lr, dr)
		}
		for i := -1; i <= global.Len(); i++ {
			lg, lok := l.Map(i)
			dg, dok := d.Map(i)
			assert.Equal(t, lok, dok, "index %d", i)
			assert.Equal(t, lg, dg, "index %d", i)
		}
	}
}

func TestMapRoundTrip(t *testing.T) {
	global := Range{Start: 20, End: 57}
	for rank := range 4 {
		d := NewDistributed(global, 4, rank)
		r, ok := d.LocalRange()
		require.True(t, ok)
		for i := range d.NumberOfLocalIndices() {
			g, ok := d.Map(i)
			require.True(t, ok)
			assert.Equal(t, r.Start+i, g)
			assert.True(t, r.Contains(g))
		}
		_, ok = d.Map(d.NumberOfLocalIndices())
		assert.False(t, ok)
		_, ok = d.Map(-1)
		assert.False(t, ok)
	}
}

func TestLocal(t *testing.T) {
	l := NewLocal(Range{Start: 3, End: 7})
	assert.Equal(t, 4, l.NumberOfGlobalIndices())
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 0, l.Rank())
	g, ok := l.Map(2)
	assert.True(t, ok)
	assert.Equal(t, 5, g)
	_, ok = l.Map(4)
	assert.False(t, ok)

	r, ok := l.IndexRange(0)
	assert.True(t, ok)
	assert.Equal(t, Range{Start: 3, End: 7}, r)
	assert.Panics(t, func() { l.IndexRange(1) })

	_, ok = NewLocal(Range{}).LocalRange()
	assert.False(t, ok)
}

func TestIdentity(t *testing.T) {
	a := NewLocal(Range{Start: 0, End: 4})
	b := NewLocal(Range{Start: 0, End: 4})
	assert.True(t, a.IsSame(a))
	assert.False(t, a.IsSame(b))
	assert.False(t, Same(a, nil))

	d := NewDistributed(Range{Start: 0, End: 10}, 3, 1)
	l1, ok := d.LocalLayout()
	require.True(t, ok)
	l2, _ := d.LocalLayout()
	assert.True(t, l1.IsSame(l2))
	assert.False(t, d.IsSame(NewDistributed(Range{Start: 0, End: 10}, 3, 1)))
}

func TestForCommunicator(t *testing.T) {
	d := ForCommunicator(Range{Start: 0, End: 5}, collcomm.Self{})
	assert.Equal(t, collcomm.Self{}, d.Comm())
	assert.Equal(t, 1, d.Size())
	assert.Equal(t, 5, d.NumberOfLocalIndices())
	assert.Nil(t, NewDistributed(Range{Start: 0, End: 5}, 1, 0).Comm())
}

func TestInvalidLayouts(t *testing.T) {
	assert.Panics(t, func() { NewLocal(Range{Start: 3, End: 2}) })
	assert.Panics(t, func() { NewDistributed(Range{Start: 3, End: 2}, 2, 0) })
	assert.Panics(t, func() { NewDistributed(Range{Start: 0, End: 2}, 0, 0) })
	assert.Panics(t, func() { NewDistributed(Range{Start: 0, End: 2}, 2, 2) })
	assert.Panics(t, func() { NewDistributed(Range{Start: 0, End: 2}, 2, 0).IndexRange(-1) })
	assert.Panics(t, func() { ForCommunicator(Range{Start: 0, End: 2}, nil) })
}
