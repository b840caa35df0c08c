package allreduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/simulator"
)

func TestNaiveAllreducer(t *testing.T) {
	RunAllreducerTests(t, NaiveAllreducer{})
}

func TestTreeAllreducer(t *testing.T) {
	RunAllreducerTests(t, TreeAllreducer{})
}

func TestStreamAllreducer(t *testing.T) {
	RunAllreducerTests(t, StreamAllreducer{})
}

func TestStreamAllreducerGranularity(t *testing.T) {
	RunAllreducerTests(t, StreamAllreducer{Granularity: 4})
}

func TestPositionInTree(t *testing.T) {
	parent, children := positionInTree(0, 6)
	assert.Equal(t, -1, parent)
	assert.Equal(t, []int{1, 2}, children)

	parent, children = positionInTree(2, 6)
	assert.Equal(t, 0, parent)
	assert.Equal(t, []int{5}, children)

	parent, children = positionInTree(4, 6)
	assert.Equal(t, 1, parent)
	assert.Empty(t, children)
}

func TestByName(t *testing.T) {
	for name := range Reducers {
		r, ok := ByName(name)
		require.True(t, ok)
		assert.NotNil(t, r)
	}
	_, ok := ByName("ring")
	assert.False(t, ok)
}

func TestMissedCollectiveDeadlocks(t *testing.T) {
	for name, reducer := range Reducers {
		t.Run(name, func(t *testing.T) {
			loop := simulator.NewEventLoopSeed(1)
			nodes := simulator.NewNodes(3)
			collcomm.SpawnComms(loop, simulator.RandomNetwork{}, nodes, reducer,
				func(c *collcomm.Comms) {
					if c.Rank() == 1 {
						return
					}
					c.Allreduce([]float64{1, 2}, collcomm.OpSum)
				})
			assert.ErrorIs(t, loop.Run(), simulator.ErrDeadlock)
		})
	}
}

func TestChunkify(t *testing.T) {
	data := []float64{0, 1, 2, 3, 4, 5, 6}
	assert.Equal(t, [][]float64{{0, 1, 2}, {3, 4, 5}, {6}}, chunkify(data, 2))
	assert.Equal(t, [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}}, chunkify(data, 12))
	assert.Equal(t, [][]float64{data}, chunkify(data, 1))
	assert.Empty(t, chunkify(nil, 3))
}
