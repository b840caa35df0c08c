package vector

import (
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/collcomm/allreduce"
	"github.com/unixpickle/distvec/collcomm/inproc"
	"github.com/unixpickle/distvec/layout"
	"github.com/unixpickle/distvec/simulator"
)

// A rankFunc is the body of an SPMD test program.
type rankFunc func(t *testing.T, c collcomm.Communicator)

// simulate runs a fresh program on every rank of a
// simulated group, once per all-reduce algorithm, and
// calls the returned check after each run.
func simulate(t *testing.T, size int, program func() (rankFunc, func(t *testing.T))) {
	names := make([]string, 0, len(allreduce.Reducers))
	for name := range allreduce.Reducers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			fn, check := program()
			loop := simulator.NewEventLoopSeed(int64(size))
			nodes := simulator.NewNodes(size)
			collcomm.SpawnComms(loop, simulator.RandomNetwork{}, nodes, allreduce.Reducers[name],
				func(c *collcomm.Comms) {
					fn(t, c)
				})
			require.NoError(t, loop.Run())
			check(t)
		})
	}
}

// rootSource builds v_i = f(i) on rank 0 and nil elsewhere.
func rootSource[T Scalar](c collcomm.Communicator, n int, f func(i int) T) *LocalVector[T] {
	if c.Rank() != 0 {
		return nil
	}
	src := NewLocal[T](layout.NewLocal(layout.Range{Start: 0, End: n}))
	src.Update(func(data []T) {
		for i := range data {
			data[i] = f(i)
		}
	})
	return src
}

func identity(i int) float64 {
	return float64(i)
}

// perRank collects one value per rank from concurrent
// ranks.
type perRank[T any] struct {
	lock   sync.Mutex
	values map[int]T
}

func (p *perRank[T]) put(rank int, x T) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.values == nil {
		p.values = map[int]T{}
	}
	p.values[rank] = x
}

func (p *perRank[T]) get(rank int) T {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.values[rank]
}

// innerProgram fills v_i = i over 11 indices and records
// each rank's local and global inner product of v with
// itself.
func innerProgram() (rankFunc, func(t *testing.T)) {
	var locals, globals perRank[float64]
	fn := func(t *testing.T, c collcomm.Communicator) {
		l := layout.ForCommunicator(layout.Range{Start: 0, End: 11}, c)
		v := NewDistributed[float64](l)
		assert.NoError(t, v.FillFromRoot(rootSource(c, 11, identity)))

		if local, ok := v.Local(); assert.True(t, ok) {
			partial, err := local.Inner(local)
			assert.NoError(t, err)
			locals.put(c.Rank(), partial)
		}
		global, err := v.Inner(v)
		assert.NoError(t, err)
		globals.put(c.Rank(), global)
	}
	check := func(t *testing.T) {
		assert.Equal(t, 14.0, locals.get(0))
		assert.Equal(t, 385.0, globals.get(0))
		assert.Equal(t, 385.0, globals.get(1))
		assert.Equal(t, 385.0, globals.get(2))
	}
	return fn, check
}

func TestDistributedInnerSimulated(t *testing.T) {
	simulate(t, 3, innerProgram)
}

func TestDistributedInnerInProcess(t *testing.T) {
	fn, check := innerProgram()
	err := inproc.NewWorld(3).Run(func(c collcomm.Communicator) error {
		fn(t, c)
		return nil
	})
	require.NoError(t, err)
	check(t)
}

func TestDistributedInnerSelf(t *testing.T) {
	l := layout.ForCommunicator(layout.Range{Start: 0, End: 11}, collcomm.Self{})
	v := NewDistributed[float64](l)
	require.NoError(t, v.FillFromRoot(rootSource(collcomm.Self{}, 11, identity)))
	res, err := v.Inner(v)
	require.NoError(t, err)
	assert.Equal(t, 385.0, res)
}

func TestDistributedNormsWithEmptyRanks(t *testing.T) {
	values := []float64{-1, 7, -3}
	simulate(t, 5, func() (rankFunc, func(t *testing.T)) {
		var norms perRank[[4]float64]
		var owned perRank[bool]
		fn := func(t *testing.T, c collcomm.Communicator) {
			l := layout.ForCommunicator(layout.Range{Start: 0, End: 3}, c)
			v := NewDistributed[float64](l)
			assert.NoError(t, v.FillFromRoot(rootSource(c, 3, func(i int) float64 {
				return values[i]
			})))
			_, ok := v.Local()
			owned.put(c.Rank(), ok)
			norms.put(c.Rank(), [4]float64{v.NormInf(), v.Norm1(), v.SquareSum(), v.Norm2()})
		}
		check := func(t *testing.T) {
			for rank := range 5 {
				assert.Equal(t, rank < 3, owned.get(rank))
				n := norms.get(rank)
				assert.Equal(t, 7.0, n[0])
				assert.Equal(t, 11.0, n[1])
				assert.Equal(t, 59.0, n[2])
				assert.InDelta(t, math.Sqrt(59), n[3], 1e-12)
			}
		}
		return fn, check
	})
}

func TestDistributedNormInfLastRank(t *testing.T) {
	// The largest magnitude sits on the last owning rank,
	// and two ranks own nothing.
	simulate(t, 4, func() (rankFunc, func(t *testing.T)) {
		var res perRank[float64]
		fn := func(t *testing.T, c collcomm.Communicator) {
			v := NewDistributed[float32](layout.ForCommunicator(layout.Range{Start: 3, End: 5}, c))
			assert.NoError(t, v.FillFromRoot(rootSource(c, 2, func(i int) float32 {
				return -0.5 - float32(i)
			})))
			res.put(c.Rank(), v.NormInf())
		}
		check := func(t *testing.T) {
			for rank := range 4 {
				assert.Equal(t, 1.5, res.get(rank))
			}
		}
		return fn, check
	})
}

func TestDistributedScatterRoundTrip(t *testing.T) {
	simulate(t, 3, func() (rankFunc, func(t *testing.T)) {
		var blocks perRank[[]float64]
		fn := func(t *testing.T, c collcomm.Communicator) {
			l := layout.ForCommunicator(layout.Range{Start: 0, End: 10}, c)
			v := NewDistributed[float64](l)
			assert.NoError(t, v.FillFromRoot(rootSource(c, 10, identity)))
			local, ok := v.Local()
			if !assert.True(t, ok) {
				return
			}
			values := local.Values()
			for i, x := range values {
				g, ok := l.Map(i)
				assert.True(t, ok)
				assert.Equal(t, float64(g), x)
			}
			blocks.put(c.Rank(), values)
		}
		check := func(t *testing.T) {
			assert.Equal(t, []float64{0, 1, 2, 3}, blocks.get(0))
			assert.Equal(t, []float64{4, 5, 6}, blocks.get(1))
			assert.Equal(t, []float64{7, 8, 9}, blocks.get(2))
		}
		return fn, check
	})
}

func TestDistributedComplex(t *testing.T) {
	simulate(t, 3, func() (rankFunc, func(t *testing.T)) {
		var inners perRank[complex128]
		var norms perRank[float64]
		fn := func(t *testing.T, c collcomm.Communicator) {
			l := layout.ForCommunicator(layout.Range{Start: 0, End: 7}, c)
			a := NewDistributed[complex128](l)
			b := NewDistributed[complex128](l)
			assert.NoError(t, a.FillFromRoot(rootSource(c, 7, func(i int) complex128 {
				return complex(float64(i), 1)
			})))
			assert.NoError(t, b.FillFromRoot(rootSource(c, 7, func(i int) complex128 {
				return complex(0, float64(i))
			})))
			res, err := a.Inner(b)
			assert.NoError(t, err)
			inners.put(c.Rank(), res)
			norms.put(c.Rank(), b.NormInf())
		}
		check := func(t *testing.T) {
			for rank := range 3 {
				assert.Equal(t, 21-91i, inners.get(rank))
				assert.Equal(t, 6.0, norms.get(rank))
			}
		}
		return fn, check
	})
}

func TestDistributedLocalKernels(t *testing.T) {
	simulate(t, 3, func() (rankFunc, func(t *testing.T)) {
		var sums perRank[float64]
		fn := func(t *testing.T, c collcomm.Communicator) {
			l := layout.ForCommunicator(layout.Range{Start: 0, End: 8}, c)
			a := NewDistributed[float64](l)
			b := NewDistributed[float64](l)
			assert.NoError(t, a.FillFromRoot(rootSource(c, 8, identity)))

			// b = 2a, then swap so that a = 2*identity.
			assert.NoError(t, b.Fill(a))
			b.ScalarMult(2)
			assert.NoError(t, a.Swap(b))
			assert.NoError(t, a.MultSumInto(b, -1))

			// a now holds identity again.
			sums.put(c.Rank(), a.Norm1())
			norm := Normalize[float64](a)
			assert.InDelta(t, math.Sqrt(140), norm, 1e-12)
			assert.InDelta(t, 1, a.Norm2(), 1e-12)
		}
		check := func(t *testing.T) {
			for rank := range 3 {
				assert.Equal(t, 28.0, sums.get(rank))
			}
		}
		return fn, check
	})
}

func TestDistributedLayoutMismatch(t *testing.T) {
	simulate(t, 2, func() (rankFunc, func(t *testing.T)) {
		fn := func(t *testing.T, c collcomm.Communicator) {
			global := layout.Range{Start: 0, End: 4}
			a := NewDistributed[float64](layout.ForCommunicator(global, c))
			b := NewDistributed[float64](layout.ForCommunicator(global, c))
			_, err := a.Inner(b)
			assert.ErrorIs(t, err, ErrLayoutMismatch)
			assert.ErrorIs(t, a.Swap(b), ErrLayoutMismatch)
			assert.ErrorIs(t, a.Fill(b), ErrLayoutMismatch)
			assert.ErrorIs(t, a.MultSumInto(b, 3), ErrLayoutMismatch)
		}
		return fn, func(t *testing.T) {}
	})
}

func TestDistributedSkippedCollective(t *testing.T) {
	loop := simulator.NewEventLoopSeed(5)
	nodes := simulator.NewNodes(3)
	collcomm.SpawnComms(loop, simulator.RandomNetwork{}, nodes, allreduce.TreeAllreducer{},
		func(c *collcomm.Comms) {
			v := NewDistributed[float64](layout.ForCommunicator(layout.Range{Start: 0, End: 6}, c))
			if c.Rank() != 2 {
				v.Norm2()
			}
		})
	assert.ErrorIs(t, loop.Run(), simulator.ErrDeadlock)
}

// fakeComm is one rank of a group whose peers never
// contribute anything: Allreduce records its arguments and
// hands data back unchanged.
type fakeComm struct {
	rank  int
	size  int
	calls int

	reduced [][]float64
	ops     []collcomm.ReduceOp
}

func (f *fakeComm) Rank() int { return f.rank }
func (f *fakeComm) Size() int { return f.size }

func (f *fakeComm) Allreduce(data []float64, op collcomm.ReduceOp) []float64 {
	f.calls++
	f.reduced = append(f.reduced, append([]float64{}, data...))
	f.ops = append(f.ops, op)
	return data
}

func (f *fakeComm) Scatterv(root int, sendBuf []float64, counts, displs []int) []float64 {
	f.calls++
	return nil
}

func TestNormInfPartials(t *testing.T) {
	// 3 indices over 5 ranks: ranks 3 and 4 own nothing.
	global := layout.Range{Start: 0, End: 3}

	empty := &fakeComm{rank: 4, size: 5}
	v := NewDistributed[float64](layout.ForCommunicator(global, empty))
	_, ok := v.Local()
	require.False(t, ok)
	assert.Equal(t, math.Inf(-1), v.NormInf())
	require.Len(t, empty.reduced, 1)
	assert.Equal(t, []float64{math.Inf(-1)}, empty.reduced[0])
	assert.Equal(t, collcomm.OpMax, empty.ops[0])

	// An owning rank holding only zeros must still report
	// 0 and not -Inf.
	zero := &fakeComm{rank: 1, size: 5}
	w := NewDistributed[complex64](layout.ForCommunicator(global, zero))
	assert.Equal(t, 0.0, w.NormInf())

	owner := &fakeComm{rank: 2, size: 5}
	u := NewDistributed[float32](layout.ForCommunicator(global, owner))
	local, ok := u.Local()
	require.True(t, ok)
	require.NoError(t, local.Set(0, -2.5))
	assert.Equal(t, 2.5, u.NormInf())
	assert.Equal(t, [][]float64{{2.5}}, owner.reduced)

	// Sum-based norms keep 0 as the identity on empty ranks.
	assert.Equal(t, 0.0, v.Norm1())
	assert.Equal(t, []float64{0}, empty.reduced[1])
	assert.Equal(t, collcomm.OpSum, empty.ops[1])
}

func TestDistributedNormInfNoIndices(t *testing.T) {
	simulate(t, 3, func() (rankFunc, func(t *testing.T)) {
		var norms perRank[[2]float64]
		fn := func(t *testing.T, c collcomm.Communicator) {
			v := NewDistributed[float64](layout.ForCommunicator(layout.Range{Start: 4, End: 4}, c))
			norms.put(c.Rank(), [2]float64{v.NormInf(), v.Norm1()})
		}
		check := func(t *testing.T) {
			for rank := range 3 {
				assert.Equal(t, [2]float64{math.Inf(-1), 0}, norms.get(rank))
			}
		}
		return fn, check
	})
}

func TestFillFromRootContract(t *testing.T) {
	global := layout.Range{Start: 0, End: 4}

	root := &fakeComm{rank: 0, size: 2}
	v := NewDistributed[float64](layout.ForCommunicator(global, root))
	assert.Panics(t, func() { v.FillFromRoot(nil) })
	short := NewLocal[float64](layout.NewLocal(layout.Range{Start: 0, End: 3}))
	assert.Panics(t, func() { v.FillFromRoot(short) })
	assert.Equal(t, 0, root.calls)

	other := &fakeComm{rank: 1, size: 2}
	w := NewDistributed[float64](layout.ForCommunicator(global, other))
	full := NewLocal[float64](layout.NewLocal(global))
	assert.Panics(t, func() { w.FillFromRoot(full) })
	assert.Equal(t, 0, other.calls)
}

func TestNewDistributedNeedsComm(t *testing.T) {
	assert.Panics(t, func() {
		NewDistributed[float64](layout.NewDistributed(layout.Range{Start: 0, End: 4}, 2, 0))
	})
}
