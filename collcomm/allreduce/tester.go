package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/simulator"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
//
// Every rank runs a sum and then a max on the same Comms,
// so the battery also covers back-to-back collectives.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	for _, numNodes := range []int{1, 2, 5, 15, 16, 17} {
		for _, size := range []int{0, 1337} {
			for _, randomized := range []bool{false, true} {
				testName := fmt.Sprintf("Nodes=%d,Size=%d,Random=%v", numNodes, size, randomized)
				t.Run(testName, func(t *testing.T) {
					seed := int64(numNodes*10000 + size)
					loop := simulator.NewEventLoopSeed(seed)
					gen := rand.New(rand.NewSource(seed))

					vectors := make([][]float64, numNodes)
					nodes := simulator.NewNodes(numNodes)
					sum := make([]float64, size)
					maxima := make([]float64, size)
					for j := range maxima {
						maxima[j] = math.Inf(-1)
					}
					for i := range vectors {
						vectors[i] = make([]float64, size)
						for j := range vectors[i] {
							vectors[i][j] = gen.NormFloat64()
							sum[j] += vectors[i][j]
							maxima[j] = math.Max(maxima[j], vectors[i][j])
						}
					}

					network := testNetwork(randomized, nodes)

					sums := make([][]float64, numNodes)
					maxes := make([][]float64, numNodes)
					collcomm.SpawnComms(loop, network, nodes, reducer, func(c *collcomm.Comms) {
						sums[c.Rank()] = c.Allreduce(vectors[c.Rank()], collcomm.OpSum)
						maxes[c.Rank()] = c.Allreduce(vectors[c.Rank()], collcomm.OpMax)
					})

					if err := loop.Run(); err != nil {
						t.Fatal(err)
					}

					verifyReductionResults(t, "sum", sums, sum)
					verifyReductionResults(t, "max", maxes, maxima)
				})
			}
		}
	}
}

func testNetwork(randomized bool, nodes []*simulator.Node) simulator.Network {
	if randomized {
		return simulator.RandomNetwork{}
	}
	sw := simulator.NewFairShareSwitch(len(nodes), 1.0)
	return simulator.NewSwitchedNetwork(sw, nodes, 0.1)
}

func verifyReductionResults(t *testing.T, name string, results [][]float64, expected []float64) {
	for i, res := range results[1:] {
		if len(res) != len(expected) {
			t.Errorf("%s result %d has length %d but expected %d", name, i+1, len(res),
				len(expected))
			continue
		}
		for j, actual := range res {
			if actual != results[0][j] {
				t.Errorf("%s result %d is not identical to result 0", name, i+1)
				break
			}
		}
	}

	for i, x := range expected {
		if math.Abs(x-results[0][i]) > 1e-5 {
			t.Errorf("%s is incorrect (expected %f but got %f at component %d)",
				name, x, results[0][i], i)
			break
		}
	}
}
