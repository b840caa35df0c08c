// Command mpi_vector scatters v_i = i from rank 0 over a
// simulated group and prints the distributed reductions
// of v.
package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/janpfeifer/must"
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/collcomm/allreduce"
	"github.com/unixpickle/distvec/layout"
	"github.com/unixpickle/distvec/simulator"
	"github.com/unixpickle/distvec/vector"
	"k8s.io/klog/v2"
)

var (
	flagRanks   = flag.Int("ranks", 3, "number of simulated ranks")
	flagDim     = flag.Int("dim", 11, "global dimension of the vector")
	flagStart   = flag.Int("start", 0, "first global index")
	flagReducer = flag.String("reducer", "tree", "all-reduce algorithm: naive, tree or stream")
	flagNetwork = flag.String("network", "switched", "network model: random, switched or ordered")
	flagSeed    = flag.Int64("seed", 1, "seed for the event loop")
	flagComplex = flag.Bool("complex", false, "use complex128 elements v_i = i - i*1i")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	reducer, ok := allreduce.ByName(*flagReducer)
	if !ok {
		klog.Fatalf("unknown reducer %q", *flagReducer)
	}
	if *flagRanks < 1 || *flagDim < 0 {
		klog.Fatalf("need at least one rank and a non-negative dimension")
	}

	loop := simulator.NewEventLoopSeed(*flagSeed)
	nodes := simulator.NewNodes(*flagRanks)
	network := newNetwork(*flagNetwork, nodes)
	global := layout.Range{Start: *flagStart, End: *flagStart + *flagDim}
	klog.Infof("%d ranks, global range %s, %s reducer on %s network", *flagRanks, global,
		*flagReducer, *flagNetwork)

	reports := make([]string, *flagRanks)
	collcomm.SpawnComms(loop, network, nodes, reducer, func(c *collcomm.Comms) {
		if *flagComplex {
			reports[c.Rank()] = runRank(c, global, func(i int) complex128 {
				return complex(float64(i), -float64(i))
			})
		} else {
			reports[c.Rank()] = runRank(c, global, func(i int) float64 {
				return float64(i)
			})
		}
	})
	if err := loop.Run(); err != nil {
		klog.Fatalf("simulation failed: %v", err)
	}

	for _, report := range reports {
		fmt.Print(report)
	}
	fmt.Printf("virtual time: %f\n", loop.Time())
}

// runRank is the SPMD program of a single rank.
func runRank[T vector.Scalar](c collcomm.Communicator, global layout.Range,
	f func(i int) T) string {
	l := layout.ForCommunicator(global, c)
	v := vector.NewDistributed[T](l)

	var source *vector.LocalVector[T]
	if c.Rank() == 0 {
		sourceLayout := layout.NewLocal(global)
		source = vector.NewLocal[T](sourceLayout)
		source.Update(func(data []T) {
			for i := range data {
				g, _ := sourceLayout.Map(i)
				data[i] = f(g)
			}
		})
	}
	must.M(v.FillFromRoot(source))

	inner := must.M1(v.Inner(v))
	squareSum := v.SquareSum()
	norm1 := v.Norm1()
	norm2 := v.Norm2()
	normInf := v.NormInf()

	var report strings.Builder
	if r, ok := l.LocalRange(); ok {
		fmt.Fprintf(&report, "rank %d owns %s\n", c.Rank(), r)
	} else {
		fmt.Fprintf(&report, "rank %d owns nothing\n", c.Rank())
	}
	if c.Rank() == 0 {
		fmt.Fprintf(&report, "inner:     %v\n", inner)
		fmt.Fprintf(&report, "squareSum: %g\n", squareSum)
		fmt.Fprintf(&report, "norm1:     %g\n", norm1)
		fmt.Fprintf(&report, "norm2:     %g\n", norm2)
		fmt.Fprintf(&report, "normInf:   %g\n", normInf)
	}
	return report.String()
}

func newNetwork(name string, nodes []*simulator.Node) simulator.Network {
	switch name {
	case "random":
		return simulator.RandomNetwork{MaxLatency: 0.1}
	case "switched":
		sw := simulator.NewFairShareSwitch(len(nodes), 1e6)
		return simulator.NewSwitchedNetwork(sw, nodes, 1e-3)
	case "ordered":
		return simulator.NewOrderedNetwork(1e6, 1e-3)
	}
	klog.Fatalf("unknown network %q", name)
	return nil
}
