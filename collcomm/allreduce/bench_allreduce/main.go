// Command bench_allreduce prints a markdown table of the
// virtual time each collective takes on a switched
// network.
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/unixpickle/distvec/collcomm"
	"github.com/unixpickle/distvec/collcomm/allreduce"
	"github.com/unixpickle/distvec/layout"
	"github.com/unixpickle/distvec/simulator"
	"k8s.io/klog/v2"
)

var (
	flagSizes = flag.String("sizes", "10,10000,10000000", "comma-separated vector lengths to benchmark")
	flagSeed  = flag.Int64("seed", 0, "seed for the event loops, 0 to seed from the clock")
)

// RunInfo describes a specific network configuration.
type RunInfo struct {
	NumNodes int
	Latency  float64
	Rate     float64
}

// Run creates a network, drops each rank into its own
// Goroutine, and returns the virtual time it took.
func (r *RunInfo) Run(reducer collcomm.Allreducer, commFn func(c *collcomm.Comms)) float64 {
	loop := newLoop()
	nodes := simulator.NewNodes(r.NumNodes)
	sw := simulator.NewFairShareSwitch(r.NumNodes, r.Rate)
	network := simulator.NewSwitchedNetwork(sw, nodes, r.Latency)
	collcomm.SpawnComms(loop, network, nodes, reducer, commFn)
	if err := loop.Run(); err != nil {
		klog.Fatalf("%d ranks: %v", r.NumNodes, err)
	}
	return loop.Time()
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	vecSizes := parseSizes(*flagSizes)
	reducerNames := []string{"naive", "tree", "stream"}
	runs := []RunInfo{
		{
			NumNodes: 2,
			Latency:  0.1,
			Rate:     1e6,
		},
		{
			NumNodes: 16,
			Latency:  1e-3,
			Rate:     1e6,
		},
		{
			NumNodes: 32,
			Latency:  0.1,
			Rate:     1e6,
		},
		{
			NumNodes: 32,
			Latency:  0.1,
			Rate:     1e9,
		},
		{
			NumNodes: 32,
			Latency:  1e-4,
			Rate:     1e9,
		},
	}

	// Markdown table header.
	fmt.Print("| Nodes | Latency | NIC rate | Size ")
	for _, name := range reducerNames {
		fmt.Printf("| %s ", name)
	}
	fmt.Println("| scatterv |")
	for range 5 + len(reducerNames) {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, runInfo := range runs {
		for _, size := range vecSizes {
			fmt.Printf(
				"| %d | %s | %s | %s ",
				runInfo.NumNodes,
				strconv.FormatFloat(runInfo.Latency, 'f', -1, 64),
				strconv.FormatFloat(runInfo.Rate, 'E', -1, 64),
				humanize.Bytes(uint64(size*8)),
			)
			for _, name := range reducerNames {
				reducer, _ := allreduce.ByName(name)
				elapsed := runInfo.Run(FakeReducer{reducer}, func(c *collcomm.Comms) {
					c.Allreduce(make([]float64, size), collcomm.OpSum)
				})
				fmt.Printf("| %f ", elapsed)
			}
			fmt.Printf("| %f |\n", runInfo.Run(nil, scatterFromRoot(size)))
		}
	}
}

// scatterFromRoot splits a vector of the given size
// evenly from rank 0.
func scatterFromRoot(size int) func(c *collcomm.Comms) {
	global := layout.Range{Start: 0, End: size}
	return func(c *collcomm.Comms) {
		l := layout.ForCommunicator(global, c)
		var buf []float64
		if c.Rank() == 0 {
			buf = make([]float64, size)
		}
		c.Scatterv(0, buf, l.Counts(), l.Displacements())
	}
}

// FakeReducer runs an Allreducer with FakeReduce in place
// of the requested ReduceFn.
type FakeReducer struct {
	collcomm.Allreducer
}

func (f FakeReducer) Allreduce(c *collcomm.Comms, data []float64, _ collcomm.ReduceFn) []float64 {
	return f.Allreducer.Allreduce(c, data, FakeReduce)
}

// FakeReduce is a ReduceFn that takes no actual CPU time.
func FakeReduce(h *simulator.Handle, vecs ...[]float64) []float64 {
	h.Sleep(collcomm.FlopTime * float64(len(vecs)*len(vecs[0])))
	return make([]float64, len(vecs[0]))
}

func newLoop() *simulator.EventLoop {
	if *flagSeed == 0 {
		return simulator.NewEventLoop()
	}
	return simulator.NewEventLoopSeed(*flagSeed)
}

func parseSizes(s string) []int {
	var res []int
	for _, field := range strings.Split(s, ",") {
		res = append(res, must.M1(strconv.Atoi(strings.TrimSpace(field))))
	}
	return res
}
