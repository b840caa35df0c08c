package allreduce

import "github.com/unixpickle/distvec/collcomm"

// A NaiveAllreducer sends every vector from every rank
// to every other rank.
type NaiveAllreducer struct{}

// Allreduce runs fn() on all of the ranks' vectors on
// every rank.
func (n NaiveAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) []float64 {
	gatheredVecs := make([][]float64, c.Size())

	c.Bcast(data)

	for range len(gatheredVecs) - 1 {
		incoming, source := c.Recv()
		gatheredVecs[source] = incoming
	}

	gatheredVecs[c.Rank()] = data

	return fn(c.Handle, gatheredVecs...)
}
