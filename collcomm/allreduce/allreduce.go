// Package allreduce implements algorithms for summing or
// maxing vectors across many different connected ranks.
//
// Each algorithm can be plugged into collcomm.SpawnComms
// as the Reducer behind Comms.Allreduce.
package allreduce

import "github.com/unixpickle/distvec/collcomm"

// Allreducer is an algorithm that can apply a ReduceFn to
// vectors that are distributed across ranks.
type Allreducer = collcomm.Allreducer

// Reducers maps command-line names to the available
// algorithms.
var Reducers = map[string]Allreducer{
	"naive":  NaiveAllreducer{},
	"tree":   TreeAllreducer{},
	"stream": StreamAllreducer{},
}

// ByName looks up an algorithm in Reducers.
func ByName(name string) (Allreducer, bool) {
	r, ok := Reducers[name]
	return r, ok
}
