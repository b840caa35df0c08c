package simulator

import "fmt"

// A Switch decides how fast concurrent transfers between
// ranks proceed.
type Switch interface {
	// Allocate is passed a LinkMatrix with a 1 on every
	// link that has data in flight and a 0 elsewhere.
	// It overwrites each entry with the rate, in bytes
	// per unit of virtual time, that the link receives.
	Allocate(links *LinkMatrix)
}

// A FairShareSwitch gives every rank an upload budget and
// a download budget.
//
// A rank's upload budget is split evenly over the ranks it
// is sending to. A rank that is offered more than its
// download budget throttles every incoming link by the
// same factor.
//
// Under this model a Scatterv root sending to P-1 ranks
// gives each of them 1/(P-1) of its upload, so the last
// rank finishes once the root has pushed every byte it
// does not keep through its own link.
type FairShareSwitch struct {
	Upload   []float64
	Download []float64
}

// NewFairShareSwitch creates a FairShareSwitch where every
// rank has the same upload and download rate.
func NewFairShareSwitch(ranks int, rate float64) *FairShareSwitch {
	budget := make([]float64, ranks)
	for i := range budget {
		budget[i] = rate
	}
	return &FairShareSwitch{
		Upload:   budget,
		Download: append([]float64{}, budget...),
	}
}

// Ranks is the group size the switch was built for.
func (f *FairShareSwitch) Ranks() int {
	return len(f.Upload)
}

// Allocate applies the upload split, then the download
// throttle.
func (f *FairShareSwitch) Allocate(links *LinkMatrix) {
	if links.Ranks() != f.Ranks() || len(f.Download) != f.Ranks() {
		panic(fmt.Sprintf("switch budgets for %d/%d ranks used with %d ranks",
			len(f.Upload), len(f.Download), links.Ranks()))
	}
	for src, budget := range f.Upload {
		if fanOut := links.Upload(src); fanOut > 0 {
			links.ScaleUpload(src, budget/fanOut)
		}
	}
	for dst, budget := range f.Download {
		if offered := links.Download(dst); offered > budget {
			links.ScaleDownload(dst, budget/offered)
		}
	}
}
