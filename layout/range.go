package layout

import "fmt"

// A Range is a half-open interval [Start, End) of global
// indices.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range contains no indices.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether i lies in the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}
