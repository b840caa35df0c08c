package vector

import "github.com/pkg/errors"

var (
	// ErrLayoutMismatch is returned by operations on two
	// vectors that do not share the same layout instance.
	ErrLayoutMismatch = errors.New("vector: layouts are not the same instance")

	// ErrOutOfRange is returned for element accesses
	// outside the vector.
	ErrOutOfRange = errors.New("vector: index out of range")

	// ErrDimensionMismatch is returned when a slice of
	// values does not fit the vector.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
)
