package vector

// InnerProduct is implemented by vectors that can compute
// an inner product with another vector of type V.
type InnerProduct[T Scalar, V any] interface {
	Inner(other V) (T, error)
}

type SquareSum interface {
	SquareSum() float64
}

type Norm1 interface {
	Norm1() float64
}

type Norm2 interface {
	Norm2() float64
}

type NormInf interface {
	NormInf() float64
}

type Swapper[V any] interface {
	Swap(other V) error
}

type Filler[V any] interface {
	Fill(other V) error
}

type ScalarMultiplier[T Scalar] interface {
	ScalarMult(s T)
}

type MultSummer[T Scalar, V any] interface {
	MultSumInto(other V, s T) error
}

// Vector is the full set of capabilities shared by
// LocalVector and DistributedVector.
type Vector[T Scalar, V any] interface {
	InnerProduct[T, V]
	SquareSum
	Norm1
	Norm2
	NormInf
	Swapper[V]
	Filler[V]
	ScalarMultiplier[T]
	MultSummer[T, V]
}

var (
	_ Vector[float64, *LocalVector[float64]]             = (*LocalVector[float64])(nil)
	_ Vector[complex64, *LocalVector[complex64]]         = (*LocalVector[complex64])(nil)
	_ Vector[float32, *DistributedVector[float32]]       = (*DistributedVector[float32])(nil)
	_ Vector[complex128, *DistributedVector[complex128]] = (*DistributedVector[complex128])(nil)
)

// Normalize scales v to unit Euclidean norm and returns
// the norm it had. A zero vector is left as is.
//
// For a DistributedVector this is a collective.
func Normalize[T Scalar, V interface {
	Norm2
	ScalarMultiplier[T]
}](v V) float64 {
	norm := v.Norm2()
	if norm != 0 {
		v.ScalarMult(fromReal[T](1 / norm))
	}
	return norm
}
