package vector

import (
	"math"
	"math/cmplx"
	"reflect"

	"golang.org/x/exp/constraints"
)

// Scalar is the set of element types a vector can hold.
//
// Norms and square sums are float64 for every Scalar.
type Scalar interface {
	constraints.Float | constraints.Complex
}

// isComplex reports whether T is a complex type.
func isComplex[T Scalar]() bool {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// wireWidth is the number of float64s one T occupies in
// a collective.
func wireWidth[T Scalar]() int {
	if isComplex[T]() {
		return 2
	}
	return 1
}

func toComplex[T Scalar](v T) complex128 {
	switch x := any(v).(type) {
	case float32:
		return complex(float64(x), 0)
	case float64:
		return complex(x, 0)
	case complex64:
		return complex128(x)
	case complex128:
		return x
	}

	// Named types such as `type Real float64`.
	rv := reflect.ValueOf(v)
	if rv.CanFloat() {
		return complex(rv.Float(), 0)
	}
	return rv.Complex()
}

// fromComplex converts c to T, dropping the imaginary part
// for real types.
func fromComplex[T Scalar](c complex128) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(real(c))).(T)
	case float64:
		return any(real(c)).(T)
	case complex64:
		return any(complex64(c)).(T)
	case complex128:
		return any(c).(T)
	}

	rv := reflect.New(reflect.TypeFor[T]()).Elem()
	if rv.CanFloat() {
		rv.SetFloat(real(c))
	} else {
		rv.SetComplex(c)
	}
	return rv.Interface().(T)
}

func fromReal[T Scalar](x float64) T {
	return fromComplex[T](complex(x, 0))
}

func conj[T Scalar](v T) T {
	if !isComplex[T]() {
		return v
	}
	return fromComplex[T](cmplx.Conj(toComplex(v)))
}

func abs[T Scalar](v T) float64 {
	c := toComplex(v)
	if imag(c) == 0 {
		return math.Abs(real(c))
	}
	return cmplx.Abs(c)
}

func absSq[T Scalar](v T) float64 {
	c := toComplex(v)
	return real(c)*real(c) + imag(c)*imag(c)
}

// pack flattens values into the float64 wire format:
// one float per real value, real and imaginary parts for
// complex ones.
func pack[T Scalar](values []T) []float64 {
	w := wireWidth[T]()
	res := make([]float64, len(values)*w)
	for i, v := range values {
		c := toComplex(v)
		res[i*w] = real(c)
		if w == 2 {
			res[i*w+1] = imag(c)
		}
	}
	return res
}

// unpack is the inverse of pack.
func unpack[T Scalar](data []float64) []T {
	w := wireWidth[T]()
	res := make([]T, len(data)/w)
	for i := range res {
		if w == 2 {
			res[i] = fromComplex[T](complex(data[2*i], data[2*i+1]))
		} else {
			res[i] = fromReal[T](data[i])
		}
	}
	return res
}

// scaleCounts converts element counts or offsets into
// wire units.
func scaleCounts(counts []int, width int) []int {
	res := make([]int, len(counts))
	for i, c := range counts {
		res[i] = c * width
	}
	return res
}
