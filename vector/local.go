// Package vector implements dense vectors that are either
// held by one process or partitioned across a process
// group.
//
// Operations that combine two vectors require both to
// share the same layout instance, and return
// ErrLayoutMismatch otherwise.
package vector

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/unixpickle/distvec/layout"
)

var vectorIDs atomic.Uint64

// A LocalVector is a dense buffer covering every index of
// a layout.Local.
//
// A LocalVector is safe for concurrent use. Kernels that
// touch two vectors lock them in creation order.
type LocalVector[T Scalar] struct {
	layout *layout.Local
	id     uint64

	lock sync.RWMutex
	data []T
}

// NewLocal creates a zero vector over l.
func NewLocal[T Scalar](l *layout.Local) *LocalVector[T] {
	return &LocalVector[T]{
		layout: l,
		id:     vectorIDs.Add(1),
		data:   make([]T, l.NumberOfGlobalIndices()),
	}
}

// Layout returns the layout the vector was created with.
func (v *LocalVector[T]) Layout() *layout.Local {
	return v.layout
}

// Len returns the number of elements.
func (v *LocalVector[T]) Len() int {
	return len(v.data)
}

// At returns the i-th element.
func (v *LocalVector[T]) At(i int) (T, error) {
	if i < 0 || i >= len(v.data) {
		var zero T
		return zero, errors.Wrapf(ErrOutOfRange, "index %d of %d", i, len(v.data))
	}
	return v.UnsafeAt(i), nil
}

// Set sets the i-th element.
func (v *LocalVector[T]) Set(i int, x T) error {
	if i < 0 || i >= len(v.data) {
		return errors.Wrapf(ErrOutOfRange, "index %d of %d", i, len(v.data))
	}
	v.UnsafeSet(i, x)
	return nil
}

// UnsafeAt is like At without the bounds check, so a bad
// index panics.
func (v *LocalVector[T]) UnsafeAt(i int) T {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.data[i]
}

// UnsafeSet is like Set without the bounds check.
func (v *LocalVector[T]) UnsafeSet(i int, x T) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.data[i] = x
}

// View calls fn with the vector's elements while holding a
// read lock. fn must not modify or retain the slice.
func (v *LocalVector[T]) View(fn func(data []T)) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	fn(v.data)
}

// Update calls fn with the vector's elements while holding
// the write lock. fn must not retain the slice.
func (v *LocalVector[T]) Update(fn func(data []T)) {
	v.lock.Lock()
	defer v.lock.Unlock()
	fn(v.data)
}

// Values returns a copy of the elements.
func (v *LocalVector[T]) Values() []T {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return append([]T{}, v.data...)
}

// CopyFrom overwrites the elements with values.
func (v *LocalVector[T]) CopyFrom(values []T) error {
	if len(values) != len(v.data) {
		return errors.Wrapf(ErrDimensionMismatch, "got %d values for %d elements",
			len(values), len(v.data))
	}
	v.Update(func(data []T) {
		copy(data, values)
	})
	return nil
}

// Inner computes the sum of v[i]*conj(other[i]).
func (v *LocalVector[T]) Inner(other *LocalVector[T]) (T, error) {
	var res T
	err := v.withPair(other, false, false, func(a, b []T) {
		res = dot(a, b)
	})
	return res, err
}

// SquareSum computes the sum of |v[i]|^2.
func (v *LocalVector[T]) SquareSum() float64 {
	var res float64
	v.View(func(data []T) {
		for _, x := range data {
			res += absSq(x)
		}
	})
	return res
}

// Norm1 computes the sum of |v[i]|.
func (v *LocalVector[T]) Norm1() float64 {
	var res float64
	v.View(func(data []T) {
		for _, x := range data {
			res += abs(x)
		}
	})
	return res
}

// Norm2 computes the Euclidean norm.
func (v *LocalVector[T]) Norm2() float64 {
	return math.Sqrt(v.SquareSum())
}

// NormInf computes the largest |v[i]|.
// The result is -Inf for an empty vector.
func (v *LocalVector[T]) NormInf() float64 {
	res := math.Inf(-1)
	v.View(func(data []T) {
		for _, x := range data {
			res = math.Max(res, abs(x))
		}
	})
	return res
}

// Swap exchanges the contents of v and other.
func (v *LocalVector[T]) Swap(other *LocalVector[T]) error {
	if v == other {
		return v.checkLayout(other)
	}
	return v.withPair(other, true, true, func(a, b []T) {
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	})
}

// Fill copies the contents of other into v.
func (v *LocalVector[T]) Fill(other *LocalVector[T]) error {
	if v == other {
		return v.checkLayout(other)
	}
	return v.withPair(other, true, false, func(a, b []T) {
		copy(a, b)
	})
}

// ScalarMult multiplies every element by s.
func (v *LocalVector[T]) ScalarMult(s T) {
	v.Update(func(data []T) {
		for i := range data {
			data[i] *= s
		}
	})
}

// MultSumInto adds s*other to v.
func (v *LocalVector[T]) MultSumInto(other *LocalVector[T], s T) error {
	if err := v.checkLayout(other); err != nil || s == 0 {
		return err
	}
	return v.withPair(other, true, false, func(a, b []T) {
		if s == 1 {
			for i, x := range b {
				a[i] += x
			}
			return
		}
		for i, x := range b {
			a[i] += s * x
		}
	})
}

func (v *LocalVector[T]) String() string {
	var parts []string
	v.View(func(data []T) {
		for _, x := range data {
			parts = append(parts, fmt.Sprint(x))
		}
	})
	return "[" + strings.Join(parts, " ") + "]"
}

func (v *LocalVector[T]) checkLayout(other *LocalVector[T]) error {
	if !v.layout.IsSame(other.layout) {
		return errors.Wrapf(ErrLayoutMismatch, "local layouts %s and %s",
			v.layout.GlobalRange(), other.layout.GlobalRange())
	}
	return nil
}

// withPair runs fn on the data of v and other with both
// locked, writeSelf and writeOther selecting the lock
// modes.
func (v *LocalVector[T]) withPair(other *LocalVector[T], writeSelf, writeOther bool,
	fn func(a, b []T)) error {
	if err := v.checkLayout(other); err != nil {
		return err
	}
	if v == other {
		defer v.acquire(writeSelf || writeOther)()
		fn(v.data, v.data)
		return nil
	}
	if v.id < other.id {
		defer v.acquire(writeSelf)()
		defer other.acquire(writeOther)()
	} else {
		defer other.acquire(writeOther)()
		defer v.acquire(writeSelf)()
	}
	fn(v.data, other.data)
	return nil
}

// acquire locks v and returns the matching unlock.
func (v *LocalVector[T]) acquire(write bool) func() {
	if write {
		v.lock.Lock()
		return v.lock.Unlock
	}
	v.lock.RLock()
	return v.lock.RUnlock
}

func dot[T Scalar](a, b []T) T {
	if !isComplex[T]() {
		var res T
		for i, x := range a {
			res += x * b[i]
		}
		return res
	}
	var res complex128
	for i, x := range a {
		res += toComplex(x) * cmplx.Conj(toComplex(b[i]))
	}
	return fromComplex[T](res)
}
