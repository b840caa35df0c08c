// Package sparse implements compressed sparse row matrices
// that multiply local vectors.
package sparse

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/unixpickle/distvec/vector"
	"github.com/unixpickle/essentials"
)

var (
	// ErrDimensionMismatch is returned when coordinate
	// arrays disagree in length, or when a vector's length
	// does not match the matrix it is multiplied with.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrOutOfRange is returned by FromAIJ for a triple
	// that lies outside the matrix.
	ErrOutOfRange = errors.New("sparse: index out of range")

	// ErrInvalidStructure is returned for a negative shape
	// or CSR arrays that do not describe a matrix.
	ErrInvalidStructure = errors.New("sparse: invalid CSR structure")
)

// Shape is the number of rows and columns of a matrix.
type Shape struct {
	Rows int
	Cols int
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

func (s Shape) check() error {
	if s.Rows < 0 || s.Cols < 0 {
		return errors.Wrapf(ErrInvalidStructure, "shape %s", s)
	}
	return nil
}

// A CSRMatrix stores the non-zero entries of a matrix row
// by row.
//
// The entries of row r are data[indptr[r]:indptr[r+1]],
// in the columns given by the same range of indices.
type CSRMatrix[T vector.Scalar] struct {
	shape   Shape
	indices []int
	indptr  []int
	data    []T
}

// New creates a matrix from its CSR arrays, which it takes
// ownership of.
func New[T vector.Scalar](shape Shape, indices, indptr []int, data []T) (*CSRMatrix[T], error) {
	if err := shape.check(); err != nil {
		return nil, err
	}
	if len(indptr) != shape.Rows+1 {
		return nil, errors.Wrapf(ErrInvalidStructure, "indptr has %d entries for %d rows",
			len(indptr), shape.Rows)
	}
	if len(indices) != len(data) {
		return nil, errors.Wrapf(ErrInvalidStructure, "%d indices but %d values",
			len(indices), len(data))
	}
	if indptr[0] != 0 || indptr[shape.Rows] != len(data) {
		return nil, errors.Wrapf(ErrInvalidStructure, "indptr spans [%d, %d) for %d values",
			indptr[0], indptr[shape.Rows], len(data))
	}
	for r := range shape.Rows {
		if indptr[r+1] < indptr[r] {
			return nil, errors.Wrapf(ErrInvalidStructure, "indptr decreases at row %d", r)
		}
	}
	for k, col := range indices {
		if col < 0 || col >= shape.Cols {
			return nil, errors.Wrapf(ErrInvalidStructure, "entry %d has column %d of %d",
				k, col, shape.Cols)
		}
	}
	return &CSRMatrix[T]{shape: shape, indices: indices, indptr: indptr, data: data}, nil
}

// FromAIJ creates a matrix from coordinate triples, where
// entry k is data[k] at (rows[k], cols[k]).
//
// Entries of the same row keep their input order.
// Duplicate coordinates are kept as separate entries and
// add up in products.
func FromAIJ[T vector.Scalar](shape Shape, rows, cols []int, data []T) (*CSRMatrix[T], error) {
	if err := shape.check(); err != nil {
		return nil, err
	}
	if len(rows) != len(data) || len(cols) != len(data) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d rows, %d cols, %d values",
			len(rows), len(cols), len(data))
	}
	for k := range data {
		if rows[k] < 0 || rows[k] >= shape.Rows || cols[k] < 0 || cols[k] >= shape.Cols {
			return nil, errors.Wrapf(ErrOutOfRange, "entry %d at (%d, %d) in shape %s",
				k, rows[k], cols[k], shape)
		}
	}

	sortedRows := append([]int{}, rows...)
	indices := append([]int{}, cols...)
	values := append([]T{}, data...)
	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}
	essentials.VoodooSort(sortedRows, func(i, j int) bool {
		if sortedRows[i] == sortedRows[j] {
			return order[i] < order[j]
		}
		return sortedRows[i] < sortedRows[j]
	}, indices, values, order)

	indptr := make([]int, shape.Rows+1)
	for _, r := range sortedRows {
		indptr[r+1]++
	}
	for r := range shape.Rows {
		indptr[r+1] += indptr[r]
	}
	return New(shape, indices, indptr, values)
}

// Shape returns the dimensions of the matrix.
func (m *CSRMatrix[T]) Shape() Shape {
	return m.shape
}

// NNZ returns the number of stored entries.
func (m *CSRMatrix[T]) NNZ() int {
	return len(m.data)
}

// Indices returns the column of every stored entry.
// The result must not be modified.
func (m *CSRMatrix[T]) Indices() []int {
	return m.indices
}

// Indptr returns the row pointers.
// The result must not be modified.
func (m *CSRMatrix[T]) Indptr() []int {
	return m.indptr
}

// Data returns the stored values.
// The result must not be modified.
func (m *CSRMatrix[T]) Data() []T {
	return m.data
}

// Matmul computes y = beta*y + alpha*A*x.
//
// x is copied before y is written, so x and y may be the
// same vector.
func (m *CSRMatrix[T]) Matmul(alpha T, x *vector.LocalVector[T], beta T,
	y *vector.LocalVector[T]) error {
	if x.Len() != m.shape.Cols || y.Len() != m.shape.Rows {
		return errors.Wrapf(ErrDimensionMismatch, "matrix %s with x of %d and y of %d",
			m.shape, x.Len(), y.Len())
	}
	xs := x.Values()
	y.Update(func(ys []T) {
		for row := range ys {
			var acc T
			for k := m.indptr[row]; k < m.indptr[row+1]; k++ {
				acc += m.data[k] * xs[m.indices[k]]
			}
			ys[row] = beta*ys[row] + alpha*acc
		}
	})
	return nil
}

// Dense expands the matrix into row-major form.
func (m *CSRMatrix[T]) Dense() [][]T {
	res := make([][]T, m.shape.Rows)
	for row := range res {
		res[row] = make([]T, m.shape.Cols)
		for k := m.indptr[row]; k < m.indptr[row+1]; k++ {
			res[row][m.indices[k]] += m.data[k]
		}
	}
	return res
}
