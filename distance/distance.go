// Package distance provides pairwise distance matrices between taxa.
package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("distance")

const (
	// Floor is the smallest distance between two different taxa.
	Floor = 1e-6
	// symTolerance is the maximum allowed difference between d(i,j)
	// and d(j,i).
	symTolerance = 1e-6
)

// ErrInvalidMatrix is returned for malformed or degenerate distances.
var ErrInvalidMatrix = errors.New("invalid distance matrix")

// Matrix is a symmetric matrix of distances between named taxa. Row
// order is the order of names.
type Matrix struct {
	Names []string
	d     *mat.SymDense
}

// New creates a zero matrix for the taxa.
func New(names []string) *Matrix {
	m := &Matrix{Names: append([]string(nil), names...)}
	if len(names) > 0 {
		m.d = mat.NewSymDense(len(names), nil)
	}
	return m
}

// FromRows creates a matrix from a square table. The table has to be
// symmetric.
func FromRows(names []string, rows [][]float64) (*Matrix, error) {
	n := len(names)
	if n < 1 {
		return nil, fmt.Errorf("%w: no taxa", ErrInvalidMatrix)
	}
	if len(rows) != n {
		return nil, fmt.Errorf("%w: %d rows for %d taxa", ErrInvalidMatrix, len(rows), n)
	}
	m := New(names)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %s has %d values", ErrInvalidMatrix, names[i], len(row))
		}
		for j := 0; j <= i; j++ {
			if math.Abs(row[j]-rows[j][i]) > symTolerance {
				return nil, fmt.Errorf("%w: d(%s,%s)=%v differs from d(%s,%s)=%v",
					ErrInvalidMatrix, names[i], names[j], row[j], names[j], names[i], rows[j][i])
			}
			m.d.SetSym(i, j, row[j])
		}
	}
	return m, nil
}

// N returns the number of taxa.
func (m *Matrix) N() int {
	return len(m.Names)
}

// At returns the distance between taxa i and j.
func (m *Matrix) At(i, j int) float64 {
	return m.d.At(i, j)
}

// Set sets the distance between taxa i and j.
func (m *Matrix) Set(i, j int, v float64) {
	m.d.SetSym(i, j, v)
}

// Copy returns an independent copy.
func (m *Matrix) Copy() *Matrix {
	c := New(m.Names)
	if m.d != nil {
		c.d.CopySym(m.d)
	}
	return c
}

// Clamp validates the matrix and raises off-diagonal values to the
// floor; the diagonal is set to zero. It returns the number of clamped
// values.
func (m *Matrix) Clamp(floor float64) (int, error) {
	n := m.N()
	if n < 1 {
		return 0, fmt.Errorf("%w: no taxa", ErrInvalidMatrix)
	}
	clamped := 0
	for i := 0; i < n; i++ {
		m.d.SetSym(i, i, 0)
		for j := 0; j < i; j++ {
			v := m.d.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return clamped, fmt.Errorf("%w: d(%s,%s)=%v", ErrInvalidMatrix, m.Names[i], m.Names[j], v)
			}
			if v < floor {
				m.d.SetSym(i, j, floor)
				clamped++
			}
		}
	}
	if clamped > 0 {
		log.Debugf("%d distances raised to %g", clamped, floor)
	}
	return clamped, nil
}
