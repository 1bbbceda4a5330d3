/*
Copyright © 2026 the geotransform authors.
This file is part of geotransform.

geotransform is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

geotransform is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with geotransform.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package matrix implements the small dense matrices used to represent
// affine coordinate conversions in homogeneous coordinates. An affine
// conversion from d_s source dimensions to d_t target dimensions is stored
// as a (d_t+1) × (d_s+1) matrix whose last row is [0 0 … 0 1].
//
// Matrices here are tiny (rarely more than 5×5, never more than about
// 10×10), so no attention is paid to cache behavior or allocation reuse.
// What matters instead is accuracy: elements carry a double-double residual
// so that products of conversion matrices (for example a degrees→radians
// scale times its inverse) come out exact where they are mathematically
// exact. General-purpose linear algebra belongs to gonum, which this
// package uses for factorization-based inversion.
package matrix

import (
	"fmt"
	"math"
	"strings"

	"github.com/spatialmodel/geotransform/dd"
	"gonum.org/v1/gonum/mat"
)

// A Matrix is a dense rows × cols matrix with double-double elements.
// The zero value is not usable; create instances with New, Identity,
// NewFromValues or FromDense.
type Matrix struct {
	rows, cols int
	elems      []dd.DD // row-major
}

// New returns a zero-filled rows × cols matrix.
func New(rows, cols int) *Matrix {
	if rows < 1 || cols < 1 {
		panic(fmt.Sprintf("matrix: invalid size %d×%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, elems: make([]dd.DD, rows*cols)}
}

// Identity returns the size × size identity matrix.
func Identity(size int) *Matrix {
	m := New(size, size)
	for i := 0; i < size; i++ {
		m.elems[i*size+i] = dd.New(1)
	}
	return m
}

// NewFromValues returns a rows × cols matrix initialized with the given
// row-major values. The number of values must be rows*cols.
func NewFromValues(rows, cols int, values []float64) *Matrix {
	if len(values) != rows*cols {
		panic(fmt.Sprintf("matrix: got %d values for a %d×%d matrix", len(values), rows, cols))
	}
	m := New(rows, cols)
	for i, v := range values {
		m.elems[i] = dd.New(v)
	}
	return m
}

// FromDense copies a gonum matrix.
func FromDense(d mat.Matrix) *Matrix {
	rows, cols := d.Dims()
	m := New(rows, cols)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			m.elems[j*cols+i] = dd.New(d.At(j, i))
		}
	}
	return m
}

// ToDense converts to a gonum dense matrix, dropping the double-double
// residuals.
func (m *Matrix) ToDense() *mat.Dense {
	d := mat.NewDense(m.rows, m.cols, nil)
	for j := 0; j < m.rows; j++ {
		for i := 0; i < m.cols; i++ {
			d.Set(j, i, m.elems[j*m.cols+i].Value())
		}
	}
	return d
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// At returns the element at row j, column i.
func (m *Matrix) At(j, i int) float64 {
	return m.at(j, i).Value()
}

func (m *Matrix) at(j, i int) dd.DD {
	if j < 0 || j >= m.rows || i < 0 || i >= m.cols {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of %d×%d bounds", j, i, m.rows, m.cols))
	}
	return m.elems[j*m.cols+i]
}

// AtExact returns the element at row j, column i with its error term.
func (m *Matrix) AtExact(j, i int) dd.DD {
	return m.at(j, i)
}

// Set sets the element at row j, column i.
func (m *Matrix) Set(j, i int, v float64) {
	m.setDD(j, i, dd.New(v))
}

// SetExact sets the element at row j, column i to an exact double-double
// value, typically obtained from AtExact on another matrix.
func (m *Matrix) SetExact(j, i int, v dd.DD) {
	m.setDD(j, i, v)
}

func (m *Matrix) setDD(j, i int, v dd.DD) {
	if j < 0 || j >= m.rows || i < 0 || i >= m.cols {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of %d×%d bounds", j, i, m.rows, m.cols))
	}
	m.elems[j*m.cols+i] = v
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	o := &Matrix{rows: m.rows, cols: m.cols, elems: make([]dd.DD, len(m.elems))}
	copy(o.elems, m.elems)
	return o
}

// IsSquare reports whether m has as many rows as columns.
func (m *Matrix) IsSquare() bool { return m.rows == m.cols }

// IsAffine reports whether the last row is [0 0 … 0 1]. Contrary to the
// strict mathematical definition, the matrix is not required to be square.
func (m *Matrix) IsAffine() bool {
	j := m.rows - 1
	for i := 0; i < m.cols-1; i++ {
		if !m.elems[j*m.cols+i].IsZero() {
			return false
		}
	}
	e := m.elems[j*m.cols+m.cols-1]
	return e.Hi == 1 && e.Lo == 0
}

// IsIdentity reports whether m is square and every element is within tol of
// the identity matrix. Off-diagonal tolerance is scaled by the magnitude of
// the corresponding diagonal elements, so that the test is invariant under
// uniform axis scaling.
func (m *Matrix) IsIdentity(tol float64) bool {
	if !m.IsSquare() {
		return false
	}
	for j := 0; j < m.rows; j++ {
		for i := 0; i < m.cols; i++ {
			e := m.At(j, i)
			expected := 0.0
			if i == j {
				expected = 1
			}
			t := tol
			if i != j {
				// Scale by the local magnitude: a row with a large
				// scale factor tolerates proportionally larger
				// off-diagonal noise.
				s := math.Max(math.Abs(m.At(j, j)), math.Abs(m.At(i, i)))
				if s > 1 {
					t *= s
				}
			}
			if math.Abs(e-expected) > t {
				return false
			}
		}
	}
	return true
}

// Equal reports whether m and o have the same size and all elements equal
// within tol. A tol of zero demands exact equality of the float64 values.
func (m *Matrix) Equal(o *Matrix, tol float64) bool {
	if o == nil || m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for k := range m.elems {
		a, b := m.elems[k].Value(), o.elems[k].Value()
		if a == b {
			continue
		}
		if math.Abs(a-b) > tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
			return false
		}
	}
	return true
}

// Multiply returns the matrix product a × b computed in double-double
// arithmetic. The number of columns in a must equal the number of rows
// in b.
func Multiply(a, b *Matrix) (*Matrix, error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("matrix: cannot multiply %d×%d by %d×%d", a.rows, a.cols, b.rows, b.cols)
	}
	p := New(a.rows, b.cols)
	for j := 0; j < a.rows; j++ {
		for i := 0; i < b.cols; i++ {
			var sum dd.DD
			for k := 0; k < a.cols; k++ {
				e1 := a.elems[j*a.cols+k]
				e2 := b.elems[k*b.cols+i]
				if e1.IsZero() || e2.IsZero() {
					continue // Keep provably-zero terms exactly zero.
				}
				sum = sum.Add(e1.Mul(e2))
			}
			p.elems[j*p.cols+i] = sum
		}
	}
	return p, nil
}

// Inverse returns the inverse of m. The matrix must be square and
// non-singular; the returned error wraps the gonum condition-number
// diagnostic when inversion fails.
//
// The inverse is first computed in float64 by LU factorization, then
// polished with one Newton step (X ← X + X(I − MX)) evaluated in
// double-double arithmetic.
func (m *Matrix) Inverse() (*Matrix, error) {
	if !m.IsSquare() {
		return nil, fmt.Errorf("matrix: cannot invert non-square %d×%d matrix", m.rows, m.cols)
	}
	var inv mat.Dense
	if err := inv.Inverse(m.ToDense()); err != nil {
		return nil, fmt.Errorf("matrix: singular or ill-conditioned matrix: %w", err)
	}
	x := FromDense(&inv)
	// Newton refinement: residual R = I - M·X, correction X·R.
	mx, err := Multiply(m, x)
	if err != nil {
		return nil, err
	}
	r := Identity(m.rows)
	for k := range r.elems {
		r.elems[k] = r.elems[k].Sub(mx.elems[k])
	}
	c, err := Multiply(x, r)
	if err != nil {
		return nil, err
	}
	for k := range x.elems {
		x.elems[k] = x.elems[k].Add(c.elems[k])
	}
	roundSmall(x)
	return x, nil
}

// roundSmall snaps elements that are within one refined ulp of an integer
// back to that integer. Without this, the inverse of an exact permutation
// or scale matrix would carry noise in the 1e-17 range that defeats
// IsIdentity tests after re-multiplication.
func roundSmall(m *Matrix) {
	for k, e := range m.elems {
		n := math.Round(e.Hi)
		if n != e.Hi && math.Abs(e.Hi-n)+math.Abs(e.Lo) <= math.Abs(n)*1e-15 {
			m.elems[k] = dd.New(n)
		}
	}
}

// ConvertBefore concatenates to m, in place, a conversion of input
// dimension i applied before the map that m represents: input coordinate i
// is replaced by i*scale + offset. Computation is carried at double-double
// accuracy so that exact factors such as degree/radian conversions do not
// pollute other matrix elements with rounding errors.
func (m *Matrix) ConvertBefore(i int, scale, offset dd.DD) {
	last := m.cols - 1
	for j := 0; j < m.rows; j++ {
		e := m.at(j, i)
		if !offset.IsZero() {
			m.setDD(j, last, m.at(j, last).Add(e.Mul(offset)))
		}
		m.setDD(j, i, e.Mul(scale))
	}
}

// ConvertAfter concatenates to m, in place, a conversion of output dimension
// j applied after the map that m represents: output coordinate j is replaced
// by j*scale + offset. m must be affine.
func (m *Matrix) ConvertAfter(j int, scale, offset dd.DD) {
	for i := 0; i < m.cols; i++ {
		m.setDD(j, i, m.at(j, i).Mul(scale))
	}
	if !offset.IsZero() {
		last := m.cols - 1
		m.setDD(j, last, m.at(j, last).Add(offset))
	}
}

// RemoveRows returns a copy of m without the rows in [lower, upper).
func (m *Matrix) RemoveRows(lower, upper int) *Matrix {
	if lower < 0 || upper < lower || upper > m.rows {
		panic(fmt.Sprintf("matrix: invalid row range [%d,%d) in %d×%d matrix", lower, upper, m.rows, m.cols))
	}
	o := New(m.rows-(upper-lower), m.cols)
	k := 0
	for j := 0; j < m.rows; j++ {
		if j >= lower && j < upper {
			continue
		}
		copy(o.elems[k*o.cols:(k+1)*o.cols], m.elems[j*m.cols:(j+1)*m.cols])
		k++
	}
	return o
}

// RemoveColumns returns a copy of m without the columns in [lower, upper).
func (m *Matrix) RemoveColumns(lower, upper int) *Matrix {
	if lower < 0 || upper < lower || upper > m.cols {
		panic(fmt.Sprintf("matrix: invalid column range [%d,%d) in %d×%d matrix", lower, upper, m.rows, m.cols))
	}
	o := New(m.rows, m.cols-(upper-lower))
	for j := 0; j < m.rows; j++ {
		k := 0
		for i := 0; i < m.cols; i++ {
			if i >= lower && i < upper {
				continue
			}
			o.elems[j*o.cols+k] = m.elems[j*m.cols+i]
			k++
		}
	}
	return o
}

// TransformPoint applies the homogeneous-coordinates map represented by m to
// the given source coordinates, writing rows-1 results into dst. It is the
// low-level operation behind affine transforms; src length must be cols-1
// and dst length must be at least rows-1. src and dst may be the same slice.
func (m *Matrix) TransformPoint(src, dst []float64) {
	if len(src) != m.cols-1 {
		panic(fmt.Sprintf("matrix: point has %d coordinates, expected %d", len(src), m.cols-1))
	}
	buf := make([]float64, m.rows)
	for j := 0; j < m.rows; j++ {
		sum := m.elems[j*m.cols+m.cols-1] // translation term
		for i, v := range src {
			e := m.elems[j*m.cols+i]
			if e.IsZero() || v == 0 {
				continue
			}
			sum = sum.Add(e.MulFloat(v))
		}
		buf[j] = sum.Value()
	}
	// Perspective divide; w is 1 for affine matrices.
	if w := buf[m.rows-1]; w != 1 {
		for j := range buf[:m.rows-1] {
			buf[j] /= w
		}
	}
	copy(dst, buf[:m.rows-1])
}

// String formats the matrix values on one line per row, for diagnostics.
func (m *Matrix) String() string {
	var b strings.Builder
	for j := 0; j < m.rows; j++ {
		b.WriteString("[")
		for i := 0; i < m.cols; i++ {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%g", m.At(j, i))
		}
		b.WriteString("]")
		if j < m.rows-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
