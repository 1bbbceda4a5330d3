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

package geotransform

import (
	"fmt"
	"sync"

	"github.com/spatialmodel/geotransform/matrix"
)

// Shared identity instances for the dimensions that occur in practice.
// Pointer identity lets Concatenate return the exact same value a caller
// passed in when the other argument is elided.
var identityCache = func() []*IdentityTransform {
	c := make([]*IdentityTransform, 9)
	for d := range c {
		c[d] = &IdentityTransform{dim: d}
	}
	return c
}()

// IdentityTransform maps every point to itself.
type IdentityTransform struct {
	dim int
}

// Identity returns the identity transform of the given dimension. Small
// dimensions return a shared instance. A zero-dimensional identity is valid:
// the separator produces one when every dimension is filtered out.
func Identity(dim int) *IdentityTransform {
	if dim < 0 {
		panic(fmt.Sprintf("geotransform: invalid identity dimension %d", dim))
	}
	if dim < len(identityCache) {
		return identityCache[dim]
	}
	return &IdentityTransform{dim: dim}
}

func (t *IdentityTransform) SourceDimensions() int { return t.dim }
func (t *IdentityTransform) TargetDimensions() int { return t.dim }
func (t *IdentityTransform) IsIdentity() bool      { return true }

func (t *IdentityTransform) Matrix() *matrix.Matrix { return matrix.Identity(t.dim + 1) }

func (t *IdentityTransform) Transform(src, dst []float64) error {
	copy(dst[:t.dim], src[:t.dim])
	return nil
}

func (t *IdentityTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(t, src, srcOff, dst, dstOff, numPts)
}

func (t *IdentityTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

func (t *IdentityTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	return matrix.Identity(t.dim), nil
}

func (t *IdentityTransform) Inverse() (Transform, error) { return t, nil }

func (t *IdentityTransform) Equal(other Transform, mode ComparisonMode) bool {
	return linearEqual(t, other, mode)
}

func (t *IdentityTransform) String() string { return WKT(t) }

// TranslationTransform adds a constant offset to every coordinate.
type TranslationTransform struct {
	offsets []float64
}

// Translation returns the transform adding the given offsets, one per
// dimension.
func Translation(offsets ...float64) *TranslationTransform {
	if len(offsets) == 0 {
		panic("geotransform: translation needs at least one dimension")
	}
	o := make([]float64, len(offsets))
	copy(o, offsets)
	return &TranslationTransform{offsets: o}
}

func (t *TranslationTransform) SourceDimensions() int { return len(t.offsets) }
func (t *TranslationTransform) TargetDimensions() int { return len(t.offsets) }

func (t *TranslationTransform) IsIdentity() bool {
	for _, v := range t.offsets {
		if v != 0 {
			return false
		}
	}
	return true
}

func (t *TranslationTransform) Matrix() *matrix.Matrix {
	dim := len(t.offsets)
	m := matrix.Identity(dim + 1)
	for i, v := range t.offsets {
		m.Set(i, dim, v)
	}
	return m
}

func (t *TranslationTransform) Transform(src, dst []float64) error {
	// src and dst may overlap at an offset; read the full tuple first.
	buf := make([]float64, len(t.offsets))
	for i, v := range t.offsets {
		buf[i] = src[i] + v
	}
	copy(dst, buf)
	return nil
}

func (t *TranslationTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(t, src, srcOff, dst, dstOff, numPts)
}

func (t *TranslationTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

func (t *TranslationTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	return matrix.Identity(len(t.offsets)), nil
}

func (t *TranslationTransform) Inverse() (Transform, error) {
	neg := make([]float64, len(t.offsets))
	for i, v := range t.offsets {
		neg[i] = -v
	}
	return &TranslationTransform{offsets: neg}, nil
}

func (t *TranslationTransform) Equal(other Transform, mode ComparisonMode) bool {
	return linearEqual(t, other, mode)
}

func (t *TranslationTransform) String() string { return WKT(t) }

// ScaleTransform multiplies every coordinate by a constant factor.
type ScaleTransform struct {
	factors []float64
}

// Scaling returns the transform multiplying each dimension by the
// corresponding factor.
func Scaling(factors ...float64) *ScaleTransform {
	if len(factors) == 0 {
		panic("geotransform: scaling needs at least one dimension")
	}
	f := make([]float64, len(factors))
	copy(f, factors)
	return &ScaleTransform{factors: f}
}

func (t *ScaleTransform) SourceDimensions() int { return len(t.factors) }
func (t *ScaleTransform) TargetDimensions() int { return len(t.factors) }

func (t *ScaleTransform) IsIdentity() bool {
	for _, v := range t.factors {
		if v != 1 {
			return false
		}
	}
	return true
}

func (t *ScaleTransform) Matrix() *matrix.Matrix {
	dim := len(t.factors)
	m := matrix.Identity(dim + 1)
	for i, v := range t.factors {
		m.Set(i, i, v)
	}
	return m
}

func (t *ScaleTransform) Transform(src, dst []float64) error {
	// src and dst may overlap at an offset; read the full tuple first.
	buf := make([]float64, len(t.factors))
	for i, v := range t.factors {
		buf[i] = src[i] * v
	}
	copy(dst, buf)
	return nil
}

func (t *ScaleTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(t, src, srcOff, dst, dstOff, numPts)
}

func (t *ScaleTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

func (t *ScaleTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	dim := len(t.factors)
	m := matrix.New(dim, dim)
	for i, v := range t.factors {
		m.Set(i, i, v)
	}
	return m, nil
}

func (t *ScaleTransform) Inverse() (Transform, error) {
	rec := make([]float64, len(t.factors))
	for i, v := range t.factors {
		if v == 0 {
			return nil, &NoninvertibleError{Name: displayName(t),
				Err: fmt.Errorf("scale factor of dimension %d is zero", i)}
		}
		rec[i] = 1 / v
	}
	return &ScaleTransform{factors: rec}, nil
}

func (t *ScaleTransform) Equal(other Transform, mode ComparisonMode) bool {
	return linearEqual(t, other, mode)
}

func (t *ScaleTransform) String() string { return WKT(t) }

// AffineTransform is the general matrix-backed transform, covering affine
// and projective maps, including non-square matrices that add or drop
// dimensions.
type AffineTransform struct {
	m *matrix.Matrix

	mu  sync.Mutex
	inv Transform // lazily computed, or eagerly provided by the optimizer
}

// NewAffine returns the transform applying the given homogeneous matrix.
// The caller must not modify the matrix afterward.
func NewAffine(m *matrix.Matrix) (*AffineTransform, error) {
	if m.Rows() < 2 || m.Cols() < 2 {
		return nil, fmt.Errorf("geotransform: matrix %d×%d is too small for a transform", m.Rows(), m.Cols())
	}
	return &AffineTransform{m: m}, nil
}

// FromMatrix returns the most specific linear transform for the given
// homogeneous matrix: identity, translation, scale, or general affine.
func FromMatrix(m *matrix.Matrix) (Transform, error) {
	if !m.IsAffine() || !m.IsSquare() {
		return NewAffine(m)
	}
	dim := m.Rows() - 1
	translation := true
	scale := true
	for j := 0; j < dim; j++ {
		for i := 0; i < dim; i++ {
			e := m.At(j, i)
			if i == j {
				if e != 1 {
					translation = false
				}
			} else if e != 0 {
				return NewAffine(m)
			}
		}
		if m.At(j, dim) != 0 {
			scale = false
		}
	}
	switch {
	case translation && scale:
		return Identity(dim), nil
	case translation:
		offsets := make([]float64, dim)
		for j := 0; j < dim; j++ {
			offsets[j] = m.At(j, dim)
		}
		return &TranslationTransform{offsets: offsets}, nil
	case scale:
		factors := make([]float64, dim)
		for j := 0; j < dim; j++ {
			factors[j] = m.At(j, j)
		}
		return &ScaleTransform{factors: factors}, nil
	default:
		return NewAffine(m)
	}
}

func (t *AffineTransform) SourceDimensions() int { return t.m.Cols() - 1 }
func (t *AffineTransform) TargetDimensions() int { return t.m.Rows() - 1 }

func (t *AffineTransform) IsIdentity() bool { return t.m.IsIdentity(0) }

func (t *AffineTransform) Matrix() *matrix.Matrix { return t.m }

func (t *AffineTransform) Transform(src, dst []float64) error {
	t.m.TransformPoint(src[:t.SourceDimensions()], dst)
	return nil
}

func (t *AffineTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(t, src, srcOff, dst, dstOff, numPts)
}

func (t *AffineTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

// Derivative returns the Jacobian. For an affine matrix this is the linear
// part, independent of the point; for a projective matrix the perspective
// divide makes it point-dependent.
func (t *AffineTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	srcDim := t.SourceDimensions()
	tgtDim := t.TargetDimensions()
	d := matrix.New(tgtDim, srcDim)
	if t.m.IsAffine() {
		for j := 0; j < tgtDim; j++ {
			for i := 0; i < srcDim; i++ {
				d.Set(j, i, t.m.At(j, i))
			}
		}
		return d, nil
	}
	if len(point) < srcDim {
		return nil, fmt.Errorf("geotransform: projective derivative needs a %d-dimensional point", srcDim)
	}
	// y_j = u_j/w with u_j and w both affine in the source coordinates:
	// ∂y_j/∂x_i = (m[j][i]·w − u_j·m[last][i]) / w².
	w := t.m.At(tgtDim, srcDim)
	u := make([]float64, tgtDim)
	for j := 0; j <= tgtDim; j++ {
		s := t.m.At(j, srcDim)
		for i := 0; i < srcDim; i++ {
			s += t.m.At(j, i) * point[i]
		}
		if j < tgtDim {
			u[j] = s
		} else {
			w = s
		}
	}
	for j := 0; j < tgtDim; j++ {
		for i := 0; i < srcDim; i++ {
			d.Set(j, i, (t.m.At(j, i)*w-u[j]*t.m.At(tgtDim, i))/(w*w))
		}
	}
	return d, nil
}

// Inverse returns the inverse transform, computed from the matrix inverse
// on first use. The concatenation optimizer may have provided a more
// accurate inverse at construction time (the product of the original
// factors' inverses), in which case that one is returned.
func (t *AffineTransform) Inverse() (Transform, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inv != nil {
		return t.inv, nil
	}
	im, err := t.m.Inverse()
	if err != nil {
		return nil, &NoninvertibleError{Name: displayName(t), Err: err}
	}
	inv, err := FromMatrix(im)
	if err != nil {
		return nil, &NoninvertibleError{Name: displayName(t), Err: err}
	}
	if a, ok := inv.(*AffineTransform); ok {
		a.inv = t // mutual link, before the new instance is published
	}
	t.inv = inv
	return inv, nil
}

// setInverse installs an eagerly computed inverse. It must be called before
// the transform is shared with other goroutines.
func (t *AffineTransform) setInverse(inv Transform) {
	t.inv = inv
	if a, ok := inv.(*AffineTransform); ok && a.inv == nil {
		a.inv = t
	}
}

func (t *AffineTransform) Equal(other Transform, mode ComparisonMode) bool {
	return linearEqual(t, other, mode)
}

func (t *AffineTransform) String() string { return WKT(t) }
