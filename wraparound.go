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
	"math"
	"sync"

	"github.com/spatialmodel/geotransform/matrix"
)

// WraparoundTransform brings the coordinate in one dimension into the
// [−period/2 … +period/2] range, leaving the other dimensions unchanged.
// Longitudes folded into [−180 … +180]° are the canonical use. Ranges
// centered on another value are obtained by composing with translations,
// which the Wraparound constructor does.
type WraparoundTransform struct {
	dimension           int
	wraparoundDimension int
	period              float64

	// sourceMedian is the coordinate at the center of the range of valid
	// source coordinates, used only for computing the inverse. NaN when
	// unknown, in which case the transform is not invertible.
	sourceMedian float64

	mu  sync.Mutex
	inv Transform
}

// Wraparound returns a transform bringing the coordinate in the wraparound
// dimension into the [targetMedian−period/2 … targetMedian+period/2] range.
// sourceMedian is the center of the range of valid source coordinates; it
// has no effect on the forward transform but is required for inverting it,
// and may be NaN when unknown.
func Wraparound(dimension, wraparoundDimension int, period, sourceMedian, targetMedian float64) (Transform, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("geotransform: invalid wraparound dimension count %d", dimension)
	}
	if wraparoundDimension < 0 || wraparoundDimension >= dimension {
		return nil, fmt.Errorf("geotransform: wraparound dimension %d out of [0, %d) bounds",
			wraparoundDimension, dimension)
	}
	if !(period > 0) || math.IsInf(period, 0) {
		return nil, fmt.Errorf("geotransform: invalid wraparound period %g", period)
	}
	if math.IsNaN(targetMedian) || math.IsInf(targetMedian, 0) {
		return nil, fmt.Errorf("geotransform: invalid target median %g", targetMedian)
	}
	// A −targetMedian translation is applied before the wraparound, so the
	// source median used for the inverse must be translated the same way.
	tr := &WraparoundTransform{
		dimension:           dimension,
		wraparoundDimension: wraparoundDimension,
		period:              period,
		sourceMedian:        sourceMedian - targetMedian,
	}
	if targetMedian == 0 {
		return tr, nil
	}
	offsets := make([]float64, dimension)
	offsets[wraparoundDimension] = targetMedian
	denormalize := Translation(offsets...)
	normalize, err := denormalize.Inverse()
	if err != nil {
		return nil, err
	}
	if sourceMedian == 0 {
		tr.inv = tr
	}
	return Concatenate(normalize, tr, denormalize)
}

// Period returns the period on the wraparound axis.
func (t *WraparoundTransform) Period() float64 { return t.period }

// WraparoundDimension returns the dimension on which wraparound is applied.
func (t *WraparoundTransform) WraparoundDimension() int { return t.wraparoundDimension }

func (t *WraparoundTransform) SourceDimensions() int { return t.dimension }
func (t *WraparoundTransform) TargetDimensions() int { return t.dimension }
func (t *WraparoundTransform) IsIdentity() bool      { return false }

func (t *WraparoundTransform) shift(x float64) float64 {
	return math.Remainder(x, t.period)
}

func (t *WraparoundTransform) Transform(src, dst []float64) error {
	copy(dst[:t.dimension], src[:t.dimension])
	dst[t.wraparoundDimension] = t.shift(dst[t.wraparoundDimension])
	return nil
}

func (t *WraparoundTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	// copy has memmove semantics, so overlapping source and destination
	// regions within one array are handled without a strategy check.
	copy(dst[dstOff:dstOff+numPts*t.dimension], src[srcOff:srcOff+numPts*t.dimension])
	off := dstOff + t.wraparoundDimension
	for n := 0; n < numPts; n++ {
		dst[off] = t.shift(dst[off])
		off += t.dimension
	}
	return nil
}

func (t *WraparoundTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	copy(dst[dstOff:dstOff+numPts*t.dimension], src[srcOff:srcOff+numPts*t.dimension])
	off := dstOff + t.wraparoundDimension
	for n := 0; n < numPts; n++ {
		dst[off] = float32(t.shift(float64(dst[off])))
		off += t.dimension
	}
	return nil
}

// Derivative returns the identity matrix. Strictly speaking the derivative
// at (n+½)·period should be infinite, but derivatives are used as linear
// approximations around small regions and an infinite value would defeat
// that purpose.
func (t *WraparoundTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	return matrix.Identity(t.dimension), nil
}

// Inverse returns a wraparound transform producing values in the range of
// the source coordinates, which must have been specified at construction
// time through the source median.
func (t *WraparoundTransform) Inverse() (Transform, error) {
	if math.IsNaN(t.sourceMedian) || math.IsInf(t.sourceMedian, 0) {
		return nil, &NoninvertibleError{Name: displayName(t),
			Err: fmt.Errorf("the source median of the wraparound is unknown")}
	}
	if t.sourceMedian == 0 {
		return t, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inv == nil {
		inv, err := Wraparound(t.dimension, t.wraparoundDimension, t.period, 0, t.sourceMedian)
		if err != nil {
			return nil, err
		}
		if w, ok := inv.(*WraparoundTransform); ok {
			w.inv = t
		}
		t.inv = inv
	}
	return t.inv, nil
}

// equalIgnoreInverse reports equality of the forward behavior, ignoring the
// source median which matters only for the inverse.
func (t *WraparoundTransform) equalIgnoreInverse(o *WraparoundTransform) bool {
	return t.dimension == o.dimension &&
		t.wraparoundDimension == o.wraparoundDimension &&
		t.period == o.period
}

func (t *WraparoundTransform) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*WraparoundTransform)
	if !ok || !t.equalIgnoreInverse(o) {
		return false
	}
	if mode == Approximate {
		return true
	}
	return t.sourceMedian == o.sourceMedian ||
		(math.IsNaN(t.sourceMedian) && math.IsNaN(o.sourceMedian))
}

// TryConcatenate removes the redundancy of two consecutive wraparounds on
// the same dimension with the same period: the second application changes
// nothing. The first instance is kept because it is the one applied last in
// the inverse transform.
func (t *WraparoundTransform) TryConcatenate(j *Joiner) error {
	if prev, ok := j.Transform(-1); ok {
		if w, isW := prev.(*WraparoundTransform); isW && t.equalIgnoreInverse(w) {
			if done, err := j.Replace(-1, prev); done || err != nil {
				return err
			}
		}
	}
	if next, ok := j.Transform(+1); ok {
		if w, isW := next.(*WraparoundTransform); isW && t.equalIgnoreInverse(w) {
			if _, err := j.Replace(+1, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *WraparoundTransform) String() string { return WKT(t) }
