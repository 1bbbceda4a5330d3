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
	"math/bits"
	"sync"

	"github.com/spatialmodel/geotransform/matrix"
)

// PassThroughTransform applies a sub-transform on a contiguous block of
// coordinates while copying the leading and trailing coordinates unchanged.
type PassThroughTransform struct {
	firstAffected int
	sub           Transform
	numTrailing   int

	mu  sync.Mutex
	inv Transform
}

// PassThrough returns a transform applying sub on the coordinates starting
// at index firstAffected, passing the firstAffected leading and numTrailing
// trailing coordinates through unchanged. The result is not necessarily a
// *PassThroughTransform: an identity or linear sub-transform yields an
// identity or linear result.
func PassThrough(firstAffected int, sub Transform, numTrailing int) (Transform, error) {
	if firstAffected < 0 || numTrailing < 0 {
		return nil, fmt.Errorf("geotransform: negative pass-through coordinate count (%d, %d)",
			firstAffected, numTrailing)
	}
	if firstAffected == 0 && numTrailing == 0 {
		return sub, nil
	}
	if sub.IsIdentity() {
		dim := sub.SourceDimensions()
		if dim == sub.TargetDimensions() {
			return Identity(dim + firstAffected + numTrailing), nil
		}
	}
	if m := MatrixOf(sub); m != nil {
		return FromMatrix(expandMatrix(m, firstAffected, numTrailing, 1))
	}
	if p, ok := sub.(*PassThroughTransform); ok {
		return PassThrough(firstAffected+p.firstAffected, p.sub, numTrailing+p.numTrailing)
	}
	return &PassThroughTransform{firstAffected: firstAffected, sub: sub, numTrailing: numTrailing}, nil
}

// FirstAffectedCoordinate returns the index of the first coordinate modified
// by the sub-transform.
func (t *PassThroughTransform) FirstAffectedCoordinate() int { return t.firstAffected }

// NumTrailingCoordinates returns the number of trailing coordinates passed
// through unchanged.
func (t *PassThroughTransform) NumTrailingCoordinates() int { return t.numTrailing }

// SubTransform returns the transform applied on the modified coordinates.
func (t *PassThroughTransform) SubTransform() Transform { return t.sub }

func (t *PassThroughTransform) SourceDimensions() int {
	return t.firstAffected + t.sub.SourceDimensions() + t.numTrailing
}

func (t *PassThroughTransform) TargetDimensions() int {
	return t.firstAffected + t.sub.TargetDimensions() + t.numTrailing
}

func (t *PassThroughTransform) IsIdentity() bool { return t.sub.IsIdentity() }

func (t *PassThroughTransform) Transform(src, dst []float64) error {
	subSrc := t.sub.SourceDimensions()
	subTgt := t.sub.TargetDimensions()
	copy(dst[:t.firstAffected], src[:t.firstAffected])
	if err := t.sub.Transform(src[t.firstAffected:t.firstAffected+subSrc],
		dst[t.firstAffected:t.firstAffected+subTgt]); err != nil {
		return err
	}
	copy(dst[t.firstAffected+subTgt:t.firstAffected+subTgt+t.numTrailing],
		src[t.firstAffected+subSrc:t.firstAffected+subSrc+t.numTrailing])
	return nil
}

func (t *PassThroughTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(t, src, srcOff, dst, dstOff, numPts)
}

func (t *PassThroughTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

// Derivative returns a block matrix with the sub-transform Jacobian in the
// middle and 1 on the diagonal of the pass-through rows.
func (t *PassThroughTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	subSrc := t.sub.SourceDimensions()
	if len(point) < t.firstAffected+subSrc+t.numTrailing {
		return nil, fmt.Errorf("geotransform: point has %d dimensions, expected %d",
			len(point), t.SourceDimensions())
	}
	d, err := t.sub.Derivative(point[t.firstAffected : t.firstAffected+subSrc])
	if err != nil {
		return nil, err
	}
	return expandMatrix(d, t.firstAffected, t.numTrailing, 0), nil
}

func (t *PassThroughTransform) Inverse() (Transform, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inv != nil {
		return t.inv, nil
	}
	subInv, err := t.sub.Inverse()
	if err != nil {
		return nil, &NoninvertibleError{Name: displayName(t.sub), Err: err}
	}
	inv := &PassThroughTransform{firstAffected: t.firstAffected, sub: subInv, numTrailing: t.numTrailing}
	inv.inv = t
	t.inv = inv
	return inv, nil
}

func (t *PassThroughTransform) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*PassThroughTransform)
	if !ok {
		return false
	}
	return t.firstAffected == o.firstAffected &&
		t.numTrailing == o.numTrailing &&
		t.sub.Equal(o.sub, mode)
}

func (t *PassThroughTransform) String() string { return WKT(t) }

// passThroughCoordinates maps the indexes of the unmodified coordinates in
// source tuples to their indexes in target tuples.
func (t *PassThroughTransform) passThroughCoordinates() map[int]int {
	m := make(map[int]int, t.firstAffected+t.numTrailing)
	for i := 0; i < t.firstAffected; i++ {
		m[i] = i
	}
	subSrc := t.sub.SourceDimensions()
	subTgt := t.sub.TargetDimensions()
	for k := 0; k < t.numTrailing; k++ {
		m[t.firstAffected+subSrc+k] = t.firstAffected + subTgt + k
	}
	return m
}

// toSubMatrix returns the matrix to concatenate to the sub-transform if the
// given matrix, to be concatenated to the whole transform, touches only the
// dimensions modified by the sub-transform. Otherwise returns nil.
func (t *PassThroughTransform) toSubMatrix(applyOtherFirst bool, m *matrix.Matrix) *matrix.Matrix {
	numRow, numCol := m.Rows(), m.Cols()
	if numRow != numCol {
		return nil
	}
	var subDim int
	if applyOtherFirst {
		subDim = t.sub.SourceDimensions()
	} else {
		subDim = t.sub.TargetDimensions()
	}
	sub := matrix.Identity(subDim + 1)
	for r := numRow - 1; r >= 0; r-- {
		sj := r - t.firstAffected
		for i := numCol - 1; i >= 0; i-- {
			element := m.At(r, i)
			if sj >= 0 && sj < subDim {
				var si int
				var inside bool
				if i == numCol-1 { // Translation term.
					si = subDim
					inside = true
				} else {
					si = i - t.firstAffected
					inside = si >= 0 && si < subDim
				}
				if inside {
					sub.SetExact(sj, si, m.AtExact(r, i))
					continue
				}
			}
			expected := 0.0
			if i == r {
				expected = 1
			}
			if element != expected {
				// Some scaling or translation outside the sub-transform.
				return nil
			}
		}
	}
	return sub
}

// concatenateSub merges the neighbor at the given relative index into the
// sub-transform and proposes the combined pass-through as a replacement.
func (t *PassThroughTransform) concatenateSub(j *Joiner, relativeIndex int, other Transform) (bool, error) {
	first, second := t.sub, other
	if relativeIndex < 0 {
		first, second = other, t.sub
	}
	combined, err := Concatenate(first, second)
	if err != nil {
		return false, err
	}
	pt, err := PassThrough(t.firstAffected, combined, t.numTrailing)
	if err != nil {
		return false, err
	}
	return j.Replace(relativeIndex, pt)
}

// TryConcatenate optimizes the concatenation of this transform with its
// neighbors. Two adjacent pass-through transforms of the same shape merge
// into one; a linear neighbor touching only the modified dimensions moves
// inside the sub-transform; a following matrix that discards dimensions may
// allow dropping pass-through dimensions, or the sub-transform entirely.
func (t *PassThroughTransform) TryConcatenate(j *Joiner) error {
	var other Transform
	var m *matrix.Matrix
	// The discard analysis after this loop needs the values of `other` and
	// `m` for the transform AFTER this one, hence the (-1, +1) order.
	for _, relativeIndex := range [2]int{-1, +1} {
		other, _ = j.Transform(relativeIndex)
		m = nil
		if other == nil {
			continue
		}
		if opt, ok := other.(*PassThroughTransform); ok &&
			opt.firstAffected == t.firstAffected && opt.numTrailing == t.numTrailing {
			done, err := t.concatenateSub(j, relativeIndex, opt.sub)
			if done || err != nil {
				return err
			}
		}
		if m = MatrixOf(other); m != nil {
			if sub := t.toSubMatrix(relativeIndex < 0, m); sub != nil {
				lin, err := FromMatrix(sub)
				if err != nil {
					return err
				}
				done, err := t.concatenateSub(j, relativeIndex, lin)
				if done || err != nil {
					return err
				}
			}
		}
	}
	if m == nil {
		// No need to test whether this transform is the inverse of `other`:
		// if it were, merging the sub-transforms above would already have
		// produced the identity.
		return nil
	}
	// Identify the source dimensions of the following matrix that are
	// actually used. Discarding the sub-transform outputs is all or nothing;
	// pass-through dimensions can be dropped one by one.
	dimension := m.Cols() - 1
	if dimension > 64 { // Retained dimensions are stored as a bit mask.
		return nil
	}
	var retained uint64
	numRows := m.Rows()
	for i := 0; i < dimension; i++ {
		for r := 0; r < numRows; r++ {
			if m.At(r, i) != 0 {
				retained |= 1 << uint(i)
				break
			}
		}
	}
	fullMask := maskLowBits(dimension)
	subMask := maskLowBits(t.sub.TargetDimensions()) << uint(t.firstAffected)
	keepSub := retained&subMask != 0
	if keepSub {
		retained |= subMask
	}
	if retained == fullMask {
		// Nothing to discard, but the surrounding affine transforms may
		// still be merged through the unmodified dimensions.
		_, err := j.ReplacePassThrough(t.passThroughCoordinates())
		return err
	}
	change := t.sub.SourceDimensions() - t.sub.TargetDimensions()
	if change == 0 && !keepSub {
		if done, err := j.Replace(+1, other); done || err != nil {
			return err
		}
	}
	// Shrink a copy of the following matrix as if the discarded dimensions
	// were already removed before this transform.
	reduced := m
	columnsToRemove := ^retained & fullMask
	for columnsToRemove != 0 {
		lower := bits.TrailingZeros64(columnsToRemove)
		upper := bits.TrailingZeros64(^(columnsToRemove | maskLowBits(lower)))
		reduced = reduced.RemoveColumns(lower, upper)
		columnsToRemove &^= maskLowBits(upper)
		columnsToRemove >>= uint(upper - lower)
	}
	// Expand the bitmask into indexes of source dimensions to keep before
	// the pass-through transform, adjusting for the change in dimension
	// count across the sub-transform.
	leadMask := maskLowBits(t.firstAffected)
	numKeepAfter := bits.OnesCount64(retained &^ (leadMask | subMask))
	numKeepBefore := bits.OnesCount64(retained & leadMask)
	indices := make([]int, bits.OnesCount64(retained)+change)
	for i := range indices {
		dim := bits.TrailingZeros64(retained)
		if dim == t.firstAffected {
			if change < 0 {
				retained >>= uint(-change)
				retained &^= leadMask
			} else {
				retained <<= uint(change)
				retained |= maskLowBits(change) << uint(dim)
			}
		}
		retained &^= 1 << uint(dim)
		indices[i] = dim
	}
	if !keepSub {
		// The sub-transform block was not seen by the loop above, so the
		// indexes after it still need the dimensionality adjustment.
		for i := len(indices) - 1; i >= 0; i-- {
			if indices[i] <= t.firstAffected {
				break
			}
			indices[i] -= change
		}
	}
	// Concatenate a dimension-selecting affine transform, the pass-through
	// transform with fewer dimensions (if still needed), and the shrunk
	// following matrix.
	tr, err := FromMatrix(dimensionSelect(dimension+change, indices))
	if err != nil {
		return err
	}
	if keepSub {
		pt, err := PassThrough(numKeepBefore, t.sub, numKeepAfter)
		if err != nil {
			return err
		}
		if tr, err = Concatenate(tr, pt); err != nil {
			return err
		}
	}
	redTr, err := FromMatrix(reduced)
	if err != nil {
		return err
	}
	if tr, err = Concatenate(tr, redTr); err != nil {
		return err
	}
	_, err = j.Replace(+1, tr)
	return err
}

// maskLowBits returns a mask for the n lowest bits.
func maskLowBits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}

// dimensionSelect returns the matrix of the transform selecting, in order,
// the given dimensions of a sourceDim-dimensional coordinate.
func dimensionSelect(sourceDim int, indices []int) *matrix.Matrix {
	m := matrix.New(len(indices)+1, sourceDim+1)
	for r, i := range indices {
		m.Set(r, i, 1)
	}
	m.Set(len(indices), sourceDim, 1)
	return m
}

// expandMatrix embeds a sub-transform matrix into the matrix of the whole
// pass-through transform, with 1 on the diagonal of the pass-through rows.
// affine is 1 when the sub matrix carries the homogeneous row and
// translation column, or 0 for a plain Jacobian.
func expandMatrix(sub *matrix.Matrix, firstAffected, numTrailing, affine int) *matrix.Matrix {
	nSkipped := firstAffected + numTrailing
	numSubRow := sub.Rows() - affine
	numSubCol := sub.Cols() - affine
	m := matrix.New(numSubRow+nSkipped+affine, numSubCol+nSkipped+affine)
	for r := 0; r < firstAffected; r++ {
		m.Set(r, r, 1)
	}
	for r := 0; r < numSubRow; r++ {
		for i := 0; i < numSubCol; i++ {
			m.SetExact(r+firstAffected, i+firstAffected, sub.AtExact(r, i))
		}
	}
	offset := numSubCol - numSubRow
	numRowOut := numSubRow + nSkipped
	numColOut := numSubCol + nSkipped
	for r := numRowOut - numTrailing; r < numRowOut; r++ {
		m.Set(r, r+offset, 1)
	}
	if affine != 0 {
		for r := 0; r < numSubRow; r++ {
			m.SetExact(r+firstAffected, numColOut, sub.AtExact(r, numSubCol))
		}
		for i := 0; i < numSubCol; i++ {
			m.SetExact(numRowOut, i+firstAffected, sub.AtExact(numSubRow, i))
		}
		m.SetExact(numRowOut, numColOut, sub.AtExact(numSubRow, numSubCol))
	}
	return m
}
