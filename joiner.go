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
	"sort"

	"github.com/spatialmodel/geotransform/matrix"
)

// Joiner is the handler given to Joinable transforms during concatenation,
// letting them replace the default composition by an optimized alternative.
// A transform inspects its neighbors with Transform or Matrix, using indexes
// relative to itself: 0 is the transform whose TryConcatenate is running,
// -1 the transform immediately before it and +1 the one immediately after.
// It then proposes a replacement with one of the Replace methods.
//
// A Joiner may know only a fragment of the complete chain, so a false return
// from Transform does not mean that no neighbor exists at all.
type Joiner struct {
	// steps may contain non-expanded ConcatenatedTransform instances.
	// Those are hidden by Transform but kept in the list so that the
	// original pair instances can be reused by reassemble.
	steps []Transform

	// pool collects the ConcatenatedTransform instances that were expanded
	// out of the steps list. Reusing them avoids reanalyzing chain
	// fragments that did not change.
	pool []*ConcatenatedTransform

	// replaceIndex is the index in steps of the transform whose
	// TryConcatenate is currently running.
	replaceIndex int

	// replacement, if non-nil, replaces the whole steps list.
	replacement Transform
}

// reset makes the joiner ready for the transform at a new index.
func (j *Joiner) reset(i int) {
	j.replaceIndex = i
	j.replacement = nil
}

// Transform returns the transform at the given relative index. Index 0 is
// the transform whose TryConcatenate is running; -1 and +1 are its
// neighbors. When the requested step is itself a concatenation, only the
// leaf adjacent to index 0 is returned.
func (j *Joiner) Transform(relativeIndex int) (Transform, bool) {
	i := j.replaceIndex + relativeIndex
	if i < 0 || i >= len(j.steps) {
		return nil, false
	}
	direction := 0
	switch {
	case relativeIndex < 0:
		direction = -1
	case relativeIndex > 0:
		direction = +1
	}
	// Intermediate concatenated steps hide what is actually adjacent.
	for k := j.replaceIndex + direction; k != i; k += direction {
		if _, ok := j.steps[k].(*ConcatenatedTransform); ok {
			return nil, false
		}
	}
	step := j.steps[i]
	switch direction {
	case -1:
		step = lastStep(step)
	case +1:
		step = firstStep(step)
	}
	return step, true
}

// Matrix returns the homogeneous matrix of the transform at the given
// relative index if that transform is available and linear, or nil.
func (j *Joiner) Matrix(relativeIndex int) *matrix.Matrix {
	tr, ok := j.Transform(relativeIndex)
	if !ok {
		return nil
	}
	return MatrixOf(tr)
}

// Replace replaces the transform at relative index 0 together with a
// neighbor by the given transform. If firstOrLast is -1 the replacement
// stands for getTransform(-1) followed by the transform at index 0; if +1,
// for the transform at index 0 followed by getTransform(+1); if 0, only the
// transform at index 0 is replaced. It reports whether the replacement has
// been done; false typically means the range reaches outside the fragment
// known to this joiner.
func (j *Joiner) Replace(firstOrLast int, concatenation Transform) (bool, error) {
	return j.ReplaceRange(min(firstOrLast, 0), max(firstOrLast, 0), concatenation)
}

// ReplaceRange replaces the transforms at relative indexes from through to,
// both inclusive, by the given transform. The range must include 0.
func (j *Joiner) ReplaceRange(from, to int, concatenation Transform) (bool, error) {
	if from > 0 || to < 0 {
		return false, fmt.Errorf("geotransform: replacement range [%d, %d] does not include 0", from, to)
	}
	if j.replacement != nil {
		return false, nil
	}
	from += j.replaceIndex
	to += j.replaceIndex
	count := len(j.steps)
	if from < 0 || to >= count {
		return false, nil
	}
	for i := from + 1; i < to; i++ {
		if i == j.replaceIndex {
			continue
		}
		// Concatenated steps elsewhere than at the extremities would be
		// partially replaced, which is not supported.
		if _, ok := j.steps[i].(*ConcatenatedTransform); ok {
			return false, nil
		}
	}
	var err error
	// When a neighbor is a concatenation, only its leaf adjacent to index 0
	// is being replaced; rebuild that neighbor around the replacement.
	if from < j.replaceIndex {
		if concatenation, err = j.replaceStep(j.steps[from], concatenation, true); err != nil {
			return false, err
		}
	}
	if to > j.replaceIndex {
		if concatenation, err = j.replaceStep(j.steps[to], concatenation, false); err != nil {
			return false, err
		}
	}
	for i := from - 1; i >= 0; i-- {
		if concatenation, err = j.concatenate(j.steps[i], concatenation); err != nil {
			return false, err
		}
	}
	for i := to + 1; i < count; i++ {
		if concatenation, err = j.concatenate(concatenation, j.steps[i]); err != nil {
			return false, err
		}
	}
	j.replacement = concatenation
	return true, nil
}

// replaceStep substitutes concatenation for the first (last=false) or last
// (last=true) leaf of a potentially concatenated step.
func (j *Joiner) replaceStep(step, concatenation Transform, last bool) (Transform, error) {
	c, ok := step.(*ConcatenatedTransform)
	if !ok {
		return concatenation, nil
	}
	tr1, tr2 := c.step1, c.step2
	var err error
	if last {
		tr2, err = j.replaceStep(tr2, concatenation, last)
	} else {
		tr1, err = j.replaceStep(tr1, concatenation, last)
	}
	if err != nil {
		return nil, err
	}
	return j.concatenate(tr1, tr2)
}

// ReplaceRoundtrip tries to replace a forward → middle → inverse chain by a
// new transform. The middle argument is the relative index (-1 or +1) of the
// potential middle step; the forward and inverse steps are then the
// transform at relative index 0 and the one at relative index 2·middle.
// When those two steps really are inverses of each other, mapper receives
// the middle transform and returns the replacement for the three steps, or
// nil when no replacement is possible.
func (j *Joiner) ReplaceRoundtrip(middle int, mapper func(Transform) Transform) (bool, error) {
	if middle != 1 && middle != -1 {
		return false, nil
	}
	indexOfInverse := middle * 2
	inverse, ok := j.Transform(indexOfInverse)
	if !ok || !isInverseEqual(j.steps[j.replaceIndex], inverse) {
		return false, nil
	}
	mid, ok := j.Transform(middle)
	if !ok {
		return false, nil
	}
	concatenation := mapper(mid)
	if concatenation == nil {
		return false, nil
	}
	return j.Replace(indexOfInverse, concatenation)
}

// RemoveUnusedDimensions checks whether the linear neighbor at the given
// relative index ignores the dimension range [lower, upper): for a negative
// index, the neighbor must produce only zeros in those rows; for a positive
// index, it must ignore those columns. When that holds, reduce is called
// with the reduced dimension count and must return a lower-dimensional
// equivalent of the transform at index 0, or nil to decline. The reduced
// transform concatenated with the shrunk neighbor matrix then replaces both
// steps.
func (j *Joiner) RemoveUnusedDimensions(relativeIndex, lower, upper int, reduce func(dim int) Transform) (bool, error) {
	m := j.Matrix(relativeIndex)
	if m == nil || relativeIndex == 0 {
		return false, nil
	}
	before := relativeIndex < 0
	for dimension := lower; dimension < upper; dimension++ {
		if before {
			for i := m.Cols() - 1; i >= 0; i-- {
				if m.At(dimension, i) != 0 {
					return false, nil
				}
			}
		} else {
			for r := m.Rows() - 1; r >= 0; r-- {
				if m.At(r, dimension) != 0 {
					return false, nil
				}
			}
		}
	}
	var dimension int
	if before {
		dimension = m.Rows() - (upper - lower) - 1
	} else {
		dimension = m.Cols() - (upper - lower) - 1
	}
	reduced := reduce(dimension)
	if reduced == nil {
		return false, nil
	}
	if before {
		m = m.RemoveRows(lower, upper)
	} else {
		m = m.RemoveColumns(lower, upper)
	}
	linear, err := FromMatrix(m)
	if err != nil {
		return false, err
	}
	var repl Transform
	if before {
		repl, err = j.concatenate(linear, reduced)
	} else {
		repl, err = j.concatenate(reduced, linear)
	}
	if err != nil {
		return false, err
	}
	return j.Replace(relativeIndex, repl)
}

// ReplacePassThrough tries to simplify the chain when some coordinates are
// passed through the transform at index 0, i.e. copied to the output with no
// change and without being used in any calculation. For such coordinates it
// does not matter whether a linear operation touching only them runs before
// or after the transform, so rows of the neighboring matrices can be moved
// to whichever side brings one of them closer to the identity.
//
// Map keys are the indexes of pass-through coordinates in source tuples and
// map values their indexes in target tuples; for transforms that do not
// reorder coordinates the keys and values are the same numbers.
func (j *Joiner) ReplacePassThrough(dimensions map[int]int) (bool, error) {
	before := j.Matrix(-1)
	after := j.Matrix(+1)
	if before == nil || !before.IsAffine() || after == nil || !after.IsAffine() {
		return false, nil
	}
	tr := j.steps[j.replaceIndex]
	// The lower-right matrix corner is not a coordinate dimension, but in an
	// affine matrix the last row is always [0 … 0 1], so the 1 value can be
	// seen as passing through too.
	sourceToTarget := make(map[int]int, len(dimensions)+1)
	for k, v := range dimensions {
		sourceToTarget[k] = v
	}
	sourceToTarget[tr.SourceDimensions()] = tr.TargetDimensions()
	targetToSource := make(map[int]int, len(sourceToTarget))
	for _, source := range sortedKeys(sourceToTarget) {
		target := sourceToTarget[source]
		if _, dup := targetToSource[target]; dup {
			return false, fmt.Errorf("geotransform: duplicated pass-through dimension %d", target)
		}
		targetToSource[target] = source
		if source >= before.Cols() {
			delete(sourceToTarget, source)
		}
	}
	// Keep only the dimensions whose rows can be moved, then choose which
	// matrix to partially simplify in order to get one as close as possible
	// to the identity. If there is no clear gain, conservatively do nothing:
	// otherwise each call could revert what the previous one did.
	typeIfSimplifyBefore := removeInvalidPassThrough(sourceToTarget, before, true)
	typeIfSimplifyAfter := removeInvalidPassThrough(targetToSource, after, false)
	typeOfSimplestMatrix := min(typeIfSimplifyBefore>>16, typeIfSimplifyAfter>>16)
	typeIfSimplifyBefore &= 0xffff
	typeIfSimplifyAfter &= 0xffff
	if min(typeIfSimplifyBefore, typeIfSimplifyAfter) >= typeOfSimplestMatrix {
		return false, nil
	}
	var moveFromBeforeToAfter bool
	if typeIfSimplifyBefore != typeIfSimplifyAfter {
		moveFromBeforeToAfter = typeIfSimplifyBefore < typeIfSimplifyAfter
	} else {
		// No winner: move from the largest matrix to the smallest, on the
		// assumption that eliminating the largest one later is the bigger
		// gain.
		moveFromBeforeToAfter = after.Rows()*after.Cols() < before.Rows()*before.Cols()
	}
	dims := targetToSource
	if moveFromBeforeToAfter {
		dims = sourceToTarget
	}
	if len(dims) == 0 {
		return false, nil
	}
	var simplified *matrix.Matrix
	var dim int
	if moveFromBeforeToAfter {
		simplified = before.Clone()
		dim = after.Cols()
	} else {
		simplified = after.Clone()
		dim = before.Rows()
	}
	moved := matrix.Identity(dim)
	keys := sortedKeys(dims)
	for _, srcRow := range keys {
		tgtRow := dims[srcRow]
		moved.Set(tgtRow, tgtRow, 0)
		// A matrix that drops dimensions has fewer rows than the transform
		// before it has outputs; a pass-through row above the matrix bounds
		// is valid but has nothing to move.
		if !moveFromBeforeToAfter && srcRow >= simplified.Rows() {
			continue
		}
		for _, srcCol := range keys {
			moved.Set(tgtRow, dims[srcCol], simplified.At(srcRow, srcCol))
		}
		// Reset the row only after all its elements have been copied.
		for i := simplified.Cols() - 1; i >= 0; i-- {
			v := 0.0
			if i == srcRow {
				v = 1
			}
			simplified.Set(srcRow, i, v)
		}
	}
	// The matrix multiplication must be done here rather than left to
	// Concatenate, which would re-enter this method endlessly.
	var err error
	if moveFromBeforeToAfter {
		before = simplified
		after, err = matrix.Multiply(after, moved)
	} else {
		after = simplified
		before, err = matrix.Multiply(moved, before)
	}
	if err != nil {
		return false, err
	}
	beforeTr, err := FromMatrix(before)
	if err != nil {
		return false, err
	}
	afterTr, err := FromMatrix(after)
	if err != nil {
		return false, err
	}
	tail, err := j.concatenate(tr, afterTr)
	if err != nil {
		return false, err
	}
	full, err := j.concatenate(beforeTr, tail)
	if err != nil {
		return false, err
	}
	return j.ReplaceRange(-1, +1, full)
}

// removeInvalidPassThrough removes from dimensions every pass-through row
// that depends on a dimension which is not itself pass-through, then returns
// an arbitrary measure of how far the matrix is from the identity, both
// before the move (highest 16 bits) and after it (lowest 16 bits). Lower is
// better.
func removeInvalidPassThrough(dimensions map[int]int, m *matrix.Matrix, moveFromBeforeToAfter bool) int {
	// Removing a dimension may invalidate previously accepted ones,
	// so iterate until stable.
	for again := true; again; {
		again = false
		for _, srcRow := range sortedKeys(dimensions) {
			if !moveFromBeforeToAfter && srcRow >= m.Rows() {
				// The matrix after the transform may drop dimensions; any
				// source row above its bounds is still valid pass-through
				// because only the column is required to exist.
				continue
			}
			for srcCol := m.Cols() - 1; srcCol >= 0; srcCol-- {
				value := m.At(srcRow, srcCol)
				if _, pass := dimensions[srcCol]; !(value == 0 || math.IsNaN(value) || pass) {
					delete(dimensions, srcRow)
					again = true
					break
				}
			}
		}
	}
	// Classify the matrix: 0 identity, 1 axis-order change, 2 translation,
	// 3 translation with axis-order change, 4 scale, ≥5 generic.
	typeOfOriginal := 0
	typeOfSimplified := 0
	translationColumn := m.Cols() - 1
	for row := m.Rows() - 1; row >= 0; row-- {
		for i := translationColumn; i >= 0; i-- {
			element := m.At(row, i)
			expected := 0.0
			if i == row {
				expected = 1
			}
			if element == expected {
				continue
			}
			var t int
			switch {
			case i == translationColumn:
				t = 2
			case element == 0 || element == 1:
				t = 1
			case i == row:
				t = 4
			default:
				t = 5
			}
			typeOfOriginal |= t
			if _, pass := dimensions[row]; !pass {
				typeOfSimplified |= t
			}
		}
	}
	return typeOfOriginal<<16 | typeOfSimplified
}

// concatenate composes two transforms, reusing an existing pair from the
// pool when the caller changed nothing.
func (j *Joiner) concatenate(tr1, tr2 Transform) (Transform, error) {
	for _, c := range j.pool {
		if c.step1 == tr1 && c.step2 == tr2 {
			return c, nil
		}
	}
	return Concatenate(tr1, tr2)
}

// reassemble restores the original ConcatenatedTransform instances in the
// list of steps, so that unchanged fragments keep their identity.
func (j *Joiner) reassemble() {
	for again := true; again; {
		again = false
		var tr2 Transform
		for i := len(j.steps) - 1; i >= 0; i-- {
			tr1 := j.steps[i]
			for _, c := range j.pool {
				if c.step1 == tr1 && c.step2 == tr2 {
					j.steps = append(j.steps[:i+1], j.steps[i+2:]...)
					j.steps[i] = c
					tr1 = c
					again = true
					break
				}
			}
			tr2 = tr1
		}
	}
}

// expandLast replaces the last element of the steps list, while it is a
// concatenation, by its two members, descending into step1 (first=true) or
// step2 (first=false). The expanded pairs are remembered in the pool for
// reuse by reassemble.
func (j *Joiner) expandLast(first bool) {
	i := len(j.steps) - 1
	tr := j.steps[i]
	for {
		c, ok := tr.(*ConcatenatedTransform)
		if !ok {
			return
		}
		j.pool = append(j.pool, c)
		j.steps[i] = c.step1
		j.steps = append(j.steps, nil)
		copy(j.steps[i+2:], j.steps[i+1:])
		j.steps[i+1] = c.step2
		if first {
			tr = c.step1
		} else {
			tr = c.step2
			i++
		}
	}
}

// simplify applies the generic simplification rules on the sequence of
// steps, in place, until a fixed point: identity steps are removed, pairs of
// mutually inverse consecutive steps cancel out, and consecutive linear
// steps are folded into a single matrix product. It reports whether anything
// other than identity removal changed.
func (j *Joiner) simplify() (bool, error) {
	changed := false
	for again := true; again; {
		again = false
		n := 0
		for _, step := range j.steps {
			if !step.IsIdentity() {
				j.steps[n] = step
				n++
			}
		}
		j.steps = j.steps[:n]
		// Cancel inverse pairs before folding matrices: the matrices of an
		// exact inverse pair may contain NaN values that a product would
		// propagate.
		for i := len(j.steps) - 2; i >= 0; i-- {
			if i+1 >= len(j.steps) {
				continue
			}
			tr1, tr2 := j.steps[i], j.steps[i+1]
			if isInverseEqual(tr1, tr2) || isInverseEqual(tr2, tr1) {
				j.steps = append(j.steps[:i], j.steps[i+2:]...)
				again = true
				i--
			}
		}
		for i := len(j.steps) - 2; i >= 0; i-- {
			if i+1 >= len(j.steps) {
				continue
			}
			folded, err := j.multiply(j.steps[i], j.steps[i+1])
			if err != nil {
				return changed, err
			}
			if folded != nil {
				j.steps[i] = folded
				j.steps = append(j.steps[:i+1], j.steps[i+2:]...)
				again = true
			}
		}
		changed = changed || again
	}
	return changed, nil
}

// multiply folds two linear transforms into one whose matrix is the product
// of their matrices, or returns nil if either transform is not linear.
//
// Rounding errors in the product are deliberately not "fixed": datum shifts
// can be of the same order of magnitude as any plausible tolerance
// threshold. The double-double arithmetic of the matrix package is what
// keeps the product exact at float64 accuracy.
func (j *Joiner) multiply(tr1, tr2 Transform) (Transform, error) {
	m1 := MatrixOf(tr1)
	if m1 == nil {
		return nil, nil
	}
	m2 := MatrixOf(tr2)
	if m2 == nil {
		return nil, nil
	}
	product, err := matrix.Multiply(m2, m1)
	if err != nil {
		return nil, err
	}
	if product.IsIdentity(identityTolerance) {
		return Identity(product.Rows() - 1), nil
	}
	folded, err := FromMatrix(product)
	if err != nil {
		return nil, err
	}
	if affine, ok := folded.(*AffineTransform); ok && affine.inv == nil {
		// Computing the inverse now as the product of the factors' inverses
		// preserves information that inverting the product would lose when
		// the matrices are not square: the inverse of a transform dropping a
		// dimension may be a transform setting that dimension to a constant,
		// with real values where a plain matrix inversion would put NaN.
		if inv := j.multiplyInverses(tr1, tr2); inv != nil {
			affine.setInverse(inv)
		}
	}
	return folded, nil
}

func (j *Joiner) multiplyInverses(tr1, tr2 Transform) Transform {
	inv1, err := tr1.Inverse()
	if err != nil {
		recoverableError("simplify", err)
		return nil
	}
	inv2, err := tr2.Inverse()
	if err != nil {
		recoverableError("simplify", err)
		return nil
	}
	im1, im2 := MatrixOf(inv1), MatrixOf(inv2)
	if im1 == nil || im2 == nil {
		return nil
	}
	product, err := matrix.Multiply(im1, im2)
	if err != nil {
		recoverableError("simplify", err)
		return nil
	}
	inv, err := FromMatrix(product)
	if err != nil {
		recoverableError("simplify", err)
		return nil
	}
	return inv
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
