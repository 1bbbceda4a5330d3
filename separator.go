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
	"sort"

	"github.com/spatialmodel/geotransform/matrix"
)

// Separator extracts a sub-transform of a transform, keeping only a subset
// of the source and/or target dimensions. A typical use is extracting the
// horizontal component of a transform operating on (longitude, latitude,
// height) coordinates.
type Separator struct {
	transform        Transform
	sourceDimensions []int
	targetDimensions []int
	sourceExpandable bool
}

// NewSeparator returns a separator for the given transform. Dimensions to
// keep are specified with the Add methods, then Separate computes the
// reduced transform.
func NewSeparator(tr Transform) *Separator {
	return &Separator{transform: tr}
}

// Clear resets the separator to the state it had after construction, so
// that the same transform can be separated into more than one part.
func (s *Separator) Clear() {
	s.sourceDimensions = nil
	s.targetDimensions = nil
	s.sourceExpandable = false
}

// AddSourceDimensions adds input dimensions to keep in the separated
// transform. The values must be in strictly increasing order, greater than
// all previously added values, and smaller than the transform's number of
// source dimensions.
func (s *Separator) AddSourceDimensions(dimensions ...int) error {
	seq, err := addDimensions(s.sourceDimensions, dimensions, s.transform.SourceDimensions())
	if err != nil {
		return err
	}
	s.sourceDimensions = seq
	return nil
}

// AddSourceDimensionRange adds the input dimensions from lower inclusive to
// upper exclusive.
func (s *Separator) AddSourceDimensionRange(lower, upper int) error {
	seq, err := addDimensionRange(s.sourceDimensions, lower, upper, s.transform.SourceDimensions())
	if err != nil {
		return err
	}
	s.sourceDimensions = seq
	return nil
}

// AddTargetDimensions adds output dimensions to keep in the separated
// transform, under the same ordering constraints as AddSourceDimensions.
func (s *Separator) AddTargetDimensions(dimensions ...int) error {
	seq, err := addDimensions(s.targetDimensions, dimensions, s.transform.TargetDimensions())
	if err != nil {
		return err
	}
	s.targetDimensions = seq
	return nil
}

// AddTargetDimensionRange adds the output dimensions from lower inclusive to
// upper exclusive.
func (s *Separator) AddTargetDimensionRange(lower, upper int) error {
	seq, err := addDimensionRange(s.targetDimensions, lower, upper, s.transform.TargetDimensions())
	if err != nil {
		return err
	}
	s.targetDimensions = seq
	return nil
}

// SourceDimensions returns the input dimensions to keep, either as specified
// by the Add methods or as retained by Separate when none were specified.
func (s *Separator) SourceDimensions() ([]int, error) {
	if s.sourceDimensions == nil {
		return nil, fmt.Errorf("geotransform: source dimensions have not been specified nor inferred")
	}
	return append([]int(nil), s.sourceDimensions...), nil
}

// TargetDimensions returns the output dimensions to keep, either as
// specified by the Add methods or as inferred by Separate.
func (s *Separator) TargetDimensions() ([]int, error) {
	if s.targetDimensions == nil {
		return nil, fmt.Errorf("geotransform: target dimensions have not been specified nor inferred")
	}
	return append([]int(nil), s.targetDimensions...), nil
}

// IsSourceExpandable returns whether Separate may add source dimensions
// beyond the specified ones.
func (s *Separator) IsSourceExpandable() bool { return s.sourceExpandable }

// SetSourceExpandable sets whether Separate is allowed to expand the list of
// source dimensions. The default is false, in which case Separate returns an
// error when some requested target dimensions cannot be computed without
// inputs outside the specified source dimensions.
func (s *Separator) SetSourceExpandable(enabled bool) { s.sourceExpandable = enabled }

// Separate returns a transform using only the specified source dimensions
// and producing only the specified target dimensions. When only sources were
// specified the targets are inferred, and conversely; when neither were
// specified, the result keeps all target dimensions but drops the source
// dimensions that none of them use. The dimensions actually used can be
// queried with SourceDimensions and TargetDimensions afterward.
func (s *Separator) Separate() (Transform, error) {
	tr := s.transform
	specifiedSources := s.sourceDimensions
	if s.sourceExpandable {
		s.sourceDimensions = nil // Take all sources for now, filter later.
	}
	var err error
	if s.sourceDimensions == nil || containsAll(s.sourceDimensions, 0, tr.SourceDimensions()) {
		if s.targetDimensions != nil && !containsAll(s.targetDimensions, 0, tr.TargetDimensions()) {
			if tr, err = s.filterTargetDimensions(tr, s.targetDimensions); err != nil {
				return nil, err
			}
		}
		if s.sourceDimensions == nil {
			s.sourceDimensions = rangeInts(0, s.transform.SourceDimensions())
		}
		if s.targetDimensions == nil {
			s.targetDimensions = rangeInts(0, s.transform.TargetDimensions())
		}
	} else {
		// Source dimensions are more difficult to process than target
		// dimensions: filtering the sources determines which targets remain
		// computable, then any explicitly requested targets are selected
		// among those.
		requested := s.targetDimensions
		if tr, err = s.filterSourceDimensions(tr, s.sourceDimensions); err != nil {
			return nil, err
		}
		if requested != nil {
			inferred := s.targetDimensions
			s.targetDimensions = requested
			subDimensions := make([]int, len(requested))
			for i, r := range requested {
				k := sort.SearchInts(inferred, r)
				if k >= len(inferred) || inferred[k] != r {
					return nil, nonSeparable(
						"target dimension %d depends on a source dimension that is not retained", r)
				}
				subDimensions[i] = k
			}
			if tr, err = s.filterTargetDimensions(tr, subDimensions); err != nil {
				return nil, err
			}
		}
	}
	side, expected, actual := "source", len(s.sourceDimensions), tr.SourceDimensions()
	if actual == expected {
		side, expected, actual = "target", len(s.targetDimensions), tr.TargetDimensions()
		if actual == expected {
			if specifiedSources == nil || s.sourceExpandable {
				tr = s.removeUnusedSourceDimensions(tr, specifiedSources)
			}
			return tr, nil
		}
	}
	return nil, nonSeparable("separated transform has %d %s dimensions, expected %d", actual, side, expected)
}

// filterSourceDimensions returns a transform for the same mathematic as step
// but expecting only the given source dimensions as inputs. On return,
// s.targetDimensions holds the target dimensions of step that the returned
// transform still produces, in strictly increasing order. The recursion for
// concatenated and pass-through steps relies on that contract.
func (s *Separator) filterSourceDimensions(step Transform, dimensions []int) (Transform, error) {
	if len(dimensions) == 0 {
		return Identity(0), nil
	}
	numSrc := step.SourceDimensions()
	numTgt := step.TargetDimensions()
	lower := dimensions[0]
	upper := dimensions[len(dimensions)-1] + 1
	if lower == 0 && upper == numSrc && len(dimensions) == numSrc {
		s.targetDimensions = rangeInts(0, numTgt)
		return step, nil
	}
	if step.IsIdentity() {
		s.targetDimensions = append([]int(nil), dimensions...)
		return Identity(len(dimensions)), nil
	}
	if c, ok := step.(*ConcatenatedTransform); ok {
		step1, err := s.filterSourceDimensions(c.step1, dimensions)
		if err != nil {
			return nil, err
		}
		step2, err := s.filterSourceDimensions(c.step2, s.targetDimensions)
		if err != nil {
			return nil, err
		}
		// Keep the targetDimensions computed by the last step.
		return Concatenate(step1, step2)
	}
	if p, ok := step.(*PassThroughTransform); ok {
		numSubSrc := p.sub.SourceDimensions()
		numNewDim := p.sub.TargetDimensions() - numSubSrc
		subLower := p.firstAffected
		subUpper := subLower + numSubSrc
		subDimensions := make([]int, 0, len(dimensions))
		s.targetDimensions = nil
		for _, dim := range dimensions {
			if dim >= subLower {
				if dim < subUpper {
					subDimensions = append(subDimensions, dim-subLower)
					continue
				}
				// A trailing dimension, renumbered for the change of
				// dimension count across the sub-transform.
				dim += numNewDim
			}
			s.targetDimensions = insertDimension(s.targetDimensions, dim)
		}
		// With no source dimension in the sub-transform, only leading and
		// trailing dimensions remain, which pass through unchanged.
		if len(subDimensions) == 0 {
			return Identity(len(dimensions)), nil
		}
		saved := s.targetDimensions
		subTransform, err := s.filterSourceDimensions(p.sub, subDimensions)
		if err != nil {
			return nil, err
		}
		target := saved
		for _, dim := range s.targetDimensions {
			target = insertDimension(target, dim+subLower)
		}
		s.targetDimensions = target
		// The pass-through reconstruction requires the kept leading and
		// trailing dimensions to be consecutive runs. Otherwise fall through
		// to the matrix case, which will fail with a clear error.
		if containsAll(dimensions, lower, subLower) && containsAll(dimensions, subUpper, upper) {
			return PassThrough(subDimensions[0]+subLower-lower, subTransform, max(0, upper-subUpper))
		}
	}
	// For a linear step, keep the target dimensions that depend only on
	// retained source dimensions: a row with a nonzero coefficient in a
	// discarded column is dropped entirely.
	if m := MatrixOf(step); m != nil {
		s.targetDimensions = nil
		var rows []int
		lastRowAccepted := false
	reduce:
		for r := 0; r <= numTgt; r++ {
			filtered := 0
			for i := 0; i < numSrc; i++ {
				if filtered < len(dimensions) && dimensions[filtered] == i {
					filtered++
				} else if m.At(r, i) != 0 {
					continue reduce
				}
			}
			rows = append(rows, r)
			// The homogeneous last row is not a real dimension but must
			// still be accepted for the matrix to remain affine.
			lastRowAccepted = r == numTgt
			if !lastRowAccepted {
				s.targetDimensions = insertDimension(s.targetDimensions, r)
			}
		}
		if lastRowAccepted {
			if len(s.targetDimensions) == 0 {
				return Identity(0), nil
			}
			out := matrix.New(len(rows), len(dimensions)+1)
			for outRow, r := range rows {
				for c, i := range dimensions {
					out.SetExact(outRow, c, m.AtExact(r, i))
				}
				out.SetExact(outRow, len(dimensions), m.AtExact(r, numSrc))
			}
			return FromMatrix(out)
		}
	}
	return nil, nonSeparable("%s cannot be separated on source dimensions %v", displayName(step), dimensions)
}

// filterTargetDimensions returns a transform for the same mathematic as step
// but producing only the given target dimensions, for unchanged inputs. The
// result usually loses information and is therefore non-invertible.
func (s *Separator) filterTargetDimensions(step Transform, dimensions []int) (Transform, error) {
	numSrc := step.SourceDimensions()
	numTgt := step.TargetDimensions()
	lower := dimensions[0]
	upper := dimensions[len(dimensions)-1]
	if lower == 0 && upper == numTgt-1 && len(dimensions) == numTgt {
		return step, nil
	}
	// A pass-through step whose sub-transform outputs are all discarded
	// degenerates to the identity, except for the dimension count.
	removeAt := 0
	numRemoved := 0
	if p, ok := step.(*PassThroughTransform); ok {
		subLower := p.firstAffected
		numSubTgt := p.sub.TargetDimensions()
		if !containsAny(dimensions, subLower, subLower+numSubTgt) {
			numTgt = numSrc
			step = Identity(numTgt)
			removeAt = subLower
			numRemoved = numSubTgt - p.sub.SourceDimensions()
		}
	}
	// The filter is a selection matrix with a single 1 per row, in the
	// column of the target dimension to keep.
	m := matrix.New(len(dimensions)+1, numTgt+1)
	for r, i := range dimensions {
		if i >= removeAt {
			i -= numRemoved
		}
		m.Set(r, i, 1)
	}
	m.Set(len(dimensions), numTgt, 1)
	filter, err := FromMatrix(m)
	if err != nil {
		return nil, err
	}
	return Concatenate(step, filter)
}

// removeUnusedSourceDimensions drops the source dimensions that no target
// dimension uses, keeping the dimensions listed in required even when
// unused. It operates on the head of the transform chain and updates
// s.sourceDimensions on success.
func (s *Separator) removeUnusedSourceDimensions(head Transform, required []int) Transform {
	if m := MatrixOf(head); m != nil {
		numRows := m.Rows()
		dimension := m.Cols() - 1
		retained := make([]int, 0, dimension)
		for i := 0; i < dimension; i++ {
			if required != nil && containsDimension(required, i) {
				retained = append(retained, i)
				continue
			}
			for r := 0; r < numRows; r++ {
				if m.At(r, i) != 0 {
					retained = append(retained, i)
					break
				}
			}
		}
		if len(retained) == dimension {
			return head
		}
		// Remove the excluded columns in consecutive runs, from the right so
		// the indexes of the remaining runs stay valid.
		upper := dimension
		for i := len(retained) - 1; i >= -1; i-- {
			keep := -1
			if i >= 0 {
				keep = retained[i]
			}
			if keep+1 != upper {
				m = m.RemoveColumns(keep+1, upper)
			}
			upper = keep
		}
		for i, v := range retained {
			retained[i] = s.sourceDimensions[v]
		}
		tr, err := FromMatrix(m)
		if err != nil {
			recoverableError("source dimension removal", err)
			return head
		}
		s.sourceDimensions = retained
		return tr
	}
	if c, ok := head.(*ConcatenatedTransform); ok {
		reduced := s.removeUnusedSourceDimensions(c.step1, required)
		if reduced != c.step1 {
			tr, err := Concatenate(reduced, c.step2)
			if err != nil {
				recoverableError("source dimension removal", err)
				return head
			}
			return tr
		}
	}
	return head
}

// insertDimension inserts the dimension in the sorted sequence, keeping it
// sorted and duplicate-free.
func insertDimension(sequence []int, dimension int) []int {
	i := sort.SearchInts(sequence, dimension)
	if i < len(sequence) && sequence[i] == dimension {
		return sequence
	}
	sequence = append(sequence, 0)
	copy(sequence[i+1:], sequence[i:])
	sequence[i] = dimension
	return sequence
}

// addDimensions appends user-supplied dimensions to the sequence, verifying
// that they are strictly increasing, non-negative and below max.
func addDimensions(sequence, dimensions []int, max int) ([]int, error) {
	previous := -1
	if len(sequence) != 0 {
		previous = sequence[len(sequence)-1]
	}
	for i, v := range dimensions {
		if v <= previous || v >= max {
			return nil, fmt.Errorf("geotransform: dimensions[%d] = %d is out of [%d, %d] bounds",
				i, v, previous+1, max-1)
		}
		previous = v
	}
	return append(sequence, dimensions...), nil
}

// addDimensionRange appends the dimensions from lower inclusive to upper
// exclusive to the sequence.
func addDimensionRange(sequence []int, lower, upper, max int) ([]int, error) {
	if lower < 0 || lower > upper {
		return nil, fmt.Errorf("geotransform: invalid dimension range [%d, %d)", lower, upper)
	}
	low := 0
	if len(sequence) != 0 {
		low = sequence[len(sequence)-1] + 1
	}
	if upper > max || lower < low {
		return nil, fmt.Errorf("geotransform: dimension range [%d, %d) is out of [%d, %d) bounds",
			lower, upper, low, max)
	}
	for i := lower; i < upper; i++ {
		sequence = append(sequence, i)
	}
	return sequence, nil
}

func rangeInts(lower, upper int) []int {
	r := make([]int, upper-lower)
	for i := range r {
		r[i] = lower + i
	}
	return r
}

// containsAll reports whether the sorted sequence contains every index from
// lower inclusive to upper exclusive.
func containsAll(sequence []int, lower, upper int) bool {
	if lower >= upper {
		return true
	}
	i := sort.SearchInts(sequence, lower)
	if i >= len(sequence) || sequence[i] != lower {
		return false
	}
	i += upper - 1 - lower
	return i < len(sequence) && sequence[i] == upper-1
}

// containsAny reports whether the sorted sequence contains at least one
// index from lower inclusive to upper exclusive.
func containsAny(sequence []int, lower, upper int) bool {
	if upper == lower {
		return true
	}
	i := sort.SearchInts(sequence, lower)
	return i < len(sequence) && sequence[i] < upper
}

func containsDimension(sequence []int, dimension int) bool {
	i := sort.SearchInts(sequence, dimension)
	return i < len(sequence) && sequence[i] == dimension
}
