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
	"errors"
	"sync"

	"github.com/spatialmodel/geotransform/matrix"
)

// ConcatenatedTransform applies step1 then step2. Instances are created by
// Concatenate, which flattens, simplifies and optimizes the chain before
// falling back to this pairwise composition.
type ConcatenatedTransform struct {
	step1, step2 Transform

	// direct is true when the source, intermediate and target dimensions
	// are all equal, allowing bulk transforms to run in place in the
	// destination array without an intermediate buffer.
	direct bool

	mu  sync.Mutex
	inv Transform
}

// Concatenate returns a single transform equivalent to applying the given
// transforms in order. The result is simplified: identity steps are removed,
// consecutive steps that are inverses of each other cancel out, consecutive
// linear steps are folded into one matrix, and every step implementing
// Joinable is given a chance to substitute an optimized replacement for
// itself and its neighbors.
func Concatenate(transforms ...Transform) (Transform, error) {
	if len(transforms) == 0 {
		return nil, errors.New("geotransform: no transforms to concatenate")
	}
	if len(transforms) == 1 {
		return transforms[0], nil
	}
	// Even steps that will be dropped as identities must chain correctly.
	for i := 1; i < len(transforms); i++ {
		tr1, tr2 := transforms[i-1], transforms[i]
		if tr1.TargetDimensions() != tr2.SourceDimensions() {
			return nil, &MismatchedDimensionsError{
				Name1: displayName(tr1), Dim1: tr1.TargetDimensions(),
				Name2: displayName(tr2), Dim2: tr2.SourceDimensions(),
			}
		}
	}
	// Build a semi-shallow list of steps by expanding nested concatenations
	// only at the junctions between consecutive elements. Steps in the
	// middle of an already-concatenated chain were simplified when that
	// chain was built and do not need to be expanded again.
	j := &Joiner{}
	for {
		for _, tr := range transforms {
			if tr.IsIdentity() {
				continue
			}
			if len(j.steps) == 0 {
				j.steps = append(j.steps, tr)
			} else {
				j.expandLast(false) // Expose the last leaf of the previous step.
				j.steps = append(j.steps, tr)
				j.expandLast(true) // Expose the first leaf of this step.
			}
		}
		changed, err := j.simplify()
		if err != nil {
			return nil, err
		}
		switch len(j.steps) {
		case 0:
			return Identity(transforms[0].SourceDimensions()), nil
		case 1:
			return j.steps[0], nil
		}
		if !changed {
			break
		}
		// The simplification may have created new junctions worth expanding.
		transforms = append(transforms[:0:0], j.steps...)
		j.steps = j.steps[:0]
		j.pool = j.pool[:0]
	}
	// Give each remaining step a chance to provide an optimized replacement
	// for itself and its neighbors. When several steps propose one, keep the
	// shortest resulting chain.
	var concatenated Transform
	for i := len(j.steps) - 1; i >= 0; i-- {
		step, ok := j.steps[i].(Joinable)
		if !ok {
			continue
		}
		j.reset(i)
		if err := step.TryConcatenate(j); err != nil {
			return nil, err
		}
		if j.replacement != nil {
			if concatenated == nil || stepCount(j.replacement) < stepCount(concatenated) {
				concatenated = j.replacement
			}
		}
	}
	if concatenated == nil {
		j.reassemble()
		concatenated = j.steps[0]
		for i := 1; i < len(j.steps); i++ {
			concatenated = newConcatenatedPair(concatenated, j.steps[i])
		}
	}
	assertValid(concatenated)
	return concatenated, nil
}

// newConcatenatedPair builds the pairwise composition without any
// simplification. The caller is responsible for dimension compatibility.
func newConcatenatedPair(tr1, tr2 Transform) *ConcatenatedTransform {
	mid := tr1.TargetDimensions()
	return &ConcatenatedTransform{
		step1:  tr1,
		step2:  tr2,
		direct: tr1.SourceDimensions() == mid && tr2.TargetDimensions() == mid,
	}
}

func (c *ConcatenatedTransform) SourceDimensions() int { return c.step1.SourceDimensions() }
func (c *ConcatenatedTransform) TargetDimensions() int { return c.step2.TargetDimensions() }

// IsIdentity returns false: Concatenate never produces a ConcatenatedTransform
// whose steps cancel out.
func (c *ConcatenatedTransform) IsIdentity() bool { return false }

func (c *ConcatenatedTransform) Transform(src, dst []float64) error {
	mid := make([]float64, c.step1.TargetDimensions())
	if err := c.step1.Transform(src, mid); err != nil {
		return err
	}
	return c.step2.Transform(mid, dst)
}

func (c *ConcatenatedTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	if c.direct {
		// All dimensions are equal: run step1 into the destination, then
		// step2 in place. Each step handles its own aliasing.
		if err := c.step1.TransformArray(src, srcOff, dst, dstOff, numPts); err != nil {
			return err
		}
		return c.step2.TransformArray(dst, dstOff, dst, dstOff, numPts)
	}
	mid := c.step1.TargetDimensions()
	buf := make([]float64, numPts*mid)
	if err := c.step1.TransformArray(src, srcOff, buf, 0, numPts); err != nil {
		return err
	}
	return c.step2.TransformArray(buf, 0, dst, dstOff, numPts)
}

func (c *ConcatenatedTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(c, src, srcOff, dst, dstOff, numPts)
}

// Derivative applies the chain rule: the Jacobian of step2 evaluated at the
// intermediate point, multiplied by the Jacobian of step1 at the given point.
func (c *ConcatenatedTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	m1, err := c.step1.Derivative(point)
	if err != nil {
		return nil, err
	}
	mid := make([]float64, c.step1.TargetDimensions())
	if err := c.step1.Transform(point, mid); err != nil {
		return nil, err
	}
	m2, err := c.step2.Derivative(mid)
	if err != nil {
		return nil, err
	}
	return matrix.Multiply(m2, m1)
}

func (c *ConcatenatedTransform) Inverse() (Transform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inv != nil {
		return c.inv, nil
	}
	inv1, err := c.step1.Inverse()
	if err != nil {
		return nil, &NoninvertibleError{Name: displayName(c.step1), Err: err}
	}
	inv2, err := c.step2.Inverse()
	if err != nil {
		return nil, &NoninvertibleError{Name: displayName(c.step2), Err: err}
	}
	inv, err := Concatenate(inv2, inv1)
	if err != nil {
		return nil, err
	}
	if ic, ok := inv.(*ConcatenatedTransform); ok {
		ic.inv = c
	}
	c.inv = inv
	return inv, nil
}

func (c *ConcatenatedTransform) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*ConcatenatedTransform)
	if !ok {
		return false
	}
	s1, s2 := Steps(c), Steps(o)
	if len(s1) != len(s2) {
		return false
	}
	for i := range s1 {
		if !s1[i].Equal(s2[i], mode) {
			return false
		}
	}
	return true
}

func (c *ConcatenatedTransform) String() string { return WKT(c) }
