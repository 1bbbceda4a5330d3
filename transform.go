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
	"reflect"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/geotransform/matrix"
)

var log = logrus.StandardLogger()

// Tolerance for considering the product of a matrix and its computed
// inverse to be the identity. Rounding errors of "fix rounding error"
// heuristics must stay well below datum shift magnitudes, which can be of
// the order of 1e-10 in normalized units.
const identityTolerance = 1e-11

// Tolerance used by approximate transform comparisons, relative to the
// magnitude of the compared matrix elements.
const comparisonTolerance = 1e-10

// ComparisonMode specifies how strictly two transforms are compared.
type ComparisonMode int

const (
	// Strict requires the same representation with exactly equal values.
	Strict ComparisonMode = iota
	// IgnoreMetadata requires the same mathematics with exactly equal
	// values, regardless of representation or naming.
	IgnoreMetadata
	// Approximate requires the same mathematics within a small
	// magnitude-relative tolerance.
	Approximate
)

// A Transform maps points of SourceDimensions coordinates to points of
// TargetDimensions coordinates. Implementations must be immutable after
// construction except for lazily computed caches, making any transform safe
// for concurrent use.
type Transform interface {
	// SourceDimensions returns the number of input coordinates.
	SourceDimensions() int

	// TargetDimensions returns the number of output coordinates.
	TargetDimensions() int

	// Transform maps a single point. src must hold SourceDimensions
	// coordinates and dst must have room for TargetDimensions
	// coordinates. src and dst may be the same slice.
	Transform(src, dst []float64) error

	// TransformArray maps numPts consecutive points, reading coordinates
	// from src starting at srcOff and writing to dst starting at dstOff.
	// src and dst may be the same slice with overlapping regions; the
	// implementation chooses an iteration direction (or buffers) so that
	// no source coordinate is overwritten before it has been read.
	// Overlap detection compares the start of the backing arrays, so
	// overlapping regions must be passed as a single slice with distinct
	// offsets, never as two slices of the same array starting at
	// different positions.
	TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error

	// TransformFloats is TransformArray for single-precision arrays.
	// Intermediate computation is still performed in float64.
	TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error

	// Derivative returns the Jacobian matrix at the given point, with
	// TargetDimensions rows and SourceDimensions columns.
	Derivative(point []float64) (*matrix.Matrix, error)

	// Inverse returns the inverse transform, or a *NoninvertibleError.
	Inverse() (Transform, error)

	// IsIdentity reports whether this transform maps every point to
	// itself.
	IsIdentity() bool

	// Equal compares this transform with another at the given strictness.
	Equal(other Transform, mode ComparisonMode) bool
}

// Linear is the capability interface of transforms that are completely
// described by a matrix in homogeneous coordinates: for a transform from
// d_s to d_t dimensions the matrix has d_t+1 rows and d_s+1 columns.
type Linear interface {
	Transform

	// Matrix returns the homogeneous-coordinates matrix. Callers must not
	// modify the returned matrix.
	Matrix() *matrix.Matrix
}

// Joinable is implemented by transforms able to propose algebraic
// simplifications when they appear in a chain being concatenated. The
// concatenation engine calls TryConcatenate once per remaining step after
// generic simplifications (identity elision, inverse cancellation, linear
// folding) have reached a fixed point. Implementations inspect their
// neighbors through the Joiner and may register one replacement; the
// engine keeps the replacement yielding the shortest chain.
type Joinable interface {
	TryConcatenate(j *Joiner) error
}

// Parameterized is implemented by non-linear kernels that remember the
// contextual parameters (normalize/denormalize matrices and parameter
// values) they were created from. It is consulted only for display and
// parameter introspection, never for coordinate math.
type Parameterized interface {
	Context() *ContextualParameters
}

// IsLinear reports whether tr exposes itself as a matrix.
func IsLinear(tr Transform) bool {
	_, ok := tr.(Linear)
	return ok
}

// MatrixOf returns the homogeneous matrix of tr if it is linear, or nil.
func MatrixOf(tr Transform) *matrix.Matrix {
	if lin, ok := tr.(Linear); ok {
		return lin.Matrix()
	}
	return nil
}

// Steps returns the canonical ordered sequence of non-concatenated steps of
// tr, flattening nested concatenations. For any other transform the result
// is a single-element slice.
func Steps(tr Transform) []Transform {
	if c, ok := tr.(*ConcatenatedTransform); ok {
		return append(Steps(c.step1), Steps(c.step2)...)
	}
	return []Transform{tr}
}

// firstStep descends into concatenations and returns the first leaf step.
func firstStep(tr Transform) Transform {
	for {
		c, ok := tr.(*ConcatenatedTransform)
		if !ok {
			return tr
		}
		tr = c.step1
	}
}

// lastStep descends into concatenations and returns the last leaf step.
func lastStep(tr Transform) Transform {
	for {
		c, ok := tr.(*ConcatenatedTransform)
		if !ok {
			return tr
		}
		tr = c.step2
	}
}

// stepCount returns the number of leaf steps in tr.
func stepCount(tr Transform) int {
	if c, ok := tr.(*ConcatenatedTransform); ok {
		return stepCount(c.step1) + stepCount(c.step2)
	}
	return 1
}

// displayName returns a human-meaningful name for error messages: the
// contextual-parameters descriptor when available, else the short type name.
func displayName(tr Transform) string {
	if p, ok := tr.(Parameterized); ok {
		if c := p.Context(); c != nil && c.Name() != "" {
			return c.Name()
		}
	}
	t := reflect.TypeOf(tr)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// sameSlice reports whether two slices share the same backing array start.
// This mirrors the reference-equality test used to decide whether bulk
// transform methods must worry about overlapping reads and writes; callers
// transforming within one array are expected to pass the same slice twice
// with different offsets.
func sameSlice(a, b []float64) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// transformArray is the generic bulk implementation used by transforms that
// have no faster path: it selects an aliasing-safe iteration direction and
// applies tr point by point.
func transformArray(tr Transform, src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	srcDim := tr.SourceDimensions()
	dstDim := tr.TargetDimensions()
	srcInc, dstInc := srcDim, dstDim
	if sameSlice(src, dst) {
		switch SuggestIteration(srcOff, srcDim, dstOff, dstDim, numPts) {
		case Ascending:
		case Descending:
			srcOff += (numPts - 1) * srcInc
			dstOff += (numPts - 1) * dstInc
			srcInc = -srcInc
			dstInc = -dstInc
		default:
			buf := make([]float64, numPts*srcDim)
			copy(buf, src[srcOff:srcOff+numPts*srcDim])
			src, srcOff, srcInc = buf, 0, srcDim
		}
	}
	for n := 0; n < numPts; n++ {
		if err := tr.Transform(src[srcOff:srcOff+srcDim], dst[dstOff:dstOff+dstDim]); err != nil {
			return err
		}
		srcOff += srcInc
		dstOff += dstInc
	}
	return nil
}

// transformFloats widens to float64, delegates to TransformArray, and
// narrows the result. The temporary buffers make it trivially aliasing-safe.
func transformFloats(tr Transform, src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	srcDim := tr.SourceDimensions()
	dstDim := tr.TargetDimensions()
	in := make([]float64, numPts*srcDim)
	for i := range in {
		in[i] = float64(src[srcOff+i])
	}
	out := make([]float64, numPts*dstDim)
	if err := tr.TransformArray(in, 0, out, 0, numPts); err != nil {
		return err
	}
	for i, v := range out {
		dst[dstOff+i] = float32(v)
	}
	return nil
}

// linearEqual implements Equal for matrix-backed transforms.
func linearEqual(a Linear, other Transform, mode ComparisonMode) bool {
	b, ok := other.(Linear)
	if !ok {
		return false
	}
	switch mode {
	case Strict:
		if reflect.TypeOf(a) != reflect.TypeOf(other) {
			return false
		}
		return a.Matrix().Equal(b.Matrix(), 0)
	case IgnoreMetadata:
		return a.Matrix().Equal(b.Matrix(), 0)
	default:
		return a.Matrix().Equal(b.Matrix(), comparisonTolerance)
	}
}

// isInverseEqual reports whether tr2 is the inverse of tr1. When unsure it
// conservatively returns false. Transforms of different kinds (linear versus
// non-linear) are rejected without computing any inverse.
func isInverseEqual(tr1, tr2 Transform) bool {
	if tr1.SourceDimensions() != tr2.TargetDimensions() ||
		tr1.TargetDimensions() != tr2.SourceDimensions() {
		return false
	}
	if IsLinear(tr1) != IsLinear(tr2) {
		return false
	}
	// A wraparound is idempotent, not bijective: its Inverse is only a
	// pseudo-inverse, so a (wraparound, inverse) pair must not cancel.
	if _, ok := tr1.(*WraparoundTransform); ok {
		return false
	}
	if _, ok := tr2.(*WraparoundTransform); ok {
		return false
	}
	inv, err := tr1.Inverse()
	if err != nil {
		recoverableError("inverse comparison", err)
		return false
	}
	if inv == tr2 {
		return true
	}
	return inv.Equal(tr2, Approximate)
}

// recoverableError logs a numeric exception that degrades an optimization
// but does not prevent construction of a correct result.
func recoverableError(during string, err error) {
	log.WithError(err).Debugf("geotransform: recoverable numeric error during %s", during)
}

// validSteps verifies that no two consecutive steps are both linear (their
// matrices should have been multiplied together) and that the dimensions of
// consecutive steps chain. A violation is a bug in a transform
// implementation, not a user error; Concatenate panics on it.
func validSteps(steps []Transform) bool {
	wasLinear := false
	var previous Transform
	for _, step := range steps {
		if previous != nil && previous.TargetDimensions() != step.SourceDimensions() {
			return false
		}
		if IsLinear(step) {
			if wasLinear {
				return false
			}
			wasLinear = true
		} else {
			wasLinear = false
		}
		previous = step
	}
	return true
}

// assertValid panics if the concatenation result breaks internal invariants.
func assertValid(result Transform) {
	if steps := Steps(result); !validSteps(steps) {
		panic(fmt.Sprintf("geotransform: invalid concatenation result %v", steps))
	}
}
