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
	"math"
	"sync"
	"testing"

	"github.com/spatialmodel/geotransform/dd"
	"github.com/spatialmodel/geotransform/matrix"
	"gonum.org/v1/gonum/floats/scalar"
)

const testTolerance = 1e-12

// mercatorKernel is the non-linear core of a spherical Mercator projection.
// It expects (λ, φ) in radians and produces dimensionless (x, y); the
// surrounding contextual matrices handle degrees, the central meridian and
// the planet radius.
type mercatorKernel struct {
	context *ContextualParameters

	mu  sync.Mutex
	inv Transform
}

func (k *mercatorKernel) SourceDimensions() int          { return 2 }
func (k *mercatorKernel) TargetDimensions() int          { return 2 }
func (k *mercatorKernel) IsIdentity() bool               { return false }
func (k *mercatorKernel) Context() *ContextualParameters { return k.context }

func (k *mercatorKernel) Transform(src, dst []float64) error {
	dst[0] = src[0]
	dst[1] = math.Log(math.Tan(math.Pi/4 + src[1]/2))
	return nil
}

func (k *mercatorKernel) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(k, src, srcOff, dst, dstOff, numPts)
}

func (k *mercatorKernel) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(k, src, srcOff, dst, dstOff, numPts)
}

func (k *mercatorKernel) Derivative(point []float64) (*matrix.Matrix, error) {
	m := matrix.New(2, 2)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1/math.Cos(point[1]))
	return m, nil
}

func (k *mercatorKernel) Inverse() (Transform, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.inv == nil {
		k.inv = &mercatorInverseKernel{forward: k}
	}
	return k.inv, nil
}

func (k *mercatorKernel) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*mercatorKernel)
	return ok && (k == o || k.context.Equal(o.context, mode))
}

type mercatorInverseKernel struct {
	forward *mercatorKernel
}

func (k *mercatorInverseKernel) SourceDimensions() int { return 2 }
func (k *mercatorInverseKernel) TargetDimensions() int { return 2 }
func (k *mercatorInverseKernel) IsIdentity() bool      { return false }

func (k *mercatorInverseKernel) Transform(src, dst []float64) error {
	dst[0] = src[0]
	dst[1] = 2*math.Atan(math.Exp(src[1])) - math.Pi/2
	return nil
}

func (k *mercatorInverseKernel) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	return transformArray(k, src, srcOff, dst, dstOff, numPts)
}

func (k *mercatorInverseKernel) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(k, src, srcOff, dst, dstOff, numPts)
}

func (k *mercatorInverseKernel) Derivative(point []float64) (*matrix.Matrix, error) {
	e := math.Exp(point[1])
	m := matrix.New(2, 2)
	m.Set(0, 0, 1)
	m.Set(1, 1, 2*e/(1+e*e))
	return m, nil
}

func (k *mercatorInverseKernel) Inverse() (Transform, error) { return k.forward, nil }

func (k *mercatorInverseKernel) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*mercatorInverseKernel)
	return ok && k.forward.Equal(o.forward, mode)
}

// newMercator assembles a complete spherical Mercator for the given central
// meridian (degrees) and radius, taking inputs in (longitude, latitude)
// degrees.
func newMercator(t *testing.T, centralMeridian, radius float64) (Transform, *ContextualParameters) {
	t.Helper()
	c := NewContextualParameters("Mercator", 2, 2, "semi_major", "central_meridian")
	if err := c.SetParameter("semi_major", radius); err != nil {
		t.Fatal(err)
	}
	if err := c.SetParameter("central_meridian", centralMeridian); err != nil {
		t.Fatal(err)
	}
	if err := c.NormalizeGeographicInputs(centralMeridian); err != nil {
		t.Fatal(err)
	}
	d, err := c.Matrix(Denormalization)
	if err != nil {
		t.Fatal(err)
	}
	d.ConvertAfter(0, dd.New(radius), dd.DD{})
	d.ConvertAfter(1, dd.New(radius), dd.DD{})
	tr, err := c.CompleteTransform(&mercatorKernel{context: c})
	if err != nil {
		t.Fatal(err)
	}
	return tr, c
}

// transformPoint applies tr to a single point, failing the test on error.
func transformPoint(t *testing.T, tr Transform, src ...float64) []float64 {
	t.Helper()
	dst := make([]float64, tr.TargetDimensions())
	if err := tr.Transform(src, dst); err != nil {
		t.Fatalf("transforming %v: %v", src, err)
	}
	return dst
}

// checkClose verifies that two coordinate tuples match within tol.
func checkClose(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d coordinates, want %d", len(got), len(want))
	}
	for i := range got {
		if !scalar.EqualWithinAbsOrRel(got[i], want[i], tol, tol) {
			t.Errorf("coordinate %d should be %g but is %g", i, want[i], got[i])
		}
	}
}
