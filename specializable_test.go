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
	"testing"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/geotransform/matrix"
)

// regionalScale returns a 2 → 2 transform close to Scaling(2, 2) but with a
// small offset, standing in for a datum-shift refinement over a region:
// (x, y) → (2x+0.5, 2y+0.5).
func regionalScale(t *testing.T) Transform {
	t.Helper()
	m := matrix.Identity(3)
	m.Set(0, 0, 2)
	m.Set(1, 1, 2)
	m.Set(0, 2, 0.5)
	m.Set(1, 2, 0.5)
	tr, err := FromMatrix(m)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func newSpecialized(t *testing.T) Transform {
	t.Helper()
	tr, err := Specialize(Scaling(2, 2), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 10}}: regionalScale(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestSpecializeTransform(t *testing.T) {
	t.Parallel()
	tr := newSpecialized(t)
	if _, ok := tr.(*SpecializableTransform); !ok {
		t.Fatalf("result should be a SpecializableTransform, got %T", tr)
	}
	if tr.IsIdentity() {
		t.Error("a specialized transform should never report itself as identity")
	}
	// Inside the region the specialization applies, outside the global one.
	checkClose(t, transformPoint(t, tr, 5, 5), []float64{10.5, 10.5}, 0)
	checkClose(t, transformPoint(t, tr, 10, 10), []float64{20.5, 20.5}, 0)
	checkClose(t, transformPoint(t, tr, 20, 20), []float64{40, 40}, 0)
	checkClose(t, transformPoint(t, tr, -1, 5), []float64{-2, 10}, 0)
}

func TestSpecializeTransformArray(t *testing.T) {
	t.Parallel()
	tr := newSpecialized(t)
	src := []float64{5, 5, 6, 6, 20, 20, 3, 3}
	bulk := make([]float64, len(src))
	if err := tr.TransformArray(src, 0, bulk, 0, 4); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		want := transformPoint(t, tr, src[2*i:2*i+2]...)
		checkClose(t, bulk[2*i:2*i+2], want, 0)
	}
	// In place.
	inPlace := append([]float64(nil), src...)
	if err := tr.TransformArray(inPlace, 0, inPlace, 0, 4); err != nil {
		t.Fatal(err)
	}
	checkClose(t, inPlace, bulk, 0)
}

func TestSpecializeInverse(t *testing.T) {
	t.Parallel()
	tr := newSpecialized(t)
	inv, err := tr.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	// The global inverse estimate of (10.5, 10.5) is (5.25, 5.25), inside
	// the region, so the region inverse recomputes the exact (5, 5).
	checkClose(t, transformPoint(t, inv, 10.5, 10.5), []float64{5, 5}, testTolerance)
	checkClose(t, transformPoint(t, inv, 40, 40), []float64{20, 20}, 0)

	back, err := inv.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	if back != tr {
		t.Error("inverting an inverse should return the original transform")
	}

	// Bulk inversion regroups runs falling in the same region.
	src := []float64{10.5, 10.5, 6.5, 6.5, 40, 40}
	dst := make([]float64, len(src))
	if err := inv.TransformArray(src, 0, dst, 0, 3); err != nil {
		t.Fatal(err)
	}
	checkClose(t, dst, []float64{5, 5, 3, 3, 20, 20}, testTolerance)
	// In place.
	if err := inv.TransformArray(src, 0, src, 0, 3); err != nil {
		t.Fatal(err)
	}
	checkClose(t, src, dst, 0)
}

func TestSpecializeNestedRegions(t *testing.T) {
	t.Parallel()
	tr, err := Specialize(Scaling(2, 2), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 10}}: regionalScale(t),
		{Min: geom.Point{X: 2, Y: 2}, Max: geom.Point{X: 4, Y: 4}}:   Scaling(3, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := tr.(*SpecializableTransform)
	if len(s.roots) != 1 || len(s.roots[0].children) != 1 {
		t.Fatalf("the inner region should be filed under the outer one, got %d roots", len(s.roots))
	}
	checkClose(t, transformPoint(t, tr, 3, 3), []float64{9, 9}, 0)
	checkClose(t, transformPoint(t, tr, 5, 5), []float64{10.5, 10.5}, 0)
	checkClose(t, transformPoint(t, tr, 20, 20), []float64{40, 40}, 0)
}

func TestSpecializeFlattensNested(t *testing.T) {
	t.Parallel()
	inner, err := Specialize(regionalScale(t), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 2, Y: 2}, Max: geom.Point{X: 12, Y: 12}}: Scaling(3, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	tr, err := Specialize(Scaling(2, 2), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 10}}: inner,
	})
	if err != nil {
		t.Fatal(err)
	}
	s := tr.(*SpecializableTransform)
	if len(s.roots) != 1 || len(s.roots[0].children) != 1 {
		t.Fatalf("nested specializations should be flattened into the enclosing transform")
	}
	child := s.roots[0].children[0]
	if child.bounds.Max.X != 10 || child.bounds.Max.Y != 10 {
		t.Errorf("inherited region should be clipped to the enclosing one, got %v", child.bounds)
	}
	checkClose(t, transformPoint(t, tr, 3, 3), []float64{9, 9}, 0)
	checkClose(t, transformPoint(t, tr, 1, 1), []float64{2.5, 2.5}, 0)
	checkClose(t, transformPoint(t, tr, 20, 20), []float64{40, 40}, 0)
}

func TestSubAreaIsGeom(t *testing.T) {
	t.Parallel()
	// Areas are stored in the spatial index as geometries in their own right.
	var _ geom.Geom = (*subArea)(nil)
	a := &subArea{bounds: &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 4}}}
	if got := a.Len(); got != 4 {
		t.Errorf("area should expose its 4 corner points, got %d", got)
	}
	b := &subArea{bounds: &geom.Bounds{Min: geom.Point{X: 1e-9, Y: 0}, Max: geom.Point{X: 10, Y: 4}}}
	if !a.Similar(b, 1e-8) {
		t.Error("areas with nearly equal rectangles should be similar")
	}
	if a.Similar(b, 1e-10) {
		t.Error("areas with distinct rectangles should not be similar under a tight tolerance")
	}
	shifted, err := a.Transform(func(x, y float64) (float64, float64, error) { return x + 1, y - 1, nil })
	if err != nil {
		t.Fatal(err)
	}
	bounds := shifted.Bounds()
	if bounds.Min.X != 1 || bounds.Min.Y != -1 || bounds.Max.X != 11 || bounds.Max.Y != 3 {
		t.Errorf("projected area rectangle should be [1 -1 11 3], got %v", bounds)
	}
}

func TestSpecializeDegenerations(t *testing.T) {
	t.Parallel()
	global := Scaling(2, 2)
	got, err := Specialize(global, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != Transform(global) {
		t.Error("specializing with no regions should return the global transform")
	}
	got, err = Specialize(global, map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 1, Y: 1}, Max: geom.Point{X: 0, Y: 0}}: Scaling(3, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != Transform(global) {
		t.Error("empty regions should be ignored")
	}
}

func TestSpecializeValidation(t *testing.T) {
	t.Parallel()
	if _, err := Specialize(Scaling(2), nil); err == nil {
		t.Error("a one-dimensional global transform should be rejected")
	}
	_, err := Specialize(Scaling(2, 2), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 10}}: Scaling(3, 3, 3),
	})
	var mde *MismatchedDimensionsError
	if !errors.As(err, &mde) {
		t.Errorf("a dimension mismatch should be a MismatchedDimensionsError, got %v", err)
	}
}

func TestSpecializeNoninvertibleRegion(t *testing.T) {
	t.Parallel()
	tr, err := Specialize(Scaling(2, 2), map[*geom.Bounds]Transform{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 10, Y: 10}}: Scaling(0, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Inverse()
	var nie *NoninvertibleError
	if !errors.As(err, &nie) {
		t.Errorf("inverting with a non-invertible region should fail, got %v", err)
	}
}

func TestSpecializeEqual(t *testing.T) {
	t.Parallel()
	a := newSpecialized(t)
	b := newSpecialized(t)
	if !a.Equal(b, Strict) {
		t.Error("identically built specialized transforms should be strictly equal")
	}
	if a.Equal(Scaling(2, 2), Strict) {
		t.Error("a specialized transform should not equal its global transform")
	}
}

func TestSpecializeDerivative(t *testing.T) {
	t.Parallel()
	tr := newSpecialized(t)
	d, err := tr.Derivative([]float64{5, 5})
	if err != nil {
		t.Fatal(err)
	}
	if got := d.At(0, 0); got != 2 {
		t.Errorf("derivative inside the region should be that of the specialization: element (0,0) should be %g but is %g", 2.0, got)
	}
	inv, err := tr.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	d, err = inv.Derivative([]float64{10.5, 10.5})
	if err != nil {
		t.Fatal(err)
	}
	if got := d.At(0, 0); got != 0.5 {
		t.Errorf("inverse derivative should be that of the region inverse: element (0,0) should be %g but is %g", 0.5, got)
	}
}
