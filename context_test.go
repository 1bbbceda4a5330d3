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
	"math"
	"reflect"
	"testing"

	"github.com/spatialmodel/geotransform/dd"
	"github.com/spatialmodel/geotransform/matrix"
)

func TestContextSetParameter(t *testing.T) {
	t.Parallel()
	c := NewContextualParameters("Mercator", 2, 2, "semi_major", "central_meridian")
	if got := c.Name(); got != "Mercator" {
		t.Errorf("name should be %q but is %q", "Mercator", got)
	}
	if !reflect.DeepEqual(c.ParameterNames(), []string{"semi_major", "central_meridian"}) {
		t.Errorf("unexpected parameter names %v", c.ParameterNames())
	}
	if _, ok := c.Parameter("semi_major"); ok {
		t.Error("an unset parameter should report as undefined")
	}
	if err := c.SetParameter("semi_major", 6378137); err != nil {
		t.Fatal(err)
	}
	v, ok := c.Parameter("semi_major")
	if !ok || v != 6378137 {
		t.Errorf("semi_major should be %g but is %g (defined=%v)", 6378137.0, v, ok)
	}
	err := c.SetParameter("no_such_parameter", 1)
	want := `geotransform: operation "Mercator" has no parameter "no_such_parameter"`
	if err == nil || err.Error() != want {
		t.Errorf("unknown parameter error should be %q but is %v", want, err)
	}
}

func TestContextNormalizeGeographicInputs(t *testing.T) {
	t.Parallel()
	const λ0 = -110.0
	c := NewContextualParameters("Mercator", 2, 2)
	if err := c.NormalizeGeographicInputs(λ0); err != nil {
		t.Fatal(err)
	}
	m, err := c.Matrix(Normalization)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.At(0, 0); got != dd.DegreesToRadians.Hi {
		t.Errorf("longitude scale should be %g but is %g", dd.DegreesToRadians.Hi, got)
	}
	if got := m.At(1, 1); got != dd.DegreesToRadians.Hi {
		t.Errorf("latitude scale should be %g but is %g", dd.DegreesToRadians.Hi, got)
	}
	want := -λ0 * math.Pi / 180
	if got := m.At(0, 2); math.Abs(got-want) > testTolerance {
		t.Errorf("longitude offset should be %g but is %g", want, got)
	}
	if got := m.At(1, 2); got != 0 {
		t.Errorf("latitude offset should be %g but is %g", 0.0, got)
	}
}

func TestContextDenormalizeGeographicOutputs(t *testing.T) {
	t.Parallel()
	const λ0 = 45.0
	c := NewContextualParameters("Inverse Mercator", 2, 2)
	if err := c.DenormalizeGeographicOutputs(λ0); err != nil {
		t.Fatal(err)
	}
	m, err := c.Matrix(Denormalization)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.At(0, 0); got != dd.RadiansToDegrees.Hi {
		t.Errorf("longitude scale should be %g but is %g", dd.RadiansToDegrees.Hi, got)
	}
	if got := m.At(0, 2); got != λ0 {
		t.Errorf("longitude offset should be %g but is %g", λ0, got)
	}
}

func TestContextFreeze(t *testing.T) {
	t.Parallel()
	_, c := newMercator(t, 0, 1)
	if !c.IsFrozen() {
		t.Fatal("completing the transform should freeze the parameters")
	}
	if err := c.SetParameter("semi_major", 1); !errors.Is(err, ErrFrozen) {
		t.Errorf("SetParameter after freezing should be ErrFrozen, got %v", err)
	}
	if err := c.NormalizeGeographicInputs(0); !errors.Is(err, ErrFrozen) {
		t.Errorf("NormalizeGeographicInputs after freezing should be ErrFrozen, got %v", err)
	}
	if err := c.DenormalizeGeographicOutputs(0); !errors.Is(err, ErrFrozen) {
		t.Errorf("DenormalizeGeographicOutputs after freezing should be ErrFrozen, got %v", err)
	}
	// A frozen matrix is a copy: mutating it does not affect the parameters.
	m, err := c.Matrix(Normalization)
	if err != nil {
		t.Fatal(err)
	}
	m.Set(0, 0, 1e6)
	m2, err := c.Matrix(Normalization)
	if err != nil {
		t.Fatal(err)
	}
	if m2.At(0, 0) == 1e6 {
		t.Error("matrices of frozen parameters should be returned as copies")
	}
}

func TestContextLiveMatrix(t *testing.T) {
	t.Parallel()
	c := NewContextualParameters("Mercator", 2, 2)
	m, err := c.Matrix(Denormalization)
	if err != nil {
		t.Fatal(err)
	}
	m.Set(0, 0, 3)
	m2, err := c.Matrix(Denormalization)
	if err != nil {
		t.Fatal(err)
	}
	if got := m2.At(0, 0); got != 3 {
		t.Errorf("before freezing, Matrix should return the live matrix: element (0,0) should be %g but is %g", 3.0, got)
	}
}

func TestContextInverseRoles(t *testing.T) {
	t.Parallel()
	_, c := newMercator(t, -110, 6378137)
	n, err := c.Matrix(Normalization)
	if err != nil {
		t.Fatal(err)
	}
	ni, err := c.Matrix(InverseNormalization)
	if err != nil {
		t.Fatal(err)
	}
	product, err := matrix.Multiply(n, ni)
	if err != nil {
		t.Fatal(err)
	}
	if !product.IsIdentity(testTolerance) {
		t.Errorf("normalization times its inverse should be identity, got %v", product)
	}
	inv, err := c.InverseParameters()
	if err != nil {
		t.Fatal(err)
	}
	// The paired instance swaps the roles.
	d, err := inv.Matrix(Denormalization)
	if err != nil {
		t.Fatal(err)
	}
	ni2, err := c.Matrix(InverseNormalization)
	if err != nil {
		t.Fatal(err)
	}
	if !ni2.Equal(d, 0) {
		t.Error("the inverse normalization should be the paired instance's denormalization")
	}
	if !inv.IsFrozen() {
		t.Error("inverse parameters should be frozen")
	}
	back, err := inv.InverseParameters()
	if err != nil {
		t.Fatal(err)
	}
	if back != c {
		t.Error("inverting the inverse parameters should return the original instance")
	}
	if v, ok := inv.Parameter("central_meridian"); !ok || v != -110 {
		t.Errorf("inverse parameters should share values: central_meridian should be %g but is %g", -110.0, v)
	}
}

func TestContextCompleteTransform(t *testing.T) {
	t.Parallel()
	tr, c := newMercator(t, 0, 1)
	// On the unit sphere with λ0 = 0, (90°, 0°) maps to (π/2, 0).
	checkClose(t, transformPoint(t, tr, 90, 0), []float64{math.Pi / 2, 0}, testTolerance)
	// The kernel retains its parameters through the chain.
	steps := Steps(tr)
	var found bool
	for _, s := range steps {
		if p, ok := s.(Parameterized); ok && p.Context() == c {
			found = true
		}
	}
	if !found {
		t.Error("the kernel should retain its contextual parameters through concatenation")
	}
}

func TestContextEqual(t *testing.T) {
	t.Parallel()
	_, a := newMercator(t, -110, 6378137)
	_, b := newMercator(t, -110, 6378137)
	if !a.Equal(b, Strict) {
		t.Error("identically built parameters should be strictly equal")
	}
	_, d := newMercator(t, 0, 6378137)
	if a.Equal(d, Approximate) {
		t.Error("parameters with different values should not be equal in any mode")
	}
}
