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
	"testing"
)

func TestConcatenateDimensionMismatch(t *testing.T) {
	t.Parallel()
	_, err := Concatenate(Identity(2), Identity(3))
	var mismatch *MismatchedDimensionsError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error should be a MismatchedDimensionsError but is %v", err)
	}
	if mismatch.Dim1 != 2 || mismatch.Dim2 != 3 {
		t.Errorf("error should report dimensions 2 and 3 but reports %d and %d",
			mismatch.Dim1, mismatch.Dim2)
	}
}

func TestConcatenateSingle(t *testing.T) {
	t.Parallel()
	tr := Translation(1, 2)
	got, err := Concatenate(tr)
	if err != nil {
		t.Fatal(err)
	}
	if got != Transform(tr) {
		t.Error("concatenating a single transform should return it unchanged")
	}
}

func TestConcatenateIdentityAbsorption(t *testing.T) {
	t.Parallel()
	tr := Translation(1, 2)
	got, err := Concatenate(Identity(2), tr, Identity(2))
	if err != nil {
		t.Fatal(err)
	}
	if got != Transform(tr) {
		t.Error("identity steps should be absorbed, leaving the original transform")
	}
}

func TestConcatenateTranslationsCancel(t *testing.T) {
	t.Parallel()
	got, err := Concatenate(Translation(1, 2), Translation(-1, -2))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsIdentity() {
		t.Errorf("opposite translations should cancel to identity, got %v", got)
	}
}

func TestConcatenateDegreesRadiansRoundtrip(t *testing.T) {
	t.Parallel()
	d2r := math.Pi / 180
	r2d := 180 / math.Pi
	got, err := Concatenate(Scaling(d2r, d2r), Scaling(r2d, r2d))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsIdentity() {
		t.Errorf("degree/radian roundtrip should fold to identity, got %v", got)
	}
	checkClose(t, transformPoint(t, got, 45, -90), []float64{45, -90}, 0)
	// Applying the two scales one after the other accumulates at most a
	// rounding error per coordinate.
	step := transformPoint(t, Scaling(r2d, r2d), transformPoint(t, Scaling(d2r, d2r), 45, -90)...)
	checkClose(t, step, []float64{45, -90}, testTolerance)
}

func TestConcatenateAssociativity(t *testing.T) {
	t.Parallel()
	a := Translation(1, 2)
	merc, _ := newMercator(t, 0, 6371000)
	c := Scaling(0.001, 0.001)
	left, err := Concatenate(a, merc)
	if err != nil {
		t.Fatal(err)
	}
	left, err = Concatenate(left, c)
	if err != nil {
		t.Fatal(err)
	}
	right, err := Concatenate(merc, c)
	if err != nil {
		t.Fatal(err)
	}
	right, err = Concatenate(a, right)
	if err != nil {
		t.Fatal(err)
	}
	if !left.Equal(right, Strict) {
		t.Errorf("(a∘b)∘c and a∘(b∘c) should simplify to the same chain:\n%v\n%v", left, right)
	}
	want := transformPoint(t, c, transformPoint(t, merc, transformPoint(t, a, 10, 20)...)...)
	checkClose(t, transformPoint(t, left, 10, 20), want, testTolerance)
	checkClose(t, transformPoint(t, right, 10, 20), want, testTolerance)
}

func TestConcatenateLinearFolding(t *testing.T) {
	t.Parallel()
	got, err := Concatenate(Scaling(2, 3), Translation(4, 5))
	if err != nil {
		t.Fatal(err)
	}
	if n := stepCount(got); n != 1 {
		t.Errorf("two linear steps should fold into one, got %d steps", n)
	}
	if !IsLinear(got) {
		t.Fatalf("folded result should be linear, got %T", got)
	}
	checkClose(t, transformPoint(t, got, 1, 1), []float64{6, 8}, testTolerance)
}

func TestConcatenateInverseCancellation(t *testing.T) {
	t.Parallel()
	merc, _ := newMercator(t, 15, 6371000)
	inv, err := merc.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Concatenate(merc, inv)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsIdentity() {
		t.Errorf("a projection followed by its inverse should cancel, got %v", got)
	}
}

func TestConcatenateSimplifyTerminates(t *testing.T) {
	t.Parallel()
	// Re-concatenating an already simplified chain must be a no-op: the
	// fixed point reached by the first pass is stable.
	merc, _ := newMercator(t, 0, 1)
	again, err := Concatenate(merc, Identity(2))
	if err != nil {
		t.Fatal(err)
	}
	if na, nm := stepCount(again), stepCount(merc); na != nm {
		t.Errorf("re-simplification changed the step count from %d to %d", nm, na)
	}
	if !again.Equal(merc, Strict) {
		t.Error("re-simplification should leave the chain unchanged")
	}
}

func TestConcatenatedTransformPoint(t *testing.T) {
	t.Parallel()
	merc, _ := newMercator(t, 0, 1)
	// On the unit sphere with λ0 = 0: x = λ in radians and
	// y = ln(tan(π/4 + φ/2)).
	got := transformPoint(t, merc, 90, 0)
	checkClose(t, got, []float64{math.Pi / 2, 0}, testTolerance)
	got = transformPoint(t, merc, 0, 45)
	checkClose(t, got, []float64{0, math.Log(math.Tan(3 * math.Pi / 8))}, testTolerance)
}

func TestConcatenatedTransformArray(t *testing.T) {
	t.Parallel()
	merc, _ := newMercator(t, 0, 6378137)
	src := []float64{0, 0, 10, 20, -30, -45, 179, 80}
	numPts := len(src) / 2
	want := make([]float64, len(src))
	for i := 0; i < numPts; i++ {
		copy(want[2*i:], transformPoint(t, merc, src[2*i], src[2*i+1]))
	}
	dst := make([]float64, len(src))
	if err := merc.TransformArray(src, 0, dst, 0, numPts); err != nil {
		t.Fatal(err)
	}
	checkClose(t, dst, want, testTolerance)
	// In place, with overlap.
	work := append([]float64(nil), src...)
	if err := merc.TransformArray(work, 0, work, 0, numPts); err != nil {
		t.Fatal(err)
	}
	checkClose(t, work, want, testTolerance)
}

func TestConcatenatedInverseRoundtrip(t *testing.T) {
	t.Parallel()
	merc, _ := newMercator(t, 10, 6378137)
	inv, err := merc.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	inv2, err := inv.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	if inv2 != merc {
		t.Error("the inverse of the inverse should be the original instance")
	}
	src := []float64{25.3, -47.9}
	back := make([]float64, 2)
	if err := inv.Transform(transformPoint(t, merc, src...), back); err != nil {
		t.Fatal(err)
	}
	checkClose(t, back, src, 1e-9)
}

func TestConcatenatedDerivativeChainRule(t *testing.T) {
	t.Parallel()
	merc, _ := newMercator(t, 0, 1)
	point := []float64{12, 34}
	d, err := merc.Derivative(point)
	if err != nil {
		t.Fatal(err)
	}
	// Compare against a centered finite-difference approximation.
	const h = 1e-6
	for i := 0; i < 2; i++ {
		plus := append([]float64(nil), point...)
		minus := append([]float64(nil), point...)
		plus[i] += h
		minus[i] -= h
		fp := transformPoint(t, merc, plus...)
		fm := transformPoint(t, merc, minus...)
		for j := 0; j < 2; j++ {
			want := (fp[j] - fm[j]) / (2 * h)
			if got := d.At(j, i); math.Abs(got-want) > 1e-5*math.Max(1, math.Abs(want)) {
				t.Errorf("derivative element (%d,%d) should be about %g but is %g", j, i, want, got)
			}
		}
	}
}

func TestStepsFlattening(t *testing.T) {
	t.Parallel()
	// The radius must not be 1: a unit denormalize matrix would be elided as
	// an identity step, leaving only 2 steps.
	merc, _ := newMercator(t, 0, 6371000)
	steps := Steps(merc)
	if len(steps) != 3 {
		t.Fatalf("normalize → kernel → denormalize should have 3 steps, got %d", len(steps))
	}
	for _, step := range steps {
		if _, ok := step.(*ConcatenatedTransform); ok {
			t.Error("Steps should not contain nested concatenations")
		}
	}
}
