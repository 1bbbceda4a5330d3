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

func TestWraparoundCentered(t *testing.T) {
	t.Parallel()
	w, err := Wraparound(2, 0, 360, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	checkClose(t, transformPoint(t, w, 190, 5), []float64{-170, 5}, testTolerance)
	checkClose(t, transformPoint(t, w, -190, 5), []float64{170, 5}, testTolerance)
	checkClose(t, transformPoint(t, w, 45, 5), []float64{45, 5}, testTolerance)
	// Centered wraparound is its own inverse.
	inv, err := w.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	if inv != w {
		t.Error("a wraparound centered on zero should be its own inverse")
	}
}

func TestWraparoundShifted(t *testing.T) {
	t.Parallel()
	// Source longitudes centered on 180, target centered on 0.
	w, err := Wraparound(2, 0, 360, 180, 0)
	if err != nil {
		t.Fatal(err)
	}
	checkClose(t, transformPoint(t, w, 350, 1), []float64{-10, 1}, testTolerance)
	inv, err := w.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	// The inverse maps back into the [0 … 360) range around the source
	// median.
	checkClose(t, transformPoint(t, inv, -10, 1), []float64{350, 1}, testTolerance)
}

func TestWraparoundTargetMedian(t *testing.T) {
	t.Parallel()
	// Both ranges centered on 180: the constructor wraps the reduction
	// with translations.
	w, err := Wraparound(2, 0, 360, 180, 180)
	if err != nil {
		t.Fatal(err)
	}
	checkClose(t, transformPoint(t, w, 370, 2), []float64{10, 2}, testTolerance)
	checkClose(t, transformPoint(t, w, -30, 2), []float64{330, 2}, testTolerance)
	checkClose(t, transformPoint(t, w, 200, 2), []float64{200, 2}, testTolerance)
}

func TestWraparoundInverseRequiresSourceMedian(t *testing.T) {
	t.Parallel()
	w, err := Wraparound(2, 0, 360, math.NaN(), 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = w.Inverse()
	var nie *NoninvertibleError
	if !errors.As(err, &nie) {
		t.Errorf("inverting a wraparound without source median should be a NoninvertibleError, got %v", err)
	}
}

func TestWraparoundValidation(t *testing.T) {
	t.Parallel()
	if _, err := Wraparound(2, 2, 360, 0, 0); err == nil {
		t.Error("wraparound dimension out of range should be rejected")
	}
	if _, err := Wraparound(2, 0, 0, 0, 0); err == nil {
		t.Error("zero period should be rejected")
	}
	if _, err := Wraparound(2, 0, -360, 0, 0); err == nil {
		t.Error("negative period should be rejected")
	}
}

func TestWraparoundArray(t *testing.T) {
	t.Parallel()
	w, err := Wraparound(3, 1, 360, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	src := []float64{1, 190, 2, 3, -500, 4, 5, 45, 6}
	want := []float64{1, -170, 2, 3, -140, 4, 5, 45, 6}
	dst := make([]float64, len(src))
	if err := w.TransformArray(src, 0, dst, 0, 3); err != nil {
		t.Fatal(err)
	}
	checkClose(t, dst, want, testTolerance)
	// In place.
	if err := w.TransformArray(src, 0, src, 0, 3); err != nil {
		t.Fatal(err)
	}
	checkClose(t, src, want, testTolerance)
}

func TestWraparoundConcatenationDeduplicates(t *testing.T) {
	t.Parallel()
	w1, err := Wraparound(2, 0, 360, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	w2, err := Wraparound(2, 0, 360, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Concatenate(w1, w2)
	if err != nil {
		t.Fatal(err)
	}
	if n := stepCount(got); n != 1 {
		t.Errorf("equal adjacent wraparounds should deduplicate to 1 step, got %d", n)
	}
	if got != w1 {
		t.Error("deduplication should keep the first wraparound")
	}
	// The reduction must survive concatenation: a wraparound is idempotent,
	// not the identity.
	checkClose(t, transformPoint(t, got, 190, 5), []float64{-170, 5}, testTolerance)
}

func TestWraparoundInversePairDoesNotCancel(t *testing.T) {
	t.Parallel()
	// A wraparound composed with its pseudo-inverse still reduces out-of-range
	// coordinates; eliding the pair would leave them untouched.
	w, err := Wraparound(2, 0, 360, 180, 0)
	if err != nil {
		t.Fatal(err)
	}
	inv, err := w.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Concatenate(w, inv)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsIdentity() {
		t.Error("a wraparound and its pseudo-inverse should not cancel to the identity")
	}
	// 730 reduces to 10 on the way out and stays there on the way back;
	// the identity would have returned 730 unchanged.
	checkClose(t, transformPoint(t, got, 730, 1), []float64{10, 1}, testTolerance)
}

func TestWraparoundEqualModes(t *testing.T) {
	t.Parallel()
	a, err := Wraparound(2, 0, 360, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Wraparound(2, 0, 360, 200, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(b, Strict) {
		t.Error("wraparounds with different source medians should not be strictly equal")
	}
	if !a.Equal(b, Approximate) {
		t.Error("the source median only configures the inverse and should be ignored in approximate comparison")
	}
}
