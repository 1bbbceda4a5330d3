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

// Package dd implements double-double arithmetic: each number is represented
// as an unevaluated sum of two float64 values, giving roughly 106 bits of
// significand. It is used by the matrix layer so that products of coordinate
// conversion matrices keep provably-zero terms exactly zero and keep datum
// shift terms, which may be as small as the rounding error of a plain
// float64 product, at full accuracy.
//
// The representation is normalized: Hi holds the float64 value closest to
// the represented number and Lo holds the residual, with |Lo| no more than
// half an ulp of Hi.
package dd

import "math"

// A DD is a double-double number, the unevaluated sum Hi + Lo.
type DD struct {
	Hi, Lo float64
}

// DegreesToRadians is the conversion factor from angular degrees to radians
// (π/180) at double-double accuracy.
var DegreesToRadians = DD{Hi: 0.017453292519943295, Lo: 2.9486522708701687e-19}

// RadiansToDegrees is the conversion factor from radians to angular degrees
// (180/π) at double-double accuracy.
var RadiansToDegrees = DD{Hi: 57.29577951308232, Lo: -1.9878495670576283e-15}

// New returns the double-double representation of v.
func New(v float64) DD {
	return DD{Hi: v}
}

// FromSum returns a + b with the rounding error of the float64 addition
// captured in the low part.
func FromSum(a, b float64) DD {
	return twoSum(a, b)
}

// FromProduct returns a * b with the rounding error of the float64
// multiplication captured in the low part.
func FromProduct(a, b float64) DD {
	p := a * b
	return DD{Hi: p, Lo: math.FMA(a, b, -p)}
}

// Value returns the closest float64 to the represented number.
func (d DD) Value() float64 {
	return d.Hi
}

// IsZero reports whether the represented number is exactly zero.
func (d DD) IsZero() bool {
	return d.Hi == 0 && d.Lo == 0
}

// Neg returns the negation of d.
func (d DD) Neg() DD {
	return DD{Hi: -d.Hi, Lo: -d.Lo}
}

// Abs returns the absolute value of d.
func (d DD) Abs() DD {
	if d.Hi < 0 || (d.Hi == 0 && d.Lo < 0) {
		return d.Neg()
	}
	return d
}

// Add returns d + o.
func (d DD) Add(o DD) DD {
	s := twoSum(d.Hi, o.Hi)
	s.Lo += d.Lo + o.Lo
	return quickTwoSum(s.Hi, s.Lo)
}

// AddFloat returns d + v.
func (d DD) AddFloat(v float64) DD {
	s := twoSum(d.Hi, v)
	s.Lo += d.Lo
	return quickTwoSum(s.Hi, s.Lo)
}

// Sub returns d - o.
func (d DD) Sub(o DD) DD {
	return d.Add(o.Neg())
}

// Mul returns d * o.
func (d DD) Mul(o DD) DD {
	p := FromProduct(d.Hi, o.Hi)
	p.Lo += d.Hi*o.Lo + d.Lo*o.Hi
	return quickTwoSum(p.Hi, p.Lo)
}

// MulFloat returns d * v.
func (d DD) MulFloat(v float64) DD {
	p := FromProduct(d.Hi, v)
	p.Lo += d.Lo * v
	return quickTwoSum(p.Hi, p.Lo)
}

// Div returns d / o. Division by zero yields the IEEE 754 float64 result in
// the high part (an infinity or NaN).
func (d DD) Div(o DD) DD {
	q1 := d.Hi / o.Hi
	if math.IsInf(q1, 0) || math.IsNaN(q1) {
		return DD{Hi: q1}
	}
	// Long division: two correction terms bring the quotient to
	// double-double accuracy.
	r := d.Sub(o.MulFloat(q1))
	q2 := r.Hi / o.Hi
	r = r.Sub(o.MulFloat(q2))
	q3 := r.Hi / o.Hi
	q := quickTwoSum(q1, q2)
	return q.AddFloat(q3)
}

// twoSum is the error-free transformation of a float64 addition (Knuth).
func twoSum(a, b float64) DD {
	s := a + b
	v := s - a
	return DD{Hi: s, Lo: (a - (s - v)) + (b - v)}
}

// quickTwoSum renormalizes a two-term sum. It requires |a| >= |b| or a == 0,
// which holds for every call site in this package.
func quickTwoSum(a, b float64) DD {
	s := a + b
	return DD{Hi: s, Lo: b - (s - a)}
}
