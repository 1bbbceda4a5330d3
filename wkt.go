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
	"strconv"
	"strings"

	"github.com/spatialmodel/geotransform/matrix"
)

// WKT returns a pseudo Well Known Text (version 1) representation of the
// given transform, using the CONCAT_MT / PARAM_MT / PASSTHROUGH_MT /
// INVERSE_MT elements. The text is intended for human inspection and
// debugging; some transforms (specialized regions, trailing pass-through
// coordinates) have no standard WKT 1 representation and are rendered with
// non-standard elements.
func WKT(tr Transform) string {
	var b strings.Builder
	formatWKT(&b, tr, 0)
	return b.String()
}

// PseudoSteps returns the steps of tr like Steps, except that a
// normalize → non-linear kernel → denormalize sequence whose linear steps
// match the kernel's contextual parameters is merged back into the single
// kernel step, so that the displayed chain reflects the operation the caller
// assembled rather than the folded form the optimizer produced. Sequences
// whose linear steps were folded with neighbor transforms are left as they
// are.
func PseudoSteps(tr Transform) []Transform {
	steps := Steps(tr)
	var out []Transform
	for i := 0; i < len(steps); i++ {
		if i+2 < len(steps) && isContextTriple(steps[i], steps[i+1], steps[i+2]) {
			out = append(out, steps[i+1])
			i += 2
			continue
		}
		out = append(out, steps[i])
	}
	return out
}

// isContextTriple reports whether before → kernel → after is exactly the
// normalize → kernel → denormalize sequence recorded in the kernel's
// contextual parameters.
func isContextTriple(before, kernel, after Transform) bool {
	p, ok := kernel.(Parameterized)
	if !ok {
		return false
	}
	c := p.Context()
	if c == nil {
		return false
	}
	mb, ma := MatrixOf(before), MatrixOf(after)
	if mb == nil || ma == nil {
		return false
	}
	n, err := c.Matrix(Normalization)
	if err != nil {
		return false
	}
	d, err := c.Matrix(Denormalization)
	if err != nil {
		return false
	}
	return mb.Equal(n, comparisonTolerance) && ma.Equal(d, comparisonTolerance)
}

func formatWKT(b *strings.Builder, tr Transform, depth int) {
	switch t := tr.(type) {
	case *ConcatenatedTransform:
		b.WriteString("CONCAT_MT[")
		for i, step := range PseudoSteps(t) {
			if i > 0 {
				b.WriteByte(',')
			}
			wktNewLine(b, depth+1)
			formatWKT(b, step, depth+1)
		}
		b.WriteByte(']')
	case *PassThroughTransform:
		// WKT 1 has no representation for trailing coordinates; they are
		// implied by the dimension mismatch.
		fmt.Fprintf(b, "PASSTHROUGH_MT[%d,", t.firstAffected)
		wktNewLine(b, depth+1)
		formatWKT(b, t.sub, depth+1)
		b.WriteByte(']')
	case *WraparoundTransform:
		// The source median is omitted: it configures only the inverse.
		b.WriteString(`PARAM_MT["Wraparound"`)
		wktParameter(b, depth+1, "dimension", float64(t.dimension))
		wktParameter(b, depth+1, "wraparound_dimension", float64(t.wraparoundDimension))
		wktParameter(b, depth+1, "period", t.period)
		b.WriteByte(']')
	case *SpecializableTransform:
		b.WriteString("SPECIALIZABLE_MT[")
		wktNewLine(b, depth+1)
		formatWKT(b, t.global, depth+1)
		for _, area := range flattenAreas(t.roots) {
			b.WriteByte(',')
			wktNewLine(b, depth+1)
			fmt.Fprintf(b, "AREA[%s, %s, %s, %s],",
				wktNumber(area.bounds.Min.X), wktNumber(area.bounds.Min.Y),
				wktNumber(area.bounds.Max.X), wktNumber(area.bounds.Max.Y))
			wktNewLine(b, depth+1)
			formatWKT(b, area.tr, depth+1)
		}
		b.WriteByte(']')
	case *specializableInverse:
		b.WriteString("INVERSE_MT[")
		wktNewLine(b, depth+1)
		formatWKT(b, t.forward, depth+1)
		b.WriteByte(']')
	case Linear:
		formatMatrixWKT(b, t.Matrix(), depth)
	case Parameterized:
		if c := t.Context(); c != nil {
			fmt.Fprintf(b, "PARAM_MT[%q", c.Name())
			for _, name := range c.ParameterNames() {
				if v, ok := c.Parameter(name); ok {
					wktParameter(b, depth+1, name, v)
				}
			}
			b.WriteByte(']')
			return
		}
		fmt.Fprintf(b, "PARAM_MT[%q]", displayName(tr))
	default:
		fmt.Fprintf(b, "PARAM_MT[%q]", displayName(tr))
	}
}

// formatMatrixWKT writes the WKT 1 "Affine" parameter group, listing only
// the elements that differ from an identity matrix.
func formatMatrixWKT(b *strings.Builder, m *matrix.Matrix, depth int) {
	b.WriteString(`PARAM_MT["Affine"`)
	wktParameter(b, depth+1, "num_row", float64(m.Rows()))
	wktParameter(b, depth+1, "num_col", float64(m.Cols()))
	for j := 0; j < m.Rows(); j++ {
		for i := 0; i < m.Cols(); i++ {
			def := 0.0
			if i == j {
				def = 1
			}
			if v := m.At(j, i); v != def {
				wktParameter(b, depth+1, fmt.Sprintf("elt_%d_%d", j, i), v)
			}
		}
	}
	b.WriteByte(']')
}

func wktParameter(b *strings.Builder, depth int, name string, value float64) {
	b.WriteByte(',')
	wktNewLine(b, depth)
	fmt.Fprintf(b, "PARAMETER[%q, %s]", name, wktNumber(value))
}

func wktNewLine(b *strings.Builder, depth int) {
	b.WriteByte('\n')
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func wktNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
