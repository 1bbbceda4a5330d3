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

// IterationStrategy is the direction in which a bulk transform must iterate
// over points when the source and destination arrays overlap, so that no
// source coordinate is overwritten before it has been read.
type IterationStrategy int

const (
	// Ascending iterates from the first point to the last.
	Ascending IterationStrategy = iota
	// Descending iterates from the last point to the first.
	Descending
	// BufferSource requires copying the source region before writing.
	BufferSource
	// BufferTarget requires writing to a temporary region, then copying to
	// the destination. Callers that cannot buffer the target may buffer
	// the source instead, which is always correct.
	BufferTarget
)

// SuggestIteration decides how a bulk transform of numPts points must
// iterate when reading srcDim coordinates per point starting at srcOff and
// writing dstDim coordinates per point starting at dstOff within a single
// shared array. It is a pure function of its arguments and must be invoked
// before any write.
//
// Within one point, the full source tuple is considered read before any of
// the point's target coordinates is written, so a point may be transformed
// onto itself in place.
func SuggestIteration(srcOff, srcDim, dstOff, dstDim, numPts int) IterationStrategy {
	if numPts <= 1 {
		return Ascending
	}
	// Fully disjoint regions can be iterated in any direction.
	if srcOff+numPts*srcDim <= dstOff || dstOff+numPts*dstDim <= srcOff {
		return Ascending
	}
	// Ascending is safe when the tuple written for point w never overlaps
	// the tuple read for any later point. The write for point w ends at
	// dstOff+(w+1)*dstDim and the earliest later read starts at
	// srcOff+(w+1)*srcDim; the difference is linear in w, so checking both
	// end points of the w range suffices.
	d := dstOff - srcOff
	if d+dstDim-srcDim <= 0 && d+(numPts-1)*(dstDim-srcDim) <= 0 {
		return Ascending
	}
	// Descending is safe when the tuple written for point w never overlaps
	// the tuple read for any earlier point: the write for point w starts
	// at dstOff+w*dstDim and the latest earlier read ends at
	// srcOff+w*srcDim. Again linear in w.
	if d+(dstDim-srcDim) >= 0 && d+(numPts-1)*(dstDim-srcDim) >= 0 {
		return Descending
	}
	if srcDim <= dstDim {
		return BufferSource
	}
	return BufferTarget
}
