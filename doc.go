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

// Package geotransform composes, simplifies, specializes and separates
// mathematical transforms between coordinate spaces (geographic, geocentric,
// projected).
//
// The entry points are:
//
//   - Concatenate, which builds a minimal-length chain from a sequence of
//     transform steps, merging adjacent linear steps into single matrices
//     and cancelling transforms followed by their own inverses;
//   - NewSeparator, which extracts a transform restricted to a subset of
//     source and/or target dimensions;
//   - Specialize, which dispatches per-point to the most accurate of several
//     region-bounded transforms over a spatially indexed set of envelopes;
//   - NewContextualParameters, the bookkeeping for the
//     normalize→kernel→denormalize pattern used by map projections.
//
// Concrete non-linear kernels (map projection formulas, datum shift grids)
// live outside this package: anything implementing the Transform interface
// participates in concatenation, and anything additionally implementing
// Joinable can propose algebraic simplifications against its neighbors in a
// chain.
//
// Transforms are immutable once constructed. The only mutable state is the
// lazily computed inverse on some types, guarded by a per-instance lock, so
// a transform graph may be shared freely between goroutines.
package geotransform
