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
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/geotransform/matrix"
)

// subArea is a region of the horizontal plane where a specialized transform
// overrides the global one, together with the sub-areas entirely contained
// in it. Bounds are inclusive on all edges. The tree of sub-areas is built
// once during Specialize and never modified afterwards, except for the
// inverse fields which are set under the owning transform's mutex.
type subArea struct {
	bounds   *geom.Bounds
	tr       Transform
	inverse  Transform
	children []*subArea
}

// Bounds implements geom.Geom, so that areas can be stored directly in the
// spatial index. Only the bounds are meaningful to the index.
func (a *subArea) Bounds() *geom.Bounds { return a.bounds }

// Len implements geom.Geom.
func (a *subArea) Len() int { return a.bounds.Len() }

// Points implements geom.Geom.
func (a *subArea) Points() func() geom.Point { return a.bounds.Points() }

// Similar implements geom.Geom. Two areas are similar when their region
// rectangles match within e; the transforms they carry are not compared.
func (a *subArea) Similar(g geom.Geom, e float64) bool {
	o, ok := g.(*subArea)
	if !ok {
		return false
	}
	return math.Abs(a.bounds.Min.X-o.bounds.Min.X) <= e &&
		math.Abs(a.bounds.Min.Y-o.bounds.Min.Y) <= e &&
		math.Abs(a.bounds.Max.X-o.bounds.Max.X) <= e &&
		math.Abs(a.bounds.Max.Y-o.bounds.Max.Y) <= e
}

// Transform implements geom.Geom by projecting the corners of the region
// rectangle, recursively for nested areas. The coordinate transforms carried
// by the areas are kept unchanged.
func (a *subArea) Transform(t proj.Transformer) (geom.Geom, error) {
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range []geom.Point{
		a.bounds.Min,
		{X: a.bounds.Min.X, Y: a.bounds.Max.Y},
		{X: a.bounds.Max.X, Y: a.bounds.Min.Y},
		a.bounds.Max,
	} {
		x, y, err := t(p.X, p.Y)
		if err != nil {
			return nil, err
		}
		b.Min.X = math.Min(b.Min.X, x)
		b.Min.Y = math.Min(b.Min.Y, y)
		b.Max.X = math.Max(b.Max.X, x)
		b.Max.Y = math.Max(b.Max.Y, y)
	}
	out := &subArea{bounds: b, tr: a.tr}
	for _, c := range a.children {
		tc, err := c.Transform(t)
		if err != nil {
			return nil, err
		}
		out.children = append(out.children, tc.(*subArea))
	}
	return out, nil
}

// contains reports whether p is inside or on the boundary of the area.
func (a *subArea) contains(p geom.Point) bool {
	return p.X >= a.bounds.Min.X && p.X <= a.bounds.Max.X &&
		p.Y >= a.bounds.Min.Y && p.Y <= a.bounds.Max.Y
}

// locate returns the most specialized area containing p, descending into
// children, or nil if p is outside this area.
func (a *subArea) locate(p geom.Point) *subArea {
	if !a.contains(p) {
		return nil
	}
	for _, c := range a.children {
		if s := c.locate(p); s != nil {
			return s
		}
	}
	return a
}

// createInverse inverts the transforms of this area and of all its
// descendants. Called under the owning SpecializableTransform's mutex.
func (a *subArea) createInverse() error {
	inv, err := a.tr.Inverse()
	if err != nil {
		return err
	}
	a.inverse = inv
	for _, c := range a.children {
		if err := c.createInverse(); err != nil {
			return err
		}
	}
	return nil
}

// size returns the measure of the area, used for picking the most
// specialized candidate when root areas overlap.
func (a *subArea) size() float64 {
	return (a.bounds.Max.X - a.bounds.Min.X) * (a.bounds.Max.Y - a.bounds.Min.Y)
}

// SpecializableTransform applies a global transform everywhere except in
// regions where a more accurate specialization was registered. The first two
// coordinates of each source point are the horizontal position tested
// against the region bounds.
type SpecializableTransform struct {
	global Transform
	roots  []*subArea
	index  *rtree.Rtree

	mu  sync.Mutex
	inv Transform
}

// Specialize creates a transform which applies global everywhere except in
// the given regions, where the associated transforms are used instead. Every
// specialization must have the same source and target dimensions as global,
// and global must have at least two source dimensions. Region bounds are
// inclusive; regions may be nested, in which case the innermost region wins.
//
// The global transform must be a reasonable approximation of the
// specializations: the inverse transform uses the global estimate to decide
// which specialized inverse applies.
//
// If specializations is empty (or contains only empty regions), global
// itself is returned.
func Specialize(global Transform, specializations map[*geom.Bounds]Transform) (Transform, error) {
	srcDim := global.SourceDimensions()
	tgtDim := global.TargetDimensions()
	if srcDim < 2 {
		return nil, fmt.Errorf("geotransform: specialization regions are two-dimensional; global transform %q has %d source dimension(s)",
			displayName(global), srcDim)
	}
	var areas []*subArea
	for bounds, tr := range specializations {
		if tr.SourceDimensions() != srcDim || tr.TargetDimensions() != tgtDim {
			return nil, &MismatchedDimensionsError{
				Name1: displayName(global), Dim1: srcDim,
				Name2: displayName(tr), Dim2: tr.SourceDimensions(),
			}
		}
		if bounds == nil || bounds.Empty() {
			continue
		}
		// Storing a nested SpecializableTransform would add a step to
		// every coordinate operation, so its regions are flattened into
		// this transform instead, clipped to the enclosing region.
		if nested, ok := tr.(*SpecializableTransform); ok {
			areas = append(areas, &subArea{bounds: bounds.Copy(), tr: nested.global})
			for _, inherited := range flattenAreas(nested.roots) {
				clipped := intersectBounds(bounds, inherited.bounds)
				if clipped.Empty() {
					continue
				}
				areas = append(areas, &subArea{bounds: clipped, tr: inherited.tr})
			}
			continue
		}
		areas = append(areas, &subArea{bounds: bounds.Copy(), tr: tr})
	}
	if len(areas) == 0 {
		return global, nil
	}
	// Containers first, so that the insertion loop below can file each
	// area under the smallest region already holding it. Ties are broken
	// on coordinates to keep the tree independent of map iteration order.
	sort.Slice(areas, func(i, j int) bool {
		si, sj := areas[i].size(), areas[j].size()
		if si != sj {
			return si > sj
		}
		return lessBounds(areas[i].bounds, areas[j].bounds)
	})
	t := &SpecializableTransform{global: global, index: rtree.NewTree(25, 50)}
	for _, a := range areas {
		insertArea(&t.roots, a)
	}
	for _, root := range t.roots {
		t.index.Insert(root)
	}
	return t, nil
}

// flattenAreas returns every area of the given trees as an independent flat
// list. Nesting is rebuilt by the caller.
func flattenAreas(areas []*subArea) []*subArea {
	var flat []*subArea
	for _, a := range areas {
		flat = append(flat, a)
		flat = append(flat, flattenAreas(a.children)...)
	}
	return flat
}

// insertArea files a under the first sibling that fully contains it,
// recursively, or appends it as a new sibling.
func insertArea(siblings *[]*subArea, a *subArea) {
	for _, s := range *siblings {
		if containsBounds(s.bounds, a.bounds) {
			insertArea(&s.children, a)
			return
		}
	}
	*siblings = append(*siblings, a)
}

// containsBounds reports whether inner lies entirely inside outer,
// boundaries included.
func containsBounds(outer, inner *geom.Bounds) bool {
	return outer.Min.X <= inner.Min.X && inner.Max.X <= outer.Max.X &&
		outer.Min.Y <= inner.Min.Y && inner.Max.Y <= outer.Max.Y
}

// intersectBounds returns the intersection of two rectangles. The result
// is empty when they do not overlap.
func intersectBounds(a, b *geom.Bounds) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: math.Max(a.Min.X, b.Min.X), Y: math.Max(a.Min.Y, b.Min.Y)},
		Max: geom.Point{X: math.Min(a.Max.X, b.Max.X), Y: math.Min(a.Max.Y, b.Max.Y)},
	}
}

func lessBounds(a, b *geom.Bounds) bool {
	if a.Min.X != b.Min.X {
		return a.Min.X < b.Min.X
	}
	if a.Min.Y != b.Min.Y {
		return a.Min.Y < b.Min.Y
	}
	if a.Max.X != b.Max.X {
		return a.Max.X < b.Max.X
	}
	return a.Max.Y < b.Max.Y
}

func pointAt(coords []float64, off int) geom.Point {
	return geom.Point{X: coords[off], Y: coords[off+1]}
}

// locate returns the most specialized area containing p, or nil if only the
// global transform applies there. When overlapping root regions both contain
// p, the smallest one (ties broken on coordinates) is chosen so that the
// result does not depend on index internals.
func (t *SpecializableTransform) locate(p geom.Point) *subArea {
	var best *subArea
	for _, hit := range t.index.SearchIntersect(&geom.Bounds{Min: p, Max: p}) {
		a := hit.(*subArea)
		if !a.contains(p) {
			continue
		}
		if best == nil || a.size() < best.size() ||
			(a.size() == best.size() && lessBounds(a.bounds, best.bounds)) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	return best.locate(p)
}

// forPoint returns the transform to use for the given source point.
func (t *SpecializableTransform) forPoint(src []float64) Transform {
	if a := t.locate(pointAt(src, 0)); a != nil {
		return a.tr
	}
	return t.global
}

// SourceDimensions implements Transform.
func (t *SpecializableTransform) SourceDimensions() int { return t.global.SourceDimensions() }

// TargetDimensions implements Transform.
func (t *SpecializableTransform) TargetDimensions() int { return t.global.TargetDimensions() }

// Transform implements Transform by delegating to the most specialized
// transform containing the source point.
func (t *SpecializableTransform) Transform(src, dst []float64) error {
	return t.forPoint(src).Transform(src, dst)
}

// TransformArray implements Transform. Consecutive points falling in the
// same region are transformed with a single delegated call.
func (t *SpecializableTransform) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	srcDim := t.SourceDimensions()
	dstDim := t.TargetDimensions()
	if sameSlice(src, dst) && SuggestIteration(srcOff, srcDim, dstOff, dstDim, numPts) != Ascending {
		buf := make([]float64, numPts*srcDim)
		copy(buf, src[srcOff:srcOff+numPts*srcDim])
		src, srcOff = buf, 0
	}
	for numPts > 0 {
		area := t.locate(pointAt(src, srcOff))
		tr := t.global
		if area != nil {
			tr = area.tr
		}
		num := 1
		for num < numPts && t.locate(pointAt(src, srcOff+num*srcDim)) == area {
			num++
		}
		if err := tr.TransformArray(src, srcOff, dst, dstOff, num); err != nil {
			return err
		}
		srcOff += num * srcDim
		dstOff += num * dstDim
		numPts -= num
	}
	return nil
}

// TransformFloats implements Transform. Region membership is tested at full
// precision before results are narrowed.
func (t *SpecializableTransform) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(t, src, srcOff, dst, dstOff, numPts)
}

// Derivative implements Transform by delegating to the most specialized
// transform containing the point.
func (t *SpecializableTransform) Derivative(point []float64) (*matrix.Matrix, error) {
	return t.forPoint(point).Derivative(point)
}

// IsIdentity implements Transform. A specializable transform always has at
// least one region overriding the global behavior, so it is never reported
// as identity.
func (t *SpecializableTransform) IsIdentity() bool { return false }

// Inverse implements Transform. All region inverses are computed eagerly so
// that later coordinate operations cannot fail on a non-invertible region.
func (t *SpecializableTransform) Inverse() (Transform, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inv == nil {
		global, err := t.global.Inverse()
		if err != nil {
			return nil, &NoninvertibleError{Name: displayName(t), Err: err}
		}
		for _, root := range t.roots {
			if err := root.createInverse(); err != nil {
				return nil, &NoninvertibleError{Name: displayName(t), Err: err}
			}
		}
		t.inv = &specializableInverse{forward: t, global: global}
	}
	return t.inv, nil
}

// Equal implements Transform.
func (t *SpecializableTransform) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*SpecializableTransform)
	if !ok {
		return false
	}
	return t.global.Equal(o.global, mode) && equalAreas(t.roots, o.roots, mode)
}

func equalAreas(a, b []*subArea, mode ComparisonMode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].bounds.Min != b[i].bounds.Min || a[i].bounds.Max != b[i].bounds.Max {
			return false
		}
		if !a[i].tr.Equal(b[i].tr, mode) {
			return false
		}
		if !equalAreas(a[i].children, b[i].children, mode) {
			return false
		}
	}
	return true
}

func (t *SpecializableTransform) String() string { return WKT(t) }

// specializableInverse inverts a SpecializableTransform. The forward regions
// are expressed in source coordinates, so the region containing a point is
// only known after the point has been inverse-transformed: the global
// inverse produces an estimate, and when that estimate falls in a
// specialized region the point is transformed again, from the original
// coordinates, with that region's inverse.
type specializableInverse struct {
	forward *SpecializableTransform
	global  Transform
}

// SourceDimensions implements Transform.
func (i *specializableInverse) SourceDimensions() int { return i.forward.TargetDimensions() }

// TargetDimensions implements Transform.
func (i *specializableInverse) TargetDimensions() int { return i.forward.SourceDimensions() }

// Transform implements Transform.
func (i *specializableInverse) Transform(src, dst []float64) error {
	// The source may be needed twice; keep it safe from dst aliasing.
	source := append([]float64(nil), src[:i.SourceDimensions()]...)
	if err := i.global.Transform(src, dst); err != nil {
		return err
	}
	if area := i.forward.locate(pointAt(dst, 0)); area != nil {
		return area.inverse.Transform(source, dst)
	}
	return nil
}

// TransformArray implements Transform. All points are first transformed with
// the global inverse; runs of results falling in the same specialized region
// are then recomputed from the original source coordinates with that
// region's inverse.
func (i *specializableInverse) TransformArray(src []float64, srcOff int, dst []float64, dstOff, numPts int) error {
	if numPts <= 0 {
		return nil
	}
	srcDim := i.SourceDimensions()
	dstDim := i.TargetDimensions()
	if sameSlice(src, dst) {
		buf := make([]float64, numPts*srcDim)
		copy(buf, src[srcOff:srcOff+numPts*srcDim])
		src, srcOff = buf, 0
	}
	if err := i.global.TransformArray(src, srcOff, dst, dstOff, numPts); err != nil {
		return err
	}
	for n := 0; n < numPts; {
		area := i.forward.locate(pointAt(dst, dstOff+n*dstDim))
		if area == nil {
			n++
			continue
		}
		start := n
		for n++; n < numPts && i.forward.locate(pointAt(dst, dstOff+n*dstDim)) == area; n++ {
		}
		err := area.inverse.TransformArray(src, srcOff+start*srcDim, dst, dstOff+start*dstDim, n-start)
		if err != nil {
			return err
		}
	}
	return nil
}

// TransformFloats implements Transform. Region membership of the global
// estimates is tested at full precision before results are narrowed.
func (i *specializableInverse) TransformFloats(src []float32, srcOff int, dst []float32, dstOff, numPts int) error {
	return transformFloats(i, src, srcOff, dst, dstOff, numPts)
}

// Derivative implements Transform: the derivative of the region inverse that
// Transform would have used for the given point.
func (i *specializableInverse) Derivative(point []float64) (*matrix.Matrix, error) {
	estimate := make([]float64, i.TargetDimensions())
	if err := i.global.Transform(point, estimate); err != nil {
		return nil, err
	}
	if area := i.forward.locate(pointAt(estimate, 0)); area != nil {
		return area.inverse.Derivative(point)
	}
	return i.global.Derivative(point)
}

// IsIdentity implements Transform.
func (i *specializableInverse) IsIdentity() bool { return false }

// Inverse implements Transform.
func (i *specializableInverse) Inverse() (Transform, error) { return i.forward, nil }

// Equal implements Transform.
func (i *specializableInverse) Equal(other Transform, mode ComparisonMode) bool {
	o, ok := other.(*specializableInverse)
	if !ok {
		return false
	}
	return i.forward.Equal(o.forward, mode)
}

func (i *specializableInverse) String() string { return WKT(i) }
