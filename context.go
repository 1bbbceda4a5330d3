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
	"sync"

	"github.com/spatialmodel/geotransform/dd"
	"github.com/spatialmodel/geotransform/matrix"
)

// MatrixRole identifies which of the linear steps surrounding a non-linear
// kernel is requested from ContextualParameters.Matrix.
type MatrixRole int

const (
	// Normalization is the linear step applied before the kernel, for
	// example converting angular degrees to radians.
	Normalization MatrixRole = iota
	// InverseNormalization is the inverse of the Normalization matrix.
	InverseNormalization
	// Denormalization is the linear step applied after the kernel, for
	// example scaling to the size of the planet.
	Denormalization
	// InverseDenormalization is the inverse of the Denormalization matrix.
	InverseDenormalization
)

func (r MatrixRole) String() string {
	switch r {
	case Normalization:
		return "normalization"
	case InverseNormalization:
		return "inverse normalization"
	case Denormalization:
		return "denormalization"
	case InverseDenormalization:
		return "inverse denormalization"
	}
	return fmt.Sprintf("MatrixRole(%d)", int(r))
}

// ContextualParameters describes a normalize → non-linear kernel →
// denormalize sequence as a whole: the two affine companions of the kernel
// together with the named parameter values (scale factor, central meridian,
// and so on) that the three steps were derived from.
//
// After construction, callers set parameter values with SetParameter and
// shape the two matrices, either directly through Matrix or with the
// NormalizeGeographicInputs / DenormalizeGeographicOutputs helpers. A call
// to CompleteTransform then freezes the parameters and assembles the chain;
// any later mutation fails with ErrFrozen.
//
// Non-linear kernels retain their ContextualParameters and expose them
// through the Parameterized interface. The parameters are consulted only for
// display and introspection, never for coordinate math: the frozen matrices
// have already been folded into the surrounding linear steps by the
// concatenation engine.
type ContextualParameters struct {
	mu sync.Mutex

	name       string
	srcDim     int
	tgtDim     int
	paramNames []string
	values     []float64
	defined    []bool

	normalize   *matrix.Matrix
	denormalize *matrix.Matrix
	frozen      bool
	inverse     *ContextualParameters
}

// NewContextualParameters creates parameters for an operation of the given
// name, with the given numbers of source and target dimensions and the given
// declared parameter names. The normalization and denormalization matrices
// are initialized to identity.
func NewContextualParameters(name string, srcDim, tgtDim int, parameters ...string) *ContextualParameters {
	if srcDim < 1 || tgtDim < 1 {
		panic(fmt.Sprintf("geotransform: operation %q has invalid dimensions %d → %d", name, srcDim, tgtDim))
	}
	return &ContextualParameters{
		name:        name,
		srcDim:      srcDim,
		tgtDim:      tgtDim,
		paramNames:  append([]string(nil), parameters...),
		values:      make([]float64, len(parameters)),
		defined:     make([]bool, len(parameters)),
		normalize:   matrix.Identity(srcDim + 1),
		denormalize: matrix.Identity(tgtDim + 1),
	}
}

// Name returns the operation name, for example "Mercator".
func (p *ContextualParameters) Name() string { return p.name }

// SourceDimensions returns the number of source dimensions of the complete
// normalize → kernel → denormalize chain.
func (p *ContextualParameters) SourceDimensions() int { return p.srcDim }

// TargetDimensions returns the number of target dimensions of the complete
// normalize → kernel → denormalize chain.
func (p *ContextualParameters) TargetDimensions() int { return p.tgtDim }

// IsFrozen reports whether CompleteTransform has been invoked.
func (p *ContextualParameters) IsFrozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frozen
}

// SetParameter sets the value of a declared parameter. It returns ErrFrozen
// after CompleteTransform has been invoked, or an error if no parameter of
// that name was declared.
func (p *ContextualParameters) SetParameter(name string, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrFrozen
	}
	for i, n := range p.paramNames {
		if n == name {
			p.values[i] = value
			p.defined[i] = true
			return nil
		}
	}
	return fmt.Errorf("geotransform: operation %q has no parameter %q", p.name, name)
}

// Parameter returns the value of the named parameter and whether it has been
// set. An undeclared name reports false.
func (p *ContextualParameters) Parameter(name string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, n := range p.paramNames {
		if n == name {
			return p.values[i], p.defined[i]
		}
	}
	return 0, false
}

// ParameterNames returns the declared parameter names in declaration order.
func (p *ContextualParameters) ParameterNames() []string {
	return append([]string(nil), p.paramNames...)
}

// Matrix returns the matrix for the requested role. Before the parameters
// are frozen, the Normalization and Denormalization matrices are returned
// live so that callers can shape them in place; after freezing, and for the
// two inverse roles, a copy is returned. An inverse role fails if the
// corresponding matrix is singular.
func (p *ContextualParameters) Matrix(role MatrixRole) (*matrix.Matrix, error) {
	p.mu.Lock()
	var direct *matrix.Matrix
	switch role {
	case Normalization:
		direct = p.normalize
	case Denormalization:
		direct = p.denormalize
	}
	if direct != nil {
		frozen := p.frozen
		p.mu.Unlock()
		if frozen {
			return direct.Clone(), nil
		}
		return direct, nil
	}
	// Inverse roles. When this instance is paired with the parameters of
	// the inverse operation, its matrices are the inverses we need.
	inverse := p.inverse
	var fallback *matrix.Matrix
	var direct2 MatrixRole
	switch role {
	case InverseNormalization:
		fallback, direct2 = p.normalize, Denormalization
	case InverseDenormalization:
		fallback, direct2 = p.denormalize, Normalization
	default:
		p.mu.Unlock()
		return nil, fmt.Errorf("geotransform: unknown matrix role %v", role)
	}
	p.mu.Unlock()
	if inverse != nil {
		return inverse.Matrix(direct2)
	}
	m, err := fallback.Inverse()
	if err != nil {
		return nil, fmt.Errorf("geotransform: cannot compute the %v matrix of %q: %v", role, p.name, err)
	}
	return m, nil
}

// NormalizeGeographicInputs prepends to the normalization matrix a
// conversion of the two first coordinates from angular degrees to radians,
// optionally subtracting the given central meridian λ0 (in degrees) from the
// longitude. The conversion factors are applied at double-double accuracy.
func (p *ContextualParameters) NormalizeGeographicInputs(λ0 float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrFrozen
	}
	var offset dd.DD
	// The λ0 != 0 check also keeps negative zeros out of the matrix.
	if λ0 != 0 {
		offset = dd.New(-λ0).Mul(dd.DegreesToRadians)
	}
	p.normalize.ConvertBefore(0, dd.DegreesToRadians, offset)
	p.normalize.ConvertBefore(1, dd.DegreesToRadians, dd.DD{})
	return nil
}

// DenormalizeGeographicOutputs appends to the denormalization matrix a
// conversion of the two first coordinates from radians to angular degrees,
// optionally adding the given central meridian λ0 (in degrees) to the
// longitude. The conversion factors are applied at double-double accuracy.
func (p *ContextualParameters) DenormalizeGeographicOutputs(λ0 float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrFrozen
	}
	var offset dd.DD
	if λ0 != 0 {
		offset = dd.New(λ0)
	}
	p.denormalize.ConvertAfter(0, dd.RadiansToDegrees, offset)
	p.denormalize.ConvertAfter(1, dd.RadiansToDegrees, dd.DD{})
	return nil
}

// CompleteTransform marks the parameters as frozen and returns the
// concatenation normalize → kernel → denormalize. The kernel should expect
// "normalized" coordinates, for example angles in radians. Concatenation
// with neighbor transforms will fold the two affine companions into the
// surrounding linear steps.
func (p *ContextualParameters) CompleteTransform(kernel Transform) (Transform, error) {
	p.mu.Lock()
	p.frozen = true
	n, err := FromMatrix(p.normalize)
	if err == nil {
		var d Transform
		d, err = FromMatrix(p.denormalize)
		if err == nil {
			p.mu.Unlock()
			return Concatenate(n, kernel, d)
		}
	}
	p.mu.Unlock()
	return nil, err
}

// InverseParameters returns the parameters of the inverse operation: same
// name and parameter values, with the normalization and denormalization
// matrices swapped and inverted. The result is frozen and paired with p, so
// that each instance answers the inverse matrix roles from the other without
// a second matrix inversion. Calling this method freezes p.
func (p *ContextualParameters) InverseParameters() (*ContextualParameters, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inverse == nil {
		p.frozen = true
		n, err := p.denormalize.Inverse()
		if err != nil {
			return nil, fmt.Errorf("geotransform: cannot invert the denormalization matrix of %q: %v", p.name, err)
		}
		d, err := p.normalize.Inverse()
		if err != nil {
			return nil, fmt.Errorf("geotransform: cannot invert the normalization matrix of %q: %v", p.name, err)
		}
		p.inverse = &ContextualParameters{
			name:        p.name,
			srcDim:      p.tgtDim,
			tgtDim:      p.srcDim,
			paramNames:  p.paramNames,
			values:      p.values,
			defined:     p.defined,
			normalize:   n,
			denormalize: d,
			frozen:      true,
			inverse:     p,
		}
	}
	return p.inverse, nil
}

// Equal compares two parameter groups. The matrices are compared exactly
// except in Approximate mode, which uses a magnitude-relative tolerance.
func (p *ContextualParameters) Equal(other *ContextualParameters, mode ComparisonMode) bool {
	if p == other {
		return true
	}
	if other == nil || p.name != other.name ||
		p.srcDim != other.srcDim || p.tgtDim != other.tgtDim ||
		len(p.paramNames) != len(other.paramNames) {
		return false
	}
	for i := range p.paramNames {
		if p.paramNames[i] != other.paramNames[i] ||
			p.defined[i] != other.defined[i] || p.values[i] != other.values[i] {
			return false
		}
	}
	tol := 0.0
	if mode == Approximate {
		tol = comparisonTolerance
	}
	return p.normalize.Equal(other.normalize, tol) &&
		p.denormalize.Equal(other.denormalize, tol)
}
