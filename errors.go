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
	"fmt"
)

// ErrFrozen is returned when attempting to modify contextual parameters
// after they have been used to build a complete transform.
var ErrFrozen = errors.New("geotransform: contextual parameters are frozen")

// MismatchedDimensionsError is returned when two transforms are chained but
// the target dimension count of the first does not equal the source
// dimension count of the second.
type MismatchedDimensionsError struct {
	Name1, Name2 string // names of the offending transforms
	Dim1, Dim2   int    // target dimensions of the first, source dimensions of the second
}

func (e *MismatchedDimensionsError) Error() string {
	return fmt.Sprintf("geotransform: cannot concatenate %q (%d output dimensions) with %q (%d input dimensions)",
		e.Name1, e.Dim1, e.Name2, e.Dim2)
}

// NoninvertibleError is returned by Inverse when a transform has no inverse,
// for example an affine transform backed by a non-square or singular matrix,
// or a wraparound whose source median is unknown.
type NoninvertibleError struct {
	Name string // name of the non-invertible transform
	Err  error  // underlying numeric cause, may be nil
}

func (e *NoninvertibleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geotransform: %s is not invertible: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("geotransform: %s is not invertible", e.Name)
}

func (e *NoninvertibleError) Unwrap() error { return e.Err }

// NonSeparableError is returned by Separator.Separate when the requested
// dimensions cannot be isolated, for example when a requested target
// dimension structurally depends on an excluded source dimension.
type NonSeparableError struct {
	Reason string
}

func (e *NonSeparableError) Error() string {
	return "geotransform: transform is not separable: " + e.Reason
}

func nonSeparable(format string, args ...interface{}) *NonSeparableError {
	return &NonSeparableError{Reason: fmt.Sprintf(format, args...)}
}
