package l2frames

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// NormEpsilon is the smallest vector norm accepted for normalisation. Marker
// coordinates are in millimetres or metres, so anything below this means
// coincident or collinear markers.
const NormEpsilon = 1e-9

// ErrDegenerateGeometry is returned when a frame's markers are coincident or
// collinear and an axis cannot be normalised.
var ErrDegenerateGeometry = errors.New("degenerate marker geometry")

// GeometryError names the axis that collapsed.
type GeometryError struct {
	Axis string
	Norm float64
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%v: %s has norm %.3g", ErrDegenerateGeometry, e.Axis, e.Norm)
}

// Unwrap lets errors.Is match ErrDegenerateGeometry.
func (e *GeometryError) Unwrap() error { return ErrDegenerateGeometry }

// Normalize returns v scaled to unit length, or a *GeometryError naming axis
// when v is too short to carry a direction.
func Normalize(v r3.Vec, axis string) (r3.Vec, error) {
	n := r3.Norm(v)
	if n < NormEpsilon {
		return r3.Vec{}, &GeometryError{Axis: axis, Norm: n}
	}
	return r3.Scale(1/n, v), nil
}

// DefineVector returns the unit vector pointing from begin to end.
func DefineVector(end, begin r3.Vec, axis string) (r3.Vec, error) {
	return Normalize(r3.Sub(end, begin), axis)
}

// CrossNorm returns the unit vector along a × b.
func CrossNorm(a, b r3.Vec, axis string) (r3.Vec, error) {
	return Normalize(r3.Cross(a, b), axis)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Add(a, b))
}
