package l2frames

import (
	"math"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"gonum.org/v1/gonum/spatial/r3"
)

// OrthonormalTolerance bounds the pairwise axis cosines and the deviation of
// axis norms from 1 accepted by Basis.IsOrthonormal.
const OrthonormalTolerance = 1e-3

// Basis is an ordered triple of unit axes.
type Basis struct {
	X, Y, Z r3.Vec
}

// IsOrthonormal reports whether the axes are unit length and mutually
// orthogonal within tol.
func (b Basis) IsOrthonormal(tol float64) bool {
	for _, v := range []r3.Vec{b.X, b.Y, b.Z} {
		if math.Abs(r3.Norm(v)-1) > tol {
			return false
		}
	}
	return math.Abs(r3.Dot(b.X, b.Y)) <= tol &&
		math.Abs(r3.Dot(b.Y, b.Z)) <= tol &&
		math.Abs(r3.Dot(b.X, b.Z)) <= tol
}

// Frame is a local segment coordinate system.
type Frame struct {
	Origin r3.Vec
	Basis
}

// Frames holds everything derived from one marker sample.
type Frames struct {
	// ElbowCenter is the midpoint of the two epicondyles.
	ElbowCenter r3.Vec

	// Forearm has its origin at the ulnar styloid and Y along the forearm
	// towards the elbow.
	Forearm Frame
	// Humerus has its origin at the acromion and Y along the upper arm
	// towards the shoulder.
	Humerus Frame

	// Joint coordinate system: E1 is fixed to the humerus, E3 to the
	// forearm and E2 is the floating axis.
	E1, E2, E3 r3.Vec

	// Distal reference basis: Fj = Xf, Lj = Yf, Tj = Lj × Fj.
	Fj, Lj, Tj r3.Vec

	// Flipped reports that E2 was reversed by the sign anchoring test.
	Flipped bool
}

// Joint returns the joint basis (E1, E2, E3).
func (f Frames) Joint() Basis { return Basis{X: f.E1, Y: f.E2, Z: f.E3} }

// Distal returns the distal reference basis (Fj, Lj, Tj).
func (f Frames) Distal() Basis { return Basis{X: f.Fj, Y: f.Lj, Z: f.Tj} }

// Build derives the forearm, humerus and joint frames from one sample. It
// fails with a *GeometryError when any axis cannot be normalised.
func Build(s l1markers.MarkerSample) (Frames, error) {
	var f Frames
	var err error

	epi := Midpoint(s.EL, s.EM)
	f.ElbowCenter = epi

	// Forearm
	yf, err := DefineVector(epi, s.US, "Yf")
	if err != nil {
		return Frames{}, err
	}
	radial, err := DefineVector(epi, s.RS, "elbow-RS")
	if err != nil {
		return Frames{}, err
	}
	xf, err := CrossNorm(radial, yf, "Xf")
	if err != nil {
		return Frames{}, err
	}
	zf, err := CrossNorm(xf, yf, "Zf")
	if err != nil {
		return Frames{}, err
	}
	f.Forearm = Frame{Origin: s.US, Basis: Basis{X: xf, Y: yf, Z: zf}}

	// Humerus
	yh, err := DefineVector(s.AC, epi, "Yh")
	if err != nil {
		return Frames{}, err
	}
	zh, err := CrossNorm(yf, yh, "Zh")
	if err != nil {
		return Frames{}, err
	}
	xh, err := CrossNorm(yh, zh, "Xh")
	if err != nil {
		return Frames{}, err
	}
	f.Humerus = Frame{Origin: s.AC, Basis: Basis{X: xh, Y: yh, Z: zh}}

	// Joint
	f.E1 = zh
	f.E3 = yf
	if f.E2, err = CrossNorm(f.E3, f.E1, "e2"); err != nil {
		return Frames{}, err
	}

	// Distal reference
	f.Fj = xf
	f.Lj = yf
	if f.Tj, err = CrossNorm(f.Lj, f.Fj, "tj"); err != nil {
		return Frames{}, err
	}

	if FloatingAxisReversed(f.E1, f.E3, f.Tj, f.Fj) {
		f.E2 = r3.Scale(-1, f.E2)
		f.Flipped = true
	}

	return f, nil
}

// FloatingAxisReversed is the sign anchoring test for the floating axis. The
// axis e3 × e1 is reversed when it points against tj while (e3 × e1) × e3
// points along fj.
//
// For the orthonormal frames produced by Build both dot products reduce to
// e2·tj, so the two conditions cannot hold together on real geometry.
func FloatingAxisReversed(e1, e3, tj, fj r3.Vec) bool {
	n := r3.Cross(e3, e1)
	return r3.Dot(n, tj) < 0 && r3.Dot(r3.Cross(n, e3), fj) > 0
}
