package l3angles

import (
	"math"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l2frames"
	"gonum.org/v1/gonum/spatial/r3"
)

// Angles are the rotations extracted from one frame, in degrees.
type Angles struct {
	// Rotation is the pronation (+) / supination (-) angle between the
	// floating axis and the distal reference. It feeds the ROM summary.
	Rotation float64
	// Humeral is the angle between the floating axis and the humeral
	// Xh/Yh pair. Informational only.
	Humeral float64
}

// Extract computes both angles of one frame.
func Extract(f l2frames.Frames) Angles {
	return Angles{
		Rotation: SignedAngle(f.E2, f.Tj, f.Fj),
		Humeral:  SignedAngle(f.E2, f.Humerus.X, f.Humerus.Y),
	}
}

// SignedAngle returns acos(v·ref) in degrees, carrying the sign of v·signRef.
// Unit inputs are assumed; the cosine is clamped to [-1, 1] so rounding past
// unity cannot produce NaN.
func SignedAngle(v, ref, signRef r3.Vec) float64 {
	cos := clamp(r3.Dot(v, ref), -1, 1)
	return math.Copysign(math.Acos(cos), r3.Dot(v, signRef)) * 180 / math.Pi
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
