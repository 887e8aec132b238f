package l2frames_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l2frames"
	"github.com/danielmundi/PronoSupinoADM/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func jitter(rng *rand.Rand, v r3.Vec, amount float64) r3.Vec {
	return r3.Add(v, r3.Vec{
		X: (rng.Float64()*2 - 1) * amount,
		Y: (rng.Float64()*2 - 1) * amount,
		Z: (rng.Float64()*2 - 1) * amount,
	})
}

func randomSample(rng *rand.Rand) l1markers.MarkerSample {
	s := testutil.SampleAt(rng.Float64()*340 - 170)
	s = testutil.Translate(s, r3.Vec{X: rng.Float64() * 2, Y: rng.Float64() * 2, Z: rng.Float64() * 2})
	return l1markers.MarkerSample{
		AC: jitter(rng, s.AC, 0.02),
		EL: jitter(rng, s.EL, 0.005),
		EM: jitter(rng, s.EM, 0.005),
		RS: jitter(rng, s.RS, 0.005),
		US: jitter(rng, s.US, 0.005),
	}
}

func TestBuild_UnitAndOrthogonalAxes(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		f, err := l2frames.Build(randomSample(rng))
		require.NoError(t, err)

		for name, v := range map[string]r3.Vec{
			"Xf": f.Forearm.X, "Yf": f.Forearm.Y, "Zf": f.Forearm.Z,
			"Xh": f.Humerus.X, "Yh": f.Humerus.Y, "Zh": f.Humerus.Z,
			"e1": f.E1, "e2": f.E2, "e3": f.E3,
			"fj": f.Fj, "lj": f.Lj, "tj": f.Tj,
		} {
			assert.InDelta(t, 1, r3.Norm(v), 1e-6, "norm of %s", name)
		}

		for name, b := range map[string]l2frames.Basis{
			"forearm": f.Forearm.Basis,
			"humerus": f.Humerus.Basis,
			"joint":   f.Joint(),
			"distal":  f.Distal(),
		} {
			assert.True(t, b.IsOrthonormal(l2frames.OrthonormalTolerance), "%s basis not orthonormal: %+v", name, b)
		}
	}
}

func TestBuild_KnownGeometry(t *testing.T) {
	t.Parallel()

	f, err := l2frames.Build(testutil.SampleAt(30))
	require.NoError(t, err)

	assert.InDelta(t, 0, r3.Norm(f.ElbowCenter), 1e-12)
	assert.Equal(t, testutil.SampleAt(30).US, f.Forearm.Origin)
	assert.Equal(t, testutil.SampleAt(30).AC, f.Humerus.Origin)

	// forearm along +Y towards the elbow, upper arm along +Z
	assert.InDelta(t, 1, f.Forearm.Y.Y, 1e-12)
	assert.InDelta(t, 1, f.Humerus.Y.Z, 1e-12)
	// floating axis points away from the shoulder, perpendicular to the forearm
	assert.InDelta(t, -1, f.E2.Z, 1e-12)
	assert.Equal(t, f.Forearm.X, f.Fj)
	assert.Equal(t, f.Forearm.Y, f.Lj)
	assert.Equal(t, f.Humerus.Z, f.E1)
	assert.False(t, f.Flipped)
}

func TestBuild_EpicondyleOrderIndependent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 50; i++ {
		s := randomSample(rng)
		swapped := s
		swapped.EL, swapped.EM = s.EM, s.EL

		a, err := l2frames.Build(s)
		require.NoError(t, err)
		b, err := l2frames.Build(swapped)
		require.NoError(t, err)

		assert.Equal(t, a.ElbowCenter, b.ElbowCenter)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("frames changed when EL/EM swapped (-orig +swapped):\n%s", diff)
		}
	}
}

func TestBuild_TranslationInvariant(t *testing.T) {
	t.Parallel()

	a, err := l2frames.Build(testutil.SampleAt(-65))
	require.NoError(t, err)
	b, err := l2frames.Build(testutil.Translate(testutil.SampleAt(-65), r3.Vec{X: 812, Y: -40, Z: 1033}))
	require.NoError(t, err)

	approx := cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-9 })
	if diff := cmp.Diff(a.Joint(), b.Joint(), approx); diff != "" {
		t.Errorf("joint basis changed under translation:\n%s", diff)
	}
	if diff := cmp.Diff(a.Distal(), b.Distal(), approx); diff != "" {
		t.Errorf("distal basis changed under translation:\n%s", diff)
	}
}

func TestBuild_DegenerateGeometry(t *testing.T) {
	t.Parallel()

	base := testutil.SampleAt(10)
	tests := []struct {
		name     string
		mutate   func(s *l1markers.MarkerSample)
		wantAxis string
	}{
		{"ulnar styloid on elbow centre", func(s *l1markers.MarkerSample) { s.US = r3.Vec{} }, "Yf"},
		{"radial styloid on elbow centre", func(s *l1markers.MarkerSample) { s.RS = r3.Vec{} }, "elbow-RS"},
		{"radial styloid on ulnar styloid", func(s *l1markers.MarkerSample) { s.RS = s.US }, "Xf"},
		{"acromion on elbow centre", func(s *l1markers.MarkerSample) { s.AC = r3.Vec{} }, "Yh"},
		{"arm fully extended", func(s *l1markers.MarkerSample) { s.AC = r3.Vec{Y: 0.3} }, "Zh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)

			_, err := l2frames.Build(s)
			require.Error(t, err)
			assert.ErrorIs(t, err, l2frames.ErrDegenerateGeometry)

			var gerr *l2frames.GeometryError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.wantAxis, gerr.Axis)
		})
	}
}

func TestFloatingAxisReversed_BothBranches(t *testing.T) {
	t.Parallel()

	e3 := r3.Vec{Z: 1}
	e1 := r3.Vec{X: 1}
	// e3 × e1 = +Y and (e3 × e1) × e3 = +X

	tests := []struct {
		name   string
		tj, fj r3.Vec
		want   bool
	}{
		{"against tj and along fj", r3.Vec{Y: -1}, r3.Vec{X: 1}, true},
		{"along tj", r3.Vec{Y: 1}, r3.Vec{X: 1}, false},
		{"against tj and against fj", r3.Vec{Y: -1}, r3.Vec{X: -1}, false},
		{"along tj and against fj", r3.Vec{Y: 1}, r3.Vec{X: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l2frames.FloatingAxisReversed(e1, e3, tt.tj, tt.fj))
		})
	}
}

func TestBuild_FloatingAxisNeverReversedOnMarkerGeometry(t *testing.T) {
	t.Parallel()

	for angle := -179.0; angle <= 180; angle += 1 {
		f, err := l2frames.Build(testutil.SampleAt(angle))
		require.NoError(t, err)
		assert.False(t, f.Flipped, "angle %.0f", angle)
	}
}

func TestVectorHelpers(t *testing.T) {
	t.Parallel()

	v, err := l2frames.DefineVector(r3.Vec{X: 3, Y: 4}, r3.Vec{}, "v")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v.X, 1e-12)
	assert.InDelta(t, 0.8, v.Y, 1e-12)

	c, err := l2frames.CrossNorm(r3.Vec{X: 2}, r3.Vec{Y: 5}, "c")
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{Z: 1}, c)

	_, err = l2frames.CrossNorm(r3.Vec{X: 1}, r3.Vec{X: 2}, "parallel")
	assert.ErrorIs(t, err, l2frames.ErrDegenerateGeometry)
	assert.Contains(t, err.Error(), "parallel")

	a, b := r3.Vec{X: 0.1, Y: 0.7, Z: -3}, r3.Vec{X: 1e3, Y: -2, Z: 0.25}
	assert.Equal(t, l2frames.Midpoint(a, b), l2frames.Midpoint(b, a))
}

func TestBasis_IsOrthonormal(t *testing.T) {
	t.Parallel()

	identity := l2frames.Basis{X: r3.Vec{X: 1}, Y: r3.Vec{Y: 1}, Z: r3.Vec{Z: 1}}
	assert.True(t, identity.IsOrthonormal(1e-9))

	skewed := identity
	skewed.Y = r3.Unit(r3.Vec{X: 0.1, Y: 1})
	assert.False(t, skewed.IsOrthonormal(1e-3))

	long := identity
	long.Z = r3.Vec{Z: 2}
	assert.False(t, long.IsOrthonormal(1e-3))
}
