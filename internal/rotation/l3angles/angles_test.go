package l3angles_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l2frames"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l3angles"
	"github.com/danielmundi/PronoSupinoADM/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSignedAngle(t *testing.T) {
	t.Parallel()

	x, y := r3.Vec{X: 1}, r3.Vec{Y: 1}
	diag := r3.Unit(r3.Vec{X: 1, Y: 1})

	tests := []struct {
		name        string
		v, ref, sgn r3.Vec
		want        float64
	}{
		{"aligned", x, x, y, 0},
		{"opposite", r3.Vec{X: -1}, x, y, 180},
		{"opposite with negative zero sign", r3.Scale(-1, x), x, y, -180},
		{"quarter turn positive", y, x, y, 90},
		{"quarter turn negative", r3.Scale(-1, y), x, y, -90},
		{"diagonal", diag, x, y, 45},
		{"diagonal below", r3.Unit(r3.Vec{X: 1, Y: -1}), x, y, -45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, l3angles.SignedAngle(tt.v, tt.ref, tt.sgn), 1e-9)
		})
	}
}

func TestSignedAngle_ClampsRounding(t *testing.T) {
	t.Parallel()

	// slightly longer than unit: the raw cosine exceeds 1
	v := r3.Vec{X: 1 + 1e-12}
	got := l3angles.SignedAngle(v, r3.Vec{X: 1}, r3.Vec{Y: 1})
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, 0, got, 1e-9)

	got = l3angles.SignedAngle(r3.Scale(-1, v), r3.Vec{X: 1}, r3.Vec{Y: 1})
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, 180, math.Abs(got), 1e-9)
}

func TestExtract_RecoversSyntheticAngle(t *testing.T) {
	t.Parallel()

	for angle := -179.0; angle <= 180; angle += 0.5 {
		f, err := l2frames.Build(testutil.SampleAt(angle))
		require.NoError(t, err)

		a := l3angles.Extract(f)
		assert.InDelta(t, angle, a.Rotation, 1e-9, "angle %.1f", angle)
		assert.InDelta(t, -90, a.Humeral, 1e-9, "humeral at %.1f", angle)
	}
}

func TestExtract_RangeOnNoisyMarkers(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(21, 42))
	for i := 0; i < 1000; i++ {
		s := testutil.SampleAt(rng.Float64()*360 - 180)
		s.RS = r3.Add(s.RS, r3.Vec{X: rng.NormFloat64() * 0.003, Y: rng.NormFloat64() * 0.003, Z: rng.NormFloat64() * 0.003})
		s.AC = r3.Add(s.AC, r3.Vec{X: rng.NormFloat64() * 0.05, Y: rng.NormFloat64() * 0.05})

		f, err := l2frames.Build(s)
		require.NoError(t, err)

		a := l3angles.Extract(f)
		assert.GreaterOrEqual(t, a.Rotation, -180.0)
		assert.LessOrEqual(t, a.Rotation, 180.0)
		assert.GreaterOrEqual(t, a.Humeral, -180.0)
		assert.LessOrEqual(t, a.Humeral, 180.0)
	}
}

func TestCompute_DenseInputOrder(t *testing.T) {
	t.Parallel()

	angles := testutil.SineAngles(70, 2, 10, 120)
	trial := testutil.TrialFromAngles(angles, 120)

	s, err := l3angles.Compute(trial, l3angles.Options{})
	require.NoError(t, err)
	require.Equal(t, len(angles), s.Len())
	assert.Equal(t, len(angles), s.Valid())
	assert.Empty(t, s.Failures)
	assert.Equal(t, 120, s.FrequencyHz)

	approx := cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-9 })
	if diff := cmp.Diff(angles, s.Values, approx); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 0.5, s.Time(60), 1e-12)
	times := s.Times()
	assert.Len(t, times, s.Len())
	assert.InDelta(t, float64(s.Len()-1)/120, times[len(times)-1], 1e-12)

	neg := s.Negated()
	for i := range neg {
		assert.Equal(t, -s.Values[i], neg[i])
	}
}

func TestCompute_ParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	trial := testutil.TrialFromAngles(testutil.SineAngles(85, 1.7, 30, 120), 120)
	// a few broken frames scattered across chunk boundaries
	for _, i := range []int{0, 255, 256, 1799, len(trial.Samples) - 1} {
		trial.Samples[i].RS = trial.Samples[i].US
	}

	serial, err := l3angles.Compute(trial, l3angles.Options{Workers: 1})
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 64} {
		parallel, err := l3angles.Compute(trial, l3angles.Options{Workers: workers})
		require.NoError(t, err)

		if diff := cmp.Diff(serial.Values, parallel.Values, cmp.Comparer(sameFloat)); diff != "" {
			t.Errorf("workers=%d values differ:\n%s", workers, diff)
		}
		require.Len(t, parallel.Failures, len(serial.Failures))
		for i := range serial.Failures {
			assert.Equal(t, serial.Failures[i].Frame, parallel.Failures[i].Frame, "workers=%d", workers)
		}
	}
}

func sameFloat(x, y float64) bool {
	return x == y || (math.IsNaN(x) && math.IsNaN(y))
}

func TestCompute_RecordsFrameFailures(t *testing.T) {
	t.Parallel()

	trial := testutil.TrialFromAngles([]float64{10, 20, 30, 40}, 100)
	trial.Samples[2].US = r3.Vec{}

	s, err := l3angles.Compute(trial, l3angles.Options{})
	require.NoError(t, err)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, 3, s.Valid())

	fe := s.Failures[0]
	assert.Equal(t, 2, fe.Frame)
	assert.ErrorIs(t, fe, l2frames.ErrDegenerateGeometry)
	assert.Contains(t, fe.Error(), "frame 2")
	assert.True(t, math.IsNaN(s.Values[2]))
	assert.True(t, math.IsNaN(s.Humeral[2]))
	assert.InDelta(t, 40, s.Values[3], 1e-9)
}

func TestCompute_NoValidFrames(t *testing.T) {
	t.Parallel()

	t.Run("empty trial", func(t *testing.T) {
		_, err := l3angles.Compute(l1markers.Trial{FrequencyHz: 120}, l3angles.Options{})
		assert.ErrorIs(t, err, l3angles.ErrNoValidFrames)
	})

	t.Run("every frame degenerate", func(t *testing.T) {
		trial := testutil.TrialFromAngles([]float64{0, 5, 10}, 120)
		for i := range trial.Samples {
			trial.Samples[i].RS = trial.Samples[i].US
		}
		s, err := l3angles.Compute(trial, l3angles.Options{Workers: 4})
		assert.ErrorIs(t, err, l3angles.ErrNoValidFrames)
		assert.Len(t, s.Failures, 3)
	})
}
