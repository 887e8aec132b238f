package l3angles

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l2frames"
)

// ErrNoValidFrames is returned when no frame of a trial yields an angle.
var ErrNoValidFrames = errors.New("no frame produced a valid angle")

// minChunk keeps goroutine overhead below the per-frame work.
const minChunk = 256

// FrameError records why one frame produced no angle.
type FrameError struct {
	Frame int
	Err   error
}

func (e FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e FrameError) Unwrap() error { return e.Err }

// Series is the rotation angle of every frame of a trial. Values and Humeral
// are aligned 1:1 with the trial samples; a frame listed in Failures holds NaN.
type Series struct {
	FrequencyHz int
	Values      []float64
	Humeral     []float64
	Failures    []FrameError
}

// Len returns the number of frames, failed ones included.
func (s Series) Len() int { return len(s.Values) }

// Valid returns the number of frames that produced an angle.
func (s Series) Valid() int { return len(s.Values) - len(s.Failures) }

// Time returns the elapsed time of frame i in seconds.
func (s Series) Time(i int) float64 {
	if s.FrequencyHz <= 0 {
		return 0
	}
	return float64(i) / float64(s.FrequencyHz)
}

// Times returns the elapsed time of every frame.
func (s Series) Times() []float64 {
	out := make([]float64, len(s.Values))
	for i := range out {
		out[i] = s.Time(i)
	}
	return out
}

// Negated returns a copy of the rotation values with their sign reversed.
func (s Series) Negated() []float64 {
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		out[i] = -v
	}
	return out
}

// Options tunes Compute.
type Options struct {
	// Workers is the number of goroutines frames are spread over. Values
	// below 2 process the trial sequentially.
	Workers int
}

// Compute extracts the rotation angle of every sample in trial. Frames with
// degenerate geometry are recorded in Failures and do not abort the trial;
// ErrNoValidFrames is returned only when every frame fails.
func Compute(trial l1markers.Trial, opts Options) (Series, error) {
	n := len(trial.Samples)
	s := Series{
		FrequencyHz: trial.FrequencyHz,
		Values:      make([]float64, n),
		Humeral:     make([]float64, n),
	}
	if n == 0 {
		return s, ErrNoValidFrames
	}

	workers := opts.Workers
	if maxWorkers := (n + minChunk - 1) / minChunk; workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 2 {
		s.Failures = computeRange(trial.Samples, 0, n, s.Values, s.Humeral)
	} else {
		chunk := (n + workers - 1) / workers
		failures := make([][]FrameError, workers)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			lo := w * chunk
			hi := min(lo+chunk, n)
			if lo >= hi {
				continue
			}
			wg.Add(1)
			go func(w, lo, hi int) {
				defer wg.Done()
				failures[w] = computeRange(trial.Samples, lo, hi, s.Values, s.Humeral)
			}(w, lo, hi)
		}
		wg.Wait()

		for _, f := range failures {
			s.Failures = append(s.Failures, f...)
		}
	}

	if len(s.Failures) == n {
		return s, fmt.Errorf("%w: all %d frames failed, first: %v", ErrNoValidFrames, n, s.Failures[0])
	}
	return s, nil
}

// computeRange fills values[lo:hi] and humeral[lo:hi] and returns the
// failures in frame order.
func computeRange(samples []l1markers.MarkerSample, lo, hi int, values, humeral []float64) []FrameError {
	var failures []FrameError
	for i := lo; i < hi; i++ {
		f, err := l2frames.Build(samples[i])
		if err != nil {
			values[i] = math.NaN()
			humeral[i] = math.NaN()
			failures = append(failures, FrameError{Frame: i, Err: err})
			continue
		}
		a := Extract(f)
		values[i] = a.Rotation
		humeral[i] = a.Humeral
	}
	return failures
}
