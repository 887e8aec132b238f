package l5rom

import (
	"errors"
	"fmt"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyPeakSet is returned when a peak class has no peak to average.
var ErrEmptyPeakSet = errors.New("empty peak set")

// EmptyPeakSetError names the class that had no peaks.
type EmptyPeakSetError struct {
	Class l4peaks.Class
}

func (e *EmptyPeakSetError) Error() string {
	return fmt.Sprintf("no %s peaks found", e.Class)
}

func (e *EmptyPeakSetError) Unwrap() error { return ErrEmptyPeakSet }

// Result is the range of motion of one trial, in degrees.
type Result struct {
	// Pronation is the mean angle of the pronation peaks.
	Pronation float64
	// Supination is the mean signed angle of the supination peaks; it is
	// negative when the forearm supinates past the neutral position.
	Supination float64
	// Total is Pronation - Supination.
	Total float64

	PronationPeaks  int
	SupinationPeaks int
}

func (r Result) String() string {
	return fmt.Sprintf("pronation %.1f°, supination %.1f°, total %.1f°", r.Pronation, r.Supination, r.Total)
}

// Summarize averages each peak class of set. Both classes must be non-empty.
func Summarize(set l4peaks.Set) (Result, error) {
	if len(set.Pronation) == 0 {
		return Result{}, &EmptyPeakSetError{Class: l4peaks.Pronation}
	}
	if len(set.Supination) == 0 {
		return Result{}, &EmptyPeakSetError{Class: l4peaks.Supination}
	}

	r := Result{
		Pronation:       stat.Mean(angles(set.Pronation), nil),
		Supination:      stat.Mean(angles(set.Supination), nil),
		PronationPeaks:  len(set.Pronation),
		SupinationPeaks: len(set.Supination),
	}
	r.Total = r.Pronation - r.Supination
	return r, nil
}

func angles(peaks []l4peaks.Peak) []float64 {
	out := make([]float64, len(peaks))
	for i, p := range peaks {
		out[i] = p.Angle
	}
	return out
}
