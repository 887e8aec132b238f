package l4peaks

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l3angles"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEmptySeries is returned when there is no finite value to search.
	ErrEmptySeries = errors.New("series has no finite values")
	// ErrInvalidParams is returned for a threshold outside [0,1] or a
	// non-positive minimum distance.
	ErrInvalidParams = errors.New("invalid peak parameters")
)

// Default parameters for both peak classes.
const (
	DefaultPronationFraction  = 0.2
	DefaultSupinationFraction = 0.3
	DefaultMinDistance        = 240
)

// Params configures one peak search.
type Params struct {
	// ThresholdFraction places the cutoff at min + fraction·(max-min) of the
	// searched values. Only values strictly above the cutoff qualify.
	ThresholdFraction float64
	// MinDistance is the spacing, in frames, that must separate two
	// accepted peaks: a candidate within MinDistance frames of a higher
	// accepted peak is dropped.
	MinDistance int
}

// DefaultPronation returns the pronation search parameters.
func DefaultPronation() Params {
	return Params{ThresholdFraction: DefaultPronationFraction, MinDistance: DefaultMinDistance}
}

// DefaultSupination returns the supination search parameters.
func DefaultSupination() Params {
	return Params{ThresholdFraction: DefaultSupinationFraction, MinDistance: DefaultMinDistance}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if math.IsNaN(p.ThresholdFraction) || p.ThresholdFraction < 0 || p.ThresholdFraction > 1 {
		return fmt.Errorf("%w: threshold fraction %v not in [0,1]", ErrInvalidParams, p.ThresholdFraction)
	}
	if p.MinDistance < 1 {
		return fmt.Errorf("%w: min distance %d must be positive", ErrInvalidParams, p.MinDistance)
	}
	return nil
}

// Indexes returns the frames of the peaks of values in ascending order.
//
// A peak is a strict local maximum (greater than both neighbours) whose
// value exceeds the relative cutoff. Candidates are then accepted from the
// highest down, skipping any within MinDistance frames of one already
// accepted. Equal heights are taken earliest frame first; peakutils takes
// the later one, so runs of tied peaks can keep different frames there.
// NaN values are ignored when computing the cutoff and never form or
// border a peak. A flat series has no peaks.
func Indexes(values []float64, p Params) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, ErrEmptySeries
	}

	lo, hi := floats.Min(finite), floats.Max(finite)
	if hi == lo {
		return nil, nil
	}
	cutoff := lo + p.ThresholdFraction*(hi-lo)

	var candidates []int
	for i := 1; i < len(values)-1; i++ {
		v := values[i]
		if v > values[i-1] && v > values[i+1] && v > cutoff && !math.IsInf(v, 0) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) < 2 {
		return candidates, nil
	}

	byHeight := slices.Clone(candidates)
	slices.SortStableFunc(byHeight, func(a, b int) int {
		return cmp.Compare(values[b], values[a])
	})

	accepted := make([]int, 0, len(candidates))
	for _, c := range byHeight {
		if !withinDistance(accepted, c, p.MinDistance) {
			accepted = append(accepted, c)
		}
	}
	slices.Sort(accepted)
	return accepted, nil
}

func withinDistance(accepted []int, i, dist int) bool {
	for _, j := range accepted {
		d := i - j
		if d < 0 {
			d = -d
		}
		if d <= dist {
			return true
		}
	}
	return false
}

// FractionFromDegrees converts an absolute threshold in degrees into a
// fraction of the largest value of values, capped at 1. It fails for a
// negative or non-finite deg and when values has no positive maximum.
func FractionFromDegrees(deg float64, values []float64) (float64, error) {
	if deg < 0 || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("%w: threshold %v° must be a non-negative number", ErrInvalidParams, deg)
	}
	top := math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) && v > top {
			top = v
		}
	}
	if math.IsInf(top, -1) {
		return 0, ErrEmptySeries
	}
	if top <= 0 || math.IsInf(top, 1) {
		return 0, fmt.Errorf("%w: cannot express %v° against maximum %v", ErrInvalidParams, deg, top)
	}
	return math.Min(1, deg/top), nil
}

// Class tells which rotation direction a peak belongs to.
type Class int

const (
	Pronation Class = iota
	Supination
)

func (c Class) String() string {
	switch c {
	case Pronation:
		return "pronation"
	case Supination:
		return "supination"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Peak is one accepted extremum. Angle is always the original signed angle,
// so supination peaks are usually negative.
type Peak struct {
	Frame int
	Time  float64
	Angle float64
	Class Class
}

// Set holds the peaks of both classes in frame order.
type Set struct {
	Pronation  []Peak
	Supination []Peak
}

// Frames returns the frame indexes of the peaks of class c.
func (s Set) Frames(c Class) []int {
	peaks := s.Pronation
	if c == Supination {
		peaks = s.Supination
	}
	out := make([]int, len(peaks))
	for i, p := range peaks {
		out[i] = p.Frame
	}
	return out
}

// Detect finds pronation peaks on the series and supination peaks on its
// negation.
func Detect(series l3angles.Series, pronation, supination Params) (Set, error) {
	var set Set

	pro, err := Indexes(series.Values, pronation)
	if err != nil {
		return Set{}, fmt.Errorf("pronation peaks: %w", err)
	}
	sup, err := Indexes(series.Negated(), supination)
	if err != nil {
		return Set{}, fmt.Errorf("supination peaks: %w", err)
	}

	set.Pronation = peaksAt(series, pro, Pronation)
	set.Supination = peaksAt(series, sup, Supination)
	return set, nil
}

func peaksAt(series l3angles.Series, idx []int, c Class) []Peak {
	out := make([]Peak, len(idx))
	for i, f := range idx {
		out[i] = Peak{Frame: f, Time: series.Time(f), Angle: series.Values[f], Class: c}
	}
	return out
}
