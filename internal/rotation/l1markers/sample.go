package l1markers

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// MarkerCount is the number of markers a forearm rotation capture carries.
const MarkerCount = 5

// DefaultFrequencyHz is used when the capture header does not state a frequency.
const DefaultFrequencyHz = 120

// Anatomical marker labels.
const (
	Acromion         = "AC"
	LateralEpicondyl = "EL"
	MedialEpicondyl  = "EM"
	RadialStyloid    = "RS"
	UlnarStyloid     = "US"
)

// MarkerSample holds the five marker positions captured in one frame.
type MarkerSample struct {
	AC r3.Vec // acromion
	EL r3.Vec // lateral epicondyle
	EM r3.Vec // medial epicondyle
	RS r3.Vec // radial styloid
	US r3.Vec // ulnar styloid
}

// Trial is one complete capture: an ordered sequence of samples and the
// sampling frequency they were recorded at.
type Trial struct {
	FrequencyHz int
	Samples     []MarkerSample

	// FrequencyDefaulted is set when the header carried no usable frequency
	// and DefaultFrequencyHz was substituted.
	FrequencyDefaulted bool
	// DeclaredFrames is the NO_OF_FRAMES header value, 0 when absent.
	DeclaredFrames int
	// MarkerNames lists the marker columns in file order.
	MarkerNames []string
}

// Len returns the number of frames in the trial.
func (t Trial) Len() int { return len(t.Samples) }

// Duration returns the capture length in seconds.
func (t Trial) Duration() float64 {
	if t.FrequencyHz <= 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.FrequencyHz)
}

// MarkerOrder names, for each sample field in anatomical order (AC, EL, EM,
// RS, US), the marker label that carries it in the capture file. Labs that
// name their markers differently supply their own order.
type MarkerOrder []string

// DefaultMarkerOrder expects files to use the anatomical labels directly.
var DefaultMarkerOrder = MarkerOrder{Acromion, LateralEpicondyl, MedialEpicondyl, RadialStyloid, UlnarStyloid}

// Validate checks that the order names five distinct, non-empty labels.
func (o MarkerOrder) Validate() error {
	if len(o) != MarkerCount {
		return fmt.Errorf("%w: %d labels, want %d", ErrMarkerOrder, len(o), MarkerCount)
	}
	seen := make(map[string]bool, len(o))
	for i, label := range o {
		if label == "" {
			return fmt.Errorf("%w: empty label for %s", ErrMarkerOrder, DefaultMarkerOrder[i])
		}
		if seen[label] {
			return fmt.Errorf("%w: duplicate label %q", ErrMarkerOrder, label)
		}
		seen[label] = true
	}
	return nil
}

// columns resolves, for each sample field, the index of the marker column in
// names that carries it.
func (o MarkerOrder) columns(names []string) ([MarkerCount]int, error) {
	var idx [MarkerCount]int
	position := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := position[name]; dup {
			return idx, fmt.Errorf("%w: marker %q listed twice", ErrInvalidHeader, name)
		}
		position[name] = i
	}
	for field, label := range o {
		col, ok := position[label]
		if !ok {
			return idx, fmt.Errorf("%w: %q not in %v", ErrMissingMarker, label, names)
		}
		idx[field] = col
	}
	return idx, nil
}

// sampleFromRow builds a sample from a row of 3·len(names) coordinates.
func sampleFromRow(row []float64, cols [MarkerCount]int) MarkerSample {
	at := func(c int) r3.Vec {
		return r3.Vec{X: row[3*c], Y: row[3*c+1], Z: row[3*c+2]}
	}
	return MarkerSample{
		AC: at(cols[0]),
		EL: at(cols[1]),
		EM: at(cols[2]),
		RS: at(cols[3]),
		US: at(cols[4]),
	}
}
