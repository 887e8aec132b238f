package testutil

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"gonum.org/v1/gonum/spatial/r3"
)

// Synthetic arm dimensions in metres.
const (
	ForearmLength  = 0.25
	WristHalfWidth = 0.025
	UpperArmLength = 0.30
)

// SampleAt returns marker positions whose forearm rotation angle is angleDeg.
//
// The elbow centre sits at the origin with the forearm along -Y and the
// upper arm along +Z (elbow flexed 90°). The radial styloid circles the
// ulnar styloid in the XZ plane; its phase θ = 90° - angle yields the
// requested signed angle for any angle in (-180, 180].
func SampleAt(angleDeg float64) l1markers.MarkerSample {
	theta := (90 - angleDeg) * math.Pi / 180
	us := r3.Vec{X: 0, Y: -ForearmLength, Z: 0}
	return l1markers.MarkerSample{
		AC: r3.Vec{X: 0, Y: 0, Z: UpperArmLength},
		// EL and EM are deliberately asymmetric about the origin in Y and Z
		// but their midpoint is the origin.
		EL: r3.Vec{X: -0.045, Y: 0.004, Z: -0.012},
		EM: r3.Vec{X: 0.045, Y: -0.004, Z: 0.012},
		RS: r3.Add(us, r3.Vec{X: WristHalfWidth * math.Cos(theta), Y: 0, Z: WristHalfWidth * math.Sin(theta)}),
		US: us,
	}
}

// Translate shifts every marker of s by offset.
func Translate(s l1markers.MarkerSample, offset r3.Vec) l1markers.MarkerSample {
	return l1markers.MarkerSample{
		AC: r3.Add(s.AC, offset),
		EL: r3.Add(s.EL, offset),
		EM: r3.Add(s.EM, offset),
		RS: r3.Add(s.RS, offset),
		US: r3.Add(s.US, offset),
	}
}

// SineAngles returns amplitude·sin(2πt/period) sampled at hz for duration seconds.
func SineAngles(amplitude, periodSec, durationSec float64, hz int) []float64 {
	n := int(math.Round(durationSec * float64(hz)))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(hz)
		out[i] = amplitude * math.Sin(2*math.Pi*t/periodSec)
	}
	return out
}

// TrialFromAngles builds a trial whose frame i has rotation angle angles[i].
func TrialFromAngles(angles []float64, hz int) l1markers.Trial {
	samples := make([]l1markers.MarkerSample, len(angles))
	for i, a := range angles {
		samples[i] = SampleAt(a)
	}
	return l1markers.Trial{
		FrequencyHz:    hz,
		Samples:        samples,
		DeclaredFrames: len(samples),
		MarkerNames:    append([]string(nil), l1markers.DefaultMarkerOrder...),
	}
}

// WriteTSV writes trial as a QTM TSV export. names gives the marker column
// order in the file; every name must be one of the anatomical labels.
func WriteTSV(w io.Writer, trial l1markers.Trial, names []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "NO_OF_FRAMES\t%d\n", len(trial.Samples))
	fmt.Fprintf(&b, "NO_OF_CAMERAS\t8\n")
	fmt.Fprintf(&b, "NO_OF_MARKERS\t%d\n", len(names))
	if trial.FrequencyHz > 0 {
		fmt.Fprintf(&b, "FREQUENCY\t%d\n", trial.FrequencyHz)
	}
	fmt.Fprintf(&b, "NO_OF_ANALOG\t0\n")
	fmt.Fprintf(&b, "DESCRIPTION\t--\n")
	fmt.Fprintf(&b, "DATA_INCLUDED\t3D\n")
	fmt.Fprintf(&b, "MARKER_NAMES\t%s\n", strings.Join(names, "\t"))

	for _, s := range trial.Samples {
		fields := make([]string, 0, 3*len(names))
		for _, name := range names {
			v, err := markerByLabel(s, name)
			if err != nil {
				return err
			}
			fields = append(fields,
				fmt.Sprintf("%.6f", v.X),
				fmt.Sprintf("%.6f", v.Y),
				fmt.Sprintf("%.6f", v.Z))
		}
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// TSV returns trial encoded with WriteTSV using the default marker order.
func TSV(trial l1markers.Trial) string {
	var b strings.Builder
	if err := WriteTSV(&b, trial, l1markers.DefaultMarkerOrder); err != nil {
		panic(err)
	}
	return b.String()
}

func markerByLabel(s l1markers.MarkerSample, label string) (r3.Vec, error) {
	switch label {
	case l1markers.Acromion:
		return s.AC, nil
	case l1markers.LateralEpicondyl:
		return s.EL, nil
	case l1markers.MedialEpicondyl:
		return s.EM, nil
	case l1markers.RadialStyloid:
		return s.RS, nil
	case l1markers.UlnarStyloid:
		return s.US, nil
	}
	return r3.Vec{}, fmt.Errorf("unknown marker label %q", label)
}
