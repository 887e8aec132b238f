package l1markers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrInvalidHeader is returned when the TSV header cannot be interpreted.
	ErrInvalidHeader = errors.New("invalid TSV header")
	// ErrMarkerCount is returned when the capture does not hold exactly five markers.
	ErrMarkerCount = errors.New("unexpected number of markers")
	// ErrMissingMarker is returned when a label of the marker order is absent
	// from MARKER_NAMES.
	ErrMissingMarker = errors.New("marker missing from capture")
	// ErrRowShape is returned when a data row does not carry three coordinates
	// per marker.
	ErrRowShape = errors.New("inconsistent marker position vector")
	// ErrMarkerOrder is returned when a MarkerOrder does not name five
	// distinct marker labels.
	ErrMarkerOrder = errors.New("invalid marker order")
)

// maxPreallocFrames bounds the capacity reserved from NO_OF_FRAMES, which
// is untrusted input.
const maxPreallocFrames = 1 << 16

// Header keys of a QTM TSV export.
const (
	keyFrames         = "NO_OF_FRAMES"
	keyFrequency      = "FREQUENCY"
	keyMarkers        = "NO_OF_MARKERS"
	keyMarkerNames    = "MARKER_NAMES"
	keyTrajectoryType = "TRAJECTORY_TYPES"
)

// Options controls how a capture is read.
type Options struct {
	// MarkerOrder maps file labels onto sample fields. Nil uses DefaultMarkerOrder.
	MarkerOrder MarkerOrder
	// DefaultFrequencyHz replaces a missing or zero FREQUENCY. Zero uses
	// DefaultFrequencyHz.
	DefaultFrequencyHz int
}

func (o Options) order() MarkerOrder {
	if o.MarkerOrder == nil {
		return DefaultMarkerOrder
	}
	return o.MarkerOrder
}

func (o Options) defaultFrequency() int {
	if o.DefaultFrequencyHz <= 0 {
		return DefaultFrequencyHz
	}
	return o.DefaultFrequencyHz
}

// ReadFile reads a QTM TSV export from disk.
func ReadFile(path string, opts Options) (Trial, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Trial{}, fmt.Errorf("failed to open marker file: %w", err)
	}
	defer f.Close()

	trial, err := Read(f, opts)
	if err != nil {
		return Trial{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return trial, nil
}

// Read parses a QTM TSV export. The header is consumed up to and including
// the MARKER_NAMES line; every following non-empty line is one frame.
func Read(r io.Reader, opts Options) (Trial, error) {
	order := opts.order()
	if err := order.Validate(); err != nil {
		return Trial{}, err
	}

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	trial := Trial{}
	line := 0

	// Header
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return Trial{}, fmt.Errorf("%w: no %s line", ErrInvalidHeader, keyMarkerNames)
		}
		if err != nil {
			return Trial{}, fmt.Errorf("%w: line %d: %v", ErrInvalidHeader, line+1, err)
		}
		line++
		if len(record) == 0 {
			continue
		}

		key := strings.TrimSpace(record[0])
		switch key {
		case keyFrames:
			n, err := headerInt(record)
			if err != nil {
				return Trial{}, fmt.Errorf("%w: %s: %v", ErrInvalidHeader, key, err)
			}
			trial.DeclaredFrames = n
		case keyFrequency:
			n, err := headerInt(record)
			if err != nil {
				return Trial{}, fmt.Errorf("%w: %s: %v", ErrInvalidHeader, key, err)
			}
			trial.FrequencyHz = n
		case keyMarkers:
			n, err := headerInt(record)
			if err != nil {
				return Trial{}, fmt.Errorf("%w: %s: %v", ErrInvalidHeader, key, err)
			}
			if n != MarkerCount {
				return Trial{}, fmt.Errorf("%w: %d expected, %d found in file", ErrMarkerCount, MarkerCount, n)
			}
		case keyMarkerNames:
			names := trimFields(record[1:])
			if len(names) > MarkerCount {
				return Trial{}, fmt.Errorf("%w: %s lists %d markers", ErrInvalidHeader, key, len(names))
			}
			if len(names) < MarkerCount {
				return Trial{}, fmt.Errorf("%w: %d expected, %d listed", ErrMarkerCount, MarkerCount, len(names))
			}
			trial.MarkerNames = names
		}
		if trial.MarkerNames != nil {
			break
		}
	}

	cols, err := order.columns(trial.MarkerNames)
	if err != nil {
		return Trial{}, err
	}

	if trial.FrequencyHz <= 0 {
		trial.FrequencyHz = opts.defaultFrequency()
		trial.FrequencyDefaulted = true
	}
	if trial.DeclaredFrames > 0 {
		trial.Samples = make([]MarkerSample, 0, min(trial.DeclaredFrames, maxPreallocFrames))
	}

	// Data
	want := 3 * len(trial.MarkerNames)
	row := make([]float64, want)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Trial{}, fmt.Errorf("%w: line %d: %v", ErrRowShape, line+1, err)
		}
		line++
		if isBlank(record) || strings.TrimSpace(record[0]) == keyTrajectoryType {
			continue
		}
		fields := trimFields(record)
		if len(fields) != want {
			return Trial{}, fmt.Errorf("%w: line %d has %d values, want %d", ErrRowShape, line, len(fields), want)
		}
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return Trial{}, fmt.Errorf("%w: line %d column %d: %v", ErrRowShape, line, i+1, err)
			}
			row[i] = v
		}
		trial.Samples = append(trial.Samples, sampleFromRow(row, cols))
	}

	return trial, nil
}

func headerInt(record []string) (int, error) {
	if len(record) < 2 {
		return 0, errors.New("missing value")
	}
	return strconv.Atoi(strings.TrimSpace(record[1]))
}

// trimFields trims whitespace and drops trailing empty fields left by
// exporters that end lines with a tab.
func trimFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimSpace(f))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
