// Package pipeline sequences the rotation layers for one trial: frames and
// angles (L2-L3), peak detection (L4) and the range-of-motion summary (L5).
// Each stage consumes the previous stage's result and nothing is shared
// between calls.
package pipeline

import (
	"fmt"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l3angles"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l5rom"
)

// Config holds the per-trial analysis parameters.
type Config struct {
	Pronation  l4peaks.Params
	Supination l4peaks.Params
	// SupinationThresholdDegrees, when set, replaces
	// Supination.ThresholdFraction with the fraction it represents against
	// the largest supination angle of the trial.
	SupinationThresholdDegrees *float64
	// Workers spreads frame processing over goroutines.
	Workers int
}

// DefaultConfig returns the standard analysis parameters.
func DefaultConfig() Config {
	return Config{
		Pronation:  l4peaks.DefaultPronation(),
		Supination: l4peaks.DefaultSupination(),
		Workers:    1,
	}
}

// Validate checks both peak parameter sets.
func (c Config) Validate() error {
	if err := c.Pronation.Validate(); err != nil {
		return fmt.Errorf("pronation: %w", err)
	}
	if err := c.Supination.Validate(); err != nil {
		return fmt.Errorf("supination: %w", err)
	}
	return nil
}

// Report is everything derived from one trial.
type Report struct {
	FrequencyHz        int
	FrequencyDefaulted bool
	DeclaredFrames     int

	Series l3angles.Series
	Peaks  l4peaks.Set
	// Pronation and Supination are the searches actually used, after any
	// degree threshold was converted.
	Pronation  l4peaks.Params
	Supination l4peaks.Params
	// ROM is nil when either peak class came out empty.
	ROM *l5rom.Result
}

// Frames returns the number of samples analysed.
func (r *Report) Frames() int { return r.Series.Len() }

// Warnings lists conditions worth reporting that did not stop the analysis.
func (r *Report) Warnings() []string {
	var out []string
	if r.FrequencyDefaulted {
		out = append(out, fmt.Sprintf("sampling frequency missing, assumed %d Hz", r.FrequencyHz))
	}
	if r.DeclaredFrames > 0 && r.DeclaredFrames != r.Frames() {
		out = append(out, fmt.Sprintf("header declares %d frames, read %d", r.DeclaredFrames, r.Frames()))
	}
	if n := len(r.Series.Failures); n > 0 {
		out = append(out, fmt.Sprintf("%d of %d frames had degenerate marker geometry (first: %v)", n, r.Frames(), r.Series.Failures[0]))
	}
	return out
}

// Analyze runs the full chain on trial.
//
// Once the series exists, later failures (an empty peak class, most often)
// return the partial report together with the error so the series can
// still be shown; its ROM stays nil. Failures before that return a nil
// report.
func Analyze(trial l1markers.Trial, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	series, err := l3angles.Compute(trial, l3angles.Options{Workers: cfg.Workers})
	if err != nil {
		return nil, fmt.Errorf("computing angles: %w", err)
	}

	r := &Report{
		FrequencyHz:        trial.FrequencyHz,
		FrequencyDefaulted: trial.FrequencyDefaulted,
		DeclaredFrames:     trial.DeclaredFrames,
		Series:             series,
		Pronation:          cfg.Pronation,
		Supination:         cfg.Supination,
	}

	if cfg.SupinationThresholdDegrees != nil {
		frac, err := l4peaks.FractionFromDegrees(*cfg.SupinationThresholdDegrees, series.Negated())
		if err != nil {
			return r, fmt.Errorf("supination threshold: %w", err)
		}
		r.Supination.ThresholdFraction = frac
	}

	if r.Peaks, err = l4peaks.Detect(series, cfg.Pronation, r.Supination); err != nil {
		return r, fmt.Errorf("detecting peaks: %w", err)
	}

	rom, err := l5rom.Summarize(r.Peaks)
	if err != nil {
		return r, err
	}
	r.ROM = &rom
	return r, nil
}
