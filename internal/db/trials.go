package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l3angles"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l5rom"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no trial has the requested ID.
var ErrNotFound = errors.New("trial not found")

// ROM is the stored range of motion of a trial, in degrees.
type ROM struct {
	Pronation  float64 `json:"pronation_deg"`
	Supination float64 `json:"supination_deg"`
	Total      float64 `json:"total_deg"`
}

// Trial is the summary row of one analysed capture.
type Trial struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	SourcePath         string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	FrequencyHz        int       `json:"frequency_hz"`
	FrequencyDefaulted bool      `json:"frequency_defaulted"`
	DeclaredFrames     int       `json:"declared_frames"`
	Frames             int       `json:"frames"`
	FailedFrames       int       `json:"failed_frames"`

	PronationThreshold    float64 `json:"pronation_threshold_fraction"`
	SupinationThreshold   float64 `json:"supination_threshold_fraction"`
	PronationMinDistance  int     `json:"pronation_min_distance_frames"`
	SupinationMinDistance int     `json:"supination_min_distance_frames"`

	// ROM is nil when the analysis could not summarise the trial; ROMError
	// then says why.
	ROM      *ROM   `json:"rom,omitempty"`
	ROMError string `json:"rom_error,omitempty"`
}

// NewTrial describes a trial to record.
type NewTrial struct {
	Name       string
	SourcePath string
	Report     *pipeline.Report
	// ROMErr is the error Analyze returned alongside Report, if any.
	ROMErr error
}

const trialColumns = `trial_id, name, source_path, created_unix_nanos, frequency_hz,
	frequency_defaulted, declared_frames, frames, failed_frames,
	pronation_threshold, supination_threshold, pronation_min_distance,
	supination_min_distance, pronation_deg, supination_deg, total_deg, rom_error`

// RecordTrial stores the report with its series and peaks in one
// transaction and returns the stored summary.
func (db *DB) RecordTrial(ctx context.Context, nt NewTrial) (*Trial, error) {
	r := nt.Report
	if r == nil {
		return nil, errors.New("record trial: nil report")
	}

	t := &Trial{
		ID:                    uuid.NewString(),
		Name:                  nt.Name,
		SourcePath:            nt.SourcePath,
		CreatedAt:             db.clock.Now().UTC(),
		FrequencyHz:           r.FrequencyHz,
		FrequencyDefaulted:    r.FrequencyDefaulted,
		DeclaredFrames:        r.DeclaredFrames,
		Frames:                r.Frames(),
		FailedFrames:          len(r.Series.Failures),
		PronationThreshold:    r.Pronation.ThresholdFraction,
		SupinationThreshold:   r.Supination.ThresholdFraction,
		PronationMinDistance:  r.Pronation.MinDistance,
		SupinationMinDistance: r.Supination.MinDistance,
	}
	var pro, sup, total sql.NullFloat64
	var romErr sql.NullString
	if r.ROM != nil {
		t.ROM = &ROM{Pronation: r.ROM.Pronation, Supination: r.ROM.Supination, Total: r.ROM.Total}
		pro = sql.NullFloat64{Float64: r.ROM.Pronation, Valid: true}
		sup = sql.NullFloat64{Float64: r.ROM.Supination, Valid: true}
		total = sql.NullFloat64{Float64: r.ROM.Total, Valid: true}
	}
	if nt.ROMErr != nil {
		t.ROMError = nt.ROMErr.Error()
		romErr = sql.NullString{String: t.ROMError, Valid: true}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trials (`+trialColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.SourcePath, t.CreatedAt.UnixNano(), t.FrequencyHz,
		t.FrequencyDefaulted, t.DeclaredFrames, t.Frames, t.FailedFrames,
		t.PronationThreshold, t.SupinationThreshold, t.PronationMinDistance,
		t.SupinationMinDistance, pro, sup, total, romErr,
	); err != nil {
		return nil, fmt.Errorf("failed to insert trial: %w", err)
	}

	failures := make(map[int]string, len(r.Series.Failures))
	for _, f := range r.Series.Failures {
		failures[f.Frame] = f.Err.Error()
	}

	angleStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trial_angles (trial_id, frame, angle_deg, humeral_deg, failure) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer angleStmt.Close()

	for i, v := range r.Series.Values {
		humeral := math.NaN()
		if i < len(r.Series.Humeral) {
			humeral = r.Series.Humeral[i]
		}
		var failure sql.NullString
		if msg, ok := failures[i]; ok {
			failure = sql.NullString{String: msg, Valid: true}
		}
		if _, err := angleStmt.ExecContext(ctx, t.ID, i, nullable(v), nullable(humeral), failure); err != nil {
			return nil, fmt.Errorf("failed to insert angle %d: %w", i, err)
		}
	}

	peakStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trial_peaks (trial_id, class, frame, angle_deg) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer peakStmt.Close()

	for _, peaks := range [][]l4peaks.Peak{r.Peaks.Pronation, r.Peaks.Supination} {
		for _, p := range peaks {
			if _, err := peakStmt.ExecContext(ctx, t.ID, p.Class.String(), p.Frame, p.Angle); err != nil {
				return nil, fmt.Errorf("failed to insert %s peak at frame %d: %w", p.Class, p.Frame, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	db.log.Debug().Str("trial", t.ID).Int("frames", t.Frames).Msg("trial recorded")
	return t, nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (*Trial, error) {
	var t Trial
	var created int64
	var pro, sup, total sql.NullFloat64
	var romErr sql.NullString
	if err := row.Scan(
		&t.ID, &t.Name, &t.SourcePath, &created, &t.FrequencyHz,
		&t.FrequencyDefaulted, &t.DeclaredFrames, &t.Frames, &t.FailedFrames,
		&t.PronationThreshold, &t.SupinationThreshold, &t.PronationMinDistance,
		&t.SupinationMinDistance, &pro, &sup, &total, &romErr,
	); err != nil {
		return nil, err
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	if pro.Valid && sup.Valid && total.Valid {
		t.ROM = &ROM{Pronation: pro.Float64, Supination: sup.Float64, Total: total.Float64}
	}
	t.ROMError = romErr.String
	return &t, nil
}

// Trials returns the most recent trials first. A limit of zero or less
// returns all of them.
func (db *DB) Trials(ctx context.Context, limit int) ([]Trial, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+trialColumns+` FROM trials ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trial
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Trial returns one trial summary.
func (db *DB) Trial(ctx context.Context, id string) (*Trial, error) {
	t, err := scanTrial(db.QueryRowContext(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE trial_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// TrialAngles returns the stored angle series of a trial. Frames that
// failed during analysis come back as NaN and are listed in Failures.
func (db *DB) TrialAngles(ctx context.Context, id string) (l3angles.Series, error) {
	t, err := db.Trial(ctx, id)
	if err != nil {
		return l3angles.Series{}, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT frame, angle_deg, humeral_deg, failure FROM trial_angles WHERE trial_id = ? ORDER BY frame`, id)
	if err != nil {
		return l3angles.Series{}, err
	}
	defer rows.Close()

	s := l3angles.Series{
		FrequencyHz: t.FrequencyHz,
		Values:      make([]float64, 0, t.Frames),
		Humeral:     make([]float64, 0, t.Frames),
	}
	for rows.Next() {
		var frame int
		var angle, humeral sql.NullFloat64
		var failure sql.NullString
		if err := rows.Scan(&frame, &angle, &humeral, &failure); err != nil {
			return l3angles.Series{}, err
		}
		s.Values = append(s.Values, valueOrNaN(angle))
		s.Humeral = append(s.Humeral, valueOrNaN(humeral))
		if failure.Valid {
			s.Failures = append(s.Failures, l3angles.FrameError{Frame: frame, Err: errors.New(failure.String)})
		}
	}
	return s, rows.Err()
}

func valueOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// TrialPeaks returns the stored peaks of a trial in frame order.
func (db *DB) TrialPeaks(ctx context.Context, id string) (l4peaks.Set, error) {
	if _, err := db.Trial(ctx, id); err != nil {
		return l4peaks.Set{}, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT class, frame, angle_deg FROM trial_peaks WHERE trial_id = ? ORDER BY frame`, id)
	if err != nil {
		return l4peaks.Set{}, err
	}
	defer rows.Close()

	var set l4peaks.Set
	for rows.Next() {
		var class string
		var p l4peaks.Peak
		if err := rows.Scan(&class, &p.Frame, &p.Angle); err != nil {
			return l4peaks.Set{}, err
		}
		switch class {
		case l4peaks.Pronation.String():
			p.Class = l4peaks.Pronation
			set.Pronation = append(set.Pronation, p)
		case l4peaks.Supination.String():
			p.Class = l4peaks.Supination
			set.Supination = append(set.Supination, p)
		default:
			return l4peaks.Set{}, fmt.Errorf("unknown peak class %q", class)
		}
	}
	return set, rows.Err()
}

// LoadReport rebuilds the analysis report of a stored trial, enough to
// redraw its charts.
func (db *DB) LoadReport(ctx context.Context, id string) (*Trial, *pipeline.Report, error) {
	t, err := db.Trial(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	series, err := db.TrialAngles(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	peaks, err := db.TrialPeaks(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for i := range peaks.Pronation {
		peaks.Pronation[i].Time = series.Time(peaks.Pronation[i].Frame)
	}
	for i := range peaks.Supination {
		peaks.Supination[i].Time = series.Time(peaks.Supination[i].Frame)
	}

	r := &pipeline.Report{
		FrequencyHz:        t.FrequencyHz,
		FrequencyDefaulted: t.FrequencyDefaulted,
		DeclaredFrames:     t.DeclaredFrames,
		Series:             series,
		Peaks:              peaks,
		Pronation:          l4peaks.Params{ThresholdFraction: t.PronationThreshold, MinDistance: t.PronationMinDistance},
		Supination:         l4peaks.Params{ThresholdFraction: t.SupinationThreshold, MinDistance: t.SupinationMinDistance},
	}
	if t.ROM != nil {
		r.ROM = &l5rom.Result{
			Pronation:       t.ROM.Pronation,
			Supination:      t.ROM.Supination,
			Total:           t.ROM.Total,
			PronationPeaks:  len(peaks.Pronation),
			SupinationPeaks: len(peaks.Supination),
		}
	}
	return t, r, nil
}

// DeleteTrial removes a trial with its series and peaks.
func (db *DB) DeleteTrial(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM trial_angles WHERE trial_id = ?`,
		`DELETE FROM trial_peaks WHERE trial_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM trials WHERE trial_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return tx.Commit()
}
