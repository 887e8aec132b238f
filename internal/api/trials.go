package api

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielmundi/PronoSupinoADM/internal/chart"
	"github.com/danielmundi/PronoSupinoADM/internal/db"
	"github.com/danielmundi/PronoSupinoADM/internal/httputil"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"github.com/danielmundi/PronoSupinoADM/internal/security"
	"gonum.org/v1/plot/vg"
)

//go:embed index.html
var indexHTML []byte

// uploadField is the multipart field carrying the capture.
const uploadField = "file"

const defaultListLimit = 50

// uploadResponse is returned after a capture has been analysed and stored.
type uploadResponse struct {
	*db.Trial
	Warnings []string `json:"warnings,omitempty"`
}

// anglesResponse carries a stored series column-wise. Failed frames are null.
type anglesResponse struct {
	TrialID     string         `json:"trial_id"`
	FrequencyHz int            `json:"frequency_hz"`
	Time        []float64      `json:"time_s"`
	Angle       []*float64     `json:"angle_deg"`
	Humeral     []*float64     `json:"humeral_deg"`
	Failures    []frameFailure `json:"failures,omitempty"`
}

type frameFailure struct {
	Frame int    `json:"frame"`
	Error string `json:"error"`
}

func (s *Server) uploadTrial(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.logWriteError(httputil.BadRequest(w, fmt.Sprintf("missing %q file field", uploadField)))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".tsv") {
		s.logWriteError(httputil.BadRequest(w, "only .tsv captures are accepted"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.logWriteError(httputil.BadRequest(w, fmt.Sprintf("failed to read upload: %v", err)))
		return
	}

	path, err := s.storeUpload(name, data)
	if err != nil {
		s.log.Error().Err(err).Str("file", name).Msg("failed to store upload")
		s.logWriteError(httputil.InternalServerError(w, "failed to store upload"))
		return
	}

	trial, err := l1markers.Read(bytes.NewReader(data), s.cfg.ReaderOptions())
	if err != nil {
		s.discardUpload(path)
		s.logWriteError(httputil.Unprocessable(w, err.Error()))
		return
	}

	report, romErr := pipeline.Analyze(trial, s.cfg.PipelineConfig())
	if report == nil {
		s.discardUpload(path)
		s.logWriteError(httputil.Unprocessable(w, romErr.Error()))
		return
	}

	stored, err := s.db.RecordTrial(r.Context(), db.NewTrial{
		Name:       name,
		SourcePath: path,
		Report:     report,
		ROMErr:     romErr,
	})
	if err != nil {
		s.discardUpload(path)
		s.logWriteError(httputil.InternalServerError(w, fmt.Sprintf("failed to record trial: %v", err)))
		return
	}

	ev := s.log.Info().Str("trial", stored.ID).Str("file", name).Int("frames", stored.Frames)
	if stored.ROM != nil {
		ev = ev.Float64("total_deg", stored.ROM.Total)
	} else {
		ev = ev.Str("rom_error", stored.ROMError)
	}
	ev.Msg("trial analysed")

	w.Header().Set("Location", "/api/trials/"+stored.ID)
	s.writeJSON(w, http.StatusCreated, uploadResponse{Trial: stored, Warnings: report.Warnings()})
}

// storeUpload writes data under the upload directory with a timestamp
// prefix so repeated uploads of the same file never collide.
func (s *Server) storeUpload(name string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	stamp := s.clock.Now().UTC().Format("20060102T150405.000000")
	path := filepath.Join(s.uploadDir, strings.ReplaceAll(stamp, ".", "")+"_"+security.SanitizeFilename(name, "capture.tsv"))
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// discardUpload removes a stored capture. Files outside the upload
// directory, such as captures recorded by the CLI, are left alone.
func (s *Server) discardUpload(path string) {
	if err := security.ValidatePathWithinDirectory(path, s.uploadDir); err != nil {
		s.log.Debug().Err(err).Msg("not removing file outside the upload directory")
		return
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to remove upload")
	}
}

func (s *Server) listTrials(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			s.logWriteError(httputil.BadRequest(w, "Invalid 'limit' parameter"))
			return
		}
		limit = parsed
	}

	trials, err := s.db.Trials(r.Context(), limit)
	if err != nil {
		s.logWriteError(httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve trials: %v", err)))
		return
	}
	if trials == nil {
		trials = []db.Trial{}
	}
	s.writeJSON(w, http.StatusOK, trials)
}

// writeLookupError maps a store error to a response.
func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		s.logWriteError(httputil.NotFound(w, err.Error()))
		return
	}
	s.log.Error().Err(err).Msg("trial lookup failed")
	s.logWriteError(httputil.InternalServerError(w, err.Error()))
}

func (s *Server) getTrial(w http.ResponseWriter, r *http.Request) {
	t, err := s.db.Trial(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTrial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.db.Trial(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if err := s.db.DeleteTrial(r.Context(), id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	if t.SourcePath != "" {
		s.discardUpload(t.SourcePath)
	}
	s.log.Info().Str("trial", id).Msg("trial deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trialAngles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	series, err := s.db.TrialAngles(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	resp := anglesResponse{
		TrialID:     id,
		FrequencyHz: series.FrequencyHz,
		Time:        series.Times(),
		Angle:       nullableSlice(series.Values),
		Humeral:     nullableSlice(series.Humeral),
	}
	for _, f := range series.Failures {
		resp.Failures = append(resp.Failures, frameFailure{Frame: f.Frame, Error: f.Err.Error()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// nullableSlice maps NaN to nil so the values survive JSON encoding.
func nullableSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = &values[i]
	}
	return out
}

// pixelsParam reads a pixel dimension from the query, bounded to a sane
// image size.
func pixelsParam(r *http.Request, key string, def vg.Length) (vg.Length, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	px, err := strconv.Atoi(v)
	if err != nil || px < 100 || px > 4000 {
		return 0, fmt.Errorf("invalid %q parameter: want 100-4000 pixels", key)
	}
	return vg.Length(px) * vg.Inch / 96, nil
}

func (s *Server) trialPlot(w http.ResponseWriter, r *http.Request) {
	width, err := pixelsParam(r, "width", chart.DefaultSize.Width)
	if err != nil {
		s.logWriteError(httputil.BadRequest(w, err.Error()))
		return
	}
	height, err := pixelsParam(r, "height", chart.DefaultSize.Height)
	if err != nil {
		s.logWriteError(httputil.BadRequest(w, err.Error()))
		return
	}

	_, report, err := s.db.LoadReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, report, chart.Size{Width: width, Height: height}); err != nil {
		s.logWriteError(httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err)))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) trialChart(w http.ResponseWriter, r *http.Request) {
	_, report, err := s.db.LoadReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderHTML(&buf, report, chart.HTMLOptions{AssetsHost: s.assets}); err != nil {
		s.logWriteError(httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err)))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
