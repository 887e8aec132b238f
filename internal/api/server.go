// Package api serves the trial upload page and the JSON, image and chart
// endpoints over stored trials.
package api

import (
	"net/http"
	"time"

	"github.com/danielmundi/PronoSupinoADM/internal/config"
	"github.com/danielmundi/PronoSupinoADM/internal/db"
	"github.com/danielmundi/PronoSupinoADM/internal/fsutil"
	"github.com/danielmundi/PronoSupinoADM/internal/httputil"
	"github.com/danielmundi/PronoSupinoADM/internal/timeutil"
	"github.com/rs/zerolog"
)

// DefaultUploadDir is where uploaded captures are kept.
const DefaultUploadDir = "uploads"

// DefaultMaxUploadBytes caps the size of one uploaded capture.
const DefaultMaxUploadBytes = 64 << 20

type Server struct {
	db        *db.DB
	cfg       *config.TuningConfig
	fs        fsutil.FileSystem
	uploadDir string
	maxUpload int64
	clock     timeutil.Clock
	log       zerolog.Logger
	assets    string
}

// Option customises NewServer.
type Option func(*Server)

// WithUploadDir sets the directory uploaded captures are written to.
func WithUploadDir(dir string) Option { return func(s *Server) { s.uploadDir = dir } }

// WithFileSystem replaces the filesystem used for uploads.
func WithFileSystem(fs fsutil.FileSystem) Option { return func(s *Server) { s.fs = fs } }

// WithClock sets the clock used to name uploads.
func WithClock(c timeutil.Clock) Option { return func(s *Server) { s.clock = c } }

// WithLogger sets the request and handler logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithMaxUploadBytes caps request bodies of uploads.
func WithMaxUploadBytes(n int64) Option { return func(s *Server) { s.maxUpload = n } }

// WithChartAssetsHost serves echarts.min.js from host instead of the CDN.
func WithChartAssetsHost(host string) Option { return func(s *Server) { s.assets = host } }

func NewServer(database *db.DB, cfg *config.TuningConfig, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	s := &Server{
		db:        database,
		cfg:       cfg,
		fs:        fsutil.OSFileSystem{},
		uploadDir: DefaultUploadDir,
		maxUpload: DefaultMaxUploadBytes,
		clock:     timeutil.RealClock{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)

		ev := log.Info()
		switch {
		case lrw.statusCode >= 500:
			ev = log.Error()
		case lrw.statusCode >= 400:
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("uri", r.RequestURI).
			Int("status", lrw.statusCode).
			Float64("ms", float64(time.Since(start).Nanoseconds())/1e6).
			Msg("request")
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.showIndex)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/trials", s.listTrials)
	mux.HandleFunc("POST /api/trials", s.uploadTrial)
	mux.HandleFunc("GET /api/trials/{id}", s.getTrial)
	mux.HandleFunc("DELETE /api/trials/{id}", s.deleteTrial)
	mux.HandleFunc("GET /api/trials/{id}/angles", s.trialAngles)
	mux.HandleFunc("GET /api/trials/{id}/plot.png", s.trialPlot)
	mux.HandleFunc("GET /api/trials/{id}/chart", s.trialChart)
	return mux
}

// logWriteError records a response body that could not be sent.
func (s *Server) logWriteError(err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	s.logWriteError(httputil.WriteJSON(w, status, v))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.logWriteError(httputil.WriteJSONError(w, status, msg))
}

func (s *Server) showIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// showConfig reports the effective analysis settings, defaults filled in.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	c := s.cfg
	order := []string(c.GetMarkerOrder())
	effective := config.TuningConfig{
		PronationThresholdFraction:  ptr(c.GetPronationThresholdFraction()),
		SupinationThresholdFraction: ptr(c.GetSupinationThresholdFraction()),
		SupinationThresholdDegrees:  c.SupinationThresholdDegrees,
		PronationMinDistanceFrames:  ptr(c.GetPronationMinDistanceFrames()),
		SupinationMinDistanceFrames: ptr(c.GetSupinationMinDistanceFrames()),
		DefaultFrequencyHz:          ptr(c.GetDefaultFrequencyHz()),
		MarkerOrder:                 order,
		FrameWorkers:                ptr(c.GetFrameWorkers()),
		LogLevel:                    ptr(c.GetLogLevel()),
	}
	s.writeJSON(w, http.StatusOK, effective)
}

func ptr[T any](v T) *T { return &v }
