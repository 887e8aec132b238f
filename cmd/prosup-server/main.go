// Command prosup-server serves the capture upload page and the trial API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielmundi/PronoSupinoADM/internal/api"
	"github.com/danielmundi/PronoSupinoADM/internal/config"
	"github.com/danielmundi/PronoSupinoADM/internal/db"
	"github.com/danielmundi/PronoSupinoADM/internal/logging"
	"github.com/danielmundi/PronoSupinoADM/internal/version"
	"github.com/rs/zerolog"
)

type options struct {
	listen      string
	dbPath      string
	uploadDir   string
	configPath  string
	logLevel    string
	logJSON     bool
	chartAssets string
	maxUpload   int64
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("prosup-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.listen, "listen", ":8080", "Listen address")
	fs.StringVar(&o.dbPath, "db", "prosup.db", "SQLite database path")
	fs.StringVar(&o.uploadDir, "uploads", api.DefaultUploadDir, "Directory uploaded captures are kept in")
	fs.StringVar(&o.configPath, "config", "", "JSON tuning file (defaults apply when empty)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (overrides log_level from the config)")
	fs.BoolVar(&o.logJSON, "log-json", false, "Log JSON lines instead of console output")
	fs.StringVar(&o.chartAssets, "chart-assets", "", "Host serving echarts.min.js (CDN when empty)")
	fs.Int64Var(&o.maxUpload, "max-upload", api.DefaultMaxUploadBytes, "Largest accepted upload in bytes")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.listen == "" {
		return nil, errors.New("listen address is required")
	}
	if o.maxUpload <= 0 {
		return nil, errors.New("-max-upload must be positive")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "prosup-server: %v\n", err)
		os.Exit(1)
	}
}

// newHandler mounts the API and the debug routes on one mux, wrapped in
// request logging.
func newHandler(database *db.DB, cfg *config.TuningConfig, o *options, log zerolog.Logger) (http.Handler, error) {
	mux := api.NewServer(database, cfg,
		api.WithUploadDir(o.uploadDir),
		api.WithLogger(log),
		api.WithChartAssetsHost(o.chartAssets),
		api.WithMaxUploadBytes(o.maxUpload),
	).ServeMux()

	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return api.LoggingMiddleware(log, mux), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String("prosup-server"))
		return nil
	}

	cfg, err := config.LoadTuningConfig(o.configPath)
	if err != nil {
		return err
	}
	level := cfg.GetLogLevel()
	if o.logLevel != "" {
		level = o.logLevel
	}
	log := logging.New(stderr, logging.Options{Level: level, JSON: o.logJSON})

	database, err := db.NewDB(o.dbPath, db.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	handler, err := newHandler(database, cfg, o, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              o.listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", o.listen).Str("version", version.Version).Msg("listening")
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Error().Err(err).Msg("HTTP server force close error")
		}
	}
	log.Info().Msg("graceful shutdown complete")
	return nil
}
