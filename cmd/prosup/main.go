// Command prosup computes the forearm pronation/supination range of motion
// of one QTM TSV capture.
//
//	prosup [flags] capture.tsv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danielmundi/PronoSupinoADM/internal/api"
	"github.com/danielmundi/PronoSupinoADM/internal/chart"
	"github.com/danielmundi/PronoSupinoADM/internal/config"
	"github.com/danielmundi/PronoSupinoADM/internal/db"
	"github.com/danielmundi/PronoSupinoADM/internal/logging"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"github.com/danielmundi/PronoSupinoADM/internal/version"
	"github.com/rs/zerolog"
)

// errUsage marks argument errors; main exits 2 for them.
var errUsage = errors.New("usage")

type options struct {
	configPath string
	jsonOut    bool
	pngPath    string
	htmlPath   string
	dbPath     string
	uploadURL  string
	logLevel   string
	workers    int
	version    bool
	input      string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("prosup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "JSON tuning file (defaults apply when empty)")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON")
	fs.StringVar(&o.pngPath, "png", "", "Write the annotated angle plot to this file (.png, .svg, .pdf)")
	fs.StringVar(&o.htmlPath, "html", "", "Write the interactive chart to this HTML file")
	fs.StringVar(&o.dbPath, "db", "", "Record the trial in this SQLite database")
	fs.StringVar(&o.uploadURL, "upload", "", "Also send the capture to the prosup-server at this URL")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (overrides log_level from the config)")
	fs.IntVar(&o.workers, "workers", 0, "Goroutines used for frame processing (overrides frame_workers)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: prosup [flags] capture.tsv\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if o.version {
		return o, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("%w: expected one capture file, got %d", errUsage, fs.NArg())
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("%w: -workers must not be negative", errUsage)
	}
	o.input = fs.Arg(0)
	return o, nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "prosup: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String("prosup"))
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
	log := logging.New(stderr, logging.Options{Level: level})

	trial, err := l1markers.ReadFile(o.input, cfg.ReaderOptions())
	if err != nil {
		return err
	}
	log.Debug().Str("file", o.input).Int("frames", trial.Len()).Int("hz", trial.FrequencyHz).Msg("capture read")

	pcfg := cfg.PipelineConfig()
	if o.workers > 0 {
		pcfg.Workers = o.workers
	}
	report, romErr := pipeline.Analyze(trial, pcfg)
	if report == nil {
		return romErr
	}
	for _, w := range report.Warnings() {
		log.Warn().Str("file", o.input).Msg(w)
	}

	if err := writeOutputs(o, report, log); err != nil {
		return err
	}
	if o.dbPath != "" {
		if err := record(ctx, o, report, romErr, log); err != nil {
			return err
		}
	}
	if o.uploadURL != "" {
		if err := upload(ctx, o, log); err != nil {
			return err
		}
	}

	if o.jsonOut {
		if err := printJSON(stdout, o.input, report, romErr); err != nil {
			return err
		}
	} else {
		printText(stdout, o.input, report, romErr)
	}
	return romErr
}

func writeOutputs(o *options, report *pipeline.Report, log zerolog.Logger) error {
	if o.pngPath != "" {
		if err := chart.Save(o.pngPath, report, chart.DefaultSize); err != nil {
			return err
		}
		log.Info().Str("path", o.pngPath).Msg("plot written")
	}
	if o.htmlPath != "" {
		f, err := os.Create(filepath.Clean(o.htmlPath))
		if err != nil {
			return fmt.Errorf("failed to create chart file: %w", err)
		}
		if err := chart.RenderHTML(f, report, chart.HTMLOptions{}); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Info().Str("path", o.htmlPath).Msg("chart written")
	}
	return nil
}

func record(ctx context.Context, o *options, report *pipeline.Report, romErr error, log zerolog.Logger) error {
	database, err := db.NewDB(o.dbPath, db.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	abs, err := filepath.Abs(o.input)
	if err != nil {
		abs = o.input
	}
	t, err := database.RecordTrial(ctx, db.NewTrial{
		Name:       filepath.Base(o.input),
		SourcePath: abs,
		Report:     report,
		ROMErr:     romErr,
	})
	if err != nil {
		return err
	}
	log.Info().Str("trial", t.ID).Str("db", o.dbPath).Msg("trial recorded")
	return nil
}

func upload(ctx context.Context, o *options, log zerolog.Logger) error {
	data, err := os.ReadFile(o.input)
	if err != nil {
		return err
	}
	res, err := api.NewClient(o.uploadURL, nil).Upload(ctx, filepath.Base(o.input), data)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	log.Info().Str("trial", res.ID).Str("server", o.uploadURL).Msg("trial uploaded")
	return nil
}

func printText(w io.Writer, name string, report *pipeline.Report, romErr error) {
	fmt.Fprintf(w, "%s: %d frames at %d Hz\n", filepath.Base(name), report.Frames(), report.FrequencyHz)
	fmt.Fprintf(w, "  pronation peaks:  %v\n", report.Peaks.Frames(l4peaks.Pronation))
	fmt.Fprintf(w, "  supination peaks: %v\n", report.Peaks.Frames(l4peaks.Supination))
	if report.ROM != nil {
		fmt.Fprintf(w, "  %s\n", report.ROM)
	} else if romErr != nil {
		fmt.Fprintf(w, "  no result: %v\n", romErr)
	}
}

type peakJSON struct {
	Frame int     `json:"frame"`
	Time  float64 `json:"time_s"`
	Angle float64 `json:"angle_deg"`
}

type resultJSON struct {
	File            string     `json:"file"`
	Frames          int        `json:"frames"`
	FrequencyHz     int        `json:"frequency_hz"`
	FailedFrames    int        `json:"failed_frames"`
	Pronation       *float64   `json:"pronation_deg,omitempty"`
	Supination      *float64   `json:"supination_deg,omitempty"`
	Total           *float64   `json:"total_deg,omitempty"`
	Error           string     `json:"error,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
	PronationPeaks  []peakJSON `json:"pronation_peaks"`
	SupinationPeaks []peakJSON `json:"supination_peaks"`
}

func printJSON(w io.Writer, name string, report *pipeline.Report, romErr error) error {
	out := resultJSON{
		File:            filepath.Base(name),
		Frames:          report.Frames(),
		FrequencyHz:     report.FrequencyHz,
		FailedFrames:    len(report.Series.Failures),
		Warnings:        report.Warnings(),
		PronationPeaks:  peaksJSON(report.Peaks.Pronation),
		SupinationPeaks: peaksJSON(report.Peaks.Supination),
	}
	if report.ROM != nil {
		out.Pronation = &report.ROM.Pronation
		out.Supination = &report.ROM.Supination
		out.Total = &report.ROM.Total
	}
	if romErr != nil {
		out.Error = romErr.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func peaksJSON(peaks []l4peaks.Peak) []peakJSON {
	out := make([]peakJSON, len(peaks))
	for i, p := range peaks {
		out[i] = peakJSON{Frame: p.Frame, Time: p.Time, Angle: p.Angle}
	}
	return out
}
