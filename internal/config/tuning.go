package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l1markers"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"github.com/spf13/viper"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// EnvPrefix prefixes the environment variables that override file values,
// e.g. PROSUP_FRAME_WORKERS.
const EnvPrefix = "PROSUP"

// ErrInvalidConfig is returned by Validate for out-of-range values.
var ErrInvalidConfig = errors.New("invalid configuration")

// TuningConfig represents the root configuration for the analysis
// parameters. The same JSON is accepted from the defaults file, a user
// file and returned by the /api/config endpoint.
type TuningConfig struct {
	// Peak detection
	PronationThresholdFraction  *float64 `json:"pronation_threshold_fraction,omitempty" mapstructure:"pronation_threshold_fraction"`
	SupinationThresholdFraction *float64 `json:"supination_threshold_fraction,omitempty" mapstructure:"supination_threshold_fraction"`
	// SupinationThresholdDegrees overrides SupinationThresholdFraction when set.
	SupinationThresholdDegrees  *float64 `json:"supination_threshold_degrees,omitempty" mapstructure:"supination_threshold_degrees"`
	PronationMinDistanceFrames  *int     `json:"pronation_min_distance_frames,omitempty" mapstructure:"pronation_min_distance_frames"`
	SupinationMinDistanceFrames *int     `json:"supination_min_distance_frames,omitempty" mapstructure:"supination_min_distance_frames"`

	// Input
	DefaultFrequencyHz *int     `json:"default_frequency_hz,omitempty" mapstructure:"default_frequency_hz"`
	MarkerOrder        []string `json:"marker_order,omitempty" mapstructure:"marker_order"`

	// Processing
	FrameWorkers *int    `json:"frame_workers,omitempty" mapstructure:"frame_workers"`
	LogLevel     *string `json:"log_level,omitempty" mapstructure:"log_level"`
}

// keys lists every recognised setting; each can be overridden from the
// environment.
var keys = []string{
	"pronation_threshold_fraction",
	"supination_threshold_fraction",
	"supination_threshold_degrees",
	"pronation_min_distance_frames",
	"supination_min_distance_frames",
	"default_frequency_hz",
	"marker_order",
	"frame_workers",
	"log_level",
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file, then applies
// PROSUP_* environment overrides. An empty path loads the environment
// only. The file must have a .json extension and be under 1MB.
// Fields omitted from both keep their nil value and the Get* methods
// supply defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if path != "" {
		data, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg := EmptyTuningConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/prosup/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/rotation/pipeline/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, f := range map[string]*float64{
		"pronation_threshold_fraction":  c.PronationThresholdFraction,
		"supination_threshold_fraction": c.SupinationThresholdFraction,
	} {
		if f != nil && (*f < 0 || *f > 1) {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %f", ErrInvalidConfig, name, *f)
		}
	}

	if c.SupinationThresholdDegrees != nil && (*c.SupinationThresholdDegrees < 0 || *c.SupinationThresholdDegrees > 180) {
		return fmt.Errorf("%w: supination_threshold_degrees must be between 0 and 180, got %f", ErrInvalidConfig, *c.SupinationThresholdDegrees)
	}

	for name, n := range map[string]*int{
		"pronation_min_distance_frames":  c.PronationMinDistanceFrames,
		"supination_min_distance_frames": c.SupinationMinDistanceFrames,
		"default_frequency_hz":           c.DefaultFrequencyHz,
		"frame_workers":                  c.FrameWorkers,
	} {
		if n != nil && *n < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, *n)
		}
	}

	if c.MarkerOrder != nil {
		if err := l1markers.MarkerOrder(c.MarkerOrder).Validate(); err != nil {
			return fmt.Errorf("%w: marker_order: %w", ErrInvalidConfig, err)
		}
	}

	if c.LogLevel != nil {
		switch strings.ToLower(*c.LogLevel) {
		case "trace", "debug", "info", "warn", "error", "":
		default:
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, *c.LogLevel)
		}
	}

	return nil
}

// GetPronationThresholdFraction returns the pronation_threshold_fraction value or the default.
func (c *TuningConfig) GetPronationThresholdFraction() float64 {
	if c.PronationThresholdFraction == nil {
		return l4peaks.DefaultPronationFraction
	}
	return *c.PronationThresholdFraction
}

// GetSupinationThresholdFraction returns the supination_threshold_fraction value or the default.
func (c *TuningConfig) GetSupinationThresholdFraction() float64 {
	if c.SupinationThresholdFraction == nil {
		return l4peaks.DefaultSupinationFraction
	}
	return *c.SupinationThresholdFraction
}

// GetPronationMinDistanceFrames returns the pronation_min_distance_frames value or the default.
func (c *TuningConfig) GetPronationMinDistanceFrames() int {
	if c.PronationMinDistanceFrames == nil {
		return l4peaks.DefaultMinDistance
	}
	return *c.PronationMinDistanceFrames
}

// GetSupinationMinDistanceFrames returns the supination_min_distance_frames value or the default.
func (c *TuningConfig) GetSupinationMinDistanceFrames() int {
	if c.SupinationMinDistanceFrames == nil {
		return l4peaks.DefaultMinDistance
	}
	return *c.SupinationMinDistanceFrames
}

// GetDefaultFrequencyHz returns the default_frequency_hz value or the default.
func (c *TuningConfig) GetDefaultFrequencyHz() int {
	if c.DefaultFrequencyHz == nil {
		return l1markers.DefaultFrequencyHz
	}
	return *c.DefaultFrequencyHz
}

// GetMarkerOrder returns the marker_order value or the default.
func (c *TuningConfig) GetMarkerOrder() l1markers.MarkerOrder {
	if len(c.MarkerOrder) == 0 {
		return l1markers.DefaultMarkerOrder
	}
	return l1markers.MarkerOrder(c.MarkerOrder)
}

// GetFrameWorkers returns the frame_workers value or the default.
func (c *TuningConfig) GetFrameWorkers() int {
	if c.FrameWorkers == nil {
		return 1
	}
	return *c.FrameWorkers
}

// GetLogLevel returns the log_level value or the default.
func (c *TuningConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info"
	}
	return strings.ToLower(*c.LogLevel)
}

// ReaderOptions returns the options for reading capture files.
func (c *TuningConfig) ReaderOptions() l1markers.Options {
	return l1markers.Options{
		MarkerOrder:        c.GetMarkerOrder(),
		DefaultFrequencyHz: c.GetDefaultFrequencyHz(),
	}
}

// PipelineConfig returns the analysis parameters.
func (c *TuningConfig) PipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		Pronation: l4peaks.Params{
			ThresholdFraction: c.GetPronationThresholdFraction(),
			MinDistance:       c.GetPronationMinDistanceFrames(),
		},
		Supination: l4peaks.Params{
			ThresholdFraction: c.GetSupinationThresholdFraction(),
			MinDistance:       c.GetSupinationMinDistanceFrames(),
		},
		Workers: c.GetFrameWorkers(),
	}
	if c.SupinationThresholdDegrees != nil {
		deg := *c.SupinationThresholdDegrees
		cfg.SupinationThresholdDegrees = &deg
	}
	return cfg
}
