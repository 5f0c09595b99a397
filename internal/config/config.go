// Package config loads and validates the settings of an mzfdr run from a
// YAML file with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/524D/mzfdr/internal/fdr"
)

// Grouping policies
const (
	GroupingNone            = "none"
	GroupingModified        = "modified"
	GroupingMissedCleavages = "missed-cleavages"
)

// ErrInvalidConfig is wrapped by all validation errors
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete configuration of a run.
type Config struct {
	Dimensions      []DimensionConfig `yaml:"dimensions"`
	MinObservations int               `yaml:"minObservations"`
	SmoothingDegree int               `yaml:"smoothingDegree"`
	RemoveSpikes    bool              `yaml:"removeSpikes"`
	TargetFDR       float64           `yaml:"targetFDR"`
	GroupThresholds bool              `yaml:"groupThresholds"`
	Grouping        string            `yaml:"grouping"`
	Charge          ChargeConfig      `yaml:"charge"`
	MaxRank         int               `yaml:"maxRank"`
	Filter          FilterConfig      `yaml:"filter"`
	Logging         LoggingConfig     `yaml:"logging"`
}

// DimensionConfig describes one score axis of the histograms.
type DimensionConfig struct {
	Score     string  `yaml:"score"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Bins      int     `yaml:"bins"`
	Transform string  `yaml:"transform"`
}

// ChargeConfig limits the charge states that are used.
type ChargeConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// FilterConfig controls the parallel filter stage.
type FilterConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batchSize"`
}

// LoggingConfig controls logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the configuration used when nothing is specified: the
// MS-GF+ spectral e-value on a -log10 scale.
func Default() *Config {
	return &Config{
		Dimensions: []DimensionConfig{
			{Score: "MS:1002052", Min: 0, Max: 30, Bins: 60, Transform: string(fdr.TransformNegLog10)},
		},
		MinObservations: 100,
		SmoothingDegree: 2,
		RemoveSpikes:    true,
		TargetFDR:       0.01,
		Grouping:        GroupingNone,
		Charge:          ChargeConfig{Min: 1, Max: 5},
		MaxRank:         1,
		Filter: FilterConfig{
			Workers:   runtime.GOMAXPROCS(0),
			BatchSize: fdr.DefaultBatchSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides reads MZFDR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MZFDR_TARGET_FDR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TargetFDR = f
		}
	}
	if v := os.Getenv("MZFDR_MIN_OBSERVATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinObservations = n
		}
	}
	if v := os.Getenv("MZFDR_SMOOTHING_DEGREE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SmoothingDegree = n
		}
	}
	if v := os.Getenv("MZFDR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Filter.Workers = n
		}
	}
	if v := os.Getenv("MZFDR_GROUPING"); v != "" {
		cfg.Grouping = v
	}
	if v := os.Getenv("MZFDR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MZFDR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for values the estimator cannot work
// with.
func (c *Config) Validate() error {
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidConfig)
	}
	if _, err := fdr.NewBinner(c.FDRDimensions()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.TargetFDR <= 0 || c.TargetFDR > 1 {
		return fmt.Errorf("%w: targetFDR %g not in (0,1]", ErrInvalidConfig, c.TargetFDR)
	}
	if c.MinObservations < 0 {
		return fmt.Errorf("%w: negative minObservations %d", ErrInvalidConfig, c.MinObservations)
	}
	if c.SmoothingDegree < 0 {
		return fmt.Errorf("%w: negative smoothingDegree %d", ErrInvalidConfig, c.SmoothingDegree)
	}
	switch c.Grouping {
	case GroupingNone, GroupingModified, GroupingMissedCleavages:
	default:
		return fmt.Errorf("%w: unknown grouping %q", ErrInvalidConfig, c.Grouping)
	}
	if c.Charge.Min > c.Charge.Max {
		return fmt.Errorf("%w: charge range %d:%d", ErrInvalidConfig, c.Charge.Min, c.Charge.Max)
	}
	if c.MaxRank < 1 {
		return fmt.Errorf("%w: maxRank %d below 1", ErrInvalidConfig, c.MaxRank)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// FDRDimensions converts the configured dimensions for the estimator
func (c *Config) FDRDimensions() []fdr.Dimension {
	dims := make([]fdr.Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		dims[i] = fdr.Dimension{
			Score:     d.Score,
			Min:       d.Min,
			Max:       d.Max,
			Bins:      d.Bins,
			Transform: fdr.Transform(d.Transform),
		}
	}
	return dims
}

// Params returns the estimator parameters of the configuration
func (c *Config) Params() fdr.Params {
	return fdr.Params{
		Dimensions:   c.FDRDimensions(),
		RemoveSpikes: c.RemoveSpikes,
	}
}

// FilterOptions returns the options of the filter stage
func (c *Config) FilterOptions() fdr.FilterOptions {
	return fdr.FilterOptions{Workers: c.Filter.Workers, BatchSize: c.Filter.BatchSize}
}

// ApplyLogging sets the level and format of the standard logrus logger.
// The config must have been validated.
func (c *Config) ApplyLogging() {
	if lvl, err := log.ParseLevel(c.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
