package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzfdr/internal/fdr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mzfdr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.MinObservations)
	assert.Equal(t, 2, cfg.SmoothingDegree)
	assert.Equal(t, 0.01, cfg.TargetFDR)
	assert.Equal(t, GroupingNone, cfg.Grouping)
	assert.Equal(t, fdr.DefaultBatchSize, cfg.Filter.BatchSize)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
dimensions:
  - score: "MS-GF:RawScore"
    min: 0
    max: 300
    bins: 30
  - score: "MS-GF:EValue"
    min: 0
    max: 20
    bins: 20
    transform: neglog10
targetFDR: 0.05
grouping: modified
groupThresholds: true
charge:
  min: 2
  max: 4
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Dimensions, 2)
	assert.Equal(t, "MS-GF:RawScore", cfg.Dimensions[0].Score)
	assert.Equal(t, 0.05, cfg.TargetFDR)
	assert.True(t, cfg.GroupThresholds)
	assert.Equal(t, ChargeConfig{Min: 2, Max: 4}, cfg.Charge)
	// Values not in the file keep their defaults
	assert.Equal(t, 100, cfg.MinObservations)
	assert.True(t, cfg.RemoveSpikes)

	p := cfg.Params()
	require.Len(t, p.Dimensions, 2)
	assert.Equal(t, fdr.TransformNegLog10, p.Dimensions[1].Transform)
	assert.Equal(t, 20, p.Dimensions[1].Bins)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "targetFDR: [1, 2\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MZFDR_TARGET_FDR", "0.02")
	t.Setenv("MZFDR_MIN_OBSERVATIONS", "250")
	t.Setenv("MZFDR_SMOOTHING_DEGREE", "0")
	t.Setenv("MZFDR_GROUPING", GroupingMissedCleavages)
	t.Setenv("MZFDR_WORKERS", "3")
	t.Setenv("MZFDR_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "targetFDR: 0.1\nminObservations: 10\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.02, cfg.TargetFDR)
	assert.Equal(t, 250, cfg.MinObservations)
	assert.Equal(t, 0, cfg.SmoothingDegree)
	assert.Equal(t, GroupingMissedCleavages, cfg.Grouping)
	assert.Equal(t, 3, cfg.FilterOptions().Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no dimensions", func(c *Config) { c.Dimensions = nil }},
		{"zero bins", func(c *Config) { c.Dimensions[0].Bins = 0 }},
		{"bad transform", func(c *Config) { c.Dimensions[0].Transform = "sqrt" }},
		{"zero FDR", func(c *Config) { c.TargetFDR = 0 }},
		{"FDR above 1", func(c *Config) { c.TargetFDR = 1.5 }},
		{"negative smoothing", func(c *Config) { c.SmoothingDegree = -1 }},
		{"negative min observations", func(c *Config) { c.MinObservations = -1 }},
		{"unknown grouping", func(c *Config) { c.Grouping = "protein" }},
		{"charge range", func(c *Config) { c.Charge = ChargeConfig{Min: 4, Max: 2} }},
		{"rank", func(c *Config) { c.MaxRank = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	cfg := Default()
	cfg.Logging = LoggingConfig{Level: "debug", Format: "json"}
	require.NoError(t, cfg.Validate())
	cfg.ApplyLogging()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	_, ok := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, ok)
	log.SetFormatter(&log.TextFormatter{})
}
