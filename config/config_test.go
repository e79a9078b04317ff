package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sartorproj/attnshift/trials"
)

func TestDefaultYAMLMatchesDefault(t *testing.T) {
	cfg, err := Parse([]byte(DefaultYAML))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestParseOverrides(t *testing.T) {
	doc := `
input:
  delimiter: ";"
  columns:
    isi: isi_sec
cleaning:
  reversals: MIN
  min_reversals: 2
  drop_catch: true
outliers:
  sd_multiplier: 2.5
  max_passes: 3
inference:
  reference: "1"
output:
  formats: [JSON, csv]
log:
  level: debug
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	// Unset keys keep their defaults.
	assert.Equal(t, "participant", cfg.Input.Columns.Participant)
	assert.Equal(t, 0.95, cfg.Summary.Confidence)

	csv := cfg.CSVOptions()
	assert.Equal(t, ';', csv.Delimiter)
	assert.Equal(t, "isi_sec", csv.ISIColumn)

	clean := cfg.CleanOptions()
	assert.Equal(t, trials.ReversalRule{Mode: trials.ReversalsMin, Min: 2}, clean.Reversals)
	assert.True(t, clean.DropCatch)
	assert.Equal(t, trials.DefaultCatchCondition, clean.CatchLevel)

	filter := cfg.FilterOptions()
	assert.Equal(t, 2.5, filter.Summary.SDMultiplier)
	assert.Equal(t, 3, filter.MaxPasses)

	assert.Equal(t, trials.Condition("1"), cfg.MixedOptions().Reference)
	assert.True(t, cfg.HasFormat(FormatJSON))
	assert.True(t, cfg.HasFormat(FormatCSV))
	assert.False(t, cfg.HasFormat(FormatTable))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"delimiter", func(c *Config) { c.Input.Delimiter = ",," }},
		{"skip rows", func(c *Config) { c.Input.SkipRows = -1 }},
		{"column", func(c *Config) { c.Input.Columns.Target = " " }},
		{"reversal rule", func(c *Config) { c.Cleaning.Reversals = "sometimes" }},
		{"min reversals", func(c *Config) { c.Cleaning.Reversals = "min"; c.Cleaning.MinReversals = 0 }},
		{"sd multiplier", func(c *Config) { c.Outliers.SDMultiplier = 0 }},
		{"max passes", func(c *Config) { c.Outliers.MaxPasses = 0 }},
		{"summary confidence", func(c *Config) { c.Summary.Confidence = 1 }},
		{"inference confidence", func(c *Config) { c.Inference.Confidence = 0 }},
		{"format", func(c *Config) { c.Output.Formats = []string{"xml"} }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("outliers: [1, 2"))
	assert.Error(t, err)

	_, err = Parse([]byte("outliers:\n  max_passes: 0\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing file is not overwritten")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(path, []byte("summary:\n  confidence: 2\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLogBuild(t *testing.T) {
	logger, err := LogConfig{Level: "warn"}.Build()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = LogConfig{Level: "debug", Development: true}.Build()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = LogConfig{Level: "loud"}.Build()
	assert.Error(t, err)
}
