// Package config loads the analysis configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sartorproj/attnshift/mixed"
	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// DefaultYAML is the documented default configuration.
const DefaultYAML = `# attnshift analysis configuration
version: 1

input:
  # CSV of completed trials, one row per trial.
  path: ""
  delimiter: ","
  skip_rows: 0
  columns:
    participant: participant
    trial: trial
    isi: ISI_adjusted
    target: target_index
    correct: correct
    reversals: n_reversals

cleaning:
  # nonzero keeps trials with n_reversals != 0; min keeps n_reversals >= min_reversals.
  reversals: nonzero
  min_reversals: 1
  catch_level: "99"
  drop_catch: false
  correct_only: false

outliers:
  sd_multiplier: 3
  # Exclusion passes before the convergence recheck.
  max_passes: 1

summary:
  confidence: 0.95

inference:
  confidence: 0.95
  mixed_model: true
  # Reference level of the treatment coding. Empty means the first level.
  reference: ""

output:
  dir: ""
  formats: [table]
  plots: false

log:
  level: info
  development: false
`

// ColumnsConfig names the input columns.
type ColumnsConfig struct {
	Participant string `yaml:"participant"`
	Trial       string `yaml:"trial"`
	ISI         string `yaml:"isi"`
	Target      string `yaml:"target"`
	Correct     string `yaml:"correct"`
	Reversals   string `yaml:"reversals"`
}

// InputConfig describes the trial file.
type InputConfig struct {
	Path      string        `yaml:"path"`
	Delimiter string        `yaml:"delimiter"`
	SkipRows  int           `yaml:"skip_rows"`
	Columns   ColumnsConfig `yaml:"columns"`
}

// CleaningConfig selects which trials enter the analysis.
type CleaningConfig struct {
	Reversals    string `yaml:"reversals"`
	MinReversals int    `yaml:"min_reversals"`
	CatchLevel   string `yaml:"catch_level"`
	DropCatch    bool   `yaml:"drop_catch"`
	CorrectOnly  bool   `yaml:"correct_only"`
}

// OutliersConfig controls participant screening.
type OutliersConfig struct {
	SDMultiplier float64 `yaml:"sd_multiplier"`
	MaxPasses    int     `yaml:"max_passes"`
}

// SummaryConfig controls the condition summaries.
type SummaryConfig struct {
	Confidence float64 `yaml:"confidence"`
}

// InferenceConfig controls the models.
type InferenceConfig struct {
	Confidence float64 `yaml:"confidence"`
	MixedModel bool    `yaml:"mixed_model"`
	Reference  string  `yaml:"reference"`
}

// OutputConfig controls what the command line tool writes.
type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
	Plots   bool     `yaml:"plots"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config models analysis.yaml.
type Config struct {
	Version   int             `yaml:"version"`
	Input     InputConfig     `yaml:"input"`
	Cleaning  CleaningConfig  `yaml:"cleaning"`
	Outliers  OutliersConfig  `yaml:"outliers"`
	Summary   SummaryConfig   `yaml:"summary"`
	Inference InferenceConfig `yaml:"inference"`
	Output    OutputConfig    `yaml:"output"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration described by DefaultYAML.
func Default() *Config {
	return &Config{
		Version: 1,
		Input: InputConfig{
			Delimiter: ",",
			Columns: ColumnsConfig{
				Participant: "participant",
				Trial:       "trial",
				ISI:         "ISI_adjusted",
				Target:      "target_index",
				Correct:     "correct",
				Reversals:   "n_reversals",
			},
		},
		Cleaning: CleaningConfig{
			Reversals:    trials.ReversalsNonZero,
			MinReversals: 1,
			CatchLevel:   string(trials.DefaultCatchCondition),
		},
		Outliers:  OutliersConfig{SDMultiplier: 3, MaxPasses: 1},
		Summary:   SummaryConfig{Confidence: 0.95},
		Inference: InferenceConfig{Confidence: 0.95, MixedModel: true},
		Output:    OutputConfig{Formats: []string{FormatTable}},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes DefaultYAML to path unless the file already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(DefaultYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	c.Cleaning.Reversals = strings.ToLower(strings.TrimSpace(c.Cleaning.Reversals))
	c.Cleaning.CatchLevel = strings.TrimSpace(c.Cleaning.CatchLevel)
	c.Inference.Reference = strings.TrimSpace(c.Inference.Reference)
	for i, f := range c.Output.Formats {
		c.Output.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	if c.Input.SkipRows < 0 {
		return fmt.Errorf("input.skip_rows must be >= 0")
	}
	cols := map[string]string{
		"participant": c.Input.Columns.Participant,
		"trial":       c.Input.Columns.Trial,
		"isi":         c.Input.Columns.ISI,
		"target":      c.Input.Columns.Target,
		"correct":     c.Input.Columns.Correct,
		"reversals":   c.Input.Columns.Reversals,
	}
	for name, v := range cols {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("input.columns.%s is required", name)
		}
	}
	if err := c.CleanOptions().Reversals.Validate(); err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	if c.Outliers.SDMultiplier <= 0 {
		return fmt.Errorf("outliers.sd_multiplier must be > 0")
	}
	if c.Outliers.MaxPasses < 1 {
		return fmt.Errorf("outliers.max_passes must be >= 1")
	}
	if c.Summary.Confidence <= 0 || c.Summary.Confidence >= 1 {
		return fmt.Errorf("summary.confidence must be in (0, 1)")
	}
	if c.Inference.Confidence <= 0 || c.Inference.Confidence >= 1 {
		return fmt.Errorf("inference.confidence must be in (0, 1)")
	}
	for _, f := range c.Output.Formats {
		switch f {
		case FormatTable, FormatJSON, FormatCSV:
		default:
			return fmt.Errorf("output.formats: unknown format %q", f)
		}
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// HasFormat reports whether format is among the output formats.
func (c *Config) HasFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// CSVOptions returns the loader options.
func (c *Config) CSVOptions() *trials.CSVOptions {
	delim, _ := utf8.DecodeRuneInString(c.Input.Delimiter)
	return &trials.CSVOptions{
		ParticipantColumn: c.Input.Columns.Participant,
		TrialColumn:       c.Input.Columns.Trial,
		ISIColumn:         c.Input.Columns.ISI,
		TargetColumn:      c.Input.Columns.Target,
		CorrectColumn:     c.Input.Columns.Correct,
		ReversalsColumn:   c.Input.Columns.Reversals,
		Delimiter:         delim,
		SkipRows:          c.Input.SkipRows,
	}
}

// CleanOptions returns the cleaning options.
func (c *Config) CleanOptions() *trials.CleanOptions {
	opts := trials.DefaultCleanOptions()
	opts.Reversals = trials.ReversalRule{Mode: c.Cleaning.Reversals, Min: c.Cleaning.MinReversals}
	if c.Cleaning.CatchLevel != "" {
		opts.CatchLevel = trials.Condition(c.Cleaning.CatchLevel)
	}
	opts.DropCatch = c.Cleaning.DropCatch
	opts.CorrectOnly = c.Cleaning.CorrectOnly
	return opts
}

// FilterOptions returns the outlier screening options.
func (c *Config) FilterOptions() *stats.FilterOptions {
	return &stats.FilterOptions{
		Summary: stats.SummaryOptions{
			ConfidenceLevel: c.Summary.Confidence,
			SDMultiplier:    c.Outliers.SDMultiplier,
		},
		MaxPasses: c.Outliers.MaxPasses,
	}
}

// MixedOptions returns the mixed model options.
func (c *Config) MixedOptions() *mixed.Options {
	opts := mixed.DefaultOptions()
	opts.Confidence = c.Inference.Confidence
	opts.Reference = trials.Condition(c.Inference.Reference)
	return opts
}

// Build returns a logger at the configured level. Development loggers are
// human-readable; production loggers write JSON.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}
