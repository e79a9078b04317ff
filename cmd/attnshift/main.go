// Command attnshift analyzes attention-shifting threshold data: it cleans
// the trial export, screens participants for outlying means, and fits a
// repeated-measures ANOVA and a mixed model with Tukey post-hoc contrasts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sartorproj/attnshift/analysis"
	"github.com/sartorproj/attnshift/config"
	"github.com/sartorproj/attnshift/report"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `attnshift - attention-shifting threshold analysis

Usage: attnshift [options] <trials.csv>

Options:
  -config <path>       YAML configuration (see -init-config)
  -out <dir>           Directory for CSV, JSON and chart output
  -format <list>       Comma-separated output formats: table, json, csv (default: table)
  -plots               Write PNG charts to the output directory
  -log-level <level>   debug, info, warn or error (default: info)
  -init-config <path>  Write the default configuration to path and exit
  -version             Show version

Exit status is 0 on success, 1 when the analysis fails (outputs of the
stages that completed are still written) and 2 on usage errors.

Example:
  attnshift trials.csv
  attnshift -config analysis.yaml -out results -format table,csv,json -plots trials.csv
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("attnshift", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := fs.String("config", "", "YAML configuration")
	outDir := fs.String("out", "", "output directory")
	formats := fs.String("format", "", "comma-separated output formats")
	plots := fs.Bool("plots", false, "write PNG charts")
	logLevel := fs.String("log-level", "", "log level")
	initConfig := fs.String("init-config", "", "write the default configuration and exit")
	showVersion := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintf(stdout, "attnshift %s\n", version)
		return exitOK
	}
	if *initConfig != "" {
		if err := config.WriteDefault(*initConfig); err != nil {
			fmt.Fprintf(stderr, "attnshift: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "Wrote %s\n", *initConfig)
		return exitOK
	}

	cfg := config.Default()
	if *configPath != "" {
		if _, err := os.Stat(*configPath); err != nil {
			fmt.Fprintf(stderr, "attnshift: config: %v\n", err)
			return exitUsage
		}
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "attnshift: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}

	// Flags override the file.
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *formats != "" {
		cfg.Output.Formats = strings.Split(strings.ToLower(*formats), ",")
		for i := range cfg.Output.Formats {
			cfg.Output.Formats[i] = strings.TrimSpace(cfg.Output.Formats[i])
		}
	}
	if *plots {
		cfg.Output.Plots = true
	}
	if *logLevel != "" {
		cfg.Log.Level = strings.ToLower(*logLevel)
	}
	if fs.NArg() == 1 {
		cfg.Input.Path = fs.Arg(0)
	} else if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "attnshift: expected exactly one trial file")
		fs.Usage()
		return exitUsage
	}
	if err := checkUsage(cfg); err != nil {
		fmt.Fprintf(stderr, "attnshift: %v\n", err)
		fs.Usage()
		return exitUsage
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(stderr, "attnshift: %v\n", err)
		return exitUsage
	}
	defer logger.Sync() //nolint:errcheck // stderr sync fails on some terminals

	analyzer := analysis.NewAnalyzer(cfg, logger)
	res, runErr := analyzer.RunFile(ctx, cfg.Input.Path)

	if res != nil && res.CleanReport != nil {
		if err := writeOutputs(cfg, res, stdout, logger); err != nil {
			logger.Error("Writing output failed", zap.String("stage", string(analysis.StageReport)), zap.Error(err))
			if runErr == nil {
				runErr = &analysis.StageError{Stage: analysis.StageReport, Err: err}
			}
		}
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "attnshift: %v\n", runErr)
		return exitFailure
	}
	return exitOK
}

// checkUsage rejects configurations the command line cannot act on.
func checkUsage(cfg *config.Config) error {
	if cfg.Input.Path == "" {
		return errors.New("no trial file given")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Output.Dir == "" {
		if cfg.HasFormat(config.FormatCSV) {
			return errors.New("csv output needs -out")
		}
		if cfg.Output.Plots {
			return errors.New("plots need -out")
		}
	}
	return nil
}

func writeOutputs(cfg *config.Config, res *analysis.Result, stdout io.Writer, logger *zap.Logger) error {
	tables := report.Tables(res)

	if cfg.HasFormat(config.FormatTable) {
		if err := report.WriteText(stdout, tables); err != nil {
			return err
		}
	}

	if cfg.HasFormat(config.FormatJSON) {
		if cfg.Output.Dir == "" {
			if err := report.WriteJSON(stdout, res); err != nil {
				return err
			}
		} else {
			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(cfg.Output.Dir, "result.json")
			file, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := report.WriteJSON(file, res); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			logger.Info("Wrote JSON", zap.String("path", path))
		}
	}

	if cfg.HasFormat(config.FormatCSV) {
		paths, err := report.SaveCSV(cfg.Output.Dir, res)
		if err != nil {
			return err
		}
		logger.Info("Wrote CSV tables", zap.String("dir", cfg.Output.Dir), zap.Int("files", len(paths)))
	}

	if cfg.Output.Plots && res.Screening != nil {
		paths, err := report.SaveCharts(cfg.Output.Dir, res)
		if err != nil {
			return err
		}
		logger.Info("Wrote charts", zap.Strings("paths", paths))
	}
	return nil
}
