// Package analysis runs the attention-shifting pipeline end to end.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sartorproj/attnshift/anova"
	"github.com/sartorproj/attnshift/config"
	"github.com/sartorproj/attnshift/mixed"
	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages in execution order.
const (
	StageLoad      Stage = "load"
	StageClean     Stage = "clean"
	StageAggregate Stage = "aggregate"
	StageOutliers  Stage = "outliers"
	StageInference Stage = "inference"
	StageReport    Stage = "report"
)

// StageError identifies the stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result holds every table the pipeline produced. Fields of stages that did
// not run are nil.
type Result struct {
	Source      string
	Trials      []trials.Trial
	Clean       []trials.CleanTrial
	CleanReport *trials.CleanReport
	Means       []stats.ParticipantMean // before screening
	Missing     []stats.Cell
	Screening   *stats.FilterResult
	Boxes       []stats.BoxSummary
	ANOVA       *anova.Table
	Mixed       *mixed.Summary
	EMMs        []mixed.EMM
	Contrasts   []mixed.ContrastResult
	Comparison  *mixed.Comparison
}

// Analyzer runs the pipeline with one configuration.
type Analyzer struct {
	config *config.Config
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer. A nil config uses config.Default and a
// nil logger discards output.
func NewAnalyzer(cfg *config.Config, logger *zap.Logger) *Analyzer {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{config: cfg, logger: logger}
}

// RunFile loads the trial CSV at path and runs the pipeline on it.
func (a *Analyzer) RunFile(ctx context.Context, path string) (*Result, error) {
	a.logger.Info("Loading trials", zap.String("stage", string(StageLoad)), zap.String("path", path))
	input, err := trials.LoadCSV(path, a.config.CSVOptions())
	if err != nil {
		var dfe *trials.DataFormatError
		if errors.As(err, &dfe) {
			a.logger.Error("Malformed trial file",
				zap.String("path", path),
				zap.Int("line", dfe.Line),
				zap.String("column", dfe.Column),
				zap.Error(err))
		}
		return &Result{Source: path}, &StageError{Stage: StageLoad, Err: err}
	}

	result, err := a.Run(ctx, input)
	if result != nil {
		result.Source = path
	}
	return result, err
}

// Run executes cleaning, aggregation, outlier screening and inference.
// On an inference failure the returned Result still holds every upstream
// table.
func (a *Analyzer) Run(ctx context.Context, input []trials.Trial) (*Result, error) {
	result := &Result{Trials: input}

	// Cleaning
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageClean, Err: err}
	}
	result.Clean, result.CleanReport = trials.Clean(input, a.config.CleanOptions())
	a.logger.Info("Cleaned trials",
		zap.String("stage", string(StageClean)),
		zap.Int("input", result.CleanReport.Input),
		zap.Int("kept", result.CleanReport.Kept),
		zap.Int("droppedReversals", result.CleanReport.DroppedReverse),
		zap.Int("droppedCatch", result.CleanReport.DroppedCatch),
		zap.Int("droppedIncorrect", result.CleanReport.DroppedWrong))

	// Aggregation
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageAggregate, Err: err}
	}
	result.Means = stats.ParticipantMeans(result.Clean)
	result.Missing = stats.MissingCells(result.Means)
	for _, cell := range result.Missing {
		a.logger.Warn("Empty group",
			zap.String("stage", string(StageAggregate)),
			zap.String("participant", string(cell.Participant)),
			zap.String("condition", string(cell.Condition)))
	}
	a.logger.Info("Aggregated participant means",
		zap.String("stage", string(StageAggregate)),
		zap.Int("participants", len(stats.Subjects(result.Means))),
		zap.Int("conditions", len(stats.Levels(result.Means))),
		zap.Int("cells", len(result.Means)))

	// Outlier screening
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageOutliers, Err: err}
	}
	result.Screening = stats.FilterOutliers(result.Clean, a.config.FilterOptions())
	for _, id := range result.Screening.Excluded {
		a.logger.Info("Excluded participant",
			zap.String("stage", string(StageOutliers)),
			zap.String("participant", string(id)))
	}
	if !result.Screening.Converged {
		a.logger.Warn("Outlier screening did not converge",
			zap.String("stage", string(StageOutliers)),
			zap.Int("stillFlagged", stats.CountFlagged(result.Screening.Recheck)))
	}
	boxes, err := stats.Boxes(result.Screening.Means)
	if err != nil {
		a.logger.Warn("Box summaries failed", zap.Error(err))
	}
	result.Boxes = boxes

	// Inference
	if err := ctx.Err(); err != nil {
		return result, &StageError{Stage: StageInference, Err: err}
	}
	if err := a.infer(ctx, result); err != nil {
		a.logger.Error("Inference failed", zap.String("stage", string(StageInference)), zap.Error(err))
		return result, &StageError{Stage: StageInference, Err: err}
	}

	a.logger.Info("Analysis completed",
		zap.Int("retained", len(stats.Subjects(result.Screening.Means))),
		zap.Int("excluded", len(result.Screening.Excluded)))
	return result, nil
}

func (a *Analyzer) infer(ctx context.Context, result *Result) error {
	data := result.Screening.Trials

	model := anova.New()
	if err := model.Fit(data); err != nil {
		return fmt.Errorf("anova: %w", err)
	}
	result.ANOVA = model.Summary()
	if len(result.ANOVA.Dropped) > 0 {
		a.logger.Warn("Incomplete participants left out of the ANOVA",
			zap.Int("dropped", len(result.ANOVA.Dropped)))
	}
	a.logger.Info("Fitted repeated-measures ANOVA",
		zap.String("stage", string(StageInference)),
		zap.Float64("F", result.ANOVA.F),
		zap.Float64("p", result.ANOVA.P),
		zap.Float64("ggEpsilon", result.ANOVA.GGEpsilon))

	if !a.config.Inference.MixedModel {
		return nil
	}

	// The null model only feeds the comparison, so its failure is not fatal.
	full := mixed.New(a.config.MixedOptions())
	null := mixed.NewNull(a.config.MixedOptions())
	var nullErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := full.Fit(data); err != nil {
			return fmt.Errorf("mixed model: %w", err)
		}
		return gctx.Err()
	})
	g.Go(func() error {
		nullErr = null.Fit(data)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	result.Mixed = full.Summary()

	emms, err := full.EMMeans()
	if err != nil {
		return fmt.Errorf("marginal means: %w", err)
	}
	result.EMMs = emms

	contrasts, err := full.Pairwise()
	if err != nil {
		return fmt.Errorf("contrasts: %w", err)
	}
	result.Contrasts = contrasts

	if nullErr != nil {
		a.logger.Warn("Null model fit failed", zap.Error(nullErr))
		return nil
	}
	cmp, err := mixed.Compare(null, full)
	if err != nil {
		a.logger.Warn("Model comparison failed", zap.Error(err))
		return nil
	}
	result.Comparison = cmp
	a.logger.Info("Fitted mixed model",
		zap.String("stage", string(StageInference)),
		zap.Float64("logLik", result.Mixed.LogLik),
		zap.Float64("chi2", cmp.Chi2),
		zap.Float64("p", cmp.P))
	return nil
}
