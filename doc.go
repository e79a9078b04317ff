// Package attnshift analyzes attention-shifting threshold experiments.
//
// Each trial of an adaptive staircase records the inter-stimulus interval
// (ISI) at which a participant responded to a target in one of several
// positions. attnshift turns a raw trial export into per-participant
// thresholds, screens participants with outlying thresholds, and tests
// whether the threshold depends on target position.
//
// # Features
//
//   - CSV loading with per-line format errors
//   - Trial cleaning by staircase reversals, catch condition and accuracy
//   - Participant means, within-subject standard errors and confidence intervals
//   - Participant-wide 3-SD outlier exclusion with a recheck pass
//   - One-way repeated-measures ANOVA with Greenhouse-Geisser correction
//   - Linear mixed model with random participant and participant:condition intercepts
//   - Estimated marginal means and Tukey-adjusted pairwise contrasts
//   - Likelihood-ratio comparison against the intercept-only model
//   - Text tables, JSON, CSV and PNG chart output
//
// # Quick Start
//
// Run the whole pipeline on a file:
//
//	cfg, _ := config.Load("attnshift.yaml")
//	a := analysis.NewAnalyzer(cfg, logger)
//	res, err := a.RunFile(ctx, "trials.csv")
//	report.WriteText(os.Stdout, report.Tables(res))
//
// Or use the stages directly:
//
//	raw, _ := trials.LoadCSV("trials.csv", nil)
//	clean, _ := trials.Clean(raw, nil) // second value is the CleanReport
//	screened := stats.FilterOutliers(clean, nil)
//	model := mixed.New(nil)
//	model.Fit(screened.Trials)
//	contrasts, _ := model.Pairwise()
//
// # Packages
//
// The module is organized into the following packages:
//
//   - trials: Trial records, CSV input and cleaning
//   - stats: Participant means, condition summaries, outlier screening and distributions
//   - anova: Repeated-measures ANOVA
//   - mixed: Linear mixed model, marginal means, contrasts and model comparison
//   - config: YAML configuration
//   - analysis: The staged pipeline
//   - report: Tables, JSON, CSV and charts
//   - cmd/attnshift: Command-line interface
//
// # References
//
//   - Morey, R. D. (2008). Confidence intervals from normalized data: A correction to Cousineau (2005).
//     Tutorials in Quantitative Methods for Psychology, 4(2), 61-64.
//   - Bates, D., Mächler, M., Bolker, B., & Walker, S. (2015). Fitting linear mixed-effects models using lme4.
//     Journal of Statistical Software, 67(1).
//   - Copenhaver, M. D., & Holland, B. S. (1988). Computation of the distribution of the maximum
//     studentized range statistic. Journal of Statistical Computation and Simulation, 30, 1-15.
package attnshift
