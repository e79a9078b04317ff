// Package report renders analysis results as terminal tables, CSV and JSON
// exports, and PNG charts.
package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/sartorproj/attnshift/analysis"
	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Table is one rectangular block of report output.
type Table struct {
	Name   string // file stem for exports
	Title  string
	Header []string
	Rows   [][]string
}

// Tables lays out every table the result holds, in pipeline order. Tables
// of stages that did not run are omitted.
func Tables(res *analysis.Result) []Table {
	var out []Table
	if res == nil {
		return out
	}
	if res.CleanReport != nil {
		out = append(out, cleaningTable(res.CleanReport))
	}
	if len(res.Means) > 0 {
		out = append(out, meansTable(res.Means))
	}
	if len(res.Missing) > 0 {
		out = append(out, missingTable(res.Missing))
	}
	if res.Screening != nil {
		if len(res.Screening.Passes) > 0 {
			out = append(out,
				summaryTable("screening_summary", "Condition summary (before screening)", res.Screening.ScreeningSummaries()),
				flagsTable(res.Screening.Passes[0].Flags))
		}
		out = append(out, summaryTable("condition_summary", "Condition summary (after screening)", res.Screening.Summaries))
	}
	if len(res.Boxes) > 0 {
		out = append(out, boxTable(res.Boxes))
	}
	if res.ANOVA != nil {
		out = append(out, anovaTable(res))
	}
	if res.Mixed != nil {
		out = append(out, fixedEffectsTable(res), varianceTable(res))
	}
	if len(res.EMMs) > 0 {
		out = append(out, emmTable(res))
	}
	if len(res.Contrasts) > 0 {
		out = append(out, contrastTable(res))
	}
	if res.Comparison != nil {
		out = append(out, comparisonTable(res))
	}
	return out
}

func cleaningTable(r *trials.CleanReport) Table {
	return Table{
		Name:   "cleaning",
		Title:  "Trial cleaning",
		Header: []string{"input", "kept", "dropped_reversals", "dropped_catch", "dropped_incorrect"},
		Rows: [][]string{{
			itoa(r.Input), itoa(r.Kept), itoa(r.DroppedReverse), itoa(r.DroppedCatch), itoa(r.DroppedWrong),
		}},
	}
}

func meansTable(means []stats.ParticipantMean) Table {
	t := Table{
		Name:   "participant_means",
		Title:  "Participant means",
		Header: []string{"participant", "target_index", "trials", "mean_isi_ms"},
	}
	for _, m := range means {
		t.Rows = append(t.Rows, []string{string(m.Participant), string(m.Condition), itoa(m.N), num(m.MeanISI)})
	}
	return t
}

func missingTable(cells []stats.Cell) Table {
	t := Table{
		Name:   "empty_groups",
		Title:  "Empty groups",
		Header: []string{"participant", "target_index"},
	}
	for _, c := range cells {
		t.Rows = append(t.Rows, []string{string(c.Participant), string(c.Condition)})
	}
	return t
}

func flagsTable(flags []stats.OutlierFlag) Table {
	t := Table{
		Name:   "outlier_flags",
		Title:  "Outlier screening",
		Header: []string{"participant", "target_index", "mean_isi_ms", "lower", "upper", "outlier"},
	}
	for _, f := range flags {
		t.Rows = append(t.Rows, []string{
			string(f.Participant), string(f.Condition), num(f.MeanISI),
			num(f.Bounds.Min), num(f.Bounds.Max), strconv.FormatBool(f.Outlier),
		})
	}
	return t
}

func summaryTable(name, title string, summaries []stats.ConditionSummary) Table {
	t := Table{
		Name:   name,
		Title:  title,
		Header: []string{"target_index", "n", "mean", "sd", "se", "ci", "lower_3sd", "upper_3sd"},
	}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{
			string(s.Condition), itoa(s.N), num(s.Mean), num(s.SD), num(s.SE), num(s.CI),
			num(s.Bounds.Min), num(s.Bounds.Max),
		})
	}
	return t
}

func boxTable(boxes []stats.BoxSummary) Table {
	t := Table{
		Name:   "box_summary",
		Title:  "Five-number summary",
		Header: []string{"target_index", "n", "min", "q1", "median", "q3", "max", "extreme"},
	}
	for _, b := range boxes {
		t.Rows = append(t.Rows, []string{
			string(b.Condition), itoa(b.N), num(b.Min), num(b.Q1), num(b.Median), num(b.Q3), num(b.Max),
			itoa(len(b.Extreme)),
		})
	}
	return t
}

func anovaTable(res *analysis.Result) Table {
	a := res.ANOVA
	t := Table{
		Name:   "anova",
		Title:  "Repeated-measures ANOVA",
		Header: []string{"effect", "df_num", "df_den", "ss", "f", "p", "partial_eta2", "ges", "gg_epsilon", "p_gg"},
		Rows: [][]string{{
			a.Effect, num(a.DFEffect), num(a.DFError), num(a.SSEffect), num(a.F), pval(a.P),
			num(a.PartialEta2), num(a.GenEta2), num(a.GGEpsilon), pval(a.PGG),
		}},
	}
	if len(a.Dropped) > 0 {
		ids := make([]string, len(a.Dropped))
		for i, id := range a.Dropped {
			ids[i] = string(id)
		}
		t.Title += " (dropped incomplete: " + strings.Join(ids, ", ") + ")"
	}
	return t
}

func fixedEffectsTable(res *analysis.Result) Table {
	t := Table{
		Name:   "fixed_effects",
		Title:  "Mixed model: " + res.Mixed.Formula,
		Header: []string{"term", "estimate", "se", "t"},
	}
	for _, c := range res.Mixed.Coefficients {
		t.Rows = append(t.Rows, []string{c.Term, num(c.Estimate), num(c.SE), num(c.T)})
	}
	return t
}

func varianceTable(res *analysis.Result) Table {
	m := res.Mixed
	t := Table{
		Name:   "random_effects",
		Title:  "Random effects (logLik " + num(m.LogLik) + ", AIC " + num(m.AIC) + ", BIC " + num(m.BIC) + ")",
		Header: []string{"group", "variance", "sd"},
	}
	for _, vc := range m.Components {
		t.Rows = append(t.Rows, []string{vc.Group, num(vc.Variance), num(vc.SD)})
	}
	return t
}

func emmTable(res *analysis.Result) Table {
	t := Table{
		Name:   "emmeans",
		Title:  "Estimated marginal means",
		Header: []string{"target_index", "emmean", "se", "df", "lower", "upper"},
	}
	for _, e := range res.EMMs {
		t.Rows = append(t.Rows, []string{string(e.Condition), num(e.Estimate), num(e.SE), num(e.DF), num(e.Lower), num(e.Upper)})
	}
	return t
}

func contrastTable(res *analysis.Result) Table {
	t := Table{
		Name:   "contrasts",
		Title:  "Pairwise contrasts (Tukey)",
		Header: []string{"contrast", "estimate", "se", "df", "t", "p_tukey", "lower", "upper"},
	}
	for _, c := range res.Contrasts {
		t.Rows = append(t.Rows, []string{
			string(c.A) + " - " + string(c.B), num(c.Estimate), num(c.SE), num(c.DF), num(c.T),
			pval(c.P), num(c.Lower), num(c.Upper),
		})
	}
	return t
}

func comparisonTable(res *analysis.Result) Table {
	c := res.Comparison
	return Table{
		Name:   "model_comparison",
		Title:  "Likelihood-ratio test",
		Header: []string{"model", "loglik", "aic", "bic", "chi2", "df", "p"},
		Rows: [][]string{
			{c.NullFormula, num(c.NullLogLik), num(c.NullAIC), num(c.NullBIC), "", "", ""},
			{c.FullFormula, num(c.FullLogLik), num(c.FullAIC), num(c.FullBIC), num(c.Chi2), itoa(c.DF), pval(c.P)},
		},
	}
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

// num formats a statistic; undefined values print as NA.
func num(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	if math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func pval(p float64) string {
	if !math.IsNaN(p) && p < 1e-4 {
		return strconv.FormatFloat(p, 'e', 2, 64)
	}
	return num(p)
}
