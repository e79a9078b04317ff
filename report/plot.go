package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sartorproj/attnshift/analysis"
	"github.com/sartorproj/attnshift/stats"
)

var (
	barColor       = color.RGBA{R: 0x5B, G: 0x8D, B: 0xEF, A: 0xFF}
	thresholdColor = color.RGBA{R: 0xFF, G: 0x6B, B: 0x6B, A: 0xFF}
)

// meanErrors places one error bar of ±SE on each bar of a condition chart.
type meanErrors []stats.ConditionSummary

func (m meanErrors) Len() int { return len(m) }

func (m meanErrors) XY(i int) (float64, float64) { return float64(i), m[i].Mean }

func (m meanErrors) YError(i int) (float64, float64) {
	se := m[i].SE
	if math.IsNaN(se) {
		se = 0
	}
	return se, se
}

func conditionNames(summaries []stats.ConditionSummary) []string {
	names := make([]string, len(summaries))
	for i, s := range summaries {
		names[i] = string(s.Condition)
	}
	return names
}

// MeansChart plots condition means as bars with within-subject SE error bars.
func MeansChart(summaries []stats.ConditionSummary) (*plot.Plot, error) {
	if len(summaries) == 0 {
		return nil, errors.New("means chart: no conditions")
	}

	p := plot.New()
	p.Title.Text = "Mean ISI by target index (±1 within-subject SE)"
	p.X.Label.Text = "target_index"
	p.Y.Label.Text = "ISI (ms)"

	values := make(plotter.Values, len(summaries))
	for i, s := range summaries {
		values[i] = s.Mean
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return nil, fmt.Errorf("means chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	errs, err := plotter.NewYErrorBars(meanErrors(summaries))
	if err != nil {
		return nil, fmt.Errorf("means chart: %w", err)
	}
	p.Add(errs)

	p.NominalX(conditionNames(summaries)...)
	p.Y.Min = 0
	return p, nil
}

// BoxChart plots participant means per condition as box plots, with the
// mean ± k·SD screening bounds of each condition drawn as dashed lines.
func BoxChart(means []stats.ParticipantMean, summaries []stats.ConditionSummary) (*plot.Plot, error) {
	if len(summaries) == 0 {
		return nil, errors.New("box chart: no conditions")
	}

	p := plot.New()
	p.Title.Text = "Participant means with screening bounds"
	p.X.Label.Text = "target_index"
	p.Y.Label.Text = "ISI (ms)"

	width := vg.Points(20)
	for i, s := range summaries {
		var values plotter.Values
		for _, m := range means {
			if m.Condition == s.Condition {
				values = append(values, m.MeanISI)
			}
		}
		if len(values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(width, float64(i), values)
		if err != nil {
			return nil, fmt.Errorf("box chart %s: %w", s.Condition, err)
		}
		box.FillColor = barColor
		p.Add(box)

		for _, bound := range []float64{s.Bounds.Min, s.Bounds.Max} {
			if math.IsNaN(bound) {
				continue
			}
			line, err := plotter.NewLine(plotter.XYs{
				{X: float64(i) - 0.4, Y: bound},
				{X: float64(i) + 0.4, Y: bound},
			})
			if err != nil {
				return nil, fmt.Errorf("box chart %s: %w", s.Condition, err)
			}
			line.LineStyle.Color = thresholdColor
			line.LineStyle.Width = vg.Points(1)
			line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(line)
		}
	}

	p.NominalX(conditionNames(summaries)...)
	return p, nil
}

// chartInputs returns what the charts draw: the final condition summaries
// for the means chart, and every participant mean with the bounds that
// screened it for the box chart.
func chartInputs(res *analysis.Result) (final []stats.ConditionSummary, means []stats.ParticipantMean, bounds []stats.ConditionSummary, err error) {
	if res == nil || res.Screening == nil {
		return nil, nil, nil, errors.New("charts: outlier screening did not run")
	}
	return res.Screening.Summaries, res.Means, res.Screening.ScreeningSummaries(), nil
}

// SaveCharts renders the means chart of the screened data and the box
// chart of all participant means against their screening bounds to dir as
// PNG files, and returns their paths.
func SaveCharts(dir string, res *analysis.Result) ([]string, error) {
	final, means, bounds, err := chartInputs(res)
	if err != nil {
		return nil, err
	}
	bar, err := MeansChart(final)
	if err != nil {
		return nil, err
	}
	box, err := BoxChart(means, bounds)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	var paths []string
	charts := []struct {
		name string
		plot *plot.Plot
	}{
		{"condition_means.png", bar},
		{"participant_means_box.png", box},
	}
	for _, c := range charts {
		path := filepath.Join(dir, c.name)
		if err := c.plot.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
