package anova

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Table is the ANOVA table of a fitted model.
type Table struct {
	Effect       string
	Levels       []trials.Condition
	LevelMeans   []float64 // mean of cell means per level, over retained participants
	Participants int       // participants with every level present
	Dropped      []trials.ParticipantID

	SSEffect   float64
	SSSubjects float64
	SSError    float64
	SSTotal    float64
	DFEffect   float64
	DFError    float64
	MSEffect   float64
	MSError    float64
	F          float64
	P          float64

	PartialEta2 float64 // SSEffect / (SSEffect + SSError)
	GenEta2     float64 // SSEffect / (SSEffect + SSSubjects + SSError)

	GGEpsilon float64 // Greenhouse-Geisser sphericity correction
	PGG       float64 // p with both df scaled by GGEpsilon
}

// Model is a one-way repeated-measures ANOVA with condition as the
// within-subject factor and participant as the subject.
type Model struct {
	Effect string
	fitted bool
	table  *Table
	data   *mat.Dense // participants × levels cell means
}

// New creates a model for the target_index factor.
func New() *Model {
	return &Model{Effect: "target_index"}
}

// Fit averages the trials per cell and fits the model.
func (m *Model) Fit(clean []trials.CleanTrial) error {
	return m.FitMeans(stats.ParticipantMeans(clean))
}

// FitMeans fits the model to participant means. Participants missing any
// level are dropped and listed in the table.
func (m *Model) FitMeans(means []stats.ParticipantMean) error {
	m.fitted = false
	if err := stats.CheckDesign(means); err != nil {
		return err
	}

	levels := stats.Levels(means)
	complete, dropped := completeParticipants(means, len(levels))
	if err := stats.CheckDesign(complete); err != nil {
		return err
	}

	subjects := stats.Subjects(complete)
	n, k := len(subjects), len(levels)
	subjIdx := make(map[trials.ParticipantID]int, n)
	for i, s := range subjects {
		subjIdx[s] = i
	}
	levelIdx := make(map[trials.Condition]int, k)
	for j, l := range levels {
		levelIdx[l] = j
	}

	data := mat.NewDense(n, k, nil)
	for _, pm := range complete {
		data.Set(subjIdx[pm.Participant], levelIdx[pm.Condition], pm.MeanISI)
	}
	m.data = data

	t := &Table{
		Effect:       m.Effect,
		Levels:       levels,
		Participants: n,
		Dropped:      dropped,
	}
	m.sumsOfSquares(t)
	m.sphericity(t)

	m.table = t
	m.fitted = true
	return nil
}

// completeParticipants keeps the means of participants that have all k levels.
func completeParticipants(means []stats.ParticipantMean, k int) ([]stats.ParticipantMean, []trials.ParticipantID) {
	counts := make(map[trials.ParticipantID]int)
	for _, pm := range means {
		counts[pm.Participant]++
	}
	var kept []stats.ParticipantMean
	for _, pm := range means {
		if counts[pm.Participant] == k {
			kept = append(kept, pm)
		}
	}
	var dropped []trials.ParticipantID
	for _, id := range stats.Subjects(means) {
		if counts[id] != k {
			dropped = append(dropped, id)
		}
	}
	return kept, dropped
}

// sumsOfSquares partitions the total variability of the cell means into
// effect, subject and error components.
func (m *Model) sumsOfSquares(t *Table) {
	n, k := m.data.Dims()
	all := m.data.RawMatrix().Data
	grand := floats.Sum(all) / float64(n*k)

	t.LevelMeans = make([]float64, k)
	for j := 0; j < k; j++ {
		t.LevelMeans[j] = stat.Mean(mat.Col(nil, j, m.data), nil)
		d := t.LevelMeans[j] - grand
		t.SSEffect += float64(n) * d * d
	}
	for i := 0; i < n; i++ {
		d := stat.Mean(m.data.RawRowView(i), nil) - grand
		t.SSSubjects += float64(k) * d * d
	}
	for _, v := range all {
		d := v - grand
		t.SSTotal += d * d
	}
	t.SSError = t.SSTotal - t.SSEffect - t.SSSubjects
	if t.SSError < 0 {
		// rounding on perfectly additive data
		t.SSError = 0
	}

	t.DFEffect = float64(k - 1)
	t.DFError = float64((n - 1) * (k - 1))
	t.MSEffect = t.SSEffect / t.DFEffect
	t.MSError = t.SSError / t.DFError

	switch {
	case t.MSError > 0:
		t.F = t.MSEffect / t.MSError
		t.P = distuv.F{D1: t.DFEffect, D2: t.DFError}.Survival(t.F)
	case t.SSEffect > 0:
		t.F = math.Inf(1)
		t.P = 0
	default:
		t.F = math.NaN()
		t.P = math.NaN()
	}

	t.PartialEta2 = ratio(t.SSEffect, t.SSEffect+t.SSError)
	t.GenEta2 = ratio(t.SSEffect, t.SSEffect+t.SSSubjects+t.SSError)
}

// sphericity computes the Greenhouse-Geisser epsilon from the covariance
// matrix of the levels (Box 1954) and the corrected p-value.
func (m *Model) sphericity(t *Table) {
	t.GGEpsilon = GreenhouseGeisser(m.data)

	switch {
	case math.IsNaN(t.F) || math.IsInf(t.F, 1):
		t.PGG = t.P
	default:
		f := distuv.F{D1: t.GGEpsilon * t.DFEffect, D2: t.GGEpsilon * t.DFError}
		t.PGG = f.Survival(t.F)
	}
}

// GreenhouseGeisser returns the Greenhouse-Geisser epsilon of a
// participants × levels matrix. It is 1 for two levels and otherwise lies in
// [1/(k-1), 1].
func GreenhouseGeisser(data mat.Matrix) float64 {
	_, k := data.Dims()
	if k <= 2 {
		return 1
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	kf := float64(k)
	var trace, total, sumSq, rowSq float64
	for i := 0; i < k; i++ {
		trace += cov.At(i, i)
		row := 0.0
		for j := 0; j < k; j++ {
			v := cov.At(i, j)
			row += v
			sumSq += v * v
		}
		total += row
		row /= kf
		rowSq += row * row
	}
	meanDiag := trace / kf
	meanAll := total / (kf * kf)

	num := kf * kf * (meanDiag - meanAll) * (meanDiag - meanAll)
	den := (kf - 1) * (sumSq - 2*kf*rowSq + kf*kf*meanAll*meanAll)
	if den <= 0 || math.IsNaN(num/den) {
		return 1
	}

	eps := num / den
	lower := 1 / (kf - 1)
	return math.Max(lower, math.Min(1, eps))
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// Summary returns the ANOVA table, or nil when the model is not fitted.
func (m *Model) Summary() *Table {
	if !m.fitted {
		return nil
	}
	return m.table
}

// CellMeans returns the participants × levels matrix the model was fitted on.
func (m *Model) CellMeans() (*mat.Dense, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted first")
	}
	return mat.DenseCopyOf(m.data), nil
}
