package stats

import (
	"math"
	"sort"

	"github.com/emer/etable/v2/minmax"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sartorproj/attnshift/trials"
)

// ParticipantMean is the mean ISI of one participant in one condition.
type ParticipantMean struct {
	Participant trials.ParticipantID
	Condition   trials.Condition
	N           int     // number of clean trials averaged
	MeanISI     float64 // milliseconds
}

// ParticipantMeans averages ISI_ms per (participant, condition).
// Pairings without trials produce no row. The result is sorted by
// participant, then condition.
func ParticipantMeans(clean []trials.CleanTrial) []ParticipantMean {
	type key struct {
		p trials.ParticipantID
		c trials.Condition
	}
	sums := make(map[key]float64)
	counts := make(map[key]int)
	var keys []key
	for _, t := range clean {
		k := key{t.Participant, t.Target}
		if _, ok := counts[k]; !ok {
			keys = append(keys, k)
		}
		sums[k] += t.ISIms
		counts[k]++
	}

	means := make([]ParticipantMean, 0, len(keys))
	for _, k := range keys {
		means = append(means, ParticipantMean{
			Participant: k.p,
			Condition:   k.c,
			N:           counts[k],
			MeanISI:     sums[k] / float64(counts[k]),
		})
	}
	sortMeans(means)
	return means
}

func sortMeans(means []ParticipantMean) {
	sort.SliceStable(means, func(i, j int) bool {
		if means[i].Participant != means[j].Participant {
			return means[i].Participant.Less(means[j].Participant)
		}
		return means[i].Condition.Less(means[j].Condition)
	})
}

// Levels returns the distinct conditions present in means, in natural order.
func Levels(means []ParticipantMean) []trials.Condition {
	all := make([]trials.Condition, len(means))
	for i, m := range means {
		all[i] = m.Condition
	}
	return trials.NewFactor("target_index", all).Levels
}

// Subjects returns the distinct participants present in means, in natural order.
func Subjects(means []ParticipantMean) []trials.ParticipantID {
	seen := make(map[trials.ParticipantID]bool)
	var ids []trials.ParticipantID
	for _, m := range means {
		if !seen[m.Participant] {
			seen[m.Participant] = true
			ids = append(ids, m.Participant)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Cell is one (participant, condition) pairing.
type Cell struct {
	Participant trials.ParticipantID
	Condition   trials.Condition
}

// MissingCells lists the pairings of known participants and conditions
// that have no participant mean.
func MissingCells(means []ParticipantMean) []Cell {
	present := make(map[Cell]bool, len(means))
	for _, m := range means {
		present[Cell{m.Participant, m.Condition}] = true
	}
	var missing []Cell
	for _, p := range Subjects(means) {
		for _, c := range Levels(means) {
			if !present[Cell{p, c}] {
				missing = append(missing, Cell{p, c})
			}
		}
	}
	return missing
}

// ConditionSummary describes the participant means of one condition.
type ConditionSummary struct {
	Condition trials.Condition
	N         int        // participants
	Mean      float64    // mean of participant means
	SD        float64    // sample SD of participant means
	SE        float64    // within-subject standard error (Morey 2008)
	NaiveSE   float64    // SD / sqrt(N)
	CI        float64    // half-width of the confidence interval, SE * t(N-1)
	Bounds    minmax.F64 // Mean ± SDMultiplier*SD
}

// SummaryOptions holds options for Summarize.
type SummaryOptions struct {
	ConfidenceLevel float64 // default: 0.95
	SDMultiplier    float64 // width of the outlier band in SDs (default: 3)
}

// DefaultSummaryOptions returns 95% intervals and a 3-SD outlier band.
func DefaultSummaryOptions() *SummaryOptions {
	return &SummaryOptions{
		ConfidenceLevel: 0.95,
		SDMultiplier:    3,
	}
}

// Summarize computes one ConditionSummary per condition present in means.
//
// SE is the within-subject standard error: each participant's condition
// means are centered on that participant's own mean plus the grand mean,
// and the SD of those normalized values is scaled by sqrt(k/(k-1)) before
// dividing by sqrt(n). With a single condition SE equals NaiveSE.
// Conditions with fewer than two participants get NaN spread statistics.
func Summarize(means []ParticipantMean, opts *SummaryOptions) []ConditionSummary {
	if opts == nil {
		opts = DefaultSummaryOptions()
	}
	levels := Levels(means)
	k := len(levels)

	normalized := NormalizeWithin(means)
	correction := 1.0
	if k > 1 {
		correction = math.Sqrt(float64(k) / float64(k-1))
	}

	raw := make(map[trials.Condition][]float64, k)
	norm := make(map[trials.Condition][]float64, k)
	for i, m := range means {
		raw[m.Condition] = append(raw[m.Condition], m.MeanISI)
		norm[m.Condition] = append(norm[m.Condition], normalized[i].MeanISI)
	}

	summaries := make([]ConditionSummary, 0, k)
	for _, c := range levels {
		values := raw[c]
		n := len(values)
		s := ConditionSummary{Condition: c, N: n, Mean: stat.Mean(values, nil)}

		if n < 2 {
			s.SD, s.SE, s.NaiveSE, s.CI = math.NaN(), math.NaN(), math.NaN(), math.NaN()
			s.Bounds = minmax.F64{Min: math.NaN(), Max: math.NaN()}
			summaries = append(summaries, s)
			continue
		}

		sqrtN := math.Sqrt(float64(n))
		s.SD = stat.StdDev(values, nil)
		s.NaiveSE = s.SD / sqrtN
		if k > 1 {
			s.SE = stat.StdDev(norm[c], nil) * correction / sqrtN
		} else {
			s.SE = s.NaiveSE
		}
		s.CI = s.SE * TCritical(opts.ConfidenceLevel, float64(n-1))
		s.Bounds = minmax.F64{Min: s.Mean - opts.SDMultiplier*s.SD, Max: s.Mean + opts.SDMultiplier*s.SD}
		summaries = append(summaries, s)
	}
	return summaries
}

// SummaryFor returns the summary of condition c.
func SummaryFor(summaries []ConditionSummary, c trials.Condition) (ConditionSummary, bool) {
	for _, s := range summaries {
		if s.Condition == c {
			return s, true
		}
	}
	return ConditionSummary{}, false
}

// NormalizeWithin returns means with each value replaced by
// value - participant mean + grand mean, in the same order as means.
// Participant means are taken over the conditions that participant has.
func NormalizeWithin(means []ParticipantMean) []ParticipantMean {
	if len(means) == 0 {
		return nil
	}
	sums := make(map[trials.ParticipantID]float64)
	counts := make(map[trials.ParticipantID]int)
	all := make([]float64, len(means))
	for i, m := range means {
		sums[m.Participant] += m.MeanISI
		counts[m.Participant]++
		all[i] = m.MeanISI
	}
	grand := stat.Mean(all, nil)

	out := make([]ParticipantMean, len(means))
	for i, m := range means {
		pm := sums[m.Participant] / float64(counts[m.Participant])
		out[i] = m
		out[i].MeanISI = m.MeanISI - pm + grand
	}
	return out
}

// TCritical returns the two-sided Student t critical value for the given
// confidence level and degrees of freedom.
func TCritical(confidence, df float64) float64 {
	if df < 1 || confidence <= 0 || confidence >= 1 {
		return math.NaN()
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return t.Quantile(1 - (1-confidence)/2)
}
