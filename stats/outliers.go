package stats

import (
	"math"
	"sort"

	"github.com/emer/etable/v2/minmax"

	"github.com/sartorproj/attnshift/trials"
)

// OutlierFlag marks whether a participant mean lies outside its condition's band.
type OutlierFlag struct {
	ParticipantMean
	Bounds  minmax.F64
	Outlier bool
}

// FlagOutliers checks every participant mean against the bounds of its
// condition summary. A mean is an outlier iff it is strictly below the lower
// bound or strictly above the upper bound. Undefined (NaN) bounds never flag.
func FlagOutliers(means []ParticipantMean, summaries []ConditionSummary) []OutlierFlag {
	flags := make([]OutlierFlag, len(means))
	for i, m := range means {
		flags[i] = OutlierFlag{ParticipantMean: m}
		s, ok := SummaryFor(summaries, m.Condition)
		if !ok {
			flags[i].Bounds = minmax.F64{Min: math.NaN(), Max: math.NaN()}
			continue
		}
		b := s.Bounds
		flags[i].Bounds = b
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
			continue
		}
		flags[i].Outlier = !b.InRange(m.MeanISI)
	}
	return flags
}

// CountFlagged returns the number of flagged rows.
func CountFlagged(flags []OutlierFlag) int {
	n := 0
	for _, f := range flags {
		if f.Outlier {
			n++
		}
	}
	return n
}

// ExcludedParticipants returns every participant with at least one flagged
// row in any condition, in natural order.
func ExcludedParticipants(flags []OutlierFlag) []trials.ParticipantID {
	seen := make(map[trials.ParticipantID]bool)
	var ids []trials.ParticipantID
	for _, f := range flags {
		if f.Outlier && !seen[f.Participant] {
			seen[f.Participant] = true
			ids = append(ids, f.Participant)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Exclude removes every row of the excluded participants, in all
// conditions, from both the clean trial set and the participant means.
// The inputs are not modified.
func Exclude(clean []trials.CleanTrial, means []ParticipantMean, excluded []trials.ParticipantID) ([]trials.CleanTrial, []ParticipantMean) {
	drop := make(map[trials.ParticipantID]bool, len(excluded))
	for _, id := range excluded {
		drop[id] = true
	}

	keptMeans := make([]ParticipantMean, 0, len(means))
	for _, m := range means {
		if !drop[m.Participant] {
			keptMeans = append(keptMeans, m)
		}
	}
	return trials.Without(clean, drop), keptMeans
}

// FilterOptions holds options for FilterOutliers.
type FilterOptions struct {
	Summary   SummaryOptions
	MaxPasses int // exclusion passes before the recheck (default: 1)
}

// DefaultFilterOptions returns a single 3-SD pass, the usual screening for threshold data.
func DefaultFilterOptions() *FilterOptions {
	return &FilterOptions{
		Summary:   *DefaultSummaryOptions(),
		MaxPasses: 1,
	}
}

// FilterPass records what one exclusion pass saw and removed.
type FilterPass struct {
	Summaries []ConditionSummary
	Flags     []OutlierFlag
	Excluded  []trials.ParticipantID
}

// FilterResult is the outcome of FilterOutliers.
type FilterResult struct {
	Trials    []trials.CleanTrial    // clean trials of the retained participants
	Means     []ParticipantMean      // participant means of the retained participants
	Summaries []ConditionSummary     // recomputed on the retained participants
	Passes    []FilterPass           // one entry per exclusion pass run
	Excluded  []trials.ParticipantID // union of all passes
	Recheck   []OutlierFlag          // flags of a further pass over Summaries
	Converged bool                   // the recheck flagged nothing
}

// ScreeningSummaries returns the condition summaries whose bounds the first
// pass flagged against, computed before anyone was excluded.
func (r *FilterResult) ScreeningSummaries() []ConditionSummary {
	if len(r.Passes) == 0 {
		return r.Summaries
	}
	return r.Passes[0].Summaries
}

// FilterOutliers screens participants for outlying condition means and
// removes flagged participants from every condition.
//
// It runs up to MaxPasses passes, stopping early when a pass removes no
// one, then recomputes the summaries of the retained participants and flags
// them once more. Converged reports whether that recheck is clean; the
// recheck never removes anyone.
func FilterOutliers(clean []trials.CleanTrial, opts *FilterOptions) *FilterResult {
	if opts == nil {
		opts = DefaultFilterOptions()
	}
	passes := opts.MaxPasses
	if passes < 1 {
		passes = 1
	}

	result := &FilterResult{}
	current := clean
	for i := 0; i < passes; i++ {
		means := ParticipantMeans(current)
		summaries := Summarize(means, &opts.Summary)
		flags := FlagOutliers(means, summaries)
		excluded := ExcludedParticipants(flags)

		result.Passes = append(result.Passes, FilterPass{
			Summaries: summaries,
			Flags:     flags,
			Excluded:  excluded,
		})
		if len(excluded) == 0 {
			break
		}
		result.Excluded = append(result.Excluded, excluded...)
		current, _ = Exclude(current, means, excluded)
	}
	sort.Slice(result.Excluded, func(i, j int) bool { return result.Excluded[i].Less(result.Excluded[j]) })

	result.Trials = current
	result.Means = ParticipantMeans(current)
	result.Summaries = Summarize(result.Means, &opts.Summary)
	result.Recheck = FlagOutliers(result.Means, result.Summaries)
	result.Converged = CountFlagged(result.Recheck) == 0
	return result
}
