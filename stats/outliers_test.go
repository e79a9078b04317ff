package stats

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sartorproj/attnshift/trials"
)

// cohort returns n well-behaved participants plus, when outlier is set,
// participant "p99" whose condition-0 mean is 10000 ms.
func cohort(n int, outlier bool) []trials.CleanTrial {
	var clean []trials.CleanTrial
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("p%d", i+1)
		clean = append(clean,
			cleanTrial(p, "0", 100+float64(i)),
			cleanTrial(p, "1", 110+float64(i)),
		)
	}
	if outlier {
		clean = append(clean,
			cleanTrial("p99", "0", 10000),
			cleanTrial("p99", "1", 120),
		)
	}
	return clean
}

func hasParticipant(means []ParticipantMean, id trials.ParticipantID, c trials.Condition) bool {
	for _, m := range means {
		if m.Participant == id && m.Condition == c {
			return true
		}
	}
	return false
}

func TestFlagOutliers(t *testing.T) {
	means := ParticipantMeans(cohort(20, true))
	summaries := Summarize(means, nil)
	flags := FlagOutliers(means, summaries)

	require.Len(t, flags, len(means))
	assert.Equal(t, 1, CountFlagged(flags))
	for _, f := range flags {
		if f.Outlier {
			assert.Equal(t, trials.ParticipantID("p99"), f.Participant)
			assert.Equal(t, trials.Condition("0"), f.Condition)
			assert.Greater(t, f.MeanISI, f.Bounds.Max)
		}
	}
	assert.Equal(t, []trials.ParticipantID{"p99"}, ExcludedParticipants(flags))
}

func TestFlagOutliersBoundaryNotFlagged(t *testing.T) {
	means := []ParticipantMean{
		{Participant: "p1", Condition: "0", MeanISI: 130},
		{Participant: "p2", Condition: "0", MeanISI: 70},
		{Participant: "p3", Condition: "0", MeanISI: 100},
	}
	summaries := []ConditionSummary{{Condition: "0", N: 3, Mean: 100, SD: 10}}
	summaries[0].Bounds.Min, summaries[0].Bounds.Max = 70, 130

	flags := FlagOutliers(means, summaries)
	assert.Equal(t, 0, CountFlagged(flags), "values on the bounds are kept")
}

func TestFlagOutliersInBandNotFlagged(t *testing.T) {
	means := []ParticipantMean{
		{Participant: "p1", Condition: "0", MeanISI: 100},
		{Participant: "p2", Condition: "0", MeanISI: 110},
		{Participant: "p3", Condition: "0", MeanISI: 120},
		{Participant: "p4", Condition: "0", MeanISI: 79},
		{Participant: "p5", Condition: "0", MeanISI: 141},
	}
	summaries := []ConditionSummary{{Condition: "0", N: 5, Mean: 110, SD: 10}}
	summaries[0].Bounds.Min, summaries[0].Bounds.Max = 80, 140

	flags := FlagOutliers(means, summaries)
	require.Len(t, flags, 5)
	for _, f := range flags[:3] {
		if f.Outlier {
			t.Errorf("mean %v inside [80, 140] was flagged", f.MeanISI)
		}
	}
	assert.True(t, flags[3].Outlier, "below the lower bound")
	assert.True(t, flags[4].Outlier, "above the upper bound")
	assert.Equal(t, []trials.ParticipantID{"p4", "p5"}, ExcludedParticipants(flags))
}

func TestFlagOutliersUndefinedBounds(t *testing.T) {
	means := []ParticipantMean{{Participant: "p1", Condition: "0", MeanISI: 1e9}}
	flags := FlagOutliers(means, Summarize(means, nil))
	require.Len(t, flags, 1)
	assert.False(t, flags[0].Outlier)
	assert.True(t, math.IsNaN(flags[0].Bounds.Min))

	// Missing summary also leaves the row unflagged.
	flags = FlagOutliers(means, nil)
	assert.False(t, flags[0].Outlier)
}

func TestFilterOutliersParticipantWide(t *testing.T) {
	clean := cohort(20, true)
	res := FilterOutliers(clean, nil)

	assert.Equal(t, []trials.ParticipantID{"p99"}, res.Excluded)
	require.Len(t, res.Passes, 1)

	// p99 was only extreme in condition 0 but is gone from both.
	assert.False(t, hasParticipant(res.Means, "p99", "0"))
	assert.False(t, hasParticipant(res.Means, "p99", "1"))
	for _, tr := range res.Trials {
		if tr.Participant == "p99" {
			t.Fatalf("trial of excluded participant survived: %+v", tr)
		}
	}
	assert.Len(t, res.Means, 40)
	assert.Len(t, res.Trials, 40)

	s0, ok := SummaryFor(res.Summaries, "0")
	require.True(t, ok)
	assert.Equal(t, 20, s0.N)
	assert.InDelta(t, 109.5, s0.Mean, 1e-9)

	assert.True(t, res.Converged)
	assert.Equal(t, 0, CountFlagged(res.Recheck))
}

func TestFilterOutliersNoOutliers(t *testing.T) {
	clean := cohort(20, false)
	res := FilterOutliers(clean, nil)
	assert.Empty(t, res.Excluded)
	assert.Len(t, res.Trials, len(clean))
	assert.True(t, res.Converged)
}

func TestFilterOutliersIdempotent(t *testing.T) {
	first := FilterOutliers(cohort(20, true), nil)
	require.NotEmpty(t, first.Trials)
	require.Len(t, first.Excluded, 1)
	assert.Len(t, Subjects(first.Means), 20)

	second := FilterOutliers(first.Trials, nil)
	assert.Empty(t, second.Excluded)
	assert.Equal(t, first.Means, second.Means)
}

func TestFilterOutliersMultiplePasses(t *testing.T) {
	// A mild outlier is hidden by the extreme one until the extreme one is removed.
	clean := cohort(30, true)
	clean = append(clean, cleanTrial("p98", "0", 180), cleanTrial("p98", "1", 125))

	single := FilterOutliers(clean, nil)
	assert.Equal(t, []trials.ParticipantID{"p99"}, single.Excluded)
	assert.False(t, single.Converged)

	opts := DefaultFilterOptions()
	opts.MaxPasses = 5
	multi := FilterOutliers(clean, opts)
	assert.Equal(t, []trials.ParticipantID{"p98", "p99"}, multi.Excluded)
	assert.True(t, multi.Converged)
	assert.GreaterOrEqual(t, len(multi.Passes), 2)
}

func TestExcludeDoesNotModifyInputs(t *testing.T) {
	clean := threeParticipants()
	means := ParticipantMeans(clean)
	cleanCopy := append([]trials.CleanTrial(nil), clean...)
	meansCopy := append([]ParticipantMean(nil), means...)

	keptTrials, keptMeans := Exclude(clean, means, []trials.ParticipantID{"p2"})
	assert.Len(t, keptTrials, 8)
	assert.Len(t, keptMeans, 4)
	assert.False(t, hasParticipant(keptMeans, "p2", "0"))
	assert.False(t, hasParticipant(keptMeans, "p2", "1"))

	assert.Equal(t, cleanCopy, clean)
	assert.Equal(t, meansCopy, means)
}

func TestWorkedExampleExclusion(t *testing.T) {
	// With three participants a single value can sit at most (n-1)/sqrt(n)
	// SDs from the mean, so the 10000 ms participant is removed explicitly.
	clean := threeParticipants()
	clean = append(clean, cleanTrial("p4", "0", 10000), cleanTrial("p4", "1", 170))
	means := ParticipantMeans(clean)

	_, kept := Exclude(clean, means, []trials.ParticipantID{"p4"})
	assert.False(t, hasParticipant(kept, "p4", "0"))
	assert.False(t, hasParticipant(kept, "p4", "1"))

	summaries := Summarize(kept, nil)
	assert.InDelta(t, 150.0, summaries[0].Mean, 1e-9)
	assert.InDelta(t, 160.0, summaries[1].Mean, 1e-9)
}
