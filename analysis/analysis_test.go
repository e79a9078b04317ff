package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sartorproj/attnshift/config"
	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// generateTrials simulates n participants over the given condition effects
// (ms), perCell trials each, plus every third trial with zero reversals.
// With outlier set, participant "p99" is ten seconds slow in condition 0.
func generateTrials(n, perCell int, effects []float64, outlier bool) []trials.Trial {
	rng := rand.New(rand.NewSource(42))
	var out []trials.Trial
	add := func(p string, c int, base float64) {
		for r := 0; r < perCell; r++ {
			out = append(out, trials.Trial{
				Participant: trials.ParticipantID(p),
				TrialNumber: len(out) + 1,
				ISIAdjusted: (base + 6*rng.NormFloat64()) / 1000,
				Target:      trials.Condition(fmt.Sprint(c)),
				Correct:     true,
				Reversals:   1 + r%4,
			})
		}
		out = append(out, trials.Trial{
			Participant: trials.ParticipantID(p),
			ISIAdjusted: 5,
			Target:      trials.Condition(fmt.Sprint(c)),
			Reversals:   0,
		})
	}
	for i := 0; i < n; i++ {
		u := 15 * rng.NormFloat64()
		for c, e := range effects {
			add(fmt.Sprintf("p%d", i+1), c, 120+u+e)
		}
	}
	if outlier {
		add("p99", 0, 10000)
		for c := 1; c < len(effects); c++ {
			add("p99", c, 120+effects[c])
		}
	}
	return out
}

func TestRun(t *testing.T) {
	input := generateTrials(20, 6, []float64{0, 20, 40}, true)
	a := NewAnalyzer(nil, zaptest.NewLogger(t))

	res, err := a.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, len(input), res.CleanReport.Input)
	assert.Equal(t, 63, res.CleanReport.DroppedReverse)
	for _, c := range res.Clean {
		assert.NotZero(t, c.Reversals)
	}

	assert.Len(t, res.Means, 63)
	assert.Empty(t, res.Missing)
	assert.Equal(t, []trials.ParticipantID{"p99"}, res.Screening.Excluded)
	assert.Len(t, res.Screening.Means, 60)
	assert.Len(t, res.Boxes, 3)

	require.NotNil(t, res.ANOVA)
	assert.Equal(t, 20, res.ANOVA.Participants)
	assert.Less(t, res.ANOVA.P, 0.001)

	require.NotNil(t, res.Mixed)
	assert.Len(t, res.EMMs, 3)
	assert.Len(t, res.Contrasts, 3)
	require.NotNil(t, res.Comparison)
	assert.Less(t, res.Comparison.P, 0.001)
}

func TestRunWithoutMixedModel(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.MixedModel = false
	res, err := NewAnalyzer(cfg, nil).Run(context.Background(), generateTrials(8, 4, []float64{0, 10}, false))
	require.NoError(t, err)
	assert.NotNil(t, res.ANOVA)
	assert.Nil(t, res.Mixed)
	assert.Nil(t, res.Comparison)
}

func TestRunInsufficientData(t *testing.T) {
	input := generateTrials(1, 5, []float64{0, 10}, false)
	res, err := NewAnalyzer(nil, zaptest.NewLogger(t)).Run(context.Background(), input)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageInference, se.Stage)
	assert.True(t, errors.Is(err, stats.ErrInsufficientData))

	// Upstream tables are still available, and screening kept the
	// participant: the failure comes from the design, not from exclusion.
	require.NotNil(t, res)
	assert.Len(t, res.Means, 2)
	require.NotNil(t, res.Screening)
	assert.Empty(t, res.Screening.Excluded)
	assert.Len(t, res.Screening.Means, 2)
	assert.NotEmpty(t, res.Screening.Trials)
	assert.Nil(t, res.ANOVA)
}

func TestRunLogsEmptyGroups(t *testing.T) {
	input := generateTrials(6, 4, []float64{0, 10}, false)
	var pruned []trials.Trial
	for _, tr := range input {
		if tr.Participant == "p3" && tr.Target == "1" {
			continue
		}
		pruned = append(pruned, tr)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := NewAnalyzer(nil, zap.New(core)).Run(context.Background(), pruned)
	require.NoError(t, err)

	require.Len(t, res.Missing, 1)
	assert.Equal(t, stats.Cell{Participant: "p3", Condition: "1"}, res.Missing[0])

	entries := logs.FilterMessage("Empty group").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p3", entries[0].ContextMap()["participant"])
	assert.Equal(t, []trials.ParticipantID{"p3"}, res.ANOVA.Dropped)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil, nil).Run(ctx, generateTrials(4, 2, []float64{0, 1}, false))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageClean, se.Stage)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trials.csv")
	content := "participant,trial,ISI_adjusted,target_index,correct,n_reversals\n"
	for i, tr := range generateTrials(6, 3, []float64{0, 15}, false) {
		content += fmt.Sprintf("%s,%d,%g,%s,%t,%d\n", tr.Participant, i+1, tr.ISIAdjusted, tr.Target, tr.Correct, tr.Reversals)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := NewAnalyzer(nil, zaptest.NewLogger(t)).RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, res.Source)
	assert.NotNil(t, res.ANOVA)
}

func TestRunFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("participant,trial,target_index\np1,1,0\n"), 0o644))

	res, err := NewAnalyzer(nil, zaptest.NewLogger(t)).RunFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trials.ErrDataFormat))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageLoad, se.Stage)
	assert.Contains(t, se.Error(), "load stage")
	assert.Equal(t, path, res.Source)
}
