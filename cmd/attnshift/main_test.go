package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTrials writes a small three-condition trial export and returns its path.
func writeTrials(t *testing.T, participants int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("participant,trial,ISI_adjusted,target_index,correct,n_reversals\n")
	for i := 0; i < participants; i++ {
		for c := 0; c < 3; c++ {
			for r := 0; r < 4; r++ {
				isi := (110 + 4*float64(i) + 12*float64(c) + float64((i*3+r*5+c)%6)) / 1000
				fmt.Fprintf(&b, "s%d,%d,%g,%d,1,%d\n", i+1, r+1, isi, c, r%3)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "trials.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunTable(t *testing.T) {
	code, out, errOut := runCLI("-log-level", "error", writeTrials(t, 8))
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Repeated-measures ANOVA")
	assert.Contains(t, out, "Pairwise contrasts (Tukey)")
}

func TestRunAllOutputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	code, _, errOut := runCLI("-log-level", "error", "-out", dir, "-format", "csv,json", "-plots", writeTrials(t, 8))
	require.Equal(t, exitOK, code, errOut)

	for _, name := range []string{"result.json", "anova.csv", "contrasts.csv", "clean_trials.csv", "condition_means.png", "participant_means_box.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunJSONToStdout(t *testing.T) {
	code, out, _ := runCLI("-log-level", "error", "-format", "json", writeTrials(t, 6))
	require.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"anova"`)
}

func TestRunUsageErrors(t *testing.T) {
	path := writeTrials(t, 4)
	tests := []struct {
		name string
		args []string
	}{
		{"no file", nil},
		{"two files", []string{path, path}},
		{"unknown flag", []string{"-bogus", path}},
		{"bad format", []string{"-format", "xml", path}},
		{"csv without out", []string{"-format", "csv", path}},
		{"plots without out", []string{"-plots", path}},
		{"bad log level", []string{"-log-level", "loud", path}},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml"), path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRunPipelineFailure(t *testing.T) {
	code, _, errOut := runCLI("-log-level", "error", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "load stage")

	// One participant: inference fails but upstream tables are printed.
	code, out, errOut := runCLI("-log-level", "error", writeTrials(t, 1))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "inference stage")
	assert.Contains(t, out, "Participant means")
}

func TestInitConfigAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	code, _, _ := runCLI("-init-config", path)
	require.Equal(t, exitOK, code)

	code, _, errOut := runCLI("-config", path, "-log-level", "error", writeTrials(t, 5))
	assert.Equal(t, exitOK, code, errOut)

	code, out, _ := runCLI("-version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, version)
}
