package trials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `participant,trial,ISI_adjusted,target_index,correct,n_reversals
p01,1,0.120,0,1,0
p01,2,0.110,0,1,2
p01,3,0.095,1,0,3
p02,1,0.130,99,1,1
p02,2,0.125,1,True,4`

func TestLoadCSVFromReader(t *testing.T) {
	trials, err := LoadCSVFromReader(strings.NewReader(sampleCSV), DefaultCSVOptions())
	if err != nil {
		t.Fatalf("Failed to load CSV: %v", err)
	}

	if len(trials) != 5 {
		t.Fatalf("Expected 5 trials, got %d", len(trials))
	}

	first := trials[0]
	if first.Participant != "p01" || first.TrialNumber != 1 || first.Target != "0" {
		t.Errorf("Unexpected first trial: %+v", first)
	}
	if first.ISIAdjusted != 0.120 {
		t.Errorf("Expected ISI 0.120, got %f", first.ISIAdjusted)
	}
	if first.Line != 2 {
		t.Errorf("Expected first trial on line 2, got %d", first.Line)
	}
	if trials[2].Correct {
		t.Error("Expected trial 3 of p01 to be incorrect")
	}
	if !trials[4].Correct {
		t.Error("Expected 'True' to parse as correct")
	}
	if trials[3].Target != DefaultCatchCondition {
		t.Errorf("Expected catch level 99, got %s", trials[3].Target)
	}
}

func TestLoadCSVMissingColumn(t *testing.T) {
	csvData := `participant,trial,ISI_adjusted,correct,n_reversals
p01,1,0.12,1,2`

	_, err := LoadCSVFromReader(strings.NewReader(csvData), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataFormat)

	var dfe *DataFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, "target_index", dfe.Column)
	assert.Equal(t, 0, dfe.Line)
}

func TestLoadCSVNonNumeric(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		column string
	}{
		{"isi", "p01,1,fast,0,1,2", "ISI_adjusted"},
		{"isi NA", "p01,1,NA,0,1,2", "ISI_adjusted"},
		{"isi NaN", "p01,1,NaN,0,1,2", "ISI_adjusted"},
		{"trial", "p01,one,0.1,0,1,2", "trial"},
		{"target", "p01,1,0.1,left,1,2", "target_index"},
		{"target fractional", "p01,1,0.1,1.5,1,2", "target_index"},
		{"correct", "p01,1,0.1,0,maybe,2", "correct"},
		{"reversals", "p01,1,0.1,0,1,x", "n_reversals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csvData := "participant,trial,ISI_adjusted,target_index,correct,n_reversals\n" + tt.row
			_, err := LoadCSVFromReader(strings.NewReader(csvData), nil)

			var dfe *DataFormatError
			require.ErrorAs(t, err, &dfe)
			assert.Equal(t, tt.column, dfe.Column)
			assert.Equal(t, 2, dfe.Line)
		})
	}
}

func TestLoadCSVSkipsBlankRows(t *testing.T) {
	csvData := sampleCSV + "\n,,,,,\n"

	trials, err := LoadCSVFromReader(strings.NewReader(csvData), nil)
	require.NoError(t, err)
	assert.Len(t, trials, 5)
}

func TestLoadCSVCaseInsensitiveHeaderAndTabs(t *testing.T) {
	csvData := "Participant\tTrial\tisi_adjusted\tTARGET_INDEX\tcorrect\tn_reversals\n" +
		"s1\t1\t0.2\t2\t0\t1.0\n"

	opts := DefaultCSVOptions()
	opts.Delimiter = '\t'

	trials, err := LoadCSVFromReader(strings.NewReader(csvData), opts)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, ParticipantID("s1"), trials[0].Participant)
	assert.Equal(t, Condition("2"), trials[0].Target)
	assert.Equal(t, 1, trials[0].Reversals)
}

func TestLoadCSVEmpty(t *testing.T) {
	_, err := LoadCSVFromReader(strings.NewReader(""), nil)
	assert.ErrorIs(t, err, ErrDataFormat)
}

func TestSaveAndLoadCSV(t *testing.T) {
	trials, err := LoadCSVFromReader(strings.NewReader(sampleCSV), nil)
	require.NoError(t, err)
	clean, _ := Clean(trials, nil)

	path := filepath.Join(t.TempDir(), "clean.csv")
	require.NoError(t, SaveCSV(clean, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "participant,trial,ISI_adjusted,target_index,correct,n_reversals,ISI_ms\n"))

	reloaded, err := LoadCSV(path, nil)
	require.NoError(t, err)
	require.Len(t, reloaded, len(clean))
	for i := range clean {
		assert.Equal(t, clean[i].Participant, reloaded[i].Participant)
		assert.Equal(t, clean[i].Target, reloaded[i].Target)
		assert.InDelta(t, clean[i].ISIAdjusted, reloaded[i].ISIAdjusted, 1e-12)
	}
}

func TestSaveCSVReportsWriteErrors(t *testing.T) {
	clean, _ := Clean([]Trial{
		{Participant: "p1", TrialNumber: 1, ISIAdjusted: 0.1, Target: "0", Correct: true, Reversals: 1},
	}, nil)

	err := SaveCSV(clean, filepath.Join(t.TempDir(), "missing", "clean.csv"))
	assert.Error(t, err)

	// /dev/full accepts the open and fails the write.
	if _, statErr := os.Stat("/dev/full"); statErr != nil {
		t.Skip("/dev/full not available")
	}
	err = SaveCSV(clean, "/dev/full")
	assert.Error(t, err)
}
