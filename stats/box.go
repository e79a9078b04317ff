package stats

import (
	"fmt"

	mfstats "github.com/montanaflynn/stats"

	"github.com/sartorproj/attnshift/trials"
)

// BoxSummary holds the five-number summary and Tukey fences of the
// participant means of one condition.
type BoxSummary struct {
	Condition  trials.Condition
	N          int
	Min        float64
	Q1         float64
	Median     float64
	Q3         float64
	Max        float64
	LowerInner float64 // Q1 - 1.5 IQR
	UpperInner float64 // Q3 + 1.5 IQR
	LowerOuter float64 // Q1 - 3 IQR
	UpperOuter float64 // Q3 + 3 IQR
	Mild       []float64
	Extreme    []float64
}

// Box summarizes the participant means of condition c.
func Box(means []ParticipantMean, c trials.Condition) (*BoxSummary, error) {
	var data mfstats.Float64Data
	for _, m := range means {
		if m.Condition == c {
			data = append(data, m.MeanISI)
		}
	}
	if data.Len() == 0 {
		return nil, fmt.Errorf("box summary: no participant means for condition %s", c)
	}

	qs, err := mfstats.Quartile(data)
	if err != nil {
		return nil, fmt.Errorf("box summary %s: %w", c, err)
	}
	iqr := qs.Q3 - qs.Q1
	minV, _ := mfstats.Min(data)
	maxV, _ := mfstats.Max(data)

	box := &BoxSummary{
		Condition:  c,
		N:          data.Len(),
		Min:        minV,
		Q1:         qs.Q1,
		Median:     qs.Q2,
		Q3:         qs.Q3,
		Max:        maxV,
		LowerInner: qs.Q1 - 1.5*iqr,
		UpperInner: qs.Q3 + 1.5*iqr,
		LowerOuter: qs.Q1 - 3*iqr,
		UpperOuter: qs.Q3 + 3*iqr,
	}

	// QuartileOutliers needs enough points for its quartiles to be defined.
	if data.Len() >= 4 {
		out, err := mfstats.QuartileOutliers(data)
		if err != nil {
			return nil, fmt.Errorf("box summary %s: %w", c, err)
		}
		box.Mild = out.Mild
		box.Extreme = out.Extreme
	}
	return box, nil
}

// Boxes returns one BoxSummary per condition present in means.
func Boxes(means []ParticipantMean) ([]BoxSummary, error) {
	var boxes []BoxSummary
	for _, c := range Levels(means) {
		b, err := Box(means, c)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, *b)
	}
	return boxes, nil
}
