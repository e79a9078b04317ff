package stats

import (
	"errors"
	"fmt"

	"github.com/sartorproj/attnshift/trials"
)

// ErrInsufficientData is wrapped by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports a design too small for inference.
type InsufficientDataError struct {
	Levels       int              // factor levels present
	Condition    trials.Condition // level with too few participants, if any
	Participants int              // participants in Condition
}

func (e *InsufficientDataError) Error() string {
	if e.Condition != "" {
		return fmt.Sprintf("insufficient data: condition %s has %d participant(s), need at least 2", e.Condition, e.Participants)
	}
	return fmt.Sprintf("insufficient data: %d factor level(s), need at least 2", e.Levels)
}

// Unwrap lets errors.Is match ErrInsufficientData.
func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// CheckDesign verifies that means cover at least two conditions and that
// every condition has at least two participants.
func CheckDesign(means []ParticipantMean) error {
	levels := Levels(means)
	if len(levels) < 2 {
		return &InsufficientDataError{Levels: len(levels)}
	}
	counts := make(map[trials.Condition]int, len(levels))
	for _, m := range means {
		counts[m.Condition]++
	}
	for _, c := range levels {
		if counts[c] < 2 {
			return &InsufficientDataError{Levels: len(levels), Condition: c, Participants: counts[c]}
		}
	}
	return nil
}
