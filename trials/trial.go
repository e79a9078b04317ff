package trials

import (
	"sort"
	"strconv"
)

// ParticipantID identifies one participant. It is a label, never a number.
type ParticipantID string

// Condition is one level of the target_index factor.
//
// Conditions are categorical: they can be compared for equality and ordered
// for display, but they carry no arithmetic. The catch-trial sentinel is an
// ordinary level like any other.
type Condition string

// DefaultCatchCondition is the target_index level used for catch trials.
const DefaultCatchCondition Condition = "99"

// Less reports whether c sorts before other. Labels that parse as integers
// compare numerically so that "2" sorts before "10".
func (c Condition) Less(other Condition) bool {
	return labelLess(string(c), string(other))
}

// Less reports whether p sorts before other, using the same natural order as Condition.
func (p ParticipantID) Less(other ParticipantID) bool {
	return labelLess(string(p), string(other))
}

func labelLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

// Trial is one completed trial as exported by the experiment.
type Trial struct {
	Participant ParticipantID
	TrialNumber int
	ISIAdjusted float64 // seconds
	Target      Condition
	Correct     bool
	Reversals   int
	Line        int // source line, 0 when not loaded from a file
}

// CleanTrial is a Trial that passed cleaning, with the ISI in milliseconds.
type CleanTrial struct {
	Trial
	ISIms float64
}

// Factor is the explicit, ordered level set of a categorical column.
type Factor struct {
	Name   string
	Levels []Condition
}

// NewFactor builds a factor from the distinct values in levels, in natural order.
func NewFactor(name string, levels []Condition) *Factor {
	seen := make(map[Condition]bool, len(levels))
	var uniq []Condition
	for _, l := range levels {
		if !seen[l] {
			seen[l] = true
			uniq = append(uniq, l)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Less(uniq[j]) })
	return &Factor{Name: name, Levels: uniq}
}

// FactorOf infers the target_index factor from a clean trial set.
func FactorOf(clean []CleanTrial) *Factor {
	levels := make([]Condition, len(clean))
	for i, t := range clean {
		levels[i] = t.Target
	}
	return NewFactor("target_index", levels)
}

// Len returns the number of levels.
func (f *Factor) Len() int {
	return len(f.Levels)
}

// Index returns the position of c in the level set, or -1.
func (f *Factor) Index(c Condition) int {
	for i, l := range f.Levels {
		if l == c {
			return i
		}
	}
	return -1
}

// Participants returns the distinct participants of a clean trial set in natural order.
func Participants(clean []CleanTrial) []ParticipantID {
	seen := make(map[ParticipantID]bool)
	var ids []ParticipantID
	for _, t := range clean {
		if !seen[t.Participant] {
			seen[t.Participant] = true
			ids = append(ids, t.Participant)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Without returns a new clean trial set with every trial of the given participants removed.
func Without(clean []CleanTrial, excluded map[ParticipantID]bool) []CleanTrial {
	out := make([]CleanTrial, 0, len(clean))
	for _, t := range clean {
		if excluded[t.Participant] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ISIValues returns the ISI_ms column of a clean trial set.
func ISIValues(clean []CleanTrial) []float64 {
	values := make([]float64, len(clean))
	for i, t := range clean {
		values[i] = t.ISIms
	}
	return values
}
