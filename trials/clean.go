package trials

import (
	"fmt"
)

// Reversal rule modes.
const (
	ReversalsNonZero = "nonzero" // keep trials with n_reversals != 0
	ReversalsMin     = "min"     // keep trials with n_reversals >= Min
)

// ReversalRule decides whether a trial was run at threshold.
type ReversalRule struct {
	Mode string
	Min  int
}

// DefaultReversalRule keeps every trial with a non-zero reversal count.
func DefaultReversalRule() ReversalRule {
	return ReversalRule{Mode: ReversalsNonZero}
}

// Keep reports whether a trial with n reversals passes the rule.
func (r ReversalRule) Keep(n int) bool {
	switch r.Mode {
	case ReversalsMin:
		return n >= r.Min
	default:
		return n != 0
	}
}

// Validate checks the rule mode.
func (r ReversalRule) Validate() error {
	switch r.Mode {
	case "", ReversalsNonZero:
		return nil
	case ReversalsMin:
		if r.Min < 1 {
			return fmt.Errorf("reversal rule %q needs min >= 1, got %d", r.Mode, r.Min)
		}
		return nil
	}
	return fmt.Errorf("unknown reversal rule %q", r.Mode)
}

// CleanOptions holds options for Clean.
type CleanOptions struct {
	Reversals   ReversalRule
	DropCatch   bool      // drop trials whose target is CatchLevel
	CatchLevel  Condition // default: DefaultCatchCondition
	CorrectOnly bool      // drop incorrect trials
}

// DefaultCleanOptions keeps trials with at least one reversal. Catch trials
// and incorrect responses are kept.
func DefaultCleanOptions() *CleanOptions {
	return &CleanOptions{
		Reversals:  DefaultReversalRule(),
		CatchLevel: DefaultCatchCondition,
	}
}

// CleanReport counts what Clean kept and why it dropped the rest.
type CleanReport struct {
	Input          int
	Kept           int
	DroppedReverse int
	DroppedCatch   int
	DroppedWrong   int
}

// Clean filters trials to those at threshold and derives ISI_ms.
// The input is not modified. Empty input yields an empty, non-nil result.
func Clean(trials []Trial, opts *CleanOptions) ([]CleanTrial, *CleanReport) {
	if opts == nil {
		opts = DefaultCleanOptions()
	}
	catch := opts.CatchLevel
	if catch == "" {
		catch = DefaultCatchCondition
	}

	report := &CleanReport{Input: len(trials)}
	out := make([]CleanTrial, 0, len(trials))
	for _, t := range trials {
		if !opts.Reversals.Keep(t.Reversals) {
			report.DroppedReverse++
			continue
		}
		if opts.DropCatch && t.Target == catch {
			report.DroppedCatch++
			continue
		}
		if opts.CorrectOnly && !t.Correct {
			report.DroppedWrong++
			continue
		}
		out = append(out, CleanTrial{Trial: t, ISIms: t.ISIAdjusted * 1000})
	}
	report.Kept = len(out)
	return out, report
}
