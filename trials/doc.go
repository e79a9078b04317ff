// Package trials provides the trial-level data structures of the
// attention-shifting task, together with loading and cleaning.
//
// This package includes the Trial and CleanTrial types, the categorical
// Condition and ParticipantID labels, CSV loading, and the cleaning step
// that keeps at-threshold trials.
//
// # Loading from CSV
//
// Load trials exported by the experiment:
//
//	trials, err := trials.LoadCSV("attn_shift.csv", nil)
//
// Column names and the delimiter are configurable:
//
//	opts := trials.DefaultCSVOptions()
//	opts.ISIColumn = "isi_adj"
//	opts.Delimiter = '\t'
//	trials, err := trials.LoadCSV("attn_shift.tsv", opts)
//
// A missing column or a non-numeric value in a numeric column returns a
// *DataFormatError that names the line and column:
//
//	var dfe *trials.DataFormatError
//	if errors.As(err, &dfe) {
//	    fmt.Println(dfe.Line, dfe.Column)
//	}
//
// # Cleaning
//
// Keep trials run at threshold and derive ISI in milliseconds:
//
//	clean, report := trials.Clean(all, trials.DefaultCleanOptions())
//	fmt.Printf("kept %d of %d\n", report.Kept, report.Input)
//
// By default a trial is at threshold when its reversal count is non-zero.
// A minimum reversal count can be required instead:
//
//	opts := trials.DefaultCleanOptions()
//	opts.Reversals = trials.ReversalRule{Mode: trials.ReversalsMin, Min: 2}
//
// # Categorical Levels
//
// Conditions are labels, not numbers. Factor gives the explicit level set:
//
//	f := trials.FactorOf(clean)
//	for _, level := range f.Levels {
//	    fmt.Println(level)
//	}
package trials
