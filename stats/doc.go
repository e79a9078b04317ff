// Package stats provides descriptive statistics, outlier screening and
// distribution functions for the attention-shifting analysis.
//
// # Participant Means
//
// Trials are first averaged per participant and condition:
//
//	means := stats.ParticipantMeans(clean)
//	for _, m := range means {
//	    fmt.Printf("%s/%s: %.1f ms over %d trials\n",
//	        m.Participant, m.Condition, m.MeanISI, m.N)
//	}
//
// # Condition Summaries
//
// Summarize describes the participant means of each condition. SE is the
// within-subject standard error of Morey (2008), which removes
// between-participant variability before the spread is taken:
//
//	summaries := stats.Summarize(means, nil)  // 95% CI, 3-SD bounds
//	for _, s := range summaries {
//	    fmt.Printf("%s: mean=%.1f se=%.2f ci=±%.2f\n",
//	        s.Condition, s.Mean, s.SE, s.CI)
//	}
//
// # Outlier Screening
//
// A participant whose mean in any condition lies outside that condition's
// Mean ± 3·SD band is removed from every condition:
//
//	res := stats.FilterOutliers(clean, nil)
//	fmt.Println("excluded:", res.Excluded)
//	if !res.Converged {
//	    // the recomputed bands flag further participants
//	}
//
// Box computes the five-number summary and Tukey fences of a condition:
//
//	box, err := stats.Box(means, "1")
//
// # Distributions
//
// TCritical returns Student t critical values. PTukey and QTukey give the
// studentized range distribution used for Tukey-adjusted contrasts:
//
//	q := stats.QTukey(0.95, 3, 10)  // ≈ 3.877
//	p := 1 - stats.PTukey(q, 3, 10) // ≈ 0.05
package stats
