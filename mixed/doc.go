// Package mixed implements a linear mixed model for repeated-measures
// threshold data, with estimated marginal means, Tukey-adjusted pairwise
// contrasts and likelihood-ratio model comparison.
//
// The model is
//
//	ISI_ms ~ target_index + (1 | participant) + (1 | participant:target_index)
//
// with treatment coding of target_index. It is fit by maximum likelihood:
// the fixed effects and residual variance are profiled out and the two
// variance ratios are found with Nelder-Mead on the log scale.
//
// # Basic Usage
//
//	model := mixed.New(nil)
//	if err := model.Fit(clean); err != nil {
//	    log.Fatal(err)
//	}
//	summary := model.Summary()
//	fmt.Printf("logLik: %.2f, AIC: %.2f\n", summary.LogLik, summary.AIC)
//
// # Post-hoc Contrasts
//
//	emms, _ := model.EMMeans()
//	pairs, _ := model.Pairwise()
//	for _, c := range pairs {
//	    fmt.Printf("%s - %s: %.2f (p = %.4f)\n", c.A, c.B, c.Estimate, c.P)
//	}
//
// # Model Comparison
//
// The condition effect is tested against the intercept-only model with the
// same random structure:
//
//	null := mixed.NewNull(nil)
//	null.Fit(clean)
//	cmp, _ := mixed.Compare(null, model)
//	fmt.Printf("chi2(%d) = %.3f, p = %.4f\n", cmp.DF, cmp.Chi2, cmp.P)
package mixed
