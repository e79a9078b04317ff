// Package anova implements one-way repeated-measures analysis of variance.
//
// The model has a single within-subject factor (the target condition) and
// treats each participant as a subject. Trials are averaged to one value
// per participant and condition before fitting; participants that lack any
// condition are dropped and listed in the table.
//
// # Basic Usage
//
//	model := anova.New()
//	if err := model.Fit(clean); err != nil {
//	    if errors.Is(err, stats.ErrInsufficientData) {
//	        // fewer than two conditions, or a condition with one participant
//	    }
//	    log.Fatal(err)
//	}
//
//	tab := model.Summary()
//	fmt.Printf("F(%g, %g) = %.3f, p = %.4f, ges = %.3f\n",
//	    tab.DFEffect, tab.DFError, tab.F, tab.P, tab.GenEta2)
//
// # Sphericity
//
// With three or more conditions the table carries the Greenhouse-Geisser
// epsilon and the p-value with both degrees of freedom scaled by it. With
// two conditions sphericity holds trivially and epsilon is 1.
package anova
