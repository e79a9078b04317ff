package mixed

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Comparison is a likelihood-ratio test of two nested models.
type Comparison struct {
	NullFormula string
	FullFormula string
	NullLogLik  float64
	FullLogLik  float64
	NullAIC     float64
	FullAIC     float64
	NullBIC     float64
	FullBIC     float64
	Chi2        float64
	DF          int
	P           float64
}

// Compare tests full against the nested null model. Both must be fitted by
// maximum likelihood on the same trials.
func Compare(null, full *Model) (*Comparison, error) {
	if !null.fitted || !full.fitted {
		return nil, errors.New("both models must be fitted first")
	}
	if null.nobs != full.nobs {
		return nil, errors.New("models were fitted on different data")
	}
	df := full.NumParams() - null.NumParams()
	if df <= 0 {
		return nil, errors.New("full model must have more parameters than the null model")
	}

	chi2 := 2 * (full.LogLik - null.LogLik)
	if chi2 < 0 {
		// the optimizer stopped short on the full model
		chi2 = 0
	}
	p := distuv.ChiSquared{K: float64(df)}.Survival(chi2)
	if math.IsNaN(p) {
		p = 1
	}

	return &Comparison{
		NullFormula: null.Formula,
		FullFormula: full.Formula,
		NullLogLik:  null.LogLik,
		FullLogLik:  full.LogLik,
		NullAIC:     null.AIC,
		FullAIC:     full.AIC,
		NullBIC:     null.BIC,
		FullBIC:     full.BIC,
		Chi2:        chi2,
		DF:          df,
		P:           p,
	}, nil
}
