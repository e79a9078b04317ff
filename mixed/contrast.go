package mixed

import (
	"errors"
	"fmt"
	"math"

	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// ErrNoEffect is returned for marginal means and contrasts of a model
// without the condition term.
var ErrNoEffect = errors.New("model has no condition effect")

// EMM is the estimated marginal mean of one level.
type EMM struct {
	Condition trials.Condition
	Estimate  float64
	SE        float64
	DF        float64 // participants - 1
	Lower     float64
	Upper     float64
}

// ContrastResult is the Tukey-adjusted difference A - B between two levels.
type ContrastResult struct {
	A          trials.Condition
	B          trials.Condition
	Estimate   float64
	SE         float64
	DF         float64 // (participants - 1)(levels - 1)
	T          float64
	P          float64 // Tukey-adjusted over all levels
	Lower      float64
	Upper      float64
	Confidence float64
}

// weights returns the linear combination of the fixed effects that
// predicts level c.
func (m *Model) weights(c trials.Condition) ([]float64, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted first")
	}
	if !m.WithEffect {
		return nil, ErrNoEffect
	}
	w := make([]float64, len(m.terms))
	w[0] = 1
	if col, ok := m.column[c]; ok {
		w[col] = 1
		return w, nil
	}
	if c != m.levels[0] {
		return nil, fmt.Errorf("unknown level %q", c)
	}
	return w, nil
}

// estimate returns L'beta and its standard error sqrt(L' Cov L).
func (m *Model) estimate(l []float64) (float64, float64) {
	est := 0.0
	for i, v := range l {
		est += v * m.Beta[i]
	}
	variance := 0.0
	for i, vi := range l {
		for j, vj := range l {
			variance += vi * m.covBeta.At(i, j) * vj
		}
	}
	return est, math.Sqrt(variance)
}

// EMMeans returns the estimated marginal mean of every level in natural
// order, with confidence intervals on participants - 1 degrees of freedom.
func (m *Model) EMMeans() ([]EMM, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted first")
	}
	df := float64(m.subjects - 1)
	tc := stats.TCritical(m.Options.Confidence, df)

	var out []EMM
	for _, c := range m.Levels() {
		w, err := m.weights(c)
		if err != nil {
			return nil, err
		}
		est, se := m.estimate(w)
		out = append(out, EMM{
			Condition: c,
			Estimate:  est,
			SE:        se,
			DF:        df,
			Lower:     est - tc*se,
			Upper:     est + tc*se,
		})
	}
	return out, nil
}

// Contrast returns the Tukey-adjusted contrast a - b. Contrast(b, a) is
// its exact mirror: negated estimate, swapped and negated interval,
// identical SE and p-value.
func (m *Model) Contrast(a, b trials.Condition) (*ContrastResult, error) {
	wa, err := m.weights(a)
	if err != nil {
		return nil, err
	}
	wb, err := m.weights(b)
	if err != nil {
		return nil, err
	}
	l := make([]float64, len(wa))
	for i := range l {
		l[i] = wa[i] - wb[i]
	}
	est, se := m.estimate(l)

	k := len(m.levels)
	df := float64((m.subjects - 1) * (k - 1))
	conf := m.Options.Confidence

	r := &ContrastResult{A: a, B: b, Estimate: est, SE: se, DF: df, Confidence: conf}
	if se == 0 || math.IsNaN(se) {
		r.T, r.P = math.NaN(), math.NaN()
		r.Lower, r.Upper = math.NaN(), math.NaN()
		return r, nil
	}
	r.T = est / se
	r.P = 1 - stats.PTukey(math.Sqrt2*math.Abs(r.T), k, df)
	if r.P < 0 {
		r.P = 0
	}
	half := stats.QTukey(conf, k, df) / math.Sqrt2 * se
	r.Lower = est - half
	r.Upper = est + half
	return r, nil
}

// Pairwise returns the contrasts of every pair of levels, earlier level
// minus later level in natural order.
func (m *Model) Pairwise() ([]ContrastResult, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted first")
	}
	levels := m.Levels()
	var out []ContrastResult
	for i := 0; i < len(levels); i++ {
		for j := i + 1; j < len(levels); j++ {
			c, err := m.Contrast(levels[i], levels[j])
			if err != nil {
				return nil, err
			}
			out = append(out, *c)
		}
	}
	return out, nil
}
