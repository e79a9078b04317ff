package mixed

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Bounds of the log variance ratios seen by the optimizer.
// exp(-30) is indistinguishable from a zero variance component.
const (
	logThetaMin = -30.0
	logThetaMax = 15.0
)

// Options holds options for a mixed model.
type Options struct {
	Confidence     float64          // confidence level of intervals (default: 0.95)
	Reference      trials.Condition // reference level of the treatment coding (default: first level)
	MaxEvaluations int              // deviance evaluations per optimizer start (default: 2000)
}

// DefaultOptions returns the default mixed model options.
func DefaultOptions() *Options {
	return &Options{
		Confidence:     0.95,
		MaxEvaluations: 2000,
	}
}

// Model is a linear mixed model for ISI_ms with a random intercept per
// participant and a random intercept per participant and condition:
//
//	ISI_ms ~ target_index + (1 | participant) + (1 | participant:target_index)
//
// The null model drops the fixed condition term and keeps the random
// structure. Both are fit by maximum likelihood.
type Model struct {
	Options    Options
	Formula    string
	WithEffect bool

	// Estimates, valid after Fit.
	Beta   []float64
	Sigma2 float64    // residual variance
	Theta  [2]float64 // participant and participant:condition variances relative to Sigma2
	LogLik float64
	AIC    float64
	AICc   float64
	BIC    float64

	fitted   bool
	levels   []trials.Condition // reference first
	terms    []string
	column   map[trials.Condition]int // design column of each non-reference level
	subjects int
	nobs     int
	groups   []*group
	covBeta  *mat.SymDense
}

// group holds the cross products of one participant's design.
type group struct {
	id  trials.ParticipantID
	q   int
	ztz *mat.SymDense
	ztx *mat.Dense
	zty *mat.VecDense
	xtx *mat.SymDense
	xty *mat.VecDense
	yty float64
}

// New creates a model with a fixed condition effect.
func New(opts *Options) *Model {
	return newModel(opts, true)
}

// NewNull creates the intercept-only model with the same random structure.
func NewNull(opts *Options) *Model {
	return newModel(opts, false)
}

func newModel(opts *Options, withEffect bool) *Model {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = 0.95
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = 2000
	}
	formula := "ISI_ms ~ 1 + (1 | participant) + (1 | participant:target_index)"
	if withEffect {
		formula = "ISI_ms ~ target_index + (1 | participant) + (1 | participant:target_index)"
	}
	return &Model{Options: o, Formula: formula, WithEffect: withEffect}
}

// Fit fits the model to clean trials by maximum likelihood.
func (m *Model) Fit(clean []trials.CleanTrial) error {
	m.fitted = false
	if err := stats.CheckDesign(stats.ParticipantMeans(clean)); err != nil {
		return err
	}
	if err := m.setLevels(trials.FactorOf(clean)); err != nil {
		return err
	}
	m.buildGroups(clean)

	best, err := m.optimize()
	if err != nil {
		return err
	}
	ev, ok := m.evaluate(best)
	if !ok {
		return errors.New("mixed model: deviance is not finite at the optimum")
	}

	m.Theta = ev.theta
	m.Beta = ev.beta
	m.Sigma2 = ev.sigma2
	m.LogLik = -ev.deviance / 2

	var inv mat.SymDense
	if err := ev.chol.InverseTo(&inv); err != nil {
		return fmt.Errorf("mixed model: fixed-effect covariance: %w", err)
	}
	inv.ScaleSym(m.Sigma2, &inv)
	m.covBeta = &inv

	m.calculateIC()
	m.fitted = true
	return nil
}

func (m *Model) setLevels(f *trials.Factor) error {
	ref := m.Options.Reference
	if ref == "" {
		ref = f.Levels[0]
	}
	if f.Index(ref) < 0 {
		return fmt.Errorf("mixed model: reference level %q not present in data", ref)
	}

	m.levels = []trials.Condition{ref}
	m.terms = []string{"(Intercept)"}
	m.column = make(map[trials.Condition]int)
	for _, l := range f.Levels {
		if l == ref {
			continue
		}
		m.levels = append(m.levels, l)
		if m.WithEffect {
			m.column[l] = len(m.terms)
			m.terms = append(m.terms, "target_index"+string(l))
		}
	}
	return nil
}

// buildGroups computes the per-participant cross products Z'Z, Z'X, Z'y,
// X'X, X'y and y'y. Z has a participant column followed by one indicator
// column per condition the participant was observed in.
func (m *Model) buildGroups(clean []trials.CleanTrial) {
	byParticipant := make(map[trials.ParticipantID][]trials.CleanTrial)
	for _, t := range clean {
		byParticipant[t.Participant] = append(byParticipant[t.Participant], t)
	}
	ids := trials.Participants(clean)
	p := len(m.terms)

	m.groups = m.groups[:0]
	m.nobs = len(clean)
	m.subjects = len(ids)
	for _, id := range ids {
		rows := byParticipant[id]
		own := trials.FactorOf(rows)
		q := 1 + own.Len()
		n := len(rows)

		z := mat.NewDense(n, q, nil)
		x := mat.NewDense(n, p, nil)
		y := mat.NewVecDense(n, nil)
		for r, t := range rows {
			z.Set(r, 0, 1)
			z.Set(r, 1+own.Index(t.Target), 1)
			x.Set(r, 0, 1)
			if c, ok := m.column[t.Target]; ok {
				x.Set(r, c, 1)
			}
			y.SetVec(r, t.ISIms)
		}

		g := &group{id: id, q: q}
		g.ztz = mat.NewSymDense(q, nil)
		g.ztz.SymOuterK(1, z.T())
		g.ztx = mat.NewDense(q, p, nil)
		g.ztx.Mul(z.T(), x)
		g.zty = mat.NewVecDense(q, nil)
		g.zty.MulVec(z.T(), y)
		g.xtx = mat.NewSymDense(p, nil)
		g.xtx.SymOuterK(1, x.T())
		g.xty = mat.NewVecDense(p, nil)
		g.xty.MulVec(x.T(), y)
		g.yty = mat.Dot(y, y)
		m.groups = append(m.groups, g)
	}
}

// evaluation is the profiled fit at one value of theta.
type evaluation struct {
	theta    [2]float64
	beta     []float64
	sigma2   float64
	deviance float64
	chol     *mat.Cholesky // of X'V⁻¹X, V scaled by 1/sigma2
}

// evaluate profiles beta and sigma2 out of the likelihood at theta.
//
// With Λ the diagonal of square-rooted variance ratios, each participant's
// scaled covariance is V = I + ZΛΛZ'. Using M = I + ΛZ'ZΛ,
// V⁻¹ = I - ZΛM⁻¹ΛZ' and log|V| = log|M|, so only q×q systems are solved.
func (m *Model) evaluate(logTheta []float64) (*evaluation, bool) {
	theta := [2]float64{
		math.Exp(clamp(logTheta[0], logThetaMin, logThetaMax)),
		math.Exp(clamp(logTheta[1], logThetaMin, logThetaMax)),
	}
	l1, l2 := math.Sqrt(theta[0]), math.Sqrt(theta[1])
	p := len(m.terms)

	a := mat.NewDense(p, p, nil)
	b := mat.NewVecDense(p, nil)
	c := 0.0
	logDet := 0.0

	for _, g := range m.groups {
		lambda := make([]float64, g.q)
		lambda[0] = l1
		for i := 1; i < g.q; i++ {
			lambda[i] = l2
		}

		mm := mat.NewSymDense(g.q, nil)
		for i := 0; i < g.q; i++ {
			for j := i; j < g.q; j++ {
				v := lambda[i] * g.ztz.At(i, j) * lambda[j]
				if i == j {
					v++
				}
				mm.SetSym(i, j, v)
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(mm); !ok {
			return nil, false
		}
		logDet += chol.LogDet()

		lzx := mat.DenseCopyOf(g.ztx)
		lzy := mat.VecDenseCopyOf(g.zty)
		for i := 0; i < g.q; i++ {
			row := lzx.RawRowView(i)
			for j := range row {
				row[j] *= lambda[i]
			}
			lzy.SetVec(i, lzy.AtVec(i)*lambda[i])
		}

		var w mat.Dense
		if err := chol.SolveTo(&w, lzx); err != nil {
			return nil, false
		}
		var wy mat.VecDense
		if err := chol.SolveVecTo(&wy, lzy); err != nil {
			return nil, false
		}

		var corr mat.Dense
		corr.Mul(lzx.T(), &w)
		var xtvx mat.Dense
		xtvx.Sub(g.xtx, &corr)
		a.Add(a, &xtvx)

		var corrY mat.VecDense
		corrY.MulVec(lzx.T(), &wy)
		var xtvy mat.VecDense
		xtvy.SubVec(g.xty, &corrY)
		b.AddVec(b, &xtvy)

		c += g.yty - mat.Dot(lzy, &wy)
	}

	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			sym.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, false
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, b); err != nil {
		return nil, false
	}

	rss := c - mat.Dot(b, &beta)
	n := float64(m.nobs)
	if rss <= 0 || math.IsNaN(rss) {
		return nil, false
	}
	sigma2 := rss / n

	return &evaluation{
		theta:    theta,
		beta:     mat.Col(nil, 0, &beta),
		sigma2:   sigma2,
		deviance: n*math.Log(2*math.Pi*sigma2) + n + logDet,
		chol:     &chol,
	}, true
}

// optimize minimizes the profiled deviance over log theta with Nelder-Mead
// from several starting points and returns the best location.
func (m *Model) optimize() ([]float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			ev, ok := m.evaluate(x)
			if !ok {
				return math.Inf(1)
			}
			return ev.deviance
		},
	}
	settings := &optimize.Settings{FuncEvaluations: m.Options.MaxEvaluations}

	starts := [][]float64{{0, 0}, {-2, -2}, {1, -4}}
	var best []float64
	bestF := math.Inf(1)
	var lastErr error
	for _, x0 := range starts {
		res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if res == nil {
			lastErr = err
			continue
		}
		if res.F < bestF {
			bestF = res.F
			best = []float64{
				clamp(res.X[0], logThetaMin, logThetaMax),
				clamp(res.X[1], logThetaMin, logThetaMax),
			}
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("no finite deviance")
		}
		return nil, fmt.Errorf("mixed model: optimization failed: %w", lastErr)
	}
	return best, nil
}

// calculateIC calculates AIC, AICc, and BIC.
func (m *Model) calculateIC() {
	ic := stats.CalculateIC(m.LogLik, m.nobs, m.NumParams())
	m.AIC = ic.AIC
	m.AICc = ic.AICc
	m.BIC = ic.BIC
}

// NumParams returns the number of estimated parameters: the fixed effects,
// two variance components and the residual variance.
func (m *Model) NumParams() int {
	return len(m.terms) + 3
}

// Coefficient is one fixed effect.
type Coefficient struct {
	Term     string
	Estimate float64
	SE       float64
	T        float64
}

// VarianceComponent is one random effect or the residual.
type VarianceComponent struct {
	Group    string
	Variance float64
	SD       float64
}

// Summary describes a fitted mixed model.
type Summary struct {
	Formula      string
	Levels       []trials.Condition // reference first
	Coefficients []Coefficient
	Components   []VarianceComponent
	LogLik       float64
	AIC          float64
	AICc         float64
	BIC          float64
	NObs         int
	NGroups      int
	NParams      int
}

// Summary returns a summary of the fitted model, or nil when not fitted.
func (m *Model) Summary() *Summary {
	if !m.fitted {
		return nil
	}

	coefs := make([]Coefficient, len(m.terms))
	for i, term := range m.terms {
		se := math.Sqrt(m.covBeta.At(i, i))
		coefs[i] = Coefficient{Term: term, Estimate: m.Beta[i], SE: se, T: m.Beta[i] / se}
	}

	components := []VarianceComponent{
		{Group: "participant:target_index", Variance: m.Sigma2 * m.Theta[1]},
		{Group: "participant", Variance: m.Sigma2 * m.Theta[0]},
		{Group: "Residual", Variance: m.Sigma2},
	}
	for i := range components {
		components[i].SD = math.Sqrt(components[i].Variance)
	}

	return &Summary{
		Formula:      m.Formula,
		Levels:       append([]trials.Condition(nil), m.levels...),
		Coefficients: coefs,
		Components:   components,
		LogLik:       m.LogLik,
		AIC:          m.AIC,
		AICc:         m.AICc,
		BIC:          m.BIC,
		NObs:         m.nobs,
		NGroups:      m.subjects,
		NParams:      m.NumParams(),
	}
}

// Levels returns the factor levels in natural order.
func (m *Model) Levels() []trials.Condition {
	levels := append([]trials.Condition(nil), m.levels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Less(levels[j]) })
	return levels
}

// CovBeta returns the covariance matrix of the fixed effects.
func (m *Model) CovBeta() (*mat.SymDense, error) {
	if !m.fitted {
		return nil, errors.New("model must be fitted first")
	}
	cov := mat.NewSymDense(m.covBeta.SymmetricDim(), nil)
	cov.CopySym(m.covBeta)
	return cov, nil
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
