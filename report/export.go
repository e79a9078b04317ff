package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sartorproj/attnshift/analysis"
	"github.com/sartorproj/attnshift/stats"
	"github.com/sartorproj/attnshift/trials"
)

// Number is a float64 that encodes NaN and infinities as JSON null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// Document is the JSON export of an analysis result.
type Document struct {
	Source     string         `json:"source,omitempty"`
	Cleaning   *CleaningDoc   `json:"cleaning,omitempty"`
	Means      []MeanDoc      `json:"participantMeans"`
	Missing    []CellDoc      `json:"emptyGroups"`
	Excluded   []string       `json:"excludedParticipants"`
	Converged  bool           `json:"screeningConverged"`
	Screening  []SummaryDoc   `json:"screeningSummaries"`
	Summaries  []SummaryDoc   `json:"conditionSummaries"`
	ANOVA      *ANOVADoc      `json:"anova,omitempty"`
	Mixed      *MixedDoc      `json:"mixedModel,omitempty"`
	EMMs       []EMMDoc       `json:"emmeans,omitempty"`
	Contrasts  []ContrastDoc  `json:"contrasts,omitempty"`
	Comparison *ComparisonDoc `json:"modelComparison,omitempty"`
}

// CleaningDoc counts the trials kept and dropped by cleaning.
type CleaningDoc struct {
	Input            int `json:"input"`
	Kept             int `json:"kept"`
	DroppedReversals int `json:"droppedReversals"`
	DroppedCatch     int `json:"droppedCatch"`
	DroppedIncorrect int `json:"droppedIncorrect"`
}

// MeanDoc is one participant mean.
type MeanDoc struct {
	Participant string `json:"participant"`
	Condition   string `json:"targetIndex"`
	Trials      int    `json:"trials"`
	MeanISI     Number `json:"meanIsiMs"`
	Outlier     bool   `json:"outlier"`
}

// CellDoc is one empty (participant, condition) pairing.
type CellDoc struct {
	Participant string `json:"participant"`
	Condition   string `json:"targetIndex"`
}

// SummaryDoc is one condition summary.
type SummaryDoc struct {
	Condition string `json:"targetIndex"`
	N         int    `json:"n"`
	Mean      Number `json:"mean"`
	SD        Number `json:"sd"`
	SE        Number `json:"se"`
	NaiveSE   Number `json:"naiveSe"`
	CI        Number `json:"ci"`
	Lower     Number `json:"lower3sd"`
	Upper     Number `json:"upper3sd"`
}

// ANOVADoc is the ANOVA table.
type ANOVADoc struct {
	Effect       string   `json:"effect"`
	Participants int      `json:"participants"`
	Dropped      []string `json:"dropped,omitempty"`
	DFEffect     Number   `json:"dfNum"`
	DFError      Number   `json:"dfDen"`
	SSEffect     Number   `json:"ssEffect"`
	SSError      Number   `json:"ssError"`
	F            Number   `json:"f"`
	P            Number   `json:"p"`
	PartialEta2  Number   `json:"partialEta2"`
	GenEta2      Number   `json:"ges"`
	GGEpsilon    Number   `json:"ggEpsilon"`
	PGG          Number   `json:"pGG"`
}

// CoefficientDoc is one fixed effect.
type CoefficientDoc struct {
	Term     string `json:"term"`
	Estimate Number `json:"estimate"`
	SE       Number `json:"se"`
	T        Number `json:"t"`
}

// ComponentDoc is one variance component.
type ComponentDoc struct {
	Group    string `json:"group"`
	Variance Number `json:"variance"`
	SD       Number `json:"sd"`
}

// MixedDoc is the mixed model fit.
type MixedDoc struct {
	Formula      string           `json:"formula"`
	Coefficients []CoefficientDoc `json:"fixedEffects"`
	Components   []ComponentDoc   `json:"randomEffects"`
	LogLik       Number           `json:"logLik"`
	AIC          Number           `json:"aic"`
	AICc         Number           `json:"aicc"`
	BIC          Number           `json:"bic"`
	NObs         int              `json:"nObs"`
	NGroups      int              `json:"nGroups"`
}

// EMMDoc is one estimated marginal mean.
type EMMDoc struct {
	Condition string `json:"targetIndex"`
	Estimate  Number `json:"emmean"`
	SE        Number `json:"se"`
	DF        Number `json:"df"`
	Lower     Number `json:"lower"`
	Upper     Number `json:"upper"`
}

// ContrastDoc is one Tukey-adjusted contrast.
type ContrastDoc struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Estimate Number `json:"estimate"`
	SE       Number `json:"se"`
	DF       Number `json:"df"`
	T        Number `json:"t"`
	P        Number `json:"pTukey"`
	Lower    Number `json:"lower"`
	Upper    Number `json:"upper"`
}

// ComparisonDoc is the likelihood-ratio test.
type ComparisonDoc struct {
	Null Number `json:"nullLogLik"`
	Full Number `json:"fullLogLik"`
	Chi2 Number `json:"chi2"`
	DF   int    `json:"df"`
	P    Number `json:"p"`
}

// NewDocument converts a result into its JSON document.
func NewDocument(res *analysis.Result) *Document {
	doc := &Document{Source: res.Source}

	if r := res.CleanReport; r != nil {
		doc.Cleaning = &CleaningDoc{
			Input:            r.Input,
			Kept:             r.Kept,
			DroppedReversals: r.DroppedReverse,
			DroppedCatch:     r.DroppedCatch,
			DroppedIncorrect: r.DroppedWrong,
		}
	}

	flagged := make(map[[2]string]bool)
	if res.Screening != nil && len(res.Screening.Passes) > 0 {
		for _, f := range res.Screening.Passes[0].Flags {
			if f.Outlier {
				flagged[[2]string{string(f.Participant), string(f.Condition)}] = true
			}
		}
	}
	doc.Means = make([]MeanDoc, 0, len(res.Means))
	for _, m := range res.Means {
		doc.Means = append(doc.Means, MeanDoc{
			Participant: string(m.Participant),
			Condition:   string(m.Condition),
			Trials:      m.N,
			MeanISI:     Number(m.MeanISI),
			Outlier:     flagged[[2]string{string(m.Participant), string(m.Condition)}],
		})
	}
	doc.Missing = make([]CellDoc, 0, len(res.Missing))
	for _, c := range res.Missing {
		doc.Missing = append(doc.Missing, CellDoc{Participant: string(c.Participant), Condition: string(c.Condition)})
	}

	doc.Excluded = []string{}
	if s := res.Screening; s != nil {
		doc.Excluded = idStrings(s.Excluded)
		doc.Converged = s.Converged
		doc.Screening = summaryDocs(s.ScreeningSummaries())
		doc.Summaries = summaryDocs(s.Summaries)
	}

	if a := res.ANOVA; a != nil {
		doc.ANOVA = &ANOVADoc{
			Effect:       a.Effect,
			Participants: a.Participants,
			Dropped:      idStrings(a.Dropped),
			DFEffect:     Number(a.DFEffect),
			DFError:      Number(a.DFError),
			SSEffect:     Number(a.SSEffect),
			SSError:      Number(a.SSError),
			F:            Number(a.F),
			P:            Number(a.P),
			PartialEta2:  Number(a.PartialEta2),
			GenEta2:      Number(a.GenEta2),
			GGEpsilon:    Number(a.GGEpsilon),
			PGG:          Number(a.PGG),
		}
	}

	if m := res.Mixed; m != nil {
		md := &MixedDoc{
			Formula: m.Formula,
			LogLik:  Number(m.LogLik),
			AIC:     Number(m.AIC),
			AICc:    Number(m.AICc),
			BIC:     Number(m.BIC),
			NObs:    m.NObs,
			NGroups: m.NGroups,
		}
		for _, c := range m.Coefficients {
			md.Coefficients = append(md.Coefficients, CoefficientDoc{
				Term: c.Term, Estimate: Number(c.Estimate), SE: Number(c.SE), T: Number(c.T),
			})
		}
		for _, vc := range m.Components {
			md.Components = append(md.Components, ComponentDoc{
				Group: vc.Group, Variance: Number(vc.Variance), SD: Number(vc.SD),
			})
		}
		doc.Mixed = md
	}

	for _, e := range res.EMMs {
		doc.EMMs = append(doc.EMMs, EMMDoc{
			Condition: string(e.Condition),
			Estimate:  Number(e.Estimate),
			SE:        Number(e.SE),
			DF:        Number(e.DF),
			Lower:     Number(e.Lower),
			Upper:     Number(e.Upper),
		})
	}
	for _, c := range res.Contrasts {
		doc.Contrasts = append(doc.Contrasts, ContrastDoc{
			A:        string(c.A),
			B:        string(c.B),
			Estimate: Number(c.Estimate),
			SE:       Number(c.SE),
			DF:       Number(c.DF),
			T:        Number(c.T),
			P:        Number(c.P),
			Lower:    Number(c.Lower),
			Upper:    Number(c.Upper),
		})
	}
	if c := res.Comparison; c != nil {
		doc.Comparison = &ComparisonDoc{
			Null: Number(c.NullLogLik),
			Full: Number(c.FullLogLik),
			Chi2: Number(c.Chi2),
			DF:   c.DF,
			P:    Number(c.P),
		}
	}
	return doc
}

func summaryDocs(summaries []stats.ConditionSummary) []SummaryDoc {
	docs := make([]SummaryDoc, 0, len(summaries))
	for _, cs := range summaries {
		docs = append(docs, SummaryDoc{
			Condition: string(cs.Condition),
			N:         cs.N,
			Mean:      Number(cs.Mean),
			SD:        Number(cs.SD),
			SE:        Number(cs.SE),
			NaiveSE:   Number(cs.NaiveSE),
			CI:        Number(cs.CI),
			Lower:     Number(cs.Bounds.Min),
			Upper:     Number(cs.Bounds.Max),
		})
	}
	return docs
}

func idStrings(ids []trials.ParticipantID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// WriteJSON writes the pretty-printed JSON document of res.
func WriteJSON(w io.Writer, res *analysis.Result) error {
	data, err := json.MarshalIndent(NewDocument(res), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteCSV writes one table as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

// SaveCSV writes every table to dir as <name>.csv, plus the clean trials
// of the retained participants as clean_trials.csv. It returns the paths
// written.
func SaveCSV(dir string, res *analysis.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	var paths []string
	for _, t := range Tables(res) {
		path := filepath.Join(dir, t.Name+".csv")
		if err := saveTable(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if res.Screening != nil {
		path := filepath.Join(dir, "clean_trials.csv")
		if err := trials.SaveCSV(res.Screening.Trials, path); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func saveTable(path string, t Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(file, t); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
