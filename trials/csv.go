package trials

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrDataFormat is wrapped by every DataFormatError.
var ErrDataFormat = errors.New("data format error")

// DataFormatError reports a missing column or an unparseable cell.
type DataFormatError struct {
	Line   int    // 1-based line in the source, 0 for header problems
	Column string // column name
	Value  string // offending cell, empty for missing columns
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("line %d, column %q: %s (value %q)", e.Line, e.Column, e.Reason, e.Value)
}

// Unwrap lets errors.Is match ErrDataFormat.
func (e *DataFormatError) Unwrap() error {
	return ErrDataFormat
}

// CSVOptions holds options for CSV loading.
type CSVOptions struct {
	ParticipantColumn string // default: "participant"
	TrialColumn       string // default: "trial"
	ISIColumn         string // default: "ISI_adjusted"
	TargetColumn      string // default: "target_index"
	CorrectColumn     string // default: "correct"
	ReversalsColumn   string // default: "n_reversals"
	Delimiter         rune   // Field delimiter (default: ',')
	SkipRows          int    // Number of rows to skip before the header
}

// DefaultCSVOptions returns default options for CSV loading.
func DefaultCSVOptions() *CSVOptions {
	return &CSVOptions{
		ParticipantColumn: "participant",
		TrialColumn:       "trial",
		ISIColumn:         "ISI_adjusted",
		TargetColumn:      "target_index",
		CorrectColumn:     "correct",
		ReversalsColumn:   "n_reversals",
		Delimiter:         ',',
	}
}

// LoadCSV loads trials from a CSV file.
func LoadCSV(filename string, opts *CSVOptions) ([]Trial, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadCSVFromReader(file, opts)
}

type columnIndex struct {
	participant, trial, isi, target, correct, reversals int
}

// LoadCSVFromReader loads trials from an io.Reader.
func LoadCSVFromReader(r io.Reader, opts *CSVOptions) ([]Trial, error) {
	if opts == nil {
		opts = DefaultCSVOptions()
	}
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, err
		}
	}

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &DataFormatError{Column: opts.ParticipantColumn, Reason: "empty input, no header row"}
		}
		return nil, err
	}

	idx, err := resolveColumns(header, opts)
	if err != nil {
		return nil, err
	}

	var trials []Trial
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)

		t, skip, err := parseRecord(record, idx, opts, line)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		trials = append(trials, t)
	}

	return trials, nil
}

func resolveColumns(header []string, opts *CSVOptions) (*columnIndex, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.Trim(h, "\""))
	}
	// Some exporters prepend a UTF-8 byte order mark to the first header.
	if len(names) > 0 {
		names[0] = strings.TrimPrefix(names[0], "\ufeff")
	}

	find := func(want string) (int, error) {
		for i, n := range names {
			if n == want {
				return i, nil
			}
		}
		for i, n := range names {
			if strings.EqualFold(n, want) {
				return i, nil
			}
		}
		return -1, &DataFormatError{Column: want, Reason: "missing required column"}
	}

	var idx columnIndex
	var err error
	if idx.participant, err = find(opts.ParticipantColumn); err != nil {
		return nil, err
	}
	if idx.trial, err = find(opts.TrialColumn); err != nil {
		return nil, err
	}
	if idx.isi, err = find(opts.ISIColumn); err != nil {
		return nil, err
	}
	if idx.target, err = find(opts.TargetColumn); err != nil {
		return nil, err
	}
	if idx.correct, err = find(opts.CorrectColumn); err != nil {
		return nil, err
	}
	if idx.reversals, err = find(opts.ReversalsColumn); err != nil {
		return nil, err
	}
	return &idx, nil
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(record[i], "\""))
}

// parseRecord converts one row. Rows whose required fields are all blank are skipped.
func parseRecord(record []string, idx *columnIndex, opts *CSVOptions, line int) (Trial, bool, error) {
	fields := []int{idx.participant, idx.trial, idx.isi, idx.target, idx.correct, idx.reversals}
	blank := true
	for _, i := range fields {
		if cell(record, i) != "" {
			blank = false
			break
		}
	}
	if blank {
		return Trial{}, true, nil
	}

	bad := func(column, value, reason string) error {
		return &DataFormatError{Line: line, Column: column, Value: value, Reason: reason}
	}

	participant := cell(record, idx.participant)
	if participant == "" {
		return Trial{}, false, bad(opts.ParticipantColumn, participant, "empty participant id")
	}

	trialStr := cell(record, idx.trial)
	trialNum, err := parseInt(trialStr)
	if err != nil {
		return Trial{}, false, bad(opts.TrialColumn, trialStr, "not an integer")
	}

	isiStr := cell(record, idx.isi)
	isi, err := strconv.ParseFloat(isiStr, 64)
	if err != nil || math.IsNaN(isi) || math.IsInf(isi, 0) {
		return Trial{}, false, bad(opts.ISIColumn, isiStr, "not a number")
	}

	targetStr := cell(record, idx.target)
	target, err := parseInt(targetStr)
	if err != nil {
		return Trial{}, false, bad(opts.TargetColumn, targetStr, "not an integer category")
	}

	correctStr := cell(record, idx.correct)
	correct, err := parseBool(correctStr)
	if err != nil {
		return Trial{}, false, bad(opts.CorrectColumn, correctStr, "not a boolean")
	}

	revStr := cell(record, idx.reversals)
	reversals, err := parseInt(revStr)
	if err != nil {
		return Trial{}, false, bad(opts.ReversalsColumn, revStr, "not an integer")
	}

	return Trial{
		Participant: ParticipantID(participant),
		TrialNumber: trialNum,
		ISIAdjusted: isi,
		Target:      Condition(strconv.Itoa(target)),
		Correct:     correct,
		Reversals:   reversals,
		Line:        line,
	}, false, nil
}

// parseInt accepts integers and integral floats such as "3.0".
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not integral", s)
	}
	return int(f), nil
}

func parseBool(s string) (bool, error) {
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

// SaveCSV writes a clean trial set, including the derived ISI_ms column.
func SaveCSV(clean []CleanTrial, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	if err := WriteCSV(writer, clean); err != nil {
		file.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteCSV writes a clean trial set as CSV to w.
func WriteCSV(w io.Writer, clean []CleanTrial) error {
	cw := csv.NewWriter(w)
	header := []string{"participant", "trial", "ISI_adjusted", "target_index", "correct", "n_reversals", "ISI_ms"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, t := range clean {
		correct := "0"
		if t.Correct {
			correct = "1"
		}
		row := []string{
			string(t.Participant),
			strconv.Itoa(t.TrialNumber),
			strconv.FormatFloat(t.ISIAdjusted, 'f', -1, 64),
			string(t.Target),
			correct,
			strconv.Itoa(t.Reversals),
			strconv.FormatFloat(t.ISIms, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
