// Package table reads and writes row-aligned review tables: the cleaned
// review table and the same table extended with one "res: " column per
// classification field.
package table

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

// ErrMissingColumns is returned when an input table lacks a required column.
var ErrMissingColumns = eris.New("missing required columns")

// Prefix marks result columns.
const Prefix = "res: "

// Result column names, in output order.
const (
	ColAdvertisement     = Prefix + "Advertisement"
	ColIrrelevant        = Prefix + "Irrelevant"
	ColFalseReview       = Prefix + "False Review"
	ColVulgarity         = Prefix + "Vulgarity"
	ColRelevance         = Prefix + "Relevance Score"
	ColQuality           = Prefix + "Quality Score"
	ColJustification     = Prefix + "Justification"
	ColRelevancePoints   = Prefix + "Relevance Points"
	ColQualityPoints     = Prefix + "Quality Points"
	ColVisitedLikelihood = Prefix + "Visited Likelihood"
	ColSignals           = Prefix + "Signals"
	ColError             = Prefix + "error"
	ColErrorKind         = Prefix + "error kind"
	ColRaw               = Prefix + "raw"
)

// ResultColumns lists every result column.
var ResultColumns = []string{
	ColAdvertisement, ColIrrelevant, ColFalseReview, ColVulgarity,
	ColRelevance, ColQuality, ColJustification,
	ColRelevancePoints, ColQualityPoints, ColVisitedLikelihood,
	ColSignals, ColError, ColErrorKind, ColRaw,
}

// RequireColumns fails with ErrMissingColumns when header lacks any of cols.
func RequireColumns(header []string, cols ...string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range cols {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingColumns, "%q", missing)
	}
	return nil
}

// ResultCells renders r under ResultColumns. Failed rows leave the flag and
// rating cells empty and carry the failure kind, message and raw reply.
// Successful rows never carry the raw reply.
func ResultCells(r classify.Result) []string {
	cells := make([]string, len(ResultColumns))
	set := func(col, v string) {
		for i, c := range ResultColumns {
			if c == col {
				cells[i] = v
				return
			}
		}
	}

	set(ColSignals, r.Signals.String())
	o := r.Outcome
	if !o.OK() {
		kind := o.Kind
		if kind == verdict.KindOK {
			kind = verdict.KindDecodeFailure
		}
		set(ColError, o.Err)
		set(ColErrorKind, string(kind))
		set(ColRaw, o.Raw)
		return cells
	}

	d := o.Decision
	set(ColAdvertisement, strconv.FormatBool(d.Advertisement))
	set(ColIrrelevant, strconv.FormatBool(d.Irrelevant))
	set(ColFalseReview, strconv.FormatBool(d.FalseReview))
	set(ColVulgarity, strconv.FormatBool(d.Vulgarity))
	set(ColRelevance, d.Relevance)
	set(ColQuality, d.Quality)
	set(ColJustification, d.Justification)
	set(ColRelevancePoints, formatScore(d.RelevanceScore))
	set(ColQualityPoints, formatScore(d.QualityScore))
	set(ColVisitedLikelihood, formatScore(d.VisitedLikelihood))
	return cells
}

func formatScore(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// Join pairs every row with its result by review id, in row order. A row
// without a result is reported as a transport failure so every row still
// yields one output record.
func Join(rows []records.Row, results []classify.Result) []classify.Result {
	byID := make(map[string]classify.Result, len(results))
	for _, r := range results {
		byID[r.RowID] = r
	}
	out := make([]classify.Result, len(rows))
	for i, row := range rows {
		r, ok := byID[row.ID]
		if !ok {
			r = classify.Result{
				RowID:   row.ID,
				Index:   row.Index,
				Outcome: verdict.TransportFailure(eris.New("row was not classified")),
			}
		}
		out[i] = r
	}
	return out
}
