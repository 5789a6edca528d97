// Package validate runs the judge over a labeled subset of reviews and
// scores its ratings against the human labels.
package validate

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/table"
)

// DefaultLimit is the number of labeled rows validated when no limit is set.
const DefaultLimit = 10

// Options controls a validation run.
type Options struct {
	Limit           int
	RelevanceColumn string
	QualityColumn   string
	Workers         int
}

func (o Options) withDefaults() Options {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.RelevanceColumn == "" {
		o.RelevanceColumn = score.Relevance
	}
	if o.QualityColumn == "" {
		o.QualityColumn = score.Quality
	}
	return o
}

// Result holds the validated rows, their judge results and the agreement
// report.
type Result struct {
	Rows    []records.Row
	Results []classify.Result
	Report  score.Report
}

// GroundTruth is a loaded labeled table.
type GroundTruth struct {
	Rows   []records.Row
	Header []string
}

// LoadGroundTruth reads a labeled CSV table. It fails with
// table.ErrMissingColumns unless the text and both label columns exist.
func LoadGroundTruth(path string, opts Options, drop []string) (*GroundTruth, error) {
	opts = opts.withDefaults()
	rows, header, err := table.ReadFile(path, drop)
	if err != nil {
		return nil, err
	}
	if err := table.RequireColumns(header, "text", opts.RelevanceColumn, opts.QualityColumn); err != nil {
		return nil, eris.Wrapf(err, "ground truth %s", path)
	}
	return &GroundTruth{Rows: rows, Header: header}, nil
}

// Validate classifies the first opts.Limit labeled rows (all rows when
// Limit is negative) and scores relevance and quality against the labels.
// Rows the judge failed on are scored with an empty prediction, which
// always counts as a miss.
func Validate(ctx context.Context, c *classify.Classifier, gt *GroundTruth, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := table.RequireColumns(gt.Header, "text", opts.RelevanceColumn, opts.QualityColumn); err != nil {
		return nil, err
	}

	rows := gt.Rows
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	results, err := classify.Run(ctx, c, rows, classify.Options{Workers: opts.Workers})
	if err != nil {
		return nil, err
	}

	report, err := Agreement(rows, results, opts.RelevanceColumn, opts.QualityColumn)
	if err != nil {
		return nil, err
	}

	for _, dim := range []string{score.Relevance, score.Quality} {
		d := report[dim]
		zap.L().Info("Validation scored",
			zap.String("dimension", dim),
			zap.Float64("accuracy", d.Accuracy),
			zap.Float64("macro_f1", d.MacroF1),
			zap.Int("support", d.Support),
			zap.Int("unscored", d.Unscored))
	}
	return &Result{Rows: rows, Results: results, Report: report}, nil
}

// Agreement scores results against the label columns of rows. Results are
// matched to rows by review id.
func Agreement(rows []records.Row, results []classify.Result, relevanceCol, qualityCol string) (score.Report, error) {
	joined := table.Join(rows, results)

	var truthRel, truthQual, predRel, predQual []string
	for i, row := range rows {
		rel, _ := row.Get(relevanceCol)
		qual, _ := row.Get(qualityCol)
		truthRel = append(truthRel, rel)
		truthQual = append(truthQual, qual)

		var pr, pq string
		if o := joined[i].Outcome; o.OK() {
			pr, pq = o.Decision.Relevance, o.Decision.Quality
		}
		predRel = append(predRel, pr)
		predQual = append(predQual, pq)
	}

	rel, err := score.Score(truthRel, predRel)
	if err != nil {
		return nil, eris.Wrap(err, "scoring relevance")
	}
	qual, err := score.Score(truthQual, predQual)
	if err != nil {
		return nil, eris.Wrap(err, "scoring quality")
	}
	return score.Report{score.Relevance: rel, score.Quality: qual}, nil
}

// WriteMetrics writes report as indented JSON.
func WriteMetrics(w io.Writer, report score.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(report), "encoding metrics")
}
