// Package classify runs the judge over cleaned review rows, one row at a
// time or with a bounded worker pool, and attaches every outcome to its row
// by id.
package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/llm"
	"github.com/TobiSchelling/reviewguard/internal/prompt"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/signals"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

// Result is the classification of one row.
type Result struct {
	RowID   string
	Index   int
	Outcome verdict.Outcome
	Signals signals.Report
	Cached  bool
	Elapsed time.Duration
}

// Classifier turns one row into one Result. It holds no per-row state, so a
// single Classifier is shared by all workers.
type Classifier struct {
	gateway  *llm.Gateway
	template prompt.Template
}

// NewClassifier creates a classifier that builds requests from tmpl.
func NewClassifier(gateway *llm.Gateway, tmpl prompt.Template) *Classifier {
	return &Classifier{gateway: gateway, template: tmpl}
}

// Template returns the request template.
func (c *Classifier) Template() prompt.Template {
	return c.template
}

// Classify builds the request for row, calls the judge and decodes the reply.
// It never returns an error: failures are reported in Result.Outcome.
func (c *Classifier) Classify(ctx context.Context, row records.Row) Result {
	res := Result{
		RowID:   row.ID,
		Index:   row.Index,
		Signals: signals.Scan(row.Text),
	}
	log := zap.L().With(zap.String("row_id", row.ID), zap.Int("index", row.Index))

	if c.gateway == nil {
		res.Outcome = verdict.TransportFailure(llm.ErrNotConfigured)
		return res
	}

	reply := c.gateway.Call(ctx, prompt.Build(row, c.template))
	res.Cached = reply.Cached
	res.Elapsed = reply.Elapsed
	if reply.Err != nil {
		log.Warn("Judge call failed", zap.Error(reply.Err))
		res.Outcome = verdict.TransportFailure(reply.Err)
		return res
	}

	res.Outcome = verdict.Decode(reply.Text)
	switch {
	case res.Outcome.Kind == verdict.KindDecodeFailure:
		log.Warn("Judge reply could not be decoded", zap.String("reason", res.Outcome.Err))
	case len(res.Outcome.Drift) > 0:
		log.Warn("Judge reply has labels outside the vocabulary", zap.Strings("drift", res.Outcome.Drift))
	default:
		log.Debug("Classified row", zap.Strings("flags", res.Outcome.Decision.Flags()),
			zap.Bool("cached", res.Cached))
	}
	return res
}

// cancelled is the result for a row that was never sent because the run
// was cancelled first.
func cancelled(row records.Row, err error) Result {
	return Result{
		RowID:   row.ID,
		Index:   row.Index,
		Outcome: verdict.TransportFailure(err),
		Signals: signals.Scan(row.Text),
	}
}
