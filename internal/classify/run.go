package classify

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

// ErrDuplicateID is returned when two input rows share a review id, since
// results are attached by id.
var ErrDuplicateID = eris.New("duplicate review id")

// Options controls a classification run.
type Options struct {
	// Workers is the number of judge calls in flight. Values <= 1 run the
	// rows sequentially.
	Workers int
	// Progress, when set, is called after each row with the number of rows
	// finished so far. Calls are serialized.
	Progress func(done, total int)
}

// Summary counts the outcomes of a run.
type Summary struct {
	Processed         int
	OK                int
	Flagged           int
	TransportFailures int
	DecodeFailures    int
	Drift             int
	Cached            int
}

func (s *Summary) add(r Result) {
	s.Processed++
	if r.Cached {
		s.Cached++
	}
	switch r.Outcome.Kind {
	case verdict.KindTransportFailure:
		s.TransportFailures++
		return
	case verdict.KindDecodeFailure:
		s.DecodeFailures++
		return
	}
	s.OK++
	if len(r.Outcome.Drift) > 0 {
		s.Drift++
	}
	if r.Outcome.Decision != nil && r.Outcome.Decision.Flagged() {
		s.Flagged++
	}
}

// Summarize counts results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.add(r)
	}
	return s
}

// Run classifies every row and returns one Result per row in input order.
// Row failures never stop the run. When ctx is cancelled no new rows are
// started and the remaining rows are reported as transport failures.
func Run(ctx context.Context, c *Classifier, rows []records.Row, opts Options) ([]Result, error) {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if seen[r.ID] {
			return nil, eris.Wrapf(ErrDuplicateID, "review %q", r.ID)
		}
		seen[r.ID] = true
	}

	var (
		mu   sync.Mutex
		byID = make(map[string]Result, len(rows))
		done int
	)
	record := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		byID[r.RowID] = r
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(rows))
		}
	}

	if opts.Workers <= 1 {
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				record(cancelled(row, err))
				continue
			}
			record(c.Classify(ctx, row))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, row := range rows {
			if err := gctx.Err(); err != nil {
				record(cancelled(row, err))
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					record(cancelled(row, err))
					return nil
				}
				record(c.Classify(gctx, row))
				return nil
			})
		}
		_ = g.Wait()
	}

	results := make([]Result, len(rows))
	for i, row := range rows {
		results[i] = byID[row.ID]
	}

	s := Summarize(results)
	zap.L().Info("Classification complete",
		zap.Int("processed", s.Processed),
		zap.Int("ok", s.OK),
		zap.Int("flagged", s.Flagged),
		zap.Int("transport_failures", s.TransportFailures),
		zap.Int("decode_failures", s.DecodeFailures),
		zap.Int("drift", s.Drift),
		zap.Int("cached", s.Cached))
	return results, nil
}
