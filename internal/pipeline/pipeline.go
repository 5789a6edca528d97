package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/config"
	"github.com/TobiSchelling/reviewguard/internal/database"
	"github.com/TobiSchelling/reviewguard/internal/export"
	"github.com/TobiSchelling/reviewguard/internal/ingest"
	"github.com/TobiSchelling/reviewguard/internal/llm"
	"github.com/TobiSchelling/reviewguard/internal/prompt"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/report"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/signals"
	"github.com/TobiSchelling/reviewguard/internal/table"
	"github.com/TobiSchelling/reviewguard/internal/validate"
)

// Step names a pipeline step.
type Step string

const (
	StepIngest   Step = "Ingest"
	StepAudit    Step = "Audit"
	StepClassify Step = "Classify"
	StepValidate Step = "Validate"
	StepReport   Step = "Report"
)

// AllSteps is the full pipeline in execution order.
var AllSteps = []Step{StepIngest, StepAudit, StepClassify, StepValidate, StepReport}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline run.
type Result struct {
	RunID string
	Steps []StepResult
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Options adjusts a single run.
type Options struct {
	// Input reads rows from a previously written table instead of merging the
	// raw exports.
	Input string
	// All classifies every row instead of the configured sample.
	All bool
}

// Pipeline orchestrates ingest, audit, classification, validation and the
// run report.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	exporter *export.Exporter
	gateway  *llm.Gateway
	template prompt.Template
	closers  []io.Closer
}

// New creates a new pipeline. The judge is resolved on first use.
func New(cfg *config.Config, db *database.DB, exporter *export.Exporter) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		exporter: exporter,
		template: prompt.DefaultTemplate(),
	}
}

// WithGateway sets the judge gateway explicitly.
func (p *Pipeline) WithGateway(gw *llm.Gateway) *Pipeline {
	p.gateway = gw
	return p
}

// Close releases the judge cache connection, if one was opened.
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// run is the state carried between the steps of one execution.
type run struct {
	id      string
	rows    []records.Row
	results []classify.Result
	truth   *validate.GroundTruth
}

// Run executes steps under a new run id recorded as command. Steps stop at
// the first error. A judge that cannot be resolved or a ground truth table
// without its label columns aborts before any row is read. StepReport always
// runs last.
func (p *Pipeline) Run(ctx context.Context, command string, steps []Step, opts Options) *Result {
	r := &Result{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("run_id", r.RunID), zap.String("command", command))

	if needsJudge(steps) {
		if err := p.ensureGateway(ctx); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Judge", Err: err})
			return r
		}
	}
	state := &run{id: r.RunID}
	if slices.Contains(steps, StepValidate) {
		gt, err := p.loadGroundTruth()
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Ground truth", Err: err})
			return r
		}
		state.truth = gt
	}

	rec := database.Run{ID: r.RunID, Command: command}
	if p.gateway != nil {
		provider, model, version := p.gateway.Provider().Name(), p.gateway.Provider().Model(), p.template.Version
		rec.Provider, rec.Model, rec.TemplateVersion = &provider, &model, &version
	}
	if err := p.db.InsertRun(rec); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Start", Err: err})
		return r
	}

	compose := false
	for i, step := range steps {
		if step == StepReport {
			compose = true
			continue
		}
		log.Info(fmt.Sprintf("Step %d/%d: %s", i+1, len(steps), strings.ToLower(string(step))))
		res := p.runStep(ctx, state, step, opts)
		r.Steps = append(r.Steps, res)
		if res.Err != nil {
			log.Error("Step failed", zap.String("step", res.Name), zap.Error(res.Err))
			break
		}
	}

	rowCount := len(state.results)
	if rowCount == 0 {
		rowCount = len(state.rows)
	}
	if err := p.db.FinishRun(r.RunID, rowCount, r.Err()); err != nil {
		log.Warn("Could not finish run record", zap.Error(err))
	}

	// Composed after FinishRun so failed runs get a report with their status.
	if compose {
		log.Info("Composing report")
		r.Steps = append(r.Steps, p.runReport(ctx, state))
	}
	return r
}

func (p *Pipeline) runStep(ctx context.Context, state *run, step Step, opts Options) StepResult {
	switch step {
	case StepIngest:
		return p.runIngest(ctx, state, opts)
	case StepAudit:
		return p.runAudit(state)
	case StepClassify:
		return p.runClassify(ctx, state, opts)
	case StepValidate:
		return p.runValidate(ctx, state)
	}
	return StepResult{Name: string(step), Err: eris.Errorf("unknown step %q", step)}
}

func needsJudge(steps []Step) bool {
	for _, s := range steps {
		if s == StepClassify || s == StepValidate {
			return true
		}
	}
	return false
}

// ensureGateway resolves the configured provider and, when a Redis URL is
// set, attaches the reply cache. An unreachable cache is logged and skipped.
func (p *Pipeline) ensureGateway(ctx context.Context) error {
	if p.gateway != nil {
		return nil
	}
	provider, err := llm.CreateProvider(ctx, p.cfg.Judge)
	if err != nil {
		return err
	}
	gw := llm.NewGateway(provider, p.cfg.JudgeTimeout())

	if url := p.cfg.Cache.RedisURL; url != "" {
		cache, err := llm.OpenRedisCache(ctx, url, p.cfg.CacheTTL())
		if err != nil {
			zap.L().Warn("Judge cache unavailable, continuing without it", zap.Error(err))
		} else {
			p.closers = append(p.closers, cache)
			gw = gw.WithCache(cache, p.template.Version)
		}
	}
	p.gateway = gw
	return nil
}

// DryRun shows what would be done without calling the judge or writing
// anything.
func (p *Pipeline) DryRun(steps []Step, opts Options) *Result {
	r := &Result{RunID: "(dry-run)"}
	judge := p.cfg.Judge.Provider
	if p.gateway != nil {
		judge = p.gateway.Provider().Name() + " / " + p.gateway.Provider().Model()
	}

	for _, step := range steps {
		var summary string
		switch step {
		case StepIngest:
			if opts.Input != "" {
				summary = fmt.Sprintf("[dry-run] Would read rows from %s", opts.Input)
			} else {
				summary = fmt.Sprintf("[dry-run] Would merge %s with %s (%d feeds)",
					p.cfg.Input.Reviews, p.cfg.Input.Metadata, len(p.cfg.Input.Feeds))
			}
		case StepAudit:
			summary = "[dry-run] Would scan every row for audit signals"
		case StepClassify:
			if opts.All {
				summary = fmt.Sprintf("[dry-run] Would classify all rows with %s (%d workers)", judge, p.cfg.Classify.Workers)
			} else {
				summary = fmt.Sprintf("[dry-run] Would classify %d rows sampled after row %d with %s (%d workers)",
					p.cfg.Classify.SampleSize, p.cfg.Classify.SampleStart, judge, p.cfg.Classify.Workers)
			}
		case StepValidate:
			if p.cfg.Validation.GroundTruth == "" {
				summary = "[dry-run] No ground truth configured, validation would be skipped"
			} else {
				summary = fmt.Sprintf("[dry-run] Would validate %d rows of %s", p.cfg.Validation.Limit, p.cfg.Validation.GroundTruth)
			}
		case StepReport:
			stats, err := p.db.GetStats()
			if err != nil {
				r.Steps = append(r.Steps, StepResult{Name: string(step), Err: err})
				continue
			}
			summary = fmt.Sprintf("[dry-run] Would compose a report (%d runs, %d reports stored)", stats.Runs, stats.Reports)
		default:
			summary = fmt.Sprintf("[dry-run] Unknown step %q", step)
		}
		r.Steps = append(r.Steps, StepResult{Name: string(step), Summary: summary})
	}
	return r
}

func (p *Pipeline) runIngest(ctx context.Context, state *run, opts Options) StepResult {
	name := string(StepIngest)
	var summary string

	if opts.Input != "" {
		rows, dropped, err := table.LoadReviews(opts.Input, p.cfg.Merge.DropColumns)
		if err != nil {
			return StepResult{Name: name, Err: err}
		}
		state.rows = rows
		summary = fmt.Sprintf("Read %d rows from %s (%d without text)", len(rows), opts.Input, dropped)
	} else {
		in, err := ingest.Load(ctx, p.cfg.Input)
		if err != nil {
			return StepResult{Name: name, Err: err}
		}
		loc, err := p.cfg.Location()
		if err != nil {
			return StepResult{Name: name, Err: err}
		}
		rows, stats := records.Merge(in.Locations, in.Reviews, records.MergeOptions{
			Location: loc,
			Required: p.cfg.Merge.Required,
		})
		state.rows = rows

		body, err := json.Marshal(struct {
			Input ingest.Stats       `json:"input"`
			Merge records.MergeStats `json:"merge"`
		}{in.Stats, stats})
		if err == nil {
			err = p.db.SetMergeStats(state.id, string(body))
		}
		if err != nil {
			zap.L().Warn("Could not store merge stats", zap.Error(err))
		}
		summary = fmt.Sprintf("Merged %d rows from %d reviews (%d unmatched, %d incomplete, %d duplicates)",
			stats.Kept, stats.Reviews, stats.Unmatched, stats.MissingFields+stats.EmptyOrNone, stats.Duplicates)
	}

	if err := p.db.SaveRows(state.id, state.rows); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if _, err := p.exporter.Write(ctx, state.id, export.CleanedReviews, func(w io.Writer) error {
		return table.WriteRows(w, table.CSV, state.rows)
	}); err != nil {
		return StepResult{Name: name, Err: err}
	}
	return StepResult{Name: name, Summary: summary}
}

func (p *Pipeline) runAudit(state *run) StepResult {
	counts := make(map[string]int)
	flagged := 0
	for _, row := range state.rows {
		rep := signals.Scan(row.Text)
		if !rep.Flagged() {
			continue
		}
		flagged++
		for _, k := range rep.Kinds() {
			counts[k]++
		}
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s %d", k, counts[k])
	}

	summary := fmt.Sprintf("%d of %d rows carry audit signals", flagged, len(state.rows))
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	zap.L().Info("Audit complete", zap.Int("rows", len(state.rows)), zap.Int("flagged", flagged))
	return StepResult{Name: string(StepAudit), Summary: summary}
}

func (p *Pipeline) runClassify(ctx context.Context, state *run, opts Options) StepResult {
	name := string(StepClassify)
	rows := state.rows
	if !opts.All {
		var err error
		rows, err = classify.Sample(state.rows, p.cfg.Classify.SampleStart, p.cfg.Classify.SampleSize, p.cfg.Classify.Seed)
		if err != nil {
			return StepResult{Name: name, Err: err}
		}
	}

	c := classify.NewClassifier(p.gateway, p.template)
	results, err := classify.Run(ctx, c, rows, classify.Options{
		Workers:  p.cfg.Classify.Workers,
		Progress: progressLogger(state.id),
	})
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	state.results = results

	if err := p.db.SaveResults(state.id, results); err != nil {
		return StepResult{Name: name, Err: err}
	}
	for _, a := range []struct {
		name   string
		format table.Format
	}{
		{export.TrainingLabelsCSV, table.CSV},
		{export.TrainingLabelsJSONL, table.JSONL},
	} {
		if _, err := p.exporter.Write(ctx, state.id, a.name, func(w io.Writer) error {
			return table.WriteResults(w, a.format, rows, results)
		}); err != nil {
			return StepResult{Name: name, Err: err}
		}
	}

	s := classify.Summarize(results)
	return StepResult{
		Name: name,
		Summary: fmt.Sprintf("Classified %d rows: %d ok, %d flagged, %d transport failures, %d decode failures",
			s.Processed, s.OK, s.Flagged, s.TransportFailures, s.DecodeFailures),
	}
}

func (p *Pipeline) validateOptions() validate.Options {
	vc := p.cfg.Validation
	return validate.Options{
		Limit:           vc.Limit,
		RelevanceColumn: vc.RelevanceColumn,
		QualityColumn:   vc.QualityColumn,
		Workers:         p.cfg.Classify.Workers,
	}
}

// loadGroundTruth returns nil when no ground truth is configured.
func (p *Pipeline) loadGroundTruth() (*validate.GroundTruth, error) {
	path := p.cfg.Validation.GroundTruth
	if path == "" {
		return nil, nil
	}
	return validate.LoadGroundTruth(path, p.validateOptions(), p.cfg.Merge.DropColumns)
}

func (p *Pipeline) runValidate(ctx context.Context, state *run) StepResult {
	name := string(StepValidate)
	if state.truth == nil {
		return StepResult{Name: name, Summary: "Skipped: no ground truth configured"}
	}

	c := classify.NewClassifier(p.gateway, p.template)
	res, err := validate.Validate(ctx, c, state.truth, p.validateOptions())
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	if err := p.db.SaveMetrics(state.id, res.Report); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if _, err := p.exporter.Write(ctx, state.id, export.ValidationPrediction, func(w io.Writer) error {
		return table.WriteResults(w, table.CSV, res.Rows, res.Results)
	}); err != nil {
		return StepResult{Name: name, Err: err}
	}
	if _, err := p.exporter.Write(ctx, state.id, export.ValidationMetrics, func(w io.Writer) error {
		return validate.WriteMetrics(w, res.Report)
	}); err != nil {
		return StepResult{Name: name, Err: err}
	}

	rel, qual := res.Report[score.Relevance], res.Report[score.Quality]
	return StepResult{
		Name: name,
		Summary: fmt.Sprintf("Validated %d rows: relevance accuracy %.3f (macro-F1 %.3f), quality accuracy %.3f (macro-F1 %.3f)",
			len(res.Rows), rel.Accuracy, rel.MacroF1, qual.Accuracy, qual.MacroF1),
	}
}

func (p *Pipeline) runReport(ctx context.Context, state *run) StepResult {
	name := string(StepReport)
	md, err := report.NewComposer(p.db).ComposeReport(state.id)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	path, err := p.exporter.Write(ctx, state.id, export.Report, func(w io.Writer) error {
		_, err := io.WriteString(w, md)
		return err
	})
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	return StepResult{Name: name, Summary: "Report written to " + path}
}

// progressLogger logs every tenth row and the last one.
func progressLogger(runID string) func(done, total int) {
	log := zap.L().With(zap.String("run_id", runID))
	return func(done, total int) {
		if done%10 == 0 || done == total {
			log.Info("Classification progress", zap.Int("done", done), zap.Int("total", total))
		}
	}
}
