// Package report renders markdown reports of classification runs: outcome
// counts, agreement with ground truth, audit signals, failures and flagged
// reviews.
package report

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/database"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/signals"
)

// maxListed caps the failure and flagged sections.
const maxListed = 50

const excerptLen = 160

// Data is everything a run report shows.
type Data struct {
	Run     database.Run
	Stats   database.ResultStats
	Metrics score.Report
	Signals map[string]int
	Rows    []records.Row
	Results []classify.Result
}

// Composer builds run reports from the store.
type Composer struct {
	db *database.DB
}

// NewComposer creates a new report composer.
func NewComposer(db *database.DB) *Composer {
	return &Composer{db: db}
}

// ComposeReport renders the report of a run and stores it.
func (c *Composer) ComposeReport(runID string) (string, error) {
	run, err := c.db.GetRun(runID)
	if err != nil {
		return "", err
	}
	stats, err := c.db.GetResultStats(runID)
	if err != nil {
		return "", err
	}
	metrics, err := c.db.GetMetrics(runID)
	if err != nil {
		return "", err
	}
	sig, err := c.db.SignalCounts(runID)
	if err != nil {
		return "", err
	}
	rows, err := c.db.GetRows(runID)
	if err != nil {
		return "", err
	}
	results, err := c.db.GetResults(runID)
	if err != nil {
		return "", err
	}

	body := Render(Data{Run: *run, Stats: *stats, Metrics: metrics, Signals: sig, Rows: rows, Results: results})
	if err := c.db.SaveReport(runID, body); err != nil {
		return "", err
	}
	zap.L().Info("Report composed", zap.String("run_id", runID), zap.Int("results", stats.Total))
	return body, nil
}

// Render builds the markdown report.
func Render(d Data) string {
	sections := []string{header(d)}
	if len(d.Metrics) > 0 {
		sections = append(sections, agreement(d.Metrics))
	}
	if len(d.Signals) > 0 {
		sections = append(sections, signalSection(d.Signals))
	}

	text := make(map[string]string, len(d.Rows))
	for _, r := range d.Rows {
		text[r.ID] = r.Text
	}
	if s := failureSection(d.Results); s != "" {
		sections = append(sections, s)
	}
	if s := flaggedSection(d.Results, text); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

func header(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", d.Run.ID)
	fmt.Fprintf(&b, "- Command: %s\n", d.Run.Command)
	fmt.Fprintf(&b, "- Status: %s\n", d.Run.Status)
	if d.Run.Provider != nil {
		model := ""
		if d.Run.Model != nil {
			model = " / " + *d.Run.Model
		}
		fmt.Fprintf(&b, "- Judge: %s%s\n", *d.Run.Provider, model)
	}
	if d.Run.TemplateVersion != nil {
		fmt.Fprintf(&b, "- Template: %s\n", *d.Run.TemplateVersion)
	}
	if d.Run.StartedAt != nil {
		fmt.Fprintf(&b, "- Started: %s\n", *d.Run.StartedAt)
	}
	if d.Run.Error != nil {
		fmt.Fprintf(&b, "- Error: %s\n", *d.Run.Error)
	}

	s := d.Stats
	b.WriteString("\n| Rows | OK | Flagged | Transport failures | Decode failures | Cached |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |", s.Total, s.OK, s.Flagged, s.TransportFailures, s.DecodeFailures, s.Cached)
	return b.String()
}

func agreement(m score.Report) string {
	dims := make([]string, 0, len(m))
	for k := range m {
		dims = append(dims, k)
	}
	// Relevance before Quality, anything else after.
	sort.Slice(dims, func(i, j int) bool {
		ri, rj := dimRank(dims[i]), dimRank(dims[j])
		if ri != rj {
			return ri < rj
		}
		return dims[i] < dims[j]
	})

	var b strings.Builder
	b.WriteString("## Agreement with ground truth")
	for _, name := range dims {
		d := m[name]
		fmt.Fprintf(&b, "\n\n### %s\n\n", name)
		fmt.Fprintf(&b, "Accuracy **%.3f**, macro-F1 **%.3f** over %d rows", d.Accuracy, d.MacroF1, d.Support)
		if d.Unscored > 0 {
			fmt.Fprintf(&b, " (%d unscored)", d.Unscored)
		}
		b.WriteString(".\n\n")

		b.WriteString("| truth \\ predicted |")
		for _, l := range d.Labels {
			b.WriteString(" " + l + " |")
		}
		b.WriteString("\n|---|")
		b.WriteString(strings.Repeat("---:|", len(d.Labels)))
		for i, l := range d.Labels {
			fmt.Fprintf(&b, "\n| %s |", l)
			if i < len(d.ConfusionMatrix) {
				for _, n := range d.ConfusionMatrix[i] {
					fmt.Fprintf(&b, " %d |", n)
				}
			}
		}

		b.WriteString("\n\n| label | precision | recall | F1 | support |\n|---|---:|---:|---:|---:|")
		for _, l := range d.Labels {
			s := d.PerLabel[l]
			fmt.Fprintf(&b, "\n| %s | %.3f | %.3f | %.3f | %d |", l, s.Precision, s.Recall, s.F1, s.Support)
		}
	}
	return b.String()
}

func dimRank(name string) int {
	switch name {
	case score.Relevance:
		return 0
	case score.Quality:
		return 1
	}
	return 2
}

func signalSection(counts map[string]int) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	var b strings.Builder
	b.WriteString("## Audit signals\n\n| signal | reviews |\n|---|---:|")
	for _, k := range kinds {
		fmt.Fprintf(&b, "\n| %s | %d |", k, counts[k])
	}
	return b.String()
}

func failureSection(results []classify.Result) string {
	var lines []string
	total := 0
	for _, r := range results {
		if r.Outcome.OK() {
			continue
		}
		total++
		if len(lines) >= maxListed {
			continue
		}
		line := fmt.Sprintf("- `%s` **%s**: %s", r.RowID, r.Outcome.Kind, r.Outcome.Err)
		if raw := strings.TrimSpace(r.Outcome.Raw); raw != "" {
			line += fmt.Sprintf(" (raw: `%s`)", Excerpt(strings.ReplaceAll(raw, "`", "'")))
		}
		lines = append(lines, line)
	}
	if total == 0 {
		return ""
	}
	head := fmt.Sprintf("## Failures (%d)\n\n", total)
	if total > len(lines) {
		lines = append(lines, fmt.Sprintf("- ... and %d more", total-len(lines)))
	}
	return head + strings.Join(lines, "\n")
}

func flaggedSection(results []classify.Result, text map[string]string) string {
	var lines []string
	total := 0
	for _, r := range results {
		var flags []string
		if r.Outcome.OK() {
			flags = r.Outcome.Decision.Flags()
		}
		kinds := r.Signals.Kinds()
		if len(flags) == 0 && len(kinds) == 0 {
			continue
		}
		total++
		if len(lines) >= maxListed {
			continue
		}
		var tags []string
		tags = append(tags, flags...)
		for _, k := range kinds {
			tags = append(tags, "signal:"+k)
		}
		line := fmt.Sprintf("- `%s` %s", r.RowID, strings.Join(tags, ", "))
		if t := text[r.RowID]; t != "" {
			line += "\n  > " + Excerpt(signals.Redact(t))
		}
		lines = append(lines, line)
	}
	if total == 0 {
		return ""
	}
	head := fmt.Sprintf("## Flagged reviews (%d)\n\n", total)
	if total > len(lines) {
		lines = append(lines, fmt.Sprintf("- ... and %d more", total-len(lines)))
	}
	return head + strings.Join(lines, "\n")
}

// Excerpt collapses whitespace and cuts s to a fixed number of runes.
func Excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}

// Categories renders the unique-review count per category, limited to the
// top n entries when n > 0.
func Categories(counts []records.CategoryCount, n int) string {
	var b strings.Builder
	b.WriteString("## Reviews per category\n\n| category | unique reviews |\n|---|---:|")
	for i, c := range counts {
		if n > 0 && i >= n {
			fmt.Fprintf(&b, "\n| ... %d more | |", len(counts)-n)
			break
		}
		fmt.Fprintf(&b, "\n| %s | %d |", strings.ReplaceAll(c.Category, "|", "\\|"), c.UniqueReviews)
	}
	return b.String()
}
