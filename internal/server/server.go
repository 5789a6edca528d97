package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/database"
	"github.com/TobiSchelling/reviewguard/internal/report"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/signals"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// maxRows caps the failure and flagged tables of the run page.
const maxRows = 200

// Server is the HTTP server for browsing runs.
type Server struct {
	db     *database.DB
	pages  map[string]*template.Template
	router chi.Router
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"excerpt":  func(s string) string { return report.Excerpt(signals.Redact(s)) },
		"pct":      func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, eris.Wrap(err, "parsing base template")
	}

	// Each page is parsed into its own clone of the base so every page can
	// define "title" and "content".
	pageNames := []string{"index.html", "run.html", "report.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, eris.Wrapf(err, "cloning base for %s", name)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, eris.Wrapf(err, "parsing template %s", name)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, router: chi.NewRouter()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.handleRun)
		r.Get("/report", s.handleReport)
	})
	r.Get("/api/runs/{id}/metrics", s.handleMetrics)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.GetRuns()
	if err != nil {
		s.fail(w, err)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		s.fail(w, err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

// dimensionView is one agreement dimension laid out for the run page.
type dimensionView struct {
	Name     string
	Dim      score.Dimension
	Matrix   []matrixRow
	PerLabel []labelRow
}

type matrixRow struct {
	Label  string
	Counts []int
}

type labelRow struct {
	Label string
	score.LabelStats
}

// resultView is a failed or flagged row of the run page.
type resultView struct {
	ID      string
	Kind    string
	Error   string
	Raw     string
	Flags   []string
	Signals []string
	Text    string
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.db.GetRun(id)
	if eris.Is(err, database.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	stats, err := s.db.GetResultStats(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	metrics, err := s.db.GetMetrics(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	failures, err := s.db.GetFailures(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	flagged, err := s.db.GetFlagged(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	rows, err := s.db.GetRows(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	text := make(map[string]string, len(rows))
	for _, row := range rows {
		text[row.ID] = row.Text
	}

	s.render(w, "run.html", map[string]any{
		"Run":           run,
		"Stats":         stats,
		"Dimensions":    dimensions(metrics),
		"Failures":      resultViews(failures, text),
		"FailureCount":  len(failures),
		"Flagged":       resultViews(flagged, text),
		"FlaggedCount":  len(flagged),
		"RowCount":      len(rows),
		"ListedMaximum": maxRows,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(id); eris.Is(err, database.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		s.fail(w, err)
		return
	}

	body, err := s.db.GetReport(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if body == "" {
		if body, err = report.NewComposer(s.db).ComposeReport(id); err != nil {
			s.fail(w, err)
			return
		}
	}

	s.render(w, "report.html", map[string]any{
		"RunID":  id,
		"Report": body,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(id); eris.Is(err, database.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	} else if err != nil {
		zap.L().Error("Loading run failed", zap.String("run_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	metrics, err := s.db.GetMetrics(id)
	if err != nil {
		zap.L().Error("Loading metrics failed", zap.String("run_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if metrics == nil {
		metrics = score.Report{}
	}
	respondJSON(w, http.StatusOK, metrics)
}

func dimensions(m score.Report) []dimensionView {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]dimensionView, 0, len(names))
	for _, name := range names {
		d := m[name]
		v := dimensionView{Name: name, Dim: d}
		for i, label := range d.Labels {
			row := matrixRow{Label: label}
			if i < len(d.ConfusionMatrix) {
				row.Counts = d.ConfusionMatrix[i]
			}
			v.Matrix = append(v.Matrix, row)
			v.PerLabel = append(v.PerLabel, labelRow{Label: label, LabelStats: d.PerLabel[label]})
		}
		out = append(out, v)
	}
	return out
}

func resultViews(results []classify.Result, text map[string]string) []resultView {
	n := min(len(results), maxRows)
	out := make([]resultView, 0, n)
	for _, r := range results[:n] {
		v := resultView{
			ID:      r.RowID,
			Kind:    string(r.Outcome.Kind),
			Error:   r.Outcome.Err,
			Raw:     r.Outcome.Raw,
			Signals: r.Signals.Kinds(),
			Text:    text[r.RowID],
		}
		if r.Outcome.OK() {
			v.Flags = r.Outcome.Decision.Flags()
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	zap.L().Error("Request failed", zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		zap.L().Error("Template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		zap.L().Error("Rendering template failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info(fmt.Sprintf("Server listening on http://%s", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "serving")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		zap.L().Info("Shutting down server")
		return eris.Wrap(httpSrv.Shutdown(shutdownCtx), "shutting down")
	}
}
