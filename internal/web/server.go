// Package web serves search, context windows and the export's own files
// over HTTP for one opened index.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/tgsift/internal/logging"
	"github.com/renderinc/tgsift/internal/metrics"
	"github.com/renderinc/tgsift/internal/preview"
	"github.com/renderinc/tgsift/internal/query"
	"github.com/renderinc/tgsift/internal/search"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// ExportPrefix is the route serving the export's files. Context documents
// use it as their base.
const ExportPrefix = "/export/"

// Options configures a Server
type Options struct {
	Limit     int
	Fragments int
	Metrics   *metrics.Metrics
}

type Server struct {
	idx       *search.Index
	compiler  *query.Compiler
	previews  *preview.Builder
	exportDir string
	opts      Options
	metrics   *metrics.Metrics
	templates *template.Template
	log       *slog.Logger
}

// SearchResponse is the JSON body of /api/search
type SearchResponse struct {
	Query    string       `json:"query"`
	Total    uint64       `json:"total"`
	Returned int          `json:"returned"`
	Hits     []search.Hit `json:"hits"`
	Empty    bool         `json:"empty,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func NewServer(idx *search.Index, compiler *query.Compiler, exportDir string, opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	return &Server{
		idx:       idx,
		compiler:  compiler,
		previews:  preview.New(),
		exportDir: exportDir,
		opts:      opts,
		metrics:   opts.Metrics,
		templates: tmpl,
		log:       logging.ForComponent(logging.CompWeb),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.FileServer(http.FS(staticFS)))
	mux.Handle(ExportPrefix, http.StripPrefix(ExportPrefix, http.FileServer(http.Dir(s.exportDir))))

	// Routes
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/search", s.handleSearchHTML)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/bounds", s.handleBounds)
	mux.HandleFunc("/api/senders", s.handleSenders)
	mux.HandleFunc("/api/record", s.handleRecord)
	mux.HandleFunc("/api/locate", s.handleLocate)
	mux.HandleFunc("/context", s.handleContext)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s.instrument(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	count, _ := s.idx.Count()
	bounds, _, _ := s.idx.DateBounds()
	m := s.idx.Manifest()
	data := map[string]interface{}{
		"Title":     m.ExportDir,
		"ExportDir": m.ExportDir,
		"Records":   count,
		"MinDate":   bounds.Min,
		"MaxDate":   bounds.Max,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("render template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// searchParams reads q, from, to and limit. A date range needs both ends.
func (s *Server) searchParams(r *http.Request) (string, *query.DateRange, search.Options) {
	params := r.URL.Query()
	opts := search.Options{Limit: s.opts.Limit, Fragments: s.opts.Fragments}
	if l, err := strconv.Atoi(params.Get("limit")); err == nil && l > 0 {
		opts.Limit = min(l, search.MaxHits)
	}

	var dates *query.DateRange
	from, to := strings.TrimSpace(params.Get("from")), strings.TrimSpace(params.Get("to"))
	if from != "" || to != "" {
		dates = &query.DateRange{From: from, To: to}
	}
	return params.Get("q"), dates, opts
}

func (s *Server) runSearch(r *http.Request) (string, *search.Results, error) {
	q, dates, opts := s.searchParams(r)
	start := time.Now()
	res, err := s.idx.SearchString(r.Context(), s.compiler, q, dates, opts)
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		s.metrics.ObserveSearch(metrics.OutcomeEmpty, 0, 0)
	case err != nil:
		s.metrics.ObserveSearch(metrics.OutcomeError, 0, 0)
	default:
		s.metrics.ObserveSearch(metrics.OutcomeOK, len(res.Hits), time.Since(start))
	}
	return q, res, err
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, res, err := s.runSearch(r)
	resp := SearchResponse{Query: q}
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		resp.Empty = true
		writeJSON(w, http.StatusOK, resp)
		return
	case errors.Is(err, query.ErrInvalidDateRange):
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
		return
	case err != nil:
		s.log.Error("search failed", "query", q, "error", err)
		resp.Error = "search failed"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Total = res.Total
	resp.Returned = len(res.Hits)
	resp.Hits = res.Hits
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchHTML(w http.ResponseWriter, r *http.Request) {
	q, res, err := s.runSearch(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		fmt.Fprint(w, `<div class="empty-state">
			<p>Type something to search the chat history</p>
			<div class="tips">
				<h3>Search Tips:</h3>
				<ul>
					<li><strong>from:alice</strong> - Messages sent by alice</li>
					<li><strong>has:link</strong> - Messages containing a link</li>
					<li><strong>"exact phrase"</strong> - Search for exact phrases</li>
					<li><strong>deploy -staging</strong> - Exclude a term</li>
				</ul>
			</div>
		</div>`)
		return
	case err != nil:
		status := http.StatusInternalServerError
		msg := "Search failed"
		if errors.Is(err, query.ErrInvalidDateRange) {
			status, msg = http.StatusBadRequest, err.Error()
		} else {
			s.log.Error("search failed", "query", q, "error", err)
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error">
			<strong>Error:</strong> %s
		</div>`, template.HTMLEscapeString(msg))
		return
	}

	if len(res.Hits) == 0 {
		fmt.Fprintf(w, `<div class="no-results">
			<p>No results found for "<strong>%s</strong>"</p>
		</div>`, template.HTMLEscapeString(q))
		return
	}

	fmt.Fprintf(w, `<div class="results-header">
		<p>Found <strong>%d</strong> results, showing <strong>%d</strong></p>
	</div>`, res.Total, len(res.Hits))

	for _, hit := range res.Hits {
		fmt.Fprintf(w, `<div class="result-card">
			<p class="result-meta"><strong>%s</strong> · %s</p>
			<p class="result-preview">%s</p>
			<div class="result-footer">
				<a href="/context?id=%s" target="_blank" rel="noopener">Context →</a>
				<span class="result-score">Score: %.3f</span>
			</div>
		</div>`,
			template.HTMLEscapeString(hit.Sender),
			template.HTMLEscapeString(hit.DateLabel),
			template.HTML(hit.Snippet),
			template.URLQueryEscaper(hit.ID),
			hit.Score)
	}
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	b, ok, err := s.idx.DateBounds()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "date bounds failed"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"available": true, "min": b.Min, "max": b.Max})
}

func (s *Server) handleSenders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	senders, err := s.idx.SuggestSenders(r.URL.Query().Get("q"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list senders failed"})
		return
	}
	writeJSON(w, http.StatusOK, senders)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	rec, err := s.idx.Record(id)
	if err != nil {
		http.Error(w, "Error retrieving record", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	win, err := s.previews.Build(r.Context(), s.exportDir, id)
	if errors.Is(err, preview.ErrNotFound) {
		s.metrics.ObserveContext(metrics.OutcomeNotFound)
		http.Error(w, "Message not found in the export", http.StatusNotFound)
		return
	}
	if err != nil {
		s.metrics.ObserveContext(metrics.OutcomeError)
		s.log.Error("build context", "id", id, "error", err)
		http.Error(w, "Error building context", http.StatusInternalServerError)
		return
	}

	doc, err := win.Document(ExportPrefix)
	if err != nil {
		s.metrics.ObserveContext(metrics.OutcomeError)
		http.Error(w, "Error rendering context", http.StatusInternalServerError)
		return
	}
	s.metrics.ObserveContext(metrics.OutcomeOK)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, doc)
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	src, err := preview.Locate(r.Context(), s.exportDir, id)
	if errors.Is(err, preview.ErrNotFound) {
		s.metrics.ObserveContext(metrics.OutcomeNotFound)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "message not found"})
		return
	}
	if err != nil {
		s.metrics.ObserveContext(metrics.OutcomeError)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "locate failed"})
		return
	}
	s.metrics.ObserveContext(metrics.OutcomeOK)
	writeJSON(w, http.StatusOK, map[string]string{"path": src.Path, "url": src.URL()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, _ := s.idx.Count()
	m := s.idx.Manifest()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"records":    count,
		"export_dir": m.ExportDir,
		"built_at":   m.BuiltAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
