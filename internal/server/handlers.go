package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"macroind/internal/charts"
	"macroind/internal/config"
	"macroind/internal/dataset"
	"macroind/internal/logger"
	"macroind/internal/models"
	"macroind/internal/selector"
	"macroind/internal/storage"
)

// HandleHealth provides health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	rows := 0
	sel := s.selector.Load()
	if sel != nil {
		rows = sel.Len()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.GetVersion(),
		"domain":    s.Domain.Name,
		"loaded":    sel != nil,
		"rows":      rows,
	})
}

// HandleIndicators lists indicator labels present in the dataset
func (s *Server) HandleIndicators(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.loaded(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"indicators": sel.Indicators()})
}

// HandleCountries lists country and group labels present in the dataset
func (s *Server) HandleCountries(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.loaded(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"countries": sel.Countries()})
}

// HandleYears reports the observed year range of one country
func (s *Server) HandleYears(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.loaded(w)
	if !ok {
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		writeError(w, http.StatusBadRequest, errors.New("country is required"))
		return
	}
	start, end, err := sel.AvailableYearRange(country)
	if errors.Is(err, selector.ErrNoDataForCountry) && s.Countries != nil {
		if c, ok := s.Countries.LookupName(country); ok {
			start, end, err = sel.AvailableYearRange(c.Code)
		}
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"country":    country,
		"start_year": start,
		"end_year":   end,
	})
}

// HandleSelect returns the dense selection grid
func (s *Server) HandleSelect(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// HandleLineChart renders the selection as an interactive line chart
func (s *Server) HandleLineChart(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	chart, err := charts.LineChart(grid, s.title(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeChart(w, chart)
}

// HandleLinePNG renders the selection as a static PNG
func (s *Server) HandleLinePNG(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	img, err := charts.LinePNG(grid, s.title(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(img)
}

// HandleBarChart compares countries for one year; year defaults to the selection end
func (s *Server) HandleBarChart(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	year, err := intParam(r, "year", grid.Query.EndYear)
	if err != nil {
		s.fail(w, err)
		return
	}
	chart, err := charts.BarChart(grid, year, s.title(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeChart(w, chart)
}

// HandlePieChart shows indicator shares of one country in one year
func (s *Server) HandlePieChart(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	year, err := intParam(r, "year", grid.Query.EndYear)
	if err != nil {
		s.fail(w, err)
		return
	}
	// grid rows carry the resolved name of the first requested country
	country := ""
	if len(grid.Rows) > 0 {
		country = grid.Rows[0].Country
	}
	chart, err := charts.PieChart(grid, year, country, s.title(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeChart(w, chart)
}

// HandleDashboard renders the line chart and the bar chart of the last
// selected year on one page
func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.grid(w, r)
	if !ok {
		return
	}
	title := s.title(r)
	line, err := charts.LineChart(grid, title)
	if err != nil {
		s.fail(w, err)
		return
	}
	bar, err := charts.BarChart(grid, grid.Query.EndYear, title)
	if err != nil {
		s.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := charts.Page(&buf, title, line, bar); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// HandleAbout renders the domain description
func (s *Server) HandleAbout(w http.ResponseWriter, r *http.Request) {
	body := markdownToHTML(s.Domain.Description)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n%s</body></html>\n",
		s.Domain.Title, body)
}

// HandleDownload encodes the dataset, or a selection when one is given, as csv, json or xlsx
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.loaded(w)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = string(dataset.FormatCSV)
	}
	name := fmt.Sprintf("%s.%s", s.Domain.Name, format)
	if _, _, err := dataset.FormatFor(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	obs := sel.Observations()
	if len(values(r, "country")) > 0 || len(values(r, "indicator")) > 0 {
		q, err := s.selectionQuery(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		obs = sel.Select(q).Rows
	}

	data, err := dataset.Marshal(name, obs)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", storage.GetContentType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// HandleListRuns lists archived run files of the domain, newest first
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	files, err := s.Storage.ListDir(r.Context(), path.Join("runs", s.Domain.Name), true)
	if err != nil {
		s.fail(w, err)
		return
	}
	manifests := []string{}
	for _, f := range files {
		if path.Base(f) == "manifest.json" {
			manifests = append(manifests, f)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(manifests)))
	writeJSON(w, http.StatusOK, map[string][]string{"runs": manifests})
}

// HandleNormalize runs one pipeline batch and reloads the dataset
func (s *Server) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		writeError(w, http.StatusNotImplemented, errors.New("normalization is not enabled"))
		return
	}
	if !s.generateMutex.TryLock() {
		s.log.Warn("normalization already in progress, rejecting request")
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "normalization already in progress",
			"status": "conflict",
		})
		return
	}
	defer s.generateMutex.Unlock()

	manifest, err := s.Runner.Run(r.Context())
	if err != nil {
		s.log.Error("normalization failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		s.log.Error("reload after normalization failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// HandleFileProxy serves stored objects such as run archives
func (s *Server) HandleFileProxy(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		http.Error(w, "File path required", http.StatusBadRequest)
		return
	}
	if strings.Contains(filePath, "..") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	data, err := s.Storage.GetFile(r.Context(), filePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.log.Error("failed to read file", err, logger.Fields{"file": filePath})
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", storage.GetContentType(filePath))
	w.Write(data)
}

func (s *Server) loaded(w http.ResponseWriter) (*selector.Selector, bool) {
	sel, err := s.current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return nil, false
	}
	return sel, true
}

func (s *Server) grid(w http.ResponseWriter, r *http.Request) (models.SelectionGrid, bool) {
	sel, ok := s.loaded(w)
	if !ok {
		return models.SelectionGrid{}, false
	}
	q, err := s.selectionQuery(r)
	if err != nil {
		s.fail(w, err)
		return models.SelectionGrid{}, false
	}
	return sel.Select(q), true
}

func (s *Server) title(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("title")); t != "" {
		return t
	}
	return s.Domain.Title
}

type htmlRenderer interface {
	Render(w io.Writer) error
}

func (s *Server) writeChart(w http.ResponseWriter, chart htmlRenderer) {
	page, err := charts.RenderHTML(chart)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// fail maps domain errors onto status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, selector.ErrNoDataForCountry):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, charts.ErrEmptyGrid), errors.Is(err, charts.ErrYearNotSelected):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func markdownToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.ToHTML([]byte(md), p, renderer)
}
