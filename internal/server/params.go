package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"macroind/internal/models"
)

// badRequest marks query parameter errors
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...interface{}) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// values returns the repeated parameter name, dropping blanks.
// Names may contain commas so they are never split.
func values(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequestf("invalid %s %q", name, raw)
	}
	return v, nil
}

// selectionQuery reads country, indicator, start and end; years default to the domain range
func (s *Server) selectionQuery(r *http.Request) (models.SelectionQuery, error) {
	q := models.SelectionQuery{
		Countries:  values(r, "country"),
		Indicators: values(r, "indicator"),
	}
	var err error
	if q.StartYear, err = intParam(r, "start", s.Domain.StartYear); err != nil {
		return q, err
	}
	if q.EndYear, err = intParam(r, "end", s.Domain.EndYear); err != nil {
		return q, err
	}
	// start after end selects an empty grid
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
