package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macroind/internal/classification"
	"macroind/internal/config"
	"macroind/internal/dataset"
	"macroind/internal/models"
	"macroind/internal/normalizer"
	"macroind/internal/storage"
)

func testDomain() *config.DomainConfig {
	return &config.DomainConfig{
		Name:        "demo",
		Title:       "Demo indicators",
		Description: "# About\n\nData from [World Bank](https://data.worldbank.org).",
		StartYear:   2019,
		EndYear:     2021,
		Output:      "demo.csv",
	}
}

func row(code, name, indicator string, year int, v *float64) models.Observation {
	return models.Observation{
		CountryCode:   code,
		Country:       name,
		IndicatorCode: indicator + ".CODE",
		Indicator:     indicator,
		Year:          year,
		Value:         v,
		Region:        "Europe",
		SubRegion:     "Western Europe",
		IncomeGroup:   "High income",
		LDC:           models.Bool(false),
		LLDC:          models.Bool(false),
		SIDS:          models.Bool(false),
	}
}

func testRows() []models.Observation {
	return []models.Observation{
		row("DEU", "Germany", "GDP", 2019, models.Float(10)),
		row("DEU", "Germany", "GDP", 2020, models.Float(12)),
		row("DEU", "Germany", "GDP", 2021, nil),
		row("DEU", "Germany", "Trade", 2020, models.Float(88.1)),
		row("FRA", "France", "GDP", 2020, models.Float(8)),
	}
}

func store(t *testing.T, client storage.StorageClient, name string, obs []models.Observation) {
	t.Helper()
	data, err := dataset.Marshal(name, obs)
	require.NoError(t, err)
	require.NoError(t, client.StoreFile(context.Background(), name, data))
}

func newTestServer(t *testing.T, runner Runner) (*Server, storage.StorageClient) {
	t.Helper()
	client, err := storage.NewLocalStorageClient(t.TempDir())
	require.NoError(t, err)
	store(t, client, "demo.csv", testRows())

	s := NewServer(&config.Config{CORSOrigins: []string{"*"}}, testDomain(), client, runner)
	require.NoError(t, s.Reload(context.Background()))
	return s, client
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthBeforeLoad(t *testing.T) {
	client, err := storage.NewLocalStorageClient(t.TempDir())
	require.NoError(t, err)
	s := NewServer(&config.Config{}, testDomain(), client, nil)
	h := s.Routes()

	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, false, body["loaded"])
	assert.Equal(t, "demo", body["domain"])

	rec = get(t, h, "/api/indicators")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.ErrorIs(t, s.Reload(context.Background()), storage.ErrNotFound)
}

func TestListings(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	var ind map[string][]string
	rec := get(t, h, "/api/indicators")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ind)
	assert.Equal(t, []string{"GDP", "Trade"}, ind["indicators"])

	var countries map[string][]string
	decode(t, get(t, h, "/api/countries"), &countries)
	assert.ElementsMatch(t, []string{"Germany", "France"}, countries["countries"])
}

func TestYears(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	rec := get(t, h, "/api/years?country=Germany")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Start int `json:"start_year"`
		End   int `json:"end_year"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2019, body.Start)
	assert.Equal(t, 2021, body.End) // null-valued 2021 row counts

	rec = get(t, h, "/api/years?country=Narnia")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errBody map[string]string
	decode(t, rec, &errBody)
	assert.Contains(t, errBody["error"], "Narnia")

	rec = get(t, h, "/api/years")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// names typed in another case only resolve through the classification table
	rec = get(t, h, "/api/years?country=germany")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.Countries = classification.NewTable([]models.CountryClassification{
		{Code: "DEU", Name: "Germany"},
		{Code: "FRA", Name: "France"},
	})
	rec = get(t, h, "/api/years?country=GERMANY")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, 2019, body.Start)
	assert.Equal(t, 2021, body.End)
}

func TestSelect(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	rec := get(t, h, "/api/select?country=Germany&country=FRA&indicator=GDP")
	require.Equal(t, http.StatusOK, rec.Code)
	var grid models.SelectionGrid
	decode(t, rec, &grid)
	assert.Equal(t, 2019, grid.Query.StartYear)
	assert.Equal(t, 2021, grid.Query.EndYear)
	require.Len(t, grid.Rows, 6)
	assert.Equal(t, "Germany", grid.Rows[0].Country)
	assert.Equal(t, 10.0, *grid.Rows[0].Value)
	assert.Nil(t, grid.Rows[1].Value) // France 2019

	rec = get(t, h, "/api/select?country=Narnia&indicator=GDP&start=2020&end=2020")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &grid)
	require.Len(t, grid.Rows, 1)
	assert.Equal(t, "Narnia", grid.Rows[0].Country)
	assert.Nil(t, grid.Rows[0].Value)

	rec = get(t, h, "/api/select?country=Germany&start=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// start after end is an empty selection
	rec = get(t, h, "/api/select?country=Germany&indicator=GDP&start=2022&end=2020")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &grid)
	assert.Empty(t, grid.Rows)
	assert.Equal(t, 2022, grid.Query.StartYear)

	rec = get(t, h, "/api/charts/line?country=Germany&indicator=GDP&start=2022&end=2020")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody map[string]string
	decode(t, rec, &errBody)
	assert.Contains(t, errBody["error"], "empty selection grid")
}

func TestCharts(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	rec := get(t, h, "/api/charts/line?country=Germany&indicator=GDP&indicator=Trade")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "88.1")
	assert.Contains(t, rec.Body.String(), "Demo indicators")

	rec = get(t, h, "/api/charts/line.png?country=Germany&indicator=GDP")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = get(t, h, "/api/charts/bar?country=Germany&country=France&indicator=GDP&year=2020&title=Compare")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Compare")

	rec = get(t, h, "/api/charts/bar?country=Germany&indicator=GDP&year=1990")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/charts/pie?country=Germany&indicator=GDP&indicator=Trade&year=2020")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/charts/line")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/charts/dashboard?country=Germany&country=France&indicator=GDP&end=2020")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "echarts.init("))
}

func TestAbout(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Routes(), "/api/about")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Demo indicators</title>")
	assert.Contains(t, body, "About</h1>")
	assert.Contains(t, body, `target="_blank"`)
}

func TestDownload(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Routes()

	rec := get(t, h, "/api/download?format=json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="demo.json"`, rec.Header().Get("Content-Disposition"))
	obs, err := dataset.Unmarshal("demo.json", rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, obs, len(testRows()))

	rec = get(t, h, "/api/download?country=France&indicator=GDP&start=2020&end=2021")
	require.Equal(t, http.StatusOK, rec.Code)
	obs, err = dataset.Unmarshal("demo.csv", rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "FRA", obs[1].CountryCode)

	rec = get(t, h, "/api/download?format=txt")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileProxyAndRuns(t *testing.T) {
	s, client := newTestServer(t, nil)
	h := s.Routes()
	ctx := context.Background()
	require.NoError(t, client.StoreFile(ctx, "runs/demo/2024/01/01/demo-2024-01-01-00-00-00/manifest.json", []byte("{}")))
	require.NoError(t, client.StoreFile(ctx, "runs/demo/2024/02/01/demo-2024-02-01-00-00-00/manifest.json", []byte("{}")))
	require.NoError(t, client.StoreFile(ctx, "runs/demo/2024/02/01/demo-2024-02-01-00-00-00/demo.csv", []byte("x")))

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs map[string][]string
	decode(t, rec, &runs)
	assert.Equal(t, []string{
		"runs/demo/2024/02/01/demo-2024-02-01-00-00-00/manifest.json",
		"runs/demo/2024/01/01/demo-2024-01-01-00-00-00/manifest.json",
	}, runs["runs"])

	rec = get(t, h, "/files/demo.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rec = get(t, h, "/files/missing.csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/files/runs/../demo.csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeRunner struct {
	client storage.StorageClient
	obs    []models.Observation
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context) (normalizer.RunManifest, error) {
	f.calls++
	if f.err != nil {
		return normalizer.RunManifest{}, f.err
	}
	data, err := dataset.Marshal("demo.csv", f.obs)
	if err != nil {
		return normalizer.RunManifest{}, err
	}
	if err := f.client.StoreFile(ctx, "demo.csv", data); err != nil {
		return normalizer.RunManifest{}, err
	}
	return normalizer.RunManifest{RunID: "run-1", Domain: "demo", Rows: len(f.obs)}, nil
}

func TestNormalize(t *testing.T) {
	runner := &fakeRunner{obs: []models.Observation{row("KEN", "Kenya", "Exports", 2020, models.Float(1))}}
	s, client := newTestServer(t, runner)
	runner.client = client
	h := s.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/normalize", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var manifest normalizer.RunManifest
	decode(t, rec, &manifest)
	assert.Equal(t, "run-1", manifest.RunID)

	var ind map[string][]string
	decode(t, get(t, h, "/api/indicators"), &ind)
	assert.Equal(t, []string{"Exports"}, ind["indicators"])

	s.generateMutex.Lock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/normalize", nil))
	s.generateMutex.Unlock()
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, runner.calls)

	runner.err = errors.New("provider down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/normalize", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	decode(t, get(t, h, "/api/indicators"), &ind)
	assert.Equal(t, []string{"Exports"}, ind["indicators"])
}

func TestNormalizeDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/normalize", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = get(t, s.Routes(), "/api/normalize")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/indicators", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
