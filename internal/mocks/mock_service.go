// Package mocks serves provider tables from fixture files so the pipeline can run offline.
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"macroind/internal/config"
	"macroind/internal/fetchers"
	"macroind/internal/logger"
	"macroind/internal/models"
	"macroind/internal/normalizer"
)

// MockService loads fixture tables stored as <dir>/<source>/<series code>.json
type MockService struct {
	mocksDir string
	log      *logger.Logger
}

// NewMockService creates a new mock service
func NewMockService(mocksDir string) *MockService {
	return &MockService{
		mocksDir: mocksDir,
		log:      logger.Component("mocks"),
	}
}

// Sources returns fixture-backed sources for every provider
func (m *MockService) Sources() normalizer.Sources {
	return normalizer.Sources{
		WorldBank: m.Source(models.SourceWorldBank),
		ILO:       m.Source(models.SourceILO),
		IMF:       m.Source(models.SourceIMF),
	}
}

// Source returns a fixture-backed source for one provider
func (m *MockService) Source(source string) fetchers.Source {
	return &mockSource{service: m, source: source}
}

// FixturePath returns where the fixture of one series lives
func (m *MockService) FixturePath(source string, spec config.IndicatorSpec) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(fixtureCode(source, spec))
	return filepath.Join(m.mocksDir, source, name+".json")
}

func fixtureCode(source string, spec config.IndicatorSpec) string {
	if source == models.SourceILO {
		return spec.SeriesCode()
	}
	return spec.Code
}

// LoadTable reads one fixture. A missing fixture yields an empty table with
// the provider's columns.
func (m *MockService) LoadTable(source string, spec config.IndicatorSpec) (*models.RawTable, error) {
	path := m.FixturePath(source, spec)
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("no fixture, using empty table", logger.Fields{"source": source, "indicator": fixtureCode(source, spec)})
		return emptyTable(source, spec), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	var table models.RawTable
	if err := json.Unmarshal(content, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fixture %s: %w", path, err)
	}
	if table.Source == "" {
		table.Source = source
	}
	return &table, nil
}

// SaveTable writes table as the fixture of one series
func (m *MockService) SaveTable(source string, spec config.IndicatorSpec, table *models.RawTable) error {
	path := m.FixturePath(source, spec)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write fixture %s: %w", path, err)
	}
	return nil
}

func emptyTable(source string, spec config.IndicatorSpec) *models.RawTable {
	switch source {
	case models.SourceILO:
		return models.NewRawTable(source, fetchers.ILOColumns(spec)...)
	case models.SourceIMF:
		return models.NewRawTable(source, fetchers.IMFColumns...)
	default:
		return models.NewRawTable(source, fetchers.WorldBankColumns...)
	}
}

func yearColumn(source string) string {
	switch source {
	case models.SourceILO:
		return fetchers.ILOColumnYear
	case models.SourceIMF:
		return fetchers.IMFColumnYear
	default:
		return fetchers.WorldBankColumnYear
	}
}

type mockSource struct {
	service *MockService
	source  string
}

func (s *mockSource) Name() string { return s.source }

// Fetch returns the fixture rows inside the requested year range
func (s *mockSource) Fetch(ctx context.Context, req fetchers.Request) ([]*models.RawTable, error) {
	tables := make([]*models.RawTable, 0, len(req.Indicators))
	for _, spec := range req.Indicators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := s.service.LoadTable(s.source, spec)
		if err != nil {
			return nil, err
		}
		tables = append(tables, inRange(table, yearColumn(s.source), req.StartYear, req.EndYear))
	}
	return tables, nil
}

func inRange(t *models.RawTable, column string, start, end int) *models.RawTable {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return t
	}
	out := models.NewRawTable(t.Source, t.Columns...)
	for _, row := range t.Rows {
		if idx >= len(row) {
			out.Rows = append(out.Rows, row)
			continue
		}
		year, err := normalizer.ParseYear(row[idx])
		if err != nil || (year >= start && year <= end) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Recorder wraps a live source and saves every fetched table as a fixture
type Recorder struct {
	fetchers.Source
	service *MockService
}

// NewRecorder creates a recording source
func NewRecorder(src fetchers.Source, service *MockService) *Recorder {
	return &Recorder{Source: src, service: service}
}

func (r *Recorder) Fetch(ctx context.Context, req fetchers.Request) ([]*models.RawTable, error) {
	tables, err := r.Source.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	for i, t := range tables {
		if i >= len(req.Indicators) {
			break
		}
		if err := r.service.SaveTable(r.Name(), req.Indicators[i], t); err != nil {
			return nil, err
		}
	}
	return tables, nil
}
