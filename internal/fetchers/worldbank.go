package fetchers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"macroind/internal/config"
	"macroind/internal/logger"
	"macroind/internal/models"
)

// World Bank raw table columns
const (
	WorldBankColumnCountryCode = "countryiso3code"
	WorldBankColumnCountry     = "country"
	WorldBankColumnIndicator   = "indicator"
	WorldBankColumnYear        = "date"
	WorldBankColumnValue       = "value"
)

// WorldBankColumns is the column layout of every World Bank table
var WorldBankColumns = []string{
	WorldBankColumnCountryCode,
	WorldBankColumnCountry,
	WorldBankColumnIndicator,
	WorldBankColumnYear,
	WorldBankColumnValue,
}

// WorldBankFetcher reads indicator series from the World Bank v2 API
type WorldBankFetcher struct {
	httpSource
	baseURL  string
	pageSize int
}

// NewWorldBankFetcher creates a World Bank fetcher
func NewWorldBankFetcher(base httpSource, baseURL string, pageSize int) *WorldBankFetcher {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &WorldBankFetcher{
		httpSource: base,
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageSize:   pageSize,
	}
}

func (f *WorldBankFetcher) Name() string { return models.SourceWorldBank }

// Fetch returns one table per indicator covering StartYear..EndYear inclusive
func (f *WorldBankFetcher) Fetch(ctx context.Context, req Request) ([]*models.RawTable, error) {
	tables := make([]*models.RawTable, 0, len(req.Indicators))
	for _, spec := range req.Indicators {
		table, err := f.FetchIndicator(ctx, spec, req.StartYear, req.EndYear)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// FetchIndicator follows every page of one indicator
func (f *WorldBankFetcher) FetchIndicator(ctx context.Context, spec config.IndicatorSpec, start, end int) (*models.RawTable, error) {
	url := fmt.Sprintf("%s/country/all/indicator/%s", f.baseURL, spec.Code)
	table := models.NewRawTable(models.SourceWorldBank, WorldBankColumns...)

	for page, pages := 1, 1; page <= pages; page++ {
		body, err := f.get(ctx, models.SourceWorldBank, url, map[string]string{
			"date":     fmt.Sprintf("%d:%d", start, end),
			"format":   "json",
			"per_page": strconv.Itoa(f.pageSize),
			"page":     strconv.Itoa(page),
		})
		if err != nil {
			return nil, err
		}

		meta, records, err := parseWorldBankPage(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse World Bank response for %s page %d: %w", spec.Code, page, err)
		}
		pages = int(meta.Pages)

		for _, r := range records {
			code := strings.TrimSpace(r.CountryISO3Code)
			if code == "" {
				continue
			}
			indicator := r.Indicator.ID
			if indicator == "" {
				indicator = spec.Code
			}
			if err := table.Append(code, r.Country.Value, indicator, r.Date, models.FormatValue(r.Value)); err != nil {
				return nil, err
			}
		}
	}

	logger.Component("fetchers").Info("World Bank indicator fetched", logger.Fields{
		"indicator": spec.Code,
		"rows":      table.Len(),
	})
	return table, nil
}

// parseWorldBankPage splits a `[meta, records]` response. The API answers
// errors with a single-element array holding a message.
func parseWorldBankPage(body []byte) (models.WorldBankPage, []models.WorldBankRecord, error) {
	var meta models.WorldBankPage
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return meta, nil, err
	}
	if len(parts) == 0 {
		return meta, nil, fmt.Errorf("empty response")
	}

	var msg models.WorldBankMessage
	if err := json.Unmarshal(parts[0], &msg); err == nil && len(msg.Message) > 0 {
		return meta, nil, fmt.Errorf("api error %s: %s", msg.Message[0].ID, msg.Message[0].Value)
	}
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return meta, nil, err
	}
	if len(parts) < 2 || bytes.Equal(bytes.TrimSpace(parts[1]), []byte("null")) {
		return meta, nil, nil
	}

	var records []models.WorldBankRecord
	if err := json.Unmarshal(parts[1], &records); err != nil {
		return meta, nil, err
	}
	return meta, records, nil
}
