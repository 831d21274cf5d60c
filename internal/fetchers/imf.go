package fetchers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"macroind/internal/logger"
	"macroind/internal/models"
)

// IMF raw table columns. COUNTRY_ISO3 carries the WEO code resolved through
// the classification table.
const (
	IMFColumnRefArea     = "@REF_AREA"
	IMFColumnCountryCode = "COUNTRY_ISO3"
	IMFColumnIndicator   = "@INDICATOR"
	IMFColumnYear        = "@TIME_PERIOD"
	IMFColumnValue       = "@OBS_VALUE"
)

// IMFColumns is the column layout of every IMF table
var IMFColumns = []string{
	IMFColumnRefArea,
	IMFColumnCountryCode,
	IMFColumnIndicator,
	IMFColumnYear,
	IMFColumnValue,
}

// IMFFetcher reads annual series from the IMF SDMX_JSON CompactData service
type IMFFetcher struct {
	httpSource
	baseURL  string
	resolver CountryResolver
}

// NewIMFFetcher creates an IMF fetcher
func NewIMFFetcher(base httpSource, baseURL string, resolver CountryResolver) *IMFFetcher {
	return &IMFFetcher{
		httpSource: base,
		baseURL:    strings.TrimRight(baseURL, "/"),
		resolver:   resolver,
	}
}

func (f *IMFFetcher) Name() string { return models.SourceIMF }

// Fetch returns one table per indicator of req.Dataset
func (f *IMFFetcher) Fetch(ctx context.Context, req Request) ([]*models.RawTable, error) {
	if req.Dataset == "" {
		return nil, fmt.Errorf("IMF request needs a dataset")
	}
	tables := make([]*models.RawTable, 0, len(req.Indicators))
	for _, spec := range req.Indicators {
		table, err := f.FetchIndicator(ctx, req.Dataset, spec.Code, req.StartYear, req.EndYear)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// FetchIndicator fetches the annual series of one indicator for every country
func (f *IMFFetcher) FetchIndicator(ctx context.Context, dataset, code string, start, end int) (*models.RawTable, error) {
	url := fmt.Sprintf("%s/CompactData/%s/A..%s.", f.baseURL, dataset, code)
	body, err := f.get(ctx, models.SourceIMF, url, map[string]string{
		"startPeriod": strconv.Itoa(start),
		"endPeriod":   strconv.Itoa(end),
	})
	if err != nil {
		return nil, err
	}

	series, err := parseIMFSeries(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IMF response for %s/%s: %w", dataset, code, err)
	}

	log := logger.Component("fetchers")
	table := models.NewRawTable(models.SourceIMF, IMFColumns...)
	var regional, unresolved int
	for _, s := range series {
		if !isNumeric(s.RefArea) {
			regional++
			continue
		}
		iso := ""
		if f.resolver != nil {
			if c, ok := f.resolver.LookupWEO(s.RefArea); ok {
				iso = c.Code
			}
		}
		if iso == "" {
			unresolved++
			continue
		}

		var obs []models.IMFObservation
		if err := decodeOneOrMany(s.Obs, &obs); err != nil {
			return nil, fmt.Errorf("failed to parse IMF observations for %s: %w", s.RefArea, err)
		}
		indicator := s.Indicator
		if indicator == "" {
			indicator = code
		}
		for _, o := range obs {
			if err := table.Append(s.RefArea, iso, indicator, o.TimePeriod, o.ObsValue); err != nil {
				return nil, err
			}
		}
	}

	if unresolved > 0 {
		log.Warn("IMF series with unknown WEO codes dropped", logger.Fields{"indicator": code, "series": unresolved})
	}
	log.Info("IMF indicator fetched", logger.Fields{
		"dataset":   dataset,
		"indicator": code,
		"rows":      table.Len(),
		"regional":  regional,
	})
	return table, nil
}

func parseIMFSeries(body []byte) ([]models.IMFSeries, error) {
	var resp models.IMFCompactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	var series []models.IMFSeries
	if err := decodeOneOrMany(resp.CompactData.DataSet.Series, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// decodeOneOrMany decodes a JSON value that is an object for one element and
// an array for several. Missing or null values decode to an empty slice.
func decodeOneOrMany[T any](raw json.RawMessage, out *[]T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*out = nil
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*out = []T{one}
	return nil
}

func isNumeric(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
