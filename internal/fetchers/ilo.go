package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"macroind/internal/config"
	"macroind/internal/logger"
	"macroind/internal/models"
)

// ILO raw table columns; filtered dimensions follow under their own IDs
const (
	ILOColumnCountryCode = "REF_AREA"
	ILOColumnIndicator   = "INDICATOR"
	ILOColumnYear        = "TIME_PERIOD"
	ILOColumnValue       = "OBS_VALUE"

	iloFrequency = "A"
)

// ILOFetcher reads annual series from the ILO SDMX REST API
type ILOFetcher struct {
	httpSource
	baseURL string
}

// NewILOFetcher creates an ILO fetcher
func NewILOFetcher(base httpSource, baseURL string) *ILOFetcher {
	return &ILOFetcher{httpSource: base, baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *ILOFetcher) Name() string { return models.SourceILO }

// ILOColumns returns the table layout for one configured series
func ILOColumns(spec config.IndicatorSpec) []string {
	return append([]string{ILOColumnCountryCode, ILOColumnIndicator, ILOColumnYear, ILOColumnValue}, spec.FilterKeys()...)
}

// Fetch returns one table per configured series
func (f *ILOFetcher) Fetch(ctx context.Context, req Request) ([]*models.RawTable, error) {
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

// FetchIndicator fetches one dataflow restricted to the series filter
func (f *ILOFetcher) FetchIndicator(ctx context.Context, spec config.IndicatorSpec, start, end int) (*models.RawTable, error) {
	url := fmt.Sprintf("%s/data/ILO,DF_%s/%s", f.baseURL, spec.Code, SeriesKey(spec))
	body, err := f.get(ctx, models.SourceILO, url, map[string]string{
		"startPeriod": strconv.Itoa(start),
		"endPeriod":   strconv.Itoa(end),
		"format":      "jsondata",
		"detail":      "dataonly",
	})
	if err != nil {
		return nil, err
	}

	var msg models.SDMXMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse ILO response for %s: %w", spec.SeriesCode(), err)
	}

	table, err := parseSDMX(&msg, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ILO response for %s: %w", spec.SeriesCode(), err)
	}

	logger.Component("fetchers").Info("ILO series fetched", logger.Fields{
		"indicator": spec.SeriesCode(),
		"rows":      table.Len(),
	})
	return table, nil
}

// SeriesKey builds the SDMX key REF_AREA.FREQ.MEASURE.<classifications>.
// Classification dimensions follow the order they appear in the indicator
// code (SEX before AGE in UNE_DEAP_SEX_AGE_RT); dimensions the code does not
// name come last in sorted order. An unfiltered series uses "all".
func SeriesKey(spec config.IndicatorSpec) string {
	if len(spec.Filter) == 0 {
		return "all"
	}
	parts := []string{"", iloFrequency, ""}
	for _, dim := range dimensionOrder(spec) {
		parts = append(parts, spec.Filter[dim])
	}
	return strings.Join(parts, ".")
}

func dimensionOrder(spec config.IndicatorSpec) []string {
	tokens := strings.Split(strings.ToUpper(spec.Code), "_")
	position := func(dim string) int {
		for i, t := range tokens {
			if t == strings.ToUpper(dim) {
				return i
			}
		}
		return len(tokens)
	}

	keys := spec.FilterKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		return position(keys[i]) < position(keys[j])
	})
	return keys
}

func parseSDMX(msg *models.SDMXMessage, spec config.IndicatorSpec) (*models.RawTable, error) {
	structure, dataSets := msg.Structure, msg.DataSets
	if msg.Data != nil {
		structure, dataSets = msg.Data.Structure, msg.Data.DataSets
	}

	table := models.NewRawTable(models.SourceILO, ILOColumns(spec)...)
	if len(dataSets) == 0 {
		return table, nil
	}
	if structure == nil {
		return nil, fmt.Errorf("message has data but no structure")
	}

	seriesDims := structure.Dimensions.Series
	obsDims := structure.Dimensions.Observation
	if len(obsDims) == 0 {
		return nil, fmt.Errorf("message has no observation dimension")
	}
	timeDim := obsDims[0]

	filterKeys := spec.FilterKeys()
	seriesCode := spec.SeriesCode()

	seriesKeys := make([]string, 0, len(dataSets[0].Series))
	for k := range dataSets[0].Series {
		seriesKeys = append(seriesKeys, k)
	}
	sort.Strings(seriesKeys)

	for _, sk := range seriesKeys {
		codes, err := decodeSeriesKey(sk, seriesDims)
		if err != nil {
			return nil, err
		}
		if freq, ok := codes["FREQ"]; ok && freq != iloFrequency {
			continue
		}
		if !matchesFilter(codes, spec.Filter) {
			continue
		}
		area := codes[ILOColumnCountryCode]
		if area == "" {
			continue
		}

		series := dataSets[0].Series[sk]
		for _, pk := range sortedPositions(series.Observations) {
			pos, _ := strconv.Atoi(pk)
			if pos < 0 || pos >= len(timeDim.Values) {
				return nil, fmt.Errorf("observation position %d out of range for %s", pos, timeDim.ID)
			}
			value, err := sdmxValue(series.Observations[pk])
			if err != nil {
				return nil, fmt.Errorf("series %s period %s: %w", sk, timeDim.Values[pos].ID, err)
			}

			row := []string{area, seriesCode, timeDim.Values[pos].ID, value}
			for _, dim := range filterKeys {
				code, found := codes[dim]
				if !found {
					code = spec.Filter[dim]
				}
				row = append(row, code)
			}
			if err := table.Append(row...); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

// decodeSeriesKey maps "0:3:1" positions onto dimension IDs and codes
func decodeSeriesKey(key string, dims []models.SDMXDimension) (map[string]string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != len(dims) {
		return nil, fmt.Errorf("series key %q has %d positions, structure has %d dimensions", key, len(parts), len(dims))
	}
	codes := make(map[string]string, len(parts))
	for i, p := range parts {
		pos, err := strconv.Atoi(p)
		if err != nil || pos < 0 || pos >= len(dims[i].Values) {
			return nil, fmt.Errorf("invalid position %q for dimension %s", p, dims[i].ID)
		}
		codes[dims[i].ID] = dims[i].Values[pos].ID
	}
	return codes, nil
}

func matchesFilter(codes, filter map[string]string) bool {
	for dim, want := range filter {
		if got, ok := codes[dim]; ok && got != want {
			return false
		}
	}
	return true
}

func sortedPositions(obs map[string][]json.RawMessage) []string {
	keys := make([]string, 0, len(obs))
	for k := range obs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

// sdmxValue renders the first observation attribute, a number, string or null
func sdmxValue(obs []json.RawMessage) (string, error) {
	if len(obs) == 0 {
		return "", nil
	}
	raw := strings.TrimSpace(string(obs[0]))
	if raw == "" || raw == "null" {
		return "", nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(obs[0], &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return "", fmt.Errorf("invalid observation value %s", raw)
	}
	return raw, nil
}
