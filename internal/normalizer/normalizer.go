// Package normalizer turns provider tables into the canonical long-format dataset.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"macroind/internal/models"
)

// Precision is the number of decimals every canonical value carries
const Precision = 2

// Columns names the provider columns that hold each canonical field
type Columns struct {
	CountryCode   string
	Country       string // optional
	IndicatorCode string
	Year          string
	Value         string
	Dimensions    []string
}

// Indicator is the canonical identity and unit scale of one provider series
type Indicator struct {
	Code       string
	Name       string
	Multiplier float64
}

// IndicatorMapping tells NormalizeIndicator how to read one provider table
type IndicatorMapping struct {
	Columns Columns

	// Indicators is keyed by the value found in the indicator code column
	Indicators map[string]Indicator

	// DimensionLabels maps dimension codes to readable labels; nil keeps raw codes
	DimensionLabels map[string]string
}

// Round rounds half to even at Precision decimals
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).RoundBank(Precision).Float64()
	return f
}

// ParseValue reads a provider value cell; missing markers yield nil
func ParseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "..", "nan", "null", "na", "n/a", "none":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse value %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return &v, nil
}

// ParseYear reads an annual period: "2019", "2019.0" or a date starting with the year
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil {
		return y, nil
	}
	if head, tail, ok := strings.Cut(s, "."); ok && strings.Trim(tail, "0") == "" {
		if y, err := strconv.Atoi(head); err == nil {
			return y, nil
		}
	}
	if len(s) > 4 && s[4] == '-' {
		if y, err := strconv.Atoi(s[:4]); err == nil {
			return y, nil
		}
	}
	return 0, fmt.Errorf("failed to parse year %q", s)
}

// NormalizeIndicator maps a raw provider table onto canonical observations.
// Rows whose indicator code is not in the mapping are skipped. A missing
// required column yields *models.MissingColumnError.
func NormalizeIndicator(raw *models.RawTable, mapping IndicatorMapping) ([]models.Observation, error) {
	if raw == nil {
		return nil, nil
	}

	col := func(name string) (int, error) {
		i := raw.ColumnIndex(name)
		if i < 0 {
			return -1, &models.MissingColumnError{Source: raw.Source, Column: name}
		}
		return i, nil
	}

	codeIdx, err := col(mapping.Columns.CountryCode)
	if err != nil {
		return nil, err
	}
	indIdx, err := col(mapping.Columns.IndicatorCode)
	if err != nil {
		return nil, err
	}
	yearIdx, err := col(mapping.Columns.Year)
	if err != nil {
		return nil, err
	}
	valIdx, err := col(mapping.Columns.Value)
	if err != nil {
		return nil, err
	}
	nameIdx := -1
	if mapping.Columns.Country != "" {
		if nameIdx, err = col(mapping.Columns.Country); err != nil {
			return nil, err
		}
	}
	dimIdx := make([]int, len(mapping.Columns.Dimensions))
	for i, d := range mapping.Columns.Dimensions {
		if dimIdx[i], err = col(d); err != nil {
			return nil, err
		}
	}

	out := make([]models.Observation, 0, len(raw.Rows))
	for n, row := range raw.Rows {
		if len(row) < len(raw.Columns) {
			return nil, fmt.Errorf("%s row %d: has %d cells, want %d", raw.Source, n+1, len(row), len(raw.Columns))
		}
		ind, ok := mapping.Indicators[strings.TrimSpace(row[indIdx])]
		if !ok {
			continue
		}

		year, err := ParseYear(row[yearIdx])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", raw.Source, n+1, err)
		}
		value, err := ParseValue(row[valIdx])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", raw.Source, n+1, err)
		}
		if value != nil {
			v := *value
			if ind.Multiplier != 0 {
				v *= ind.Multiplier
			}
			v = Round(v)
			value = &v
		}

		obs := models.Observation{
			CountryCode:   strings.ToUpper(strings.TrimSpace(row[codeIdx])),
			IndicatorCode: ind.Code,
			Indicator:     ind.Name,
			Year:          year,
			Value:         value,
		}
		if nameIdx >= 0 {
			obs.Country = strings.TrimSpace(row[nameIdx])
		}
		if len(dimIdx) > 0 {
			obs.Dimensions = make(map[string]string, len(dimIdx))
			for i, idx := range dimIdx {
				code := strings.TrimSpace(row[idx])
				if label, ok := mapping.DimensionLabels[code]; ok {
					code = label
				}
				obs.Dimensions[mapping.Columns.Dimensions[i]] = code
			}
		}
		out = append(out, obs)
	}
	return out, nil
}
