// Package selector builds dense year x indicator x country grids from the canonical dataset.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"macroind/internal/dataset"
	"macroind/internal/models"
	"macroind/internal/storage"
)

// ErrNoDataForCountry is returned when a country has no observed value
var ErrNoDataForCountry = errors.New("no data for country")

type cellKey struct {
	country   string
	indicator string
	year      int
}

// Selector is an immutable index over one canonical dataset. It is safe for
// concurrent use.
type Selector struct {
	rows       []models.Observation
	cells      map[cellKey]int
	indicators []string
	countries  []string
}

// New indexes obs. Countries are addressable by name, aggregate label or ISO
// code and indicators by name or code; the first row in dataset order wins.
func New(obs []models.Observation) *Selector {
	s := &Selector{
		rows:  obs,
		cells: make(map[cellKey]int, len(obs)*2),
	}
	seenInd := make(map[string]bool)
	seenCountry := make(map[string]bool)

	for i, o := range obs {
		for _, c := range []string{o.Country, o.CountryCode} {
			if c == "" {
				continue
			}
			for _, ind := range []string{o.Indicator, o.IndicatorCode} {
				if ind == "" {
					continue
				}
				k := cellKey{country: c, indicator: ind, year: o.Year}
				if _, ok := s.cells[k]; !ok {
					s.cells[k] = i
				}
			}
		}
		if o.Indicator != "" && !seenInd[o.Indicator] {
			seenInd[o.Indicator] = true
			s.indicators = append(s.indicators, o.Indicator)
		}
		if o.Country != "" && !seenCountry[o.Country] {
			seenCountry[o.Country] = true
			s.countries = append(s.countries, o.Country)
		}
	}
	return s
}

// Load reads a canonical file from storage and indexes it
func Load(ctx context.Context, client storage.StorageClient, name string) (*Selector, error) {
	data, err := client.GetFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	obs, err := dataset.Unmarshal(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", name, err)
	}
	return New(obs), nil
}

// Len returns the number of indexed rows
func (s *Selector) Len() int {
	return len(s.rows)
}

// Observations returns a copy of the indexed rows in dataset order
func (s *Selector) Observations() []models.Observation {
	return append([]models.Observation(nil), s.rows...)
}

// Indicators returns distinct indicator names in first-seen order
func (s *Selector) Indicators() []string {
	return append([]string(nil), s.indicators...)
}

// Countries returns distinct country names and aggregate labels in first-seen order
func (s *Selector) Countries() []string {
	return append([]string(nil), s.countries...)
}

// Select returns the dense grid for q: one row per year, indicator and
// country in that order, whether or not the dataset has a value for it.
// Descriptive columns are forward then backward filled per partition;
// Value is never filled.
func (s *Selector) Select(q models.SelectionQuery) models.SelectionGrid {
	grid := models.SelectionGrid{Query: q}
	years := q.Years()
	if len(years) == 0 || len(q.Countries) == 0 || len(q.Indicators) == 0 {
		return grid
	}

	nInd, nCountry := len(q.Indicators), len(q.Countries)
	rows := make([]models.Observation, 0, len(years)*nInd*nCountry)
	for _, y := range years {
		for _, ind := range q.Indicators {
			ind = strings.TrimSpace(ind)
			for _, c := range q.Countries {
				c = strings.TrimSpace(c)
				if i, ok := s.cells[cellKey{country: c, indicator: ind, year: y}]; ok {
					row := s.rows[i]
					row.Year = y
					rows = append(rows, row)
					continue
				}
				rows = append(rows, models.Observation{Year: y})
			}
		}
	}

	// Position p in the grid belongs to indicator (p / nCountry) % nInd and country p % nCountry
	byIndicator := make([][]int, nInd)
	byCountry := make([][]int, nCountry)
	for p := range rows {
		byIndicator[(p/nCountry)%nInd] = append(byIndicator[(p/nCountry)%nInd], p)
		byCountry[p%nCountry] = append(byCountry[p%nCountry], p)
	}
	for i, part := range byIndicator {
		fillPartition(rows, part, indicatorFields)
		for _, p := range part {
			if rows[p].Indicator == "" {
				rows[p].Indicator = strings.TrimSpace(q.Indicators[i])
			}
		}
	}
	for c, part := range byCountry {
		fillPartition(rows, part, countryFields)
		for _, p := range part {
			if rows[p].Country == "" {
				rows[p].Country = strings.TrimSpace(q.Countries[c])
			}
		}
	}

	grid.Rows = rows
	return grid
}

// AvailableYearRange returns the first and last year of country's rows,
// matched by name, aggregate label or ISO code. Null-valued rows count.
func (s *Selector) AvailableYearRange(country string) (int, int, error) {
	country = strings.TrimSpace(country)
	lo, hi, found := 0, 0, false
	for _, o := range s.rows {
		if o.Country != country && (o.CountryCode == "" || o.CountryCode != country) {
			continue
		}
		if !found || o.Year < lo {
			lo = o.Year
		}
		if !found || o.Year > hi {
			hi = o.Year
		}
		found = true
	}
	if !found {
		return 0, 0, fmt.Errorf("%w: %q", ErrNoDataForCountry, country)
	}
	return lo, hi, nil
}
