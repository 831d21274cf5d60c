package selector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macroind/internal/classification"
	"macroind/internal/config"
	"macroind/internal/fetchers"
	"macroind/internal/models"
	"macroind/internal/normalizer"
	"macroind/internal/storage"
)

func country(code, name string, indicator string, year int, v *float64) models.Observation {
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

func fixture() []models.Observation {
	agg := models.Observation{
		Country:       "Europe",
		IndicatorCode: "GDP.CODE",
		Indicator:     "GDP",
		Year:          2020,
		Value:         models.Float(5),
		Region:        "Europe",
		Aggregate:     models.AttrRegion,
	}
	return []models.Observation{
		country("DEU", "Germany", "GDP", 2019, models.Float(1)),
		country("DEU", "Germany", "GDP", 2021, nil),
		country("FRA", "France", "GDP", 2020, models.Float(2)),
		country("FRA", "France", "POP", 2020, models.Float(3)),
		country("FRA", "France", "POP", 2020, models.Float(99)),
		agg,
	}
}

func TestSelectDenseGrid(t *testing.T) {
	s := New(fixture())
	grid := s.Select(models.SelectionQuery{
		Countries:  []string{"Germany", "FRA", "Europe"},
		StartYear:  2019,
		EndYear:    2021,
		Indicators: []string{"GDP", "POP"},
	})
	require.Len(t, grid.Rows, 18)

	// year, then indicator, then country
	first := grid.Rows[0]
	assert.Equal(t, 2019, first.Year)
	assert.Equal(t, "GDP", first.Indicator)
	assert.Equal(t, "Germany", first.Country)
	assert.Equal(t, 1.0, *first.Value)

	// FRA 2019 GDP has no row: descriptive columns come from the France partition
	fra := grid.Rows[1]
	assert.Nil(t, fra.Value)
	assert.Equal(t, "FRA", fra.CountryCode)
	assert.Equal(t, "France", fra.Country)
	assert.Equal(t, "Europe", fra.Region)
	assert.Equal(t, "GDP.CODE", fra.IndicatorCode)

	// Aggregate partition back-fills from 2020
	eu := grid.Rows[2]
	assert.Nil(t, eu.Value)
	assert.Equal(t, "Europe", eu.Country)
	assert.Equal(t, models.AttrRegion, eu.Aggregate)
	assert.Empty(t, eu.CountryCode)

	// POP 2020 for France: the first duplicate wins
	var pop *models.Observation
	for i, r := range grid.Rows {
		if r.Year == 2020 && r.Indicator == "POP" && r.CountryCode == "FRA" {
			pop = &grid.Rows[i]
		}
	}
	require.NotNil(t, pop)
	assert.Equal(t, 3.0, *pop.Value)

	// Germany POP never observed: indicator code comes from the POP partition
	deuPop := grid.Rows[3]
	assert.Equal(t, "POP", deuPop.Indicator)
	assert.Equal(t, "POP.CODE", deuPop.IndicatorCode)
	assert.Equal(t, "DEU", deuPop.CountryCode)
	assert.Nil(t, deuPop.Value)
}

func TestSelectUnknownEverything(t *testing.T) {
	grid := New(fixture()).Select(models.SelectionQuery{
		Countries:  []string{"Nowhereland"},
		StartYear:  2000,
		EndYear:    2001,
		Indicators: []string{"Nothing"},
	})
	require.Len(t, grid.Rows, 2)
	for _, r := range grid.Rows {
		assert.Nil(t, r.Value)
		assert.Equal(t, "Nowhereland", r.Country)
		assert.Equal(t, "Nothing", r.Indicator)
		assert.Empty(t, r.IndicatorCode)
	}
}

func TestSelectEmpty(t *testing.T) {
	s := New(fixture())
	tests := []struct {
		name string
		q    models.SelectionQuery
	}{
		{"start after end", models.SelectionQuery{Countries: []string{"Germany"}, Indicators: []string{"GDP"}, StartYear: 2021, EndYear: 2019}},
		{"no countries", models.SelectionQuery{Indicators: []string{"GDP"}, StartYear: 2019, EndYear: 2021}},
		{"no indicators", models.SelectionQuery{Countries: []string{"Germany"}, StartYear: 2019, EndYear: 2021}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, s.Select(tt.q).Rows)
		})
	}
}

func TestAvailableYearRange(t *testing.T) {
	s := New(fixture())

	// Germany 2021 has a null value and still extends the range
	lo, hi, err := s.AvailableYearRange("Germany")
	require.NoError(t, err)
	assert.Equal(t, 2019, lo)
	assert.Equal(t, 2021, hi)

	lo, hi, err = s.AvailableYearRange("FRA")
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2020}, []int{lo, hi})

	_, _, err = s.AvailableYearRange("Nowhereland")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDataForCountry))
	assert.Contains(t, err.Error(), "Nowhereland")
}

func TestAvailableYearRangeNullRows(t *testing.T) {
	s := New([]models.Observation{
		country("DEU", "Germany", "GDP", 2015, nil),
		country("DEU", "Germany", "GDP", 2020, models.Float(1)),
		country("SSD", "South Sudan", "GDP", 2019, nil),
	})

	lo, hi, err := s.AvailableYearRange("Germany")
	require.NoError(t, err)
	assert.Equal(t, []int{2015, 2020}, []int{lo, hi})

	lo, hi, err = s.AvailableYearRange("South Sudan")
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2019}, []int{lo, hi})
}

func TestIndicatorsAndCountries(t *testing.T) {
	s := New(fixture())
	assert.Equal(t, []string{"GDP", "POP"}, s.Indicators())
	assert.Equal(t, []string{"Germany", "France", "Europe"}, s.Countries())
	assert.Equal(t, 6, s.Len())
}

func TestConcurrentSelect(t *testing.T) {
	s := New(fixture())
	q := models.SelectionQuery{Countries: []string{"Germany", "France"}, StartYear: 2019, EndYear: 2021, Indicators: []string{"GDP"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, s.Select(q).Rows, 6)
		}()
	}
	wg.Wait()
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	client, err := storage.NewLocalStorageClient(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, normalizer.WriteCanonical(ctx, fixture(), client, "trade_data.csv"))

	s, err := Load(ctx, client, "trade_data.csv")
	require.NoError(t, err)
	assert.Equal(t, 6, s.Len())

	_, err = Load(ctx, client, "missing.csv")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Property: |rows| == |countries| x |indicators| x |years| for start <= end
func TestSelectRowCount(t *testing.T) {
	s := New(fixture())
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("grid is dense", prop.ForAll(
		func(countries, indicators []string, start, span int) bool {
			grid := s.Select(models.SelectionQuery{
				Countries:  countries,
				Indicators: indicators,
				StartYear:  start,
				EndYear:    start + span,
			})
			return len(grid.Rows) == len(countries)*len(indicators)*(span+1)
		},
		gen.SliceOf(gen.OneConstOf("Germany", "France", "DEU", "Europe", "Nowhereland")),
		gen.SliceOf(gen.OneConstOf("GDP", "POP", "GDP.CODE", "Nothing")),
		gen.IntRange(1990, 2030),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestNormalizeAndSelectGermany(t *testing.T) {
	raw := models.NewRawTable(models.SourceWorldBank, fetchers.WorldBankColumns...)
	raw.Rows = [][]string{
		{"DEU", "Germany", "POP", "2020", "83000000"},
		{"DEU", "Germany", "POP", "2021", ""},
	}
	obs, err := normalizer.NormalizeIndicator(raw, normalizer.WorldBankMapping([]config.IndicatorSpec{{Code: "POP", Name: "Population"}}))
	require.NoError(t, err)

	table, err := classification.Load("../../configs/country_classification.csv")
	require.NoError(t, err)
	canonical, err := normalizer.WithGroupAggregates(normalizer.AttachClassification(obs, table), models.AttrRegion, models.AttrIncomeGroup)
	require.NoError(t, err)

	grid := New(canonical).Select(models.SelectionQuery{
		Countries:  []string{"Germany"},
		StartYear:  2020,
		EndYear:    2021,
		Indicators: []string{"Population"},
	})
	require.Len(t, grid.Rows, 2)

	assert.Equal(t, 2020, grid.Rows[0].Year)
	assert.Equal(t, 83000000.0, *grid.Rows[0].Value)
	assert.Equal(t, 2021, grid.Rows[1].Year)
	assert.Nil(t, grid.Rows[1].Value)
	for _, r := range grid.Rows {
		assert.Equal(t, "DEU", r.CountryCode)
		assert.Equal(t, "Europe", r.Region)
		assert.Equal(t, "High income", r.IncomeGroup)
	}
}
