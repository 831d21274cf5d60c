package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macroind/internal/config"
	"macroind/internal/fetchers"
	"macroind/internal/models"
)

type stubSource struct {
	tables []*models.RawTable
}

func (s *stubSource) Name() string { return models.SourceILO }

func (s *stubSource) Fetch(ctx context.Context, req fetchers.Request) ([]*models.RawTable, error) {
	return s.tables, nil
}

func TestFixtureRoundTripAndYearFilter(t *testing.T) {
	m := NewMockService(t.TempDir())
	spec := config.IndicatorSpec{Code: "NE.TRD.GNFS.ZS", Name: "Trade (% of GDP)"}

	table := models.NewRawTable(models.SourceWorldBank, fetchers.WorldBankColumns...)
	table.Rows = [][]string{
		{"DEU", "Germany", "NE.TRD.GNFS.ZS", "1999", "60"},
		{"DEU", "Germany", "NE.TRD.GNFS.ZS", "2000", "61"},
		{"DEU", "Germany", "NE.TRD.GNFS.ZS", "2001", "62"},
	}
	require.NoError(t, m.SaveTable(models.SourceWorldBank, spec, table))

	tables, err := m.Source(models.SourceWorldBank).Fetch(context.Background(), fetchers.Request{
		StartYear:  2000,
		EndYear:    2001,
		Indicators: []config.IndicatorSpec{spec},
	})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, table.Rows[1:], tables[0].Rows)
	assert.Equal(t, fetchers.WorldBankColumns, tables[0].Columns)
}

func TestMissingFixtureIsEmpty(t *testing.T) {
	m := NewMockService(t.TempDir())
	spec := config.IndicatorSpec{Code: "UNE_DEAP_SEX_AGE_RT", Filter: map[string]string{"SEX": "SEX_T"}}

	table, err := m.LoadTable(models.SourceILO, spec)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, fetchers.ILOColumns(spec), table.Columns)

	imf, err := m.LoadTable(models.SourceIMF, config.IndicatorSpec{Code: "rnna"})
	require.NoError(t, err)
	assert.Equal(t, fetchers.IMFColumns, imf.Columns)
}

func TestFixturePath(t *testing.T) {
	m := NewMockService("fixtures")
	spec := config.IndicatorSpec{Code: "UNE_DEAP_SEX_AGE_RT", Filter: map[string]string{"SEX": "SEX_F", "AGE": "AGE_YTHADULT_Y15-24"}}
	assert.Equal(t, "fixtures/ilo/UNE_DEAP_SEX_AGE_RT.AGE_YTHADULT_Y15-24.SEX_F.json", m.FixturePath(models.SourceILO, spec))
	assert.Equal(t, "fixtures/worldbank/UNE_DEAP_SEX_AGE_RT.json", m.FixturePath(models.SourceWorldBank, spec))
}

func TestRecorder(t *testing.T) {
	m := NewMockService(t.TempDir())
	spec := config.IndicatorSpec{Code: "LAP_2GDP_NOC_RT"}
	live := models.NewRawTable(models.SourceILO, fetchers.ILOColumns(spec)...)
	live.Rows = [][]string{{"KEN", "LAP_2GDP_NOC_RT", "2019", "36.1"}}

	rec := NewRecorder(&stubSource{tables: []*models.RawTable{live}}, m)
	assert.Equal(t, models.SourceILO, rec.Name())

	_, err := rec.Fetch(context.Background(), fetchers.Request{StartYear: 2019, EndYear: 2019, Indicators: []config.IndicatorSpec{spec}})
	require.NoError(t, err)

	saved, err := m.LoadTable(models.SourceILO, spec)
	require.NoError(t, err)
	assert.Equal(t, live, saved)
}

func TestShippedFixturesRunOffline(t *testing.T) {
	domain, err := config.LoadDomain("../../configs/domains/trade.yaml")
	require.NoError(t, err)

	m := NewMockService("../../testdata/mock")
	tables, err := m.Sources().WorldBank.Fetch(context.Background(), fetchers.Request{
		StartYear:  domain.StartYear,
		EndYear:    domain.EndYear,
		Indicators: domain.WorldBank,
	})
	require.NoError(t, err)
	require.Len(t, tables, len(domain.WorldBank))

	total := 0
	for _, tbl := range tables {
		total += tbl.Len()
	}
	assert.Greater(t, total, 0)
}
