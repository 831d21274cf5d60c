package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macroind/internal/models"
)

func TestLoadShippedDomains(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "configs", "domains", "*.yaml"))
	require.NoError(t, err)
	require.Len(t, files, 4)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			d, err := LoadDomain(f)
			require.NoError(t, err)
			assert.NotEmpty(t, d.Description)
			assert.NotEmpty(t, d.IndicatorNames())
		})
	}
}

func TestEmploymentDomain(t *testing.T) {
	d, err := LoadDomain(filepath.Join("..", "..", "configs", "domains", "employment.yaml"))
	require.NoError(t, err)

	var youth IndicatorSpec
	for _, s := range d.ILO {
		if s.Name == "Youth unemployment, female" {
			youth = s
		}
	}
	assert.Equal(t, "UNE_DEAP_SEX_AGE_RT.AGE_YTHADULT_Y15-24.SEX_F", youth.SeriesCode())
	assert.Equal(t, 1.0, youth.Scale())
	assert.Equal(t, "Female", d.DimensionLabels["SEX_F"])
	assert.Contains(t, d.AggregateAttributes(), models.AttrSubRegion)
}

func TestProductionDomainDerivesGrowth(t *testing.T) {
	d, err := LoadDomain(filepath.Join("..", "..", "configs", "domains", "production.yaml"))
	require.NoError(t, err)
	require.NotNil(t, d.IMF)
	assert.Equal(t, "PGCS", d.IMF.Dataset)
	require.Len(t, d.Derived, 1)
	assert.Equal(t, DerivedSpec{Kind: DerivedGrowth, Source: "NY.GDP.MKTP.PP.KD", Code: "GDP Growth", Name: "GDP Growth"}, d.Derived[0])
}

func TestSeriesCode(t *testing.T) {
	assert.Equal(t, "SP.POP.TOTL", IndicatorSpec{Code: "SP.POP.TOTL"}.SeriesCode())
	assert.Equal(t, "EMP_TEMP_SEX_ECO_NB.ECO_ISIC4_C.SEX_T", IndicatorSpec{
		Code:   "EMP_TEMP_SEX_ECO_NB",
		Filter: map[string]string{"SEX": "SEX_T", "ECO": "ECO_ISIC4_C"},
	}.SeriesCode())
}

func TestParseDomainValidation(t *testing.T) {
	base := `
name: t
start_year: 2000
end_year: 2001
output: t.csv
worldbank:
  - {code: A, name: Alpha}
`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing name", "start_year: 2000\nend_year: 2001\noutput: x.csv\nworldbank: [{code: A, name: A}]", "name is required"},
		{"reversed years", "name: t\nstart_year: 2005\nend_year: 2001\noutput: x.csv\nworldbank: [{code: A, name: A}]", "after end_year"},
		{"no indicators", "name: t\nstart_year: 2000\nend_year: 2001\noutput: x.csv", "requests no indicators"},
		{"duplicate code", base + "  - {code: A, name: Again}\n", "is used by"},
		{"filter outside ilo", base + "  - {code: B, name: B, filter: {SEX: SEX_T}}\n", "only supported for ILO"},
		{"negative multiplier", base + "  - {code: B, name: B, multiplier: -1}\n", "negative multiplier"},
		{"unknown derived kind", base + "derived: [{kind: ratio, source: A, code: R, name: R}]\n", "unknown derived kind"},
		{"derived unknown source", base + "derived: [{kind: growth, source: Z, code: G, name: G}]\n", "unknown indicator"},
		{"derived collision", base + "derived: [{kind: growth, source: A, code: A, name: G}]\n", "collides"},
		{"unknown aggregate", base + "aggregates: [continent]\n", "unknown aggregate"},
		{"imf without dataset", base + "imf: {indicators: [{code: rnna, name: K}]}\n", "imf.dataset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDomain([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDomain), err.Error())
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseDomain([]byte(base + "colour: blue\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})

	t.Run("valid", func(t *testing.T) {
		d, err := ParseDomain([]byte(base))
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha"}, d.IndicatorNames())
	})
}

func TestLoadDomainMissingFile(t *testing.T) {
	_, err := LoadDomain(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
