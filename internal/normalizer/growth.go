package normalizer

import (
	"macroind/internal/models"
)

// Growth derives a year-over-year percent change series from SourceCode
type Growth struct {
	SourceCode string
	Code       string
	Name       string
}

type countryYear struct {
	country string
	year    int
}

// ComputeGrowth emits ((v / v_prev) - 1) * 100 for every country and year
// where both values are present and the previous one is non-zero. The new
// rows copy every other column of the current year's row.
func ComputeGrowth(obs []models.Observation, g Growth) []models.Observation {
	prev := make(map[countryYear]float64)
	for _, o := range obs {
		if o.IndicatorCode == g.SourceCode && o.HasValue() && !o.IsAggregate() {
			prev[countryYear{o.CountryCode, o.Year}] = *o.Value
		}
	}

	var out []models.Observation
	for _, o := range obs {
		if o.IndicatorCode != g.SourceCode || !o.HasValue() || o.IsAggregate() {
			continue
		}
		p, ok := prev[countryYear{o.CountryCode, o.Year - 1}]
		if !ok || p == 0 {
			continue
		}
		row := o
		row.IndicatorCode = g.Code
		row.Indicator = g.Name
		row.Value = models.Float(Round((*o.Value/p - 1) * 100))
		out = append(out, row)
	}
	return out
}
