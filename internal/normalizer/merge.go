package normalizer

import (
	"macroind/internal/models"
)

// ClassificationLookup resolves ISO alpha-3 codes to reference rows
type ClassificationLookup interface {
	Lookup(code string) (models.CountryClassification, bool)
}

// MergeSources concatenates observation sets in order. Duplicates are kept.
func MergeSources(sets ...[]models.Observation) []models.Observation {
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	out := make([]models.Observation, 0, total)
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// AttachClassification inner-joins observations with the classification table.
// Rows without a matching country code are dropped; name and classification
// columns are overwritten from the table, so applying it twice is a no-op.
func AttachClassification(obs []models.Observation, table ClassificationLookup) []models.Observation {
	out := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		c, ok := table.Lookup(o.CountryCode)
		if !ok {
			continue
		}
		o.CountryCode = c.Code
		o.Country = c.Name
		o.Region = c.Region
		o.SubRegion = c.SubRegion
		o.IncomeGroup = c.IncomeGroup
		o.LDC = models.Bool(c.LDC)
		o.LLDC = models.Bool(c.LLDC)
		o.SIDS = models.Bool(c.SIDS)
		o.Aggregate = ""
		out = append(out, o)
	}
	return out
}
