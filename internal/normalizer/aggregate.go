package normalizer

import (
	"fmt"
	"sort"

	"macroind/internal/models"
)

type groupKey struct {
	label     string
	indicator string
	year      int
}

type groupAcc struct {
	first models.Observation
	sum   float64
	n     int
}

// ComputeGroupAggregates averages country values per (label, indicator, year)
// for one classification attribute. Nulls are ignored; a group whose members
// are all null yields a null value. Countries with an empty label or a false
// flag belong to no group. Existing aggregate rows are never re-aggregated.
func ComputeGroupAggregates(obs []models.Observation, attr models.GroupAttribute) ([]models.Observation, error) {
	if !attr.Valid() {
		return nil, fmt.Errorf("unknown group attribute %q", attr)
	}

	groups := make(map[groupKey]*groupAcc)
	for _, o := range obs {
		if o.IsAggregate() {
			continue
		}
		label := attr.Label(o)
		if label == "" {
			continue
		}
		k := groupKey{label: label, indicator: o.Indicator, year: o.Year}
		acc, ok := groups[k]
		if !ok {
			acc = &groupAcc{first: o}
			groups[k] = acc
		}
		if o.Value != nil {
			acc.sum += *o.Value
			acc.n++
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.label != b.label {
			return a.label < b.label
		}
		if a.indicator != b.indicator {
			return a.indicator < b.indicator
		}
		return a.year < b.year
	})

	out := make([]models.Observation, 0, len(keys))
	for _, k := range keys {
		acc := groups[k]
		row := models.Observation{
			Country:       k.label,
			IndicatorCode: acc.first.IndicatorCode,
			Indicator:     k.indicator,
			Year:          k.year,
			Aggregate:     attr,
			Dimensions:    acc.first.Dimensions,
		}
		if acc.n > 0 {
			row.Value = models.Float(Round(acc.sum / float64(acc.n)))
		}
		switch attr {
		case models.AttrRegion:
			row.Region = k.label
		case models.AttrSubRegion:
			row.Region = acc.first.Region
			row.SubRegion = k.label
		case models.AttrIncomeGroup:
			row.IncomeGroup = k.label
		case models.AttrLDC:
			row.LDC = models.Bool(true)
		case models.AttrLLDC:
			row.LLDC = models.Bool(true)
		case models.AttrSIDS:
			row.SIDS = models.Bool(true)
		}
		out = append(out, row)
	}
	return out, nil
}

// WithGroupAggregates returns the country rows of obs followed by the
// aggregates of every attribute, in attribute order.
func WithGroupAggregates(obs []models.Observation, attrs ...models.GroupAttribute) ([]models.Observation, error) {
	countries := make([]models.Observation, 0, len(obs))
	for _, o := range obs {
		if !o.IsAggregate() {
			countries = append(countries, o)
		}
	}

	out := append([]models.Observation(nil), countries...)
	for _, attr := range attrs {
		agg, err := ComputeGroupAggregates(countries, attr)
		if err != nil {
			return nil, err
		}
		out = append(out, agg...)
	}
	return out, nil
}
