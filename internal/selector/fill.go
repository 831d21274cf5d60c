package selector

import "macroind/internal/models"

// field is one fillable column
type field struct {
	empty func(o *models.Observation) bool
	copy  func(dst, src *models.Observation)
}

func stringField(get func(o *models.Observation) *string) field {
	return field{
		empty: func(o *models.Observation) bool { return *get(o) == "" },
		copy:  func(dst, src *models.Observation) { *get(dst) = *get(src) },
	}
}

func flagField(get func(o *models.Observation) **bool) field {
	return field{
		empty: func(o *models.Observation) bool { return *get(o) == nil },
		copy:  func(dst, src *models.Observation) { *get(dst) = *get(src) },
	}
}

var indicatorFields = []field{
	stringField(func(o *models.Observation) *string { return &o.IndicatorCode }),
	stringField(func(o *models.Observation) *string { return &o.Indicator }),
}

var countryFields = []field{
	stringField(func(o *models.Observation) *string { return &o.Country }),
	stringField(func(o *models.Observation) *string { return &o.CountryCode }),
	stringField(func(o *models.Observation) *string { return &o.Region }),
	stringField(func(o *models.Observation) *string { return &o.SubRegion }),
	stringField(func(o *models.Observation) *string { return &o.IncomeGroup }),
	flagField(func(o *models.Observation) **bool { return &o.LDC }),
	flagField(func(o *models.Observation) **bool { return &o.LLDC }),
	flagField(func(o *models.Observation) **bool { return &o.SIDS }),
	{
		empty: func(o *models.Observation) bool { return o.Aggregate == "" },
		copy:  func(dst, src *models.Observation) { dst.Aggregate = src.Aggregate },
	},
}

// fillPartition forward fills then backward fills each field over the rows
// at positions part, which are in grid order. Columns are filled independently.
func fillPartition(rows []models.Observation, part []int, fields []field) {
	for _, f := range fields {
		last := -1
		for _, p := range part {
			if !f.empty(&rows[p]) {
				last = p
			} else if last >= 0 {
				f.copy(&rows[p], &rows[last])
			}
		}
		next := -1
		for i := len(part) - 1; i >= 0; i-- {
			p := part[i]
			if !f.empty(&rows[p]) {
				next = p
			} else if next >= 0 {
				f.copy(&rows[p], &rows[next])
			}
		}
	}
}
