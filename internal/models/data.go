package models

import (
	"math"
	"strconv"
)

// Observation is one value of one indicator for one country (or classification group) in one year
type Observation struct {
	CountryCode   string            `json:"country_code"`             // ISO alpha-3, empty for aggregate rows
	Country       string            `json:"country"`                  // Country name or aggregate label
	IndicatorCode string            `json:"indicator_code"`           // Provider code
	Indicator     string            `json:"indicator"`                // Canonical human label
	Year          int               `json:"year"`
	Value         *float64          `json:"value"`                    // nil when the provider has no value
	Region        string            `json:"region,omitempty"`
	SubRegion     string            `json:"sub_region,omitempty"`
	IncomeGroup   string            `json:"income_group,omitempty"`
	LDC           *bool             `json:"ldc,omitempty"`
	LLDC          *bool             `json:"lldc,omitempty"`
	SIDS          *bool             `json:"sids,omitempty"`
	Aggregate     GroupAttribute    `json:"aggregate,omitempty"`      // Attribute that produced a synthetic row
	Dimensions    map[string]string `json:"dimensions,omitempty"`     // Labelled auxiliary dimensions (SEX, AGE, ECO)
}

// IsAggregate reports whether the row was synthesized from a classification group
func (o Observation) IsAggregate() bool {
	return o.Aggregate != ""
}

// HasValue reports whether the observation carries a value
func (o Observation) HasValue() bool {
	return o.Value != nil
}

// CountryClassification holds the static reference attributes of one country
type CountryClassification struct {
	Code        string `json:"code"`         // ISO alpha-3
	Name        string `json:"name"`
	Region      string `json:"region"`
	SubRegion   string `json:"sub_region"`
	IncomeGroup string `json:"income_group"`
	LDC         bool   `json:"ldc"`
	LLDC        bool   `json:"lldc"`
	SIDS        bool   `json:"sids"`
	WEOCode     string `json:"weo_code,omitempty"` // IMF World Economic Outlook numeric code
}

// GroupAttribute names a classification attribute usable for enrichment and aggregation
type GroupAttribute string

const (
	AttrRegion      GroupAttribute = "region"
	AttrSubRegion   GroupAttribute = "sub_region"
	AttrIncomeGroup GroupAttribute = "income_group"
	AttrLDC         GroupAttribute = "ldc"
	AttrLLDC        GroupAttribute = "lldc"
	AttrSIDS        GroupAttribute = "sids"
)

// Group labels used when a boolean flag stands in for a country
const (
	LabelLDC  = "Least Developed Countries (LDC)"
	LabelLLDC = "Land Locked Developing Countries (LLDC)"
	LabelSIDS = "Small Island Developing States (SIDS)"
)

// GroupAttributes lists every supported attribute in canonical order
var GroupAttributes = []GroupAttribute{AttrRegion, AttrSubRegion, AttrIncomeGroup, AttrLDC, AttrLLDC, AttrSIDS}

// Valid reports whether the attribute is known
func (a GroupAttribute) Valid() bool {
	for _, known := range GroupAttributes {
		if a == known {
			return true
		}
	}
	return false
}

// Label returns the group label of an observation for this attribute.
// Boolean flags yield their fixed label when set and "" otherwise.
func (a GroupAttribute) Label(o Observation) string {
	switch a {
	case AttrRegion:
		return o.Region
	case AttrSubRegion:
		return o.SubRegion
	case AttrIncomeGroup:
		return o.IncomeGroup
	case AttrLDC:
		return flagLabel(o.LDC, LabelLDC)
	case AttrLLDC:
		return flagLabel(o.LLDC, LabelLLDC)
	case AttrSIDS:
		return flagLabel(o.SIDS, LabelSIDS)
	default:
		return ""
	}
}

func flagLabel(flag *bool, label string) string {
	if flag != nil && *flag {
		return label
	}
	return ""
}

// SelectionQuery describes one dense-grid request
type SelectionQuery struct {
	Countries  []string `json:"countries"`
	StartYear  int      `json:"start_year"`
	EndYear    int      `json:"end_year"`
	Indicators []string `json:"indicators"`
}

// Years returns the inclusive year range of the query, empty when start > end
func (q SelectionQuery) Years() []int {
	if q.StartYear > q.EndYear {
		return nil
	}
	years := make([]int, 0, q.EndYear-q.StartYear+1)
	for y := q.StartYear; y <= q.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// SelectionGrid is the dense years x indicators x countries table handed to charts
type SelectionGrid struct {
	Query SelectionQuery `json:"query"`
	Rows  []Observation  `json:"rows"`
}

// Series returns the yearly values of one indicator for one country, in grid order
func (g *SelectionGrid) Series(indicator, country string) ([]int, []*float64) {
	var years []int
	var values []*float64
	for _, row := range g.Rows {
		if row.Indicator == indicator && row.Country == country {
			years = append(years, row.Year)
			values = append(values, row.Value)
		}
	}
	return years, values
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// FormatValue renders a nullable value the way the canonical files do
func FormatValue(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
