package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"macroind/internal/models"
)

// DerivedGrowth is the only derived indicator kind: year-over-year percent change
const DerivedGrowth = "growth"

// ErrInvalidDomain is wrapped by every domain validation failure
var ErrInvalidDomain = errors.New("invalid domain config")

// DomainConfig describes one indicator collection (employment, income, production, trade)
type DomainConfig struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"` // Markdown shown on the about page
	StartYear   int    `yaml:"start_year"`
	EndYear     int    `yaml:"end_year"`
	Output      string `yaml:"output"` // Object name of the canonical file, extension selects the format

	WorldBank []IndicatorSpec `yaml:"worldbank"`
	ILO       []IndicatorSpec `yaml:"ilo"`
	IMF       *IMFSpec        `yaml:"imf"`

	// DimensionLabels maps ILO dimension codes (SEX_T, ECO_ISIC4_A) to readable labels
	DimensionLabels map[string]string `yaml:"dimension_labels"`

	Derived    []DerivedSpec `yaml:"derived"`
	Aggregates []string      `yaml:"aggregates"`
}

// IndicatorSpec is one requested provider series
type IndicatorSpec struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`

	// Filter holds SDMX dimension constraints (SEX: SEX_T, AGE: ...), ILO only
	Filter map[string]string `yaml:"filter,omitempty"`

	// Multiplier converts provider units into canonical units, 0 means 1
	Multiplier float64 `yaml:"multiplier,omitempty"`
}

// IMFSpec lists the IMF series of one CompactData dataset
type IMFSpec struct {
	Dataset    string          `yaml:"dataset"`
	Indicators []IndicatorSpec `yaml:"indicators"`
}

// DerivedSpec computes a new indicator from an existing one
type DerivedSpec struct {
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"` // Indicator code the derivation reads
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
}

// FilterKeys returns the filter dimension ids in sorted order
func (s IndicatorSpec) FilterKeys() []string {
	keys := make([]string, 0, len(s.Filter))
	for k := range s.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SeriesCode is the canonical indicator code: the provider code, followed by
// the filter values in dimension order when the series is filtered.
func (s IndicatorSpec) SeriesCode() string {
	if len(s.Filter) == 0 {
		return s.Code
	}
	parts := []string{s.Code}
	for _, k := range s.FilterKeys() {
		parts = append(parts, s.Filter[k])
	}
	return strings.Join(parts, ".")
}

// Scale returns the effective multiplier
func (s IndicatorSpec) Scale() float64 {
	if s.Multiplier == 0 {
		return 1
	}
	return s.Multiplier
}

// AggregateAttributes converts the configured aggregate names
func (d *DomainConfig) AggregateAttributes() []models.GroupAttribute {
	attrs := make([]models.GroupAttribute, 0, len(d.Aggregates))
	for _, a := range d.Aggregates {
		attrs = append(attrs, models.GroupAttribute(a))
	}
	return attrs
}

// IndicatorNames returns every configured indicator name, derived ones last
func (d *DomainConfig) IndicatorNames() []string {
	var names []string
	for _, s := range d.WorldBank {
		names = append(names, s.Name)
	}
	for _, s := range d.ILO {
		names = append(names, s.Name)
	}
	if d.IMF != nil {
		for _, s := range d.IMF.Indicators {
			names = append(names, s.Name)
		}
	}
	for _, s := range d.Derived {
		names = append(names, s.Name)
	}
	return names
}

// LoadDomain reads and validates a domain YAML file
func LoadDomain(path string) (*DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain config %s: %w", path, err)
	}
	domain, err := ParseDomain(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain config %s: %w", path, err)
	}
	return domain, nil
}

// ParseDomain decodes a domain document, rejecting unknown keys
func ParseDomain(data []byte) (*DomainConfig, error) {
	var domain DomainConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&domain); err != nil {
		return nil, fmt.Errorf("failed to parse domain config: %w", err)
	}
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	return &domain, nil
}

// Validate checks the domain for internal consistency
func (d *DomainConfig) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDomain)
	}
	if d.StartYear <= 0 || d.EndYear <= 0 {
		return fmt.Errorf("%w: start_year and end_year are required", ErrInvalidDomain)
	}
	if d.StartYear > d.EndYear {
		return fmt.Errorf("%w: start_year %d is after end_year %d", ErrInvalidDomain, d.StartYear, d.EndYear)
	}
	if d.Output == "" {
		return fmt.Errorf("%w: output is required", ErrInvalidDomain)
	}

	codes := make(map[string]string)
	check := func(source string, specs []IndicatorSpec) error {
		for i, s := range specs {
			if s.Code == "" || s.Name == "" {
				return fmt.Errorf("%w: %s indicator %d needs code and name", ErrInvalidDomain, source, i)
			}
			if s.Multiplier < 0 {
				return fmt.Errorf("%w: %s indicator %s has negative multiplier", ErrInvalidDomain, source, s.Code)
			}
			if len(s.Filter) > 0 && source != models.SourceILO {
				return fmt.Errorf("%w: dimension filters are only supported for ILO (%s)", ErrInvalidDomain, s.Code)
			}
			code := s.SeriesCode()
			if prev, dup := codes[code]; dup {
				return fmt.Errorf("%w: indicator code %s is used by %s and %s", ErrInvalidDomain, code, prev, source)
			}
			codes[code] = source
		}
		return nil
	}

	if err := check(models.SourceWorldBank, d.WorldBank); err != nil {
		return err
	}
	if err := check(models.SourceILO, d.ILO); err != nil {
		return err
	}
	if d.IMF != nil {
		if d.IMF.Dataset == "" {
			return fmt.Errorf("%w: imf.dataset is required", ErrInvalidDomain)
		}
		if err := check(models.SourceIMF, d.IMF.Indicators); err != nil {
			return err
		}
	}
	if len(codes) == 0 {
		return fmt.Errorf("%w: domain %s requests no indicators", ErrInvalidDomain, d.Name)
	}

	for _, der := range d.Derived {
		if der.Kind != DerivedGrowth {
			return fmt.Errorf("%w: unknown derived kind %q", ErrInvalidDomain, der.Kind)
		}
		if _, ok := codes[der.Source]; !ok {
			return fmt.Errorf("%w: derived %s reads unknown indicator %s", ErrInvalidDomain, der.Code, der.Source)
		}
		if der.Code == "" || der.Name == "" {
			return fmt.Errorf("%w: derived indicator needs code and name", ErrInvalidDomain)
		}
		if _, dup := codes[der.Code]; dup {
			return fmt.Errorf("%w: derived code %s collides with a fetched indicator", ErrInvalidDomain, der.Code)
		}
		codes[der.Code] = "derived"
	}

	for _, a := range d.Aggregates {
		if !models.GroupAttribute(a).Valid() {
			return fmt.Errorf("%w: unknown aggregate attribute %q", ErrInvalidDomain, a)
		}
	}
	return nil
}
