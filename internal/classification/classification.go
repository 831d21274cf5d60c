// Package classification loads the country classification reference table.
package classification

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"macroind/internal/logger"
	"macroind/internal/models"
)

// Canonical header names of the reference file
const (
	ColumnCode        = "ISO-alpha3 Code"
	ColumnName        = "Country or Area"
	ColumnRegion      = "Region Name"
	ColumnSubRegion   = "Sub-region Name"
	ColumnIncomeGroup = "Income Group"
	ColumnLDC         = "Least Developed Countries (LDC)"
	ColumnLLDC        = "Land Locked Developing Countries (LLDC)"
	ColumnSIDS        = "Small Island Developing States (SIDS)"
	ColumnWEOCode     = "WEO Country Code"
)

// headerAliases maps accepted spellings to canonical headers
var headerAliases = map[string][]string{
	ColumnCode:        {"Country Code", "ISO3", "iso3"},
	ColumnName:        {"Country", "Country Name"},
	ColumnRegion:      {"Region"},
	ColumnSubRegion:   {"Sub-region", "Subregion"},
	ColumnIncomeGroup: {"Income group"},
	ColumnLDC:         {"LDC"},
	ColumnLLDC:        {"LLDC"},
	ColumnSIDS:        {"SIDS"},
	ColumnWEOCode:     {"WEO Code"},
}

var requiredColumns = []string{
	ColumnCode, ColumnName, ColumnRegion, ColumnSubRegion, ColumnIncomeGroup,
	ColumnLDC, ColumnLLDC, ColumnSIDS,
}

// key folds case and unicode composition so "Côte d'Ivoire" typed either way matches
func key(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Table is the read-only classification lookup. Safe for concurrent readers.
type Table struct {
	rows   []models.CountryClassification
	byCode map[string]int
	byWEO  map[string]int
	byName map[string]int
}

// NewTable indexes rows by ISO code, WEO code and name. The first row wins on duplicates.
func NewTable(rows []models.CountryClassification) *Table {
	t := &Table{
		byCode: make(map[string]int, len(rows)),
		byWEO:  make(map[string]int),
		byName: make(map[string]int, len(rows)),
	}
	log := logger.Component("classification")
	for _, r := range rows {
		r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
		if r.Code == "" {
			continue
		}
		if _, dup := t.byCode[r.Code]; dup {
			log.Warn("duplicate country code ignored", logger.Fields{"code": r.Code})
			continue
		}
		idx := len(t.rows)
		t.rows = append(t.rows, r)
		t.byCode[r.Code] = idx
		if r.WEOCode != "" {
			t.byWEO[r.WEOCode] = idx
		}
		if r.Name != "" {
			t.byName[key(r.Name)] = idx
		}
	}
	return t
}

// Lookup finds a country by ISO alpha-3 code
func (t *Table) Lookup(code string) (models.CountryClassification, bool) {
	idx, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return models.CountryClassification{}, false
	}
	return t.rows[idx], true
}

// LookupWEO finds a country by IMF WEO numeric code
func (t *Table) LookupWEO(code string) (models.CountryClassification, bool) {
	idx, ok := t.byWEO[strings.TrimLeft(strings.TrimSpace(code), "0")]
	if !ok {
		return models.CountryClassification{}, false
	}
	return t.rows[idx], true
}

// LookupName finds a country by display name, ignoring case
func (t *Table) LookupName(name string) (models.CountryClassification, bool) {
	idx, ok := t.byName[key(name)]
	if !ok {
		return models.CountryClassification{}, false
	}
	return t.rows[idx], true
}

// Len returns the number of countries
func (t *Table) Len() int {
	return len(t.rows)
}

// Countries returns the rows in file order
func (t *Table) Countries() []models.CountryClassification {
	out := make([]models.CountryClassification, len(t.rows))
	copy(out, t.rows)
	return out
}

// Load reads a classification file, choosing the decoder by extension (.csv, .xlsx)
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classification file: %w", err)
	}
	defer f.Close()

	table, err := Read(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load classification %s: %w", path, err)
	}
	logger.Component("classification").Info("classification loaded", logger.Fields{
		"path":      path,
		"countries": table.Len(),
	})
	return table, nil
}

// Read decodes a classification table from r; ext is ".csv" or ".xlsx"
func Read(r io.Reader, ext string) (*Table, error) {
	var records [][]string
	var err error
	switch strings.ToLower(ext) {
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		records, err = cr.ReadAll()
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported classification format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read classification records: %w", err)
	}
	if len(records) == 0 {
		return nil, &models.MissingColumnError{Source: "classification", Column: ColumnCode}
	}

	rows, err := Parse(records[0], records[1:])
	if err != nil {
		return nil, err
	}
	return NewTable(rows), nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// Parse maps header names (or accepted aliases) to fields and decodes every record
func Parse(header []string, records [][]string) ([]models.CountryClassification, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[key(h)] = i
	}

	resolve := func(column string) int {
		if i, ok := index[key(column)]; ok {
			return i
		}
		for _, alias := range headerAliases[column] {
			if i, ok := index[key(alias)]; ok {
				return i
			}
		}
		return -1
	}

	cols := make(map[string]int, len(requiredColumns)+1)
	for _, c := range requiredColumns {
		i := resolve(c)
		if i < 0 {
			return nil, &models.MissingColumnError{Source: "classification", Column: c}
		}
		cols[c] = i
	}
	cols[ColumnWEOCode] = resolve(ColumnWEOCode)

	cell := func(rec []string, column string) string {
		i := cols[column]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	out := make([]models.CountryClassification, 0, len(records))
	for _, rec := range records {
		out = append(out, models.CountryClassification{
			Code:        strings.ToUpper(cell(rec, ColumnCode)),
			Name:        cell(rec, ColumnName),
			Region:      cell(rec, ColumnRegion),
			SubRegion:   cell(rec, ColumnSubRegion),
			IncomeGroup: cell(rec, ColumnIncomeGroup),
			LDC:         ParseFlag(cell(rec, ColumnLDC)),
			LLDC:        ParseFlag(cell(rec, ColumnLLDC)),
			SIDS:        ParseFlag(cell(rec, ColumnSIDS)),
			WEOCode:     normalizeWEO(cell(rec, ColumnWEOCode)),
		})
	}
	return out, nil
}

// ParseFlag reads membership markers: x, 1, true, yes
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "1", "1.0", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// normalizeWEO drops spreadsheet float formatting ("512.0") and leading zeros
func normalizeWEO(s string) string {
	s = strings.TrimSuffix(s, ".0")
	return strings.TrimLeft(s, "0")
}
