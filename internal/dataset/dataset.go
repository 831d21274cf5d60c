// Package dataset encodes and decodes the canonical indicator table.
package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/xuri/excelize/v2"

	"macroind/internal/models"
)

// Canonical column headers, in file order
const (
	ColCountryCode   = "Country Code"
	ColCountry       = "Country"
	ColIndicatorCode = "Indicator Code"
	ColIndicator     = "Indicator"
	ColYear          = "Year"
	ColValue         = "Value"
	ColRegion        = "Region"
	ColSubRegion     = "Sub-region"
	ColIncomeGroup   = "Income Group"
	ColLDC           = "Least Developed Countries (LDC)"
	ColLLDC          = "Land Locked Developing Countries (LLDC)"
	ColSIDS          = "Small Island Developing States (SIDS)"
)

// Columns lists the fixed header of tabular encodings
var Columns = []string{
	ColCountryCode, ColCountry, ColIndicatorCode, ColIndicator, ColYear, ColValue,
	ColRegion, ColSubRegion, ColIncomeGroup, ColLDC, ColLLDC, ColSIDS,
}

// Format is a canonical file encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

const snappySuffix = ".sz"

// sheetName is the worksheet written to and read from XLSX files
const sheetName = "Sheet1"

// FormatFor derives the format from an object name; a trailing .sz marks snappy compression
func FormatFor(name string) (Format, bool, error) {
	compressed := strings.HasSuffix(strings.ToLower(name), snappySuffix)
	if compressed {
		name = name[:len(name)-len(snappySuffix)]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return FormatCSV, compressed, nil
	case ".json":
		return FormatJSON, compressed, nil
	case ".xlsx":
		return FormatXLSX, compressed, nil
	default:
		return "", false, fmt.Errorf("unsupported dataset file %q", name)
	}
}

// Marshal encodes observations for the object name's format
func Marshal(name string, obs []models.Observation) ([]byte, error) {
	format, compressed, err := FormatFor(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	var sw *snappy.Writer
	if compressed {
		sw = snappy.NewBufferedWriter(&buf)
		w = sw
	}
	if err := Encode(w, format, obs); err != nil {
		return nil, err
	}
	if sw != nil {
		if err := sw.Close(); err != nil {
			return nil, fmt.Errorf("failed to flush snappy stream: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a canonical file named name
func Unmarshal(name string, data []byte) ([]models.Observation, error) {
	format, compressed, err := FormatFor(name)
	if err != nil {
		return nil, err
	}
	var r io.Reader = bytes.NewReader(data)
	if compressed {
		r = snappy.NewReader(r)
	}
	return Decode(r, format)
}

// Encode writes observations in the given format
func Encode(w io.Writer, format Format, obs []models.Observation) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		for _, o := range obs {
			if err := cw.Write(toRecord(o)); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()

	case FormatJSON:
		if obs == nil {
			obs = []models.Observation{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(obs); err != nil {
			return fmt.Errorf("failed to encode json dataset: %w", err)
		}
		return nil

	case FormatXLSX:
		return encodeXLSX(w, obs)

	default:
		return fmt.Errorf("unsupported dataset format %q", format)
	}
}

// Decode reads observations in the given format
func Decode(r io.Reader, format Format) ([]models.Observation, error) {
	switch format {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read csv dataset: %w", err)
		}
		return fromRecords(records)

	case FormatJSON:
		var obs []models.Observation
		if err := json.NewDecoder(r).Decode(&obs); err != nil {
			return nil, fmt.Errorf("failed to decode json dataset: %w", err)
		}
		return obs, nil

	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open xlsx dataset: %w", err)
		}
		defer f.Close()
		records, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read xlsx dataset: %w", err)
		}
		return fromRecords(records)

	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

func encodeXLSX(w io.Writer, obs []models.Observation) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create xlsx stream: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}

	for i, o := range obs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			o.CountryCode, o.Country, o.IndicatorCode, o.Indicator, o.Year, nil,
			o.Region, o.SubRegion, o.IncomeGroup, flagCell(o.LDC), flagCell(o.LLDC), flagCell(o.SIDS),
		}
		if o.Value != nil {
			row[5] = *o.Value
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write xlsx row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush xlsx stream: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx dataset: %w", err)
	}
	return nil
}

func flagCell(b *bool) interface{} {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func flagString(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "1"
	}
	return "0"
}

func parseFlag(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil
	case "1", "1.0", "true", "x":
		return models.Bool(true)
	default:
		return models.Bool(false)
	}
}

func toRecord(o models.Observation) []string {
	return []string{
		o.CountryCode, o.Country, o.IndicatorCode, o.Indicator, strconv.Itoa(o.Year), models.FormatValue(o.Value),
		o.Region, o.SubRegion, o.IncomeGroup, flagString(o.LDC), flagString(o.LLDC), flagString(o.SIDS),
	}
}

func fromRecords(records [][]string) ([]models.Observation, error) {
	if len(records) == 0 {
		return nil, &models.MissingColumnError{Source: "dataset", Column: ColCountryCode}
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	pos := make([]int, len(Columns))
	for i, c := range Columns {
		p, ok := index[c]
		if !ok {
			return nil, &models.MissingColumnError{Source: "dataset", Column: c}
		}
		pos[i] = p
	}

	out := make([]models.Observation, 0, len(records)-1)
	for n, rec := range records[1:] {
		cell := func(col int) string {
			if pos[col] >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[pos[col]])
		}

		year, err := strconv.Atoi(cell(4))
		if err != nil {
			return nil, fmt.Errorf("dataset row %d: invalid year %q", n+2, cell(4))
		}
		o := models.Observation{
			CountryCode:   cell(0),
			Country:       cell(1),
			IndicatorCode: cell(2),
			Indicator:     cell(3),
			Year:          year,
			Region:        cell(6),
			SubRegion:     cell(7),
			IncomeGroup:   cell(8),
			LDC:           parseFlag(cell(9)),
			LLDC:          parseFlag(cell(10)),
			SIDS:          parseFlag(cell(11)),
		}
		if s := cell(5); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("dataset row %d: invalid value %q", n+2, s)
			}
			o.Value = &v
		}
		if o.CountryCode == "" {
			o.Aggregate = inferAggregate(o)
		}
		out = append(out, o)
	}
	return out, nil
}

// inferAggregate recovers the aggregate tag tabular files cannot carry:
// aggregate rows hold their label in the column of the grouping attribute.
func inferAggregate(o models.Observation) models.GroupAttribute {
	switch {
	case o.SubRegion != "" && o.SubRegion == o.Country:
		return models.AttrSubRegion
	case o.Region != "" && o.Region == o.Country:
		return models.AttrRegion
	case o.IncomeGroup != "" && o.IncomeGroup == o.Country:
		return models.AttrIncomeGroup
	case o.Country == models.LabelLDC:
		return models.AttrLDC
	case o.Country == models.LabelLLDC:
		return models.AttrLLDC
	case o.Country == models.LabelSIDS:
		return models.AttrSIDS
	default:
		return ""
	}
}
