// Package charts renders selection grids as HTML (go-echarts) and PNG (go-chart) charts.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"macroind/internal/models"
)

// ErrEmptyGrid is returned when a grid has nothing to draw
var ErrEmptyGrid = errors.New("empty selection grid")

// ErrYearNotSelected is returned when a single-year chart asks for a year outside the grid
var ErrYearNotSelected = errors.New("year is not in the selection")

// missing is how ECharts skips a point
const missing = "-"

const (
	width  = "900px"
	height = "450px"
)

type seriesKey struct {
	indicator string
	country   string
}

// layout is the distinct years, indicators and countries of a grid in grid order
type layout struct {
	years      []int
	indicators []string
	countries  []string
	pairs      []seriesKey
	cells      map[seriesKey]map[int]*float64
}

func newLayout(grid models.SelectionGrid) layout {
	l := layout{cells: make(map[seriesKey]map[int]*float64)}
	seenYear := make(map[int]bool)
	seenInd := make(map[string]bool)
	seenCountry := make(map[string]bool)

	for _, r := range grid.Rows {
		if !seenYear[r.Year] {
			seenYear[r.Year] = true
			l.years = append(l.years, r.Year)
		}
		if !seenInd[r.Indicator] {
			seenInd[r.Indicator] = true
			l.indicators = append(l.indicators, r.Indicator)
		}
		if !seenCountry[r.Country] {
			seenCountry[r.Country] = true
			l.countries = append(l.countries, r.Country)
		}
		k := seriesKey{indicator: r.Indicator, country: r.Country}
		if _, ok := l.cells[k]; !ok {
			l.cells[k] = make(map[int]*float64)
			l.pairs = append(l.pairs, k)
		}
		if _, ok := l.cells[k][r.Year]; !ok {
			l.cells[k][r.Year] = r.Value
		}
	}
	return l
}

func (l layout) value(k seriesKey, year int) *float64 {
	return l.cells[k][year]
}

// name labels a series by country, prefixed with the indicator when the grid has several
func (l layout) name(k seriesKey) string {
	if len(l.indicators) > 1 {
		return fmt.Sprintf("%s - %s", k.indicator, k.country)
	}
	return k.country
}

func yearLabels(years []int) []string {
	out := make([]string, len(years))
	for i, y := range years {
		out[i] = fmt.Sprint(y)
	}
	return out
}

func globalOptions(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     width,
			Height:    height,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	}
}

// LineChart draws one line per indicator and country with years on the x axis.
// Null values are gaps.
func LineChart(grid models.SelectionGrid, title string) (*charts.Line, error) {
	if len(grid.Rows) == 0 {
		return nil, ErrEmptyGrid
	}
	l := newLayout(grid)

	line := charts.NewLine()
	line.SetGlobalOptions(append(globalOptions(title, ""),
		charts.WithXAxisOpts(opts.XAxis{Name: "Year"}),
	)...)
	line.SetXAxis(yearLabels(l.years))

	for _, k := range l.pairs {
		data := make([]opts.LineData, len(l.years))
		for i, y := range l.years {
			if v := l.value(k, y); v != nil {
				data[i] = opts.LineData{Value: *v}
			} else {
				data[i] = opts.LineData{Value: missing}
			}
		}
		line.AddSeries(l.name(k), data)
	}
	return line, nil
}

// BarChart draws one bar series per indicator across the grid's countries for one year
func BarChart(grid models.SelectionGrid, year int, title string) (*charts.Bar, error) {
	if len(grid.Rows) == 0 {
		return nil, ErrEmptyGrid
	}
	l := newLayout(grid)
	if !containsYear(l.years, year) {
		return nil, fmt.Errorf("%w: %d", ErrYearNotSelected, year)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOptions(title, fmt.Sprint(year))...)
	bar.SetXAxis(l.countries)

	for _, ind := range l.indicators {
		data := make([]opts.BarData, len(l.countries))
		for i, c := range l.countries {
			if v := l.value(seriesKey{indicator: ind, country: c}, year); v != nil {
				data[i] = opts.BarData{Value: *v}
			} else {
				data[i] = opts.BarData{Value: missing}
			}
		}
		bar.AddSeries(ind, data)
	}
	return bar, nil
}

// PieChart shows the indicator values of one country and year as shares
func PieChart(grid models.SelectionGrid, year int, country, title string) (*charts.Pie, error) {
	if len(grid.Rows) == 0 {
		return nil, ErrEmptyGrid
	}
	l := newLayout(grid)

	var data []opts.PieData
	for _, ind := range l.indicators {
		if v := l.value(seriesKey{indicator: ind, country: country}, year); v != nil {
			data = append(data, opts.PieData{Name: ind, Value: *v})
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no values for %s in %d: %w", country, year, ErrEmptyGrid)
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: width, Height: height}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%s, %d", country, year)}),
	)
	pie.AddSeries(country, data)
	return pie, nil
}

func containsYear(years []int, year int) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}

// Page renders several charts into one HTML page
func Page(w io.Writer, title string, list ...components.Charter) error {
	if len(list) == 0 {
		return ErrEmptyGrid
	}
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(list...)
	return page.Render(w)
}

type renderer interface {
	Render(w io.Writer) error
}

// RenderHTML renders one chart as a standalone HTML document
func RenderHTML(chart renderer) ([]byte, error) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}
