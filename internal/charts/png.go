package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"macroind/internal/models"
)

// LinePNG renders the grid as a static line chart. Null points are skipped
// and series without any value are left out.
func LinePNG(grid models.SelectionGrid, title string) ([]byte, error) {
	if len(grid.Rows) == 0 {
		return nil, ErrEmptyGrid
	}
	l := newLayout(grid)

	var series []chart.Series
	for _, k := range l.pairs {
		var xs, ys []float64
		years, values := grid.Series(k.indicator, k.country)
		for i, v := range values {
			if v != nil {
				xs = append(xs, float64(years[i]))
				ys = append(ys, *v)
			}
		}
		if len(xs) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    l.name(k),
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeWidth: 2,
				DotWidth:    3,
			},
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no values to plot: %w", ErrEmptyGrid)
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 450,
		TitleStyle: chart.Style{
			FontSize:  14,
			FontColor: drawing.ColorBlack,
		},
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name: "Year",
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render PNG chart: %w", err)
	}
	return buf.Bytes(), nil
}
