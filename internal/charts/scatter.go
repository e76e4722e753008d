// Package charts renders disparity scatterplots: for each county (or
// other secondary key), the comparison group's rate is plotted against
// the reference group's rate, so points above the diagonal mark places
// where the comparison group is searched more (or yields contraband
// more) than the reference group.
package charts

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/majidrgold/openpolicing/internal/rates"
)

// metricLabel returns a human axis label for the metric.
func metricLabel(metric rates.Metric) string {
	switch metric {
	case rates.MetricHitRate:
		return "hit rate"
	case rates.MetricSearchRate:
		return "search rate"
	default:
		return string(metric)
	}
}

// symbolSize scales a point by the comparison group's stop count so
// thinly supported rates read as small points.
func symbolSize(stops int) float32 {
	size := 4 + math.Sqrt(float64(stops))/4
	if size > 40 {
		size = 40
	}
	return float32(size)
}

// axisPad returns a padded axis maximum covering every plotted rate.
func axisPad(rows []rates.ComparisonRow) float64 {
	maxRate := 0.0
	for _, row := range rows {
		maxRate = math.Max(maxRate, math.Max(row.ReferenceRate, row.ComparisonRate))
	}
	if maxRate == 0 {
		return 1.0
	}
	return maxRate * 1.1
}

// DisparityScatter builds an interactive scatter of comparison-group
// rates against reference-group rates, one series per comparison group,
// with the y=x parity line overlaid. Rows come from rates.Compare and
// therefore never contain undefined rates.
func DisparityScatter(rows []rates.ComparisonRow, metric rates.Metric, reference string) *charts.Scatter {
	pad := axisPad(rows)
	label := metricLabel(metric)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Traffic Stop Disparities",
			Width:     "900px",
			Height:    "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s by county", label),
			Subtitle: fmt.Sprintf("reference group: %s; point size ~ stop count", reference),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Min: 0, Max: pad,
			Name: fmt.Sprintf("%s %s", reference, label), NameLocation: "middle", NameGap: 25,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min: 0, Max: pad,
			Name: fmt.Sprintf("comparison %s", label), NameLocation: "middle", NameGap: 30,
		}),
	)

	// One series per comparison group, keeping first-appearance order.
	var groups []string
	series := make(map[string][]opts.ScatterData)
	for _, row := range rows {
		if _, ok := series[row.Group]; !ok {
			groups = append(groups, row.Group)
		}
		series[row.Group] = append(series[row.Group], opts.ScatterData{
			Name:       row.Secondary,
			Value:      []interface{}{row.ReferenceRate, row.ComparisonRate},
			SymbolSize: int(symbolSize(row.ComparisonStops)),
		})
	}
	for _, group := range groups {
		scatter.AddSeries(group, series[group])
	}

	// Parity line y=x: rates on the line are equal for both groups.
	parity := charts.NewLine()
	parity.AddSeries("parity", []opts.LineData{
		{Value: []interface{}{0.0, 0.0}},
		{Value: []interface{}{pad, pad}},
	})
	scatter.Overlap(parity)

	return scatter
}

// RenderHTML writes the disparity scatter as a self-contained HTML page.
func RenderHTML(w io.Writer, rows []rates.ComparisonRow, metric rates.Metric, reference string) error {
	if err := DisparityScatter(rows, metric, reference).Render(w); err != nil {
		return fmt.Errorf("failed to render scatter: %w", err)
	}
	return nil
}
