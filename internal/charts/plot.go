package charts

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/majidrgold/openpolicing/internal/rates"
)

// SavePNG writes a static disparity scatterplot for report output. The
// interactive HTML version is preferred for exploration; this exists for
// embedding in documents.
func SavePNG(rows []rates.ComparisonRow, metric rates.Metric, reference, path string) error {
	label := metricLabel(metric)
	pad := axisPad(rows)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s by county (reference: %s)", label, reference)
	p.X.Label.Text = fmt.Sprintf("%s %s", reference, label)
	p.Y.Label.Text = fmt.Sprintf("comparison %s", label)
	p.X.Min, p.X.Max = 0, pad
	p.Y.Min, p.Y.Max = 0, pad

	pts := make(plotter.XYs, 0, len(rows))
	for _, row := range rows {
		pts = append(pts, plotter.XY{X: row.ReferenceRate, Y: row.ComparisonRate})
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.Radius = vg.Points(3)
	p.Add(scatter)

	parity, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: pad, Y: pad}})
	if err != nil {
		return fmt.Errorf("failed to build parity line: %w", err)
	}
	parity.Width = vg.Points(1)
	p.Add(parity)
	p.Legend.Add("parity", parity)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
