package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/tidytune/grid"
	"github.com/YuminosukeSato/tidytune/metrics"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tune"
)

// Theme is the look of every plot. It is passed explicitly; there is no
// package-level theme.
type Theme struct {
	Width, Height vg.Length
	PointRadius   vg.Length
	LineWidth     vg.Length
	Point         color.Color
	Line          color.Color
	// Reference colours identity and zero lines.
	Reference color.Color
	Grid      bool
}

// DefaultTheme returns a 5x4 inch theme with a light grid.
func DefaultTheme() Theme {
	return Theme{
		Width:       5 * vg.Inch,
		Height:      4 * vg.Inch,
		PointRadius: vg.Points(2),
		LineWidth:   vg.Points(1.5),
		Point:       color.RGBA{R: 31, G: 119, B: 180, A: 200},
		Line:        color.RGBA{R: 214, G: 39, B: 40, A: 255},
		Reference:   color.Gray{Y: 128},
		Grid:        true,
	}
}

func (th Theme) newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	if th.Grid {
		p.Add(plotter.NewGrid())
	}
	return p
}

func (th Theme) scatter(xs, ys []float64) (*plotter.Scatter, error) {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "scatter")
	}
	s.GlyphStyle.Color = th.Point
	s.GlyphStyle.Radius = th.PointRadius
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	return s, nil
}

func (th Theme) line(pts plotter.XYs, c color.Color, dashed bool) (*plotter.Line, error) {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, errors.Wrap(err, "line")
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = th.LineWidth
	if dashed {
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	return l, nil
}

func (th Theme) save(p *plot.Plot, path string) error {
	if err := p.Save(th.Width, th.Height, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}

func checkPairs(op string, a, b []float64) error {
	if len(a) == 0 {
		return errors.NewValueError(op, "nothing to plot")
	}
	if len(a) != len(b) {
		return errors.NewDimensionError(op, len(a), len(b), 0)
	}
	return nil
}

// PredictedVsObserved plots estimates against outcomes with the identity
// line. The format follows the extension of path (.png, .svg, .pdf).
func PredictedVsObserved(path, title string, truth, estimate []float64, th Theme) error {
	if err := checkPairs("PredictedVsObserved", truth, estimate); err != nil {
		return err
	}
	p := th.newPlot(title, "observed", "predicted")
	s, err := th.scatter(truth, estimate)
	if err != nil {
		return err
	}
	lo := math.Min(floats.Min(truth), floats.Min(estimate))
	hi := math.Max(floats.Max(truth), floats.Max(estimate))
	ref, err := th.line(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}}, th.Reference, true)
	if err != nil {
		return err
	}
	p.Add(ref, s)
	return th.save(p, path)
}

// ResidualsVsPredicted plots residuals (truth - estimate) against estimates
// with the zero line.
func ResidualsVsPredicted(path, title string, truth, estimate []float64, th Theme) error {
	if err := checkPairs("ResidualsVsPredicted", truth, estimate); err != nil {
		return err
	}
	res := metrics.Predictions{Truth: truth, Estimate: estimate}.Residuals()
	p := th.newPlot(title, "predicted", "residual")
	s, err := th.scatter(estimate, res)
	if err != nil {
		return err
	}
	ref, err := th.line(plotter.XYs{{X: floats.Min(estimate), Y: 0}, {X: floats.Max(estimate), Y: 0}}, th.Reference, true)
	if err != nil {
		return err
	}
	p.Add(ref, s)
	return th.save(p, path)
}

// ROCCurve plots the ROC curve of class 1 probabilities against 0/1
// outcomes; the legend shows its AUC.
func ROCCurve(path, title string, truth, prob []float64, th Theme) error {
	if err := checkPairs("ROCCurve", truth, prob); err != nil {
		return err
	}
	yt := mat.NewVecDense(len(truth), truth)
	yp := mat.NewVecDense(len(prob), prob)
	fpr, tpr, _, err := metrics.ROCCurve(yt, yp)
	if err != nil {
		return err
	}
	auc, err := metrics.AUC(yt, yp)
	if err != nil {
		return err
	}
	p := th.newPlot(title, "1 - specificity", "sensitivity")
	p.Legend.Top = false
	pts := make(plotter.XYs, len(fpr))
	for i := range fpr {
		pts[i].X, pts[i].Y = fpr[i], tpr[i]
	}
	curve, err := th.line(pts, th.Line, false)
	if err != nil {
		return err
	}
	ref, err := th.line(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}}, th.Reference, true)
	if err != nil {
		return err
	}
	p.Add(ref, curve)
	p.Legend.Add(formatAUC(auc), curve)
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = 0, 1, 0, 1
	return th.save(p, path)
}

func formatAUC(v float64) string { return fmt.Sprintf("AUC %.3f", v) }

// TuningCurve plots the resampled mean of metric against param, one point
// per value of param. Log-scaled parameters use a log axis.
func TuningCurve(path string, res *tune.Results, param, metric string, th Theme) error {
	xs, ys, err := curve(res, param, metric)
	if err != nil {
		return err
	}
	if metric == "" {
		metric = res.Metrics[0]
	}
	p := th.newPlot(res.Family, param, metric)
	if pr, _ := res.Params.Find(param); pr.Scale == grid.Log10 && xs[0] > 0 {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	s, err := th.scatter(xs, ys)
	if err != nil {
		return err
	}
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	l, err := th.line(pts, th.Line, false)
	if err != nil {
		return err
	}
	p.Add(l, s)
	return th.save(p, path)
}
