package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"

	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tune"
)

// RenderTable writes sums as an ASCII table.
func RenderTable(w io.Writer, sums []compare.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"model", "stage", "metric", "mean", "std_err", "n", "failures", "note"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range sums {
		note := s.Config
		if s.Error != "" {
			note = s.Error
		}
		table.Append([]string{
			s.Model,
			s.Stage,
			s.Metric,
			strconv.FormatFloat(s.Mean, 'f', 4, 64),
			strconv.FormatFloat(s.StdErr, 'f', 4, 64),
			strconv.Itoa(s.N),
			strconv.Itoa(s.Failures),
			note,
		})
	}
	table.Render()
}

// RenderConfigs writes the ranked configurations of res by metric.
func RenderConfigs(w io.Writer, res *tune.Results, metric string, n int) error {
	ranked, err := res.ShowBest(metric, n)
	if err != nil {
		return err
	}
	if metric == "" {
		metric = res.Metrics[0]
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"rank", "id", "config", metric, "std_err", "n", "failures"})
	table.SetAutoFormatHeaders(false)
	for i, c := range ranked {
		s := c.Metrics[metric]
		table.Append([]string{
			strconv.Itoa(i + 1),
			c.ID,
			c.Label,
			strconv.FormatFloat(s.Mean, 'f', 4, 64),
			strconv.FormatFloat(s.StdErr, 'f', 4, 64),
			strconv.Itoa(s.N),
			strconv.Itoa(c.Failures),
		})
	}
	table.Render()
	return nil
}

// RenderFailures writes every configuration of res that lost a fold or was
// left out of the ranking, with its status and failure count. It returns
// the number of rows written and writes nothing when there are none.
func RenderFailures(w io.Writer, res *tune.Results) int {
	var rows [][]string
	for _, c := range res.Configs {
		if c.Failures == 0 && c.Ranked() {
			continue
		}
		rows = append(rows, []string{
			c.ID,
			c.Label,
			c.Status.String(),
			fmt.Sprintf("%d/%d", c.Failures, res.Folds),
		})
	}
	if len(rows) == 0 {
		return 0
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"id", "config", "status", "failures"})
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(rows)
	table.Render()
	return len(rows)
}

// curve returns the ranked configurations of res ordered by param with the
// mean of metric. Configurations sharing a value of param keep the best mean.
func curve(res *tune.Results, param, metric string) (xs, ys []float64, err error) {
	if _, ok := res.Params.Find(param); !ok {
		return nil, nil, errors.NewValidationError("param", fmt.Sprintf("not tuned by %s", res.Family), param)
	}
	ranked, err := res.Rank(metric)
	if err != nil {
		return nil, nil, err
	}
	if metric == "" {
		metric = res.Metrics[0]
	}
	// ranked is best first, so the first value seen per x is the best.
	best := make(map[float64]float64)
	for _, c := range ranked {
		x := c.Config[param]
		if _, ok := best[x]; !ok {
			best[x] = c.Metrics[metric].Mean
			xs = append(xs, x)
		}
	}
	if len(xs) == 0 {
		return nil, nil, errors.NewValueError("curve", "no ranked configuration")
	}
	slices.Sort(xs)
	ys = make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = best[x]
	}
	return xs, ys, nil
}

// AsciiCurve draws metric against param for the terminal.
func AsciiCurve(res *tune.Results, param, metric string) (string, error) {
	xs, ys, err := curve(res, param, metric)
	if err != nil {
		return "", err
	}
	if metric == "" {
		metric = res.Metrics[0]
	}
	caption := fmt.Sprintf("%s %s by %s (%g .. %g)", res.Family, metric, param, xs[0], xs[len(xs)-1])
	return asciigraph.Plot(ys,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption(caption),
	), nil
}
