package journal

import (
	"io"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/rustyeddy/tradesim/backtest"
)

// chartID is fixed so the rendered HTML is identical across reruns.
const chartID = "tradesim_equity"

func (w *Writer) writeChart(path string, out *backtest.Output) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderEquityChart(fh, out, w.loc); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// RenderEquityChart renders the equity and drawdown curves as a standalone
// HTML page.
func RenderEquityChart(wr io.Writer, out *backtest.Output, loc *time.Location) error {
	xs := make([]string, 0, len(out.Equity))
	equity := make([]opts.LineData, 0, len(out.Equity))
	drawdown := make([]opts.LineData, 0, len(out.Equity))
	for _, p := range out.Equity {
		xs = append(xs, p.Time.In(loc).Format("2006-01-02 15:04"))
		eq, _ := p.Equity.Float64()
		dd, _ := p.Drawdown.Neg().Float64()
		equity = append(equity, opts.LineData{Value: eq})
		drawdown = append(drawdown, opts.LineData{Value: dd})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: out.RunID,
			ChartID:   chartID,
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    out.Config.Run.Name,
			Subtitle: out.RunID,
			Left:     "left",
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("equity", equity).
		AddSeries("drawdown", drawdown).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(false)}))
	return line.Render(wr)
}
