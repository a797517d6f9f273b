package plot

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/stats"
)

const areaOpacity = 0.8

func (r *Renderer) renderHTML(path string, d *data.Data, req Request) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteHTML(f, d, req); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteHTML writes an interactive version of req to w. req must already have
// been validated.
func (r *Renderer) WriteHTML(w io.Writer, d *data.Data, req Request) error {
	switch req := req.(type) {
	case *BunchPlot:
		c, err := r.bunchChart(d, req)
		if err != nil {
			return err
		}
		return c.Render(w)
	case *PhaseSpacePlot:
		page, err := r.phasePage(d, req)
		if err != nil {
			return err
		}
		return page.Render(w)
	case *FinalEnergyPlot:
		c, err := r.energyChart(d, req)
		if err != nil {
			return err
		}
		return c.Render(w)
	case *XYPlot:
		return r.xyChart(req).Render(w)
	}
	return g_error.InvalidArgumentf("unrecognized plot request type %T", req)
}

func initOpts(c Canvas) opts.Initialization {
	return opts.Initialization{
		Width:  fmt.Sprintf("%dpx", c.Width),
		Height: fmt.Sprintf("%dpx", c.Height),
	}
}

func valueAxes(xName, yName string) (opts.XAxis, opts.YAxis) {
	return opts.XAxis{Name: xName, Type: "value"},
		opts.YAxis{Name: yName, Type: "value"}
}

func (r *Renderer) bunchChart(d *data.Data, req *BunchPlot) (*charts.Line, error) {
	z, layers, err := BunchLayers(d, req)
	if err != nil {
		return nil, err
	}

	x, y := valueAxes(r.Style.BunchXTitle, r.Style.BunchYTitle)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(r.Style.BunchCanvas)),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(x),
		charts.WithYAxisOpts(y),
	)

	names := d.BunchNames()
	t := d.BunchTable()
	for k := len(layers); k >= 1; k-- {
		points := make([]opts.LineData, len(z))
		for i := range z {
			points[i] = opts.LineData{Value: []interface{}{z[i], layers[k-1][i]}}
		}
		name := fmt.Sprintf("%s (%s)", names[k-1], t.Expression(k))
		line.AddSeries(name, points,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: r.Style.HexColor(k)}),
			charts.WithAreaStyleOpts(opts.AreaStyle{
				Color: r.Style.HexColor(k), Opacity: opts.Float(areaOpacity),
			}),
		)
	}

	return line, nil
}

func (r *Renderer) phasePage(d *data.Data, req *PhaseSpacePlot) (*components.Page, error) {
	pan, err := PhasePanels(d, req)
	if err != nil {
		return nil, err
	}

	page := components.NewPage()
	page.SetPageTitle(req.Title(d))

	size := Canvas{r.Style.PhaseCanvas.Width / 2, r.Style.PhaseCanvas.Height / 2}
	for i := range panels {
		x, y := valueAxes(panels[i][0], panels[i][1])
		sc := charts.NewScatter()
		sc.SetGlobalOptions(
			charts.WithInitializationOpts(initOpts(size)),
			charts.WithTitleOpts(opts.Title{
				Title: fmt.Sprintf("%s:%s", panels[i][1], panels[i][0]),
			}),
			charts.WithXAxisOpts(x),
			charts.WithYAxisOpts(y),
		)

		points := make([]opts.ScatterData, len(pan[i][0]))
		for j := range points {
			points[j] = opts.ScatterData{
				Value:      []interface{}{pan[i][0][j], pan[i][1][j]},
				SymbolSize: 2,
			}
		}
		sc.AddSeries(req.Title(d), points,
			charts.WithItemStyleOpts(opts.ItemStyle{
				Color: r.Style.HexColor(req.Bunch),
			}),
		)
		page.AddCharts(sc)
	}

	return page, nil
}

func (r *Renderer) energyChart(d *data.Data, req *FinalEnergyPlot) (*charts.Bar, error) {
	lo, hi, err := EnergyRange(d, req)
	if err != nil {
		return nil, err
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(r.Style.EnergyCanvas)),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: r.Style.EnergyXTitle}),
		charts.WithYAxisOpts(opts.YAxis{Name: r.Style.EnergyYTitle}),
	)

	names := d.BunchNames()
	var labels []string
	for bunch := 1; bunch <= d.BunchCount(); bunch++ {
		t, err := d.EndTable(bunch)
		if err != nil {
			return nil, err
		}
		hist := stats.Histogram(data.MustColumn(t, "W"), req.Bins, lo, hi)

		bins := hist.Binning.Bins
		if labels == nil {
			labels = make([]string, len(bins))
			for i := range bins {
				labels[i] = fmt.Sprintf("%.4g",
					0.5*(bins[i].XMin()+bins[i].XMax()))
			}
			bar.SetXAxis(labels)
		}

		heights := make([]opts.BarData, len(bins))
		for i := range bins {
			heights[i] = opts.BarData{Value: bins[i].SumW()}
		}
		bar.AddSeries(names[bunch-1], heights,
			charts.WithBarChartOpts(opts.BarChart{BarGap: "-100%"}),
			charts.WithItemStyleOpts(opts.ItemStyle{
				Color: r.Style.HexColor(bunch), Opacity: opts.Float(0.6),
			}),
		)
	}

	return bar, nil
}

func (r *Renderer) xyChart(req *XYPlot) *charts.Line {
	x, y := valueAxes(req.XTitle, req.YTitle)
	if !req.autoX() {
		x.Min, x.Max = req.XMin, req.XMax
	}
	if !req.autoY() {
		y.Min, y.Max = req.YMin, req.YMax
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(r.xyCanvas(req))),
		charts.WithTitleOpts(opts.Title{Title: req.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(x),
		charts.WithYAxisOpts(y),
	)

	points := make([]opts.LineData, len(req.X))
	for i := range points {
		points[i] = opts.LineData{Value: []interface{}{req.X[i], req.Y[i]}}
	}
	line.AddSeries(req.Title, points,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: r.Style.HexColor(1)}),
	)
	return line
}
