package plot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go-hep.org/x/hep/hplot"
	gonumplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/metrics"
	"github.com/phil-mansfield/impact/lib/stats"
)

// Formats lists the supported output formats.
var Formats = []string{"eps", "pdf", "svg", "png", "html"}

// titleHeight is the height of the title strip above the phase-space panels.
const titleHeight = 40

// Renderer writes plots to files.
type Renderer struct {
	Style     *Style
	OutputDir string
	// Format is one of Formats.
	Format string
}

// NewRenderer creates a Renderer, checking the output format.
func NewRenderer(s *Style, outputDir, format string) (*Renderer, error) {
	format = strings.ToLower(format)
	if !isFormat(format) {
		return nil, g_error.InvalidArgumentf("the plot format '%s' is not "+
			"supported. Supported formats are %v", format, Formats)
	}
	if s == nil {
		s = DefaultStyle()
	}
	if len(s.Colors) == 0 {
		return nil, g_error.InvalidArgumentf("the plot style has no colors")
	}
	return &Renderer{s, outputDir, format}, nil
}

func isFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Render validates req and writes it to OutputDir. It returns the path of the
// file it wrote.
func (r *Renderer) Render(d *data.Data, req Request) (string, error) {
	if err := req.Validate(d); err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("cannot create plot directory %s: %w",
			r.OutputDir, err)
	}
	path := filepath.Join(r.OutputDir, req.FileName(d)+"."+r.Format)

	var err error
	if r.Format == "html" {
		err = r.renderHTML(path, d, req)
	} else {
		err = r.renderStatic(path, d, req)
	}
	if err != nil {
		return "", fmt.Errorf("cannot write %s plot to %s: %w",
			req.Kind(), path, err)
	}

	metrics.ObservePlot(req.Kind(), r.Format)
	return path, nil
}

func (r *Renderer) renderStatic(path string, d *data.Data, req Request) error {
	switch req := req.(type) {
	case *BunchPlot:
		p, err := r.bunchPlot(d, req)
		if err != nil {
			return err
		}
		return save(p, r.Style.BunchCanvas, path)
	case *PhaseSpacePlot:
		return r.savePhaseSpacePlot(d, req, path)
	case *FinalEnergyPlot:
		p, err := r.energyPlot(d, req)
		if err != nil {
			return err
		}
		return save(p, r.Style.EnergyCanvas, path)
	case *XYPlot:
		p, err := r.xyPlot(req)
		if err != nil {
			return err
		}
		return save(p, r.xyCanvas(req), path)
	}
	g_error.Internal("unrecognized plot request type %T", req)
	return nil
}

func save(p *gonumplot.Plot, c Canvas, path string) error {
	return p.Save(vg.Points(float64(c.Width)), vg.Points(float64(c.Height)),
		path)
}

func (r *Renderer) xyCanvas(req *XYPlot) Canvas {
	if req.Canvas.Width == 0 || req.Canvas.Height == 0 {
		return r.Style.XYCanvas
	}
	return req.Canvas
}

// BunchLayers returns the z values and the cumulative count layers drawn by
// a BunchPlot. layers[k-1] is the sum of bunches 1 through k.
func BunchLayers(
	d *data.Data, req *BunchPlot,
) (z []float64, layers [][]float64, err error) {
	t := d.BunchTable()
	lo, hi := req.rows(t.Len())

	z = data.MustColumn(t, "z")[lo:hi]
	cols := make([][]float64, d.BunchCount())
	for k := range cols {
		counts, err := t.Counts(k + 1)
		if err != nil {
			return nil, nil, err
		}
		cols[k] = counts[lo:hi]
	}
	return z, stats.Cumulative(cols), nil
}

func (r *Renderer) bunchPlot(d *data.Data, req *BunchPlot) (*gonumplot.Plot, error) {
	z, layers, err := BunchLayers(d, req)
	if err != nil {
		return nil, err
	}

	p := gonumplot.New()
	p.X.Label.Text = r.Style.BunchXTitle
	p.Y.Label.Text = r.Style.BunchYTitle

	names := d.BunchNames()
	// Back to front: the total is drawn first and each smaller layer on top.
	for k := len(layers); k >= 1; k-- {
		line, err := plotter.NewLine(xys(z, layers[k-1]))
		if err != nil {
			return nil, err
		}
		line.Color = r.Style.Color(k)
		line.FillColor = r.Style.Color(k)
		p.Add(line)
		p.Legend.Add(names[k-1], line)
	}

	applyAxes(p, req.Axes)
	return p, nil
}

// PhasePanels returns the (x, y) data of the four phase-space panels.
func PhasePanels(d *data.Data, req *PhaseSpacePlot) ([4][2][]float64, error) {
	out := [4][2][]float64{}
	t, err := d.PhaseTable(req.Location, req.Bunch)
	if err != nil {
		return out, err
	}
	for i, cols := range panels {
		out[i][0] = data.MustColumn(t, cols[0])
		out[i][1] = data.MustColumn(t, cols[1])
	}
	return out, nil
}

func (r *Renderer) savePhaseSpacePlot(
	d *data.Data, req *PhaseSpacePlot, path string,
) error {
	pan, err := PhasePanels(d, req)
	if err != nil {
		return err
	}

	plots := make([][]*gonumplot.Plot, 2)
	for row := range plots {
		plots[row] = make([]*gonumplot.Plot, 2)
		for col := range plots[row] {
			i := 2*row + col
			p := gonumplot.New()
			p.X.Label.Text = panels[i][0]
			p.Y.Label.Text = panels[i][1]

			sc, err := plotter.NewScatter(xys(pan[i][0], pan[i][1]))
			if err != nil {
				return err
			}
			sc.GlyphStyle.Color = r.Style.Color(req.Bunch)
			sc.GlyphStyle.Radius = vg.Points(1)
			p.Add(sc)
			plots[row][col] = p
		}
	}

	title := gonumplot.New()
	title.HideAxes()
	title.Title.Text = req.Title(d)

	w := vg.Points(float64(r.Style.PhaseCanvas.Width))
	h := vg.Points(float64(r.Style.PhaseCanvas.Height))
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	c, err := draw.NewFormattedCanvas(w, h, format)
	if err != nil {
		return err
	}
	dc := draw.New(c)

	title.Draw(draw.Crop(dc, 0, 0, h-titleHeight, 0))
	body := draw.Crop(dc, 0, 0, 0, -titleHeight)
	tiles := draw.Tiles{Rows: 2, Cols: 2, PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := gonumplot.Align(plots, tiles, body)
	for row := range plots {
		for col := range plots[row] {
			plots[row][col].Draw(canvases[row][col])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EnergyRange returns the histogram range used by a FinalEnergyPlot. Every
// bunch shares the same binning.
func EnergyRange(d *data.Data, req *FinalEnergyPlot) (lo, hi float64, err error) {
	if req.XMin != req.XMax {
		return req.XMin, req.XMax, nil
	}
	all := []float64{}
	for bunch := 1; bunch <= d.BunchCount(); bunch++ {
		t, err := d.EndTable(bunch)
		if err != nil {
			return 0, 0, err
		}
		all = append(all, data.MustColumn(t, "W")...)
	}
	lo, hi = stats.AutoRange(all)
	return lo, hi, nil
}

func (r *Renderer) energyPlot(d *data.Data, req *FinalEnergyPlot) (*gonumplot.Plot, error) {
	lo, hi, err := EnergyRange(d, req)
	if err != nil {
		return nil, err
	}

	p := gonumplot.New()
	p.X.Label.Text = r.Style.EnergyXTitle
	p.Y.Label.Text = r.Style.EnergyYTitle

	names := d.BunchNames()
	for bunch := 1; bunch <= d.BunchCount(); bunch++ {
		t, err := d.EndTable(bunch)
		if err != nil {
			return nil, err
		}
		hist := stats.Histogram(data.MustColumn(t, "W"), req.Bins, lo, hi)

		h := hplot.NewH1D(hist)
		h.FillColor = nil
		h.LineStyle.Color = r.Style.Color(bunch)
		h.Infos.Style = hplot.HInfoNone
		p.Add(h)
		p.Legend.Add(names[bunch-1], h)
	}

	p.X.Min, p.X.Max = lo, hi
	return p, nil
}

func (r *Renderer) xyPlot(req *XYPlot) (*gonumplot.Plot, error) {
	p := gonumplot.New()
	p.Title.Text = req.Title
	p.X.Label.Text = req.XTitle
	p.Y.Label.Text = req.YTitle

	line, points, err := plotter.NewLinePoints(xys(req.X, req.Y))
	if err != nil {
		return nil, err
	}
	line.Color = r.Style.Color(1)
	points.Color = r.Style.Color(1)
	p.Add(line, points)

	applyAxes(p, req.Axes)
	return p, nil
}

func applyAxes(p *gonumplot.Plot, a Axes) {
	if !a.autoX() {
		p.X.Min, p.X.Max = a.XMin, a.XMax
	}
	if !a.autoY() {
		p.Y.Min, p.Y.Max = a.YMin, a.YMax
	}
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range pts {
		pts[i].X, pts[i].Y = x[i], y[i]
	}
	return pts
}
