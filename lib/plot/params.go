/*package plot validates and renders impact's four plot types:

   BunchPlot       - cumulative macro-particle counts against z.
   PhaseSpacePlot  - px:x, py:y, pz:z, and y:x scatter panels for one bunch at
                     one location.
   FinalEnergyPlot - overlaid histograms of the final energy of each bunch.
   XYPlot          - a generic plot of two columns.

Every request is validated against the loaded data before anything is drawn.
Static formats (eps, pdf, svg, png) are drawn with gonum/plot and go-hep's
hplot, and html with go-echarts.
*/
package plot

import (
	"fmt"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
)

// Request is a plot which can be validated and rendered.
type Request interface {
	// Kind is "bunch", "phase", "energy", or "xy".
	Kind() string
	// Validate returns an InvalidArgument error if the request can't be drawn
	// from d.
	Validate(d *data.Data) error
	// FileName returns the name of the output file, without an extension.
	FileName(d *data.Data) string
}

// Axes are optional axis ranges. A range with equal bounds is chosen
// automatically.
type Axes struct {
	XMin, XMax, YMin, YMax float64
}

func (a Axes) validate() error {
	if a.XMin > a.XMax {
		return g_error.InvalidArgumentf("the x-axis minimum, %g, is larger "+
			"than the maximum, %g", a.XMin, a.XMax)
	} else if a.YMin > a.YMax {
		return g_error.InvalidArgumentf("the y-axis minimum, %g, is larger "+
			"than the maximum, %g", a.YMin, a.YMax)
	}
	return nil
}

func (a Axes) autoX() bool { return a.XMin == a.XMax }
func (a Axes) autoY() bool { return a.YMin == a.YMax }

// BunchPlot is a plot of the cumulative number of macro-particles in each
// bunch against z, over the slices [FirstSlice, LastSlice].
type BunchPlot struct {
	FirstSlice, LastSlice int
	Axes
}

// NewBunchPlot creates a BunchPlot over the default slice range of d.
func NewBunchPlot(d *data.Data) *BunchPlot {
	return &BunchPlot{FirstSlice: d.FirstSlice(), LastSlice: d.LastSlice()}
}

func (p *BunchPlot) Kind() string { return "bunch" }

func (p *BunchPlot) Validate(d *data.Data) error {
	if err := checkLoaded(d); err != nil {
		return err
	}
	err := data.CheckRange("slice", p.FirstSlice, p.LastSlice, d.SliceCount())
	if err != nil {
		return err
	}
	return p.Axes.validate()
}

func (p *BunchPlot) FileName(d *data.Data) string { return "bunch-count" }

// rows returns the step log rows covered by the plot.
func (p *BunchPlot) rows(n int) (lo, hi int) {
	return min(p.FirstSlice, n), min(p.LastSlice+1, n)
}

// PhaseSpacePlot is the 2x2 panel of phase-space projections for a bunch at
// a location.
type PhaseSpacePlot struct {
	Location, Bunch int
}

func (p *PhaseSpacePlot) Kind() string { return "phase" }

func (p *PhaseSpacePlot) Validate(d *data.Data) error {
	if err := checkLoaded(d); err != nil {
		return err
	}
	if err := impactio.CheckBunch(p.Bunch, d.BunchCount()); err != nil {
		return err
	}
	_, err := d.PhaseTable(p.Location, p.Bunch)
	return err
}

// Title returns the title drawn above the panels.
func (p *PhaseSpacePlot) Title(d *data.Data) string {
	title := "Phase space at " + locationName(p.Location)
	if d.BunchCount() > 1 {
		title += fmt.Sprintf(" for bunch %d", p.Bunch)
	}
	return title
}

func (p *PhaseSpacePlot) FileName(d *data.Data) string {
	var name string
	switch p.Location {
	case impactio.StartLocation:
		name = "phase-start"
	case impactio.EndLocation:
		name = "phase-end"
	default:
		name = fmt.Sprintf("phase-%d", p.Location)
	}
	if d.BunchCount() > 1 {
		name += fmt.Sprintf("-bunch%d", p.Bunch)
	}
	return name
}

func locationName(loc int) string {
	switch loc {
	case impactio.StartLocation:
		return "simulation start"
	case impactio.EndLocation:
		return "simulation end"
	}
	return fmt.Sprintf("BPM %d", loc)
}

// panels are the (x, y) columns of the four phase-space panels.
var panels = [4][2]string{{"x", "px"}, {"y", "py"}, {"z", "pz"}, {"x", "y"}}

// FinalEnergyPlot overlays a histogram of the final energy of each bunch.
// Bins and the x-range default to the Style's values for the data's variant.
type FinalEnergyPlot struct {
	Bins       int
	XMin, XMax float64
}

// NewFinalEnergyPlot creates a FinalEnergyPlot with the default binning for
// the variant of d.
func NewFinalEnergyPlot(d *data.Data, s *Style) *FinalEnergyPlot {
	r := s.StandardEnergyRange
	if d.Variant() == data.RFQ {
		r = s.RFQEnergyRange
	}
	return &FinalEnergyPlot{Bins: s.EnergyBins, XMin: r[0], XMax: r[1]}
}

func (p *FinalEnergyPlot) Kind() string { return "energy" }

func (p *FinalEnergyPlot) Validate(d *data.Data) error {
	if err := checkLoaded(d); err != nil {
		return err
	}
	if !d.HasEndSlices() {
		return g_error.InvalidArgumentf("the final energy plot needs .dst " +
			"files, but none were loaded")
	}
	if p.Bins <= 0 {
		return g_error.InvalidArgumentf("the final energy plot has %d bins, "+
			"but it needs at least one", p.Bins)
	}
	if p.XMin > p.XMax {
		return g_error.InvalidArgumentf("the final energy minimum, %g, is "+
			"larger than the maximum, %g", p.XMin, p.XMax)
	}
	return nil
}

func (p *FinalEnergyPlot) FileName(d *data.Data) string { return "energy" }

// XYPlot is a generic plot of Y against X.
type XYPlot struct {
	X, Y                  []float64
	Title, XTitle, YTitle string
	// Canvas defaults to the Style's XYCanvas if either dimension is zero.
	Canvas Canvas
	// Output defaults to "rootplot".
	Output string
	Axes
}

// NewXYPlot creates an XYPlot from two columns of a loaded table.
func NewXYPlot(d *data.Data, table, xCol, yCol string) (*XYPlot, error) {
	t, err := d.Table(table)
	if err != nil {
		return nil, err
	}
	x, err := t.Column(xCol)
	if err != nil {
		return nil, err
	}
	y, err := t.Column(yCol)
	if err != nil {
		return nil, err
	}

	return &XYPlot{
		X: x, Y: y, Title: fmt.Sprintf("%s:%s", yCol, xCol),
		XTitle: fmt.Sprintf("%s.%s", table, xCol),
		YTitle: fmt.Sprintf("%s.%s", table, yCol),
	}, nil
}

func (p *XYPlot) Kind() string { return "xy" }

// Validate checks the series. XYPlot doesn't depend on the loaded data, so d
// may be nil.
func (p *XYPlot) Validate(d *data.Data) error {
	if len(p.X) == 0 {
		return g_error.InvalidArgumentf("the x-y plot has no points")
	} else if len(p.X) != len(p.Y) {
		return g_error.InvalidArgumentf("the x-y plot has %d x values but "+
			"%d y values", len(p.X), len(p.Y))
	} else if p.Canvas.Width < 0 || p.Canvas.Height < 0 {
		return g_error.InvalidArgumentf("the x-y plot canvas is %dx%d, but "+
			"sizes cannot be negative", p.Canvas.Width, p.Canvas.Height)
	}
	return p.Axes.validate()
}

func (p *XYPlot) FileName(d *data.Data) string {
	if p.Output == "" {
		return "rootplot"
	}
	return p.Output
}

func checkLoaded(d *data.Data) error {
	if d == nil || !d.Loaded() {
		return g_error.InvalidArgumentf("no run has been loaded")
	}
	return nil
}
