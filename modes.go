package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/phil-mansfield/impact/lib"
	"github.com/phil-mansfield/impact/lib/archive"
	"github.com/phil-mansfield/impact/lib/catalog"
	"github.com/phil-mansfield/impact/lib/data"
	"github.com/phil-mansfield/impact/lib/eq"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
	"github.com/phil-mansfield/impact/lib/plot"
)

/* modes.go contains the functions behind each of impact's subcommands. */

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

func (s *session) check() error {
	problems := lib.Problems(s.args)
	if !lib.CheckProblems(s.args, problems, s.log) {
		failColor.Fprintf(s.out, "Check failed: %s.\n", lib.Summary(problems))
		return g_error.InvalidArgumentf("the configuration does not match "+
			"the run directory %s", s.args.Layout.Dir)
	}
	if len(problems) > 0 {
		warnColor.Fprintf(s.out, "No errors detected: %s.\n",
			lib.Summary(problems))
		return nil
	}
	okColor.Fprintln(s.out, "No errors detected.")
	return nil
}

// load reads the run directory described by the session's Args.
func (s *session) load() (*data.Data, error) {
	cfg := s.args.Config()
	cfg.Logger = s.log
	d, err := data.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Load(s.args.BPMList); err != nil {
		return nil, err
	}
	s.log.Info("loaded run", "dir", s.args.Layout.Dir,
		"slices", d.SliceCount(), "tables", len(d.Tables()))
	return d, nil
}

func (s *session) print() error {
	d, err := s.load()
	if err != nil {
		return err
	}
	return d.Print(s.out)
}

func (s *session) plot() error {
	d, err := s.load()
	if err != nil {
		return err
	}
	r, err := plot.NewRenderer(plot.DefaultStyle(), s.args.Plot.OutputDir,
		s.args.Plot.Format)
	if err != nil {
		return err
	}
	reqs, err := plotRequests(d, r.Style, &s.args.Plot)
	if err != nil {
		return err
	}

	for _, req := range reqs {
		path, err := r.Render(d, req)
		if err != nil {
			return err
		}
		s.log.Debug("wrote plot", "kind", req.Kind(), "path", path)
		fmt.Fprintf(s.out, "%s %s\n", okColor.Sprint("wrote"), path)
	}
	return nil
}

// plotRequests turns the plot.* variables into a list of plots. Plots which
// need data the run doesn't have, like the final energy plot of a run
// without .dst files, are skipped.
func plotRequests(d *data.Data, style *plot.Style, p *lib.PlotArgs) ([]plot.Request, error) {
	out := []plot.Request{}
	for _, kind := range p.Kinds {
		switch kind {
		case "bunch":
			req := plot.NewBunchPlot(d)
			if p.FirstSlice != nil {
				req.FirstSlice = *p.FirstSlice
			}
			if p.LastSlice != nil {
				req.LastSlice = *p.LastSlice
			}
			req.Axes = p.Axes
			out = append(out, req)

		case "phase":
			locs := []int{impactio.StartLocation, impactio.EndLocation}
			if p.Location != 0 {
				locs = []int{p.Location}
			}
			for _, loc := range locs {
				for bunch := 1; bunch <= d.BunchCount(); bunch++ {
					if p.Bunch != 0 && p.Bunch != bunch {
						continue
					}
					out = append(out, &plot.PhaseSpacePlot{
						Location: loc, Bunch: bunch,
					})
				}
			}

		case "energy":
			if !d.HasEndSlices() {
				continue
			}
			req := plot.NewFinalEnergyPlot(d, style)
			if p.Bins > 0 {
				req.Bins = p.Bins
			}
			if p.Axes.XMin != p.Axes.XMax {
				req.XMin, req.XMax = p.Axes.XMin, p.Axes.XMax
			}
			out = append(out, req)

		case "xy":
			req, err := xyRequest(d, p)
			if err != nil {
				return nil, err
			}
			out = append(out, req)

		default:
			return nil, g_error.InvalidArgumentf("the plot kind '%s' is "+
				"not one of %v", kind, lib.PlotKinds)
		}
	}
	return out, nil
}

func xyRequest(d *data.Data, p *lib.PlotArgs) (*plot.XYPlot, error) {
	var req *plot.XYPlot
	if p.XTable == p.YTable {
		var err error
		req, err = plot.NewXYPlot(d, p.XTable, p.XColumn, p.YColumn)
		if err != nil {
			return nil, err
		}
	} else {
		x, err := column(d, p.XTable, p.XColumn)
		if err != nil {
			return nil, err
		}
		y, err := column(d, p.YTable, p.YColumn)
		if err != nil {
			return nil, err
		}
		req = &plot.XYPlot{
			X: x, Y: y,
			Title:  fmt.Sprintf("%s.%s:%s.%s", p.YTable, p.YColumn, p.XTable, p.XColumn),
			XTitle: p.XTable + "." + p.XColumn,
			YTitle: p.YTable + "." + p.YColumn,
		}
	}
	req.Canvas = p.Canvas
	req.Axes = p.Axes
	return req, nil
}

func column(d *data.Data, table, col string) ([]float64, error) {
	t, err := d.Table(table)
	if err != nil {
		return nil, err
	}
	return t.Column(col)
}

func (s *session) convert() error {
	d, err := s.load()
	if err != nil {
		return err
	}
	if err := archive.Write(s.args.Archive, d); err != nil {
		return err
	}

	info, err := os.Stat(s.args.Archive)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s: %d tables, %s\n", okColor.Sprint("wrote"),
		s.args.Archive, len(d.Tables()), humanize.Bytes(uint64(info.Size())))
	return nil
}

func (s *session) confirm() error {
	d, err := s.load()
	if err != nil {
		return err
	}
	a, err := archive.Read(s.args.Archive, s.log)
	if err != nil {
		return err
	}

	if err := compare(d, a); err != nil {
		failColor.Fprintf(s.out, "%s does not match %s.\n", s.args.Archive,
			s.args.Layout.Dir)
		return err
	}
	okColor.Fprintf(s.out, "No errors detected: %s matches %s.\n",
		s.args.Archive, s.args.Layout.Dir)
	return nil
}

// compare returns a Corrupt error describing the first difference between a
// run loaded from disk and the same run read from an archive.
func compare(d, a *data.Data) error {
	switch {
	case d.Variant() != a.Variant():
		return g_error.Corruptf("the archive variant is %s, not %s",
			a.Variant(), d.Variant())
	case d.BunchCount() != a.BunchCount():
		return g_error.Corruptf("the archive has %d bunches, not %d",
			a.BunchCount(), d.BunchCount())
	case d.SliceCount() != a.SliceCount():
		return g_error.Corruptf("the archive has %d slices, not %d",
			a.SliceCount(), d.SliceCount())
	case !eq.Generic(d.BunchNames(), a.BunchNames()):
		return g_error.Corruptf("the archive bunch names are %v, not %v",
			a.BunchNames(), d.BunchNames())
	case !eq.Slices(d.Locations(), a.Locations()):
		return g_error.Corruptf("the archive locations are %v, not %v",
			a.Locations(), d.Locations())
	}

	dTables, aTables := d.Tables(), a.Tables()
	if len(dTables) != len(aTables) {
		return g_error.Corruptf("the archive has %d tables, not %d",
			len(aTables), len(dTables))
	}
	for _, dt := range dTables {
		at, err := a.Table(dt.Name())
		if err != nil {
			return g_error.Corruptf("the archive is missing table %s",
				dt.Name())
		}
		if !eq.Slices(dt.Columns(), at.Columns()) {
			return g_error.Corruptf("the archive's %s columns are %v, not %v",
				dt.Name(), at.Columns(), dt.Columns())
		}
		for _, col := range dt.Columns() {
			x, y := data.MustColumn(dt, col), data.MustColumn(at, col)
			if !eq.Float64s(x, y) {
				return g_error.Corruptf("the archive's %s.%s column does "+
					"not match the run", dt.Name(), col)
			}
		}
	}
	return nil
}

func (s *session) export(ctx context.Context, name string) error {
	d, err := s.load()
	if err != nil {
		return err
	}
	if name == "" {
		dir, err := filepath.Abs(s.args.Layout.Dir)
		if err != nil {
			return err
		}
		name = filepath.Base(dir)
	}

	c, err := catalog.Open(s.args.Catalog)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := c.Export(ctx, d, name)
	if err != nil {
		return err
	}
	n, err := c.Counts(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s %s as %s in %s\n", okColor.Sprint("exported"),
		name, id, s.args.Catalog)
	fmt.Fprintf(s.out, "  %s steps, %s phase-space particles, "+
		"%s end-slice particles\n", humanize.Comma(int64(n.BunchSteps)),
		humanize.Comma(int64(n.PhaseParticles)), humanize.Comma(int64(n.EndParticles)))
	return nil
}
