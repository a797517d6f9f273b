package data

import (
	"fmt"
	"strconv"
	"strings"

	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
)

// Table is a named set of equal-length float64 columns. Every file impact
// loads is exposed as a Table.
type Table interface {
	// Name is the name of the table: "bunches", "phase.out<loc>.bunch<k>",
	// or "endslice.bunch<k>".
	Name() string
	// Columns returns the names of the columns in the order they appear in
	// the file.
	Columns() []string
	// Column returns a copy of a column. Unknown names return an
	// InvalidArgument error.
	Column(name string) ([]float64, error)
	// Len returns the number of rows.
	Len() int
}

// BunchTableName is the name of the table built from the step log.
const BunchTableName = "bunches"

// PhaseTableName returns the name of the table built from a phase-space file.
func PhaseTableName(location, bunch int) string {
	return fmt.Sprintf("phase.out%d.bunch%d", location, bunch)
}

// EndTableName returns the name of the table built from a .dst file.
func EndTableName(bunch int) string {
	return fmt.Sprintf("endslice.bunch%d", bunch)
}

// BunchTable holds the rows of the step log.
type BunchTable struct {
	Records []impactio.BunchCountRecord
	n       int
}

// PhaseTable holds the particles of one phase-space file.
type PhaseTable struct {
	Location, Bunch int
	Particles       []impactio.PhaseSpaceParticle
}

// EndTable holds the particles of one .dst file.
type EndTable struct {
	Bunch     int
	Particles []impactio.EndSliceParticle
}

var (
	_ Table = &BunchTable{}
	_ Table = &PhaseTable{}
	_ Table = &EndTable{}
)

func (t *BunchTable) Name() string { return BunchTableName }
func (t *BunchTable) Len() int     { return len(t.Records) }

// Columns returns "i", "t", "z", "bunches", and then "n1" through "nN".
func (t *BunchTable) Columns() []string {
	cols := []string{"i", "t", "z", "bunches"}
	for k := 1; k <= t.n; k++ {
		cols = append(cols, fmt.Sprintf("n%d", k))
	}
	return cols
}

func (t *BunchTable) Column(name string) ([]float64, error) {
	out := make([]float64, len(t.Records))
	switch name {
	case "i":
		for i, r := range t.Records {
			out[i] = float64(r.Step)
		}
		return out, nil
	case "t":
		for i, r := range t.Records {
			out[i] = r.T
		}
		return out, nil
	case "z":
		for i, r := range t.Records {
			out[i] = r.Z
		}
		return out, nil
	case "bunches":
		for i, r := range t.Records {
			out[i] = float64(r.BunchFlag)
		}
		return out, nil
	}

	if strings.HasPrefix(name, "n") {
		k, err := strconv.Atoi(name[1:])
		if err == nil && k >= 1 && k <= t.n {
			return t.Counts(k)
		}
	}
	return nil, unknownColumn(t, name)
}

// Counts returns the number of particles in a bunch at each slice. Bunches
// are 1-indexed.
func (t *BunchTable) Counts(bunch int) ([]float64, error) {
	if err := impactio.CheckBunch(bunch, t.n); err != nil {
		return nil, err
	}
	out := make([]float64, len(t.Records))
	for i, r := range t.Records {
		out[i] = float64(r.Counts[bunch-1])
	}
	return out, nil
}

// Expression returns the name of the cumulative count of bunches 1 through
// k plotted against z, e.g. "bunches.n1+bunches.n2:bunches.z".
func (t *BunchTable) Expression(k int) string {
	expr := ""
	for i := 1; i <= k; i++ {
		if i > 1 {
			expr += "+"
		}
		expr += fmt.Sprintf("%s.n%d", BunchTableName, i)
	}
	return expr + ":" + BunchTableName + ".z"
}

func (t *PhaseTable) Name() string { return PhaseTableName(t.Location, t.Bunch) }
func (t *PhaseTable) Len() int     { return len(t.Particles) }

func (t *PhaseTable) Columns() []string {
	return []string{"x", "px", "y", "py", "z", "pz"}
}

func (t *PhaseTable) Column(name string) ([]float64, error) {
	var get func(p *impactio.PhaseSpaceParticle) float64
	switch name {
	case "x":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.X }
	case "px":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.Px }
	case "y":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.Y }
	case "py":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.Py }
	case "z":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.Z }
	case "pz":
		get = func(p *impactio.PhaseSpaceParticle) float64 { return p.Pz }
	default:
		return nil, unknownColumn(t, name)
	}

	out := make([]float64, len(t.Particles))
	for i := range t.Particles {
		out[i] = get(&t.Particles[i])
	}
	return out, nil
}

func (t *EndTable) Name() string { return EndTableName(t.Bunch) }
func (t *EndTable) Len() int     { return len(t.Particles) }

func (t *EndTable) Columns() []string {
	return []string{"x", "xp", "y", "yp", "phi", "W"}
}

func (t *EndTable) Column(name string) ([]float64, error) {
	var get func(p *impactio.EndSliceParticle) float64
	switch name {
	case "x":
		get = func(p *impactio.EndSliceParticle) float64 { return p.X }
	case "xp":
		get = func(p *impactio.EndSliceParticle) float64 { return p.Xp }
	case "y":
		get = func(p *impactio.EndSliceParticle) float64 { return p.Y }
	case "yp":
		get = func(p *impactio.EndSliceParticle) float64 { return p.Yp }
	case "phi":
		get = func(p *impactio.EndSliceParticle) float64 { return p.Phi }
	case "W":
		get = func(p *impactio.EndSliceParticle) float64 { return p.W }
	default:
		return nil, unknownColumn(t, name)
	}

	out := make([]float64, len(t.Particles))
	for i := range t.Particles {
		out[i] = get(&t.Particles[i])
	}
	return out, nil
}

func unknownColumn(t Table, name string) error {
	return g_error.InvalidArgumentf("the table '%s' has no column '%s'. Its "+
		"columns are %v", t.Name(), name, t.Columns())
}

// MustColumn is like Table.Column, but treats an unknown column as an
// internal error. Only use it with column names from Columns().
func MustColumn(t Table, name string) []float64 {
	col, err := t.Column(name)
	if err != nil {
		g_error.Internal("%s", err.Error())
	}
	return col
}
