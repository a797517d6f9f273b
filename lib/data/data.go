/*package data holds the tables loaded from a single Impact-T run directory.

A Data is created empty with New, filled with Load, and emptied with Reset:

   d, err := data.New(data.Config{BunchCount: 3, Layout: layout})
   if err != nil { ... }
   if err := d.Load([]int{41, 42, 45}); err != nil { ... }

Every Load reads the step log, the phase-space files at the start of the
simulation (location 40), at each requested BPM, and at the end of the
simulation (location 50), and, if present, the .dst files written at the end
of the run. A Load replaces everything loaded before it. A failed Load leaves
the Data empty.
*/
package data

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
	"github.com/phil-mansfield/impact/lib/metrics"
)

// Variant selects between the two flavors of Impact-T output.
type Variant int

const (
	// Standard runs only load .dst files if rfq1.dst exists.
	Standard Variant = iota
	// RFQ runs always have .dst files and fail to load without them.
	RFQ
)

// ParseVariant converts the "variant" config variable to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "standard", "":
		return Standard, nil
	case "rfq":
		return RFQ, nil
	}
	return Standard, g_error.InvalidArgumentf("the variant '%s' is not "+
		"recognized. It must be 'standard' or 'rfq'", s)
}

func (v Variant) String() string {
	if v == RFQ {
		return "rfq"
	}
	return "standard"
}

// State is the state of a Data.
type State int

const (
	Empty State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "empty"
}

// Config configures a Data.
type Config struct {
	Variant    Variant
	BunchCount int
	// BunchNames are display names. Missing names are filled in with
	// "Bunch i" and extra names are dropped.
	BunchNames []string
	// CellCount is the number of RFQ cells. Impact-T doesn't write it
	// anywhere, so it has to be supplied by the user.
	CellCount int
	// Layout defaults to impactio.DefaultLayout(".").
	Layout *impactio.Layout
	// Logger defaults to a logger which discards everything.
	Logger *slog.Logger
}

// Data is the loaded contents of a run directory.
type Data struct {
	variant    Variant
	bunchCount int
	names      []string
	layout     *impactio.Layout
	log        *slog.Logger

	state     State
	bunches   *BunchTable
	phase     map[impactio.PhaseKey]*PhaseTable
	locations []int
	end       []*EndTable

	sliceCount, particleCount, cellCount int
	firstSlice, lastSlice                int
	firstCell, lastCell                  int
}

// New creates an empty Data. The bunch count is checked here and again before
// every Load.
func New(cfg Config) (*Data, error) {
	if err := impactio.CheckBunchCount(cfg.BunchCount); err != nil {
		return nil, err
	}
	if cfg.CellCount < 0 {
		return nil, g_error.InvalidArgumentf("the cell count is %d, but it "+
			"cannot be negative", cfg.CellCount)
	}

	d := &Data{
		variant:    cfg.Variant,
		bunchCount: cfg.BunchCount,
		cellCount:  cfg.CellCount,
		layout:     cfg.Layout,
		log:        cfg.Logger,
	}
	if d.layout == nil {
		d.layout = impactio.DefaultLayout(".")
	}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d.SetBunchNames(cfg.BunchNames)
	d.Reset()
	return d, nil
}

// Reset empties the Data.
func (d *Data) Reset() {
	d.state = Empty
	d.bunches = &BunchTable{n: d.bunchCount}
	d.phase = map[impactio.PhaseKey]*PhaseTable{}
	d.locations = []int{}
	d.end = nil
	d.sliceCount, d.particleCount = 0, 0
	d.firstSlice, d.lastSlice = 0, 0
	d.firstCell, d.lastCell = 0, 0
}

// Load reads the run directory. bpmList gives the BPM locations to read in
// order. A missing BPM file is skipped with a warning, but missing start, end,
// or step log files are errors.
func (d *Data) Load(bpmList []int) error {
	start := time.Now()
	d.Reset()

	if err := impactio.CheckBunchCount(d.bunchCount); err != nil {
		return err
	}
	if err := checkBPMList(bpmList); err != nil {
		return err
	}

	in, err := d.read(bpmList)
	if err != nil {
		d.Reset()
		return err
	}
	d.assemble(in)

	metrics.ObserveLoad(start)
	d.log.Info("run loaded", "dir", d.layout.Dir, "slices", d.sliceCount,
		"locations", len(d.locations), "end_slices", d.HasEndSlices(),
		"elapsed", time.Since(start))
	return nil
}

// Contents is everything read from a run directory, before any counters are
// computed.
type Contents struct {
	Bunches []impactio.BunchCountRecord
	Phase   []*PhaseTable
	End     []*EndTable // nil if no .dst files were read.
}

// Assemble creates a Loaded Data directly from tables. This is used to
// restore Data from an archive.
func Assemble(cfg Config, in *Contents) (*Data, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, err
	}

	for _, r := range in.Bunches {
		if len(r.Counts) != d.bunchCount {
			return nil, g_error.InvalidArgumentf("step %d has %d bunch "+
				"counts, but the run has %d bunches",
				r.Step, len(r.Counts), d.bunchCount)
		}
	}
	for _, t := range in.Phase {
		if err := impactio.CheckBunch(t.Bunch, d.bunchCount); err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name(), err)
		}
	}
	if in.End != nil && len(in.End) != d.bunchCount {
		return nil, g_error.InvalidArgumentf("there are %d end-slice "+
			"tables, but the run has %d bunches", len(in.End), d.bunchCount)
	}
	for i, t := range in.End {
		if t == nil || t.Bunch != i+1 {
			return nil, g_error.InvalidArgumentf("end-slice table %d is "+
				"missing or out of order", i+1)
		}
	}

	d.assemble(in)
	return d, nil
}

func (d *Data) read(bpmList []int) (*Contents, error) {
	in := &Contents{}

	path := d.layout.StepLogPath()
	d.log.Info("loading bunch data", "path", path)
	recs, stop, err := impactio.ReadBunchCounts(path, d.bunchCount)
	if err != nil {
		return nil, err
	}
	d.observe(metrics.StepLog, path, len(recs), stop)
	in.Bunches = recs

	locs := append([]int{impactio.StartLocation}, bpmList...)
	locs = append(locs, impactio.EndLocation)
	for _, loc := range locs {
		optional := loc != impactio.StartLocation &&
			loc != impactio.EndLocation

		for bunch := 1; bunch <= d.bunchCount; bunch++ {
			path := d.layout.PhaseSpacePath(bunch, loc)
			d.log.Info("loading phase-space data", "path", path,
				"location", loc, "bunch", bunch)

			ps, stop, err := impactio.ReadPhaseSpaceAt(d.layout, bunch, loc)
			if optional && errors.Is(err, g_error.NotFound) {
				d.log.Warn("skipping missing BPM file", "path", path,
					"location", loc, "bunch", bunch)
				metrics.ObserveSkip(metrics.PhaseSpace)
				continue
			} else if err != nil {
				return nil, err
			}

			d.observe(metrics.PhaseSpace, path, len(ps), stop)
			in.Phase = append(in.Phase,
				&PhaseTable{Location: loc, Bunch: bunch, Particles: ps})
		}
	}

	if d.variant == Standard {
		path := d.layout.EndSlicePath(1)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Info("no end-slice files", "path", path)
			return in, nil
		} else if err != nil {
			return nil, fmt.Errorf("cannot check for end-slice files: %w", err)
		}
	}

	in.End = make([]*EndTable, d.bunchCount)
	for bunch := 1; bunch <= d.bunchCount; bunch++ {
		path := d.layout.EndSlicePath(bunch)
		d.log.Info("loading end-slice data", "path", path, "bunch", bunch)

		ps, stop, err := impactio.ReadEndSliceAt(d.layout, bunch)
		if err != nil {
			return nil, err
		}

		d.observe(metrics.EndSlice, path, len(ps), stop)
		in.End[bunch-1] = &EndTable{Bunch: bunch, Particles: ps}
	}

	return in, nil
}

func (d *Data) observe(kind, path string, n int, stop impactio.Stop) {
	metrics.ObserveFile(kind, n, stop.Malformed())
	if stop.Malformed() {
		d.log.Warn("stopped reading at a malformed row", "path", path,
			"row", stop.Row, "reason", stop.Reason, "rows_read", n)
	} else if stop.Reason != "" {
		d.log.Debug("file ended early", "path", path, "reason", stop.Reason)
	}
}

// assemble installs the tables and sets every counter.
func (d *Data) assemble(in *Contents) {
	d.bunches = &BunchTable{Records: in.Bunches, n: d.bunchCount}

	d.locations = []int{}
	for _, t := range in.Phase {
		key := impactio.PhaseKey{Bunch: t.Bunch, Location: t.Location}
		if _, ok := d.phase[key]; !ok && !containsInt(d.locations, t.Location) {
			d.locations = append(d.locations, t.Location)
		}
		d.phase[key] = t
		d.particleCount = max(d.particleCount, t.Len())
	}

	d.end = in.End
	for _, t := range d.end {
		d.particleCount = max(d.particleCount, t.Len())
	}

	d.sliceCount = len(in.Bunches)
	d.lastSlice = max(0, d.sliceCount-1)
	d.firstSlice = min(1, d.lastSlice)
	d.lastCell = max(0, d.cellCount-1)
	d.firstCell = min(1, d.lastCell)

	d.state = Loaded
}

func checkBPMList(bpmList []int) error {
	seen := map[int]bool{}
	for _, loc := range bpmList {
		switch {
		case loc < 1:
			return g_error.InvalidArgumentf("the BPM list contains %d, but "+
				"locations must be positive", loc)
		case loc == impactio.StartLocation || loc == impactio.EndLocation:
			return g_error.InvalidArgumentf("the BPM list contains %d, which "+
				"is reserved for the start and end of the simulation", loc)
		case seen[loc]:
			return g_error.InvalidArgumentf("the BPM list contains %d more "+
				"than once", loc)
		}
		seen[loc] = true
	}
	return nil
}

func containsInt(x []int, n int) bool {
	for i := range x {
		if x[i] == n {
			return true
		}
	}
	return false
}

func (d *Data) State() State             { return d.state }
func (d *Data) Loaded() bool             { return d.state == Loaded }
func (d *Data) Variant() Variant         { return d.variant }
func (d *Data) BunchCount() int          { return d.bunchCount }
func (d *Data) CellCount() int           { return d.cellCount }
func (d *Data) SliceCount() int          { return d.sliceCount }
func (d *Data) ParticleCount() int       { return d.particleCount }
func (d *Data) Layout() *impactio.Layout { return d.layout }
func (d *Data) Logger() *slog.Logger     { return d.log }
func (d *Data) FirstSlice() int          { return d.firstSlice }
func (d *Data) LastSlice() int           { return d.lastSlice }
func (d *Data) FirstCell() int           { return d.firstCell }
func (d *Data) LastCell() int            { return d.lastCell }
func (d *Data) HasEndSlices() bool       { return d.end != nil }
func (d *Data) BunchTable() *BunchTable  { return d.bunches }

// Locations returns the phase-space locations that were loaded, in load
// order.
func (d *Data) Locations() []int {
	return append([]int{}, d.locations...)
}

// BunchNames returns the display name of every bunch.
func (d *Data) BunchNames() []string {
	return append([]string{}, d.names...)
}

// BunchName returns the display name of a 1-indexed bunch.
func (d *Data) BunchName(bunch int) (string, error) {
	if err := impactio.CheckBunch(bunch, d.bunchCount); err != nil {
		return "", err
	}
	return d.names[bunch-1], nil
}

// SetBunchNames sets the display names of the bunches. If there are too few
// names, the rest are given default names, and if there are too many, the
// extras are dropped. Both cases are logged as warnings. A nil or empty list
// gives every bunch its default name silently.
func (d *Data) SetBunchNames(names []string) {
	d.names = make([]string, d.bunchCount)
	for i := range d.names {
		d.names[i] = fmt.Sprintf("Bunch %d", i+1)
	}
	if len(names) == 0 {
		return
	}

	if len(names) < d.bunchCount {
		d.log.Warn("too few bunch names, using default names for the rest",
			"names", len(names), "bunches", d.bunchCount)
	} else if len(names) > d.bunchCount {
		d.log.Warn("too many bunch names, ignoring the extras",
			"names", len(names), "bunches", d.bunchCount)
	}
	copy(d.names, names)
}

// SetSliceRange sets the default range of slices used by bunch plots.
func (d *Data) SetSliceRange(first, last int) error {
	if err := d.checkLoaded(); err != nil {
		return err
	}
	if err := CheckRange("slice", first, last, d.sliceCount); err != nil {
		return err
	}
	d.firstSlice, d.lastSlice = first, last
	return nil
}

// SetFirstSlice sets the first slice used by bunch plots.
func (d *Data) SetFirstSlice(first int) error {
	return d.SetSliceRange(first, d.lastSlice)
}

// SetLastSlice sets the last slice used by bunch plots.
func (d *Data) SetLastSlice(last int) error {
	return d.SetSliceRange(d.firstSlice, last)
}

// SetCellRange sets the default range of RFQ cells.
func (d *Data) SetCellRange(first, last int) error {
	if err := d.checkLoaded(); err != nil {
		return err
	}
	if err := CheckRange("cell", first, last, d.cellCount); err != nil {
		return err
	}
	d.firstCell, d.lastCell = first, last
	return nil
}

// SetFirstCell sets the first RFQ cell.
func (d *Data) SetFirstCell(first int) error {
	return d.SetCellRange(first, d.lastCell)
}

// SetLastCell sets the last RFQ cell.
func (d *Data) SetLastCell(last int) error {
	return d.SetCellRange(d.firstCell, last)
}

// CheckRange returns an InvalidArgument error unless
// 0 <= first <= last <= count. what names the index in the error message.
func CheckRange(what string, first, last, count int) error {
	switch {
	case first < 0:
		return g_error.InvalidArgumentf("the first %s is %d, but it cannot "+
			"be negative", what, first)
	case last < 0:
		return g_error.InvalidArgumentf("the last %s is %d, but it cannot "+
			"be negative", what, last)
	case first > count:
		return g_error.InvalidArgumentf("the first %s is %d, but it must be "+
			"in the range [0, %d]", what, first, count)
	case last > count:
		return g_error.InvalidArgumentf("the last %s is %d, but it must be "+
			"in the range [0, %d]", what, last, count)
	case last < first:
		return g_error.InvalidArgumentf("the last %s, %d, comes before the "+
			"first %s, %d", what, last, what, first)
	}
	return nil
}

func (d *Data) checkLoaded() error {
	if d.state != Loaded {
		return g_error.InvalidArgumentf("no run has been loaded")
	}
	return nil
}

// PhaseTable returns the phase-space table of a bunch at a location.
func (d *Data) PhaseTable(location, bunch int) (*PhaseTable, error) {
	if err := d.checkLoaded(); err != nil {
		return nil, err
	}
	if err := impactio.CheckBunch(bunch, d.bunchCount); err != nil {
		return nil, err
	}
	t, ok := d.phase[impactio.PhaseKey{Bunch: bunch, Location: location}]
	if !ok {
		return nil, g_error.InvalidArgumentf("no phase-space data was "+
			"loaded for bunch %d at location %d. Loaded locations are %v",
			bunch, location, d.locations)
	}
	return t, nil
}

// EndTable returns the end-slice table of a bunch.
func (d *Data) EndTable(bunch int) (*EndTable, error) {
	if err := d.checkLoaded(); err != nil {
		return nil, err
	}
	if err := impactio.CheckBunch(bunch, d.bunchCount); err != nil {
		return nil, err
	}
	if d.end == nil {
		return nil, g_error.InvalidArgumentf("no end-slice data was loaded")
	}
	return d.end[bunch-1], nil
}

// Tables returns every loaded table: the bunch table, then the phase-space
// tables in load order, then the end-slice tables.
func (d *Data) Tables() []Table {
	if d.state != Loaded {
		return nil
	}

	out := []Table{d.bunches}
	for _, loc := range d.locations {
		for bunch := 1; bunch <= d.bunchCount; bunch++ {
			key := impactio.PhaseKey{Bunch: bunch, Location: loc}
			if t, ok := d.phase[key]; ok {
				out = append(out, t)
			}
		}
	}
	for _, t := range d.end {
		out = append(out, t)
	}
	return out
}

// Table looks up a table by name.
func (d *Data) Table(name string) (Table, error) {
	if err := d.checkLoaded(); err != nil {
		return nil, err
	}
	names := []string{}
	for _, t := range d.Tables() {
		if t.Name() == name {
			return t, nil
		}
		names = append(names, t.Name())
	}
	return nil, g_error.InvalidArgumentf("there is no table named '%s'. "+
		"Loaded tables are %v", name, names)
}
