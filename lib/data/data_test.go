package data

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/format"
	"github.com/phil-mansfield/impact/lib/impactio"
)

// fakeRun creates a run with n bunches, 4 slices, phase-space files at the
// start, end, and each location in bpms, and .dst files if end is true.
func fakeRun(n int, bpms []int, end bool) *impactio.FakeRun {
	run := &impactio.FakeRun{
		Phase: map[impactio.PhaseKey][]impactio.PhaseSpaceParticle{},
	}

	for i := 0; i < 4; i++ {
		rec := impactio.BunchCountRecord{
			Step: int64(i + 1), T: float64(i) * 1e-10, Z: float64(i) * 0.1,
			BunchFlag: int32(n), Counts: make([]int32, n),
		}
		for k := range rec.Counts {
			rec.Counts[k] = int32(100*(k+1) + i)
		}
		run.Steps = append(run.Steps, rec)
	}

	locs := append([]int{impactio.StartLocation}, bpms...)
	locs = append(locs, impactio.EndLocation)
	for _, loc := range locs {
		for bunch := 1; bunch <= n; bunch++ {
			ps := make([]impactio.PhaseSpaceParticle, bunch+1)
			for i := range ps {
				f := float64(i + loc)
				ps[i] = impactio.PhaseSpaceParticle{
					X: f, Px: -f, Y: 2 * f, Py: float64(i % 2), Z: 0.1 * f, Pz: 1,
				}
			}
			key := impactio.PhaseKey{Bunch: bunch, Location: loc}
			run.Phase[key] = ps
		}
	}

	if end {
		run.End = map[int][]impactio.EndSliceParticle{}
		for bunch := 1; bunch <= n; bunch++ {
			ps := make([]impactio.EndSliceParticle, 3*bunch)
			for i := range ps {
				ps[i] = impactio.EndSliceParticle{W: 0.1 * float64(i+1)}
			}
			run.End[bunch] = ps
		}
	}

	return run
}

func newTestData(
	t *testing.T, cfg Config, run *impactio.FakeRun,
) (*Data, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg.Layout = impactio.DefaultLayout(t.TempDir())
	cfg.Logger = slog.New(slog.NewTextHandler(buf,
		&slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, run.Write(cfg.Layout))

	d, err := New(cfg)
	require.NoError(t, err)
	return d, buf
}

func TestNew(t *testing.T) {
	for _, n := range []int{0, -1, 100} {
		_, err := New(Config{BunchCount: n})
		assert.ErrorIs(t, err, g_error.InvalidArgument, "n = %d", n)
	}

	_, err := New(Config{BunchCount: 1, CellCount: -1})
	assert.ErrorIs(t, err, g_error.InvalidArgument)

	d, err := New(Config{BunchCount: 3})
	require.NoError(t, err)
	assert.Equal(t, Empty, d.State())
	assert.Equal(t, []string{"Bunch 1", "Bunch 2", "Bunch 3"}, d.BunchNames())
	assert.Nil(t, d.Tables())
}

func TestSetBunchNames(t *testing.T) {
	buf := &bytes.Buffer{}
	d, err := New(Config{
		BunchCount: 3, BunchNames: []string{"H-", "D+"},
		Logger: slog.New(slog.NewTextHandler(buf, nil)),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"H-", "D+", "Bunch 3"}, d.BunchNames())
	assert.Contains(t, buf.String(), "too few bunch names")

	d.SetBunchNames([]string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "b", "c"}, d.BunchNames())
	assert.Contains(t, buf.String(), "too many bunch names")

	name, err := d.BunchName(2)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	_, err = d.BunchName(4)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestLoad(t *testing.T) {
	run := fakeRun(2, []int{45}, false)
	d, logs := newTestData(t, Config{BunchCount: 2, CellCount: 10}, run)

	require.NoError(t, d.Load([]int{45, 47}))

	assert.Equal(t, Loaded, d.State())
	assert.Equal(t, 4, d.SliceCount())
	assert.Equal(t, 3, d.ParticleCount())
	assert.Equal(t, 10, d.CellCount())
	assert.Equal(t, []int{40, 45, 50}, d.Locations())
	assert.False(t, d.HasEndSlices())
	assert.Contains(t, logs.String(), "skipping missing BPM file")

	assert.Equal(t, 1, d.FirstSlice())
	assert.Equal(t, 3, d.LastSlice())
	assert.Equal(t, 1, d.FirstCell())
	assert.Equal(t, 9, d.LastCell())

	assert.Equal(t, run.Steps, d.BunchTable().Records)
	for _, loc := range []int{40, 45, 50} {
		for bunch := 1; bunch <= 2; bunch++ {
			tab, err := d.PhaseTable(loc, bunch)
			require.NoError(t, err)
			key := impactio.PhaseKey{Bunch: bunch, Location: loc}
			assert.Equal(t, run.Phase[key], tab.Particles)
		}
	}

	_, err := d.PhaseTable(47, 1)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	_, err = d.EndTable(1)
	assert.ErrorIs(t, err, g_error.InvalidArgument)

	tabs := d.Tables()
	require.Len(t, tabs, 7)
	assert.Equal(t, "bunches", tabs[0].Name())
	assert.Equal(t, "phase.out40.bunch1", tabs[1].Name())
	assert.Equal(t, "phase.out50.bunch2", tabs[6].Name())
}

func TestLoadIsIdempotent(t *testing.T) {
	run := fakeRun(3, []int{43}, true)
	d, _ := newTestData(t, Config{BunchCount: 3}, run)

	require.NoError(t, d.Load([]int{43}))
	first := d.Tables()
	require.NoError(t, d.Load([]int{43}))
	second := d.Tables()

	assert.Equal(t, first, second)
	assert.Equal(t, 9, d.ParticleCount())
}

func TestLoadReplaces(t *testing.T) {
	run := fakeRun(2, []int{45}, false)
	d, _ := newTestData(t, Config{BunchCount: 2}, run)

	require.NoError(t, d.Load([]int{45}))
	assert.Equal(t, []int{40, 45, 50}, d.Locations())
	require.NoError(t, d.Load(nil))
	assert.Equal(t, []int{40, 50}, d.Locations())
}

func TestLoadMissingRequired(t *testing.T) {
	run := fakeRun(2, nil, false)
	delete(run.Phase, impactio.PhaseKey{Bunch: 2, Location: 50})
	d, _ := newTestData(t, Config{BunchCount: 2}, run)

	err := d.Load(nil)
	assert.ErrorIs(t, err, g_error.NotFound)
	assert.Equal(t, Empty, d.State())
	assert.Equal(t, 0, d.SliceCount())

	run = fakeRun(1, nil, false)
	run.Steps = nil
	d, _ = newTestData(t, Config{BunchCount: 1}, run)
	assert.ErrorIs(t, d.Load(nil), g_error.NotFound)
}

func TestLoadFailureEmpties(t *testing.T) {
	run := fakeRun(1, nil, false)
	d, _ := newTestData(t, Config{BunchCount: 1}, run)
	require.NoError(t, d.Load(nil))

	require.NoError(t, os.Remove(d.Layout().PhaseSpacePath(1, 50)))
	assert.ErrorIs(t, d.Load(nil), g_error.NotFound)
	assert.False(t, d.Loaded())
	assert.Nil(t, d.Tables())
}

func TestLoadBPMList(t *testing.T) {
	run := fakeRun(1, nil, false)
	d, _ := newTestData(t, Config{BunchCount: 1}, run)

	for _, bpms := range [][]int{{0}, {-3}, {40}, {50}, {41, 41}} {
		assert.ErrorIs(t, d.Load(bpms), g_error.InvalidArgument, "%v", bpms)
	}
}

func TestLoadEndSlices(t *testing.T) {
	tests := []struct {
		variant Variant
		end     bool
		err     error
		hasEnd  bool
	}{
		{Standard, false, nil, false},
		{Standard, true, nil, true},
		{RFQ, true, nil, true},
		{RFQ, false, g_error.NotFound, false},
	}

	for i, tt := range tests {
		run := fakeRun(2, nil, tt.end)
		d, _ := newTestData(t, Config{BunchCount: 2, Variant: tt.variant}, run)

		err := d.Load(nil)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "%d)", i)
			continue
		}
		require.NoError(t, err, "%d)", i)
		assert.Equal(t, tt.hasEnd, d.HasEndSlices(), "%d)", i)

		if tt.hasEnd {
			tab, err := d.EndTable(2)
			require.NoError(t, err)
			assert.Equal(t, run.End[2], tab.Particles)
			assert.Equal(t, 6, d.ParticleCount(), "%d)", i)
		}
	}
}

func TestLoadEndSliceStatError(t *testing.T) {
	run := fakeRun(1, nil, false)
	d, _ := newTestData(t, Config{BunchCount: 1, Variant: Standard}, run)

	// The step log is a file, so nothing below it can be checked.
	d.Layout().EndSlice = format.MustParseFileFormat(
		impactio.DefaultStepLog + "/rfq{%d,bunch}.dst")
	err := d.Load(nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, g_error.NotFound)
	assert.False(t, d.Loaded())

	d.Layout().EndSlice = format.MustParseFileFormat(impactio.DefaultEndSlice)
	require.NoError(t, d.Load(nil))
	assert.False(t, d.HasEndSlices())
}

func TestLoadMalformedRow(t *testing.T) {
	run := fakeRun(1, nil, false)
	d, logs := newTestData(t, Config{BunchCount: 1}, run)

	f, err := os.OpenFile(d.Layout().StepLogPath(), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("5 0.0 0.0 1 abc\n6 0.0 0.0 1 7\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, d.Load(nil))
	assert.Equal(t, 4, d.SliceCount())
	assert.Contains(t, logs.String(), "stopped reading at a malformed row")
}

func TestSliceRange(t *testing.T) {
	run := fakeRun(1, nil, false)
	d, _ := newTestData(t, Config{BunchCount: 1, CellCount: 5}, run)

	assert.ErrorIs(t, d.SetSliceRange(0, 1), g_error.InvalidArgument)
	require.NoError(t, d.Load(nil))
	s := d.SliceCount()

	tests := []struct {
		first, last int
		valid       bool
	}{
		{0, s, true},
		{0, 0, true},
		{2, 3, true},
		{s, s, true},
		{s + 1, s + 1, false},
		{0, s + 1, false},
		{3, 2, false},
		{-1, 2, false},
		{0, -1, false},
	}

	for i, tt := range tests {
		err := d.SetSliceRange(tt.first, tt.last)
		if tt.valid {
			assert.NoError(t, err, "%d)", i)
			assert.Equal(t, tt.first, d.FirstSlice(), "%d)", i)
			assert.Equal(t, tt.last, d.LastSlice(), "%d)", i)
		} else {
			assert.ErrorIs(t, err, g_error.InvalidArgument, "%d)", i)
		}
	}

	require.NoError(t, d.SetSliceRange(1, 3))
	assert.ErrorIs(t, d.SetFirstSlice(4), g_error.InvalidArgument)
	require.NoError(t, d.SetLastSlice(4))
	require.NoError(t, d.SetFirstSlice(4))

	require.NoError(t, d.SetCellRange(0, 5))
	assert.ErrorIs(t, d.SetLastCell(6), g_error.InvalidArgument)
	require.NoError(t, d.SetFirstCell(2))
	assert.Equal(t, 2, d.FirstCell())
}

func TestTableLookup(t *testing.T) {
	run := fakeRun(2, nil, true)
	d, _ := newTestData(t, Config{BunchCount: 2}, run)

	_, err := d.Table("bunches")
	assert.ErrorIs(t, err, g_error.InvalidArgument)

	require.NoError(t, d.Load(nil))

	tab, err := d.Table("bunches")
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "t", "z", "bunches", "n1", "n2"},
		tab.Columns())
	n2, err := tab.Column("n2")
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 201, 202, 203}, n2)

	for _, col := range []string{"n0", "n3", "nx", "q"} {
		_, err := tab.Column(col)
		assert.ErrorIs(t, err, g_error.InvalidArgument, col)
	}

	tab, err = d.Table("phase.out50.bunch2")
	require.NoError(t, err)
	px, err := tab.Column("px")
	require.NoError(t, err)
	assert.Equal(t, []float64{-50, -51, -52}, px)

	tab, err = d.Table("endslice.bunch1")
	require.NoError(t, err)
	w, err := tab.Column("W")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, w, 1e-12)

	_, err = d.Table("phase.out45.bunch1")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestBunchTableExpression(t *testing.T) {
	tab := &BunchTable{n: 3}
	assert.Equal(t, "bunches.n1:bunches.z", tab.Expression(1))
	assert.Equal(t, "bunches.n1+bunches.n2+bunches.n3:bunches.z",
		tab.Expression(3))
}

func TestAssemble(t *testing.T) {
	run := fakeRun(2, []int{45}, true)
	d, _ := newTestData(t, Config{BunchCount: 2}, run)
	require.NoError(t, d.Load([]int{45}))

	in := &Contents{Bunches: d.BunchTable().Records}
	for _, loc := range d.Locations() {
		for bunch := 1; bunch <= 2; bunch++ {
			tab, err := d.PhaseTable(loc, bunch)
			require.NoError(t, err)
			in.Phase = append(in.Phase, tab)
		}
	}
	for bunch := 1; bunch <= 2; bunch++ {
		tab, err := d.EndTable(bunch)
		require.NoError(t, err)
		in.End = append(in.End, tab)
	}

	a, err := Assemble(Config{BunchCount: 2}, in)
	require.NoError(t, err)
	assert.Equal(t, d.Tables(), a.Tables())
	assert.Equal(t, d.SliceCount(), a.SliceCount())
	assert.Equal(t, d.ParticleCount(), a.ParticleCount())
	assert.Equal(t, d.Locations(), a.Locations())

	in.End = in.End[:1]
	_, err = Assemble(Config{BunchCount: 2}, in)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestPrint(t *testing.T) {
	run := fakeRun(2, nil, true)
	d, _ := newTestData(t, Config{BunchCount: 2,
		BunchNames: []string{"proton", "deuteron"}}, run)

	buf := &bytes.Buffer{}
	assert.ErrorIs(t, d.Print(buf), g_error.InvalidArgument)

	require.NoError(t, d.Load(nil))
	require.NoError(t, d.Print(buf))

	out := buf.String()
	for _, s := range []string{
		"endslice.bunch2", "phase.out40.bunch1", "deuteron", "0.3500",
	} {
		assert.Contains(t, out, s)
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("RFQ")
	require.NoError(t, err)
	assert.Equal(t, RFQ, v)
	v, err = ParseVariant("standard")
	require.NoError(t, err)
	assert.Equal(t, Standard, v)
	_, err = ParseVariant("dtl")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}
