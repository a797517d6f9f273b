package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
)

// writeTestRun writes a two-bunch RFQ run with one BPM and returns its
// directory.
func writeTestRun(t *testing.T) string {
	dir := t.TempDir()
	run := &impactio.FakeRun{
		Phase: map[impactio.PhaseKey][]impactio.PhaseSpaceParticle{},
		End:   map[int][]impactio.EndSliceParticle{},
	}
	for i := 0; i < 4; i++ {
		run.Steps = append(run.Steps, impactio.BunchCountRecord{
			Step: int64(i + 1), T: float64(i) * 1e-9, Z: float64(i) * 0.1,
			BunchFlag: 2, Counts: []int32{int32(10 - i), int32(8 - i)},
		})
	}
	for _, loc := range []int{impactio.StartLocation, 42, impactio.EndLocation} {
		for bunch := 1; bunch <= 2; bunch++ {
			ps := []impactio.PhaseSpaceParticle{}
			for i := 0; i < 5; i++ {
				x := float64(i + loc + bunch)
				ps = append(ps, impactio.PhaseSpaceParticle{
					X: x, Px: -x, Y: 2 * x, Py: x / 2, Z: 0.01 * x, Pz: 1,
				})
			}
			run.Phase[impactio.PhaseKey{Bunch: bunch, Location: loc}] = ps
		}
	}
	for bunch := 1; bunch <= 2; bunch++ {
		for i := 0; i < 6; i++ {
			run.End[bunch] = append(run.End[bunch], impactio.EndSliceParticle{
				X: float64(i), Phi: float64(bunch), W: 0.1 * float64(i+bunch),
			})
		}
	}
	require.NoError(t, run.Write(impactio.DefaultLayout(dir)))
	return dir
}

// execute runs the subcommand sub with the flags which describe the test run.
// Flags in args come last, so they take precedence.
func execute(t *testing.T, dir, sub string, args ...string) (string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCommand(out, errOut)
	cmd.SetArgs(append([]string{sub, "--run-dir", dir, "--variant", "rfq",
		"--bunch-count", "2", "--bpm-list", "42", "--log-level", "error"},
		args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	dir := writeTestRun(t)

	out, err := execute(t, dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No errors detected.")

	out, err = execute(t, dir, "check", "--bpm-list", "42 + 45")
	require.NoError(t, err)
	assert.Contains(t, out, "0 errors, 2 warnings")

	require.NoError(t, os.Remove(filepath.Join(dir, "rfq2.dst")))
	out, err = execute(t, dir, "check", "--check-strictness", "warn")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	assert.Contains(t, out, "1 errors, 0 warnings")
}

func TestPrintCommand(t *testing.T) {
	dir := writeTestRun(t)

	out, err := execute(t, dir, "print", "--bunch-names", "H-,D-")
	require.NoError(t, err)
	assert.Contains(t, out, "bunches")
	assert.Contains(t, out, "phase.out42.bunch2")
	assert.Contains(t, out, "endslice.bunch1")
	assert.Contains(t, out, "D-")

	_, err = execute(t, dir, "print", "--bunch-count", "100")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestPlotCommand(t *testing.T) {
	dir := writeTestRun(t)
	plots := filepath.Join(t.TempDir(), "plots")
	metricsFile := filepath.Join(t.TempDir(), "impact.prom")

	out, err := execute(t, dir, "plot", "--output-dir", plots,
		"--format", "svg", "--plots", "bunch,phase,energy,xy",
		"--x", "bunches.z", "--y", "bunches.n2",
		"--metrics-file", metricsFile)
	require.NoError(t, err)

	for _, name := range []string{
		"bunch-count", "phase-start-bunch1", "phase-start-bunch2",
		"phase-end-bunch1", "phase-end-bunch2", "energy", "rootplot",
	} {
		path := filepath.Join(plots, name+".svg")
		assert.FileExists(t, path)
		assert.Contains(t, out, path)
	}

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "impact_plots_rendered_total")

	_, err = execute(t, dir, "plot", "--output-dir", plots,
		"--plots", "phase", "--location", "42", "--bunch", "2",
		"--format", "html")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(plots, "phase-42-bunch2.html"))

	_, err = execute(t, dir, "plot", "--output-dir", plots,
		"--plots", "bunch", "--first-slice", "3", "--last-slice", "1")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestNegativeSlices(t *testing.T) {
	dir := writeTestRun(t)
	plots := filepath.Join(t.TempDir(), "plots")

	tests := [][]string{
		{"--first-slice", "-3"},
		{"--last-slice", "-1"},
		{"--first-slice", "-1", "--last-slice", "2"},
	}
	for i := range tests {
		args := append([]string{"--output-dir", plots, "--plots", "bunch"},
			tests[i]...)
		_, err := execute(t, dir, "plot", args...)
		assert.ErrorIs(t, err, g_error.InvalidArgument, "%d) %v", i, tests[i])
	}
	assert.NoFileExists(t, filepath.Join(plots, "bunch-count.svg"))

	_, err := execute(t, dir, "plot", "--output-dir", plots,
		"--format", "svg", "--plots", "bunch", "--first-slice", "0")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(plots, "bunch-count.svg"))
}

func TestConvertAndConfirm(t *testing.T) {
	dir := writeTestRun(t)
	fname := filepath.Join(t.TempDir(), "run.zst")

	out, err := execute(t, dir, "convert", "--archive", fname)
	require.NoError(t, err)
	assert.FileExists(t, fname)
	assert.Contains(t, out, "9 tables")

	out, err = execute(t, dir, "confirm", "--archive", fname)
	require.NoError(t, err)
	assert.Contains(t, out, "matches")

	_, err = execute(t, dir, "confirm", "--archive", fname,
		"--bunch-names", "a,b")
	assert.ErrorIs(t, err, g_error.Corrupt)

	_, err = execute(t, dir, "confirm", "--archive",
		filepath.Join(t.TempDir(), "missing.zst"))
	assert.ErrorIs(t, err, g_error.NotFound)
}

func TestExportCommand(t *testing.T) {
	dir := writeTestRun(t)
	db := filepath.Join(t.TempDir(), "impact.db")

	out, err := execute(t, dir, "export", "rfq-test", "--catalog", db)
	require.NoError(t, err)
	assert.Contains(t, out, "exported rfq-test")
	assert.Contains(t, out, "4 steps, 30 phase-space particles, "+
		"12 end-slice particles")

	out, err = execute(t, dir, "export", "--catalog", db)
	require.NoError(t, err)
	assert.Contains(t, out, "exported "+filepath.Base(dir))
}

func TestCompare(t *testing.T) {
	dir := writeTestRun(t)
	load := func() *data.Data {
		d, err := data.New(data.Config{
			Variant: data.RFQ, BunchCount: 2,
			Layout: impactio.DefaultLayout(dir),
		})
		require.NoError(t, err)
		require.NoError(t, d.Load([]int{42}))
		return d
	}

	a, b := load(), load()
	assert.NoError(t, compare(a, b))

	b.BunchTable().Records[2].Z = -1
	assert.ErrorIs(t, compare(a, b), g_error.Corrupt)

	b = load()
	require.NoError(t, os.Remove(filepath.Join(dir, "fort.43")))
	c, err := data.New(data.Config{
		Variant: data.RFQ, BunchCount: 2,
		Layout: impactio.DefaultLayout(dir),
	})
	require.NoError(t, err)
	require.NoError(t, c.Load([]int{42}))
	assert.ErrorIs(t, compare(b, c), g_error.Corrupt)
}
