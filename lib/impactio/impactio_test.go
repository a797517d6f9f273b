package impactio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

func TestReadBunchCountsBunchRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")

	for _, n := range []int{-1, 0, 100} {
		_, _, err := ReadBunchCounts(path, n)
		assert.ErrorIs(t, err, g_error.InvalidArgument, "n = %d", n)
	}

	for _, n := range []int{1, 99} {
		_, _, err := ReadBunchCounts(path, n)
		assert.ErrorIs(t, err, g_error.NotFound, "n = %d", n)
	}
}

func TestReadBunchCounts(t *testing.T) {
	for _, n := range []int{1, 2, 7, 99} {
		recs := make([]BunchCountRecord, 5)
		for i := range recs {
			recs[i] = BunchCountRecord{
				Step: int64(i + 1), T: 1e-9 * float64(i), Z: 0.01 * float64(i),
				BunchFlag: int32(n), Counts: make([]int32, n),
			}
			for j := range recs[i].Counts {
				recs[i].Counts[j] = int32(1000*i + j)
			}
		}

		path := filepath.Join(t.TempDir(), DefaultStepLog)
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, WriteBunchCounts(f, recs))
		require.NoError(t, f.Close())

		got, stop, err := ReadBunchCounts(path, n)
		require.NoError(t, err, "n = %d", n)
		assert.True(t, stop.EOF, "n = %d", n)
		assert.Equal(t, recs, got, "n = %d", n)

		again, _, err := ReadBunchCounts(path, n)
		require.NoError(t, err)
		assert.Equal(t, got, again, "n = %d", n)
	}
}

func TestReadDirectory(t *testing.T) {
	dir := t.TempDir()

	_, _, err := ReadBunchCounts(dir, 1)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	_, _, err = ReadPhaseSpace(dir)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	_, _, err = ReadEndSlice(dir)
	assert.ErrorIs(t, err, g_error.InvalidArgument)

	l := DefaultLayout(dir)
	require.NoError(t, os.Mkdir(l.PhaseSpacePath(1, StartLocation), 0755))
	_, _, err = ReadPhaseSpaceAt(l, 1, StartLocation)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestScanBunchCounts(t *testing.T) {
	tests := []struct {
		text    string
		n       int
		rows    int
		eof     bool
		stopRow int
	}{
		{"", 1, 0, true, 1},
		{"1 0.0 0.0 1 10\n", 1, 1, true, 2},
		{"1 0.0 0.0 1 10\n2 1e-9 0.5 1 11", 1, 2, true, 3},
		{"1 0.0 0.0 1 10\n\n2 1e-9 0.5 1 11\n", 1, 2, true, 4},
		{"   1   0.0   0.0   2   10   20\n", 2, 1, true, 2},
		{"1 0.0 0.0 1 10\n2 1e-9 0.5 1\n3 0 0 1 12\n", 1, 1, false, 2},
		{"1 0.0 0.0 1 10 20\n", 1, 0, false, 1},
		{"1 0.0 0.0 1 1.5\n", 1, 0, false, 1},
		{"x 0.0 0.0 1 1\n", 1, 0, false, 1},
		{"1 0.0 z 1 1\n", 1, 0, false, 1},
	}

	for i := range tests {
		recs, stop := ScanBunchCounts(
			strings.NewReader(tests[i].text), tests[i].n)
		assert.Len(t, recs, tests[i].rows, "%d)", i)
		assert.Equal(t, tests[i].eof, stop.EOF, "%d) %s", i, stop)
		assert.Equal(t, tests[i].stopRow, stop.Row, "%d) %s", i, stop)
		assert.Equal(t, !tests[i].eof, stop.Malformed(), "%d)", i)
	}
}

func TestScanPhaseSpace(t *testing.T) {
	text := "1.0 2.0 3.0 4.0 5.0 6.0\n7.0 8.0 9.0 10.0 11.0 12.0\n"
	ps, stop := ScanPhaseSpace(strings.NewReader(text))

	assert.True(t, stop.EOF)
	assert.Equal(t, []PhaseSpaceParticle{
		{X: 1, Px: 2, Y: 3, Py: 4, Z: 5, Pz: 6},
		{X: 7, Px: 8, Y: 9, Py: 10, Z: 11, Pz: 12},
	}, ps)

	ps, stop = ScanPhaseSpace(strings.NewReader(
		"1 2 3 4 5 6\n1 2 3 4 5\n1 2 3 4 5 6\n"))
	assert.Len(t, ps, 1)
	assert.True(t, stop.Malformed())
	assert.Equal(t, 2, stop.Row)

	ps, stop = ScanPhaseSpace(strings.NewReader("1.5E-03 -2.0E+00 0 0 0 0"))
	assert.True(t, stop.EOF)
	require.Len(t, ps, 1)
	assert.Equal(t, 1.5e-3, ps[0].X)
	assert.Equal(t, -2.0, ps[0].Px)
}

func TestReadPhaseSpaceAt(t *testing.T) {
	l := DefaultLayout(t.TempDir())
	run := &FakeRun{Phase: map[PhaseKey][]PhaseSpaceParticle{
		{Bunch: 1, Location: 40}: {{1, 2, 3, 4, 5, 6}},
		{Bunch: 3, Location: 40}: {{7, 8, 9, 10, 11, 12}, {0, 0, 0, 0, 0, 0}},
	}}
	require.NoError(t, run.Write(l))

	assert.FileExists(t, filepath.Join(l.Dir, "fort.40"))
	assert.FileExists(t, filepath.Join(l.Dir, "fort.42"))

	ps, _, err := ReadPhaseSpaceAt(l, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, run.Phase[PhaseKey{1, 40}], ps)

	ps, _, err = ReadPhaseSpaceAt(l, 3, 40)
	require.NoError(t, err)
	assert.Equal(t, run.Phase[PhaseKey{3, 40}], ps)

	_, _, err = ReadPhaseSpaceAt(l, 2, 40)
	assert.ErrorIs(t, err, g_error.NotFound)
	assert.Contains(t, err.Error(), "fort.41")

	_, _, err = ReadPhaseSpaceAt(l, 0, 40)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestScanEndSlice(t *testing.T) {
	ps := []EndSliceParticle{
		{X: 1, Xp: 2, Y: 3, Yp: 4, Phi: 5, W: 6},
		{X: -1, Xp: -2, Y: -3, Yp: -4, Phi: -5, W: 0.75},
	}

	tests := []struct {
		npt  int32
		ps   []EndSliceParticle
		read int
		msg  string
	}{
		{2, ps, 2, "exact count"},
		{5, ps, 2, "truncated"},
		{1, ps, 1, "extra records"},
		{0, ps, 0, "zero count"},
		{-3, ps, 0, "negative count"},
		{4, nil, 0, "header only"},
	}

	for _, tt := range tests {
		b := EndSliceBytes(tt.npt, tt.ps)
		got, stop := ScanEndSlice(bytes.NewReader(b))
		assert.Len(t, got, tt.read, tt.msg)
		assert.True(t, stop.EOF, tt.msg)
		if tt.read > 0 {
			assert.Equal(t, tt.ps[:tt.read], got, tt.msg)
		}
	}

	// A record cut off half-way through.
	b := EndSliceBytes(2, ps)
	got, stop := ScanEndSlice(bytes.NewReader(b[:len(b)-10]))
	assert.Len(t, got, 1)
	assert.True(t, stop.EOF)

	// Too short to hold a count.
	got, stop = ScanEndSlice(bytes.NewReader([]byte{0, 0, 1}))
	assert.Len(t, got, 0)
	assert.True(t, stop.EOF)
}

func TestReadEndSliceAt(t *testing.T) {
	l := DefaultLayout(t.TempDir())
	run := &FakeRun{End: map[int][]EndSliceParticle{
		2: {{1, 2, 3, 4, 5, 6}},
	}}
	require.NoError(t, run.Write(l))
	assert.FileExists(t, filepath.Join(l.Dir, "rfq2.dst"))

	ps, stop, err := ReadEndSliceAt(l, 2)
	require.NoError(t, err)
	assert.True(t, stop.EOF)
	assert.Equal(t, run.End[2], ps)

	_, _, err = ReadEndSliceAt(l, 1)
	assert.ErrorIs(t, err, g_error.NotFound)

	_, _, err = ReadEndSliceAt(l, 100)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}

func TestLayout(t *testing.T) {
	l, err := NewLayout("run", "steps.txt", "bpm{%d,location}.{%d,bunch}",
		"end{%02d,bunch}.dst")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("run", "steps.txt"), l.StepLogPath())
	assert.Equal(t, filepath.Join("run", "bpm45.2"), l.PhaseSpacePath(2, 45))
	assert.Equal(t, filepath.Join("run", "end07.dst"), l.EndSlicePath(7))

	_, err = NewLayout("run", "", DefaultPhaseSpace, DefaultEndSlice)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	_, err = NewLayout("run", DefaultStepLog, "fort.{%d,cell}", DefaultEndSlice)
	assert.ErrorIs(t, err, g_error.InvalidArgument)
	_, err = NewLayout("run", DefaultStepLog, DefaultPhaseSpace, "rfq{%d")
	assert.ErrorIs(t, err, g_error.InvalidArgument)
}
