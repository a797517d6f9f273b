package impactio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// WriteBunchCounts writes records in the step log format.
func WriteBunchCounts(w io.Writer, recs []BunchCountRecord) error {
	for _, r := range recs {
		tok := []string{
			strconv.FormatInt(r.Step, 10), formatFloat(r.T),
			formatFloat(r.Z), strconv.FormatInt(int64(r.BunchFlag), 10),
		}
		for _, c := range r.Counts {
			tok = append(tok, strconv.FormatInt(int64(c), 10))
		}
		if _, err := fmt.Fprintln(w, strings.Join(tok, " ")); err != nil {
			return err
		}
	}
	return nil
}

// WritePhaseSpace writes particles in the phase-space format.
func WritePhaseSpace(w io.Writer, ps []PhaseSpaceParticle) error {
	for _, p := range ps {
		_, err := fmt.Fprintln(w, formatFloat(p.X), formatFloat(p.Px),
			formatFloat(p.Y), formatFloat(p.Py),
			formatFloat(p.Z), formatFloat(p.Pz))
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteEndSlice writes particles in the .dst format with npt in the header.
// npt does not need to match len(ps), which allows truncated files to be
// written.
func WriteEndSlice(w io.Writer, npt int32, ps []EndSliceParticle) error {
	_, err := w.Write(EndSliceBytes(npt, ps))
	return err
}

// EndSliceBytes returns the contents of a .dst file with npt in the header.
func EndSliceBytes(npt int32, ps []EndSliceParticle) []byte {
	buf := &bytes.Buffer{}
	hd := make([]byte, DstHeaderSize)
	binary.LittleEndian.PutUint32(hd[DstCountOffset:], uint32(npt))
	buf.Write(hd)

	rec := make([]byte, DstRecordSize)
	for _, p := range ps {
		x := [6]float64{p.X, p.Xp, p.Y, p.Yp, p.Phi, p.W}
		for i := range x {
			binary.LittleEndian.PutUint64(rec[8*i:], math.Float64bits(x[i]))
		}
		buf.Write(rec)
	}
	return buf.Bytes()
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// PhaseKey identifies a single phase-space file.
type PhaseKey struct {
	Bunch, Location int
}

// FakeRun is a run directory which can be initialized directly from arrays.
// It's used to build test fixtures and example runs.
type FakeRun struct {
	Steps []BunchCountRecord
	Phase map[PhaseKey][]PhaseSpaceParticle
	End   map[int][]EndSliceParticle
}

// Write writes the run's files to the locations given by l. Missing maps are
// skipped.
func (r *FakeRun) Write(l *Layout) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return err
	}

	if r.Steps != nil {
		err := writeFile(l.StepLogPath(), func(w io.Writer) error {
			return WriteBunchCounts(w, r.Steps)
		})
		if err != nil {
			return err
		}
	}

	keys := make([]PhaseKey, 0, len(r.Phase))
	for k := range r.Phase {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Location != keys[j].Location {
			return keys[i].Location < keys[j].Location
		}
		return keys[i].Bunch < keys[j].Bunch
	})
	for _, k := range keys {
		ps := r.Phase[k]
		err := writeFile(l.PhaseSpacePath(k.Bunch, k.Location),
			func(w io.Writer) error { return WritePhaseSpace(w, ps) })
		if err != nil {
			return err
		}
	}

	for bunch, ps := range r.End {
		err := writeFile(l.EndSlicePath(bunch), func(w io.Writer) error {
			return WriteEndSlice(w, int32(len(ps)), ps)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
