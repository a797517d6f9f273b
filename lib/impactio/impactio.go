/*package impactio contains functions for reading the output files of an
Impact-T run. There are three kinds of file:

   fort.11    - the step log: particle counts per bunch for each time slice.
   fort.N     - phase-space dumps: one (x, px, y, py, z, pz) row per particle,
                one file per bunch per diagnostic location.
   rfqK.dst   - binary end-of-run dumps: (x, xp, y, yp, phi, W) records for
                bunch K.

All readers stop silently at the first row or record which can't be read and
return everything read up to that point. The Stop value they return says
whether that happened at the end of the file or because of a malformed row,
so callers can decide whether it's worth complaining about.
*/
package impactio

import (
	"fmt"
	"path/filepath"

	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/format"
)

const (
	// MaxBunchCount is the largest number of bunches Impact-T supports.
	MaxBunchCount = 99

	// StartLocation and EndLocation are the location numbers Impact-T uses
	// for phase-space dumps at the start and end of the simulation. Every
	// other location is a BPM.
	StartLocation = 40
	EndLocation   = 50

	// DstCountOffset is the byte offset of the int32 particle count in a .dst
	// file.
	DstCountOffset = 2
	// DstHeaderSize is the number of bytes before the first .dst record.
	DstHeaderSize = 23
	// DstRecordSize is the size of a single .dst record: six float64s.
	DstRecordSize = 48

	// DefaultStepLog, DefaultPhaseSpace and DefaultEndSlice are the names
	// Impact-T gives its output files. The last two are file formats (see
	// lib/format).
	DefaultStepLog    = "fort.11"
	DefaultPhaseSpace = "fort.{%d,file}"
	DefaultEndSlice   = "rfq{%d,bunch}.dst"
)

// BunchCountRecord is a single row of the step log.
type BunchCountRecord struct {
	Step      int64
	T, Z      float64
	BunchFlag int32
	Counts    []int32 // len(Counts) == bunch count
}

// PhaseSpaceParticle is a single row of a phase-space file.
type PhaseSpaceParticle struct {
	X, Px, Y, Py, Z, Pz float64
}

// EndSliceParticle is a single record of a .dst file. Phi is the RF phase and
// W is the kinetic energy in MeV.
type EndSliceParticle struct {
	X, Xp, Y, Yp, Phi, W float64
}

// Stop describes why a reader stopped reading.
type Stop struct {
	// EOF is true if the reader ran out of data. It is false if the reader hit
	// a row that couldn't be parsed.
	EOF bool
	// Row is the 1-indexed row (line or record) where reading stopped.
	Row    int
	Reason string
}

// Malformed returns true if reading stopped before the end of the file.
func (s Stop) Malformed() bool { return !s.EOF }

func (s Stop) String() string {
	if s.EOF {
		if s.Reason == "" {
			return "end of file"
		}
		return fmt.Sprintf("end of file (%s)", s.Reason)
	}
	return fmt.Sprintf("row %d: %s", s.Row, s.Reason)
}

// Layout says where the files of a single run live.
type Layout struct {
	Dir        string
	StepLog    string
	PhaseSpace *format.FileFormat
	EndSlice   *format.FileFormat
}

// NewLayout creates a Layout for the run directory dir. phaseSpace and
// endSlice are file formats.
func NewLayout(dir, stepLog, phaseSpace, endSlice string) (*Layout, error) {
	if stepLog == "" {
		return nil, g_error.InvalidArgumentf("the step log file name is empty")
	}
	ps, err := format.ParseFileFormat(phaseSpace)
	if err != nil {
		return nil, fmt.Errorf("phase-space file format: %w", err)
	}
	es, err := format.ParseFileFormat(endSlice)
	if err != nil {
		return nil, fmt.Errorf("end-slice file format: %w", err)
	}
	return &Layout{dir, stepLog, ps, es}, nil
}

// DefaultLayout returns the Layout of a run written with Impact-T's default
// file names.
func DefaultLayout(dir string) *Layout {
	return &Layout{
		Dir:        dir,
		StepLog:    DefaultStepLog,
		PhaseSpace: format.MustParseFileFormat(DefaultPhaseSpace),
		EndSlice:   format.MustParseFileFormat(DefaultEndSlice),
	}
}

// StepLogPath returns the path to the step log.
func (l *Layout) StepLogPath() string {
	return filepath.Join(l.Dir, l.StepLog)
}

// PhaseSpacePath returns the path to the phase-space file of a bunch at a
// location.
func (l *Layout) PhaseSpacePath(bunch, location int) string {
	v := format.Values{Bunch: bunch, Location: location}
	return filepath.Join(l.Dir, l.PhaseSpace.Expand(v))
}

// EndSlicePath returns the path to the .dst file of a bunch.
func (l *Layout) EndSlicePath(bunch int) string {
	v := format.Values{Bunch: bunch}
	return filepath.Join(l.Dir, l.EndSlice.Expand(v))
}

// CheckBunchCount returns an InvalidArgument error if n isn't a valid number
// of bunches.
func CheckBunchCount(n int) error {
	if n < 1 || n > MaxBunchCount {
		return g_error.InvalidArgumentf("the bunch count is %d, but it must "+
			"be in the range [1, %d]", n, MaxBunchCount)
	}
	return nil
}

// CheckBunch returns an InvalidArgument error if bunch isn't a valid index
// for a run with n bunches.
func CheckBunch(bunch, n int) error {
	if bunch < 1 || bunch > n {
		return g_error.InvalidArgumentf("bunch %d was requested, but bunches "+
			"must be in the range [1, %d]", bunch, n)
	}
	return nil
}
