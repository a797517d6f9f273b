/*package archive stores a loaded run in a single compressed file so it can be
reopened without the original Impact-T output.

An archive is laid out as

    uint32 MagicNumber
    uint32 Version
    uint32 length of the metadata block
    metadata block (YAML)
    column blocks

The metadata lists every table in the order it was loaded, along with the run
configuration. Each table is followed by its columns, and each column is split
into eight byte planes which are compressed separately with zstd. Everything is
little-endian.
*/
package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
)

const (
	// MagicNumber is an arbitrary number at the start of every archive.
	MagicNumber = 0x1a7c0de5
	// ReverseMagicNumber is MagicNumber read with the wrong endianness.
	ReverseMagicNumber = 0xe50d7c1a
	Version            = 1

	// DefaultName is the file name used by the convert and confirm modes.
	DefaultName = "impact.zst"

	// maxMetadataSize bounds the metadata block.
	maxMetadataSize = 1 << 26
	// maxRows bounds the row count of a single table.
	maxRows = 1 << 30
)

type tableKind string

const (
	bunchKind tableKind = "bunches"
	phaseKind tableKind = "phase"
	endKind   tableKind = "endslice"
)

type tableMeta struct {
	Kind     tableKind `yaml:"kind"`
	Name     string    `yaml:"name"`
	Location int       `yaml:"location,omitempty"`
	Bunch    int       `yaml:"bunch,omitempty"`
	Rows     int       `yaml:"rows"`
}

type layoutMeta struct {
	Dir        string `yaml:"dir"`
	StepLog    string `yaml:"step_log"`
	PhaseSpace string `yaml:"phase_space"`
	EndSlice   string `yaml:"end_slice"`
}

// metadata is the YAML block at the start of an archive.
type metadata struct {
	Variant    string      `yaml:"variant"`
	BunchCount int         `yaml:"bunch_count"`
	BunchNames []string    `yaml:"bunch_names"`
	CellCount  int         `yaml:"cell_count"`
	Layout     layoutMeta  `yaml:"layout"`
	Slices     [2]int      `yaml:"slices"`
	Cells      [2]int      `yaml:"cells"`
	EndSlices  bool        `yaml:"end_slices"`
	Tables     []tableMeta `yaml:"tables"`
}

// Write writes a loaded Data to the file fname.
func Write(fname string, d *data.Data) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	wr := bufio.NewWriter(f)
	if err := Encode(wr, d); err != nil {
		f.Close()
		return fmt.Errorf("cannot write archive %s: %w", fname, err)
	}
	if err := wr.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes a loaded Data to wr.
func Encode(wr io.Writer, d *data.Data) error {
	if d == nil || !d.Loaded() {
		return g_error.InvalidArgumentf("only a loaded run can be archived")
	}

	md := newMetadata(d)
	tables := d.Tables()
	for _, t := range tables {
		md.Tables = append(md.Tables, newTableMeta(t))
	}

	if err := writeMetadata(wr, md); err != nil {
		return err
	}

	buf := &blockBuffer{}
	for _, t := range tables {
		for _, col := range encodeTable(t) {
			if err := buf.writeColumn(wr, col); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeMetadata writes the fixed header and the metadata block.
func writeMetadata(wr io.Writer, md *metadata) error {
	b, err := yaml.Marshal(md)
	if err != nil {
		return err
	}

	head := []uint32{MagicNumber, Version, uint32(len(b))}
	if err := binary.Write(wr, binary.LittleEndian, head); err != nil {
		return err
	}
	_, err = wr.Write(b)
	return err
}

func newMetadata(d *data.Data) *metadata {
	l := d.Layout()
	return &metadata{
		Variant:    d.Variant().String(),
		BunchCount: d.BunchCount(),
		BunchNames: d.BunchNames(),
		CellCount:  d.CellCount(),
		Layout: layoutMeta{
			Dir: l.Dir, StepLog: l.StepLog,
			PhaseSpace: l.PhaseSpace.String(), EndSlice: l.EndSlice.String(),
		},
		Slices:    [2]int{d.FirstSlice(), d.LastSlice()},
		Cells:     [2]int{d.FirstCell(), d.LastCell()},
		EndSlices: d.HasEndSlices(),
	}
}

func newTableMeta(t data.Table) tableMeta {
	tm := tableMeta{Name: t.Name(), Rows: t.Len()}
	switch t := t.(type) {
	case *data.BunchTable:
		tm.Kind = bunchKind
	case *data.PhaseTable:
		tm.Kind, tm.Location, tm.Bunch = phaseKind, t.Location, t.Bunch
	case *data.EndTable:
		tm.Kind, tm.Bunch = endKind, t.Bunch
	default:
		g_error.Internal("unrecognized table type %T", t)
	}
	return tm
}

// encodeTable converts a table into the raw 64-bit columns written to disk.
// Every field is stored bit-exact.
func encodeTable(t data.Table) [][]uint64 {
	switch t := t.(type) {
	case *data.BunchTable:
		n := 0
		if len(t.Records) > 0 {
			n = len(t.Records[0].Counts)
		}
		cols := makeColumns(4+n, len(t.Records))
		for i, r := range t.Records {
			cols[0][i] = uint64(r.Step)
			cols[1][i] = math.Float64bits(r.T)
			cols[2][i] = math.Float64bits(r.Z)
			cols[3][i] = uint64(int64(r.BunchFlag))
			for k := range r.Counts {
				cols[4+k][i] = uint64(int64(r.Counts[k]))
			}
		}
		return cols
	case *data.PhaseTable:
		cols := makeColumns(6, len(t.Particles))
		for i, p := range t.Particles {
			row := [6]float64{p.X, p.Px, p.Y, p.Py, p.Z, p.Pz}
			for j := range row {
				cols[j][i] = math.Float64bits(row[j])
			}
		}
		return cols
	case *data.EndTable:
		cols := makeColumns(6, len(t.Particles))
		for i, p := range t.Particles {
			row := [6]float64{p.X, p.Xp, p.Y, p.Yp, p.Phi, p.W}
			for j := range row {
				cols[j][i] = math.Float64bits(row[j])
			}
		}
		return cols
	}
	g_error.Internal("unrecognized table type %T", t)
	return nil
}

func makeColumns(n, rows int) [][]uint64 {
	cols := make([][]uint64, n)
	for i := range cols {
		cols[i] = make([]uint64, rows)
	}
	return cols
}

// Read reads the archive fname. log is given to the restored Data and may be
// nil.
func Read(fname string, log *slog.Logger) (*data.Data, error) {
	f, err := os.Open(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, g_error.NotFoundf("the archive %s does not exist",
				fname)
		}
		return nil, err
	}
	defer f.Close()

	d, err := Decode(bufio.NewReader(f), log)
	if err != nil {
		return nil, fmt.Errorf("cannot read archive %s: %w", fname, err)
	}
	return d, nil
}

// Decode reads an archive from rd. log is given to the restored Data and may
// be nil.
func Decode(rd io.Reader, log *slog.Logger) (*data.Data, error) {
	md, err := readMetadata(rd)
	if err != nil {
		return nil, err
	}

	cfg, err := md.config(log)
	if err != nil {
		return nil, err
	}

	in := &data.Contents{}
	if md.EndSlices {
		in.End = []*data.EndTable{}
	}

	buf := &blockBuffer{}
	for _, tm := range md.Tables {
		if tm.Rows < 0 || tm.Rows > maxRows {
			return nil, g_error.Corruptf("table %s has %d rows",
				tm.Name, tm.Rows)
		}

		nCols := 6
		if tm.Kind == bunchKind {
			nCols = 4 + md.BunchCount
		}
		cols := make([][]uint64, nCols)
		for i := range cols {
			cols[i], err = buf.readColumn(rd, tm.Rows)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", tm.Name, err)
			}
		}

		if err := decodeTable(tm, cols, in); err != nil {
			return nil, err
		}
	}

	d, err := data.Assemble(cfg, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", g_error.Corrupt, err.Error())
	}

	err = d.SetSliceRange(md.Slices[0], md.Slices[1])
	if err == nil {
		err = d.SetCellRange(md.Cells[0], md.Cells[1])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", g_error.Corrupt, err.Error())
	}

	return d, nil
}

func readMetadata(rd io.Reader) (*metadata, error) {
	head := make([]uint32, 3)
	if err := binary.Read(rd, binary.LittleEndian, head); err != nil {
		return nil, truncated(err)
	}

	switch {
	case head[0] == ReverseMagicNumber:
		return nil, g_error.Corruptf("the archive was written with the " +
			"opposite endianness")
	case head[0] != MagicNumber:
		return nil, g_error.Corruptf("the archive starts with 0x%08x, "+
			"not the magic number 0x%08x", head[0], uint32(MagicNumber))
	case head[1] != Version:
		return nil, g_error.Corruptf("the archive has version %d, but "+
			"only version %d is supported", head[1], Version)
	case head[2] > maxMetadataSize:
		return nil, g_error.Corruptf("the metadata block has length %d",
			head[2])
	}

	b := make([]byte, head[2])
	if _, err := io.ReadFull(rd, b); err != nil {
		return nil, truncated(err)
	}

	md := &metadata{}
	if err := yaml.Unmarshal(b, md); err != nil {
		return nil, fmt.Errorf("%w: metadata: %s", g_error.Corrupt,
			err.Error())
	}
	return md, nil
}

func (md *metadata) config(log *slog.Logger) (data.Config, error) {
	variant, err := data.ParseVariant(md.Variant)
	if err != nil {
		return data.Config{}, fmt.Errorf("%w: %s", g_error.Corrupt,
			err.Error())
	}
	if err := impactio.CheckBunchCount(md.BunchCount); err != nil {
		return data.Config{}, fmt.Errorf("%w: %s", g_error.Corrupt,
			err.Error())
	}

	l, err := impactio.NewLayout(md.Layout.Dir, md.Layout.StepLog,
		md.Layout.PhaseSpace, md.Layout.EndSlice)
	if err != nil {
		return data.Config{}, fmt.Errorf("%w: %s", g_error.Corrupt,
			err.Error())
	}

	return data.Config{
		Variant:    variant,
		BunchCount: md.BunchCount,
		BunchNames: md.BunchNames,
		CellCount:  md.CellCount,
		Layout:     l,
		Logger:     log,
	}, nil
}

// decodeTable rebuilds a table from its columns and adds it to in.
func decodeTable(tm tableMeta, cols [][]uint64, in *data.Contents) error {
	switch tm.Kind {
	case bunchKind:
		if in.Bunches != nil {
			return g_error.Corruptf("the archive has two bunch tables")
		}
		in.Bunches = make([]impactio.BunchCountRecord, tm.Rows)
		for i := range in.Bunches {
			r := &in.Bunches[i]
			r.Step = int64(cols[0][i])
			r.T = math.Float64frombits(cols[1][i])
			r.Z = math.Float64frombits(cols[2][i])
			r.BunchFlag = int32(int64(cols[3][i]))
			r.Counts = make([]int32, len(cols)-4)
			for k := range r.Counts {
				r.Counts[k] = int32(int64(cols[4+k][i]))
			}
		}
	case phaseKind:
		ps := make([]impactio.PhaseSpaceParticle, tm.Rows)
		for i := range ps {
			ps[i] = impactio.PhaseSpaceParticle{
				X: f64(cols[0][i]), Px: f64(cols[1][i]),
				Y: f64(cols[2][i]), Py: f64(cols[3][i]),
				Z: f64(cols[4][i]), Pz: f64(cols[5][i]),
			}
		}
		in.Phase = append(in.Phase, &data.PhaseTable{
			Location: tm.Location, Bunch: tm.Bunch, Particles: ps,
		})
	case endKind:
		if in.End == nil {
			return g_error.Corruptf("table %s is in an archive without "+
				"end slices", tm.Name)
		}
		ps := make([]impactio.EndSliceParticle, tm.Rows)
		for i := range ps {
			ps[i] = impactio.EndSliceParticle{
				X: f64(cols[0][i]), Xp: f64(cols[1][i]),
				Y: f64(cols[2][i]), Yp: f64(cols[3][i]),
				Phi: f64(cols[4][i]), W: f64(cols[5][i]),
			}
		}
		in.End = append(in.End, &data.EndTable{Bunch: tm.Bunch, Particles: ps})
	default:
		return g_error.Corruptf("table %s has unknown kind '%s'",
			tm.Name, tm.Kind)
	}
	return nil
}

func f64(u uint64) float64 { return math.Float64frombits(u) }
