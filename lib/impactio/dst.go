package impactio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ReadEndSlice reads the .dst file at path.
func ReadEndSlice(path string) ([]EndSliceParticle, Stop, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, Stop{}, err
	}
	defer f.Close()

	ps, stop := ScanEndSlice(f)
	return ps, stop, nil
}

// ReadEndSliceAt reads the .dst file written for a bunch.
func ReadEndSliceAt(l *Layout, bunch int) ([]EndSliceParticle, Stop, error) {
	if bunch < 1 || bunch > MaxBunchCount {
		return nil, Stop{}, CheckBunch(bunch, MaxBunchCount)
	}
	return ReadEndSlice(l.EndSlicePath(bunch))
}

// ScanEndSlice reads a .dst file from rd. The particle count is the
// little-endian int32 at DstCountOffset and records start at DstHeaderSize.
// Everything else in the header is ignored. Reading stops early, without
// complaint, if the file ends before the header's particle count is reached.
// A negative count reads nothing.
func ScanEndSlice(rd io.ReadSeeker) ([]EndSliceParticle, Stop) {
	ps := []EndSliceParticle{}

	npt, err := readDstCount(rd)
	if err != nil {
		return ps, Stop{EOF: true, Row: 1,
			Reason: "file is too short to contain a particle count"}
	}

	if _, err := rd.Seek(DstHeaderSize, io.SeekStart); err != nil {
		return ps, Stop{Row: 1, Reason: err.Error()}
	}

	br := bufio.NewReader(rd)
	buf := make([]byte, DstRecordSize)
	for i := 0; i < int(npt); i++ {
		_, err := io.ReadFull(br, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ps, Stop{EOF: true, Row: i + 1, Reason: fmt.Sprintf(
				"header lists %d particles, but only %d were found", npt, i)}
		} else if err != nil {
			return ps, Stop{Row: i + 1, Reason: err.Error()}
		}

		ps = append(ps, decodeDstRecord(buf))
	}

	return ps, Stop{EOF: true, Row: len(ps) + 1}
}

func readDstCount(rd io.ReadSeeker) (int32, error) {
	if _, err := rd.Seek(DstCountOffset, io.SeekStart); err != nil {
		return 0, err
	}
	npt := int32(0)
	err := binary.Read(rd, binary.LittleEndian, &npt)
	return npt, err
}

func decodeDstRecord(buf []byte) EndSliceParticle {
	var x [6]float64
	for i := range x {
		bits := binary.LittleEndian.Uint64(buf[8*i : 8*(i+1)])
		x[i] = math.Float64frombits(bits)
	}
	return EndSliceParticle{x[0], x[1], x[2], x[3], x[4], x[5]}
}
