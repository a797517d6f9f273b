package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DataDog/zstd"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

// zstdLevel is the compression level of every block. Higher levels barely
// change the size of byte planes.
const zstdLevel = 1

// maxBlockSize bounds the length prefix of a block.
const maxBlockSize = 1 << 32

// blockBuffer holds the scratch space used while compressing and
// decompressing columns so it can be reused between columns.
type blockBuffer struct {
	plane, zbuf []byte
	// in only grows as bytes are read from the archive.
	in bytes.Buffer
}

// writeColumn writes x as eight zstd blocks, one for each byte plane. Each
// block is prefixed by its length as an int64. The high planes of counts and
// of floats with a shared exponent compress to almost nothing.
func (buf *blockBuffer) writeColumn(wr io.Writer, x []uint64) error {
	if len(x) == 0 {
		return nil
	}
	buf.plane = resizeBytes(buf.plane, len(x))

	for i := 0; i < 8; i++ {
		toPlane(x, buf.plane, i)

		var err error
		buf.zbuf, err = zstd.CompressLevel(buf.zbuf[:0], buf.plane, zstdLevel)
		if err != nil {
			return err
		}

		err = binary.Write(wr, binary.LittleEndian, int64(len(buf.zbuf)))
		if err != nil {
			return err
		}
		if _, err := wr.Write(buf.zbuf); err != nil {
			return err
		}
	}
	return nil
}

// readColumn reads a column of n values written by writeColumn. The column is
// only allocated once the first plane has shown that n values are really
// there.
func (buf *blockBuffer) readColumn(rd io.Reader, n int) ([]uint64, error) {
	if n < 0 {
		return nil, g_error.Corruptf("column has %d values", n)
	} else if n == 0 {
		return []uint64{}, nil
	}

	var x []uint64
	for i := 0; i < 8; i++ {
		nBlock := int64(0)
		if err := binary.Read(rd, binary.LittleEndian, &nBlock); err != nil {
			return nil, truncated(err)
		}
		if nBlock < 0 || nBlock > maxBlockSize {
			return nil, g_error.Corruptf("block %d has length %d", i, nBlock)
		}

		buf.in.Reset()
		if _, err := io.CopyN(&buf.in, rd, nBlock); err != nil {
			return nil, truncated(err)
		}

		var err error
		buf.plane, err = zstd.Decompress(buf.plane[:0], buf.in.Bytes())
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %s",
				g_error.Corrupt, i, err.Error())
		}
		if len(buf.plane) != n {
			return nil, g_error.Corruptf("block %d holds %d values, but the "+
				"column has %d", i, len(buf.plane), n)
		}

		if x == nil {
			x = make([]uint64, n)
		}
		fromPlane(buf.plane, x, i)
	}

	return x, nil
}

// toPlane writes byte number col of each value to b.
func toPlane(x []uint64, b []byte, col int) {
	for i := range x {
		b[i] = byte(x[i] >> (8 * col))
	}
}

// fromPlane adds byte number col of each value back into x.
func fromPlane(b []byte, x []uint64, col int) {
	for i := range x {
		x[i] |= uint64(b[i]) << (8 * col)
	}
}

func resizeBytes(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	b = b[:cap(b)]
	return append(b, make([]byte, n-len(b))...)
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return g_error.Corruptf("the archive ends early")
	}
	return err
}
