package impactio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

// maxLineSize is the longest line the text readers will accept.
const maxLineSize = 1 << 20

// ReadBunchCounts reads the step log at path for a run with n bunches. Each
// row has the form:
//
//   <step> <t> <z> <bunch flag> <count 1> ... <count n>
//
// n is checked before the file is touched.
func ReadBunchCounts(path string, n int) ([]BunchCountRecord, Stop, error) {
	if err := CheckBunchCount(n); err != nil {
		return nil, Stop{}, err
	}

	f, err := openFile(path)
	if err != nil {
		return nil, Stop{}, err
	}
	defer f.Close()

	recs, stop := ScanBunchCounts(f, n)
	return recs, stop, nil
}

// ScanBunchCounts reads step log rows from rd until it runs out of data or
// finds a malformed row. Blank lines are skipped.
func ScanBunchCounts(rd io.Reader, n int) ([]BunchCountRecord, Stop) {
	recs := []BunchCountRecord{}

	sc := newLineScanner(rd)
	line := 0
	for sc.Scan() {
		line++
		tok := strings.Fields(sc.Text())
		if len(tok) == 0 {
			continue
		}

		rec, err := parseBunchCountRow(tok, n)
		if err != nil {
			return recs, Stop{Row: line, Reason: err.Error()}
		}
		recs = append(recs, rec)
	}

	if err := sc.Err(); err != nil {
		return recs, Stop{Row: line + 1, Reason: err.Error()}
	}
	return recs, Stop{EOF: true, Row: line + 1}
}

func parseBunchCountRow(tok []string, n int) (BunchCountRecord, error) {
	rec := BunchCountRecord{}
	if len(tok) != 4+n {
		return rec, fmt.Errorf("expected %d columns, but found %d",
			4+n, len(tok))
	}

	var err error
	if rec.Step, err = strconv.ParseInt(tok[0], 10, 64); err != nil {
		return rec, fmt.Errorf("step index '%s' is not an integer", tok[0])
	}
	if rec.T, err = strconv.ParseFloat(tok[1], 64); err != nil {
		return rec, fmt.Errorf("time '%s' is not a number", tok[1])
	}
	if rec.Z, err = strconv.ParseFloat(tok[2], 64); err != nil {
		return rec, fmt.Errorf("z '%s' is not a number", tok[2])
	}
	flag, err := strconv.ParseInt(tok[3], 10, 32)
	if err != nil {
		return rec, fmt.Errorf("bunch flag '%s' is not an integer", tok[3])
	}
	rec.BunchFlag = int32(flag)

	rec.Counts = make([]int32, n)
	for i := range rec.Counts {
		c, err := strconv.ParseInt(tok[4+i], 10, 32)
		if err != nil {
			return rec, fmt.Errorf("count for bunch %d, '%s', is not an "+
				"integer", i+1, tok[4+i])
		}
		rec.Counts[i] = int32(c)
	}

	return rec, nil
}

// openFile opens a file, converting a missing file into a NotFound error.
func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, g_error.NotFoundf("the file %s does not exist", path)
	} else if err != nil {
		return nil, fmt.Errorf("the file %s cannot be opened: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("the file %s cannot be read: %w", path, err)
	} else if info.IsDir() {
		f.Close()
		return nil, g_error.InvalidArgumentf("%s is a directory, not a file",
			path)
	}
	return f, nil
}

func newLineScanner(rd io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return sc
}
