package impactio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadPhaseSpace reads the phase-space file at path.
func ReadPhaseSpace(path string) ([]PhaseSpaceParticle, Stop, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, Stop{}, err
	}
	defer f.Close()

	ps, stop := ScanPhaseSpace(f)
	return ps, stop, nil
}

// ReadPhaseSpaceAt reads the phase-space file written for a bunch at a
// diagnostic location. Impact-T names these files fort.(location + bunch - 1)
// by default.
func ReadPhaseSpaceAt(
	l *Layout, bunch, location int,
) ([]PhaseSpaceParticle, Stop, error) {
	if bunch < 1 || bunch > MaxBunchCount {
		return nil, Stop{}, CheckBunch(bunch, MaxBunchCount)
	}
	return ReadPhaseSpace(l.PhaseSpacePath(bunch, location))
}

// ScanPhaseSpace reads six-column rows from rd until it runs out of data or
// finds a malformed row. Blank lines are skipped.
func ScanPhaseSpace(rd io.Reader) ([]PhaseSpaceParticle, Stop) {
	ps := []PhaseSpaceParticle{}

	sc := newLineScanner(rd)
	line := 0
	for sc.Scan() {
		line++
		tok := strings.Fields(sc.Text())
		if len(tok) == 0 {
			continue
		}

		p, err := parsePhaseSpaceRow(tok)
		if err != nil {
			return ps, Stop{Row: line, Reason: err.Error()}
		}
		ps = append(ps, p)
	}

	if err := sc.Err(); err != nil {
		return ps, Stop{Row: line + 1, Reason: err.Error()}
	}
	return ps, Stop{EOF: true, Row: line + 1}
}

func parsePhaseSpaceRow(tok []string) (PhaseSpaceParticle, error) {
	if len(tok) != 6 {
		return PhaseSpaceParticle{}, fmt.Errorf(
			"expected 6 columns, but found %d", len(tok))
	}

	var x [6]float64
	for i := range x {
		var err error
		if x[i], err = strconv.ParseFloat(tok[i], 64); err != nil {
			return PhaseSpaceParticle{}, fmt.Errorf(
				"column %d, '%s', is not a number", i+1, tok[i])
		}
	}

	return PhaseSpaceParticle{x[0], x[1], x[2], x[3], x[4], x[5]}, nil
}
