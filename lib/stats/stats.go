/*package stats contains the handful of summary statistics impact computes
from loaded runs: cumulative bunch counts, histograms of final energies, and
RMS emittances.*/
package stats

import (
	"math"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Cumulative returns the cumulative layers of a set of per-bunch columns.
// Layer k is the sum of columns 0 through k, so the last layer is the total.
// All columns must have the same length.
func Cumulative(cols [][]float64) [][]float64 {
	out := make([][]float64, len(cols))
	for k := range cols {
		out[k] = make([]float64, len(cols[k]))
		copy(out[k], cols[k])
		if k > 0 {
			floats.Add(out[k], out[k-1])
		}
	}
	return out
}

// Range returns the smallest and largest values in x. Empty slices give
// (0, 0).
func Range(x []float64) (lo, hi float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return floats.Min(x), floats.Max(x)
}

// Histogram bins x into n bins between xmin and xmax. If xmin == xmax, the
// range is taken from the data and is widened slightly so that the largest
// value lands in the last bin rather than the overflow bin.
func Histogram(x []float64, n int, xmin, xmax float64) *hbook.H1D {
	if xmin == xmax {
		xmin, xmax = AutoRange(x)
	}

	h := hbook.NewH1D(n, xmin, xmax)
	for i := range x {
		h.Fill(x[i], 1)
	}
	return h
}

// AutoRange returns a histogram range which contains every value in x.
func AutoRange(x []float64) (lo, hi float64) {
	lo, hi = Range(x)
	if lo == hi {
		return lo - 0.5, hi + 0.5
	}
	pad := 1e-3 * (hi - lo)
	return lo, hi + pad
}

// Mean returns the mean of x, or NaN if x is empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// RMSEmittance returns the RMS emittance of a set of particles in a 2D
// phase-space plane, sqrt(<x^2><x'^2> - <x x'>^2), where the brackets are
// population central moments (normalized by n, not n-1). It returns 0 for
// fewer than two particles.
func RMSEmittance(x, xp []float64) float64 {
	if len(x) < 2 || len(x) != len(xp) {
		return 0
	}
	n := float64(len(x))
	vx := stat.PopVariance(x, nil)
	vxp := stat.PopVariance(xp, nil)
	cov := stat.Covariance(x, xp, nil) * (n - 1) / n

	e2 := vx*vxp - cov*cov
	if e2 <= 0 {
		return 0
	}
	return math.Sqrt(e2)
}
