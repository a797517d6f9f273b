/*package eq is a simple package for telling whether two columns are equal to
one another. It is used by confirm mode to check that an archived run matches
the run directory it was built from.*/
package eq

import (
	"math"
)

// Generic returns true if two columns are the same type and have the same
// values and false otherwise. Only []int, []int64, []float64, and []string
// are supported.
func Generic(x, y interface{}) bool {
	switch xx := x.(type) {
	case []int:
		yy, ok := y.([]int)
		if !ok {
			return false
		}
		return Slices(xx, yy)
	case []int64:
		yy, ok := y.([]int64)
		if !ok {
			return false
		}
		return Slices(xx, yy)
	case []float64:
		yy, ok := y.([]float64)
		if !ok {
			return false
		}
		return Float64s(xx, yy)
	case []string:
		yy, ok := y.([]string)
		if !ok {
			return false
		}
		return Slices(xx, yy)
	}
	return false
}

// Slices returns true if two arrays are the same and false otherwise.
func Slices[T comparable](x, y []T) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64s returns true if two []float64 arrays are the same and false
// otherwise. NaNs compare equal to each other.
func Float64s(x, y []float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] && !(math.IsNaN(x[i]) && math.IsNaN(y[i])) {
			return false
		}
	}
	return true
}
