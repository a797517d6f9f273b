package eq

import (
	"math"
	"testing"
)

func TestGeneric(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		x, y interface{}
		eq   bool
	}{
		{[]int{}, []int{}, true},
		{[]int{1, 2}, []int{1, 2}, true},
		{[]int{1, 2}, []int{1, 3}, false},
		{[]int{1, 2}, []int{1}, false},
		{[]int{1, 2}, []int64{1, 2}, false},
		{[]int64{4}, []int64{4}, true},
		{[]float64{1.5, nan}, []float64{1.5, nan}, true},
		{[]float64{1.5}, []float64{2.5}, false},
		{[]string{"Bunch 1"}, []string{"Bunch 1"}, true},
		{[]string{"Bunch 1"}, []string{"Bunch 2"}, false},
		{[]float32{1}, []float32{1}, false},
	}

	for i := range tests {
		if eq := Generic(tests[i].x, tests[i].y); eq != tests[i].eq {
			t.Errorf("%d) Expected Generic(%v, %v) = %v, got %v.",
				i, tests[i].x, tests[i].y, tests[i].eq, eq)
		}
	}
}
