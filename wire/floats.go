package wire

import (
	"fmt"
	"math"
)

// EncodeFloatingPointList encodes a list of floats that may contain
// infinite values into alternating run lengths and the finite values.
// Runs alternate starting with an infinite run, so the first run length
// is zero when the list starts with a finite value.
func EncodeFloatingPointList(ranges []float64) (runs []int, values []float64, err error) {
	lastWasInfinite := true
	currentRunLength := 0
	for _, r := range ranges {
		if math.IsInf(r, 1) == lastWasInfinite {
			currentRunLength++
		} else {
			runs = append(runs, currentRunLength)
			currentRunLength = 1
			lastWasInfinite = math.IsInf(r, 1)
		}
		if !math.IsInf(r, 1) {
			values = append(values, r)
		}
	}
	runs = append(runs, currentRunLength)

	total := 0
	for _, r := range runs {
		total += r
	}
	if total != len(ranges) {
		return nil, nil, fmt.Errorf("sum of encoded runs is %d, must equal original list length %d", total, len(ranges))
	}
	// Only the first run may be zero.
	for _, r := range runs[1:] {
		if r <= 0 {
			return nil, nil, fmt.Errorf("zero or negative run length after the first run")
		}
	}
	finite := 0
	for i := 1; i < len(runs); i += 2 {
		finite += runs[i]
	}
	if finite != len(values) {
		return nil, nil, fmt.Errorf("sum of non-inf runs is %d, must equal number of encoded values %d", finite, len(values))
	}
	return runs, values, nil
}

// DecodeFloatingPointList reverses EncodeFloatingPointList.
func DecodeFloatingPointList(runs []int, values []float64) ([]float64, error) {
	var out []float64
	vi := 0
	for i, run := range runs {
		if run < 0 || (run == 0 && i != 0) {
			return nil, fmt.Errorf("invalid run length %d at index %d", run, i)
		}
		infinite := i%2 == 0
		for j := 0; j < run; j++ {
			if infinite {
				out = append(out, math.Inf(1))
			} else {
				if vi >= len(values) {
					return nil, fmt.Errorf("runs reference %d values but only %d were provided", vi+1, len(values))
				}
				out = append(out, values[vi])
				vi++
			}
		}
	}
	if vi != len(values) {
		return nil, fmt.Errorf("decoded %d values but %d were provided", vi, len(values))
	}
	return out, nil
}
