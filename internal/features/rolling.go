package features

import "math"

// sumScale fixes aggregates to 6 decimals. Provider values carry at most two,
// so a window that adds up to a threshold compares equal to it.
const sumScale = 1e6

func round(v float64) float64 {
	return math.Round(v*sumScale) / sumScale
}

// windowSum adds values[max(0, i-n+1) .. i].
func windowSum(values []float64, i, n int) float64 {
	start := i - n + 1
	if start < 0 {
		start = 0
	}
	var s float64
	for _, v := range values[start : i+1] {
		s += v
	}
	return s
}

// RollingSum returns, for each index i, the sum of values[max(0, i-n+1) .. i].
// Each window is summed on its own; nothing carries over between indices.
func RollingSum(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = round(windowSum(values, i, n))
	}
	return out
}

// RollingMean is the partial-window mean matching RollingSum.
func RollingMean(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		count := min(i+1, n)
		out[i] = round(windowSum(values, i, n) / float64(count))
	}
	return out
}

// FullRollingSum is RollingSum restricted to complete windows: indices before
// n-1 are nil.
func FullRollingSum(values []float64, n int) []*float64 {
	out := make([]*float64, len(values))
	for i := n - 1; i < len(values); i++ {
		v := round(windowSum(values, i, n))
		out[i] = &v
	}
	return out
}

// FullRollingMean is RollingMean restricted to complete windows.
func FullRollingMean(values []float64, n int) []*float64 {
	out := make([]*float64, len(values))
	for i := n - 1; i < len(values); i++ {
		v := round(windowSum(values, i, n) / float64(n))
		out[i] = &v
	}
	return out
}
