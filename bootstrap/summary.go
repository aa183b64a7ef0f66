package bootstrap

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of support values.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Summarize computes statistics of support values, negative values are
// skipped.
func Summarize(support []int) (s Summary) {
	x := make([]float64, 0, len(support))
	for _, v := range support {
		if v >= 0 {
			x = append(x, float64(v))
		}
	}
	s.N = len(x)
	if s.N == 0 {
		return
	}
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)
	if s.N > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	} else {
		s.Mean = x[0]
	}
	sort.Float64s(x)
	s.Median = stat.Quantile(0.5, stat.Empirical, x, nil)
	return
}
