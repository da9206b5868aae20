package gbt

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// cutPoints returns sorted split thresholds for one feature. A value x falls in
// bin k when exactly k cuts are <= x, so splitting after bin k sends x < cuts[k] left.
func cutPoints(values []float64, maxBins int, exact bool) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	slices.Sort(sorted)
	unique := slices.Compact(slices.Clone(sorted))
	if exact || len(unique) <= maxBins {
		return unique
	}

	cuts := make([]float64, 0, maxBins)
	for i := 1; i < maxBins; i++ {
		cuts = append(cuts, stat.Quantile(float64(i)/float64(maxBins), stat.Empirical, sorted, nil))
	}
	return slices.Compact(cuts)
}

// binOf returns the bin of v or -1 for NaN.
func binOf(cuts []float64, v float64) int {
	if math.IsNaN(v) {
		return -1
	}
	k, found := slices.BinarySearch(cuts, v)
	if found {
		return k + 1
	}
	return k
}

// binned holds the per-feature bin index of every training row.
type binned struct {
	cuts [][]float64
	bins [][]int32 // feature-major
}

func newBinned(X [][]float64, maxBins int, exact bool) *binned {
	nf := len(X[0])
	b := &binned{cuts: make([][]float64, nf), bins: make([][]int32, nf)}
	col := make([]float64, len(X))
	for f := 0; f < nf; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		b.cuts[f] = cutPoints(col, maxBins, exact)
		b.bins[f] = make([]int32, len(X))
		for i, v := range col {
			b.bins[f][i] = int32(binOf(b.cuts[f], v))
		}
	}
	return b
}
