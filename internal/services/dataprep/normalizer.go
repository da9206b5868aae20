package dataprep

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"FXForecast/internal/services/features"
)

// Normalizer standardizes columns with statistics fixed at Fit time.
type Normalizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fitted reports whether statistics are present.
func (n *Normalizer) Fitted() bool { return len(n.Mean) > 0 }

// Fit computes per-column mean and sample standard deviation over rows.
// A single row yields a zero deviation.
func (n *Normalizer) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("normalizer: no rows to fit")
	}
	width := len(rows[0])
	mean := make([]float64, width)
	std := make([]float64, width)
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		if len(rows) == 1 {
			mean[j] = col[0]
			continue
		}
		mean[j], std[j] = stat.MeanStdDev(col, nil)
	}
	n.Mean, n.Std = mean, std
	return nil
}

// Transform returns (x - mean) / (std + eps) for every value, in new slices.
func (n *Normalizer) Transform(rows [][]float64) ([][]float64, error) {
	if !n.Fitted() {
		return nil, fmt.Errorf("normalizer: not fitted")
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(n.Mean) {
			return nil, fmt.Errorf("normalizer: row %d has %d columns, fitted on %d", i, len(r), len(n.Mean))
		}
		o := make([]float64, len(r))
		for j, v := range r {
			o[j] = (v - n.Mean[j]) / (n.Std[j] + features.Epsilon)
		}
		out[i] = o
	}
	return out, nil
}
