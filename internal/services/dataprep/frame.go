// Package dataprep turns feature tables into model-ready datasets: normalized
// rolling windows for the sequence model and flat rows for the tree model.
package dataprep

import (
	"fmt"
	"time"

	"FXForecast/internal/services/features"
)

// ColumnSource supplies the recorded feature column list.
type ColumnSource interface {
	FeatureColumns() []string
}

// Frame is the subset of a feature table with every selected feature defined.
// Price holds the unnormalized target column on the same rows.
type Frame struct {
	Columns []string
	Dates   []time.Time
	X       [][]float64
	Price   []float64
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.X) }

// Head returns the first n rows.
func (f Frame) Head(n int) Frame {
	if n > f.Len() {
		n = f.Len()
	}
	return Frame{Columns: f.Columns, Dates: f.Dates[:n], X: f.X[:n], Price: f.Price[:n]}
}

// Select keeps the rows of table where all cols and the target are defined.
func Select(table *features.Table, cols []string, target string) (Frame, error) {
	if len(cols) == 0 {
		return Frame{}, fmt.Errorf("no feature columns recorded")
	}
	for _, c := range cols {
		if _, err := table.MustColumn(c); err != nil {
			return Frame{}, err
		}
	}
	price, err := table.MustColumn(target)
	if err != nil {
		return Frame{}, err
	}

	need := append(append([]string(nil), cols...), target)
	f := Frame{Columns: append([]string(nil), cols...)}
	dates := table.Dates()
	for i := 0; i < table.Len(); i++ {
		if !table.RowDefined(i, need) {
			continue
		}
		f.Dates = append(f.Dates, dates[i])
		f.X = append(f.X, table.Row(i, cols))
		f.Price = append(f.Price, price[i])
	}
	return f, nil
}
