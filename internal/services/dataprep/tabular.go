package dataprep

import (
	"fmt"
	"math"
	"time"

	"FXForecast/internal/services/features"
)

// TabularBuilder produces flat, unnormalized feature rows.
type TabularBuilder struct {
	src ColumnSource
}

// NewTabularBuilder creates a builder reading columns from src.
func NewTabularBuilder(src ColumnSource) *TabularBuilder {
	return &TabularBuilder{src: src}
}

// PrepareTabular returns rows of the recorded feature columns with target
// (price[t+horizon] - price[t]) / price[t]. Rows with any undefined feature
// or target are dropped.
func (b *TabularBuilder) PrepareTabular(table *features.Table, target string, horizon int) ([][]float64, []float64, error) {
	X, y, _, err := b.PrepareTabularDated(table, target, horizon)
	return X, y, err
}

// PrepareTabularDated is PrepareTabular that also returns the date of each row.
func (b *TabularBuilder) PrepareTabularDated(table *features.Table, target string, horizon int) ([][]float64, []float64, []time.Time, error) {
	if horizon <= 0 {
		return nil, nil, nil, fmt.Errorf("horizon must be positive")
	}
	cols := b.src.FeatureColumns()
	if len(cols) == 0 {
		return nil, nil, nil, fmt.Errorf("no feature columns recorded")
	}
	price, err := table.MustColumn(target)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, c := range cols {
		if _, err := table.MustColumn(c); err != nil {
			return nil, nil, nil, err
		}
	}

	dates := table.Dates()
	var X [][]float64
	var y []float64
	var at []time.Time
	for i := 0; i+horizon < table.Len(); i++ {
		ahead := (price[i+horizon] - price[i]) / price[i]
		if math.IsNaN(ahead) || math.IsInf(ahead, 0) || !table.RowDefined(i, cols) {
			continue
		}
		X = append(X, table.Row(i, cols))
		y = append(y, ahead)
		at = append(at, dates[i])
	}
	return X, y, at, nil
}

// LatestRow returns the last row's features for inference.
func (b *TabularBuilder) LatestRow(table *features.Table) ([]float64, error) {
	cols := b.src.FeatureColumns()
	if table.Len() == 0 {
		return nil, fmt.Errorf("latest row: empty table")
	}
	last := table.Len() - 1
	for _, c := range cols {
		if _, err := table.MustColumn(c); err != nil {
			return nil, err
		}
	}
	if !table.RowDefined(last, cols) {
		return nil, fmt.Errorf("latest row: undefined features, history too short")
	}
	return table.Row(last, cols), nil
}
