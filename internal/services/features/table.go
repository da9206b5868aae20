package features

import (
	"fmt"
	"math"
	"time"

	"FXForecast/internal/domain/models"
)

// Base OHLCV column names.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

var baseColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Table is a date-indexed column store. Every column has Len() rows and
// undefined values are NaN. Column order is insertion order.
type Table struct {
	dates []time.Time
	cols  map[string][]float64
	order []string
}

// NewTable builds a table holding the base OHLCV columns of bars.
func NewTable(bars []models.Bar) *Table {
	n := len(bars)
	t := &Table{
		dates: make([]time.Time, n),
		cols:  make(map[string][]float64, 96),
	}
	cols := make([][]float64, len(baseColumns))
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	for i, b := range bars {
		t.dates[i] = b.Date
		cols[0][i], cols[1][i], cols[2][i], cols[3][i], cols[4][i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	for i, name := range baseColumns {
		t.set(name, cols[i])
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.dates) }

// Dates returns the row index.
func (t *Table) Dates() []time.Time { return t.dates }

// Columns returns all column names in insertion order.
func (t *Table) Columns() []string { return append([]string(nil), t.order...) }

// Column returns the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// MustColumn returns the named column or an error naming it.
func (t *Table) MustColumn(name string) ([]float64, error) {
	c, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("column %q not in feature table", name)
	}
	return c, nil
}

// Row returns the values of cols at row i.
func (t *Table) Row(i int, cols []string) []float64 {
	out := make([]float64, len(cols))
	for j, name := range cols {
		out[j] = t.cols[name][i]
	}
	return out
}

// RowDefined reports whether none of cols is NaN at row i.
func (t *Table) RowDefined(i int, cols []string) bool {
	for _, name := range cols {
		if math.IsNaN(t.cols[name][i]) {
			return false
		}
	}
	return true
}

func (t *Table) set(name string, values []float64) {
	if _, ok := t.cols[name]; !ok {
		t.order = append(t.order, name)
	}
	t.cols[name] = values
}

func (t *Table) hasDates() bool {
	for _, d := range t.dates {
		if !d.IsZero() {
			return true
		}
	}
	return false
}
