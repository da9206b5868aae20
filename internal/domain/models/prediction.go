package models

import (
	"time"

	"github.com/google/uuid"
)

// Interval holds point estimates with lower and upper bounds, one entry per
// input sample, all as relative price change.
type Interval struct {
	Point []float64 `json:"point"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// Len returns the number of samples.
func (iv Interval) Len() int { return len(iv.Point) }

// Tail keeps the last n samples.
func (iv Interval) Tail(n int) Interval {
	if n >= iv.Len() {
		return iv
	}
	k := iv.Len() - n
	return Interval{Point: iv.Point[k:], Lower: iv.Lower[k:], Upper: iv.Upper[k:]}
}

// Forecast is the published result of one inference run for a symbol.
type Forecast struct {
	ID              uuid.UUID `json:"id"`
	Symbol          string    `json:"symbol"`
	Timeframe       string    `json:"timeframe"`
	AsOf            time.Time `json:"as_of"`
	Horizon         int       `json:"horizon"`
	Strategy        string    `json:"strategy"`
	PredictedChange float64   `json:"predicted_change"`
	Lower           float64   `json:"lower"`
	Upper           float64   `json:"upper"`
	SequenceChange  float64   `json:"sequence_change"`
	TreeChange      float64   `json:"tree_change"`
	LastClose       float64   `json:"last_close"`
	PredictedPrice  float64   `json:"predicted_price"`
	RealizedVol     float64   `json:"realized_vol"`
	CreatedAt       time.Time `json:"created_at"`
}
