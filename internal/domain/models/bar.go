package models

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV period. Volume is NaN when the source does not report it.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HasVolume reports whether the bar carries a volume figure.
func (b Bar) HasVolume() bool { return !math.IsNaN(b.Volume) }

// Validate checks the OHLC envelope: high is the maximum and low the minimum of the bar.
func (b Bar) Validate() error {
	if b.High < math.Max(math.Max(b.Open, b.Close), b.Low) {
		return fmt.Errorf("bar %s: high %.6f below open/close/low", b.Date.Format(time.RFC3339), b.High)
	}
	if b.Low > math.Min(math.Min(b.Open, b.Close), b.High) {
		return fmt.Errorf("bar %s: low %.6f above open/close/high", b.Date.Format(time.RFC3339), b.Low)
	}
	return nil
}

// Window is one model input sample for the sequence model: Window[t][f] is
// feature f at time step t, oldest step first.
type Window = [][]float64
