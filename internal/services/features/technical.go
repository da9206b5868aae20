package features

import (
	"fmt"
	"math"
)

var (
	smaWindows = []int{5, 10, 20, 50}
	emaSpans   = []int{12, 26}
)

const (
	rsiPeriod   = 14
	bbPeriod    = 20
	bbStdDevs   = 2
	atrPeriod   = 14
	stochPeriod = 14
	stochSmooth = 3
	macdSignal  = 9
)

func addTechnical(t *Table) {
	high, _ := t.Column(ColHigh)
	low, _ := t.Column(ColLow)
	closes, _ := t.Column(ColClose)

	for _, w := range smaWindows {
		sma := rollingMean(closes, w)
		t.set(fmt.Sprintf("sma_%d", w), sma)
		t.set(fmt.Sprintf("price_to_sma_%d", w), ratio(closes, sma))
	}
	emas := make(map[int][]float64, len(emaSpans))
	for _, span := range emaSpans {
		emas[span] = ema(closes, span)
		t.set(fmt.Sprintf("ema_%d", span), emas[span])
	}

	macd := zip(emas[12], emas[26], func(a, b float64) float64 { return a - b })
	signal := ema(macd, macdSignal)
	t.set("macd", macd)
	t.set("macd_signal", signal)
	t.set("macd_hist", zip(macd, signal, func(a, b float64) float64 { return a - b }))

	t.set("rsi", rsi(closes, rsiPeriod))

	mid := rollingMean(closes, bbPeriod)
	std := rollingStd(closes, bbPeriod)
	upper := zip(mid, std, func(m, s float64) float64 { return m + bbStdDevs*s })
	lower := zip(mid, std, func(m, s float64) float64 { return m - bbStdDevs*s })
	t.set("bb_middle", mid)
	t.set("bb_std", std)
	t.set("bb_upper", upper)
	t.set("bb_lower", lower)
	width := make([]float64, t.Len())
	pos := make([]float64, t.Len())
	for i := range width {
		width[i] = (upper[i] - lower[i]) / mid[i]
		pos[i] = (closes[i] - lower[i]) / (upper[i] - lower[i] + Epsilon)
	}
	t.set("bb_width", width)
	t.set("bb_position", pos)

	t.set("atr", rollingMean(trueRange(high, low, closes), atrPeriod))

	lowMin := rollingMin(low, stochPeriod)
	highMax := rollingMax(high, stochPeriod)
	k := make([]float64, t.Len())
	for i := range k {
		k[i] = (closes[i] - lowMin[i]) / (highMax[i] - lowMin[i] + Epsilon) * 100
	}
	t.set("stoch_k", k)
	t.set("stoch_d", rollingMean(k, stochSmooth))
}

// rsi averages gains and losses over a simple rolling window. The first row
// has no change and counts as zero gain and zero loss.
func rsi(closes []float64, period int) []float64 {
	delta := diff(closes)
	gain := make([]float64, len(delta))
	loss := make([]float64, len(delta))
	for i, d := range delta {
		if d > 0 {
			gain[i] = d
		} else if d < 0 {
			loss[i] = -d
		}
	}
	avgGain := rollingMean(gain, period)
	avgLoss := rollingMean(loss, period)
	return zip(avgGain, avgLoss, func(g, l float64) float64 {
		rs := g / (l + Epsilon)
		return 100 - 100/(1+rs)
	})
}

// trueRange is max(high-low, |high-prev_close|, |low-prev_close|), skipping
// terms undefined on the first row.
func trueRange(high, low, closes []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		tr := high[i] - low[i]
		if i > 0 {
			pc := closes[i-1]
			tr = math.Max(tr, math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
		}
		out[i] = tr
	}
	return out
}
