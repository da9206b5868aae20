package features

import "math"

func addPriceAction(t *Table) {
	open, _ := t.Column(ColOpen)
	high, _ := t.Column(ColHigh)
	low, _ := t.Column(ColLow)
	closes, _ := t.Column(ColClose)
	prev := shift(closes, 1)

	t.set("returns", zip(closes, prev, func(c, p float64) float64 { return c/p - 1 }))
	t.set("log_returns", zip(closes, prev, func(c, p float64) float64 { return math.Log(c / p) }))

	hl := zip(high, low, func(h, l float64) float64 { return h - l })
	t.set("high_low", hl)
	t.set("high_low_pct", ratio(hl, closes))

	body := zip(closes, open, func(c, o float64) float64 { return math.Abs(c - o) })
	t.set("body", body)
	t.set("body_pct", ratio(body, closes))

	n := t.Len()
	upper := make([]float64, n)
	lower := make([]float64, n)
	pos := make([]float64, n)
	for i := 0; i < n; i++ {
		upper[i] = high[i] - math.Max(open[i], closes[i])
		lower[i] = math.Min(open[i], closes[i]) - low[i]
		pos[i] = (closes[i] - low[i]) / (high[i] - low[i] + Epsilon)
	}
	t.set("upper_shadow", upper)
	t.set("lower_shadow", lower)
	t.set("price_position", pos)
}
