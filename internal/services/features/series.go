package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Series helpers over full-length columns. Positions without enough history
// hold NaN, and any window containing NaN yields NaN.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// shift moves values forward by lag rows: out[i] = x[i-lag].
func shift(x []float64, lag int) []float64 {
	out := nanSeries(len(x))
	for i := lag; i < len(x); i++ {
		out[i] = x[i-lag]
	}
	return out
}

// diff is x[i] - x[i-1].
func diff(x []float64) []float64 {
	out := nanSeries(len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}
	return out
}

// rolling applies fn to every full window of length w ending at i.
func rolling(x []float64, w int, fn func(win []float64) float64) []float64 {
	out := nanSeries(len(x))
	if w <= 0 {
		return out
	}
outer:
	for i := w - 1; i < len(x); i++ {
		win := x[i-w+1 : i+1]
		for _, v := range win {
			if math.IsNaN(v) {
				continue outer
			}
		}
		out[i] = fn(win)
	}
	return out
}

func rollingMean(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 { return stat.Mean(win, nil) })
}

// rollingStd uses the sample (n-1) standard deviation.
func rollingStd(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 { return stat.StdDev(win, nil) })
}

func rollingMax(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

func rollingMin(x []float64, w int) []float64 {
	return rolling(x, w, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}

// ema is the recursive exponential average with alpha = 2/(span+1), seeded
// with the first observation. NaN inputs carry the previous value forward.
func ema(x []float64, span int) []float64 {
	out := nanSeries(len(x))
	alpha := 2 / (float64(span) + 1)
	prev := math.NaN()
	for i, v := range x {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// zip combines two columns element-wise; NaN propagates through fn naturally.
func zip(a, b []float64, fn func(a, b float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = fn(a[i], b[i])
	}
	return out
}

func ratio(a, b []float64) []float64 {
	return zip(a, b, func(a, b float64) float64 { return a / b })
}
