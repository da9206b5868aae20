package features

import (
	"math"
	"math/rand"
	"slices"
	"testing"
	"time"

	"FXForecast/internal/domain/models"
)

// syntheticBars returns a seeded random walk of daily bars starting on a Monday.
func syntheticBars(n int, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]models.Bar, n)
	price := 150.0
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.004
		hi := math.Max(open, price) * (1 + rng.Float64()*0.002)
		lo := math.Min(open, price) * (1 - rng.Float64()*0.002)
		bars[i] = models.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  price,
			Volume: math.NaN(),
		}
	}
	return bars
}

func trendBars(n int, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + step*float64(i)
		o := c - step/2
		bars[i] = models.Bar{
			Date:  start.AddDate(0, 0, i),
			Open:  o,
			High:  math.Max(o, c) + 0.1,
			Low:   math.Min(o, c) - 0.1,
			Close: c,
		}
	}
	return bars
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestCreateFeaturesPreservesRows(t *testing.T) {
	bars := syntheticBars(120, 1)
	e := NewEngineer(nil)
	table, err := e.CreateFeatures(bars, "close", DefaultFlags())
	if err != nil {
		t.Fatalf("CreateFeatures: %v", err)
	}
	if table.Len() != len(bars) {
		t.Fatalf("rows = %d, want %d", table.Len(), len(bars))
	}
	closes, _ := table.Column(ColClose)
	for i, b := range bars {
		if !table.Dates()[i].Equal(b.Date) || closes[i] != b.Close {
			t.Fatalf("row %d reordered or altered", i)
		}
	}
}

func TestFeatureColumns(t *testing.T) {
	e := NewEngineer(nil)
	if _, err := e.CreateFeatures(syntheticBars(60, 2), "close", DefaultFlags()); err != nil {
		t.Fatal(err)
	}
	cols := e.FeatureColumns()
	for _, base := range baseColumns {
		if slices.Contains(cols, base) {
			t.Errorf("feature columns must not include base column %q", base)
		}
	}
	// 9 price action + 8 sma + 2 ema + 3 macd + 1 rsi + 6 bb + 1 atr + 2 stoch
	// + 12 lags + 24 rolling + 7 calendar
	if want := 9 + 8 + 2 + 3 + 1 + 6 + 1 + 2 + 12 + 24 + 7; len(cols) != want {
		t.Errorf("got %d feature columns, want %d", len(cols), want)
	}
	for _, name := range []string{"returns", "macd_hist", "close_lag_20", "returns_lag_1", "rolling_min_ratio_50", "is_quarter_end"} {
		if !slices.Contains(cols, name) {
			t.Errorf("missing column %q", name)
		}
	}

	_, err := e.CreateFeatures(syntheticBars(60, 2), "close", Flags{Lags: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"close_lag_1", "close_lag_2", "close_lag_3", "close_lag_5", "close_lag_10", "close_lag_20"}
	if got := e.FeatureColumns(); !slices.Equal(got, want) {
		t.Errorf("lags only: got %v, want %v", got, want)
	}
}

func TestCreateFeaturesIdempotent(t *testing.T) {
	bars := syntheticBars(100, 3)
	e := NewEngineer(nil)
	a, err := e.CreateFeatures(bars, "close", DefaultFlags())
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.CreateFeatures(bars, "close", DefaultFlags())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Columns(), b.Columns()) {
		t.Fatal("column order differs between calls")
	}
	for _, name := range a.Columns() {
		ca, _ := a.Column(name)
		cb, _ := b.Column(name)
		for i := range ca {
			if !sameFloat(ca[i], cb[i]) {
				t.Fatalf("column %s row %d differs: %v vs %v", name, i, ca[i], cb[i])
			}
		}
	}
}

func TestCalendarFlagsConsistent(t *testing.T) {
	table, err := NewEngineer(nil).CreateFeatures(syntheticBars(400, 4), "close", DefaultFlags())
	if err != nil {
		t.Fatal(err)
	}
	ms, _ := table.Column("is_month_start")
	me, _ := table.Column("is_month_end")
	qs, _ := table.Column("is_quarter_start")
	qe, _ := table.Column("is_quarter_end")
	dow, _ := table.Column("day_of_week")
	for i, d := range table.Dates() {
		if (ms[i] == 1) != (d.Day() == 1) {
			t.Fatalf("%s: month start flag %v", d, ms[i])
		}
		if qs[i] == 1 && ms[i] != 1 {
			t.Fatalf("%s: quarter start without month start", d)
		}
		if qe[i] == 1 && me[i] != 1 {
			t.Fatalf("%s: quarter end without month end", d)
		}
		if ms[i] == 1 && me[i] == 1 {
			t.Fatalf("%s: both month start and end", d)
		}
		if me[i] == 1 && d.AddDate(0, 0, 1).Day() != 1 {
			t.Fatalf("%s: month end flag on non-last day", d)
		}
	}
	// 2023-01-02 is a Monday.
	if dow[0] != 0 || dow[6] != 6 {
		t.Errorf("day_of_week = %v, %v; want 0 (Mon), 6 (Sun)", dow[0], dow[6])
	}
}

func TestRSIBoundaries(t *testing.T) {
	e := NewEngineer(nil)
	tests := []struct {
		name string
		step float64
		want float64
	}{
		{"increasing", 0.5, 100},
		{"decreasing", -0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := e.CreateFeatures(trendBars(40, tt.step), "close", Flags{Technical: true})
			if err != nil {
				t.Fatal(err)
			}
			r, _ := table.Column("rsi")
			for i := rsiPeriod; i < len(r); i++ {
				if math.Abs(r[i]-tt.want) > 1e-6 {
					t.Fatalf("rsi[%d] = %v, want %v", i, r[i], tt.want)
				}
			}
		})
	}
}

func TestBollingerOrdering(t *testing.T) {
	table, err := NewEngineer(nil).CreateFeatures(syntheticBars(200, 5), "close", Flags{Technical: true})
	if err != nil {
		t.Fatal(err)
	}
	up, _ := table.Column("bb_upper")
	mid, _ := table.Column("bb_middle")
	lo, _ := table.Column("bb_lower")
	defined := 0
	for i := range mid {
		if math.IsNaN(mid[i]) {
			continue
		}
		defined++
		if !(up[i] >= mid[i] && mid[i] >= lo[i]) {
			t.Fatalf("row %d: bands out of order %v %v %v", i, up[i], mid[i], lo[i])
		}
	}
	if defined != 200-bbPeriod+1 {
		t.Errorf("defined rows = %d, want %d", defined, 200-bbPeriod+1)
	}
}

func TestKnownValues(t *testing.T) {
	table, err := NewEngineer(nil).CreateFeatures(trendBars(30, 1), "close", DefaultFlags())
	if err != nil {
		t.Fatal(err)
	}
	sma5, _ := table.Column("sma_5")
	if !math.IsNaN(sma5[3]) || sma5[4] != 102 {
		t.Errorf("sma_5[3..4] = %v, %v; want NaN, 102", sma5[3], sma5[4])
	}
	lag2, _ := table.Column("close_lag_2")
	if lag2[5] != 103 {
		t.Errorf("close_lag_2[5] = %v, want 103", lag2[5])
	}
	ema12, _ := table.Column("ema_12")
	if ema12[0] != 100 {
		t.Errorf("ema seeded with first value, got %v", ema12[0])
	}
	ret, _ := table.Column("returns")
	if !math.IsNaN(ret[0]) || math.Abs(ret[1]-0.01) > 1e-12 {
		t.Errorf("returns[0..1] = %v, %v", ret[0], ret[1])
	}
	atr, _ := table.Column("atr")
	// from the second bar on, the gap to the previous close dominates: high - prev_close = 1.1
	if math.Abs(atr[14]-1.1) > 1e-9 {
		t.Errorf("atr[14] = %v, want 1.1", atr[14])
	}
	if want := (0.7 + 13*1.1) / 14; math.Abs(atr[13]-want) > 1e-9 {
		t.Errorf("atr[13] = %v, want %v", atr[13], want)
	}
}

func TestPricePositionFlatBar(t *testing.T) {
	bars := []models.Bar{{Open: 1, High: 1, Low: 1, Close: 1}}
	table, err := NewEngineer(nil).CreateFeatures(bars, "close", Flags{PriceAction: true})
	if err != nil {
		t.Fatal(err)
	}
	pos, _ := table.Column("price_position")
	if pos[0] != 0 || math.IsNaN(pos[0]) {
		t.Errorf("flat bar position = %v, want 0", pos[0])
	}
	if _, ok := table.Column("day_of_week"); ok {
		t.Error("calendar features require dates")
	}
}

func TestCreateFeaturesErrors(t *testing.T) {
	e := NewEngineer(nil)
	bad := trendBars(5, 1)
	bad[2].High = bad[2].Close - 1
	if _, err := e.CreateFeatures(bad, "close", DefaultFlags()); err == nil {
		t.Error("expected envelope error")
	}
	unordered := trendBars(5, 1)
	unordered[3].Date = unordered[1].Date
	if _, err := e.CreateFeatures(unordered, "close", DefaultFlags()); err == nil {
		t.Error("expected ordering error")
	}
	if _, err := e.CreateFeatures(trendBars(5, 1), "vwap", DefaultFlags()); err == nil {
		t.Error("expected unknown target error")
	}
	empty, err := e.CreateFeatures(nil, "close", DefaultFlags())
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty input produced %d rows", empty.Len())
	}
}

func TestRealizedVolatility(t *testing.T) {
	bars := trendBars(3, 0)
	if r := LogReturns(bars); len(r) != 2 || r[0] != 0 {
		t.Errorf("flat log returns = %v", r)
	}
	if v := RealizedVolatility([]float64{0.01, -0.01, 0.01, -0.01}, 4, 260); v <= 0 {
		t.Errorf("volatility = %v, want > 0", v)
	}
	if v := RealizedVolatility([]float64{0.01}, 20, 260); v != 0 {
		t.Errorf("short history volatility = %v, want 0", v)
	}
}
