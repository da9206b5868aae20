package evaluation

import (
	"math"
	"testing"
)

const tol = 1e-12

func TestDirectionAccuracy(t *testing.T) {
	tests := []struct {
		name   string
		pred   []float64
		actual []float64
		want   float64
	}{
		{"two of three", []float64{0.01, -0.02, 0.03}, []float64{0.02, -0.01, -0.01}, 2.0 / 3.0},
		{"all match", []float64{1, -1}, []float64{2, -3}, 1},
		{"zero matches only zero", []float64{0, 0}, []float64{0, -0.5}, 0.5},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DirectionAccuracy(tt.pred, tt.actual); math.Abs(got-tt.want) > tol {
				t.Errorf("DirectionAccuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegression(t *testing.T) {
	pred := []float64{0.5, 1.5, 2.5}
	actual := []float64{1, 1, 3}

	ev, err := Regression(pred, actual)
	if err != nil {
		t.Fatalf("Regression: %v", err)
	}
	if ev.Samples != 3 {
		t.Errorf("samples = %d", ev.Samples)
	}
	if math.Abs(ev.MSE-0.25) > tol {
		t.Errorf("MSE = %v, want 0.25", ev.MSE)
	}
	if math.Abs(ev.RMSE-0.5) > tol {
		t.Errorf("RMSE = %v, want 0.5", ev.RMSE)
	}
	if math.Abs(ev.MAE-0.5) > tol {
		t.Errorf("MAE = %v, want 0.5", ev.MAE)
	}
	// mean=5/3, ss_tot = 4/9+4/9+16/9 = 24/9, ss_res = 0.75
	if want := 1 - 0.75/(24.0/9.0); math.Abs(ev.R2-want) > tol {
		t.Errorf("R2 = %v, want %v", ev.R2, want)
	}
	// (0.5/1 + 0.5/1 + 0.5/3) / 3 * 100
	if want := (0.5 + 0.5 + 0.5/3) / 3 * 100; math.Abs(ev.MAPE-want) > 1e-6 {
		t.Errorf("MAPE = %v, want %v", ev.MAPE, want)
	}
}

func TestRegressionErrors(t *testing.T) {
	if _, err := Regression([]float64{1}, []float64{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := Regression(nil, nil); err == nil {
		t.Error("expected empty input error")
	}
}

func TestR2ConstantTarget(t *testing.T) {
	if got := R2([]float64{2, 2}, []float64{2, 2}); got != 1 {
		t.Errorf("perfect constant R2 = %v, want 1", got)
	}
	if got := R2([]float64{1, 3}, []float64{2, 2}); got != 0 {
		t.Errorf("imperfect constant R2 = %v, want 0", got)
	}
}

func TestMAPEGuards(t *testing.T) {
	if got := MAPE([]float64{0}, []float64{0}); got != 0 {
		t.Errorf("MAPE of exact zero = %v", got)
	}
	if got := KerasMAPE([]float64{1e-7}, []float64{0}); math.Abs(got-100) > 1e-9 {
		t.Errorf("KerasMAPE floor = %v, want 100", got)
	}
	if got := MAPE([]float64{1}, []float64{0}); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("MAPE must stay finite, got %v", got)
	}
}
