package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"FXForecast/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordForecast("USDJPY", 0.002)
	r.RecordForecast("USDJPY", -0.001)
	if got := testutil.ToFloat64(r.forecasts.WithLabelValues("USDJPY")); got != 2 {
		t.Errorf("forecasts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.lastForecast.WithLabelValues("USDJPY")); got != -0.001 {
		t.Errorf("last forecast = %v, want -0.001", got)
	}

	r.RecordEvaluation("USDJPY", "ensemble", models.Evaluation{RMSE: 0.01, DirectionAccuracy: 0.55})
	if got := testutil.ToFloat64(r.evaluation.WithLabelValues("USDJPY", "ensemble", "direction_accuracy")); got != 0.55 {
		t.Errorf("direction accuracy gauge = %v", got)
	}

	r.RecordError("forecast")
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("forecast")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	r.ObserveTraining("USDJPY", "lstm", 3*time.Second)
	r.RecordLatency("forecast", 0.2)
}

func TestNewIsShared(t *testing.T) {
	if New() != New() {
		t.Fatal("New returned distinct recorders")
	}
}
