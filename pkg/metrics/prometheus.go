package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FXForecast/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingDuration *prometheus.HistogramVec
	evaluation       *prometheus.GaugeVec
	forecasts        *prometheus.CounterVec
	lastForecast     *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

var (
	once     sync.Once
	recorder *Recorder
)

// New returns the process-wide recorder registered with the default registry.
func New() *Recorder {
	once.Do(func() {
		recorder = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return recorder
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fxforecast",
				Name:      "training_duration_seconds",
				Help:      "Duration of model training runs",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"symbol", "model"},
		),
		evaluation: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fxforecast",
				Name:      "evaluation",
				Help:      "Latest held-out evaluation metric per model",
			},
			[]string{"symbol", "model", "metric"},
		),
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fxforecast",
				Name:      "forecasts_total",
				Help:      "Total number of forecasts produced",
			},
			[]string{"symbol"},
		),
		lastForecast: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fxforecast",
				Name:      "last_predicted_change",
				Help:      "Last predicted relative change for a symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fxforecast",
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fxforecast",
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// ObserveTraining records how long one model took to train.
func (r *Recorder) ObserveTraining(symbol, model string, d time.Duration) {
	r.trainingDuration.WithLabelValues(symbol, model).Observe(d.Seconds())
}

// RecordEvaluation publishes the metrics of one evaluation as gauges.
func (r *Recorder) RecordEvaluation(symbol, model string, ev models.Evaluation) {
	for metric, v := range map[string]float64{
		"mse":                ev.MSE,
		"rmse":               ev.RMSE,
		"mae":                ev.MAE,
		"mape":               ev.MAPE,
		"r2":                 ev.R2,
		"direction_accuracy": ev.DirectionAccuracy,
	} {
		r.evaluation.WithLabelValues(symbol, model, metric).Set(v)
	}
}

// RecordForecast counts a forecast and keeps its predicted change.
func (r *Recorder) RecordForecast(symbol string, change float64) {
	r.forecasts.WithLabelValues(symbol).Inc()
	r.lastForecast.WithLabelValues(symbol).Set(change)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
