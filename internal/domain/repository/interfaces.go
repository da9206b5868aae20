package repository

import (
	"context"
	"errors"
	"time"

	"FXForecast/internal/domain/models"
)

// ErrArtifactNotFound is returned by ArtifactStore.Get for unknown names.
var ErrArtifactNotFound = errors.New("artifact not found")

// BarStore provides ordered OHLCV history, oldest first.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.Bar, error)
	GetLatestBars(ctx context.Context, symbol string, tf Timeframe, n int) ([]models.Bar, error)
}

// ArtifactStore persists named model artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// PredictionSink records forecasts for later analysis.
type PredictionSink interface {
	SaveForecast(ctx context.Context, f models.Forecast) error
}

// EventPublisher hands forecasts and training outcomes to downstream consumers.
type EventPublisher interface {
	PublishForecast(ctx context.Context, f models.Forecast) error
	PublishTraining(ctx context.Context, s models.TrainingSummary) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	ObserveTraining(symbol, model string, d time.Duration)
	RecordEvaluation(symbol, model string, ev models.Evaluation)
	RecordForecast(symbol string, change float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
