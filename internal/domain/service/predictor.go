package service

import (
	"context"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
)

// Dataset pairs model inputs with forward relative-change targets.
type Dataset[S any] struct {
	X []S
	Y []float64
}

// Len returns the number of samples.
func (d Dataset[S]) Len() int { return len(d.X) }

// Empty reports whether the dataset holds no samples.
func (d *Dataset[S]) Empty() bool { return d == nil || len(d.X) == 0 }

// Predictor is a trainable regression model over samples of type S.
// The sequence model uses models.Window samples, the tree model flat []float64 rows.
type Predictor[S any] interface {
	// Fit trains on train. val may be nil; when present it drives early stopping.
	Fit(ctx context.Context, train Dataset[S], val *Dataset[S]) (models.FitReport, error)
	Predict(X []S) ([]float64, error)
	// PredictWithConfidence uses the model's configured interval method.
	PredictWithConfidence(ctx context.Context, X []S) (models.Interval, error)
	Evaluate(X []S, y []float64) (models.Evaluation, error)
	Save(ctx context.Context, store repository.ArtifactStore, name string) error
	Load(ctx context.Context, store repository.ArtifactStore, name string) error
	State() models.TrainingState
}
