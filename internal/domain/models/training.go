package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotTrained is returned by any inference or persistence call on a model
// that has neither been trained nor loaded.
var ErrNotTrained = errors.New("model is not trained")

// TrainingState is the lifecycle of a predictor or ensemble. The only
// transitions are Untrained -> Trained via train or load, and Trained -> Trained on retrain.
type TrainingState int

const (
	Untrained TrainingState = iota
	Trained
)

func (s TrainingState) String() string {
	if s == Trained {
		return "trained"
	}
	return "untrained"
}

// Guard returns ErrNotTrained unless the state is Trained.
func (s TrainingState) Guard() error {
	if s != Trained {
		return ErrNotTrained
	}
	return nil
}

// History records per-epoch sequence model training progress.
type History struct {
	Loss         []float64 `json:"loss"`
	ValLoss      []float64 `json:"val_loss,omitempty"`
	LearningRate []float64 `json:"lr"`
	BestEpoch    int       `json:"best_epoch"`
	StoppedEarly bool      `json:"stopped_early"`
}

// Epochs returns the number of completed epochs.
func (h History) Epochs() int { return len(h.Loss) }

// FitReport summarises one training call of a base predictor.
type FitReport struct {
	Model         string    `json:"model"`
	NSamples      int       `json:"n_samples"`
	NFeatures     int       `json:"n_features"`
	BestIteration *int      `json:"best_iteration,omitempty"`
	BestScore     *float64  `json:"best_score,omitempty"`
	History       *History  `json:"history,omitempty"`
	EvalHistory   []float64 `json:"eval_history,omitempty"`
}

// TrainingSummary is the outcome of one end-to-end training run for a symbol.
type TrainingSummary struct {
	RunID       uuid.UUID          `json:"run_id"`
	Symbol      string             `json:"symbol"`
	Timeframe   string             `json:"timeframe"`
	Bars        int                `json:"bars"`
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	Sequence    FitReport          `json:"sequence"`
	Tree        FitReport          `json:"tree"`
	MetaLearner bool               `json:"meta_learner"`
	Tuned       bool               `json:"tuned"`
	Evaluation  EnsembleEvaluation `json:"evaluation"`
	Artifact    string             `json:"artifact"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
}

// TrainRequest asks for a training run over an optional date range.
type TrainRequest struct {
	Symbol string `json:"symbol"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}
