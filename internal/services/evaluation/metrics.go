// Package evaluation computes regression and direction metrics over
// predicted and actual relative price changes.
package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"FXForecast/internal/domain/models"
)

const (
	// Epsilon guards the MAPE denominator for near-zero actuals.
	Epsilon = 1e-10
	// kerasEpsilon is the backend epsilon used by the sequence model's native MAPE.
	kerasEpsilon = 1e-7
)

// Regression returns MSE, RMSE, MAE, R² and direction accuracy plus the
// epsilon-guarded MAPE.
func Regression(pred, actual []float64) (models.Evaluation, error) {
	if err := checkLengths(pred, actual); err != nil {
		return models.Evaluation{}, err
	}
	mse := MSE(pred, actual)
	return models.Evaluation{
		Samples:           len(pred),
		MSE:               mse,
		RMSE:              math.Sqrt(mse),
		MAE:               MAE(pred, actual),
		MAPE:              MAPE(pred, actual),
		R2:                R2(pred, actual),
		DirectionAccuracy: DirectionAccuracy(pred, actual),
	}, nil
}

// MSE is the mean squared error.
func MSE(pred, actual []float64) float64 {
	var s float64
	for i := range pred {
		d := actual[i] - pred[i]
		s += d * d
	}
	return s / float64(len(pred))
}

// MAE is the mean absolute error.
func MAE(pred, actual []float64) float64 {
	diff := make([]float64, len(pred))
	floats.SubTo(diff, actual, pred)
	return floats.Norm(diff, 1) / float64(len(pred))
}

// MAPE is mean(|y-p| / (|y| + 1e-10)) * 100.
func MAPE(pred, actual []float64) float64 {
	var s float64
	for i := range pred {
		s += math.Abs(actual[i]-pred[i]) / (math.Abs(actual[i]) + Epsilon)
	}
	return 100 * s / float64(len(pred))
}

// KerasMAPE is 100 * mean(|y-p| / max(|y|, 1e-7)).
func KerasMAPE(pred, actual []float64) float64 {
	var s float64
	for i := range pred {
		s += math.Abs(actual[i]-pred[i]) / math.Max(math.Abs(actual[i]), kerasEpsilon)
	}
	return 100 * s / float64(len(pred))
}

// R2 is the coefficient of determination. A constant target scores 1 when
// predicted perfectly and 0 otherwise.
func R2(pred, actual []float64) float64 {
	mean := stat.Mean(actual, nil)
	var ssRes, ssTot float64
	for i := range actual {
		r := actual[i] - pred[i]
		ssRes += r * r
		d := actual[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// DirectionAccuracy is mean(sign(pred) == sign(actual)) where sign(0) = 0.
func DirectionAccuracy(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	var hits int
	for i := range pred {
		if sign(pred[i]) == sign(actual[i]) {
			hits++
		}
	}
	return float64(hits) / float64(len(pred))
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func checkLengths(pred, actual []float64) error {
	if len(pred) != len(actual) {
		return fmt.Errorf("evaluation: %d predictions for %d actuals", len(pred), len(actual))
	}
	if len(pred) == 0 {
		return fmt.Errorf("evaluation: no samples")
	}
	return nil
}
