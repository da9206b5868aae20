package models

// Evaluation holds regression and direction metrics for one model on one dataset.
// Loss and MAPE follow the model's native definition; Loss is zero for models without one.
type Evaluation struct {
	Samples           int     `json:"samples"`
	Loss              float64 `json:"loss,omitempty"`
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	MAPE              float64 `json:"mape"`
	R2                float64 `json:"r2"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
}

// EnsembleEvaluation groups the per-model and combined metrics of one test run.
type EnsembleEvaluation struct {
	Sequence Evaluation `json:"sequence"`
	Tree     Evaluation `json:"tree"`
	Ensemble Evaluation `json:"ensemble"`
}
