package ensemble

import (
	"context"
	"fmt"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/services/evaluation"
)

// Input holds the per-model inference samples. Either may be empty.
type Input struct {
	Sequence []models.Window
	Tabular  [][]float64
}

func (in Input) empty() bool { return len(in.Sequence) == 0 && len(in.Tabular) == 0 }

// Predict combines base predictions with strategy; the zero value uses the
// configured strategy. With only one input the single model's output passes
// through. When both outputs differ in length the trailing samples are used.
func (c *Combiner) Predict(in Input, strategy Strategy) ([]float64, error) {
	if err := c.state.Guard(); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = c.cfg.Strategy
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, ErrNoInput
	}

	sp, tp, err := c.basePredictions(in)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return tp, nil
	}
	if tp == nil {
		return sp, nil
	}
	n := min(len(sp), len(tp))
	sp, tp = tail(sp, n), tail(tp, n)

	out := make([]float64, n)
	switch strategy {
	case WeightedAverage:
		for i := range out {
			out[i] = c.cfg.SequenceWeight*sp[i] + c.cfg.TreeWeight*tp[i]
		}
	case MetaLearner:
		if c.meta == nil {
			return sp, nil
		}
		for i := range out {
			out[i] = c.meta.predict(sp[i], tp[i])
		}
	case Voting:
		for i := range out {
			out[i] = (sp[i] + tp[i]) / 2
		}
	}
	return out, nil
}

// PredictWithConfidence weights point, lower and upper bounds of both base
// intervals with the configured weights.
func (c *Combiner) PredictWithConfidence(ctx context.Context, in Input) (models.Interval, error) {
	if err := c.state.Guard(); err != nil {
		return models.Interval{}, err
	}
	if in.empty() {
		return models.Interval{}, ErrNoInput
	}

	var si, ti models.Interval
	var err error
	if len(in.Sequence) > 0 {
		if si, err = c.seq.PredictWithConfidence(ctx, in.Sequence); err != nil {
			return models.Interval{}, fmt.Errorf("sequence confidence: %w", err)
		}
	}
	if len(in.Tabular) > 0 {
		if ti, err = c.tree.PredictWithConfidence(ctx, in.Tabular); err != nil {
			return models.Interval{}, fmt.Errorf("tree confidence: %w", err)
		}
	}
	if len(in.Tabular) == 0 {
		return si, nil
	}
	if len(in.Sequence) == 0 {
		return ti, nil
	}

	n := min(si.Len(), ti.Len())
	si, ti = si.Tail(n), ti.Tail(n)
	ws, wt := c.cfg.SequenceWeight, c.cfg.TreeWeight
	out := models.Interval{Point: make([]float64, n), Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := 0; i < n; i++ {
		out.Point[i] = ws*si.Point[i] + wt*ti.Point[i]
		out.Lower[i] = ws*si.Lower[i] + wt*ti.Lower[i]
		out.Upper[i] = ws*si.Upper[i] + wt*ti.Upper[i]
	}
	return out, nil
}

// TestData holds held-out samples for both models.
type TestData struct {
	Sequence  []models.Window
	SequenceY []float64
	Tabular   [][]float64
	TabularY  []float64
}

// Evaluate scores each base model on its own test set and the combined
// prediction against the trailing sequence targets.
func (c *Combiner) Evaluate(d TestData) (models.EnsembleEvaluation, error) {
	var out models.EnsembleEvaluation
	if err := c.state.Guard(); err != nil {
		return out, err
	}
	var err error
	if out.Sequence, err = c.seq.Evaluate(d.Sequence, d.SequenceY); err != nil {
		return out, fmt.Errorf("evaluate sequence model: %w", err)
	}
	if out.Tree, err = c.tree.Evaluate(d.Tabular, d.TabularY); err != nil {
		return out, fmt.Errorf("evaluate tree model: %w", err)
	}

	combined, err := c.Predict(Input{Sequence: d.Sequence, Tabular: d.Tabular}, "")
	if err != nil {
		return out, err
	}
	n := min(len(combined), len(d.SequenceY))
	if out.Ensemble, err = evaluation.Regression(tail(combined, n), tail(d.SequenceY, n)); err != nil {
		return out, fmt.Errorf("evaluate ensemble: %w", err)
	}
	return out, nil
}

func (c *Combiner) basePredictions(in Input) (sp, tp []float64, err error) {
	if len(in.Sequence) > 0 {
		if sp, err = c.seq.Predict(in.Sequence); err != nil {
			return nil, nil, fmt.Errorf("sequence predict: %w", err)
		}
	}
	if len(in.Tabular) > 0 {
		if tp, err = c.tree.Predict(in.Tabular); err != nil {
			return nil, nil, fmt.Errorf("tree predict: %w", err)
		}
	}
	return sp, tp, nil
}
