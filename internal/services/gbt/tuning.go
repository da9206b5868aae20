package gbt

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"FXForecast/internal/domain/service"
	"FXForecast/internal/services/evaluation"
	"FXForecast/pkg/logger"
)

// Fold is one chronological train/test index range pair.
type Fold struct {
	TrainEnd  int // train is [0, TrainEnd)
	TestStart int
	TestEnd   int
}

// TimeSeriesSplit yields k expanding-window folds over n ordered samples.
// Each test block has n/(k+1) samples and always follows its training block.
func TimeSeriesSplit(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("time series split: need at least 2 splits, got %d", k)
	}
	size := n / (k + 1)
	if size == 0 {
		return nil, fmt.Errorf("time series split: %d samples too few for %d splits", n, k)
	}
	folds := make([]Fold, k)
	for i := range folds {
		start := n - (k-i)*size
		folds[i] = Fold{TrainEnd: start, TestStart: start, TestEnd: start + size}
	}
	return folds, nil
}

// Params is one grid point.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	Subsample       float64 `json:"subsample"`
	ColSampleByTree float64 `json:"colsample_bytree"`
}

func (p Params) apply(c *Config) {
	c.NEstimators, c.MaxDepth, c.LearningRate = p.NEstimators, p.MaxDepth, p.LearningRate
	c.Subsample, c.ColSampleByTree = p.Subsample, p.ColSampleByTree
}

// Grid lists candidate values per hyperparameter.
type Grid struct {
	NEstimators     []int
	MaxDepth        []int
	LearningRate    []float64
	Subsample       []float64
	ColSampleByTree []float64
}

// DefaultGrid is the 432-point search space.
func DefaultGrid() Grid {
	return Grid{
		NEstimators:     []int{100, 200, 300},
		MaxDepth:        []int{3, 5, 7, 9},
		LearningRate:    []float64{0.01, 0.05, 0.1, 0.2},
		Subsample:       []float64{0.6, 0.8, 1.0},
		ColSampleByTree: []float64{0.6, 0.8, 1.0},
	}
}

// Combinations enumerates the grid with the last parameter varying fastest.
func (g Grid) Combinations() []Params {
	var out []Params
	for _, n := range g.NEstimators {
		for _, d := range g.MaxDepth {
			for _, lr := range g.LearningRate {
				for _, s := range g.Subsample {
					for _, c := range g.ColSampleByTree {
						out = append(out, Params{n, d, lr, s, c})
					}
				}
			}
		}
	}
	return out
}

// CVResult is the cross-validated score of one grid point.
type CVResult struct {
	Params     Params    `json:"params"`
	MeanMSE    float64   `json:"mean_mse"`
	FoldScores []float64 `json:"fold_mse"`
}

// TuningResult is the outcome of a grid search.
type TuningResult struct {
	BestParams Params        `json:"best_params"`
	BestScore  float64       `json:"best_score"`
	CVResults  []CVResult    `json:"cv_results"`
	Duration   time.Duration `json:"duration"`
}

// HyperparameterTuning scores every grid point (DefaultGrid when grid is nil)
// with chronological cross-validation on a bounded worker pool, picks the
// lowest mean MSE (first wins ties) and refits the model on all of train
// with the winning parameters.
func (m *Model) HyperparameterTuning(ctx context.Context, train service.Dataset[[]float64], grid *Grid, cvSplits int) (TuningResult, error) {
	if _, err := checkRows(train.X, train.Y); err != nil {
		return TuningResult{}, fmt.Errorf("gbt tuning: %w", err)
	}
	if cvSplits <= 0 {
		cvSplits = m.cfg.CVSplits
	}
	folds, err := TimeSeriesSplit(train.Len(), cvSplits)
	if err != nil {
		return TuningResult{}, err
	}
	g := DefaultGrid()
	if grid != nil {
		g = *grid
	}
	combos := g.Combinations()
	if len(combos) == 0 {
		return TuningResult{}, fmt.Errorf("gbt tuning: empty parameter grid")
	}

	start := time.Now()
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]CVResult, len(combos))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, p := range combos {
		eg.Go(func() error {
			res, err := m.crossValidate(ectx, train, folds, p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return TuningResult{}, fmt.Errorf("gbt tuning: %w", err)
	}

	best := 0
	for i := range results {
		if results[i].MeanMSE < results[best].MeanMSE {
			best = i
		}
	}
	out := TuningResult{BestParams: results[best].Params, BestScore: results[best].MeanMSE, CVResults: results}

	cfg := m.cfg
	out.BestParams.apply(&cfg)
	m.cfg = cfg
	if _, err := m.Fit(ctx, train, nil); err != nil {
		return TuningResult{}, fmt.Errorf("gbt tuning refit: %w", err)
	}
	out.Duration = time.Since(start)
	m.log.Info("hyperparameter search finished",
		logger.Int("candidates", len(combos)),
		logger.Int("folds", len(folds)),
		logger.Float64("best_mse", out.BestScore),
		logger.Any("best_params", out.BestParams),
		logger.Duration("duration", out.Duration))
	return out, nil
}

func (m *Model) crossValidate(ctx context.Context, train service.Dataset[[]float64], folds []Fold, p Params) (CVResult, error) {
	cfg := m.cfg
	p.apply(&cfg)
	res := CVResult{Params: p, FoldScores: make([]float64, len(folds))}
	var sum float64
	for k, f := range folds {
		cand := &Model{cfg: cfg, log: logger.Nop()}
		fit := service.Dataset[[]float64]{X: train.X[:f.TrainEnd], Y: train.Y[:f.TrainEnd]}
		if _, err := cand.Fit(ctx, fit, nil); err != nil {
			return CVResult{}, err
		}
		pred := cand.predictRows(train.X[f.TestStart:f.TestEnd])
		res.FoldScores[k] = evaluation.MSE(pred, train.Y[f.TestStart:f.TestEnd])
		sum += res.FoldScores[k]
	}
	res.MeanMSE = sum / float64(len(folds))
	if math.IsNaN(res.MeanMSE) {
		res.MeanMSE = math.Inf(1)
	}
	return res, nil
}
