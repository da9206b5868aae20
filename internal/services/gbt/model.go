// Package gbt implements the gradient-boosted regression tree predictor over
// flat feature rows.
package gbt

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/service"
	"FXForecast/internal/services/evaluation"
	"FXForecast/pkg/logger"
)

// Importance is the normalized average split gain of one feature.
type Importance struct {
	Index   int     `json:"index"`
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// Model is the tree predictor.
type Model struct {
	cfg   Config
	log   *logger.Logger
	names []string
	state models.TrainingState

	nFeatures   int
	base        float64
	trees       []tree
	importances []Importance
	residStd    float64
	evalHistory []float64
}

var _ service.Predictor[[]float64] = (*Model)(nil)

// New creates an untrained model.
func New(log *logger.Logger, opts ...Option) *Model {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = logger.Nop()
	}
	m := &Model{cfg: cfg, log: log.With(logger.String("model", "gbt"))}
	if !cfg.Explain {
		m.log.Warn("feature attribution disabled, Explain returns unsupported results")
	}
	return m
}

// Config returns the current hyperparameters.
func (m *Model) Config() Config { return m.cfg }

// State returns the training state.
func (m *Model) State() models.TrainingState { return m.state }

// SetFeatureNames labels feature importances and attributions.
func (m *Model) SetFeatureNames(names []string) { m.names = append([]string(nil), names...) }

// Fit boosts squared-error trees from base score mean(y). With a non-empty
// val set, training stops after EarlyStoppingRounds rounds without
// validation RMSE improvement and keeps the trees up to the best round.
func (m *Model) Fit(ctx context.Context, train service.Dataset[[]float64], val *service.Dataset[[]float64]) (models.FitReport, error) {
	nf, err := checkRows(train.X, train.Y)
	if err != nil {
		return models.FitReport{}, fmt.Errorf("gbt train: %w", err)
	}
	useVal := !val.Empty()
	if useVal {
		vf, err := checkRows(val.X, val.Y)
		if err != nil {
			return models.FitReport{}, fmt.Errorf("gbt validation: %w", err)
		}
		if vf != nf {
			return models.FitReport{}, fmt.Errorf("gbt validation: %d features, training has %d", vf, nf)
		}
	}

	start := time.Now()
	cfg := m.cfg
	rng := rand.New(rand.NewSource(cfg.Seed))
	data := newBinned(train.X, cfg.MaxBins, cfg.TreeMethod == "exact")
	n := train.Len()

	base := stat.Mean(train.Y, nil)
	pred := filled(n, base)
	var valPred []float64
	if useVal {
		valPred = filled(val.Len(), base)
	}
	grad := make([]float64, n)
	hess := filled(n, 1)

	var (
		trees    []tree
		history  []float64
		bestIter = -1
		bestRMSE = math.Inf(1)
	)
	for it := 0; it < cfg.NEstimators; it++ {
		if err := ctx.Err(); err != nil {
			return models.FitReport{}, fmt.Errorf("gbt train: %w", err)
		}
		for i := range grad {
			grad[i] = pred[i] - train.Y[i]
		}
		g := &grower{cfg: cfg, data: data, grad: grad, hess: hess, cols: sampleCols(nf, cfg.ColSampleByTree, rng)}
		t := g.grow(sampleRows(n, cfg.Subsample, rng))
		trees = append(trees, *t)
		for i, x := range train.X {
			pred[i] += t.predict(x)
		}

		if !useVal {
			continue
		}
		for i, x := range val.X {
			valPred[i] += t.predict(x)
		}
		rmse := math.Sqrt(evaluation.MSE(valPred, val.Y))
		history = append(history, rmse)
		m.log.Debug("boosting round", logger.Int("round", it), logger.Float64("val_rmse", rmse))
		if rmse < bestRMSE {
			bestRMSE, bestIter = rmse, it
		} else if cfg.EarlyStoppingRounds > 0 && it-bestIter >= cfg.EarlyStoppingRounds {
			break
		}
	}
	if useVal {
		trees = trees[:bestIter+1]
	}

	m.nFeatures, m.base, m.trees, m.evalHistory = nf, base, trees, history
	m.importances = m.computeImportances()
	m.state = models.Trained

	// residual spread for confidence intervals
	resid := train
	if useVal {
		resid = *val
	}
	fitted := m.predictRows(resid.X)
	for i := range fitted {
		fitted[i] = resid.Y[i] - fitted[i]
	}
	m.residStd = 0
	if len(fitted) > 1 {
		m.residStd = stat.StdDev(fitted, nil)
	}

	report := models.FitReport{Model: "gbt", NSamples: n, NFeatures: nf, EvalHistory: history}
	if useVal {
		report.BestIteration = &bestIter
		report.BestScore = &bestRMSE
	}
	m.log.Info("training finished",
		logger.Int("samples", n),
		logger.Int("features", nf),
		logger.Int("trees", len(trees)),
		logger.Float64("residual_std", m.residStd),
		logger.Duration("duration", time.Since(start)))
	return report, nil
}

// Predict returns one estimate per row.
func (m *Model) Predict(X [][]float64) ([]float64, error) {
	if err := m.checkInference(X); err != nil {
		return nil, err
	}
	return m.predictRows(X), nil
}

// PredictWithConfidence uses the configured confidence level.
func (m *Model) PredictWithConfidence(_ context.Context, X [][]float64) (models.Interval, error) {
	return m.PredictWithConfidenceLevel(X, m.cfg.ConfidenceLevel)
}

// PredictWithConfidenceLevel returns pred ± z·σ where σ is the standard
// deviation of held-out residuals (training residuals without a validation
// set) and z the two-sided normal quantile of level.
func (m *Model) PredictWithConfidenceLevel(X [][]float64, level float64) (models.Interval, error) {
	if level <= 0 || level >= 1 {
		return models.Interval{}, fmt.Errorf("gbt: confidence level %v outside (0, 1)", level)
	}
	pred, err := m.Predict(X)
	if err != nil {
		return models.Interval{}, err
	}
	half := distuv.UnitNormal.Quantile(0.5+level/2) * m.residStd
	out := models.Interval{Point: pred, Lower: make([]float64, len(pred)), Upper: make([]float64, len(pred))}
	for i, p := range pred {
		out.Lower[i] = p - half
		out.Upper[i] = p + half
	}
	return out, nil
}

// Evaluate reports the shared regression metrics with epsilon-guarded MAPE.
func (m *Model) Evaluate(X [][]float64, y []float64) (models.Evaluation, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return models.Evaluation{}, err
	}
	ev, err := evaluation.Regression(pred, y)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("gbt evaluate: %w", err)
	}
	return ev, nil
}

// FeatureImportances returns importances sorted by descending gain.
func (m *Model) FeatureImportances() []Importance {
	return slices.Clone(m.importances)
}

// EvalHistory returns validation RMSE per boosting round of the last Fit.
func (m *Model) EvalHistory() []float64 { return slices.Clone(m.evalHistory) }

// Trees returns the number of trees used for prediction.
func (m *Model) Trees() int { return len(m.trees) }

func (m *Model) predictRows(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		v := m.base
		for t := range m.trees {
			v += m.trees[t].predict(x)
		}
		out[i] = v
	}
	return out
}

func (m *Model) computeImportances() []Importance {
	gain := make([]float64, m.nFeatures)
	count := make([]float64, m.nFeatures)
	for _, t := range m.trees {
		for _, n := range t.Nodes {
			if n.Feature >= 0 {
				gain[n.Feature] += n.Gain
				count[n.Feature]++
			}
		}
	}
	var total float64
	for f := range gain {
		if count[f] > 0 {
			gain[f] /= count[f]
			total += gain[f]
		}
	}
	out := make([]Importance, m.nFeatures)
	for f := range out {
		out[f] = Importance{Index: f, Feature: m.featureName(f)}
		if total > 0 {
			out[f].Gain = gain[f] / total
		}
	}
	slices.SortStableFunc(out, func(a, b Importance) int { return cmp.Compare(b.Gain, a.Gain) })
	return out
}

func (m *Model) featureName(f int) string {
	if f < len(m.names) {
		return m.names[f]
	}
	return fmt.Sprintf("f%d", f)
}

func (m *Model) checkInference(X [][]float64) error {
	if err := m.state.Guard(); err != nil {
		return err
	}
	for i, x := range X {
		if len(x) != m.nFeatures {
			return fmt.Errorf("gbt: row %d has %d features, model expects %d", i, len(x), m.nFeatures)
		}
	}
	return nil
}

func checkRows(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("empty dataset")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%d rows but %d targets", len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return 0, fmt.Errorf("rows have no features")
	}
	for i, x := range X {
		if len(x) != nf {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(x), nf)
		}
	}
	return nf, nil
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if frac >= 1 || rng.Float64() < frac {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

func sampleCols(n int, frac float64, rng *rand.Rand) []int {
	k := max(1, int(frac*float64(n)))
	if k >= n {
		cols := make([]int, n)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	cols := rng.Perm(n)[:k]
	slices.Sort(cols)
	return cols
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
