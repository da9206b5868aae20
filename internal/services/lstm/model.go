// Package lstm implements the stacked LSTM sequence predictor with Monte-Carlo
// dropout confidence intervals.
package lstm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/service"
	"FXForecast/internal/services/evaluation"
	"FXForecast/pkg/logger"
)

// MCZ is the normal quantile used for Monte-Carlo dropout intervals (95%).
const MCZ = 1.96

const predictBatch = 256

// Model is the sequence predictor. It is not safe for concurrent training.
type Model struct {
	cfg     Config
	log     *logger.Logger
	net     *network
	opt     *adam
	state   models.TrainingState
	history models.History
}

var _ service.Predictor[models.Window] = (*Model)(nil)

// New creates an untrained model. The network is built on the first Fit.
func New(log *logger.Logger, opts ...Option) *Model {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Model{cfg: cfg, log: log.With(logger.String("model", "lstm"))}
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// State returns the training state.
func (m *Model) State() models.TrainingState { return m.state }

// History returns the per-epoch record of the last Fit.
func (m *Model) History() models.History { return m.history }

// Fit trains with shuffled mini-batches, MSE loss and Adam. Validation loss
// drives early stopping and learning-rate reduction when val is non-empty,
// training loss otherwise. The best observed weights are kept.
func (m *Model) Fit(ctx context.Context, train service.Dataset[models.Window], val *service.Dataset[models.Window]) (models.FitReport, error) {
	features, err := checkWindows(train.X, train.Y, m.cfg.SequenceLength)
	if err != nil {
		return models.FitReport{}, fmt.Errorf("lstm train: %w", err)
	}
	if train.Len() == 0 {
		return models.FitReport{}, fmt.Errorf("lstm train: empty training set")
	}
	useVal := !val.Empty()
	if useVal {
		if _, err := checkWindows(val.X, val.Y, m.cfg.SequenceLength); err != nil {
			return models.FitReport{}, fmt.Errorf("lstm validation: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	if m.net == nil {
		m.net = newNetwork(features, m.cfg, rng)
		m.opt = &adam{lr: m.cfg.LearningRate}
	} else if m.net.features != features {
		return models.FitReport{}, fmt.Errorf("lstm train: model built for %d features, got %d", m.net.features, features)
	}

	start := time.Now()
	m.log.Info("training started",
		logger.Int("samples", train.Len()),
		logger.Int("features", features),
		logger.Bool("validation", useVal))

	params := m.net.params()
	es := newEarlyStopping(m.cfg.Patience)
	pl := &plateau{patience: m.cfg.LRPatience, factor: m.cfg.LRFactor, minDelta: m.cfg.LRMinDelta, minLR: m.cfg.MinLR, best: math.Inf(1)}
	hist := models.History{}
	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return models.FitReport{}, fmt.Errorf("lstm train: %w", err)
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sum float64
		for lo := 0; lo < len(order); lo += m.cfg.BatchSize {
			hi := min(lo+m.cfg.BatchSize, len(order))
			bx := make([]models.Window, hi-lo)
			by := make([]float64, hi-lo)
			for k, idx := range order[lo:hi] {
				bx[k], by[k] = train.X[idx], train.Y[idx]
			}

			m.net.zeroGrad()
			pred, p := m.net.forward(bx, rng)
			dy := make([]float64, len(pred))
			for k := range pred {
				d := pred[k] - by[k]
				sum += d * d
				dy[k] = 2 * d / float64(len(pred))
			}
			m.net.backward(p, dy)
			m.opt.step(params)
		}

		loss := sum / float64(len(order))
		monitor := loss
		hist.Loss = append(hist.Loss, loss)
		hist.LearningRate = append(hist.LearningRate, m.opt.lr)
		if useVal {
			monitor = evaluation.MSE(m.forwardAll(val.X, nil), val.Y)
			hist.ValLoss = append(hist.ValLoss, monitor)
		}
		m.log.Debug("epoch",
			logger.Int("epoch", epoch+1),
			logger.Float64("loss", loss),
			logger.Float64("monitor", monitor),
			logger.Float64("lr", m.opt.lr))

		stop := es.update(epoch, monitor, m.net)
		m.opt.lr = pl.update(monitor, m.opt.lr)
		if stop {
			hist.StoppedEarly = true
			break
		}
	}
	if es.weights != nil {
		m.net.setWeights(es.weights)
	}
	hist.BestEpoch = es.bestEpoch

	m.history = hist
	m.state = models.Trained
	m.log.Info("training finished",
		logger.Int("epochs", hist.Epochs()),
		logger.Int("best_epoch", es.bestEpoch+1),
		logger.Float64("best_loss", es.best),
		logger.Bool("stopped_early", hist.StoppedEarly),
		logger.Duration("duration", time.Since(start)))

	best, score := es.bestEpoch, es.best
	return models.FitReport{
		Model:         "lstm",
		NSamples:      train.Len(),
		NFeatures:     features,
		BestIteration: &best,
		BestScore:     &score,
		History:       &hist,
	}, nil
}

// Predict returns one point estimate per window with dropout disabled.
func (m *Model) Predict(X []models.Window) ([]float64, error) {
	if err := m.checkInference(X); err != nil {
		return nil, err
	}
	return m.forwardAll(X, nil), nil
}

// PredictWithConfidence runs the configured number of Monte-Carlo dropout passes.
func (m *Model) PredictWithConfidence(ctx context.Context, X []models.Window) (models.Interval, error) {
	return m.PredictWithConfidenceN(ctx, X, m.cfg.MCSimulations)
}

// PredictWithConfidenceN averages n stochastic forward passes with dropout
// active. Bounds are mean ± MCZ × population std of the passes.
func (m *Model) PredictWithConfidenceN(ctx context.Context, X []models.Window, n int) (models.Interval, error) {
	if err := m.checkInference(X); err != nil {
		return models.Interval{}, err
	}
	if n < 1 {
		return models.Interval{}, fmt.Errorf("lstm: simulations must be positive, got %d", n)
	}

	sims := make([][]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for s := 0; s < n; s++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sims[s] = m.forwardAll(X, rand.New(rand.NewSource(m.cfg.Seed+int64(s)+1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Interval{}, fmt.Errorf("lstm mc dropout: %w", err)
	}

	out := models.Interval{
		Point: make([]float64, len(X)),
		Lower: make([]float64, len(X)),
		Upper: make([]float64, len(X)),
	}
	col := make([]float64, n)
	for i := range X {
		for s := range sims {
			col[s] = sims[s][i]
		}
		mean, std := popMeanStd(col)
		out.Point[i] = mean
		out.Lower[i] = mean - MCZ*std
		out.Upper[i] = mean + MCZ*std
	}
	return out, nil
}

// Evaluate reports the training loss (MSE), MAE and MAPE as the training
// objective defines them, plus the shared regression metrics.
func (m *Model) Evaluate(X []models.Window, y []float64) (models.Evaluation, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return models.Evaluation{}, err
	}
	ev, err := evaluation.Regression(pred, y)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("lstm evaluate: %w", err)
	}
	ev.Loss = ev.MSE
	ev.MAPE = evaluation.KerasMAPE(pred, y)
	return ev, nil
}

func (m *Model) forwardAll(X []models.Window, rng *rand.Rand) []float64 {
	out := make([]float64, 0, len(X))
	for lo := 0; lo < len(X); lo += predictBatch {
		pred, _ := m.net.forward(X[lo:min(lo+predictBatch, len(X))], rng)
		out = append(out, pred...)
	}
	return out
}

func (m *Model) checkInference(X []models.Window) error {
	if err := m.state.Guard(); err != nil {
		return err
	}
	if len(X) == 0 {
		return fmt.Errorf("lstm: no input windows")
	}
	features, err := checkWindows(X, nil, m.cfg.SequenceLength)
	if err != nil {
		return fmt.Errorf("lstm: %w", err)
	}
	if features != m.net.features {
		return fmt.Errorf("lstm: model built for %d features, got %d", m.net.features, features)
	}
	return nil
}

// checkWindows verifies every window is seqLen x F and returns F. y may be nil.
func checkWindows(X []models.Window, y []float64, seqLen int) (int, error) {
	if y != nil && len(X) != len(y) {
		return 0, fmt.Errorf("%d windows but %d targets", len(X), len(y))
	}
	if len(X) == 0 {
		return 0, nil
	}
	if len(X[0]) == 0 || len(X[0][0]) == 0 {
		return 0, fmt.Errorf("empty window")
	}
	features := len(X[0][0])
	for i, w := range X {
		if len(w) != seqLen {
			return 0, fmt.Errorf("window %d has %d steps, want %d", i, len(w), seqLen)
		}
		for _, row := range w {
			if len(row) != features {
				return 0, fmt.Errorf("window %d has inconsistent feature count", i)
			}
		}
	}
	return features, nil
}

func popMeanStd(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	mean, variance := stat.MeanVariance(x, nil)
	n := float64(len(x))
	return mean, math.Sqrt(variance * (n - 1) / n)
}
