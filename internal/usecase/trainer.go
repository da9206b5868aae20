package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	"FXForecast/internal/domain/service"
	"FXForecast/internal/services/dataprep"
	"FXForecast/internal/services/ensemble"
	"FXForecast/internal/services/features"
	"FXForecast/pkg/logger"
	"FXForecast/pkg/util"
)

// ErrTrainingInProgress is returned when a run for the same symbol holds the lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// FeaturesArtifact names the feature column and normalizer artifact of symbol.
func FeaturesArtifact(symbol string) string { return symbol + "_features.json" }

// Locker guards a training run per symbol. pkg/cache services satisfy it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// TrainParams selects the symbol and an optional date range.
// A zero To means now; a zero From means Settings.HistoryBars before To.
type TrainParams struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// ParseTrainRequest converts a wire request into TrainParams.
func ParseTrainRequest(req models.TrainRequest) (TrainParams, error) {
	p := TrainParams{Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol))}
	if p.Symbol == "" {
		return p, fmt.Errorf("symbol is required")
	}
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return p, fmt.Errorf("invalid from %q", req.From)
		}
		p.From = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return p, fmt.Errorf("invalid to %q", req.To)
		}
		p.To = t
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return p, fmt.Errorf("from must be before to")
	}
	return p, nil
}

// Trainer runs the end-to-end training pipeline for one symbol.
type Trainer struct {
	settings   Settings
	bars       domrepo.BarStore
	store      domrepo.ArtifactStore
	newModels  ModelFactory
	publisher  domrepo.EventPublisher
	metrics    domrepo.Metrics
	registry   *Registry
	locker     Locker
	forecaster *Forecaster
	log        *logger.Logger
	lockTTL    time.Duration
}

func NewTrainer(
	settings Settings,
	bars domrepo.BarStore,
	store domrepo.ArtifactStore,
	newModels ModelFactory,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	registry *Registry,
	locker Locker,
	forecaster *Forecaster,
	log *logger.Logger,
) *Trainer {
	if log == nil {
		log = logger.Nop()
	}
	return &Trainer{
		settings:   settings,
		bars:       bars,
		store:      store,
		newModels:  newModels,
		publisher:  publisher,
		metrics:    metrics,
		registry:   registry,
		locker:     locker,
		forecaster: forecaster,
		log:        log,
		lockTTL:    2 * time.Hour,
	}
}

// Run trains, evaluates and persists the models of p.Symbol.
func (t *Trainer) Run(ctx context.Context, p TrainParams) (models.TrainingSummary, error) {
	if p.Symbol == "" {
		return models.TrainingSummary{}, fmt.Errorf("symbol is required")
	}
	lockKey := "train:" + p.Symbol
	if t.locker != nil {
		ok, err := t.locker.TryLock(ctx, lockKey, t.lockTTL)
		if err != nil {
			return models.TrainingSummary{}, fmt.Errorf("acquire training lock: %w", err)
		}
		if !ok {
			return models.TrainingSummary{}, fmt.Errorf("%s: %w", p.Symbol, ErrTrainingInProgress)
		}
		defer func() {
			if err := t.locker.Unlock(context.Background(), lockKey); err != nil {
				t.log.Warn("release training lock", logger.String("symbol", p.Symbol), logger.Error(err))
			}
		}()
	}

	summary, err := t.run(ctx, p)
	if err != nil {
		t.recordError("training")
		if t.registry != nil {
			t.registry.RecordFailure(p.Symbol, "training", err)
		}
		return summary, err
	}
	return summary, nil
}

func (t *Trainer) run(ctx context.Context, p TrainParams) (models.TrainingSummary, error) {
	s := t.settings
	log := t.log.With(logger.String("symbol", p.Symbol))
	summary := models.TrainingSummary{
		RunID:     uuid.New(),
		Symbol:    p.Symbol,
		Timeframe: string(s.Timeframe),
		Artifact:  p.Symbol,
		StartedAt: time.Now().UTC(),
	}

	from, to, err := t.window(p)
	if err != nil {
		return summary, err
	}
	summary.From, summary.To = from, to

	bars, err := t.bars.GetBars(ctx, p.Symbol, s.Timeframe, from, to)
	if err != nil {
		return summary, fmt.Errorf("load bars: %w", err)
	}
	summary.Bars = len(bars)
	log.Info("training started", logger.Int("bars", len(bars)), logger.String("run_id", summary.RunID.String()))

	engineer := features.NewEngineer(log)
	table, err := engineer.CreateFeatures(bars, s.Target, s.Flags)
	if err != nil {
		return summary, fmt.Errorf("create features: %w", err)
	}

	seqB := dataprep.NewSequenceBuilder(engineer)
	frame, err := dataprep.Select(table, engineer.FeatureColumns(), s.Target)
	if err != nil {
		return summary, err
	}
	if err := seqB.Fit(frame.Head(int(float64(frame.Len()) * s.TrainRatio))); err != nil {
		return summary, fmt.Errorf("fit normalizer: %w", err)
	}
	windows, wy, err := seqB.Sequences(frame, s.SequenceLength, s.Horizon)
	if err != nil {
		return summary, err
	}
	rows, ry, rowDates, err := dataprep.NewTabularBuilder(engineer).PrepareTabularDated(table, s.Target, s.Horizon)
	if err != nil {
		return summary, err
	}
	if len(windows) == 0 || len(rows) == 0 {
		return summary, fmt.Errorf("not enough history: %d bars yield %d windows and %d rows", len(bars), len(windows), len(rows))
	}
	// both datasets end on the last window's date so their tails pair up
	windowDates := dataprep.SampleDates(frame, s.SequenceLength, s.Horizon)
	rows, ry = dataprep.TrimAfter(rows, ry, rowDates, windowDates[len(windowDates)-1])

	seqSplit := dataprep.SplitChronological(windows, wy, s.TrainRatio, s.ValRatio)
	tabSplit := dataprep.SplitChronological(rows, ry, s.TrainRatio, s.ValRatio)
	if seqSplit.Train.Len() == 0 || seqSplit.Test.Len() == 0 || tabSplit.Test.Len() == 0 {
		return summary, fmt.Errorf("not enough samples to split: %d windows, %d rows", len(windows), len(rows))
	}

	m := t.newModels()
	m.Tree.SetFeatureNames(engineer.FeatureColumns())

	if s.Tune {
		res, err := m.Tree.HyperparameterTuning(ctx, tabSplit.Train, nil, s.CVSplits)
		if err != nil {
			return summary, err
		}
		summary.Tuned = true
		log.Info("tree parameters tuned", logger.Any("params", res.BestParams), logger.Float64("cv_mse", res.BestScore))
	}

	fitStart := time.Now()
	rep, err := m.Combiner.Train(ctx, ensemble.TrainData{
		SequenceTrain: seqSplit.Train,
		SequenceVal:   optional(seqSplit.Val),
		TabularTrain:  tabSplit.Train,
		TabularVal:    optional(tabSplit.Val),
	})
	if err != nil {
		return summary, fmt.Errorf("train ensemble: %w", err)
	}
	t.observe(p.Symbol, "ensemble", time.Since(fitStart))
	summary.Sequence, summary.Tree, summary.MetaLearner = rep.Sequence, rep.Tree, rep.MetaLearner

	ev, err := m.Combiner.Evaluate(ensemble.TestData{
		Sequence:  seqSplit.Test.X,
		SequenceY: seqSplit.Test.Y,
		Tabular:   tabSplit.Test.X,
		TabularY:  tabSplit.Test.Y,
	})
	if err != nil {
		return summary, fmt.Errorf("evaluate: %w", err)
	}
	summary.Evaluation = ev

	if err := m.Combiner.SaveModels(ctx, t.store, p.Symbol); err != nil {
		return summary, err
	}
	if err := seqB.Save(ctx, t.store, FeaturesArtifact(p.Symbol)); err != nil {
		return summary, err
	}
	summary.Duration = time.Since(summary.StartedAt)

	if t.metrics != nil {
		t.metrics.ObserveTraining(p.Symbol, "total", summary.Duration)
		t.metrics.RecordEvaluation(p.Symbol, "sequence", ev.Sequence)
		t.metrics.RecordEvaluation(p.Symbol, "tree", ev.Tree)
		t.metrics.RecordEvaluation(p.Symbol, "ensemble", ev.Ensemble)
	}
	if t.registry != nil {
		t.registry.RecordTraining(summary)
	}
	if t.forecaster != nil {
		t.forecaster.Invalidate(p.Symbol)
	}
	if t.publisher != nil {
		if err := t.publisher.PublishTraining(ctx, summary); err != nil {
			t.recordError("publish")
			log.Warn("publish training event", logger.Error(err))
		}
	}

	if imp := m.Tree.FeatureImportances(); len(imp) > 0 {
		top := make([]string, 0, 5)
		for _, fi := range imp[:min(5, len(imp))] {
			top = append(top, fmt.Sprintf("%s=%.3f", fi.Feature, fi.Gain))
		}
		log.Debug("top tree features", logger.Strings("features", top))
	}
	log.Info("training finished",
		logger.Int("windows", len(windows)),
		logger.Int("rows", len(rows)),
		logger.Float64("ensemble_rmse", ev.Ensemble.RMSE),
		logger.Float64("ensemble_direction", ev.Ensemble.DirectionAccuracy),
		logger.Bool("meta_learner", rep.MetaLearner),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}

func (t *Trainer) window(p TrainParams) (time.Time, time.Time, error) {
	to := p.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if !p.From.IsZero() {
		return p.From, to, nil
	}
	from, to, err := util.LookbackRange(to, t.settings.HistoryBars, string(t.settings.Timeframe))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("history range: %w", err)
	}
	return from, to, nil
}

func (t *Trainer) observe(symbol, model string, d time.Duration) {
	if t.metrics != nil {
		t.metrics.ObserveTraining(symbol, model, d)
	}
}

func (t *Trainer) recordError(kind string) {
	if t.metrics != nil {
		t.metrics.RecordError(kind)
	}
}

func optional[S any](d service.Dataset[S]) *service.Dataset[S] {
	if d.Len() == 0 {
		return nil
	}
	return &d
}
