package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	"FXForecast/internal/services/dataprep"
	"FXForecast/internal/services/ensemble"
	"FXForecast/internal/services/features"
	"FXForecast/pkg/logger"
)

// bundle is the loaded model set of one symbol.
type bundle struct {
	models Models
	seq    *dataprep.SequenceBuilder
}

// Forecaster produces one forecast per symbol from the latest bars using
// persisted models. Models are loaded on first use and cached until invalidated.
type Forecaster struct {
	settings  Settings
	bars      domrepo.BarStore
	store     domrepo.ArtifactStore
	newModels ModelFactory
	sink      domrepo.PredictionSink
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	registry  *Registry
	log       *logger.Logger

	mu     sync.Mutex
	loaded map[string]*bundle
}

func NewForecaster(
	settings Settings,
	bars domrepo.BarStore,
	store domrepo.ArtifactStore,
	newModels ModelFactory,
	sink domrepo.PredictionSink,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	registry *Registry,
	log *logger.Logger,
) *Forecaster {
	if log == nil {
		log = logger.Nop()
	}
	return &Forecaster{
		settings:  settings,
		bars:      bars,
		store:     store,
		newModels: newModels,
		sink:      sink,
		publisher: publisher,
		metrics:   metrics,
		registry:  registry,
		log:       log,
		loaded:    make(map[string]*bundle),
	}
}

// Invalidate drops the cached models of symbol so the next forecast reloads them.
func (f *Forecaster) Invalidate(symbol string) {
	f.mu.Lock()
	delete(f.loaded, symbol)
	f.mu.Unlock()
}

func (f *Forecaster) bundle(ctx context.Context, symbol string) (*bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.loaded[symbol]; ok {
		return b, nil
	}

	b := &bundle{models: f.newModels(), seq: dataprep.NewSequenceBuilder(nil)}
	if err := b.seq.Load(ctx, f.store, FeaturesArtifact(symbol)); err != nil {
		return nil, fmt.Errorf("load feature artifact: %w", err)
	}
	b.models.Tree.SetFeatureNames(b.seq.Columns())
	if err := b.models.Combiner.LoadModels(ctx, f.store, symbol); err != nil {
		return nil, err
	}
	f.loaded[symbol] = b
	f.log.Info("models loaded", logger.String("symbol", symbol), logger.Int("features", len(b.seq.Columns())))
	return b, nil
}

// Forecast predicts the relative change over the configured horizon after
// the latest bar of symbol, persists and publishes the result.
func (f *Forecaster) Forecast(ctx context.Context, symbol string) (models.Forecast, error) {
	start := time.Now()
	fc, err := f.forecast(ctx, symbol)
	if err != nil {
		if f.metrics != nil {
			f.metrics.RecordError("forecast")
		}
		if f.registry != nil {
			f.registry.RecordFailure(symbol, "forecast", err)
		}
		return fc, err
	}
	if f.metrics != nil {
		f.metrics.RecordForecast(symbol, fc.PredictedChange)
		f.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	}
	if f.registry != nil {
		f.registry.RecordForecast(fc)
	}
	return fc, nil
}

func (f *Forecaster) forecast(ctx context.Context, symbol string) (models.Forecast, error) {
	s := f.settings
	b, err := f.bundle(ctx, symbol)
	if err != nil {
		return models.Forecast{}, err
	}

	bars, err := f.bars.GetLatestBars(ctx, symbol, s.Timeframe, s.InferenceBars())
	if err != nil {
		return models.Forecast{}, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return models.Forecast{}, fmt.Errorf("no bars for %s", symbol)
	}

	engineer := features.NewEngineer(f.log)
	table, err := engineer.CreateFeatures(bars, s.Target, s.Flags)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("create features: %w", err)
	}
	engineer.SetFeatureColumns(b.seq.Columns())

	window, err := b.seq.LatestWindow(table, s.SequenceLength, s.Target)
	if err != nil {
		return models.Forecast{}, err
	}
	row, err := dataprep.NewTabularBuilder(engineer).LatestRow(table)
	if err != nil {
		return models.Forecast{}, err
	}
	in := ensemble.Input{Sequence: []models.Window{window}, Tabular: [][]float64{row}}

	iv, err := b.models.Combiner.PredictWithConfidence(ctx, in)
	if err != nil {
		return models.Forecast{}, err
	}
	point, err := b.models.Combiner.Predict(in, "")
	if err != nil {
		return models.Forecast{}, err
	}
	sp, err := b.models.Sequence.Predict(in.Sequence)
	if err != nil {
		return models.Forecast{}, err
	}
	tp, err := b.models.Tree.Predict(in.Tabular)
	if err != nil {
		return models.Forecast{}, err
	}

	last := bars[len(bars)-1]
	fc := models.Forecast{
		ID:              uuid.New(),
		Symbol:          symbol,
		Timeframe:       string(s.Timeframe),
		AsOf:            last.Date,
		Horizon:         s.Horizon,
		Strategy:        string(b.models.Combiner.Config().Strategy),
		PredictedChange: point[0],
		Lower:           iv.Lower[0],
		Upper:           iv.Upper[0],
		SequenceChange:  sp[0],
		TreeChange:      tp[0],
		LastClose:       last.Close,
		PredictedPrice:  last.Close * (1 + point[0]),
		RealizedVol:     features.RealizedVolatility(features.LogReturns(bars), s.VolWindow, domrepo.BarsPerYear(s.Timeframe)),
		CreatedAt:       time.Now().UTC(),
	}

	if f.sink != nil {
		if err := f.sink.SaveForecast(ctx, fc); err != nil {
			return fc, fmt.Errorf("save forecast: %w", err)
		}
	}
	if f.publisher != nil {
		if err := f.publisher.PublishForecast(ctx, fc); err != nil {
			if f.metrics != nil {
				f.metrics.RecordError("publish")
			}
			f.log.Warn("publish forecast", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	f.log.Info("forecast produced",
		logger.String("symbol", symbol),
		logger.Float64("change", fc.PredictedChange),
		logger.Float64("lower", fc.Lower),
		logger.Float64("upper", fc.Upper),
		logger.Float64("price", fc.PredictedPrice))
	return fc, nil
}

// ForecastAll runs Forecast for every configured symbol. Failures are logged
// and the first one is returned after all symbols were attempted.
func (f *Forecaster) ForecastAll(ctx context.Context) ([]models.Forecast, error) {
	var (
		out      []models.Forecast
		firstErr error
	)
	for _, sym := range f.settings.Symbols {
		fc, err := f.Forecast(ctx, sym)
		if err != nil {
			f.log.Error("forecast failed", logger.String("symbol", sym), logger.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", sym, err)
			}
			continue
		}
		out = append(out, fc)
	}
	return out, firstErr
}
