package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	"FXForecast/internal/repository"
	"FXForecast/internal/services/ensemble"
	"FXForecast/internal/services/features"
	"FXForecast/internal/services/gbt"
	"FXForecast/internal/services/lstm"
	"FXForecast/pkg/cache"
	"FXForecast/pkg/logger"
)

func randomWalk(n int, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]models.Bar, n)
	price := 150.0
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.004
		bars[i] = models.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   math.Max(open, price) * (1 + rng.Float64()*0.002),
			Low:    math.Min(open, price) * (1 - rng.Float64()*0.002),
			Close:  price,
			Volume: math.NaN(),
		}
	}
	return bars
}

type memBars struct{ bars []models.Bar }

func (m *memBars) GetBars(context.Context, string, domrepo.Timeframe, time.Time, time.Time) ([]models.Bar, error) {
	return m.bars, nil
}

func (m *memBars) GetLatestBars(_ context.Context, _ string, _ domrepo.Timeframe, n int) ([]models.Bar, error) {
	if n > len(m.bars) {
		n = len(m.bars)
	}
	return m.bars[len(m.bars)-n:], nil
}

type recorder struct {
	mu        sync.Mutex
	forecasts []models.Forecast
	trainings []models.TrainingSummary
	errors    []string
}

func (r *recorder) SaveForecast(_ context.Context, f models.Forecast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts = append(r.forecasts, f)
	return nil
}

func (r *recorder) PublishForecast(context.Context, models.Forecast) error { return nil }

func (r *recorder) PublishTraining(_ context.Context, s models.TrainingSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trainings = append(r.trainings, s)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) ObserveTraining(string, string, time.Duration)      {}
func (r *recorder) RecordEvaluation(string, string, models.Evaluation) {}
func (r *recorder) RecordForecast(string, float64)                     {}
func (r *recorder) RecordLatency(string, float64)                      {}
func (r *recorder) RecordError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, kind)
}

func testSettings() Settings {
	return Settings{
		Symbols:        []string{"USDJPY"},
		Timeframe:      domrepo.TF1d,
		HistoryBars:    300,
		Target:         features.ColClose,
		Horizon:        1,
		TrainRatio:     0.7,
		ValRatio:       0.15,
		SequenceLength: 5,
		Flags:          features.DefaultFlags(),
		VolWindow:      20,
	}
}

func tinyModels() Models {
	seq := lstm.New(nil, lstm.WithSequenceLength(5), lstm.WithUnits(4), lstm.WithDenseUnits(4),
		lstm.WithEpochs(2, 32), lstm.WithMCSimulations(4))
	tree := gbt.New(nil, gbt.WithTrees(10, 3, 0.3))
	return Models{Sequence: seq, Tree: tree, Combiner: ensemble.New(seq, tree, nil, ensemble.WithMetaLearner(true))}
}

type pipeline struct {
	store      *repository.CacheArtifactStore
	rec        *recorder
	registry   *Registry
	forecaster *Forecaster
	trainer    *Trainer
	locker     *cache.MemoryCache
}

func newPipeline(bars []models.Bar) *pipeline {
	p := &pipeline{
		store:    repository.NewCacheArtifactStore(cache.NewMemoryCache()),
		rec:      &recorder{},
		registry: NewRegistry(),
		locker:   cache.NewMemoryCache(),
	}
	src := &memBars{bars: bars}
	p.forecaster = NewForecaster(testSettings(), src, p.store, tinyModels, p.rec, p.rec, p.rec, p.registry, nil)
	p.trainer = NewTrainer(testSettings(), src, p.store, tinyModels, p.rec, p.rec, p.registry, p.locker, p.forecaster, nil)
	return p
}

func TestTrainThenForecast(t *testing.T) {
	ctx := context.Background()
	bars := randomWalk(300, 7)
	p := newPipeline(bars)

	sum, err := p.trainer.Run(ctx, TrainParams{Symbol: "USDJPY"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Bars != 300 || sum.Evaluation.Ensemble.Samples == 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !sum.MetaLearner {
		t.Error("meta-learner should be fitted when validation data exists")
	}
	for _, name := range []string{
		ensemble.SequenceArtifact("USDJPY"), ensemble.TreeArtifact("USDJPY"),
		ensemble.ConfigArtifact("USDJPY"), ensemble.MetaArtifact("USDJPY"), FeaturesArtifact("USDJPY"),
	} {
		if _, err := p.store.Get(ctx, name); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}
	if len(p.rec.trainings) != 1 {
		t.Errorf("expected one training event, got %d", len(p.rec.trainings))
	}

	fc, err := p.forecaster.Forecast(ctx, "USDJPY")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	last := bars[len(bars)-1]
	if !fc.AsOf.Equal(last.Date) || fc.LastClose != last.Close {
		t.Errorf("forecast anchored at %v/%v, want %v/%v", fc.AsOf, fc.LastClose, last.Date, last.Close)
	}
	if math.Abs(fc.PredictedPrice-last.Close*(1+fc.PredictedChange)) > 1e-9 {
		t.Errorf("predicted price %v inconsistent with change %v", fc.PredictedPrice, fc.PredictedChange)
	}
	if !(fc.Lower <= fc.Upper) || math.IsNaN(fc.PredictedChange) || fc.RealizedVol <= 0 {
		t.Errorf("bad forecast %+v", fc)
	}
	if len(p.rec.forecasts) != 1 {
		t.Errorf("sink received %d forecasts", len(p.rec.forecasts))
	}

	st, ok := p.registry.Status("USDJPY")
	if !ok || st.LastTraining == nil || st.LastForecast == nil || st.State != "trained" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestForecastWithoutArtifacts(t *testing.T) {
	p := newPipeline(randomWalk(200, 1))
	_, err := p.forecaster.Forecast(context.Background(), "EURUSD")
	if !errors.Is(err, domrepo.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	st, ok := p.registry.Status("EURUSD")
	if !ok || st.LastError == "" {
		t.Errorf("failure not recorded: %+v", st)
	}
	if len(p.rec.errors) != 1 || p.rec.errors[0] != "forecast" {
		t.Errorf("errors recorded %v", p.rec.errors)
	}
}

func TestTrainerLock(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(randomWalk(300, 3))
	if ok, _ := p.locker.TryLock(ctx, "train:USDJPY", time.Minute); !ok {
		t.Fatal("setup lock failed")
	}
	if _, err := p.trainer.Run(ctx, TrainParams{Symbol: "USDJPY"}); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
}

func TestTrainerShortHistory(t *testing.T) {
	p := newPipeline(randomWalk(40, 3))
	if _, err := p.trainer.Run(context.Background(), TrainParams{Symbol: "USDJPY"}); err == nil {
		t.Fatal("expected error for short history")
	}
	if len(p.rec.trainings) != 0 {
		t.Error("no training event expected on failure")
	}
}

func TestParseTrainRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.TrainRequest
		want    string
		wantErr bool
	}{
		{"symbol only", models.TrainRequest{Symbol: " usdjpy "}, "USDJPY", false},
		{"with range", models.TrainRequest{Symbol: "EURUSD", From: "2020-01-01", To: "2024-01-01"}, "EURUSD", false},
		{"missing symbol", models.TrainRequest{}, "", true},
		{"bad date", models.TrainRequest{Symbol: "EURUSD", From: "yesterday"}, "", true},
		{"inverted", models.TrainRequest{Symbol: "EURUSD", From: "2024-01-01", To: "2020-01-01"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseTrainRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Symbol != tt.want {
				t.Errorf("symbol = %q, want %q", p.Symbol, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	calls []TrainParams
	err   error
}

func (f *fakeRunner) Run(_ context.Context, p TrainParams) (models.TrainingSummary, error) {
	f.calls = append(f.calls, p)
	return models.TrainingSummary{Symbol: p.Symbol}, f.err
}

func TestTrainRequestHandler(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		runErr    error
		wantErr   bool
		wantCalls int
		wantKind  string
	}{
		{"valid", `{"symbol":"USDJPY","from":"2022-01-01"}`, nil, false, 1, ""},
		{"not json", `{`, nil, false, 0, "consumer_unmarshal"},
		{"no symbol", `{"from":"2022-01-01"}`, nil, false, 0, "consumer_request"},
		{"in progress", `{"symbol":"USDJPY"}`, ErrTrainingInProgress, false, 1, ""},
		{"training fails", `{"symbol":"USDJPY"}`, errors.New("boom"), true, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			rec := &recorder{}
			h := NewTrainRequestHandler("fx.train.requests", runner, rec, nil)
			if h.Topic() != "fx.train.requests" {
				t.Fatalf("topic %q", h.Topic())
			}
			err := h.Handle(context.Background(), []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(runner.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(runner.calls), tt.wantCalls)
			}
			if tt.wantKind != "" && !slices.Contains(rec.errors, tt.wantKind) {
				t.Errorf("errors = %v, want %q recorded", rec.errors, tt.wantKind)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.RecordFailure("GBPUSD", "training", errors.New("no bars"))
	r.RecordTraining(models.TrainingSummary{Symbol: "EURUSD"})
	r.RecordForecast(models.Forecast{Symbol: "EURUSD", PredictedChange: 0.01})

	all := r.All()
	if len(all) != 2 || all[0].Symbol != "EURUSD" || all[1].Symbol != "GBPUSD" {
		t.Fatalf("unexpected order %+v", all)
	}
	if all[1].State != "untrained" || all[1].LastError != "training: no bars" {
		t.Errorf("failure entry %+v", all[1])
	}
	if all[0].LastForecast.PredictedChange != 0.01 {
		t.Errorf("forecast entry %+v", all[0])
	}
	if _, ok := r.Status("AUDUSD"); ok {
		t.Error("unknown symbol should be absent")
	}

	b, err := json.Marshal(all[0])
	if err != nil || len(b) == 0 {
		t.Fatalf("marshal status: %v", err)
	}
}

func TestRegistryPersistence(t *testing.T) {
	store := cache.NewMemoryCache()
	r := NewRegistry()
	r.SetStore(store)
	r.RecordTraining(models.TrainingSummary{Symbol: "USDJPY", Bars: 1500})

	restored := NewRegistry()
	restored.SetStore(store)
	if err := restored.Restore(context.Background(), []string{"USDJPY", "EURUSD"}); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	st, ok := restored.Status("USDJPY")
	if !ok || st.LastTraining == nil || st.LastTraining.Bars != 1500 {
		t.Fatalf("restored %+v", st)
	}
	if _, ok := restored.Status("EURUSD"); ok {
		t.Error("symbol without persisted status should stay absent")
	}
}

type failingCache struct{ cache.Service }

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func TestRegistryPersistFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry()
	r.SetLogger(logger.NewWriter(&buf))
	r.SetStore(failingCache{cache.NewMemoryCache()})
	r.RecordTraining(models.TrainingSummary{Symbol: "USDJPY"})

	if _, ok := r.Status("USDJPY"); !ok {
		t.Fatal("entry should stay in memory when persisting fails")
	}
	out := buf.String()
	if !strings.Contains(out, "persist model status") || !strings.Contains(out, "cache down") {
		t.Errorf("missing warning, log output %q", out)
	}
}
