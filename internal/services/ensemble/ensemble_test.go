package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
	"FXForecast/internal/domain/service"
	repo "FXForecast/internal/repository"
	"FXForecast/internal/services/gbt"
	"FXForecast/internal/services/lstm"
	"FXForecast/pkg/cache"
)

// stub returns fixed outputs regardless of input content.
type stub[S any] struct {
	Point []float64 `json:"point"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
	state models.TrainingState
}

func (s *stub[S]) Fit(context.Context, service.Dataset[S], *service.Dataset[S]) (models.FitReport, error) {
	s.state = models.Trained
	return models.FitReport{Model: "stub"}, nil
}

func (s *stub[S]) Predict(X []S) ([]float64, error) {
	if err := s.state.Guard(); err != nil {
		return nil, err
	}
	return s.Point[:len(X)], nil
}

func (s *stub[S]) PredictWithConfidence(_ context.Context, X []S) (models.Interval, error) {
	return models.Interval{Point: s.Point[:len(X)], Lower: s.Lower[:len(X)], Upper: s.Upper[:len(X)]}, nil
}

func (s *stub[S]) Evaluate(X []S, y []float64) (models.Evaluation, error) {
	return models.Evaluation{Samples: len(X)}, nil
}

func (s *stub[S]) Save(ctx context.Context, store repository.ArtifactStore, name string) error {
	data, _ := json.Marshal(s)
	return store.Put(ctx, name, data)
}

func (s *stub[S]) Load(ctx context.Context, store repository.ArtifactStore, name string) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	s.state = models.Trained
	return json.Unmarshal(data, s)
}

func (s *stub[S]) State() models.TrainingState { return s.state }

func oneWindow() []models.Window { return []models.Window{{{0}}} }
func oneRow() [][]float64        { return [][]float64{{0}} }

func trainedStubs(t *testing.T, opts ...Option) *Combiner {
	t.Helper()
	seq := &stub[models.Window]{Point: []float64{100.5}, Lower: []float64{99.0}, Upper: []float64{102.0}}
	tree := &stub[[]float64]{Point: []float64{100.0}, Lower: []float64{98.5}, Upper: []float64{101.5}}
	c := New(seq, tree, nil, opts...)
	if _, err := c.Train(context.Background(), TrainData{}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestWeightedAverage(t *testing.T) {
	c := trainedStubs(t, WithWeights(0.6, 0.4))
	got, err := c.Predict(Input{Sequence: oneWindow(), Tabular: oneRow()}, WeightedAverage)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || math.Abs(got[0]-100.3) > 1e-9 {
		t.Fatalf("got %v, want [100.3]", got)
	}
}

func TestStrategies(t *testing.T) {
	c := trainedStubs(t)
	both := Input{Sequence: oneWindow(), Tabular: oneRow()}
	tests := []struct {
		name     string
		in       Input
		strategy Strategy
		want     float64
	}{
		{"voting", both, Voting, 100.25},
		{"meta without learner uses sequence", both, MetaLearner, 100.5},
		{"sequence only", Input{Sequence: oneWindow()}, WeightedAverage, 100.5},
		{"tree only", Input{Tabular: oneRow()}, Voting, 100.0},
		{"configured default", both, "", 0.6*100.5 + 0.4*100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Predict(tt.in, tt.strategy)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got[0]-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got[0], tt.want)
			}
		})
	}
}

func TestConfidenceCombination(t *testing.T) {
	c := trainedStubs(t, WithWeights(0.5, 0.5))
	iv, err := c.PredictWithConfidence(context.Background(), Input{Sequence: oneWindow(), Tabular: oneRow()})
	if err != nil {
		t.Fatal(err)
	}
	want := [3]float64{100.25, 98.75, 101.75}
	got := [3]float64{iv.Point[0], iv.Lower[0], iv.Upper[0]}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCombinerErrors(t *testing.T) {
	untrained := New(&stub[models.Window]{}, &stub[[]float64]{}, nil)
	if _, err := untrained.Predict(Input{Sequence: oneWindow()}, ""); !errors.Is(err, models.ErrNotTrained) {
		t.Errorf("untrained Predict: %v", err)
	}
	if _, err := untrained.PredictWithConfidence(context.Background(), Input{Sequence: oneWindow()}); !errors.Is(err, models.ErrNotTrained) {
		t.Errorf("untrained PredictWithConfidence: %v", err)
	}

	c := trainedStubs(t)
	if _, err := c.Predict(Input{}, ""); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty input: %v", err)
	}
	if _, err := c.PredictWithConfidence(context.Background(), Input{}); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty confidence input: %v", err)
	}
	if _, err := c.Predict(Input{Sequence: oneWindow()}, "median"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown strategy: %v", err)
	}
}

func TestTailAlignment(t *testing.T) {
	seq := &stub[models.Window]{Point: []float64{1, 2, 3}}
	tree := &stub[[]float64]{Point: []float64{10, 20, 30, 40, 50}}
	c := New(seq, tree, nil, WithStrategy(Voting))
	if _, err := c.Train(context.Background(), TrainData{}); err != nil {
		t.Fatal(err)
	}
	got, err := c.Predict(Input{
		Sequence: make([]models.Window, 3),
		Tabular:  make([][]float64, 5),
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{(1 + 30) / 2.0, (2 + 40) / 2.0, (3 + 50) / 2.0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMetaLearnerRecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 50
	s, tr, y := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range y {
		s[i], tr[i] = rng.NormFloat64(), rng.NormFloat64()
		y[i] = 0.01 + 0.7*s[i] + 0.2*tr[i]
	}
	m, err := fitMetaLearner(s, tr, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.Intercept-0.01) > 1e-9 || math.Abs(m.Coef[0]-0.7) > 1e-9 || math.Abs(m.Coef[1]-0.2) > 1e-9 {
		t.Fatalf("fitted %+v", m)
	}

	// collinear inputs still solve
	if _, err := fitMetaLearner(s, s, y); err != nil {
		t.Fatalf("collinear: %v", err)
	}
}

func TestLoadModelsMissingPieces(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := repo.NewCacheArtifactStore(mem)

	c := trainedStubs(t)
	if err := c.SaveModels(ctx, store, "EURUSD"); err != nil {
		t.Fatal(err)
	}

	fresh := func() *Combiner { return New(&stub[models.Window]{}, &stub[[]float64]{}, nil) }
	if err := fresh().LoadModels(ctx, store, "GBPUSD"); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("missing config: %v", err)
	}

	if err := store.Put(ctx, ConfigArtifact("EURUSD"), []byte(`{"sequence_weight":0.6,"tree_weight":0.4,"strategy":"voting"}`)); err != nil {
		t.Fatal(err)
	}
	if err := fresh().LoadModels(ctx, store, "EURUSD"); !errors.Is(err, ErrMissingConfigKey) {
		t.Errorf("missing key: %v", err)
	}

	if err := store.Put(ctx, ConfigArtifact("EURUSD"), []byte(`{"sequence_weight":0.6,"tree_weight":0.4,"strategy":"voting","use_meta_learner":true,"has_meta_learner":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := fresh().LoadModels(ctx, store, "EURUSD"); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("missing meta-learner: %v", err)
	}
}

// sinusoidal builds matching sequence and tabular datasets from one series.
func sinusoidal(n int) (service.Dataset[models.Window], service.Dataset[[]float64]) {
	var seq service.Dataset[models.Window]
	var tab service.Dataset[[]float64]
	x := func(i int) float64 { return math.Sin(float64(i) / 5) }
	for i := 4; i < n; i++ {
		w := make(models.Window, 4)
		for k := range w {
			w[k] = []float64{x(i - 4 + k)}
		}
		y := 0.01 * x(i)
		seq.X, seq.Y = append(seq.X, w), append(seq.Y, y)
		tab.X, tab.Y = append(tab.X, []float64{x(i - 1), x(i - 2)}), append(tab.Y, y)
	}
	return seq, tab
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	seqTrain, tabTrain := sinusoidal(120)
	seqVal, tabVal := sinusoidal(60)

	newCombiner := func() *Combiner {
		return New(
			lstm.New(nil, lstm.WithSequenceLength(4), lstm.WithUnits(4), lstm.WithDenseUnits(4), lstm.WithEpochs(3, 16), lstm.WithMCSimulations(5)),
			gbt.New(nil, gbt.WithTrees(10, 3, 0.3)),
			nil,
			WithMetaLearner(true), WithStrategy(MetaLearner),
		)
	}
	c := newCombiner()
	rep, err := c.Train(ctx, TrainData{SequenceTrain: seqTrain, SequenceVal: &seqVal, TabularTrain: tabTrain, TabularVal: &tabVal})
	if err != nil {
		t.Fatal(err)
	}
	if !rep.MetaLearner {
		t.Fatal("meta-learner not fitted")
	}

	mem := cache.NewMemoryCache()
	defer mem.Close()
	store := repo.NewCacheArtifactStore(mem)
	if err := c.SaveModels(ctx, store, "USDJPY"); err != nil {
		t.Fatal(err)
	}
	restored := newCombiner()
	if err := restored.LoadModels(ctx, store, "USDJPY"); err != nil {
		t.Fatal(err)
	}

	in := Input{Sequence: seqVal.X, Tabular: tabVal.X}
	for _, s := range []Strategy{WeightedAverage, MetaLearner, Voting} {
		want, err := c.Predict(in, s)
		if err != nil {
			t.Fatal(err)
		}
		got, err := restored.Predict(in, s)
		if err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-12 {
				t.Fatalf("%s: prediction %d = %v after load, %v before", s, i, got[i], want[i])
			}
		}
	}

	ev, err := restored.Evaluate(TestData{Sequence: seqVal.X, SequenceY: seqVal.Y, Tabular: tabVal.X, TabularY: tabVal.Y})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Ensemble.Samples != len(seqVal.Y) {
		t.Errorf("ensemble evaluated on %d samples, want %d", ev.Ensemble.Samples, len(seqVal.Y))
	}
}
