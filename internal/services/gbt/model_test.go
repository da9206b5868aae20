package gbt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
	"FXForecast/internal/domain/service"
)

type memStore map[string][]byte

func (m memStore) Put(_ context.Context, name string, data []byte) error {
	m[name] = data
	return nil
}

func (m memStore) Get(_ context.Context, name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, repository.ErrArtifactNotFound
	}
	return b, nil
}

// stepData has y = 1 when x0 > 0.5 and 0 otherwise; x1 is noise.
func stepData(n int, seed int64) service.Dataset[[]float64] {
	return noisyStep(n, seed, 0)
}

func noisyStep(n int, seed int64, sigma float64) service.Dataset[[]float64] {
	rng := rand.New(rand.NewSource(seed))
	ds := service.Dataset[[]float64]{}
	for i := 0; i < n; i++ {
		x := []float64{rng.Float64(), rng.Float64()}
		y := 0.0
		if x[0] > 0.5 {
			y = 1
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y+sigma*rng.NormFloat64())
	}
	return ds
}

func TestCutPointsAndBins(t *testing.T) {
	cuts := cutPoints([]float64{3, 1, 2, 2, math.NaN()}, 256, false)
	if len(cuts) != 3 || cuts[0] != 1 || cuts[2] != 3 {
		t.Fatalf("cuts = %v, want [1 2 3]", cuts)
	}
	tests := []struct {
		v    float64
		want int
	}{
		{0.5, 0}, {1, 1}, {1.5, 1}, {2, 2}, {3, 3}, {10, 3}, {math.NaN(), -1},
	}
	for _, tt := range tests {
		if got := binOf(cuts, tt.v); got != tt.want {
			t.Errorf("binOf(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	if got := cutPoints(many, 4, false); len(got) != 3 {
		t.Errorf("quantile cuts = %v, want 3 cuts", got)
	}
	if got := cutPoints(many, 4, true); len(got) != 1000 {
		t.Errorf("exact cuts = %d, want 1000", len(got))
	}
}

func TestFitLearnsStep(t *testing.T) {
	m := New(nil, WithTrees(60, 3, 0.3), WithSubsample(1, 1))
	train := stepData(300, 1)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	test := stepData(100, 2)
	ev, err := m.Evaluate(test.X, test.Y)
	if err != nil {
		t.Fatal(err)
	}
	if ev.MSE > 0.05 {
		t.Errorf("test MSE = %v, want < 0.05", ev.MSE)
	}

	imp := m.FeatureImportances()
	if imp[0].Index != 0 {
		t.Errorf("top feature = %d, want 0", imp[0].Index)
	}
	var sum float64
	for _, i := range imp {
		sum += i.Gain
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v", sum)
	}
}

func TestEarlyStoppingKeepsBestRound(t *testing.T) {
	m := New(nil, WithTrees(300, 6, 0.5), WithEarlyStopping(5))
	train, val := noisyStep(200, 3, 0.5), noisyStep(60, 4, 0.5)
	report, err := m.Fit(context.Background(), train, &val)
	if err != nil {
		t.Fatal(err)
	}
	if report.BestIteration == nil || report.BestScore == nil {
		t.Fatal("best iteration not reported with validation data")
	}
	if m.Trees() != *report.BestIteration+1 {
		t.Errorf("kept %d trees, best iteration %d", m.Trees(), *report.BestIteration)
	}
	if len(report.EvalHistory) >= 300 {
		t.Errorf("no early stop: %d rounds", len(report.EvalHistory))
	}
	if h := report.EvalHistory[*report.BestIteration]; h != *report.BestScore {
		t.Errorf("history at best round %v != best score %v", h, *report.BestScore)
	}
}

func TestUntrainedTree(t *testing.T) {
	m := New(nil)
	if _, err := m.Predict([][]float64{{1, 2}}); !errors.Is(err, models.ErrNotTrained) {
		t.Fatalf("err = %v, want ErrNotTrained", err)
	}
	if _, err := m.Explain([]float64{1, 2}); !errors.Is(err, models.ErrNotTrained) {
		t.Fatalf("Explain err = %v, want ErrNotTrained", err)
	}
}

func TestConfidenceFromResiduals(t *testing.T) {
	m := New(nil, WithTrees(20, 2, 0.3))
	train, val := stepData(200, 5), stepData(50, 6)
	if _, err := m.Fit(context.Background(), train, &val); err != nil {
		t.Fatal(err)
	}
	iv, err := m.PredictWithConfidence(context.Background(), val.X[:10])
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < iv.Len(); i++ {
		half := iv.Upper[i] - iv.Point[i]
		if math.Abs(half-1.959963984540054*m.residStd) > 1e-9 {
			t.Errorf("half width %v, want 1.96 × %v", half, m.residStd)
		}
		if math.Abs((iv.Point[i]-iv.Lower[i])-half) > 1e-12 {
			t.Errorf("interval not symmetric at %d", i)
		}
	}
	if _, err := m.PredictWithConfidenceLevel(val.X, 1.5); err == nil {
		t.Error("expected error for level 1.5")
	}
}

func TestExplainSumsToPrediction(t *testing.T) {
	m := New(nil, WithTrees(30, 4, 0.2))
	m.SetFeatureNames([]string{"rsi", "noise"})
	train := stepData(200, 7)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatal(err)
	}
	for _, x := range train.X[:10] {
		ex, err := m.Explain(x)
		if err != nil {
			t.Fatal(err)
		}
		pred, _ := m.Predict([][]float64{x})
		if !ex.Supported || math.Abs(ex.Prediction-pred[0]) > 1e-9 {
			t.Fatalf("explanation %+v does not reproduce prediction %v", ex, pred[0])
		}
		if ex.Features[0] != "rsi" {
			t.Errorf("feature name = %q", ex.Features[0])
		}
	}
}

func TestExplainDisabled(t *testing.T) {
	m := New(nil, WithTrees(5, 2, 0.3), WithExplain(false))
	if _, err := m.Fit(context.Background(), stepData(50, 8), nil); err != nil {
		t.Fatal(err)
	}
	ex, err := m.Explain([]float64{0.1, 0.2})
	if err != nil || ex.Supported {
		t.Fatalf("got %+v, %v; want unsupported result without error", ex, err)
	}
}

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := TimeSeriesSplit(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Fold{{4, 4, 6}, {6, 6, 8}, {8, 8, 10}}
	for i := range want {
		if folds[i] != want[i] {
			t.Errorf("fold %d = %+v, want %+v", i, folds[i], want[i])
		}
	}
	if _, err := TimeSeriesSplit(3, 5); err == nil {
		t.Error("expected error for too few samples")
	}
}

func TestDefaultGridSize(t *testing.T) {
	if n := len(DefaultGrid().Combinations()); n != 432 {
		t.Fatalf("default grid has %d combinations, want 432", n)
	}
}

func TestHyperparameterTuning(t *testing.T) {
	m := New(nil, WithTuning(3, 2))
	grid := &Grid{
		NEstimators:     []int{5, 40},
		MaxDepth:        []int{2},
		LearningRate:    []float64{0.3},
		Subsample:       []float64{1},
		ColSampleByTree: []float64{1},
	}
	res, err := m.HyperparameterTuning(context.Background(), stepData(120, 9), grid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CVResults) != 2 {
		t.Fatalf("got %d results", len(res.CVResults))
	}
	for _, r := range res.CVResults {
		if r.MeanMSE < res.BestScore {
			t.Errorf("best score %v is not the minimum (%v)", res.BestScore, r.MeanMSE)
		}
		if len(r.FoldScores) != 3 {
			t.Errorf("fold scores = %d, want 3", len(r.FoldScores))
		}
	}
	if m.State() != models.Trained || m.Config().NEstimators != res.BestParams.NEstimators {
		t.Errorf("model not refit with best params: %+v", m.Config())
	}
}

func TestTreeSaveLoad(t *testing.T) {
	m := New(nil, WithTrees(25, 4, 0.2))
	m.SetFeatureNames([]string{"a", "b"})
	train := stepData(150, 10)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatal(err)
	}
	store := memStore{}
	if err := m.Save(context.Background(), store, "m_tree.json"); err != nil {
		t.Fatal(err)
	}
	restored := New(nil)
	if err := restored.Load(context.Background(), store, "m_tree.json"); err != nil {
		t.Fatal(err)
	}
	want, _ := m.PredictWithConfidence(context.Background(), train.X)
	got, err := restored.PredictWithConfidence(context.Background(), train.X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want.Point {
		if got.Point[i] != want.Point[i] || got.Upper[i] != want.Upper[i] {
			t.Fatalf("row %d differs after load", i)
		}
	}
	if restored.FeatureImportances()[0].Feature != m.FeatureImportances()[0].Feature {
		t.Error("importance table not restored")
	}
}
