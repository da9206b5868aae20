package lstm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

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

// linearWindows returns windows whose target is 0.1 times the first feature of the last step.
func linearWindows(n, seqLen, features int, seed int64) service.Dataset[models.Window] {
	rng := rand.New(rand.NewSource(seed))
	ds := service.Dataset[models.Window]{}
	for i := 0; i < n; i++ {
		w := make(models.Window, seqLen)
		for t := range w {
			w[t] = make([]float64, features)
			for f := range w[t] {
				w[t][f] = rng.NormFloat64()
			}
		}
		ds.X = append(ds.X, w)
		ds.Y = append(ds.Y, 0.1*w[seqLen-1][0])
	}
	return ds
}

func smallModel(opts ...Option) *Model {
	base := []Option{
		WithSequenceLength(5),
		WithUnits(8),
		WithDenseUnits(8),
		WithDropout(0, false),
		WithLearningRate(0.01),
		WithEpochs(60, 16),
		WithMCSimulations(20),
	}
	return New(nil, append(base, opts...)...)
}

func TestUntrainedModelRejectsInference(t *testing.T) {
	m := smallModel()
	X := linearWindows(3, 5, 2, 1).X
	if _, err := m.Predict(X); !errors.Is(err, models.ErrNotTrained) {
		t.Fatalf("Predict error = %v, want ErrNotTrained", err)
	}
	if _, err := m.PredictWithConfidence(context.Background(), X); !errors.Is(err, models.ErrNotTrained) {
		t.Fatalf("PredictWithConfidence error = %v, want ErrNotTrained", err)
	}
	if err := m.Save(context.Background(), memStore{}, "x"); !errors.Is(err, models.ErrNotTrained) {
		t.Fatalf("Save error = %v, want ErrNotTrained", err)
	}
}

func TestFitLearnsLinearSignal(t *testing.T) {
	train := linearWindows(240, 5, 2, 1)
	val := linearWindows(60, 5, 2, 2)
	m := smallModel()

	report, err := m.Fit(context.Background(), train, &val)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if report.NFeatures != 2 || report.NSamples != 240 {
		t.Errorf("report = %+v", report)
	}
	if m.State() != models.Trained {
		t.Fatalf("state = %v, want trained", m.State())
	}

	ev, err := m.Evaluate(val.X, val.Y)
	if err != nil {
		t.Fatal(err)
	}
	baseline := stat.Variance(val.Y, nil)
	if ev.MSE > 0.5*baseline {
		t.Errorf("validation MSE %v not below half the target variance %v", ev.MSE, baseline)
	}
	if ev.Loss != ev.MSE {
		t.Errorf("loss %v != mse %v", ev.Loss, ev.MSE)
	}
	h := m.History()
	if len(h.ValLoss) != h.Epochs() || len(h.LearningRate) != h.Epochs() {
		t.Errorf("history lengths loss=%d val=%d lr=%d", h.Epochs(), len(h.ValLoss), len(h.LearningRate))
	}
}

func TestFitRejectsWrongSequenceLength(t *testing.T) {
	m := smallModel(WithSequenceLength(4))
	if _, err := m.Fit(context.Background(), linearWindows(10, 5, 2, 1), nil); err == nil {
		t.Fatal("expected error for 5-step windows on a 4-step model")
	}
}

func TestConfidenceWithoutDropoutCollapses(t *testing.T) {
	m := smallModel(WithEpochs(3, 16))
	train := linearWindows(40, 5, 2, 3)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatal(err)
	}
	point, err := m.Predict(train.X[:5])
	if err != nil {
		t.Fatal(err)
	}
	iv, err := m.PredictWithConfidence(context.Background(), train.X[:5])
	if err != nil {
		t.Fatal(err)
	}
	for i := range point {
		if math.Abs(iv.Point[i]-point[i]) > 1e-12 || iv.Upper[i]-iv.Lower[i] > 1e-12 {
			t.Errorf("sample %d: interval %v/%v/%v, point %v", i, iv.Lower[i], iv.Point[i], iv.Upper[i], point[i])
		}
	}
}

func TestMonteCarloDropoutInterval(t *testing.T) {
	m := smallModel(WithDropout(0.3, true), WithEpochs(3, 16))
	train := linearWindows(40, 5, 2, 4)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatal(err)
	}
	a, err := m.PredictWithConfidenceN(context.Background(), train.X[:8], 30)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.PredictWithConfidenceN(context.Background(), train.X[:8], 30)
	var width float64
	for i := 0; i < a.Len(); i++ {
		if !(a.Lower[i] <= a.Point[i] && a.Point[i] <= a.Upper[i]) {
			t.Errorf("sample %d: bounds out of order %v %v %v", i, a.Lower[i], a.Point[i], a.Upper[i])
		}
		if a.Point[i] != b.Point[i] {
			t.Errorf("sample %d: simulations not reproducible", i)
		}
		width += a.Upper[i] - a.Lower[i]
	}
	if width == 0 {
		t.Error("dropout produced zero-width intervals")
	}
	if _, err := m.PredictWithConfidenceN(context.Background(), train.X[:1], 0); err == nil {
		t.Error("expected error for zero simulations")
	}
}

func TestSaveLoadReproducesPredictions(t *testing.T) {
	m := smallModel(WithEpochs(5, 16))
	train := linearWindows(50, 5, 3, 5)
	if _, err := m.Fit(context.Background(), train, nil); err != nil {
		t.Fatal(err)
	}
	store := memStore{}
	if err := m.Save(context.Background(), store, "USDJPY_sequence.json"); err != nil {
		t.Fatal(err)
	}

	restored := New(nil)
	if err := restored.Load(context.Background(), store, "USDJPY_sequence.json"); err != nil {
		t.Fatal(err)
	}
	want, _ := m.Predict(train.X)
	got, err := restored.Predict(train.X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("prediction %d: %v after load, %v before", i, got[i], want[i])
		}
	}
	if restored.Config().SequenceLength != 5 {
		t.Errorf("sequence length = %d, want 5", restored.Config().SequenceLength)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	err := New(nil).Load(context.Background(), memStore{}, "nope")
	if !errors.Is(err, repository.ErrArtifactNotFound) {
		t.Fatalf("err = %v, want ErrArtifactNotFound", err)
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Units = []int{3, 2}
	cfg.DenseUnits = []int{2}
	cfg.Dropout = 0
	net := newNetwork(2, cfg, rand.New(rand.NewSource(7)))
	ds := linearWindows(3, 4, 2, 9)

	loss := func() float64 {
		pred, _ := net.forward(ds.X, nil)
		var s float64
		for i, p := range pred {
			s += (p - ds.Y[i]) * (p - ds.Y[i])
		}
		return s / float64(len(pred))
	}

	net.zeroGrad()
	pred, p := net.forward(ds.X, nil)
	dy := make([]float64, len(pred))
	for i := range pred {
		dy[i] = 2 * (pred[i] - ds.Y[i]) / float64(len(pred))
	}
	net.backward(p, dy)

	const h = 1e-6
	for pi, prm := range net.params() {
		for i := range prm.w {
			orig := prm.w[i]
			prm.w[i] = orig + h
			up := loss()
			prm.w[i] = orig - h
			down := loss()
			prm.w[i] = orig
			num := (up - down) / (2 * h)
			if diff := math.Abs(num - prm.g[i]); diff > 1e-6+1e-4*math.Abs(num) {
				t.Fatalf("param %d[%d]: analytic %v, numeric %v", pi, i, prm.g[i], num)
			}
		}
	}
}

func TestOrthogonalRecurrentInit(t *testing.T) {
	p := newParam(4 * 16)
	orthogonal(p, 4, 16, rand.New(rand.NewSource(1)))
	w := p.matrix(4, 16)
	var prod mat.Dense
	prod.Mul(w, w.T())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(prod.At(i, j)-want) > 1e-9 {
				t.Fatalf("W·Wᵀ[%d][%d] = %v, want %v", i, j, prod.At(i, j), want)
			}
		}
	}
}

func TestEarlyStoppingKeepsBestEpoch(t *testing.T) {
	net := newNetwork(1, Config{Units: []int{1}}, rand.New(rand.NewSource(1)))
	es := newEarlyStopping(2)
	losses := []float64{0.5, 0.3, 0.4, 0.35}
	stopped := -1
	for epoch, l := range losses {
		if es.update(epoch, l, net) {
			stopped = epoch
			break
		}
	}
	if stopped != 3 || es.bestEpoch != 1 || es.best != 0.3 {
		t.Fatalf("stopped=%d best epoch=%d best=%v", stopped, es.bestEpoch, es.best)
	}
}

func TestPlateauHalvesLearningRate(t *testing.T) {
	p := &plateau{patience: 2, factor: 0.5, minDelta: 1e-4, minLR: 1e-3, best: math.Inf(1)}
	lr := 0.004
	tests := []struct {
		loss float64
		want float64
	}{
		{1.0, 0.004},
		{0.99995, 0.004}, // below min delta
		{0.99995, 0.002},
		{0.5, 0.002},
		{0.6, 0.002},
		{0.6, 0.001},
		{0.6, 0.001},
		{0.6, 0.001}, // floor
	}
	for i, tt := range tests {
		lr = p.update(tt.loss, lr)
		if lr != tt.want {
			t.Fatalf("step %d: lr = %v, want %v", i, lr, tt.want)
		}
	}
}
