package lstm

// Config holds architecture and training settings of the sequence model.
type Config struct {
	SequenceLength int
	Units          []int
	DenseUnits     []int
	Dropout        float64
	DenseDropout   bool
	LearningRate   float64
	Epochs         int
	BatchSize      int
	MCSimulations  int
	Seed           int64

	// early stopping
	Patience int
	// learning-rate reduction on plateau
	LRPatience int
	LRFactor   float64
	LRMinDelta float64
	MinLR      float64
}

// DefaultConfig returns the reference architecture: LSTM 128-64-32, dense 64-32,
// dropout 0.2, Adam at 1e-3.
func DefaultConfig() Config {
	return Config{
		SequenceLength: 60,
		Units:          []int{128, 64, 32},
		DenseUnits:     []int{64, 32},
		Dropout:        0.2,
		DenseDropout:   true,
		LearningRate:   0.001,
		Epochs:         100,
		BatchSize:      32,
		MCSimulations:  100,
		Seed:           42,
		Patience:       20,
		LRPatience:     10,
		LRFactor:       0.5,
		LRMinDelta:     1e-4,
		MinLR:          1e-7,
	}
}

type Option func(*Config)

func WithSequenceLength(n int) Option {
	return func(c *Config) { c.SequenceLength = n }
}

func WithUnits(units ...int) Option {
	return func(c *Config) { c.Units = append([]int(nil), units...) }
}

func WithDenseUnits(units ...int) Option {
	return func(c *Config) { c.DenseUnits = append([]int(nil), units...) }
}

// WithDropout sets the dropout rate; dense controls dropout after the dense layers.
func WithDropout(rate float64, dense bool) Option {
	return func(c *Config) {
		c.Dropout = rate
		c.DenseDropout = dense
	}
}

func WithLearningRate(lr float64) Option {
	return func(c *Config) { c.LearningRate = lr }
}

func WithEpochs(epochs, batchSize int) Option {
	return func(c *Config) {
		c.Epochs = epochs
		c.BatchSize = batchSize
	}
}

func WithMCSimulations(n int) Option {
	return func(c *Config) { c.MCSimulations = n }
}

func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

func WithPatience(earlyStop, reduceLR int) Option {
	return func(c *Config) {
		c.Patience = earlyStop
		c.LRPatience = reduceLR
	}
}
