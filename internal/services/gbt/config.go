package gbt

// Config holds booster hyperparameters. Only the squared-error objective is supported.
type Config struct {
	NEstimators         int
	MaxDepth            int
	LearningRate        float64
	Subsample           float64
	ColSampleByTree     float64
	TreeMethod          string // hist or exact
	MaxBins             int
	Seed                int64
	EarlyStoppingRounds int
	ConfidenceLevel     float64
	Explain             bool

	Lambda         float64
	Gamma          float64
	MinChildWeight float64

	CVSplits int
	Workers  int
}

// DefaultConfig mirrors the reference booster: 100 trees of depth 6 at eta 0.1
// with 0.8 row and column subsampling.
func DefaultConfig() Config {
	return Config{
		NEstimators:         100,
		MaxDepth:            6,
		LearningRate:        0.1,
		Subsample:           0.8,
		ColSampleByTree:     0.8,
		TreeMethod:          "hist",
		MaxBins:             256,
		Seed:                42,
		EarlyStoppingRounds: 50,
		ConfidenceLevel:     0.95,
		Explain:             true,
		Lambda:              1,
		Gamma:               0,
		MinChildWeight:      1,
		CVSplits:            5,
	}
}

type Option func(*Config)

func WithTrees(n, maxDepth int, learningRate float64) Option {
	return func(c *Config) {
		c.NEstimators = n
		c.MaxDepth = maxDepth
		c.LearningRate = learningRate
	}
}

func WithSubsample(rows, cols float64) Option {
	return func(c *Config) {
		c.Subsample = rows
		c.ColSampleByTree = cols
	}
}

// WithTreeMethod selects hist (quantile bins) or exact (every distinct value).
func WithTreeMethod(method string, maxBins int) Option {
	return func(c *Config) {
		c.TreeMethod = method
		c.MaxBins = maxBins
	}
}

func WithSeed(seed int64) Option {
	return func(c *Config) { c.Seed = seed }
}

func WithEarlyStopping(rounds int) Option {
	return func(c *Config) { c.EarlyStoppingRounds = rounds }
}

func WithConfidenceLevel(level float64) Option {
	return func(c *Config) { c.ConfidenceLevel = level }
}

// WithExplain enables path attribution. When disabled Explain reports it as unsupported.
func WithExplain(enabled bool) Option {
	return func(c *Config) { c.Explain = enabled }
}

// WithTuning sets the cross-validation fold count and the worker pool size
// (zero means GOMAXPROCS).
func WithTuning(cvSplits, workers int) Option {
	return func(c *Config) {
		c.CVSplits = cvSplits
		c.Workers = workers
	}
}
