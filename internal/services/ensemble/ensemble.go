// Package ensemble combines the sequence and tree predictors into one forecast.
package ensemble

import (
	"context"
	"errors"
	"fmt"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/service"
	"FXForecast/pkg/logger"
)

var (
	ErrNoInput          = errors.New("ensemble: neither sequence nor tabular input supplied")
	ErrUnknownStrategy  = errors.New("ensemble: unknown strategy")
	ErrMissingArtifact  = errors.New("ensemble: missing artifact")
	ErrMissingConfigKey = errors.New("ensemble: missing configuration key")
)

type Strategy string

const (
	WeightedAverage Strategy = "weighted_average"
	MetaLearner     Strategy = "meta_learner"
	Voting          Strategy = "voting"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case WeightedAverage, MetaLearner, Voting:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

type Config struct {
	SequenceWeight float64
	TreeWeight     float64
	Strategy       Strategy
	UseMetaLearner bool
}

func DefaultConfig() Config {
	return Config{SequenceWeight: 0.6, TreeWeight: 0.4, Strategy: WeightedAverage}
}

type Option func(*Config)

func WithWeights(sequence, tree float64) Option {
	return func(c *Config) {
		c.SequenceWeight = sequence
		c.TreeWeight = tree
	}
}

func WithStrategy(s Strategy) Option {
	return func(c *Config) { c.Strategy = s }
}

// WithMetaLearner enables fitting the stacking regressor during Train.
func WithMetaLearner(enabled bool) Option {
	return func(c *Config) { c.UseMetaLearner = enabled }
}

// Combiner owns one sequence and one tree predictor. Like the predictors it
// wraps, it expects a single owner at a time.
type Combiner struct {
	cfg   Config
	log   *logger.Logger
	seq   service.Predictor[models.Window]
	tree  service.Predictor[[]float64]
	meta  *metaLearner
	state models.TrainingState
}

func New(seq service.Predictor[models.Window], tree service.Predictor[[]float64], log *logger.Logger, opts ...Option) *Combiner {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Combiner{cfg: cfg, log: log, seq: seq, tree: tree}
}

func (c *Combiner) Config() Config { return c.cfg }

func (c *Combiner) State() models.TrainingState { return c.state }

// HasMetaLearner reports whether a stacking regressor is fitted.
func (c *Combiner) HasMetaLearner() bool { return c.meta != nil }

// TrainData carries the prepared datasets of both models. Validation sets may be nil.
type TrainData struct {
	SequenceTrain service.Dataset[models.Window]
	SequenceVal   *service.Dataset[models.Window]
	TabularTrain  service.Dataset[[]float64]
	TabularVal    *service.Dataset[[]float64]
}

type TrainReport struct {
	Sequence    models.FitReport `json:"sequence"`
	Tree        models.FitReport `json:"tree"`
	MetaLearner bool             `json:"meta_learner"`
}

// Train fits the sequence model, then the tree model, then, when enabled and
// both validation sets are present, the meta-learner on their validation
// predictions against the sequence validation targets.
func (c *Combiner) Train(ctx context.Context, d TrainData) (TrainReport, error) {
	var rep TrainReport
	var err error

	c.log.Info("training sequence model")
	if rep.Sequence, err = c.seq.Fit(ctx, d.SequenceTrain, d.SequenceVal); err != nil {
		return rep, fmt.Errorf("sequence model: %w", err)
	}
	c.log.Info("training tree model")
	if rep.Tree, err = c.tree.Fit(ctx, d.TabularTrain, d.TabularVal); err != nil {
		return rep, fmt.Errorf("tree model: %w", err)
	}

	c.meta = nil
	if c.cfg.UseMetaLearner {
		if d.SequenceVal.Empty() || d.TabularVal.Empty() {
			c.log.Warn("meta-learner enabled but validation data missing, skipping")
		} else {
			if c.meta, err = c.fitMeta(*d.SequenceVal, *d.TabularVal); err != nil {
				return rep, fmt.Errorf("meta-learner: %w", err)
			}
			rep.MetaLearner = true
			c.log.Info("meta-learner fitted",
				logger.Float64("intercept", c.meta.Intercept),
				logger.Float64("sequence_coef", c.meta.Coef[0]),
				logger.Float64("tree_coef", c.meta.Coef[1]))
		}
	}
	c.state = models.Trained
	return rep, nil
}

func (c *Combiner) fitMeta(seqVal service.Dataset[models.Window], tabVal service.Dataset[[]float64]) (*metaLearner, error) {
	sp, err := c.seq.Predict(seqVal.X)
	if err != nil {
		return nil, err
	}
	tp, err := c.tree.Predict(tabVal.X)
	if err != nil {
		return nil, err
	}
	n := min(len(sp), len(tp))
	return fitMetaLearner(tail(sp, n), tail(tp, n), tail(seqVal.Y, n))
}

// tail keeps the last n values. Callers trim sequence and tabular samples to
// the same final date, so trailing samples line up.
func tail(x []float64, n int) []float64 {
	if n >= len(x) {
		return x
	}
	return x[len(x)-n:]
}
