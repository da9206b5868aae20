package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
	"FXForecast/pkg/logger"
)

// Artifact names under a prefix.
func SequenceArtifact(prefix string) string { return prefix + "_sequence.json" }
func TreeArtifact(prefix string) string     { return prefix + "_tree.json" }
func ConfigArtifact(prefix string) string   { return prefix + "_ensemble.json" }
func MetaArtifact(prefix string) string     { return prefix + "_meta.json" }

type configDoc struct {
	SequenceWeight *float64 `json:"sequence_weight"`
	TreeWeight     *float64 `json:"tree_weight"`
	Strategy       *string  `json:"strategy"`
	UseMetaLearner *bool    `json:"use_meta_learner"`
	HasMetaLearner *bool    `json:"has_meta_learner"`
}

// SaveModels writes both base models, the ensemble configuration and the
// meta-learner when fitted.
func (c *Combiner) SaveModels(ctx context.Context, store repository.ArtifactStore, prefix string) error {
	if err := c.state.Guard(); err != nil {
		return err
	}
	if err := c.seq.Save(ctx, store, SequenceArtifact(prefix)); err != nil {
		return err
	}
	if err := c.tree.Save(ctx, store, TreeArtifact(prefix)); err != nil {
		return err
	}

	strategy := string(c.cfg.Strategy)
	hasMeta := c.meta != nil
	doc, err := json.Marshal(configDoc{
		SequenceWeight: &c.cfg.SequenceWeight,
		TreeWeight:     &c.cfg.TreeWeight,
		Strategy:       &strategy,
		UseMetaLearner: &c.cfg.UseMetaLearner,
		HasMetaLearner: &hasMeta,
	})
	if err != nil {
		return fmt.Errorf("marshal ensemble config: %w", err)
	}
	if err := store.Put(ctx, ConfigArtifact(prefix), doc); err != nil {
		return fmt.Errorf("save ensemble config: %w", err)
	}

	if hasMeta {
		data, err := json.Marshal(c.meta)
		if err != nil {
			return fmt.Errorf("marshal meta-learner: %w", err)
		}
		if err := store.Put(ctx, MetaArtifact(prefix), data); err != nil {
			return fmt.Errorf("save meta-learner: %w", err)
		}
	}
	c.log.Info("ensemble saved", logger.String("prefix", prefix), logger.Bool("meta_learner", hasMeta))
	return nil
}

// LoadModels restores everything written by SaveModels. A missing file
// yields ErrMissingArtifact and a missing configuration key ErrMissingConfigKey.
func (c *Combiner) LoadModels(ctx context.Context, store repository.ArtifactStore, prefix string) error {
	raw, err := store.Get(ctx, ConfigArtifact(prefix))
	if err != nil {
		return missing(ConfigArtifact(prefix), err)
	}
	var doc configDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse ensemble config: %w", err)
	}
	switch {
	case doc.SequenceWeight == nil:
		return fmt.Errorf("%w: sequence_weight", ErrMissingConfigKey)
	case doc.TreeWeight == nil:
		return fmt.Errorf("%w: tree_weight", ErrMissingConfigKey)
	case doc.Strategy == nil:
		return fmt.Errorf("%w: strategy", ErrMissingConfigKey)
	case doc.UseMetaLearner == nil:
		return fmt.Errorf("%w: use_meta_learner", ErrMissingConfigKey)
	case doc.HasMetaLearner == nil:
		return fmt.Errorf("%w: has_meta_learner", ErrMissingConfigKey)
	}
	strategy, err := ParseStrategy(*doc.Strategy)
	if err != nil {
		return err
	}

	if err := c.seq.Load(ctx, store, SequenceArtifact(prefix)); err != nil {
		return missing(SequenceArtifact(prefix), err)
	}
	if err := c.tree.Load(ctx, store, TreeArtifact(prefix)); err != nil {
		return missing(TreeArtifact(prefix), err)
	}

	var meta *metaLearner
	if *doc.HasMetaLearner {
		data, err := store.Get(ctx, MetaArtifact(prefix))
		if err != nil {
			return missing(MetaArtifact(prefix), err)
		}
		meta = &metaLearner{}
		if err := json.Unmarshal(data, meta); err != nil {
			return fmt.Errorf("parse meta-learner: %w", err)
		}
	}

	c.cfg = Config{
		SequenceWeight: *doc.SequenceWeight,
		TreeWeight:     *doc.TreeWeight,
		Strategy:       strategy,
		UseMetaLearner: *doc.UseMetaLearner,
	}
	c.meta = meta
	c.state = models.Trained
	c.log.Info("ensemble loaded", logger.String("prefix", prefix), logger.Bool("meta_learner", meta != nil))
	return nil
}

func missing(name string, err error) error {
	if errors.Is(err, repository.ErrArtifactNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrMissingArtifact, name, err)
	}
	return err
}
