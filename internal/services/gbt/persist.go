package gbt

import (
	"context"
	"encoding/json"
	"fmt"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
)

type artifact struct {
	Params          Params       `json:"params"`
	TreeMethod      string       `json:"tree_method"`
	MaxBins         int          `json:"max_bins"`
	Seed            int64        `json:"seed"`
	ConfidenceLevel float64      `json:"confidence_level"`
	Features        []string     `json:"features,omitempty"`
	NFeatures       int          `json:"n_features"`
	BaseScore       float64      `json:"base_score"`
	ResidualStd     float64      `json:"residual_std"`
	Trees           []tree       `json:"trees"`
	Importances     []Importance `json:"feature_importances"`
	EvalHistory     []float64    `json:"eval_history,omitempty"`
}

// Save writes hyperparameters, trees and the importance table as JSON.
func (m *Model) Save(ctx context.Context, store repository.ArtifactStore, name string) error {
	if err := m.state.Guard(); err != nil {
		return err
	}
	data, err := json.Marshal(artifact{
		Params: Params{
			NEstimators:     m.cfg.NEstimators,
			MaxDepth:        m.cfg.MaxDepth,
			LearningRate:    m.cfg.LearningRate,
			Subsample:       m.cfg.Subsample,
			ColSampleByTree: m.cfg.ColSampleByTree,
		},
		TreeMethod:      m.cfg.TreeMethod,
		MaxBins:         m.cfg.MaxBins,
		Seed:            m.cfg.Seed,
		ConfidenceLevel: m.cfg.ConfidenceLevel,
		Features:        m.names,
		NFeatures:       m.nFeatures,
		BaseScore:       m.base,
		ResidualStd:     m.residStd,
		Trees:           m.trees,
		Importances:     m.importances,
		EvalHistory:     m.evalHistory,
	})
	if err != nil {
		return fmt.Errorf("marshal gbt: %w", err)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("save gbt %s: %w", name, err)
	}
	return nil
}

// Load restores a model saved by Save.
func (m *Model) Load(ctx context.Context, store repository.ArtifactStore, name string) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("load gbt %s: %w", name, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unmarshal gbt: %w", err)
	}
	if a.NFeatures <= 0 {
		return fmt.Errorf("gbt %s: missing feature count", name)
	}
	for i, t := range a.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("gbt %s: tree %d is empty", name, i)
		}
		for j, n := range t.Nodes {
			if n.Feature >= a.NFeatures || (n.Feature >= 0 && !(n.Left > j && n.Right > j && max(n.Left, n.Right) < len(t.Nodes))) {
				return fmt.Errorf("gbt %s: tree %d is malformed", name, i)
			}
		}
	}

	a.Params.apply(&m.cfg)
	m.cfg.TreeMethod, m.cfg.MaxBins, m.cfg.Seed = a.TreeMethod, a.MaxBins, a.Seed
	if a.ConfidenceLevel > 0 {
		m.cfg.ConfidenceLevel = a.ConfidenceLevel
	}
	m.names = a.Features
	m.nFeatures, m.base, m.residStd = a.NFeatures, a.BaseScore, a.ResidualStd
	m.trees, m.importances, m.evalHistory = a.Trees, a.Importances, a.EvalHistory
	m.state = models.Trained
	return nil
}
