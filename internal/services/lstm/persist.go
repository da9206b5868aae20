package lstm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
)

type artifact struct {
	SequenceLength int            `json:"sequence_length"`
	Features       int            `json:"n_features"`
	Units          []int          `json:"units"`
	DenseUnits     []int          `json:"dense_units"`
	Dropout        float64        `json:"dropout"`
	DenseDropout   bool           `json:"dense_dropout"`
	LearningRate   float64        `json:"learning_rate"`
	Seed           int64          `json:"seed"`
	MCSimulations  int            `json:"mc_simulations"`
	Weights        [][]float64    `json:"weights"`
	History        models.History `json:"history"`
}

// Save writes architecture, weights and training history as JSON.
func (m *Model) Save(ctx context.Context, store repository.ArtifactStore, name string) error {
	if err := m.state.Guard(); err != nil {
		return err
	}
	data, err := json.Marshal(artifact{
		SequenceLength: m.cfg.SequenceLength,
		Features:       m.net.features,
		Units:          m.cfg.Units,
		DenseUnits:     m.cfg.DenseUnits,
		Dropout:        m.cfg.Dropout,
		DenseDropout:   m.cfg.DenseDropout,
		LearningRate:   m.cfg.LearningRate,
		Seed:           m.cfg.Seed,
		MCSimulations:  m.cfg.MCSimulations,
		Weights:        m.net.weights(),
		History:        m.history,
	})
	if err != nil {
		return fmt.Errorf("marshal lstm: %w", err)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("save lstm %s: %w", name, err)
	}
	return nil
}

// Load restores a model saved by Save, replacing the architecture settings.
func (m *Model) Load(ctx context.Context, store repository.ArtifactStore, name string) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("load lstm %s: %w", name, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unmarshal lstm: %w", err)
	}
	if a.Features <= 0 || len(a.Units) == 0 {
		return fmt.Errorf("lstm %s: missing architecture", name)
	}

	cfg := m.cfg
	cfg.SequenceLength = a.SequenceLength
	cfg.Units = a.Units
	cfg.DenseUnits = a.DenseUnits
	cfg.Dropout = a.Dropout
	cfg.DenseDropout = a.DenseDropout
	cfg.LearningRate = a.LearningRate
	cfg.Seed = a.Seed
	cfg.MCSimulations = a.MCSimulations

	net := newNetwork(a.Features, cfg, rand.New(rand.NewSource(cfg.Seed)))
	params := net.params()
	if len(params) != len(a.Weights) {
		return fmt.Errorf("lstm %s: %d weight tensors, want %d", name, len(a.Weights), len(params))
	}
	for i, p := range params {
		if len(p.w) != len(a.Weights[i]) {
			return fmt.Errorf("lstm %s: tensor %d has %d values, want %d", name, i, len(a.Weights[i]), len(p.w))
		}
	}
	net.setWeights(a.Weights)

	m.cfg, m.net, m.history = cfg, net, a.History
	m.opt = &adam{lr: cfg.LearningRate}
	m.state = models.Trained
	return nil
}
