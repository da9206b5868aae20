package dataprep

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
	"FXForecast/internal/services/features"
)

// SequenceBuilder produces normalized windows over the recorded feature columns.
// It owns the normalization statistics; once fitted they are reused unchanged
// for validation, test and inference data.
type SequenceBuilder struct {
	src     ColumnSource
	columns []string
	norm    Normalizer
}

// NewSequenceBuilder creates a builder reading columns from src.
func NewSequenceBuilder(src ColumnSource) *SequenceBuilder {
	return &SequenceBuilder{src: src}
}

// PrepareSequences fits the normalizer on the defined rows of table and returns
// the windows and forward relative-change targets. Fewer than
// sequenceLength+horizon+1 defined rows yield empty results.
func (b *SequenceBuilder) PrepareSequences(table *features.Table, sequenceLength int, target string, horizon int) ([]models.Window, []float64, error) {
	frame, err := Select(table, b.src.FeatureColumns(), target)
	if err != nil {
		return nil, nil, err
	}
	if frame.Len() == 0 {
		return nil, nil, nil
	}
	if err := b.Fit(frame); err != nil {
		return nil, nil, err
	}
	return b.Sequences(frame, sequenceLength, horizon)
}

// Fit stores normalization statistics computed from frame.
func (b *SequenceBuilder) Fit(frame Frame) error {
	if err := b.norm.Fit(frame.X); err != nil {
		return err
	}
	b.columns = append([]string(nil), frame.Columns...)
	return nil
}

// Sequences windows frame with the stored statistics. Window i covers
// normalized rows [i-sequenceLength, i) and its target is
// (price[i-1+horizon] - price[i-1]) / price[i-1] on raw prices.
func (b *SequenceBuilder) Sequences(frame Frame, sequenceLength, horizon int) ([]models.Window, []float64, error) {
	if err := b.checkColumns(frame.Columns); err != nil {
		return nil, nil, err
	}
	if sequenceLength <= 0 || horizon <= 0 {
		return nil, nil, fmt.Errorf("sequence length and horizon must be positive")
	}
	n := frame.Len()
	if n < sequenceLength+horizon+1 {
		return nil, nil, nil
	}
	scaled, err := b.norm.Transform(frame.X)
	if err != nil {
		return nil, nil, err
	}

	windows := make([]models.Window, 0, n-horizon-sequenceLength)
	targets := make([]float64, 0, n-horizon-sequenceLength)
	for i := sequenceLength; i < n-horizon; i++ {
		windows = append(windows, scaled[i-sequenceLength:i])
		p := frame.Price[i-1]
		targets = append(targets, (frame.Price[i-1+horizon]-p)/p)
	}
	return windows, targets, nil
}

// SampleDates returns the date of the last row of each window Sequences
// builds from frame.
func SampleDates(frame Frame, sequenceLength, horizon int) []time.Time {
	n := frame.Len()
	if sequenceLength <= 0 || horizon <= 0 || n < sequenceLength+horizon+1 {
		return nil
	}
	dates := make([]time.Time, 0, n-horizon-sequenceLength)
	for i := sequenceLength; i < n-horizon; i++ {
		dates = append(dates, frame.Dates[i-1])
	}
	return dates
}

// LatestWindow returns the last sequenceLength normalized rows of table for inference.
func (b *SequenceBuilder) LatestWindow(table *features.Table, sequenceLength int, target string) (models.Window, error) {
	if !b.norm.Fitted() {
		return nil, fmt.Errorf("sequence builder: normalizer not fitted")
	}
	frame, err := Select(table, b.columns, target)
	if err != nil {
		return nil, err
	}
	if frame.Len() < sequenceLength {
		return nil, fmt.Errorf("latest window: %d defined rows, need %d", frame.Len(), sequenceLength)
	}
	return b.norm.Transform(frame.X[frame.Len()-sequenceLength:])
}

// Normalizer returns a copy of the stored statistics.
func (b *SequenceBuilder) Normalizer() Normalizer {
	return Normalizer{
		Mean: append([]float64(nil), b.norm.Mean...),
		Std:  append([]float64(nil), b.norm.Std...),
	}
}

// Columns returns the columns the statistics were fitted on.
func (b *SequenceBuilder) Columns() []string { return append([]string(nil), b.columns...) }

func (b *SequenceBuilder) checkColumns(cols []string) error {
	if !b.norm.Fitted() {
		return fmt.Errorf("sequence builder: normalizer not fitted")
	}
	if len(cols) != len(b.columns) {
		return fmt.Errorf("sequence builder: %d columns, fitted on %d", len(cols), len(b.columns))
	}
	for i := range cols {
		if cols[i] != b.columns[i] {
			return fmt.Errorf("sequence builder: column %d is %q, fitted on %q", i, cols[i], b.columns[i])
		}
	}
	return nil
}

type builderState struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// Save writes the fitted columns and statistics under name.
func (b *SequenceBuilder) Save(ctx context.Context, store repository.ArtifactStore, name string) error {
	if !b.norm.Fitted() {
		return fmt.Errorf("sequence builder: normalizer not fitted")
	}
	data, err := json.Marshal(builderState{Columns: b.columns, Mean: b.norm.Mean, Std: b.norm.Std})
	if err != nil {
		return fmt.Errorf("marshal normalizer: %w", err)
	}
	return store.Put(ctx, name, data)
}

// Load restores columns and statistics saved by Save.
func (b *SequenceBuilder) Load(ctx context.Context, store repository.ArtifactStore, name string) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("load normalizer %s: %w", name, err)
	}
	var st builderState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("unmarshal normalizer: %w", err)
	}
	if len(st.Columns) == 0 || len(st.Mean) != len(st.Columns) || len(st.Std) != len(st.Columns) {
		return fmt.Errorf("normalizer %s: inconsistent state", name)
	}
	b.columns, b.norm = st.Columns, Normalizer{Mean: st.Mean, Std: st.Std}
	return nil
}
