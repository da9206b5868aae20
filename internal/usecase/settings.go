package usecase

import (
	domrepo "FXForecast/internal/domain/repository"
	"FXForecast/internal/services/ensemble"
	"FXForecast/internal/services/features"
	"FXForecast/internal/services/gbt"
	"FXForecast/internal/services/lstm"
)

// Settings holds the pipeline parameters shared by training and inference.
type Settings struct {
	Symbols        []string
	Timeframe      domrepo.Timeframe
	HistoryBars    int
	Target         string
	Horizon        int
	TrainRatio     float64
	ValRatio       float64
	SequenceLength int
	Flags          features.Flags
	Tune           bool
	CVSplits       int
	VolWindow      int
}

// InferenceBars is the history fetched for one forecast: enough rows to
// warm up the longest rolling window and fill one sequence.
func (s Settings) InferenceBars() int { return s.SequenceLength + 120 }

// Models is one freshly constructed, untrained model set.
type Models struct {
	Sequence *lstm.Model
	Tree     *gbt.Model
	Combiner *ensemble.Combiner
}

// ModelFactory builds an untrained model set from configuration.
type ModelFactory func() Models
