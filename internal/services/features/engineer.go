// Package features derives the engineered signal table from OHLCV bars.
package features

import (
	"fmt"
	"math"
	"sync"
	"time"

	"FXForecast/internal/domain/models"
	"FXForecast/pkg/logger"
)

// Epsilon guards ratios whose denominator can reach zero.
const Epsilon = 1e-10

// Flags selects feature families. All are on by default.
type Flags struct {
	PriceAction bool
	Technical   bool
	Lags        bool
	Rolling     bool
	Calendar    bool
}

// DefaultFlags enables every family.
func DefaultFlags() Flags {
	return Flags{PriceAction: true, Technical: true, Lags: true, Rolling: true, Calendar: true}
}

// Engineer builds feature tables and remembers the generated column list so
// that downstream builders select an identical, order-stable feature set.
type Engineer struct {
	mu      sync.RWMutex
	columns []string
	log     *logger.Logger
}

// NewEngineer creates an Engineer.
func NewEngineer(log *logger.Logger) *Engineer {
	if log == nil {
		log = logger.Nop()
	}
	return &Engineer{log: log}
}

// CreateFeatures returns bars augmented with the selected feature families.
// Rows are never removed or reordered; undefined values are NaN.
// Bars must be in strictly increasing date order with a valid OHLC envelope.
func (e *Engineer) CreateFeatures(bars []models.Bar, target string, flags Flags) (*Table, error) {
	if target == "" {
		target = ColClose
	}
	if err := validateBars(bars); err != nil {
		return nil, err
	}

	start := time.Now()
	t := NewTable(bars)
	if _, err := t.MustColumn(target); err != nil {
		return nil, fmt.Errorf("target column: %w", err)
	}

	if flags.PriceAction {
		addPriceAction(t)
	}
	if flags.Technical {
		addTechnical(t)
	}
	if flags.Lags {
		addLags(t, target)
	}
	if flags.Rolling {
		addRolling(t, target)
	}
	if flags.Calendar && t.hasDates() {
		addCalendar(t)
	}

	generated := t.Columns()[len(baseColumns):]
	e.mu.Lock()
	e.columns = generated
	e.mu.Unlock()

	e.log.Debug("features created",
		logger.Int("rows", t.Len()),
		logger.Int("features", len(generated)),
		logger.String("target", target),
		logger.Duration("duration_ms", time.Since(start)))
	return t, nil
}

// FeatureColumns returns the columns generated by the last CreateFeatures call.
func (e *Engineer) FeatureColumns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.columns...)
}

// SetFeatureColumns restores a recorded column list, e.g. after loading a trained model.
func (e *Engineer) SetFeatureColumns(cols []string) {
	e.mu.Lock()
	e.columns = append([]string(nil), cols...)
	e.mu.Unlock()
}

func validateBars(bars []models.Bar) error {
	for i, b := range bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			return fmt.Errorf("bar %d: missing price", i)
		}
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && !b.Date.IsZero() && !b.Date.After(bars[i-1].Date) {
			return fmt.Errorf("bar %d: date %s not after %s", i,
				b.Date.Format(time.RFC3339), bars[i-1].Date.Format(time.RFC3339))
		}
	}
	return nil
}
