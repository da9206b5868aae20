package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"FXForecast/internal/domain/models"
	"FXForecast/pkg/cache"
	"FXForecast/pkg/logger"
)

// ModelStatus is the latest known state of one symbol's models.
type ModelStatus struct {
	Symbol       string                  `json:"symbol"`
	State        string                  `json:"state"`
	LastTraining *models.TrainingSummary `json:"last_training,omitempty"`
	LastForecast *models.Forecast        `json:"last_forecast,omitempty"`
	LastError    string                  `json:"last_error,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Registry keeps per-symbol training and forecast outcomes in memory and,
// when a store is set, mirrors each update to it so other processes and
// restarts see the same status.
type Registry struct {
	mu     sync.RWMutex
	status map[string]*ModelStatus
	store  cache.Service
	log    *logger.Logger
}

func NewRegistry() *Registry {
	return &Registry{status: make(map[string]*ModelStatus), log: logger.Nop()}
}

// SetLogger sets the logger used for persistence failures.
func (r *Registry) SetLogger(log *logger.Logger) {
	if log != nil {
		r.log = log
	}
}

// SetStore enables persistence of status entries.
func (r *Registry) SetStore(c cache.Service) { r.store = c }

func statusKey(symbol string) string { return cache.Key("status", symbol) }

// Restore loads persisted entries for symbols. Symbols without one are skipped.
func (r *Registry) Restore(ctx context.Context, symbols []string) error {
	if r.store == nil {
		return nil
	}
	for _, sym := range symbols {
		st, err := cache.GetJSON[ModelStatus](ctx, r.store, statusKey(sym))
		if errors.Is(err, cache.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return fmt.Errorf("restore status %s: %w", sym, err)
		}
		r.mu.Lock()
		r.status[sym] = &st
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) persist(st ModelStatus) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// the in-memory entry stays authoritative
	if err := cache.SetJSON(ctx, r.store, statusKey(st.Symbol), st, 0); err != nil {
		r.log.Warn("persist model status", logger.String("symbol", st.Symbol), logger.Error(err))
	}
}

func (r *Registry) entry(symbol string) *ModelStatus {
	st, ok := r.status[symbol]
	if !ok {
		st = &ModelStatus{Symbol: symbol, State: models.Untrained.String()}
		r.status[symbol] = st
	}
	st.UpdatedAt = time.Now().UTC()
	return st
}

func (r *Registry) RecordTraining(s models.TrainingSummary) {
	r.update(s.Symbol, func(st *ModelStatus) {
		st.State = models.Trained.String()
		st.LastTraining = &s
		st.LastError = ""
	})
}

func (r *Registry) RecordForecast(f models.Forecast) {
	r.update(f.Symbol, func(st *ModelStatus) {
		st.State = models.Trained.String()
		st.LastForecast = &f
		st.LastError = ""
	})
}

// RecordFailure keeps the last error of an operation for a symbol.
func (r *Registry) RecordFailure(symbol, op string, err error) {
	r.update(symbol, func(st *ModelStatus) { st.LastError = op + ": " + err.Error() })
}

func (r *Registry) update(symbol string, fn func(*ModelStatus)) {
	r.mu.Lock()
	st := r.entry(symbol)
	fn(st)
	snapshot := *st
	r.mu.Unlock()
	r.persist(snapshot)
}

// Status returns a copy of the status of symbol.
func (r *Registry) Status(symbol string) (ModelStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[symbol]
	if !ok {
		return ModelStatus{}, false
	}
	return *st, true
}

// All returns every known status ordered by symbol.
func (r *Registry) All() []ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b ModelStatus) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}
