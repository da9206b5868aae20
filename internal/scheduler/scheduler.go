// Package scheduler runs the forecast and retrain pipelines on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/usecase"
	"FXForecast/pkg/logger"
)

// ForecastRunner forecasts every configured symbol.
type ForecastRunner interface {
	ForecastAll(ctx context.Context) ([]models.Forecast, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	forecaster ForecastRunner
	trainer    usecase.TrainRunner
	symbols    []string
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a Scheduler with a seconds field in cron expressions. Overlapping
// runs of the same job are skipped.
func New(forecaster ForecastRunner, trainer usecase.TrainRunner, symbols []string, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		forecaster: forecaster,
		trainer:    trainer,
		symbols:    symbols,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Register adds the forecast and retrain jobs. An empty expression leaves that job out.
func (s *Scheduler) Register(forecastCron, retrainCron string) error {
	if forecastCron != "" {
		if _, err := s.cron.AddFunc(forecastCron, s.RunForecasts); err != nil {
			return fmt.Errorf("register forecast job: %w", err)
		}
	}
	if retrainCron != "" {
		if _, err := s.cron.AddFunc(retrainCron, s.RunRetrain); err != nil {
			return fmt.Errorf("register retrain job: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for scheduled jobs: %w", ctx.Err())
	}
}

// RunForecasts forecasts all symbols now.
func (s *Scheduler) RunForecasts() {
	start := time.Now()
	out, err := s.forecaster.ForecastAll(s.ctx)
	if err != nil {
		s.log.Error("scheduled forecast incomplete", logger.Int("produced", len(out)), logger.Error(err))
		return
	}
	s.log.Info("scheduled forecast finished", logger.Int("produced", len(out)), logger.Duration("duration", time.Since(start)))
}

// RunRetrain retrains every symbol in turn over the default history.
func (s *Scheduler) RunRetrain() {
	for _, sym := range s.symbols {
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.trainer.Run(s.ctx, usecase.TrainParams{Symbol: sym}); err != nil {
			s.log.Error("scheduled retrain failed", logger.String("symbol", sym), logger.Error(err))
		}
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
