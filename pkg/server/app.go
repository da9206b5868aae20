package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FXForecast/internal/domain/models"
	"FXForecast/internal/domain/repository"
	"FXForecast/internal/scheduler"
	"FXForecast/internal/usecase"
	"FXForecast/pkg/cache"
	pkgch "FXForecast/pkg/clickhouse"
	"FXForecast/pkg/config"
	xhttp "FXForecast/pkg/http"
	pkgkafka "FXForecast/pkg/kafka"
	applogger "FXForecast/pkg/logger"
)

// Components are the wired services the App starts and stops. Consumer is nil
// when Kafka is disabled.
type Components struct {
	HTTP         *xhttp.Server
	Consumer     *pkgkafka.Consumer
	TrainHandler pkgkafka.MessageHandler
	Scheduler    *scheduler.Scheduler
	Trainer      *usecase.Trainer
	Forecaster   *usecase.Forecaster
	Publisher    repository.EventPublisher
	Cache        cache.Service
	ClickHouse   *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Train runs one training pipeline without starting any long-running service.
func (a *App) Train(ctx context.Context, p usecase.TrainParams) (models.TrainingSummary, error) {
	return a.c.Trainer.Run(ctx, p)
}

// Forecast produces one forecast per configured symbol.
func (a *App) Forecast(ctx context.Context) ([]models.Forecast, error) {
	return a.c.Forecaster.ForecastAll(ctx)
}

// Run starts the services and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := a.log

	if a.c.Consumer != nil && a.c.TrainHandler != nil {
		a.c.Consumer.RegisterHandler(a.c.TrainHandler)
		if err := a.c.Consumer.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		l.Info("kafka consumer started", applogger.String("topic", a.c.TrainHandler.Topic()))
	}

	if a.cfg.Schedule.Enabled && a.c.Scheduler != nil {
		a.c.Scheduler.Start()
	}

	if a.cfg.Server.Enabled && a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			l.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	l.Info("fxforecast running",
		applogger.String("env", a.cfg.Environment),
		applogger.Strings("symbols", a.cfg.Symbols),
		applogger.String("timeframe", a.cfg.Data.Timeframe))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.Close(ctx)
}

// Close stops the services in reverse start order and releases clients.
func (a *App) Close(ctx context.Context) error {
	l := a.log
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.cfg.Server.Enabled && a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Scheduler != nil {
		if err := a.c.Scheduler.Stop(shutdownCtx); err != nil {
			l.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Publisher != nil {
		if err := a.c.Publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
