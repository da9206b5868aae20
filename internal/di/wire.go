//go:build wireinject
// +build wireinject

package di

import (
	"FXForecast/internal/usecase"
	"FXForecast/pkg/config"
	"FXForecast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideBarStore,
		ProvidePredictionSink,
		ProvideArtifactStore,
		ProvideEventPublisher,

		// Use cases
		ProvideSettings,
		ProvideModelFactory,
		ProvideRegistry,
		usecase.NewForecaster,
		ProvideTrainer,
		ProvideTrainRequestHandler,
		ProvideScheduler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
