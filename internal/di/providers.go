package di

import (
	"context"
	"fmt"
	"time"

	"FXForecast/internal/domain/repository"
	"FXForecast/internal/handler/api"
	internalrepo "FXForecast/internal/repository"
	"FXForecast/internal/scheduler"
	"FXForecast/internal/service/ratelimit"
	"FXForecast/internal/services/ensemble"
	"FXForecast/internal/services/features"
	"FXForecast/internal/services/gbt"
	"FXForecast/internal/services/lstm"
	"FXForecast/internal/usecase"
	"FXForecast/pkg/cache"
	pkgch "FXForecast/pkg/clickhouse"
	"FXForecast/pkg/config"
	xhttp "FXForecast/pkg/http"
	pkgkafka "FXForecast/pkg/kafka"
	"FXForecast/pkg/logger"
	"FXForecast/pkg/metrics"
	"FXForecast/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideBarStore creates the OHLCV reader.
func ProvideBarStore(ch *pkgch.Client, log *logger.Logger) repository.BarStore {
	s := internalrepo.NewCHBarStore(ch)
	s.SetLogger(log)
	return s
}

// ProvidePredictionSink creates the forecast history writer.
func ProvidePredictionSink(ch *pkgch.Client, log *logger.Logger) repository.PredictionSink {
	s := internalrepo.NewCHPredictionLog(ch)
	s.SetLogger(log)
	return s
}

// ProvideCache creates the Redis cache when enabled, an in-process cache otherwise.
// It backs training locks and, with the redis backend, model artifacts.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddress(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideArtifactStore selects the artifact backend.
func ProvideArtifactStore(cfg *config.Config, c cache.Service) (repository.ArtifactStore, error) {
	if cfg.Artifacts.Backend == "redis" {
		return internalrepo.NewCacheArtifactStore(c), nil
	}
	return internalrepo.NewFileArtifactStore(cfg.Artifacts.Dir)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes to Kafka, or discards events without a producer.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ForecastTopic, cfg.Kafka.TrainingTopic)
}

// ProvideKafkaConsumer creates the train request consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSettings extracts the pipeline settings.
func ProvideSettings(cfg *config.Config) usecase.Settings {
	return usecase.Settings{
		Symbols:        cfg.Symbols,
		Timeframe:      repository.NormalizeTimeframe(cfg.Data.Timeframe),
		HistoryBars:    cfg.Data.HistoryBars,
		Target:         cfg.Data.TargetColumn,
		Horizon:        cfg.Data.PredictionHorizon,
		TrainRatio:     cfg.Data.TrainRatio,
		ValRatio:       cfg.Data.ValRatio,
		SequenceLength: cfg.Sequence.SequenceLength,
		Flags: features.Flags{
			PriceAction: cfg.Features.PriceAction,
			Technical:   cfg.Features.Technical,
			Lags:        cfg.Features.Lags,
			Rolling:     cfg.Features.Rolling,
			Calendar:    cfg.Features.Calendar,
		},
		Tune:      cfg.Tree.Tune,
		CVSplits:  cfg.Tree.CVSplits,
		VolWindow: cfg.Data.VolWindow,
	}
}

// ProvideModelFactory builds untrained model sets from the sequence, tree and ensemble sections.
func ProvideModelFactory(cfg *config.Config, log *logger.Logger) (usecase.ModelFactory, error) {
	strategy, err := ensemble.ParseStrategy(cfg.Ensemble.Strategy)
	if err != nil {
		return nil, err
	}
	sq, tr, en := cfg.Sequence, cfg.Tree, cfg.Ensemble
	return func() usecase.Models {
		seq := lstm.New(log.With(logger.String("model", "sequence")),
			lstm.WithSequenceLength(sq.SequenceLength),
			lstm.WithUnits(sq.Units...),
			lstm.WithDenseUnits(sq.DenseUnits...),
			lstm.WithDropout(sq.Dropout, sq.DenseDropout),
			lstm.WithLearningRate(sq.LearningRate),
			lstm.WithEpochs(sq.Epochs, sq.BatchSize),
			lstm.WithMCSimulations(sq.MCSimulations),
			lstm.WithSeed(sq.Seed),
			lstm.WithPatience(sq.Patience, sq.LRPatience),
		)
		tree := gbt.New(log.With(logger.String("model", "tree")),
			gbt.WithTrees(tr.NEstimators, tr.MaxDepth, tr.LearningRate),
			gbt.WithSubsample(tr.Subsample, tr.ColSampleByTree),
			gbt.WithTreeMethod(tr.TreeMethod, tr.MaxBins),
			gbt.WithSeed(tr.Seed),
			gbt.WithEarlyStopping(tr.EarlyStoppingRounds),
			gbt.WithConfidenceLevel(tr.ConfidenceLevel),
			gbt.WithExplain(tr.Explain),
			gbt.WithTuning(tr.CVSplits, tr.Workers),
		)
		comb := ensemble.New(seq, tree, log.With(logger.String("model", "ensemble")),
			ensemble.WithWeights(en.SequenceWeight, en.TreeWeight),
			ensemble.WithStrategy(strategy),
			ensemble.WithMetaLearner(en.UseMetaLearner),
		)
		return usecase.Models{Sequence: seq, Tree: tree, Combiner: comb}
	}, nil
}

// ProvideRegistry creates the status registry mirrored to the cache and
// restores the entries of the configured symbols.
func ProvideRegistry(cfg *config.Config, c cache.Service, log *logger.Logger) *usecase.Registry {
	r := usecase.NewRegistry()
	r.SetLogger(log)
	r.SetStore(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Restore(ctx, cfg.Symbols); err != nil {
		log.Warn("restore model status", logger.Error(err))
	}
	return r
}

// ProvideTrainer creates the training pipeline; the cache serves as the per-symbol lock.
func ProvideTrainer(
	settings usecase.Settings,
	bars repository.BarStore,
	store repository.ArtifactStore,
	factory usecase.ModelFactory,
	publisher repository.EventPublisher,
	m repository.Metrics,
	registry *usecase.Registry,
	locks cache.Service,
	forecaster *usecase.Forecaster,
	log *logger.Logger,
) *usecase.Trainer {
	return usecase.NewTrainer(settings, bars, store, factory, publisher, m, registry, locks, forecaster, log)
}

// ProvideTrainRequestHandler consumes the train request topic.
func ProvideTrainRequestHandler(cfg *config.Config, trainer *usecase.Trainer, m repository.Metrics, log *logger.Logger) *usecase.TrainRequestHandler {
	return usecase.NewTrainRequestHandler(cfg.Kafka.TrainRequestTopic, trainer, m, log)
}

// ProvideScheduler registers the cron jobs when scheduling is enabled.
func ProvideScheduler(cfg *config.Config, forecaster *usecase.Forecaster, trainer *usecase.Trainer, log *logger.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(forecaster, trainer, cfg.Symbols, log)
	if !cfg.Schedule.Enabled {
		return s, nil
	}
	if err := s.Register(cfg.Schedule.ForecastCron, cfg.Schedule.RetrainCron); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideHTTPServer creates the ops server with health checks for every backend.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, registry *usecase.Registry, trainer *usecase.Trainer, ch *pkgch.Client, c cache.Service) *xhttp.Server {
	checks := map[string]api.HealthCheck{
		"clickhouse": ch.Health,
		"cache": func(ctx context.Context) error {
			_, err := c.Exists(ctx, "healthz")
			return err
		},
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	h := api.NewModelsEchoHandler(log, registry, trainer, checks)
	h.SetLimiter(ratelimit.New(1, 10*time.Minute))
	return xhttp.NewServer(log, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	handler *usecase.TrainRequestHandler,
	sched *scheduler.Scheduler,
	trainer *usecase.Trainer,
	forecaster *usecase.Forecaster,
	publisher repository.EventPublisher,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, log, server.Components{
		HTTP:         httpServer,
		Consumer:     consumer,
		TrainHandler: handler,
		Scheduler:    sched,
		Trainer:      trainer,
		Forecaster:   forecaster,
		Publisher:    publisher,
		Cache:        c,
		ClickHouse:   ch,
	})
}
