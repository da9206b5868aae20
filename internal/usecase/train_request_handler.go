package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	pkgkafka "FXForecast/pkg/kafka"
	"FXForecast/pkg/logger"
)

// TrainRunner runs one training pipeline.
type TrainRunner interface {
	Run(ctx context.Context, p TrainParams) (models.TrainingSummary, error)
}

// TrainRequestHandler consumes train requests from Kafka and runs the trainer.
type TrainRequestHandler struct {
	topic   string
	trainer TrainRunner
	metrics domrepo.Metrics
	log     *logger.Logger
}

var _ pkgkafka.MessageHandler = (*TrainRequestHandler)(nil)

func NewTrainRequestHandler(topic string, trainer TrainRunner, metrics domrepo.Metrics, log *logger.Logger) *TrainRequestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TrainRequestHandler{topic: topic, trainer: trainer, metrics: metrics, log: log}
}

func (h *TrainRequestHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, from, to}
func (h *TrainRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.TrainRequest
	// malformed requests are dropped
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		h.log.Warn("undecodable train request", logger.Error(err))
		return nil
	}
	p, err := ParseTrainRequest(req)
	if err != nil {
		h.recordError("consumer_request")
		h.log.Warn("invalid train request", logger.Error(err))
		return nil
	}

	start := time.Now()
	_, err = h.trainer.Run(ctx, p)
	if h.metrics != nil {
		h.metrics.RecordLatency("train_request_seconds", time.Since(start).Seconds())
	}
	if errors.Is(err, ErrTrainingInProgress) {
		h.log.Info("train request skipped, run in progress", logger.String("symbol", p.Symbol))
		return nil
	}
	return err
}

func (h *TrainRequestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
