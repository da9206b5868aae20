package repository

import (
	"context"
	"fmt"
	"time"

	"FXForecast/internal/domain/models"
	domrepo "FXForecast/internal/domain/repository"
	pkgkafka "FXForecast/pkg/kafka"
)

// Event types carried in the envelope.
const (
	EventForecast         = "forecast"
	EventTrainingComplete = "training_completed"
)

// Event is the JSON envelope published to Kafka.
type Event struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// KafkaEventPublisher publishes forecast and training events keyed by symbol.
type KafkaEventPublisher struct {
	producer      *pkgkafka.Producer
	forecastTopic string
	trainingTopic string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(p *pkgkafka.Producer, forecastTopic, trainingTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, forecastTopic: forecastTopic, trainingTopic: trainingTopic}
}

func (k *KafkaEventPublisher) PublishForecast(ctx context.Context, f models.Forecast) error {
	ev := Event{Type: EventForecast, Symbol: f.Symbol, Timestamp: f.CreatedAt, Data: f}
	if err := k.producer.Publish(ctx, k.forecastTopic, []byte(f.Symbol), ev); err != nil {
		return fmt.Errorf("publish forecast: %w", err)
	}
	return nil
}

func (k *KafkaEventPublisher) PublishTraining(ctx context.Context, s models.TrainingSummary) error {
	ev := Event{Type: EventTrainingComplete, Symbol: s.Symbol, Timestamp: s.StartedAt.Add(s.Duration), Data: s}
	if err := k.producer.Publish(ctx, k.trainingTopic, []byte(s.Symbol), ev); err != nil {
		return fmt.Errorf("publish training summary: %w", err)
	}
	return nil
}

func (k *KafkaEventPublisher) Close() error { return k.producer.Close() }

// NopEventPublisher drops events when Kafka is disabled.
type NopEventPublisher struct{}

var _ domrepo.EventPublisher = NopEventPublisher{}

func (NopEventPublisher) PublishForecast(context.Context, models.Forecast) error        { return nil }
func (NopEventPublisher) PublishTraining(context.Context, models.TrainingSummary) error { return nil }
func (NopEventPublisher) Close() error                                                  { return nil }
