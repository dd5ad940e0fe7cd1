package events

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Producer is the subset of sarama.SyncProducer the fan-out needs; tests
// substitute a mock.
type Producer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
}

// Notifier is the direct real-time fallback channel.
type Notifier interface {
	Push(ctx context.Context, sellerID int, payload []byte) error
}

func InitProducer(logger *zap.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = defaultPublishTimeout

	brokers := []string{getEnv("KAFKA_BROKER", "localhost:9092")}

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized")
	return producer, nil
}

// Fanout publishes domain events to the broker topic named by the event kind.
// When the broker is unreachable it falls back to a direct real-time push per
// affected seller, so a dashboard still sees the change during an outage. The
// fallback is inline and best effort; state itself is never lost, only the
// notification of it can be.
type Fanout struct {
	producer Producer
	realtime Notifier
	logger   *zap.Logger
}

func NewFanout(producer Producer, realtime Notifier, logger *zap.Logger) *Fanout {
	return &Fanout{producer: producer, realtime: realtime, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, event models.DomainEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("Failed to marshal domain event",
			zap.String("kind", string(event.Kind())),
			zap.Error(err),
		)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: string(event.Kind()),
		Key:   sarama.StringEncoder(event.EventID()),
		Value: sarama.ByteEncoder(payload),
	}

	// Propagate trace context through the broker.
	carrier := make(HeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = []sarama.RecordHeader(carrier)

	partition, offset, err := f.producer.SendMessage(msg)
	if err == nil {
		f.logger.Info("Event published",
			zap.String("kind", string(event.Kind())),
			zap.String("event_id", event.EventID()),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset),
		)
		return
	}

	f.logger.Warn("Broker publish failed, falling back to realtime channel",
		zap.String("kind", string(event.Kind())),
		zap.String("event_id", event.EventID()),
		zap.Error(err),
	)
	middleware.RecordFanoutFallback(string(event.Kind()))

	for _, sellerID := range event.Sellers() {
		if pushErr := f.realtime.Push(ctx, sellerID, payload); pushErr != nil {
			// Broker and realtime both down: the notification is accepted lost.
			f.logger.Error("Fallback delivery failed",
				zap.String("kind", string(event.Kind())),
				zap.Int("seller_id", sellerID),
				zap.Error(pushErr),
			)
		}
	}
}

// PublishAll fans out a batch in order.
func (f *Fanout) PublishAll(ctx context.Context, events []models.DomainEvent) {
	for _, e := range events {
		f.Publish(ctx, e)
	}
}
