package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"checkout-svc/email"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const processedKeyTTL = 24 * time.Hour

// Realtime is the seller-facing push channel.
type Realtime interface {
	Push(ctx context.Context, sellerID int, payload []byte) error
}

// Consumer reads the fan-out topics and turns domain events into seller
// pushes and buyer emails. The broker is at-least-once, so each event id is
// applied at most once via a Redis marker.
type Consumer struct {
	reader   *kafka.Reader
	rdb      *redis.Client
	realtime Realtime
	mailer   email.Sender
	logger   *zap.Logger
}

func NewConsumer(rdb *redis.Client, realtime Realtime, mailer email.Sender, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{getEnv("KAFKA_BROKER", "localhost:9092")},
		GroupID: getEnv("KAFKA_GROUP_ID", "checkout-notifier"),
		GroupTopics: []string{
			string(models.EventOrderCreated),
			string(models.EventOrderCancelled),
			string(models.EventInventoryUpdated),
			string(models.EventInventoryLow),
		},
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return &Consumer{reader: reader, rdb: rdb, realtime: realtime, mailer: mailer, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Notifier consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}
		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error("Failed to handle notification event",
				zap.String("topic", msg.Topic), zap.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit offset", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	switch models.EventKind(msg.Topic) {
	case models.EventOrderCreated:
		var evt models.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("failed to unmarshal order event: %w", err)
		}
		if c.alreadyProcessed(ctx, evt.ID) {
			return nil
		}
		return c.handleOrderCreated(ctx, evt, msg.Value)

	case models.EventOrderCancelled:
		var evt models.OrderCancelledEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("failed to unmarshal cancellation event: %w", err)
		}
		if c.alreadyProcessed(ctx, evt.ID) {
			return nil
		}
		return c.handleOrderCancelled(ctx, evt, msg.Value)

	case models.EventInventoryUpdated:
		var evt models.InventoryUpdatedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("failed to unmarshal inventory event: %w", err)
		}
		if c.alreadyProcessed(ctx, evt.ID) {
			return nil
		}
		middleware.RecordNotificationSent(string(models.EventInventoryUpdated))
		return c.realtime.Push(ctx, evt.SellerID, msg.Value)

	case models.EventInventoryLow:
		var evt models.InventoryLowEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("failed to unmarshal low-stock event: %w", err)
		}
		if c.alreadyProcessed(ctx, evt.ID) {
			return nil
		}
		middleware.RecordNotificationSent(string(models.EventInventoryLow))
		c.logger.Warn("Low stock",
			zap.Int("product_id", evt.ProductID),
			zap.Int("stock", evt.Stock),
			zap.Int("threshold", evt.Threshold),
		)
		return c.realtime.Push(ctx, evt.SellerID, msg.Value)

	default:
		c.logger.Debug("Unknown topic skipped", zap.String("topic", msg.Topic))
		return nil
	}
}

func (c *Consumer) handleOrderCreated(ctx context.Context, evt models.OrderCreatedEvent, payload []byte) error {
	middleware.RecordNotificationSent(string(models.EventOrderCreated))

	for _, sellerID := range evt.SellerIDs {
		if err := c.realtime.Push(ctx, sellerID, payload); err != nil {
			c.logger.Error("Failed to push order notification",
				zap.Int("seller_id", sellerID), zap.Error(err))
		}
	}

	if !evt.Guest {
		body := fmt.Sprintf("Your order %s has been placed successfully. Total: %.2f", evt.OrderReference, evt.Total)
		to := fmt.Sprintf("user_%d@example.com", evt.UserID)
		if err := c.mailer.Send(ctx, to, "Order Confirmation", body); err != nil {
			c.logger.Error("Failed to send order email", zap.Error(err))
		}
	}
	return nil
}

func (c *Consumer) handleOrderCancelled(ctx context.Context, evt models.OrderCancelledEvent, payload []byte) error {
	middleware.RecordNotificationSent(string(models.EventOrderCancelled))

	for _, sellerID := range evt.SellerIDs {
		if err := c.realtime.Push(ctx, sellerID, payload); err != nil {
			c.logger.Error("Failed to push cancellation notification",
				zap.Int("seller_id", sellerID), zap.Error(err))
		}
	}

	if !evt.Guest {
		body := fmt.Sprintf("Your order %s was cancelled: %s", evt.OrderReference, evt.Reason)
		to := fmt.Sprintf("user_%d@example.com", evt.UserID)
		if err := c.mailer.Send(ctx, to, "Order Cancelled", body); err != nil {
			c.logger.Error("Failed to send cancellation email", zap.Error(err))
		}
	}
	return nil
}

// alreadyProcessed marks the event id and reports whether an earlier delivery
// already handled it.
func (c *Consumer) alreadyProcessed(ctx context.Context, eventID string) bool {
	if c.rdb == nil || eventID == "" {
		return false
	}
	key := "notifier:processed:" + eventID
	set, err := c.rdb.SetNX(ctx, key, 1, processedKeyTTL).Result()
	if err != nil {
		// On marker failure keep going; consumers tolerate redelivery.
		return false
	}
	return !set
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
