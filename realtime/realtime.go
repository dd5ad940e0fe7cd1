package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pushTimeout = 2 * time.Second

// Channel delivers best-effort real-time notifications to seller dashboards
// over Redis pub/sub, one channel per seller.
type Channel struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewChannel(rdb *redis.Client, logger *zap.Logger) *Channel {
	return &Channel{rdb: rdb, logger: logger}
}

func channelName(sellerID int) string {
	return fmt.Sprintf("seller:%d:events", sellerID)
}

func (c *Channel) Push(ctx context.Context, sellerID int, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := c.rdb.Publish(ctx, channelName(sellerID), payload).Err(); err != nil {
		return fmt.Errorf("failed to push to seller %d: %w", sellerID, err)
	}
	c.logger.Debug("Realtime push delivered", zap.Int("seller_id", sellerID))
	return nil
}
