package events

import (
	"os"
	"time"

	"github.com/IBM/sarama"
)

const defaultPublishTimeout = 5 * time.Second

// HeaderCarrier implements the otel TextMapCarrier interface over Kafka
// record headers, for the producer side.
type HeaderCarrier []sarama.RecordHeader

func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *HeaderCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
