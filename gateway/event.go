package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSessionCompleted EventType = "checkout.session.completed"
	EventSessionExpired   EventType = "checkout.session.expired"
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
)

// Event is a verified, parsed webhook delivery. OrderReference comes from the
// metadata stamped onto the session at creation time and is the correlation
// key for all processing.
type Event struct {
	ID             string
	Type           EventType
	SessionID      string
	OrderReference string
	FailureReason  string
	ExpiresAt      *time.Time
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderReference string `json:"order_reference"`
			} `json:"metadata"`
			FailureReason string `json:"failure_reason"`
			ExpiresAt     int64  `json:"expires_at"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook payload after its signature has been verified
// against the exact same raw bytes.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("event missing id or type")
	}

	evt := &Event{
		ID:             raw.ID,
		Type:           EventType(raw.Type),
		SessionID:      raw.Data.Object.ID,
		OrderReference: raw.Data.Object.Metadata.OrderReference,
		FailureReason:  raw.Data.Object.FailureReason,
	}
	if raw.Data.Object.ExpiresAt > 0 {
		t := time.Unix(raw.Data.Object.ExpiresAt, 0).UTC()
		evt.ExpiresAt = &t
	}
	return evt, nil
}
