package models

import "time"

type EventKind string

const (
	EventOrderCreated     EventKind = "order.created"
	EventOrderCancelled   EventKind = "order.cancelled"
	EventInventoryUpdated EventKind = "inventory.updated"
	EventInventoryLow     EventKind = "inventory.low"
)

// DomainEvent is the closed set of events the fan-out publishes. Kind names
// the broker topic; Sellers names the real-time channels used when the broker
// is unreachable.
type DomainEvent interface {
	Kind() EventKind
	EventID() string
	Sellers() []int
}

type OrderCreatedEvent struct {
	ID             string      `json:"event_id"`
	EventType      EventKind   `json:"event_type"`
	OrderReference string      `json:"order_reference"`
	UserID         int         `json:"user_id,omitempty"`
	Guest          bool        `json:"guest"`
	Total          float64     `json:"total"`
	SellerIDs      []int       `json:"seller_ids"`
	Items          []OrderItem `json:"items"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

func (e OrderCreatedEvent) Kind() EventKind { return EventOrderCreated }
func (e OrderCreatedEvent) EventID() string { return e.ID }
func (e OrderCreatedEvent) Sellers() []int  { return e.SellerIDs }

type OrderCancelledEvent struct {
	ID             string    `json:"event_id"`
	EventType      EventKind `json:"event_type"`
	OrderReference string    `json:"order_reference"`
	UserID         int       `json:"user_id,omitempty"`
	Guest          bool      `json:"guest"`
	Reason         string    `json:"reason"`
	SellerIDs      []int     `json:"seller_ids"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (e OrderCancelledEvent) Kind() EventKind { return EventOrderCancelled }
func (e OrderCancelledEvent) EventID() string { return e.ID }
func (e OrderCancelledEvent) Sellers() []int  { return e.SellerIDs }

type InventoryUpdatedEvent struct {
	ID             string          `json:"event_id"`
	EventType      EventKind       `json:"event_type"`
	ProductID      int             `json:"product_id"`
	VariantID      int             `json:"variant_id,omitempty"`
	SellerID       int             `json:"seller_id"`
	Delta          int             `json:"delta"`
	Stock          int             `json:"stock"`
	Reason         InventoryReason `json:"reason"`
	OrderReference string          `json:"order_reference,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (e InventoryUpdatedEvent) Kind() EventKind { return EventInventoryUpdated }
func (e InventoryUpdatedEvent) EventID() string { return e.ID }
func (e InventoryUpdatedEvent) Sellers() []int  { return []int{e.SellerID} }

type InventoryLowEvent struct {
	ID         string    `json:"event_id"`
	EventType  EventKind `json:"event_type"`
	ProductID  int       `json:"product_id"`
	SellerID   int       `json:"seller_id"`
	Stock      int       `json:"stock"`
	Threshold  int       `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e InventoryLowEvent) Kind() EventKind { return EventInventoryLow }
func (e InventoryLowEvent) EventID() string { return e.ID }
func (e InventoryLowEvent) Sellers() []int  { return []int{e.SellerID} }
