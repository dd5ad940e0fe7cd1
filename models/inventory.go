package models

import "time"

type InventoryReason string

const (
	InventoryReasonSale       InventoryReason = "sale"
	InventoryReasonAdjustment InventoryReason = "adjustment"
	InventoryReasonRestock    InventoryReason = "restock"
)

// InventoryHistory rows are append-only; they are the audit trail reconciling
// current stock to all past movements and the idempotency record for
// order-triggered decrements.
type InventoryHistory struct {
	ID             int             `json:"id"`
	ProductID      int             `json:"product_id"`
	VariantID      int             `json:"variant_id,omitempty"`
	Delta          int             `json:"delta"`
	Reason         InventoryReason `json:"reason"`
	OrderReference string          `json:"order_reference,omitempty"`
	Actor          string          `json:"actor"`
	CreatedAt      time.Time       `json:"created_at"`
}

type DecrementRequest struct {
	ProductID      int    `json:"product_id"`
	VariantID      int    `json:"variant_id,omitempty"`
	Quantity       int    `json:"quantity"`
	OrderReference string `json:"order_reference"`
}

type DecrementResult struct {
	ProductID int    `json:"product_id"`
	VariantID int    `json:"variant_id,omitempty"`
	SellerID  int    `json:"seller_id,omitempty"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

type AdjustInventoryRequest struct {
	Quantity int    `json:"quantity" binding:"min=0"`
	Reason   string `json:"reason" binding:"required"`
}
