package models

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type VendorOrderStatus string

const (
	VendorOrderStatusPending               VendorOrderStatus = "pending"
	VendorOrderStatusPaid                  VendorOrderStatus = "paid"
	VendorOrderStatusCancelled             VendorOrderStatus = "cancelled"
	VendorOrderStatusPendingReconciliation VendorOrderStatus = "pending_reconciliation"
)

// Order is immutable once paid. Reference is the idempotency key every
// downstream step (webhook lookup, inventory decrement, fan-out) correlates on.
type Order struct {
	ID               int           `json:"id"`
	Reference        string        `json:"reference"`
	UserID           int           `json:"user_id,omitempty"`
	Guest            bool          `json:"guest"`
	Status           OrderStatus   `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	Subtotal         float64       `json:"subtotal"`
	Discount         float64       `json:"discount"`
	Tax              float64       `json:"tax"`
	Shipping         float64       `json:"shipping"`
	Total            float64       `json:"total"`
	CouponCode       string        `json:"coupon_code,omitempty"`
	GatewaySessionID string        `json:"gateway_session_id,omitempty"`
	SessionExpiresAt *time.Time    `json:"session_expires_at,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Items            []OrderItem   `json:"items,omitempty"`
	VendorOrders     []VendorOrder `json:"vendor_orders,omitempty"`
}

// OrderItem snapshots name/price/quantity/seller at order time so historical
// orders stay stable when the catalog changes.
type OrderItem struct {
	ID        int     `json:"id"`
	OrderID   int     `json:"order_id"`
	ProductID int     `json:"product_id"`
	VariantID int     `json:"variant_id,omitempty"`
	SellerID  int     `json:"seller_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

func (i OrderItem) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// VendorOrder is one seller's slice of an Order. Its status is independent so
// one seller's fulfillment never couples to another's.
type VendorOrder struct {
	ID       int               `json:"id"`
	OrderID  int               `json:"order_id"`
	SellerID int               `json:"seller_id"`
	Total    float64           `json:"total"`
	Status   VendorOrderStatus `json:"status"`
}

type CreateCheckoutRequest struct {
	SuccessURL string `json:"success_url" binding:"required,url"`
	CancelURL  string `json:"cancel_url" binding:"required,url"`
}

type CheckoutSessionResult struct {
	SessionID      string `json:"session_id"`
	OrderReference string `json:"order_reference"`
	URL            string `json:"url"`
}

type CheckoutStatusResult struct {
	Status         string        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	OrderReference string        `json:"order_reference"`
	OrderStatus    OrderStatus   `json:"order_status"`
}
