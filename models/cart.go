package models

import "time"

// Cart is the mutable pre-checkout collection. Exactly one non-expired cart
// exists per owner; anonymous carts expire, user carts do not.
type Cart struct {
	ID             int        `json:"id"`
	UserID         int        `json:"user_id,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	CouponCode     string     `json:"coupon_code,omitempty"`
	Subtotal       float64    `json:"subtotal"`
	Discount       float64    `json:"discount"`
	Tax            float64    `json:"tax"`
	Shipping       float64    `json:"shipping"`
	Total          float64    `json:"total"`
	CheckedOut     bool       `json:"checked_out"`
	OrderReference string     `json:"order_reference,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []CartItem `json:"items"`
}

type CartItem struct {
	ID        int       `json:"id"`
	CartID    int       `json:"cart_id"`
	ProductID int       `json:"product_id"`
	VariantID int       `json:"variant_id,omitempty"`
	SellerID  int       `json:"seller_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"` // captured at add time
	CreatedAt time.Time `json:"created_at"`
}

func (i CartItem) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// Actor identifies the caller of a checkout operation: a registered user or
// an anonymous session.
type Actor struct {
	UserID    int
	SessionID string
	Guest     bool
}

type AddCartItemRequest struct {
	ProductID int `json:"product_id" binding:"required"`
	VariantID int `json:"variant_id"`
	Quantity  int `json:"quantity" binding:"required,gt=0"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}
