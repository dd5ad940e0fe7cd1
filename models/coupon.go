package models

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Coupon struct {
	Code              string       `json:"code"`
	DiscountType      DiscountType `json:"discount_type"`
	Value             float64      `json:"value"`
	MinOrderAmount    float64      `json:"min_order_amount"`
	MaxDiscount       float64      `json:"max_discount"` // 0 means uncapped
	StartsAt          *time.Time   `json:"starts_at,omitempty"`
	EndsAt            *time.Time   `json:"ends_at,omitempty"`
	Active            bool         `json:"active"`
	UsageLimit        int          `json:"usage_limit"`    // 0 means unlimited
	PerUserLimit      int          `json:"per_user_limit"` // 0 means unlimited
	UsedCount         int          `json:"used_count"`
	GatewayDiscountID string       `json:"gateway_discount_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// DiscountFor computes the discount this coupon yields on a subtotal,
// applying the cap for percentage coupons and never exceeding the subtotal.
func (c *Coupon) DiscountFor(subtotal float64) float64 {
	var d float64
	switch c.DiscountType {
	case DiscountTypePercentage:
		d = subtotal * c.Value / 100
		if c.MaxDiscount > 0 && d > c.MaxDiscount {
			d = c.MaxDiscount
		}
	case DiscountTypeFixed:
		d = c.Value
	}
	if d > subtotal {
		d = subtotal
	}
	return d
}
