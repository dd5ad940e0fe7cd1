package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-svc/models"
)

var ErrCouponNotFound = errors.New("cart: coupon not found")

func loadCoupon(ctx context.Context, db *sql.DB, code string) (*models.Coupon, error) {
	var c models.Coupon
	var startsAt, endsAt sql.NullTime
	var gatewayID sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT code, discount_type, value, min_order_amount, max_discount,
		        starts_at, ends_at, active, usage_limit, per_user_limit, used_count,
		        gateway_discount_id, created_at, updated_at
		 FROM coupons WHERE code = $1`, code,
	).Scan(&c.Code, &c.DiscountType, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&startsAt, &endsAt, &c.Active, &c.UsageLimit, &c.PerUserLimit, &c.UsedCount,
		&gatewayID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if startsAt.Valid {
		c.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}
	c.GatewayDiscountID = gatewayID.String
	return &c, nil
}

// CouponStore reads and updates coupon rows for validation, checkout and
// webhook accounting.
type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

func (s *CouponStore) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return loadCoupon(ctx, s.db, code)
}

// CountUserUsage counts past non-cancelled orders by this user that redeemed
// the coupon.
func (s *CouponStore) CountUserUsage(ctx context.Context, userID int, code string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND coupon_code = $2 AND status <> 'cancelled'`,
		userID, code,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count coupon usage: %w", err)
	}
	return n, nil
}

// SetGatewayDiscountID remembers the gateway-side discount object so repeated
// checkouts reuse it instead of creating duplicates upstream.
func (s *CouponStore) SetGatewayDiscountID(ctx context.Context, code, discountID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET gateway_discount_id = $1, updated_at = NOW() WHERE code = $2`,
		discountID, code)
	if err != nil {
		return fmt.Errorf("failed to store gateway discount id: %w", err)
	}
	return nil
}

// IncrementUsage bumps the global redemption counter once per paid order.
func (s *CouponStore) IncrementUsage(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = NOW() WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	return nil
}
