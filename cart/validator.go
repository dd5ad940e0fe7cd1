package cart

import (
	"context"
	"errors"
	"time"

	"checkout-svc/catalog"
	"checkout-svc/models"

	"go.uber.org/zap"
)

type ValidationReason string

const (
	ReasonCartEmpty               ValidationReason = "CART_EMPTY"
	ReasonItemsUnavailable        ValidationReason = "ITEMS_UNAVAILABLE"
	ReasonCouponInactive          ValidationReason = "COUPON_INACTIVE"
	ReasonCouponNotStarted        ValidationReason = "COUPON_NOT_STARTED"
	ReasonCouponExpired           ValidationReason = "COUPON_EXPIRED"
	ReasonMinimumPurchaseNotMet   ValidationReason = "MINIMUM_PURCHASE_NOT_MET"
	ReasonCouponUsageLimitReached ValidationReason = "COUPON_USAGE_LIMIT_REACHED"
	ReasonUserCouponLimitReached  ValidationReason = "USER_COUPON_LIMIT_REACHED"
)

type LineStatus string

const (
	LineValid             LineStatus = "valid"
	LineInsufficientStock LineStatus = "insufficient_stock"
	LineUnavailable       LineStatus = "unavailable"
)

// LineCheck reports the availability verdict for one cart line so the caller
// can prompt removal of specific lines instead of failing the cart opaquely.
type LineCheck struct {
	ProductID int        `json:"product_id"`
	VariantID int        `json:"variant_id,omitempty"`
	Status    LineStatus `json:"status"`
	Available int        `json:"available"`
}

type ValidationResult struct {
	Valid          bool             `json:"valid"`
	Reason         ValidationReason `json:"reason,omitempty"`
	Lines          []LineCheck      `json:"lines,omitempty"`
	RequiredAmount float64          `json:"required_amount,omitempty"`
}

// Validator re-checks every cart line against the current catalog and
// re-validates an attached coupon. It never mutates anything.
type Validator struct {
	catalog *catalog.Store
	coupons *CouponStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewValidator(cat *catalog.Store, coupons *CouponStore, logger *zap.Logger) *Validator {
	return &Validator{catalog: cat, coupons: coupons, logger: logger, now: time.Now}
}

func (v *Validator) Validate(ctx context.Context, c *models.Cart, actor models.Actor) (*ValidationResult, error) {
	if len(c.Items) == 0 {
		return &ValidationResult{Valid: false, Reason: ReasonCartEmpty}, nil
	}

	var failed []LineCheck
	for _, item := range c.Items {
		check := LineCheck{ProductID: item.ProductID, VariantID: item.VariantID, Status: LineValid}
		entry, err := v.catalog.Get(ctx, item.ProductID, item.VariantID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			check.Status = LineUnavailable
		case err != nil:
			return nil, err
		case !entry.Active:
			check.Status = LineUnavailable
		case entry.Stock < item.Quantity:
			check.Status = LineInsufficientStock
			check.Available = entry.Stock
		default:
			check.Available = entry.Stock
		}
		if check.Status != LineValid {
			failed = append(failed, check)
		}
	}
	if len(failed) > 0 {
		return &ValidationResult{Valid: false, Reason: ReasonItemsUnavailable, Lines: failed}, nil
	}

	if c.CouponCode != "" {
		res, err := v.validateCoupon(ctx, c, actor)
		if err != nil || res != nil {
			return res, err
		}
	}

	return &ValidationResult{Valid: true}, nil
}

func (v *Validator) validateCoupon(ctx context.Context, c *models.Cart, actor models.Actor) (*ValidationResult, error) {
	coupon, err := v.coupons.GetByCode(ctx, c.CouponCode)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return &ValidationResult{Valid: false, Reason: ReasonCouponInactive}, nil
		}
		return nil, err
	}

	now := v.now()
	switch {
	case !coupon.Active:
		return &ValidationResult{Valid: false, Reason: ReasonCouponInactive}, nil
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return &ValidationResult{Valid: false, Reason: ReasonCouponNotStarted}, nil
	case coupon.EndsAt != nil && now.After(*coupon.EndsAt):
		return &ValidationResult{Valid: false, Reason: ReasonCouponExpired}, nil
	}

	// Minimum is checked against the raw subtotal, not the discounted total.
	if coupon.MinOrderAmount > 0 && c.Subtotal < coupon.MinOrderAmount {
		return &ValidationResult{
			Valid:          false,
			Reason:         ReasonMinimumPurchaseNotMet,
			RequiredAmount: coupon.MinOrderAmount,
		}, nil
	}

	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return &ValidationResult{Valid: false, Reason: ReasonCouponUsageLimitReached}, nil
	}

	// Per-user limits only apply to authenticated owners; anonymous sessions
	// cannot be correlated to past orders.
	if coupon.PerUserLimit > 0 && !actor.Guest {
		used, err := v.coupons.CountUserUsage(ctx, actor.UserID, coupon.Code)
		if err != nil {
			return nil, err
		}
		if used >= coupon.PerUserLimit {
			return &ValidationResult{Valid: false, Reason: ReasonUserCouponLimitReached}, nil
		}
	}

	return nil, nil
}
