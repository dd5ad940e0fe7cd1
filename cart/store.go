package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-svc/catalog"
	"checkout-svc/models"

	"go.uber.org/zap"
)

var (
	ErrCartNotFound    = errors.New("cart: not found")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrAlreadyChecked  = errors.New("cart: already checked out")
	ErrProductInactive = errors.New("cart: product not available")
)

const anonymousCartTTL = 7 * 24 * time.Hour

// Store owns cart persistence and lifecycle: lazy creation on first add,
// conversion when an anonymous session authenticates, consumption at
// successful checkout.
type Store struct {
	db      *sql.DB
	catalog *catalog.Store
	logger  *zap.Logger
}

func NewStore(db *sql.DB, cat *catalog.Store, logger *zap.Logger) *Store {
	return &Store{db: db, catalog: cat, logger: logger}
}

func scanCart(row *sql.Row) (*models.Cart, error) {
	var c models.Cart
	var userID sql.NullInt64
	var sessionID, couponCode, orderRef sql.NullString
	var expiresAt sql.NullTime
	err := row.Scan(&c.ID, &userID, &sessionID, &couponCode,
		&c.Subtotal, &c.Discount, &c.Tax, &c.Shipping, &c.Total,
		&c.CheckedOut, &orderRef, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to scan cart: %w", err)
	}
	c.UserID = int(userID.Int64)
	c.SessionID = sessionID.String
	c.CouponCode = couponCode.String
	c.OrderReference = orderRef.String
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	return &c, nil
}

const cartColumns = `id, user_id, session_id, coupon_code, subtotal, discount, tax, shipping, total,
	checked_out, order_reference, expires_at, created_at, updated_at`

// GetOrCreate returns the owner's single open cart, creating it lazily.
func (s *Store) GetOrCreate(ctx context.Context, actor models.Actor) (*models.Cart, error) {
	var row *sql.Row
	if actor.Guest {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts
			 WHERE session_id = $1 AND NOT checked_out AND (expires_at IS NULL OR expires_at > NOW())
			 ORDER BY id DESC LIMIT 1`,
			actor.SessionID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM carts
			 WHERE user_id = $1 AND NOT checked_out
			 ORDER BY id DESC LIMIT 1`,
			actor.UserID)
	}

	c, err := scanCart(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	if actor.Guest {
		expires := time.Now().Add(anonymousCartTTL)
		row = s.db.QueryRowContext(ctx,
			`INSERT INTO carts (session_id, expires_at) VALUES ($1, $2) RETURNING `+cartColumns,
			actor.SessionID, expires)
	} else {
		row = s.db.QueryRowContext(ctx,
			`INSERT INTO carts (user_id) VALUES ($1) RETURNING `+cartColumns,
			actor.UserID)
	}
	return scanCart(row)
}

// GetWithItems loads a cart and its lines.
func (s *Store) GetWithItems(ctx context.Context, cartID int) (*models.Cart, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)
	c, err := scanCart(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cart_id, product_id, COALESCE(variant_id, 0), seller_id, quantity, unit_price, created_at
		 FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.VariantID,
			&it.SellerID, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// AddItem captures the unit price at add time; merging into an existing line
// when the same product/variant is added twice.
func (s *Store) AddItem(ctx context.Context, actor models.Actor, req models.AddCartItemRequest) (*models.Cart, error) {
	entry, err := s.catalog.Get(ctx, req.ProductID, req.VariantID)
	if err != nil {
		return nil, err
	}
	if !entry.Active {
		return nil, ErrProductInactive
	}

	c, err := s.GetOrCreate(ctx, actor)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = quantity + $1
		 WHERE cart_id = $2 AND product_id = $3 AND COALESCE(variant_id, 0) = $4`,
		req.Quantity, c.ID, req.ProductID, req.VariantID)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var variantID interface{}
		if req.VariantID > 0 {
			variantID = req.VariantID
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, variant_id, seller_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, req.ProductID, variantID, entry.SellerID, req.Quantity, entry.Price)
		if err != nil {
			return nil, fmt.Errorf("failed to insert cart item: %w", err)
		}
	}

	if err := s.RecomputeTotals(ctx, c.ID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, c.ID)
}

func (s *Store) UpdateItemQuantity(ctx context.Context, cartID, itemID, quantity int) (*models.Cart, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`,
		quantity, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to update quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrItemNotFound
	}
	if err := s.RecomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, cartID)
}

func (s *Store) RemoveItem(ctx context.Context, cartID, itemID int) (*models.Cart, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrItemNotFound
	}
	if err := s.RecomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, cartID)
}

func (s *Store) ApplyCoupon(ctx context.Context, cartID int, code string) (*models.Cart, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE carts SET coupon_code = $1, updated_at = NOW() WHERE id = $2`, code, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to apply coupon: %w", err)
	}
	if err := s.RecomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, cartID)
}

func (s *Store) RemoveCoupon(ctx context.Context, cartID int) (*models.Cart, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE carts SET coupon_code = NULL, updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove coupon: %w", err)
	}
	if err := s.RecomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, cartID)
}

// RecomputeTotals re-derives the denormalized money columns from the lines and
// coupon, holding the invariant total = max(0, subtotal - discount + tax + shipping).
func (s *Store) RecomputeTotals(ctx context.Context, cartID int) error {
	var subtotal, tax, shipping float64
	var couponCode sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT SUM(quantity * unit_price) FROM cart_items WHERE cart_id = c.id), 0),
		        c.tax, c.shipping, c.coupon_code
		 FROM carts c WHERE c.id = $1`, cartID,
	).Scan(&subtotal, &tax, &shipping, &couponCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartNotFound
		}
		return fmt.Errorf("failed to read cart totals: %w", err)
	}

	var discount float64
	if couponCode.Valid && couponCode.String != "" {
		coupon, err := loadCoupon(ctx, s.db, couponCode.String)
		if err == nil {
			discount = coupon.DiscountFor(subtotal)
		} else if !errors.Is(err, ErrCouponNotFound) {
			return err
		}
	}

	total := subtotal - discount + tax + shipping
	if total < 0 {
		total = 0
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE carts SET subtotal = $1, discount = $2, total = $3, updated_at = NOW() WHERE id = $4`,
		subtotal, discount, total, cartID)
	if err != nil {
		return fmt.Errorf("failed to store cart totals: %w", err)
	}
	return nil
}

// Convert reassigns an anonymous cart to a freshly authenticated user,
// merging into the user's existing open cart when one exists.
func (s *Store) Convert(ctx context.Context, sessionID string, userID int) (*models.Cart, error) {
	anon, err := s.GetOrCreate(ctx, models.Actor{Guest: true, SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1 AND NOT checked_out ORDER BY id DESC LIMIT 1`,
		userID)
	existing, err := scanCart(row)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	if existing == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE carts SET user_id = $1, session_id = NULL, expires_at = NULL, updated_at = NOW() WHERE id = $2`,
			userID, anon.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to convert cart: %w", err)
		}
		return s.GetWithItems(ctx, anon.ID)
	}

	// Merge the anonymous lines into the user's cart and drop the anonymous one.
	_, err = s.db.ExecContext(ctx,
		`UPDATE cart_items SET cart_id = $1 WHERE cart_id = $2`, existing.ID, anon.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to merge cart items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, anon.ID); err != nil {
		return nil, fmt.Errorf("failed to drop anonymous cart: %w", err)
	}
	if err := s.RecomputeTotals(ctx, existing.ID); err != nil {
		return nil, err
	}
	return s.GetWithItems(ctx, existing.ID)
}

// LinkOrder records the forward Cart -> Order reference at checkout-session
// creation time; the webhook processor later finds the cart through the
// indexed reverse lookup.
func (s *Store) LinkOrder(ctx context.Context, cartID int, orderReference string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE carts SET order_reference = $1, updated_at = NOW() WHERE id = $2`,
		orderReference, cartID)
	if err != nil {
		return fmt.Errorf("failed to link order: %w", err)
	}
	return nil
}

// ConsumeByOrderReference clears the cart that produced an order: detaches its
// lines, zeroes totals and marks it checked out. Idempotent; a second call for
// the same reference finds nothing left to consume.
func (s *Store) ConsumeByOrderReference(ctx context.Context, orderReference string) error {
	var cartID int
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE order_reference = $1 AND NOT checked_out`, orderReference,
	).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to find cart for order %s: %w", orderReference, err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE carts SET checked_out = TRUE, coupon_code = NULL,
		 subtotal = 0, discount = 0, total = 0, updated_at = NOW()
		 WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("failed to consume cart: %w", err)
	}
	s.logger.Info("Cart consumed", zap.Int("cart_id", cartID), zap.String("order_reference", orderReference))
	return nil
}
