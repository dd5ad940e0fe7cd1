package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-svc/models"
)

var ErrOrderNotFound = errors.New("checkout: order not found")

// OrderStore persists orders and drives their status transitions. All
// transitions are conditional updates so concurrent webhook deliveries stay
// idempotent and monotonic.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create writes the order, its item snapshots and the per-seller vendor
// orders in one transaction. Called synchronously before the checkout
// response is returned; the webhook processor anchors on this row.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order tx: %w", err)
	}
	defer tx.Rollback()

	var userID interface{}
	if !order.Guest {
		userID = order.UserID
	}
	var couponCode interface{}
	if order.CouponCode != "" {
		couponCode = order.CouponCode
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (reference, user_id, guest, status, payment_status,
		                     subtotal, discount, tax, shipping, total, coupon_code,
		                     gateway_session_id, session_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at, updated_at`,
		order.Reference, userID, order.Guest, order.Status, order.PaymentStatus,
		order.Subtotal, order.Discount, order.Tax, order.Shipping, order.Total, couponCode,
		order.GatewaySessionID, order.SessionExpiresAt,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		var variantID interface{}
		if item.VariantID > 0 {
			variantID = item.VariantID
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, variant_id, seller_id, name, unit_price, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			order.ID, item.ProductID, variantID, item.SellerID, item.Name, item.UnitPrice, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	for i := range order.VendorOrders {
		vo := &order.VendorOrders[i]
		vo.OrderID = order.ID
		err = tx.QueryRowContext(ctx,
			`INSERT INTO vendor_orders (order_id, seller_id, total, status)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			order.ID, vo.SellerID, vo.Total, vo.Status,
		).Scan(&vo.ID)
		if err != nil {
			return fmt.Errorf("failed to insert vendor order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

const orderColumns = `id, reference, COALESCE(user_id, 0), guest, status, payment_status,
	subtotal, discount, tax, shipping, total, COALESCE(coupon_code, ''),
	COALESCE(gateway_session_id, ''), session_expires_at, paid_at, cancelled_at,
	COALESCE(failure_reason, ''), created_at, updated_at`

func scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	var sessionExpires, paidAt, cancelledAt sql.NullTime
	err := row.Scan(&o.ID, &o.Reference, &o.UserID, &o.Guest, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Shipping, &o.Total, &o.CouponCode,
		&o.GatewaySessionID, &sessionExpires, &paidAt, &cancelledAt,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	if sessionExpires.Valid {
		o.SessionExpiresAt = &sessionExpires.Time
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if cancelledAt.Valid {
		o.CancelledAt = &cancelledAt.Time
	}
	return &o, nil
}

func (s *OrderStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, COALESCE(variant_id, 0), seller_id, name, unit_price, quantity
		 FROM order_items WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID,
			&it.SellerID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	return rows.Err()
}

func (s *OrderStore) GetByReference(ctx context.Context, reference string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE reference = $1`, reference)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE gateway_session_id = $1`, sessionID)
	return scanOrder(row)
}

// MarkPaid advances pending -> processing/paid. Returns false when the order
// already left pending, which callers treat as an idempotent no-op.
func (s *OrderStore) MarkPaid(ctx context.Context, reference string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'processing', payment_status = 'paid', paid_at = $2, updated_at = NOW()
		 WHERE reference = $1 AND status = 'pending'`,
		reference, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkCancelled moves pending -> cancelled/failed. A no-op for orders that
// already completed or cancelled, keeping status monotonic.
func (s *OrderStore) MarkCancelled(ctx context.Context, reference, failureReason string, cancelledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'cancelled', payment_status = 'failed',
		        cancelled_at = $2, failure_reason = $3, updated_at = NOW()
		 WHERE reference = $1 AND status = 'pending'`,
		reference, cancelledAt, failureReason)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *OrderStore) SetVendorOrderStatus(ctx context.Context, orderID, sellerID int, status models.VendorOrderStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vendor_orders SET status = $1 WHERE order_id = $2 AND seller_id = $3`,
		status, orderID, sellerID)
	if err != nil {
		return fmt.Errorf("failed to update vendor order: %w", err)
	}
	return nil
}

// SetAllVendorOrderStatus flips every seller's slice at once, used when the
// whole order settles or cancels.
func (s *OrderStore) SetAllVendorOrderStatus(ctx context.Context, orderID int, status models.VendorOrderStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vendor_orders SET status = $1 WHERE order_id = $2`, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update vendor orders: %w", err)
	}
	return nil
}
