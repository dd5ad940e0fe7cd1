package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-svc/catalog"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrProductNotFound = errors.New("inventory: product not found")

// Ledger owns stock movements. Every decrement is a single conditional update
// guarded by "stock >= requested", so two orders racing for the last unit
// cannot both succeed, and every movement appends an immutable history row.
type Ledger struct {
	db      *sql.DB
	catalog *catalog.Store
	logger  *zap.Logger
}

func NewLedger(db *sql.DB, cat *catalog.Store, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, catalog: cat, logger: logger}
}

// Decrement applies a batch of order-triggered stock decrements. Items are
// independent: an insufficient-stock item is reported failed and skipped, it
// does not abort the rest of the batch. Re-running the same order reference is
// a no-op per item already recorded in the history.
func (l *Ledger) Decrement(ctx context.Context, items []models.DecrementRequest) ([]models.DecrementResult, []models.DomainEvent, error) {
	results := make([]models.DecrementResult, 0, len(items))
	var domainEvents []models.DomainEvent

	for _, item := range items {
		result, evts, err := l.decrementOne(ctx, item)
		if err != nil {
			return nil, nil, err
		}
		if !result.Success {
			l.logger.Error("Inventory decrement conflict",
				zap.Int("product_id", item.ProductID),
				zap.Int("variant_id", item.VariantID),
				zap.Int("quantity", item.Quantity),
				zap.String("order_reference", item.OrderReference),
				zap.String("message", result.Message),
			)
			middleware.RecordOversellConflict()
		}
		results = append(results, *result)
		domainEvents = append(domainEvents, evts...)
	}

	return results, domainEvents, nil
}

func (l *Ledger) decrementOne(ctx context.Context, item models.DecrementRequest) (*models.DecrementResult, []models.DomainEvent, error) {
	result := &models.DecrementResult{ProductID: item.ProductID, VariantID: item.VariantID}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin decrement tx: %w", err)
	}
	defer tx.Rollback()

	// Idempotency: a history row tagged with this order reference means the
	// decrement already happened on an earlier delivery.
	var applied bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory_history
		 WHERE order_reference = $1 AND product_id = $2 AND COALESCE(variant_id, 0) = $3 AND reason = 'sale')`,
		item.OrderReference, item.ProductID, item.VariantID,
	).Scan(&applied)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check decrement history: %w", err)
	}
	if applied {
		result.Success = true
		result.Message = "already applied"
		return result, nil, nil
	}

	var stock, sellerID, threshold int
	if item.VariantID > 0 {
		err = tx.QueryRowContext(ctx,
			`UPDATE product_variants SET stock = stock - $1
			 WHERE id = $2 AND product_id = $3 AND stock >= $1
			 RETURNING stock`,
			item.Quantity, item.VariantID, item.ProductID,
		).Scan(&stock)
		if err == nil {
			err = tx.QueryRowContext(ctx,
				`SELECT seller_id, low_stock_threshold FROM products WHERE id = $1`,
				item.ProductID,
			).Scan(&sellerID, &threshold)
		}
	} else {
		err = tx.QueryRowContext(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = NOW()
			 WHERE id = $2 AND stock >= $1
			 RETURNING stock, seller_id, low_stock_threshold`,
			item.Quantity, item.ProductID,
		).Scan(&stock, &sellerID, &threshold)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			result.Success = false
			result.Message = "insufficient_stock"
			return result, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to decrement stock: %w", err)
	}

	var variantID interface{}
	if item.VariantID > 0 {
		variantID = item.VariantID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_history (product_id, variant_id, delta, reason, order_reference, actor)
		 VALUES ($1, $2, $3, 'sale', $4, 'system')`,
		item.ProductID, variantID, -item.Quantity, item.OrderReference)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append inventory history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit decrement: %w", err)
	}

	l.catalog.Invalidate(ctx, item.ProductID, item.VariantID)

	result.Success = true
	result.SellerID = sellerID

	now := time.Now().UTC()
	evts := []models.DomainEvent{
		models.InventoryUpdatedEvent{
			ID:             uuid.NewString(),
			EventType:      models.EventInventoryUpdated,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SellerID:       sellerID,
			Delta:          -item.Quantity,
			Stock:          stock,
			Reason:         models.InventoryReasonSale,
			OrderReference: item.OrderReference,
			OccurredAt:     now,
		},
	}
	if stock <= threshold {
		evts = append(evts, models.InventoryLowEvent{
			ID:         uuid.NewString(),
			EventType:  models.EventInventoryLow,
			ProductID:  item.ProductID,
			SellerID:   sellerID,
			Stock:      stock,
			Threshold:  threshold,
			OccurredAt: now,
		})
	}
	return result, evts, nil
}

// Adjust is the manual correction path: sets the absolute quantity, records
// the signed delta in the history and emits the same events as a sale.
func (l *Ledger) Adjust(ctx context.Context, productID, newQuantity int, reason models.InventoryReason, actor string) ([]models.DomainEvent, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin adjust tx: %w", err)
	}
	defer tx.Rollback()

	var previous, sellerID, threshold int
	err = tx.QueryRowContext(ctx,
		`SELECT stock, seller_id, low_stock_threshold FROM products WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&previous, &sellerID, &threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2`,
		newQuantity, productID,
	); err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	delta := newQuantity - previous
	_, err = tx.ExecContext(ctx,
		`INSERT INTO inventory_history (product_id, delta, reason, actor)
		 VALUES ($1, $2, $3, $4)`,
		productID, delta, string(reason), actor)
	if err != nil {
		return nil, fmt.Errorf("failed to append inventory history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit adjust: %w", err)
	}

	l.catalog.Invalidate(ctx, productID, 0)
	l.logger.Info("Inventory adjusted",
		zap.Int("product_id", productID),
		zap.Int("delta", delta),
		zap.String("actor", actor),
	)

	now := time.Now().UTC()
	evts := []models.DomainEvent{
		models.InventoryUpdatedEvent{
			ID:         uuid.NewString(),
			EventType:  models.EventInventoryUpdated,
			ProductID:  productID,
			SellerID:   sellerID,
			Delta:      delta,
			Stock:      newQuantity,
			Reason:     reason,
			OccurredAt: now,
		},
	}
	if newQuantity <= threshold {
		evts = append(evts, models.InventoryLowEvent{
			ID:         uuid.NewString(),
			EventType:  models.EventInventoryLow,
			ProductID:  productID,
			SellerID:   sellerID,
			Stock:      newQuantity,
			Threshold:  threshold,
			OccurredAt: now,
		})
	}
	return evts, nil
}
