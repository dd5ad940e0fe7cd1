package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("catalog: product not found")

const cacheTTL = 5 * time.Minute

// Store is the catalog read path: current price, stock and seller for a
// product or variant, with a Redis read-through cache in front of Postgres.
type Store struct {
	db     *sql.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewStore(db *sql.DB, rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{db: db, rdb: rdb, logger: logger}
}

func cacheKey(productID, variantID int) string {
	if variantID > 0 {
		return fmt.Sprintf("catalog:%d:%d", productID, variantID)
	}
	return fmt.Sprintf("catalog:%d", productID)
}

func (s *Store) Get(ctx context.Context, productID, variantID int) (*models.CatalogEntry, error) {
	key := cacheKey(productID, variantID)

	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var entry models.CatalogEntry
			if err := json.Unmarshal(data, &entry); err == nil {
				return &entry, nil
			}
		}
	}

	entry, err := s.fetch(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(entry); err == nil {
			if err := s.rdb.Set(ctx, key, data, cacheTTL).Err(); err != nil {
				s.logger.Warn("Failed to cache catalog entry", zap.Error(err))
			}
		}
	}

	return entry, nil
}

func (s *Store) fetch(ctx context.Context, productID, variantID int) (*models.CatalogEntry, error) {
	entry := models.CatalogEntry{ProductID: productID, VariantID: variantID}

	if variantID > 0 {
		var variantPrice sql.NullFloat64
		err := s.db.QueryRowContext(ctx,
			`SELECT p.name, p.price, v.price, v.stock, p.low_stock_threshold, p.seller_id, p.active
			 FROM products p JOIN product_variants v ON v.product_id = p.id
			 WHERE p.id = $1 AND v.id = $2`,
			productID, variantID,
		).Scan(&entry.Name, &entry.Price, &variantPrice, &entry.Stock, &entry.LowStockThreshold, &entry.SellerID, &entry.Active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to fetch variant: %w", err)
		}
		if variantPrice.Valid {
			entry.Price = variantPrice.Float64
		}
		return &entry, nil
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT name, price, stock, low_stock_threshold, seller_id, active
		 FROM products WHERE id = $1`,
		productID,
	).Scan(&entry.Name, &entry.Price, &entry.Stock, &entry.LowStockThreshold, &entry.SellerID, &entry.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	return &entry, nil
}

// Invalidate drops the cached entry after a stock movement so the next read
// sees the new quantity.
func (s *Store) Invalidate(ctx context.Context, productID, variantID int) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cacheKey(productID, variantID)).Err(); err != nil {
		s.logger.Warn("Failed to invalidate catalog cache",
			zap.Int("product_id", productID),
			zap.Error(err),
		)
	}
}
