package models

import "time"

type Product struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Price             float64   `json:"price"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	SellerID          int       `json:"seller_id"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductVariant struct {
	ID        int      `json:"id"`
	ProductID int      `json:"product_id"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price,omitempty"` // nil falls back to the product price
	Stock     int      `json:"stock"`
}

// CatalogEntry is the read-path view the cart and checkout components consume:
// current price, stock and seller for a product or one of its variants.
type CatalogEntry struct {
	ProductID         int     `json:"product_id"`
	VariantID         int     `json:"variant_id,omitempty"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Stock             int     `json:"stock"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	SellerID          int     `json:"seller_id"`
	Active            bool    `json:"active"`
}

// PaymentAccount is a seller's settlement destination at the payment gateway.
type PaymentAccount struct {
	SellerID  int       `json:"seller_id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}
