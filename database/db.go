package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "checkoutdb")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		stock INT NOT NULL DEFAULT 0,
		low_stock_threshold INT NOT NULL DEFAULT 5,
		seller_id INT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS product_variants (
		id SERIAL PRIMARY KEY,
		product_id INT NOT NULL REFERENCES products(id),
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10,2),
		stock INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS payment_accounts (
		seller_id INT PRIMARY KEY,
		account_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS coupons (
		code VARCHAR(64) PRIMARY KEY,
		discount_type VARCHAR(16) NOT NULL,
		value DECIMAL(10,2) NOT NULL,
		min_order_amount DECIMAL(10,2) NOT NULL DEFAULT 0,
		max_discount DECIMAL(10,2) NOT NULL DEFAULT 0,
		starts_at TIMESTAMP,
		ends_at TIMESTAMP,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_limit INT NOT NULL DEFAULT 0,
		per_user_limit INT NOT NULL DEFAULT 0,
		used_count INT NOT NULL DEFAULT 0,
		gateway_discount_id VARCHAR(255),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS carts (
		id SERIAL PRIMARY KEY,
		user_id INT,
		session_id VARCHAR(64),
		coupon_code VARCHAR(64) REFERENCES coupons(code),
		subtotal DECIMAL(10,2) NOT NULL DEFAULT 0,
		discount DECIMAL(10,2) NOT NULL DEFAULT 0,
		tax DECIMAL(10,2) NOT NULL DEFAULT 0,
		shipping DECIMAL(10,2) NOT NULL DEFAULT 0,
		total DECIMAL(10,2) NOT NULL DEFAULT 0,
		checked_out BOOLEAN NOT NULL DEFAULT FALSE,
		order_reference VARCHAR(64),
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_carts_order_reference ON carts(order_reference);

	CREATE TABLE IF NOT EXISTS cart_items (
		id SERIAL PRIMARY KEY,
		cart_id INT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id INT NOT NULL,
		variant_id INT,
		seller_id INT NOT NULL,
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price DECIMAL(10,2) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		reference VARCHAR(64) UNIQUE NOT NULL,
		user_id INT,
		guest BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		payment_status VARCHAR(32) NOT NULL DEFAULT 'pending',
		subtotal DECIMAL(10,2) NOT NULL,
		discount DECIMAL(10,2) NOT NULL DEFAULT 0,
		tax DECIMAL(10,2) NOT NULL DEFAULT 0,
		shipping DECIMAL(10,2) NOT NULL DEFAULT 0,
		total DECIMAL(10,2) NOT NULL,
		coupon_code VARCHAR(64),
		gateway_session_id VARCHAR(255),
		session_expires_at TIMESTAMP,
		paid_at TIMESTAMP,
		cancelled_at TIMESTAMP,
		failure_reason TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_orders_gateway_session_id ON orders(gateway_session_id);

	CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INT NOT NULL,
		variant_id INT,
		seller_id INT NOT NULL,
		name VARCHAR(255) NOT NULL,
		unit_price DECIMAL(10,2) NOT NULL,
		quantity INT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vendor_orders (
		id SERIAL PRIMARY KEY,
		order_id INT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		seller_id INT NOT NULL,
		total DECIMAL(10,2) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS inventory_history (
		id SERIAL PRIMARY KEY,
		product_id INT NOT NULL,
		variant_id INT,
		delta INT NOT NULL,
		reason VARCHAR(32) NOT NULL,
		order_reference VARCHAR(64),
		actor VARCHAR(64) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_history_order ON inventory_history(order_reference, product_id, variant_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
