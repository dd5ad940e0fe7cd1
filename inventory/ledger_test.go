package inventory

import (
	"context"
	"database/sql"
	"testing"

	"checkout-svc/catalog"
	"checkout-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap/zaptest"
)

const (
	historyExistsQuery = `SELECT EXISTS\(SELECT 1 FROM inventory_history`
	decrementQuery     = `UPDATE products SET stock = stock - \$1`
	historyInsertQuery = `INSERT INTO inventory_history`
	lockedStockQuery   = `SELECT stock, seller_id, low_stock_threshold FROM products WHERE id = \$1 FOR UPDATE`
	adjustStockQuery   = `UPDATE products SET stock = \$1`
)

func setupLedgerTest(t *testing.T) (*Ledger, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	logger := zaptest.NewLogger(t)
	ledger := NewLedger(db, catalog.NewStore(db, nil, logger), logger)
	return ledger, mock, func() { db.Close() }
}

func TestLedger_Decrement_Success(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(historyExistsQuery).
		WithArgs("ORD-20250601-ABCD1234", 7, 0).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(decrementQuery).
		WithArgs(2, 7).
		WillReturnRows(sqlmock.NewRows([]string{"stock", "seller_id", "low_stock_threshold"}).AddRow(8, 3, 1))
	mock.ExpectExec(historyInsertQuery).
		WithArgs(7, nil, -2, "ORD-20250601-ABCD1234").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	results, events, err := ledger.Decrement(context.Background(), []models.DecrementRequest{
		{ProductID: 7, Quantity: 2, OrderReference: "ORD-20250601-ABCD1234"},
	})
	if err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("Expected one successful result, got %+v", results)
	}
	if results[0].SellerID != 3 {
		t.Errorf("Expected seller 3, got %d", results[0].SellerID)
	}
	if len(events) != 1 {
		t.Fatalf("Expected one event, got %d", len(events))
	}
	upd, ok := events[0].(models.InventoryUpdatedEvent)
	if !ok {
		t.Fatalf("Expected InventoryUpdatedEvent, got %T", events[0])
	}
	if upd.Delta != -2 || upd.Stock != 8 {
		t.Errorf("Expected delta -2 stock 8, got %d/%d", upd.Delta, upd.Stock)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// Two orders racing for the last unit: the conditional update matches no row
// for the loser, which is reported failed without aborting the batch.
func TestLedger_Decrement_InsufficientStock(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(historyExistsQuery).
		WithArgs("ORD-20250601-ABCD1234", 7, 0).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(decrementQuery).
		WithArgs(5, 7).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	results, events, err := ledger.Decrement(context.Background(), []models.DecrementRequest{
		{ProductID: 7, Quantity: 5, OrderReference: "ORD-20250601-ABCD1234"},
	})
	if err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Fatalf("Expected one failed result, got %+v", results)
	}
	if results[0].Message != "insufficient_stock" {
		t.Errorf("Expected insufficient_stock, got %s", results[0].Message)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events for a failed decrement, got %d", len(events))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// A redelivered webhook retries the decrement; the existing history row for
// the order reference resolves it as already applied, stock untouched.
func TestLedger_Decrement_Idempotent(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(historyExistsQuery).
		WithArgs("ORD-20250601-ABCD1234", 7, 0).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	results, events, err := ledger.Decrement(context.Background(), []models.DecrementRequest{
		{ProductID: 7, Quantity: 2, OrderReference: "ORD-20250601-ABCD1234"},
	})
	if err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("Expected one successful result, got %+v", results)
	}
	if results[0].Message != "already applied" {
		t.Errorf("Expected already applied, got %s", results[0].Message)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events on replay, got %d", len(events))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestLedger_Decrement_LowStockEvent(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(historyExistsQuery).
		WithArgs("ORD-20250601-ABCD1234", 7, 0).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(decrementQuery).
		WithArgs(4, 7).
		WillReturnRows(sqlmock.NewRows([]string{"stock", "seller_id", "low_stock_threshold"}).AddRow(1, 3, 3))
	mock.ExpectExec(historyInsertQuery).
		WithArgs(7, nil, -4, "ORD-20250601-ABCD1234").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, events, err := ledger.Decrement(context.Background(), []models.DecrementRequest{
		{ProductID: 7, Quantity: 4, OrderReference: "ORD-20250601-ABCD1234"},
	})
	if err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected updated + low events, got %d", len(events))
	}
	low, ok := events[1].(models.InventoryLowEvent)
	if !ok {
		t.Fatalf("Expected InventoryLowEvent, got %T", events[1])
	}
	if low.Stock != 1 || low.Threshold != 3 {
		t.Errorf("Expected stock 1 threshold 3, got %d/%d", low.Stock, low.Threshold)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestLedger_Adjust(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(lockedStockQuery).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"stock", "seller_id", "low_stock_threshold"}).AddRow(10, 3, 2))
	mock.ExpectExec(adjustStockQuery).
		WithArgs(25, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(historyInsertQuery).
		WithArgs(7, 15, "restock", "admin:1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	events, err := ledger.Adjust(context.Background(), 7, 25, models.InventoryReasonRestock, "admin:1")
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected one event, got %d", len(events))
	}
	upd := events[0].(models.InventoryUpdatedEvent)
	if upd.Delta != 15 || upd.Stock != 25 {
		t.Errorf("Expected delta 15 stock 25, got %d/%d", upd.Delta, upd.Stock)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestLedger_Adjust_ProductNotFound(t *testing.T) {
	ledger, mock, cleanup := setupLedgerTest(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(lockedStockQuery).
		WithArgs(999).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := ledger.Adjust(context.Background(), 999, 10, models.InventoryReasonAdjustment, "admin:1"); err != ErrProductNotFound {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
