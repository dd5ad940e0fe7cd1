package checkout

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	markPaidQuery      = `UPDATE orders SET status = 'processing', payment_status = 'paid'`
	markCancelledQuery = `UPDATE orders SET status = 'cancelled', payment_status = 'failed'`
)

func setupOrderStoreTest(t *testing.T) (*OrderStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	return NewOrderStore(db), mock, func() { db.Close() }
}

func TestOrderStore_MarkPaid_WinsTransition(t *testing.T) {
	store, mock, cleanup := setupOrderStoreTest(t)
	defer cleanup()

	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(markPaidQuery).
		WithArgs("ORD-20250601-ABCD1234", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := store.MarkPaid(context.Background(), "ORD-20250601-ABCD1234", paidAt)
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if !won {
		t.Error("Expected the transition to win on a pending order")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// The conditional update matches nothing once the order left pending, so a
// redelivery reports lost instead of double-settling.
func TestOrderStore_MarkPaid_AlreadySettled(t *testing.T) {
	store, mock, cleanup := setupOrderStoreTest(t)
	defer cleanup()

	paidAt := time.Now().UTC()
	mock.ExpectExec(markPaidQuery).
		WithArgs("ORD-20250601-ABCD1234", paidAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.MarkPaid(context.Background(), "ORD-20250601-ABCD1234", paidAt)
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if won {
		t.Error("Expected the transition to lose on a settled order")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderStore_MarkCancelled_PaidOrderStaysPaid(t *testing.T) {
	store, mock, cleanup := setupOrderStoreTest(t)
	defer cleanup()

	cancelledAt := time.Now().UTC()
	mock.ExpectExec(markCancelledQuery).
		WithArgs("ORD-20250601-ABCD1234", cancelledAt, "checkout session expired").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.MarkCancelled(context.Background(), "ORD-20250601-ABCD1234", "checkout session expired", cancelledAt)
	if err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}
	if won {
		t.Error("Expected cancellation to lose against a non-pending order")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderStore_GetByReference_NotFound(t *testing.T) {
	store, mock, cleanup := setupOrderStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`FROM orders WHERE reference = \$1`).
		WithArgs("ORD-NOPE").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetByReference(context.Background(), "ORD-NOPE"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
