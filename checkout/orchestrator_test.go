package checkout

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"checkout-svc/cart"
	"checkout-svc/catalog"
	"checkout-svc/gateway"
	"checkout-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap/zaptest"
)

const (
	cartQuery    = `FROM carts WHERE id = \$1`
	itemsQuery   = `FROM cart_items WHERE cart_id = \$1`
	productQuery = `SELECT name, price, stock, low_stock_threshold, seller_id, active FROM products WHERE id = \$1`
	payoutQuery  = `SELECT account_id FROM payment_accounts WHERE seller_id = \$1`
)

type mockGateway struct {
	lastRequest gateway.CheckoutSessionRequest
	session     *gateway.CheckoutSession
	err         error
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockGateway) CreateDiscount(ctx context.Context, coupon *models.Coupon) (string, error) {
	return "disc_1", nil
}

func setupOrchestratorTest(t *testing.T, gw Gateway) (*Orchestrator, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t)
	cat := catalog.NewStore(db, nil, logger)
	coupons := cart.NewCouponStore(db)
	carts := cart.NewStore(db, cat, logger)
	validator := cart.NewValidator(cat, coupons, logger)
	orders := NewOrderStore(db)

	o := NewOrchestrator(db, carts, coupons, validator, orders, cat, gw, 10.0, logger)
	return o, mock, func() { db.Close() }
}

func expectCartLoad(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectQuery(cartQuery).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "session_id", "coupon_code", "subtotal", "discount", "tax", "shipping", "total",
			"checked_out", "order_reference", "expires_at", "created_at", "updated_at",
		}).AddRow(1, nil, "sess-1", nil, 45.0, 0.0, 0.0, 0.0, 45.0, false, nil, nil, now, now))
	mock.ExpectQuery(itemsQuery).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "cart_id", "product_id", "variant_id", "seller_id", "quantity", "unit_price", "created_at",
		}).
			AddRow(1, 1, 7, 0, 3, 2, 15.0, now).
			AddRow(2, 1, 9, 0, 4, 1, 15.0, now))
}

func expectProduct(mock sqlmock.Sqlmock, productID int, name string, price float64, stock, sellerID int) {
	mock.ExpectQuery(productQuery).WithArgs(productID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "price", "stock", "low_stock_threshold", "seller_id", "active"}).
			AddRow(name, price, stock, 1, sellerID, true))
}

func TestOrchestrator_CreateCheckoutSession(t *testing.T) {
	expires := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	gw := &mockGateway{session: &gateway.CheckoutSession{
		ID: "cs_1", URL: "https://gateway.test/pay/cs_1", ExpiresAt: expires,
	}}
	o, mock, cleanup := setupOrchestratorTest(t, gw)
	defer cleanup()

	expectCartLoad(mock)
	// Validator pass over the lines.
	expectProduct(mock, 7, "Mug", 15.0, 10, 3)
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)
	// Payout destinations per seller group.
	mock.ExpectQuery(payoutQuery).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_3"))
	mock.ExpectQuery(payoutQuery).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_4"))
	// Name snapshots for line items.
	expectProduct(mock, 7, "Mug", 15.0, 10, 3)
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)
	// Order persisted only after the gateway call succeeded.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(10, time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectQuery(`INSERT INTO vendor_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO vendor_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE carts SET order_reference = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	actor := models.Actor{Guest: true, SessionID: "sess-1"}
	result, err := o.CreateCheckoutSession(context.Background(), 1, "https://shop.test/ok", "https://shop.test/cancel", actor)
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}

	if result.SessionID != "cs_1" {
		t.Errorf("Expected session cs_1, got %s", result.SessionID)
	}
	if !strings.HasPrefix(result.OrderReference, "ORD-") {
		t.Errorf("Expected ORD- reference, got %s", result.OrderReference)
	}

	req := gw.lastRequest
	if req.TransferGroup != result.OrderReference {
		t.Errorf("Expected transfer group %s, got %s", result.OrderReference, req.TransferGroup)
	}
	if len(req.LineItems) != 2 || req.LineItems[0].Name != "Mug" || req.LineItems[0].UnitAmount != 1500 {
		t.Errorf("Unexpected line items: %+v", req.LineItems)
	}
	// 10% platform fee: seller 3 grosses 3000 cents, nets 2700; seller 4
	// grosses 1500, nets 1350.
	if len(req.Transfers) != 2 {
		t.Fatalf("Expected 2 transfers, got %d", len(req.Transfers))
	}
	if req.Transfers[0].Destination != "acct_3" || req.Transfers[0].Amount != 2700 {
		t.Errorf("Unexpected first transfer: %+v", req.Transfers[0])
	}
	if req.Transfers[1].Destination != "acct_4" || req.Transfers[1].Amount != 1350 {
		t.Errorf("Unexpected second transfer: %+v", req.Transfers[1])
	}
	if req.ApplicationFee != 450 {
		t.Errorf("Expected application fee 450, got %d", req.ApplicationFee)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// A cart whose sellers are not all onboarded aborts before any gateway call
// or order row, naming the offending sellers.
func TestOrchestrator_MissingPayoutDestination(t *testing.T) {
	gw := &mockGateway{session: &gateway.CheckoutSession{ID: "cs_1"}}
	o, mock, cleanup := setupOrchestratorTest(t, gw)
	defer cleanup()

	expectCartLoad(mock)
	expectProduct(mock, 7, "Mug", 15.0, 10, 3)
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)
	mock.ExpectQuery(payoutQuery).WithArgs(3).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(payoutQuery).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_4"))

	actor := models.Actor{Guest: true, SessionID: "sess-1"}
	_, err := o.CreateCheckoutSession(context.Background(), 1, "https://shop.test/ok", "https://shop.test/cancel", actor)

	var missing *MissingPayoutError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingPayoutError, got %v", err)
	}
	if len(missing.SellerIDs) != 1 || missing.SellerIDs[0] != 3 {
		t.Errorf("Expected seller 3 reported missing, got %v", missing.SellerIDs)
	}
	if gw.lastRequest.Reference != "" {
		t.Error("Gateway must not be called when a payout destination is missing")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// A failed validation surfaces the itemized verdict and persists nothing.
func TestOrchestrator_ValidationFailure(t *testing.T) {
	gw := &mockGateway{}
	o, mock, cleanup := setupOrchestratorTest(t, gw)
	defer cleanup()

	expectCartLoad(mock)
	expectProduct(mock, 7, "Mug", 15.0, 1, 3) // stock 1 < quantity 2
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)

	actor := models.Actor{Guest: true, SessionID: "sess-1"}
	_, err := o.CreateCheckoutSession(context.Background(), 1, "https://shop.test/ok", "https://shop.test/cancel", actor)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Result.Reason != cart.ReasonItemsUnavailable {
		t.Errorf("Expected ITEMS_UNAVAILABLE, got %s", verr.Result.Reason)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// Gateway failure is fatal: no order row, no cart link.
func TestOrchestrator_GatewayFailure_NothingPersisted(t *testing.T) {
	gw := &mockGateway{err: errors.New("gateway: circuit breaker is open")}
	o, mock, cleanup := setupOrchestratorTest(t, gw)
	defer cleanup()

	expectCartLoad(mock)
	expectProduct(mock, 7, "Mug", 15.0, 10, 3)
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)
	mock.ExpectQuery(payoutQuery).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_3"))
	mock.ExpectQuery(payoutQuery).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct_4"))
	expectProduct(mock, 7, "Mug", 15.0, 10, 3)
	expectProduct(mock, 9, "Shirt", 15.0, 10, 4)

	actor := models.Actor{Guest: true, SessionID: "sess-1"}
	if _, err := o.CreateCheckoutSession(context.Background(), 1, "https://shop.test/ok", "https://shop.test/cancel", actor); err == nil {
		t.Fatal("Expected gateway error to propagate")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestGroupBySeller(t *testing.T) {
	items := []models.CartItem{
		{ProductID: 9, SellerID: 4, Quantity: 1, UnitPrice: 15.0},
		{ProductID: 7, SellerID: 3, Quantity: 2, UnitPrice: 15.0},
		{ProductID: 8, SellerID: 3, Quantity: 1, UnitPrice: 5.0},
	}

	groups := groupBySeller(items)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].sellerID != 3 || groups[0].total != 35.0 {
		t.Errorf("Unexpected first group: %+v", groups[0])
	}
	if groups[1].sellerID != 4 || groups[1].total != 15.0 {
		t.Errorf("Unexpected second group: %+v", groups[1])
	}
}

func TestToCents(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{19.99, 1999},
		{0.1 + 0.2, 30}, // float noise rounds away
		{0, 0},
	}
	for _, c := range cases {
		if got := toCents(c.amount); got != c.want {
			t.Errorf("toCents(%v) = %d, want %d", c.amount, got, c.want)
		}
	}
}
