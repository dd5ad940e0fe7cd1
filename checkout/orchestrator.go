package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"checkout-svc/cart"
	"checkout-svc/catalog"
	"checkout-svc/gateway"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ValidationError carries the itemized Cart Validator verdict back to the
// caller.
type ValidationError struct {
	Result *cart.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cart validation failed: %s", e.Result.Reason)
}

// MissingPayoutError aborts a checkout whose sellers are not all onboarded; a
// multi-seller cart is all-or-nothing.
type MissingPayoutError struct {
	SellerIDs []int
}

func (e *MissingPayoutError) Error() string {
	return fmt.Sprintf("sellers missing payment destination: %v", e.SellerIDs)
}

// Gateway is the slice of the payment gateway the orchestrator needs.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error)
	CreateDiscount(ctx context.Context, coupon *models.Coupon) (string, error)
}

type sellerGroup struct {
	sellerID int
	items    []models.CartItem
	total    float64
}

// Orchestrator turns a validated cart into a gateway checkout session and a
// pending order with one vendor order per seller.
type Orchestrator struct {
	db         *sql.DB
	carts      *cart.Store
	coupons    *cart.CouponStore
	validator  *cart.Validator
	orders     *OrderStore
	catalog    *catalog.Store
	gateway    Gateway
	feePercent float64
	logger     *zap.Logger
}

func NewOrchestrator(
	db *sql.DB,
	carts *cart.Store,
	coupons *cart.CouponStore,
	validator *cart.Validator,
	orders *OrderStore,
	cat *catalog.Store,
	gw Gateway,
	feePercent float64,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		db:         db,
		carts:      carts,
		coupons:    coupons,
		validator:  validator,
		orders:     orders,
		catalog:    cat,
		gateway:    gw,
		feePercent: feePercent,
		logger:     logger,
	}
}

func (o *Orchestrator) CreateCheckoutSession(ctx context.Context, cartID int, successURL, cancelURL string, actor models.Actor) (*models.CheckoutSessionResult, error) {
	ctx, span := otel.Tracer("checkout-svc").Start(ctx, "CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.id", cartID))

	c, err := o.carts.GetWithItems(ctx, cartID)
	if err != nil {
		middleware.RecordCheckoutSession("cart_not_found")
		return nil, err
	}

	validation, err := o.validator.Validate(ctx, c, actor)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		middleware.RecordCheckoutSession("validation_failed")
		span.SetAttributes(attribute.String("validation.reason", string(validation.Reason)))
		return nil, &ValidationError{Result: validation}
	}

	groups := groupBySeller(c.Items)

	destinations, missing, err := o.payoutDestinations(ctx, groups)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		middleware.RecordCheckoutSession("missing_payout")
		return nil, &MissingPayoutError{SellerIDs: missing}
	}

	reference := newOrderReference()
	span.SetAttributes(attribute.String("order.reference", reference))

	var coupon *models.Coupon
	var discountID string
	if c.CouponCode != "" {
		coupon, err = o.coupons.GetByCode(ctx, c.CouponCode)
		if err != nil {
			return nil, err
		}
		discountID, err = o.ensureGatewayDiscount(ctx, coupon)
		if err != nil {
			middleware.RecordCheckoutSession("gateway_error")
			return nil, err
		}
	}

	req := gateway.CheckoutSessionRequest{
		Reference:     reference,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		DiscountID:    discountID,
		TransferGroup: reference,
	}
	names := make(map[int]string, len(c.Items))
	for _, item := range c.Items {
		entry, err := o.catalog.Get(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return nil, err
		}
		names[item.ID] = entry.Name
		req.LineItems = append(req.LineItems, gateway.LineItem{
			Name:       entry.Name,
			UnitAmount: toCents(item.UnitPrice),
			Quantity:   item.Quantity,
		})
	}

	// One transfer per seller: each destination receives its group total minus
	// its share of the platform fee. One session, many destinations.
	var totalFee int64
	for _, g := range groups {
		groupCents := toCents(g.total)
		fee := int64(math.Round(float64(groupCents) * o.feePercent / 100))
		totalFee += fee
		req.Transfers = append(req.Transfers, gateway.Transfer{
			Destination: destinations[g.sellerID],
			Amount:      groupCents - fee,
		})
	}
	req.ApplicationFee = totalFee

	session, err := o.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		// Fatal: nothing persisted, no dangling order.
		middleware.RecordCheckoutSession("gateway_error")
		return nil, err
	}

	order := o.buildOrder(c, reference, session, actor, groups, names)
	if err := o.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	if err := o.carts.LinkOrder(ctx, c.ID, reference); err != nil {
		return nil, err
	}

	middleware.RecordCheckoutSession("created")
	o.logger.Info("Checkout session created",
		zap.String("order_reference", reference),
		zap.String("session_id", session.ID),
		zap.Int("sellers", len(groups)),
		zap.Float64("total", order.Total),
	)

	return &models.CheckoutSessionResult{
		SessionID:      session.ID,
		OrderReference: reference,
		URL:            session.URL,
	}, nil
}

// Status resolves the order behind a gateway session for the polling client.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*models.CheckoutStatusResult, error) {
	order, err := o.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	status := "open"
	switch {
	case order.PaymentStatus == models.PaymentStatusPaid:
		status = "complete"
	case order.Status == models.OrderStatusCancelled:
		status = "expired"
	}
	return &models.CheckoutStatusResult{
		Status:         status,
		PaymentStatus:  order.PaymentStatus,
		OrderReference: order.Reference,
		OrderStatus:    order.Status,
	}, nil
}

func (o *Orchestrator) buildOrder(c *models.Cart, reference string, session *gateway.CheckoutSession, actor models.Actor, groups []sellerGroup, names map[int]string) *models.Order {
	order := &models.Order{
		Reference:        reference,
		UserID:           actor.UserID,
		Guest:            actor.Guest,
		Status:           models.OrderStatusPending,
		PaymentStatus:    models.PaymentStatusPending,
		Subtotal:         c.Subtotal,
		Discount:         c.Discount,
		Tax:              c.Tax,
		Shipping:         c.Shipping,
		Total:            c.Total,
		CouponCode:       c.CouponCode,
		GatewaySessionID: session.ID,
	}
	if !session.ExpiresAt.IsZero() {
		expires := session.ExpiresAt
		order.SessionExpiresAt = &expires
	}

	for _, item := range c.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			SellerID:  item.SellerID,
			Name:      names[item.ID],
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	for _, g := range groups {
		order.VendorOrders = append(order.VendorOrders, models.VendorOrder{
			SellerID: g.sellerID,
			Total:    g.total,
			Status:   models.VendorOrderStatusPending,
		})
	}
	return order
}

func (o *Orchestrator) ensureGatewayDiscount(ctx context.Context, coupon *models.Coupon) (string, error) {
	if coupon.GatewayDiscountID != "" {
		return coupon.GatewayDiscountID, nil
	}
	id, err := o.gateway.CreateDiscount(ctx, coupon)
	if err != nil {
		return "", err
	}
	if err := o.coupons.SetGatewayDiscountID(ctx, coupon.Code, id); err != nil {
		return "", err
	}
	coupon.GatewayDiscountID = id
	return id, nil
}

func (o *Orchestrator) payoutDestinations(ctx context.Context, groups []sellerGroup) (map[int]string, []int, error) {
	destinations := make(map[int]string, len(groups))
	var missing []int
	for _, g := range groups {
		var accountID string
		err := o.db.QueryRowContext(ctx,
			`SELECT account_id FROM payment_accounts WHERE seller_id = $1`, g.sellerID,
		).Scan(&accountID)
		switch {
		case err == sql.ErrNoRows:
			missing = append(missing, g.sellerID)
		case err != nil:
			return nil, nil, fmt.Errorf("failed to look up payment account: %w", err)
		default:
			destinations[g.sellerID] = accountID
		}
	}
	sort.Ints(missing)
	return destinations, missing, nil
}

func groupBySeller(items []models.CartItem) []sellerGroup {
	byID := make(map[int]*sellerGroup)
	var order []int
	for _, item := range items {
		g, ok := byID[item.SellerID]
		if !ok {
			g = &sellerGroup{sellerID: item.SellerID}
			byID[item.SellerID] = g
			order = append(order, item.SellerID)
		}
		g.items = append(g.items, item)
		g.total += item.LineTotal()
	}
	sort.Ints(order)
	groups := make([]sellerGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byID[id])
	}
	return groups
}

// newOrderReference generates a unique, human-traceable reference. It is the
// correlation key for the gateway session, webhook processing and the
// inventory ledger.
func newOrderReference() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
