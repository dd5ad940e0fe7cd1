package webhook

import (
	"context"
	"errors"
	"time"

	"checkout-svc/checkout"
	"checkout-svc/gateway"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Orders is the slice of order persistence the processor drives. Every
// transition is conditional so redelivered events resolve as no-ops.
type Orders interface {
	GetByReference(ctx context.Context, reference string) (*models.Order, error)
	MarkPaid(ctx context.Context, reference string, paidAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, reference, failureReason string, cancelledAt time.Time) (bool, error)
	SetAllVendorOrderStatus(ctx context.Context, orderID int, status models.VendorOrderStatus) error
	SetVendorOrderStatus(ctx context.Context, orderID, sellerID int, status models.VendorOrderStatus) error
}

type Carts interface {
	ConsumeByOrderReference(ctx context.Context, orderReference string) error
}

type Coupons interface {
	IncrementUsage(ctx context.Context, code string) error
}

type Ledger interface {
	Decrement(ctx context.Context, items []models.DecrementRequest) ([]models.DecrementResult, []models.DomainEvent, error)
}

type Publisher interface {
	PublishAll(ctx context.Context, events []models.DomainEvent)
}

// Processor consumes verified gateway events and idempotently drives order
// state: pending -> processing (paid) or pending -> cancelled (failed). Later
// events for a settled order are no-ops, never errors, because the gateway
// redelivers.
type Processor struct {
	orders  Orders
	carts   Carts
	coupons Coupons
	ledger  Ledger
	fanout  Publisher
	logger  *zap.Logger
}

func NewProcessor(orders Orders, carts Carts, coupons Coupons, ledger Ledger, fanout Publisher, logger *zap.Logger) *Processor {
	return &Processor{
		orders:  orders,
		carts:   carts,
		coupons: coupons,
		ledger:  ledger,
		fanout:  fanout,
		logger:  logger,
	}
}

// Process dispatches one event. A nil return means the delivery is settled
// from the gateway's point of view, including events deliberately dropped as
// unprocessable.
func (p *Processor) Process(ctx context.Context, evt *gateway.Event) error {
	ctx, span := otel.Tracer("checkout-svc").Start(ctx, "ProcessWebhookEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", string(evt.Type)),
		attribute.String("order.reference", evt.OrderReference),
	)

	order, err := p.orders.GetByReference(ctx, evt.OrderReference)
	if err != nil {
		if errors.Is(err, checkout.ErrOrderNotFound) {
			// Retrying cannot manufacture a missing order; drop it.
			p.logger.Warn("Webhook event for unknown order dropped",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)),
				zap.String("order_reference", evt.OrderReference),
			)
			middleware.RecordWebhookEvent(string(evt.Type), "dropped")
			return nil
		}
		return err
	}

	switch evt.Type {
	case gateway.EventSessionCompleted:
		return p.handleSessionCompleted(ctx, order, evt)
	case gateway.EventSessionExpired:
		return p.handleSessionExpired(ctx, order, evt)
	case gateway.EventPaymentSucceeded:
		return p.handlePaymentSucceeded(ctx, order, evt)
	case gateway.EventPaymentFailed:
		return p.handlePaymentFailed(ctx, order, evt)
	default:
		p.logger.Debug("Unknown webhook event type acknowledged",
			zap.String("event_type", string(evt.Type)))
		middleware.RecordWebhookEvent(string(evt.Type), "ignored")
		return nil
	}
}

func (p *Processor) handleSessionCompleted(ctx context.Context, order *models.Order, evt *gateway.Event) error {
	if order.PaymentStatus == models.PaymentStatusPaid {
		middleware.RecordWebhookEvent(string(evt.Type), "duplicate")
		return nil
	}
	return p.settle(ctx, order, evt)
}

// handlePaymentSucceeded is the secondary confirmation channel. It races with
// session completion; whichever wins the conditional update does the work,
// the other resolves as a no-op.
func (p *Processor) handlePaymentSucceeded(ctx context.Context, order *models.Order, evt *gateway.Event) error {
	if order.Status != models.OrderStatusPending {
		middleware.RecordWebhookEvent(string(evt.Type), "duplicate")
		return nil
	}
	return p.settle(ctx, order, evt)
}

// settle performs the single success path: the winner of the pending ->
// paid transition clears the cart, decrements inventory and fans out the
// order event exactly once.
func (p *Processor) settle(ctx context.Context, order *models.Order, evt *gateway.Event) error {
	won, err := p.orders.MarkPaid(ctx, order.Reference, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		middleware.RecordWebhookEvent(string(evt.Type), "duplicate")
		return nil
	}
	middleware.RecordWebhookEvent(string(evt.Type), "processed")

	if order.CouponCode != "" {
		if err := p.coupons.IncrementUsage(ctx, order.CouponCode); err != nil {
			p.logger.Error("Failed to record coupon redemption",
				zap.String("order_reference", order.Reference), zap.Error(err))
		}
	}
	if err := p.orders.SetAllVendorOrderStatus(ctx, order.ID, models.VendorOrderStatusPaid); err != nil {
		p.logger.Error("Failed to mark vendor orders paid",
			zap.String("order_reference", order.Reference), zap.Error(err))
	}
	if err := p.carts.ConsumeByOrderReference(ctx, order.Reference); err != nil {
		p.logger.Error("Failed to consume cart",
			zap.String("order_reference", order.Reference), zap.Error(err))
	}

	requests := make([]models.DecrementRequest, 0, len(order.Items))
	sellerByProduct := make(map[int]int, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, models.DecrementRequest{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			OrderReference: order.Reference,
		})
		sellerByProduct[item.ProductID] = item.SellerID
	}

	results, inventoryEvents, err := p.ledger.Decrement(ctx, requests)
	if err != nil {
		// The status update already committed; a redelivery retries the
		// decrement, which is itself idempotent per order reference.
		return err
	}
	for _, r := range results {
		if r.Success {
			continue
		}
		// Money already moved; this is a reconciliation case, not a rollback.
		sellerID := sellerByProduct[r.ProductID]
		if err := p.orders.SetVendorOrderStatus(ctx, order.ID, sellerID, models.VendorOrderStatusPendingReconciliation); err != nil {
			p.logger.Error("Failed to flag vendor order for reconciliation",
				zap.String("order_reference", order.Reference),
				zap.Int("seller_id", sellerID),
				zap.Error(err))
		}
	}

	events := []models.DomainEvent{p.orderCreatedEvent(order)}
	events = append(events, inventoryEvents...)
	p.fanout.PublishAll(ctx, events)

	p.logger.Info("Order settled",
		zap.String("order_reference", order.Reference),
		zap.String("event_type", string(evt.Type)),
		zap.Int("items", len(order.Items)),
	)
	return nil
}

func (p *Processor) handleSessionExpired(ctx context.Context, order *models.Order, evt *gateway.Event) error {
	won, err := p.orders.MarkCancelled(ctx, order.Reference, "checkout session expired", time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		// Arrives after completion regularly; the paid order stays paid.
		middleware.RecordWebhookEvent(string(evt.Type), "duplicate")
		return nil
	}
	middleware.RecordWebhookEvent(string(evt.Type), "processed")
	if err := p.orders.SetAllVendorOrderStatus(ctx, order.ID, models.VendorOrderStatusCancelled); err != nil {
		p.logger.Error("Failed to cancel vendor orders",
			zap.String("order_reference", order.Reference), zap.Error(err))
	}
	p.fanout.PublishAll(ctx, []models.DomainEvent{p.orderCancelledEvent(order, "checkout session expired")})
	p.logger.Info("Order cancelled after session expiry",
		zap.String("order_reference", order.Reference))
	return nil
}

func (p *Processor) handlePaymentFailed(ctx context.Context, order *models.Order, evt *gateway.Event) error {
	reason := evt.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	won, err := p.orders.MarkCancelled(ctx, order.Reference, reason, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		middleware.RecordWebhookEvent(string(evt.Type), "duplicate")
		return nil
	}
	middleware.RecordWebhookEvent(string(evt.Type), "processed")
	if err := p.orders.SetAllVendorOrderStatus(ctx, order.ID, models.VendorOrderStatusCancelled); err != nil {
		p.logger.Error("Failed to cancel vendor orders",
			zap.String("order_reference", order.Reference), zap.Error(err))
	}
	p.fanout.PublishAll(ctx, []models.DomainEvent{p.orderCancelledEvent(order, reason)})
	p.logger.Info("Order cancelled after payment failure",
		zap.String("order_reference", order.Reference),
		zap.String("reason", reason))
	return nil
}

func (p *Processor) orderCreatedEvent(order *models.Order) models.OrderCreatedEvent {
	return models.OrderCreatedEvent{
		ID:             uuid.NewString(),
		EventType:      models.EventOrderCreated,
		OrderReference: order.Reference,
		UserID:         order.UserID,
		Guest:          order.Guest,
		Total:          order.Total,
		SellerIDs:      sellerIDs(order),
		Items:          order.Items,
		OccurredAt:     time.Now().UTC(),
	}
}

func (p *Processor) orderCancelledEvent(order *models.Order, reason string) models.OrderCancelledEvent {
	return models.OrderCancelledEvent{
		ID:             uuid.NewString(),
		EventType:      models.EventOrderCancelled,
		OrderReference: order.Reference,
		UserID:         order.UserID,
		Guest:          order.Guest,
		Reason:         reason,
		SellerIDs:      sellerIDs(order),
		OccurredAt:     time.Now().UTC(),
	}
}

func sellerIDs(order *models.Order) []int {
	seen := make(map[int]struct{})
	var sellers []int
	for _, item := range order.Items {
		if _, ok := seen[item.SellerID]; !ok {
			seen[item.SellerID] = struct{}{}
			sellers = append(sellers, item.SellerID)
		}
	}
	return sellers
}
