package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// Outcome labels recorded per handled event.
const (
	OutcomeProcessed = "processed"
	OutcomePartial   = "partial"
	OutcomeNoop      = "noop"
	OutcomeIgnored   = "ignored"
	OutcomeLogged    = "logged"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
)

// Cancellation reasons written on order.cancelled events.
const (
	ReasonSessionExpired = "checkout_session_expired"
	ReasonPaymentFailed  = "async_payment_failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type inventoryDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (product.DecrementResult, error)
}

type cartClearer interface {
	DeleteForBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
}

type webhookMetrics interface {
	IncWebhookEvent(eventType, outcome string)
	AddOrdersPaid(n int)
	IncOversold()
}

// ServiceParams groups the reconciliation collaborators.
type ServiceParams struct {
	Orders            orders.Repository
	Inventory         inventoryDecrementer
	Cart              cartClearer
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Metrics           webhookMetrics
	Logger            *logger.Logger
}

// Service reconciles orders, inventory and carts from Stripe events.
type Service struct {
	orders    orders.Repository
	inventory inventoryDecrementer
	cart      cartClearer
	outbox    outboxPublisher
	txRunner  txRunner
	metrics   webhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory decrementer required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		orders:    params.Orders,
		inventory: params.Inventory,
		cart:      params.Cart,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordDuplicate counts a delivery dropped by the idempotency guard.
func (s *Service) RecordDuplicate(eventType stripe.EventType) {
	s.count(eventType, OutcomeDuplicate)
}

// HandleEvent applies one verified event. Per-order failures and unusable
// metadata are logged and reflected in the outcome; only events whose data
// cannot be decoded return an error.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return OutcomeInvalid, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(s.logg.WithEventID(ctx, event.ID), map[string]any{"event_type": string(event.Type)})

	var (
		outcome string
		err     error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome, err = s.handlePaid(ctx, event)
	case stripe.EventTypeCheckoutSessionExpired:
		outcome, err = s.handleCancelled(ctx, event, ReasonSessionExpired)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		outcome, err = s.handleCancelled(ctx, event, ReasonPaymentFailed)
	case stripe.EventTypePaymentIntentPaymentFailed:
		outcome = s.handlePaymentFailed(ctx, event)
	default:
		s.logg.Debug(ctx, "stripe event ignored")
		outcome = OutcomeIgnored
	}
	if err != nil {
		outcome = OutcomeInvalid
	}
	s.count(event.Type, outcome)
	return outcome, err
}

type sessionRefs struct {
	sessionID  string
	buyerID    uuid.UUID
	orderIDs   []uuid.UUID
	invalidIDs []string
}

// decodeSession fails only when the session payload cannot be decoded.
// Metadata problems are carried on the refs for the caller to log.
func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, sessionRefs, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, sessionRefs{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	refs := sessionRefs{sessionID: sess.ID}
	refs.orderIDs, refs.invalidIDs = parseOrderIDs(sess.Metadata["order_ids"])
	if raw := strings.TrimSpace(sess.Metadata["user_id"]); raw != "" {
		if buyerID, err := uuid.Parse(raw); err == nil {
			refs.buyerID = buyerID
		}
	}
	return &sess, refs, nil
}

// parseOrderIDs splits the comma-joined metadata value, dropping duplicates.
// Entries that are not UUIDs are returned separately.
func parseOrderIDs(raw string) ([]uuid.UUID, []string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	var invalid []string
	seen := make(map[uuid.UUID]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			invalid = append(invalid, part)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, invalid
}

// sessionContext logs metadata problems and reports whether the session
// references any order this service can act on.
func (s *Service) sessionContext(ctx context.Context, sess *stripe.CheckoutSession, refs sessionRefs) (context.Context, bool) {
	ctx = s.logg.WithCheckoutSession(ctx, refs.sessionID)
	if len(refs.invalidIDs) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "invalid_order_ids", refs.invalidIDs), "checkout session metadata has invalid order ids")
	}
	if refs.buyerID == uuid.Nil && strings.TrimSpace(sess.Metadata["user_id"]) != "" {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", sess.Metadata["user_id"]), "checkout session metadata has invalid user id")
	}
	if len(refs.orderIDs) == 0 && len(refs.invalidIDs) == 0 {
		s.logg.Info(ctx, "checkout session carries no order ids; nothing to reconcile")
		return ctx, false
	}
	return ctx, true
}

func (s *Service) handlePaid(ctx context.Context, event *stripe.Event) (string, error) {
	sess, refs, err := decodeSession(event)
	if err != nil {
		return "", err
	}
	ctx, ok := s.sessionContext(ctx, sess, refs)
	if !ok {
		return OutcomeNoop, nil
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logg.Info(ctx, "checkout session completed without payment; awaiting async result")
		return OutcomeNoop, nil
	}

	paid, failed := 0, len(refs.invalidIDs)
	for _, orderID := range refs.orderIDs {
		ok, stockFailures, err := s.payOrder(ctx, orderID, refs)
		if err != nil {
			failed++
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "failed to mark order paid", err)
			continue
		}
		failed += stockFailures
		if ok {
			paid++
		}
	}
	if s.metrics != nil {
		s.metrics.AddOrdersPaid(paid)
	}

	if paid > 0 && refs.buyerID != uuid.Nil {
		removed, err := s.cart.DeleteForBuyer(ctx, refs.buyerID)
		if err != nil {
			failed++
			s.logg.Error(s.logg.WithUserID(ctx, refs.buyerID.String()), "failed to clear cart after payment", err)
		} else {
			s.logg.Debug(s.logg.WithField(ctx, "removed", removed), "cart cleared")
		}
	}
	return summarize(paid, failed), nil
}

// payOrder commits pending -> paid together with order.paid, then applies
// each item's stock decrement in its own transaction. It reports false when
// the order was missing or no longer pending, and the number of items whose
// decrement failed.
func (s *Service) payOrder(ctx context.Context, orderID uuid.UUID, refs sessionRefs) (bool, int, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	paidAt := s.now()
	var order *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		found, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logg.Warn(ctx, "paid order not found")
				return nil
			}
			return err
		}
		ok, err := repo.MarkPaid(ctx, orderID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			s.logg.Info(s.logg.WithField(ctx, "status", string(found.Status)), "order not pending; skipping")
			return nil
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   found.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:           found.ID,
				BuyerID:           found.BuyerID,
				StoreID:           found.StoreID,
				CheckoutSessionID: refs.sessionID,
				TotalAmount:       found.TotalAmount.String(),
				PaidAt:            paidAt,
			},
		}); err != nil {
			return err
		}
		order = found
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	if order == nil {
		return false, 0, nil
	}

	failures := 0
	for _, item := range order.Items {
		if err := s.decrementItem(ctx, order, item); err != nil {
			failures++
			s.logg.Error(s.logg.WithField(ctx, "product_id", item.ProductID.String()), "failed to decrement inventory for paid order", err)
		}
	}
	return true, failures, nil
}

func (s *Service) decrementItem(ctx context.Context, order *models.Order, item models.OrderItem) error {
	oversold := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.inventory.Decrement(ctx, tx, item.ProductID, item.Quantity)
		if errors.Is(err, product.ErrInsufficientStock) {
			oversold = true
			return s.emitOversold(ctx, tx, order, res)
		}
		if err != nil {
			return fmt.Errorf("decrement product %s: %w", item.ProductID, err)
		}
		return nil
	})
	if err == nil && oversold && s.metrics != nil {
		s.metrics.IncOversold()
	}
	return err
}

func (s *Service) emitOversold(ctx context.Context, tx *gorm.DB, order *models.Order, res product.DecrementResult) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"product_id": res.ProductID.String(),
		"requested":  res.Requested,
		"available":  res.Available,
	}), "inventory oversold; stock floored at zero")
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryOversold,
		AggregateType: enums.AggregateProduct,
		AggregateID:   res.ProductID,
		Data: payloads.InventoryOversoldEvent{
			ProductID: res.ProductID,
			OrderID:   order.ID,
			StoreID:   order.StoreID,
			Requested: res.Requested,
			Available: res.Available,
		},
	})
}

func (s *Service) handleCancelled(ctx context.Context, event *stripe.Event, reason string) (string, error) {
	sess, refs, err := decodeSession(event)
	if err != nil {
		return "", err
	}
	ctx, ok := s.sessionContext(ctx, sess, refs)
	if !ok {
		return OutcomeNoop, nil
	}

	cancelled, failed := 0, len(refs.invalidIDs)
	for _, orderID := range refs.orderIDs {
		ok, err := s.cancelOrder(ctx, orderID, reason)
		if err != nil {
			failed++
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "failed to cancel order", err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	return summarize(cancelled, failed), nil
}

func (s *Service) cancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	at := s.now()
	var transitioned bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		ok, err := repo.CancelPending(ctx, orderID, at)
		if err != nil || !ok {
			return err
		}
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		transitioned = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				StoreID:     order.StoreID,
				Reason:      reason,
				CancelledAt: at,
			},
		})
	})
	return transitioned, err
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) string {
	fields := map[string]any{"payment_intent": event.GetObjectValue("id")}
	if code := event.GetObjectValue("last_payment_error", "code"); code != "" {
		fields["failure_code"] = code
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "payment intent failed")
	return OutcomeLogged
}

func (s *Service) count(eventType stripe.EventType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncWebhookEvent(string(eventType), outcome)
}

func summarize(applied, failed int) string {
	switch {
	case failed > 0:
		return OutcomePartial
	case applied == 0:
		return OutcomeNoop
	default:
		return OutcomeProcessed
	}
}
