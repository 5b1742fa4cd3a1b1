package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Checkout outcomes recorded on the checkout counter.
const (
	ResultSuccess    = "success"
	ResultRejected   = "rejected"
	ResultStripeFail = "stripe_error"
	ResultError      = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartReader interface {
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type buyerLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionCreator opens hosted payment sessions.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Currency() string
}

type checkoutMetrics interface {
	IncCheckout(result string)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

// LineRequest is a client-requested product and quantity. Prices are never
// taken from the client.
type LineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// Input captures one checkout attempt. Items overrides the stored cart when set.
type Input struct {
	BuyerID         uuid.UUID
	Items           []LineRequest
	ShippingAddress types.ShippingAddress
	Origin          string
}

// Result is returned to the client so it can redirect to the payment page.
type Result struct {
	SessionID string      `json:"sessionId"`
	URL       string      `json:"url"`
	OrderIDs  []uuid.UUID `json:"orderIds"`
}

// Config carries the checkout settings.
type Config struct {
	PublicOrigin      string
	AllowedOrigins    []string
	ShippingCountries []string
	SessionTTL        time.Duration
}

// Deps groups the collaborators of the checkout service.
type Deps struct {
	Tx       txRunner
	Cart     cartReader
	Products productLoader
	Buyers   buyerLoader
	Orders   orders.Repository
	Outbox   outboxPublisher
	Payments SessionCreator
	Metrics  checkoutMetrics
	Logger   *logger.Logger
}

type service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewService builds the checkout service.
func NewService(deps Deps, cfg Config) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Cart == nil:
		return nil, fmt.Errorf("cart reader required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product loader required")
	case deps.Buyers == nil:
		return nil, fmt.Errorf("buyer loader required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payment session creator required")
	}
	if strings.TrimSpace(cfg.PublicOrigin) == "" {
		return nil, fmt.Errorf("public origin required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &service{deps: deps, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Execute turns the buyer's cart into one pending order per store and opens a
// single payment session covering all of them.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	result, stripeFailed, err := s.execute(ctx, input)
	s.record(err, stripeFailed)
	return result, err
}

func (s *service) execute(ctx context.Context, input Input) (*Result, bool, error) {
	if input.BuyerID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	ctx = s.deps.Logger.WithUserID(ctx, input.BuyerID.String())

	requests, err := s.requests(ctx, input)
	if err != nil {
		return nil, false, err
	}
	if len(requests) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	address, err := helpers.ValidateShippingAddress(input.ShippingAddress)
	if err != nil {
		return nil, false, err
	}
	buyer, err := s.deps.Buyers.FindByID(ctx, input.BuyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	lines, err := s.resolve(ctx, requests)
	if err != nil {
		return nil, false, err
	}
	partitions := helpers.PartitionByStore(lines)

	created, err := s.createOrders(ctx, input.BuyerID, address, partitions)
	if err != nil {
		return nil, false, err
	}
	orderIDs := make([]uuid.UUID, 0, len(created))
	for _, order := range created {
		orderIDs = append(orderIDs, order.ID)
	}

	params, err := s.sessionParams(buyer, lines, orderIDs, input.Origin)
	if err == nil {
		var session *stripe.CheckoutSession
		session, err = s.deps.Payments.CreateCheckoutSession(ctx, params)
		if err == nil {
			return s.finish(ctx, session, orderIDs), false, nil
		}
	}

	s.deps.Logger.Error(ctx, "checkout session creation failed", err)
	if compErr := s.compensate(ctx, created); compErr != nil {
		s.deps.Logger.Error(ctx, "checkout compensation failed", compErr)
	}
	return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable")
}

func (s *service) requests(ctx context.Context, input Input) ([]LineRequest, error) {
	if len(input.Items) > 0 {
		for _, item := range input.Items {
			if item.ProductID == uuid.Nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
			}
			if item.Quantity < 1 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
			}
		}
		return input.Items, nil
	}
	rows, err := s.deps.Cart.ListForBuyer(ctx, input.BuyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	out := make([]LineRequest, 0, len(rows))
	hidden := 0
	for _, row := range rows {
		// Rows the cart view hides are left in storage and out of the order.
		if !row.Product.Purchasable() {
			hidden++
			continue
		}
		out = append(out, LineRequest{ProductID: row.ProductID, Quantity: row.Quantity})
	}
	if hidden > 0 {
		s.deps.Logger.Info(s.deps.Logger.WithField(ctx, "skipped", hidden), "checkout skipped unavailable cart rows")
	}
	return out, nil
}

// resolve loads live product rows and validates availability. Quantities for
// repeated product ids are summed.
func (s *service) resolve(ctx context.Context, requests []LineRequest) ([]helpers.Line, error) {
	ids := make([]uuid.UUID, 0, len(requests))
	qtys := make([]int, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.ProductID)
		qtys = append(qtys, req.Quantity)
	}
	ordered, totals := helpers.MergeQuantities(ids, qtys)

	products, err := s.deps.Products.FindByIDs(ctx, ordered)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	lines := make([]helpers.Line, 0, len(ordered))
	for _, id := range ordered {
		product := byID[id]
		if err := helpers.ValidatePurchasable(product, totals[id]); err != nil {
			return nil, err
		}
		lines = append(lines, helpers.Line{Product: *product, Quantity: totals[id]})
	}
	return lines, nil
}

func (s *service) createOrders(ctx context.Context, buyerID uuid.UUID, address types.ShippingAddress, partitions []helpers.StorePartition) ([]models.Order, error) {
	created := make([]models.Order, 0, len(partitions))
	err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deps.Orders.WithTx(tx)
		for _, part := range partitions {
			order := models.Order{
				BuyerID:         buyerID,
				StoreID:         part.StoreID,
				Status:          enums.OrderStatusPending,
				TotalAmount:     part.Total(),
				ShippingAddress: address,
			}
			if err := repo.CreateOrder(ctx, &order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}

			items := make([]models.OrderItem, 0, len(part.Lines))
			for _, line := range part.Lines {
				items = append(items, models.OrderItem{
					OrderID:     order.ID,
					ProductID:   line.Product.ID,
					ProductName: line.Product.Name,
					Quantity:    line.Quantity,
					UnitPrice:   line.UnitPrice(),
					TotalPrice:  line.Total(),
				})
			}
			if err := repo.CreateItems(ctx, items); err != nil {
				return fmt.Errorf("create order items: %w", err)
			}
			order.Items = items

			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: buyerID, Role: enums.UserRoleBuyer},
				Data: payloads.OrderCreatedEvent{
					OrderID:     order.ID,
					BuyerID:     buyerID,
					StoreID:     order.StoreID,
					TotalAmount: order.TotalAmount.String(),
					ItemCount:   part.ItemCount(),
				},
			}
			if err := s.deps.Outbox.Emit(ctx, tx, event); err != nil {
				return fmt.Errorf("emit order created: %w", err)
			}
			created = append(created, order)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create orders")
	}
	return created, nil
}

func (s *service) sessionParams(buyer *models.User, lines []helpers.Line, orderIDs []uuid.UUID, origin string) (*stripe.CheckoutSessionParams, error) {
	currency := s.deps.Payments.Currency()
	joined := joinIDs(orderIDs)
	base := s.origin(origin)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(base + "/checkout/success?session_id={CHECKOUT_SESSION_ID}&order_ids=" + url.QueryEscape(joined)),
		CancelURL:          stripe.String(base + "/checkout/cancel?order_ids=" + url.QueryEscape(joined)),
		ExpiresAt:          stripe.Int64(s.now().Add(s.cfg.SessionTTL).Unix()),
	}
	if buyer.Email != "" {
		params.CustomerEmail = stripe.String(buyer.Email)
	}
	if len(s.cfg.ShippingCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(s.cfg.ShippingCountries),
		}
	}
	params.AddMetadata("order_ids", joined)
	params.AddMetadata("user_id", buyer.ID.String())

	for _, line := range lines {
		amount, err := line.UnitPrice().MinorUnits(currency)
		if err != nil {
			return nil, err
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Product.Name),
		}
		if len(line.Product.Images) > 0 {
			productData.Images = stripe.StringSlice([]string{line.Product.Images[0]})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(amount),
				ProductData: productData,
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	return params, nil
}

func (s *service) finish(ctx context.Context, session *stripe.CheckoutSession, orderIDs []uuid.UUID) *Result {
	ctx = s.deps.Logger.WithCheckoutSession(ctx, session.ID)
	if err := s.deps.Orders.SetCheckoutSession(ctx, orderIDs, session.ID); err != nil {
		// the webhook resolves orders from session metadata, so a missing stamp is recoverable
		s.deps.Logger.Error(ctx, "stamp checkout session on orders", err)
	}
	s.deps.Logger.Info(s.deps.Logger.WithField(ctx, "order_count", len(orderIDs)), "checkout session created")
	return &Result{SessionID: session.ID, URL: session.URL, OrderIDs: orderIDs}
}

// compensate cancels orders whose payment session could not be opened.
func (s *service) compensate(ctx context.Context, created []models.Order) error {
	return s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deps.Orders.WithTx(tx)
		now := s.now()
		var errs error
		for _, order := range created {
			moved, err := repo.CancelPending(ctx, order.ID, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
				continue
			}
			if !moved {
				continue
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data: payloads.OrderCancelledEvent{
					OrderID:     order.ID,
					BuyerID:     order.BuyerID,
					StoreID:     order.StoreID,
					Reason:      "payment_session_failed",
					CancelledAt: now,
				},
			}
			errs = multierr.Append(errs, s.deps.Outbox.Emit(ctx, tx, event))
		}
		return errs
	})
}

func (s *service) origin(requested string) string {
	requested = strings.TrimRight(strings.TrimSpace(requested), "/")
	if requested != "" {
		for _, allowed := range append([]string{s.cfg.PublicOrigin}, s.cfg.AllowedOrigins...) {
			if strings.EqualFold(requested, strings.TrimRight(allowed, "/")) {
				return requested
			}
		}
	}
	return strings.TrimRight(s.cfg.PublicOrigin, "/")
}

func (s *service) record(err error, stripeFailed bool) {
	if s.deps.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.deps.Metrics.IncCheckout(ResultSuccess)
	case stripeFailed:
		s.deps.Metrics.IncCheckout(ResultStripeFail)
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		s.deps.Metrics.IncCheckout(ResultRejected)
	default:
		s.deps.Metrics.IncCheckout(ResultError)
	}
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}
