package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type recordedMetrics struct {
	events   []string
	paid     int
	oversold int
}

func (m *recordedMetrics) IncWebhookEvent(eventType, outcome string) {
	m.events = append(m.events, eventType+":"+outcome)
}
func (m *recordedMetrics) AddOrdersPaid(n int) { m.paid += n }
func (m *recordedMetrics) IncOversold()        { m.oversold++ }

// failingDecrementer fails for one product, chosen after seeding.
type failingDecrementer struct {
	inner  inventoryDecrementer
	target *uuid.UUID
}

func (d *failingDecrementer) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (product.DecrementResult, error) {
	if productID == *d.target {
		return product.DecrementResult{}, errors.New("row lock timeout")
	}
	return d.inner.Decrement(ctx, tx, productID, qty)
}

type webhookFixture struct {
	svc     *Service
	conn    *gorm.DB
	metrics *recordedMetrics
	buyer   models.User
	storeA  models.Store
	storeB  models.Store
}

func newWebhookFixture(t *testing.T, inventory func(inventoryDecrementer) inventoryDecrementer) webhookFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	metrics := &recordedMetrics{}
	var dec inventoryDecrementer = product.NewInventoryDecrementer()
	if inventory != nil {
		dec = inventory(dec)
	}
	svc, err := NewService(ServiceParams{
		Orders:            orders.NewRepository(conn),
		Inventory:         dec,
		Cart:              cart.NewRepository(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		TransactionRunner: client,
		Metrics:           metrics,
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)

	ownerA := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	ownerB := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	return webhookFixture{
		svc:     svc,
		conn:    conn,
		metrics: metrics,
		buyer:   dbtest.SeedUser(t, conn, enums.UserRoleBuyer),
		storeA:  dbtest.SeedStore(t, conn, ownerA.ID, enums.StoreStatusApproved),
		storeB:  dbtest.SeedStore(t, conn, ownerB.ID, enums.StoreStatusApproved),
	}
}

func sessionEvent(t *testing.T, eventType stripe.EventType, buyerID uuid.UUID, paymentStatus string, orderIDs ...uuid.UUID) *stripe.Event {
	t.Helper()
	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		ids = append(ids, id.String())
	}
	raw, err := json.Marshal(map[string]any{
		"id":             "cs_test_abc",
		"object":         "checkout.session",
		"payment_status": paymentStatus,
		"metadata": map[string]string{
			"order_ids": strings.Join(ids, ","),
			"user_id":   buyerID.String(),
		},
	})
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func loadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", id).Error)
	return order
}

func inventoryOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, conn.First(&p, "id = ?", id).Error)
	return p.InventoryCount
}

func outboxCount(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCompletedSessionPaysOrdersAndClearsCart(t *testing.T) {
	f := newWebhookFixture(t, nil)
	ctx := context.Background()
	pa := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	pb := dbtest.SeedProduct(t, f.conn, f.storeB.ID, "4.00", 3)
	orderA := dbtest.SeedOrder(t, f.conn, f.buyer.ID, pa, 2, enums.OrderStatusPending)
	orderB := dbtest.SeedOrder(t, f.conn, f.buyer.ID, pb, 3, enums.OrderStatusPending)
	require.NoError(t, cart.NewRepository(f.conn).AddQuantity(ctx, f.buyer.ID, pa.ID, 2))

	outcome, err := f.svc.HandleEvent(ctx, sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, f.buyer.ID, "paid", orderA.ID, orderB.ID))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	for _, id := range []uuid.UUID{orderA.ID, orderB.ID} {
		order := loadOrder(t, f.conn, id)
		require.Equal(t, enums.OrderStatusPaid, order.Status)
		require.NotNil(t, order.PaidAt)
	}
	require.Equal(t, 3, inventoryOf(t, f.conn, pa.ID))
	require.Equal(t, 0, inventoryOf(t, f.conn, pb.ID))
	require.Equal(t, int64(2), outboxCount(t, f.conn, enums.EventOrderPaid))

	var cartRows int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("buyer_id = ?", f.buyer.ID).Count(&cartRows).Error)
	require.Zero(t, cartRows)

	require.Equal(t, 2, f.metrics.paid)
	require.Equal(t, []string{"checkout.session.completed:processed"}, f.metrics.events)
}

func TestCompletedSessionIsIdempotentPerOrder(t *testing.T) {
	f := newWebhookFixture(t, nil)
	ctx := context.Background()
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 2, enums.OrderStatusPending)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, f.buyer.ID, "paid", order.ID)

	_, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)

	// A new cart row added after payment must survive a replayed delivery.
	require.NoError(t, cart.NewRepository(f.conn).AddQuantity(ctx, f.buyer.ID, p.ID, 1))
	outcome, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)

	require.Equal(t, 3, inventoryOf(t, f.conn, p.ID))
	require.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventOrderPaid))
	var cartRows int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("buyer_id = ?", f.buyer.ID).Count(&cartRows).Error)
	require.Equal(t, int64(1), cartRows)
}

func TestCompletedSessionFloorsOversoldInventory(t *testing.T) {
	f := newWebhookFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 4, enums.OrderStatusPending)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("inventory_count", 1).Error)

	outcome, err := f.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, f.buyer.ID, "paid", order.ID))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	require.Equal(t, enums.OrderStatusPaid, loadOrder(t, f.conn, order.ID).Status)
	require.Equal(t, 0, inventoryOf(t, f.conn, p.ID))
	require.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventInventoryOversold))
	require.Equal(t, 1, f.metrics.oversold)
}

func TestCompletedSessionKeepsPaidStatusWhenStockUpdateFails(t *testing.T) {
	var failing uuid.UUID
	f := newWebhookFixture(t, func(inner inventoryDecrementer) inventoryDecrementer {
		return &failingDecrementer{inner: inner, target: &failing}
	})
	good := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	bad := dbtest.SeedProduct(t, f.conn, f.storeB.ID, "10.00", 5)
	failing = bad.ID
	goodOrder := dbtest.SeedOrder(t, f.conn, f.buyer.ID, good, 1, enums.OrderStatusPending)
	badOrder := dbtest.SeedOrder(t, f.conn, f.buyer.ID, bad, 1, enums.OrderStatusPending)
	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, f.buyer.ID, "paid", badOrder.ID, goodOrder.ID)

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, outcome)

	paid := loadOrder(t, f.conn, badOrder.ID)
	require.Equal(t, enums.OrderStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, 5, inventoryOf(t, f.conn, bad.ID))
	require.Equal(t, enums.OrderStatusPaid, loadOrder(t, f.conn, goodOrder.ID).Status)
	require.Equal(t, 4, inventoryOf(t, f.conn, good.ID))
	require.Equal(t, int64(2), outboxCount(t, f.conn, enums.EventOrderPaid))
	require.Equal(t, 2, f.metrics.paid)

	// A redelivery finds both orders settled and changes nothing.
	outcome, err = f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
	require.Equal(t, int64(2), outboxCount(t, f.conn, enums.EventOrderPaid))
}

func TestCompletedSessionIsolatesOrderFailures(t *testing.T) {
	f := newWebhookFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 1, enums.OrderStatusPending)
	raw := []byte(`{"id":"cs_mixed","object":"checkout.session","payment_status":"paid","metadata":{"order_ids":"not-a-uuid,` + order.ID.String() + `","user_id":"` + f.buyer.ID.String() + `"}}`)

	outcome, err := f.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_mixed",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, outcome)
	require.Equal(t, enums.OrderStatusPaid, loadOrder(t, f.conn, order.ID).Status)
	require.Equal(t, 4, inventoryOf(t, f.conn, p.ID))
}

func TestCompletedUnpaidSessionWaits(t *testing.T) {
	f := newWebhookFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 1, enums.OrderStatusPending)

	outcome, err := f.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, f.buyer.ID, "unpaid", order.ID))
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
	require.Equal(t, enums.OrderStatusPending, loadOrder(t, f.conn, order.ID).Status)

	outcome, err = f.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, f.buyer.ID, "paid", order.ID))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)
	require.Equal(t, enums.OrderStatusPaid, loadOrder(t, f.conn, order.ID).Status)
}

func TestExpiredSessionCancelsOnlyPendingOrders(t *testing.T) {
	f := newWebhookFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	pending := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 1, enums.OrderStatusPending)
	paid := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 1, enums.OrderStatusPaid)

	outcome, err := f.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, f.buyer.ID, "unpaid", pending.ID, paid.ID, uuid.New()))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	cancelled := loadOrder(t, f.conn, pending.ID)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Equal(t, enums.OrderStatusPaid, loadOrder(t, f.conn, paid.ID).Status)
	require.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventOrderCancelled))
	require.Equal(t, 5, inventoryOf(t, f.conn, p.ID))
}

func TestPaymentFailedIsLoggedOnly(t *testing.T) {
	f := newWebhookFixture(t, nil)
	event := &stripe.Event{
		ID:   "evt_failed",
		Type: stripe.EventTypePaymentIntentPaymentFailed,
		Data: &stripe.EventData{
			Raw:    []byte(`{"id":"pi_123"}`),
			Object: map[string]interface{}{"id": "pi_123", "last_payment_error": map[string]interface{}{"code": "card_declined"}},
		},
	}

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeLogged, outcome)
	require.Equal(t, []string{"payment_intent.payment_failed:logged"}, f.metrics.events)
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	f := newWebhookFixture(t, nil)
	outcome, err := f.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)
}

func TestSessionWithoutOrderMetadataIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t, nil)
	for _, eventType := range []stripe.EventType{stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired} {
		outcome, err := f.svc.HandleEvent(context.Background(), &stripe.Event{
			ID:   "evt_foreign",
			Type: eventType,
			Data: &stripe.EventData{Raw: []byte(`{"id":"cs_payment_link","object":"checkout.session","payment_status":"paid"}`)},
		})
		require.NoError(t, err)
		require.Equal(t, OutcomeNoop, outcome)
	}
	require.Equal(t, []string{"checkout.session.completed:noop", "checkout.session.expired:noop"}, f.metrics.events)
}

func TestExpiredSessionCancelsValidIDsAlongsideBadOnes(t *testing.T) {
	f := newWebhookFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, f.storeA.ID, "10.00", 5)
	order := dbtest.SeedOrder(t, f.conn, f.buyer.ID, p, 1, enums.OrderStatusPending)
	raw := []byte(`{"id":"cs_mixed","object":"checkout.session","metadata":{"order_ids":"` + order.ID.String() + `,42","user_id":"nobody"}}`)

	outcome, err := f.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_mixed_expired",
		Type: stripe.EventTypeCheckoutSessionExpired,
		Data: &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, outcome)
	require.Equal(t, enums.OrderStatusCancelled, loadOrder(t, f.conn, order.ID).Status)
}

func TestUndecodableSessionIsRejected(t *testing.T) {
	f := newWebhookFixture(t, nil)
	_, err := f.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_bad",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":`)},
	})
	require.Error(t, err)

	_, err = f.svc.HandleEvent(context.Background(), &stripe.Event{ID: "evt_nil", Type: stripe.EventTypeCheckoutSessionCompleted})
	require.Error(t, err)
	require.Equal(t, []string{"checkout.session.completed:invalid"}, f.metrics.events)
}

func TestParseOrderIDs(t *testing.T) {
	id := uuid.New()
	ids, invalid := parseOrderIDs(" " + id.String() + "," + id.String() + ",nope, ")
	require.Equal(t, []uuid.UUID{id}, ids)
	require.Equal(t, []string{"nope"}, invalid)

	ids, invalid = parseOrderIDs("")
	require.Empty(t, ids)
	require.Empty(t, invalid)
}
