package checkout

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

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
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type fakeSessions struct {
	currency string
	err      error
	calls    []*stripe.CheckoutSessionParams
}

func (f *fakeSessions) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

func (f *fakeSessions) Currency() string { return f.currency }

type fakeMetrics struct{ results []string }

func (m *fakeMetrics) IncCheckout(result string) { m.results = append(m.results, result) }

type buyersByID struct{ conn *gorm.DB }

func (b buyersByID) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := b.conn.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type checkoutFixture struct {
	svc      Service
	conn     *gorm.DB
	sessions *fakeSessions
	metrics  *fakeMetrics
	buyer    models.User
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	sessions := &fakeSessions{currency: "usd"}
	metrics := &fakeMetrics{}
	svc, err := NewService(Deps{
		Tx:       client,
		Cart:     cart.NewRepository(conn),
		Products: product.NewRepository(conn),
		Buyers:   buyersByID{conn: conn},
		Orders:   orders.NewRepository(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Payments: sessions,
		Metrics:  metrics,
		Logger:   logger.Nop(),
	}, Config{
		PublicOrigin:      "https://shop.example.com",
		ShippingCountries: []string{"US", "CA", "GB", "AU"},
		SessionTTL:        24 * time.Hour,
	})
	require.NoError(t, err)
	return checkoutFixture{
		svc:      svc,
		conn:     conn,
		sessions: sessions,
		metrics:  metrics,
		buyer:    dbtest.SeedUser(t, conn, enums.UserRoleBuyer),
	}
}

func shipping() types.ShippingAddress {
	return types.ShippingAddress{
		FullName:     "Ada Buyer",
		AddressLine1: "1 Main St",
		City:         "Austin",
		State:        "TX",
		PostalCode:   "78701",
		Country:      "US",
	}
}

func seedStoreProduct(t *testing.T, conn *gorm.DB, price string, stock int) models.Product {
	t.Helper()
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	return dbtest.SeedProduct(t, conn, store.ID, price, stock)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func countRows(t *testing.T, conn *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Count(&n).Error)
	return n
}

func TestExecuteSplitsOrdersPerStore(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	first := seedStoreProduct(t, f.conn, "12.00", 5)
	second := seedStoreProduct(t, f.conn, "3.50", 5)
	extra := dbtest.SeedProduct(t, f.conn, first.StoreID, "1.25", 5)

	repo := cart.NewRepository(f.conn)
	require.NoError(t, repo.AddQuantity(ctx, f.buyer.ID, first.ID, 2))
	require.NoError(t, repo.AddQuantity(ctx, f.buyer.ID, second.ID, 1))
	require.NoError(t, repo.AddQuantity(ctx, f.buyer.ID, extra.ID, 4))

	res, err := f.svc.Execute(ctx, Input{BuyerID: f.buyer.ID, ShippingAddress: shipping()})
	require.NoError(t, err)
	require.Equal(t, "cs_test_123", res.SessionID)
	require.Len(t, res.OrderIDs, 2)

	var created []models.Order
	require.NoError(t, f.conn.Preload("Items").Where("id IN ?", res.OrderIDs).Find(&created).Error)
	totals := map[uuid.UUID]string{}
	for _, order := range created {
		require.Equal(t, enums.OrderStatusPending, order.Status)
		require.NotNil(t, order.CheckoutSessionID)
		require.Equal(t, "cs_test_123", *order.CheckoutSessionID)
		require.Equal(t, "US", order.ShippingAddress.Country)
		totals[order.StoreID] = order.TotalAmount.String()
	}
	require.Equal(t, "29.00", totals[first.StoreID])
	require.Equal(t, "3.50", totals[second.StoreID])

	require.Equal(t, int64(2), countRows(t, f.conn, &models.OutboxEvent{}))
	require.Equal(t, int64(3), countRows(t, f.conn, &models.CartItem{}))
	require.Equal(t, []string{ResultSuccess}, f.metrics.results)

	require.Len(t, f.sessions.calls, 1)
	params := f.sessions.calls[0]
	require.Len(t, params.LineItems, 3)
	require.Equal(t, int64(1200), *params.LineItems[0].PriceData.UnitAmount)
	require.Equal(t, int64(2), *params.LineItems[0].Quantity)
	require.Equal(t, f.buyer.Email, *params.CustomerEmail)
	require.Equal(t, f.buyer.ID.String(), params.Metadata["user_id"])
	require.Len(t, strings.Split(params.Metadata["order_ids"], ","), 2)
	require.True(t, strings.HasPrefix(*params.SuccessURL, "https://shop.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}&order_ids="))
	require.Contains(t, *params.CancelURL, url.QueryEscape(params.Metadata["order_ids"]))
	require.Len(t, params.ShippingAddressCollection.AllowedCountries, 4)
}

func TestExecuteSnapshotsServerPrices(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	p := seedStoreProduct(t, f.conn, "10.00", 5)

	res, err := f.svc.Execute(ctx, Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 2}},
		ShippingAddress: shipping(),
	})
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", types.MustMoney("99.00")).Error)

	var item models.OrderItem
	require.NoError(t, f.conn.Where("order_id = ?", res.OrderIDs[0]).First(&item).Error)
	require.Equal(t, "10.00", item.UnitPrice.String())
	require.Equal(t, "20.00", item.TotalPrice.String())
	require.Equal(t, p.Name, item.ProductName)
}

func TestExecuteRejectsEmptyCartBeforeAnyWrite(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Execute(context.Background(), Input{BuyerID: f.buyer.ID, ShippingAddress: shipping()})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Empty(t, f.sessions.calls)
	require.Zero(t, countRows(t, f.conn, &models.Order{}))
	require.Equal(t, []string{ResultRejected}, f.metrics.results)
}

func TestExecuteRejectsBadAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	p := seedStoreProduct(t, f.conn, "1.00", 5)
	addr := shipping()
	addr.Country = "USA"

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: addr,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Zero(t, countRows(t, f.conn, &models.Order{}))
}

func TestExecuteRejectsUnavailableProducts(t *testing.T) {
	f := newCheckoutFixture(t)
	p := seedStoreProduct(t, f.conn, "1.00", 2)

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 3}},
		ShippingAddress: shipping(),
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: uuid.New(), Quantity: 1}},
		ShippingAddress: shipping(),
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	require.NoError(t, f.conn.Model(&models.Store{}).Where("id = ?", p.StoreID).Update("status", enums.StoreStatusSuspended).Error)
	_, err = f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: shipping(),
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	require.Zero(t, countRows(t, f.conn, &models.Order{}))
	require.Empty(t, f.sessions.calls)
}

func TestExecuteSkipsCartRowsHiddenFromTheCartView(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	repo := cart.NewRepository(f.conn)
	visible := seedStoreProduct(t, f.conn, "6.00", 5)
	archived := seedStoreProduct(t, f.conn, "9.00", 5)
	require.NoError(t, repo.AddQuantity(ctx, f.buyer.ID, visible.ID, 1))
	require.NoError(t, repo.AddQuantity(ctx, f.buyer.ID, archived.ID, 2))
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", archived.ID).Update("status", enums.ProductStatusArchived).Error)

	result, err := f.svc.Execute(ctx, Input{BuyerID: f.buyer.ID, ShippingAddress: shipping()})
	require.NoError(t, err)
	require.Len(t, result.OrderIDs, 1)

	var order models.Order
	require.NoError(t, f.conn.Preload("Items").First(&order, "id = ?", result.OrderIDs[0]).Error)
	require.Equal(t, visible.StoreID, order.StoreID)
	require.Len(t, order.Items, 1)
	require.Equal(t, visible.ID, order.Items[0].ProductID)
	require.Len(t, f.sessions.calls[0].LineItems, 1)

	// The hidden row stays in the stored cart.
	require.Equal(t, int64(2), countRows(t, f.conn, &models.CartItem{}))
}

func TestExecuteRejectsCartWithOnlyHiddenRows(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	archived := seedStoreProduct(t, f.conn, "9.00", 5)
	require.NoError(t, cart.NewRepository(f.conn).AddQuantity(ctx, f.buyer.ID, archived.ID, 1))
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", archived.ID).Update("status", enums.ProductStatusArchived).Error)

	_, err := f.svc.Execute(ctx, Input{BuyerID: f.buyer.ID, ShippingAddress: shipping()})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Zero(t, countRows(t, f.conn, &models.Order{}))
	require.Empty(t, f.sessions.calls)
}

func TestExecuteCompensatesWhenSessionFails(t *testing.T) {
	f := newCheckoutFixture(t)
	f.sessions.err = errors.New("stripe down")
	a := seedStoreProduct(t, f.conn, "5.00", 5)
	b := seedStoreProduct(t, f.conn, "6.00", 5)

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}},
		ShippingAddress: shipping(),
	})
	requireCode(t, err, pkgerrors.CodeDependency)

	var rows []models.Order
	require.NoError(t, f.conn.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, enums.OrderStatusCancelled, row.Status)
		require.NotNil(t, row.CancelledAt)
		require.Nil(t, row.CheckoutSessionID)
	}

	var cancelled int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCancelled).Count(&cancelled).Error)
	require.Equal(t, int64(2), cancelled)
	require.Equal(t, []string{ResultStripeFail}, f.metrics.results)
}

func TestExecuteUsesAllowedOriginOnly(t *testing.T) {
	f := newCheckoutFixture(t)
	p := seedStoreProduct(t, f.conn, "1.00", 5)

	_, err := f.svc.Execute(context.Background(), Input{
		BuyerID:         f.buyer.ID,
		Items:           []LineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: shipping(),
		Origin:          "https://evil.example.net",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(*f.sessions.calls[0].CancelURL, "https://shop.example.com/checkout/cancel"))
}
