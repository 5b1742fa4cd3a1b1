package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

func backdate(t *testing.T, conn *gorm.DB, id any, at time.Time) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", id).UpdateColumn("created_at", at).Error)
}

func TestOrderExpiryJobCancelsOnlyStalePending(t *testing.T) {
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	buyer := dbtest.SeedUser(t, conn, enums.UserRoleBuyer)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	p := dbtest.SeedProduct(t, conn, store.ID, "5.00", 10)

	stale := dbtest.SeedOrder(t, conn, buyer.ID, p, 1, enums.OrderStatusPending)
	fresh := dbtest.SeedOrder(t, conn, buyer.ID, p, 1, enums.OrderStatusPending)
	paid := dbtest.SeedOrder(t, conn, buyer.ID, p, 1, enums.OrderStatusPaid)
	backdate(t, conn, stale.ID, now.Add(-26*time.Hour))
	backdate(t, conn, fresh.ID, now.Add(-2*time.Hour))
	backdate(t, conn, paid.ID, now.Add(-72*time.Hour))

	jobIface, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger: logger.Nop(),
		DB:     client,
		Orders: orders.NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)
	job := jobIface.(*orderExpiryJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	status := func(id any) enums.OrderStatus {
		var o models.Order
		require.NoError(t, conn.First(&o, "id = ?", id).Error)
		return o.Status
	}
	require.Equal(t, enums.OrderStatusCancelled, status(stale.ID))
	require.Equal(t, enums.OrderStatusPending, status(fresh.ID))
	require.Equal(t, enums.OrderStatusPaid, status(paid.ID))

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderExpired, events[0].EventType)
	require.Equal(t, stale.ID, events[0].AggregateID)

	// A second sweep finds nothing left to do.
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Find(&events).Error)
	require.Len(t, events, 1)
}

func TestNewOrderExpiryJobDefaults(t *testing.T) {
	_, conn := dbtest.Client(t)
	jobIface, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger: logger.Nop(),
		DB:     outboxRetentionTxRunner{},
		Orders: orders.NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)
	job := jobIface.(*orderExpiryJob)
	require.Equal(t, 25*time.Hour, job.ttl)
	require.Equal(t, "order-expiry", job.Name())

	_, err = NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
