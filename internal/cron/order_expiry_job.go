package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

const (
	defaultPendingTTL  = 25 * time.Hour
	defaultExpiryBatch = 200
)

// OrderExpiryJobParams configure the stale pending order sweep.
type OrderExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Orders     orders.Repository
	Outbox     outboxEmitter
	PendingTTL time.Duration
	BatchSize  int
}

// NewOrderExpiryJob builds the job that cancels orders left pending longer
// than the TTL. Only rows still pending at update time are touched.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		outbox: params.Outbox,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	orders orders.Repository
	outbox outboxEmitter
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.ttl)
	stale, err := j.orders.ListStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs error
	expired := 0
	for _, order := range stale {
		ok, err := j.expireOrder(ctx, order, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return errs
}

func (j *orderExpiryJob) expireOrder(ctx context.Context, order models.Order, now time.Time) (bool, error) {
	var expired bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.orders.WithTx(tx).CancelPending(ctx, order.ID, now)
		if err != nil || !ok {
			return err
		}
		expired = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				StoreID:    order.StoreID,
				ExpiredAt:  now,
				PendingTTL: j.ttl.String(),
			},
		})
	})
	return expired, err
}
