package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ownerStoreLoader interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error)
}

// Service defines the buyer and store-owner order operations.
type Service interface {
	ListMine(ctx context.Context, buyerID uuid.UUID, page, limit int) (*OrderList, error)
	GetMine(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error)
	ListForStore(ctx context.Context, ownerID uuid.UUID, input StoreListInput) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
}

// StoreListInput filters the owner's order listing.
type StoreListInput struct {
	Status *enums.OrderStatus
	Page   int
	Limit  int
}

// UpdateStatusInput carries an owner's fulfillment transition.
type UpdateStatusInput struct {
	OrderID   uuid.UUID
	Status    enums.OrderStatus
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	stores ownerStoreLoader
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, stores ownerStoreLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		stores: stores,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ListMine(ctx context.Context, buyerID uuid.UUID, page, limit int) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	params := pagination.NormalizePage(page, limit)
	rows, total, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return newOrderList(rows, params.Page, params.Limit, total), nil
}

// GetMine returns one of the buyer's orders. Orders owned by someone else are
// reported as not found.
func (s *service) GetMine(ctx context.Context, buyerID, orderID uuid.UUID) (*OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindForBuyer(ctx, buyerID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := FromModel(*order)
	return &dto, nil
}

func (s *service) ListForStore(ctx context.Context, ownerID uuid.UUID, input StoreListInput) (*OrderList, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	store, err := s.ownerStore(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	params := pagination.NormalizePage(input.Page, input.Limit)
	rows, total, err := s.repo.ListByStore(ctx, store.ID, input.Status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store orders")
	}
	return newOrderList(rows, params.Page, params.Limit, total), nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", input.Status)
	}
	store, err := s.ownerStore(ctx, input.ActorID)
	if err != nil {
		return nil, err
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForStore(ctx, store.ID, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		from := order.Status
		if !CanOwnerTransition(from, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, input.Status)
		}
		now := s.now()
		moved, err := repo.Transition(ctx, order.ID, from, input.Status, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		order.Status = input.Status
		if input.Status == enums.OrderStatusCancelled {
			order.CancelledAt = &now
		}

		if err := s.outbox.Emit(ctx, tx, statusEvent(order, from, input)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) ownerStore(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	store, err := s.stores.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owner store")
	}
	return store, nil
}

func statusEvent(order *models.Order, from enums.OrderStatus, input UpdateStatusInput) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(input.ActorID, input.ActorRole),
		Data: payloads.OrderStatusChangedEvent{
			OrderID: order.ID,
			StoreID: order.StoreID,
			BuyerID: order.BuyerID,
			From:    from,
			To:      order.Status,
		},
	}
	if order.Status == enums.OrderStatusCancelled {
		event.EventType = enums.EventOrderCancelled
		event.Data = payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			StoreID:     order.StoreID,
			Reason:      "cancelled_by_store",
			CancelledAt: *order.CancelledAt,
		}
	}
	return event
}

func buildActor(userID uuid.UUID, role enums.UserRole) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
