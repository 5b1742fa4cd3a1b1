package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their items.
//
// Status writes are conditional on the expected current status; the boolean
// results report whether the row actually moved.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	FindForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	FindForStore(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, page pagination.PageParams) ([]models.Order, int64, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, status *enums.OrderStatus, page pagination.PageParams) ([]models.Order, int64, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	CancelPending(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	SetCheckoutSession(ctx context.Context, ids []uuid.UUID, sessionID string) error
}
