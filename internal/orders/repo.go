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

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items", "Store", "Buyer").Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Product").Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withItems().WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return []models.Order{}, nil
	}
	var orders []models.Order
	err := r.withItems().WithContext(ctx).
		Where("id IN ?", ids).
		Find(&orders).Error
	return orders, err
}

func (r *repository) FindForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems().WithContext(ctx).
		Preload("Store").
		Where("id = ? AND buyer_id = ?", orderID, buyerID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForStore(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems().WithContext(ctx).
		Preload("Buyer").
		Where("id = ? AND store_id = ?", orderID, storeID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, page pagination.PageParams) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := pagination.ApplyPage(query, page).
		Preload("Items", orderItemsOrder).
		Preload("Store").
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	return orders, total, err
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, status *enums.OrderStatus, page pagination.PageParams) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("store_id = ?", storeID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := pagination.ApplyPage(query, page).
		Preload("Items", orderItemsOrder).
		Preload("Buyer").
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	return orders, total, err
}

// ListStalePending returns pending orders created before cutoff, oldest first.
func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&orders).Error
	return orders, err
}

// MarkPaid moves a pending order to paid.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPending cancels an order only while it is still pending, so a late
// expiry can never overwrite a payment.
func (r *repository) CancelPending(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.Transition(ctx, id, enums.OrderStatusPending, enums.OrderStatusCancelled, at)
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if to == enums.OrderStatusCancelled {
		updates["cancelled_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetCheckoutSession(ctx context.Context, ids []uuid.UUID, sessionID string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", ids).
		Update("checkout_session_id", sessionID).Error
}

func (r *repository) withItems() *gorm.DB {
	return r.db.Preload("Items", orderItemsOrder)
}

func orderItemsOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
