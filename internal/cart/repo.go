package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence operations for account cart rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) ItemRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListForBuyer returns the buyer's rows with product and store, oldest first.
func (r *Repository) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Store").
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// AddQuantity inserts the row or adds qty to the existing quantity. Concurrent
// calls for the same product are additive.
func (r *Repository) AddQuantity(ctx context.Context, buyerID, productID uuid.UUID, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", qty)
	}
	row := models.CartItem{BuyerID: buyerID, ProductID: productID, Quantity: qty}
	return r.db.WithContext(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "buyer_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&row).Error
}

// SetQuantity overwrites the quantity of an existing row. It reports false
// when the buyer has no row for the product.
func (r *Repository) SetQuantity(ctx context.Context, buyerID, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Updates(map[string]interface{}{"quantity": qty, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes one product from the buyer's cart.
func (r *Repository) Delete(ctx context.Context, buyerID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Delete(&models.CartItem{}).Error
}

// DeleteForBuyer empties the buyer's cart and returns the number of rows removed.
func (r *Repository) DeleteForBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
