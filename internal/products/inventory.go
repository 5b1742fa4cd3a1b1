package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientStock reports that a decrement asked for more than remained.
// The counter has already been floored to zero when it is returned.
var ErrInsufficientStock = errors.New("insufficient stock")

// DecrementResult describes one applied decrement.
type DecrementResult struct {
	ProductID uuid.UUID
	Requested int
	// Available is the stock seen by the floor update when the request could
	// not be met in full, and equals Requested otherwise.
	Available int
	Floored   bool
}

// InventoryDecrementer lowers inventory_count with a single conditional
// statement so concurrent payments can never drive it below zero.
type InventoryDecrementer struct{}

// NewInventoryDecrementer returns the decrementer.
func NewInventoryDecrementer() *InventoryDecrementer {
	return &InventoryDecrementer{}
}

// Decrement subtracts qty from the product's inventory inside tx. When fewer
// than qty units remain, the count is set to zero and ErrInsufficientStock is
// returned together with the result.
func (d *InventoryDecrementer) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (DecrementResult, error) {
	result := DecrementResult{ProductID: productID, Requested: qty, Available: qty}
	if tx == nil {
		return result, errors.New("transaction required")
	}
	if qty <= 0 {
		return result, fmt.Errorf("decrement quantity must be positive, got %d", qty)
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND inventory_count >= ?", productID, qty).
		UpdateColumn("inventory_count", gorm.Expr("inventory_count - ?", qty))
	if res.Error != nil {
		return result, res.Error
	}
	if res.RowsAffected == 1 {
		return result, nil
	}

	var current struct{ InventoryCount int }
	if err := tx.WithContext(ctx).
		Model(&models.Product{}).
		Select("inventory_count").
		Where("id = ?", productID).
		Take(&current).Error; err != nil {
		return result, err
	}

	floor := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND inventory_count < ?", productID, qty).
		UpdateColumn("inventory_count", 0)
	if floor.Error != nil {
		return result, floor.Error
	}
	result.Available = current.InventoryCount
	result.Floored = true
	return result, ErrInsufficientStock
}
