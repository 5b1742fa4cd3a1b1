package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartItem is one line of an authenticated buyer's cart. There is at most one
// row per (buyer, product).
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:cart_items_buyer_product_key,priority:1"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:cart_items_buyer_product_key,priority:2"`
	Quantity  int       `gorm:"column:quantity;not null;check:cart_items_quantity_check,quantity >= 1"`
	Product   *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
