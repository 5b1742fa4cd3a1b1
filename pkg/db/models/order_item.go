package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// OrderItem snapshots price and name at checkout and is never updated.
type OrderItem struct {
	ID          uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID   `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID   `gorm:"column:product_id;type:uuid;not null"`
	ProductName string      `gorm:"column:product_name;not null"`
	Quantity    int         `gorm:"column:quantity;not null"`
	UnitPrice   types.Money `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalPrice  types.Money `gorm:"column:total_price;type:numeric(12,2);not null"`
	Product     *Product    `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
