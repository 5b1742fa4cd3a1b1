package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Order belongs to exactly one buyer and one store. Orders from one checkout
// share a CheckoutSessionID.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index"`
	StoreID           uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending';index"`
	TotalAmount       types.Money           `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ShippingAddress   types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	CheckoutSessionID *string               `gorm:"column:checkout_session_id;index"`
	PaidAt            *time.Time            `gorm:"column:paid_at"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at"`
	Items             []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Store             *Store                `gorm:"foreignKey:StoreID"`
	Buyer             *User                 `gorm:"foreignKey:BuyerID"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
