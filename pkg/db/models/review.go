package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type Review struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index;uniqueIndex:reviews_buyer_order_product_key,priority:3"`
	BuyerID   uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:reviews_buyer_order_product_key,priority:1"`
	OrderID   uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:reviews_buyer_order_product_key,priority:2"`
	Rating    int                `gorm:"column:rating;not null;check:reviews_rating_check,rating BETWEEN 1 AND 5"`
	Comment   *string            `gorm:"column:comment"`
	Status    enums.ReviewStatus `gorm:"column:status;type:text;not null;default:'visible'"`
	Buyer     *User              `gorm:"foreignKey:BuyerID"`
	Product   *Product           `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
