package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Product is a catalog entry owned by one store. InventoryCount is only ever
// decremented by payment confirmation.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	StoreID        uuid.UUID           `gorm:"column:store_id;type:uuid;not null;index"`
	CategoryID     *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Name           string              `gorm:"column:name;not null"`
	Slug           string              `gorm:"column:slug;not null;uniqueIndex:products_slug_key"`
	Description    *string             `gorm:"column:description"`
	Price          types.Money         `gorm:"column:price;type:numeric(12,2);not null"`
	ComparePrice   *types.Money        `gorm:"column:compare_price;type:numeric(12,2)"`
	Images         types.StringList    `gorm:"column:images;type:jsonb;not null;default:'[]'"`
	InventoryCount int                 `gorm:"column:inventory_count;not null;default:0;check:products_inventory_count_check,inventory_count >= 0"`
	Status         enums.ProductStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	Store          *Store              `gorm:"foreignKey:StoreID"`
	Category       *Category           `gorm:"foreignKey:CategoryID"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Purchasable reports whether buyers may currently add and check out the product.
func (p *Product) Purchasable() bool {
	if p == nil || p.Status != enums.ProductStatusActive {
		return false
	}
	return p.Store == nil || p.Store.Status == enums.StoreStatusApproved
}
