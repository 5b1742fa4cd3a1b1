package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Store is an independently owned storefront.
type Store struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:stores_owner_id_key"`
	Name        string            `gorm:"column:name;not null"`
	Slug        string            `gorm:"column:slug;not null;uniqueIndex:stores_slug_key"`
	Description *string           `gorm:"column:description"`
	LogoURL     *string           `gorm:"column:logo_url"`
	BannerURL   *string           `gorm:"column:banner_url"`
	Status      enums.StoreStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Owner       *User             `gorm:"foreignKey:OwnerID"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Store) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
