package stores

import (
	"time"

	"github.com/google/uuid"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// StoreDTO exposes store data in API responses.
type StoreDTO struct {
	ID           uuid.UUID         `json:"id"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	Description  *string           `json:"description,omitempty"`
	LogoURL      *string           `json:"logo_url,omitempty"`
	BannerURL    *string           `json:"banner_url,omitempty"`
	Status       enums.StoreStatus `json:"status"`
	ProductCount *int64            `json:"product_count,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StoreDetailDTO is a public store page.
type StoreDetailDTO struct {
	StoreDTO
	Products []product.ProductDTO `json:"products"`
}

// StoreListResult is one page of stores.
type StoreListResult struct {
	Items []StoreDTO `json:"items"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Total int64      `json:"total"`
}

// FromModel maps the persisted store into a DTO.
func FromModel(m *models.Store) *StoreDTO {
	if m == nil {
		return nil
	}
	return &StoreDTO{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		LogoURL:     m.LogoURL,
		BannerURL:   m.BannerURL,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
