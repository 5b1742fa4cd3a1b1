package product

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
	"github.com/google/uuid"
)

// ProductDTO is the catalog representation of a product.
type ProductDTO struct {
	ID             uuid.UUID           `json:"id"`
	StoreID        uuid.UUID           `json:"store_id"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	Description    *string             `json:"description,omitempty"`
	Price          types.Money         `json:"price"`
	ComparePrice   *types.Money        `json:"compare_price,omitempty"`
	Images         []string            `json:"images"`
	InventoryCount int                 `json:"inventory_count"`
	Status         enums.ProductStatus `json:"status"`
	Store          *StoreSummaryDTO    `json:"store,omitempty"`
	Category       *CategoryDTO        `json:"category,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// StoreSummaryDTO surfaces limited store data for product responses.
type StoreSummaryDTO struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Slug    string    `json:"slug"`
	LogoURL *string   `json:"logo_url,omitempty"`
}

// CategoryDTO is a catalog category.
type CategoryDTO struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

// ReviewDTO is a visible review shown on a product page.
type ReviewDTO struct {
	ID         uuid.UUID `json:"id"`
	Rating     int       `json:"rating"`
	Comment    *string   `json:"comment,omitempty"`
	AuthorName *string   `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProductDetailDTO adds reviews and the rating summary to ProductDTO.
type ProductDetailDTO struct {
	ProductDTO
	Reviews       []ReviewDTO `json:"reviews"`
	ReviewCount   int64       `json:"review_count"`
	AverageRating *float64    `json:"average_rating,omitempty"`
}

// ProductListResult is one page of the catalog.
type ProductListResult struct {
	Items []ProductDTO `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int64        `json:"total"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product models.Product) ProductDTO {
	dto := ProductDTO{
		ID:             product.ID,
		StoreID:        product.StoreID,
		Name:           product.Name,
		Slug:           product.Slug,
		Description:    product.Description,
		Price:          product.Price,
		ComparePrice:   product.ComparePrice,
		Images:         append([]string{}, product.Images...),
		InventoryCount: product.InventoryCount,
		Status:         product.Status,
		CreatedAt:      product.CreatedAt,
		UpdatedAt:      product.UpdatedAt,
	}
	if product.Store != nil {
		dto.Store = NewStoreSummaryDTO(*product.Store)
	}
	if product.Category != nil {
		category := NewCategoryDTO(*product.Category)
		dto.Category = &category
	}
	return dto
}

// NewStoreSummaryDTO maps a store row to its summary.
func NewStoreSummaryDTO(store models.Store) *StoreSummaryDTO {
	return &StoreSummaryDTO{
		ID:      store.ID,
		Name:    store.Name,
		Slug:    store.Slug,
		LogoURL: store.LogoURL,
	}
}

// NewCategoryDTO maps a category row.
func NewCategoryDTO(category models.Category) CategoryDTO {
	return CategoryDTO{
		ID:       category.ID,
		Name:     category.Name,
		Slug:     category.Slug,
		ParentID: category.ParentID,
	}
}

func newReviewDTO(review models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:        review.ID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
	}
	if review.Buyer != nil {
		dto.AuthorName = review.Buyer.FullName
	}
	return dto
}
