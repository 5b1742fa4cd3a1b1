package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const productDetailReviewLimit = 20

type ownerStoreLoader interface {
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error)
}

// Service exposes the catalog read views and store-owner product management.
type Service interface {
	List(ctx context.Context, input ListInput) (*ProductListResult, error)
	GetBySlug(ctx context.Context, slug string) (*ProductDetailDTO, error)
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	CreateProduct(ctx context.Context, ownerID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, ownerID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	ListStoreProducts(ctx context.Context, ownerID uuid.UUID) ([]ProductDTO, error)
}

// ListInput is the public catalog query.
type ListInput struct {
	Search       string
	CategorySlug string
	Page         int
	Limit        int
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name           string
	Slug           *string
	Description    *string
	Price          types.Money
	ComparePrice   *types.Money
	Images         []string
	InventoryCount int
	Status         enums.ProductStatus
	CategoryID     *uuid.UUID
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name           *string
	Slug           *string
	Description    *string
	Price          *types.Money
	ComparePrice   *types.Money
	Images         *[]string
	InventoryCount *int
	Status         *enums.ProductStatus
	CategoryID     *uuid.UUID
}

type service struct {
	repo   *Repository
	stores ownerStoreLoader
}

// NewService builds the product service.
func NewService(repo *Repository, stores ownerStoreLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	return &service{repo: repo, stores: stores}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ProductListResult, error) {
	page := pagination.NormalizePage(input.Page, input.Limit)
	rows, total, err := s.repo.List(ctx, ListFilter{
		Search:       input.Search,
		CategorySlug: input.CategorySlug,
		Page:         page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, NewProductDTO(row))
	}
	return &ProductListResult{Items: items, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*ProductDetailDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	product, err := s.repo.GetPurchasableBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	reviews, err := s.repo.ListVisibleReviews(ctx, product.ID, productDetailReviewLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reviews")
	}
	summary, err := s.repo.SummarizeRatings(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize ratings")
	}

	detail := &ProductDetailDTO{
		ProductDTO:  NewProductDTO(*product),
		Reviews:     make([]ReviewDTO, 0, len(reviews)),
		ReviewCount: summary.Count,
	}
	for _, review := range reviews {
		detail.Reviews = append(detail.Reviews, newReviewDTO(review))
	}
	if summary.Count > 0 {
		avg := summary.Average
		detail.AverageRating = &avg
	}
	return detail, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewCategoryDTO(row))
	}
	return out, nil
}

func (s *service) CreateProduct(ctx context.Context, ownerID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	store, err := s.ownerStore(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	slug := types.Slugify(name)
	if input.Slug != nil {
		slug = types.Slugify(*input.Slug)
	}
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
	}
	status := input.Status
	if status == "" {
		status = enums.ProductStatusDraft
	}
	if err := validateProductFields(input.Price, input.ComparePrice, input.InventoryCount, status); err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, input.CategoryID); err != nil {
		return nil, err
	}

	product := &models.Product{
		StoreID:        store.ID,
		CategoryID:     input.CategoryID,
		Name:           name,
		Slug:           slug,
		Description:    input.Description,
		Price:          input.Price,
		ComparePrice:   input.ComparePrice,
		Images:         types.StringList(input.Images),
		InventoryCount: input.InventoryCount,
		Status:         status,
	}
	if product.Images == nil {
		product.Images = types.StringList{}
	}
	if _, err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, mapWriteError(err, "create product")
	}
	dto := NewProductDTO(*product)
	return &dto, nil
}

func (s *service) UpdateProduct(ctx context.Context, ownerID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	store, err := s.ownerStore(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.FindForStore(ctx, store.ID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
		}
		product.Name = name
	}
	if input.Slug != nil {
		slug := types.Slugify(*input.Slug)
		if slug == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
		}
		product.Slug = slug
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.ComparePrice != nil {
		product.ComparePrice = input.ComparePrice
	}
	if input.Images != nil {
		product.Images = types.StringList(append([]string{}, (*input.Images)...))
	}
	if input.InventoryCount != nil {
		product.InventoryCount = *input.InventoryCount
	}
	if input.Status != nil {
		product.Status = *input.Status
	}
	if input.CategoryID != nil {
		if err := s.ensureCategory(ctx, input.CategoryID); err != nil {
			return nil, err
		}
		product.CategoryID = input.CategoryID
	}
	if err := validateProductFields(product.Price, product.ComparePrice, product.InventoryCount, product.Status); err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, mapWriteError(err, "update product")
	}
	dto := NewProductDTO(*product)
	return &dto, nil
}

func (s *service) ListStoreProducts(ctx context.Context, ownerID uuid.UUID) ([]ProductDTO, error) {
	store, err := s.ownerStore(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByStore(ctx, store.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewProductDTO(row))
	}
	return out, nil
}

func (s *service) ownerStore(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	store, err := s.stores.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "create a store before managing products")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load owner store")
	}
	return store, nil
}

func (s *service) ensureCategory(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	ok, err := s.repo.CategoryExists(ctx, *id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "category not found")
	}
	return nil
}

func validateProductFields(price types.Money, compare *types.Money, inventory int, status enums.ProductStatus) error {
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if compare != nil && compare.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "compare_price cannot be negative")
	}
	if inventory < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "inventory_count cannot be negative")
	}
	if !status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}
	return nil
}

func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, "products_slug_key") {
		return pkgerrors.New(pkgerrors.CodeConflict, "a product with this slug already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
