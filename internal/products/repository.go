package product

import (
	"context"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilter narrows the public catalog listing.
type ListFilter struct {
	Search       string
	CategorySlug string
	Page         pagination.PageParams
}

// Repository wires together all product-related persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// purchasable scopes a products query to active listings of approved stores.
func purchasable(query *gorm.DB) *gorm.DB {
	return query.
		Joins("JOIN stores ON stores.id = products.store_id").
		Where("products.status = ? AND stores.status = ?", enums.ProductStatusActive, enums.StoreStatusApproved)
}

// FindByID loads the product with its store.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Preload("Store").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the given products with their stores, in no particular order.
// Unknown ids are silently absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Store").
		Where("id IN ?", ids).
		Find(&products).Error
	return products, err
}

// FindPurchasableByIDs is FindByIDs restricted to active products of approved stores.
func (r *Repository) FindPurchasableByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := purchasable(r.db.WithContext(ctx)).
		Preload("Store").
		Where("products.id IN ?", ids).
		Find(&products).Error
	return products, err
}

// List returns one page of purchasable products, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, int64, error) {
	query := purchasable(r.db.WithContext(ctx).Model(&models.Product{}))
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("products.name "+db.LikeOperator(r.db)+" ? ESCAPE '\\'", "%"+db.EscapeLike(search)+"%")
	}
	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		query = query.Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", slug)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := pagination.ApplyPage(query, filter.Page).
		Preload("Store").
		Preload("Category").
		Order("products.created_at DESC").
		Order("products.id DESC").
		Find(&products).Error
	return products, total, err
}

// GetPurchasableBySlug loads one purchasable product with its store and category.
func (r *Repository) GetPurchasableBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := purchasable(r.db.WithContext(ctx)).
		Preload("Store").
		Preload("Category").
		Where("products.slug = ?", slug).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListVisibleReviews returns a product's visible reviews with their authors, newest first.
func (r *Repository) ListVisibleReviews(ctx context.Context, productID uuid.UUID, limit int) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.WithContext(ctx).
		Preload("Buyer").
		Where("product_id = ? AND status = ?", productID, enums.ReviewStatusVisible).
		Order("created_at DESC").
		Limit(limit).
		Find(&reviews).Error
	return reviews, err
}

// RatingSummary aggregates visible review ratings for a product.
type RatingSummary struct {
	Count   int64
	Average float64
}

// SummarizeRatings averages the visible ratings of productID.
func (r *Repository) SummarizeRatings(ctx context.Context, productID uuid.UUID) (RatingSummary, error) {
	var row struct {
		Count   int64
		Average *float64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COUNT(*) AS count, AVG(rating) AS average").
		Where("product_id = ? AND status = ?", productID, enums.ReviewStatusVisible).
		Scan(&row).Error
	if err != nil {
		return RatingSummary{}, err
	}
	summary := RatingSummary{Count: row.Count}
	if row.Average != nil {
		summary.Average = *row.Average
	}
	return summary, nil
}

// ListCategories returns every category ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error
	return categories, err
}

// CategoryExists reports whether id names a category.
func (r *Repository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ListByStore returns every product of a store regardless of status, newest first.
func (r *Repository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

// FindForStore loads a product only if it belongs to storeID.
func (r *Repository) FindForStore(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", productID, storeID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct saves every column of an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Omit("Store", "Category").Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}
