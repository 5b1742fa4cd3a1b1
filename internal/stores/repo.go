package stores

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles store persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new store row.
func (r *Repository) Create(ctx context.Context, store *models.Store) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	return r.db.WithContext(ctx).Omit("Owner").Create(store).Error
}

// Update saves the provided store.
func (r *Repository) Update(ctx context.Context, store *models.Store) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	return r.db.WithContext(ctx).Omit("Owner").Save(store).Error
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByOwner returns the store owned by ownerID. Each owner has at most one.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindApprovedBySlug loads an approved store by slug.
func (r *Repository) FindApprovedBySlug(ctx context.Context, slug string) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).
		Where("slug = ? AND status = ?", slug, enums.StoreStatusApproved).
		First(&store).Error
	if err != nil {
		return nil, err
	}
	return &store, nil
}

// List returns one page of stores, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *enums.StoreStatus, page pagination.PageParams) ([]models.Store, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Store{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var stores []models.Store
	err := pagination.ApplyPage(query, page).
		Order("created_at DESC").
		Order("id DESC").
		Find(&stores).Error
	return stores, total, err
}

// CountActiveProducts returns the number of active products per store id.
// Stores without products are absent from the map.
func (r *Repository) CountActiveProducts(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(storeIDs))
	if len(storeIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		StoreID uuid.UUID
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("store_id, COUNT(*) AS total").
		Where("store_id IN ? AND status = ?", storeIDs, enums.ProductStatusActive).
		Group("store_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.StoreID] = row.Total
	}
	return counts, nil
}

// ListActiveProducts returns a store's active products, newest first.
func (r *Repository) ListActiveProducts(ctx context.Context, storeID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("store_id = ? AND status = ?", storeID, enums.ProductStatusActive).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

// UpdateStatus moves a store from one status to another. It reports false when
// the store was no longer in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.StoreStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
