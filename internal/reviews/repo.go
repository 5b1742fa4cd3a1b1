package reviews

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository persists product reviews.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Omit("Buyer", "Product").Create(review).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).
		Preload("Buyer").
		Preload("Product").
		First(&review, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// List returns reviews newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *enums.ReviewStatus, page pagination.PageParams) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Review
	err := pagination.ApplyPage(query, page).
		Preload("Buyer").
		Preload("Product").
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, total, err
}

// UpdateStatus reports false when the review does not exist.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReviewStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
