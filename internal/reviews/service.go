package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

const maxCommentLength = 2000

type buyerOrderLoader interface {
	FindForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
}

// Service covers buyer review submission and admin moderation.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateInput) (*ReviewDTO, error)
	List(ctx context.Context, input ListInput) (*ReviewList, error)
	Moderate(ctx context.Context, reviewID uuid.UUID, status enums.ReviewStatus) (*ReviewDTO, error)
}

type CreateInput struct {
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Rating    int
	Comment   *string
}

type ListInput struct {
	Status *enums.ReviewStatus
	Page   int
	Limit  int
}

type service struct {
	repo   *Repository
	orders buyerOrderLoader
}

func NewService(repo *Repository, orders buyerOrderLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	return &service{repo: repo, orders: orders}, nil
}

// Create records a review for a product the buyer has paid for.
func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateInput) (*ReviewDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5").
			WithDetails(map[string]any{"rating": input.Rating})
	}
	comment := normalizeComment(input.Comment)
	if comment != nil && utf8.RuneCountInString(*comment) > maxCommentLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "comment must be at most %d characters", maxCommentLength)
	}

	order, err := s.orders.FindForBuyer(ctx, buyerID, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !orders.Reviewable(order.Status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "orders in status %s cannot be reviewed", order.Status)
	}
	if !containsProduct(order, input.ProductID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not part of this order")
	}

	review := &models.Review{
		ProductID: input.ProductID,
		BuyerID:   buyerID,
		OrderID:   order.ID,
		Rating:    input.Rating,
		Comment:   comment,
		Status:    enums.ReviewStatusVisible,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if db.IsUniqueViolation(err, "reviews_buyer_order_product_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already reviewed for this order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	dto := FromModel(*review)
	return &dto, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ReviewList, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	params := pagination.NormalizePage(input.Page, input.Limit)
	rows, total, err := s.repo.List(ctx, input.Status, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	items := make([]ReviewDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &ReviewList{Items: items, Page: params.Page, Limit: params.Limit, Total: total}, nil
}

// Moderate sets the review's visibility. Hidden and flagged reviews drop out
// of product pages.
func (s *service) Moderate(ctx context.Context, reviewID uuid.UUID, status enums.ReviewStatus) (*ReviewDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}
	ok, err := s.repo.UpdateStatus(ctx, reviewID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update review")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload review")
	}
	dto := FromModel(*review)
	return &dto, nil
}

func containsProduct(order *models.Order, productID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
