package reviews

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type ReviewDTO struct {
	ID          uuid.UUID          `json:"id"`
	ProductID   uuid.UUID          `json:"product_id"`
	ProductName string             `json:"product_name,omitempty"`
	BuyerID     uuid.UUID          `json:"buyer_id"`
	BuyerName   string             `json:"buyer_name,omitempty"`
	OrderID     uuid.UUID          `json:"order_id"`
	Rating      int                `json:"rating"`
	Comment     *string            `json:"comment,omitempty"`
	Status      enums.ReviewStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

type ReviewList struct {
	Items []ReviewDTO `json:"items"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Total int64       `json:"total"`
}

func FromModel(m models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:        m.ID,
		ProductID: m.ProductID,
		BuyerID:   m.BuyerID,
		OrderID:   m.OrderID,
		Rating:    m.Rating,
		Comment:   m.Comment,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
	if m.Product != nil {
		dto.ProductName = m.Product.Name
	}
	if m.Buyer != nil && m.Buyer.FullName != nil {
		dto.BuyerName = *m.Buyer.FullName
	}
	return dto
}
