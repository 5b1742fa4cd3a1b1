package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// OrderItemDTO is an immutable line snapshot.
type OrderItemDTO struct {
	ID          uuid.UUID   `json:"id"`
	ProductID   uuid.UUID   `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitPrice   types.Money `json:"unit_price"`
	TotalPrice  types.Money `json:"total_price"`
}

// OrderStoreSummary names the selling store on buyer views.
type OrderStoreSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// OrderBuyerSummary identifies the buyer on store views.
type OrderBuyerSummary struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName *string   `json:"full_name,omitempty"`
}

// OrderDTO is the order representation shared by buyer and owner views.
type OrderDTO struct {
	ID                uuid.UUID             `json:"id"`
	BuyerID           uuid.UUID             `json:"buyer_id"`
	StoreID           uuid.UUID             `json:"store_id"`
	Status            enums.OrderStatus     `json:"status"`
	TotalAmount       types.Money           `json:"total_amount"`
	ShippingAddress   types.ShippingAddress `json:"shipping_address"`
	CheckoutSessionID *string               `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
	CancelledAt       *time.Time            `json:"cancelled_at,omitempty"`
	Items             []OrderItemDTO        `json:"items"`
	Store             *OrderStoreSummary    `json:"store,omitempty"`
	Buyer             *OrderBuyerSummary    `json:"buyer,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// OrderList is one page of orders.
type OrderList struct {
	Items []OrderDTO `json:"items"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Total int64      `json:"total"`
}

// FromModel maps an order row with whatever associations were loaded.
func FromModel(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                order.ID,
		BuyerID:           order.BuyerID,
		StoreID:           order.StoreID,
		Status:            order.Status,
		TotalAmount:       order.TotalAmount,
		ShippingAddress:   order.ShippingAddress,
		CheckoutSessionID: order.CheckoutSessionID,
		PaidAt:            order.PaidAt,
		CancelledAt:       order.CancelledAt,
		Items:             make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	if order.Store != nil {
		dto.Store = &OrderStoreSummary{ID: order.Store.ID, Name: order.Store.Name, Slug: order.Store.Slug}
	}
	if order.Buyer != nil {
		dto.Buyer = &OrderBuyerSummary{ID: order.Buyer.ID, Email: order.Buyer.Email, FullName: order.Buyer.FullName}
	}
	return dto
}

func newOrderList(rows []models.Order, page int, limit int, total int64) *OrderList {
	list := &OrderList{Items: make([]OrderDTO, 0, len(rows)), Page: page, Limit: limit, Total: total}
	for _, row := range rows {
		list.Items = append(list.Items, FromModel(row))
	}
	return list
}
