package payloads

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is written once per order produced by a checkout.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	StoreID     uuid.UUID `json:"store_id"`
	TotalAmount string    `json:"total_amount"`
	ItemCount   int       `json:"item_count"`
}

// OrderPaidEvent is emitted when a payment confirmation moves an order to paid.
type OrderPaidEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	StoreID           uuid.UUID `json:"store_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	TotalAmount       string    `json:"total_amount"`
	PaidAt            time.Time `json:"paid_at"`
}

// OrderCancelledEvent is emitted when a pending order is abandoned or a store
// owner cancels before shipping.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	StoreID     uuid.UUID `json:"store_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OrderExpiredEvent is emitted by the pending-order sweep.
type OrderExpiredEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	StoreID    uuid.UUID `json:"store_id"`
	ExpiredAt  time.Time `json:"expired_at"`
	PendingTTL string    `json:"pending_ttl"`
}

// OrderStatusChangedEvent records a fulfillment transition made by a store owner.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	StoreID uuid.UUID         `json:"store_id"`
	BuyerID uuid.UUID         `json:"buyer_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// InventoryOversoldEvent reports a paid order whose quantity exceeded stock.
// Available is the count observed before the product was floored to zero.
type InventoryOversoldEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	OrderID   uuid.UUID `json:"order_id"`
	StoreID   uuid.UUID `json:"store_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// StoreStatusChangedEvent is emitted when an admin approves or suspends a store.
type StoreStatusChangedEvent struct {
	StoreID uuid.UUID         `json:"store_id"`
	OwnerID uuid.UUID         `json:"owner_id"`
	From    enums.StoreStatus `json:"from"`
	To      enums.StoreStatus `json:"to"`
}
