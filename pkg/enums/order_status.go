package enums

import "fmt"

// OrderStatus tracks a single-store order from checkout to delivery.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// fulfillmentTransitions are the moves a store owner may make by hand.
// pending -> paid is reserved for payment confirmation.
var fulfillmentTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// IsPaid reports whether payment has been captured for the order.
func (o OrderStatus) IsPaid() bool {
	switch o {
	case OrderStatusPaid, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// CanFulfillTo reports whether a store owner may move an order from o to next.
func (o OrderStatus) CanFulfillTo(next OrderStatus) bool {
	for _, candidate := range fulfillmentTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
