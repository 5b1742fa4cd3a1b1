package orders

import "github.com/angelmondragon/marketplace-backend/pkg/enums"

// ownerTransitions lists the moves a store owner may make. pending -> paid is
// reserved for payment confirmation.
var ownerTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
}

// CanOwnerTransition reports whether a store owner may move an order from -> to.
func CanOwnerTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range ownerTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Reviewable reports whether an order in status entitles its buyer to review
// the products in it.
func Reviewable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPaid, enums.OrderStatusConfirmed, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return true
	}
	return false
}
