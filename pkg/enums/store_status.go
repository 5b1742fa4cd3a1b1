package enums

import "fmt"

// StoreStatus gates whether a store's catalog is visible and purchasable.
type StoreStatus string

const (
	StoreStatusPending   StoreStatus = "pending"
	StoreStatusApproved  StoreStatus = "approved"
	StoreStatusSuspended StoreStatus = "suspended"
)

var validStoreStatuses = []StoreStatus{
	StoreStatusPending,
	StoreStatusApproved,
	StoreStatusSuspended,
}

// String implements fmt.Stringer.
func (s StoreStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StoreStatus.
func (s StoreStatus) IsValid() bool {
	for _, candidate := range validStoreStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStoreStatus converts raw input into a StoreStatus.
func ParseStoreStatus(value string) (StoreStatus, error) {
	for _, candidate := range validStoreStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store status %q", value)
}
