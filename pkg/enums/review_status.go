package enums

import "fmt"

// ReviewStatus is the moderation state of a product review.
type ReviewStatus string

const (
	ReviewStatusVisible ReviewStatus = "visible"
	ReviewStatusHidden  ReviewStatus = "hidden"
	ReviewStatusFlagged ReviewStatus = "flagged"
)

var validReviewStatuses = []ReviewStatus{
	ReviewStatusVisible,
	ReviewStatusHidden,
	ReviewStatusFlagged,
}

// String implements fmt.Stringer.
func (r ReviewStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReviewStatus.
func (r ReviewStatus) IsValid() bool {
	for _, candidate := range validReviewStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReviewStatus converts raw input into a ReviewStatus.
func ParseReviewStatus(value string) (ReviewStatus, error) {
	for _, candidate := range validReviewStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid review status %q", value)
}
