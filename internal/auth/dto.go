package auth

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
// GuestID names the anonymous cart to fold into the account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	GuestID  string `json:"-"`
}

// RegisterRequest is the self-service sign-up payload.
type RegisterRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8"`
	FullName string         `json:"full_name" validate:"required,max=200"`
	Role     enums.UserRole `json:"role" validate:"omitempty,oneof=buyer store_owner"`
	GuestID  string         `json:"-"`
}

// LoginResponse carries the access token plus the merged cart when a guest
// cart was present.
type LoginResponse struct {
	AccessToken string            `json:"access_token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        *users.UserDTO    `json:"user"`
	Cart        *cart.View        `json:"cart,omitempty"`
	Merge       *cart.MergeResult `json:"merge,omitempty"`
}
