package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type checkoutRequest struct {
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"required"`
	// Items optionally overrides the stored cart; prices are always read server side.
	Items []checkoutItemRequest `json:"items,omitempty" validate:"omitempty,max=100,dive"`
}

type checkoutItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=999"`
}

// Checkout splits the buyer's cart into per-store pending orders and opens one
// hosted payment session covering all of them.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("checkout"))
			return
		}

		buyerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.Input{
			BuyerID:         buyerID,
			ShippingAddress: payload.ShippingAddress,
			Origin:          requestOrigin(r),
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, checkout.LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		result, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// requestOrigin prefers the Origin header and falls back to the Referer's
// scheme and host. The checkout service checks it against the allowlist.
func requestOrigin(r *http.Request) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		return origin
	}
	u, err := url.Parse(strings.TrimSpace(r.Header.Get("Referer")))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
