package helpers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

var addressValidator = validator.New()

// ValidateShippingAddress normalizes addr and checks required fields and the
// ISO-3166 alpha-2 country code.
func ValidateShippingAddress(addr types.ShippingAddress) (types.ShippingAddress, error) {
	addr = addr.Normalize()
	if missing := addr.MissingFields(); len(missing) > 0 {
		return addr, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if err := addressValidator.Struct(addr); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return addr, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is invalid").
				WithDetails(map[string]any{"invalid": fields})
		}
		return addr, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping address is invalid")
	}
	return addr, nil
}

// ValidatePurchasable rejects products that cannot be bought right now or do
// not have qty units on hand.
func ValidatePurchasable(product *models.Product, qty int) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product not found")
	}
	if product.Status != enums.ProductStatusActive {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s is not available", product.Name)
	}
	if product.Store == nil || product.Store.Status != enums.StoreStatusApproved {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s is not sold by an approved store", product.Name)
	}
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if qty > product.InventoryCount {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "only %d of %s left in stock", product.InventoryCount, product.Name).
			WithDetails(map[string]any{"product_id": product.ID, "available": product.InventoryCount})
	}
	return nil
}
