package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	products "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type upsertStoreRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Slug        *string `json:"slug,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	LogoURL     *string `json:"logo_url,omitempty" validate:"omitempty,url"`
	BannerURL   *string `json:"banner_url,omitempty" validate:"omitempty,url"`
}

type createProductRequest struct {
	Name           string       `json:"name" validate:"required,max=200"`
	Slug           *string      `json:"slug,omitempty" validate:"omitempty,max=200"`
	Description    *string      `json:"description,omitempty" validate:"omitempty,max=10000"`
	Price          types.Money  `json:"price"`
	ComparePrice   *types.Money `json:"compare_price,omitempty"`
	Images         []string     `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	InventoryCount int          `json:"inventory_count" validate:"min=0"`
	Status         string       `json:"status,omitempty" validate:"omitempty,oneof=draft active archived"`
	CategoryID     *uuid.UUID   `json:"category_id,omitempty"`
}

type updateProductRequest struct {
	Name           *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	Slug           *string      `json:"slug,omitempty" validate:"omitempty,max=200"`
	Description    *string      `json:"description,omitempty" validate:"omitempty,max=10000"`
	Price          *types.Money `json:"price,omitempty"`
	ComparePrice   *types.Money `json:"compare_price,omitempty"`
	Images         *[]string    `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	InventoryCount *int         `json:"inventory_count,omitempty" validate:"omitempty,min=0"`
	Status         *string      `json:"status,omitempty" validate:"omitempty,oneof=draft active archived"`
	CategoryID     *uuid.UUID   `json:"category_id,omitempty"`
}

// DashboardStore returns the caller's own store in any status.
func DashboardStore(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("store"))
			return
		}
		ownerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := svc.GetMyStore(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store)
	}
}

// DashboardStoreUpsert creates the caller's store in pending or edits it.
func DashboardStoreUpsert(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("store"))
			return
		}
		ownerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload upsertStoreRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, created, err := svc.UpsertMyStore(r.Context(), ownerID, stores.UpsertStoreInput{
			Name:        payload.Name,
			Slug:        payload.Slug,
			Description: payload.Description,
			LogoURL:     payload.LogoURL,
			BannerURL:   payload.BannerURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, store)
	}
}

func DashboardProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("product"))
			return
		}
		ownerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListStoreProducts(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func DashboardCreateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("product"))
			return
		}
		ownerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := products.CreateProductInput{
			Name:           payload.Name,
			Slug:           payload.Slug,
			Description:    payload.Description,
			Price:          payload.Price,
			ComparePrice:   payload.ComparePrice,
			Images:         payload.Images,
			InventoryCount: payload.InventoryCount,
			Status:         enums.ProductStatusDraft,
			CategoryID:     payload.CategoryID,
		}
		if payload.Status != "" {
			status, err := enums.ParseProductStatus(payload.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = status
		}

		product, err := svc.CreateProduct(r.Context(), ownerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func DashboardUpdateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("product"))
			return
		}
		ownerID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParsePathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := products.UpdateProductInput{
			Name:           payload.Name,
			Slug:           payload.Slug,
			Description:    payload.Description,
			Price:          payload.Price,
			ComparePrice:   payload.ComparePrice,
			Images:         payload.Images,
			InventoryCount: payload.InventoryCount,
			CategoryID:     payload.CategoryID,
		}
		if payload.Status != nil {
			status, err := enums.ParseProductStatus(*payload.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}

		product, err := svc.UpdateProduct(r.Context(), ownerID, productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}
