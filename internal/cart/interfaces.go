package cart

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// productCatalog resolves product ids for cart views and merges.
type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindPurchasableByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// ItemRepository is the cart_items surface used by the remote backend and merge.
type ItemRepository interface {
	WithTx(tx *gorm.DB) ItemRepository
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	AddQuantity(ctx context.Context, buyerID, productID uuid.UUID, qty int) error
	SetQuantity(ctx context.Context, buyerID, productID uuid.UUID, qty int) (bool, error)
	Delete(ctx context.Context, buyerID, productID uuid.UUID) error
	DeleteForBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
}
