package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/internal/cart/localcart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Backend is one cart storage variant. The service picks one per request.
type Backend interface {
	Items(ctx context.Context) ([]Line, error)
	Add(ctx context.Context, productID uuid.UUID, qty int) error
	UpdateQuantity(ctx context.Context, productID uuid.UUID, qty int) error
	Remove(ctx context.Context, productID uuid.UUID) error
	Clear(ctx context.Context) error
	Authenticated() bool
}

// LocalBackend keeps a guest cart in a localcart.Store.
type LocalBackend struct {
	store     *localcart.Store
	sessionID string
	catalog   productCatalog
}

// NewLocalBackend binds a guest session to its local store.
func NewLocalBackend(store *localcart.Store, sessionID string, catalog productCatalog) (*LocalBackend, error) {
	if store == nil || catalog == nil {
		return nil, fmt.Errorf("local cart store and catalog required")
	}
	if sessionID == "" {
		return nil, localcart.ErrSessionRequired
	}
	return &LocalBackend{store: store, sessionID: sessionID, catalog: catalog}, nil
}

// Items resolves the stored entries against purchasable products. Entries for
// products that are no longer purchasable are hidden but kept in storage.
func (b *LocalBackend) Items(ctx context.Context) ([]Line, error) {
	entries := b.store.Get(ctx, b.sessionID)
	if len(entries) == 0 {
		return []Line{}, nil
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ProductID)
	}
	products, err := b.catalog.FindPurchasableByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := indexProducts(products)

	lines := make([]Line, 0, len(entries))
	for _, entry := range entries {
		p, ok := byID[entry.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, newLine(p, entry.Quantity, entry.AddedAt))
	}
	return lines, nil
}

func (b *LocalBackend) Add(ctx context.Context, productID uuid.UUID, qty int) error {
	_, err := b.store.Add(ctx, b.sessionID, productID, qty)
	return err
}

func (b *LocalBackend) UpdateQuantity(ctx context.Context, productID uuid.UUID, qty int) error {
	_, err := b.store.UpdateQuantity(ctx, b.sessionID, productID, qty)
	return err
}

func (b *LocalBackend) Remove(ctx context.Context, productID uuid.UUID) error {
	_, err := b.store.Remove(ctx, b.sessionID, productID)
	return err
}

func (b *LocalBackend) Clear(ctx context.Context) error {
	return b.store.Clear(ctx, b.sessionID)
}

func (b *LocalBackend) Authenticated() bool { return false }

// RemoteBackend keeps an account cart in cart_items.
type RemoteBackend struct {
	repo    ItemRepository
	buyerID uuid.UUID
}

// NewRemoteBackend scopes the cart_items repository to one buyer.
func NewRemoteBackend(repo ItemRepository, buyerID uuid.UUID) (*RemoteBackend, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if buyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id required")
	}
	return &RemoteBackend{repo: repo, buyerID: buyerID}, nil
}

func (b *RemoteBackend) Items(ctx context.Context) ([]Line, error) {
	rows, err := b.repo.ListForBuyer(ctx, b.buyerID)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		if row.Product == nil || !row.Product.Purchasable() {
			continue
		}
		lines = append(lines, newLine(*row.Product, row.Quantity, row.CreatedAt))
	}
	return lines, nil
}

func (b *RemoteBackend) Add(ctx context.Context, productID uuid.UUID, qty int) error {
	return b.repo.AddQuantity(ctx, b.buyerID, productID, qty)
}

func (b *RemoteBackend) UpdateQuantity(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return b.repo.Delete(ctx, b.buyerID, productID)
	}
	_, err := b.repo.SetQuantity(ctx, b.buyerID, productID, qty)
	return err
}

func (b *RemoteBackend) Remove(ctx context.Context, productID uuid.UUID) error {
	return b.repo.Delete(ctx, b.buyerID, productID)
}

func (b *RemoteBackend) Clear(ctx context.Context) error {
	_, err := b.repo.DeleteForBuyer(ctx, b.buyerID)
	return err
}

func (b *RemoteBackend) Authenticated() bool { return true }

func indexProducts(products []models.Product) map[uuid.UUID]models.Product {
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}
