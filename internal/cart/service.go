package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/internal/cart/localcart"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session identifies whose cart a request addresses. It is built per request
// from the authenticated user and the guest session id.
type Session struct {
	UserID  *uuid.UUID
	GuestID string
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool {
	return s.UserID != nil && *s.UserID != uuid.Nil
}

// Service exposes one cart API for guests and signed-in buyers.
type Service interface {
	Backend(session Session) (Backend, error)
	Get(ctx context.Context, session Session) (*View, error)
	Add(ctx context.Context, session Session, productID uuid.UUID, qty int) (*View, error)
	UpdateQuantity(ctx context.Context, session Session, productID uuid.UUID, qty int) (*View, error)
	Remove(ctx context.Context, session Session, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, session Session) (*View, error)
	SignIn(ctx context.Context, userID uuid.UUID, guestID string) (*MergeResult, *View, error)
	SignOut(guestID string) *View
}

type service struct {
	local   *localcart.Store
	repo    ItemRepository
	catalog productCatalog
	tx      txRunner
	logg    *logger.Logger
}

// NewService builds the cart service.
func NewService(local *localcart.Store, repo ItemRepository, catalog productCatalog, tx txRunner, logg *logger.Logger) (Service, error) {
	if local == nil {
		return nil, fmt.Errorf("local cart store required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{local: local, repo: repo, catalog: catalog, tx: tx, logg: logg}, nil
}

// Backend selects the remote backend for signed-in users and the local one otherwise.
func (s *service) Backend(session Session) (Backend, error) {
	if session.Authenticated() {
		return NewRemoteBackend(s.repo, *session.UserID)
	}
	if session.GuestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session required")
	}
	return NewLocalBackend(s.local, session.GuestID, s.catalog)
}

func (s *service) Get(ctx context.Context, session Session) (*View, error) {
	if !session.Authenticated() && session.GuestID == "" {
		return emptyView(false), nil
	}
	backend, err := s.Backend(session)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, backend)
}

func (s *service) Add(ctx context.Context, session Session, productID uuid.UUID, qty int) (*View, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := s.ensurePurchasable(ctx, productID); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, session, "add cart item", func(b Backend) error {
		return b.Add(ctx, productID, qty)
	})
}

func (s *service) UpdateQuantity(ctx context.Context, session Session, productID uuid.UUID, qty int) (*View, error) {
	return s.dispatch(ctx, session, "update cart item", func(b Backend) error {
		return b.UpdateQuantity(ctx, productID, qty)
	})
}

func (s *service) Remove(ctx context.Context, session Session, productID uuid.UUID) (*View, error) {
	return s.dispatch(ctx, session, "remove cart item", func(b Backend) error {
		return b.Remove(ctx, productID)
	})
}

func (s *service) Clear(ctx context.Context, session Session) (*View, error) {
	return s.dispatch(ctx, session, "clear cart", func(b Backend) error {
		return b.Clear(ctx)
	})
}

// SignIn folds the guest cart into the user's account cart, then returns the
// account view. The guest cart is consumed exactly once; when the merge fails
// the taken items are written back.
func (s *service) SignIn(ctx context.Context, userID uuid.UUID, guestID string) (*MergeResult, *View, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	result := &MergeResult{Success: true}

	if guestID != "" {
		merged, err := s.merge(ctx, userID, guestID)
		if err != nil {
			result.Success = false
			return result, nil, err
		}
		result = merged
	}

	backend, err := NewRemoteBackend(s.repo, userID)
	if err != nil {
		return result, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "select cart backend")
	}
	view, err := s.view(ctx, backend)
	if err != nil {
		return result, nil, err
	}
	return result, view, nil
}

// SignOut returns an empty guest view without touching any account data.
func (s *service) SignOut(string) *View {
	return emptyView(false)
}

func (s *service) merge(ctx context.Context, userID uuid.UUID, guestID string) (*MergeResult, error) {
	items, err := s.local.Take(ctx, guestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read guest cart")
	}
	result := &MergeResult{Success: true}
	if len(items) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	known, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		s.restore(ctx, guestID, items)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve guest cart products")
	}
	byID := indexProducts(known)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range items {
			if _, ok := byID[item.ProductID]; !ok {
				result.Skipped++
				continue
			}
			if err := repo.AddQuantity(ctx, userID, item.ProductID, item.Quantity); err != nil {
				return err
			}
			result.MergedCount++
		}
		return nil
	})
	if err != nil {
		s.restore(ctx, guestID, items)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge guest cart")
	}

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
		"merged":  result.MergedCount,
		"skipped": result.Skipped,
	})
	s.logg.Info(logCtx, "guest cart merged")
	return result, nil
}

func (s *service) restore(ctx context.Context, guestID string, items []localcart.Item) {
	if err := s.local.Set(ctx, guestID, items); err != nil {
		s.logg.Error(ctx, "restore guest cart after failed merge", err)
	}
}

func (s *service) ensurePurchasable(ctx context.Context, productID uuid.UUID) error {
	products, err := s.catalog.FindPurchasableByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if len(products) == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not available")
	}
	return nil
}

func (s *service) dispatch(ctx context.Context, session Session, action string, fn func(Backend) error) (*View, error) {
	backend, err := s.Backend(session)
	if err != nil {
		return nil, err
	}
	if err := fn(backend); err != nil {
		if errors.Is(err, localcart.ErrInvalidQuantity) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	return s.view(ctx, backend)
}

func (s *service) view(ctx context.Context, backend Backend) (*View, error) {
	lines, err := backend.Items(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return buildView(lines, backend.Authenticated()), nil
}
