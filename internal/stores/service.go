package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes store operations.
type Service interface {
	ListApproved(ctx context.Context, page, limit int) (*StoreListResult, error)
	GetBySlug(ctx context.Context, slug string) (*StoreDetailDTO, error)
	GetMyStore(ctx context.Context, ownerID uuid.UUID) (*StoreDTO, error)
	UpsertMyStore(ctx context.Context, ownerID uuid.UUID, input UpsertStoreInput) (*StoreDTO, bool, error)
	ListAll(ctx context.Context, input AdminListInput) (*StoreListResult, error)
	SetStatus(ctx context.Context, actor outbox.ActorRef, storeID uuid.UUID, status enums.StoreStatus) (*StoreDTO, error)
}

// UpsertStoreInput captures the owner-editable store fields.
type UpsertStoreInput struct {
	Name        string
	Slug        *string
	Description *string
	LogoURL     *string
	BannerURL   *string
}

// AdminListInput filters the admin store listing.
type AdminListInput struct {
	Status *enums.StoreStatus
	Page   int
	Limit  int
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outbox.Emitter
}

// NewService builds a store service with the provided repositories.
func NewService(repo *Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter}, nil
}

func (s *service) ListApproved(ctx context.Context, page, limit int) (*StoreListResult, error) {
	status := enums.StoreStatusApproved
	return s.list(ctx, &status, pagination.NormalizePage(page, limit))
}

func (s *service) ListAll(ctx context.Context, input AdminListInput) (*StoreListResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	return s.list(ctx, input.Status, pagination.NormalizePage(input.Page, input.Limit))
}

func (s *service) list(ctx context.Context, status *enums.StoreStatus, page pagination.PageParams) (*StoreListResult, error) {
	rows, total, err := s.repo.List(ctx, status, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := s.repo.CountActiveProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count store products")
	}

	items := make([]StoreDTO, 0, len(rows))
	for i := range rows {
		dto := FromModel(&rows[i])
		count := counts[rows[i].ID]
		dto.ProductCount = &count
		items = append(items, *dto)
	}
	return &StoreListResult{Items: items, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*StoreDetailDTO, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	store, err := s.repo.FindApprovedBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	products, err := s.repo.ListActiveProducts(ctx, store.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store products")
	}

	detail := &StoreDetailDTO{StoreDTO: *FromModel(store), Products: make([]product.ProductDTO, 0, len(products))}
	count := int64(len(products))
	detail.ProductCount = &count
	for _, p := range products {
		detail.Products = append(detail.Products, product.NewProductDTO(p))
	}
	return detail, nil
}

func (s *service) GetMyStore(ctx context.Context, ownerID uuid.UUID) (*StoreDTO, error) {
	store, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return FromModel(store), nil
}

// UpsertMyStore creates the owner's store in pending status, or updates it when
// it already exists. The boolean reports whether a store was created.
func (s *service) UpsertMyStore(ctx context.Context, ownerID uuid.UUID, input UpsertStoreInput) (*StoreDTO, bool, error) {
	if ownerID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	var slug string
	if input.Slug != nil {
		if slug = types.Slugify(*input.Slug); slug == "" {
			return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
		}
	}

	existing, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}

	if existing == nil {
		if slug == "" {
			slug = types.Slugify(name)
		}
		if slug == "" {
			return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
		}
		store := &models.Store{
			OwnerID:     ownerID,
			Name:        name,
			Slug:        slug,
			Description: cloneStringPtr(input.Description),
			LogoURL:     cloneStringPtr(input.LogoURL),
			BannerURL:   cloneStringPtr(input.BannerURL),
			Status:      enums.StoreStatusPending,
		}
		if err := s.repo.Create(ctx, store); err != nil {
			return nil, false, mapStoreWriteError(err, "create store")
		}
		return FromModel(store), true, nil
	}

	existing.Name = name
	if slug != "" {
		existing.Slug = slug
	}
	if input.Description != nil {
		existing.Description = cloneStringPtr(input.Description)
	}
	if input.LogoURL != nil {
		existing.LogoURL = cloneStringPtr(input.LogoURL)
	}
	if input.BannerURL != nil {
		existing.BannerURL = cloneStringPtr(input.BannerURL)
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, false, mapStoreWriteError(err, "update store")
	}
	return FromModel(existing), false, nil
}

func (s *service) SetStatus(ctx context.Context, actor outbox.ActorRef, storeID uuid.UUID, status enums.StoreStatus) (*StoreDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", status)
	}

	var updated *models.Store
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		store, err := repo.FindByID(ctx, storeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
		}
		if store.Status == status {
			updated = store
			return nil
		}

		from := store.Status
		ok, err := repo.UpdateStatus(ctx, store.ID, from, status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update store status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "store status changed concurrently")
		}
		store.Status = status

		actorRef := actor
		event := outbox.DomainEvent{
			EventType:     enums.EventStoreStatusChanged,
			AggregateType: enums.AggregateStore,
			AggregateID:   store.ID,
			Actor:         &actorRef,
			Data: payloads.StoreStatusChangedEvent{
				StoreID: store.ID,
				OwnerID: store.OwnerID,
				From:    from,
				To:      status,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit store status event")
		}
		updated = store
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

func mapStoreWriteError(err error, action string) error {
	switch {
	case db.IsUniqueViolation(err, "stores_slug_key"):
		return pkgerrors.New(pkgerrors.CodeConflict, "a store with this slug already exists")
	case db.IsUniqueViolation(err, "stores_owner_id_key"):
		return pkgerrors.New(pkgerrors.CodeConflict, "owner already has a store")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
