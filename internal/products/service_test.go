package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type ownerStoreStub struct {
	conn *gorm.DB
}

func (s ownerStoreStub) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := s.conn.WithContext(ctx).First(&store, "owner_id = ?", ownerID).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), ownerStoreStub{conn: conn})
	require.NoError(t, err)
	return svc, conn
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, code, typed.Code())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, ownerStoreStub{})
	require.Error(t, err)
	_, err = NewService(NewRepository(dbtest.Open(t)), nil)
	require.Error(t, err)
}

func TestListOnlyReturnsPurchasableProducts(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	approved := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	other := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	pending := dbtest.SeedStore(t, conn, other.ID, enums.StoreStatusPending)

	visible := dbtest.SeedProduct(t, conn, approved.ID, "12.50", 3)
	draft := dbtest.SeedProduct(t, conn, approved.ID, "5.00", 3)
	require.NoError(t, conn.Model(&draft).Update("status", enums.ProductStatusDraft).Error)
	dbtest.SeedProduct(t, conn, pending.ID, "7.00", 3)

	res, err := svc.List(context.Background(), ListInput{})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, visible.ID, res.Items[0].ID)
	require.NotNil(t, res.Items[0].Store)
	require.Equal(t, approved.Slug, res.Items[0].Store.Slug)
}

func TestListFiltersBySearchAndCategory(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)

	category := models.Category{Name: "Coffee", Slug: "coffee"}
	require.NoError(t, conn.Create(&category).Error)

	beans := dbtest.SeedProduct(t, conn, store.ID, "18.00", 10)
	require.NoError(t, conn.Model(&beans).Updates(map[string]any{
		"name":        "Espresso Beans",
		"category_id": category.ID,
	}).Error)
	dbtest.SeedProduct(t, conn, store.ID, "4.00", 10)

	res, err := svc.List(context.Background(), ListInput{Search: "espresso"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, beans.ID, res.Items[0].ID)

	res, err = svc.List(context.Background(), ListInput{CategorySlug: "coffee"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].Category)
	require.Equal(t, "coffee", res.Items[0].Category.Slug)
}

func TestListPaginates(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	for i := 0; i < 3; i++ {
		dbtest.SeedProduct(t, conn, store.ID, "1.00", 1)
	}

	first, err := svc.List(context.Background(), ListInput{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, int64(3), first.Total)

	second, err := svc.List(context.Background(), ListInput{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.NotEqual(t, first.Items[0].ID, second.Items[0].ID)
	require.NotEqual(t, first.Items[1].ID, second.Items[0].ID)
}

func TestGetBySlugIncludesVisibleReviews(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	product := dbtest.SeedProduct(t, conn, store.ID, "20.00", 2)
	buyer := dbtest.SeedUser(t, conn, enums.UserRoleBuyer)

	require.NoError(t, conn.Create(&models.Review{ProductID: product.ID, BuyerID: buyer.ID, OrderID: uuid.New(), Rating: 5, Status: enums.ReviewStatusVisible}).Error)
	require.NoError(t, conn.Create(&models.Review{ProductID: product.ID, BuyerID: buyer.ID, OrderID: uuid.New(), Rating: 2, Status: enums.ReviewStatusVisible}).Error)
	require.NoError(t, conn.Create(&models.Review{ProductID: product.ID, BuyerID: buyer.ID, OrderID: uuid.New(), Rating: 1, Status: enums.ReviewStatusHidden}).Error)

	detail, err := svc.GetBySlug(context.Background(), product.Slug)
	require.NoError(t, err)
	require.Equal(t, product.ID, detail.ID)
	require.Len(t, detail.Reviews, 2)
	require.Equal(t, int64(2), detail.ReviewCount)
	require.NotNil(t, detail.AverageRating)
	require.InDelta(t, 3.5, *detail.AverageRating, 0.001)
}

func TestGetBySlugHidesUnpurchasable(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusSuspended)
	product := dbtest.SeedProduct(t, conn, store.ID, "20.00", 2)

	_, err := svc.GetBySlug(context.Background(), product.Slug)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.GetBySlug(context.Background(), "  ")
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateProductForOwnerStore(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)

	dto, err := svc.CreateProduct(context.Background(), owner.ID, CreateProductInput{
		Name:           "Pour Over Kit",
		Price:          types.MustMoney("39.99"),
		InventoryCount: 4,
	})
	require.NoError(t, err)
	require.Equal(t, store.ID, dto.StoreID)
	require.Equal(t, "pour-over-kit", dto.Slug)
	require.Equal(t, enums.ProductStatusDraft, dto.Status)

	_, err = svc.CreateProduct(context.Background(), owner.ID, CreateProductInput{
		Name:  "Pour Over Kit",
		Price: types.MustMoney("10.00"),
	})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateProductValidates(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)

	_, err := svc.CreateProduct(context.Background(), owner.ID, CreateProductInput{Name: "Free", Price: types.ZeroMoney()})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateProduct(context.Background(), owner.ID, CreateProductInput{Name: "Neg", Price: types.MustMoney("1.00"), InventoryCount: -1})
	requireCode(t, err, pkgerrors.CodeValidation)

	missing := uuid.New()
	_, err = svc.CreateProduct(context.Background(), owner.ID, CreateProductInput{Name: "Cat", Price: types.MustMoney("1.00"), CategoryID: &missing})
	requireCode(t, err, pkgerrors.CodeValidation)

	storeless := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	_, err = svc.CreateProduct(context.Background(), storeless.ID, CreateProductInput{Name: "X", Price: types.MustMoney("1.00")})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestUpdateProductScopedToOwner(t *testing.T) {
	svc, conn := newTestService(t)
	owner := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	store := dbtest.SeedStore(t, conn, owner.ID, enums.StoreStatusApproved)
	product := dbtest.SeedProduct(t, conn, store.ID, "9.00", 1)

	price := types.MustMoney("11.00")
	stock := 25
	dto, err := svc.UpdateProduct(context.Background(), owner.ID, product.ID, UpdateProductInput{Price: &price, InventoryCount: &stock})
	require.NoError(t, err)
	require.Equal(t, "11.00", dto.Price.String())
	require.Equal(t, 25, dto.InventoryCount)

	intruder := dbtest.SeedUser(t, conn, enums.UserRoleStoreOwner)
	dbtest.SeedStore(t, conn, intruder.ID, enums.StoreStatusApproved)
	_, err = svc.UpdateProduct(context.Background(), intruder.ID, product.ID, UpdateProductInput{Price: &price})
	requireCode(t, err, pkgerrors.CodeNotFound)

	items, err := svc.ListStoreProducts(context.Background(), owner.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 25, items[0].InventoryCount)
}
