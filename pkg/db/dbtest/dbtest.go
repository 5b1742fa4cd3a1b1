// Package dbtest opens throwaway sqlite databases carrying the marketplace schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Open returns an isolated in-memory database with every model migrated.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:mkt_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes writers the way sqlite expects
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	conn := Open(t)
	return db.Wrap(conn), conn
}

// Seed helpers keep fixtures short in service tests.

func SeedUser(t testing.TB, conn *gorm.DB, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	mustCreate(t, conn, &user)
	return user
}

func SeedStore(t testing.TB, conn *gorm.DB, ownerID uuid.UUID, status enums.StoreStatus) models.Store {
	t.Helper()
	slug := "store-" + uuid.NewString()[:8]
	store := models.Store{OwnerID: ownerID, Name: slug, Slug: slug, Status: status}
	mustCreate(t, conn, &store)
	return store
}

func SeedProduct(t testing.TB, conn *gorm.DB, storeID uuid.UUID, price string, inventory int) models.Product {
	t.Helper()
	slug := "product-" + uuid.NewString()[:8]
	product := models.Product{
		StoreID:        storeID,
		Name:           slug,
		Slug:           slug,
		Price:          types.MustMoney(price),
		InventoryCount: inventory,
		Status:         enums.ProductStatusActive,
	}
	mustCreate(t, conn, &product)
	return product
}

// SeedOrder creates an order for one product line and returns it with Items set.
func SeedOrder(t testing.TB, conn *gorm.DB, buyerID uuid.UUID, product models.Product, qty int, status enums.OrderStatus) models.Order {
	t.Helper()
	total := product.Price.Mul(qty)
	order := models.Order{
		BuyerID:     buyerID,
		StoreID:     product.StoreID,
		Status:      status,
		TotalAmount: total,
		ShippingAddress: types.ShippingAddress{
			FullName:     "Test Buyer",
			AddressLine1: "1 Main St",
			City:         "Springfield",
			State:        "IL",
			PostalCode:   "62701",
			Country:      "US",
		},
	}
	if err := conn.Omit("Items", "Store", "Buyer").Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	item := models.OrderItem{
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
		TotalPrice:  total,
	}
	if err := conn.Omit("Product").Create(&item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}
	order.Items = []models.OrderItem{item}
	return order
}

func mustCreate(t testing.TB, conn *gorm.DB, value any) {
	t.Helper()
	if err := conn.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}
