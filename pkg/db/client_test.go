package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := newTestDB(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "rollback should leave one record")
}

func TestPing(t *testing.T) {
	client := Wrap(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, conn.Create(&testModel{Name: "dup"}).Error)
	err := conn.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "cart_items_buyer_product_key"}
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "cart_items_buyer_product_key"))
	require.False(t, IsUniqueViolation(pgErr, "other_constraint"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))

	sqliteErr := errors.New("UNIQUE constraint failed: cart_items.buyer_id, cart_items.product_id")
	require.True(t, IsUniqueViolation(sqliteErr, "cart_items_buyer_product_key"))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: stores.owner_id"), "stores_owner_id_key"))
	require.False(t, IsUniqueViolation(sqliteErr, "stores_slug_key"))
	require.False(t, IsUniqueViolation(nil, ""))
}
