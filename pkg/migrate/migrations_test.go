package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestProductsMigrationGuardsInventory(t *testing.T) {
	content := readMigration(t, "create_products")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (inventory_count >= 0)",
		"FOREIGN KEY (store_id) REFERENCES stores(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS products",
	} {
		require.True(t, strings.Contains(content, want), "missing %q", want)
	}
}

func TestCartItemsMigrationEnforcesOneRowPerProduct(t *testing.T) {
	content := readMigration(t, "create_cart_items")
	require.Contains(t, content, "CONSTRAINT cart_items_buyer_product_key UNIQUE (buyer_id, product_id)")
	require.Contains(t, content, "CHECK (quantity >= 1)")
}

func TestOrdersMigrationCarriesSnapshots(t *testing.T) {
	content := readMigration(t, "create_orders")
	require.Contains(t, content, "shipping_address jsonb NOT NULL")
	require.Contains(t, content, "unit_price numeric(12,2) NOT NULL")
	require.Contains(t, content, "WHERE status = 'pending'")
	require.Contains(t, content, "DROP TABLE IF EXISTS orders")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Store Banner!")
	require.NoError(t, err)
	require.Regexp(t, `\d{14}_add_store_banner\.sql$`, path)
	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_oops.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestListOrdersSchemaByVersion(t *testing.T) {
	files, err := List("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{
		"create_users",
		"create_stores_and_categories",
		"create_products",
		"create_cart_items",
		"create_orders",
		"create_reviews",
		"create_outbox_events",
	}, names)
}
