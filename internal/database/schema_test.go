package database

import (
	"io/fs"
	"strings"
	"testing"

	"storefront/migrations"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	content, err := fs.ReadFile(migrations.FS, name)
	if err != nil {
		t.Fatalf("Failed to read migration %s: %v", name, err)
	}
	return string(content)
}

// Feature: storefront-checkout, Property 20: Pending migrations are executed
func TestMigrationFilesExist(t *testing.T) {
	expectedMigrations := []string{
		"00001_create_products_table.sql",
		"00002_create_carts_table.sql",
		"00003_create_cart_items_table.sql",
		"00004_create_orders_table.sql",
		"00005_create_order_items_table.sql",
		"00006_create_order_status_history_table.sql",
		"00007_create_payment_transactions_table.sql",
		"00008_create_outbox_table.sql",
	}

	for _, migration := range expectedMigrations {
		if _, err := fs.Stat(migrations.FS, migration); err != nil {
			t.Errorf("Migration file %s is not embedded: %v", migration, err)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("No SQL migration files found")
	}

	for _, name := range files {
		content := readMigration(t, name)

		for _, directive := range []string{
			"-- +goose Up",
			"-- +goose Down",
			"-- +goose StatementBegin",
			"-- +goose StatementEnd",
		} {
			if !strings.Contains(content, directive) {
				t.Errorf("Migration file %s missing '%s' directive", name, directive)
			}
		}
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	expectedTables := map[string]string{
		"products":             "00001_create_products_table.sql",
		"carts":                "00002_create_carts_table.sql",
		"cart_items":           "00003_create_cart_items_table.sql",
		"orders":               "00004_create_orders_table.sql",
		"order_items":          "00005_create_order_items_table.sql",
		"order_status_history": "00006_create_order_status_history_table.sql",
		"payment_transactions": "00007_create_payment_transactions_table.sql",
		"outbox":               "00008_create_outbox_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		content := readMigration(t, migrationFile)

		if !strings.Contains(content, "CREATE TABLE IF NOT EXISTS "+tableName+" ") {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}
		if !strings.Contains(content, "DROP TABLE IF EXISTS "+tableName+";") {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestProductsTableGuardsStock(t *testing.T) {
	content := readMigration(t, "00001_create_products_table.sql")

	for _, column := range []string{
		"id UUID PRIMARY KEY",
		"price DECIMAL(12, 2)",
		"currency CHAR(3)",
		"images JSONB",
		"stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)",
	} {
		if !strings.Contains(content, column) {
			t.Errorf("Products table missing column definition: %s", column)
		}
	}
}

func TestCartsTableIsOnePerUser(t *testing.T) {
	content := readMigration(t, "00002_create_carts_table.sql")
	if !strings.Contains(content, "user_id UUID NOT NULL UNIQUE") {
		t.Error("Carts table must hold at most one cart per user")
	}

	items := readMigration(t, "00003_create_cart_items_table.sql")
	if !strings.Contains(items, "PRIMARY KEY (cart_id, product_id)") {
		t.Error("Cart items must be unique per product")
	}
}

func TestOrdersTableHasStatusConstraint(t *testing.T) {
	content := readMigration(t, "00004_create_orders_table.sql")

	for _, status := range []string{"pending", "paid", "shipped", "delivered", "cancelled"} {
		if !strings.Contains(content, "'"+status+"'") {
			t.Errorf("Orders table status constraint missing value: %s", status)
		}
	}

	if !strings.Contains(content, "UNIQUE (user_id, idempotency_key)") {
		t.Error("Orders table missing idempotency key constraint")
	}
}
