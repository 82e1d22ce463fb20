package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationFilesExist(t *testing.T) {
	migrationsDir := "../../migrations"

	// Check if migrations directory exists
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	// Expected migration files
	expectedMigrations := []string{
		"00001_create_brands_table.sql",
		"00002_create_products_table.sql",
		"00003_create_platform_a_details_table.sql",
		"00004_create_platform_b_details_table.sql",
		"00005_create_price_history_table.sql",
		"00006_create_pipeline_errors_table.sql",
		"00007_create_reporting_views.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	migrationsDir := "../../migrations"

	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)

		// Check for goose Up directive
		if !strings.Contains(contentStr, "-- +goose Up") {
			t.Errorf("Migration file %s missing '-- +goose Up' directive", file.Name())
		}

		// Check for goose Down directive
		if !strings.Contains(contentStr, "-- +goose Down") {
			t.Errorf("Migration file %s missing '-- +goose Down' directive", file.Name())
		}

		// Check for StatementBegin/End
		if !strings.Contains(contentStr, "-- +goose StatementBegin") {
			t.Errorf("Migration file %s missing '-- +goose StatementBegin' directive", file.Name())
		}

		if !strings.Contains(contentStr, "-- +goose StatementEnd") {
			t.Errorf("Migration file %s missing '-- +goose StatementEnd' directive", file.Name())
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	migrationsDir := "../../migrations"

	expectedTables := map[string]string{
		"brands":             "00001_create_brands_table.sql",
		"products":           "00002_create_products_table.sql",
		"platform_a_details": "00003_create_platform_a_details_table.sql",
		"platform_b_details": "00004_create_platform_b_details_table.sql",
		"price_history":      "00005_create_price_history_table.sql",
		"pipeline_errors":    "00006_create_pipeline_errors_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		path := filepath.Join(migrationsDir, migrationFile)
		content, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", migrationFile, err)
			continue
		}

		contentStr := string(content)

		// Check if migration creates the table
		createTableStmt := "CREATE TABLE IF NOT EXISTS " + tableName
		if !strings.Contains(contentStr, createTableStmt) {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}

		// Check if migration has drop table in down section
		dropTableStmt := "DROP TABLE IF EXISTS " + tableName
		if !strings.Contains(contentStr, dropTableStmt) {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestProductsTableHasStageConstraints(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00002_create_products_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)

	// The stage machine is enforced at the schema level too
	requiredStages := []string{"'crawled'", "'translated'", "'matched'", "'failed'"}
	for _, stage := range requiredStages {
		if !strings.Contains(contentStr, stage) {
			t.Errorf("Products table stage constraint missing value: %s", stage)
		}
	}

	requiredStatuses := []string{"'pending'", "'success'", "'not_found'"}
	for _, status := range requiredStatuses {
		if !strings.Contains(contentStr, status) {
			t.Errorf("Products table matching constraint missing value: %s", status)
		}
	}
}

func TestProductsTableHasIdentityAndLockColumns(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00002_create_products_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)

	// Snapshot identity: one row per (brand, external id)
	if !strings.Contains(contentStr, "UNIQUE (brand_name, external_product_id)") {
		t.Error("Products table missing unique constraint on (brand_name, external_product_id)")
	}

	requiredColumns := []string{
		"lock_owner VARCHAR",
		"lock_acquired_at TIMESTAMPTZ",
		"price_updated_at TIMESTAMPTZ",
		"last_error TEXT",
	}
	for _, column := range requiredColumns {
		if !strings.Contains(contentStr, column) {
			t.Errorf("Products table missing required column definition: %s", column)
		}
	}

	if !strings.Contains(contentStr, "FOREIGN KEY (brand_name)") {
		t.Error("Products table missing foreign key constraint to brands")
	}
}

func TestPriceHistoryTableConstrainsPlatform(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00005_create_price_history_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read price_history migration: %v", err)
	}

	contentStr := string(content)

	for _, platform := range []string{"'platform_a'", "'platform_b'"} {
		if !strings.Contains(contentStr, platform) {
			t.Errorf("Price history platform constraint missing value: %s", platform)
		}
	}

	// Ledger rows must not outlive their product
	if !strings.Contains(contentStr, "ON DELETE CASCADE") {
		t.Error("Price history missing cascade delete on product foreign key")
	}
}

func TestReportingViewsAreDefined(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00007_create_reporting_views.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read reporting views migration: %v", err)
	}

	contentStr := string(content)

	for _, view := range []string{"v_products_full", "v_price_comparison"} {
		if !strings.Contains(contentStr, "CREATE OR REPLACE VIEW "+view) {
			t.Errorf("Reporting views migration does not create %s", view)
		}
		if !strings.Contains(contentStr, "DROP VIEW IF EXISTS "+view) {
			t.Errorf("Reporting views migration does not drop %s in down section", view)
		}
	}

	// Comparison rows only exist for matched products with both prices
	if !strings.Contains(contentStr, "matching_status = 'success'") {
		t.Error("v_price_comparison does not filter to successful matches")
	}
	if !strings.Contains(contentStr, "matched_price IS NOT NULL") {
		t.Error("v_price_comparison does not require a matched price")
	}
}
