package persistence

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/model"
)

var sensorsDef = TableDef{Name: "SENSORS", Columns: []ColumnDef{
	{Name: "ID", Kind: ColumnID},
	{Name: "NAME", Kind: ColumnText},
	{Name: "METADATA", Kind: ColumnJSON},
	{Name: "AREA", Kind: ColumnGeometry},
	{Name: "THING_ID", Kind: ColumnRef},
}}

func TestCreateTableSQL(t *testing.T) {
	tests := []struct {
		name     string
		opts     DDLOptions
		expected string
	}{
		{
			name:     "sqlite long ids",
			opts:     DDLOptions{Dialect: DialectSQLite, IDKind: model.IDKindLong},
			expected: `CREATE TABLE IF NOT EXISTS "SENSORS" ("ID" INTEGER PRIMARY KEY, "NAME" TEXT, "METADATA" TEXT, "THING_ID" INTEGER)`,
		},
		{
			name:     "postgres uuid ids with geometry",
			opts:     DDLOptions{Dialect: DialectPostgres, IDKind: model.IDKindUUID, Geospatial: true},
			expected: `CREATE TABLE IF NOT EXISTS "SENSORS" ("ID" UUID PRIMARY KEY, "NAME" TEXT, "METADATA" JSONB, "AREA" geometry(Geometry, 4326), "THING_ID" UUID)`,
		},
		{
			name:     "postgres long ids",
			opts:     DDLOptions{Dialect: DialectPostgres, IDKind: model.IDKindLong},
			expected: `CREATE TABLE IF NOT EXISTS "SENSORS" ("ID" BIGSERIAL PRIMARY KEY, "NAME" TEXT, "METADATA" JSONB, "THING_ID" BIGINT)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.CreateTableSQL(sensorsDef)
			if err != nil {
				t.Fatalf("CreateTableSQL failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCreateTableSQL_Errors(t *testing.T) {
	opts := DDLOptions{Dialect: DialectSQLite}
	if _, err := opts.CreateTableSQL(TableDef{}); err == nil {
		t.Error("Expected error for empty table name")
	}
	_, err := opts.CreateTableSQL(TableDef{Name: "X", Columns: []ColumnDef{{Name: "A", Kind: "decimal"}}})
	if err == nil || !strings.Contains(err.Error(), "unknown column kind") {
		t.Errorf("Expected unknown column kind error, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	opts := DDLOptions{Dialect: DialectSQLite, IDKind: model.IDKindLong}
	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db, opts, []TableDef{sensorsDef}); err != nil {
			t.Fatalf("Migrate run %d failed: %v", i+1, err)
		}
	}

	schema := NewGormSchema(db)
	for _, name := range []string{"ID", "NAME", "METADATA", "THING_ID"} {
		if _, found, err := schema.Column("SENSORS", name); err != nil || !found {
			t.Errorf("Expected column %s to exist, found=%v err=%v", name, found, err)
		}
	}
	if _, found, _ := schema.Column("SENSORS", "AREA"); found {
		t.Error("Expected geometry column to be skipped without geospatial support")
	}
}
