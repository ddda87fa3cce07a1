package query

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

func setupQueryBuilderTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE "SENSORS" (
			"ID" INTEGER PRIMARY KEY,
			"NAME" TEXT NOT NULL,
			"ENCODING_TYPE" TEXT,
			"PRECISION" REAL
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO "SENSORS" ("ID", "NAME", "ENCODING_TYPE", "PRECISION") VALUES
		(1, 'DHT22', 'application/pdf', 0.5),
		(2, 'BME280', 'text/html', 0.1),
		(3, 'SHT31', 'application/pdf', 0.3),
		(4, 'DS18B20', 'text/html', 0.0625)
	`)
	if err != nil {
		t.Fatalf("Failed to insert test data: %v", err)
	}

	return db
}

func TestQueryBuilder_BasicSelect(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).WithTable("SENSORS", "")

	sql, args := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS"`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
	if len(args) != 0 {
		t.Errorf("Expected no args, got %v", args)
	}
}

func TestQueryBuilder_SelectWithAlias(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "e0").
		Select(`"e0"."ID"`, `"e0"."NAME"`)

	sql, _ := qb.ToSQL()
	expectedSQL := `SELECT "e0"."ID", "e0"."NAME" FROM "SENSORS" AS "e0"`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
}

func TestQueryBuilder_Where(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Where(`"PRECISION" > ?`, 0.2).
		Where(`"ENCODING_TYPE" = ?`, "application/pdf")

	sql, args := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS" WHERE "PRECISION" > ? AND "ENCODING_TYPE" = ?`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
	if len(args) != 2 {
		t.Fatalf("Expected 2 args, got %d", len(args))
	}
	if args[0] != 0.2 || args[1] != "application/pdf" {
		t.Errorf("Expected args [0.2 application/pdf], got %v", args)
	}
}

func TestQueryBuilder_OrderByArgsFollowWhereArgs(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		OrderBy(`json_extract("PROPERTIES", ?) DESC`, `$."rank"`).
		Where(`"NAME" = ?`, "DHT22")

	sql, args := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS" WHERE "NAME" = ? ORDER BY json_extract("PROPERTIES", ?) DESC`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
	if len(args) != 2 || args[0] != "DHT22" || args[1] != `$."rank"` {
		t.Errorf("Expected where arg before order arg, got %v", args)
	}
}

func TestQueryBuilder_LimitOffset(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Limit(10).
		Offset(20)

	sql, _ := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS" LIMIT 10 OFFSET 20`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
}

func TestQueryBuilder_SQLiteOffsetRequiresLimit(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Offset(5)

	sql, _ := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS" LIMIT -1 OFFSET 5`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
}

func TestQueryBuilder_Join(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("DATASTREAMS", "e0").
		Join(`LEFT JOIN "SENSORS" AS "e1" ON "e1"."ID" = "e0"."SENSOR_ID"`)

	sql, _ := qb.ToSQL()
	expectedSQL := `SELECT * FROM "DATASTREAMS" AS "e0" LEFT JOIN "SENSORS" AS "e1" ON "e1"."ID" = "e0"."SENSOR_ID"`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
}

func TestQueryBuilder_ToCountSQL(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Where(`"PRECISION" > ?`, 0.2).
		OrderBy(`"NAME"`).
		Limit(10)

	sql, args := qb.ToCountSQL()
	expectedSQL := `SELECT COUNT(*) FROM "SENSORS" WHERE "PRECISION" > ?`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 arg, got %d", len(args))
	}
}

func TestQueryBuilder_QueryContext(t *testing.T) {
	db := setupQueryBuilderTestDB(t)
	defer db.Close()

	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Where(`"PRECISION" > ?`, 0.2).
		OrderBy(`"PRECISION" ASC`)

	ctx := context.Background()
	rows, err := qb.QueryContext(ctx, db)
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var id int
		var name, encodingType string
		var precision float64
		if err := rows.Scan(&id, &name, &encodingType, &precision); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		names = append(names, name)
	}

	if len(names) != 2 || names[0] != "SHT31" || names[1] != "DHT22" {
		t.Errorf("Expected [SHT31 DHT22], got %v", names)
	}
}

func TestQueryBuilder_CountContext(t *testing.T) {
	db := setupQueryBuilderTestDB(t)
	defer db.Close()

	qb := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Where(`"ENCODING_TYPE" = ?`, "text/html")

	count, err := qb.CountContext(context.Background(), db)
	if err != nil {
		t.Fatalf("CountContext failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}

func TestQueryBuilder_Clone(t *testing.T) {
	original := newQueryBuilder(persistence.DialectSQLite).
		WithTable("SENSORS", "").
		Where(`"PRECISION" > ?`, 0.1).
		OrderBy(`"PRECISION" DESC`)

	clone := original.Clone()
	clone = clone.Where(`"ENCODING_TYPE" = ?`, "application/pdf")

	originalSQL, originalArgs := original.ToSQL()
	cloneSQL, cloneArgs := clone.ToSQL()

	if originalSQL == cloneSQL {
		t.Errorf("Clone should have different SQL after modification")
	}
	if len(originalArgs) != 1 {
		t.Errorf("Original should have 1 arg, got %d", len(originalArgs))
	}
	if len(cloneArgs) != 2 {
		t.Errorf("Clone should have 2 args, got %d", len(cloneArgs))
	}
}

func TestQueryBuilder_PostgreSQLPlaceholders(t *testing.T) {
	qb := newQueryBuilder(persistence.DialectPostgres).
		WithTable("SENSORS", "e0").
		Where(`"e0"."PRECISION" > ?`, 0.2).
		Where(`"e0"."NAME" <> 'a?b'`).
		Where(`"e0"."ENCODING_TYPE" = ?`, "text/html")

	sql, _ := qb.ToSQL()
	expectedSQL := `SELECT * FROM "SENSORS" AS "e0" WHERE "e0"."PRECISION" > $1 AND "e0"."NAME" <> 'a?b' AND "e0"."ENCODING_TYPE" = $2`
	if sql != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, sql)
	}
}
