package persistence

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/model"
)

// ColumnKind is the storage class of a column in a table definition.
type ColumnKind string

const (
	ColumnID       ColumnKind = "id"
	ColumnRef      ColumnKind = "ref"
	ColumnText     ColumnKind = "text"
	ColumnJSON     ColumnKind = "json"
	ColumnTime     ColumnKind = "time"
	ColumnDouble   ColumnKind = "double"
	ColumnBigInt   ColumnKind = "bigint"
	ColumnBoolean  ColumnKind = "boolean"
	ColumnSmallInt ColumnKind = "smallint"
	ColumnGeometry ColumnKind = "geometry"
)

// ColumnDef declares one column. Ref columns hold the id of another entity
// and share the id type of the collection.
type ColumnDef struct {
	Name string
	Kind ColumnKind
}

// TableDef declares a table created by Migrate.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// DDLOptions selects the column types of generated statements.
type DDLOptions struct {
	Dialect    Dialect
	IDKind     model.IDKind
	Geospatial bool
}

func (o DDLOptions) idType(primary bool) string {
	postgres := o.Dialect == DialectPostgres
	switch {
	case o.IDKind == model.IDKindLong && postgres && primary:
		return "BIGSERIAL"
	case o.IDKind == model.IDKindLong && postgres:
		return "BIGINT"
	case o.IDKind == model.IDKindLong:
		return "INTEGER"
	case o.IDKind == model.IDKindUUID && postgres:
		return "UUID"
	case postgres:
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

func (o DDLOptions) columnType(kind ColumnKind) (string, error) {
	postgres := o.Dialect == DialectPostgres
	switch kind {
	case ColumnID:
		return o.idType(true) + " PRIMARY KEY", nil
	case ColumnRef:
		return o.idType(false), nil
	case ColumnText:
		return "TEXT", nil
	case ColumnJSON:
		if postgres {
			return "JSONB", nil
		}
		return "TEXT", nil
	case ColumnTime:
		if postgres {
			return "TIMESTAMPTZ", nil
		}
		return "TIMESTAMP", nil
	case ColumnDouble:
		return "DOUBLE PRECISION", nil
	case ColumnBigInt:
		return "BIGINT", nil
	case ColumnBoolean:
		return "BOOLEAN", nil
	case ColumnSmallInt:
		return "SMALLINT", nil
	case ColumnGeometry:
		if postgres {
			return "geometry(Geometry, 4326)", nil
		}
		return "BLOB", nil
	}
	return "", fmt.Errorf("unknown column kind '%s'", kind)
}

// CreateTableSQL returns the statement creating def when it does not exist.
// Geometry columns are left out without geospatial support.
func (o DDLOptions) CreateTableSQL(def TableDef) (string, error) {
	if def.Name == "" {
		return "", fmt.Errorf("table name cannot be empty")
	}
	columns := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		if c.Kind == ColumnGeometry && !o.Geospatial {
			continue
		}
		typ, err := o.columnType(c.Kind)
		if err != nil {
			return "", fmt.Errorf("column %s of table %s: %w", c.Name, def.Name, err)
		}
		columns = append(columns, o.Dialect.Quote(c.Name)+" "+typ)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", def.Name)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", o.Dialect.Quote(def.Name), strings.Join(columns, ", ")), nil
}

// Migrate creates the tables of defs that do not exist yet.
func Migrate(ctx context.Context, db *gorm.DB, opts DDLOptions, defs []TableDef) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defs {
			stmt, err := opts.CreateTableSQL(def)
			if err != nil {
				return err
			}
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create table %s: %w", def.Name, err)
			}
		}
		return nil
	})
}

// LastInsertIDSQL returns the query reading the id generated by the last
// insert on the current connection.
func (d Dialect) LastInsertIDSQL() string {
	if d == DialectPostgres {
		return "SELECT lastval()"
	}
	return "SELECT last_insert_rowid()"
}
