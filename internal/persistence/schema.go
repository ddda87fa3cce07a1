package persistence

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
)

// Column describes a physical column of an existing table.
type Column struct {
	Name     string
	DataType string
}

// SchemaLookup finds columns of tables that already exist in the database.
// It is only consulted while fields are registered; DDL is never issued.
type SchemaLookup interface {
	Column(table, column string) (Column, bool, error)
}

// GormSchema looks up columns through the gorm migrator.
type GormSchema struct {
	db    *gorm.DB
	mu    sync.Mutex
	cache map[string][]Column
}

// NewGormSchema creates a schema lookup on db.
func NewGormSchema(db *gorm.DB) *GormSchema {
	return &GormSchema{db: db, cache: make(map[string][]Column)}
}

// Column returns the column of table whose name matches. An exact match wins
// over a case insensitive one, since unquoted identifiers fold case.
func (s *GormSchema) Column(table, column string) (Column, bool, error) {
	cols, err := s.columns(table)
	if err != nil {
		return Column{}, false, err
	}
	return findColumn(cols, column)
}

func (s *GormSchema) columns(table string) ([]Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cols, ok := s.cache[table]; ok {
		return cols, nil
	}
	migrator := s.db.Migrator()
	if !migrator.HasTable(table) {
		s.cache[table] = nil
		return nil, nil
	}
	types, err := migrator.ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of table %s: %w", table, err)
	}
	cols := make([]Column, 0, len(types))
	for _, ct := range types {
		cols = append(cols, Column{Name: ct.Name(), DataType: ct.DatabaseTypeName()})
	}
	s.cache[table] = cols
	return cols, nil
}

// MapSchema is a fixed schema, keyed by table name.
type MapSchema map[string][]Column

// Column implements SchemaLookup.
func (s MapSchema) Column(table, column string) (Column, bool, error) {
	return findColumn(s[table], column)
}

func findColumn(cols []Column, name string) (Column, bool, error) {
	for _, c := range cols {
		if c.Name == name {
			return c, true, nil
		}
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true, nil
		}
	}
	return Column{}, false, nil
}

// NewMapSchema builds a fixed schema from table definitions.
func NewMapSchema(defs ...TableDef) MapSchema {
	s := MapSchema{}
	for _, def := range defs {
		for _, c := range def.Columns {
			s[def.Name] = append(s[def.Name], Column{Name: c.Name, DataType: string(c.Kind)})
		}
	}
	return s
}
