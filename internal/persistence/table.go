package persistence

import (
	"log/slog"

	"github.com/pbaumard/FROST-Server/internal/model"
)

// Field is a physical column registered on a table. Index is the position of
// the column in every Record read from the table.
type Field struct {
	Name     string
	Index    int
	DataType string
}

// Record holds the values of one row, aligned with Table.Fields. Columns that
// were not selected are nil.
type Record []any

// Get returns the value at index, or nil when out of range.
func (r Record) Get(index int) any {
	if index < 0 || index >= len(r) {
		return nil
	}
	return r[index]
}

// FieldMap holds column values for insert and update statements, keyed by
// column name.
type FieldMap map[string]any

type propertyMapper struct {
	property *model.Property
	mapper   FieldMapper
}

// Table binds an entity type to a physical table.
type Table struct {
	name       string
	entityType *model.EntityType
	fields     []Field
	byName     map[string]int
	idField    int
	mappers    []propertyMapper
	relations  map[string]Relation
	relList    []Relation
	pfReg      *PropertyFieldRegistry
	tables     *TableCollection
	logger     *slog.Logger
}

// NewTable creates the table name holding entities of type et.
func NewTable(name string, et *model.EntityType) *Table {
	t := &Table{
		name:       name,
		entityType: et,
		byName:     make(map[string]int),
		idField:    -1,
		relations:  make(map[string]Relation),
		logger:     slog.Default(),
	}
	t.pfReg = newPropertyFieldRegistry(t)
	return t
}

// Name returns the physical table name.
func (t *Table) Name() string { return t.name }

// EntityType returns the entity type stored in the table.
func (t *Table) EntityType() *model.EntityType { return t.entityType }

// Fields returns the registered fields in index order.
func (t *Table) Fields() []Field { return append([]Field(nil), t.fields...) }

// Field returns the field at index.
func (t *Table) Field(index int) Field { return t.fields[index] }

// IndexOf returns the index of a registered field, or -1.
func (t *Table) IndexOf(name string) int {
	if idx, ok := t.byName[name]; ok {
		return idx
	}
	return -1
}

// IDField returns the field holding the entity id.
func (t *Table) IDField() (Field, bool) {
	if t.idField < 0 {
		return Field{}, false
	}
	return t.fields[t.idField], true
}

// PropertyFieldRegistry returns the property to field bindings of the table.
func (t *Table) PropertyFieldRegistry() *PropertyFieldRegistry { return t.pfReg }

// Tables returns the collection the table belongs to, or nil.
func (t *Table) Tables() *TableCollection { return t.tables }

// NewRecord allocates a record with one slot per field.
func (t *Table) NewRecord() Record { return make(Record, len(t.fields)) }

// RegisterField returns the index of the column name, registering it when it
// was not seen before. The column must exist in the schema.
func (t *Table) RegisterField(schema SchemaLookup, name string) (int, error) {
	if idx, ok := t.byName[name]; ok {
		return idx, nil
	}
	col, found, err := schema.Column(t.name, name)
	if err != nil {
		return -1, model.NewConfigError("register field", name, "schema lookup on table "+t.name+" failed: "+err.Error())
	}
	if !found {
		t.logger.Error("Could not find field", "field", name, "table", t.name)
		return -1, model.NewConfigError("register field", name, "Could not find field "+name+" on table "+t.name)
	}
	idx := len(t.fields)
	t.fields = append(t.fields, Field{Name: col.Name, Index: idx, DataType: col.DataType})
	t.byName[name] = idx
	if col.Name != name {
		t.byName[col.Name] = idx
	}
	t.logger.Info("Registering table", "entityType", t.entityType.Name(), "table", t.name, "field", col.Name)
	return idx, nil
}

// AddFieldMapper schedules mapper to bind p during TableCollection.Init.
func (t *Table) AddFieldMapper(p *model.Property, mapper FieldMapper) {
	t.mappers = append(t.mappers, propertyMapper{property: p, mapper: mapper})
}

// RegisterRelation adds a relation reachable through the navigation property
// of the same name.
func (t *Table) RegisterRelation(r Relation) error {
	if _, ok := t.relations[r.Name()]; ok {
		return model.NewConfigError("register relation on "+t.name, r.Name(), "relation already registered")
	}
	t.relations[r.Name()] = r
	t.relList = append(t.relList, r)
	return nil
}

// Relation finds the relation behind a navigation property.
func (t *Table) Relation(name string) (Relation, bool) {
	r, ok := t.relations[name]
	return r, ok
}

func (t *Table) setIDField(idx int) {
	t.idField = idx
}

func (t *Table) idKind() model.IDKind {
	if t.tables == nil {
		return model.IDKindLong
	}
	return t.tables.idKind
}
