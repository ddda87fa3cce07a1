package persistence

import (
	"github.com/pbaumard/FROST-Server/internal/model"
)

// TableSpec declares a table of an entity type together with the mappers
// binding its columns. The same declaration yields the DDL used by Migrate
// and the table registered in a TableCollection, so both stay in sync.
type TableSpec struct {
	name    string
	et      *model.EntityType
	columns []ColumnDef
	mappers []propertyMapper
}

// NewTableSpec starts the declaration of table name storing et.
func NewTableSpec(name string, et *model.EntityType) *TableSpec {
	return &TableSpec{name: name, et: et}
}

// Name returns the table name.
func (s *TableSpec) Name() string { return s.name }

// EntityType returns the stored entity type.
func (s *TableSpec) EntityType() *model.EntityType { return s.et }

func (s *TableSpec) add(p *model.Property, m FieldMapper, cols ...ColumnDef) *TableSpec {
	s.mappers = append(s.mappers, propertyMapper{property: p, mapper: m})
	s.columns = append(s.columns, cols...)
	return s
}

// ID declares the id column.
func (s *TableSpec) ID(col string) *TableSpec {
	return s.add(model.EPID, &IDMapper{Field: col}, ColumnDef{Name: col, Kind: ColumnID})
}

// Text declares a string property.
func (s *TableSpec) Text(p *model.Property, col string) *TableSpec {
	return s.add(p, &StringMapper{Field: col}, ColumnDef{Name: col, Kind: ColumnText})
}

// Simple declares a scalar property stored in a column of the given kind.
func (s *TableSpec) Simple(p *model.Property, col string, kind ColumnKind) *TableSpec {
	return s.add(p, &SimpleMapper{Field: col}, ColumnDef{Name: col, Kind: kind})
}

// JSON declares an object or array property stored as JSON.
func (s *TableSpec) JSON(p *model.Property, col string) *TableSpec {
	return s.add(p, &MapMapper{Field: col}, ColumnDef{Name: col, Kind: ColumnJSON})
}

// TimeInstant declares an instant stored in one column.
func (s *TableSpec) TimeInstant(p *model.Property, col string) *TableSpec {
	return s.add(p, &TimeInstantMapper{Field: col}, ColumnDef{Name: col, Kind: ColumnTime})
}

// TimeValue declares an instant or interval stored in two columns.
func (s *TableSpec) TimeValue(p *model.Property, start, end string) *TableSpec {
	return s.add(p, &TimeValueMapper{FieldStart: start, FieldEnd: end},
		ColumnDef{Name: start, Kind: ColumnTime}, ColumnDef{Name: end, Kind: ColumnTime})
}

// TimeInterval declares an interval stored in two columns.
func (s *TableSpec) TimeInterval(p *model.Property, start, end string) *TableSpec {
	return s.add(p, &TimeIntervalMapper{FieldStart: start, FieldEnd: end},
		ColumnDef{Name: start, Kind: ColumnTime}, ColumnDef{Name: end, Kind: ColumnTime})
}

// Result declares a result stored in the five result columns.
func (s *TableSpec) Result(p *model.Property, typ, str, number, boolean, json string) *TableSpec {
	m := &ResultMapper{FieldType: typ, FieldString: str, FieldNumber: number, FieldBoolean: boolean, FieldJSON: json}
	return s.add(p, m,
		ColumnDef{Name: typ, Kind: ColumnSmallInt},
		ColumnDef{Name: str, Kind: ColumnText},
		ColumnDef{Name: number, Kind: ColumnDouble},
		ColumnDef{Name: boolean, Kind: ColumnBoolean},
		ColumnDef{Name: json, Kind: ColumnJSON})
}

// Location declares a GeoJSON property with an optional geometry column.
func (s *TableSpec) Location(p *model.Property, json, geom string) *TableSpec {
	cols := []ColumnDef{{Name: json, Kind: ColumnJSON}}
	if geom != "" {
		cols = append(cols, ColumnDef{Name: geom, Kind: ColumnGeometry})
	}
	return s.add(p, &LocationMapper{FieldJSON: json, FieldGeom: geom}, cols...)
}

// ToOne declares a to-one navigation property stored as foreign key fk.
func (s *TableSpec) ToOne(np *model.Property, fk string) *TableSpec {
	return s.add(np, &NavigationMapper{Field: fk}, ColumnDef{Name: fk, Kind: ColumnRef})
}

// Def returns the table definition.
func (s *TableSpec) Def() TableDef {
	return TableDef{Name: s.name, Columns: append([]ColumnDef(nil), s.columns...)}
}

// Register creates the table, adds it to tables and schedules its mappers.
// A spec is registered once.
func (s *TableSpec) Register(tables *TableCollection) (*Table, error) {
	t := NewTable(s.name, s.et)
	if err := tables.RegisterTable(t); err != nil {
		return nil, err
	}
	for _, pm := range s.mappers {
		t.AddFieldMapper(pm.property, pm.mapper)
	}
	return t, nil
}

// LinkTableDef returns the definition of a many-to-many link table.
func LinkTableDef(name, colA, colB string) TableDef {
	return TableDef{Name: name, Columns: []ColumnDef{{Name: colA, Kind: ColumnRef}, {Name: colB, Kind: ColumnRef}}}
}
