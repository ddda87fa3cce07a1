package persistence

import (
	"github.com/pbaumard/FROST-Server/internal/model"
)

// FieldMapper binds one property to physical columns in two phases.
// RegisterFields resolves the columns against the schema and freezes their
// indices; RegisterMapping then adds the property entry built from the frozen
// indices. TableCollection.Init runs the first phase for every table before
// the second phase of any table.
type FieldMapper interface {
	RegisterFields(t *Table, schema SchemaLookup) error
	RegisterMapping(t *Table, p *model.Property) error
}

func notRegistered(t *Table, p *model.Property) error {
	return model.NewConfigError("register mapping on table "+t.name, p.Name(), "fields were not registered")
}

func registerFields(t *Table, schema SchemaLookup, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		idx, err := t.RegisterField(schema, name)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// singleField is the frozen binding of mappers using one column.
type singleField struct {
	index int
	bound bool
}

func (s *singleField) register(t *Table, schema SchemaLookup, name string) error {
	idx, err := t.RegisterField(schema, name)
	if err != nil {
		return err
	}
	s.index, s.bound = idx, true
	return nil
}

// IDMapper maps the entity id.
type IDMapper struct {
	Field string
	f     singleField
}

func (m *IDMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *IDMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	return t.pfReg.AddEntryID(m.f.index)
}

// StringMapper maps a string property to a text column.
type StringMapper struct {
	Field string
	f     singleField
}

func (m *StringMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *StringMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	return t.pfReg.AddEntryString(p, m.f.index)
}

// SimpleMapper maps a scalar property to a column of a matching type.
type SimpleMapper struct {
	Field string
	f     singleField
}

func (m *SimpleMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *SimpleMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	return t.pfReg.AddEntrySimple(p, m.f.index)
}

// MapMapper maps an object or array property to a JSON text column.
type MapMapper struct {
	Field string
	f     singleField
}

func (m *MapMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *MapMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	return t.pfReg.AddEntryMap(p, m.f.index)
}

// TimeInstantMapper maps an instant to one timestamp column.
type TimeInstantMapper struct {
	Field string
	f     singleField
}

func (m *TimeInstantMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *TimeInstantMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	idx := m.f.index
	return t.pfReg.AddEntry(p, timeInstantConverter{property: p, field: idx}, NFP{Field: idx, Select: true})
}

// NavigationMapper maps a to-one navigation property to a foreign key.
type NavigationMapper struct {
	Field string
	f     singleField
}

func (m *NavigationMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.Field)
}

func (m *NavigationMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	return t.pfReg.AddEntryNavigation(p, m.f.index)
}

// timeFields is the frozen binding of start and end columns.
type timeFields struct {
	start, end int
	bound      bool
}

func (f *timeFields) register(t *Table, schema SchemaLookup, start, end string) error {
	idx, err := registerFields(t, schema, start, end)
	if err != nil {
		return err
	}
	f.start, f.end, f.bound = idx[0], idx[1], true
	return nil
}

// TimeValueMapper maps an instant or interval to start and end columns.
type TimeValueMapper struct {
	FieldStart string
	FieldEnd   string
	f          timeFields
}

func (m *TimeValueMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.FieldStart, m.FieldEnd)
}

func (m *TimeValueMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	f := m.f
	return t.pfReg.AddEntry(p, timeValueConverter{property: p, start: f.start, end: f.end},
		NFP{Name: KeyTimeStart, Field: f.start, Select: true},
		NFP{Name: KeyTimeEnd, Field: f.end, Select: true})
}

// TimeIntervalMapper maps an interval to start and end columns.
type TimeIntervalMapper struct {
	FieldStart string
	FieldEnd   string
	f          timeFields
}

func (m *TimeIntervalMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	return m.f.register(t, schema, m.FieldStart, m.FieldEnd)
}

func (m *TimeIntervalMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.f.bound {
		return notRegistered(t, p)
	}
	f := m.f
	return t.pfReg.AddEntry(p, timeIntervalConverter{property: p, start: f.start, end: f.end},
		NFP{Name: KeyTimeStart, Field: f.start, Select: true},
		NFP{Name: KeyTimeEnd, Field: f.end, Select: true})
}

// ResultMapper maps a polymorphic value to a discriminator and four value
// columns.
type ResultMapper struct {
	FieldType    string
	FieldString  string
	FieldNumber  string
	FieldBoolean string
	FieldJSON    string
	f            resultFields
	bound        bool
}

func (m *ResultMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	idx, err := registerFields(t, schema, m.FieldType, m.FieldString, m.FieldNumber, m.FieldBoolean, m.FieldJSON)
	if err != nil {
		return err
	}
	m.f = resultFields{typ: idx[0], str: idx[1], number: idx[2], boolean: idx[3], json: idx[4]}
	m.bound = true
	return nil
}

func (m *ResultMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.bound {
		return notRegistered(t, p)
	}
	f := m.f
	return t.pfReg.AddEntry(p, resultConverter{property: p, fields: f},
		NFP{Name: KeyNumber, Field: f.number, Select: true},
		NFP{Name: KeyBoolean, Field: f.boolean, Select: true},
		NFP{Name: KeyString, Field: f.str, Select: true},
		NFP{Name: KeyJSON, Field: f.json, Select: true},
		NFP{Name: KeyType, Field: f.typ, Select: true})
}

// LocationMapper maps a GeoJSON property to a text column and, when the
// collection has geospatial support, a geometry column usable in filters.
type LocationMapper struct {
	FieldJSON string
	FieldGeom string
	json      int
	geom      int
	bound     bool
}

func (m *LocationMapper) RegisterFields(t *Table, schema SchemaLookup) error {
	idx, err := t.RegisterField(schema, m.FieldJSON)
	if err != nil {
		return err
	}
	m.json, m.geom = idx, -1
	if m.FieldGeom != "" && t.tables != nil && t.tables.geospatial {
		if m.geom, err = t.RegisterField(schema, m.FieldGeom); err != nil {
			return err
		}
	}
	m.bound = true
	return nil
}

func (m *LocationMapper) RegisterMapping(t *Table, p *model.Property) error {
	if !m.bound {
		return notRegistered(t, p)
	}
	dialect := DialectSQLite
	if t.tables != nil {
		dialect = t.tables.dialect
	}
	conv := locationConverter{property: p, json: m.json, geom: m.geom, dialect: dialect}
	if err := t.pfReg.AddEntry(p, conv, NFP{Name: KeyJSON, Field: m.json, Select: true}); err != nil {
		return err
	}
	if m.geom >= 0 {
		return t.pfReg.AddEntryNoSelect(p, KeyGeometry, m.geom)
	}
	return nil
}
