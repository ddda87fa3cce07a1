package persistence

import (
	"fmt"

	"github.com/pbaumard/FROST-Server/internal/model"
)

// Names of the field projections of multi column properties.
const (
	KeyNumber        = "n"
	KeyBoolean       = "b"
	KeyString        = "s"
	KeyJSON          = "j"
	KeyType          = "t"
	KeyTimeStart     = "tStart"
	KeyTimeEnd       = "tEnd"
	KeyGeometry      = "g"
	KeyForeignKey    = "fk"
	keySingleDefault = ""
)

// NFP is a named field projection: one physical field exposed under a
// variant name for selection, sorting and filtering.
type NFP struct {
	Name  string
	Field int
	// Select is false for fields only usable in filters, e.g. geometries
	Select bool
}

// Converter moves one property between entities and physical fields.
type Converter interface {
	// Decode sets the property on e from rec and reports decoded sizes to ds.
	Decode(t *Table, rec Record, e *model.Entity, ds *DataSize) error
	// EncodeInsert writes the property of e into fields.
	EncodeInsert(t *Table, e *model.Entity, fields FieldMap) error
	// EncodeUpdate writes the property of e into fields and records the change.
	EncodeUpdate(t *Table, e *model.Entity, fields FieldMap, msg *EntityChangedMessage) error
}

// Entry is the binding of one property on one table.
type Entry struct {
	Property  *model.Property
	Converter Converter
	NFPs      []NFP
}

// NFP finds the projection named variant. The empty variant names the only
// projection of a single field entry.
func (e *Entry) NFP(variant string) (NFP, bool) {
	for _, nfp := range e.NFPs {
		if nfp.Name == variant {
			return nfp, true
		}
	}
	if variant == keySingleDefault && len(e.NFPs) == 1 {
		return e.NFPs[0], true
	}
	return NFP{}, false
}

// HasVariant reports whether a projection named variant exists.
func (e *Entry) HasVariant(variant string) bool {
	_, ok := e.NFP(variant)
	return ok
}

// SelectFields returns the indices of the selectable fields of the entry.
func (e *Entry) SelectFields() []int {
	var out []int
	for _, nfp := range e.NFPs {
		if nfp.Select {
			out = append(out, nfp.Field)
		}
	}
	return out
}

// PropertyFieldRegistry maps the properties of a table's entity type to
// physical fields and converters.
type PropertyFieldRegistry struct {
	table   *Table
	entries map[*model.Property]*Entry
	order   []*model.Property
}

func newPropertyFieldRegistry(t *Table) *PropertyFieldRegistry {
	return &PropertyFieldRegistry{table: t, entries: make(map[*model.Property]*Entry)}
}

// AddEntry binds p. Binding the same property twice is a configuration error.
func (r *PropertyFieldRegistry) AddEntry(p *model.Property, conv Converter, nfps ...NFP) error {
	if _, ok := r.entries[p]; ok {
		return model.NewConfigError("add entry on table "+r.table.name, p.Name(), "property is already mapped")
	}
	if !r.table.entityType.HasProperty(p) {
		return model.NewConfigError("add entry on table "+r.table.name, p.Name(), "entity type "+r.table.entityType.Name()+" does not declare the property")
	}
	r.entries[p] = &Entry{Property: p, Converter: conv, NFPs: nfps}
	r.order = append(r.order, p)
	return nil
}

// AddEntryID binds the id property to the field at idx.
func (r *PropertyFieldRegistry) AddEntryID(idx int) error {
	if err := r.AddEntry(model.EPID, idConverter{field: idx}, NFP{Field: idx, Select: true}); err != nil {
		return err
	}
	r.table.setIDField(idx)
	return nil
}

// AddEntryString binds a string property to a text column.
func (r *PropertyFieldRegistry) AddEntryString(p *model.Property, idx int) error {
	return r.AddEntry(p, stringConverter{property: p, field: idx}, NFP{Field: idx, Select: true})
}

// AddEntrySimple binds a scalar property to one column, passing values
// through with only driver level normalization.
func (r *PropertyFieldRegistry) AddEntrySimple(p *model.Property, idx int) error {
	return r.AddEntry(p, simpleConverter{property: p, field: idx}, NFP{Field: idx, Select: true})
}

// AddEntryMap binds a JSON valued property to a text column.
func (r *PropertyFieldRegistry) AddEntryMap(p *model.Property, idx int) error {
	return r.AddEntry(p, jsonConverter{property: p, field: idx}, NFP{Name: KeyJSON, Field: idx, Select: true})
}

// AddEntryNoSelect adds a filter only projection to an existing entry.
func (r *PropertyFieldRegistry) AddEntryNoSelect(p *model.Property, name string, idx int) error {
	entry, ok := r.entries[p]
	if !ok {
		return model.NewConfigError("add entry on table "+r.table.name, p.Name(), "no entry to extend with field "+name)
	}
	if entry.HasVariant(name) && name != keySingleDefault {
		return model.NewConfigError("add entry on table "+r.table.name, p.Name(), "field variant '"+name+"' already exists")
	}
	entry.NFPs = append(entry.NFPs, NFP{Name: name, Field: idx, Select: false})
	return nil
}

// AddEntryNavigation binds a to-one navigation property to a foreign key.
func (r *PropertyFieldRegistry) AddEntryNavigation(p *model.Property, idx int) error {
	if p.Kind() != model.KindNavigationEntity {
		return model.NewConfigError("add entry on table "+r.table.name, p.Name(), "only to-one navigation properties are stored in a column")
	}
	return r.AddEntry(p, navigationConverter{property: p, field: idx}, NFP{Name: KeyForeignKey, Field: idx, Select: true})
}

// Entry returns the binding of p.
func (r *PropertyFieldRegistry) Entry(p *model.Property) (*Entry, bool) {
	e, ok := r.entries[p]
	return e, ok
}

// Properties returns the bound properties in binding order.
func (r *PropertyFieldRegistry) Properties() []*model.Property {
	return append([]*model.Property(nil), r.order...)
}

// SelectFields returns the field indices needed to decode props. A nil props
// selects every bound property.
func (r *PropertyFieldRegistry) SelectFields(props []*model.Property) ([]int, error) {
	if props == nil {
		props = r.order
	}
	seen := make(map[int]bool)
	var out []int
	for _, p := range props {
		entry, ok := r.entries[p]
		if !ok {
			return nil, fmt.Errorf("property %s is not mapped on table %s", p, r.table.name)
		}
		for _, idx := range entry.SelectFields() {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	return out, nil
}

// Decode sets props on e from rec. A nil props decodes every bound property.
func (r *PropertyFieldRegistry) Decode(rec Record, e *model.Entity, props []*model.Property, ds *DataSize) error {
	if props == nil {
		props = r.order
	}
	for _, p := range props {
		entry, ok := r.entries[p]
		if !ok {
			return fmt.Errorf("property %s is not mapped on table %s", p, r.table.name)
		}
		if err := entry.Converter.Decode(r.table, rec, e, ds); err != nil {
			return fmt.Errorf("failed to decode %s: %w", p, err)
		}
	}
	return nil
}

// EncodeInsert returns the columns for inserting e. Only set properties are
// written.
func (r *PropertyFieldRegistry) EncodeInsert(e *model.Entity) (FieldMap, error) {
	fields := FieldMap{}
	for _, p := range r.order {
		if !e.IsSetProperty(p) {
			continue
		}
		if err := r.entries[p].Converter.EncodeInsert(r.table, e, fields); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", p, err)
		}
	}
	return fields, nil
}

// EncodeUpdate returns the columns for updating e and records every written
// property in msg. The id is never updated.
func (r *PropertyFieldRegistry) EncodeUpdate(e *model.Entity, msg *EntityChangedMessage) (FieldMap, error) {
	fields := FieldMap{}
	for _, p := range r.order {
		if p.IsID() || !e.IsSetProperty(p) {
			continue
		}
		if err := r.entries[p].Converter.EncodeUpdate(r.table, e, fields, msg); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", p, err)
		}
	}
	return fields, nil
}
