package persistence

import (
	"github.com/pbaumard/FROST-Server/internal/model"
)

// Relation is the physical link behind a navigation property.
type Relation interface {
	// Name is the navigation property the relation serves
	Name() string
	Source() *Table
	Target() *Table
	// IsToMany reports whether one source row may join several target rows
	IsToMany() bool
	// Joins returns the JOIN clauses leading from the source alias from to the
	// target alias to.
	Joins(d Dialect, from, to string) []string
	registerFields(schema SchemaLookup) error
}

// RelationOneToMany joins two tables on a column of each, e.g. the
// Datastreams of a Thing through DATASTREAMS.THING_ID.
type RelationOneToMany struct {
	name        string
	source      *Table
	target      *Table
	sourceField string
	targetField string
	toMany      bool
}

// NewRelationOneToMany creates a relation from source.sourceField to
// target.targetField. toMany is true when following it from source can yield
// several target rows.
func NewRelationOneToMany(name string, source, target *Table, sourceField, targetField string, toMany bool) *RelationOneToMany {
	return &RelationOneToMany{
		name:        name,
		source:      source,
		target:      target,
		sourceField: sourceField,
		targetField: targetField,
		toMany:      toMany,
	}
}

func (r *RelationOneToMany) Name() string   { return r.name }
func (r *RelationOneToMany) Source() *Table { return r.source }
func (r *RelationOneToMany) Target() *Table { return r.target }
func (r *RelationOneToMany) IsToMany() bool { return r.toMany }

func (r *RelationOneToMany) Joins(d Dialect, from, to string) []string {
	return []string{
		"LEFT JOIN " + d.Quote(r.target.name) + " AS " + d.Quote(to) +
			" ON " + d.QuoteColumn(to, r.targetField) + " = " + d.QuoteColumn(from, r.sourceField),
	}
}

func (r *RelationOneToMany) registerFields(schema SchemaLookup) error {
	if _, err := r.source.RegisterField(schema, r.sourceField); err != nil {
		return err
	}
	_, err := r.target.RegisterField(schema, r.targetField)
	return err
}

// RelationManyToMany joins two tables through a link table, e.g. Things and
// Locations through THINGS_LOCATIONS.
type RelationManyToMany struct {
	name            string
	source          *Table
	target          *Table
	linkTable       string
	sourceField     string
	sourceLinkField string
	targetLinkField string
	targetField     string
}

// NewRelationManyToMany creates a relation joining source.sourceField to
// linkTable.sourceLinkField and linkTable.targetLinkField to
// target.targetField.
func NewRelationManyToMany(name string, source *Table, sourceField string, linkTable, sourceLinkField, targetLinkField string, target *Table, targetField string) *RelationManyToMany {
	return &RelationManyToMany{
		name:            name,
		source:          source,
		target:          target,
		linkTable:       linkTable,
		sourceField:     sourceField,
		sourceLinkField: sourceLinkField,
		targetLinkField: targetLinkField,
		targetField:     targetField,
	}
}

func (r *RelationManyToMany) Name() string      { return r.name }
func (r *RelationManyToMany) Source() *Table    { return r.source }
func (r *RelationManyToMany) Target() *Table    { return r.target }
func (r *RelationManyToMany) IsToMany() bool    { return true }
func (r *RelationManyToMany) LinkTable() string { return r.linkTable }

func (r *RelationManyToMany) Joins(d Dialect, from, to string) []string {
	link := to + "_l"
	return []string{
		"LEFT JOIN " + d.Quote(r.linkTable) + " AS " + d.Quote(link) +
			" ON " + d.QuoteColumn(link, r.sourceLinkField) + " = " + d.QuoteColumn(from, r.sourceField),
		"LEFT JOIN " + d.Quote(r.target.name) + " AS " + d.Quote(to) +
			" ON " + d.QuoteColumn(to, r.targetField) + " = " + d.QuoteColumn(link, r.targetLinkField),
	}
}

func (r *RelationManyToMany) registerFields(schema SchemaLookup) error {
	if _, err := r.source.RegisterField(schema, r.sourceField); err != nil {
		return err
	}
	if _, err := r.target.RegisterField(schema, r.targetField); err != nil {
		return err
	}
	for _, name := range []string{r.sourceLinkField, r.targetLinkField} {
		_, found, err := schema.Column(r.linkTable, name)
		if err != nil {
			return model.NewConfigError("register relation "+r.name, name, "schema lookup on table "+r.linkTable+" failed: "+err.Error())
		}
		if !found {
			return model.NewConfigError("register relation "+r.name, name, "Could not find field "+name+" on table "+r.linkTable)
		}
	}
	return nil
}

// LinkOneToMany registers both directions between one and many, where many
// holds the foreign key fk to one.oneID. Either navigation property may be
// nil when only one direction is navigable.
func LinkOneToMany(one, many *Table, toMany, toOne *model.Property, oneID, fk string) error {
	if toMany != nil {
		if err := one.RegisterRelation(NewRelationOneToMany(toMany.Name(), one, many, oneID, fk, true)); err != nil {
			return err
		}
	}
	if toOne != nil {
		if err := many.RegisterRelation(NewRelationOneToMany(toOne.Name(), many, one, fk, oneID, false)); err != nil {
			return err
		}
	}
	return nil
}

// LinkManyToMany registers both directions of a link table relation.
func LinkManyToMany(a, b *Table, aToB, bToA *model.Property, aID, bID, linkTable, linkA, linkB string) error {
	if aToB != nil {
		if err := a.RegisterRelation(NewRelationManyToMany(aToB.Name(), a, aID, linkTable, linkA, linkB, b, bID)); err != nil {
			return err
		}
	}
	if bToA != nil {
		if err := b.RegisterRelation(NewRelationManyToMany(bToA.Name(), b, bID, linkTable, linkB, linkA, a, aID)); err != nil {
			return err
		}
	}
	return nil
}
