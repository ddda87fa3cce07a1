package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

// fragment is a piece of SQL with its arguments in placeholder order.
type fragment struct {
	sql  string
	args []any
}

func frag(sql string, args ...any) fragment {
	return fragment{sql: sql, args: args}
}

// cat concatenates strings and fragments, keeping argument order.
func cat(parts ...any) fragment {
	var sb strings.Builder
	var args []any
	for _, part := range parts {
		switch p := part.(type) {
		case string:
			sb.WriteString(p)
		case fragment:
			sb.WriteString(p.sql)
			args = append(args, p.args...)
		default:
			panic(fmt.Sprintf("cat: unexpected part %T", part))
		}
	}
	return fragment{sql: sb.String(), args: args}
}

// pathRef is a path resolved to the physical binding of its last property.
type pathRef struct {
	path     expression.Path
	table    *persistence.Table
	alias    string
	property *model.Property
	entry    *persistence.Entry
	members  []string
	typ      expression.Type
}

// pathContext resolves paths relative to one root table and collects the
// joins they need. Each distinct navigation prefix is joined once.
type pathContext struct {
	compiler  *Compiler
	dialect   persistence.Dialect
	root      *persistence.Table
	rootAlias string
	aliases   map[string]string
	joins     []string
	toMany    bool
	next      int
}

func newPathContext(c *Compiler, root *persistence.Table) *pathContext {
	return &pathContext{
		compiler:  c,
		dialect:   c.tables.Dialect(),
		root:      root,
		rootAlias: rootAlias,
		aliases:   make(map[string]string),
	}
}

func (pc *pathContext) join(key string, rel persistence.Relation, from string) string {
	if alias, ok := pc.aliases[key]; ok {
		return alias
	}
	pc.next++
	alias := fmt.Sprintf("e%d", pc.next)
	pc.aliases[key] = alias
	pc.joins = append(pc.joins, rel.Joins(pc.dialect, from, alias)...)
	if rel.IsToMany() {
		pc.toMany = true
	}
	return alias
}

// resolve walks the segments of path from the root table. Navigation
// properties add joins; the first entity property ends the walk and any
// remaining segments address members inside its value.
func (pc *pathContext) resolve(path expression.Path) (*pathRef, error) {
	segments := path.Segments
	if limit := pc.compiler.maxPathLength; len(segments) > limit {
		return nil, newCompileError(path.URL(), "path has %d segments, at most %d are allowed", len(segments), limit)
	}
	table, alias, key := pc.root, pc.rootAlias, ""
	for i, segment := range segments {
		et := table.EntityType()
		p, ok := et.Property(segment)
		if !ok {
			return nil, &PropertyNotFoundError{Segment: segment, EntityType: et.Name(), Path: path.URL()}
		}
		entry, mapped := table.PropertyFieldRegistry().Entry(p)
		if p.IsNavigation() {
			if i == len(segments)-1 {
				if !mapped {
					return nil, newCompileError(path.URL(), "navigation property %s can not be used as a value", segment)
				}
				return &pathRef{path: path, table: table, alias: alias, property: p, entry: entry, typ: pc.idType()}, nil
			}
			rel, ok := table.Relation(p.Name())
			if !ok {
				return nil, newCompileError(path.URL(), "navigation property %s of %s is not backed by a relation", segment, et.Name())
			}
			key += "/" + segment
			alias = pc.join(key, rel, alias)
			table = rel.Target()
			continue
		}
		if !mapped {
			return nil, newCompileError(path.URL(), "property %s of %s is not stored", segment, et.Name())
		}
		members := segments[i+1:]
		typ, err := pc.valueType(et, p, members, path)
		if err != nil {
			return nil, err
		}
		return &pathRef{path: path, table: table, alias: alias, property: p, entry: entry, members: members, typ: typ}, nil
	}
	return nil, newCompileError(path.URL(), "empty path")
}

func (pc *pathContext) idType() expression.Type {
	if pc.compiler.tables.IDKind() == model.IDKindLong {
		return expression.TypeInteger
	}
	return expression.TypeString
}

// valueType derives the expression type of p, or of the member of p named
// by members.
func (pc *pathContext) valueType(et *model.EntityType, p *model.Property, members []string, path expression.Path) (expression.Type, error) {
	pt := p.Type()
	if len(members) == 0 {
		return pc.propertyType(pt), nil
	}
	switch {
	case pt == model.TypeAny || pt == model.TypeObject:
		return expression.TypeAny, nil
	case pt.Kind() == model.TypeKindComplex:
		if len(members) == 1 && slices.Contains(pt.Fields(), members[0]) {
			return expression.TypeString, nil
		}
	}
	return expression.TypeAny, &PropertyNotFoundError{Segment: members[0], EntityType: et.Name(), Path: path.URL()}
}

func (pc *pathContext) propertyType(pt *model.PropertyType) expression.Type {
	switch pt {
	case model.TypeString:
		return expression.TypeString
	case model.TypeBoolean:
		return expression.TypeBoolean
	case model.TypeInt64:
		return expression.TypeInteger
	case model.TypeDouble:
		return expression.TypeDouble
	case model.TypeDecimal:
		return expression.TypeDecimal
	case model.TypeDateTime, model.TypeTimeInstant:
		return expression.TypeDateTime
	case model.TypeTimeInterval:
		return expression.TypeInterval
	case model.TypeTimeValue:
		return expression.TypeTimeValue
	case model.TypeGeometry:
		return expression.TypeGeometry
	case model.TypeID:
		return pc.idType()
	}
	return expression.TypeAny
}

// value is a rendered operand. Time values that span two columns carry the
// interval end in end; for everything else end equals start.
type value struct {
	start    fragment
	end      fragment
	interval bool
}

func single(f fragment) value {
	return value{start: f, end: f}
}

// pathValue renders ref as the field projection matching the parameter type
// it is passed as. isNull selects the projection used for null checks.
func (pc *pathContext) pathValue(ref *pathRef, param expression.Type, isNull bool) (value, error) {
	entry := ref.entry
	column := func(nfp persistence.NFP) fragment {
		return frag(pc.dialect.QuoteColumn(ref.alias, ref.table.Field(nfp.Field).Name))
	}

	if len(ref.members) > 0 {
		nfp, ok := entry.NFP(persistence.KeyJSON)
		if !ok {
			nfp, ok = entry.NFP("")
		}
		if !ok {
			return value{}, &NoSuchFieldVariantError{Property: ref.property.Name(), Variant: persistence.KeyJSON}
		}
		sql, args := pc.dialect.JSONPath(column(nfp).sql, ref.members)
		return single(pc.castJSON(frag(sql, args...), param)), nil
	}

	if start, ok := entry.NFP(persistence.KeyTimeStart); ok {
		end, ok := entry.NFP(persistence.KeyTimeEnd)
		if !ok {
			return value{}, &NoSuchFieldVariantError{Property: ref.property.Name(), Variant: persistence.KeyTimeEnd}
		}
		return value{start: column(start), end: column(end), interval: true}, nil
	}

	variant := variantFor(entry, param, isNull)
	nfp, ok := entry.NFP(variant)
	if !ok {
		return value{}, &NoSuchFieldVariantError{Property: ref.property.Name(), Variant: variant}
	}
	return single(column(nfp)), nil
}

// variantFor picks the projection of a multi field entry for a parameter
// type. Single field entries use their only projection.
func variantFor(entry *persistence.Entry, param expression.Type, isNull bool) string {
	if len(entry.NFPs) == 1 {
		return entry.NFPs[0].Name
	}
	if isNull && entry.HasVariant(persistence.KeyType) {
		return persistence.KeyType
	}
	switch param {
	case expression.TypeInteger, expression.TypeDouble, expression.TypeDecimal, expression.TypeNumber, expression.TypeDuration:
		return persistence.KeyNumber
	case expression.TypeBoolean:
		return persistence.KeyBoolean
	case expression.TypeGeometry:
		return persistence.KeyGeometry
	case expression.TypeDateTime, expression.TypeInterval, expression.TypeTimeValue:
		return persistence.KeyTimeStart
	}
	if entry.HasVariant(persistence.KeyString) {
		return persistence.KeyString
	}
	return persistence.KeyJSON
}

// castJSON converts extracted JSON text for typed comparison. SQLite
// json_extract already returns typed values.
func (pc *pathContext) castJSON(f fragment, param expression.Type) fragment {
	if pc.dialect != persistence.DialectPostgres {
		return f
	}
	switch {
	case param.IsNumeric():
		return cat("CAST(", f, " AS DOUBLE PRECISION)")
	case param == expression.TypeBoolean:
		return cat("CAST(", f, " AS BOOLEAN)")
	case param == expression.TypeDateTime:
		return cat("CAST(", f, " AS TIMESTAMPTZ)")
	}
	return f
}

// orderValues renders ref as the list of columns it sorts by.
func (pc *pathContext) orderValues(ref *pathRef) ([]fragment, error) {
	if len(ref.members) > 0 {
		v, err := pc.pathValue(ref, expression.TypeAny, false)
		if err != nil {
			return nil, err
		}
		return []fragment{v.start}, nil
	}
	entry := ref.entry
	var variants []string
	switch {
	case entry.HasVariant(persistence.KeyTimeStart):
		variants = []string{persistence.KeyTimeStart, persistence.KeyTimeEnd}
	case entry.HasVariant(persistence.KeyType):
		variants = []string{persistence.KeyType, persistence.KeyNumber, persistence.KeyString}
	default:
		for _, nfp := range entry.NFPs {
			if nfp.Select {
				return []fragment{frag(pc.dialect.QuoteColumn(ref.alias, ref.table.Field(nfp.Field).Name))}, nil
			}
		}
		return nil, newCompileError(ref.path.URL(), "property %s can not be sorted", ref.property.Name())
	}
	var out []fragment
	for _, variant := range variants {
		nfp, ok := entry.NFP(variant)
		if !ok {
			return nil, &NoSuchFieldVariantError{Property: ref.property.Name(), Variant: variant}
		}
		out = append(out, frag(pc.dialect.QuoteColumn(ref.alias, ref.table.Field(nfp.Field).Name)))
	}
	return out, nil
}
