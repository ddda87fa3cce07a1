// Package modeldef loads entity types, tables and relations from model
// definition documents, so models can be added without code. Documents are
// YAML or JSON and are validated against an embedded JSON schema before use.
package modeldef

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
)

// Name is the name of the plugin loading the files of Settings.ModelPaths.
const Name = "modelLoader"

type relation struct {
	def       RelationDef
	source    *model.EntityType
	target    *model.EntityType
	sourceNav *model.Property
	targetNav *model.Property
}

// Plugin registers the content of model definition documents.
type Plugin struct {
	name           string
	read           func(string) ([]byte, error)
	paths          []string
	fromSettings   bool
	enabledDefault bool

	defs        []*Definition
	conformance []string
	specs       []*persistence.TableSpec
	specByType  map[*model.EntityType]*persistence.TableSpec
	linkDefs    []persistence.TableDef
	relations   []relation
	logger      *slog.Logger
}

var (
	_ plugin.Plugin              = (*Plugin)(nil)
	_ plugin.SchemaProvider      = (*Plugin)(nil)
	_ plugin.ConformanceProvider = (*Plugin)(nil)
)

// New creates the plugin loading the files listed in Settings.ModelPaths. It
// is enabled when paths are configured.
func New() *Plugin {
	return &Plugin{
		name:         Name,
		read:         os.ReadFile,
		fromSettings: true,
		logger:       slog.Default(),
	}
}

// NewFS creates a plugin called name loading paths from fsys. Models shipped
// with the server use it with an embedded file system.
func NewFS(name string, fsys fs.FS, enabledDefault bool, paths ...string) *Plugin {
	return &Plugin{
		name:           name,
		read:           func(p string) ([]byte, error) { return fs.ReadFile(fsys, p) },
		paths:          paths,
		enabledDefault: enabledDefault,
		logger:         slog.Default(),
	}
}

func (p *Plugin) Name() string { return p.name }

// Definitions returns the loaded documents.
func (p *Plugin) Definitions() []*Definition { return p.defs }

// Init loads and validates the documents of an enabled plugin.
func (p *Plugin) Init(s plugin.Settings) (bool, error) {
	if s.Logger != nil {
		p.logger = s.Logger
	}
	paths, def := p.paths, p.enabledDefault
	if p.fromSettings {
		paths = s.ModelPaths
		def = len(paths) > 0
	}
	if !s.IsEnabled(p.name, def) {
		return false, nil
	}
	p.defs = p.defs[:0]
	for _, path := range paths {
		data, err := p.read(path)
		if err != nil {
			return false, fmt.Errorf("failed to read model definition %s: %w", path, err)
		}
		d, err := Parse(path, data)
		if err != nil {
			return false, err
		}
		p.logger.Info("Loaded model definition", "plugin", p.name, "path", path, "entityTypes", len(d.EntityTypes))
		p.defs = append(p.defs, d)
	}
	return true, nil
}

func (p *Plugin) Conformance() []string { return p.conformance }

// RegisterEntityTypes registers the types of all documents, then resolves
// the relations, so relations may refer to types of any loaded document.
func (p *Plugin) RegisterEntityTypes(reg *model.Registry) error {
	p.specs = nil
	p.linkDefs = nil
	p.relations = nil
	p.conformance = nil
	p.specByType = make(map[*model.EntityType]*persistence.TableSpec)
	for _, d := range p.defs {
		for _, etd := range d.EntityTypes {
			if err := p.registerType(reg, etd); err != nil {
				return err
			}
		}
		p.conformance = append(p.conformance, d.Conformance...)
	}
	for _, d := range p.defs {
		for _, rd := range d.Relations {
			if err := p.resolveRelation(reg, rd); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plugin) registerType(reg *model.Registry, d EntityTypeDef) error {
	var et *model.EntityType
	if d.Extends {
		existing, ok := reg.EntityTypeForName(d.Name)
		if !ok {
			return model.NewConfigError("extend entity type", d.Name, "entity type is not registered")
		}
		if len(d.Properties) > 0 {
			return model.NewConfigError("extend entity type", d.Name, "extensions can only add navigation properties")
		}
		et = existing
	} else {
		et = model.NewEntityType(d.Name, d.Plural)
		if _, err := reg.RegisterEntityType(et); err != nil {
			return err
		}
		if err := et.RegisterProperty(model.EPID, false); err != nil {
			return err
		}
		if err := et.RegisterProperty(model.EPSelfLink, false); err != nil {
			return err
		}
		table := d.Table
		if table == "" {
			table = toSnakeCase(et.PluralName())
		}
		spec := persistence.NewTableSpec(table, et).ID("ID")
		for _, pd := range d.Properties {
			if err := p.registerProperty(reg, et, spec, pd); err != nil {
				return err
			}
		}
		p.specs = append(p.specs, spec)
		p.specByType[et] = spec
	}

	for _, nd := range d.Navigation {
		np := model.NewNavigationEntity(nd.Name)
		if nd.ToMany {
			np = model.NewNavigationEntitySet(nd.Name)
		}
		if nd.Target != "" {
			np.WithTarget(nd.Target)
		}
		registered, err := reg.RegisterNavigationProperty(np)
		if err != nil {
			return err
		}
		if err := et.RegisterProperty(registered, nd.Required); err != nil {
			return err
		}
	}
	p.logger.Debug("Registered model entity type", "plugin", p.name, "entityType", d.Name, "extends", d.Extends)
	return nil
}

func (p *Plugin) registerProperty(reg *model.Registry, et *model.EntityType, spec *persistence.TableSpec, d PropertyDef) error {
	typ, ok := propertyTypes[d.Type]
	if !ok {
		return model.NewConfigError("register property on "+et.Name(), d.Name, "unknown type "+d.Type)
	}
	prop, err := reg.RegisterEntityProperty(model.NewEntityProperty(d.Name, typ))
	if err != nil {
		return err
	}
	if err := et.RegisterProperty(prop, d.Required); err != nil {
		return err
	}

	mapper := d.Mapper
	if mapper == "" {
		mapper = defaultMapper(typ)
	}
	cols := d.Columns
	if len(cols) == 0 {
		cols = defaultColumns(mapper, d.Name)
	}
	lo, hi := columnCount(mapper)
	if len(cols) < lo || len(cols) > hi {
		return model.NewConfigError("register property on "+et.Name(), d.Name,
			fmt.Sprintf("mapper %s needs %d to %d columns, got %d", mapper, lo, hi, len(cols)))
	}

	switch mapper {
	case "text":
		spec.Text(prop, cols[0])
	case "simple":
		spec.Simple(prop, cols[0], simpleKind(typ))
	case "json":
		spec.JSON(prop, cols[0])
	case "timeInstant":
		spec.TimeInstant(prop, cols[0])
	case "timeInterval":
		spec.TimeInterval(prop, cols[0], cols[1])
	case "timeValue":
		spec.TimeValue(prop, cols[0], cols[1])
	case "result":
		spec.Result(prop, cols[0], cols[1], cols[2], cols[3], cols[4])
	case "location":
		geom := ""
		if len(cols) == 2 {
			geom = cols[1]
		}
		spec.Location(prop, cols[0], geom)
	default:
		return model.NewConfigError("register property on "+et.Name(), d.Name, "unknown mapper "+mapper)
	}
	return nil
}

func simpleKind(typ *model.PropertyType) persistence.ColumnKind {
	switch typ {
	case model.TypeBoolean:
		return persistence.ColumnBoolean
	case model.TypeInt64:
		return persistence.ColumnBigInt
	case model.TypeDouble, model.TypeDecimal:
		return persistence.ColumnDouble
	case model.TypeDateTime:
		return persistence.ColumnTime
	}
	return persistence.ColumnText
}

func (p *Plugin) resolveRelation(reg *model.Registry, d RelationDef) error {
	op := "resolve relation " + d.Source + " to " + d.Target
	r := relation{def: d}
	var ok bool
	if r.source, ok = reg.EntityTypeForName(d.Source); !ok {
		return model.NewConfigError(op, d.Source, "entity type is not registered")
	}
	if r.target, ok = reg.EntityTypeForName(d.Target); !ok {
		return model.NewConfigError(op, d.Target, "entity type is not registered")
	}
	if d.SourceNavigation != "" {
		if r.sourceNav = r.source.FindNavigationProperty(d.SourceNavigation); r.sourceNav == nil {
			return model.NewConfigError(op, d.SourceNavigation, "navigation property is not declared on "+r.source.Name())
		}
	}
	if d.TargetNavigation != "" {
		if r.targetNav = r.target.FindNavigationProperty(d.TargetNavigation); r.targetNav == nil {
			return model.NewConfigError(op, d.TargetNavigation, "navigation property is not declared on "+r.target.Name())
		}
	}

	switch d.Type {
	case RelationOneToMany:
		if r.sourceNav != nil && r.sourceNav.Kind() != model.KindNavigationEntitySet {
			return model.NewConfigError(op, d.SourceNavigation, "the one side needs a to-many navigation property")
		}
		if r.targetNav == nil || r.targetNav.Kind() != model.KindNavigationEntity {
			return model.NewConfigError(op, d.TargetNavigation, "the many side needs a to-one navigation property")
		}
		spec, ok := p.specByType[r.target]
		if !ok {
			return model.NewConfigError(op, d.ForeignKey, "the foreign key must be stored in a table of this model")
		}
		spec.ToOne(r.targetNav, d.ForeignKey)
	case RelationManyToMany:
		for _, np := range []*model.Property{r.sourceNav, r.targetNav} {
			if np != nil && np.Kind() != model.KindNavigationEntitySet {
				return model.NewConfigError(op, np.Name(), "many-to-many relations need to-many navigation properties")
			}
		}
		p.linkDefs = append(p.linkDefs, persistence.LinkTableDef(d.LinkTable, d.SourceColumn, d.TargetColumn))
	default:
		return model.NewConfigError(op, d.Type, "unknown relation type")
	}
	p.relations = append(p.relations, r)
	return nil
}

// TableDefs returns the tables of the registered types and the link tables.
func (p *Plugin) TableDefs() []persistence.TableDef {
	defs := make([]persistence.TableDef, 0, len(p.specs)+len(p.linkDefs))
	for _, s := range p.specs {
		defs = append(defs, s.Def())
	}
	return append(defs, p.linkDefs...)
}

// LinkEntityTypes registers the tables and relations. Extended types must
// have their tables registered by an earlier plugin.
func (p *Plugin) LinkEntityTypes(tables *persistence.TableCollection) error {
	for _, s := range p.specs {
		if _, err := s.Register(tables); err != nil {
			return err
		}
	}
	for _, r := range p.relations {
		source, ok := tables.TableFor(r.source)
		if !ok {
			return model.NewConfigError("link relation", r.source.Name(), "no table registered")
		}
		target, ok := tables.TableFor(r.target)
		if !ok {
			return model.NewConfigError("link relation", r.target.Name(), "no table registered")
		}
		var err error
		switch r.def.Type {
		case RelationOneToMany:
			err = persistence.LinkOneToMany(source, target, r.sourceNav, r.targetNav, "ID", r.def.ForeignKey)
		case RelationManyToMany:
			err = persistence.LinkManyToMany(source, target, r.sourceNav, r.targetNav, "ID", "ID",
				r.def.LinkTable, r.def.SourceColumn, r.def.TargetColumn)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
