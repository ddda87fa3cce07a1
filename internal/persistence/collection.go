package persistence

import (
	"log/slog"

	"github.com/pbaumard/FROST-Server/internal/model"
)

// TableCollection holds the tables of all entity types and runs the two
// phase field registration. It is read-only after Init.
type TableCollection struct {
	schema      SchemaLookup
	dialect     Dialect
	idKind      model.IDKind
	geospatial  bool
	tables      map[*model.EntityType]*Table
	byName      map[string]*Table
	order       []*Table
	initialized bool
	logger      *slog.Logger
}

// NewTableCollection creates an empty collection.
func NewTableCollection(schema SchemaLookup, dialect Dialect, idKind model.IDKind) *TableCollection {
	return &TableCollection{
		schema:  schema,
		dialect: dialect,
		idKind:  idKind,
		tables:  make(map[*model.EntityType]*Table),
		byName:  make(map[string]*Table),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger used by the collection and its tables.
func (c *TableCollection) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
	for _, t := range c.order {
		t.logger = logger
	}
}

// SetGeospatial enables the geometry columns. It must be called before Init.
func (c *TableCollection) SetGeospatial(enabled bool) error {
	if c.initialized {
		return model.NewConfigError("set geospatial", "tables", "tables are already initialized")
	}
	c.geospatial = enabled
	return nil
}

// Geospatial reports whether geometry columns are mapped.
func (c *TableCollection) Geospatial() bool { return c.geospatial }

// Dialect returns the SQL dialect of the database.
func (c *TableCollection) Dialect() Dialect { return c.dialect }

// IDKind returns the id representation shared by all tables.
func (c *TableCollection) IDKind() model.IDKind { return c.idKind }

// RegisterTable adds t. Each entity type and each table name can only be
// registered once.
func (c *TableCollection) RegisterTable(t *Table) error {
	if c.initialized {
		return model.NewConfigError("register table", t.name, "tables are already initialized")
	}
	if existing, ok := c.tables[t.entityType]; ok {
		return model.NewConfigError("register table", t.name, "entity type "+t.entityType.Name()+" is already stored in "+existing.name)
	}
	if _, ok := c.byName[t.name]; ok {
		return model.NewConfigError("register table", t.name, "table is already registered")
	}
	t.tables = c
	t.logger = c.logger
	c.tables[t.entityType] = t
	c.byName[t.name] = t
	c.order = append(c.order, t)
	return nil
}

// TableFor returns the table of an entity type.
func (c *TableCollection) TableFor(et *model.EntityType) (*Table, bool) {
	t, ok := c.tables[et]
	return t, ok
}

// TableForName returns a table by its physical name.
func (c *TableCollection) TableForName(name string) (*Table, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Tables returns the tables in registration order.
func (c *TableCollection) Tables() []*Table {
	return append([]*Table(nil), c.order...)
}

// IsInitialized reports whether Init completed.
func (c *TableCollection) IsInitialized() bool { return c.initialized }

// Init resolves the fields of every mapper and relation, then registers all
// property mappings.
func (c *TableCollection) Init() error {
	if c.initialized {
		return nil
	}
	for _, t := range c.order {
		for _, pm := range t.mappers {
			if err := pm.mapper.RegisterFields(t, c.schema); err != nil {
				return err
			}
		}
		for _, r := range t.relList {
			if err := r.registerFields(c.schema); err != nil {
				return err
			}
		}
	}
	for _, t := range c.order {
		for _, pm := range t.mappers {
			if err := pm.mapper.RegisterMapping(t, pm.property); err != nil {
				return err
			}
		}
		if _, ok := t.IDField(); !ok {
			return model.NewConfigError("init table", t.name, "no id mapping")
		}
		for _, p := range t.entityType.EntityProperties() {
			if _, ok := t.pfReg.Entry(p); !ok && p != model.EPSelfLink {
				c.logger.Warn("Property has no field mapping", "entityType", t.entityType.Name(), "property", p.Name())
			}
		}
	}
	c.initialized = true
	c.logger.Info("Initialized tables", "count", len(c.order))
	return nil
}
