// Package frost is the core of an OGC SensorThings API server. A Service
// owns the model registry, the table mappings built by plugins and the
// query compiler translating $filter, $orderby and $select into SQL.
//
// Typical use:
//
//	db, err := frost.OpenDatabase(cfg)
//	service, err := frost.NewServiceWithConfig(db, cfg)
//	err = service.Initialize(ctx)
//	things, _ := service.EntityType("Thing")
//	set, err := service.Query(ctx, things, frost.Query{Filter: filter})
package frost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/observability"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
	"github.com/pbaumard/FROST-Server/internal/plugin/actuation"
	"github.com/pbaumard/FROST-Server/internal/plugin/coremodel"
	"github.com/pbaumard/FROST-Server/internal/plugin/modeldef"
	"github.com/pbaumard/FROST-Server/internal/plugin/oms"
	"github.com/pbaumard/FROST-Server/internal/query"
)

type (
	// Plugin contributes entity types, tables and relations.
	Plugin = plugin.Plugin
	// Query holds the parsed options of a collection request.
	Query = query.Query
	// OrderBy is one $orderby term.
	OrderBy = query.OrderBy
	// CompiledQuery is a query translated to SQL.
	CompiledQuery = query.CompiledQuery
	// EntityType describes a kind of entity.
	EntityType = model.EntityType
	// Entity is one entity instance.
	Entity = model.Entity
	// EntitySet is a page of entities of one type.
	EntitySet = model.EntitySet
	// ChangeMessage lists the properties changed by a write.
	ChangeMessage = persistence.EntityChangedMessage
)

var (
	// ErrBadRequest is wrapped by errors caused by the content of a query or
	// an entity.
	ErrBadRequest = query.ErrBadRequest
	// ErrNotFound is returned when an update or delete matches no row.
	ErrNotFound = errors.New("entity not found")
	// ErrNotInitialized is returned by operations called before Initialize.
	ErrNotInitialized = errors.New("service is not initialized")
)

// ChangeHook is called inside the transaction of every insert, update and
// delete. Returning an error rolls the write back. Hooks can take part in
// the transaction through TransactionFromContext.
type ChangeHook func(ctx context.Context, msg *ChangeMessage) error

// Service holds the model and its database mapping.
type Service struct {
	// db is the database handle used for schema lookup and writes
	db *gorm.DB
	// config is the normalized configuration
	config Config
	// dialect and idKind are parsed from config
	dialect persistence.Dialect
	idKind  model.IDKind
	// registry holds entity types and properties registered by plugins
	registry *model.Registry
	// runner drives the plugins through their lifecycle
	runner *plugin.Runner
	// tables maps entity types to tables; nil before Initialize
	tables *persistence.TableCollection
	// compiler translates queries; nil before Initialize
	compiler *query.Compiler
	// hooks are called for every write
	hooks []ChangeHook
	// logger is used for structured logging throughout the service
	logger *slog.Logger
	// observability holds the observability configuration (tracing, metrics)
	observability *observability.Config
	// geospatialEnabled is accessed atomically, 1 when enabled
	geospatialEnabled int32

	mu          sync.RWMutex
	initialized bool
}

// NewService creates a service with the default configuration.
func NewService(db *gorm.DB) (*Service, error) {
	return NewServiceWithConfig(db, Config{})
}

// NewServiceWithConfig creates a service. The core model, actuation, the
// model definition loader and the OMS model are registered as plugins; the
// configuration decides which of them are enabled.
func NewServiceWithConfig(db *gorm.DB, cfg Config) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("frost: database handle is required")
	}
	r, err := cfg.normalize(db.Name())
	if err != nil {
		return nil, err
	}

	s := &Service{
		db:       db,
		config:   cfg,
		dialect:  r.dialect,
		idKind:   r.idKind,
		registry: model.NewRegistry(),
		runner:   plugin.NewRunner(),
		logger:   slog.Default(),
	}
	for _, p := range []Plugin{coremodel.New(), actuation.New(), modeldef.New(), oms.New()} {
		if err := s.runner.Register(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetLogger sets a custom logger for the service.
// If logger is nil, slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
	s.registry.SetLogger(logger)
	s.runner.SetLogger(logger)
	if s.tables != nil {
		s.tables.SetLogger(logger)
	}
	if s.compiler != nil {
		s.compiler.SetLogger(logger)
	}
	return nil
}

// Config returns the normalized configuration.
func (s *Service) Config() Config { return s.config }

// DB returns the database handle.
func (s *Service) DB() *gorm.DB { return s.db }

// RegisterPlugin adds a plugin. Plugins run in registration order, after
// the built-in ones, and must be registered before Initialize.
func (s *Service) RegisterPlugin(p Plugin) error {
	if s.IsInitialized() {
		return fmt.Errorf("plugin %s registered after Initialize", p.Name())
	}
	return s.runner.Register(p)
}

// OnChange adds a hook called for every write.
func (s *Service) OnChange(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// IsInitialized reports whether Initialize completed.
func (s *Service) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Initialize runs the plugins: it registers their entity types, freezes
// the model, optionally creates missing tables, maps the tables and builds
// the compiler. The service is read-only afterwards.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return fmt.Errorf("service is already initialized")
	}

	settings := s.config.pluginSettings(resolved{dialect: s.dialect, idKind: s.idKind}, s.IsGeospatialEnabled())
	settings.Logger = s.logger
	if err := s.runner.Init(settings); err != nil {
		return err
	}
	if err := s.runner.RegisterEntityTypes(s.registry); err != nil {
		return err
	}
	if s.config.AutoMigrate {
		opts := persistence.DDLOptions{Dialect: s.dialect, IDKind: s.idKind, Geospatial: s.IsGeospatialEnabled()}
		if err := s.runner.Migrate(ctx, s.db, opts); err != nil {
			return err
		}
	}

	tables := persistence.NewTableCollection(persistence.NewGormSchema(s.db.WithContext(ctx)), s.dialect, s.idKind)
	tables.SetLogger(s.logger)
	if err := tables.SetGeospatial(s.IsGeospatialEnabled()); err != nil {
		return err
	}
	if err := s.runner.LinkEntityTypes(tables); err != nil {
		return err
	}

	compiler := query.NewCompiler(tables, expression.DefaultCatalog())
	compiler.SetLogger(s.logger)
	compiler.SetLimits(s.config.MaxPathLength, s.config.DefaultTop, s.config.MaxTop)
	compiler.SetObservability(s.observability)
	s.runner.RegisterFunctions(compiler)

	s.tables = tables
	s.compiler = compiler
	s.initialized = true
	s.logger.Info("Service initialized",
		"dialect", s.dialect,
		"idType", s.idKind,
		"entityTypes", len(s.registry.EntityTypes()),
		"tables", len(tables.Tables()),
	)
	return nil
}

// Registry returns the model registry.
func (s *Service) Registry() *model.Registry { return s.registry }

// Tables returns the table mapping, or nil before Initialize.
func (s *Service) Tables() *persistence.TableCollection { return s.tables }

// EntityType finds an entity type by singular or plural name.
func (s *Service) EntityType(name string) (*EntityType, bool) {
	return s.registry.EntityTypeForName(name)
}

// Conformance returns the conformance classes of the enabled plugins.
func (s *Service) Conformance() []string {
	return s.runner.Conformance()
}

func (s *Service) ready() error {
	if !s.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// Compile translates q over et into SQL without running it.
func (s *Service) Compile(ctx context.Context, et *EntityType, q Query) (*CompiledQuery, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.compiler.Compile(ctx, et, q)
}

// Query compiles and runs q, returning one page of entities. When more rows
// match, or the decoded data reaches MaxDataSize, the set carries a next
// link. Inside Transaction the query reads through the transaction.
func (s *Service) Query(ctx context.Context, et *EntityType, q Query) (*EntitySet, error) {
	cq, err := s.Compile(ctx, et, q)
	if err != nil {
		return nil, err
	}
	var db query.Queryer
	if tx, ok := TransactionFromContext(ctx); ok {
		db = tx
	} else {
		sqlDB, err := s.db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access database pool: %w", err)
		}
		db = sqlDB
	}
	return cq.Execute(ctx, db, persistence.NewDataSize(s.config.MaxDataSize))
}

func (s *Service) tableFor(et *EntityType) (*persistence.Table, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	table, ok := s.tables.TableFor(et)
	if !ok {
		return nil, fmt.Errorf("no table registered for entity type %s", et.Name())
	}
	return table, nil
}

// Insert stores a new entity. Depending on IDGeneration the id is taken
// from e or generated; e holds the final id afterwards. When the insert
// fails, e keeps the id it had before.
func (s *Service) Insert(ctx context.Context, e *Entity) (err error) {
	table, err := s.tableFor(e.EntityType())
	if err != nil {
		return err
	}
	if err := s.checkRequired(e); err != nil {
		return err
	}
	prevID, prevSet := e.ID(), e.IsSetProperty(model.EPID)
	defer func() {
		if err == nil {
			return
		}
		if prevSet {
			e.SetID(prevID)
		} else {
			e.UnsetProperty(model.EPID)
		}
	}()
	generateLong, err := s.assignID(e)
	if err != nil {
		return err
	}
	fields, err := table.PropertyFieldRegistry().EncodeInsert(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	return s.runInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Table(table.Name()).Create(map[string]any(fields)).Error; err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.EntityType().Name(), err)
		}
		if generateLong {
			var id int64
			if err := tx.Raw(s.dialect.LastInsertIDSQL()).Scan(&id).Error; err != nil {
				return fmt.Errorf("failed to read generated id: %w", err)
			}
			e.SetID(model.IDLong(id))
		}
		s.logger.Debug("Inserted entity", "entityType", e.EntityType().Name(), "id", e.ID())
		return s.notify(ctx, persistence.NewEntityChangedMessage(persistence.EventCreate, e))
	})
}

// checkRequired rejects entities missing a required property.
func (s *Service) checkRequired(e *Entity) error {
	et := e.EntityType()
	for _, p := range et.Properties() {
		if p.IsID() || !et.IsRequired(p) {
			continue
		}
		if !e.IsSetProperty(p) || e.GetProperty(p) == nil {
			return fmt.Errorf("%w: %s requires property %s", ErrBadRequest, et.Name(), p.Name())
		}
	}
	return nil
}

// assignID applies the id generation mode. It reports whether the database
// generates the id.
func (s *Service) assignID(e *Entity) (bool, error) {
	mode := s.config.IDGeneration
	if e.ID() != nil {
		if mode == ServerGeneratedOnly {
			return false, fmt.Errorf("%w: ids of %s are generated by the server", ErrBadRequest, e.EntityType().Name())
		}
		return false, nil
	}
	if mode == ClientGeneratedOnly {
		return false, fmt.Errorf("%w: %s needs an id", ErrBadRequest, e.EntityType().Name())
	}
	if s.idKind == model.IDKindLong {
		return true, nil
	}
	id, err := s.idKind.Generate()
	if err != nil {
		return false, err
	}
	e.SetID(id)
	return false, nil
}

// Update writes the set properties of e to the row with its id. The
// returned message lists the properties that were written.
func (s *Service) Update(ctx context.Context, e *Entity) (*ChangeMessage, error) {
	table, err := s.tableFor(e.EntityType())
	if err != nil {
		return nil, err
	}
	if e.ID() == nil {
		return nil, fmt.Errorf("%w: cannot update %s without id", ErrBadRequest, e.EntityType().Name())
	}
	idField, ok := table.IDField()
	if !ok {
		return nil, fmt.Errorf("table %s has no id field", table.Name())
	}
	msg := persistence.NewEntityChangedMessage(persistence.EventUpdate, e)
	fields, err := table.PropertyFieldRegistry().EncodeUpdate(e, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(fields) == 0 {
		return msg, nil
	}

	err = s.runInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		result := tx.Table(table.Name()).Where(map[string]any{idField.Name: e.ID().Value()}).Updates(map[string]any(fields))
		if result.Error != nil {
			return fmt.Errorf("failed to update %s %s: %w", e.EntityType().Name(), e.ID(), result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, e.EntityType().Name(), e.ID())
		}
		s.logger.Debug("Updated entity", "entityType", e.EntityType().Name(), "id", e.ID(), "fields", len(fields))
		return s.notify(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes the entity of type et with the given id.
func (s *Service) Delete(ctx context.Context, et *EntityType, id model.ID) error {
	table, err := s.tableFor(et)
	if err != nil {
		return err
	}
	idField, ok := table.IDField()
	if !ok {
		return fmt.Errorf("table %s has no id field", table.Name())
	}
	stmt := "DELETE FROM " + s.dialect.Quote(table.Name()) + " WHERE " + s.dialect.Quote(idField.Name) + " = ?"
	return s.runInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		result := tx.Exec(stmt, id.Value())
		if result.Error != nil {
			return fmt.Errorf("failed to delete %s %s: %w", et.Name(), id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, et.Name(), id)
		}
		return s.notify(ctx, persistence.NewEntityChangedMessage(persistence.EventDelete, model.NewEntityWithID(et, id)))
	})
}

func (s *Service) notify(ctx context.Context, msg *ChangeMessage) error {
	s.mu.RLock()
	hooks := append([]ChangeHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, msg); err != nil {
			return fmt.Errorf("change hook rejected %s of %s: %w", msg.Event, msg.Entity.EntityType().Name(), err)
		}
	}
	return nil
}
