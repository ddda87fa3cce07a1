// Package plugin defines the lifecycle contract of model plugins and runs
// registered plugins in order.
//
// A plugin contributes entity types, their tables and relations, optional
// filter functions and conformance classes. The runner drives every enabled
// plugin through the phases below; each phase completes for all plugins
// before the next one starts:
//
//  1. Init: read settings and decide whether the plugin is enabled
//  2. RegisterEntityTypes: add entity types and properties to the registry
//  3. (registry is linked and frozen, missing tables may be created)
//  4. LinkEntityTypes: create tables, field mappers and relations
//  5. (tables are initialized)
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/query"
)

// ErrDuplicatePlugin is returned when two plugins share a name.
var ErrDuplicatePlugin = errors.New("plugin is already registered")

// Settings is the part of the service configuration visible to plugins.
type Settings struct {
	IDKind     model.IDKind
	Dialect    persistence.Dialect
	Geospatial bool
	// Enabled holds explicit enable switches by plugin name
	Enabled map[string]bool
	// ModelPaths lists model definition files to load
	ModelPaths []string
	Logger     *slog.Logger
}

// IsEnabled returns the switch for name, or def when none is configured.
func (s Settings) IsEnabled(name string, def bool) bool {
	if v, ok := s.Enabled[name]; ok {
		return v
	}
	return def
}

// Plugin is implemented by every model plugin.
type Plugin interface {
	Name() string
	// Init reads the settings. It reports whether the plugin takes part in
	// the remaining phases.
	Init(settings Settings) (bool, error)
	RegisterEntityTypes(reg *model.Registry) error
	LinkEntityTypes(tables *persistence.TableCollection) error
}

// ConformanceProvider is implemented by plugins adding conformance classes.
type ConformanceProvider interface {
	Conformance() []string
}

// FunctionProvider is implemented by plugins adding filter functions. The
// bindings are appended to the catalog and each function needs a renderer.
type FunctionProvider interface {
	RegisterFunctions(catalog *expression.Catalog) map[string]query.Renderer
}

// SchemaProvider is implemented by plugins that can create their tables.
type SchemaProvider interface {
	TableDefs() []persistence.TableDef
}

// Runner runs plugins in registration order.
type Runner struct {
	plugins []Plugin
	enabled []Plugin
	byName  map[string]Plugin
	logger  *slog.Logger
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{byName: make(map[string]Plugin), logger: slog.Default()}
}

// SetLogger sets the logger. A nil logger selects slog.Default().
func (r *Runner) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// Register adds a plugin.
func (r *Runner) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := r.byName[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name())
	}
	r.byName[p.Name()] = p
	r.plugins = append(r.plugins, p)
	r.logger.Debug("Registered plugin", "plugin", p.Name())
	return nil
}

// Plugin finds a registered plugin by name.
func (r *Runner) Plugin(name string) (Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Enabled returns the plugins that Init enabled.
func (r *Runner) Enabled() []Plugin {
	return append([]Plugin(nil), r.enabled...)
}

// Init initializes every registered plugin and records the enabled ones.
func (r *Runner) Init(settings Settings) error {
	if settings.Logger == nil {
		settings.Logger = r.logger
	}
	r.enabled = r.enabled[:0]
	for _, p := range r.plugins {
		enabled, err := p.Init(settings)
		if err != nil {
			return fmt.Errorf("failed to initialize plugin %s: %w", p.Name(), err)
		}
		if !enabled {
			r.logger.Info("Plugin disabled", "plugin", p.Name())
			continue
		}
		r.enabled = append(r.enabled, p)
	}
	return nil
}

// RegisterEntityTypes runs the registration phase of every enabled plugin
// and links the registry.
func (r *Runner) RegisterEntityTypes(reg *model.Registry) error {
	for _, p := range r.enabled {
		if err := p.RegisterEntityTypes(reg); err != nil {
			return fmt.Errorf("plugin %s failed to register entity types: %w", p.Name(), err)
		}
	}
	return reg.LinkEntityTypes()
}

// LinkEntityTypes runs the table phase of every enabled plugin and
// initializes the tables.
func (r *Runner) LinkEntityTypes(tables *persistence.TableCollection) error {
	for _, p := range r.enabled {
		if err := p.LinkEntityTypes(tables); err != nil {
			return fmt.Errorf("plugin %s failed to link entity types: %w", p.Name(), err)
		}
	}
	return tables.Init()
}

// Migrate creates the missing tables of enabled plugins. It runs between
// RegisterEntityTypes and LinkEntityTypes, since linking reads the schema.
func (r *Runner) Migrate(ctx context.Context, db *gorm.DB, opts persistence.DDLOptions) error {
	for _, p := range r.enabled {
		sp, ok := p.(SchemaProvider)
		if !ok {
			continue
		}
		if err := persistence.Migrate(ctx, db, opts, sp.TableDefs()); err != nil {
			return fmt.Errorf("plugin %s failed to create tables: %w", p.Name(), err)
		}
		r.logger.Info("Created plugin tables", "plugin", p.Name())
	}
	return nil
}

// RegisterFunctions adds the functions of enabled plugins to the compiler.
func (r *Runner) RegisterFunctions(c *query.Compiler) {
	for _, p := range r.enabled {
		fp, ok := p.(FunctionProvider)
		if !ok {
			continue
		}
		for name, renderer := range fp.RegisterFunctions(c.Catalog()) {
			c.RegisterRenderer(name, renderer)
		}
	}
}

// Conformance collects the conformance classes of enabled plugins without
// duplicates.
func (r *Runner) Conformance() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range r.enabled {
		cp, ok := p.(ConformanceProvider)
		if !ok {
			continue
		}
		for _, c := range cp.Conformance() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Run executes all phases.
func (r *Runner) Run(settings Settings, reg *model.Registry, tables *persistence.TableCollection) error {
	if err := r.Init(settings); err != nil {
		return err
	}
	if err := r.RegisterEntityTypes(reg); err != nil {
		return err
	}
	return r.LinkEntityTypes(tables)
}
