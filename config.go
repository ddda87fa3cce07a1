package frost

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
	"github.com/pbaumard/FROST-Server/internal/plugin/actuation"
	"github.com/pbaumard/FROST-Server/internal/plugin/coremodel"
	"github.com/pbaumard/FROST-Server/internal/plugin/oms"
	"github.com/pbaumard/FROST-Server/internal/query"
)

// IDGeneration controls who assigns the ids of new entities.
type IDGeneration string

const (
	// ServerGeneratedOnly rejects ids sent by clients
	ServerGeneratedOnly IDGeneration = "ServerGeneratedOnly"
	// ServerAndClientGenerated keeps client ids and generates missing ones
	ServerAndClientGenerated IDGeneration = "ServerAndClientGenerated"
	// ClientGeneratedOnly requires every new entity to carry an id
	ClientGeneratedOnly IDGeneration = "ClientGeneratedOnly"
)

const (
	// DefaultDialect is used when neither the config nor the database handle
	// names one.
	DefaultDialect = "sqlite"

	// DefaultIDType is the id representation of all tables.
	DefaultIDType = "LONG"

	// DefaultMaxDataSize is the number of string and JSON bytes a single
	// query may decode before the result is cut off with a next link.
	DefaultMaxDataSize = 25_000_000

	// DefaultMaxPathLength limits the segments of a path in $filter and
	// $orderby, which bounds the number of joins per query.
	DefaultMaxPathLength = query.DefaultMaxPathLength

	// DefaultTop is the page size of queries that set no $top.
	DefaultTop = query.DefaultTop

	// DefaultMaxTop is the largest page size a query may request.
	DefaultMaxTop = query.DefaultMaxTop

	// DefaultIDGeneration is the id generation mode.
	DefaultIDGeneration = ServerGeneratedOnly
)

// Config controls the service. Zero values select the defaults. Fields
// tagged with env are read by LoadConfigFromEnv.
type Config struct {
	// Dialect is sqlite or postgres. When empty it is taken from the
	// database handle.
	Dialect string `env:"FROST_DIALECT"`

	// DSN is the connection string used by OpenDatabase.
	DSN string `env:"FROST_DSN"`

	// IDType is LONG, STRING or UUID.
	IDType string `env:"FROST_ID_TYPE"`

	IDGeneration IDGeneration `env:"FROST_ID_GENERATION"`

	MaxDataSize   int64 `env:"FROST_MAX_DATA_SIZE"`
	MaxPathLength int   `env:"FROST_MAX_PATH_LENGTH"`
	DefaultTop    int   `env:"FROST_DEFAULT_TOP"`
	MaxTop        int   `env:"FROST_MAX_TOP"`

	// AutoMigrate creates missing plugin tables during Initialize.
	AutoMigrate bool `env:"FROST_AUTO_MIGRATE"`

	// DisableCoreModel switches off the sensing model, which is enabled by
	// default.
	DisableCoreModel bool `env:"FROST_PLUGINS_COREMODEL_DISABLE"`
	EnableActuation  bool `env:"FROST_PLUGINS_ACTUATION_ENABLE"`
	// EnableOMS requires DisableCoreModel, both models define Observation.
	EnableOMS bool `env:"FROST_PLUGINS_OMS_ENABLE"`

	// ModelPaths lists model definition files, separated by ';' in the
	// environment.
	ModelPaths []string `env:"FROST_MODEL_PATHS"`

	// Plugins holds enable switches by plugin name. They override the
	// switches above.
	Plugins map[string]bool
}

// LoadConfigFromEnv reads the configuration from FROST_* environment
// variables. Unset variables keep their zero value.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to read configuration from environment: %w", err)
	}
	return cfg, nil
}

// resolved holds the parsed form of a normalized Config.
type resolved struct {
	dialect persistence.Dialect
	idKind  model.IDKind
}

// normalize applies the defaults and validates the enumerations. fallback
// is the dialect reported by the database handle.
func (c *Config) normalize(fallback string) (resolved, error) {
	var r resolved
	if c.Dialect == "" {
		c.Dialect = fallback
	}
	if c.Dialect == "" {
		c.Dialect = DefaultDialect
	}
	if c.IDType == "" {
		c.IDType = DefaultIDType
	}
	if c.IDGeneration == "" {
		c.IDGeneration = DefaultIDGeneration
	}
	if c.MaxDataSize <= 0 {
		c.MaxDataSize = DefaultMaxDataSize
	}
	if c.MaxPathLength <= 0 {
		c.MaxPathLength = DefaultMaxPathLength
	}
	if c.DefaultTop <= 0 {
		c.DefaultTop = DefaultTop
	}
	if c.MaxTop <= 0 {
		c.MaxTop = DefaultMaxTop
	}

	var err error
	if r.dialect, err = persistence.ParseDialect(c.Dialect); err != nil {
		return r, model.NewConfigError("read configuration", "Dialect", err.Error())
	}
	if r.idKind, err = model.ParseIDKind(c.IDType); err != nil {
		return r, model.NewConfigError("read configuration", "IDType", err.Error())
	}
	switch c.IDGeneration {
	case ServerGeneratedOnly, ServerAndClientGenerated, ClientGeneratedOnly:
	default:
		return r, model.NewConfigError("read configuration", "IDGeneration", "unknown mode "+string(c.IDGeneration))
	}
	return r, nil
}

// pluginSettings builds the settings handed to plugins.
func (c *Config) pluginSettings(r resolved, geospatial bool) plugin.Settings {
	enabled := map[string]bool{
		coremodel.Name: !c.DisableCoreModel,
		actuation.Name: c.EnableActuation,
		oms.Name:       c.EnableOMS,
	}
	for name, v := range c.Plugins {
		enabled[name] = v
	}
	return plugin.Settings{
		IDKind:     r.idKind,
		Dialect:    r.dialect,
		Geospatial: geospatial,
		Enabled:    enabled,
		ModelPaths: c.ModelPaths,
	}
}

// OpenDatabase opens the database named by cfg.Dialect and cfg.DSN.
func OpenDatabase(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, model.NewConfigError("open database", "DSN", "no connection string configured")
	}
	name := cfg.Dialect
	if name == "" {
		name = DefaultDialect
	}
	dialect, err := persistence.ParseDialect(name)
	if err != nil {
		return nil, model.NewConfigError("open database", "Dialect", err.Error())
	}

	var dialector gorm.Dialector
	switch dialect {
	case persistence.DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	// every connection to :memory: is a separate database
	if dialect == persistence.DialectSQLite && strings.Contains(cfg.DSN, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access database pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
