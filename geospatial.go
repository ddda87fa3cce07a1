package frost

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/pbaumard/FROST-Server/internal/persistence"
)

// EnableGeospatial maps the geometry columns of location properties and
// allows the geo.* and st_* filter functions. It checks that the database
// supports spatial operations and must be called before Initialize.
//
// Example:
//
//	service, err := frost.NewService(db)
//	if err != nil {
//		log.Fatalf("Failed to create service: %v", err)
//	}
//	if err := service.EnableGeospatial(); err != nil {
//		log.Fatalf("Failed to enable geospatial: %v", err)
//	}
//	if err := service.Initialize(ctx); err != nil {
//		log.Fatalf("Failed to initialize service: %v", err)
//	}
func (s *Service) EnableGeospatial() error {
	if s.IsInitialized() {
		return fmt.Errorf("geospatial features must be enabled before Initialize")
	}
	s.logger.Info("Enabling geospatial features")

	if err := checkGeospatialSupport(s.db, s.dialect, s.logger); err != nil {
		s.logger.Error("Failed to enable geospatial features", "error", err)
		return fmt.Errorf("geospatial features cannot be enabled: %w", err)
	}

	atomic.StoreInt32(&s.geospatialEnabled, 1)
	s.logger.Info("Geospatial features enabled successfully")
	return nil
}

// IsGeospatialEnabled returns whether geospatial features are enabled for this service
func (s *Service) IsGeospatialEnabled() bool {
	return atomic.LoadInt32(&s.geospatialEnabled) == 1
}

// checkGeospatialSupport validates that the database supports geospatial operations
// and returns a detailed error message if support is missing
func checkGeospatialSupport(db *gorm.DB, dialect persistence.Dialect, logger *slog.Logger) error {
	if db == nil || db.Dialector == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Checking geospatial support", "dialect", dialect)

	switch dialect {
	case persistence.DialectSQLite:
		return checkSQLiteGeospatialSupport(db, logger)
	case persistence.DialectPostgres:
		return checkPostgreSQLGeospatialSupport(db, logger)
	default:
		return fmt.Errorf("database dialect '%s' is not supported for geospatial features", dialect)
	}
}

// checkSQLiteGeospatialSupport checks if SQLite has SpatiaLite extension loaded
func checkSQLiteGeospatialSupport(db *gorm.DB, logger *slog.Logger) error {
	var version string
	err := db.Raw("SELECT spatialite_version()").Scan(&version).Error
	if err == nil {
		logger.Info("SpatiaLite extension is available", "version", version)
		return nil
	}

	return fmt.Errorf(`SQLite does not have SpatiaLite extension support enabled.

To enable geospatial support in SQLite:
1. Install SpatiaLite:
   - On Ubuntu/Debian: sudo apt-get install libsqlite3-mod-spatialite
   - On macOS with Homebrew: brew install libspatialite

2. Load the extension before creating the service:
   db.Exec("SELECT load_extension('mod_spatialite')")

3. Create the geometry columns with the SpatiaLite functions, e.g.
   SELECT AddGeometryColumn('LOCATIONS', 'GEOM', 4326, 'GEOMETRY', 'XY')

Error details: %v`, err)
}

// checkPostgreSQLGeospatialSupport checks if PostgreSQL has PostGIS extension installed
func checkPostgreSQLGeospatialSupport(db *gorm.DB, logger *slog.Logger) error {
	var exists bool
	err := db.Raw("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'postgis')").Scan(&exists).Error
	if err != nil {
		return fmt.Errorf("failed to check for PostGIS extension: %w\n\nTo check manually, run: SELECT * FROM pg_extension WHERE extname = 'postgis';", err)
	}

	if !exists {
		return fmt.Errorf(`PostgreSQL does not have PostGIS extension installed.

To enable geospatial support in PostgreSQL:
1. Install PostGIS:
   - On Ubuntu/Debian: sudo apt-get install postgresql-{version}-postgis-3
   - On macOS with Homebrew: brew install postgis

2. Enable the extension in your database:
   psql -d your_database -c "CREATE EXTENSION postgis;"

For more information, visit: https://postgis.net/install/`)
	}

	var version string
	err = db.Raw("SELECT PostGIS_version()").Scan(&version).Error
	if err != nil {
		return fmt.Errorf("PostGIS extension is installed but not functioning correctly: %w", err)
	}

	logger.Info("PostGIS extension available", "version", version)
	return nil
}
