package query

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

type fixture struct {
	registry       *model.Registry
	thing          *model.EntityType
	location       *model.EntityType
	datastream     *model.EntityType
	observation    *model.EntityType
	geoLocation    *model.Property
	unit           *model.Property
	phenomenonTime *model.Property
	validTime      *model.Property
	result         *model.Property
	resultTime     *model.Property
	tables         *persistence.TableCollection
	compiler       *Compiler
}

var observationColumns = []string{"ID", "PHENOMENON_TIME_START", "PHENOMENON_TIME_END", "RESULT_TIME",
	"VALID_TIME_START", "VALID_TIME_END", "RESULT_TYPE", "RESULT_STRING", "RESULT_NUMBER",
	"RESULT_BOOLEAN", "RESULT_JSON", "DATASTREAM_ID"}

var fixtureColumns = map[string][]string{
	"THINGS":           {"ID", "NAME", "DESCRIPTION", "PROPERTIES"},
	"LOCATIONS":        {"ID", "NAME", "LOCATION", "GEOM"},
	"THINGS_LOCATIONS": {"THING_ID", "LOCATION_ID"},
	"DATASTREAMS":      {"ID", "NAME", "UNIT_OF_MEASUREMENT", "THING_ID"},
	"OBSERVATIONS":     observationColumns,
}

const fixtureDDL = `
CREATE TABLE "THINGS" ("ID" INTEGER PRIMARY KEY, "NAME" TEXT, "DESCRIPTION" TEXT, "PROPERTIES" TEXT);
CREATE TABLE "LOCATIONS" ("ID" INTEGER PRIMARY KEY, "NAME" TEXT, "LOCATION" TEXT, "GEOM" TEXT);
CREATE TABLE "THINGS_LOCATIONS" ("THING_ID" INTEGER, "LOCATION_ID" INTEGER);
CREATE TABLE "DATASTREAMS" ("ID" INTEGER PRIMARY KEY, "NAME" TEXT, "UNIT_OF_MEASUREMENT" TEXT, "THING_ID" INTEGER);
CREATE TABLE "OBSERVATIONS" ("ID" INTEGER PRIMARY KEY,
	"PHENOMENON_TIME_START" TEXT, "PHENOMENON_TIME_END" TEXT, "RESULT_TIME" TEXT,
	"VALID_TIME_START" TEXT, "VALID_TIME_END" TEXT,
	"RESULT_TYPE" SMALLINT, "RESULT_STRING" TEXT, "RESULT_NUMBER" DOUBLE PRECISION,
	"RESULT_BOOLEAN" BOOLEAN, "RESULT_JSON" TEXT, "DATASTREAM_ID" INTEGER);
`

const fixtureData = `
INSERT INTO "THINGS" ("ID", "NAME", "DESCRIPTION", "PROPERTIES") VALUES
	(1, 'Weather station', 'Roof', '{"floor": 5}'),
	(2, 'River gauge', 'Bridge', NULL);
INSERT INTO "LOCATIONS" ("ID", "NAME", "LOCATION") VALUES
	(1, 'Roof top', '{"type":"Point","coordinates":[8.4,49.0]}'),
	(2, 'Bridge pier', '{"type":"Point","coordinates":[8.5,49.1]}');
INSERT INTO "THINGS_LOCATIONS" ("THING_ID", "LOCATION_ID") VALUES (1, 1), (2, 2), (2, 1);
INSERT INTO "DATASTREAMS" ("ID", "NAME", "UNIT_OF_MEASUREMENT", "THING_ID") VALUES
	(1, 'Air temperature', '{"name":"degree Celsius","symbol":"°C"}', 1),
	(2, 'Water level', '{"name":"metre","symbol":"m"}', 2);
INSERT INTO "OBSERVATIONS" ("ID", "PHENOMENON_TIME_START", "PHENOMENON_TIME_END",
	"RESULT_TYPE", "RESULT_STRING", "RESULT_NUMBER", "RESULT_BOOLEAN", "RESULT_JSON", "DATASTREAM_ID") VALUES
	(1, '2024-01-01 00:00:00+00:00', '2024-01-01 00:00:00+00:00', 0, '21.5', 21.5, NULL, NULL, 1),
	(2, '2024-01-02 00:00:00+00:00', '2024-01-02 00:00:00+00:00', 0, '1', 1, NULL, NULL, 1),
	(3, '2024-01-03 00:00:00+00:00', '2024-01-04 00:00:00+00:00', 2, 'dry', NULL, NULL, NULL, 2),
	(4, '2024-01-05 00:00:00+00:00', '2024-01-05 00:00:00+00:00', 1, 'true', NULL, 1, NULL, 2),
	(5, '2024-01-06 00:00:00+00:00', '2024-01-06 00:00:00+00:00', 3, NULL, NULL, NULL, '{"level":3.2}', 2);
`

func fixtureSchema() persistence.MapSchema {
	schema := persistence.MapSchema{}
	for table, names := range fixtureColumns {
		for _, name := range names {
			schema[table] = append(schema[table], persistence.Column{Name: name, DataType: "TEXT"})
		}
	}
	return schema
}

func newFixture(t *testing.T, dialect persistence.Dialect, geospatial bool) *fixture {
	t.Helper()
	f := &fixture{
		registry:       model.NewRegistry(),
		thing:          model.NewEntityType("Thing", "Things"),
		location:       model.NewEntityType("Location", "Locations"),
		datastream:     model.NewEntityType("Datastream", "Datastreams"),
		observation:    model.NewEntityType("Observation", "Observations"),
		geoLocation:    model.NewEntityProperty("location", model.TypeGeometry),
		unit:           model.NewEntityProperty("unitOfMeasurement", model.TypeUnitOfMeasurement),
		phenomenonTime: model.NewEntityProperty("phenomenonTime", model.TypeTimeValue),
		validTime:      model.NewEntityProperty("validTime", model.TypeTimeInterval),
		result:         model.NewEntityProperty("result", model.TypeAny),
		resultTime:     model.NewEntityProperty("resultTime", model.TypeTimeInstant),
	}
	npThing := model.NewNavigationEntity("Thing")
	npThings := model.NewNavigationEntitySet("Things")
	npLocations := model.NewNavigationEntitySet("Locations")
	npDatastream := model.NewNavigationEntity("Datastream")
	npDatastreams := model.NewNavigationEntitySet("Datastreams")
	npObservations := model.NewNavigationEntitySet("Observations")

	mustDo := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Failed to set up fixture: %v", err)
		}
	}
	for _, et := range []*model.EntityType{f.thing, f.location, f.datastream, f.observation} {
		_, err := f.registry.RegisterEntityType(et)
		mustDo(err)
	}
	for _, p := range []*model.Property{f.geoLocation, f.unit, f.phenomenonTime, f.validTime, f.result, f.resultTime} {
		_, err := f.registry.RegisterEntityProperty(p)
		mustDo(err)
	}
	for _, p := range []*model.Property{npThing, npThings, npLocations, npDatastream, npDatastreams, npObservations} {
		_, err := f.registry.RegisterNavigationProperty(p)
		mustDo(err)
	}
	declare := func(et *model.EntityType, props ...*model.Property) {
		for _, p := range props {
			mustDo(et.RegisterProperty(p, false))
		}
	}
	declare(f.thing, model.EPID, model.EPName, model.EPDescription, model.EPProperties, npDatastreams, npLocations)
	declare(f.location, model.EPID, model.EPName, f.geoLocation, npThings)
	declare(f.datastream, model.EPID, model.EPName, f.unit, npThing, npObservations)
	declare(f.observation, model.EPID, f.phenomenonTime, f.resultTime, f.validTime, f.result, npDatastream)
	mustDo(f.registry.LinkEntityTypes())

	f.tables = persistence.NewTableCollection(fixtureSchema(), dialect, model.IDKindLong)
	mustDo(f.tables.SetGeospatial(geospatial))
	things := persistence.NewTable("THINGS", f.thing)
	locations := persistence.NewTable("LOCATIONS", f.location)
	datastreams := persistence.NewTable("DATASTREAMS", f.datastream)
	observations := persistence.NewTable("OBSERVATIONS", f.observation)
	for _, table := range []*persistence.Table{things, locations, datastreams, observations} {
		mustDo(f.tables.RegisterTable(table))
		table.AddFieldMapper(model.EPID, &persistence.IDMapper{Field: "ID"})
	}
	things.AddFieldMapper(model.EPName, &persistence.StringMapper{Field: "NAME"})
	things.AddFieldMapper(model.EPDescription, &persistence.StringMapper{Field: "DESCRIPTION"})
	things.AddFieldMapper(model.EPProperties, &persistence.MapMapper{Field: "PROPERTIES"})
	locations.AddFieldMapper(model.EPName, &persistence.StringMapper{Field: "NAME"})
	locations.AddFieldMapper(f.geoLocation, &persistence.LocationMapper{FieldJSON: "LOCATION", FieldGeom: "GEOM"})
	datastreams.AddFieldMapper(model.EPName, &persistence.StringMapper{Field: "NAME"})
	datastreams.AddFieldMapper(f.unit, &persistence.MapMapper{Field: "UNIT_OF_MEASUREMENT"})
	datastreams.AddFieldMapper(npThing, &persistence.NavigationMapper{Field: "THING_ID"})
	observations.AddFieldMapper(f.phenomenonTime, &persistence.TimeValueMapper{FieldStart: "PHENOMENON_TIME_START", FieldEnd: "PHENOMENON_TIME_END"})
	observations.AddFieldMapper(f.resultTime, &persistence.TimeInstantMapper{Field: "RESULT_TIME"})
	observations.AddFieldMapper(f.validTime, &persistence.TimeIntervalMapper{FieldStart: "VALID_TIME_START", FieldEnd: "VALID_TIME_END"})
	observations.AddFieldMapper(f.result, &persistence.ResultMapper{
		FieldType: "RESULT_TYPE", FieldString: "RESULT_STRING", FieldNumber: "RESULT_NUMBER",
		FieldBoolean: "RESULT_BOOLEAN", FieldJSON: "RESULT_JSON",
	})
	observations.AddFieldMapper(npDatastream, &persistence.NavigationMapper{Field: "DATASTREAM_ID"})

	mustDo(persistence.LinkOneToMany(things, datastreams, npDatastreams, npThing, "ID", "THING_ID"))
	mustDo(persistence.LinkOneToMany(datastreams, observations, npObservations, npDatastream, "ID", "DATASTREAM_ID"))
	mustDo(persistence.LinkManyToMany(things, locations, npLocations, npThings, "ID", "ID", "THINGS_LOCATIONS", "THING_ID", "LOCATION_ID"))
	mustDo(f.tables.Init())

	f.compiler = NewCompiler(f.tables, expression.DefaultCatalog())
	return f
}

func openFixtureDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(fixtureDDL+fixtureData, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to prepare database: %v\n%s", err, stmt)
		}
	}
	return db
}
