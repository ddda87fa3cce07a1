// Package coremodel registers the SensorThings sensing model: Things,
// Locations, HistoricalLocations, Sensors, ObservedProperties, Datastreams,
// Observations and FeaturesOfInterest, with their tables and relations.
package coremodel

import (
	"fmt"
	"log/slog"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
)

// Name is the plugin name used for enable switches.
const Name = "coreModel"

// Table names.
const (
	TableThings            = "THINGS"
	TableLocations         = "LOCATIONS"
	TableHistLocations     = "HIST_LOCATIONS"
	TableSensors           = "SENSORS"
	TableObsProperties     = "OBS_PROPERTIES"
	TableDatastreams       = "DATASTREAMS"
	TableObservations      = "OBSERVATIONS"
	TableFeatures          = "FEATURES"
	TableThingsLocations   = "THINGS_LOCATIONS"
	TableLocationsHistLocs = "LOCATIONS_HIST_LOCATIONS"
)

var conformance = []string{
	"http://www.opengis.net/spec/iot_sensing/1.1/req/datamodel",
	"http://www.opengis.net/spec/iot_sensing/1.1/req/resource-path/resource-path-to-entities",
	"http://www.opengis.net/spec/iot_sensing/1.1/req/request-data",
}

// Entity properties of the sensing model. phenomenonTime and resultTime are
// shared between Datastreams (intervals) and Observations, so they carry the
// TimeValue type and the tables decide the storage.
var (
	EPLocation          = model.NewEntityProperty("location", model.TypeGeometry)
	EPFeature           = model.NewEntityProperty("feature", model.TypeGeometry)
	EPTime              = model.NewEntityProperty("time", model.TypeTimeInstant)
	EPObservationType   = model.NewEntityProperty("observationType", model.TypeString)
	EPUnitOfMeasurement = model.NewEntityProperty("unitOfMeasurement", model.TypeUnitOfMeasurement)
	EPObservedArea      = model.NewEntityProperty("observedArea", model.TypeGeometry)
	EPPhenomenonTime    = model.NewEntityProperty("phenomenonTime", model.TypeTimeValue)
	EPResultTime        = model.NewEntityProperty("resultTime", model.TypeTimeValue)
	EPResult            = model.NewEntityProperty("result", model.TypeAny)
	EPResultQuality     = model.NewEntityProperty("resultQuality", model.TypeAny)
	EPValidTime         = model.NewEntityProperty("validTime", model.TypeTimeInterval)
	EPParameters        = model.NewEntityProperty("parameters", model.TypeObject)
)

// Plugin is the sensing model plugin. Entity types and navigation properties
// belong to one plugin instance, since linking binds them to a registry.
type Plugin struct {
	Thing              *model.EntityType
	Location           *model.EntityType
	HistoricalLocation *model.EntityType
	Sensor             *model.EntityType
	ObservedProperty   *model.EntityType
	Datastream         *model.EntityType
	Observation        *model.EntityType
	FeatureOfInterest  *model.EntityType

	NPThing               *model.Property
	NPThings              *model.Property
	NPLocations           *model.Property
	NPHistoricalLocations *model.Property
	NPSensor              *model.Property
	NPObservedProperty    *model.Property
	NPDatastream          *model.Property
	NPDatastreams         *model.Property
	NPObservations        *model.Property
	NPFeatureOfInterest   *model.Property

	specs  []*persistence.TableSpec
	logger *slog.Logger
}

var (
	_ plugin.Plugin              = (*Plugin)(nil)
	_ plugin.SchemaProvider      = (*Plugin)(nil)
	_ plugin.ConformanceProvider = (*Plugin)(nil)
)

// New creates the plugin.
func New() *Plugin {
	return &Plugin{
		Thing:              model.NewEntityType("Thing", "Things"),
		Location:           model.NewEntityType("Location", "Locations"),
		HistoricalLocation: model.NewEntityType("HistoricalLocation", "HistoricalLocations"),
		Sensor:             model.NewEntityType("Sensor", "Sensors"),
		ObservedProperty:   model.NewEntityType("ObservedProperty", "ObservedProperties"),
		Datastream:         model.NewEntityType("Datastream", "Datastreams"),
		Observation:        model.NewEntityType("Observation", "Observations"),
		FeatureOfInterest:  model.NewEntityType("FeatureOfInterest", "FeaturesOfInterest"),

		NPThing:               model.NewNavigationEntity("Thing"),
		NPThings:              model.NewNavigationEntitySet("Things"),
		NPLocations:           model.NewNavigationEntitySet("Locations"),
		NPHistoricalLocations: model.NewNavigationEntitySet("HistoricalLocations"),
		NPSensor:              model.NewNavigationEntity("Sensor"),
		NPObservedProperty:    model.NewNavigationEntity("ObservedProperty"),
		NPDatastream:          model.NewNavigationEntity("Datastream"),
		NPDatastreams:         model.NewNavigationEntitySet("Datastreams"),
		NPObservations:        model.NewNavigationEntitySet("Observations"),
		NPFeatureOfInterest:   model.NewNavigationEntity("FeatureOfInterest"),

		logger: slog.Default(),
	}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(s plugin.Settings) (bool, error) {
	if s.Logger != nil {
		p.logger = s.Logger
	}
	return s.IsEnabled(Name, true), nil
}

func (p *Plugin) Conformance() []string { return conformance }

// RegisterEntityTypes registers the entity types and declares their
// properties. Navigation properties already registered by another plugin
// are reused.
func (p *Plugin) RegisterEntityTypes(reg *model.Registry) error {
	p.logger.Info("Initialising core model types")
	for _, et := range []*model.EntityType{p.Thing, p.Location, p.HistoricalLocation, p.Sensor,
		p.ObservedProperty, p.Datastream, p.Observation, p.FeatureOfInterest} {
		if _, err := reg.RegisterEntityType(et); err != nil {
			return err
		}
	}
	for _, ep := range []*model.Property{EPLocation, EPFeature, EPTime, EPObservationType, EPUnitOfMeasurement,
		EPObservedArea, EPPhenomenonTime, EPResultTime, EPResult, EPResultQuality, EPValidTime, EPParameters} {
		if _, err := reg.RegisterEntityProperty(ep); err != nil {
			return err
		}
	}
	for _, np := range []**model.Property{&p.NPThing, &p.NPThings, &p.NPLocations, &p.NPHistoricalLocations,
		&p.NPSensor, &p.NPObservedProperty, &p.NPDatastream, &p.NPDatastreams, &p.NPObservations, &p.NPFeatureOfInterest} {
		registered, err := reg.RegisterNavigationProperty(*np)
		if err != nil {
			return err
		}
		*np = registered
	}

	declarations := []struct {
		et       *model.EntityType
		required []*model.Property
		optional []*model.Property
	}{
		{p.Thing, []*model.Property{model.EPName, model.EPDescription},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPLocations, p.NPHistoricalLocations, p.NPDatastreams}},
		{p.Location, []*model.Property{model.EPName, model.EPDescription, model.EPEncodingType, EPLocation},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPThings, p.NPHistoricalLocations}},
		{p.HistoricalLocation, []*model.Property{EPTime, p.NPThing},
			[]*model.Property{model.EPSelfLink, p.NPLocations}},
		{p.Sensor, []*model.Property{model.EPName, model.EPDescription, model.EPEncodingType, model.EPMetadata},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPDatastreams}},
		{p.ObservedProperty, []*model.Property{model.EPName, model.EPDefinition, model.EPDescription},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPDatastreams}},
		{p.Datastream, []*model.Property{model.EPName, model.EPDescription, EPObservationType, EPUnitOfMeasurement,
			p.NPThing, p.NPSensor, p.NPObservedProperty},
			[]*model.Property{model.EPSelfLink, EPObservedArea, EPPhenomenonTime, EPResultTime, model.EPProperties, p.NPObservations}},
		{p.Observation, []*model.Property{EPResult, p.NPDatastream},
			[]*model.Property{model.EPSelfLink, EPPhenomenonTime, EPResultTime, EPResultQuality, EPValidTime, EPParameters, p.NPFeatureOfInterest}},
		{p.FeatureOfInterest, []*model.Property{model.EPName, model.EPDescription, model.EPEncodingType, EPFeature},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPObservations}},
	}
	for _, d := range declarations {
		if err := d.et.RegisterProperty(model.EPID, false); err != nil {
			return err
		}
		for _, prop := range d.required {
			if err := d.et.RegisterProperty(prop, true); err != nil {
				return err
			}
		}
		for _, prop := range d.optional {
			if err := d.et.RegisterProperty(prop, false); err != nil {
				return err
			}
		}
	}
	p.specs = p.tableSpecs()
	return nil
}

func (p *Plugin) tableSpecs() []*persistence.TableSpec {
	things := persistence.NewTableSpec(TableThings, p.Thing).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		JSON(model.EPProperties, "PROPERTIES")
	locations := persistence.NewTableSpec(TableLocations, p.Location).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		Text(model.EPEncodingType, "ENCODING_TYPE").
		Location(EPLocation, "LOCATION", "GEOM").
		JSON(model.EPProperties, "PROPERTIES")
	histLocations := persistence.NewTableSpec(TableHistLocations, p.HistoricalLocation).
		ID("ID").
		TimeInstant(EPTime, "TIME").
		ToOne(p.NPThing, "THING_ID")
	sensors := persistence.NewTableSpec(TableSensors, p.Sensor).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		Text(model.EPEncodingType, "ENCODING_TYPE").
		Text(model.EPMetadata, "METADATA").
		JSON(model.EPProperties, "PROPERTIES")
	obsProperties := persistence.NewTableSpec(TableObsProperties, p.ObservedProperty).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDefinition, "DEFINITION").
		Text(model.EPDescription, "DESCRIPTION").
		JSON(model.EPProperties, "PROPERTIES")
	datastreams := persistence.NewTableSpec(TableDatastreams, p.Datastream).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		Text(EPObservationType, "OBSERVATION_TYPE").
		JSON(EPUnitOfMeasurement, "UNIT_OF_MEASUREMENT").
		Location(EPObservedArea, "OBSERVED_AREA_JSON", "OBSERVED_AREA").
		TimeInterval(EPPhenomenonTime, "PHENOMENON_TIME_START", "PHENOMENON_TIME_END").
		TimeInterval(EPResultTime, "RESULT_TIME_START", "RESULT_TIME_END").
		JSON(model.EPProperties, "PROPERTIES").
		ToOne(p.NPThing, "THING_ID").
		ToOne(p.NPSensor, "SENSOR_ID").
		ToOne(p.NPObservedProperty, "OBS_PROPERTY_ID")
	observations := persistence.NewTableSpec(TableObservations, p.Observation).
		ID("ID").
		TimeValue(EPPhenomenonTime, "PHENOMENON_TIME_START", "PHENOMENON_TIME_END").
		TimeInstant(EPResultTime, "RESULT_TIME").
		Result(EPResult, "RESULT_TYPE", "RESULT_STRING", "RESULT_NUMBER", "RESULT_BOOLEAN", "RESULT_JSON").
		JSON(EPResultQuality, "RESULT_QUALITY").
		TimeInterval(EPValidTime, "VALID_TIME_START", "VALID_TIME_END").
		JSON(EPParameters, "PARAMETERS").
		ToOne(p.NPDatastream, "DATASTREAM_ID").
		ToOne(p.NPFeatureOfInterest, "FEATURE_ID")
	features := persistence.NewTableSpec(TableFeatures, p.FeatureOfInterest).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		Text(model.EPEncodingType, "ENCODING_TYPE").
		Location(EPFeature, "FEATURE", "GEOM").
		JSON(model.EPProperties, "PROPERTIES")
	return []*persistence.TableSpec{things, locations, histLocations, sensors, obsProperties, datastreams, observations, features}
}

// TableDefs returns the definitions of all tables, including link tables.
// It is only valid after RegisterEntityTypes.
func (p *Plugin) TableDefs() []persistence.TableDef {
	defs := make([]persistence.TableDef, 0, len(p.specs)+2)
	for _, s := range p.specs {
		defs = append(defs, s.Def())
	}
	return append(defs,
		persistence.LinkTableDef(TableThingsLocations, "THING_ID", "LOCATION_ID"),
		persistence.LinkTableDef(TableLocationsHistLocs, "LOCATION_ID", "HIST_LOCATION_ID"))
}

// LinkEntityTypes registers the tables and the relations between them.
func (p *Plugin) LinkEntityTypes(tables *persistence.TableCollection) error {
	if len(p.specs) == 0 {
		return fmt.Errorf("%s: entity types are not registered", Name)
	}
	t := make(map[string]*persistence.Table, len(p.specs))
	for _, s := range p.specs {
		table, err := s.Register(tables)
		if err != nil {
			return err
		}
		t[s.Name()] = table
	}

	links := []func() error{
		func() error {
			return persistence.LinkOneToMany(t[TableThings], t[TableDatastreams], p.NPDatastreams, p.NPThing, "ID", "THING_ID")
		},
		func() error {
			return persistence.LinkOneToMany(t[TableThings], t[TableHistLocations], p.NPHistoricalLocations, p.NPThing, "ID", "THING_ID")
		},
		func() error {
			return persistence.LinkOneToMany(t[TableSensors], t[TableDatastreams], p.NPDatastreams, p.NPSensor, "ID", "SENSOR_ID")
		},
		func() error {
			return persistence.LinkOneToMany(t[TableObsProperties], t[TableDatastreams], p.NPDatastreams, p.NPObservedProperty, "ID", "OBS_PROPERTY_ID")
		},
		func() error {
			return persistence.LinkOneToMany(t[TableDatastreams], t[TableObservations], p.NPObservations, p.NPDatastream, "ID", "DATASTREAM_ID")
		},
		func() error {
			return persistence.LinkOneToMany(t[TableFeatures], t[TableObservations], p.NPObservations, p.NPFeatureOfInterest, "ID", "FEATURE_ID")
		},
		func() error {
			return persistence.LinkManyToMany(t[TableThings], t[TableLocations], p.NPLocations, p.NPThings,
				"ID", "ID", TableThingsLocations, "THING_ID", "LOCATION_ID")
		},
		func() error {
			return persistence.LinkManyToMany(t[TableLocations], t[TableHistLocations], p.NPHistoricalLocations, p.NPLocations,
				"ID", "ID", TableLocationsHistLocs, "LOCATION_ID", "HIST_LOCATION_ID")
		},
	}
	for _, link := range links {
		if err := link(); err != nil {
			return err
		}
	}
	return nil
}
