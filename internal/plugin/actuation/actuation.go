// Package actuation registers the SensorThings tasking model: Actuators,
// TaskingCapabilities and Tasks. It extends the Thing entity type of the
// core model, so it must be registered after that plugin.
package actuation

import (
	"fmt"
	"log/slog"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
)

// Name is the plugin name used for enable switches.
const Name = "actuation"

const (
	TableActuators           = "ACTUATORS"
	TableTaskingCapabilities = "TASKINGCAPABILITIES"
	TableTasks               = "TASKS"
)

var conformance = []string{
	"http://www.opengis.net/spec/iot_tasking/1.0/req/tasking-core",
}

var (
	EPTaskingParameters = model.NewEntityProperty("taskingParameters", model.TypeObject)
	EPCreationTime      = model.NewEntityProperty("creationTime", model.TypeTimeInstant)
)

type Plugin struct {
	Actuator          *model.EntityType
	TaskingCapability *model.EntityType
	Task              *model.EntityType

	NPActuator            *model.Property
	NPTaskingCapability   *model.Property
	NPTaskingCapabilities *model.Property
	NPTasks               *model.Property
	NPThing               *model.Property

	thing  *model.EntityType
	specs  []*persistence.TableSpec
	logger *slog.Logger
}

var (
	_ plugin.Plugin              = (*Plugin)(nil)
	_ plugin.SchemaProvider      = (*Plugin)(nil)
	_ plugin.ConformanceProvider = (*Plugin)(nil)
)

func New() *Plugin {
	return &Plugin{
		Actuator:          model.NewEntityType("Actuator", "Actuators"),
		TaskingCapability: model.NewEntityType("TaskingCapability", "TaskingCapabilities"),
		Task:              model.NewEntityType("Task", "Tasks"),

		NPActuator:            model.NewNavigationEntity("Actuator"),
		NPTaskingCapability:   model.NewNavigationEntity("TaskingCapability"),
		NPTaskingCapabilities: model.NewNavigationEntitySet("TaskingCapabilities"),
		NPTasks:               model.NewNavigationEntitySet("Tasks"),
		NPThing:               model.NewNavigationEntity("Thing"),

		logger: slog.Default(),
	}
}

func (p *Plugin) Name() string { return Name }

// Init enables the plugin only when configured.
func (p *Plugin) Init(s plugin.Settings) (bool, error) {
	if s.Logger != nil {
		p.logger = s.Logger
	}
	return s.IsEnabled(Name, false), nil
}

func (p *Plugin) Conformance() []string { return conformance }

func (p *Plugin) RegisterEntityTypes(reg *model.Registry) error {
	p.logger.Info("Initialising actuation types")
	thing, ok := reg.EntityTypeForName("Thing")
	if !ok {
		return model.NewConfigError("register entity types", Name, "entity type Thing is not registered, enable the core model first")
	}
	p.thing = thing

	for _, et := range []*model.EntityType{p.Actuator, p.TaskingCapability, p.Task} {
		if _, err := reg.RegisterEntityType(et); err != nil {
			return err
		}
	}
	for _, ep := range []*model.Property{EPTaskingParameters, EPCreationTime} {
		if _, err := reg.RegisterEntityProperty(ep); err != nil {
			return err
		}
	}
	for _, np := range []**model.Property{&p.NPActuator, &p.NPTaskingCapability, &p.NPTaskingCapabilities, &p.NPTasks, &p.NPThing} {
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
		{p.Actuator, []*model.Property{model.EPName, model.EPDescription, model.EPEncodingType, model.EPMetadata},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPTaskingCapabilities}},
		{p.TaskingCapability, []*model.Property{model.EPName, model.EPDescription, EPTaskingParameters, p.NPActuator, p.NPThing},
			[]*model.Property{model.EPSelfLink, model.EPProperties, p.NPTasks}},
		{p.Task, []*model.Property{EPTaskingParameters, p.NPTaskingCapability},
			[]*model.Property{model.EPSelfLink, EPCreationTime}},
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
	if err := thing.RegisterProperty(p.NPTaskingCapabilities, false); err != nil {
		return err
	}

	actuators := persistence.NewTableSpec(TableActuators, p.Actuator).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		Text(model.EPEncodingType, "ENCODING_TYPE").
		Text(model.EPMetadata, "METADATA").
		JSON(model.EPProperties, "PROPERTIES")
	capabilities := persistence.NewTableSpec(TableTaskingCapabilities, p.TaskingCapability).
		ID("ID").
		Text(model.EPName, "NAME").
		Text(model.EPDescription, "DESCRIPTION").
		JSON(model.EPProperties, "PROPERTIES").
		JSON(EPTaskingParameters, "TASKING_PARAMETERS").
		ToOne(p.NPActuator, "ACTUATOR_ID").
		ToOne(p.NPThing, "THING_ID")
	tasks := persistence.NewTableSpec(TableTasks, p.Task).
		ID("ID").
		TimeInstant(EPCreationTime, "CREATION_TIME").
		JSON(EPTaskingParameters, "TASKING_PARAMETERS").
		ToOne(p.NPTaskingCapability, "TASKINGCAPABILITY_ID")
	p.specs = []*persistence.TableSpec{actuators, capabilities, tasks}
	return nil
}

func (p *Plugin) TableDefs() []persistence.TableDef {
	defs := make([]persistence.TableDef, 0, len(p.specs))
	for _, s := range p.specs {
		defs = append(defs, s.Def())
	}
	return defs
}

// LinkEntityTypes registers the tasking tables and adds the
// TaskingCapabilities relation to the table of Things.
func (p *Plugin) LinkEntityTypes(tables *persistence.TableCollection) error {
	if len(p.specs) == 0 {
		return fmt.Errorf("%s: entity types are not registered", Name)
	}
	things, ok := tables.TableFor(p.thing)
	if !ok {
		return model.NewConfigError("link entity types", Name, "no table registered for Thing")
	}
	registered := make([]*persistence.Table, len(p.specs))
	for i, s := range p.specs {
		t, err := s.Register(tables)
		if err != nil {
			return err
		}
		registered[i] = t
	}
	actuators, capabilities, tasks := registered[0], registered[1], registered[2]

	if err := persistence.LinkOneToMany(actuators, capabilities, p.NPTaskingCapabilities, p.NPActuator, "ID", "ACTUATOR_ID"); err != nil {
		return err
	}
	if err := persistence.LinkOneToMany(things, capabilities, p.NPTaskingCapabilities, p.NPThing, "ID", "THING_ID"); err != nil {
		return err
	}
	return persistence.LinkOneToMany(capabilities, tasks, p.NPTasks, p.NPTaskingCapability, "ID", "TASKINGCAPABILITY_ID")
}
