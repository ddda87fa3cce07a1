package frost

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/plugin/coremodel"
	"github.com/pbaumard/FROST-Server/internal/plugin/oms"
)

// newTestService opens an in-memory database, creates the tables of the
// enabled plugins and initializes the service.
func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.DSN = ":memory:"
	cfg.AutoMigrate = true
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	s, err := NewServiceWithConfig(db, cfg)
	if err != nil {
		t.Fatalf("NewServiceWithConfig() error: %v", err)
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return s
}

func mustEntityType(t *testing.T, s *Service, name string) *EntityType {
	t.Helper()
	et, ok := s.EntityType(name)
	if !ok {
		t.Fatalf("Expected entity type %s to be registered", name)
	}
	return et
}

func newThing(t *testing.T, et *EntityType, name, description string) *Entity {
	t.Helper()
	e := model.NewEntity(et)
	for p, v := range map[*model.Property]any{model.EPName: name, model.EPDescription: description} {
		if err := e.SetProperty(p, v); err != nil {
			t.Fatalf("Failed to set %s: %v", p.Name(), err)
		}
	}
	return e
}

func names(set *EntitySet) []string {
	var out []string
	for _, e := range set.Entities() {
		name, _ := e.GetProperty(model.EPName).(string)
		out = append(out, name)
	}
	return out
}

func TestNewService_RequiresDB(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Error("Expected an error for a nil database handle")
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	r, err := cfg.normalize("")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if cfg.Dialect != DefaultDialect || cfg.IDType != DefaultIDType || cfg.IDGeneration != DefaultIDGeneration {
		t.Errorf("Expected default dialect, id type and generation, got %+v", cfg)
	}
	if cfg.MaxDataSize != DefaultMaxDataSize || cfg.MaxPathLength != DefaultMaxPathLength ||
		cfg.DefaultTop != DefaultTop || cfg.MaxTop != DefaultMaxTop {
		t.Errorf("Expected default limits, got %+v", cfg)
	}
	if r.idKind != model.IDKindLong {
		t.Errorf("Expected LONG ids, got %s", r.idKind)
	}

	cfg = Config{MaxTop: -5}
	r, err = cfg.normalize("postgres")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if r.dialect != "postgres" || cfg.MaxTop != DefaultMaxTop {
		t.Errorf("Expected the database dialect and the default max top, got %s and %d", r.dialect, cfg.MaxTop)
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"dialect", Config{Dialect: "oracle"}},
		{"id type", Config{IDType: "INT"}},
		{"id generation", Config{IDGeneration: "Sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if _, err := cfg.normalize(""); !errors.Is(err, model.ErrConfiguration) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestConfig_PluginSettings(t *testing.T) {
	cfg := Config{EnableOMS: true, DisableCoreModel: true, Plugins: map[string]bool{"custom": true, oms.Name: false}}
	settings := cfg.pluginSettings(resolved{}, false)
	if settings.IsEnabled(coremodel.Name, true) {
		t.Error("Expected the core model to be disabled")
	}
	if settings.IsEnabled(oms.Name, true) {
		t.Error("Expected the plugin map to override EnableOMS")
	}
	if !settings.IsEnabled("custom", false) {
		t.Error("Expected the custom plugin to be enabled")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FROST_DIALECT", "postgres")
	t.Setenv("FROST_DSN", "host=db user=frost")
	t.Setenv("FROST_MAX_TOP", "50")
	t.Setenv("FROST_ID_GENERATION", "ServerAndClientGenerated")
	t.Setenv("FROST_PLUGINS_OMS_ENABLE", "true")
	t.Setenv("FROST_MODEL_PATHS", "a.yaml;b.json")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg.Dialect != "postgres" || cfg.DSN != "host=db user=frost" || cfg.MaxTop != 50 {
		t.Errorf("Expected values from the environment, got %+v", cfg)
	}
	if cfg.IDGeneration != ServerAndClientGenerated || !cfg.EnableOMS {
		t.Errorf("Expected id generation and OMS switch from the environment, got %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.ModelPaths, []string{"a.yaml", "b.json"}) {
		t.Errorf("Expected two model paths, got %v", cfg.ModelPaths)
	}
}

func TestOpenDatabase_Invalid(t *testing.T) {
	if _, err := OpenDatabase(Config{}); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("Expected configuration error without DSN, got %v", err)
	}
	if _, err := OpenDatabase(Config{Dialect: "oracle", DSN: "x"}); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("Expected configuration error for unknown dialect, got %v", err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	db, err := OpenDatabase(Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	s, err := NewServiceWithConfig(db, Config{AutoMigrate: true})
	if err != nil {
		t.Fatalf("NewServiceWithConfig() error: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Query(ctx, nil, Query{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized before Initialize, got %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := s.Initialize(ctx); err == nil {
		t.Error("Expected a second Initialize to fail")
	}
	if err := s.RegisterPlugin(coremodel.New()); err == nil {
		t.Error("Expected RegisterPlugin after Initialize to fail")
	}
	if err := s.EnableGeospatial(); err == nil {
		t.Error("Expected EnableGeospatial after Initialize to fail")
	}
	if !s.Registry().IsFrozen() {
		t.Error("Expected the registry to be frozen")
	}
	if got := len(s.Tables().Tables()); got != 8 {
		t.Errorf("Expected 8 tables of the core model, got %d", got)
	}
	if got := s.Conformance(); len(got) != 3 {
		t.Errorf("Expected 3 conformance classes, got %v", got)
	}
}

func TestService_InsertQueryUpdateDelete(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	thing := mustEntityType(t, s, "Things")

	for _, pair := range [][2]string{{"Station", "Roof"}, {"Buoy", "Lake"}, {"Mast", "Roof"}} {
		e := newThing(t, thing, pair[0], pair[1])
		if err := e.SetProperty(model.EPProperties, map[string]any{"floor": 3.0}); err != nil {
			t.Fatalf("Failed to set properties: %v", err)
		}
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert() error: %v", err)
		}
		if _, ok := e.ID().(model.IDLong); !ok {
			t.Fatalf("Expected a generated LONG id, got %v", e.ID())
		}
	}

	roof := expression.Eq(expression.NewPath("description"), expression.StringConstant{V: "Roof"})
	set, err := s.Query(ctx, thing, Query{Filter: roof, OrderBy: []OrderBy{{Expr: expression.NewPath("name")}}, Count: true})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if got := names(set); !reflect.DeepEqual(got, []string{"Mast", "Station"}) {
		t.Errorf("Expected [Mast Station], got %v", got)
	}
	if count, ok := set.Count(); !ok || count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
	props, _ := set.Get(0).GetProperty(model.EPProperties).(map[string]any)
	if props["floor"] != 3.0 {
		t.Errorf("Expected properties to round trip, got %v", props)
	}

	page, err := s.Query(ctx, thing, Query{Top: 2})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if page.Len() != 2 || page.NextLink() == "" {
		t.Errorf("Expected a page of 2 with a next link, got %d entities and %q", page.Len(), page.NextLink())
	}

	mast := set.Get(0)
	update := model.NewEntityWithID(thing, mast.ID())
	if err := update.SetProperty(model.EPDescription, "Hill"); err != nil {
		t.Fatalf("Failed to set description: %v", err)
	}
	msg, err := s.Update(ctx, update)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if !msg.HasField(model.EPDescription) || msg.HasField(model.EPName) {
		t.Errorf("Expected only description to be changed, got %v", msg.Fields())
	}
	set, err = s.Query(ctx, thing, Query{Filter: roof})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if got := names(set); !reflect.DeepEqual(got, []string{"Station"}) {
		t.Errorf("Expected [Station] after the update, got %v", got)
	}

	if err := s.Delete(ctx, thing, mast.ID()); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(ctx, thing, mast.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
	if _, err := s.Update(ctx, update); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating a deleted entity, got %v", err)
	}
}

func TestService_Observations(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	thingType := mustEntityType(t, s, "Thing")
	sensorType := mustEntityType(t, s, "Sensor")
	opType := mustEntityType(t, s, "ObservedProperty")
	dsType := mustEntityType(t, s, "Datastream")
	obsType := mustEntityType(t, s, "Observation")

	insert := func(et *EntityType, values map[string]any) *Entity {
		t.Helper()
		e := model.NewEntity(et)
		for name, v := range values {
			p, ok := et.Property(name)
			if !ok {
				t.Fatalf("%s has no property %s", et.Name(), name)
			}
			if err := e.SetProperty(p, v); err != nil {
				t.Fatalf("Failed to set %s: %v", name, err)
			}
		}
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert(%s) error: %v", et.Name(), err)
		}
		return e
	}

	thing := insert(thingType, map[string]any{"name": "Station", "description": "Roof"})
	sensor := insert(sensorType, map[string]any{"name": "PT100", "description": "Thermometer", "encodingType": "text/plain", "metadata": "none"})
	op := insert(opType, map[string]any{"name": "Temperature", "definition": "urn:temp", "description": "Air"})
	ds := insert(dsType, map[string]any{
		"name":              "Air temperature",
		"description":       "Roof",
		"observationType":   "OM_Measurement",
		"unitOfMeasurement": map[string]any{"symbol": "degC"},
		"Thing":             model.NewEntityWithID(thingType, thing.ID()),
		"Sensor":            model.NewEntityWithID(sensorType, sensor.ID()),
		"ObservedProperty":  model.NewEntityWithID(opType, op.ID()),
	})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, result := range []any{21.5, 18.0, "broken"} {
		insert(obsType, map[string]any{
			"result":         result,
			"phenomenonTime": model.NewTimeInstant(at.Add(time.Duration(i) * time.Hour)),
			"Datastream":     model.NewEntityWithID(dsType, ds.ID()),
		})
	}

	filter := expression.And(
		expression.Gt(expression.NewPath("result"), expression.IntegerConstant{V: 20}),
		expression.Eq(expression.NewPath("Datastream/Thing/name"), expression.StringConstant{V: "Station"}),
	)
	set, err := s.Query(ctx, obsType, Query{Filter: filter})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("Expected one observation, got %d", set.Len())
	}
	obs := set.Get(0)
	if got, ok := obs.GetProperty(coremodel.EPResult).(decimal.Decimal); !ok || !got.Equal(decimal.RequireFromString("21.5")) {
		t.Errorf("Expected result 21.5, got %v", obs.GetProperty(coremodel.EPResult))
	}
	tv, ok := model.AsTimeValue(obs.GetProperty(coremodel.EPPhenomenonTime))
	if !ok || tv.IsInterval() || !tv.Start().Equal(at) {
		t.Errorf("Expected phenomenonTime %s, got %v", at, obs.GetProperty(coremodel.EPPhenomenonTime))
	}

	text, err := s.Query(ctx, obsType, Query{Filter: expression.Eq(expression.NewPath("result"), expression.StringConstant{V: "broken"})})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if text.Len() != 1 {
		t.Errorf("Expected one string result, got %d", text.Len())
	}
}

func TestService_RequiredProperties(t *testing.T) {
	s := newTestService(t, Config{})
	thing := mustEntityType(t, s, "Thing")
	e := model.NewEntity(thing)
	if err := e.SetProperty(model.EPName, "Nameless"); err != nil {
		t.Fatalf("Failed to set name: %v", err)
	}
	err := s.Insert(context.Background(), e)
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "description") {
		t.Errorf("Expected a bad request naming description, got %v", err)
	}
}

func TestService_IDGeneration(t *testing.T) {
	ctx := context.Background()
	clientID := model.IDString("thing-1")

	t.Run("server and client", func(t *testing.T) {
		s := newTestService(t, Config{IDType: "STRING", IDGeneration: ServerAndClientGenerated})
		thing := mustEntityType(t, s, "Thing")
		generated := newThing(t, thing, "A", "a")
		if err := s.Insert(ctx, generated); err != nil {
			t.Fatalf("Insert() error: %v", err)
		}
		if id, ok := generated.ID().(model.IDString); !ok || id == "" {
			t.Errorf("Expected a generated string id, got %v", generated.ID())
		}
		given := newThing(t, thing, "B", "b").SetID(clientID)
		if err := s.Insert(ctx, given); err != nil {
			t.Fatalf("Insert() error: %v", err)
		}
		set, err := s.Query(ctx, thing, Query{Filter: expression.Eq(expression.NewPath("id"), expression.StringConstant{V: "thing-1"})})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		if got := names(set); !reflect.DeepEqual(got, []string{"B"}) {
			t.Errorf("Expected [B], got %v", got)
		}
	})

	t.Run("server only", func(t *testing.T) {
		s := newTestService(t, Config{IDType: "STRING"})
		thing := mustEntityType(t, s, "Thing")
		err := s.Insert(ctx, newThing(t, thing, "B", "b").SetID(clientID))
		if !errors.Is(err, ErrBadRequest) {
			t.Errorf("Expected a bad request for a client id, got %v", err)
		}
	})

	t.Run("client only", func(t *testing.T) {
		s := newTestService(t, Config{IDType: "UUID", IDGeneration: ClientGeneratedOnly})
		thing := mustEntityType(t, s, "Thing")
		if err := s.Insert(ctx, newThing(t, thing, "A", "a")); !errors.Is(err, ErrBadRequest) {
			t.Errorf("Expected a bad request without id, got %v", err)
		}
	})
}

func TestService_Plugins(t *testing.T) {
	t.Run("actuation", func(t *testing.T) {
		s := newTestService(t, Config{EnableActuation: true})
		mustEntityType(t, s, "Actuators")
		if got := s.Conformance(); len(got) != 4 {
			t.Errorf("Expected 4 conformance classes, got %v", got)
		}
	})

	t.Run("oms", func(t *testing.T) {
		s := newTestService(t, Config{DisableCoreModel: true, EnableOMS: true})
		mustEntityType(t, s, "Deployments")
		if got := s.Conformance(); !reflect.DeepEqual(got, []string{oms.Conformance}) {
			t.Errorf("Expected the OMS conformance class, got %v", got)
		}
	})

	t.Run("oms with core model", func(t *testing.T) {
		db, err := OpenDatabase(Config{DSN: ":memory:"})
		if err != nil {
			t.Fatalf("Failed to open database: %v", err)
		}
		s, err := NewServiceWithConfig(db, Config{EnableOMS: true})
		if err != nil {
			t.Fatalf("NewServiceWithConfig() error: %v", err)
		}
		if err := s.Initialize(context.Background()); !errors.Is(err, model.ErrConfiguration) {
			t.Errorf("Expected configuration error, got %v", err)
		}
	})
}

func TestService_EnableGeospatial_Unsupported(t *testing.T) {
	db, err := OpenDatabase(Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	s, err := NewService(db)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	err = s.EnableGeospatial()
	if err == nil || !strings.Contains(err.Error(), "SpatiaLite") {
		t.Errorf("Expected an error explaining SpatiaLite, got %v", err)
	}
	if s.IsGeospatialEnabled() {
		t.Error("Expected geospatial features to stay disabled")
	}
}

func TestService_SetObservability(t *testing.T) {
	s := newTestService(t, Config{})
	err := s.SetObservability(ObservabilityConfig{
		TracerProvider:          tracenoop.NewTracerProvider(),
		MeterProvider:           metricnoop.NewMeterProvider(),
		ServiceName:             "test-frost",
		EnableDetailedDBTracing: true,
		EnableServerTiming:      true,
	})
	if err != nil {
		t.Fatalf("SetObservability() error: %v", err)
	}
	if s.Observability() == nil || s.Observability().ServiceName() != "test-frost" {
		t.Error("Expected the observability configuration to be stored")
	}
	thing := mustEntityType(t, s, "Thing")
	if err := s.Insert(context.Background(), newThing(t, thing, "Traced", "x")); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	set, err := s.Query(context.Background(), thing, Query{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("Expected one thing, got %d", set.Len())
	}
	StartServerTiming(context.Background(), "noop").Stop()
}
