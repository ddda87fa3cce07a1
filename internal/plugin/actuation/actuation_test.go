package actuation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/plugin"
	"github.com/pbaumard/FROST-Server/internal/plugin/coremodel"
	"github.com/pbaumard/FROST-Server/internal/query"
)

func newRunner(t *testing.T, plugins ...plugin.Plugin) *plugin.Runner {
	t.Helper()
	runner := plugin.NewRunner()
	for _, p := range plugins {
		if err := runner.Register(p); err != nil {
			t.Fatalf("Failed to register plugin: %v", err)
		}
	}
	return runner
}

func TestPlugin_DisabledByDefault(t *testing.T) {
	runner := newRunner(t, coremodel.New(), New())
	if err := runner.Init(plugin.Settings{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	enabled := runner.Enabled()
	if len(enabled) != 1 || enabled[0].Name() != coremodel.Name {
		t.Errorf("Expected only the core model to be enabled, got %d plugins", len(enabled))
	}
}

func TestPlugin_RequiresCoreModel(t *testing.T) {
	runner := newRunner(t, New())
	if err := runner.Init(plugin.Settings{Enabled: map[string]bool{Name: true}}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	err := runner.RegisterEntityTypes(model.NewRegistry())
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Thing") {
		t.Errorf("Expected error to name Thing, got %q", err.Error())
	}
}

func TestPlugin_ExtendsThing(t *testing.T) {
	core := coremodel.New()
	act := New()
	runner := newRunner(t, core, act)
	if err := runner.Init(plugin.Settings{Enabled: map[string]bool{Name: true}}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	reg := model.NewRegistry()
	if err := runner.RegisterEntityTypes(reg); err != nil {
		t.Fatalf("RegisterEntityTypes failed: %v", err)
	}

	if act.NPThing != core.NPThing {
		t.Error("Expected the Thing navigation property to be shared with the core model")
	}
	if np := core.Thing.FindNavigationProperty("TaskingCapabilities"); np == nil || np.Target() != act.TaskingCapability {
		t.Errorf("Expected Thing to navigate to TaskingCapabilities, got %v", np)
	}

	var defs []persistence.TableDef
	defs = append(defs, core.TableDefs()...)
	defs = append(defs, act.TableDefs()...)
	tables := persistence.NewTableCollection(persistence.NewMapSchema(defs...), persistence.DialectSQLite, model.IDKindLong)
	if err := runner.LinkEntityTypes(tables); err != nil {
		t.Fatalf("LinkEntityTypes failed: %v", err)
	}
	things, _ := tables.TableFor(core.Thing)
	if rel, ok := things.Relation("TaskingCapabilities"); !ok || !rel.IsToMany() {
		t.Fatal("Expected to-many relation TaskingCapabilities on THINGS")
	}

	compiler := query.NewCompiler(tables, expression.DefaultCatalog())
	filter := expression.Eq(expression.NewPath("TaskingCapabilities/Actuator/name"), expression.StringConstant{V: "Switch"})
	cq, err := compiler.Compile(context.Background(), core.Thing, query.Query{Filter: filter})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	sql, args := cq.SQL()
	for _, fragment := range []string{`"TASKINGCAPABILITIES" AS "e1"`, `"ACTUATORS" AS "e2"`, `"e0"."ID" IN (SELECT`} {
		if !strings.Contains(sql, fragment) {
			t.Errorf("Expected SQL to contain %s, got %s", fragment, sql)
		}
	}
	if len(args) != 1 || args[0] != "Switch" {
		t.Errorf("Expected args [Switch], got %v", args)
	}

	if got := runner.Conformance(); len(got) != 4 || got[3] != conformance[0] {
		t.Errorf("Expected the tasking conformance class last, got %v", got)
	}
}
