package oms

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

var enableOMS = plugin.Settings{Enabled: map[string]bool{Name: true, coremodel.Name: false}}

func TestNew_DisabledByDefault(t *testing.T) {
	enabled, err := New().Init(plugin.Settings{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if enabled {
		t.Error("Expected the OMS model to be disabled by default")
	}
}

func TestNew_Model(t *testing.T) {
	p := New()
	runner := plugin.NewRunner()
	if err := runner.Register(p); err != nil {
		t.Fatalf("Failed to register plugin: %v", err)
	}
	if err := runner.Init(enableOMS); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	reg := model.NewRegistry()
	if err := runner.RegisterEntityTypes(reg); err != nil {
		t.Fatalf("RegisterEntityTypes failed: %v", err)
	}

	if got := len(reg.EntityTypes()); got != 8 {
		t.Errorf("Expected 8 entity types, got %d", got)
	}
	deployment, ok := reg.EntityTypeForName("Deployments")
	if !ok {
		t.Fatal("Expected entity type Deployment")
	}
	host := deployment.FindNavigationProperty("Host")
	if host == nil || !deployment.IsRequired(host) {
		t.Error("Expected Deployment to require a Host")
	}
	if got := runner.Conformance(); len(got) != 1 || got[0] != Conformance {
		t.Errorf("Expected conformance [%s], got %v", Conformance, got)
	}

	var resultTable persistence.TableDef
	for _, def := range p.TableDefs() {
		if def.Name == "RESULT_VAL" {
			resultTable = def
		}
	}
	var names []string
	for _, c := range resultTable.Columns {
		names = append(names, c.Name)
	}
	expected := "ID NAME DESCRIPTION METADATA PHENOMENON_TIME_START PHENOMENON_TIME_END RESULT_TIME " +
		"RESULT_TYPE RESULT_STRING RESULT_NUMBER RESULT_BOOLEAN RESULT_JSON DATA_QUALITY VALID_TIME_START VALID_TIME_END OBS"
	if got := strings.Join(names, " "); got != expected {
		t.Errorf("Expected RESULT_VAL columns\n%s\ngot\n%s", expected, got)
	}

	tables := persistence.NewTableCollection(persistence.NewMapSchema(p.TableDefs()...), persistence.DialectSQLite, model.IDKindLong)
	if err := runner.LinkEntityTypes(tables); err != nil {
		t.Fatalf("LinkEntityTypes failed: %v", err)
	}
	observation, _ := reg.EntityTypeForName("Observation")
	compiler := query.NewCompiler(tables, expression.DefaultCatalog())
	filter := expression.And(
		expression.Gt(expression.NewPath("Results/result"), expression.IntegerConstant{V: 5}),
		expression.Eq(expression.NewPath("Host/name"), expression.StringConstant{V: "Mast"}),
	)
	cq, err := compiler.Compile(context.Background(), observation, query.Query{Filter: filter})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	sql, _ := cq.SQL()
	for _, fragment := range []string{
		`LEFT JOIN "RESULT_VAL" AS "e1" ON "e1"."OBS" = "e0"."ID"`,
		`LEFT JOIN "HOST" AS "e2" ON "e2"."ID" = "e0"."HOST"`,
		`"e1"."RESULT_NUMBER" > ?`,
	} {
		if !strings.Contains(sql, fragment) {
			t.Errorf("Expected SQL to contain %s, got %s", fragment, sql)
		}
	}
}

func TestNew_ConflictsWithCoreModel(t *testing.T) {
	runner := plugin.NewRunner()
	for _, p := range []plugin.Plugin{coremodel.New(), New()} {
		if err := runner.Register(p); err != nil {
			t.Fatalf("Failed to register plugin: %v", err)
		}
	}
	if err := runner.Init(plugin.Settings{Enabled: map[string]bool{Name: true}}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	err := runner.RegisterEntityTypes(model.NewRegistry())
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
