package query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

func ids(set *model.EntitySet) []string {
	out := make([]string, 0, set.Len())
	for _, e := range set.Entities() {
		out = append(out, e.ID().String())
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func run(t *testing.T, f *fixture, et *model.EntityType, q Query, ds *persistence.DataSize) *model.EntitySet {
	t.Helper()
	db := openFixtureDB(t)
	cq, err := f.compiler.Compile(context.Background(), et, q)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	set, err := cq.Execute(context.Background(), db, ds)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return set
}

func TestExecute_Filters(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	tests := []struct {
		name   string
		et     *model.EntityType
		filter expression.Expression
		want   []string
	}{
		{"numeric result", f.observation, expression.Gt(path("result"), num(2)), []string{"1"}},
		{"string result", f.observation, expression.Eq(path("result"), str("dry")), []string{"3"}},
		{"boolean result", f.observation, expression.Eq(path("result"), expression.BooleanConstant{V: true}), []string{"4"}},
		{"null result time", f.observation, expression.Eq(path("resultTime"), expression.NullConstant{}), []string{"1", "2", "3", "4", "5"}},
		{"interval after instant", f.observation, expression.Ge(path("phenomenonTime"), expression.DateTimeConstant{V: refTime}), []string{"4", "5"}},
		{"interval before instant", f.observation, expression.Lt(path("phenomenonTime"), expression.DateTimeConstant{V: refTime}), []string{"1", "2"}},
		{"computed instant equals stored instant", f.observation, expression.Eq(
			expression.Call(expression.FuncAdd, path("phenomenonTime"), expression.DurationConstant{V: 24 * time.Hour}),
			expression.DateTimeConstant{V: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}), []string{"1"}},
		{"computed instant before stored instant", f.observation, expression.Lt(
			expression.Call(expression.FuncSub, path("phenomenonTime"), expression.DurationConstant{V: 36 * time.Hour}),
			expression.DateTimeConstant{V: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}), []string{"1", "2"}},
		{"to-one navigation", f.observation, expression.Eq(path("Datastream/Thing/name"), str("River gauge")), []string{"3", "4", "5"}},
		{"json member", f.datastream, expression.Eq(path("unitOfMeasurement/symbol"), str("m")), []string{"2"}},
		{"object member", f.thing, expression.Eq(path("properties/floor"), num(5)), []string{"1"}},
		{"to-many without duplicates", f.thing, expression.Ne(path("Locations/name"), str("none")), []string{"1", "2"}},
		{"to-many on observations", f.datastream, expression.Gt(path("Observations/result"), num(20)), []string{"1"}},
		{"string function", f.thing, expression.Call(expression.FuncStartsWith, path("name"), str("River")), []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := run(t, f, tt.et, Query{Filter: tt.filter}, nil)
			if got := ids(set); !equalIDs(got, tt.want...) {
				t.Errorf("Expected ids %v, got %v", tt.want, got)
			}
			if set.NextLink() != "" {
				t.Errorf("Expected no next link, got %s", set.NextLink())
			}
		})
	}
}

func TestExecute_DecodesResultVariants(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.observation, Query{}, nil)
	if set.Len() != 5 {
		t.Fatalf("Expected 5 observations, got %d", set.Len())
	}

	if !model.ValuesEqual(set.Get(0).GetProperty(f.result), decimal.RequireFromString("21.5")) {
		t.Errorf("Expected numeric result 21.5, got %v", set.Get(0).GetProperty(f.result))
	}
	if got := set.Get(2).GetProperty(f.result); got != "dry" {
		t.Errorf("Expected string result dry, got %v", got)
	}
	if got := set.Get(3).GetProperty(f.result); got != true {
		t.Errorf("Expected boolean result true, got %v", got)
	}
	obj, ok := set.Get(4).GetProperty(f.result).(map[string]any)
	if !ok || !model.ValuesEqual(obj["level"], 3.2) {
		t.Errorf("Expected object result, got %v", set.Get(4).GetProperty(f.result))
	}

	if _, ok := set.Get(0).GetProperty(f.phenomenonTime).(model.TimeInstant); !ok {
		t.Errorf("Expected an instant, got %T", set.Get(0).GetProperty(f.phenomenonTime))
	}
	if _, ok := set.Get(2).GetProperty(f.phenomenonTime).(model.TimeInterval); !ok {
		t.Errorf("Expected an interval, got %T", set.Get(2).GetProperty(f.phenomenonTime))
	}
	if !set.Get(0).IsSetProperty(f.resultTime) || set.Get(0).GetProperty(f.resultTime) != nil {
		t.Error("Expected resultTime to be set to null")
	}
}

func TestExecute_Paging(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.observation, Query{Top: 2, Count: true}, nil)
	if got := ids(set); !equalIDs(got, "1", "2") {
		t.Errorf("Expected first page [1 2], got %v", got)
	}
	if set.NextLink() != "Observations?$top=2&$skip=2&$count=true" {
		t.Errorf("Unexpected next link %s", set.NextLink())
	}
	if count, ok := set.Count(); !ok || count != 5 {
		t.Errorf("Expected count 5, got %d", count)
	}

	set = run(t, f, f.observation, Query{Top: 2, Skip: 4}, nil)
	if got := ids(set); !equalIDs(got, "5") {
		t.Errorf("Expected last page [5], got %v", got)
	}
	if set.NextLink() != "" {
		t.Errorf("Expected no next link on the last page, got %s", set.NextLink())
	}
}

func TestExecute_OrderBy(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.observation, Query{OrderBy: []OrderBy{{Expr: path("phenomenonTime"), Descending: true}}}, nil)
	if got := ids(set); !equalIDs(got, "5", "4", "3", "2", "1") {
		t.Errorf("Expected descending order, got %v", got)
	}

	set = run(t, f, f.datastream, Query{
		OrderBy: []OrderBy{{Expr: path("Thing/name")}},
		Filter:  expression.Ne(path("name"), str("x")),
	}, nil)
	if got := ids(set); !equalIDs(got, "2", "1") {
		t.Errorf("Expected River gauge before Weather station, got %v", got)
	}
}

func TestExecute_CountWithToManyFilter(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.thing, Query{Filter: expression.Eq(path("Locations/name"), str("Roof top")), Count: true}, nil)
	if count, ok := set.Count(); !ok || count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}

func TestExecute_DataSizeLimit(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.thing, Query{Select: []string{"properties"}}, persistence.NewDataSize(1))
	if set.Len() != 1 {
		t.Fatalf("Expected decoding to stop after one entity, got %d", set.Len())
	}
	if set.NextLink() != "Things?$top=100&$skip=1&$select=properties" {
		t.Errorf("Unexpected next link %s", set.NextLink())
	}
}

func TestExecute_NextLinkEncodesOptions(t *testing.T) {
	f := newFixture(t, persistence.DialectSQLite, false)

	set := run(t, f, f.observation, Query{
		Filter:  expression.Ne(path("result"), expression.NullConstant{}),
		OrderBy: []OrderBy{{Expr: path("result"), Descending: true}},
		Top:     1,
	}, nil)
	expected := "Observations?$top=1&$skip=1&$filter=%28result+ne+null%29&$orderby=result+desc"
	if set.NextLink() != expected {
		t.Errorf("Expected next link %s, got %s", expected, set.NextLink())
	}
}
