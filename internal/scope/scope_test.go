package scope

import "testing"

func TestCombinators(t *testing.T) {
	a := New(`"e0"."NAME" = ?`, "x")
	b := New(`"e0"."ID" > ?`, 5)

	and := And(a, QueryScope{}, b)
	if and.Condition != `("e0"."NAME" = ?) AND ("e0"."ID" > ?)` {
		t.Errorf("Unexpected condition %s", and.Condition)
	}
	if len(and.Args) != 2 || and.Args[0] != "x" || and.Args[1] != 5 {
		t.Errorf("Unexpected args %v", and.Args)
	}

	single := Or(QueryScope{}, a)
	if single.Condition != a.Condition {
		t.Errorf("Expected %s, got %s", a.Condition, single.Condition)
	}

	not := Not(a)
	if not.Condition != `NOT ("e0"."NAME" = ?)` {
		t.Errorf("Unexpected condition %s", not.Condition)
	}
	nested := And(New(`("e1"."NAME" = ?)`, "a"), Or(a, b)).Wrap()
	if nested.Condition != `(("e1"."NAME" = ?) AND (("e0"."NAME" = ?) OR ("e0"."ID" > ?)))` {
		t.Errorf("Unexpected condition %s", nested.Condition)
	}
	if len(nested.Args) != 3 || nested.Args[0] != "a" {
		t.Errorf("Unexpected args %v", nested.Args)
	}
	if got := New(`("a") OR ("b")`).Wrap().Condition; got != `(("a") OR ("b"))` {
		t.Errorf("Expected a condition of two groups to be wrapped, got %s", got)
	}
	if got := New(`(x = ')')`).Wrap().Condition; got != `(x = ')')` {
		t.Errorf("Expected an enclosed condition to stay as is, got %s", got)
	}

	if !Not(QueryScope{}).IsEmpty() {
		t.Error("Negating an empty scope must stay empty")
	}
}
