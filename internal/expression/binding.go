package expression

import "strings"

// Binding is one accepted tuple of argument types and the type of the result.
type Binding struct {
	Params []Type
	Result Type
}

// NewBinding creates a binding from a result type and its parameter types.
func NewBinding(result Type, params ...Type) Binding {
	return Binding{Params: params, Result: result}
}

// Accepts reports whether arguments of the given types fit the binding.
func (b Binding) Accepts(args []Type) bool {
	if len(args) != len(b.Params) {
		return false
	}
	for i, arg := range args {
		if !arg.AssignableTo(b.Params[i]) {
			return false
		}
	}
	return true
}

// overlaps reports whether some argument tuple is accepted by both bindings.
func (b Binding) overlaps(o Binding) bool {
	if len(b.Params) != len(o.Params) {
		return false
	}
	for i := range b.Params {
		if !b.Params[i].AssignableTo(o.Params[i]) && !o.Params[i].AssignableTo(b.Params[i]) {
			return false
		}
	}
	return true
}

func (b Binding) String() string {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.String()
	}
	return "(" + strings.Join(params, ", ") + ") -> " + b.Result.String()
}

// FunctionDef declares a function and its bindings. The order of Bindings is
// part of the contract: Resolve returns the first match, never the best one.
type FunctionDef struct {
	Name     string
	Bindings []Binding
}

// Resolve selects the first binding accepting the argument types.
func (d *FunctionDef) Resolve(args []Type) (Binding, bool) {
	for _, b := range d.Bindings {
		if b.Accepts(args) {
			return b, true
		}
	}
	return Binding{}, false
}
