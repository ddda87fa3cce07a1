package expression

import (
	"fmt"
	"log/slog"
)

// Names of the built-in functions.
const (
	FuncEq  = "eq"
	FuncNe  = "ne"
	FuncGt  = "gt"
	FuncGe  = "ge"
	FuncLt  = "lt"
	FuncLe  = "le"
	FuncNot = "not"
	FuncAnd = "and"
	FuncOr  = "or"

	FuncAdd = "add"
	FuncSub = "sub"
	FuncMul = "mul"
	FuncDiv = "div"
	FuncMod = "mod"

	FuncConcat      = "concat"
	FuncContains    = "contains"
	FuncSubstringOf = "substringof"
	FuncStartsWith  = "startswith"
	FuncEndsWith    = "endswith"
	FuncLength      = "length"
	FuncIndexOf     = "indexof"
	FuncSubstring   = "substring"
	FuncToLower     = "tolower"
	FuncToUpper     = "toupper"
	FuncTrim        = "trim"

	FuncYear   = "year"
	FuncMonth  = "month"
	FuncDay    = "day"
	FuncHour   = "hour"
	FuncMinute = "minute"
	FuncSecond = "second"
	FuncNow    = "now"

	FuncRound   = "round"
	FuncFloor   = "floor"
	FuncCeiling = "ceiling"

	FuncGeoDistance   = "geo.distance"
	FuncGeoLength     = "geo.length"
	FuncGeoIntersects = "geo.intersects"
	FuncSTEquals      = "st_equals"
	FuncSTDisjoint    = "st_disjoint"
	FuncSTTouches     = "st_touches"
	FuncSTWithin      = "st_within"
	FuncSTOverlaps    = "st_overlaps"
	FuncSTCrosses     = "st_crosses"
	FuncSTIntersects  = "st_intersects"
	FuncSTContains    = "st_contains"
)

// Catalog holds the function definitions known to the compiler. It is
// populated during initialization and only read afterwards.
type Catalog struct {
	defs   map[string]*FunctionDef
	order  []string
	logger *slog.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*FunctionDef), logger: slog.Default()}
}

// SetLogger sets the logger. A nil logger selects slog.Default().
func (c *Catalog) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// Register adds a function definition. A name can only be registered once;
// use AddBinding to extend an existing function.
func (c *Catalog) Register(def FunctionDef) error {
	if _, ok := c.defs[def.Name]; ok {
		return fmt.Errorf("function '%s' is already registered", def.Name)
	}
	d := def
	d.Bindings = append([]Binding(nil), def.Bindings...)
	c.defs[def.Name] = &d
	c.order = append(c.order, def.Name)
	return nil
}

// AddBinding appends a binding to a function, creating the function when it
// does not exist. Appended bindings never shadow earlier ones, so an overlap
// only takes effect for argument types the earlier bindings reject.
func (c *Catalog) AddBinding(name string, b Binding) {
	d, ok := c.defs[name]
	if !ok {
		d = &FunctionDef{Name: name}
		c.defs[name] = d
		c.order = append(c.order, name)
	}
	for _, existing := range d.Bindings {
		if existing.overlaps(b) {
			c.logger.Debug("Function binding overlaps an earlier binding", "function", name, "binding", b.String(), "earlier", existing.String())
			break
		}
	}
	d.Bindings = append(d.Bindings, b)
}

// Lookup finds a function definition by name.
func (c *Catalog) Lookup(name string) (*FunctionDef, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the registered function names in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

func mustRegister(c *Catalog, name string, bindings ...Binding) {
	if err := c.Register(FunctionDef{Name: name, Bindings: bindings}); err != nil {
		panic(err)
	}
}

// DefaultCatalog returns a new catalog holding the built-in functions.
// Bindings are ordered narrowest first.
func DefaultCatalog() *Catalog {
	c := NewCatalog()

	comparison := []Binding{
		NewBinding(TypeBoolean, TypeNumber, TypeNumber),
		NewBinding(TypeBoolean, TypeString, TypeString),
		NewBinding(TypeBoolean, TypeBoolean, TypeBoolean),
		NewBinding(TypeBoolean, TypeDateTime, TypeDateTime),
		NewBinding(TypeBoolean, TypeTimeValue, TypeTimeValue),
		NewBinding(TypeBoolean, TypeDuration, TypeDuration),
		NewBinding(TypeBoolean, TypeGeometry, TypeGeometry),
	}
	for _, name := range []string{FuncEq, FuncNe, FuncGt, FuncGe, FuncLt, FuncLe} {
		mustRegister(c, name, comparison...)
	}
	mustRegister(c, FuncNot, NewBinding(TypeBoolean, TypeBoolean))
	mustRegister(c, FuncAnd, NewBinding(TypeBoolean, TypeBoolean, TypeBoolean))
	mustRegister(c, FuncOr, NewBinding(TypeBoolean, TypeBoolean, TypeBoolean))

	arithmetic := []Binding{
		NewBinding(TypeInteger, TypeInteger, TypeInteger),
		NewBinding(TypeDouble, TypeDouble, TypeDouble),
		NewBinding(TypeDecimal, TypeDecimal, TypeDecimal),
		NewBinding(TypeNumber, TypeNumber, TypeNumber),
	}
	mustRegister(c, FuncAdd, append(arithmetic,
		NewBinding(TypeDateTime, TypeDateTime, TypeDuration),
		NewBinding(TypeDuration, TypeDuration, TypeDuration))...)
	mustRegister(c, FuncSub, append(arithmetic,
		NewBinding(TypeDateTime, TypeDateTime, TypeDuration),
		NewBinding(TypeDuration, TypeDateTime, TypeDateTime),
		NewBinding(TypeDuration, TypeDuration, TypeDuration))...)
	mustRegister(c, FuncMul, append(arithmetic, NewBinding(TypeDuration, TypeDuration, TypeNumber))...)
	mustRegister(c, FuncDiv, append(arithmetic, NewBinding(TypeDuration, TypeDuration, TypeNumber))...)
	mustRegister(c, FuncMod, arithmetic...)

	mustRegister(c, FuncConcat, NewBinding(TypeString, TypeString, TypeString))
	for _, name := range []string{FuncContains, FuncSubstringOf, FuncStartsWith, FuncEndsWith} {
		mustRegister(c, name, NewBinding(TypeBoolean, TypeString, TypeString))
	}
	mustRegister(c, FuncLength, NewBinding(TypeInteger, TypeString))
	mustRegister(c, FuncIndexOf, NewBinding(TypeInteger, TypeString, TypeString))
	mustRegister(c, FuncSubstring,
		NewBinding(TypeString, TypeString, TypeInteger),
		NewBinding(TypeString, TypeString, TypeInteger, TypeInteger))
	for _, name := range []string{FuncToLower, FuncToUpper, FuncTrim} {
		mustRegister(c, name, NewBinding(TypeString, TypeString))
	}

	for _, name := range []string{FuncYear, FuncMonth, FuncDay, FuncHour, FuncMinute, FuncSecond} {
		mustRegister(c, name, NewBinding(TypeInteger, TypeDateTime), NewBinding(TypeInteger, TypeTimeValue))
	}
	mustRegister(c, FuncNow, NewBinding(TypeDateTime))

	for _, name := range []string{FuncRound, FuncFloor, FuncCeiling} {
		mustRegister(c, name, NewBinding(TypeInteger, TypeInteger), NewBinding(TypeNumber, TypeNumber))
	}

	mustRegister(c, FuncGeoDistance, NewBinding(TypeDouble, TypeGeometry, TypeGeometry))
	mustRegister(c, FuncGeoLength, NewBinding(TypeDouble, TypeGeometry))
	for _, name := range SpatialRelations() {
		mustRegister(c, name, NewBinding(TypeBoolean, TypeGeometry, TypeGeometry))
	}
	return c
}

// SpatialRelations returns the names of the boolean spatial predicates.
func SpatialRelations() []string {
	return []string{FuncGeoIntersects, FuncSTEquals, FuncSTDisjoint, FuncSTTouches, FuncSTWithin,
		FuncSTOverlaps, FuncSTCrosses, FuncSTIntersects, FuncSTContains}
}

// IsSpatial reports whether the named function needs geospatial support in
// the database.
func IsSpatial(name string) bool {
	if name == FuncGeoDistance || name == FuncGeoLength {
		return true
	}
	for _, n := range SpatialRelations() {
		if n == name {
			return true
		}
	}
	return false
}
